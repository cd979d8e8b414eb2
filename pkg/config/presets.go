package config

// Presets lists the names accepted by BlockPreset.
var Presets = []string{"default", "minimal", "laptop", "desktop"}

// BlockPreset returns the block list for a named preset.
// If the name is not recognized, the "default" preset is returned.
func BlockPreset(name string) []BlockConfig {
	switch name {
	case "minimal":
		return minimalPreset()
	case "laptop":
		return laptopPreset()
	case "desktop":
		return desktopPreset()
	case "default":
		return defaultPreset()
	default:
		return defaultPreset()
	}
}

// ResolvedBlocks returns the configured blocks, falling back to the preset
// when none are given.
func (c *Config) ResolvedBlocks() []BlockConfig {
	if len(c.Blocks) > 0 {
		return c.Blocks
	}
	return BlockPreset(c.General.Preset)
}

// defaultPreset returns load, memory and a clock.
//
//	[cpu_load] | [memory] | [clock]
func defaultPreset() []BlockConfig {
	return []BlockConfig{
		{Kind: KindCPULoad},
		{Kind: KindMemory},
		{Kind: KindClock},
	}
}

// minimalPreset returns just the clock.
func minimalPreset() []BlockConfig {
	return []BlockConfig{
		{Kind: KindClock, Format: "%H:%M"},
	}
}

// laptopPreset returns the blocks useful on battery powered machines.
//
//	[wireless] | [backlight] | [volume] | [battery] | [clock]
func laptopPreset() []BlockConfig {
	return []BlockConfig{
		{Kind: KindWireless, Format: "{ESSID} {SIGNAL}%"},
		{Kind: KindBacklight, Format: "☀ {BL}%"},
		{Kind: KindVolume},
		{Kind: KindBattery},
		{Kind: KindClock},
	}
}

// desktopPreset returns system metrics and audio for a wired machine.
//
//	[cpu] | [memory] | [disk] | [volume] | [clock]
func desktopPreset() []BlockConfig {
	return []BlockConfig{
		{Kind: KindCPU, Format: "cpu {PCT}"},
		{Kind: KindMemory},
		{Kind: KindDisk, Format: "/ {FREE}"},
		{Kind: KindVolume},
		{Kind: KindClock},
	}
}
