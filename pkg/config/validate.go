package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

// Block kinds understood by the block set builder.
const (
	KindVolume    = "volume"
	KindWired     = "wired"
	KindWireless  = "wireless"
	KindCPULoad   = "cpu_load"
	KindMemory    = "memory"
	KindCPU       = "cpu"
	KindDisk      = "disk"
	KindUptime    = "uptime"
	KindBattery   = "battery"
	KindBacklight = "backlight"
	KindClock     = "clock"
)

// Kinds lists every supported block kind.
var Kinds = []string{
	KindVolume, KindWired, KindWireless, KindCPULoad, KindMemory, KindCPU,
	KindDisk, KindUptime, KindBattery, KindBacklight, KindClock,
}

// Sinks lists the accepted values of general.sink.
var Sinks = []string{"x11", "stdout"}

// Validate reports every problem found in the configuration.
func (c *Config) Validate() error {
	var errs []error
	g := c.General

	if !contains(Sinks, g.Sink) {
		errs = append(errs, fmt.Errorf("general.sink: %q is not one of %s", g.Sink, strings.Join(Sinks, ", ")))
	}
	if len(c.Blocks) == 0 && !contains(Presets, g.Preset) {
		errs = append(errs, fmt.Errorf("general.preset: %q is not one of %s", g.Preset, strings.Join(Presets, ", ")))
	}
	if g.MaxWidth < 0 {
		errs = append(errs, errors.New("general.max_width: must not be negative"))
	}
	if g.Debounce.Duration <= 0 {
		errs = append(errs, errors.New("general.debounce: must be positive"))
	}
	if g.Timeout.Duration <= 0 {
		errs = append(errs, errors.New("general.timeout: must be positive"))
	}
	if _, err := ParseLevel(g.LogLevel); err != nil {
		errs = append(errs, fmt.Errorf("general.log_level: %w", err))
	}

	seen := make(map[string]int)
	for i, b := range c.ResolvedBlocks() {
		where := fmt.Sprintf("block[%d]", i)
		if b.Kind == "" {
			errs = append(errs, fmt.Errorf("%s: kind is required", where))
			continue
		}
		if !contains(Kinds, b.Kind) {
			errs = append(errs, fmt.Errorf("%s: unknown kind %q", where, b.Kind))
		}
		if prev, dup := seen[b.ID()]; dup {
			errs = append(errs, fmt.Errorf("%s: name %q already used by block[%d]", where, b.ID(), prev))
		} else {
			seen[b.ID()] = i
		}
		if b.MaxWidth < 0 {
			errs = append(errs, fmt.Errorf("%s: max_width must not be negative", where))
		}
		if b.Kind == KindWired && b.Option("interface", "") == "" {
			errs = append(errs, fmt.Errorf("%s: wired blocks need options.interface", where))
		}
	}
	return errors.Join(errs...)
}

// ParseLevel maps a log level name to a slog.Level.
func ParseLevel(s string) (slog.Level, error) {
	var lvl slog.Level
	if s == "" {
		return slog.LevelInfo, nil
	}
	if err := lvl.UnmarshalText([]byte(s)); err != nil {
		return 0, err
	}
	return lvl, nil
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
