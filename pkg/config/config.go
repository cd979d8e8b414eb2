package config

import (
	"fmt"
	"strconv"
	"strings"
)

// Config is the full dwm-status configuration.
type Config struct {
	General GeneralConfig `toml:"general" yaml:"general"`

	// Blocks are rendered in the order given. When empty, the blocks of
	// General.Preset are used.
	Blocks []BlockConfig `toml:"block" yaml:"block"`
}

// GeneralConfig holds daemon-wide settings.
type GeneralConfig struct {
	Separator   string `toml:"separator" yaml:"separator"`
	Placeholder string `toml:"placeholder" yaml:"placeholder"`
	Loading     string `toml:"loading" yaml:"loading"`
	MaxWidth    int    `toml:"max_width" yaml:"max_width"`
	Prefix      string `toml:"prefix" yaml:"prefix"`
	Suffix      string `toml:"suffix" yaml:"suffix"`
	Preset      string `toml:"preset" yaml:"preset"`

	Debounce   Duration `toml:"debounce" yaml:"debounce"`
	Timeout    Duration `toml:"timeout" yaml:"timeout"`
	MaxBackoff Duration `toml:"max_backoff" yaml:"max_backoff"`

	// Sink is "x11" or "stdout".
	Sink    string `toml:"sink" yaml:"sink"`
	Display string `toml:"display" yaml:"display"`

	Notify        bool     `toml:"notify" yaml:"notify"`
	NotifyTimeout Duration `toml:"notify_timeout" yaml:"notify_timeout"`

	PIDFile    string `toml:"pid_file" yaml:"pid_file"`
	Socket     string `toml:"socket" yaml:"socket"`
	HealthFile string `toml:"health_file" yaml:"health_file"`
	LogFile    string `toml:"log_file" yaml:"log_file"`
	LogLevel   string `toml:"log_level" yaml:"log_level"`
}

// BlockConfig configures one block.
type BlockConfig struct {
	Kind string `toml:"kind" yaml:"kind"`
	// Name defaults to Kind and must be unique.
	Name     string   `toml:"name" yaml:"name"`
	Interval Duration `toml:"interval" yaml:"interval"`
	// Event selects the block's wake source when it has one. Unset means
	// the kind's default.
	Event    *bool    `toml:"event" yaml:"event"`
	Format   string   `toml:"format" yaml:"format"`
	MaxWidth int      `toml:"max_width" yaml:"max_width"`
	Notify   *bool    `toml:"notify" yaml:"notify"`
	Timeout  Duration `toml:"timeout" yaml:"timeout"`

	// Options holds kind-specific settings such as the mixer control or
	// the network interface.
	Options map[string]string `toml:"options" yaml:"options"`
}

// ID returns the block's name, defaulting to its kind.
func (b BlockConfig) ID() string {
	if b.Name != "" {
		return b.Name
	}
	return b.Kind
}

// EventOr returns Event, or def when unset.
func (b BlockConfig) EventOr(def bool) bool {
	if b.Event == nil {
		return def
	}
	return *b.Event
}

// NotifyEnabled reports whether alerts of this block are raised. Blocks
// notify unless explicitly disabled.
func (b BlockConfig) NotifyEnabled() bool {
	return b.Notify == nil || *b.Notify
}

// Option returns the named option or def.
func (b BlockConfig) Option(key, def string) string {
	if v, ok := b.Options[key]; ok && v != "" {
		return v
	}
	return def
}

// BoolOption parses a boolean option.
func (b BlockConfig) BoolOption(key string, def bool) (bool, error) {
	v, ok := b.Options[key]
	if !ok || v == "" {
		return def, nil
	}
	parsed, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("block %s: option %s: %w", b.ID(), key, err)
	}
	return parsed, nil
}

// FloatOption parses a numeric option.
func (b BlockConfig) FloatOption(key string, def float64) (float64, error) {
	v, ok := b.Options[key]
	if !ok || v == "" {
		return def, nil
	}
	parsed, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("block %s: option %s: %w", b.ID(), key, err)
	}
	return parsed, nil
}

// IntsOption parses a comma separated list of integers. An explicitly
// empty value yields an empty, non-nil list.
func (b BlockConfig) IntsOption(key string) ([]int, error) {
	v, ok := b.Options[key]
	if !ok {
		return nil, nil
	}
	out := []int{}
	for _, f := range strings.Split(v, ",") {
		f = strings.TrimSpace(f)
		if f == "" {
			continue
		}
		n, err := strconv.Atoi(f)
		if err != nil {
			return nil, fmt.Errorf("block %s: option %s: %w", b.ID(), key, err)
		}
		out = append(out, n)
	}
	return out, nil
}
