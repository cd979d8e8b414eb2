// Package blockset builds the block registry from configuration.
package blockset

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/ForyoungYu/dwm-status/pkg/blocks"
	"github.com/ForyoungYu/dwm-status/pkg/blocks/backlight"
	"github.com/ForyoungYu/dwm-status/pkg/blocks/battery"
	"github.com/ForyoungYu/dwm-status/pkg/blocks/clock"
	"github.com/ForyoungYu/dwm-status/pkg/blocks/network"
	"github.com/ForyoungYu/dwm-status/pkg/blocks/sysmetrics"
	"github.com/ForyoungYu/dwm-status/pkg/blocks/volume"
	"github.com/ForyoungYu/dwm-status/pkg/config"
	"github.com/ForyoungYu/dwm-status/pkg/driver"
)

// Env carries the host access shared by all blocks. Zero fields use the
// real host.
type Env struct {
	FS     driver.FS
	Runner driver.Runner
	Probe  sysmetrics.Probe
	Addrs  network.AddrFunc
	Now    func() time.Time

	// NoEvents forces every block onto its poll interval.
	NoEvents bool
}

// Set is a built registry plus the per-block settings consumed by the
// scheduler and the aggregator.
type Set struct {
	Registry *blocks.Registry

	Timeouts map[string]time.Duration
	Widths   map[string]int
	Silent   map[string]bool
}

// Names returns the block names in display order.
func (s *Set) Names() []string { return s.Registry.Names() }

var knownOptions = map[string][]string{
	config.KindVolume:    {"control", "mute", "alert_on_mute"},
	config.KindWired:     {"interface", "down", "no_value"},
	config.KindWireless:  {"interface", "disconnected", "no_value"},
	config.KindCPULoad:   {},
	config.KindMemory:    {"alert_above"},
	config.KindCPU:       {"alert_above"},
	config.KindDisk:      {"mount", "alert_above"},
	config.KindUptime:    {},
	config.KindBattery:   {"charging", "discharging", "no_battery", "separator", "levels", "critical"},
	config.KindBacklight: {"device"},
	config.KindClock:     {"location"},
}

// Build constructs every configured block in order. All construction
// errors are reported together.
func Build(cfgs []config.BlockConfig, env Env) (*Set, error) {
	if env.Runner == nil {
		env.Runner = driver.ExecRunner{}
	}
	if env.FS.Root == "" {
		env.FS = driver.HostFS()
	}

	set := &Set{
		Registry: blocks.NewRegistry(),
		Timeouts: make(map[string]time.Duration),
		Widths:   make(map[string]int),
		Silent:   make(map[string]bool),
	}

	var errs []error
	for i, bc := range cfgs {
		b, err := build(bc, env)
		if err != nil {
			errs = append(errs, fmt.Errorf("block[%d] %s: %w", i, bc.ID(), err))
			continue
		}
		if err := set.Registry.Register(b); err != nil {
			errs = append(errs, fmt.Errorf("block[%d]: %w", i, err))
			continue
		}
		if bc.Timeout.Duration > 0 {
			set.Timeouts[bc.ID()] = bc.Timeout.Duration
		}
		if bc.MaxWidth > 0 {
			set.Widths[bc.ID()] = bc.MaxWidth
		}
		if !bc.NotifyEnabled() {
			set.Silent[bc.ID()] = true
		}
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	if set.Registry.Len() == 0 {
		return nil, errors.New("no blocks configured")
	}
	return set, nil
}

func checkOptions(bc config.BlockConfig) error {
	known, ok := knownOptions[bc.Kind]
	if !ok {
		return fmt.Errorf("unknown kind %q", bc.Kind)
	}
	var unknown []string
	for k := range bc.Options {
		found := false
		for _, o := range known {
			if o == k {
				found = true
				break
			}
		}
		if !found {
			unknown = append(unknown, k)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return fmt.Errorf("unknown options %v for kind %s", unknown, bc.Kind)
	}
	return nil
}

func build(bc config.BlockConfig, env Env) (blocks.Block, error) {
	if err := checkOptions(bc); err != nil {
		return nil, err
	}
	event := func(def bool) bool { return !env.NoEvents && bc.EventOr(def) }
	name := bc.ID()
	interval := bc.Interval.Duration

	switch bc.Kind {
	case config.KindVolume:
		alert, err := bc.BoolOption("alert_on_mute", false)
		if err != nil {
			return nil, err
		}
		def := volume.DefaultConfig()
		if interval <= 0 {
			interval = def.Interval
		}
		return volume.New(volume.Config{
			Name:        name,
			Control:     bc.Option("control", def.Control),
			Format:      blocks.Template(bc.Format),
			Mute:        bc.Option("mute", def.Mute),
			Interval:    interval,
			Event:       event(def.Event),
			AlertOnMute: alert,
			Runner:      env.Runner,
		}), nil

	case config.KindWired:
		return network.NewWired(network.WiredConfig{
			Name:      name,
			Interface: bc.Option("interface", ""),
			Format:    blocks.Template(bc.Format),
			Down:      bc.Option("down", ""),
			NoValue:   bc.Option("no_value", ""),
			Interval:  interval,
			Event:     event(true),
			FS:        env.FS,
			Addrs:     env.Addrs,
		})

	case config.KindWireless:
		return network.NewWireless(network.WirelessConfig{
			Name:         name,
			Interface:    bc.Option("interface", ""),
			Format:       blocks.Template(bc.Format),
			Disconnected: bc.Option("disconnected", ""),
			NoValue:      bc.Option("no_value", ""),
			Interval:     interval,
			Event:        event(true),
			Runner:       env.Runner,
			FS:           env.FS,
			Addrs:        env.Addrs,
		}), nil

	case config.KindCPULoad, config.KindMemory, config.KindCPU, config.KindDisk, config.KindUptime:
		above, err := bc.FloatOption("alert_above", 0)
		if err != nil {
			return nil, err
		}
		return sysmetrics.New(sysmetrics.Config{
			Kind:       sysmetrics.Kind(bc.Kind),
			Name:       name,
			Format:     blocks.Template(bc.Format),
			Interval:   interval,
			Mount:      bc.Option("mount", ""),
			AlertAbove: above,
			Probe:      env.Probe,
		})

	case config.KindBattery:
		levels, err := bc.IntsOption("levels")
		if err != nil {
			return nil, err
		}
		critical, err := bc.FloatOption("critical", 0)
		if err != nil {
			return nil, err
		}
		return battery.New(battery.Config{
			Name:        name,
			Charging:    bc.Option("charging", ""),
			Discharging: bc.Option("discharging", ""),
			NoBattery:   bc.Option("no_battery", ""),
			Separator:   bc.Option("separator", ""),
			Interval:    interval,
			Levels:      levels,
			Critical:    int(critical),
			FS:          env.FS,
		}), nil

	case config.KindBacklight:
		return backlight.New(backlight.Config{
			Name:     name,
			Device:   bc.Option("device", ""),
			Format:   blocks.Template(bc.Format),
			Interval: interval,
			Event:    event(true),
			FS:       env.FS,
		})

	case config.KindClock:
		return clock.New(clock.Config{
			Name:     name,
			Format:   bc.Format,
			Location: bc.Option("location", ""),
			Interval: interval,
			Now:      env.Now,
		})
	}
	return nil, fmt.Errorf("unknown kind %q", bc.Kind)
}
