// Package battery reports charge and time estimates of all batteries from
// /sys/class/power_supply.
package battery

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"math"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/ForyoungYu/dwm-status/pkg/blocks"
	"github.com/ForyoungYu/dwm-status/pkg/driver"
)

const supplyDir = "sys/class/power_supply"

// Config controls the battery block.
type Config struct {
	Name        string
	Charging    string
	Discharging string
	NoBattery   string
	Separator   string
	Interval    time.Duration

	// Levels are capacity percentages that raise an alert when crossed while
	// discharging; Critical marks the level from which alerts are critical.
	Levels   []int
	Critical int

	FS driver.FS
}

// DefaultConfig returns the defaults used for empty fields.
func DefaultConfig() Config {
	return Config{
		Name:        "battery",
		Charging:    "▲",
		Discharging: "▼",
		NoBattery:   "NO BATT",
		Separator:   " · ",
		Interval:    10 * time.Second,
		Levels:      []int{2, 5, 10, 15, 20},
		Critical:    10,
	}
}

// Info is one battery reading.
type Info struct {
	// Capacity is the charge as a fraction in [0, 1].
	Capacity float64
	// Estimation is the time to empty or full; zero when unknown.
	Estimation time.Duration
}

// Render formats the battery as "56% (00:10)".
func (i Info) Render() string {
	s := fmt.Sprintf("%d%%", int(math.Round(i.Capacity*100)))
	if i.Estimation > 0 {
		s += " (" + fmtEstimation(i.Estimation) + ")"
	}
	return s
}

func fmtEstimation(d time.Duration) string {
	mins := int(d / time.Minute)
	return fmt.Sprintf("%02d:%02d", mins/60, mins%60)
}

// Block is the battery block.
type Block struct {
	cfg Config
}

// New returns a battery block; zero fields take defaults.
func New(cfg Config) *Block {
	def := DefaultConfig()
	if cfg.Name == "" {
		cfg.Name = def.Name
	}
	if cfg.Charging == "" {
		cfg.Charging = def.Charging
	}
	if cfg.Discharging == "" {
		cfg.Discharging = def.Discharging
	}
	if cfg.NoBattery == "" {
		cfg.NoBattery = def.NoBattery
	}
	if cfg.Separator == "" {
		cfg.Separator = def.Separator
	}
	if cfg.Interval <= 0 {
		cfg.Interval = def.Interval
	}
	if cfg.Levels == nil {
		cfg.Levels = def.Levels
		if cfg.Critical == 0 {
			cfg.Critical = def.Critical
		}
	}
	if cfg.FS.Root == "" {
		cfg.FS = driver.HostFS()
	}
	levels := append([]int(nil), cfg.Levels...)
	sort.Ints(levels)
	cfg.Levels = levels
	return &Block{cfg: cfg}
}

func (b *Block) Name() string { return b.cfg.Name }

func (b *Block) Cadence() blocks.Cadence { return blocks.Interval(b.cfg.Interval) }

// Refresh reads every power supply and renders the batteries in name order.
func (b *Block) Refresh(ctx context.Context) (blocks.Fragment, error) {
	acOnline, batteries, err := b.read()
	if err != nil {
		return blocks.Fragment{}, blocks.NewSourceError(b.cfg.Name, "read power supplies", err)
	}
	if len(batteries) == 0 {
		return blocks.Fragment{Text: b.cfg.NoBattery, Urgency: blocks.UrgencyLow}, nil
	}

	names := make([]string, 0, len(batteries))
	for name := range batteries {
		names = append(names, name)
	}
	sort.Strings(names)

	parts := make([]string, len(names))
	var total float64
	for i, name := range names {
		parts[i] = batteries[name].Render()
		total += batteries[name].Capacity
	}

	state := b.cfg.Discharging
	if acOnline {
		state = b.cfg.Charging
	}
	f := blocks.Fragment{
		Text:    state + " " + strings.Join(parts, b.cfg.Separator),
		Urgency: blocks.UrgencyLow,
	}

	if !acOnline {
		pct := int(math.Round(total / float64(len(names)) * 100))
		if level, ok := b.crossed(pct); ok {
			f.Alert = fmt.Sprintf("battery below %d%%", level)
			f.Urgency = blocks.UrgencyNormal
			if level <= b.cfg.Critical {
				f.Urgency = blocks.UrgencyCritical
			}
		}
	}
	return f, nil
}

// crossed returns the lowest configured level at or above pct.
func (b *Block) crossed(pct int) (int, bool) {
	for _, l := range b.cfg.Levels {
		if pct <= l {
			return l, true
		}
	}
	return 0, false
}

// read walks the power supply class. Batteries are keyed by device name.
func (b *Block) read() (bool, map[string]Info, error) {
	entries, err := b.cfg.FS.List(supplyDir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil, nil
		}
		return false, nil, err
	}

	acOnline := false
	batteries := make(map[string]Info)
	for _, name := range entries {
		dir := path.Join(supplyDir, name)
		kind, err := b.cfg.FS.ReadString(path.Join(dir, "type"))
		if err != nil {
			continue
		}
		switch kind {
		case "Mains", "USB":
			if online, err := b.cfg.FS.ReadInt(path.Join(dir, "online")); err == nil && online == 1 {
				acOnline = true
			}
		case "Battery":
			if present, err := b.cfg.FS.ReadInt(path.Join(dir, "present")); err == nil && present == 0 {
				continue
			}
			info, err := b.readBattery(dir)
			if err != nil {
				return false, nil, fmt.Errorf("%s: %w", name, err)
			}
			batteries[name] = info
		}
	}
	return acOnline, batteries, nil
}

// readBattery prefers energy_* (µWh, µW) and falls back to charge_* (µAh,
// µA), then to the capacity percentage without an estimate.
func (b *Block) readBattery(dir string) (Info, error) {
	fsys := b.cfg.FS
	status, _ := fsys.ReadString(path.Join(dir, "status"))

	for _, pfx := range [][2]string{{"energy", "power"}, {"charge", "current"}} {
		now, err := fsys.ReadInt(path.Join(dir, pfx[0]+"_now"))
		if err != nil {
			continue
		}
		full, err := fsys.ReadInt(path.Join(dir, pfx[0]+"_full"))
		if err != nil || full <= 0 {
			continue
		}
		info := Info{Capacity: math.Min(float64(now)/float64(full), 1)}

		rate, err := fsys.ReadInt(path.Join(dir, pfx[1]+"_now"))
		if err == nil && rate > 0 {
			var hours float64
			switch status {
			case "Discharging":
				hours = float64(now) / float64(rate)
			case "Charging":
				hours = float64(full-now) / float64(rate)
			}
			info.Estimation = time.Duration(math.Round(hours*3600)) * time.Second
		}
		return info, nil
	}

	capacity, err := fsys.ReadInt(path.Join(dir, "capacity"))
	if err != nil {
		return Info{}, err
	}
	return Info{Capacity: float64(capacity) / 100}, nil
}
