// Package backlight reports screen brightness from /sys/class/backlight and
// refreshes whenever the brightness file changes.
package backlight

import (
	"context"
	"fmt"
	"math"
	"path"
	"strconv"
	"time"

	"github.com/ForyoungYu/dwm-status/pkg/blocks"
	"github.com/ForyoungYu/dwm-status/pkg/driver"
	"github.com/ForyoungYu/dwm-status/pkg/wake"
)

const classDir = "sys/class/backlight"

// Config controls the backlight block.
type Config struct {
	Name string
	// Device is the entry under /sys/class/backlight; empty picks the first.
	Device string
	Format blocks.Template

	Interval time.Duration
	Event    bool

	FS   driver.FS
	Wake wake.Source
}

// Block is the backlight block.
type Block struct {
	cfg Config
	dev string
}

// New resolves the device and returns a backlight block.
func New(cfg Config) (*Block, error) {
	if cfg.Name == "" {
		cfg.Name = "backlight"
	}
	if cfg.Format == "" {
		cfg.Format = "{BL}%"
	}
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	if cfg.FS.Root == "" {
		cfg.FS = driver.HostFS()
	}

	dev := cfg.Device
	if dev == "" {
		devs, err := cfg.FS.List(classDir)
		if err != nil {
			return nil, fmt.Errorf("backlight: list devices: %w", err)
		}
		if len(devs) == 0 {
			return nil, fmt.Errorf("backlight: no device in /%s", classDir)
		}
		dev = devs[0]
	}

	if cfg.Event && cfg.Wake == nil {
		cfg.Wake = wake.NewFileWatch(cfg.FS.Path(path.Join(classDir, dev, "brightness")))
	}
	return &Block{cfg: cfg, dev: dev}, nil
}

func (b *Block) Name() string { return b.cfg.Name }

// Device returns the resolved device name.
func (b *Block) Device() string { return b.dev }

func (b *Block) Cadence() blocks.Cadence {
	if b.cfg.Event {
		return blocks.EventDriven(b.cfg.Interval)
	}
	return blocks.Interval(b.cfg.Interval)
}

// Subscribe watches the brightness attribute.
func (b *Block) Subscribe(ctx context.Context, notify func()) error {
	if b.cfg.Wake == nil {
		return fmt.Errorf("backlight: no wake source")
	}
	return b.cfg.Wake.Watch(ctx, notify)
}

// Refresh renders brightness as a percentage of max_brightness.
func (b *Block) Refresh(ctx context.Context) (blocks.Fragment, error) {
	dir := path.Join(classDir, b.dev)
	cur, err := b.cfg.FS.ReadInt(path.Join(dir, "brightness"))
	if err != nil {
		return blocks.Fragment{}, blocks.NewSourceError(b.cfg.Name, "read brightness", err)
	}
	maxBrightness, err := b.cfg.FS.ReadInt(path.Join(dir, "max_brightness"))
	if err != nil {
		return blocks.Fragment{}, blocks.NewSourceError(b.cfg.Name, "read max_brightness", err)
	}
	if maxBrightness <= 0 {
		return blocks.Fragment{}, blocks.NewSourceError(b.cfg.Name, "max_brightness is zero", nil)
	}

	pct := int(math.Round(float64(cur) * 100 / float64(maxBrightness)))
	return blocks.Fragment{
		Text:    b.cfg.Format.Render(map[string]string{"BL": strconv.Itoa(pct)}),
		Urgency: blocks.UrgencyLow,
	}, nil
}
