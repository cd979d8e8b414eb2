// Package clock renders the current time with a strftime format.
package clock

import (
	"context"
	"fmt"
	"time"

	"github.com/ncruces/go-strftime"

	"github.com/ForyoungYu/dwm-status/pkg/blocks"
)

// DefaultFormat is the strftime layout used when none is configured.
const DefaultFormat = "%Y-%m-%d %H:%M"

// Config controls the clock block.
type Config struct {
	Name     string
	Format   string
	Location string
	Interval time.Duration

	// Now overrides the time source.
	Now func() time.Time
}

// Block is the clock block.
type Block struct {
	cfg Config
	loc *time.Location
}

// New returns a clock block. Location is an IANA zone name; empty means
// the local zone.
func New(cfg Config) (*Block, error) {
	if cfg.Name == "" {
		cfg.Name = "clock"
	}
	if cfg.Format == "" {
		cfg.Format = DefaultFormat
	}
	if cfg.Interval <= 0 {
		cfg.Interval = time.Second
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	loc := time.Local
	if cfg.Location != "" {
		l, err := time.LoadLocation(cfg.Location)
		if err != nil {
			return nil, fmt.Errorf("clock: %w", err)
		}
		loc = l
	}
	return &Block{cfg: cfg, loc: loc}, nil
}

func (b *Block) Name() string { return b.cfg.Name }

func (b *Block) Cadence() blocks.Cadence { return blocks.Interval(b.cfg.Interval) }

// Refresh formats the current time. It never fails.
func (b *Block) Refresh(ctx context.Context) (blocks.Fragment, error) {
	now := b.cfg.Now().In(b.loc)
	return blocks.Fragment{Text: strftime.Format(b.cfg.Format, now), Urgency: blocks.UrgencyLow}, nil
}
