// Package volume reports the ALSA mixer level and mute state via amixer.
package volume

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"time"

	"github.com/ForyoungYu/dwm-status/pkg/blocks"
	"github.com/ForyoungYu/dwm-status/pkg/driver"
	"github.com/ForyoungYu/dwm-status/pkg/wake"
)

// Config controls a volume block.
type Config struct {
	Name    string
	Control string

	// Format is rendered with {VOL} set to the level without a percent sign.
	Format blocks.Template

	// Mute replaces the whole fragment while the control is switched off.
	Mute string

	// Interval is the poll interval, or the fallback poll when Event is set.
	Interval time.Duration
	Event    bool

	// AlertOnMute attaches an alert while muted. A level of 0% always
	// carries an alert.
	AlertOnMute bool

	Runner driver.Runner
	Wake   wake.Source
}

// DefaultConfig returns the defaults used when fields are left empty.
func DefaultConfig() Config {
	return Config{
		Name:     "volume",
		Control:  "Master",
		Format:   "{VOL}%",
		Mute:     "MUTE",
		Interval: 10 * time.Second,
		Event:    true,
	}
}

// Block is the volume block.
type Block struct {
	cfg Config
}

// New returns a volume block; zero fields in cfg take their defaults.
func New(cfg Config) *Block {
	def := DefaultConfig()
	if cfg.Name == "" {
		cfg.Name = def.Name
	}
	if cfg.Control == "" {
		cfg.Control = def.Control
	}
	if cfg.Format == "" {
		cfg.Format = def.Format
	}
	if cfg.Mute == "" {
		cfg.Mute = def.Mute
	}
	if cfg.Runner == nil {
		cfg.Runner = driver.ExecRunner{}
	}
	if cfg.Event && cfg.Wake == nil {
		cfg.Wake = wake.NewMonitor("alsactl", "monitor")
	}
	return &Block{cfg: cfg}
}

func (b *Block) Name() string { return b.cfg.Name }

func (b *Block) Cadence() blocks.Cadence {
	if b.cfg.Event {
		return blocks.EventDriven(b.cfg.Interval)
	}
	if b.cfg.Interval <= 0 {
		return blocks.Interval(DefaultConfig().Interval)
	}
	return blocks.Interval(b.cfg.Interval)
}

// Subscribe follows mixer events from the wake source.
func (b *Block) Subscribe(ctx context.Context, notify func()) error {
	if b.cfg.Wake == nil {
		return fmt.Errorf("volume: no wake source")
	}
	return b.cfg.Wake.Watch(ctx, notify)
}

// Refresh queries the control through amixer.
func (b *Block) Refresh(ctx context.Context) (blocks.Fragment, error) {
	out, err := b.cfg.Runner.Run(ctx, "amixer", "-M", "get", b.cfg.Control)
	if err != nil {
		return blocks.Fragment{}, blocks.NewSourceError(b.cfg.Name, "amixer", err)
	}

	st, err := Parse(string(out))
	if err != nil {
		return blocks.Fragment{}, blocks.NewSourceError(b.cfg.Name, "parse amixer output", err)
	}

	f := blocks.Fragment{Urgency: blocks.UrgencyLow}
	if st.Muted {
		f.Text = b.cfg.Mute
	} else {
		f.Text = b.cfg.Format.Render(map[string]string{"VOL": strconv.Itoa(st.Level)})
	}
	switch {
	case st.Muted:
		if b.cfg.AlertOnMute {
			f.Alert = "volume muted"
		}
	case st.Level == 0:
		f.Alert = "volume at 0%"
	}
	return f, nil
}

// State is one reading of a mixer control.
type State struct {
	Level int
	Muted bool
}

var levelRe = regexp.MustCompile(`\[(\d{1,3})%\]`)
var switchRe = regexp.MustCompile(`\[(on|off)\]`)

// Parse extracts the first channel's level and switch from `amixer get`
// output. Controls without a playback switch are never muted.
func Parse(out string) (State, error) {
	m := levelRe.FindStringSubmatch(out)
	if m == nil {
		return State{}, blocks.ErrNoValue
	}
	level, err := strconv.Atoi(m[1])
	if err != nil {
		return State{}, err
	}

	st := State{Level: level}
	if sw := switchRe.FindStringSubmatch(out); sw != nil {
		st.Muted = sw[1] == "off"
	}
	return st, nil
}
