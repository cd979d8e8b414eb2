package network

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"time"

	"github.com/ForyoungYu/dwm-status/pkg/blocks"
	"github.com/ForyoungYu/dwm-status/pkg/driver"
	"github.com/ForyoungYu/dwm-status/pkg/wake"
)

// WiredConfig controls a wired link block.
type WiredConfig struct {
	Name      string
	Interface string

	// Format is rendered while the link is up.
	Format blocks.Template
	// Down is rendered while the link is down.
	Down    string
	NoValue string

	Interval time.Duration
	Event    bool

	FS    driver.FS
	Addrs AddrFunc
	Wake  wake.Source
}

// Wired reports the operational state and addresses of one interface.
type Wired struct {
	cfg WiredConfig
}

// NewWired returns a wired block. Interface is required.
func NewWired(cfg WiredConfig) (*Wired, error) {
	if cfg.Interface == "" {
		return nil, errors.New("wired: interface is required")
	}
	if cfg.Name == "" {
		cfg.Name = "wired"
	}
	if cfg.Format == "" {
		cfg.Format = "{IPv4}"
	}
	if cfg.Down == "" {
		cfg.Down = "down"
	}
	if cfg.NoValue == "" {
		cfg.NoValue = DefaultNoValue
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 30 * time.Second
	}
	if cfg.FS.Root == "" {
		cfg.FS = driver.HostFS()
	}
	if cfg.Addrs == nil {
		cfg.Addrs = InterfaceAddrs
	}
	if cfg.Event && cfg.Wake == nil {
		cfg.Wake = wake.NewNetlink()
	}
	return &Wired{cfg: cfg}, nil
}

func (w *Wired) Name() string { return w.cfg.Name }

func (w *Wired) Cadence() blocks.Cadence {
	if w.cfg.Event {
		return blocks.EventDriven(w.cfg.Interval)
	}
	return blocks.Interval(w.cfg.Interval)
}

// Subscribe follows link and address changes.
func (w *Wired) Subscribe(ctx context.Context, notify func()) error {
	if w.cfg.Wake == nil {
		return fmt.Errorf("wired: no wake source")
	}
	return w.cfg.Wake.Watch(ctx, notify)
}

// Refresh reads operstate and, while up, the interface addresses.
func (w *Wired) Refresh(ctx context.Context) (blocks.Fragment, error) {
	iface := w.cfg.Interface
	state, err := w.cfg.FS.ReadString(path.Join("sys/class/net", iface, "operstate"))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return blocks.Fragment{}, blocks.NewSourceError(w.cfg.Name, "interface "+iface+" not found", nil)
		}
		return blocks.Fragment{}, blocks.NewSourceError(w.cfg.Name, "read operstate", err)
	}

	// "unknown" is reported by drivers without operstate support.
	if state != "up" && state != "unknown" {
		return blocks.Fragment{Text: w.cfg.Down, Urgency: blocks.UrgencyNormal}, nil
	}

	values := map[string]string{PlaceholderIface: iface}
	if err := addrValues(w.cfg.Format, iface, w.cfg.Addrs, w.cfg.NoValue, values); err != nil {
		return blocks.Fragment{}, blocks.NewSourceError(w.cfg.Name, "list addresses", err)
	}
	return blocks.Fragment{Text: w.cfg.Format.Render(values), Urgency: blocks.UrgencyLow}, nil
}
