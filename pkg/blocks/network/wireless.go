package network

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/ForyoungYu/dwm-status/pkg/blocks"
	"github.com/ForyoungYu/dwm-status/pkg/driver"
	"github.com/ForyoungYu/dwm-status/pkg/wake"
)

// maxLinkQuality is the link quality scale most drivers report in
// /proc/net/wireless.
const maxLinkQuality = 70

// WirelessConfig controls a wireless block.
type WirelessConfig struct {
	Name string
	// Interface may be empty to use the first wireless interface.
	Interface string

	Format       blocks.Template
	Disconnected string
	NoValue      string

	// Interval is the poll interval or, with Event, the fallback poll that
	// picks up signal strength changes.
	Interval time.Duration
	Event    bool

	Runner driver.Runner
	FS     driver.FS
	Addrs  AddrFunc
	Wake   wake.Source
}

// Wireless reports the associated network name and signal quality.
type Wireless struct {
	cfg WirelessConfig
}

// NewWireless returns a wireless block.
func NewWireless(cfg WirelessConfig) *Wireless {
	if cfg.Name == "" {
		cfg.Name = "wireless"
	}
	if cfg.Format == "" {
		cfg.Format = "{ESSID}"
	}
	if cfg.Disconnected == "" {
		cfg.Disconnected = "disconnected"
	}
	if cfg.NoValue == "" {
		cfg.NoValue = DefaultNoValue
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 30 * time.Second
	}
	if cfg.Runner == nil {
		cfg.Runner = driver.ExecRunner{}
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
	return &Wireless{cfg: cfg}
}

func (w *Wireless) Name() string { return w.cfg.Name }

func (w *Wireless) Cadence() blocks.Cadence {
	if w.cfg.Event {
		return blocks.EventDriven(w.cfg.Interval)
	}
	return blocks.Interval(w.cfg.Interval)
}

// Subscribe follows association and address changes.
func (w *Wireless) Subscribe(ctx context.Context, notify func()) error {
	if w.cfg.Wake == nil {
		return fmt.Errorf("wireless: no wake source")
	}
	return w.cfg.Wake.Watch(ctx, notify)
}

// Refresh queries the ESSID with iwgetid and the signal from procfs.
func (w *Wireless) Refresh(ctx context.Context) (blocks.Fragment, error) {
	iface := w.cfg.Interface
	signals, err := w.readSignals()
	if err != nil && iface == "" {
		return blocks.Fragment{}, blocks.NewSourceError(w.cfg.Name, "read /proc/net/wireless", err)
	}

	if iface == "" {
		// No interface listed: the radio is off or blocked.
		if len(signals) == 0 {
			return w.disconnected(), nil
		}
		iface = signals[0].iface
	}

	essid, err := w.essid(ctx, iface)
	if err != nil {
		return blocks.Fragment{}, blocks.NewSourceError(w.cfg.Name, "iwgetid", err)
	}
	if essid == "" {
		return w.disconnected(), nil
	}

	values := map[string]string{
		PlaceholderESSID:  essid,
		PlaceholderIface:  iface,
		PlaceholderSignal: w.cfg.NoValue,
	}
	for _, s := range signals {
		if s.iface == iface {
			values[PlaceholderSignal] = fmt.Sprintf("%d%%", s.percent())
			break
		}
	}
	if err := addrValues(w.cfg.Format, iface, w.cfg.Addrs, w.cfg.NoValue, values); err != nil {
		return blocks.Fragment{}, blocks.NewSourceError(w.cfg.Name, "list addresses", err)
	}
	return blocks.Fragment{Text: w.cfg.Format.Render(values), Urgency: blocks.UrgencyLow}, nil
}

func (w *Wireless) disconnected() blocks.Fragment {
	return blocks.Fragment{Text: w.cfg.Disconnected, Urgency: blocks.UrgencyNormal}
}

// essid returns the associated network name, or "" when not associated.
// iwgetid exits non-zero in that case; only a missing tool is an error.
func (w *Wireless) essid(ctx context.Context, iface string) (string, error) {
	out, err := w.cfg.Runner.Run(ctx, "iwgetid", "-r", iface)
	if err != nil {
		if errors.Is(err, exec.ErrNotFound) || ctx.Err() != nil {
			return "", err
		}
		return "", nil
	}
	return strings.TrimSpace(string(out)), nil
}

type signal struct {
	iface string
	link  float64
}

func (s signal) percent() int {
	p := int(s.link*100/maxLinkQuality + 0.5)
	if p > 100 {
		p = 100
	}
	if p < 0 {
		p = 0
	}
	return p
}

func (w *Wireless) readSignals() ([]signal, error) {
	data, err := w.cfg.FS.ReadString("proc/net/wireless")
	if err != nil {
		return nil, err
	}
	return parseWireless(data)
}

// parseWireless parses /proc/net/wireless. The first two lines are headers;
// each following line is "iface: status link level noise ...".
func parseWireless(data string) ([]signal, error) {
	var out []signal
	sc := bufio.NewScanner(strings.NewReader(data))
	for n := 0; sc.Scan(); n++ {
		if n < 2 {
			continue
		}
		name, rest, ok := strings.Cut(sc.Text(), ":")
		if !ok {
			continue
		}
		fields := strings.Fields(rest)
		if len(fields) < 2 {
			return nil, fmt.Errorf("short line for %s", strings.TrimSpace(name))
		}
		link, err := strconv.ParseFloat(strings.TrimSuffix(fields[1], "."), 64)
		if err != nil {
			return nil, fmt.Errorf("link quality of %s: %w", strings.TrimSpace(name), err)
		}
		out = append(out, signal{iface: strings.TrimSpace(name), link: link})
	}
	return out, sc.Err()
}
