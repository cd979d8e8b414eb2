// Package sysmetrics provides host telemetry blocks: load average, memory,
// CPU usage, disk usage and uptime. It uses gopsutil so the same blocks work
// on Linux and the BSDs without hand-parsing /proc.
package sysmetrics

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/disk"
	"github.com/shirou/gopsutil/v4/host"
	"github.com/shirou/gopsutil/v4/load"
	"github.com/shirou/gopsutil/v4/mem"

	"github.com/ForyoungYu/dwm-status/pkg/blocks"
)

// Kind selects the metric a block reports.
type Kind string

const (
	KindLoad   Kind = "cpu_load"
	KindMemory Kind = "memory"
	KindCPU    Kind = "cpu"
	KindDisk   Kind = "disk"
	KindUptime Kind = "uptime"
)

// Kinds lists every supported kind.
var Kinds = []Kind{KindLoad, KindMemory, KindCPU, KindDisk, KindUptime}

// DefaultFormat returns the format used when none is configured.
func DefaultFormat(k Kind) blocks.Template {
	switch k {
	case KindLoad:
		return "{CL1} {CL5} {CL15}"
	case KindMemory:
		return "{USED}/{TOTAL}"
	case KindCPU:
		return "{PCT}"
	case KindDisk:
		return "{FREE}"
	case KindUptime:
		return "{UPTIME}"
	}
	return ""
}

// --- Metric data types ---

// LoadMetrics holds system load averages.
type LoadMetrics struct {
	Load1  float64 `json:"load1"`
	Load5  float64 `json:"load5"`
	Load15 float64 `json:"load15"`
}

// MemoryMetrics holds physical memory statistics.
type MemoryMetrics struct {
	Total       uint64  `json:"total"`
	Used        uint64  `json:"used"`
	Available   uint64  `json:"available"`
	UsedPercent float64 `json:"used_percent"`
}

// DiskMetrics holds usage data for a single mount point.
type DiskMetrics struct {
	Path        string  `json:"path"`
	Total       uint64  `json:"total"`
	Used        uint64  `json:"used"`
	Free        uint64  `json:"free"`
	UsedPercent float64 `json:"used_percent"`
}

// Probe reads raw metrics. HostProbe is the gopsutil implementation; tests
// substitute their own.
type Probe interface {
	Load(ctx context.Context) (LoadMetrics, error)
	Memory(ctx context.Context) (MemoryMetrics, error)
	CPU(ctx context.Context) (float64, error)
	Disk(ctx context.Context, mount string) (DiskMetrics, error)
	Uptime(ctx context.Context) (time.Duration, error)
}

// HostProbe reads metrics of the running host via gopsutil.
type HostProbe struct{}

func (HostProbe) Load(ctx context.Context) (LoadMetrics, error) {
	avg, err := load.AvgWithContext(ctx)
	if err != nil {
		return LoadMetrics{}, err
	}
	return LoadMetrics{Load1: avg.Load1, Load5: avg.Load5, Load15: avg.Load15}, nil
}

func (HostProbe) Memory(ctx context.Context) (MemoryMetrics, error) {
	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return MemoryMetrics{}, err
	}
	return MemoryMetrics{
		Total:       vm.Total,
		Used:        vm.Used,
		Available:   vm.Available,
		UsedPercent: vm.UsedPercent,
	}, nil
}

// CPU returns total utilisation since the previous call (interval=0).
func (HostProbe) CPU(ctx context.Context) (float64, error) {
	total, err := cpu.PercentWithContext(ctx, 0, false)
	if err != nil {
		return 0, err
	}
	if len(total) == 0 {
		return 0, blocks.ErrNoValue
	}
	return total[0], nil
}

func (HostProbe) Disk(ctx context.Context, mount string) (DiskMetrics, error) {
	usage, err := disk.UsageWithContext(ctx, mount)
	if err != nil {
		return DiskMetrics{}, err
	}
	return DiskMetrics{
		Path:        usage.Path,
		Total:       usage.Total,
		Used:        usage.Used,
		Free:        usage.Free,
		UsedPercent: usage.UsedPercent,
	}, nil
}

func (HostProbe) Uptime(ctx context.Context) (time.Duration, error) {
	secs, err := host.UptimeWithContext(ctx)
	if err != nil {
		return 0, err
	}
	return time.Duration(secs) * time.Second, nil
}

// --- Block implementation ---

// Config controls one sysmetrics block.
type Config struct {
	Kind     Kind
	Name     string
	Format   blocks.Template
	Interval time.Duration

	// Mount is the mount point reported by disk blocks (default "/").
	Mount string

	// AlertAbove raises a critical alert when the percentage of a memory,
	// cpu or disk block reaches it; 0 disables.
	AlertAbove float64

	Probe Probe
}

// DefaultInterval is the poll rate when none is configured.
const DefaultInterval = 5 * time.Second

// Block reports one metric kind.
type Block struct {
	cfg Config
}

// New returns a block for cfg.Kind. Zero-value fields take defaults.
func New(cfg Config) (*Block, error) {
	if DefaultFormat(cfg.Kind) == "" {
		return nil, fmt.Errorf("sysmetrics: unknown kind %q", cfg.Kind)
	}
	if cfg.Name == "" {
		cfg.Name = string(cfg.Kind)
	}
	if cfg.Format == "" {
		cfg.Format = DefaultFormat(cfg.Kind)
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.Mount == "" {
		cfg.Mount = "/"
	}
	if cfg.Probe == nil {
		cfg.Probe = HostProbe{}
	}
	return &Block{cfg: cfg}, nil
}

func (b *Block) Name() string { return b.cfg.Name }

func (b *Block) Cadence() blocks.Cadence { return blocks.Interval(b.cfg.Interval) }

// Refresh reads the metric and renders the format.
func (b *Block) Refresh(ctx context.Context) (blocks.Fragment, error) {
	values, pct, err := b.collect(ctx)
	if err != nil {
		return blocks.Fragment{}, blocks.NewSourceError(b.cfg.Name, "read "+string(b.cfg.Kind), err)
	}

	f := blocks.Fragment{Text: b.cfg.Format.Render(values), Urgency: blocks.UrgencyLow}
	if b.cfg.AlertAbove > 0 && pct >= b.cfg.AlertAbove {
		f.Urgency = blocks.UrgencyCritical
		f.Alert = fmt.Sprintf("%s above %s%%", b.cfg.Kind, strconv.FormatFloat(b.cfg.AlertAbove, 'f', -1, 64))
	}
	return f, nil
}

// collect returns the placeholder values and, where meaningful, the
// percentage used for alerting.
func (b *Block) collect(ctx context.Context) (map[string]string, float64, error) {
	p := b.cfg.Probe
	switch b.cfg.Kind {
	case KindLoad:
		l, err := p.Load(ctx)
		if err != nil {
			return nil, 0, err
		}
		return map[string]string{
			"CL1":  fmt.Sprintf("%.2f", l.Load1),
			"CL5":  fmt.Sprintf("%.2f", l.Load5),
			"CL15": fmt.Sprintf("%.2f", l.Load15),
		}, 0, nil

	case KindMemory:
		m, err := p.Memory(ctx)
		if err != nil {
			return nil, 0, err
		}
		return map[string]string{
			"USED":  humanize.IBytes(m.Used),
			"TOTAL": humanize.IBytes(m.Total),
			"AVAIL": humanize.IBytes(m.Available),
			"PCT":   percent(m.UsedPercent),
		}, m.UsedPercent, nil

	case KindCPU:
		pct, err := p.CPU(ctx)
		if err != nil {
			return nil, 0, err
		}
		return map[string]string{"PCT": percent(pct)}, pct, nil

	case KindDisk:
		d, err := p.Disk(ctx, b.cfg.Mount)
		if err != nil {
			return nil, 0, err
		}
		return map[string]string{
			"USED":  humanize.IBytes(d.Used),
			"TOTAL": humanize.IBytes(d.Total),
			"FREE":  humanize.IBytes(d.Free),
			"PCT":   percent(d.UsedPercent),
			"MOUNT": b.cfg.Mount,
		}, d.UsedPercent, nil

	case KindUptime:
		up, err := p.Uptime(ctx)
		if err != nil {
			return nil, 0, err
		}
		return map[string]string{"UPTIME": FormatUptime(up)}, 0, nil
	}
	return nil, 0, fmt.Errorf("unknown kind %q", b.cfg.Kind)
}

func percent(v float64) string {
	return fmt.Sprintf("%.0f%%", v)
}

// FormatUptime renders d as "3d 04:05" or "04:05" below one day.
func FormatUptime(d time.Duration) string {
	days := int(d / (24 * time.Hour))
	d -= time.Duration(days) * 24 * time.Hour
	hours := int(d / time.Hour)
	mins := int((d % time.Hour) / time.Minute)
	if days > 0 {
		return fmt.Sprintf("%dd %02d:%02d", days, hours, mins)
	}
	return fmt.Sprintf("%02d:%02d", hours, mins)
}
