// Package daemon runs dwm-status as a long-lived process: it wires the
// scheduler, the aggregator and the sink together, guards the instance
// with a PID file, and serves control commands over a Unix socket.
package daemon

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ForyoungYu/dwm-status/pkg/aggregator"
	"github.com/ForyoungYu/dwm-status/pkg/blockset"
	"github.com/ForyoungYu/dwm-status/pkg/config"
	"github.com/ForyoungYu/dwm-status/pkg/scheduler"
	"github.com/ForyoungYu/dwm-status/pkg/sink"
	"github.com/ForyoungYu/dwm-status/pkg/wake"
)

// Options are the collaborators of a Daemon.
type Options struct {
	General config.GeneralConfig
	Blocks  *blockset.Set
	Sink    sink.Sink
	Logger  *slog.Logger
	Version string
}

// Daemon owns one scheduler/aggregator pair for its lifetime.
type Daemon struct {
	general config.GeneralConfig
	set     *blockset.Set
	sink    sink.Sink
	log     *slog.Logger
	version string
	started time.Time

	agg   *aggregator.Aggregator
	sched *scheduler.Scheduler

	quit context.CancelFunc
}

// New wires a daemon from its options. Nothing runs until Run.
func New(opts Options) *Daemon {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	g := opts.General

	d := &Daemon{
		general: g,
		set:     opts.Blocks,
		sink:    opts.Sink,
		log:     log,
		version: opts.Version,
	}

	d.agg = aggregator.New(opts.Blocks.Names(), opts.Sink, aggregator.Options{
		Layout:   LayoutFor(g, opts.Blocks),
		Loading:  g.Loading,
		Debounce: g.Debounce.Duration,
		Notify:   g.Notify,
		Silent:   opts.Blocks.Silent,
		OnRender: d.onRender,
		Logger:   log,
	})
	d.sched = scheduler.New(opts.Blocks.Registry, d.agg, scheduler.Options{
		Placeholder: g.Placeholder,
		Timeout:     g.Timeout.Duration,
		Timeouts:    opts.Blocks.Timeouts,
		MaxBackoff:  g.MaxBackoff.Duration,
		Logger:      log,
	})
	return d
}

// LayoutFor returns the line layout described by the general settings and
// the per-block widths of set.
func LayoutFor(g config.GeneralConfig, set *blockset.Set) aggregator.Layout {
	return aggregator.Layout{
		Separator: g.Separator,
		Prefix:    g.Prefix,
		Suffix:    g.Suffix,
		MaxWidth:  g.MaxWidth,
		Widths:    set.Widths,
	}
}

// Run blocks until ctx is cancelled, a QUIT command arrives, or a
// component fails. The sink is closed on return.
func (d *Daemon) Run(ctx context.Context) error {
	g := d.general
	d.started = time.Now()

	if g.PIDFile != "" {
		if err := AcquirePID(g.PIDFile); err != nil {
			return err
		}
		defer func() {
			if err := ReleasePID(g.PIDFile); err != nil {
				d.log.Warn("release pid file", "error", err)
			}
		}()
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	d.quit = cancel

	if g.Socket != "" {
		srv := NewIPCServer(g.Socket, d, d.log)
		if err := srv.Start(); err != nil {
			return err
		}
		defer srv.Stop()
	}

	grp, gctx := errgroup.WithContext(ctx)
	grp.Go(func() error { return d.agg.Run(gctx) })
	grp.Go(func() error { return d.sched.Run(gctx) })
	grp.Go(func() error {
		return wake.NewSignal(syscall.SIGUSR1).Watch(gctx, func() {
			d.log.Info("SIGUSR1 received, refreshing all blocks")
			d.sched.TriggerAll()
		})
	})

	d.log.Info("daemon started",
		"blocks", d.set.Registry.Len(),
		"socket", g.Socket,
		"pid_file", g.PIDFile,
	)

	err := grp.Wait()
	if cerr := d.sink.Close(); cerr != nil {
		d.log.Warn("close sink", "error", cerr)
	}
	if err != nil {
		return err
	}
	d.log.Info("daemon stopped")
	return nil
}

// Health returns a snapshot of the daemon and every block.
func (d *Daemon) Health() *HealthStatus {
	line := d.agg.Line()
	h := NewHealthStatus(d.started, line.Text, d.set.Registry.AllStatus())
	h.Version = d.version
	h.State = d.agg.State().String()
	h.Renders = d.agg.Renders()
	return h
}

func (d *Daemon) onRender(aggregator.StatusLine) {
	if d.general.HealthFile == "" {
		return
	}
	if err := WriteHealthFile(d.general.HealthFile, d.Health()); err != nil {
		d.log.Warn("write health file", "error", err)
	}
}

// HandleCommand implements IPCHandler.
func (d *Daemon) HandleCommand(cmd string, args map[string]string) (string, error) {
	switch cmd {
	case CmdRefresh:
		if name := args["block"]; name != "" {
			if err := d.sched.Trigger(name); err != nil {
				return "", err
			}
			return okResponse(name)
		}
		d.sched.TriggerAll()
		return okResponse("")

	case CmdStatus:
		return healthStatusToJSON(d.Health())

	case CmdLine:
		data, err := json.Marshal(d.agg.Line())
		if err != nil {
			return "", err
		}
		return string(data), nil

	case CmdQuit:
		d.log.Info("quit requested over IPC")
		d.quit()
		return okResponse("")

	default:
		return "", fmt.Errorf("unknown command %q", cmd)
	}
}

func okResponse(block string) (string, error) {
	resp := struct {
		OK    bool   `json:"ok"`
		Block string `json:"block,omitempty"`
	}{true, block}
	data, err := json.Marshal(resp)
	return string(data), err
}
