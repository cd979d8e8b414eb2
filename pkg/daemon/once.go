package daemon

import (
	"context"
	"log/slog"
	"sync"

	"github.com/ForyoungYu/dwm-status/pkg/blocks"
	"github.com/ForyoungYu/dwm-status/pkg/blockset"
	"github.com/ForyoungYu/dwm-status/pkg/config"
	"github.com/ForyoungYu/dwm-status/pkg/scheduler"
)

// collector gathers the first delivery of every block.
type collector struct {
	mu    sync.Mutex
	frags []blocks.Fragment
	seen  []bool
	left  int
	done  chan struct{}
}

func newCollector(n int) *collector {
	return &collector{
		frags: make([]blocks.Fragment, n),
		seen:  make([]bool, n),
		left:  n,
		done:  make(chan struct{}),
	}
}

func (c *collector) Submit(_ context.Context, d blocks.Delivery) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if d.Index < 0 || d.Index >= len(c.seen) || c.seen[d.Index] {
		return nil
	}
	c.seen[d.Index] = true
	c.frags[d.Index] = d.Fragment
	c.left--
	if c.left == 0 {
		close(c.done)
	}
	return nil
}

// Once refreshes every block of set a single time through a scheduler and
// returns the composed line. Failing or slow blocks render as the
// placeholder, exactly as they would in the daemon.
func Once(ctx context.Context, g config.GeneralConfig, set *blockset.Set, log *slog.Logger) (string, error) {
	if log == nil {
		log = slog.Default()
	}
	n := set.Registry.Len()
	col := newCollector(n)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sched := scheduler.New(set.Registry, col, scheduler.Options{
		Placeholder: g.Placeholder,
		Timeout:     g.Timeout.Duration,
		Timeouts:    set.Timeouts,
		MaxBackoff:  g.MaxBackoff.Duration,
		Logger:      log,
	})

	errc := make(chan error, 1)
	go func() { errc <- sched.Run(ctx) }()

	select {
	case <-col.done:
		cancel()
		<-errc
	case err := <-errc:
		if err != nil {
			return "", err
		}
		return "", ctx.Err()
	}

	col.mu.Lock()
	defer col.mu.Unlock()
	return LayoutFor(g, set).Compose(set.Names(), col.frags), nil
}
