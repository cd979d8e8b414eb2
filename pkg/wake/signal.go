package wake

import (
	"context"
	"os"
	"os/signal"
)

// Signal notifies on receipt of any of the given process signals. The daemon
// uses it to map SIGUSR1 onto "refresh every block".
type Signal struct {
	Signals []os.Signal
}

// NewSignal returns a Signal source.
func NewSignal(sigs ...os.Signal) *Signal {
	return &Signal{Signals: sigs}
}

// Name returns "signal".
func (s *Signal) Name() string { return "signal" }

// Watch blocks until ctx is cancelled.
func (s *Signal) Watch(ctx context.Context, notify func()) error {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, s.Signals...)
	defer signal.Stop(ch)

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ch:
			notify()
		}
	}
}
