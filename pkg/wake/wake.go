// Package wake provides external change signals for event-driven blocks:
// rtnetlink link/address notifications, file modification watches, line
// streams from monitor commands (e.g., `alsactl monitor`) and POSIX signals.
//
// Every Source blocks in Watch until ctx is cancelled or the underlying
// mechanism fails, calling notify for each observed change. notify must be
// cheap and non-blocking; the scheduler coalesces bursts.
package wake

import "context"

// Source is a subscribable change signal.
type Source interface {
	Name() string
	Watch(ctx context.Context, notify func()) error
}

// Func adapts a function to the Source interface.
type Func struct {
	Label string
	Fn    func(ctx context.Context, notify func()) error
}

// Name returns the label.
func (f Func) Name() string { return f.Label }

// Watch calls Fn.
func (f Func) Watch(ctx context.Context, notify func()) error { return f.Fn(ctx, notify) }
