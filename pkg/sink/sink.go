// Package sink delivers the composed status line to its display surface and
// raises out-of-band desktop notifications.
package sink

import (
	"context"
	"errors"
	"fmt"

	"github.com/ForyoungYu/dwm-status/pkg/blocks"
)

// Sink is the render target. Both calls are fire-and-forget for the caller:
// failures are logged and the next render self-corrects the display.
type Sink interface {
	Render(ctx context.Context, line string) error
	Notify(ctx context.Context, u blocks.Urgency, summary, body string) error
	Close() error
}

// SinkError reports a failed render or notify call.
type SinkError struct {
	Sink string
	Op   string
	Err  error
}

func (e *SinkError) Error() string {
	return fmt.Sprintf("sink %s: %s: %v", e.Sink, e.Op, e.Err)
}

func (e *SinkError) Unwrap() error { return e.Err }

// Multi fans every call out to all of its sinks, e.g. the X11 root title for
// rendering plus a D-Bus notifier for alerts.
type Multi []Sink

// Render renders line on every sink and joins the failures.
func (m Multi) Render(ctx context.Context, line string) error {
	var errs []error
	for _, s := range m {
		if err := s.Render(ctx, line); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Notify forwards the notification to every sink.
func (m Multi) Notify(ctx context.Context, u blocks.Urgency, summary, body string) error {
	var errs []error
	for _, s := range m {
		if err := s.Notify(ctx, u, summary, body); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close closes every sink.
func (m Multi) Close() error {
	var errs []error
	for _, s := range m {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
