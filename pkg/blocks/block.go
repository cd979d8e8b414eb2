// Package blocks defines the Block contract, the Fragment a Block produces on
// every refresh, and the registry that keeps per-block runtime status. Each
// data source (volume, wired, wireless, battery, ...) lives in a sub-package
// and implements Block; the scheduler drives them and fans their fragments
// into the aggregator.
package blocks

import (
	"context"
	"time"
)

// Block is the interface every data source implements. Implementations live
// in sub-packages (e.g., pkg/blocks/volume) and are registered with the
// Registry at startup in display order.
type Block interface {
	// Name returns a unique identifier for this block (e.g., "volume").
	Name() string

	// Cadence returns how the scheduler should drive this block.
	Cadence() Cadence

	// Refresh queries the underlying source once and renders the result.
	// It may block on an external process or device; ctx carries the
	// per-block timeout.
	Refresh(ctx context.Context) (Fragment, error)
}

// Subscriber is implemented by event-driven blocks. Subscribe blocks until
// ctx is cancelled or the subscription fails, calling notify whenever the
// underlying source signals a change.
type Subscriber interface {
	Subscribe(ctx context.Context, notify func()) error
}

// CadenceKind selects between polling and event-driven refreshes.
type CadenceKind int

const (
	CadenceInterval CadenceKind = iota
	CadenceEventDriven
)

// String returns the string representation of CadenceKind.
func (k CadenceKind) String() string {
	switch k {
	case CadenceInterval:
		return "interval"
	case CadenceEventDriven:
		return "event-driven"
	default:
		return "unknown"
	}
}

// Cadence is a block's refresh policy. For event-driven blocks a non-zero
// Every is a fallback poll period.
type Cadence struct {
	Kind  CadenceKind
	Every time.Duration
}

// Interval returns a fixed-interval cadence.
func Interval(d time.Duration) Cadence {
	return Cadence{Kind: CadenceInterval, Every: d}
}

// EventDriven returns an event-driven cadence with an optional fallback poll.
func EventDriven(fallback time.Duration) Cadence {
	return Cadence{Kind: CadenceEventDriven, Every: fallback}
}

// Polls reports whether the cadence has a periodic component.
func (c Cadence) Polls() bool {
	return c.Every > 0
}

func (c Cadence) String() string {
	if c.Kind == CadenceEventDriven {
		if c.Every > 0 {
			return "event-driven (fallback " + c.Every.String() + ")"
		}
		return "event-driven"
	}
	return "every " + c.Every.String()
}

// Urgency is the severity tag carried by a Fragment. The numeric values
// match the freedesktop notification urgency hint.
type Urgency byte

const (
	UrgencyLow Urgency = iota
	UrgencyNormal
	UrgencyCritical
)

func (u Urgency) String() string {
	switch u {
	case UrgencyLow:
		return "low"
	case UrgencyNormal:
		return "normal"
	case UrgencyCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// Fragment is the immutable rendered unit one block contributes to the
// status line.
type Fragment struct {
	Text    string
	Urgency Urgency

	// Alert, when non-empty, is a notification message the block wants
	// raised while the condition holds (e.g., "volume muted").
	Alert string

	// Err is set on error fragments produced by the scheduler.
	Err error
}

// Failed reports whether the fragment stands in for a failed refresh.
func (f Fragment) Failed() bool {
	return f.Err != nil
}

// ErrorFragment returns the placeholder fragment used when a refresh fails.
func ErrorFragment(placeholder string, err error) Fragment {
	return Fragment{
		Text:    placeholder,
		Urgency: UrgencyNormal,
		Err:     err,
	}
}

// Status tracks the runtime state of a single block. The scheduler updates
// it after every refresh.
type Status struct {
	Name        string        `json:"name"`
	Index       int           `json:"index"`
	Cadence     string        `json:"cadence"`
	Healthy     bool          `json:"healthy"`
	Text        string        `json:"text"`
	LastRun     time.Time     `json:"last_run"`
	LastUpdate  time.Time     `json:"last_update"`
	LastError   string        `json:"last_error,omitempty"`
	RunCount    int64         `json:"run_count"`
	ErrorCount  int64         `json:"error_count"`
	Failures    int           `json:"consecutive_failures"`
	LastLatency time.Duration `json:"last_latency"`
	NextRetry   time.Time     `json:"next_retry,omitempty"`
}

// Delivery carries a fragment from the scheduler to the aggregator slot at
// Index.
type Delivery struct {
	Index     int
	Name      string
	Fragment  Fragment
	Timestamp time.Time
}
