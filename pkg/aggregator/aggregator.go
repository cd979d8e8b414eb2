// Package aggregator owns the status line. One goroutine holds the latest
// fragment of every block, composes the line on change and drives the sink
// under a debounce window, so bursts of updates collapse into one render
// while the final state is always rendered.
package aggregator

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/ForyoungYu/dwm-status/pkg/blocks"
	"github.com/ForyoungYu/dwm-status/pkg/sink"
)

// DefaultDebounce is the minimum gap between renders.
const DefaultDebounce = 50 * time.Millisecond

// DefaultLoading is shown in a slot until its block first delivers.
const DefaultLoading = "..."

// ErrStopped is returned by Submit once the aggregator has exited.
var ErrStopped = errors.New("aggregator stopped")

// State is the render trigger state.
type State int

const (
	Clean State = iota
	Dirty
	Rendering
)

func (s State) String() string {
	switch s {
	case Clean:
		return "clean"
	case Dirty:
		return "dirty"
	case Rendering:
		return "rendering"
	default:
		return "unknown"
	}
}

// StatusLine is an immutable snapshot of the composed line.
type StatusLine struct {
	Text      string            `json:"text"`
	Fragments []blocks.Fragment `json:"-"`
	Composed  time.Time         `json:"composed"`
}

// Options configures an Aggregator.
type Options struct {
	Layout

	Loading  string
	Debounce time.Duration

	// Notify enables alerts; Silent disables them per block name.
	Notify bool
	Silent map[string]bool

	// OnRender, if set, runs on the render goroutine after each successful
	// render.
	OnRender func(StatusLine)

	Logger *slog.Logger
}

type alert struct {
	block   string
	urgency blocks.Urgency
	message string
}

type renderResult struct {
	text    string
	skipped bool
	err     error
}

// Aggregator is the single writer of the status line and the sole caller
// into the sink.
type Aggregator struct {
	names []string
	sink  sink.Sink
	opts  Options
	log   *slog.Logger

	inbox   chan blocks.Delivery
	stopped chan struct{}

	line    atomic.Pointer[StatusLine]
	state   atomic.Int32
	renders atomic.Int64
}

// New returns an Aggregator with one slot per name, in display order.
func New(names []string, s sink.Sink, opts Options) *Aggregator {
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}
	if opts.Loading == "" {
		opts.Loading = DefaultLoading
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}

	a := &Aggregator{
		names:   append([]string(nil), names...),
		sink:    s,
		opts:    opts,
		log:     log.With("component", "aggregator"),
		inbox:   make(chan blocks.Delivery, 64),
		stopped: make(chan struct{}),
	}
	a.line.Store(&StatusLine{Text: opts.Compose(a.names, a.initialSlots())})
	return a
}

func (a *Aggregator) initialSlots() []blocks.Fragment {
	slots := make([]blocks.Fragment, len(a.names))
	for i := range slots {
		slots[i] = blocks.Fragment{Text: a.opts.Loading}
	}
	return slots
}

// Submit hands a fragment to the aggregator. It is the only way to mutate a
// slot and it only blocks while the inbox is full.
func (a *Aggregator) Submit(ctx context.Context, d blocks.Delivery) error {
	select {
	case a.inbox <- d:
		return nil
	case <-a.stopped:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Line returns the most recently composed status line.
func (a *Aggregator) Line() StatusLine {
	return *a.line.Load()
}

// State returns the current render trigger state.
func (a *Aggregator) State() State {
	return State(a.state.Load())
}

// Renders returns how many times the sink's Render has been called.
func (a *Aggregator) Renders() int64 {
	return a.renders.Load()
}

// Run owns the slots until ctx is cancelled. An in-flight render is waited
// for before returning.
func (a *Aggregator) Run(ctx context.Context) error {
	defer close(a.stopped)

	slots := a.initialSlots()
	var (
		queued     []alert
		lastText   string
		rendered   bool
		redirty    bool
		timerC     <-chan time.Time
		renderDone chan renderResult
	)
	timer := time.NewTimer(a.opts.Debounce)
	timer.Stop()
	defer timer.Stop()

	setState := func(s State) { a.state.Store(int32(s)) }
	setState(Clean)

	arm := func() {
		setState(Dirty)
		timer.Reset(a.opts.Debounce)
		timerC = timer.C
	}

	for {
		select {
		case <-ctx.Done():
			if renderDone != nil {
				<-renderDone
			}
			return nil

		case d := <-a.inbox:
			if d.Index < 0 || d.Index >= len(slots) {
				a.log.Warn("delivery for unknown slot", "index", d.Index, "block", d.Name)
				continue
			}
			prev := slots[d.Index]
			slots[d.Index] = d.Fragment
			if al, ok := a.alertFor(d, prev); ok {
				queued = append(queued, al)
			}

			switch a.State() {
			case Clean:
				arm()
			case Rendering:
				redirty = true
			}

		case <-timerC:
			timerC = nil
			setState(Rendering)

			snap := StatusLine{
				Text:      a.opts.Compose(a.names, slots),
				Fragments: append([]blocks.Fragment(nil), slots...),
				Composed:  time.Now(),
			}
			a.line.Store(&snap)

			skip := rendered && snap.Text == lastText
			alerts := queued
			queued = nil

			if skip && len(alerts) == 0 {
				setState(Clean)
				continue
			}

			done := make(chan renderResult, 1)
			renderDone = done
			go func() {
				done <- a.render(ctx, snap, alerts, skip)
			}()

		case res := <-renderDone:
			renderDone = nil
			if res.err == nil && !res.skipped {
				lastText = res.text
				rendered = true
			}
			if redirty {
				redirty = false
				arm()
			} else {
				setState(Clean)
			}
		}
	}
}

// alertFor returns the alert to raise when d carries a new alert message.
func (a *Aggregator) alertFor(d blocks.Delivery, prev blocks.Fragment) (alert, bool) {
	msg := d.Fragment.Alert
	if msg == "" || msg == prev.Alert {
		return alert{}, false
	}
	if !a.opts.Notify || a.opts.Silent[d.Name] {
		return alert{}, false
	}
	return alert{block: d.Name, urgency: d.Fragment.Urgency, message: msg}, true
}

// render runs on its own goroutine so the slot owner never waits on the
// sink. Failures are logged; the next render self-corrects.
func (a *Aggregator) render(ctx context.Context, line StatusLine, alerts []alert, skip bool) renderResult {
	res := renderResult{text: line.Text, skipped: skip}

	if !skip {
		a.renders.Add(1)
		start := time.Now()
		if err := a.sink.Render(ctx, line.Text); err != nil {
			res.err = err
			if ctx.Err() == nil {
				a.log.Error("render failed", "error", err)
			}
		} else {
			a.log.Debug("rendered", "line", line.Text, "took", time.Since(start))
			if a.opts.OnRender != nil {
				a.opts.OnRender(line)
			}
		}
	}

	for _, al := range alerts {
		if err := a.sink.Notify(ctx, al.urgency, al.block, al.message); err != nil && ctx.Err() == nil {
			a.log.Warn("notify failed", "block", al.block, "error", err)
		}
	}
	return res
}
