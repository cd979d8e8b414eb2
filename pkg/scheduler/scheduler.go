// Package scheduler drives every registered block on its cadence. A single
// dispatch loop multiplexes the next-due poll timer, wake signals from
// event-driven blocks and refresh completions; refreshes themselves run on
// their own goroutines so one slow source never delays another.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ForyoungYu/dwm-status/pkg/blocks"
)

// DefaultTimeout bounds a single refresh when no per-block timeout is set.
const DefaultTimeout = 5 * time.Second

// DefaultPlaceholder is rendered in place of a failed block.
const DefaultPlaceholder = "n/a"

// Submitter receives fragment deliveries. The aggregator implements it.
type Submitter interface {
	Submit(ctx context.Context, d blocks.Delivery) error
}

// Options tunes the scheduler. Zero values select defaults.
type Options struct {
	// Placeholder replaces the text of a failed block.
	Placeholder string

	// Timeout bounds each refresh unless Timeouts has an entry for the block.
	Timeout  time.Duration
	Timeouts map[string]time.Duration

	// MaxBackoff caps the retry delay of persistently failing blocks.
	MaxBackoff time.Duration

	Logger *slog.Logger
}

// Scheduler owns the schedule entries of all blocks in a Registry.
type Scheduler struct {
	reg  *blocks.Registry
	out  Submitter
	opts Options
	log  *slog.Logger

	// pending holds woken block indexes; the value marks a forced refresh
	// that bypasses failure backoff.
	mu      sync.Mutex
	pending map[int]bool
	kick    chan struct{}

	results chan result
	wg      sync.WaitGroup
	running atomic.Bool

	// lifeMu guards the loop started by Start.
	lifeMu sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// entry is the ScheduleEntry for one block. Only the dispatch loop touches it.
type entry struct {
	index   int
	block   blocks.Block
	cadence blocks.Cadence
	timeout time.Duration

	next       time.Time // zero when nothing is scheduled
	inFlight   bool
	rerun      bool
	rerunForce bool
	failures   int
}

type result struct {
	index   int
	frag    blocks.Fragment
	err     error
	started time.Time
	latency time.Duration
}

// New creates a scheduler for the blocks in reg, delivering fragments to out.
func New(reg *blocks.Registry, out Submitter, opts Options) *Scheduler {
	if opts.Placeholder == "" {
		opts.Placeholder = DefaultPlaceholder
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.MaxBackoff <= 0 {
		opts.MaxBackoff = blocks.DefaultMaxBackoff
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}

	return &Scheduler{
		reg:     reg,
		out:     out,
		opts:    opts,
		log:     log.With("component", "scheduler"),
		pending: make(map[int]bool),
		kick:    make(chan struct{}, 1),
		results: make(chan result),
	}
}

// Start runs the dispatch loop in the background. Stop cancels it.
func (s *Scheduler) Start(ctx context.Context) error {
	s.lifeMu.Lock()
	defer s.lifeMu.Unlock()

	if s.cancel != nil || s.running.Load() {
		return fmt.Errorf("scheduler already running")
	}
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	s.cancel, s.done = cancel, done

	go func() {
		defer close(done)
		if err := s.Run(ctx); err != nil {
			s.log.Error("scheduler stopped", "error", err)
		}
	}()
	return nil
}

// Stop cancels a loop started with Start and waits for its goroutines. It is
// safe to call concurrently with Start and more than once.
func (s *Scheduler) Stop() {
	s.lifeMu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.lifeMu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Trigger requests an immediate refresh of the named block, bypassing any
// failure backoff.
func (s *Scheduler) Trigger(name string) error {
	idx, ok := s.reg.IndexOf(name)
	if !ok {
		return fmt.Errorf("block %q not registered", name)
	}
	s.wake(idx, true)
	return nil
}

// TriggerAll requests an immediate refresh of every block.
func (s *Scheduler) TriggerAll() {
	for i := 0; i < s.reg.Len(); i++ {
		s.wake(i, true)
	}
}

// wake records a change signal for block index and kicks the loop. It never
// blocks; repeated wakes before the loop runs coalesce into one.
func (s *Scheduler) wake(index int, force bool) {
	s.mu.Lock()
	s.pending[index] = s.pending[index] || force
	s.mu.Unlock()

	select {
	case s.kick <- struct{}{}:
	default:
	}
}

func (s *Scheduler) takeWakes() map[int]bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	woken := s.pending
	s.pending = make(map[int]bool)
	return woken
}

// Run executes the dispatch loop until ctx is cancelled. Every block is
// refreshed once at start, in display order.
func (s *Scheduler) Run(ctx context.Context) error {
	if !s.running.CompareAndSwap(false, true) {
		return fmt.Errorf("scheduler already running")
	}
	defer s.running.Store(false)

	ctx, cancel := context.WithCancel(ctx)
	defer func() {
		cancel()
		s.wg.Wait()
	}()

	entries := s.buildEntries()
	if len(entries) == 0 {
		return fmt.Errorf("no blocks registered")
	}

	for _, e := range entries {
		if e.cadence.Kind != blocks.CadenceEventDriven {
			continue
		}
		if sub, ok := e.block.(blocks.Subscriber); ok {
			s.wg.Add(1)
			go s.subscribe(ctx, e.index, e.block.Name(), sub)
		}
	}

	for _, e := range entries {
		s.dispatch(ctx, e)
	}

	s.log.Info("scheduler started", "blocks", len(entries))

	timer := time.NewTimer(time.Hour)
	defer timer.Stop()

	for {
		var timerC <-chan time.Time
		if due, ok := nextDue(entries); ok {
			timer.Reset(time.Until(due))
			timerC = timer.C
		} else {
			timer.Stop()
		}

		select {
		case <-ctx.Done():
			s.log.Info("scheduler stopping")
			return nil

		case now := <-timerC:
			for _, e := range entries {
				if e.inFlight || e.next.IsZero() || now.Before(e.next) {
					continue
				}
				s.dispatch(ctx, e)
			}

		case <-s.kick:
			woken := s.takeWakes()
			now := time.Now()
			for _, e := range entries {
				force, ok := woken[e.index]
				if !ok {
					continue
				}
				if e.inFlight {
					e.rerun = true
					e.rerunForce = e.rerunForce || force
					continue
				}
				if !force && e.failures > 0 && now.Before(e.next) {
					// Persistent failures wait out their backoff.
					continue
				}
				s.dispatch(ctx, e)
			}

		case r := <-s.results:
			s.complete(ctx, entries[r.index], r)
		}
	}
}

func (s *Scheduler) buildEntries() []*entry {
	bs := s.reg.Blocks()
	entries := make([]*entry, len(bs))
	for i, b := range bs {
		timeout := s.opts.Timeout
		if t, ok := s.opts.Timeouts[b.Name()]; ok && t > 0 {
			timeout = t
		}
		entries[i] = &entry{
			index:   i,
			block:   b,
			cadence: b.Cadence(),
			timeout: timeout,
		}
	}
	return entries
}

// nextDue returns the earliest due time among idle entries.
func nextDue(entries []*entry) (time.Time, bool) {
	var due time.Time
	found := false
	for _, e := range entries {
		if e.inFlight || e.next.IsZero() {
			continue
		}
		if !found || e.next.Before(due) {
			due = e.next
			found = true
		}
	}
	return due, found
}

// dispatch starts one refresh for e. At most one refresh per block is in
// flight, so deliveries for a block stay in order.
func (s *Scheduler) dispatch(ctx context.Context, e *entry) {
	e.inFlight = true
	e.next = time.Time{}

	s.wg.Add(1)
	go s.refresh(ctx, e.index, e.block, e.timeout)
}

type outcome struct {
	frag blocks.Fragment
	err  error
}

// refresh calls Refresh under the block's timeout. On timeout the call is
// abandoned and reported as a TimeoutError; its eventual result is dropped.
func (s *Scheduler) refresh(ctx context.Context, index int, b blocks.Block, timeout time.Duration) {
	defer s.wg.Done()

	start := time.Now()
	rctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ch := make(chan outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				ch <- outcome{err: fmt.Errorf("panic: %v", r)}
			}
		}()
		f, err := b.Refresh(rctx)
		ch <- outcome{frag: f, err: err}
	}()

	r := result{index: index, started: start}
	select {
	case o := <-ch:
		r.frag, r.err = o.frag, o.err
		if r.err != nil && ctx.Err() == nil && errors.Is(rctx.Err(), context.DeadlineExceeded) {
			r.err = &blocks.TimeoutError{Block: b.Name(), After: timeout}
		}
	case <-rctx.Done():
		if ctx.Err() != nil {
			return
		}
		r.err = &blocks.TimeoutError{Block: b.Name(), After: timeout}
	}
	r.latency = time.Since(start)

	select {
	case s.results <- r:
	case <-ctx.Done():
	}
}

// complete records a refresh result, reschedules the entry and delivers the
// fragment downstream.
func (s *Scheduler) complete(ctx context.Context, e *entry, r result) {
	e.inFlight = false
	now := time.Now()
	name := e.block.Name()

	frag := r.frag
	if r.err != nil {
		e.failures++
		err := r.err
		var se *blocks.SourceError
		if !errors.As(err, &se) && !blocks.IsTimeout(err) {
			err = blocks.NewSourceError(name, "refresh", err)
		}
		frag = blocks.ErrorFragment(s.opts.Placeholder, err)

		retry := blocks.Backoff(e.cadence.Every, s.opts.MaxBackoff, e.failures)
		e.next = now.Add(retry)

		if e.failures == 1 {
			s.log.Warn("refresh failed", "block", name, "error", err, "retry_in", retry)
		} else {
			s.log.Debug("refresh failed", "block", name, "error", err, "failures", e.failures, "retry_in", retry)
		}
		r.err = err
	} else {
		if e.failures > 0 {
			s.log.Info("block recovered", "block", name, "after_failures", e.failures)
		}
		e.failures = 0
		if e.cadence.Polls() {
			e.next = now.Add(e.cadence.Every)
		}
	}

	s.reg.UpdateStatus(e.index, func(st *blocks.Status) {
		st.RunCount++
		st.LastRun = r.started
		st.LastLatency = r.latency
		st.Text = frag.Text
		st.Failures = e.failures
		if r.err != nil {
			st.Healthy = false
			st.ErrorCount++
			st.LastError = r.err.Error()
			st.NextRetry = e.next
		} else {
			st.Healthy = true
			st.LastError = ""
			st.LastUpdate = now
			st.NextRetry = time.Time{}
		}
	})

	d := blocks.Delivery{Index: e.index, Name: name, Fragment: frag, Timestamp: now}
	if err := s.out.Submit(ctx, d); err != nil && ctx.Err() == nil {
		s.log.Error("deliver fragment", "block", name, "error", err)
	}

	if e.rerun {
		force := e.rerunForce
		e.rerun, e.rerunForce = false, false
		if force || e.failures == 0 {
			s.dispatch(ctx, e)
		}
	}
}

// subscribe keeps an event-driven block's wake subscription alive,
// resubscribing with backoff when it fails. Each failure forces a refresh so
// the slot reflects the current state.
func (s *Scheduler) subscribe(ctx context.Context, index int, name string, sub blocks.Subscriber) {
	defer s.wg.Done()

	failures := 0
	for {
		err := sub.Subscribe(ctx, func() { s.wake(index, false) })
		if ctx.Err() != nil {
			return
		}

		failures++
		if err == nil {
			err = errors.New("subscription ended")
		}
		delay := blocks.Backoff(time.Second, s.opts.MaxBackoff, failures)
		s.log.Warn("wake subscription failed", "block", name, "error", err, "retry_in", delay)
		s.wake(index, false)

		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
	}
}
