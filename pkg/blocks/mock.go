package blocks

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// MockBlock implements Block and Subscriber for testing. All fields are
// configurable and it tracks how many times Refresh has been called.
type MockBlock struct {
	name    string
	cadence Cadence
	frag    Fragment
	err     error

	mu        sync.RWMutex
	callCount atomic.Int64
	inFlight  atomic.Int64
	maxInFlt  atomic.Int64
	notify    chan func()

	// RefreshFunc, if set, overrides the default Refresh behavior.
	// This allows tests to inject dynamic behavior (e.g., return different
	// text on each call, or block until a signal).
	RefreshFunc func(ctx context.Context) (Fragment, error)
}

// MockBlockOption configures a MockBlock.
type MockBlockOption func(*MockBlock)

// WithText sets the fragment text returned by Refresh.
func WithText(text string) MockBlockOption {
	return func(m *MockBlock) { m.frag = Fragment{Text: text} }
}

// WithFragment sets the full fragment returned by Refresh.
func WithFragment(f Fragment) MockBlockOption {
	return func(m *MockBlock) { m.frag = f }
}

// WithError sets the error returned by Refresh.
func WithError(err error) MockBlockOption {
	return func(m *MockBlock) { m.err = err }
}

// WithCadence overrides the interval cadence given to NewMockBlock.
func WithCadence(c Cadence) MockBlockOption {
	return func(m *MockBlock) { m.cadence = c }
}

// WithRefreshFunc sets a custom function for Refresh.
func WithRefreshFunc(fn func(ctx context.Context) (Fragment, error)) MockBlockOption {
	return func(m *MockBlock) { m.RefreshFunc = fn }
}

// NewMockBlock creates a mock block with the given name, poll interval, and
// options.
func NewMockBlock(name string, interval time.Duration, opts ...MockBlockOption) *MockBlock {
	m := &MockBlock{
		name:    name,
		cadence: Interval(interval),
		notify:  make(chan func(), 1),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Name returns the block name.
func (m *MockBlock) Name() string { return m.name }

// Cadence returns the configured cadence.
func (m *MockBlock) Cadence() Cadence { return m.cadence }

// SetText updates the returned fragment text (thread-safe).
func (m *MockBlock) SetText(text string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.frag = Fragment{Text: text}
}

// SetError updates the returned error (thread-safe).
func (m *MockBlock) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// Refresh performs a mock refresh. It increments the call counter and
// returns the configured fragment and error, or delegates to RefreshFunc.
func (m *MockBlock) Refresh(ctx context.Context) (Fragment, error) {
	m.callCount.Add(1)
	n := m.inFlight.Add(1)
	defer m.inFlight.Add(-1)
	for {
		cur := m.maxInFlt.Load()
		if n <= cur || m.maxInFlt.CompareAndSwap(cur, n) {
			break
		}
	}

	if m.RefreshFunc != nil {
		return m.RefreshFunc(ctx)
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.frag, m.err
}

// Subscribe hands notify to Wake and blocks until ctx is done. Only
// meaningful for mocks created with an event-driven cadence.
func (m *MockBlock) Subscribe(ctx context.Context, notify func()) error {
	select {
	case m.notify <- notify:
	case <-ctx.Done():
		return nil
	}
	<-ctx.Done()
	return nil
}

// Wake simulates an external change signal. It waits up to timeout for the
// scheduler to subscribe and reports whether the signal was delivered.
func (m *MockBlock) Wake(timeout time.Duration) bool {
	select {
	case fn := <-m.notify:
		fn()
		// Put it back so subsequent wakes work.
		m.notify <- fn
		return true
	case <-time.After(timeout):
		return false
	}
}

// CallCount returns how many times Refresh has been called.
func (m *MockBlock) CallCount() int64 {
	return m.callCount.Load()
}

// MaxConcurrent returns the highest number of simultaneous Refresh calls
// observed.
func (m *MockBlock) MaxConcurrent() int64 {
	return m.maxInFlt.Load()
}
