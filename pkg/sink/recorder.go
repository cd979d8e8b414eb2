package sink

import (
	"context"
	"sync"

	"github.com/ForyoungYu/dwm-status/pkg/blocks"
)

// Notification is one Notify call captured by Recorder.
type Notification struct {
	Urgency blocks.Urgency
	Summary string
	Body    string
}

// Recorder is an in-memory Sink for tests. It keeps every rendered line and
// notification and can be told to fail or to block inside Render.
type Recorder struct {
	mu     sync.Mutex
	lines  []string
	notes  []Notification
	err    error
	gate   chan struct{}
	closed bool

	// Rendered receives a value after every Render call, if non-nil.
	Rendered chan string
}

// NewRecorder returns an empty Recorder.
func NewRecorder() *Recorder {
	return &Recorder{Rendered: make(chan string, 64)}
}

// SetError makes subsequent Render calls fail with err (nil clears it).
func (r *Recorder) SetError(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.err = err
}

// Hold makes Render block until Release is called.
func (r *Recorder) Hold() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.gate = make(chan struct{})
}

// Release unblocks a Render held by Hold.
func (r *Recorder) Release() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.gate != nil {
		close(r.gate)
		r.gate = nil
	}
}

// Render records line.
func (r *Recorder) Render(ctx context.Context, line string) error {
	r.mu.Lock()
	gate := r.gate
	r.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	r.mu.Lock()
	r.lines = append(r.lines, line)
	err := r.err
	r.mu.Unlock()

	if r.Rendered != nil {
		select {
		case r.Rendered <- line:
		default:
		}
	}
	if err != nil {
		return &SinkError{Sink: "recorder", Op: "render", Err: err}
	}
	return nil
}

// Notify records the notification.
func (r *Recorder) Notify(_ context.Context, u blocks.Urgency, summary, body string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notes = append(r.notes, Notification{Urgency: u, Summary: summary, Body: body})
	return nil
}

// Close marks the recorder closed.
func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}

// Lines returns a copy of every rendered line, including failed renders.
func (r *Recorder) Lines() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.lines...)
}

// Last returns the most recent rendered line.
func (r *Recorder) Last() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.lines) == 0 {
		return ""
	}
	return r.lines[len(r.lines)-1]
}

// Notifications returns a copy of every notification.
func (r *Recorder) Notifications() []Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Notification(nil), r.notes...)
}

// Closed reports whether Close was called.
func (r *Recorder) Closed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}
