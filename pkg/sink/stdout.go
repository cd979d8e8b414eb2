package sink

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/ForyoungYu/dwm-status/pkg/blocks"
)

// Writer prints one line per render. With os.Stdout it feeds bars that read
// status text from a pipe, and it is handy for debugging without X.
type Writer struct {
	mu sync.Mutex
	w  io.Writer
}

// NewWriter returns a Writer sink over w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

// Render writes line followed by a newline.
func (s *Writer) Render(_ context.Context, line string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := fmt.Fprintln(s.w, line); err != nil {
		return &SinkError{Sink: "stdout", Op: "render", Err: err}
	}
	return nil
}

// Notify is a no-op; notifications go through a dedicated notifier.
func (s *Writer) Notify(context.Context, blocks.Urgency, string, string) error {
	return nil
}

// Close is a no-op; the writer is owned by the caller.
func (s *Writer) Close() error { return nil }
