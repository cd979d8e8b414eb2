package sink

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/godbus/dbus/v5"
	"github.com/google/go-cmp/cmp"

	"github.com/ForyoungYu/dwm-status/pkg/blocks"
)

func TestWriterRender(t *testing.T) {
	var buf bytes.Buffer
	s := NewWriter(&buf)

	for _, line := range []string{"50% | down | home-net", "n/a | down | home-net"} {
		if err := s.Render(context.Background(), line); err != nil {
			t.Fatal(err)
		}
	}
	want := "50% | down | home-net\nn/a | down | home-net\n"
	if buf.String() != want {
		t.Errorf("output = %q, want %q", buf.String(), want)
	}
}

type failWriter struct{}

func (failWriter) Write([]byte) (int, error) { return 0, errors.New("broken pipe") }

func TestWriterRenderError(t *testing.T) {
	err := NewWriter(failWriter{}).Render(context.Background(), "x")
	var se *SinkError
	if !errors.As(err, &se) {
		t.Fatalf("err = %v, want SinkError", err)
	}
	if se.Sink != "stdout" || se.Op != "render" {
		t.Errorf("SinkError = %+v", se)
	}
	if !strings.Contains(err.Error(), "broken pipe") {
		t.Errorf("Error() = %q", err.Error())
	}
}

func TestMultiFansOut(t *testing.T) {
	a, b := NewRecorder(), NewRecorder()
	b.SetError(errors.New("display gone"))
	m := Multi{a, b}

	err := m.Render(context.Background(), "line")
	if err == nil {
		t.Fatal("expected joined error from failing sink")
	}
	if a.Last() != "line" || b.Last() != "line" {
		t.Errorf("lines = %q, %q", a.Last(), b.Last())
	}

	if err := m.Notify(context.Background(), blocks.UrgencyCritical, "battery", "5% left"); err != nil {
		t.Fatal(err)
	}
	want := []Notification{{Urgency: blocks.UrgencyCritical, Summary: "battery", Body: "5% left"}}
	if diff := cmp.Diff(want, a.Notifications()); diff != "" {
		t.Errorf("notifications (-want +got):\n%s", diff)
	}

	if err := m.Close(); err != nil {
		t.Fatal(err)
	}
	if !a.Closed() || !b.Closed() {
		t.Error("Close not forwarded")
	}
}

// fakeBus captures Notify method calls.
type fakeBus struct {
	dbus.BusObject
	calls [][]interface{}
	err   error
	next  uint32
}

func (f *fakeBus) CallWithContext(ctx context.Context, method string, flags dbus.Flags, args ...interface{}) *dbus.Call {
	f.calls = append(f.calls, append([]interface{}{method}, args...))
	if f.err != nil {
		return &dbus.Call{Err: f.err}
	}
	f.next++
	return &dbus.Call{Body: []interface{}{f.next}}
}

func TestDBusNotifier(t *testing.T) {
	bus := &fakeBus{}
	n := newDBusNotifier(bus, "dwm-status", 5*time.Second)

	ctx := context.Background()
	if err := n.Notify(ctx, blocks.UrgencyCritical, "battery", "5% remaining"); err != nil {
		t.Fatal(err)
	}
	if err := n.Notify(ctx, blocks.UrgencyCritical, "battery", "3% remaining"); err != nil {
		t.Fatal(err)
	}
	if len(bus.calls) != 2 {
		t.Fatalf("got %d calls, want 2", len(bus.calls))
	}

	first := bus.calls[0]
	if first[0] != notifyMethod || first[1] != "dwm-status" {
		t.Errorf("method/app = %v %v", first[0], first[1])
	}
	if first[2] != uint32(0) {
		t.Errorf("first replaces id = %v, want 0", first[2])
	}
	if first[4] != "battery" || first[5] != "5% remaining" {
		t.Errorf("summary/body = %v %v", first[4], first[5])
	}
	hints := first[7].(map[string]dbus.Variant)
	if got := hints["urgency"].Value(); got != byte(2) {
		t.Errorf("urgency hint = %v, want 2", got)
	}
	if first[8] != int32(5000) {
		t.Errorf("expire = %v, want 5000", first[8])
	}

	// The second alert replaces the first bubble.
	if bus.calls[1][2] != uint32(1) {
		t.Errorf("second replaces id = %v, want 1", bus.calls[1][2])
	}
}

func TestDBusNotifierError(t *testing.T) {
	bus := &fakeBus{err: errors.New("no notification daemon")}
	n := newDBusNotifier(bus, "dwm-status", 0)

	err := n.Notify(context.Background(), blocks.UrgencyLow, "volume", "muted")
	var se *SinkError
	if !errors.As(err, &se) || se.Sink != "dbus" {
		t.Fatalf("err = %v, want dbus SinkError", err)
	}
	if bus.calls[0][8] != int32(-1) {
		t.Errorf("expire with zero timeout = %v, want -1", bus.calls[0][8])
	}
	if n.Close() != nil {
		t.Error("Close without a connection should be a no-op")
	}
}

func TestRecorderHold(t *testing.T) {
	r := NewRecorder()
	r.Hold()

	done := make(chan struct{})
	go func() {
		_ = r.Render(context.Background(), "held")
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("Render returned while held")
	case <-time.After(20 * time.Millisecond):
	}
	r.Release()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Render still blocked after Release")
	}
}

// fakeNamer stands in for one X connection.
type fakeNamer struct {
	err    error
	names  []string
	closed bool
}

func (f *fakeNamer) SetName(line string) error {
	if f.err != nil {
		return f.err
	}
	f.names = append(f.names, line)
	return nil
}

func (f *fakeNamer) Close() { f.closed = true }

// badWindow is an X protocol error.
type badWindow struct{}

func (badWindow) SequenceId() uint16 { return 7 }
func (badWindow) BadId() uint32      { return 0x42 }
func (badWindow) Error() string      { return "BadWindow" }

func TestX11ReconnectsAfterConnectionLoss(t *testing.T) {
	first := &fakeNamer{}
	conns := []*fakeNamer{first}
	var dialErr error
	dial := func(string) (rootNamer, error) {
		if dialErr != nil {
			return nil, dialErr
		}
		c := &fakeNamer{}
		conns = append(conns, c)
		return c, nil
	}
	x, err := newX11(":0", func(d string) (rootNamer, error) { return first, nil })
	if err != nil {
		t.Fatal(err)
	}
	x.dial = dial
	ctx := context.Background()

	if err := x.Render(ctx, "a"); err != nil {
		t.Fatal(err)
	}

	first.err = io.EOF
	if err := x.Render(ctx, "b"); err != nil {
		t.Fatalf("render after connection loss: %v", err)
	}
	if !first.closed || len(conns) != 2 {
		t.Fatalf("dead connection closed = %v, dials = %d", first.closed, len(conns)-1)
	}
	if diff := cmp.Diff([]string{"b"}, conns[1].names); diff != "" {
		t.Errorf("new connection names (-want +got):\n%s", diff)
	}

	// A failed re-dial is reported and retried on the next render.
	conns[1].err = io.EOF
	dialErr = errors.New("cannot open display")
	err = x.Render(ctx, "c")
	var se *SinkError
	if !errors.As(err, &se) || se.Op != "reconnect" {
		t.Fatalf("err = %v, want reconnect SinkError", err)
	}
	dialErr = nil
	if err := x.Render(ctx, "d"); err != nil {
		t.Fatalf("render after display returned: %v", err)
	}
	if got := conns[len(conns)-1].names; len(got) != 1 || got[0] != "d" {
		t.Errorf("names = %q, want [d]", got)
	}

	if err := x.Close(); err != nil {
		t.Fatal(err)
	}
	if !conns[len(conns)-1].closed {
		t.Error("Close did not close the connection")
	}
}

func TestX11ProtocolErrorKeepsConnection(t *testing.T) {
	conn := &fakeNamer{err: badWindow{}}
	dials := 0
	x, err := newX11("", func(string) (rootNamer, error) {
		dials++
		return conn, nil
	})
	if err != nil {
		t.Fatal(err)
	}

	err = x.Render(context.Background(), "a")
	var se *SinkError
	if !errors.As(err, &se) || se.Op != "render" {
		t.Fatalf("err = %v, want render SinkError", err)
	}
	if dials != 1 || conn.closed {
		t.Errorf("protocol error re-dialled: dials = %d, closed = %v", dials, conn.closed)
	}
}

func TestX11(t *testing.T) {
	if os.Getenv("DWM_STATUS_X11_TEST") == "" {
		t.Skip("set DWM_STATUS_X11_TEST to run against a live X server")
	}
	x, err := NewX11("")
	if err != nil {
		t.Fatal(err)
	}
	defer x.Close()
	if err := x.Render(context.Background(), "dwm-status test"); err != nil {
		t.Fatal(err)
	}
}
