package sink

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/jezek/xgb"
	"github.com/jezek/xgb/xproto"

	"github.com/ForyoungYu/dwm-status/pkg/blocks"
)

// rootNamer sets the root window name over one X connection.
type rootNamer interface {
	SetName(line string) error
	Close()
}

// X11 sets the root window name, which dwm draws as its status text.
type X11 struct {
	mu      sync.Mutex
	display string
	dial    func(display string) (rootNamer, error)
	conn    rootNamer // nil after a failed reconnect
}

// NewX11 connects to display, or $DISPLAY when display is empty.
func NewX11(display string) (*X11, error) {
	return newX11(display, dialXGB)
}

func newX11(display string, dial func(string) (rootNamer, error)) (*X11, error) {
	conn, err := dial(display)
	if err != nil {
		return nil, err
	}
	return &X11{display: display, dial: dial, conn: conn}, nil
}

// Render replaces WM_NAME on the root window with line. A dropped connection
// is re-dialled once before the render is reported as failed.
func (x *X11) Render(_ context.Context, line string) error {
	x.mu.Lock()
	defer x.mu.Unlock()

	var err error
	if x.conn != nil {
		err = x.conn.SetName(line)
		if err == nil {
			return nil
		}
		var xerr xgb.Error
		if errors.As(err, &xerr) {
			return &SinkError{Sink: "x11", Op: "render", Err: fmt.Errorf("set WM_NAME: %w", err)}
		}
		x.conn.Close()
		x.conn = nil
	}

	conn, dialErr := x.dial(x.display)
	if dialErr != nil {
		return &SinkError{Sink: "x11", Op: "reconnect", Err: errors.Join(err, dialErr)}
	}
	x.conn = conn
	if err := conn.SetName(line); err != nil {
		return &SinkError{Sink: "x11", Op: "render", Err: fmt.Errorf("set WM_NAME: %w", err)}
	}
	return nil
}

// Notify is a no-op; X11 has no notification surface.
func (x *X11) Notify(context.Context, blocks.Urgency, string, string) error {
	return nil
}

// Close closes the X connection.
func (x *X11) Close() error {
	x.mu.Lock()
	defer x.mu.Unlock()
	if x.conn != nil {
		x.conn.Close()
		x.conn = nil
	}
	return nil
}

type xgbNamer struct {
	conn *xgb.Conn
	root xproto.Window
	utf8 xproto.Atom
}

func dialXGB(display string) (rootNamer, error) {
	conn, err := xgb.NewConnDisplay(display)
	if err != nil {
		return nil, &SinkError{Sink: "x11", Op: "connect", Err: err}
	}

	screen := xproto.Setup(conn).DefaultScreen(conn)

	const atomName = "UTF8_STRING"
	reply, err := xproto.InternAtom(conn, false, uint16(len(atomName)), atomName).Reply()
	if err != nil {
		conn.Close()
		return nil, &SinkError{Sink: "x11", Op: "intern atom", Err: err}
	}

	return &xgbNamer{conn: conn, root: screen.Root, utf8: reply.Atom}, nil
}

func (n *xgbNamer) SetName(line string) error {
	data := []byte(line)
	return xproto.ChangePropertyChecked(n.conn, xproto.PropModeReplace, n.root,
		xproto.AtomWmName, n.utf8, 8, uint32(len(data)), data).Check()
}

func (n *xgbNamer) Close() { n.conn.Close() }
