package sink

import (
	"context"
	"sync"
	"time"

	"github.com/godbus/dbus/v5"

	"github.com/ForyoungYu/dwm-status/pkg/blocks"
)

const (
	notifyDest   = "org.freedesktop.Notifications"
	notifyPath   = "/org/freedesktop/Notifications"
	notifyMethod = "org.freedesktop.Notifications.Notify"
)

// DBusNotifier raises desktop notifications through the freedesktop
// notification service. Repeated alerts with the same summary replace the
// previous bubble instead of stacking.
type DBusNotifier struct {
	App     string
	Timeout time.Duration

	obj   dbus.BusObject
	close func() error

	mu  sync.Mutex
	ids map[string]uint32
}

// NewDBusNotifier opens a private session bus connection.
func NewDBusNotifier(app string, timeout time.Duration) (*DBusNotifier, error) {
	conn, err := dbus.ConnectSessionBus()
	if err != nil {
		return nil, &SinkError{Sink: "dbus", Op: "connect", Err: err}
	}
	n := newDBusNotifier(conn.Object(notifyDest, notifyPath), app, timeout)
	n.close = conn.Close
	return n, nil
}

func newDBusNotifier(obj dbus.BusObject, app string, timeout time.Duration) *DBusNotifier {
	return &DBusNotifier{
		App:     app,
		Timeout: timeout,
		obj:     obj,
		ids:     make(map[string]uint32),
	}
}

// Render is a no-op.
func (n *DBusNotifier) Render(context.Context, string) error { return nil }

// Notify sends one notification carrying the urgency hint.
func (n *DBusNotifier) Notify(ctx context.Context, u blocks.Urgency, summary, body string) error {
	n.mu.Lock()
	replaces := n.ids[summary]
	n.mu.Unlock()

	hints := map[string]dbus.Variant{
		"urgency": dbus.MakeVariant(byte(u)),
	}
	expire := int32(-1)
	if n.Timeout > 0 {
		expire = int32(n.Timeout / time.Millisecond)
	}

	call := n.obj.CallWithContext(ctx, notifyMethod, 0,
		n.App, replaces, "", summary, body, []string{}, hints, expire)

	var id uint32
	if err := call.Store(&id); err != nil {
		return &SinkError{Sink: "dbus", Op: "notify", Err: err}
	}

	n.mu.Lock()
	n.ids[summary] = id
	n.mu.Unlock()
	return nil
}

// Close closes the bus connection.
func (n *DBusNotifier) Close() error {
	if n.close == nil {
		return nil
	}
	return n.close()
}
