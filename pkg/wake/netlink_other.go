//go:build !linux

package wake

import (
	"context"
	"errors"
)

// Netlink is unavailable outside Linux; Watch always fails so the scheduler
// falls back to polling.
type Netlink struct {
	Groups uint32
}

// NewNetlink returns a Netlink source.
func NewNetlink() *Netlink { return &Netlink{} }

// Name returns "netlink".
func (n *Netlink) Name() string { return "netlink" }

// Watch reports that rtnetlink is not supported.
func (n *Netlink) Watch(ctx context.Context, notify func()) error {
	return errors.New("netlink: not supported on this platform")
}
