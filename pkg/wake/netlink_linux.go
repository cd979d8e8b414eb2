//go:build linux

package wake

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sys/unix"
)

// netlinkPoll bounds how long a blocked recv can delay noticing ctx
// cancellation.
const netlinkPoll = time.Second

// Netlink subscribes to the rtnetlink multicast groups for link state and
// interface address changes. Any message counts as a change; blocks re-read
// their own state on refresh.
type Netlink struct {
	// Groups overrides the default RTMGRP_LINK|RTMGRP_IPV4_IFADDR|RTMGRP_IPV6_IFADDR.
	Groups uint32
}

// NewNetlink returns a Netlink source for link and address changes.
func NewNetlink() *Netlink {
	return &Netlink{
		Groups: unix.RTMGRP_LINK | unix.RTMGRP_IPV4_IFADDR | unix.RTMGRP_IPV6_IFADDR,
	}
}

// Name returns "netlink".
func (n *Netlink) Name() string { return "netlink" }

// Watch opens a NETLINK_ROUTE socket bound to the configured groups and
// calls notify once per received datagram.
func (n *Netlink) Watch(ctx context.Context, notify func()) error {
	fd, err := unix.Socket(unix.AF_NETLINK, unix.SOCK_RAW|unix.SOCK_CLOEXEC, unix.NETLINK_ROUTE)
	if err != nil {
		return fmt.Errorf("netlink socket: %w", err)
	}
	defer unix.Close(fd)

	if err := unix.Bind(fd, &unix.SockaddrNetlink{Family: unix.AF_NETLINK, Groups: n.Groups}); err != nil {
		return fmt.Errorf("netlink bind: %w", err)
	}

	tv := unix.NsecToTimeval(netlinkPoll.Nanoseconds())
	if err := unix.SetsockoptTimeval(fd, unix.SOL_SOCKET, unix.SO_RCVTIMEO, &tv); err != nil {
		return fmt.Errorf("netlink timeout: %w", err)
	}

	buf := make([]byte, unix.Getpagesize())
	for {
		if ctx.Err() != nil {
			return nil
		}

		nr, _, err := unix.Recvfrom(fd, buf, 0)
		if err != nil {
			if errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EWOULDBLOCK) || errors.Is(err, unix.EINTR) {
				continue
			}
			if errors.Is(err, unix.ENOBUFS) {
				// Kernel dropped messages; state changed in some way.
				notify()
				continue
			}
			return fmt.Errorf("netlink recv: %w", err)
		}
		if nr > 0 {
			notify()
		}
	}
}
