// Package network provides the wired link and wireless blocks. Both read
// interface state from sysfs/procfs and are woken by rtnetlink link and
// address notifications.
package network

import (
	"fmt"
	"net"

	"github.com/ForyoungYu/dwm-status/pkg/blocks"
)

// Placeholders understood by the network formats.
const (
	PlaceholderIPv4   = "IPv4"
	PlaceholderIPv6   = "IPv6"
	PlaceholderESSID  = "ESSID"
	PlaceholderSignal = "SIGNAL"
	PlaceholderIface  = "IFACE"
)

// DefaultNoValue stands in for an address or name that is not available.
const DefaultNoValue = "NA"

// AddrFunc lists the addresses assigned to an interface.
type AddrFunc func(iface string) ([]net.IP, error)

// InterfaceAddrs is the AddrFunc backed by the host network stack.
func InterfaceAddrs(iface string) ([]net.IP, error) {
	ifi, err := net.InterfaceByName(iface)
	if err != nil {
		return nil, err
	}
	addrs, err := ifi.Addrs()
	if err != nil {
		return nil, fmt.Errorf("addresses of %s: %w", iface, err)
	}

	ips := make([]net.IP, 0, len(addrs))
	for _, a := range addrs {
		if ipn, ok := a.(*net.IPNet); ok {
			ips = append(ips, ipn.IP)
		}
	}
	return ips, nil
}

// pickAddrs returns the first IPv4 address and the first global IPv6
// address, or noValue for either when absent.
func pickAddrs(ips []net.IP, noValue string) (v4, v6 string) {
	v4, v6 = noValue, noValue
	found4, found6 := false, false
	for _, ip := range ips {
		if ip.IsLoopback() {
			continue
		}
		if ip4 := ip.To4(); ip4 != nil {
			if !found4 {
				v4, found4 = ip4.String(), true
			}
			continue
		}
		if !found6 && ip.IsGlobalUnicast() {
			v6, found6 = ip.String(), true
		}
	}
	return v4, v6
}

// addrValues fills the address placeholders that format uses.
func addrValues(format blocks.Template, iface string, addrs AddrFunc, noValue string, values map[string]string) error {
	if !format.Uses(PlaceholderIPv4) && !format.Uses(PlaceholderIPv6) {
		return nil
	}
	ips, err := addrs(iface)
	if err != nil {
		return err
	}
	values[PlaceholderIPv4], values[PlaceholderIPv6] = pickAddrs(ips, noValue)
	return nil
}
