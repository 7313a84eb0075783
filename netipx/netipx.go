// SPDX-License-Identifier: GPL-3.0-or-later

// Package netipx contains [net/netip] extensions for IPv4 subnets.
package netipx

import (
	"encoding/binary"
	"net"
	"net/netip"
)

// Host returns the n-th address inside the given IPv4 prefix, where
// zero is the network address itself.
//
// The second return value is false if the prefix is not IPv4 or if
// n does not fit inside the prefix.
func Host(prefix netip.Prefix, n uint32) (netip.Addr, bool) {
	prefix = prefix.Masked()
	if !prefix.Addr().Is4() {
		return netip.Addr{}, false
	}
	if size := hostCount(prefix); n >= size {
		return netip.Addr{}, false
	}
	base := prefix.Addr().As4()
	value := binary.BigEndian.Uint32(base[:]) + n
	var out [4]byte
	binary.BigEndian.PutUint32(out[:], value)
	return netip.AddrFrom4(out), true
}

// Broadcast returns the directed broadcast address of an IPv4 prefix.
//
// The second return value is false for non-IPv4 prefixes.
func Broadcast(prefix netip.Prefix) (netip.Addr, bool) {
	prefix = prefix.Masked()
	if !prefix.Addr().Is4() {
		return netip.Addr{}, false
	}
	return Host(prefix, hostCount(prefix)-1)
}

// hostCount returns the number of addresses inside an IPv4 prefix.
func hostCount(prefix netip.Prefix) uint32 {
	bits := 32 - prefix.Bits()
	if bits >= 32 {
		return 0 // does not fit, and we never use /0 anyway
	}
	return uint32(1) << bits
}

// MaskString returns the dotted-decimal mask of an IPv4 prefix
// (e.g., "255.255.255.0" for a /24), or the empty string.
func MaskString(prefix netip.Prefix) string {
	if !prefix.Addr().Is4() {
		return ""
	}
	return net.IP(net.CIDRMask(prefix.Bits(), 32)).String()
}

// IPNet converts an interface prefix (address plus length, not
// necessarily masked) to a [*net.IPNet] suitable for netlink.
func IPNet(prefix netip.Prefix) *net.IPNet {
	bits := prefix.Addr().BitLen()
	return &net.IPNet{
		IP:   net.IP(prefix.Addr().AsSlice()),
		Mask: net.CIDRMask(prefix.Bits(), bits),
	}
}

// AddrFromIP converts a [net.IP] to a [netip.Addr], unmapping
// IPv4-in-IPv6 addresses. The second return value is false when
// the input is not a valid IP address.
func AddrFromIP(ip net.IP) (netip.Addr, bool) {
	addr, ok := netip.AddrFromSlice(ip)
	if !ok {
		return netip.Addr{}, false
	}
	return addr.Unmap(), true
}
