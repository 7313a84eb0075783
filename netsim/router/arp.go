// SPDX-License-Identifier: GPL-3.0-or-later

package router

import (
	"bytes"
	"log/slog"
	"net"
	"net/netip"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/rbmk-project/chainemu/netipx"
	"github.com/rbmk-project/chainemu/netsim"
	"github.com/rbmk-project/chainemu/netsim/packet"
)

const (
	// ARPPendingQueueSize is the number of datagrams queued while
	// waiting for an ARP reply.
	ARPPendingQueueSize = 3

	// ARPRetryInterval is the interval between ARP requests.
	ARPRetryInterval = time.Second

	// ARPMaxRetries is the number of ARP request retransmissions
	// before giving up on a next hop.
	ARPMaxRetries = 3

	// ARPEntryLifetime is the lifetime of a resolved entry.
	ARPEntryLifetime = 120 * time.Second
)

// arpEntry is an entry of the [*arpCache].
type arpEntry struct {
	// expires is when a resolved entry expires.
	expires time.Duration

	// mac is the resolved address or nil while resolving.
	mac net.HardwareAddr

	// pending contains the datagrams waiting for resolution.
	pending [][]byte

	// retries is the number of retransmitted requests.
	retries int

	// timer is the retransmission timer.
	timer *netsim.Event
}

// arpCache maps IPv4 addresses to MAC addresses.
type arpCache struct {
	entries map[netip.Addr]*arpEntry
}

func newARPCache() *arpCache {
	return &arpCache{entries: make(map[netip.Addr]*arpEntry)}
}

// Neighbor returns the resolved MAC address of a neighbor.
func (iface *Interface) Neighbor(addr netip.Addr, now time.Duration) (net.HardwareAddr, bool) {
	entry := iface.arp.entries[addr]
	if entry == nil || entry.mac == nil || now >= entry.expires {
		return nil, false
	}
	return entry.mac, true
}

// output sends an IPv4 datagram to nextHop through iface, resolving
// the next hop MAC address first when needed.
func (r *Router) output(iface *Interface, nextHop netip.Addr, datagram []byte) {
	if bcast, ok := netipx.Broadcast(iface.addr); ok && nextHop == bcast {
		r.sendFrame(iface, packet.BroadcastMAC, layers.EthernetTypeIPv4, datagram)
		return
	}
	now := r.engine.Now()
	if mac, ok := iface.Neighbor(nextHop, now); ok {
		r.sendFrame(iface, mac, layers.EthernetTypeIPv4, datagram)
		return
	}

	entry := iface.arp.entries[nextHop]
	if entry == nil || entry.mac != nil {
		entry = &arpEntry{}
		iface.arp.entries[nextHop] = entry
		r.sendARP(iface, layers.ARPRequest, packet.BroadcastMAC, nextHop)
		entry.timer = r.engine.Schedule(ARPRetryInterval, func() {
			r.arpRetry(iface, nextHop, entry)
		})
	}

	if len(entry.pending) >= ARPPendingQueueSize {
		r.stats.DropARP++
		return
	}
	entry.pending = append(entry.pending, datagram)
}

// arpRetry retransmits the ARP request or gives up.
func (r *Router) arpRetry(iface *Interface, addr netip.Addr, entry *arpEntry) {
	if iface.arp.entries[addr] != entry || entry.mac != nil {
		return
	}
	entry.retries++
	if entry.retries > ARPMaxRetries {
		r.stats.DropARP += uint64(len(entry.pending))
		delete(iface.arp.entries, addr)
		if r.Logger != nil {
			r.Logger.Debug(
				"arpTimeout",
				slog.String("router", r.name),
				slog.Int("ifIndex", iface.index),
				slog.String("addr", addr.String()),
				slog.Int("dropped", len(entry.pending)),
			)
		}
		return
	}
	r.sendARP(iface, layers.ARPRequest, packet.BroadcastMAC, addr)
	entry.timer = r.engine.Schedule(ARPRetryInterval, func() {
		r.arpRetry(iface, addr, entry)
	})
}

// arpLearn records the MAC address of a neighbor and flushes
// the datagrams waiting for it.
func (r *Router) arpLearn(iface *Interface, addr netip.Addr, mac net.HardwareAddr) {
	entry := iface.arp.entries[addr]
	if entry == nil {
		entry = &arpEntry{}
		iface.arp.entries[addr] = entry
	}
	entry.mac = bytes.Clone(mac)
	entry.expires = r.engine.Now() + ARPEntryLifetime
	entry.retries = 0
	if entry.timer != nil {
		entry.timer.Cancel()
		entry.timer = nil
	}
	pending := entry.pending
	entry.pending = nil
	for _, datagram := range pending {
		r.sendFrame(iface, entry.mac, layers.EthernetTypeIPv4, datagram)
	}
}

// handleARP processes an incoming ARP message.
func (r *Router) handleARP(iface *Interface, arp *layers.ARP) {
	if arp.AddrType != layers.LinkTypeEthernet || arp.Protocol != layers.EthernetTypeIPv4 ||
		len(arp.SourceHwAddress) != 6 || len(arp.SourceProtAddress) != 4 || len(arp.DstProtAddress) != 4 {
		r.stats.DropOther++
		return
	}
	sender := netip.AddrFrom4([4]byte(arp.SourceProtAddress))
	target := netip.AddrFrom4([4]byte(arp.DstProtAddress))

	if target != iface.addr.Addr() {
		// refresh entries we already know about
		if entry := iface.arp.entries[sender]; entry != nil && entry.mac != nil {
			r.arpLearn(iface, sender, arp.SourceHwAddress)
		}
		return
	}

	if !sender.IsUnspecified() {
		r.arpLearn(iface, sender, arp.SourceHwAddress)
	}
	if arp.Operation == layers.ARPRequest {
		r.sendARPTo(iface, layers.ARPReply, arp.SourceHwAddress, arp.SourceHwAddress, sender)
	}
}

// sendARP sends an ARP message for the given target address.
func (r *Router) sendARP(iface *Interface, op uint16, dstMAC net.HardwareAddr, target netip.Addr) {
	r.sendARPTo(iface, op, dstMAC, make(net.HardwareAddr, 6), target)
}

// sendARPTo sends an ARP message with explicit target hardware address.
func (r *Router) sendARPTo(iface *Interface, op uint16, dstMAC, targetMAC net.HardwareAddr, target netip.Addr) {
	arp := &layers.ARP{
		AddrType:          layers.LinkTypeEthernet,
		Protocol:          layers.EthernetTypeIPv4,
		HwAddressSize:     6,
		ProtAddressSize:   4,
		Operation:         op,
		SourceHwAddress:   iface.nic.MAC(),
		SourceProtAddress: iface.addr.Addr().AsSlice(),
		DstHwAddress:      targetMAC,
		DstProtAddress:    target.AsSlice(),
	}
	eth := &layers.Ethernet{
		SrcMAC:       iface.nic.MAC(),
		DstMAC:       dstMAC,
		EthernetType: layers.EthernetTypeARP,
	}
	frame, err := packet.Serialize(r.engine.Config().ChecksumEnabled, eth, arp)
	if err != nil {
		r.stats.DropOther++
		return
	}
	r.stats.ARPSent++
	if !iface.nic.Send(frame) {
		r.stats.DropQueue++
	}
}

// sendFrame wraps a payload into an Ethernet frame and sends it.
func (r *Router) sendFrame(iface *Interface, dstMAC net.HardwareAddr, etype layers.EthernetType, payload []byte) {
	eth := &layers.Ethernet{
		SrcMAC:       iface.nic.MAC(),
		DstMAC:       dstMAC,
		EthernetType: etype,
	}
	frame, err := packet.Serialize(r.engine.Config().ChecksumEnabled, eth, gopacket.Payload(payload))
	if err != nil {
		r.stats.DropOther++
		return
	}
	if !iface.nic.Send(frame) {
		r.stats.DropQueue++
	}
}
