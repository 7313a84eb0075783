// SPDX-License-Identifier: GPL-3.0-or-later

package router

import (
	"bytes"
	"log/slog"
	"net"
	"net/netip"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/rbmk-project/chainemu/netsim/packet"
)

// DefaultTTL is the TTL of the datagrams originated by a [*Router].
const DefaultTTL = 64

// dnsPort is the port where routers answer DNS queries.
const dnsPort = 53

// Stats contains the router counters.
type Stats struct {
	RxFrames     uint64
	Forwarded    uint64
	Delivered    uint64
	ICMPSent     uint64
	ARPSent      uint64
	DNSAnswered  uint64
	DropChecksum uint64
	DropTTL      uint64
	DropNoRoute  uint64
	DropARP      uint64
	DropQueue    uint64
	DropOther    uint64
}

// receive handles a frame received by iface.
func (r *Router) receive(iface *Interface, frame []byte) {
	r.stats.RxFrames++
	pkt, err := packet.Decode(frame)
	if err != nil {
		r.stats.DropOther++
		return
	}
	switch {
	case pkt.ARP != nil:
		r.handleARP(iface, pkt.ARP)
	case pkt.IPv4 != nil:
		r.handleIPv4(iface, pkt)
	default:
		r.stats.DropOther++
	}
}

// handleIPv4 processes an incoming IPv4 datagram.
func (r *Router) handleIPv4(iface *Interface, pkt *packet.Packet) {
	if r.engine.Config().ChecksumEnabled && !packet.IPv4ChecksumValid(pkt.IPv4) {
		r.stats.DropChecksum++
		r.logDrop("badChecksum", pkt)
		return
	}
	if r.isLocal(pkt.DstAddr()) {
		r.deliver(iface, pkt)
		return
	}
	r.forward(iface, pkt)
}

// forward forwards a transit datagram.
func (r *Router) forward(iface *Interface, pkt *packet.Packet) {
	ip := pkt.IPv4
	if ip.TTL <= 1 {
		r.stats.DropTTL++
		r.logDrop("ttlExceeded", pkt)
		r.sendICMPError(iface, pkt, layers.ICMPv4TypeTimeExceeded, layers.ICMPv4CodeTTLExceeded)
		return
	}

	dst := pkt.DstAddr()
	route, found := r.Lookup(dst)
	if !found {
		r.stats.DropNoRoute++
		r.logDrop("noRoute", pkt)
		r.sendICMPError(iface, pkt, layers.ICMPv4TypeDestinationUnreachable, layers.ICMPv4CodeNet)
		return
	}

	ip.TTL--
	datagram, err := packet.Serialize(r.engine.Config().ChecksumEnabled, ip, gopacket.Payload(ip.Payload))
	if err != nil {
		r.stats.DropOther++
		return
	}
	r.stats.Forwarded++
	r.output(r.ifaces[route.Interface], nextHop(route, dst), datagram)
}

// nextHop returns the address to resolve to reach dst using route.
func nextHop(route Route, dst netip.Addr) netip.Addr {
	if route.Connected() {
		return dst
	}
	return route.Gateway
}

// deliver processes a datagram addressed to the router itself.
func (r *Router) deliver(iface *Interface, pkt *packet.Packet) {
	r.stats.Delivered++
	unicast := r.isUnicastLocal(pkt.DstAddr())
	switch {
	case pkt.ICMPv4 != nil:
		if unicast && pkt.ICMPv4.TypeCode.Type() == layers.ICMPv4TypeEchoRequest {
			r.sendEchoReply(pkt)
		}
	case pkt.UDP != nil && pkt.UDP.DstPort == dnsPort && r.dns != nil:
		r.answerDNS(iface, pkt)
	case pkt.UDP != nil && unicast:
		r.sendICMPError(iface, pkt, layers.ICMPv4TypeDestinationUnreachable, layers.ICMPv4CodePort)
	}
}

// isUnicastLocal returns whether addr is one of the interface addresses.
func (r *Router) isUnicastLocal(addr netip.Addr) bool {
	for _, iface := range r.ifaces {
		if iface.addr.Addr() == addr {
			return true
		}
	}
	return false
}

// sendEchoReply answers an ICMP echo request.
func (r *Router) sendEchoReply(pkt *packet.Packet) {
	icmp := &layers.ICMPv4{
		TypeCode: layers.CreateICMPv4TypeCode(layers.ICMPv4TypeEchoReply, 0),
		Id:       pkt.ICMPv4.Id,
		Seq:      pkt.ICMPv4.Seq,
	}
	r.stats.ICMPSent++
	r.sendIPv4(pkt.DstAddr(), pkt.SrcAddr(), layers.IPProtocolICMPv4,
		icmp, gopacket.Payload(bytes.Clone(pkt.ICMPv4.Payload)))
}

// isICMPError returns whether the given ICMP type is an error message.
func isICMPError(typ uint8) bool {
	switch typ {
	case layers.ICMPv4TypeDestinationUnreachable,
		layers.ICMPv4TypeSourceQuench,
		layers.ICMPv4TypeRedirect,
		layers.ICMPv4TypeTimeExceeded,
		layers.ICMPv4TypeParameterProblem:
		return true
	default:
		return false
	}
}

// sendICMPError sends an ICMP error about pkt back to its source using
// the address of the interface that received pkt.
func (r *Router) sendICMPError(iface *Interface, pkt *packet.Packet, typ, code uint8) {
	if pkt.ICMPv4 != nil && isICMPError(pkt.ICMPv4.TypeCode.Type()) {
		return
	}
	src := pkt.SrcAddr()
	if !src.IsValid() || src.IsUnspecified() || src.IsMulticast() || r.isLocal(src) {
		return
	}
	if pkt.IPv4.FragOffset != 0 {
		return
	}
	ip := pkt.IPv4
	quote := append(bytes.Clone(ip.Contents), ip.Payload[:min(8, len(ip.Payload))]...)
	icmp := &layers.ICMPv4{
		TypeCode: layers.CreateICMPv4TypeCode(typ, code),
	}
	r.stats.ICMPSent++
	r.sendIPv4(iface.addr.Addr(), src, layers.IPProtocolICMPv4, icmp, gopacket.Payload(quote))
}

// answerDNS answers a DNS query using the router name service.
func (r *Router) answerDNS(iface *Interface, pkt *packet.Packet) {
	response, ok := r.dns.Handle(pkt.UDP.Payload)
	if !ok {
		return
	}
	src := pkt.DstAddr()
	if !r.isUnicastLocal(src) {
		src = iface.addr.Addr()
	}
	udp := &layers.UDP{
		SrcPort: dnsPort,
		DstPort: pkt.UDP.SrcPort,
	}
	r.stats.DNSAnswered++
	r.sendIPv4(src, pkt.SrcAddr(), layers.IPProtocolUDP, udp, gopacket.Payload(response))
}

// sendIPv4 originates a datagram from src to dst.
func (r *Router) sendIPv4(src, dst netip.Addr, proto layers.IPProtocol, upper ...gopacket.SerializableLayer) {
	route, found := r.Lookup(dst)
	if !found {
		r.stats.DropNoRoute++
		return
	}
	ip := &layers.IPv4{
		Version:  4,
		TTL:      DefaultTTL,
		Id:       r.nextIPID(),
		Protocol: proto,
		SrcIP:    net.IP(src.AsSlice()),
		DstIP:    net.IP(dst.AsSlice()),
	}
	for _, layer := range upper {
		if udp, ok := layer.(*layers.UDP); ok {
			_ = udp.SetNetworkLayerForChecksum(ip)
		}
	}
	all := append([]gopacket.SerializableLayer{ip}, upper...)
	datagram, err := packet.Serialize(r.engine.Config().ChecksumEnabled, all...)
	if err != nil {
		r.stats.DropOther++
		return
	}
	r.output(r.ifaces[route.Interface], nextHop(route, dst), datagram)
}

// logDrop logs a dropped datagram.
func (r *Router) logDrop(reason string, pkt *packet.Packet) {
	if r.Logger != nil {
		r.Logger.Debug(
			"packetDropped",
			slog.String("router", r.name),
			slog.String("reason", reason),
			slog.String("packet", pkt.String()),
		)
	}
}
