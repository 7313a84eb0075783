// SPDX-License-Identifier: GPL-3.0-or-later

// Package router models an IPv4 router attached to simulated links.
//
// A [*Router] owns one [*Interface] per attached [NIC]. It answers ARP
// for its interface addresses, resolves next hops using ARP, forwards
// IPv4 packets decrementing their TTL, answers ICMP echo requests, emits
// ICMP time exceeded and destination unreachable errors, and optionally
// answers DNS queries for the chain names.
//
// All the methods must be called from the engine goroutine or
// before the engine starts running.
package router

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/netip"
	"time"

	"github.com/rbmk-project/chainemu/netipx"
	"github.com/rbmk-project/chainemu/netsim"
	"github.com/rbmk-project/chainemu/netsim/dns"
	"github.com/rbmk-project/chainemu/netsim/link"
	"github.com/rbmk-project/common/runtimex"
)

// NIC is the network interface card as seen by a [*Router].
type NIC interface {
	MAC() net.HardwareAddr
	Name() string
	Send(frame []byte) bool
	SetReceiveCallback(fn func(frame []byte))
}

var _ NIC = &link.Device{}

// Engine is the [*netsim.Engine] as seen by a [*Router].
type Engine interface {
	Config() netsim.Config
	Now() time.Duration
	Schedule(delay time.Duration, fn func()) *netsim.Event
}

var _ Engine = &netsim.Engine{}

// ErrGatewayUnreachable indicates that a route gateway is not
// inside any directly connected subnet.
var ErrGatewayUnreachable = errors.New("gateway not directly reachable")

// Interface is a router interface.
type Interface struct {
	// addr is the interface address with the subnet prefix length.
	addr netip.Prefix

	// arp is the ARP cache.
	arp *arpCache

	// index is the interface index.
	index int

	// nic is the underlying network card.
	nic NIC
}

// Addr returns the interface address with the subnet prefix length.
func (iface *Interface) Addr() netip.Prefix {
	return iface.addr
}

// Index returns the interface index inside its router.
func (iface *Interface) Index() int {
	return iface.index
}

// NIC returns the underlying network card.
func (iface *Interface) NIC() NIC {
	return iface.nic
}

// Route is an entry of the routing table.
type Route struct {
	// Destination is the destination subnet.
	Destination netip.Prefix

	// Gateway is the next hop or the zero value for connected routes.
	Gateway netip.Addr

	// Interface is the outgoing interface index.
	Interface int
}

// Connected returns whether the route is a connected route.
func (rt Route) Connected() bool {
	return !rt.Gateway.IsValid()
}

// String returns the string representation of the route.
func (rt Route) String() string {
	if rt.Connected() {
		return fmt.Sprintf("%s dev %d", rt.Destination, rt.Interface)
	}
	return fmt.Sprintf("%s via %s dev %d", rt.Destination, rt.Gateway, rt.Interface)
}

// Router is a simulated IPv4 router.
//
// The zero value is not ready to use; construct using [New].
type Router struct {
	// Logger is the optional structured logger for emitting
	// structured diagnostic events. If this field is nil, we
	// will not be emitting structured logs.
	Logger *slog.Logger

	// dns is the optional name service.
	dns *dns.Database

	// engine is the simulation engine.
	engine Engine

	// ifaces contains the interfaces.
	ifaces []*Interface

	// ipid is the next IPv4 identification.
	ipid uint16

	// name is the router name.
	name string

	// routes contains the installed routes.
	routes []Route

	// stats contains the counters.
	stats Stats
}

// New creates a new [*Router] without interfaces.
func New(engine Engine, name string) *Router {
	return &Router{engine: engine, name: name}
}

// Name returns the router name.
func (r *Router) Name() string {
	return r.name
}

// SetDNS enables answering DNS queries using the given database.
func (r *Router) SetDNS(db *dns.Database) {
	r.dns = db
}

// Stats returns the router counters.
func (r *Router) Stats() Stats {
	return r.stats
}

// Interfaces returns the interfaces in creation order.
func (r *Router) Interfaces() []*Interface {
	return r.ifaces
}

// Addrs returns the addresses of all the interfaces.
func (r *Router) Addrs() []netip.Addr {
	var out []netip.Addr
	for _, iface := range r.ifaces {
		out = append(out, iface.addr.Addr())
	}
	return out
}

// AddInterface attaches the router to the given NIC using the given
// interface address (e.g., 172.20.0.1/24) and returns the interface.
func (r *Router) AddInterface(nic NIC, addr netip.Prefix) *Interface {
	runtimex.Assert(addr.Addr().Is4(), "router interfaces must be IPv4")
	iface := &Interface{
		addr:  addr,
		arp:   newARPCache(),
		index: len(r.ifaces),
		nic:   nic,
	}
	r.ifaces = append(r.ifaces, iface)
	nic.SetReceiveCallback(func(frame []byte) {
		r.receive(iface, frame)
	})
	return iface
}

// AddRoute installs a route to dst via the given gateway, which must
// belong to a directly connected subnet.
func (r *Router) AddRoute(dst netip.Prefix, gateway netip.Addr) error {
	for _, iface := range r.ifaces {
		if iface.addr.Masked().Contains(gateway) {
			r.routes = append(r.routes, Route{
				Destination: dst.Masked(),
				Gateway:     gateway,
				Interface:   iface.index,
			})
			if r.Logger != nil {
				r.Logger.Debug(
					"routeAdded",
					slog.String("router", r.name),
					slog.String("dst", dst.Masked().String()),
					slog.String("gateway", gateway.String()),
					slog.Int("ifIndex", iface.index),
				)
			}
			return nil
		}
	}
	return fmt.Errorf("%w: %s on %s", ErrGatewayUnreachable, gateway, r.name)
}

// Routes returns the connected routes followed by the installed routes.
func (r *Router) Routes() []Route {
	var out []Route
	for _, iface := range r.ifaces {
		out = append(out, Route{Destination: iface.addr.Masked(), Interface: iface.index})
	}
	return append(out, r.routes...)
}

// Lookup returns the longest-prefix match for dst.
func (r *Router) Lookup(dst netip.Addr) (Route, bool) {
	var (
		best  Route
		found bool
	)
	for _, rt := range r.Routes() {
		if rt.Destination.Contains(dst) && (!found || rt.Destination.Bits() > best.Destination.Bits()) {
			best, found = rt, true
		}
	}
	return best, found
}

// isLocal returns whether dst is one of our addresses or a
// broadcast address we should accept.
func (r *Router) isLocal(dst netip.Addr) bool {
	if dst == netip.AddrFrom4([4]byte{255, 255, 255, 255}) {
		return true
	}
	for _, iface := range r.ifaces {
		if iface.addr.Addr() == dst {
			return true
		}
		if bcast, ok := netipx.Broadcast(iface.addr); ok && bcast == dst {
			return true
		}
	}
	return false
}

// nextIPID returns the next IPv4 identification.
func (r *Router) nextIPID() uint16 {
	r.ipid++
	return r.ipid
}

// LogStats emits the router counters.
func (r *Router) LogStats() {
	if r.Logger == nil {
		return
	}
	r.Logger.Info(
		"routerStats",
		slog.String("router", r.name),
		slog.Uint64("rxFrames", r.stats.RxFrames),
		slog.Uint64("forwarded", r.stats.Forwarded),
		slog.Uint64("delivered", r.stats.Delivered),
		slog.Uint64("icmpSent", r.stats.ICMPSent),
		slog.Uint64("dnsAnswered", r.stats.DNSAnswered),
		slog.Uint64("dropChecksum", r.stats.DropChecksum),
		slog.Uint64("dropTTL", r.stats.DropTTL),
		slog.Uint64("dropNoRoute", r.stats.DropNoRoute),
		slog.Uint64("dropARP", r.stats.DropARP),
		slog.Uint64("dropQueue", r.stats.DropQueue),
		slog.Uint64("dropOther", r.stats.DropOther),
	)
}
