// SPDX-License-Identifier: GPL-3.0-or-later

package topology

import (
	"fmt"
	"log/slog"
	"net/netip"

	"github.com/rbmk-project/chainemu/closepool"
	"github.com/rbmk-project/chainemu/netsim"
	"github.com/rbmk-project/chainemu/netsim/dns"
	"github.com/rbmk-project/chainemu/netsim/router"
)

// Role is the role of an [*Endpoint].
type Role int

const (
	// OSBridge is an endpoint relaying frames to an OS interface.
	OSBridge Role = iota

	// Router is an endpoint forwarding IPv4 packets.
	Router
)

// String returns the string representation of the role.
func (r Role) String() string {
	switch r {
	case OSBridge:
		return "OSBridge"
	case Router:
		return "Router"
	default:
		return fmt.Sprintf("Role(%d)", int(r))
	}
}

// Endpoint is a node of the [*Chain].
type Endpoint struct {
	devices []*Device
	index   int
	name    string
	role    Role
	router  *router.Router
}

// Index returns the position of the endpoint along the chain.
func (ep *Endpoint) Index() int {
	return ep.index
}

// Name returns the endpoint name.
func (ep *Endpoint) Name() string {
	return ep.name
}

// Role returns the endpoint role.
func (ep *Endpoint) Role() Role {
	return ep.role
}

// Router returns the network stack of a [Router] endpoint or nil.
func (ep *Endpoint) Router() *router.Router {
	return ep.router
}

// Devices returns the endpoint devices in link order.
func (ep *Endpoint) Devices() []*Device {
	return ep.devices
}

// Side identifies one of the two OS-facing ends of the [*Chain].
type Side int

const (
	// Left is the side of the first endpoint.
	Left Side = iota

	// Right is the side of the last endpoint.
	Right
)

// Sides contains both sides in order.
var Sides = [2]Side{Left, Right}

// String returns the string representation of the side.
func (s Side) String() string {
	switch s {
	case Left:
		return "left"
	case Right:
		return "right"
	default:
		return fmt.Sprintf("Side(%d)", int(s))
	}
}

// Chain is the ordered sequence of endpoints and links built by [*Builder].
type Chain struct {
	engine    *netsim.Engine
	endpoints []*Endpoint
	links     []*Link
	logger    *slog.Logger
	names     *dns.Database
	pool      closepool.Pool
	populated bool
	taps      [2]*Device
}

// Engine returns the simulation engine.
func (c *Chain) Engine() *netsim.Engine {
	return c.engine
}

// Endpoints returns all the endpoints in chain order.
func (c *Chain) Endpoints() []*Endpoint {
	return c.endpoints
}

// Links returns all the links in chain order.
func (c *Chain) Links() []*Link {
	return c.links
}

// Routers returns the [Router] endpoints in chain order.
func (c *Chain) Routers() []*Endpoint {
	var out []*Endpoint
	for _, ep := range c.endpoints {
		if ep.role == Router {
			out = append(out, ep)
		}
	}
	return out
}

// Taps returns the non-router devices of the first and last links.
func (c *Chain) Taps() [2]*Device {
	return c.taps
}

// Tap returns the tap device of the given side.
func (c *Chain) Tap(side Side) *Device {
	return c.taps[side]
}

// Gateway returns the address of the router device facing the given side.
func (c *Chain) Gateway(side Side) netip.Prefix {
	addr, _ := c.taps[side].Peer().Addr()
	return addr
}

// HostAddr returns the address reserved for the OS host behind the
// given side, which is the first free host of the tap link subnet.
func (c *Chain) HostAddr(side Side) netip.Prefix {
	return c.taps[side].link.subnet.Host(2)
}

// Names returns the name service database or nil.
func (c *Chain) Names() *dns.Database {
	return c.names
}

// Close closes the attached bridges and logs the router counters.
//
// This method is idempotent.
func (c *Chain) Close() error {
	err := c.pool.Close()
	for _, ep := range c.Routers() {
		ep.router.LogStats()
	}
	return err
}
