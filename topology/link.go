// SPDX-License-Identifier: GPL-3.0-or-later

package topology

import (
	"fmt"
	"log/slog"
	"net/netip"
	"time"

	"github.com/rbmk-project/chainemu/netsim"
	"github.com/rbmk-project/chainemu/netsim/link"
	"github.com/rbmk-project/chainemu/netsim/tapbridge"
	"github.com/rbmk-project/common/runtimex"
)

// Device is the network interface of an [*Endpoint] on a [*Link].
type Device struct {
	addr     netip.Prefix
	bridge   *tapbridge.Bridge
	endpoint *Endpoint
	link     *Link
	nic      *link.Device
}

// Endpoint returns the endpoint owning the device.
func (d *Device) Endpoint() *Endpoint {
	return d.endpoint
}

// Link returns the link the device is attached to.
func (d *Device) Link() *Link {
	return d.link
}

// NIC returns the simulated network card.
func (d *Device) NIC() *link.Device {
	return d.nic
}

// Addr returns the device address with prefix length, if any.
func (d *Device) Addr() (netip.Prefix, bool) {
	return d.addr, d.addr.IsValid()
}

// Addressed returns whether the device has an address.
func (d *Device) Addressed() bool {
	return d.addr.IsValid()
}

// Bridge returns the attached bridge or nil.
func (d *Device) Bridge() *tapbridge.Bridge {
	return d.bridge
}

// Peer returns the other device on the same link.
func (d *Device) Peer() *Device {
	if d.link.devices[0] == d {
		return d.link.devices[1]
	}
	return d.link.devices[0]
}

// Link is a point-to-point link between two endpoints.
type Link struct {
	channel *link.Channel
	devices [2]*Device
	index   int
	subnet  SubnetBlock
}

// Index returns the link index along the chain.
func (l *Link) Index() int {
	return l.index
}

// Devices returns the two devices, ordered as the endpoints
// passed to [*LinkFactory.Create].
func (l *Link) Devices() [2]*Device {
	return l.devices
}

// Subnet returns the subnet block assigned to the link.
func (l *Link) Subnet() SubnetBlock {
	return l.subnet
}

// DataRate returns the link data rate.
func (l *Link) DataRate() link.DataRate {
	return l.channel.Config().DataRate
}

// Delay returns the link propagation delay.
func (l *Link) Delay() time.Duration {
	return l.channel.Config().Delay
}

// LinkFactory creates links using the shared-medium channel model.
type LinkFactory struct {
	// Config is the channel configuration.
	Config link.Config

	// Engine is the simulation engine.
	Engine *netsim.Engine

	// Logger is the optional structured logger.
	Logger *slog.Logger
}

// Create creates the link with the given index between two distinct
// endpoints. The first device belongs to a, the second to b.
func (f *LinkFactory) Create(index int, a, b *Endpoint) *Link {
	runtimex.Assert(a != b, "links need two distinct endpoints")
	ch := link.NewChannel(f.Engine, &f.Config)
	ch.Name = fmt.Sprintf("link%d", index)
	ch.Logger = f.Logger
	lnk := &Link{channel: ch, index: index}
	for idx, ep := range [2]*Endpoint{a, b} {
		name := fmt.Sprintf("%s/%s", ep.name, ch.Name)
		lnk.devices[idx] = &Device{
			endpoint: ep,
			link:     lnk,
			nic:      ch.Attach(name, f.Engine.NewMAC()),
		}
	}
	if f.Logger != nil {
		f.Logger.Debug(
			"linkCreated",
			slog.Int("link", index),
			slog.String("a", a.name),
			slog.String("b", b.name),
			slog.String("dataRate", f.Config.DataRate.String()),
			slog.Duration("delay", f.Config.Delay),
		)
	}
	return lnk
}
