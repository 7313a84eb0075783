// SPDX-License-Identifier: GPL-3.0-or-later

// Package link models a shared-medium network link.
//
// A [*Channel] is a half-duplex broadcast medium with a data rate and a
// propagation delay. Each [*Device] attached to the channel owns a
// drop-tail transmit queue. A frame occupies the medium for its
// transmission time plus the propagation delay and is then delivered to
// every other device attached to the channel. A device finding the medium
// busy backs off for a random number of slots.
//
// All the methods must be called from the engine goroutine.
package link

import (
	"log/slog"
	"net"
	"time"

	"github.com/rbmk-project/chainemu/netsim"
)

// Scheduler is the [*netsim.Engine] as seen by this package.
type Scheduler interface {
	Now() time.Duration
	Schedule(delay time.Duration, fn func()) *netsim.Event
}

var _ Scheduler = &netsim.Engine{}

// DefaultQueueSize is the default transmit queue size in frames.
const DefaultQueueSize = 100

// DefaultSlotTime is the default backoff slot time.
const DefaultSlotTime = time.Microsecond

// Config configures a [*Channel].
type Config struct {
	// DataRate is the channel data rate.
	DataRate DataRate

	// Delay is the propagation delay.
	Delay time.Duration

	// QueueSize is the per-device transmit queue size. Zero means
	// using the [DefaultQueueSize].
	QueueSize int

	// SlotTime is the backoff slot time. Zero means using the
	// [DefaultSlotTime].
	SlotTime time.Duration
}

// Channel is a shared half-duplex medium.
//
// The zero value is not ready to use; construct using [NewChannel].
type Channel struct {
	// Logger is the optional structured logger.
	Logger *slog.Logger

	// Name is the channel name used when logging.
	Name string

	// busyUntil is the simulated time when the medium becomes idle.
	busyUntil time.Duration

	// config is the channel configuration.
	config Config

	// devices contains the attached devices.
	devices []*Device

	// sched is the scheduler.
	sched Scheduler
}

// NewChannel creates a new [*Channel].
func NewChannel(sched Scheduler, config *Config) *Channel {
	cfg := *config
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultQueueSize
	}
	if cfg.SlotTime <= 0 {
		cfg.SlotTime = DefaultSlotTime
	}
	return &Channel{config: cfg, sched: sched}
}

// Config returns the channel configuration.
func (c *Channel) Config() Config {
	return c.config
}

// Devices returns the attached devices in attach order.
func (c *Channel) Devices() []*Device {
	return c.devices
}

// Attach creates a new [*Device] with the given name and MAC address
// and attaches it to the channel.
func (c *Channel) Attach(name string, mac net.HardwareAddr) *Device {
	dev := newDevice(c, name, mac)
	c.devices = append(c.devices, dev)
	return dev
}

// idle returns whether the medium is idle.
func (c *Channel) idle() bool {
	return c.sched.Now() >= c.busyUntil
}

// transmit occupies the medium with a frame sent by src and schedules
// its delivery. It returns the time after which the medium is idle.
func (c *Channel) transmit(src *Device, frame []byte) time.Duration {
	busy := c.config.DataRate.TxTime(len(frame)) + c.config.Delay
	c.busyUntil = c.sched.Now() + busy
	c.sched.Schedule(busy, func() {
		for _, dst := range c.devices {
			if dst != src {
				dst.receive(frame)
			}
		}
	})
	if c.Logger != nil {
		c.Logger.Debug(
			"frameTransmitted",
			slog.String("channel", c.Name),
			slog.String("device", src.name),
			slog.Int("size", len(frame)),
			slog.Duration("busy", busy),
		)
	}
	return busy
}
