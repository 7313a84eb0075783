// SPDX-License-Identifier: GPL-3.0-or-later

package link

import (
	"bytes"
	"net"
	"time"

	"github.com/iti/rngstream"
	"github.com/rbmk-project/chainemu/netsim/packet"
)

// MaxBackoffRetries is the number of times a device backs off before
// dropping the frame at the head of its queue.
const MaxBackoffRetries = 1000

// maxBackoffExponent bounds the backoff window.
const maxBackoffExponent = 10

// DeviceStats contains the device counters.
type DeviceStats struct {
	// TxFrames is the number of transmitted frames.
	TxFrames uint64

	// TxDrops is the number of frames dropped by the transmit queue.
	TxDrops uint64

	// RxFrames is the number of frames handed to the receive callback.
	RxFrames uint64

	// RxFiltered is the number of frames filtered by destination MAC.
	RxFiltered uint64

	// Backoffs is the number of times the device found the medium busy.
	Backoffs uint64
}

// Device is a network interface attached to a [*Channel].
//
// Construct using [*Channel.Attach].
type Device struct {
	// attempts is the number of backoffs for the head of the queue.
	attempts int

	// ch is the channel.
	ch *Channel

	// mac is the device MAC address.
	mac net.HardwareAddr

	// name is the device name.
	name string

	// promiscuous disables destination MAC filtering.
	promiscuous bool

	// queue is the transmit queue.
	queue [][]byte

	// rng is the backoff random number generator.
	rng *rngstream.RngStream

	// rx is the receive callback.
	rx func(frame []byte)

	// stats contains the counters.
	stats DeviceStats

	// transmitting is true while the transmit process is active.
	transmitting bool
}

func newDevice(ch *Channel, name string, mac net.HardwareAddr) *Device {
	return &Device{
		ch:   ch,
		mac:  mac,
		name: name,
		rng:  rngstream.New(name),
	}
}

// Name returns the device name.
func (d *Device) Name() string {
	return d.name
}

// MAC returns the device MAC address.
func (d *Device) MAC() net.HardwareAddr {
	return d.mac
}

// Channel returns the channel the device is attached to.
func (d *Device) Channel() *Channel {
	return d.ch
}

// Stats returns the device counters.
func (d *Device) Stats() DeviceStats {
	return d.stats
}

// SetPromiscuous enables or disables receiving all frames.
func (d *Device) SetPromiscuous(value bool) {
	d.promiscuous = value
}

// SetReceiveCallback sets the function receiving frames. The callback
// owns the frame and must not retain references to it after modifying it.
func (d *Device) SetReceiveCallback(fn func(frame []byte)) {
	d.rx = fn
}

// Send enqueues a frame for transmission. It returns false if the
// transmit queue is full and the frame has been dropped.
func (d *Device) Send(frame []byte) bool {
	if len(d.queue) >= d.ch.config.QueueSize {
		d.stats.TxDrops++
		return false
	}
	d.queue = append(d.queue, frame)
	if !d.transmitting {
		d.transmitting = true
		d.tryTransmit()
	}
	return true
}

// tryTransmit transmits the frame at the head of the queue or
// backs off if the medium is busy.
func (d *Device) tryTransmit() {
	if len(d.queue) <= 0 {
		d.transmitting = false
		return
	}

	if !d.ch.idle() {
		d.backoff()
		return
	}

	frame := d.queue[0]
	d.queue[0] = nil
	d.queue = d.queue[1:]
	d.attempts = 0
	d.stats.TxFrames++
	busy := d.ch.transmit(d, frame)
	d.ch.sched.Schedule(busy, d.tryTransmit)
}

// backoff waits for the medium to become idle plus a random
// number of slots before trying again.
func (d *Device) backoff() {
	d.stats.Backoffs++
	d.attempts++
	if d.attempts > MaxBackoffRetries {
		d.queue[0] = nil
		d.queue = d.queue[1:]
		d.attempts = 0
		d.stats.TxDrops++
		d.ch.sched.Schedule(0, d.tryTransmit)
		return
	}
	window := 1<<min(d.attempts, maxBackoffExponent) - 1
	slots := d.rng.RandInt(0, window)
	wait := d.ch.busyUntil - d.ch.sched.Now() + time.Duration(slots)*d.ch.config.SlotTime
	d.ch.sched.Schedule(wait, d.tryTransmit)
}

// receive handles a frame delivered by the channel.
func (d *Device) receive(frame []byte) {
	if !d.promiscuous {
		dst, ok := packet.DstMAC(frame)
		if !ok || !d.accepts(dst) {
			d.stats.RxFiltered++
			return
		}
	}
	d.stats.RxFrames++
	if d.rx != nil {
		d.rx(bytes.Clone(frame))
	}
}

// accepts returns whether the device accepts frames for dst.
func (d *Device) accepts(dst net.HardwareAddr) bool {
	return bytes.Equal(dst, d.mac) || bytes.Equal(dst, packet.BroadcastMAC) || dst[0]&0x01 != 0
}
