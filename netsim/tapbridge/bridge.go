// SPDX-License-Identifier: GPL-3.0-or-later

// Package tapbridge relays raw Ethernet frames between a simulated
// device and an OS TAP interface.
//
// A [*Bridge] runs two goroutines. The reader goroutine reads frames
// from the OS and hands them to the simulation using the goroutine-safe
// [*netsim.Engine.ScheduleNow]. The writer goroutine writes to the OS
// the frames the simulated device receives. The simulated device is
// promiscuous, so that frames addressed to the hosts behind the TAP
// interface reach the OS.
//
// Use [*Factory] to open bridges attached to real TAP interfaces and
// [New] to attach a bridge to any [io.ReadWriteCloser].
package tapbridge

import (
	"bytes"
	"errors"
	"io"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"

	"github.com/rbmk-project/chainemu/errclass"
	"github.com/rbmk-project/chainemu/netsim"
	"github.com/rbmk-project/chainemu/netsim/link"
)

// Device is the simulated device as seen by a [*Bridge].
type Device interface {
	Send(frame []byte) bool
	SetPromiscuous(value bool)
	SetReceiveCallback(fn func(frame []byte))
}

var _ Device = &link.Device{}

// Scheduler is the [*netsim.Engine] as seen by a [*Bridge].
type Scheduler interface {
	ScheduleNow(fn func())
}

var _ Scheduler = &netsim.Engine{}

// MaxFrameSize is the size of the buffer used to read frames.
const MaxFrameSize = 65536

// DefaultWriteQueueSize is the number of frames buffered towards the OS.
const DefaultWriteQueueSize = 256

// Stats contains the bridge counters.
type Stats struct {
	// FromOS is the number of frames read from the OS.
	FromOS uint64

	// ToOS is the number of frames written to the OS.
	ToOS uint64

	// Dropped is the number of frames dropped towards the OS.
	Dropped uint64
}

// Bridge relays frames between a [Device] and an OS interface.
//
// Construct using [New] or [*Factory.Open].
type Bridge struct {
	// Logger is the optional structured logger.
	Logger *slog.Logger

	// closeOnce ensures we close just once.
	closeOnce sync.Once

	// dev is the simulated device.
	dev Device

	// done is closed by Close.
	done chan struct{}

	// dropped counts the frames dropped towards the OS.
	dropped atomic.Uint64

	// fromOS counts the frames read from the OS.
	fromOS atomic.Uint64

	// name is the OS interface name.
	name string

	// out contains the frames to write to the OS.
	out chan []byte

	// rwc is the OS interface.
	rwc io.ReadWriteCloser

	// sched is the scheduler.
	sched Scheduler

	// toOS counts the frames written to the OS.
	toOS atomic.Uint64

	// wg tracks the background goroutines.
	wg sync.WaitGroup
}

// New creates a [*Bridge] relaying frames between dev and rwc, which
// must preserve frame boundaries like a TAP interface does, and starts
// the background goroutines. Use Close to stop them.
func New(sched Scheduler, dev Device, name string, rwc io.ReadWriteCloser, logger *slog.Logger) *Bridge {
	b := &Bridge{
		Logger: logger,
		dev:    dev,
		done:   make(chan struct{}),
		name:   name,
		out:    make(chan []byte, DefaultWriteQueueSize),
		rwc:    rwc,
		sched:  sched,
	}
	dev.SetPromiscuous(true)
	dev.SetReceiveCallback(b.enqueue)
	b.wg.Add(2)
	go b.readLoop()
	go b.writeLoop()
	return b
}

// Name returns the OS interface name.
func (b *Bridge) Name() string {
	return b.name
}

// Stats returns the bridge counters.
//
// This method is goroutine safe.
func (b *Bridge) Stats() Stats {
	return Stats{
		FromOS:  b.fromOS.Load(),
		ToOS:    b.toOS.Load(),
		Dropped: b.dropped.Load(),
	}
}

// enqueue hands a frame received by the device to the writer
// without blocking the engine goroutine.
func (b *Bridge) enqueue(frame []byte) {
	select {
	case <-b.done:
		b.dropped.Add(1)
		return
	default:
	}
	select {
	case b.out <- frame:
	default:
		b.dropped.Add(1)
	}
}

// readLoop reads frames from the OS until EOF or Close.
func (b *Bridge) readLoop() {
	defer b.wg.Done()
	buffer := make([]byte, MaxFrameSize)
	for {
		count, err := b.rwc.Read(buffer)
		if err != nil {
			b.logIOError("bridgeReadError", err)
			return
		}
		frame := bytes.Clone(buffer[:count])
		b.fromOS.Add(1)
		b.sched.ScheduleNow(func() {
			b.dev.Send(frame)
		})
	}
}

// writeLoop writes frames to the OS until Close.
func (b *Bridge) writeLoop() {
	defer b.wg.Done()
	for {
		select {
		case <-b.done:
			return
		case frame := <-b.out:
			if _, err := b.rwc.Write(frame); err != nil {
				b.logIOError("bridgeWriteError", err)
				b.dropped.Add(1)
				continue
			}
			b.toOS.Add(1)
		}
	}
}

// logIOError logs I/O errors not caused by closing the bridge.
func (b *Bridge) logIOError(msg string, err error) {
	select {
	case <-b.done:
		return
	default:
	}
	if b.Logger != nil && !errors.Is(err, os.ErrClosed) {
		b.Logger.Warn(
			msg,
			slog.String("ifname", b.name),
			slog.Any("err", err),
			slog.String("errClass", errclass.New(err)),
		)
	}
}

// Close stops relaying frames, closes the OS interface, and
// waits for the background goroutines to terminate.
//
// This method is idempotent.
func (b *Bridge) Close() (err error) {
	b.closeOnce.Do(func() {
		close(b.done)
		err = b.rwc.Close()
		b.wg.Wait()
		if b.Logger != nil {
			stats := b.Stats()
			b.Logger.Info(
				"bridgeClosed",
				slog.String("ifname", b.name),
				slog.Uint64("fromOS", stats.FromOS),
				slog.Uint64("toOS", stats.ToOS),
				slog.Uint64("dropped", stats.Dropped),
				slog.Any("err", err),
				slog.String("errClass", errclass.New(err)),
			)
		}
	})
	return
}
