//
// SPDX-License-Identifier: GPL-3.0-or-later
//
// Simulation engine.
//

package netsim

import (
	"container/heap"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rbmk-project/chainemu/errclass"
	"github.com/rbmk-project/common/runtimex"
)

var (
	// ErrAlreadyRun is returned when running an [*Engine] twice.
	ErrAlreadyRun = errors.New("engine already run")

	// ErrHardLimit is returned when a real-time run configured with
	// [SyncHardLimit] falls too far behind the wall clock.
	ErrHardLimit = errclass.Sentinel(errclass.EHARD_LIMIT, "real-time hard limit exceeded")
)

// Engine states.
const (
	stateIdle = int32(iota)
	stateRunning
	stateDone
	stateDestroyed
)

// Stats contains statistics about an [*Engine] run.
type Stats struct {
	// Events is the number of events that have run.
	Events uint64

	// MaxLag is the maximum real-time lag observed.
	MaxLag time.Duration
}

// Engine is a discrete-event simulation engine.
//
// The zero value is not ready to use; construct using [NewEngine].
//
// All the events run on the goroutine that called Run, therefore
// simulation objects do not need to synchronize among themselves.
type Engine struct {
	// Logger is the optional structured logger for emitting
	// structured diagnostic events. If this field is nil, we
	// will not be emitting structured logs.
	Logger *slog.Logger

	// cfg is the configuration of the current run.
	cfg Config

	// inbox contains the events scheduled by other goroutines.
	inbox []func()

	// macs is the counter used to allocate MAC addresses.
	macs atomic.Uint64

	// mu protects inbox.
	mu sync.Mutex

	// now is the current simulated time.
	now time.Duration

	// queue contains the pending events.
	queue eventQueue

	// seq is the next event sequence number.
	seq uint64

	// state is the engine state.
	state atomic.Int32

	// stats contains the run statistics.
	stats Stats

	// stopped is set by the stop event.
	stopped bool

	// wakeup notifies the run loop about new inbox events.
	wakeup chan struct{}

	// wallStart is the wall clock time when the run started.
	wallStart time.Time
}

// NewEngine creates a new idle [*Engine].
func NewEngine() *Engine {
	return &Engine{
		wakeup: make(chan struct{}, 1),
	}
}

// Config returns the configuration of the current run. Before
// Run is invoked, this is the zero value.
//
// This method must be called from the engine goroutine.
func (e *Engine) Config() Config {
	return e.cfg
}

// Now returns the current simulated time.
//
// This method must be called from the engine goroutine.
func (e *Engine) Now() time.Duration {
	return e.now
}

// Started returns true once Run has been invoked.
func (e *Engine) Started() bool {
	return e.state.Load() != stateIdle
}

// Running returns true while Run is executing.
func (e *Engine) Running() bool {
	return e.state.Load() == stateRunning
}

// Stats returns the run statistics.
//
// This method must be called from the engine goroutine or after Run returned.
func (e *Engine) Stats() Stats {
	return e.stats
}

// NewMAC allocates a new, unique, locally administered MAC address.
//
// This method is goroutine safe.
func (e *Engine) NewMAC() net.HardwareAddr {
	value := e.macs.Add(1)
	runtimex.Assert(value < 1<<32, "too many MAC addresses")
	return net.HardwareAddr{
		0x02, 0x00,
		byte(value >> 24), byte(value >> 16), byte(value >> 8), byte(value),
	}
}

// Schedule schedules fn to run after the given simulated delay.
//
// This method must be called from the engine goroutine or before Run.
func (e *Engine) Schedule(delay time.Duration, fn func()) *Event {
	runtimex.Assert(delay >= 0, "negative event delay")
	return e.scheduleAt(e.now+delay, fn)
}

// scheduleAt schedules fn to run at the given simulated time.
func (e *Engine) scheduleAt(at time.Duration, fn func()) *Event {
	ev := &Event{at: at, fn: fn, seq: e.seq}
	e.seq++
	heap.Push(&e.queue, ev)
	return ev
}

// ScheduleNow schedules fn to run as soon as possible on the engine
// goroutine. In real-time mode, the event is timestamped using the
// wall clock. Events scheduled after Destroy are discarded.
//
// This method is goroutine safe.
func (e *Engine) ScheduleNow(fn func()) {
	e.mu.Lock()
	if e.state.Load() == stateDestroyed {
		e.mu.Unlock()
		return
	}
	e.inbox = append(e.inbox, fn)
	e.mu.Unlock()

	select {
	case e.wakeup <- struct{}{}:
	default:
		// a wakeup is already pending
	}
}

// Stop schedules the end of the run after the given simulated delay.
//
// This method must be called from the engine goroutine or before Run.
func (e *Engine) Stop(after time.Duration) {
	e.Schedule(after, func() {
		e.stopped = true
	})
}

// drainInbox moves the events scheduled by other goroutines into the queue.
func (e *Engine) drainInbox() {
	e.mu.Lock()
	inbox := e.inbox
	e.inbox = nil
	e.mu.Unlock()

	at := e.now
	if e.cfg.RealTime {
		at = max(at, time.Since(e.wallStart))
	}
	for _, fn := range inbox {
		e.scheduleAt(at, fn)
	}
}

// Run runs the simulation using the given configuration until the
// stop event runs, the context is done, or (when not running in real
// time) there are no more events. A nil config is equivalent to
// [RealTimeConfig]. Run may only be called once.
func (e *Engine) Run(ctx context.Context, config *Config) error {
	if !e.state.CompareAndSwap(stateIdle, stateRunning) {
		return ErrAlreadyRun
	}
	defer e.state.CompareAndSwap(stateRunning, stateDone)

	if config == nil {
		config = RealTimeConfig()
	}
	e.cfg = *config
	e.wallStart = time.Now()

	if e.Logger != nil {
		e.Logger.InfoContext(
			ctx,
			"engineStart",
			slog.Bool("realTime", e.cfg.RealTime),
			slog.Bool("checksumEnabled", e.cfg.ChecksumEnabled),
			slog.String("syncMode", e.cfg.SyncMode.String()),
			slog.Int("pendingEvents", e.queue.Len()),
		)
	}

	err := e.loop(ctx)

	if e.Logger != nil {
		e.Logger.InfoContext(
			ctx,
			"engineDone",
			slog.Any("err", err),
			slog.String("errClass", errclass.New(err)),
			slog.Duration("simTime", e.now),
			slog.Duration("wallTime", time.Since(e.wallStart)),
			slog.Uint64("events", e.stats.Events),
			slog.Duration("maxLag", e.stats.MaxLag),
		)
	}
	return err
}

// loop is the main loop of Run.
func (e *Engine) loop(ctx context.Context) error {
	for {
		e.drainInbox()
		if e.stopped {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return context.Cause(ctx)
		}

		ev := e.queue.peek()
		if ev == nil {
			if !e.cfg.RealTime {
				return nil
			}
			select {
			case <-e.wakeup:
			case <-ctx.Done():
			}
			continue
		}

		if ev.canceled {
			heap.Pop(&e.queue)
			continue
		}

		if e.cfg.RealTime {
			delta := time.Until(e.wallStart.Add(ev.at))
			if delta > 0 {
				e.sleep(ctx, delta)
				continue
			}
			if err := e.checkLag(-delta); err != nil {
				return err
			}
		}

		heap.Pop(&e.queue)
		e.now = ev.at
		e.stats.Events++
		ev.fn()
	}
}

// sleep waits for the given wall clock time, for the arrival of a
// new inbox event, or for the context to be done.
func (e *Engine) sleep(ctx context.Context, delta time.Duration) {
	timer := time.NewTimer(delta)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-e.wakeup:
	case <-ctx.Done():
	}
}

// checkLag records the real-time lag and enforces the hard limit.
func (e *Engine) checkLag(lag time.Duration) error {
	e.stats.MaxLag = max(e.stats.MaxLag, lag)
	if e.cfg.SyncMode == SyncHardLimit && lag > e.cfg.hardLimit() {
		return fmt.Errorf("%w: lag %s at %s", ErrHardLimit, lag, e.now)
	}
	return nil
}

// Destroy discards all the pending events. After Destroy, events
// scheduled using ScheduleNow are silently discarded.
//
// This method must be called after Run returned, or instead of running.
func (e *Engine) Destroy() {
	e.mu.Lock()
	e.state.Store(stateDestroyed)
	e.inbox = nil
	e.mu.Unlock()
	e.queue = nil

	if e.Logger != nil {
		e.Logger.Info("engineDestroyed", slog.Duration("simTime", e.now))
	}
}
