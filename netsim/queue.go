//
// SPDX-License-Identifier: GPL-3.0-or-later
//
// Event queue.
//

package netsim

import (
	"container/heap"
	"time"
)

// Event is a callback scheduled to run at a given simulated time.
type Event struct {
	// at is the simulated time at which the event runs.
	at time.Duration

	// canceled is true if the event should not run anymore.
	canceled bool

	// fn is the callback to run.
	fn func()

	// index is the index inside the heap.
	index int

	// seq breaks ties between events scheduled at the same time.
	seq uint64
}

// At returns the simulated time at which the event runs.
func (ev *Event) At() time.Duration {
	return ev.at
}

// Cancel prevents the event from running.
//
// This method must be called from the engine goroutine.
func (ev *Event) Cancel() {
	ev.canceled = true
}

// eventQueue implements [heap.Interface] ordering events by time
// and then by insertion order.
type eventQueue []*Event

var _ heap.Interface = &eventQueue{}

// Len implements [heap.Interface].
func (q eventQueue) Len() int {
	return len(q)
}

// Less implements [heap.Interface].
func (q eventQueue) Less(i, j int) bool {
	if q[i].at != q[j].at {
		return q[i].at < q[j].at
	}
	return q[i].seq < q[j].seq
}

// Swap implements [heap.Interface].
func (q eventQueue) Swap(i, j int) {
	q[i], q[j] = q[j], q[i]
	q[i].index = i
	q[j].index = j
}

// Push implements [heap.Interface].
func (q *eventQueue) Push(x any) {
	ev := x.(*Event)
	ev.index = len(*q)
	*q = append(*q, ev)
}

// Pop implements [heap.Interface].
func (q *eventQueue) Pop() any {
	old := *q
	n := len(old)
	ev := old[n-1]
	old[n-1] = nil
	ev.index = -1
	*q = old[:n-1]
	return ev
}

// peek returns the next event without removing it or nil.
func (q eventQueue) peek() *Event {
	if len(q) <= 0 {
		return nil
	}
	return q[0]
}
