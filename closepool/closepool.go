// SPDX-License-Identifier: GPL-3.0-or-later

// Package closepool tracks the resources acquired while wiring an
// emulated topology and releases them in a single operation.
package closepool

import (
	"errors"
	"io"
	"slices"
	"sync"
)

// Pool collects [io.Closer] such as bridges and OS interfaces.
//
// The zero value is ready to use.
type Pool struct {
	// handles contains the [io.Closer] to close.
	handles []io.Closer

	// closed is true once Close has run.
	closed bool

	// mu provides mutual exclusion.
	mu sync.Mutex
}

// closerFunc adapts a func to [io.Closer].
type closerFunc func() error

// Close implements [io.Closer].
func (fx closerFunc) Close() error {
	return fx()
}

// Add adds a given [io.Closer] to the pool.
//
// Adding to a pool that has already been closed closes
// the given [io.Closer] immediately, so that resources acquired
// while racing with teardown are never leaked.
func (p *Pool) Add(handle io.Closer) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		handle.Close()
		return
	}
	p.handles = append(p.handles, handle)
	p.mu.Unlock()
}

// AddFunc is like Add but takes a cleanup function.
func (p *Pool) AddFunc(fx func() error) {
	p.Add(closerFunc(fx))
}

// Len returns the number of resources waiting to be released.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.handles)
}

// Close closes all the [io.Closer] inside the pool iterating in
// backward order. Therefore, if one registers an OS interface and
// then the bridge pumping frames through it, the bridge is closed
// first. The returned error is the join of all the errors that
// occurred when closing. Calling Close more than once is safe.
func (p *Pool) Close() error {
	// Lock and copy the [io.Closer] to close.
	p.mu.Lock()
	handles := p.handles
	p.handles = nil
	p.closed = true
	p.mu.Unlock()

	// Close all the [io.Closer].
	var errv []error
	for _, handle := range slices.Backward(handles) {
		if err := handle.Close(); err != nil {
			errv = append(errv, err)
		}
	}
	return errors.Join(errv...)
}
