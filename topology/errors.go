// SPDX-License-Identifier: GPL-3.0-or-later

package topology

import (
	"errors"

	"github.com/rbmk-project/chainemu/errclass"
)

var (
	// ErrInvalidTopology indicates an unsupported router count.
	ErrInvalidTopology = errclass.Sentinel(errclass.EINVALID_TOPOLOGY, "invalid topology")

	// ErrBridgeUnavailable indicates that an OS interface cannot be bridged.
	ErrBridgeUnavailable = errclass.Sentinel(errclass.EBRIDGE_UNAVAILABLE, "bridge unavailable")

	// ErrAlreadyAttached indicates attaching the same side twice.
	ErrAlreadyAttached = errclass.Sentinel(errclass.EINVALID_CONFIG, "side already attached")

	// ErrDuplicateInterface indicates using the same OS interface for both sides.
	ErrDuplicateInterface = errclass.Sentinel(errclass.EINVALID_CONFIG, "interface already used by the other side")

	// ErrAlreadyPopulated indicates populating the routes twice.
	ErrAlreadyPopulated = errors.New("routes already populated")

	// ErrEngineStarted indicates modifying the topology after the engine started.
	ErrEngineStarted = errors.New("engine already started")
)
