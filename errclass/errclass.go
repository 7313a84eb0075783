// SPDX-License-Identifier: GPL-3.0-or-later

/*
Package errclass implements error classification for the emulator.

The general idea is to classify golang errors to an enum of strings
with names resembling standard Unix error names.

# Design Principles

1. Preserve original error in `err` in the structured logs.

2. Add the classified error as the `errClass` field.

3. Use [errors.Is] and [errors.As] for classification.

4. Use string-based classification for readability.

5. Emulator errors carry their class (see [Sentinel]).

6. Map the nil error to an empty string.

# Emulator Errors

- [EINVALID_TOPOLOGY] for router counts outside of the supported range

- [EINVALID_CONFIG] for other configuration errors

- [EBRIDGE_UNAVAILABLE] when an OS interface cannot be bridged

- [EBRIDGE_EXISTS] when an interface to be created already exists

- [ENOT_TAP] when an interface exists but is not a TAP device

- [EHARD_LIMIT] when the real-time engine falls too far behind

# System Errors

- [EPERM], [EACCES], [EBUSY], [ENODEV], [ENOENT], [EEXIST] for
the respective errno values returned when opening TAP devices

The actual system error constants are defined in platform-specific files.

# Fallback

Everything else is classified by [errclass.New] from the rbmk-project
common module (e.g., [context.Canceled] becomes "EINTR").
*/
package errclass

import (
	"errors"

	"github.com/rbmk-project/common/errclass"
)

const (
	//
	// Errors that carry their own class:
	//

	// EINVALID_TOPOLOGY indicates an unsupported router count.
	EINVALID_TOPOLOGY = "EINVALID_TOPOLOGY"

	// EINVALID_CONFIG indicates an invalid configuration value.
	EINVALID_CONFIG = "EINVALID_CONFIG"

	// EBRIDGE_UNAVAILABLE indicates that we cannot bridge an OS interface.
	EBRIDGE_UNAVAILABLE = "EBRIDGE_UNAVAILABLE"

	// EBRIDGE_EXISTS indicates that the interface to create already exists.
	EBRIDGE_EXISTS = "EBRIDGE_EXISTS"

	// ENOT_TAP indicates that an interface exists but is not a TAP device.
	ENOT_TAP = "ENOT_TAP"

	// EHARD_LIMIT indicates that real-time execution fell too far behind.
	EHARD_LIMIT = "EHARD_LIMIT"

	//
	// Errors that we can map using [errors.Is]:
	//

	// EPERM is the operation not permitted error.
	EPERM = "EPERM"

	// EACCES is the permission denied error.
	EACCES = "EACCES"

	// EBUSY is the device or resource busy error.
	EBUSY = "EBUSY"

	// ENODEV is the no such device error.
	ENODEV = "ENODEV"

	// ENOENT is the no such file or directory error.
	ENOENT = "ENOENT"

	// EEXIST is the file exists error.
	EEXIST = "EEXIST"

	//
	// Fallback errors:
	//

	// EGENERIC is the generic, unclassified error.
	EGENERIC = errclass.EGENERIC
)

// sentinel is an error that knows its own class.
type sentinel struct {
	class   string
	message string
}

// Error implements error.
func (e *sentinel) Error() string {
	return e.message
}

// Sentinel returns a new sentinel error with the given class and
// message. Wrapping the returned error with %w preserves the class.
func Sentinel(class, message string) error {
	return &sentinel{class: class, message: message}
}

// New creates a new error class from an error.
func New(err error) string {
	if err == nil {
		return ""
	}

	// The outermost sentinel wins.
	var se *sentinel
	if errors.As(err, &se) {
		return se.class
	}

	for candidate, class := range errorsIsMap {
		if errors.Is(err, candidate) {
			return class
		}
	}

	return errclass.New(err)
}
