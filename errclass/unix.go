//go:build unix

// SPDX-License-Identifier: GPL-3.0-or-later

package errclass

import "golang.org/x/sys/unix"

// errorsIsMap contains the system errors we can classify with [errors.Is].
var errorsIsMap = map[error]string{
	unix.EPERM:  EPERM,
	unix.EACCES: EACCES,
	unix.EBUSY:  EBUSY,
	unix.ENODEV: ENODEV,
	unix.ENOENT: ENOENT,
	unix.EEXIST: EEXIST,
}
