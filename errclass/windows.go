//go:build windows

// SPDX-License-Identifier: GPL-3.0-or-later

package errclass

import "golang.org/x/sys/windows"

// errorsIsMap contains the system errors we can classify with [errors.Is].
//
// TAP bridging is Linux only, so this only covers the errors that
// configuration loading and interface lookups may produce.
var errorsIsMap = map[error]string{
	windows.ERROR_ACCESS_DENIED:  EACCES,
	windows.ERROR_FILE_NOT_FOUND: ENOENT,
	windows.ERROR_FILE_EXISTS:    EEXIST,
}
