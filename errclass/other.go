//go:build !unix && !windows

// SPDX-License-Identifier: GPL-3.0-or-later

package errclass

// errorsIsMap contains the system errors we can classify with [errors.Is].
var errorsIsMap = map[error]string{}
