// SPDX-License-Identifier: GPL-3.0-or-later

//go:build !linux

package tapbridge

import "io"

// openTap opens the named TAP interface.
func openTap(ifname string, config *Config) (io.ReadWriteCloser, error) {
	return nil, ErrUnsupported
}
