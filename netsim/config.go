//
// SPDX-License-Identifier: GPL-3.0-or-later
//
// Engine configuration.
//

package netsim

import (
	"fmt"
	"time"
)

// SyncMode selects how a real-time [*Engine] reacts to falling
// behind the wall clock.
type SyncMode int

const (
	// SyncBestEffort runs late events as soon as possible.
	SyncBestEffort SyncMode = iota

	// SyncHardLimit aborts the run when the lag exceeds [Config.HardLimit].
	SyncHardLimit
)

// String returns the string representation of the sync mode.
func (m SyncMode) String() string {
	switch m {
	case SyncBestEffort:
		return "BestEffort"
	case SyncHardLimit:
		return "HardLimit"
	default:
		return "unknown"
	}
}

// ParseSyncMode parses the string representation of a [SyncMode].
func ParseSyncMode(value string) (SyncMode, error) {
	switch value {
	case "BestEffort":
		return SyncBestEffort, nil
	case "HardLimit":
		return SyncHardLimit, nil
	default:
		return 0, fmt.Errorf("unknown synchronization mode: %q", value)
	}
}

// DefaultHardLimit is the maximum lag tolerated by [SyncHardLimit]
// when [Config.HardLimit] is zero.
const DefaultHardLimit = 100 * time.Millisecond

// Config contains the configuration of a single [*Engine] run.
type Config struct {
	// RealTime paces simulated time against the wall clock.
	RealTime bool

	// ChecksumEnabled makes simulated protocol stacks compute
	// checksums when sending and verify them when receiving.
	ChecksumEnabled bool

	// SyncMode selects the real-time synchronization mode.
	SyncMode SyncMode

	// HardLimit is the maximum lag for [SyncHardLimit].
	HardLimit time.Duration
}

// RealTimeConfig returns the configuration used to emulate networks
// for real systems: real-time, checksum-verified, best-effort.
func RealTimeConfig() *Config {
	return &Config{
		RealTime:        true,
		ChecksumEnabled: true,
		SyncMode:        SyncBestEffort,
	}
}

// hardLimit returns the effective hard limit.
func (c *Config) hardLimit() time.Duration {
	if c.HardLimit > 0 {
		return c.HardLimit
	}
	return DefaultHardLimit
}
