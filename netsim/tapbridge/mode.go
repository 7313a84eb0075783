// SPDX-License-Identifier: GPL-3.0-or-later

package tapbridge

import "fmt"

// Mode selects how a [*Bridge] relates to the OS interface.
type Mode int

const (
	// UseBridge attaches to an existing TAP interface and leaves
	// its configuration to the operator.
	UseBridge Mode = iota

	// ConfigureLocal creates the TAP interface, assigns the host
	// address, and installs the routes towards the emulated network.
	// The interface disappears when the bridge is closed.
	ConfigureLocal
)

// String returns the string representation of the mode.
func (m Mode) String() string {
	switch m {
	case UseBridge:
		return "UseBridge"
	case ConfigureLocal:
		return "ConfigureLocal"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// ParseMode parses the string representation of a [Mode].
func ParseMode(value string) (Mode, error) {
	switch value {
	case "UseBridge":
		return UseBridge, nil
	case "ConfigureLocal":
		return ConfigureLocal, nil
	default:
		return 0, fmt.Errorf("unknown tap bridge mode: %q", value)
	}
}

// MarshalText implements [encoding.TextMarshaler].
func (m Mode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// UnmarshalText implements [encoding.TextUnmarshaler].
func (m *Mode) UnmarshalText(data []byte) error {
	mode, err := ParseMode(string(data))
	if err != nil {
		return err
	}
	*m = mode
	return nil
}
