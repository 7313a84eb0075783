// SPDX-License-Identifier: GPL-3.0-or-later

package tapbridge

import (
	"log/slog"
	"net/netip"

	"github.com/rbmk-project/chainemu/errclass"
)

var (
	// ErrUnsupported indicates that TAP interfaces are not supported
	// on this platform.
	ErrUnsupported = errclass.Sentinel(errclass.EBRIDGE_UNAVAILABLE, "tap interfaces not supported on this platform")

	// ErrNoInterface indicates that the interface to bridge does not exist.
	ErrNoInterface = errclass.Sentinel(errclass.ENODEV, "no such interface")

	// ErrInterfaceExists indicates that the interface to create already exists.
	ErrInterfaceExists = errclass.Sentinel(errclass.EBRIDGE_EXISTS, "interface already exists")

	// ErrNotTap indicates that the interface exists but is not a TAP device.
	ErrNotTap = errclass.Sentinel(errclass.ENOT_TAP, "interface is not a tap device")
)

// Config configures how to open a [*Bridge].
type Config struct {
	// Mode is the bridge mode.
	Mode Mode

	// Namespace is the optional name of the network namespace
	// containing the interface (see ip-netns(8)).
	Namespace string

	// Addr is the host address with prefix length assigned to the
	// interface in [ConfigureLocal] mode.
	Addr netip.Prefix

	// Gateway is the gateway for Routes in [ConfigureLocal] mode.
	Gateway netip.Addr

	// Routes contains the destinations to route via Gateway
	// in [ConfigureLocal] mode.
	Routes []netip.Prefix
}

// Factory opens bridges attached to OS TAP interfaces.
//
// The zero value is ready to use.
type Factory struct {
	// Logger is the optional structured logger.
	Logger *slog.Logger
}

// Open opens the named TAP interface according to config and
// returns a running [*Bridge] relaying frames to dev.
func (f *Factory) Open(sched Scheduler, dev Device, ifname string, config *Config) (*Bridge, error) {
	if f.Logger != nil {
		f.Logger.Info(
			"tapOpenStart",
			slog.String("ifname", ifname),
			slog.String("mode", config.Mode.String()),
			slog.String("namespace", config.Namespace),
		)
	}

	rwc, err := openTap(ifname, config)

	if f.Logger != nil {
		f.Logger.Info(
			"tapOpenDone",
			slog.String("ifname", ifname),
			slog.String("mode", config.Mode.String()),
			slog.Any("err", err),
			slog.String("errClass", errclass.New(err)),
		)
	}
	if err != nil {
		return nil, err
	}

	return New(sched, dev, ifname, rwc, f.Logger), nil
}
