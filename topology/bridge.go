// SPDX-License-Identifier: GPL-3.0-or-later

package topology

import (
	"fmt"
	"log/slog"

	"github.com/rbmk-project/chainemu/errclass"
	"github.com/rbmk-project/chainemu/netsim/tapbridge"
)

// BridgeFactory opens bridges between simulated devices and OS interfaces.
type BridgeFactory interface {
	Open(sched tapbridge.Scheduler, dev tapbridge.Device, ifname string, config *tapbridge.Config) (*tapbridge.Bridge, error)
}

var _ BridgeFactory = &tapbridge.Factory{}

// Attacher attaches the tap devices of a [*Chain] to OS interfaces.
type Attacher struct {
	// Factory is the bridge factory.
	Factory BridgeFactory

	// Logger is the optional structured logger.
	Logger *slog.Logger

	// Namespaces contains the optional network namespace of
	// the OS interface of each [Side].
	Namespaces [2]string
}

// Attach attaches the tap device of the given side to the named OS
// interface. Each side may be attached once, to a distinct interface.
//
// Errors returned by the factory are wrapped with [ErrBridgeUnavailable].
func (a *Attacher) Attach(chain *Chain, side Side, mode tapbridge.Mode, ifname string) error {
	if side != Left && side != Right {
		return fmt.Errorf("%w: %s", ErrInvalidTopology, side)
	}
	dev := chain.taps[side]
	if dev.bridge != nil {
		return fmt.Errorf("%w: %s", ErrAlreadyAttached, side)
	}
	if other := chain.taps[1-side].bridge; other != nil && other.Name() == ifname {
		return fmt.Errorf("%w: %s", ErrDuplicateInterface, ifname)
	}

	config := &tapbridge.Config{Mode: mode, Namespace: a.Namespaces[side]}
	if mode == tapbridge.ConfigureLocal {
		config.Addr = chain.HostAddr(side)
		config.Gateway = chain.Gateway(side).Addr()
		config.Routes = append(config.Routes, Supernet)
	}

	bridge, err := a.Factory.Open(chain.engine, dev.nic, ifname, config)
	if err != nil {
		err = fmt.Errorf("%w: %s: %w", ErrBridgeUnavailable, ifname, err)
		if a.Logger != nil {
			a.Logger.Warn(
				"bridgeFailed",
				slog.String("side", side.String()),
				slog.String("ifname", ifname),
				slog.Any("err", err),
				slog.String("errClass", errclass.New(err)),
			)
		}
		return err
	}

	dev.bridge = bridge
	chain.pool.Add(bridge)
	if a.Logger != nil {
		a.Logger.Info(
			"bridgeAttached",
			slog.String("side", side.String()),
			slog.String("ifname", ifname),
			slog.String("mode", mode.String()),
			slog.String("device", dev.nic.Name()),
		)
	}
	return nil
}
