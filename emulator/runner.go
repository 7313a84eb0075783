// SPDX-License-Identifier: GPL-3.0-or-later

package emulator

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/rbmk-project/chainemu/errclass"
	"github.com/rbmk-project/chainemu/netsim"
	"github.com/rbmk-project/chainemu/topology"
)

// Runner runs the simulation of a [*topology.Chain].
type Runner struct {
	// Config is the engine configuration. A nil value is
	// equivalent to [netsim.RealTimeConfig].
	Config *netsim.Config

	// Logger is the optional structured logger.
	Logger *slog.Logger
}

// Run runs the chain engine for the given simulated duration, then
// releases the chain resources and destroys the engine.
//
// Canceling the context stops the run early without an error.
func (r *Runner) Run(ctx context.Context, chain *topology.Chain, duration time.Duration) error {
	config := r.Config
	if config == nil {
		config = netsim.RealTimeConfig()
	}
	engine := chain.Engine()
	engine.Stop(duration)

	t0 := time.Now()
	if r.Logger != nil {
		r.Logger.InfoContext(
			ctx,
			"runStart",
			slog.Duration("duration", duration),
			slog.Int("routers", len(chain.Routers())),
			slog.Bool("realTime", config.RealTime),
			slog.Bool("checksumEnabled", config.ChecksumEnabled),
			slog.String("syncMode", config.SyncMode.String()),
			slog.Time("t", t0),
		)
	}

	err := engine.Run(ctx, config)
	interrupted := err != nil && ctx.Err() != nil
	if interrupted {
		err = nil
	}
	err = errors.Join(err, chain.Close())
	simTime := engine.Now()
	engine.Destroy()

	if r.Logger != nil {
		r.Logger.InfoContext(
			ctx,
			"runDone",
			slog.Any("err", err),
			slog.String("errClass", errclass.New(err)),
			slog.Bool("interrupted", interrupted),
			slog.Duration("simTime", simTime),
			slog.Time("t0", t0),
			slog.Time("t", time.Now()),
		)
	}
	return err
}
