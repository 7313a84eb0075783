// SPDX-License-Identifier: GPL-3.0-or-later

// Package emulator runs a chain of simulated routers between two OS
// interfaces for a bounded amount of time.
package emulator

import (
	"context"
	"errors"
	"log/slog"

	"github.com/rbmk-project/chainemu/errclass"
	"github.com/rbmk-project/chainemu/netsim"
	"github.com/rbmk-project/chainemu/netsim/tapbridge"
	"github.com/rbmk-project/chainemu/topology"
)

// Emulator builds, attaches, and runs a [*topology.Chain].
//
// Construct using [New].
type Emulator struct {
	// Config is the emulator configuration.
	Config *Config

	// Factory opens the bridges. [New] initializes it to a
	// [*tapbridge.Factory]; tests may override it.
	Factory topology.BridgeFactory

	// Logger is the optional structured logger.
	Logger *slog.Logger
}

// New creates a new [*Emulator] using the given configuration and logger.
func New(config *Config, logger *slog.Logger) *Emulator {
	return &Emulator{
		Config:  config,
		Factory: &tapbridge.Factory{Logger: logger},
		Logger:  logger,
	}
}

// Build validates the configuration and builds the chain on a new engine.
func (em *Emulator) Build() (*topology.Chain, error) {
	if err := em.Config.Validate(); err != nil {
		em.logError("configInvalid", err)
		return nil, err
	}
	lc, err := em.Config.LinkConfig()
	if err != nil {
		return nil, err
	}
	engine := netsim.NewEngine()
	engine.Logger = em.Logger
	builder := &topology.Builder{
		Engine: engine,
		Link:   lc,
		Logger: em.Logger,
		Zone:   em.Config.Zone(),
	}
	return builder.Build(em.Config.Routers)
}

// Run builds the chain, attaches both sides to their OS interfaces,
// populates the routes, and runs the simulation until the configured
// duration elapses or ctx is done.
func (em *Emulator) Run(ctx context.Context) error {
	engineConfig, err := em.Config.EngineConfig()
	if err != nil {
		em.logError("configInvalid", err)
		return err
	}
	chain, err := em.Build()
	if err != nil {
		return err
	}

	if err := em.setup(chain); err != nil {
		err = errors.Join(err, chain.Close())
		chain.Engine().Destroy()
		return err
	}

	runner := &Runner{Config: engineConfig, Logger: em.Logger}
	return runner.Run(ctx, chain, em.Config.Duration())
}

// setup attaches the bridges and populates the routes.
func (em *Emulator) setup(chain *topology.Chain) error {
	attacher := &topology.Attacher{
		Factory: em.Factory,
		Logger:  em.Logger,
	}
	bridges := em.Config.Bridges()
	for _, side := range topology.Sides {
		attacher.Namespaces[side] = bridges[side].Namespace
	}
	for _, side := range topology.Sides {
		if err := attacher.Attach(chain, side, em.Config.Mode, bridges[side].Interface); err != nil {
			return err
		}
	}
	_, err := topology.Populate(chain)
	return err
}

func (em *Emulator) logError(msg string, err error) {
	if em.Logger != nil {
		em.Logger.Error(msg, slog.Any("err", err), slog.String("errClass", errclass.New(err)))
	}
}
