// SPDX-License-Identifier: GPL-3.0-or-later

package topology

import (
	"log/slog"

	"github.com/rbmk-project/chainemu/errclass"
	"github.com/rbmk-project/chainemu/netsim/routing"
)

// Populate computes the global routes of the chain and installs them
// into the routers, returning the number of installed routes.
//
// It must be called once, after [*Builder.Build] and before the engine runs.
func Populate(chain *Chain) (int, error) {
	if chain.populated {
		return 0, ErrAlreadyPopulated
	}
	if chain.engine.Started() {
		return 0, ErrEngineStarted
	}
	chain.populated = true

	routers := chain.Routers()
	if len(routers) == 0 {
		return 0, nil
	}

	nodes := make([]routing.Node, 0, len(routers))
	for _, ep := range routers {
		node := routing.Node{Name: ep.name}
		for _, iface := range ep.router.Interfaces() {
			node.Interfaces = append(node.Interfaces, iface.Addr())
		}
		nodes = append(nodes, node)
	}

	routes, err := routing.Compute(nodes)
	if err == nil {
		for _, rt := range routes {
			if err = routers[rt.Node].router.AddRoute(rt.Destination, rt.Gateway); err != nil {
				break
			}
		}
	}

	if chain.logger != nil {
		chain.logger.Info(
			"routesInstalled",
			slog.Int("routers", len(routers)),
			slog.Int("routes", len(routes)),
			slog.Any("err", err),
			slog.String("errClass", errclass.New(err)),
		)
	}
	if err != nil {
		return 0, err
	}
	return len(routes), nil
}
