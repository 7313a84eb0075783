// SPDX-License-Identifier: GPL-3.0-or-later

package topology

import (
	"fmt"
	"log/slog"
	"net/netip"

	"github.com/rbmk-project/chainemu/errclass"
	"github.com/rbmk-project/chainemu/netsim"
	"github.com/rbmk-project/chainemu/netsim/dns"
	"github.com/rbmk-project/chainemu/netsim/link"
	"github.com/rbmk-project/chainemu/netsim/router"
)

const (
	// MinRouters is the minimum number of routers in a chain.
	MinRouters = 1

	// MaxRouters is the maximum number of routers in a chain.
	MaxRouters = 63
)

// ValidateRouterCount returns [ErrInvalidTopology] when count
// is outside of [MinRouters, MaxRouters].
func ValidateRouterCount(count int) error {
	if count < MinRouters || count > MaxRouters {
		return fmt.Errorf("%w: %d routers (want %d..%d)", ErrInvalidTopology, count, MinRouters, MaxRouters)
	}
	return nil
}

// Builder builds a [*Chain] of routers between two OS-facing endpoints.
type Builder struct {
	// Engine is the simulation engine.
	Engine *netsim.Engine

	// Link configures every link of the chain.
	Link link.Config

	// Logger is the optional structured logger.
	Logger *slog.Logger

	// Zone is the optional DNS zone. When not empty, routers answer
	// DNS queries for r<i>.<Zone> and for the reverse names of their
	// interface addresses.
	Zone string
}

// linkResult is the outcome of building a single link.
type linkResult struct {
	link  *Link
	addrs [2]netip.Prefix
}

// buildLink creates the link between a and b and computes the
// addresses of the router-facing devices without applying them.
func buildLink(factory *LinkFactory, alloc *Allocator, index int, a, b *Endpoint) linkResult {
	lnk := factory.Create(index, a, b)
	lnk.subnet = alloc.Next(index)
	res := linkResult{link: lnk}
	host := uint32(1)
	for idx, dev := range lnk.devices {
		if dev.endpoint.role != Router {
			continue
		}
		res.addrs[idx] = lnk.subnet.Host(host)
		host++
	}
	return res
}

// endpointName returns the name of the endpoint at index in a chain
// with the given number of routers.
func endpointName(index, routers int) string {
	switch index {
	case 0:
		return "os0"
	case routers + 1:
		return "os1"
	default:
		return fmt.Sprintf("r%d", index)
	}
}

// Build builds a chain with the given number of routers.
//
// The returned error wraps [ErrInvalidTopology] when the router count
// is out of range, in which case nothing has been created.
func (b *Builder) Build(routers int) (*Chain, error) {
	if err := ValidateRouterCount(routers); err != nil {
		if b.Logger != nil {
			b.Logger.Warn("buildFailed", slog.Any("err", err), slog.String("errClass", errclass.New(err)))
		}
		return nil, err
	}
	if b.Engine.Started() {
		return nil, ErrEngineStarted
	}
	if b.Logger != nil {
		b.Logger.Info(
			"buildStart",
			slog.Int("routers", routers),
			slog.String("dataRate", b.Link.DataRate.String()),
			slog.Duration("delay", b.Link.Delay),
		)
	}

	// 1. endpoints with their role, router stacks on routers only
	chain := &Chain{engine: b.Engine, logger: b.Logger}
	for idx := 0; idx < routers+2; idx++ {
		ep := &Endpoint{index: idx, name: endpointName(idx, routers), role: OSBridge}
		if idx > 0 && idx <= routers {
			ep.role = Router
			ep.router = router.New(b.Engine, ep.name)
			ep.router.Logger = b.Logger
		}
		chain.endpoints = append(chain.endpoints, ep)
	}

	// 2. one link result per consecutive pair
	factory := &LinkFactory{Config: b.Link, Engine: b.Engine, Logger: b.Logger}
	var alloc Allocator
	results := make([]linkResult, 0, routers+1)
	for idx := 0; idx < routers+1; idx++ {
		results = append(results, buildLink(factory, &alloc, idx, chain.endpoints[idx], chain.endpoints[idx+1]))
	}

	// 3. apply the results
	for _, res := range results {
		chain.links = append(chain.links, res.link)
		for idx, dev := range res.link.devices {
			ep := dev.endpoint
			ep.devices = append(ep.devices, dev)
			if !res.addrs[idx].IsValid() {
				continue
			}
			dev.addr = res.addrs[idx]
			ep.router.AddInterface(dev.nic, dev.addr)
		}
	}
	chain.taps = [2]*Device{
		chain.links[0].devices[0],
		chain.links[len(chain.links)-1].devices[1],
	}

	// 4. optional name service
	if b.Zone != "" {
		chain.names = dns.NewDatabase()
		for _, ep := range chain.Routers() {
			chain.names.AddHost(fmt.Sprintf("%s.%s", ep.name, b.Zone), ep.router.Addrs()...)
		}
		for _, ep := range chain.Routers() {
			ep.router.SetDNS(chain.names)
		}
	}

	if b.Logger != nil {
		b.Logger.Info(
			"buildDone",
			slog.Int("endpoints", len(chain.endpoints)),
			slog.Int("links", len(chain.links)),
			slog.Int("routers", routers),
		)
	}
	return chain, nil
}
