// SPDX-License-Identifier: GPL-3.0-or-later

// Package routing computes global static routes for simulated routers.
//
// Routers are the vertices of a weighted undirected graph whose edges
// connect routers sharing a subnet. For every subnet a router is not
// attached to, [Compute] emits a route via the neighbor on the shortest
// path towards the nearest router attached to that subnet.
package routing

import (
	"errors"
	"fmt"
	"math"
	"net/netip"

	"gonum.org/v1/gonum/graph/path"
	"gonum.org/v1/gonum/graph/simple"
)

// Node is a router as seen by the routing computation.
type Node struct {
	// Name is the router name.
	Name string

	// Interfaces contains the interface addresses with their
	// subnet prefix length (e.g., 172.20.0.1/24).
	Interfaces []netip.Prefix
}

// Route is a route computed for a [Node].
type Route struct {
	// Node is the index of the node that should install the route.
	Node int

	// Destination is the destination subnet.
	Destination netip.Prefix

	// Gateway is the next hop address.
	Gateway netip.Addr
}

// String returns the string representation of the route.
func (rt Route) String() string {
	return fmt.Sprintf("#%d: %s via %s", rt.Node, rt.Destination, rt.Gateway)
}

// ErrDuplicateAddress indicates that two interfaces share the same address.
var ErrDuplicateAddress = errors.New("duplicate interface address")

// attachment is a node interface attached to a subnet.
type attachment struct {
	node int
	addr netip.Addr
}

// topology is the subnet view of the nodes.
type topology struct {
	// order contains the subnets in order of first appearance.
	order []netip.Prefix

	// subnets maps each subnet to the attached interfaces.
	subnets map[netip.Prefix][]attachment
}

func newTopology(nodes []Node) (*topology, error) {
	topo := &topology{subnets: make(map[netip.Prefix][]attachment)}
	seen := make(map[netip.Addr]bool)
	for idx, node := range nodes {
		for _, iface := range node.Interfaces {
			if seen[iface.Addr()] {
				return nil, fmt.Errorf("%w: %s on %s", ErrDuplicateAddress, iface.Addr(), node.Name)
			}
			seen[iface.Addr()] = true
			subnet := iface.Masked()
			if _, found := topo.subnets[subnet]; !found {
				topo.order = append(topo.order, subnet)
			}
			topo.subnets[subnet] = append(topo.subnets[subnet], attachment{node: idx, addr: iface.Addr()})
		}
	}
	return topo, nil
}

// attached returns the address of node on subnet, if any.
func (topo *topology) attached(subnet netip.Prefix, node int) (netip.Addr, bool) {
	for _, att := range topo.subnets[subnet] {
		if att.node == node {
			return att.addr, true
		}
	}
	return netip.Addr{}, false
}

// gateway returns the address of neighbor on a subnet shared with node.
func (topo *topology) gateway(node, neighbor int) (netip.Addr, bool) {
	for _, subnet := range topo.order {
		if _, ok := topo.attached(subnet, node); !ok {
			continue
		}
		if addr, ok := topo.attached(subnet, neighbor); ok {
			return addr, true
		}
	}
	return netip.Addr{}, false
}

// graph builds the router adjacency graph.
func (topo *topology) graph(count int) *simple.WeightedUndirectedGraph {
	g := simple.NewWeightedUndirectedGraph(0, math.Inf(1))
	for idx := 0; idx < count; idx++ {
		g.AddNode(simple.Node(idx))
	}
	for _, subnet := range topo.order {
		atts := topo.subnets[subnet]
		for i := 0; i < len(atts); i++ {
			for j := i + 1; j < len(atts); j++ {
				if atts[i].node == atts[j].node {
					continue
				}
				g.SetWeightedEdge(simple.WeightedEdge{
					F: simple.Node(atts[i].node),
					T: simple.Node(atts[j].node),
					W: 1,
				})
			}
		}
	}
	return g
}

// Compute computes the routes that each node should install in addition
// to its connected routes. The result is sorted by node and then by
// order of first appearance of the destination subnet.
func Compute(nodes []Node) ([]Route, error) {
	topo, err := newTopology(nodes)
	if err != nil {
		return nil, err
	}
	g := topo.graph(len(nodes))

	var routes []Route
	for src := range nodes {
		tree := path.DijkstraFrom(simple.Node(src), g)
		for _, subnet := range topo.order {
			if _, ok := topo.attached(subnet, src); ok {
				continue
			}
			var (
				best   []int64
				bestW  = math.Inf(1)
				routed bool
			)
			for _, att := range topo.subnets[subnet] {
				hops, weight := tree.To(int64(att.node))
				if len(hops) < 2 || weight >= bestW {
					continue
				}
				best, bestW, routed = nil, weight, true
				for _, hop := range hops {
					best = append(best, hop.ID())
				}
			}
			if !routed {
				continue
			}
			gw, ok := topo.gateway(src, int(best[1]))
			if !ok {
				continue
			}
			routes = append(routes, Route{Node: src, Destination: subnet, Gateway: gw})
		}
	}
	return routes, nil
}
