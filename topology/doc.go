// SPDX-License-Identifier: GPL-3.0-or-later

/*
Package topology builds a linear chain of simulated routers between
two OS-facing endpoints.

A chain with N routers contains N+2 endpoints and N+1 links:

	os0 --link0-- r1 --link1-- r2 ... rN --linkN-- os1

Link i uses the 172.20.i.0/24 subnet. Router-facing devices get the
hosts of their link subnet from .1 upward in device order, so a router
is 172.20.i.1 on the link towards os1 and 172.20.(i-1).2 on the link
towards os0, except r1 which is 172.20.0.1 on link0. The devices of os0
and os1 are unaddressed: they relay frames to OS interfaces through an
[*Attacher], and the hosts behind them use the .2 address of their link.

Typical usage:

	chain, err := builder.Build(routers)
	// ...
	err = attacher.Attach(chain, topology.Left, tapbridge.UseBridge, "ns3_em0")
	// ...
	err = attacher.Attach(chain, topology.Right, tapbridge.UseBridge, "ns3_em1")
	// ...
	_, err = topology.Populate(chain)
*/
package topology
