// SPDX-License-Identifier: GPL-3.0-or-later

package topology_test

import (
	"fmt"
	"time"

	"github.com/rbmk-project/chainemu/netsim"
	"github.com/rbmk-project/chainemu/netsim/link"
	"github.com/rbmk-project/chainemu/topology"
	"github.com/rbmk-project/common/runtimex"
)

// This example shows the addressing and routes of a chain with two routers.
func Example_chain() {
	engine := netsim.NewEngine()
	defer engine.Destroy()

	builder := &topology.Builder{
		Engine: engine,
		Link:   link.Config{DataRate: 1000 * link.MbitPerSecond, Delay: 50 * time.Microsecond},
	}
	chain := runtimex.Try1(builder.Build(2))
	runtimex.Try1(topology.Populate(chain))

	for _, lnk := range chain.Links() {
		fmt.Printf("%s:", lnk.Subnet())
		for _, dev := range lnk.Devices() {
			if addr, ok := dev.Addr(); ok {
				fmt.Printf(" %s=%s", dev.Endpoint().Name(), addr.Addr())
			} else {
				fmt.Printf(" %s=tap", dev.Endpoint().Name())
			}
		}
		fmt.Println()
	}
	for _, ep := range chain.Routers() {
		for _, rt := range ep.Router().Routes() {
			fmt.Printf("%s: %s\n", ep.Name(), rt)
		}
	}

	// Output:
	// 172.20.0.0/24: os0=tap r1=172.20.0.1
	// 172.20.1.0/24: r1=172.20.1.1 r2=172.20.1.2
	// 172.20.2.0/24: r2=172.20.2.1 os1=tap
	// r1: 172.20.0.0/24 dev 0
	// r1: 172.20.1.0/24 dev 1
	// r1: 172.20.2.0/24 via 172.20.1.2 dev 1
	// r2: 172.20.1.0/24 dev 0
	// r2: 172.20.2.0/24 dev 1
	// r2: 172.20.0.0/24 via 172.20.1.1 dev 0
}
