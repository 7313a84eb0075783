// SPDX-License-Identifier: GPL-3.0-or-later

package routing

import (
	"fmt"
	"net/netip"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// chainNodes returns n routers connected in a line using the
// 172.20.<i>.0/24 subnets, including the two stub subnets.
func chainNodes(n int) []Node {
	var nodes []Node
	for idx := 0; idx < n; idx++ {
		nodes = append(nodes, Node{
			Name: fmt.Sprintf("r%d", idx+1),
			Interfaces: []netip.Prefix{
				netip.MustParsePrefix(fmt.Sprintf("172.20.%d.%d/24", idx, min(idx, 1)+1)),
				netip.MustParsePrefix(fmt.Sprintf("172.20.%d.1/24", idx+1)),
			},
		})
	}
	return nodes
}

func TestCompute(t *testing.T) {
	t.Run("chain of three routers", func(t *testing.T) {
		routes, err := Compute(chainNodes(3))
		require.NoError(t, err)
		var got []string
		for _, rt := range routes {
			got = append(got, rt.String())
		}
		expect := []string{
			"#0: 172.20.2.0/24 via 172.20.1.2",
			"#0: 172.20.3.0/24 via 172.20.1.2",
			"#1: 172.20.0.0/24 via 172.20.1.1",
			"#1: 172.20.3.0/24 via 172.20.2.2",
			"#2: 172.20.0.0/24 via 172.20.2.1",
			"#2: 172.20.1.0/24 via 172.20.2.1",
		}
		assert.Equal(t, expect, got)
	})

	t.Run("a single router needs no routes", func(t *testing.T) {
		routes, err := Compute(chainNodes(1))
		require.NoError(t, err)
		assert.Len(t, routes, 0)
	})

	t.Run("every router reaches every subnet", func(t *testing.T) {
		const count = 63
		routes, err := Compute(chainNodes(count))
		require.NoError(t, err)
		// each router is attached to two of the count+1 subnets
		assert.Len(t, routes, count*(count+1-2))
		for _, rt := range routes {
			// the gateway is on the path towards the destination
			gwSubnet := rt.Gateway.As4()[2]
			dstSubnet := rt.Destination.Addr().As4()[2]
			if int(dstSubnet) > rt.Node {
				assert.Equal(t, byte(rt.Node+1), gwSubnet, rt.String())
			} else {
				assert.Equal(t, byte(rt.Node), gwSubnet, rt.String())
			}
		}
	})

	t.Run("disconnected routers", func(t *testing.T) {
		nodes := []Node{
			{Name: "a", Interfaces: []netip.Prefix{netip.MustParsePrefix("10.0.0.1/24")}},
			{Name: "b", Interfaces: []netip.Prefix{netip.MustParsePrefix("10.0.1.1/24")}},
		}
		routes, err := Compute(nodes)
		require.NoError(t, err)
		assert.Len(t, routes, 0)
	})

	t.Run("duplicate address", func(t *testing.T) {
		nodes := []Node{
			{Name: "a", Interfaces: []netip.Prefix{netip.MustParsePrefix("10.0.0.1/24")}},
			{Name: "b", Interfaces: []netip.Prefix{netip.MustParsePrefix("10.0.0.1/24")}},
		}
		routes, err := Compute(nodes)
		assert.ErrorIs(t, err, ErrDuplicateAddress)
		assert.Nil(t, routes)
	})

	t.Run("no nodes", func(t *testing.T) {
		routes, err := Compute(nil)
		require.NoError(t, err)
		assert.Len(t, routes, 0)
	})
}
