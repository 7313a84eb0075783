// SPDX-License-Identifier: GPL-3.0-or-later

package netipx_test

import (
	"net"
	"net/netip"
	"testing"

	"github.com/rbmk-project/chainemu/netipx"
	"github.com/stretchr/testify/assert"
)

func TestHost(t *testing.T) {
	tests := []struct {
		name   string
		prefix netip.Prefix
		n      uint32
		want   netip.Addr
		ok     bool
	}{
		{
			name:   "network address",
			prefix: netip.MustParsePrefix("172.20.3.0/24"),
			n:      0,
			want:   netip.MustParseAddr("172.20.3.0"),
			ok:     true,
		},

		{
			name:   "first host",
			prefix: netip.MustParsePrefix("172.20.3.0/24"),
			n:      1,
			want:   netip.MustParseAddr("172.20.3.1"),
			ok:     true,
		},

		{
			name:   "unmasked prefix",
			prefix: netip.MustParsePrefix("172.20.3.77/24"),
			n:      2,
			want:   netip.MustParseAddr("172.20.3.2"),
			ok:     true,
		},

		{
			name:   "outside of the prefix",
			prefix: netip.MustParsePrefix("172.20.3.0/24"),
			n:      256,
			ok:     false,
		},

		{
			name:   "IPv6 prefix",
			prefix: netip.MustParsePrefix("2001:db8::/64"),
			n:      1,
			ok:     false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := netipx.Host(tt.prefix, tt.n)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func TestBroadcast(t *testing.T) {
	got, ok := netipx.Broadcast(netip.MustParsePrefix("172.20.5.1/24"))
	assert.True(t, ok)
	assert.Equal(t, netip.MustParseAddr("172.20.5.255"), got)

	_, ok = netipx.Broadcast(netip.MustParsePrefix("2001:db8::/64"))
	assert.False(t, ok)
}

func TestMaskString(t *testing.T) {
	assert.Equal(t, "255.255.255.0", netipx.MaskString(netip.MustParsePrefix("172.20.0.0/24")))
	assert.Equal(t, "255.255.0.0", netipx.MaskString(netip.MustParsePrefix("172.20.0.0/16")))
	assert.Equal(t, "", netipx.MaskString(netip.MustParsePrefix("2001:db8::/64")))
}

func TestIPNet(t *testing.T) {
	got := netipx.IPNet(netip.MustParsePrefix("172.20.0.2/24"))
	assert.Equal(t, "172.20.0.2/24", got.String())
}

func TestAddrFromIP(t *testing.T) {
	addr, ok := netipx.AddrFromIP(net.ParseIP("172.20.1.1"))
	assert.True(t, ok)
	assert.True(t, addr.Is4())
	assert.Equal(t, netip.MustParseAddr("172.20.1.1"), addr)

	_, ok = netipx.AddrFromIP(nil)
	assert.False(t, ok)
}
