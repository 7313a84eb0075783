// SPDX-License-Identifier: GPL-3.0-or-later

package topology

import (
	"fmt"
	"net/netip"

	"github.com/rbmk-project/chainemu/netipx"
	"github.com/rbmk-project/common/runtimex"
)

// Supernet contains all the subnet blocks.
var Supernet = netip.MustParsePrefix("172.20.0.0/16")

// SubnetBits is the prefix length of a [SubnetBlock].
const SubnetBits = 24

// MaxBlocks is the number of distinct blocks inside [Supernet].
const MaxBlocks = 256

// SubnetBlock is the /24 subnet assigned to a single link.
type SubnetBlock struct {
	prefix netip.Prefix
}

// Prefix returns the block prefix (e.g., 172.20.3.0/24).
func (sb SubnetBlock) Prefix() netip.Prefix {
	return sb.prefix
}

// Host returns the n-th host address of the block with the block
// prefix length (e.g., 172.20.3.1/24 for n == 1).
func (sb SubnetBlock) Host(n uint32) netip.Prefix {
	addr, ok := netipx.Host(sb.prefix, n)
	bcast, _ := netipx.Broadcast(sb.prefix)
	runtimex.Assert(ok && n > 0 && addr != bcast, "host number out of range")
	return netip.PrefixFrom(addr, sb.prefix.Bits())
}

// Mask returns the dotted-decimal subnet mask.
func (sb SubnetBlock) Mask() string {
	return netipx.MaskString(sb.prefix)
}

// String returns the string representation of the block.
func (sb SubnetBlock) String() string {
	return sb.prefix.String()
}

// Allocator hands out one [SubnetBlock] per link, in link order.
//
// The zero value is ready to use.
type Allocator struct {
	allocated int
}

// Next returns the block for the given link index, which must be
// the number of blocks allocated so far.
func (a *Allocator) Next(linkIndex int) SubnetBlock {
	runtimex.Assert(linkIndex == a.allocated, "link indexes must be allocated in order")
	runtimex.Assert(linkIndex >= 0 && linkIndex < MaxBlocks, "link index out of range")
	a.allocated++
	base := Supernet.Addr().As4()
	prefix := netip.PrefixFrom(netip.AddrFrom4([4]byte{base[0], base[1], byte(linkIndex), 0}), SubnetBits)
	return SubnetBlock{prefix: prefix}
}

// Allocated returns the number of blocks allocated so far.
func (a *Allocator) Allocated() int {
	return a.allocated
}

// ParseSubnetBlock parses the string representation of a [SubnetBlock].
func ParseSubnetBlock(value string) (SubnetBlock, error) {
	prefix, err := netip.ParsePrefix(value)
	if err != nil {
		return SubnetBlock{}, err
	}
	if prefix.Bits() != SubnetBits || !Supernet.Contains(prefix.Addr()) || prefix.Masked() != prefix {
		return SubnetBlock{}, fmt.Errorf("not a subnet block: %s", value)
	}
	return SubnetBlock{prefix: prefix}, nil
}
