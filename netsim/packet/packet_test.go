// SPDX-License-Identifier: GPL-3.0-or-later

package packet

import (
	"net"
	"net/netip"
	"testing"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	srcMAC = net.HardwareAddr{0x02, 0, 0, 0, 0, 1}
	dstMAC = net.HardwareAddr{0x02, 0, 0, 0, 0, 2}
)

func newUDPFrame(t *testing.T, checksum bool) []byte {
	eth := &layers.Ethernet{SrcMAC: srcMAC, DstMAC: dstMAC, EthernetType: layers.EthernetTypeIPv4}
	ip := &layers.IPv4{
		Version:  4,
		TTL:      64,
		Protocol: layers.IPProtocolUDP,
		SrcIP:    net.IPv4(172, 20, 0, 2).To4(),
		DstIP:    net.IPv4(172, 20, 1, 2).To4(),
	}
	udp := &layers.UDP{SrcPort: 5353, DstPort: 9}
	require.NoError(t, udp.SetNetworkLayerForChecksum(ip))
	frame, err := Serialize(checksum, eth, ip, udp, gopacket.Payload("hello"))
	require.NoError(t, err)
	return frame
}

func TestDecode(t *testing.T) {
	t.Run("udp", func(t *testing.T) {
		pkt, err := Decode(newUDPFrame(t, true))
		require.NoError(t, err)
		require.NotNil(t, pkt.IPv4)
		require.NotNil(t, pkt.UDP)
		assert.Nil(t, pkt.ARP)
		assert.Nil(t, pkt.ICMPv4)
		assert.Equal(t, netip.MustParseAddr("172.20.0.2"), pkt.SrcAddr())
		assert.Equal(t, netip.MustParseAddr("172.20.1.2"), pkt.DstAddr())
		assert.Equal(t, []byte("hello"), pkt.UDP.Payload)
		assert.Equal(t, "172.20.0.2:5353 -> 172.20.1.2:9 udp ttl=64 length=5", pkt.String())
	})

	t.Run("arp", func(t *testing.T) {
		eth := &layers.Ethernet{SrcMAC: srcMAC, DstMAC: BroadcastMAC, EthernetType: layers.EthernetTypeARP}
		arp := &layers.ARP{
			AddrType:          layers.LinkTypeEthernet,
			Protocol:          layers.EthernetTypeIPv4,
			HwAddressSize:     6,
			ProtAddressSize:   4,
			Operation:         layers.ARPRequest,
			SourceHwAddress:   srcMAC,
			SourceProtAddress: []byte{172, 20, 0, 2},
			DstHwAddress:      make([]byte, 6),
			DstProtAddress:    []byte{172, 20, 0, 1},
		}
		frame, err := Serialize(true, eth, arp)
		require.NoError(t, err)
		pkt, err := Decode(frame)
		require.NoError(t, err)
		require.NotNil(t, pkt.ARP)
		assert.Nil(t, pkt.IPv4)
		assert.False(t, pkt.SrcAddr().IsValid())
		assert.Equal(t, "arp who-has 172.20.0.1 tell 172.20.0.2", pkt.String())
	})

	t.Run("icmp", func(t *testing.T) {
		eth := &layers.Ethernet{SrcMAC: srcMAC, DstMAC: dstMAC, EthernetType: layers.EthernetTypeIPv4}
		ip := &layers.IPv4{
			Version:  4,
			TTL:      1,
			Protocol: layers.IPProtocolICMPv4,
			SrcIP:    net.IPv4(172, 20, 0, 2).To4(),
			DstIP:    net.IPv4(172, 20, 0, 1).To4(),
		}
		icmp := &layers.ICMPv4{
			TypeCode: layers.CreateICMPv4TypeCode(layers.ICMPv4TypeEchoRequest, 0),
			Id:       1,
			Seq:      2,
		}
		frame, err := Serialize(true, eth, ip, icmp, gopacket.Payload("ping"))
		require.NoError(t, err)
		pkt, err := Decode(frame)
		require.NoError(t, err)
		require.NotNil(t, pkt.ICMPv4)
		assert.Equal(t, uint16(2), pkt.ICMPv4.Seq)
		assert.Contains(t, pkt.String(), "icmp EchoRequest")
	})

	t.Run("truncated", func(t *testing.T) {
		pkt, err := Decode([]byte{1, 2, 3})
		assert.ErrorIs(t, err, ErrTruncated)
		assert.Nil(t, pkt)
	})
}

func TestIPv4ChecksumValid(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		pkt, err := Decode(newUDPFrame(t, true))
		require.NoError(t, err)
		assert.True(t, IPv4ChecksumValid(pkt.IPv4))
	})

	t.Run("zero checksum without computing", func(t *testing.T) {
		pkt, err := Decode(newUDPFrame(t, false))
		require.NoError(t, err)
		assert.Equal(t, uint16(0), pkt.IPv4.Checksum)
		assert.False(t, IPv4ChecksumValid(pkt.IPv4))
	})

	t.Run("corrupted", func(t *testing.T) {
		frame := newUDPFrame(t, true)
		frame[MinFrameSize+8]-- // TTL
		pkt, err := Decode(frame)
		require.NoError(t, err)
		assert.False(t, IPv4ChecksumValid(pkt.IPv4))
	})
}

func TestDstMAC(t *testing.T) {
	mac, ok := DstMAC(newUDPFrame(t, true))
	require.True(t, ok)
	assert.Equal(t, dstMAC, mac)

	_, ok = DstMAC(nil)
	assert.False(t, ok)
}
