// SPDX-License-Identifier: GPL-3.0-or-later

// Package packet contains [*Packet] and the related definitions.
package packet

import (
	"encoding/binary"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"strconv"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/rbmk-project/chainemu/netipx"
)

// BroadcastMAC is the Ethernet broadcast address.
var BroadcastMAC = net.HardwareAddr{0xff, 0xff, 0xff, 0xff, 0xff, 0xff}

// MinFrameSize is the size of the Ethernet header.
const MinFrameSize = 14

// ErrTruncated is returned when a frame is too short to decode.
var ErrTruncated = errors.New("truncated frame")

// Packet is a decoded Ethernet frame.
//
// Layers that are not present in the frame are nil.
type Packet struct {
	// Ethernet is the Ethernet header.
	Ethernet *layers.Ethernet

	// ARP is the ARP message, if any.
	ARP *layers.ARP

	// IPv4 is the IPv4 header, if any.
	IPv4 *layers.IPv4

	// ICMPv4 is the ICMPv4 header, if any.
	ICMPv4 *layers.ICMPv4

	// UDP is the UDP header, if any.
	UDP *layers.UDP
}

// Decode decodes a raw Ethernet frame. The returned [*Packet] does
// not share memory with the given frame.
func Decode(frame []byte) (*Packet, error) {
	if len(frame) < MinFrameSize {
		return nil, ErrTruncated
	}
	gp := gopacket.NewPacket(frame, layers.LayerTypeEthernet, gopacket.Default)
	pkt := &Packet{}
	if layer, ok := gp.Layer(layers.LayerTypeEthernet).(*layers.Ethernet); ok {
		pkt.Ethernet = layer
	}
	if layer, ok := gp.Layer(layers.LayerTypeARP).(*layers.ARP); ok {
		pkt.ARP = layer
	}
	if layer, ok := gp.Layer(layers.LayerTypeIPv4).(*layers.IPv4); ok {
		pkt.IPv4 = layer
	}
	if layer, ok := gp.Layer(layers.LayerTypeICMPv4).(*layers.ICMPv4); ok {
		pkt.ICMPv4 = layer
	}
	if layer, ok := gp.Layer(layers.LayerTypeUDP).(*layers.UDP); ok {
		pkt.UDP = layer
	}
	if pkt.Ethernet == nil {
		return nil, ErrTruncated
	}
	// A broken upper layer is fine as long as we could read the
	// headers we need to route the frame.
	if errLayer := gp.ErrorLayer(); errLayer != nil && pkt.ARP == nil && pkt.IPv4 == nil {
		return nil, fmt.Errorf("cannot decode frame: %w", errLayer.Error())
	}
	return pkt, nil
}

// SrcAddr returns the IPv4 source address or the zero value.
func (p *Packet) SrcAddr() netip.Addr {
	if p.IPv4 == nil {
		return netip.Addr{}
	}
	addr, _ := netipx.AddrFromIP(p.IPv4.SrcIP)
	return addr
}

// DstAddr returns the IPv4 destination address or the zero value.
func (p *Packet) DstAddr() netip.Addr {
	if p.IPv4 == nil {
		return netip.Addr{}
	}
	addr, _ := netipx.AddrFromIP(p.IPv4.DstIP)
	return addr
}

// String returns the string representation of the packet.
func (p *Packet) String() string {
	switch {
	case p.ARP != nil:
		return p.stringARP()
	case p.UDP != nil:
		return p.stringUDP()
	case p.ICMPv4 != nil:
		return p.stringICMPv4()
	case p.IPv4 != nil:
		return p.stringOtherwise()
	default:
		return fmt.Sprintf(
			"%s -> %s %s length=%d",
			p.Ethernet.SrcMAC,
			p.Ethernet.DstMAC,
			p.Ethernet.EthernetType,
			len(p.Ethernet.Payload),
		)
	}
}

// stringARP returns the string representation of ARP packets.
func (p *Packet) stringARP() string {
	target := net.IP(p.ARP.DstProtAddress)
	sender := net.IP(p.ARP.SourceProtAddress)
	if p.ARP.Operation == layers.ARPRequest {
		return fmt.Sprintf("arp who-has %s tell %s", target, sender)
	}
	return fmt.Sprintf("arp %s is-at %s", sender, net.HardwareAddr(p.ARP.SourceHwAddress))
}

// stringUDP returns the string representation of UDP packets.
func (p *Packet) stringUDP() string {
	return fmt.Sprintf(
		"%s -> %s udp ttl=%d length=%d",
		net.JoinHostPort(p.SrcAddr().String(), strconv.Itoa(int(p.UDP.SrcPort))),
		net.JoinHostPort(p.DstAddr().String(), strconv.Itoa(int(p.UDP.DstPort))),
		p.IPv4.TTL,
		len(p.UDP.Payload),
	)
}

// stringICMPv4 returns the string representation of ICMPv4 packets.
func (p *Packet) stringICMPv4() string {
	return fmt.Sprintf(
		"%s -> %s icmp %s ttl=%d length=%d",
		p.SrcAddr(),
		p.DstAddr(),
		p.ICMPv4.TypeCode,
		p.IPv4.TTL,
		len(p.ICMPv4.Payload),
	)
}

// stringOtherwise returns the string representation of other IPv4 packets.
func (p *Packet) stringOtherwise() string {
	return fmt.Sprintf(
		"%s -> %s %s ttl=%d length=%d",
		p.SrcAddr(),
		p.DstAddr(),
		p.IPv4.Protocol,
		p.IPv4.TTL,
		len(p.IPv4.Payload),
	)
}

// DstMAC returns the destination MAC address of a raw frame without
// decoding it, or false if the frame is truncated.
func DstMAC(frame []byte) (net.HardwareAddr, bool) {
	if len(frame) < MinFrameSize {
		return nil, false
	}
	return net.HardwareAddr(frame[0:6]), true
}

// IPv4ChecksumValid returns whether the header checksum of the given
// decoded IPv4 header is correct.
func IPv4ChecksumValid(ip *layers.IPv4) bool {
	header := ip.Contents
	if len(header) < 20 || len(header)%2 != 0 {
		return false
	}
	var sum uint32
	for idx := 0; idx < len(header); idx += 2 {
		sum += uint32(binary.BigEndian.Uint16(header[idx:]))
	}
	for sum > 0xffff {
		sum = (sum >> 16) + (sum & 0xffff)
	}
	return sum == 0xffff
}

// SerializeOptions returns the options to serialize frames given
// whether checksums are enabled.
func SerializeOptions(checksum bool) gopacket.SerializeOptions {
	return gopacket.SerializeOptions{
		FixLengths:       true,
		ComputeChecksums: checksum,
	}
}

// Serialize serializes the given layers into a new frame. When
// checksums are disabled, the IPv4 header checksum is zeroed.
func Serialize(checksum bool, ls ...gopacket.SerializableLayer) ([]byte, error) {
	if !checksum {
		for _, layer := range ls {
			if ip, ok := layer.(*layers.IPv4); ok {
				ip.Checksum = 0
			}
		}
	}
	buf := gopacket.NewSerializeBuffer()
	if err := gopacket.SerializeLayers(buf, SerializeOptions(checksum), ls...); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
