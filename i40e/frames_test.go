// Copyright 2026 NFV Works
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//   http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package i40e

import (
	"net"
	"testing"

	"github.com/gopacket/gopacket"
	"github.com/gopacket/gopacket/layers"
	"github.com/stretchr/testify/require"
)

var (
	testSrcMAC = net.HardwareAddr{0x02, 0x00, 0x00, 0x00, 0x00, 0x01}
	testDstMAC = net.HardwareAddr{0x02, 0x00, 0x00, 0x00, 0x00, 0x02}
)

// buildTCPFrame serializes an Ethernet/IPv4/TCP frame with the given
// payload length: a 14-byte MAC header, 20-byte IP header, 20-byte TCP
// header.
func buildTCPFrame(t *testing.T, payloadLen int, vlan bool) []byte {
	t.Helper()
	eth := &layers.Ethernet{
		SrcMAC:       testSrcMAC,
		DstMAC:       testDstMAC,
		EthernetType: layers.EthernetTypeIPv4,
	}
	ip := &layers.IPv4{
		Version:  4,
		IHL:      5,
		TTL:      64,
		Protocol: layers.IPProtocolTCP,
		SrcIP:    net.IP{10, 0, 0, 1},
		DstIP:    net.IP{10, 0, 0, 2},
	}
	tcp := &layers.TCP{SrcPort: 49152, DstPort: 80, DataOffset: 5}

	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true}
	stack := []gopacket.SerializableLayer{
		eth, ip, tcp, gopacket.Payload(make([]byte, payloadLen)),
	}
	if vlan {
		eth.EthernetType = layers.EthernetTypeDot1Q
		dot1q := &layers.Dot1Q{VLANIdentifier: 7, Type: layers.EthernetTypeIPv4}
		stack = []gopacket.SerializableLayer{
			eth, dot1q, ip, tcp, gopacket.Payload(make([]byte, payloadLen)),
		}
	}
	require.NoError(t, gopacket.SerializeLayers(buf, opts, stack...))
	return buf.Bytes()
}

// buildUDPv6Frame serializes an Ethernet/IPv6/UDP frame.
func buildUDPv6Frame(t *testing.T, payloadLen int) []byte {
	t.Helper()
	eth := &layers.Ethernet{
		SrcMAC:       testSrcMAC,
		DstMAC:       testDstMAC,
		EthernetType: layers.EthernetTypeIPv6,
	}
	ip := &layers.IPv6{
		Version:    6,
		HopLimit:   64,
		NextHeader: layers.IPProtocolUDP,
		SrcIP:      net.ParseIP("2001:db8::1"),
		DstIP:      net.ParseIP("2001:db8::2"),
	}
	udp := &layers.UDP{SrcPort: 49152, DstPort: 4789}

	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true}
	require.NoError(t, gopacket.SerializeLayers(buf, opts,
		eth, ip, udp, gopacket.Payload(make([]byte, payloadLen))))
	return buf.Bytes()
}

// buildVXLANFrame serializes outer Ethernet/IPv4/UDP/VXLAN around an
// inner Ethernet/IPv4/TCP frame.
func buildVXLANFrame(t *testing.T, innerPayloadLen int) []byte {
	t.Helper()
	eth := &layers.Ethernet{
		SrcMAC:       testSrcMAC,
		DstMAC:       testDstMAC,
		EthernetType: layers.EthernetTypeIPv4,
	}
	ip := &layers.IPv4{
		Version:  4,
		IHL:      5,
		TTL:      64,
		Protocol: layers.IPProtocolUDP,
		SrcIP:    net.IP{192, 0, 2, 1},
		DstIP:    net.IP{192, 0, 2, 2},
	}
	udp := &layers.UDP{SrcPort: 49152, DstPort: 4789}
	vxlan := &layers.VXLAN{ValidIDFlag: true, VNI: 42}
	innerEth := &layers.Ethernet{
		SrcMAC:       testDstMAC,
		DstMAC:       testSrcMAC,
		EthernetType: layers.EthernetTypeIPv4,
	}
	innerIP := &layers.IPv4{
		Version:  4,
		IHL:      5,
		TTL:      64,
		Protocol: layers.IPProtocolTCP,
		SrcIP:    net.IP{10, 0, 0, 1},
		DstIP:    net.IP{10, 0, 0, 2},
	}
	innerTCP := &layers.TCP{SrcPort: 49152, DstPort: 443, DataOffset: 5}

	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true}
	require.NoError(t, gopacket.SerializeLayers(buf, opts,
		eth, ip, udp, vxlan, innerEth, innerIP, innerTCP,
		gopacket.Payload(make([]byte, innerPayloadLen))))
	return buf.Bytes()
}
