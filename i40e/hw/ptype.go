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

package hw

// The receive descriptor reports an 8-bit packet-type index. The hardware
// ptype space is structured: indices 0-21 are L2/control traffic, 22-87
// describe frames with an outer IPv4 header, 88-153 the same shapes with
// an outer IPv6 header, and 154-255 are reserved. Within each outer-IP
// block the same 66-entry pattern repeats: plain L3/L4 first, then the
// IP-in-IP and GRE/NAT tunnel variants with their inner protocols.

// IPVer names an IP header version in the ptype decode.
type IPVer uint8

const (
	IPVerNone IPVer = iota
	IPVer4
	IPVer6
)

// TunnelType names the tunnel shape the hardware recognized.
type TunnelType uint8

const (
	TunnelNone TunnelType = iota
	TunnelIPIP
	TunnelGrenat
	TunnelGrenatMAC
	TunnelGrenatMACVLAN
)

// InnerProt names the innermost L4 protocol the hardware recognized.
type InnerProt uint8

const (
	InnerProtNone InnerProt = iota
	InnerProtUDP
	InnerProtTCP
	InnerProtSCTP
	InnerProtICMP
)

// PtypeInfo is the decoded form of one packet-type index.
type PtypeInfo struct {
	Known         bool
	OuterIP       bool
	OuterIPVer    IPVer
	OuterFrag     bool
	Tunnel        TunnelType
	TunnelEnd     IPVer
	TunnelEndFrag bool
	InnerProt     InnerProt
}

var ptypeTable [256]PtypeInfo

// DecodePtype returns the decoded descriptor for a packet-type index.
// Reserved indices decode with Known == false.
func DecodePtype(ptype uint8) PtypeInfo {
	return ptypeTable[ptype]
}

func init() {
	// L2 and control traffic. Index 0 is reserved.
	for pt := 1; pt <= 21; pt++ {
		ptypeTable[pt] = PtypeInfo{Known: true}
	}
	fillOuter(22, IPVer4)
	fillOuter(88, IPVer6)
}

// fillOuter populates the 66-entry block for one outer IP version.
func fillOuter(base int, outer IPVer) {
	pt := base
	pt = fillL4(pt, outer, TunnelNone, IPVerNone)
	for _, end := range []IPVer{IPVer4, IPVer6} {
		pt = fillL4(pt, outer, TunnelIPIP, end)
	}
	for _, tnl := range []TunnelType{TunnelGrenat, TunnelGrenatMAC, TunnelGrenatMACVLAN} {
		ptypeTable[pt] = PtypeInfo{
			Known: true, OuterIP: true, OuterIPVer: outer, Tunnel: tnl,
		}
		pt++
		for _, end := range []IPVer{IPVer4, IPVer6} {
			pt = fillL4(pt, outer, tnl, end)
		}
	}
}

// fillL4 populates one 7-entry {frag, plain, udp, rsvd, tcp, sctp, icmp}
// group and returns the next index. With no tunnel the group describes the
// outer header itself; inside a tunnel it describes the tunnel end.
func fillL4(pt int, outer IPVer, tnl TunnelType, end IPVer) int {
	prots := []struct {
		frag  bool
		known bool
		prot  InnerProt
	}{
		{frag: true, known: true},
		{known: true},
		{known: true, prot: InnerProtUDP},
		{}, // reserved
		{known: true, prot: InnerProtTCP},
		{known: true, prot: InnerProtSCTP},
		{known: true, prot: InnerProtICMP},
	}
	for _, p := range prots {
		info := PtypeInfo{
			Known:      p.known,
			OuterIP:    p.known,
			OuterIPVer: outer,
			Tunnel:     tnl,
			TunnelEnd:  end,
			InnerProt:  p.prot,
		}
		if tnl == TunnelNone {
			info.OuterFrag = p.frag
		} else {
			info.TunnelEndFrag = p.frag
		}
		if !p.known {
			info = PtypeInfo{}
		}
		ptypeTable[pt] = info
		pt++
	}
	return pt
}
