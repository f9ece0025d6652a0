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
	"github.com/nfvworks/fortville/i40e/hw"
	"github.com/nfvworks/fortville/i40e/mblk"
)

const (
	etherTypeIPv4 = 0x0800
	etherTypeVLAN = 0x8100
	etherTypeIPv6 = 0x86DD

	ipProtoTCP  = 6
	ipProtoUDP  = 17
	ipProtoSCTP = 132

	etherHdrLen     = 14
	etherVLANHdrLen = 18
	udpHdrLen       = 8
	sctpHdrLen      = 12
	vxlanHdrLen     = 8
)

// Flags recording which layers of etherOffloadInfo were resolved.
const (
	meoiL2Info uint8 = 1 << iota
	meoiVLANTagged
	meoiL3Info
	meoiL4Info
	meoiTunnelInfo
)

const meoiL2L3L4 = meoiL2Info | meoiL3Info | meoiL4Info

// etherOffloadInfo is the header geometry of a frame about to be
// transmitted, extracted by walking the unpulled fragment chain.
type etherOffloadInfo struct {
	flags   uint8
	l2hlen  int
	l3proto uint16
	l3hlen  int
	l4proto uint8
	l4hlen  int

	// Inner geometry when the frame is tunneled.
	tunProtlen int
	tunL2hlen  int
	tunL3proto uint16
	tunL3hlen  int
	tunL4proto uint8
	tunL4hlen  int
}

// meoiGetUint8 fetches the byte at absolute offset off of the fragment
// chain. The offset may land in any fragment.
func meoiGetUint8(mp *mblk.Message, off int) (uint8, bool) {
	// Bounds are validated against a two-byte read; see the matching
	// uint16 fetch.
	if off+2 > mp.ChainLen() {
		return 0, false
	}
	size := mp.Len()
	for off >= size {
		mp = mp.Cont()
		off -= size
		size = mp.Len()
	}
	return mp.Bytes()[off], true
}

// meoiGetUint16 fetches the big-endian 16-bit value at absolute offset
// off. The two bytes may straddle a fragment boundary.
func meoiGetUint16(mp *mblk.Message, off int) (uint16, bool) {
	if off+2 > mp.ChainLen() {
		return 0, false
	}
	size := mp.Len()
	for off >= size {
		mp = mp.Cont()
		off -= size
		size = mp.Len()
	}
	out := uint16(mp.Bytes()[off]) << 8
	if off+1 == size {
		mp = mp.Cont()
		out |= uint16(mp.Bytes()[0])
	} else {
		out |= uint16(mp.Bytes()[off+1])
	}
	return out, true
}

// parseEtherOffloadInfo walks the fragment chain, without coalescing,
// to find the L2/L3/L4 header lengths and protocols starting at
// startingOff. For a VXLAN frame it recurses past the outer headers to
// fill in the inner geometry as well.
func parseEtherOffloadInfo(mp *mblk.Message, ttype mblk.TunnelType,
	startingOff int) (etherOffloadInfo, bool) {

	var meoi etherOffloadInfo

	if ttype != mblk.TunnelNone && ttype != mblk.TunnelVXLAN {
		return meoi, false
	}

	ether, ok := meoiGetUint16(mp, 12+startingOff)
	if !ok {
		return meoi, false
	}
	maclen := etherHdrLen
	if ether == etherTypeVLAN {
		if ether, ok = meoiGetUint16(mp, 16+startingOff); !ok {
			return meoi, false
		}
		meoi.flags |= meoiVLANTagged
		maclen = etherVLANHdrLen
	}
	meoi.flags |= meoiL2Info
	meoi.l2hlen = maclen
	meoi.l3proto = ether

	var iplen int
	var ipproto uint8
	switch ether {
	case etherTypeIPv4:
		// The IPv4 header length is variable; read it out of the
		// version/IHL byte.
		verIHL, ok := meoiGetUint8(mp, maclen+startingOff)
		if !ok {
			return meoi, false
		}
		ihl := int(verIHL & 0x0F)
		if ihl < 5 {
			return meoi, false
		}
		iplen = ihl * 4
		if ipproto, ok = meoiGetUint8(mp, maclen+9+startingOff); !ok {
			return meoi, false
		}
	case etherTypeIPv6:
		iplen = 40
		if ipproto, ok = meoiGetUint8(mp, maclen+6+startingOff); !ok {
			return meoi, false
		}
	default:
		return meoi, true
	}
	meoi.l3hlen = iplen
	meoi.l4proto = ipproto
	meoi.flags |= meoiL3Info

	var l4len int
	switch ipproto {
	case ipProtoTCP:
		offByte, ok := meoiGetUint8(mp, maclen+iplen+12+startingOff)
		if !ok {
			return meoi, false
		}
		dataOff := int(offByte&0xF0) >> 4
		if dataOff < 5 {
			return meoi, false
		}
		l4len = dataOff * 4
	case ipProtoUDP:
		l4len = udpHdrLen
	case ipProtoSCTP:
		l4len = sctpHdrLen
	default:
		return meoi, true
	}
	meoi.l4hlen = l4len
	meoi.flags |= meoiL4Info

	if ttype == mblk.TunnelVXLAN {
		// Tunneling is only recognized within UDP.
		if ipproto != ipProtoUDP {
			return meoi, false
		}
		inner, ok := parseEtherOffloadInfo(mp, mblk.TunnelNone,
			maclen+iplen+l4len+vxlanHdrLen)
		if !ok {
			return meoi, false
		}
		if inner.flags&meoiL2L3L4 != meoiL2L3L4 {
			return meoi, false
		}
		meoi.tunProtlen = vxlanHdrLen
		meoi.tunL2hlen = inner.l2hlen
		meoi.tunL3proto = inner.l3proto
		meoi.tunL3hlen = inner.l3hlen
		meoi.tunL4proto = inner.l4proto
		meoi.tunL4hlen = inner.l4hlen
		meoi.flags |= meoiTunnelInfo
	}

	return meoi, true
}

// txContext is the decoded offload request for one frame: the flags and
// offsets destined for the data descriptors, and the fields of the
// context descriptor when one is needed.
type txContext struct {
	dataCmdflags uint64
	dataOffsets  uint32
	ctxTunneled  bool
	ctxTunnelFld uint32
	ctxCmdflags  uint64
	ctxTsolen    int
	ctxMss       int
}

// deriveTxContext composes the descriptor programming for the offloads
// requested on mp. A false return means the request cannot be honored
// and the frame must be dropped.
func (t *TrqPair) deriveTxContext(mp *mblk.Message, tctx *txContext) bool {
	*tctx = txContext{}
	if !t.dev.cfg.TxHcksumEnable {
		return true
	}

	chkflags := mp.ChecksumRequest()
	mss, lso := mp.LSO()
	ttype := mp.TunnelType()

	if chkflags == 0 && !lso {
		return true
	}

	// An inner-checksum request implies a tunneled frame and requires a
	// recognized tunnel type.
	tunneled := chkflags&(mblk.HckInnerV4Needed|mblk.HckInnerPseudoNeeded) != 0
	if tunneled && ttype != mblk.TunnelVXLAN {
		t.txStat.HckNoTunnel.Inc()
		return false
	}
	tctx.ctxTunneled = tunneled

	meo, ok := parseEtherOffloadInfo(mp, ttype, 0)
	if !ok {
		t.txStat.HckMeoiFail.Inc()
		return false
	}

	if tunneled {
		// Layout over the wire:
		//   outer MAC | external IP | UDP | VXLAN | inner MAC | inner IP | L4
		//   <-MACLEN-> <--EIPLEN--> <---L4TUNLEN----> <-IPLEN-> <-L4LEN->
		if meo.flags&meoiL2Info == 0 {
			t.txStat.HckNoL2Info.Inc()
			return false
		}
		if meo.flags&meoiL3Info == 0 {
			t.txStat.HckNoL3Info.Inc()
			return false
		}
		if meo.flags&meoiL4Info == 0 || meo.l4proto != ipProtoUDP {
			t.txStat.HckBadL4.Inc()
			return false
		}
		if meo.flags&meoiTunnelInfo == 0 {
			t.txStat.HckMeoiFail.Inc()
			return false
		}
		// There is no hardware support for any outer L4 checksum.
		if chkflags&mblk.HckPartial != 0 {
			t.txStat.HckBadL4.Inc()
			return false
		}

		l4tunlen := meo.l4hlen + meo.tunL2hlen + meo.tunProtlen

		var eipt uint32
		if chkflags&mblk.HckIPv4HdrCksum != 0 {
			if meo.l3proto != etherTypeIPv4 {
				t.txStat.HckBadL3.Inc()
				return false
			}
			eipt = hw.TxTnlEIPTIPv4Csum
		} else {
			switch meo.l3proto {
			case etherTypeIPv4:
				eipt = hw.TxTnlEIPTIPv4
			case etherTypeIPv6:
				eipt = hw.TxTnlEIPTIPv6
			default:
				t.txStat.HckBadL3.Inc()
				return false
			}
		}
		tctx.ctxTunnelFld = hw.TnlParams(eipt, meo.l3hlen>>2,
			hw.TxTnlL4TunTUDP, l4tunlen>>1, 0)

		// The MAC length covers the outer header, tunneled or not.
		tctx.dataOffsets |= uint32(meo.l2hlen>>1) << hw.TxOffMACLenShift

		// When tunneled, IIPT applies to the inner IP header.
		if chkflags&mblk.HckInnerV4Needed != 0 {
			if meo.tunL3proto != etherTypeIPv4 {
				t.txStat.HckBadL3.Inc()
				return false
			}
			tctx.dataCmdflags |= hw.TxCmdIIPTIPv4Csum
		} else {
			switch meo.tunL3proto {
			case etherTypeIPv4:
				tctx.dataCmdflags |= hw.TxCmdIIPTIPv4
			case etherTypeIPv6:
				tctx.dataCmdflags |= hw.TxCmdIIPTIPv6
			default:
				t.txStat.HckBadL3.Inc()
				return false
			}
		}
		tctx.dataOffsets |= uint32(meo.tunL3hlen>>2) << hw.TxOffIPLenShift

		if chkflags&mblk.HckInnerPseudoNeeded != 0 {
			switch meo.tunL4proto {
			case ipProtoTCP:
				tctx.dataCmdflags |= hw.TxCmdL4TTCP
			case ipProtoUDP:
				tctx.dataCmdflags |= hw.TxCmdL4TUDP
			case ipProtoSCTP:
				tctx.dataCmdflags |= hw.TxCmdL4TSCTP
			default:
				t.txStat.HckBadL4.Inc()
				return false
			}
			// Setting L4LEN is what initiates the inner L4 checksum.
			tctx.dataOffsets |= uint32(meo.tunL4hlen>>2) << hw.TxOffL4LenShift
		}
	} else {
		if chkflags&mblk.HckIPv4HdrCksum != 0 {
			if meo.flags&meoiL2Info == 0 {
				t.txStat.HckNoL2Info.Inc()
				return false
			}
			if meo.flags&meoiL3Info == 0 {
				t.txStat.HckNoL3Info.Inc()
				return false
			}
			if meo.l3proto != etherTypeIPv4 {
				t.txStat.HckBadL3.Inc()
				return false
			}
			tctx.dataCmdflags |= hw.TxCmdIIPTIPv4Csum
			tctx.dataOffsets |= uint32(meo.l2hlen>>1) << hw.TxOffMACLenShift
			tctx.dataOffsets |= uint32(meo.l3hlen>>2) << hw.TxOffIPLenShift
		}

		if chkflags&mblk.HckPartial != 0 {
			if meo.flags&meoiL4Info == 0 {
				t.txStat.HckNoL4Info.Inc()
				return false
			}

			// The IP programming may already be in place from the header
			// checksum request above.
			if chkflags&mblk.HckIPv4HdrCksum == 0 {
				if meo.flags&meoiL2Info == 0 {
					t.txStat.HckNoL2Info.Inc()
					return false
				}
				if meo.flags&meoiL3Info == 0 {
					t.txStat.HckNoL3Info.Inc()
					return false
				}
				switch meo.l3proto {
				case etherTypeIPv4:
					tctx.dataCmdflags |= hw.TxCmdIIPTIPv4
				case etherTypeIPv6:
					tctx.dataCmdflags |= hw.TxCmdIIPTIPv6
				default:
					t.txStat.HckBadL3.Inc()
					return false
				}
				tctx.dataOffsets |= uint32(meo.l2hlen>>1) << hw.TxOffMACLenShift
				tctx.dataOffsets |= uint32(meo.l3hlen>>2) << hw.TxOffIPLenShift
			}

			switch meo.l4proto {
			case ipProtoTCP:
				tctx.dataCmdflags |= hw.TxCmdL4TTCP
			case ipProtoUDP:
				tctx.dataCmdflags |= hw.TxCmdL4TUDP
			case ipProtoSCTP:
				tctx.dataCmdflags |= hw.TxCmdL4TSCTP
			default:
				t.txStat.HckBadL4.Inc()
				return false
			}
			tctx.dataOffsets |= uint32(meo.l4hlen>>2) << hw.TxOffL4LenShift
		}
	}

	if lso {
		// Segmentation needs both checksum offloads alongside it.
		if chkflags&mblk.HckIPv4HdrCksum == 0 || chkflags&mblk.HckPartial == 0 {
			return false
		}
		tctx.ctxCmdflags |= hw.TxCtxCmdTSO
		tctx.ctxMss = int(mss)
		tctx.ctxTsolen = mp.ChainLen() - (meo.l2hlen + meo.l3hlen + meo.l4hlen)
	}

	return true
}
