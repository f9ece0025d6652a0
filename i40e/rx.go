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
	"github.com/nfvworks/fortville/i40e/dma"
	"github.com/nfvworks/fortville/i40e/hw"
	"github.com/nfvworks/fortville/i40e/mblk"
)

// pollNone marks an rx pass without a byte quota (interrupt context).
const pollNone = -1

// rcbFree pushes a control block back onto the ring's free list.
func rcbFree(rxd *rxData, rcb *rxControlBlock) {
	rxd.freeLock.Lock()
	rxd.freeList[rxd.rcbFree] = rcb
	rxd.rcbFree++
	rxd.freeLock.Unlock()
}

// rcbAlloc pops a control block from the free list, or nil if the list
// is empty.
func rcbAlloc(rxd *rxData) *rxControlBlock {
	rxd.freeLock.Lock()
	defer rxd.freeLock.Unlock()
	if rxd.rcbFree == 0 {
		return nil
	}
	rxd.rcbFree--
	rcb := rxd.freeList[rxd.rcbFree]
	rxd.freeList[rxd.rcbFree] = nil
	return rcb
}

// recycleFunc returns the free callback baked into this block's loanable
// message wrapper.
func (rcb *rxControlBlock) recycleFunc() func() {
	return func() { rxRecycle(rcb) }
}

// rxRecycle runs when the upper stack releases a loaned buffer. It
// rebuilds the message wrapper around the same memory, returns the block
// to the free list, and drops the loan's reference. Whoever takes the
// last reference - only possible once teardown has begun - destroys the
// buffer, settles the pending counts, and, for the final block of a ring,
// releases the rxData itself and wakes the teardown rendezvous.
func rxRecycle(rcb *rxControlBlock) {
	rxd := rcb.rxd
	dev := rxd.dev

	// A zero count means this callback fired from the teardown path's own
	// wrapper free, after the last reference was already taken.
	if rcb.ref.Load() == 0 {
		return
	}

	rcb.mp = dev.loanMsg(rcb.dmaBuf.KernelAddress(), rcb.recycleFunc())
	rcbFree(rxd, rcb)

	if rcb.ref.Add(-1) == 0 {
		if rcb.mp != nil {
			rcb.mp.Free()
			rcb.mp = nil
		}
		rcb.dmaBuf.Free()

		dev.rxPendingMu.Lock()
		rxd.rcbPending.Add(-1)
		dev.rxPending.Add(-1)
		if rxd.shutdown && rxd.rcbPending.Load() == 0 {
			dev.freeRxData(rxd)
			dev.rxPendingCond.Broadcast()
		}
		dev.rxPendingMu.Unlock()
	}
}

// rxBind loans the working buffer at index upward and swaps a replacement
// block into the working slot. Fails (returning nil) when no replacement
// is available, when the wrapper cannot be rebuilt, or when the DMA
// handle reports a fault; the caller falls back to copying.
func (t *TrqPair) rxBind(rxd *rxData, index, plen int) *mblk.Message {
	repRcb := rcbAlloc(rxd)
	if repRcb == nil {
		t.rxStat.BindNoRCB.Inc()
		return nil
	}
	rcb := rxd.workList[index]

	// The wrapper rebuild in the recycle path can fail silently; this is
	// the last chance to get one.
	if rcb.mp == nil {
		rcb.mp = t.dev.loanMsg(rcb.dmaBuf.KernelAddress(), rcb.recycleFunc())
		if rcb.mp == nil {
			t.rxStat.BindNoBuf.Inc()
			rcbFree(rxd, repRcb)
			return nil
		}
	}

	rcb.dmaBuf.Sync(dma.SyncForKernel)
	if err := rcb.dmaBuf.CheckHandle(); err != nil {
		t.dev.setError(err)
		rcbFree(rxd, repRcb)
		return nil
	}

	mp := rcb.mp
	rcb.ref.Add(1)
	mp.SetWriter(plen)
	mp.SetNext(nil)
	mp.SetCont(nil)

	rxd.workList[index] = repRcb
	return mp
}

// rxCopy copies the received payload into a fresh upper-stack message,
// leaving the working buffer in place for immediate reuse.
func (t *TrqPair) rxCopy(rxd *rxData, index, plen int) *mblk.Message {
	rcb := rxd.workList[index]

	rcb.dmaBuf.Sync(dma.SyncForKernel)
	if err := rcb.dmaBuf.CheckHandle(); err != nil {
		t.dev.setError(err)
		return nil
	}

	mp := t.dev.allocMsg(plen + bufIPHdrAlignment)
	if mp == nil {
		t.rxStat.CopyNoMem.Inc()
		return nil
	}
	mp.AdvanceReader(bufIPHdrAlignment)
	mp.Append(rcb.dmaBuf.KernelAddress()[:plen])
	return mp
}

// rxHcksum interprets the hardware checksum verdict for a delivered
// frame. The level of checksum reported depends on the packet type:
// outer and inner IPv4 header results, and full L4 results for the
// non-tunneled and recognized GRE/NAT-MAC tunneled cases. IPv6 frames
// with extension headers are never trusted.
func (t *TrqPair) rxHcksum(mp *mblk.Message, status uint64, errBits uint32, ptype uint8) {
	var cksum uint32
	pinfo := hw.DecodePtype(ptype)

	if !pinfo.Known {
		t.rxStat.HckUnknown.Inc()
		return
	}
	if status&hw.RxStatusL3L4P == 0 {
		t.rxStat.HckNoL3L4P.Inc()
		return
	}
	if pinfo.OuterIP && pinfo.OuterIPVer == hw.IPVer6 &&
		status&hw.RxStatusIPv6ExAdd != 0 {
		t.rxStat.HckV6Skip.Inc()
		return
	}

	// Outer IPv4 header. The error bit to consult depends on whether the
	// frame is tunneled: IPE covers the only IP header, EIPE the external
	// one.
	if pinfo.OuterIP && pinfo.OuterIPVer == hw.IPVer4 {
		if pinfo.Tunnel == hw.TunnelNone {
			if errBits&hw.RxErrIPE != 0 {
				t.rxStat.HckIPErr.Inc()
			} else {
				t.rxStat.HckV4OK.Inc()
				cksum |= mblk.HckIPv4HdrOK
			}
		} else {
			if errBits&hw.RxErrEIPE != 0 {
				t.rxStat.HckEIPErr.Inc()
			} else {
				t.rxStat.HckV4OK.Inc()
				cksum |= mblk.HckIPv4HdrOK
			}
		}
	}

	if !pinfo.OuterFrag {
		// Tunneled frames with an inner IPv4 header report the inner
		// header verdict through IPE.
		if pinfo.Tunnel != hw.TunnelNone && pinfo.TunnelEnd == hw.IPVer4 {
			if errBits&hw.RxErrIPE != 0 {
				t.rxStat.HckIPErr.Inc()
			} else {
				t.rxStat.HckV4OK.Inc()
				cksum |= mblk.HckInnerV4HdrOK
			}
		}

		if ptypeNontunnelL4(pinfo) {
			if errBits&hw.RxErrL4E != 0 {
				t.rxStat.HckL4Err.Inc()
			} else {
				t.rxStat.HckL4OK.Inc()
				cksum |= mblk.HckFullOK
			}
		}

		if ptypeTunnelInnerL4(pinfo) {
			if errBits&hw.RxErrL4E != 0 {
				t.rxStat.HckL4Err.Inc()
			} else {
				t.rxStat.HckL4OK.Inc()
				cksum |= mblk.HckInnerFullOK
			}
		}
	}

	if cksum != 0 {
		t.rxStat.HckSet.Inc()
		mp.SetChecksumResult(cksum)
	} else {
		t.rxStat.HckMiss.Inc()
	}
}

// ptypeNontunnelL4 reports whether the ptype carries a verifiable L4
// checksum outside any tunnel.
func ptypeNontunnelL4(pinfo hw.PtypeInfo) bool {
	return pinfo.OuterIP && pinfo.Tunnel == hw.TunnelNone &&
		(pinfo.InnerProt == hw.InnerProtUDP ||
			pinfo.InnerProt == hw.InnerProtTCP ||
			pinfo.InnerProt == hw.InnerProtSCTP)
}

// ptypeTunnelInnerL4 reports whether the ptype carries a verifiable inner
// L4 checksum behind a GRE/NAT MAC tunnel.
func ptypeTunnelInnerL4(pinfo hw.PtypeInfo) bool {
	return pinfo.OuterIP &&
		(pinfo.Tunnel == hw.TunnelGrenatMAC || pinfo.Tunnel == hw.TunnelGrenatMACVLAN) &&
		!pinfo.TunnelEndFrag &&
		pinfo.TunnelEnd != hw.IPVerNone &&
		(pinfo.InnerProt == hw.InnerProtUDP ||
			pinfo.InnerProt == hw.InnerProtTCP ||
			pinfo.InnerProt == hw.InnerProtSCTP)
}

// ringRx drains ready descriptors into a delivery chain. pollBytes bounds
// the bytes consumed, or pollNone in interrupt context where only the
// per-pass frame limit applies. Called with rxLock held.
//
// The loop invariant: curHead, curDesc and stword always name the next
// descriptor to examine, never a consumed one. On exit they name a
// descriptor that has NOT been processed.
func (t *TrqPair) ringRx(pollBytes int) *mblk.Message {
	dev := t.dev
	rxd := t.rxData

	if !dev.started() {
		return nil
	}

	rxd.descArea.Sync(dma.SyncForKernel)
	if err := rxd.descArea.CheckHandle(); err != nil {
		dev.setError(err)
		return nil
	}

	ring := rxd.descArea.KernelAddress()
	var rxBytes, rxFrames int
	var mpHead, mpTail *mblk.Message

	curHead := rxd.descNext
	curDesc := hw.RxDescSlot(ring, curHead)
	stword := curDesc.StatusErrorLen()

	for stword&hw.RxStatusDD != 0 {
		// Multi-descriptor frames only occur with LRO or header
		// splitting, neither of which is enabled.
		if stword&hw.RxStatusEOP == 0 {
			panic("rx descriptor without EOP")
		}

		var mp *mblk.Message
		errBits := hw.RxError(stword)
		if errBits&hw.RxErrBits != 0 {
			t.rxStat.DescError.Inc()
			goto discard
		}

		{
			plen := hw.RxLength(stword)
			ptype := hw.RxPtype(stword)

			if pollBytes != pollNone && rxBytes+plen > pollBytes {
				// Consuming this frame would overshoot the quota. Leave
				// the descriptor for the next poll.
				break
			}
			rxBytes += plen

			switch dev.debugRxMode {
			case rxModeCopy:
				mp = t.rxCopy(rxd, curHead, plen)
			case rxModeBind:
				mp = t.rxBind(rxd, curHead, plen)
			default:
				if plen >= dev.cfg.RxDmaMin {
					mp = t.rxBind(rxd, curHead, plen)
				}
				if mp == nil {
					mp = t.rxCopy(rxd, curHead, plen)
				}
			}

			if mp != nil {
				if dev.cfg.RxHcksumEnable {
					t.rxHcksum(mp, stword, errBits, ptype)
				}
				if mpTail == nil {
					mpHead = mp
				} else {
					mpTail.SetNext(mp)
				}
				mpTail = mp
			}
		}

	discard:
		// Rearm the descriptor. The working slot may hold a replacement
		// block if the frame was loaned out.
		rcb := rxd.workList[curHead]
		curDesc.SetPktAddr(rcb.dmaBuf.BusAddress())
		curDesc.SetHdrAddr(0)

		curHead = nextDesc(curHead, 1, rxd.ringSize)
		curDesc = hw.RxDescSlot(ring, curHead)
		stword = curDesc.StatusErrorLen()

		rxFrames++
		if rxFrames > dev.cfg.RxLimitPerIntr {
			t.rxStat.IntrLimit.Inc()
			break
		}
	}

	rxd.descArea.Sync(dma.SyncForDevice)
	if err := rxd.descArea.CheckHandle(); err != nil {
		dev.setError(err)
	}

	if rxFrames != 0 {
		rxd.descNext = curHead
		tail := prevDesc(curHead, 1, rxd.ringSize)
		dev.regs.WriteRxTail(t.index, uint32(tail))
		if err := dev.regs.Check(); err != nil {
			dev.setError(err)
		}

		t.rxStat.Bytes.Add(float64(rxBytes))
		t.rxStat.Packets.Add(float64(rxFrames))
	}

	return mpHead
}

// RxPoll is the polling entry point: it returns up to pollBytes worth of
// frames, in ring order.
func (t *TrqPair) RxPoll(pollBytes int) *mblk.Message {
	if pollBytes <= 0 {
		return nil
	}
	t.rxLock.Lock()
	defer t.rxLock.Unlock()
	return t.ringRx(pollBytes)
}

// RxIntr is the interrupt-context entry point: no byte quota, frames
// bounded by the per-pass limit.
func (t *TrqPair) RxIntr() *mblk.Message {
	t.rxLock.Lock()
	defer t.rxLock.Unlock()
	return t.ringRx(pollNone)
}
