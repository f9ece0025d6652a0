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
	"encoding/binary"

	"github.com/nfvworks/fortville/i40e/dma"
	"github.com/nfvworks/fortville/i40e/hw"
	"github.com/nfvworks/fortville/i40e/mblk"
)

// tcbRelease pushes a transmit control block back onto the free pool.
func (t *TrqPair) tcbRelease(tcb *txControlBlock) {
	t.tcbLock.Lock()
	t.tcbFreeList[t.tcbFree] = tcb
	t.tcbFree++
	t.tcbLock.Unlock()
}

// tcbAlloc pops a control block from the free pool, or nil if the pool
// is empty.
func (t *TrqPair) tcbAlloc() *txControlBlock {
	t.tcbLock.Lock()
	defer t.tcbLock.Unlock()
	if t.tcbFree == 0 {
		return nil
	}
	t.tcbFree--
	tcb := t.tcbFreeList[t.tcbFree]
	t.tcbFreeList[t.tcbFree] = nil
	return tcb
}

// tcbReset releases the variant-specific resources of a control block
// and returns it to the None state. The attached message, if any, is
// freed; detach it first when it must survive.
func (t *TrqPair) tcbReset(tcb *txControlBlock) {
	switch tcb.typ {
	case txTypeCopy:
		tcb.dmaBuf.Len = 0
	case txTypeBind:
		if tcb.usedLso {
			tcb.lsoHandle.Unbind()
		} else {
			tcb.bindHandle.Unbind()
		}
		tcb.bindInfo = nil
		tcb.usedLso = false
	case txTypeContext:
	case txTypeNone:
		panic("resetting tcb with type none")
	}
	tcb.typ = txTypeNone
	if tcb.mp != nil {
		tcb.mp.Free()
		tcb.mp = nil
	}
	tcb.next = nil
}

// descsPerTCB returns how many descriptor slots a working control block
// occupies: one per bind cookie, otherwise one.
func descsPerTCB(tcb *txControlBlock) int {
	if tcb.typ == txTypeBind {
		return len(tcb.bindInfo)
	}
	return 1
}

// txCleanupRing drains every outstanding descriptor unconditionally,
// ignoring the write-back head. Used on shutdown, after the queue has
// been disabled. Called with txLock held.
func (t *TrqPair) txCleanupRing() {
	ring := t.descArea.KernelAddress()
	index := t.descHead
	for t.descFree < t.txRingSize {
		tcb := t.tcbWorkList[index]
		for i := 0; i < descsPerTCB(tcb); i++ {
			t.tcbWorkList[index] = nil
			hw.TxDescSlot(ring, index).Zero()
			index = nextDesc(index, 1, t.txRingSize)
			t.descFree++
		}
		t.tcbReset(tcb)
		t.tcbRelease(tcb)
	}
	if index != t.descTail {
		panic("tx cleanup did not land on tail")
	}
	t.descHead = index
}

// TxRecycle reclaims descriptors the hardware has finished with, as
// reported through the write-back head. Invoked from the transmit
// interrupt and from the periodic check. If the queue was blocked and
// enough descriptors opened up, the upper stack is told it may submit
// again.
func (t *TrqPair) TxRecycle() {
	dev := t.dev

	t.txLock.Lock()

	if t.descFree == t.txRingSize {
		if t.txBlocked {
			t.txBlocked = false
			dev.fw.TxRingUpdate(t)
			t.txStat.Unblocked.Inc()
		}
		t.txLock.Unlock()
		return
	}

	// The hardware writes the next-to-be-freed index into the slot after
	// the last descriptor, with strict ordering.
	t.descArea.Sync(dma.SyncForKernel)
	if err := t.descArea.CheckHandle(); err != nil {
		t.txLock.Unlock()
		dev.setError(err)
		return
	}

	ring := t.descArea.KernelAddress()
	wbhead := int(binary.LittleEndian.Uint32(ring[t.txRingSize*hw.TxDescSize:]))

	toclean := t.descHead
	count := 0
	var tcbHead *txControlBlock

	for toclean != wbhead {
		tcb := t.tcbWorkList[toclean]
		tcb.next = tcbHead
		tcbHead = tcb

		// A bound block covers one descriptor per cookie; unhook it from
		// every slot it owns.
		for i := 0; i < descsPerTCB(tcb); i++ {
			t.tcbWorkList[toclean] = nil
			hw.TxDescSlot(ring, toclean).Zero()
			toclean = nextDesc(toclean, 1, t.txRingSize)
			count++
		}
	}

	t.descHead = wbhead
	t.descFree += count
	t.txStat.Recycled.Add(float64(count))

	if t.txBlocked && t.descFree > dev.cfg.TxBlockThresh {
		t.txBlocked = false
		dev.fw.TxRingUpdate(t)
		t.txStat.Unblocked.Inc()
	}

	t.txLock.Unlock()

	// The control blocks themselves are cleaned outside the ring lock.
	for tcbHead != nil {
		tcb := tcbHead
		tcbHead = tcb.next
		t.tcbReset(tcb)
		t.tcbRelease(tcb)
	}
}

// txBindFragment establishes a DMA binding over one fragment and records
// the resulting cookies. The LSO handle is used for segmented frames,
// which are allowed a longer scatter/gather list.
func (t *TrqPair) txBindFragment(frag *mblk.Message, useLso bool) *txControlBlock {
	tcb := t.tcbAlloc()
	if tcb == nil {
		t.txStat.ErrNoTCB.Inc()
		return nil
	}
	tcb.typ = txTypeBind
	tcb.usedLso = useLso

	handle := tcb.bindHandle
	if useLso {
		handle = tcb.lsoHandle
	}
	cookies, err := handle.Bind(frag.Bytes())
	if err != nil {
		t.txStat.ErrBindFail.Inc()
		t.tcbReset(tcb)
		t.tcbRelease(tcb)
		return nil
	}
	tcb.bindInfo = cookies
	return tcb
}

// txSetDataDesc writes one data descriptor at the tail, installs the
// owning control block in the covered working slot, and advances the
// tail. The final descriptor of a frame additionally carries EOP and RS
// so the hardware reports completion. Called with txLock held.
func (t *TrqPair) txSetDataDesc(tcb *txControlBlock, tctx *txContext,
	cookie dma.Cookie, lastDesc bool) {

	t.descFree--
	desc := hw.TxDescSlot(t.descArea.KernelAddress(), t.descTail)
	t.tcbWorkList[t.descTail] = tcb
	t.descTail = nextDesc(t.descTail, 1, t.txRingSize)

	cmd := uint64(hw.TxCmdICRC) | tctx.dataCmdflags
	if lastDesc {
		cmd |= hw.TxCmdEOP | hw.TxCmdRS
	}
	desc.SetData(cookie.BusAddr, cmd, tctx.dataOffsets, cookie.Size)
}

// Tx submits one frame for transmission. A nil return means the frame
// was accepted (or dropped, for undeliverable frames); getting the
// message back means the queue is out of resources and the upper stack
// must hold off until TxRingUpdate.
func (t *TrqPair) Tx(mp *mblk.Message) *mblk.Message {
	dev := t.dev

	if !dev.started() || !dev.linkUp.Load() {
		mp.Free()
		return nil
	}

	// Decode the offload request up front; an unsatisfiable request
	// drops the frame.
	var tctx txContext
	if !t.deriveTxContext(mp, &tctx) {
		mp.Free()
		t.txStat.ErrContext.Inc()
		return nil
	}
	useLso := tctx.ctxCmdflags&hw.TxCtxCmdTSO != 0
	doCtxDesc := useLso || tctx.ctxTunneled

	// One walk over the fragments for the total size and the number of
	// non-empty buffers; both feed the copy-versus-bind decision.
	mpSize, nbufs := 0, 0
	for frag := mp; frag != nil; frag = frag.Cont() {
		if n := frag.Len(); n > 0 {
			mpSize += n
			nbufs++
		}
	}

	var tcbCtx, tcbData *txControlBlock
	var tcbBind []*txControlBlock
	neededDesc := 0

	if doCtxDesc {
		// The context descriptor has no data block of its own; a
		// placeholder control block keeps the reclamation path uniform.
		if tcbCtx = t.tcbAlloc(); tcbCtx == nil {
			t.txStat.ErrNoTCB.Inc()
			goto txfail
		}
		tcbCtx.typ = txTypeContext
		neededDesc++
	}

	if useLso || mpSize > dev.cfg.TxDmaMin {
		// Above the threshold (and always for LSO) each fragment is
		// bound in place, one descriptor per cookie. The first block
		// takes ownership of the message.
		tcbBind = make([]*txControlBlock, 0, nbufs)
		for frag := mp; frag != nil; frag = frag.Cont() {
			if frag.Len() == 0 {
				continue
			}
			tcb := t.txBindFragment(frag, useLso)
			if tcb == nil {
				goto txfail
			}
			if len(tcbBind) == 0 {
				tcb.mp = mp
			}
			tcbBind = append(tcbBind, tcb)
			neededDesc += len(tcb.bindInfo)
		}
	} else {
		// Small frames are staged end to end into one pre-allocated
		// buffer behind a single descriptor.
		if tcbData = t.tcbAlloc(); tcbData == nil {
			t.txStat.ErrNoTCB.Inc()
			goto txfail
		}
		tcbData.typ = txTypeCopy

		staging := tcbData.dmaBuf.KernelAddress()
		for frag := mp; frag != nil; frag = frag.Cont() {
			copy(staging[tcbData.dmaBuf.Len:], frag.Bytes())
			tcbData.dmaBuf.Len += frag.Len()
		}
		tcbData.dmaBuf.Sync(dma.SyncForDevice)
		tcbData.mp = mp
		neededDesc++
	}

	t.txLock.Lock()
	if t.descFree < dev.cfg.TxBlockThresh {
		t.txStat.ErrNoDescs.Inc()
		t.txLock.Unlock()
		goto txfail
	}

	if doCtxDesc {
		// The context descriptor must precede the data descriptors of
		// its frame.
		t.descFree--
		tail := t.descTail
		desc := hw.TxDescSlot(t.descArea.KernelAddress(), tail)
		t.tcbWorkList[tail] = tcbCtx
		t.descTail = nextDesc(tail, 1, t.txRingSize)

		tnl := uint32(0)
		if tctx.ctxTunneled {
			tnl = tctx.ctxTunnelFld
		}
		if tctx.ctxCmdflags&hw.TxCtxCmdTSO != 0 {
			desc.SetContext(tnl, tctx.ctxCmdflags, tctx.ctxTsolen, tctx.ctxMss)
		} else {
			desc.SetContext(tnl, 0, 0, 0)
		}
	}

	if tcbBind != nil {
		for i, tcb := range tcbBind {
			for c, cookie := range tcb.bindInfo {
				last := i == len(tcbBind)-1 && c == len(tcb.bindInfo)-1
				t.txSetDataDesc(tcb, &tctx, cookie, last)
			}
		}
	} else {
		t.txSetDataDesc(tcbData, &tctx,
			dma.Cookie{BusAddr: tcbData.dmaBuf.BusAddress(), Size: tcbData.dmaBuf.Len},
			true)
	}

	t.descArea.Sync(dma.SyncForDevice)
	dev.regs.WriteTxTail(t.index, uint32(t.descTail))
	if err := dev.regs.Check(); err != nil {
		// The memory is already with the device; nothing left to unwind.
		dev.setError(err)
	}

	t.txStat.Bytes.Add(float64(mpSize))
	t.txStat.Packets.Inc()
	t.txStat.Descriptors.Add(float64(neededDesc))

	t.txLock.Unlock()
	return nil

txfail:
	// Out of resources: every allocated control block goes back with its
	// message reference detached, and the frame returns to the upper
	// stack, which will flow-control on our behalf.
	if tcbCtx != nil {
		tcbCtx.mp = nil
		t.tcbReset(tcbCtx)
		t.tcbRelease(tcbCtx)
	}
	if tcbData != nil {
		tcbData.mp = nil
		t.tcbReset(tcbData)
		t.tcbRelease(tcbData)
	}
	for _, tcb := range tcbBind {
		tcb.mp = nil
		t.tcbReset(tcb)
		t.tcbRelease(tcb)
	}

	t.txLock.Lock()
	t.txBlocked = true
	t.txLock.Unlock()

	return mp
}
