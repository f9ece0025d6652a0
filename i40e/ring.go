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
	"sync"
	"sync/atomic"

	"github.com/nfvworks/fortville/i40e/dma"
	"github.com/nfvworks/fortville/i40e/hw"
	"github.com/nfvworks/fortville/i40e/mblk"
	"github.com/nfvworks/fortville/pkg/private/serrors"
)

// rxData holds the receive side of one queue pair: the descriptor ring,
// the working list with exactly one control block per descriptor, and the
// free list the bind path swaps replacements out of.
//
// rxData outlives Stop when buffers are still loaned to the upper stack.
// The final recycle callback, not the teardown path, then releases it.
type rxData struct {
	dev  *Device
	trqp *TrqPair

	ringSize     int
	freeListSize int

	descArea *dma.Buffer
	descNext int

	// freeLock covers the free list stack and its count.
	freeLock sync.Mutex
	workList []*rxControlBlock
	freeList []*rxControlBlock
	rcbArea  []rxControlBlock
	rcbFree  int

	// rcbPending counts control blocks whose buffers are still loaned
	// out after teardown started. shutdown and freed are guarded by the
	// device's rxPendingMu.
	rcbPending atomic.Int32
	shutdown   bool
	freed      bool
}

// rxControlBlock pairs one receive DMA buffer with its pre-built loanable
// message wrapper. ref is 1 while the driver owns the block and >= 2
// while the buffer is loaned to the upper stack; the block's resources
// are destroyed by whoever drops the last reference.
type rxControlBlock struct {
	dmaBuf *dma.Buffer
	mp     *mblk.Message
	ref    atomic.Int32
	rxd    *rxData
}

// Transmit control block variants.
type txType int

const (
	txTypeNone txType = iota
	txTypeCopy
	txTypeBind
	txTypeContext
)

// txControlBlock tracks the resources behind one or more transmit
// descriptors: either the staging buffer the frame was copied into, or a
// transient binding over upper-stack memory, or a context-descriptor
// placeholder with no data at all.
type txControlBlock struct {
	typ txType
	mp  *mblk.Message

	dmaBuf     *dma.Buffer
	bindHandle *dma.BindHandle
	lsoHandle  *dma.BindHandle
	usedLso    bool
	bindInfo   []dma.Cookie

	next *txControlBlock
}

// allocRingMem allocates all per-queue ring resources. Allocation is
// non-blocking; on failure everything partially created is released and
// the error surfaced.
func (d *Device) allocRingMem() error {
	for _, trqp := range d.trqpairs {
		if err := d.allocRxData(trqp); err != nil {
			d.freeRingMem(true)
			return err
		}
		if err := d.allocRxDma(trqp.rxData); err != nil {
			d.freeRingMem(true)
			return err
		}
		if err := d.allocTxDma(trqp); err != nil {
			d.freeRingMem(true)
			return err
		}
	}
	return nil
}

// freeRingMem releases all ring resources. Loaned receive buffers are
// accounted as pending and destroyed later by their recycle callbacks;
// the shutdown flag is only raised after the first decrement pass so the
// recycle path cannot race us on who frees the rxData.
func (d *Device) freeRingMem(failedInit bool) {
	for _, trqp := range d.trqpairs {
		if rxd := trqp.rxData; rxd != nil {
			d.freeRxDma(rxd, failedInit)

			d.rxPendingMu.Lock()
			rxd.shutdown = true
			if rxd.rcbPending.Load() == 0 {
				d.freeRxData(rxd)
				trqp.rxData = nil
			}
			d.rxPendingMu.Unlock()
		}
		d.freeTxDma(trqp)
	}
}

func (d *Device) allocRxData(trqp *TrqPair) error {
	rxd := &rxData{
		dev:          d,
		trqp:         trqp,
		ringSize:     d.cfg.RxRingSize,
		freeListSize: d.cfg.RxRingSize,
	}
	rxd.rcbFree = rxd.freeListSize
	rxd.workList = make([]*rxControlBlock, rxd.ringSize)
	rxd.freeList = make([]*rxControlBlock, rxd.freeListSize)
	rxd.rcbArea = make([]rxControlBlock, rxd.ringSize+rxd.freeListSize)
	trqp.rxData = rxd
	return nil
}

// allocRxDma allocates the descriptor ring and one data buffer per
// control block, half of which populate the working list and half the
// free list. Each buffer is shifted by two bytes so the L3 header of a
// received frame lands on a 4-byte boundary, and gets its loan-ready
// message wrapper built up front.
func (d *Device) allocRxDma(rxd *rxData) error {
	descArea, err := d.engine.AllocBuffer(d.staticAttr, rxd.ringSize*hw.RxDescSize)
	if err != nil {
		return serrors.Wrap("allocating rx descriptor ring", err,
			"ring", rxd.trqp.index)
	}
	rxd.descArea = descArea
	rxd.descNext = 0

	for i := range rxd.rcbArea {
		rcb := &rxd.rcbArea[i]
		if i < rxd.ringSize {
			rxd.workList[i] = rcb
		} else {
			rxd.freeList[i-rxd.ringSize] = rcb
		}

		buf, err := d.engine.AllocBuffer(d.staticAttr, d.rxBufSize)
		if err != nil {
			return serrors.Wrap("allocating rx data buffer", err,
				"ring", rxd.trqp.index, "rcb", i)
		}
		buf.Shift(bufIPHdrAlignment)
		rcb.dmaBuf = buf
		rcb.ref.Store(1)
		rcb.rxd = rxd
		rcb.mp = d.loanMsg(buf.KernelAddress(), rcb.recycleFunc())
	}
	return nil
}

// freeRxDma releases the descriptor ring immediately and drops the
// driver's reference on every control block. Blocks still loaned upward
// keep their buffer; they are counted as pending on both the ring and the
// device and destroyed by the recycle callback.
func (d *Device) freeRxDma(rxd *rxData, failedInit bool) {
	if rxd.descArea != nil {
		rxd.descArea.Free()
		rxd.descArea = nil
	}
	rxd.descNext = 0

	d.rxPendingMu.Lock()
	for i := range rxd.rcbArea {
		rcb := &rxd.rcbArea[i]

		// When unwinding a failed setup, blocks that were never
		// assembled still have a zero reference count. Nothing else can
		// be touching them; leave them be.
		if failedInit && rcb.ref.Load() == 0 {
			continue
		}
		if rcb.ref.Add(-1) == 0 {
			if rcb.mp != nil {
				rcb.mp.Free()
				rcb.mp = nil
			}
			rcb.dmaBuf.Free()
		} else {
			rxd.rcbPending.Add(1)
			d.rxPending.Add(1)
		}
	}
	d.rxPendingMu.Unlock()
}

// freeRxData releases the non-DMA bookkeeping. Called with rxPendingMu
// held, either from teardown or from the final recycle callback.
func (d *Device) freeRxData(rxd *rxData) {
	rxd.rcbArea = nil
	rxd.freeList = nil
	rxd.workList = nil
	rxd.freed = true
}

// allocTxDma allocates the transmit descriptor ring, with one extra
// descriptor-sized slot for the hardware write-back head, and the control
// block pool: 1.5x the ring size, each block carrying its staging buffer
// and two pre-allocated binding handles.
func (d *Device) allocTxDma(trqp *TrqPair) error {
	trqp.txRingSize = d.cfg.TxRingSize
	trqp.txFreeListSize = d.cfg.TxRingSize + d.cfg.TxRingSize>>1

	descArea, err := d.engine.AllocBuffer(d.staticAttr,
		(trqp.txRingSize+1)*hw.TxDescSize)
	if err != nil {
		return serrors.Wrap("allocating tx descriptor ring", err,
			"ring", trqp.index)
	}
	trqp.descArea = descArea
	trqp.descHead = 0
	trqp.descTail = 0
	trqp.descFree = trqp.txRingSize

	trqp.tcbWorkList = make([]*txControlBlock, trqp.txRingSize)
	trqp.tcbFreeList = make([]*txControlBlock, trqp.txFreeListSize)
	trqp.tcbArea = make([]txControlBlock, trqp.txFreeListSize)

	for i := range trqp.tcbArea {
		tcb := &trqp.tcbArea[i]
		if tcb.bindHandle, err = d.engine.NewBindHandle(d.txBindAttr); err != nil {
			return serrors.Wrap("allocating tx bind handle", err, "ring", trqp.index)
		}
		if tcb.lsoHandle, err = d.engine.NewBindHandle(d.txBindLsoAttr); err != nil {
			return serrors.Wrap("allocating tx lso bind handle", err, "ring", trqp.index)
		}
		if tcb.dmaBuf, err = d.engine.AllocBuffer(d.staticAttr, d.txBufSize); err != nil {
			return serrors.Wrap("allocating tx staging buffer", err, "ring", trqp.index)
		}
		trqp.tcbFreeList[i] = tcb
	}
	trqp.tcbFree = trqp.txFreeListSize
	return nil
}

func (d *Device) freeTxDma(trqp *TrqPair) {
	for i := range trqp.tcbArea {
		tcb := &trqp.tcbArea[i]
		if tcb.dmaBuf != nil {
			tcb.dmaBuf.Free()
			tcb.dmaBuf = nil
		}
		if tcb.bindHandle != nil {
			tcb.bindHandle.Free()
			tcb.bindHandle = nil
		}
		if tcb.lsoHandle != nil {
			tcb.lsoHandle.Free()
			tcb.lsoHandle = nil
		}
	}
	trqp.tcbArea = nil
	trqp.tcbFreeList = nil
	trqp.tcbWorkList = nil
	trqp.tcbFree = 0

	if trqp.descArea != nil {
		trqp.descArea.Free()
		trqp.descArea = nil
	}
}

// armRxRing programs every descriptor with its working buffer and opens
// the ring to hardware by writing the initial tail.
func (t *TrqPair) armRxRing() {
	rxd := t.rxData
	ring := rxd.descArea.KernelAddress()
	for i, rcb := range rxd.workList {
		desc := hw.RxDescSlot(ring, i)
		desc.SetPktAddr(rcb.dmaBuf.BusAddress())
		desc.SetHdrAddr(0)
	}
	rxd.descArea.Sync(dma.SyncForDevice)
	t.dev.regs.WriteRxTail(t.index, uint32(rxd.ringSize-1))
}
