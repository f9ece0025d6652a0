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
	"sync"

	"github.com/nfvworks/fortville/i40e/dma"
	"github.com/nfvworks/fortville/i40e/hw"
)

// HardwareSim models the device side of the descriptor rings over a
// memory DMA engine: it fills receive descriptors the way the MAC does
// and consumes transmit descriptors, advancing the write-back head. It
// exists for bring-up and tests; nothing in the data path depends on it.
type HardwareSim struct {
	dev  *Device
	eng  *dma.MemEngine
	regs *hw.FakeRegisters

	mu     sync.Mutex
	rxNext []int
	txHead []int
}

// NewHardwareSim attaches a device model to a device built over a memory
// engine and fake registers.
func NewHardwareSim(dev *Device, eng *dma.MemEngine, regs *hw.FakeRegisters) *HardwareSim {
	return &HardwareSim{
		dev:    dev,
		eng:    eng,
		regs:   regs,
		rxNext: make([]int, len(dev.trqpairs)),
		txHead: make([]int, len(dev.trqpairs)),
	}
}

// InjectRx receives one frame into the given queue with a clean status
// word and an L2 packet type. Returns false when no armed descriptor is
// available.
func (s *HardwareSim) InjectRx(queue int, payload []byte) bool {
	return s.InjectRxFull(queue, payload, hw.RxStatusDD|hw.RxStatusEOP, 0, 1)
}

// InjectRxFull receives one frame with full control over the status
// word, error bits and packet type the hardware would report.
func (s *HardwareSim) InjectRxFull(queue int, payload []byte,
	status uint64, errBits uint8, ptype uint8) bool {

	s.mu.Lock()
	defer s.mu.Unlock()

	trqp := s.dev.trqpairs[queue]
	rxd := trqp.rxData
	ring := rxd.descArea.KernelAddress()

	next := s.rxNext[queue]
	desc := hw.RxDescSlot(ring, next)
	if desc.StatusErrorLen()&hw.RxStatusDD != 0 {
		// The driver has not rearmed this descriptor yet; the ring is
		// full from our side.
		return false
	}
	mem, err := s.eng.Mem(desc.PktAddr(), len(payload))
	if err != nil {
		return false
	}
	copy(mem, payload)
	desc.SetStatusErrorLen(hw.RxStatusErrorLen(status, errBits, ptype, len(payload)))
	s.rxNext[queue] = nextDesc(next, 1, rxd.ringSize)
	return true
}

// CompleteTx consumes every descriptor the driver has made visible via
// the tail doorbell, advances the write-back head past them, and returns
// the transmitted frames as byte slices.
func (s *HardwareSim) CompleteTx(queue int) [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()

	trqp := s.dev.trqpairs[queue]
	ring := trqp.descArea.KernelAddress()
	tail := int(s.regs.TxTail(queue))

	var frames [][]byte
	var cur []byte
	for i := s.txHead[queue]; i != tail; i = nextDesc(i, 1, trqp.txRingSize) {
		desc := hw.TxDescSlot(ring, i)
		qw1 := desc.Qword1()
		if hw.Dtype(qw1) != hw.TxDescDtypeData {
			continue
		}
		mem, err := s.eng.Mem(desc.BufferAddr(), hw.TxBufSz(qw1))
		if err != nil {
			continue
		}
		cur = append(cur, mem...)
		if hw.TxCmd(qw1)&hw.TxCmdEOP != 0 {
			frames = append(frames, cur)
			cur = nil
		}
	}

	binary.LittleEndian.PutUint32(
		ring[trqp.txRingSize*hw.TxDescSize:], uint32(tail))
	s.txHead[queue] = tail
	return frames
}

// WriteTxWbHead writes an arbitrary value into the queue's write-back
// slot without consuming descriptors. Tests use it to exercise partial
// completion.
func (s *HardwareSim) WriteTxWbHead(queue int, head uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	trqp := s.dev.trqpairs[queue]
	ring := trqp.descArea.KernelAddress()
	binary.LittleEndian.PutUint32(ring[trqp.txRingSize*hw.TxDescSize:], head)
	s.txHead[queue] = int(head)
}
