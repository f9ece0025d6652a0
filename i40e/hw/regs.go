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

import "sync"

// RegisterFile is the slice of the device register space the data plane
// touches: the per-queue tail doorbells. Writes must not be reordered
// against prior descriptor-ring stores; implementations over real BARs use
// uncached mappings, which gives that for free.
type RegisterFile interface {
	// WriteRxTail writes QRX_TAIL for the given queue.
	WriteRxTail(queue int, tail uint32)
	// WriteTxTail writes QTX_TAIL for the given queue.
	WriteTxTail(queue int, tail uint32)
	// Check reports whether the register access handle has observed a
	// fault since the last check.
	Check() error
}

// FakeRegisters is a RegisterFile backed by memory, for tests and the
// software device model. An optional TailFunc observes every doorbell.
type FakeRegisters struct {
	mu     sync.Mutex
	rxTail map[int]uint32
	txTail map[int]uint32
	err    error

	// TailFunc, when set, is invoked (outside the fake's lock ordering
	// guarantees) after every tail write with rx=true for QRX_TAIL.
	TailFunc func(queue int, tail uint32, rx bool)
}

// NewFakeRegisters returns an empty register file.
func NewFakeRegisters() *FakeRegisters {
	return &FakeRegisters{
		rxTail: make(map[int]uint32),
		txTail: make(map[int]uint32),
	}
}

// WriteRxTail implements RegisterFile.
func (f *FakeRegisters) WriteRxTail(queue int, tail uint32) {
	f.mu.Lock()
	f.rxTail[queue] = tail
	fn := f.TailFunc
	f.mu.Unlock()
	if fn != nil {
		fn(queue, tail, true)
	}
}

// WriteTxTail implements RegisterFile.
func (f *FakeRegisters) WriteTxTail(queue int, tail uint32) {
	f.mu.Lock()
	f.txTail[queue] = tail
	fn := f.TailFunc
	f.mu.Unlock()
	if fn != nil {
		fn(queue, tail, false)
	}
}

// Check implements RegisterFile.
func (f *FakeRegisters) Check() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.err
}

// SetError injects an access fault observed by the next Check.
func (f *FakeRegisters) SetError(err error) {
	f.mu.Lock()
	f.err = err
	f.mu.Unlock()
}

// RxTail returns the last QRX_TAIL write for the queue.
func (f *FakeRegisters) RxTail(queue int) uint32 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.rxTail[queue]
}

// TxTail returns the last QTX_TAIL write for the queue.
func (f *FakeRegisters) TxTail(queue int) uint32 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.txTail[queue]
}
