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

package dma

import (
	"sync"
	"sync/atomic"

	"github.com/nfvworks/fortville/pkg/private/serrors"
)

// MemEngine is a process-memory Engine. It hands out plain byte slices
// with synthetic bus addresses and keeps the address map so that a
// software device model can resolve bus addresses back to memory. It also
// supports fault and exhaustion injection, standing in for the error paths
// a hardware IOMMU backend has.
type MemEngine struct {
	mu      sync.Mutex
	nextBus uint64
	regions map[uint64][]byte

	// SegmentSize, when non-zero, splits bindings at SegmentSize-aligned
	// bus boundaries, the way physical pages fragment a binding. Zero
	// yields single-cookie bindings.
	SegmentSize int

	succeedNext atomic.Int32
	failNext    atomic.Int32
	fault       faultFlag
}

type faultFlag struct {
	v atomic.Bool
}

func (f *faultFlag) faulted() bool {
	return f.v.Load()
}

// NewMemEngine returns an engine backed by process memory.
func NewMemEngine() *MemEngine {
	return &MemEngine{
		nextBus: 0x10_0000,
		regions: make(map[uint64][]byte),
	}
}

// AllocBuffer implements Engine.
func (e *MemEngine) AllocBuffer(attr Attr, size int) (*Buffer, error) {
	if e.allocShouldFail() {
		return nil, ErrNoMemory
	}
	if size <= 0 {
		return nil, serrors.New("invalid dma allocation size", "size", size)
	}
	mem := make([]byte, size)
	e.mu.Lock()
	bus := align(e.nextBus, attr.Align)
	e.nextBus = bus + uint64(size)
	e.regions[bus] = mem
	e.mu.Unlock()
	return &Buffer{
		mem:   mem,
		bus:   bus,
		size:  size,
		eng:   e,
		fault: &e.fault,
	}, nil
}

// NewBindHandle implements Engine.
func (e *MemEngine) NewBindHandle(attr Attr) (*BindHandle, error) {
	if e.allocShouldFail() {
		return nil, ErrNoMemory
	}
	return &BindHandle{attr: attr, eng: e, fault: &e.fault}, nil
}

func (e *MemEngine) allocShouldFail() bool {
	if e.succeedNext.Load() > 0 && e.succeedNext.Add(-1) >= 0 {
		return false
	}
	return e.failNext.Load() > 0 && e.failNext.Add(-1) >= 0
}

// Mem resolves a device-visible address back to memory. The requested
// window must lie within a single allocated or bound region.
func (e *MemEngine) Mem(bus uint64, n int) ([]byte, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for base, mem := range e.regions {
		if bus >= base && bus+uint64(n) <= base+uint64(len(mem)) {
			off := bus - base
			return mem[off : off+uint64(n)], nil
		}
	}
	return nil, serrors.New("unmapped dma address", "addr", bus, "len", n)
}

// RegionCount returns the number of live allocations and bindings.
func (e *MemEngine) RegionCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.regions)
}

// FailNextAllocs makes the next n allocations fail with ErrNoMemory.
func (e *MemEngine) FailNextAllocs(n int) {
	e.failNext.Store(int32(n))
}

// FailAllocsAfter lets the next n allocations succeed and fails every
// one after that, emulating exhaustion partway through a setup pass.
func (e *MemEngine) FailAllocsAfter(n int) {
	e.succeedNext.Store(int32(n))
	e.failNext.Store(1 << 30)
}

// InjectFault marks every handle of this engine as faulted until
// ClearFault.
func (e *MemEngine) InjectFault() {
	e.fault.v.Store(true)
}

// ClearFault clears an injected fault.
func (e *MemEngine) ClearFault() {
	e.fault.v.Store(false)
}

func (e *MemEngine) bind(attr Attr, mem []byte) ([]Cookie, error) {
	if len(mem) == 0 {
		return nil, serrors.New("empty binding")
	}
	e.mu.Lock()
	bus := align(e.nextBus, attr.Align)
	e.nextBus = bus + uint64(len(mem))
	e.regions[bus] = mem
	e.mu.Unlock()

	var cookies []Cookie
	addr, remaining := bus, uint64(len(mem))
	for remaining > 0 {
		// With a segment size set, cookies break at segment-aligned bus
		// boundaries the way physical pages would; otherwise only the
		// per-cookie length cap applies.
		clen := attr.CounterMax
		if seg := uint64(e.SegmentSize); seg != 0 {
			if boundary := seg - addr%seg; boundary < clen {
				clen = boundary
			}
		}
		if clen > remaining {
			clen = remaining
		}
		cookies = append(cookies, Cookie{BusAddr: addr, Size: int(clen)})
		addr += clen
		remaining -= clen
	}
	if len(cookies) > attr.Sgllen {
		e.unbind(cookies[:1])
		return nil, ErrTooManyCookies
	}
	return cookies, nil
}

func (e *MemEngine) unbind(cookies []Cookie) {
	if len(cookies) == 0 {
		return
	}
	e.mu.Lock()
	delete(e.regions, cookies[0].BusAddr)
	e.mu.Unlock()
}

func (e *MemEngine) release(b *Buffer) {
	e.mu.Lock()
	// The buffer may have been shifted; find the containing region.
	for base := range e.regions {
		if b.bus >= base && b.bus < base+uint64(len(e.regions[base])) {
			delete(e.regions, base)
			break
		}
	}
	e.mu.Unlock()
}

// sync is a fence on the coherent process-memory backend.
func (e *MemEngine) sync(SyncDir) {}

func align(v, a uint64) uint64 {
	if a == 0 {
		return v
	}
	return (v + a - 1) &^ (a - 1)
}
