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

// Package dma provides the buffer primitive the data plane is built on:
// scoped acquisition of device-visible memory regions plus transient
// bindings over memory the upper stack owns.
//
// Two allocation profiles exist. The static profile yields a single-cookie
// region and is used for descriptor rings and the per-control-block data
// buffers. The bind profiles allow a scatter/gather list and are used only
// while a transmit fragment is bound for the duration of one send.
//
// The platform backend is abstracted behind Engine so the same data plane
// runs over vfio/hugepage mappings in production and over plain memory in
// tests. All allocation is non-blocking and may fail; a failed allocation
// releases anything it partially acquired before returning.
package dma

import (
	"github.com/nfvworks/fortville/pkg/private/serrors"
)

// PageSize is the smallest supported page size of the platforms we target.
// The static allocation profile aligns to it.
const PageSize = 4096

// SyncDir names the direction of an explicit DMA sync.
type SyncDir int

const (
	// SyncForKernel makes device writes visible to the CPU.
	SyncForKernel SyncDir = iota
	// SyncForDevice makes CPU writes visible to the device.
	SyncForDevice
)

// Attr carries the constraints an allocation or binding must honor. The
// templates below are copied per device at setup so that per-instance
// fault-checking capabilities do not leak between devices.
type Attr struct {
	// Align is the required start alignment of the region.
	Align uint64
	// Sgllen is the maximum number of cookies a binding may produce.
	Sgllen int
	// CounterMax bounds the byte length any single cookie may cover.
	CounterMax uint64
	// FaultChecking enables post-sync fault detection on handles created
	// with this attribute set.
	FaultChecking bool
}

// Cookie is one device-visible segment of a bound region.
type Cookie struct {
	BusAddr uint64
	Size    int
}

var (
	// ErrNoMemory indicates the engine could not satisfy the allocation.
	ErrNoMemory = serrors.New("dma memory exhausted")
	// ErrTooManyCookies indicates a binding would exceed the attribute's
	// scatter/gather limit.
	ErrTooManyCookies = serrors.New("binding exceeds sgl length")
	// ErrHandleFault indicates the handle observed a hardware fault. The
	// caller must treat the data as suspect.
	ErrHandleFault = serrors.New("dma handle fault")
)

// Engine is the platform contract for device-visible memory.
type Engine interface {
	// AllocBuffer acquires a zeroed single-cookie region of the given
	// size. Non-blocking; returns ErrNoMemory when the backing store is
	// exhausted.
	AllocBuffer(attr Attr, size int) (*Buffer, error)
	// NewBindHandle pre-allocates a reusable handle for transient
	// bindings under the given attributes.
	NewBindHandle(attr Attr) (*BindHandle, error)
}

// backend is the engine-side surface buffers and handles call back into.
type backend interface {
	sync(dir SyncDir)
	release(b *Buffer)
	bind(attr Attr, mem []byte) ([]Cookie, error)
	unbind(cookies []Cookie)
}

// Buffer is a single-cookie DMA region: one kernel mapping, one bus
// address. Capacity and addresses are non-zero exactly while the buffer is
// bound; Free clears every field.
type Buffer struct {
	mem  []byte
	bus  uint64
	size int
	// Len tracks the bytes currently in use, in the copy paths.
	Len int

	eng   backend
	fault *faultFlag
}

// KernelAddress returns the CPU mapping of the region.
func (b *Buffer) KernelAddress() []byte {
	return b.mem
}

// BusAddress returns the device-visible address of the region.
func (b *Buffer) BusAddress() uint64 {
	return b.bus
}

// Size returns the capacity of the region.
func (b *Buffer) Size() int {
	return b.size
}

// Shift advances the region start by n bytes, shrinking it accordingly.
// Used to push the receive window off the front of an allocation so the L3
// header lands on a 4-byte boundary.
func (b *Buffer) Shift(n int) {
	b.mem = b.mem[n:]
	b.bus += uint64(n)
	b.size -= n
}

// Sync enforces ordering between CPU and device views of the region. On
// coherent platforms this is a fence; the call is still mandatory so that
// fault state is observed at well-defined points.
func (b *Buffer) Sync(dir SyncDir) {
	if b.eng != nil {
		b.eng.sync(dir)
	}
}

// CheckHandle reports whether the engine behind the buffer is currently in
// a fault state; a Sync does not clear it. Callers check this after every
// Sync(SyncForKernel) before trusting the data.
func (b *Buffer) CheckHandle() error {
	if b.fault != nil && b.fault.faulted() {
		return ErrHandleFault
	}
	return nil
}

// Free releases the region back to the engine and clears the buffer. A
// zero buffer is safe to free.
func (b *Buffer) Free() {
	if b.mem == nil {
		return
	}
	if b.eng != nil {
		b.eng.release(b)
	}
	b.mem = nil
	b.bus = 0
	b.size = 0
	b.Len = 0
	b.eng = nil
	b.fault = nil
}
