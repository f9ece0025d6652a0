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

// Package mblk implements the message blocks exchanged with the host
// networking stack. A message is a chain of fragments; a frame submitted
// for transmit may span several fragments, and received frames are handed
// upward as messages chained by their next pointer.
//
// A message either owns its backing store (Alloc) or wraps memory loaned
// by the driver (NewLoaned). Loaned messages carry a free callback that
// runs when the upper stack releases the message, which is how receive
// buffers find their way back to the ring.
package mblk

// Message is one fragment of an upper-stack message. The readable window
// is buf[rptr:wptr]; the region before rptr is reserved headroom.
type Message struct {
	buf  []byte
	rptr int
	wptr int

	cont *Message // next fragment of the same frame
	next *Message // next frame in a delivery chain

	freeFunc func()
	meta     *offloadMeta
}

// Alloc returns a message owning a fresh buffer of the given capacity.
// The readable window starts empty at offset zero.
func Alloc(size int) *Message {
	return &Message{buf: make([]byte, size)}
}

// NewLoaned wraps memory owned by someone else. free runs exactly once,
// when the message (or the frame chain holding it) is freed.
func NewLoaned(buf []byte, free func()) *Message {
	return &Message{buf: buf, freeFunc: free}
}

// NewFromBytes returns a single-fragment message holding a copy of p.
func NewFromBytes(p []byte) *Message {
	m := Alloc(len(p))
	m.Append(p)
	return m
}

// Base returns the full backing store, including headroom.
func (m *Message) Base() []byte {
	return m.buf
}

// Bytes returns the readable window of this fragment.
func (m *Message) Bytes() []byte {
	return m.buf[m.rptr:m.wptr]
}

// Len returns the readable length of this fragment.
func (m *Message) Len() int {
	return m.wptr - m.rptr
}

// ChainLen returns the total readable length across the fragment chain.
func (m *Message) ChainLen() int {
	total := 0
	for f := m; f != nil; f = f.cont {
		total += f.Len()
	}
	return total
}

// AdvanceReader moves the read pointer forward by n, consuming headroom.
func (m *Message) AdvanceReader(n int) {
	m.rptr += n
	if m.wptr < m.rptr {
		m.wptr = m.rptr
	}
}

// SetWriter places the write pointer n bytes past the read pointer,
// declaring that much data readable.
func (m *Message) SetWriter(n int) {
	m.wptr = m.rptr + n
}

// Append copies p into the fragment at the write pointer.
func (m *Message) Append(p []byte) {
	copy(m.buf[m.wptr:], p)
	m.wptr += len(p)
}

// Cont returns the next fragment of this frame.
func (m *Message) Cont() *Message {
	return m.cont
}

// SetCont links f as the next fragment of this frame.
func (m *Message) SetCont(f *Message) {
	m.cont = f
}

// Next returns the next frame of a delivery chain.
func (m *Message) Next() *Message {
	return m.next
}

// SetNext links f as the next frame of a delivery chain.
func (m *Message) SetNext(f *Message) {
	m.next = f
}

// Free releases this frame: every fragment's free callback runs and the
// fragment links are cleared. The next pointer is not followed.
func (m *Message) Free() {
	for f := m; f != nil; {
		n := f.cont
		f.cont = nil
		f.next = nil
		if f.freeFunc != nil {
			fn := f.freeFunc
			f.freeFunc = nil
			fn()
		}
		f = n
	}
}

// FreeChain releases a whole delivery chain, following next pointers.
func FreeChain(m *Message) {
	for m != nil {
		n := m.next
		m.Free()
		m = n
	}
}
