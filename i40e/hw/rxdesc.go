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

// Package hw holds the wire formats the XL710 family exposes to the
// driver: descriptor layouts, status/error/command bit positions, the
// packet-type decode table, and the tail doorbell contract. Descriptor
// rings are strictly little endian; all accessors encode/decode at the
// documented bit positions regardless of host byte order.
package hw

import "encoding/binary"

// Descriptor sizes. We use the 32-byte receive descriptor format.
const (
	RxDescSize = 32
	TxDescSize = 16
)

// Receive descriptor, read format (programmed by the driver):
//
//	qword 0: pkt_addr  - bus address of the data buffer
//	qword 1: hdr_addr  - bus address for header split (unused, zero)
//
// Write-back format (written by hardware): qword 1 packs status, error,
// ptype, and length.
const (
	// Status field bits within qword 1.
	RxStatusDD        = 1 << 0
	RxStatusEOP       = 1 << 1
	RxStatusL3L4P     = 1 << 3
	RxStatusIPv6ExAdd = 1 << 15

	rxQw1ErrorShift  = 19
	rxQw1ErrorMask   = 0xFF << rxQw1ErrorShift
	rxQw1PtypeShift  = 30
	rxQw1PtypeMask   = 0xFF << rxQw1PtypeShift
	rxQw1LengthShift = 38
	rxQw1LengthMask  = 0x3FFF << rxQw1LengthShift
)

// Bits of the receive error field (qword 1 bits 19-26, shifted down).
const (
	RxErrRXE      = 1 << 0
	RxErrHBO      = 1 << 2
	RxErrIPE      = 1 << 3
	RxErrL4E      = 1 << 4
	RxErrEIPE     = 1 << 5
	RxErrOversize = 1 << 6
)

// RxErrBits is the set of error bits that make a frame undeliverable.
// Checksum failures (IPE/L4E/EIPE) are reported through the checksum
// decode instead and deliberately excluded.
const RxErrBits = RxErrRXE | RxErrHBO | RxErrOversize

// RxDesc is a view over one 32-byte receive descriptor slot.
type RxDesc []byte

// RxDescSlot returns the descriptor view at index i of ring.
func RxDescSlot(ring []byte, i int) RxDesc {
	return RxDesc(ring[i*RxDescSize : (i+1)*RxDescSize])
}

// SetPktAddr programs the buffer bus address (read format qword 0).
func (d RxDesc) SetPktAddr(addr uint64) {
	binary.LittleEndian.PutUint64(d[0:8], addr)
}

// PktAddr reads back the programmed buffer address.
func (d RxDesc) PktAddr() uint64 {
	return binary.LittleEndian.Uint64(d[0:8])
}

// SetHdrAddr programs the header buffer address. Header splitting is not
// used; the driver always writes zero.
func (d RxDesc) SetHdrAddr(addr uint64) {
	binary.LittleEndian.PutUint64(d[8:16], addr)
}

// StatusErrorLen reads the write-back qword holding status, error, ptype
// and length.
func (d RxDesc) StatusErrorLen() uint64 {
	return binary.LittleEndian.Uint64(d[8:16])
}

// SetStatusErrorLen writes the write-back qword. Only hardware (or a
// software device model) writes this.
func (d RxDesc) SetStatusErrorLen(v uint64) {
	binary.LittleEndian.PutUint64(d[8:16], v)
}

// RxStatusErrorLen composes a write-back qword from its parts.
func RxStatusErrorLen(status uint64, errBits uint8, ptype uint8, length int) uint64 {
	return status |
		uint64(errBits)<<rxQw1ErrorShift |
		uint64(ptype)<<rxQw1PtypeShift |
		uint64(length)<<rxQw1LengthShift
}

// RxError extracts the error bits from a write-back qword.
func RxError(stword uint64) uint32 {
	return uint32((stword & rxQw1ErrorMask) >> rxQw1ErrorShift)
}

// RxLength extracts the payload length from a write-back qword.
func RxLength(stword uint64) int {
	return int((stword & rxQw1LengthMask) >> rxQw1LengthShift)
}

// RxPtype extracts the packet-type index from a write-back qword.
func RxPtype(stword uint64) uint8 {
	return uint8((stword & rxQw1PtypeMask) >> rxQw1PtypeShift)
}
