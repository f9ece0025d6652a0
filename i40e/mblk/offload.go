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

package mblk

// Checksum request flags, attached by the upper stack to frames it
// submits for transmit.
const (
	// HckIPv4HdrCksum requests insertion of the (outer) IPv4 header
	// checksum.
	HckIPv4HdrCksum uint32 = 1 << iota
	// HckPartial requests completion of a pseudo-header L4 checksum.
	HckPartial
	// HckInnerV4Needed requests the tunneled inner IPv4 header checksum.
	HckInnerV4Needed
	// HckInnerPseudoNeeded requests the tunneled inner L4 checksum.
	HckInnerPseudoNeeded
)

// Checksum result flags, attached by the driver to frames it delivers.
const (
	// HckIPv4HdrOK reports the (outer) IPv4 header checksum verified.
	HckIPv4HdrOK uint32 = 1 << (16 + iota)
	// HckFullOK reports the L4 checksum verified.
	HckFullOK
	// HckInnerV4HdrOK reports the tunneled inner IPv4 header checksum
	// verified.
	HckInnerV4HdrOK
	// HckInnerFullOK reports the tunneled inner L4 checksum verified.
	HckInnerFullOK
)

// TunnelType declares the encapsulation of a submitted frame.
type TunnelType uint8

const (
	TunnelNone TunnelType = iota
	TunnelVXLAN
)

type offloadMeta struct {
	cksumReq    uint32
	cksumResult uint32
	mss         uint32
	lso         bool
	tunnel      TunnelType
}

func (m *Message) ensureMeta() *offloadMeta {
	if m.meta == nil {
		m.meta = &offloadMeta{}
	}
	return m.meta
}

// SetChecksumRequest attaches transmit checksum request flags.
func (m *Message) SetChecksumRequest(flags uint32) {
	m.ensureMeta().cksumReq = flags
}

// ChecksumRequest returns the transmit checksum request flags.
func (m *Message) ChecksumRequest() uint32 {
	if m.meta == nil {
		return 0
	}
	return m.meta.cksumReq
}

// SetLSO requests large-send offload with the given segment size.
func (m *Message) SetLSO(mss uint32) {
	meta := m.ensureMeta()
	meta.lso = true
	meta.mss = mss
}

// LSO returns the requested segment size and whether LSO was requested.
func (m *Message) LSO() (uint32, bool) {
	if m.meta == nil {
		return 0, false
	}
	return m.meta.mss, m.meta.lso
}

// SetTunnelType declares the frame's encapsulation.
func (m *Message) SetTunnelType(t TunnelType) {
	m.ensureMeta().tunnel = t
}

// TunnelType returns the declared encapsulation.
func (m *Message) TunnelType() TunnelType {
	if m.meta == nil {
		return TunnelNone
	}
	return m.meta.tunnel
}

// SetChecksumResult attaches receive checksum verdicts.
func (m *Message) SetChecksumResult(flags uint32) {
	m.ensureMeta().cksumResult = flags
}

// ChecksumResult returns the receive checksum verdicts.
func (m *Message) ChecksumResult() uint32 {
	if m.meta == nil {
		return 0
	}
	return m.meta.cksumResult
}
