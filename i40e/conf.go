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
	"os"

	"github.com/pelletier/go-toml/v2"

	"github.com/nfvworks/fortville/pkg/private/serrors"
)

// Tunable bounds and defaults. Ring sizes must be a multiple of 32; the
// hardware requires descriptor counts in that granularity.
const (
	MinRingSize = 64
	MaxRingSize = 4096
	DefRingSize = 1024

	ringSizeMultiple = 32

	DefRxDmaMin       = 128
	DefTxDmaMin       = 256
	MinTxBlockThresh  = 8
	DefRxLimitPerIntr = 256

	MinMTU = 68
	MaxMTU = 9710
	DefMTU = 1500

	// Per-frame overhead on the wire: Ethernet header, one VLAN tag, FCS.
	frameOverhead = 14 + 4 + 4

	// Receive buffers reserve two leading bytes so the L3 header lands on
	// a 4-byte boundary behind the 14- or 18-byte MAC header.
	bufIPHdrAlignment = 2
)

// Config carries the data-plane tunables. They are read once, when ring
// memory is allocated; changing them afterwards has no effect.
type Config struct {
	// NumRings is the number of transmit-receive queue pairs.
	NumRings int `toml:"num_rings,omitempty"`
	// RxRingSize and TxRingSize are the per-queue descriptor counts.
	RxRingSize int `toml:"rx_ring_size,omitempty"`
	TxRingSize int `toml:"tx_ring_size,omitempty"`
	// RxDmaMin is the received-frame size at and above which the driver
	// loans the DMA buffer upward instead of copying.
	RxDmaMin int `toml:"rx_dma_threshold,omitempty"`
	// TxDmaMin is the frame size above which transmit binds fragments
	// instead of copying them into a staging buffer.
	TxDmaMin int `toml:"tx_dma_threshold,omitempty"`
	// TxBlockThresh is the free-descriptor count below which a transmit
	// attempt blocks the queue.
	TxBlockThresh int `toml:"tx_resched_threshold,omitempty"`
	// RxLimitPerIntr bounds the frames consumed in one rx pass.
	RxLimitPerIntr int `toml:"rx_limit_per_intr,omitempty"`
	// MTU is the configured payload size; the DMA buffer size derives
	// from it.
	MTU int `toml:"mtu,omitempty"`
	// RxHcksumEnable and TxHcksumEnable gate checksum offload handling.
	RxHcksumEnable bool `toml:"rx_hcksum_enable"`
	TxHcksumEnable bool `toml:"tx_hcksum_enable"`
}

// InitDefaults fills unset fields with their default values.
func (c *Config) InitDefaults() {
	if c.NumRings == 0 {
		c.NumRings = 1
	}
	if c.RxRingSize == 0 {
		c.RxRingSize = DefRingSize
	}
	if c.TxRingSize == 0 {
		c.TxRingSize = DefRingSize
	}
	if c.RxDmaMin == 0 {
		c.RxDmaMin = DefRxDmaMin
	}
	if c.TxDmaMin == 0 {
		c.TxDmaMin = DefTxDmaMin
	}
	if c.TxBlockThresh == 0 {
		c.TxBlockThresh = MinTxBlockThresh
	}
	if c.RxLimitPerIntr == 0 {
		c.RxLimitPerIntr = DefRxLimitPerIntr
	}
	if c.MTU == 0 {
		c.MTU = DefMTU
	}
}

// Validate checks the tunables against the hardware constraints.
func (c *Config) Validate() error {
	if c.NumRings < 1 {
		return serrors.New("invalid ring count", "num_rings", c.NumRings)
	}
	for name, size := range map[string]int{
		"rx_ring_size": c.RxRingSize,
		"tx_ring_size": c.TxRingSize,
	} {
		if size < MinRingSize || size > MaxRingSize {
			return serrors.New("ring size out of range", "tunable", name, "value", size)
		}
		if size%ringSizeMultiple != 0 {
			return serrors.New("ring size not a multiple of 32", "tunable", name, "value", size)
		}
	}
	if c.TxBlockThresh < MinTxBlockThresh {
		return serrors.New("block threshold below minimum",
			"value", c.TxBlockThresh, "min", MinTxBlockThresh)
	}
	if c.TxBlockThresh >= c.TxRingSize {
		return serrors.New("block threshold not below ring size",
			"value", c.TxBlockThresh, "tx_ring_size", c.TxRingSize)
	}
	if c.MTU < MinMTU || c.MTU > MaxMTU {
		return serrors.New("mtu out of range", "value", c.MTU)
	}
	if c.RxLimitPerIntr < 1 {
		return serrors.New("invalid rx interrupt limit", "value", c.RxLimitPerIntr)
	}
	return nil
}

// LoadConfig reads a TOML tunables file, applying defaults for anything
// the file leaves unset.
func LoadConfig(path string) (Config, error) {
	cfg := Config{RxHcksumEnable: true, TxHcksumEnable: true}
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, serrors.Wrap("reading config", err, "path", path)
	}
	if err := toml.Unmarshal(raw, &cfg); err != nil {
		return Config{}, serrors.Wrap("parsing config", err, "path", path)
	}
	cfg.InitDefaults()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// frameMax is the largest on-wire frame for the configured MTU.
func (c *Config) frameMax() int {
	return c.MTU + frameOverhead
}

// rxBufSize returns the receive data buffer size: the maximum frame
// rounded up to a whole 1 KiB plus the alignment headroom.
func (c *Config) rxBufSize() int {
	return roundUp1K(c.frameMax()) + bufIPHdrAlignment
}

// txBufSize returns the transmit staging buffer size.
func (c *Config) txBufSize() int {
	return roundUp1K(c.frameMax())
}

func roundUp1K(n int) int {
	return (n + 1023) &^ 1023
}
