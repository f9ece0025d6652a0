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
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nfvworks/fortville/i40e/dma"
	"github.com/nfvworks/fortville/i40e/hw"
)

func TestRingAllocInvariants(t *testing.T) {
	env := newTestEnv(t, nil)
	rxd := env.trqp.rxData

	// Every working slot holds exactly one block, and no block appears
	// twice across the working and free lists.
	seen := make(map[*rxControlBlock]bool)
	require.Len(t, rxd.workList, MinRingSize)
	for _, rcb := range rxd.workList {
		require.NotNil(t, rcb)
		assert.False(t, seen[rcb])
		seen[rcb] = true
		assert.Equal(t, int32(1), rcb.ref.Load())
		assert.NotNil(t, rcb.mp)
	}
	assert.Equal(t, MinRingSize, rxd.rcbFree)
	for i := 0; i < rxd.rcbFree; i++ {
		rcb := rxd.freeList[i]
		require.NotNil(t, rcb)
		assert.False(t, seen[rcb])
		seen[rcb] = true
	}
	assert.Len(t, seen, 2*MinRingSize)

	// Receive descriptors are armed with the working buffers, and the
	// initial tail points at the last descriptor.
	ring := rxd.descArea.KernelAddress()
	for i, rcb := range rxd.workList {
		assert.Equal(t, rcb.dmaBuf.BusAddress(), hw.RxDescSlot(ring, i).PktAddr())
	}
	assert.Equal(t, uint32(MinRingSize-1), env.regs.RxTail(0))

	// Transmit side: 1.5x ring size worth of control blocks, all free,
	// and a descriptor area with the extra write-back slot.
	assert.Equal(t, MinRingSize+MinRingSize/2, env.trqp.tcbFree)
	assert.Equal(t, MinRingSize, env.trqp.descFree)
	assert.Len(t, env.trqp.descArea.KernelAddress(), (MinRingSize+1)*hw.TxDescSize)
}

func TestRingAllocFailureUnwinds(t *testing.T) {
	devCfg := Config{RxRingSize: MinRingSize, TxRingSize: MinRingSize}
	// Exhaustion at different points of the setup pass: immediately, in
	// the middle of the receive buffer loop, and inside the transmit
	// control block loop.
	for _, failAfter := range []int{0, 10, MinRingSize*2 + 5} {
		eng := dma.NewMemEngine()
		dev, err := NewDevice(devCfg, eng, hw.NewFakeRegisters(),
			newFakeFramework(), prometheus.NewRegistry())
		require.NoError(t, err)

		eng.FailAllocsAfter(failAfter)
		require.Error(t, dev.Start())
		assert.Zero(t, eng.RegionCount(),
			"failed startup must release everything", "fail_after", failAfter)
	}
}

func TestStopReleasesEverything(t *testing.T) {
	eng := dma.NewMemEngine()
	dev, err := NewDevice(Config{RxRingSize: MinRingSize, TxRingSize: MinRingSize},
		eng, hw.NewFakeRegisters(), newFakeFramework(), prometheus.NewRegistry())
	require.NoError(t, err)
	require.NoError(t, dev.Start())
	assert.NotZero(t, eng.RegionCount())

	dev.Stop()
	assert.Zero(t, eng.RegionCount())
	assert.Nil(t, dev.Ring(0).rxData)

	// With nothing loaned out, the drain rendezvous returns immediately.
	dev.WaitRxDrained()

	// Stop is idempotent.
	dev.Stop()
}

func TestConfigValidation(t *testing.T) {
	cfg := Config{}
	cfg.InitDefaults()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, DefRingSize, cfg.RxRingSize)
	assert.Equal(t, MinTxBlockThresh, cfg.TxBlockThresh)

	bad := cfg
	bad.RxRingSize = 100 // not a multiple of 32
	assert.Error(t, bad.Validate())

	bad = cfg
	bad.TxBlockThresh = cfg.TxRingSize
	assert.Error(t, bad.Validate())

	bad = cfg
	bad.MTU = MaxMTU + 1
	assert.Error(t, bad.Validate())
}

func TestBufferSizing(t *testing.T) {
	cfg := Config{MTU: 1500}
	// 1500 + 22 bytes of L2/VLAN/FCS overhead, rounded up to 2 KiB, plus
	// the two alignment bytes.
	assert.Equal(t, 2050, cfg.rxBufSize())
	assert.Equal(t, 2048, cfg.txBufSize())

	cfg.MTU = 9000
	assert.Equal(t, 9*1024+2, cfg.rxBufSize())
}
