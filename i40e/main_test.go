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
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/nfvworks/fortville/i40e/dma"
	"github.com/nfvworks/fortville/i40e/hw"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// fakeFramework records the driver's callbacks into the host stack.
type fakeFramework struct {
	mu      sync.Mutex
	updates map[int]int
}

func newFakeFramework() *fakeFramework {
	return &fakeFramework{updates: make(map[int]int)}
}

func (f *fakeFramework) TxRingUpdate(trqp *TrqPair) {
	f.mu.Lock()
	f.updates[trqp.Index()]++
	f.mu.Unlock()
}

func (f *fakeFramework) updateCount(queue int) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.updates[queue]
}

// testEnv is a started single-queue device over the memory engine and
// the software device model.
type testEnv struct {
	dev  *Device
	eng  *dma.MemEngine
	regs *hw.FakeRegisters
	fw   *fakeFramework
	sim  *HardwareSim
	trqp *TrqPair
}

func newTestEnv(t *testing.T, mod func(*Config)) *testEnv {
	t.Helper()
	cfg := Config{
		RxRingSize:     MinRingSize,
		TxRingSize:     MinRingSize,
		RxHcksumEnable: true,
		TxHcksumEnable: true,
	}
	cfg.InitDefaults()
	if mod != nil {
		mod(&cfg)
	}

	eng := dma.NewMemEngine()
	regs := hw.NewFakeRegisters()
	fw := newFakeFramework()
	dev, err := NewDevice(cfg, eng, regs, fw, prometheus.NewRegistry())
	require.NoError(t, err)
	require.NoError(t, dev.Start())
	dev.SetLinkUp(true)

	env := &testEnv{
		dev:  dev,
		eng:  eng,
		regs: regs,
		fw:   fw,
		sim:  NewHardwareSim(dev, eng, regs),
		trqp: dev.Ring(0),
	}
	t.Cleanup(func() {
		dev.Stop()
		dev.WaitRxDrained()
	})
	return env
}
