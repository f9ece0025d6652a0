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

// Package i40e implements the transmit/receive data plane for the XL710
// family of 10/40 GbE controllers: per-queue descriptor rings, their
// control-block pools, the receive and transmit pipelines, and the
// flow-control handshake with the host networking stack.
//
// The device is organized as an array of independent transmit-receive
// queue pairs. Each pair owns a receive ring with a working and a free
// list of receive control blocks, and a transmit ring with a working list
// and a free pool of transmit control blocks. Received frames are either
// copied into a fresh upper-stack message or the DMA buffer itself is
// loaned upward, with a reference-counted recycle path bringing it back.
// Transmitted frames are either staged into a pre-allocated copy buffer or
// DMA-bound fragment by fragment, with completion driven by the ring's
// hardware write-back head.
//
// Everything outside the data plane - PCI attach, firmware queues,
// link/PHY management, interrupt wiring, filter programming - lives behind
// the narrow contracts this package consumes: dma.Engine,
// hw.RegisterFile, and Framework.
package i40e

import (
	"sync"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/nfvworks/fortville/i40e/dma"
	"github.com/nfvworks/fortville/i40e/hw"
	"github.com/nfvworks/fortville/i40e/mblk"
	"github.com/nfvworks/fortville/pkg/log"
	"github.com/nfvworks/fortville/pkg/private/serrors"
)

// atomicOr32 and atomicAnd32 back-port the atomic.Uint32.Or/And methods
// added in Go 1.23, for builds on older toolchains.
func atomicOr32(a *atomic.Uint32, bits uint32) {
	for {
		old := a.Load()
		if a.CompareAndSwap(old, old|bits) {
			return
		}
	}
}

func atomicAnd32(a *atomic.Uint32, bits uint32) {
	for {
		old := a.Load()
		if a.CompareAndSwap(old, old&bits) {
			return
		}
	}
}

// Device state bits.
const (
	stateStarted uint32 = 1 << iota
	stateError
	stateOvertemp
	stateSuspended
)

// Scatter/gather limits: the hardware allows 8 buffers per logical frame;
// with LSO each segment may span up to 8 descriptors, so the binding as a
// whole may fragment further.
const (
	maxTxCookies    = 8
	maxTxLsoCookies = 32
)

// The DMA attribute templates. They are copied into each device at setup
// so per-instance fault-checking capabilities stay isolated.
var (
	staticDmaAttr = dma.Attr{
		Align:      dma.PageSize,
		Sgllen:     1,
		CounterMax: 0xFFFF_FFFF,
	}
	txBindDmaAttr = dma.Attr{
		Align:      dma.PageSize,
		Sgllen:     maxTxCookies,
		CounterMax: hw.MaxTxBufSize,
	}
	txBindLsoDmaAttr = dma.Attr{
		Align:      dma.PageSize,
		Sgllen:     maxTxLsoCookies,
		CounterMax: hw.MaxTxBufSize,
	}
)

// Framework is the slice of the host stack the data plane calls back
// into.
type Framework interface {
	// TxRingUpdate signals that a previously blocked queue can accept
	// frames again.
	TxRingUpdate(trqp *TrqPair)
}

// Device is one physical function: its queue pairs and the shared
// teardown state for buffers loaned to the upper stack.
type Device struct {
	cfg     Config
	engine  dma.Engine
	regs    hw.RegisterFile
	fw      Framework
	metrics *Metrics
	logger  log.Logger

	staticAttr    dma.Attr
	txBindAttr    dma.Attr
	txBindLsoAttr dma.Attr

	rxBufSize int
	txBufSize int

	state   atomic.Uint32
	linkUp  atomic.Bool
	stopped atomic.Bool

	trqpairs []*TrqPair

	// rxPendingMu orders the teardown rendezvous against recycle
	// callbacks for loaned buffers; rxPendingCond signals the last one.
	rxPendingMu   sync.Mutex
	rxPendingCond *sync.Cond
	rxPending     atomic.Int32

	// Test seams. allocMsg and loanMsg default to the mblk constructors;
	// debugRxMode forces a receive disposition.
	allocMsg    func(size int) *mblk.Message
	loanMsg     func(buf []byte, free func()) *mblk.Message
	debugRxMode rxMode
}

type rxMode int

const (
	rxModeDefault rxMode = iota
	rxModeCopy
	rxModeBind
)

// TrqPair is one transmit-receive queue pair.
type TrqPair struct {
	index int
	dev   *Device

	// rxLock serializes the whole receive pipeline on this queue.
	rxLock sync.Mutex
	rxData *rxData
	rxStat rxQueueStats

	// txLock serializes descriptor-ring mutation, reclamation, and the
	// shutdown drain. tcbLock covers only the free-pool stack.
	txLock  sync.Mutex
	tcbLock sync.Mutex

	descArea       *dma.Buffer
	txRingSize     int
	txFreeListSize int
	tcbWorkList    []*txControlBlock
	tcbFreeList    []*txControlBlock
	tcbArea        []txControlBlock
	tcbFree        int
	descHead       int
	descTail       int
	descFree       int
	txBlocked      bool
	txStat         txQueueStats
}

// NewDevice assembles a device over the given platform contracts. Ring
// memory is not allocated until Start. A nil registerer falls back to the
// default Prometheus registry.
func NewDevice(cfg Config, engine dma.Engine, regs hw.RegisterFile, fw Framework,
	reg prometheus.Registerer) (*Device, error) {

	cfg.InitDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, serrors.Wrap("validating config", err)
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	d := &Device{
		cfg:       cfg,
		engine:    engine,
		regs:      regs,
		fw:        fw,
		metrics:   NewMetrics(reg),
		logger:    log.New("comp", "i40e"),
		rxBufSize: cfg.rxBufSize(),
		txBufSize: cfg.txBufSize(),
		allocMsg:  mblk.Alloc,
		loanMsg:   mblk.NewLoaned,
	}
	d.rxPendingCond = sync.NewCond(&d.rxPendingMu)
	d.initDmaAttrs(true)
	d.trqpairs = make([]*TrqPair, cfg.NumRings)
	for i := range d.trqpairs {
		d.trqpairs[i] = &TrqPair{
			index:  i,
			dev:    d,
			rxStat: newRxQueueStats(d.metrics, i),
			txStat: newTxQueueStats(d.metrics, i),
		}
	}
	return d, nil
}

// initDmaAttrs copies the attribute templates into the device, setting
// the fault-checking capability this instance ends up with.
func (d *Device) initDmaAttrs(faultChecking bool) {
	d.staticAttr = staticDmaAttr
	d.txBindAttr = txBindDmaAttr
	d.txBindLsoAttr = txBindLsoDmaAttr
	d.staticAttr.FaultChecking = faultChecking
	d.txBindAttr.FaultChecking = faultChecking
	d.txBindLsoAttr.FaultChecking = faultChecking
}

// Rings returns the device's queue pairs.
func (d *Device) Rings() []*TrqPair {
	return d.trqpairs
}

// Ring returns queue pair i.
func (d *Device) Ring(i int) *TrqPair {
	return d.trqpairs[i]
}

// SetLinkUp records the link state maintained by the external link
// management.
func (d *Device) SetLinkUp(up bool) {
	d.linkUp.Store(up)
}

// Start allocates all ring memory, arms the receive rings, and opens the
// data path. On failure everything partially created is unwound.
func (d *Device) Start() error {
	if err := d.allocRingMem(); err != nil {
		return err
	}
	for _, trqp := range d.trqpairs {
		trqp.armRxRing()
	}
	atomicOr32(&d.state, stateStarted)
	d.logger.Info("Data path started",
		"rings", len(d.trqpairs), "rx_buf_size", d.rxBufSize)
	return nil
}

// Stop closes the data path and releases ring memory. Buffers still
// loaned to the upper stack survive until their recycle callback runs;
// WaitRxDrained blocks for that rendezvous.
func (d *Device) Stop() {
	if d.stopped.Swap(true) {
		return
	}
	atomicAnd32(&d.state, ^stateStarted)
	for _, trqp := range d.trqpairs {
		trqp.txLock.Lock()
		trqp.txCleanupRing()
		trqp.txLock.Unlock()
	}
	d.freeRingMem(false)
	d.logger.Info("Data path stopped", "rx_pending", d.rxPending.Load())
}

// WaitRxDrained blocks until every loaned receive buffer has been
// returned and its backing memory released.
func (d *Device) WaitRxDrained() {
	d.rxPendingMu.Lock()
	for d.rxPending.Load() > 0 {
		d.rxPendingCond.Wait()
	}
	d.rxPendingMu.Unlock()
}

func (d *Device) started() bool {
	return d.state.Load() == stateStarted
}

// setError moves the device into the degraded error state. The external
// fault-management collaborator is expected to observe this.
func (d *Device) setError(err error) {
	atomicOr32(&d.state, stateError)
	d.logger.Error("Device entering degraded state", "err", err)
}

// Index returns the queue pair's index.
func (t *TrqPair) Index() int {
	return t.index
}

// Blocked reports whether the queue has flow-controlled the upper stack.
func (t *TrqPair) Blocked() bool {
	t.txLock.Lock()
	defer t.txLock.Unlock()
	return t.txBlocked
}
