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
	"bytes"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nfvworks/fortville/i40e/hw"
	"github.com/nfvworks/fortville/i40e/mblk"
)

// outstanding returns the descriptor count between head and tail.
func outstanding(t *TrqPair) int {
	if t.descTail >= t.descHead {
		return t.descTail - t.descHead
	}
	return t.descTail - t.descHead + t.txRingSize
}

func TestTxCopySingleFrame(t *testing.T) {
	env := newTestEnv(t, nil)
	trqp := env.trqp
	payload := testPayload(128)

	require.Nil(t, trqp.Tx(mblk.NewFromBytes(payload)))

	// One data descriptor, tail advanced by one, doorbell rung.
	assert.Equal(t, MinRingSize-1, trqp.descFree)
	assert.Equal(t, 1, trqp.descTail)
	assert.Equal(t, uint32(1), env.regs.TxTail(0))
	assert.Equal(t, MinRingSize, trqp.descFree+outstanding(trqp))

	desc := hw.TxDescSlot(trqp.descArea.KernelAddress(), 0)
	qw1 := desc.Qword1()
	assert.Equal(t, hw.TxDescDtypeData, hw.Dtype(qw1))
	assert.Equal(t, uint64(hw.TxCmdEOP|hw.TxCmdRS|hw.TxCmdICRC), hw.TxCmd(qw1))
	assert.Equal(t, 128, hw.TxBufSz(qw1))

	// The copy-path control block went working with the frame staged.
	tcb := trqp.tcbWorkList[0]
	require.NotNil(t, tcb)
	assert.Equal(t, txTypeCopy, tcb.typ)
	assert.Equal(t, MinRingSize+MinRingSize/2-1, trqp.tcbFree)

	// Round trip: the device-visible bytes are the submitted fragments,
	// end to end.
	frames := env.sim.CompleteTx(0)
	require.Len(t, frames, 1)
	assert.True(t, bytes.Equal(payload, frames[0]))

	// Hardware reported completion; everything returns to the pools.
	trqp.TxRecycle()
	assert.Equal(t, MinRingSize, trqp.descFree)
	assert.Equal(t, MinRingSize+MinRingSize/2, trqp.tcbFree)
	assert.Nil(t, trqp.tcbWorkList[0])
	assert.Equal(t, 1.0, testutil.ToFloat64(trqp.txStat.Packets))
}

func TestTxMultiFragmentBind(t *testing.T) {
	env := newTestEnv(t, func(cfg *Config) {
		cfg.TxDmaMin = 512
	})
	trqp := env.trqp

	// Nine 100-byte fragments: 900 bytes total, above the threshold, so
	// every fragment is bound and yields one descriptor.
	var frags [][]byte
	mp := mblk.NewFromBytes(testPayload(100))
	frags = append(frags, mp.Bytes())
	tail := mp
	for i := 1; i < 9; i++ {
		frag := mblk.NewFromBytes(testPayload(100))
		frags = append(frags, frag.Bytes())
		tail.SetCont(frag)
		tail = frag
	}

	require.Nil(t, trqp.Tx(mp))
	assert.Equal(t, MinRingSize-9, trqp.descFree)
	assert.Equal(t, 9, trqp.descTail)
	assert.Equal(t, MinRingSize+MinRingSize/2-9, trqp.tcbFree)

	ring := trqp.descArea.KernelAddress()
	for i := 0; i < 9; i++ {
		qw1 := hw.TxDescSlot(ring, i).Qword1()
		if i == 8 {
			assert.NotZero(t, hw.TxCmd(qw1)&hw.TxCmdEOP)
			assert.NotZero(t, hw.TxCmd(qw1)&hw.TxCmdRS)
		} else {
			assert.Zero(t, hw.TxCmd(qw1)&(hw.TxCmdEOP|hw.TxCmdRS))
		}
		tcb := trqp.tcbWorkList[i]
		require.NotNil(t, tcb)
		assert.Equal(t, txTypeBind, tcb.typ)
	}

	// The first block owns the message; the rest carry only bindings.
	assert.Same(t, mp, trqp.tcbWorkList[0].mp)
	for i := 1; i < 9; i++ {
		assert.Nil(t, trqp.tcbWorkList[i].mp)
	}

	frames := env.sim.CompleteTx(0)
	require.Len(t, frames, 1)
	assert.True(t, bytes.Equal(bytes.Join(frags, nil), frames[0]))

	trqp.TxRecycle()
	assert.Equal(t, MinRingSize, trqp.descFree)
	assert.Equal(t, MinRingSize+MinRingSize/2, trqp.tcbFree)
}

func TestTxLso(t *testing.T) {
	env := newTestEnv(t, nil)
	trqp := env.trqp

	// 4500 bytes total over 14+20+20 bytes of headers.
	frame := buildTCPFrame(t, 4500-54, false)
	require.Len(t, frame, 4500)
	mp := mblk.NewFromBytes(frame)
	mp.SetChecksumRequest(mblk.HckIPv4HdrCksum | mblk.HckPartial)
	mp.SetLSO(1448)

	require.Nil(t, trqp.Tx(mp))

	// The context descriptor precedes the data descriptors.
	ring := trqp.descArea.KernelAddress()
	ctx := hw.TxDescSlot(ring, 0)
	qw1 := ctx.Qword1()
	require.Equal(t, hw.TxDescDtypeContext, hw.Dtype(qw1))
	assert.NotZero(t, hw.CtxCmd(qw1)&hw.TxCtxCmdTSO)
	assert.Equal(t, 4446, hw.CtxTsoLen(qw1))
	assert.Equal(t, 1448, hw.CtxMss(qw1))
	assert.Equal(t, txTypeContext, trqp.tcbWorkList[0].typ)

	// LSO always binds, through the long-SGL handle.
	data := hw.TxDescSlot(ring, 1)
	dqw1 := data.Qword1()
	require.Equal(t, hw.TxDescDtypeData, hw.Dtype(dqw1))
	assert.NotZero(t, hw.TxCmd(dqw1)&hw.TxCmdEOP)
	assert.NotZero(t, hw.TxCmd(dqw1)&hw.TxCmdICRC)
	assert.Equal(t, uint64(hw.TxCmdIIPTIPv4Csum|hw.TxCmdL4TTCP),
		hw.TxCmd(dqw1)&uint64(hw.TxCmdIIPTIPv4Csum|hw.TxCmdL4TTCP))
	tcb := trqp.tcbWorkList[1]
	require.NotNil(t, tcb)
	assert.Equal(t, txTypeBind, tcb.typ)
	assert.True(t, tcb.usedLso)

	frames := env.sim.CompleteTx(0)
	require.Len(t, frames, 1)
	assert.True(t, bytes.Equal(frame, frames[0]))
	trqp.TxRecycle()
}

func TestTxVxlanContextDescriptor(t *testing.T) {
	env := newTestEnv(t, nil)
	trqp := env.trqp

	mp := mblk.NewFromBytes(buildVXLANFrame(t, 64))
	mp.SetTunnelType(mblk.TunnelVXLAN)
	mp.SetChecksumRequest(mblk.HckIPv4HdrCksum |
		mblk.HckInnerV4Needed | mblk.HckInnerPseudoNeeded)

	require.Nil(t, trqp.Tx(mp))

	// Tunneled but not segmented: the context descriptor carries the
	// tunneling parameters and zeroed TSO fields.
	ring := trqp.descArea.KernelAddress()
	ctx := hw.TxDescSlot(ring, 0)
	require.Equal(t, hw.TxDescDtypeContext, hw.Dtype(ctx.Qword1()))
	assert.Zero(t, hw.CtxCmd(ctx.Qword1())&hw.TxCtxCmdTSO)
	assert.Zero(t, hw.CtxTsoLen(ctx.Qword1()))
	want := hw.TnlParams(hw.TxTnlEIPTIPv4Csum, 20>>2, hw.TxTnlL4TunTUDP,
		(udpHdrLen+etherHdrLen+vxlanHdrLen)>>1, 0)
	assert.Equal(t, want, ctx.TunnelingParams())

	require.Equal(t, hw.TxDescDtypeData,
		hw.Dtype(hw.TxDescSlot(ring, 1).Qword1()))

	env.sim.CompleteTx(0)
	trqp.TxRecycle()
}

func TestTxBackpressure(t *testing.T) {
	env := newTestEnv(t, nil)
	trqp := env.trqp
	payload := testPayload(64)

	// Fill until the queue refuses: acceptance stops once the free
	// count has dropped under the block threshold.
	accepted := 0
	var held *mblk.Message
	for {
		mp := mblk.NewFromBytes(payload)
		if held = trqp.Tx(mp); held != nil {
			break
		}
		accepted++
	}

	// Each frame took one descriptor; the refusal came with the free
	// count at threshold-1.
	assert.Equal(t, MinRingSize-MinTxBlockThresh+1, accepted)
	assert.Equal(t, MinTxBlockThresh-1, trqp.descFree)
	assert.True(t, trqp.Blocked())
	assert.Equal(t, 1.0, testutil.ToFloat64(trqp.txStat.ErrNoDescs))
	assert.Zero(t, env.fw.updateCount(0))
	held.Free()

	// Hardware catches up; the recycle pass reopens the queue exactly
	// once.
	env.sim.CompleteTx(0)
	trqp.TxRecycle()
	assert.False(t, trqp.Blocked())
	assert.Equal(t, 1, env.fw.updateCount(0))
	assert.Equal(t, MinRingSize, trqp.descFree)
	assert.Equal(t, 1.0, testutil.ToFloat64(trqp.txStat.Unblocked))

	// A drained, unblocked ring does not renotify.
	trqp.TxRecycle()
	assert.Equal(t, 1, env.fw.updateCount(0))
}

func TestTxRecyclePartialWriteBack(t *testing.T) {
	env := newTestEnv(t, nil)
	trqp := env.trqp

	for i := 0; i < 3; i++ {
		require.Nil(t, trqp.Tx(mblk.NewFromBytes(testPayload(64))))
	}
	assert.Equal(t, MinRingSize-3, trqp.descFree)

	// Hardware has written back only the first two frames.
	env.sim.WriteTxWbHead(0, 2)
	trqp.TxRecycle()

	assert.Equal(t, 2, trqp.descHead)
	assert.Equal(t, MinRingSize-1, trqp.descFree)
	assert.Nil(t, trqp.tcbWorkList[0])
	assert.Nil(t, trqp.tcbWorkList[1])
	assert.NotNil(t, trqp.tcbWorkList[2])
	assert.Equal(t, MinRingSize, trqp.descFree+outstanding(trqp))
	assert.Equal(t, 2.0, testutil.ToFloat64(trqp.txStat.Recycled))

	env.sim.WriteTxWbHead(0, 3)
	trqp.TxRecycle()
	assert.Equal(t, MinRingSize, trqp.descFree)
}

func TestTxDropWhenLinkDown(t *testing.T) {
	env := newTestEnv(t, nil)
	env.dev.SetLinkUp(false)

	assert.Nil(t, env.trqp.Tx(mblk.NewFromBytes(testPayload(64))))
	assert.Equal(t, 0, env.trqp.descTail)
	assert.Equal(t, uint32(0), env.regs.TxTail(0))
}

func TestTxContextErrorDropsFrame(t *testing.T) {
	env := newTestEnv(t, nil)

	// Too short to hold the headers the checksum request implies.
	mp := mblk.NewFromBytes(testPayload(10))
	mp.SetChecksumRequest(mblk.HckPartial)

	assert.Nil(t, env.trqp.Tx(mp))
	assert.Equal(t, 1.0, testutil.ToFloat64(env.trqp.txStat.ErrContext))
	assert.Equal(t, 0, env.trqp.descTail)
}

func TestTxCleanupRing(t *testing.T) {
	env := newTestEnv(t, nil)
	trqp := env.trqp

	for i := 0; i < 4; i++ {
		require.Nil(t, trqp.Tx(mblk.NewFromBytes(testPayload(64))))
	}
	require.Equal(t, MinRingSize-4, trqp.descFree)

	// The shutdown drain walks head to tail unconditionally, ignoring
	// the write-back head.
	trqp.txLock.Lock()
	trqp.txCleanupRing()
	trqp.txLock.Unlock()

	assert.Equal(t, MinRingSize, trqp.descFree)
	assert.Equal(t, trqp.descTail, trqp.descHead)
	assert.Equal(t, MinRingSize+MinRingSize/2, trqp.tcbFree)
	for _, tcb := range trqp.tcbWorkList {
		assert.Nil(t, tcb)
	}
}

func TestTxNoTcbBlocks(t *testing.T) {
	env := newTestEnv(t, nil)
	trqp := env.trqp

	// Exhaust the free pool behind the driver's back.
	trqp.tcbLock.Lock()
	saved := trqp.tcbFree
	trqp.tcbFree = 0
	trqp.tcbLock.Unlock()

	mp := mblk.NewFromBytes(testPayload(64))
	got := trqp.Tx(mp)
	require.Same(t, mp, got)
	assert.True(t, trqp.Blocked())
	assert.Equal(t, 1.0, testutil.ToFloat64(trqp.txStat.ErrNoTCB))

	trqp.tcbLock.Lock()
	trqp.tcbFree = saved
	trqp.tcbLock.Unlock()
	got.Free()
}
