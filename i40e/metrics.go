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
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics defines the data-plane metrics of one device. Per-queue
// instances are curried out of these vectors at ring setup so the hot
// path never touches a label lookup.
type Metrics struct {
	RxBytesTotal      *prometheus.CounterVec
	RxPacketsTotal    *prometheus.CounterVec
	RxEventsTotal     *prometheus.CounterVec
	RxChecksumTotal   *prometheus.CounterVec
	TxBytesTotal      *prometheus.CounterVec
	TxPacketsTotal    *prometheus.CounterVec
	TxDescriptorsUsed *prometheus.CounterVec
	TxRecycledTotal   *prometheus.CounterVec
	TxUnblockedTotal  *prometheus.CounterVec
	TxErrorsTotal     *prometheus.CounterVec
}

// NewMetrics initializes the device metrics and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	auto := promauto.With(reg)
	return &Metrics{
		RxBytesTotal: auto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fortville_rx_bytes_total",
				Help: "Total number of bytes received.",
			},
			[]string{"ring"},
		),
		RxPacketsTotal: auto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fortville_rx_packets_total",
				Help: "Total number of frames received.",
			},
			[]string{"ring"},
		),
		RxEventsTotal: auto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fortville_rx_events_total",
				Help: "Receive pipeline events, by kind.",
			},
			[]string{"ring", "event"},
		),
		RxChecksumTotal: auto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fortville_rx_checksum_total",
				Help: "Receive checksum decode outcomes.",
			},
			[]string{"ring", "result"},
		),
		TxBytesTotal: auto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fortville_tx_bytes_total",
				Help: "Total number of bytes sent.",
			},
			[]string{"ring"},
		),
		TxPacketsTotal: auto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fortville_tx_packets_total",
				Help: "Total number of frames sent.",
			},
			[]string{"ring"},
		),
		TxDescriptorsUsed: auto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fortville_tx_descriptors_total",
				Help: "Total number of transmit descriptors written.",
			},
			[]string{"ring"},
		),
		TxRecycledTotal: auto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fortville_tx_recycled_total",
				Help: "Total number of transmit descriptors recycled.",
			},
			[]string{"ring"},
		),
		TxUnblockedTotal: auto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fortville_tx_unblocked_total",
				Help: "Number of times a blocked queue was reopened.",
			},
			[]string{"ring"},
		),
		TxErrorsTotal: auto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fortville_tx_errors_total",
				Help: "Transmit pipeline errors, by reason.",
			},
			[]string{"ring", "reason"},
		),
	}
}

// rxQueueStats groups the per-queue receive counters, all sharing the
// same ring label value.
type rxQueueStats struct {
	Bytes   prometheus.Counter
	Packets prometheus.Counter

	DescError prometheus.Counter
	IntrLimit prometheus.Counter
	BindNoRCB prometheus.Counter
	BindNoBuf prometheus.Counter
	CopyNoMem prometheus.Counter

	HckUnknown prometheus.Counter
	HckNoL3L4P prometheus.Counter
	HckV6Skip  prometheus.Counter
	HckIPErr   prometheus.Counter
	HckEIPErr  prometheus.Counter
	HckL4Err   prometheus.Counter
	HckV4OK    prometheus.Counter
	HckL4OK    prometheus.Counter
	HckSet     prometheus.Counter
	HckMiss    prometheus.Counter
}

// txQueueStats groups the per-queue transmit counters.
type txQueueStats struct {
	Bytes       prometheus.Counter
	Packets     prometheus.Counter
	Descriptors prometheus.Counter
	Recycled    prometheus.Counter
	Unblocked   prometheus.Counter

	ErrNoTCB    prometheus.Counter
	ErrNoDescs  prometheus.Counter
	ErrContext  prometheus.Counter
	ErrBindFail prometheus.Counter
	HckMeoiFail prometheus.Counter
	HckNoL2Info prometheus.Counter
	HckNoL3Info prometheus.Counter
	HckNoL4Info prometheus.Counter
	HckBadL3    prometheus.Counter
	HckBadL4    prometheus.Counter
	HckNoTunnel prometheus.Counter
}

func newRxQueueStats(m *Metrics, ring int) rxQueueStats {
	labels := prometheus.Labels{"ring": strconv.Itoa(ring)}
	events := m.RxEventsTotal.MustCurryWith(labels)
	cksum := m.RxChecksumTotal.MustCurryWith(labels)
	s := rxQueueStats{
		Bytes:   m.RxBytesTotal.With(labels),
		Packets: m.RxPacketsTotal.With(labels),

		DescError: events.With(prometheus.Labels{"event": "desc_error"}),
		IntrLimit: events.With(prometheus.Labels{"event": "intr_limit"}),
		BindNoRCB: events.With(prometheus.Labels{"event": "bind_no_rcb"}),
		BindNoBuf: events.With(prometheus.Labels{"event": "bind_no_buf"}),
		CopyNoMem: events.With(prometheus.Labels{"event": "copy_no_mem"}),

		HckUnknown: cksum.With(prometheus.Labels{"result": "unknown_ptype"}),
		HckNoL3L4P: cksum.With(prometheus.Labels{"result": "no_l3l4p"}),
		HckV6Skip:  cksum.With(prometheus.Labels{"result": "v6_ext_skip"}),
		HckIPErr:   cksum.With(prometheus.Labels{"result": "ip_error"}),
		HckEIPErr:  cksum.With(prometheus.Labels{"result": "outer_ip_error"}),
		HckL4Err:   cksum.With(prometheus.Labels{"result": "l4_error"}),
		HckV4OK:    cksum.With(prometheus.Labels{"result": "v4_hdr_ok"}),
		HckL4OK:    cksum.With(prometheus.Labels{"result": "l4_ok"}),
		HckSet:     cksum.With(prometheus.Labels{"result": "set"}),
		HckMiss:    cksum.With(prometheus.Labels{"result": "miss"}),
	}
	s.Bytes.Add(0)
	s.Packets.Add(0)
	return s
}

func newTxQueueStats(m *Metrics, ring int) txQueueStats {
	labels := prometheus.Labels{"ring": strconv.Itoa(ring)}
	errs := m.TxErrorsTotal.MustCurryWith(labels)
	s := txQueueStats{
		Bytes:       m.TxBytesTotal.With(labels),
		Packets:     m.TxPacketsTotal.With(labels),
		Descriptors: m.TxDescriptorsUsed.With(labels),
		Recycled:    m.TxRecycledTotal.With(labels),
		Unblocked:   m.TxUnblockedTotal.With(labels),

		ErrNoTCB:    errs.With(prometheus.Labels{"reason": "no_tcb"}),
		ErrNoDescs:  errs.With(prometheus.Labels{"reason": "no_descriptors"}),
		ErrContext:  errs.With(prometheus.Labels{"reason": "bad_context"}),
		ErrBindFail: errs.With(prometheus.Labels{"reason": "bind_failed"}),
		HckMeoiFail: errs.With(prometheus.Labels{"reason": "offload_parse"}),
		HckNoL2Info: errs.With(prometheus.Labels{"reason": "no_l2_info"}),
		HckNoL3Info: errs.With(prometheus.Labels{"reason": "no_l3_info"}),
		HckNoL4Info: errs.With(prometheus.Labels{"reason": "no_l4_info"}),
		HckBadL3:    errs.With(prometheus.Labels{"reason": "bad_l3_proto"}),
		HckBadL4:    errs.With(prometheus.Labels{"reason": "bad_l4_proto"}),
		HckNoTunnel: errs.With(prometheus.Labels{"reason": "bad_tunnel"}),
	}
	s.Bytes.Add(0)
	s.Packets.Add(0)
	return s
}
