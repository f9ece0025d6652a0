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

// The fortville tool runs the data plane against the software device
// model in loopback: frames submitted on a queue's transmit ring are
// completed, injected into its receive ring, and polled back out. It is
// a bring-up aid for exercising the full descriptor path without
// hardware.
package main

import (
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/nfvworks/fortville/i40e"
	"github.com/nfvworks/fortville/i40e/dma"
	"github.com/nfvworks/fortville/i40e/hw"
	"github.com/nfvworks/fortville/i40e/mblk"
	"github.com/nfvworks/fortville/pkg/log"
	"github.com/nfvworks/fortville/pkg/private/serrors"
)

var flags struct {
	config      string
	frames      int
	frameSize   int
	logLevel    string
	metricsAddr string
}

func main() {
	cmd := &cobra.Command{
		Use:           "fortville",
		Short:         "XL710 data-plane loopback driver",
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run()
		},
	}
	cmd.Flags().StringVar(&flags.config, "config", "", "TOML tunables file")
	cmd.Flags().IntVar(&flags.frames, "frames", 100_000, "number of frames to loop")
	cmd.Flags().IntVar(&flags.frameSize, "frame-size", 1024, "frame payload size")
	cmd.Flags().StringVar(&flags.logLevel, "log-level", "info", "log level")
	cmd.Flags().StringVar(&flags.metricsAddr, "metrics", "", "prometheus listen address")
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// framework collects unblock notifications from the driver.
type framework struct {
	unblocked chan *i40e.TrqPair
}

func (f *framework) TxRingUpdate(trqp *i40e.TrqPair) {
	select {
	case f.unblocked <- trqp:
	default:
	}
}

func run() error {
	if err := log.Setup(log.Config{Level: flags.logLevel, Console: true}); err != nil {
		return err
	}
	defer log.Flush()

	cfg := i40e.Config{RxHcksumEnable: true, TxHcksumEnable: true}
	if flags.config != "" {
		var err error
		if cfg, err = i40e.LoadConfig(flags.config); err != nil {
			return err
		}
	}

	if flags.metricsAddr != "" {
		go func() {
			defer log.HandlePanic()
			http.Handle("/metrics", promhttp.Handler())
			if err := http.ListenAndServe(flags.metricsAddr, nil); err != nil {
				log.Error("Metrics endpoint failed", "err", err)
			}
		}()
	}

	engine := dma.NewMemEngine()
	regs := hw.NewFakeRegisters()
	fw := &framework{unblocked: make(chan *i40e.TrqPair, 1)}

	dev, err := i40e.NewDevice(cfg, engine, regs, fw, nil)
	if err != nil {
		return serrors.Wrap("assembling device", err)
	}
	if err := dev.Start(); err != nil {
		return serrors.Wrap("starting device", err)
	}
	dev.SetLinkUp(true)
	defer func() {
		dev.Stop()
		dev.WaitRxDrained()
	}()

	sim := i40e.NewHardwareSim(dev, engine, regs)
	trqp := dev.Ring(0)

	payload := make([]byte, flags.frameSize)
	for i := range payload {
		payload[i] = byte(i)
	}

	log.Info("Loopback starting",
		"frames", flags.frames, "frame_size", flags.frameSize)
	start := time.Now()

	var rxFrames, rxBytes int
	for sent := 0; sent < flags.frames; {
		if held := trqp.Tx(mblk.NewFromBytes(payload)); held != nil {
			// Backpressure: drain completions until the driver reopens
			// the queue.
			for _, frame := range sim.CompleteTx(0) {
				sim.InjectRx(0, frame)
			}
			trqp.TxRecycle()
			held.Free()
			continue
		}
		sent++

		for _, frame := range sim.CompleteTx(0) {
			sim.InjectRx(0, frame)
		}
		trqp.TxRecycle()

		for mp := trqp.RxIntr(); mp != nil; {
			next := mp.Next()
			mp.SetNext(nil)
			rxFrames++
			rxBytes += mp.ChainLen()
			mp.Free()
			mp = next
		}
	}

	elapsed := time.Since(start)
	rate := float64(rxBytes) / elapsed.Seconds()
	log.Info("Loopback finished",
		"rx_frames", rxFrames,
		"rx_bytes", humanize.Bytes(uint64(rxBytes)),
		"throughput", fmt.Sprintf("%s/s", humanize.Bytes(uint64(rate))),
		"elapsed", elapsed.Round(time.Millisecond))
	return nil
}
