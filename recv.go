// FOBROB - A receiver and transmitter for 433MHz vehicle key fob remotes.
// Copyright (C) 2017 The fobrob Authors
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <http://www.gnu.org/licenses/>.

package main

import (
	"context"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bemasher/rtltcp"
	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/fobrob/fobrob/config"
	"github.com/fobrob/fobrob/demod"
	"github.com/fobrob/fobrob/dsp"
	"github.com/fobrob/fobrob/metrics"
	"github.com/fobrob/fobrob/packet"
	"github.com/fobrob/fobrob/radio"
	"github.com/fobrob/fobrob/radio/hackrf"
	"github.com/fobrob/fobrob/radio/rtlsdr"
	"github.com/fobrob/fobrob/sink"
)

var rcvr Receiver

type Receiver struct {
	sdr rtltcp.SDR

	cfg    config.Config
	src    radio.Source
	ch     *dsp.Channel
	d      *demod.Demodulator
	layout packet.Layout
	fc     packet.FilterChain
	out    sink.Sink

	clip    *radio.ClipMonitor
	reg     *prometheus.Registry
	metrics *metrics.Metrics

	packets chan packet.LogMessage
}

func (rcvr *Receiver) NewReceiver(cfg config.Config) {
	rcvr.cfg = cfg

	var err error
	if rcvr.layout, err = packet.Lookup(cfg.Layout); err != nil {
		log.Fatal(err)
	}

	rcvr.ch = dsp.NewChannel(dsp.LowPass(cfg.Decimation, cfg.FilterTaps), cfg.Decimation)
	rcvr.d, err = demod.New(cfg.Demod, rcvr.onPacket)
	if err != nil {
		log.Fatal(err)
	}

	if cfg.Output.Unique {
		rcvr.fc.Add(packet.NewUniqueFilter())
	}
	if len(cfg.Output.Commands) > 0 {
		cf := make(packet.CommandFilter)
		for _, name := range cfg.Output.Commands {
			cf[name] = true
		}
		rcvr.fc.Add(cf)
	}

	rcvr.reg = prometheus.NewRegistry()
	rcvr.metrics = metrics.New(rcvr.reg)
	rcvr.clip = radio.NewClipMonitor(log.StandardLogger())
	rcvr.packets = make(chan packet.LogMessage, cfg.Output.QueueSize)

	if rcvr.out, err = NewSink(cfg); err != nil {
		log.Fatal("Error opening sinks: ", err)
	}

	if rcvr.src, err = rcvr.NewSource(); err != nil {
		log.Fatal("Error opening source: ", err)
	}
}

// NewSource opens the configured sample source.
func (rcvr *Receiver) NewSource() (radio.Source, error) {
	cfg := rcvr.cfg

	switch cfg.Source {
	case "rtltcp":
		return radio.NewRTLTCP(&rcvr.sdr, cfg.Tuning)
	case "rtlsdr":
		return rtlsdr.Open(cfg.Device, cfg.Tuning)
	case "hackrf":
		return hackrf.OpenReceiver(cfg.Tuning, hackrf.Options{
			LNAGain: cfg.HackRF.LNAGain,
			VGAGain: cfg.HackRF.VGAGain,
			Amp:     cfg.HackRF.Amp,
		})
	case "file":
		return radio.OpenFile(cfg.File, cfg.Format)
	}

	return nil, errors.Errorf("invalid source: %q", cfg.Source)
}

// NewSink opens every configured sink.
func NewSink(cfg config.Config) (sink.Sink, error) {
	stream, err := sink.NewStream(os.Stdout, cfg.Output.Format)
	if err != nil {
		return nil, err
	}
	sinks := sink.Multi{stream}

	if cfg.Output.Dir != "" {
		sinks = append(sinks, sink.NewFiles(cfg.Output.Dir))
	}

	if cfg.Output.SQLite != "" {
		db, err := sink.OpenSQLite(cfg.Output.SQLite)
		if err != nil {
			sinks.Close()
			return nil, err
		}
		sinks = append(sinks, db)
	}

	if cfg.MQTT.Broker != "" {
		m, err := sink.DialMQTT(cfg.MQTT)
		if err != nil {
			sinks.Close()
			return nil, err
		}
		sinks = append(sinks, m)
	}

	return sinks, nil
}

// onPacket runs on the decode goroutine for every delivered packet.
func (rcvr *Receiver) onPacket(p packet.Packet) {
	msg := packet.NewMessage(p, rcvr.layout)
	if !rcvr.fc.Match(msg) {
		return
	}

	rcvr.metrics.Packet(msg)

	select {
	case rcvr.packets <- packet.NewLogMessage(time.Now(), msg):
	default:
		rcvr.metrics.Dropped.Inc()
		log.WithField("code", msg.Code()).Warn("sinks are behind, dropping packet")
	}
}

var errStop = errors.New("stopped")

func (rcvr *Receiver) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	eg, ctx := errgroup.WithContext(ctx)

	// Setup signal channel for interruption.
	sigint := make(chan os.Signal, 1)
	signal.Notify(sigint, os.Interrupt, syscall.SIGTERM)

	// Setup time limit channel
	tLimit := make(<-chan time.Time, 1)
	if *timeLimit != 0 {
		tLimit = time.After(*timeLimit)
	}

	start := time.Now()

	eg.Go(func() error {
		select {
		case <-sigint:
			log.Info("interrupted")
		case <-tLimit:
			log.WithField("runtime", time.Since(start)).Info("time limit reached")
		case <-ctx.Done():
		}

		// Unblocks a read in progress.
		rcvr.src.Close()
		return errStop
	})

	if rcvr.cfg.Metrics != "" {
		eg.Go(func() error {
			return metrics.Serve(ctx, rcvr.cfg.Metrics, rcvr.reg)
		})
	}

	blockCh := make(chan []complex64)

	// Read and send sample blocks to the decoder.
	eg.Go(func() error {
		// Make two sample blocks, one for reading, and one for the decoder,
		// these are exchanged each time we read a new block.
		blockA := make([]complex64, rcvr.cfg.BlockSize)
		blockB := make([]complex64, rcvr.cfg.BlockSize)

		// When exiting this goroutine, close the block channel.
		defer close(blockCh)

		for {
			n, err := rcvr.src.ReadSamples(blockA)
			if err == io.EOF {
				log.Info("end of samples")
				return nil
			}
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return errors.Wrap(err, "reading samples")
			}

			select {
			case blockCh <- blockA[:n]:
			case <-ctx.Done():
				return nil
			}

			// Exchange blocks for next read.
			blockA, blockB = blockB, blockA
		}
	})

	// Decode blocks, packets are queued by onPacket.
	eg.Go(func() error {
		defer close(rcvr.packets)

		mag := make([]float64, 0, rcvr.cfg.BlockSize/rcvr.cfg.Decimation+1)
		for block := range blockCh {
			rcvr.metrics.Samples.Add(float64(len(block)))
			if rcvr.clip.Check(block) {
				rcvr.metrics.Clipped.Inc()
			}

			mag = rcvr.ch.Execute(block, mag[:0])
			rcvr.d.Execute(mag)
			rcvr.metrics.Observe(rcvr.d.Stats())
		}

		return nil
	})

	// Persist packets.
	eg.Go(func() error {
		// Ends the session once the source is exhausted.
		defer cancel()

		for msg := range rcvr.packets {
			log.WithFields(log.Fields{
				"code":         msg.Code,
				"command":      msg.Command,
				"rolling_code": msg.RollingCode,
			}).Info("valid packet received")

			if err := rcvr.out.Write(msg); err != nil {
				log.WithError(err).Error("writing packet")
			}

			if *single {
				return errStop
			}
		}

		return nil
	})

	err := eg.Wait()

	stats := rcvr.d.Stats()
	log.WithFields(log.Fields{
		"runtime":   time.Since(start).Round(time.Millisecond),
		"locks":     humanize.Comma(int64(stats.Locks)),
		"corrupt":   humanize.Comma(int64(stats.Corrupt)),
		"delivered": humanize.Comma(int64(stats.Delivered)),
		"clipped":   humanize.Comma(int64(rcvr.clip.Clipped())),
	}).Info("receiver stopped")

	if err == errStop {
		return nil
	}
	return err
}

func (rcvr *Receiver) Close() {
	if err := rcvr.out.Close(); err != nil {
		log.WithError(err).Error("closing sinks")
	}
}
