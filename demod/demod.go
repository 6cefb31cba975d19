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

// Package demod recovers fob packets from a stream of magnitude samples.
//
// The fob keys its carrier on and off. A transmission starts with a long
// preamble alternating every symbol period, followed by a short gap, the
// Manchester coded packet, a longer gap and a repeat of the packet. The
// Demodulator recovers the symbol clock from the preamble edges, samples one
// chip per symbol period at the centre of each recovered symbol and checks
// every chip pair before handing the packet to the caller.
//
// A Demodulator does O(1) work per sample and is not safe for concurrent
// use; each sample stream needs its own.
package demod

import (
	"fmt"

	"github.com/fobrob/fobrob/manchester"
	"github.com/fobrob/fobrob/packet"
)

// Stage is the state of the demodulator.
type Stage int

const (
	// Searching for on-cadence preamble edges.
	Searching Stage = iota
	// PreambleLocked has seen enough preamble and waits for the gap.
	PreambleLocked
	// Decoding samples one chip per symbol period.
	Decoding
	// Validating checks and delivers a complete set of chips.
	Validating
	// AwaitingRepeat keeps the symbol clock through the gap before the
	// repeated packet.
	AwaitingRepeat
)

var stageNames = [...]string{"Searching", "PreambleLocked", "Decoding", "Validating", "AwaitingRepeat"}

func (s Stage) String() string {
	if s >= 0 && int(s) < len(stageNames) {
		return stageNames[s]
	}
	return fmt.Sprintf("Stage(%d)", int(s))
}

// Handler receives validated packets. It runs on the goroutine feeding
// samples and must not retain the demodulator.
type Handler func(packet.Packet)

// Stats counts demodulator events since creation.
type Stats struct {
	Locks      uint64 // preambles accepted
	Lost       uint64 // locks abandoned before the gap
	Corrupt    uint64 // occurrences with an invalid chip pair
	Mismatched uint64 // valid repeats differing from the first occurrence
	Delivered  uint64 // packets handed to the handler
}

type Demodulator struct {
	cfg      Config
	onPacket Handler

	stage Stage

	// Envelope tracker for the decision level.
	level       bool
	peak, floor float64
	release     float64

	// Samples since the last edge of the decided signal.
	since int
	// On-cadence preamble edges counted so far.
	transitions int

	// Samples remaining until the next chip is sampled, and the value of
	// countdown at which a symbol boundary is expected.
	countdown int
	boundary  int

	chips  [Chips]byte
	nChips int

	occurrence int
	first      packet.Packet
	delivered  bool

	stats Stats
}

// New returns a demodulator in the Searching stage which calls onPacket for
// every delivered packet.
func New(cfg Config, onPacket Handler) (*Demodulator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if onPacket == nil {
		return nil, fmt.Errorf("demod: packet handler is nil")
	}

	d := &Demodulator{
		cfg:      cfg,
		onPacket: onPacket,
		release:  1 / float64(cfg.SamplesPerSymbol<<4),
		boundary: cfg.SamplesPerSymbol >> 1,
	}
	d.Reset()

	return d, nil
}

func (d *Demodulator) Config() Config {
	return d.cfg
}

func (d *Demodulator) Stage() Stage {
	return d.stage
}

func (d *Demodulator) Stats() Stats {
	return d.stats
}

// Reset discards all recovery state, including the decision level.
func (d *Demodulator) Reset() {
	d.level = false
	d.peak, d.floor = 0, 0
	d.since = 0
	d.search()
}

// search returns to the Searching stage without disturbing the edge timing.
func (d *Demodulator) search() {
	d.stage = Searching
	d.transitions = 0
	d.nChips = 0
	d.occurrence = 0
	d.delivered = false
}

// Sample advances the demodulator by one magnitude sample.
func (d *Demodulator) Sample(mag float64) {
	bit := d.decide(mag)
	edge := bit != d.level
	d.level = bit
	d.since++

	switch d.stage {
	case Searching:
		d.searching(edge)
	case PreambleLocked:
		d.locked(edge)
	case Decoding, AwaitingRepeat:
		d.decoding(edge)
	}

	if edge {
		d.since = 0
	}
}

// Execute feeds a block of magnitude samples.
func (d *Demodulator) Execute(block []float64) {
	for _, mag := range block {
		d.Sample(mag)
	}
}

func (d *Demodulator) decide(mag float64) bool {
	if d.cfg.Threshold > 0 {
		return mag > d.cfg.Threshold
	}

	if mag > d.peak {
		d.peak = mag
	} else {
		d.peak -= (d.peak - mag) * d.release
	}
	if mag < d.floor {
		d.floor = mag
	} else {
		d.floor += (mag - d.floor) * d.release
	}

	return mag > (d.peak+d.floor)/2
}

// onCadence reports whether the edge just seen is one symbol period from the
// previous edge, within tolerance.
func (d *Demodulator) onCadence() bool {
	diff := d.since - d.cfg.SamplesPerSymbol
	if diff < 0 {
		diff = -diff
	}
	return diff <= d.cfg.MaxPreambleTimingError
}

func (d *Demodulator) timedOut() bool {
	return d.since > d.cfg.SamplesPerSymbol+d.cfg.MaxPreambleTimingError
}

func (d *Demodulator) searching(edge bool) {
	if !edge {
		if d.timedOut() {
			d.transitions = 0
		}
		return
	}

	// Every edge re-anchors the symbol phase. An off-cadence edge starts a
	// new run.
	if !d.onCadence() {
		d.transitions = 0
		return
	}

	d.transitions++
	if d.transitions >= d.cfg.MinPreambleBits {
		d.stage = PreambleLocked
		d.stats.Locks++
	}
}

func (d *Demodulator) locked(edge bool) {
	if edge {
		if !d.onCadence() {
			d.stats.Lost++
			d.search()
			return
		}
		d.transitions++
		return
	}

	if !d.timedOut() {
		return
	}

	// Carrier held on for longer than a symbol isn't a gap.
	if d.level {
		d.stats.Lost++
		d.search()
		return
	}

	// The gap began at the last preamble edge. The first chip is sampled
	// half a symbol after the gap ends.
	sps := d.cfg.SamplesPerSymbol
	d.begin(1, d.cfg.GapSymbols*sps+d.boundary-d.since)
	d.stage = Decoding
}

func (d *Demodulator) begin(occurrence, countdown int) {
	d.occurrence = occurrence
	d.countdown = countdown
	d.nChips = 0
}

func (d *Demodulator) decoding(edge bool) {
	d.countdown--

	// Pull the sampling point toward edges seen near the expected symbol
	// boundary.
	if edge {
		e := d.countdown - d.boundary
		if e <= d.cfg.SamplesPerSymbol>>2 && e >= -d.cfg.SamplesPerSymbol>>2 {
			d.countdown -= e / 2
		}
	}

	if d.countdown > 0 {
		return
	}

	d.stage = Decoding

	var chip byte
	if d.level {
		chip = 1
	}
	d.chips[d.nChips] = chip
	d.nChips++
	d.countdown = d.cfg.SamplesPerSymbol

	if d.nChips == Chips {
		d.validate()
	}
}

func (d *Demodulator) validate() {
	d.stage = Validating

	var packed [Chips >> 3]byte
	manchester.Pack(packed[:], d.chips[:])

	var p packet.Packet
	valid := manchester.Valid(packed[:])
	if valid {
		manchester.Decode(p[:], packed[:])
	} else {
		d.stats.Corrupt++
	}

	first := d.occurrence == 1
	repeat := first && d.cfg.RepeatGapSymbols > 0

	switch d.cfg.Policy {
	case DeliverEach:
		if valid {
			d.deliver(p)
		}
	case DeliverOnFirstValid:
		if valid && !d.delivered {
			d.deliver(p)
		}
	case RequireMatchingRepeat:
		if first {
			repeat = repeat && valid
		} else if valid {
			if p == d.first {
				d.deliver(p)
			} else {
				d.stats.Mismatched++
			}
		}
	}

	if !repeat {
		d.search()
		return
	}

	// The repeat's first chip is one symbol after the end of this
	// occurrence plus the gap.
	d.first = p
	d.begin(2, (d.cfg.RepeatGapSymbols+1)*d.cfg.SamplesPerSymbol)
	d.stage = AwaitingRepeat
}

func (d *Demodulator) deliver(p packet.Packet) {
	d.delivered = true
	d.stats.Delivered++
	d.onPacket(p)
}
