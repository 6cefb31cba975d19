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

package dsp

import (
	"fmt"
	"math"

	"github.com/mjibson/go-dsp/window"
	"gonum.org/v1/gonum/floats"
)

// LowPass designs a Hamming windowed-sinc FIR with its cutoff at the Nyquist
// rate of the signal after decimation by the given factor. The taps are
// normalised to unity gain at DC. If n is less than 1, 4*decimation+1 taps
// are used. An even n is bumped to the next odd length.
func LowPass(decimation, n int) []float64 {
	if decimation < 1 {
		panic(fmt.Errorf("decimation must be positive: %d", decimation))
	}
	if n < 1 {
		n = 4*decimation + 1
	}
	if n&1 == 0 {
		n++
	}

	taps := window.Hamming(n)

	// Cutoff in cycles per input sample.
	fc := 0.5 / float64(decimation)
	m := (n - 1) / 2
	for idx := range taps {
		k := float64(idx - m)
		if k == 0 {
			taps[idx] *= 2 * fc
			continue
		}
		taps[idx] *= math.Sin(2*math.Pi*fc*k) / (math.Pi * k)
	}

	floats.Scale(1/floats.Sum(taps), taps)

	return taps
}

// SampleFilter is a causal FIR filter with a push/pull interface. Put folds
// a new sample into the history, Get reads the current output without
// modifying state. All memory is allocated by NewSampleFilter.
type SampleFilter struct {
	// Taps in reverse order so that a dot product with the history window
	// (oldest first) yields the convolution.
	taps []float64

	// History is stored twice so the most recent len(taps) samples are
	// always contiguous at hist[head : head+len(taps)].
	hist []float64
	head int
}

func NewSampleFilter(taps []float64) *SampleFilter {
	if len(taps) == 0 {
		panic("dsp: filter requires at least one tap")
	}

	f := &SampleFilter{
		taps: make([]float64, len(taps)),
		hist: make([]float64, len(taps)<<1),
	}
	for idx, t := range taps {
		f.taps[len(taps)-1-idx] = t
	}

	return f
}

// Reset returns the filter to its zero state.
func (f *SampleFilter) Reset() {
	for idx := range f.hist {
		f.hist[idx] = 0
	}
	f.head = 0
}

// Put pushes a sample into the filter history.
func (f *SampleFilter) Put(v float64) {
	n := len(f.taps)
	f.hist[f.head] = v
	f.hist[f.head+n] = v
	f.head++
	if f.head == n {
		f.head = 0
	}
}

// Get returns the filter's output for the samples pushed so far.
func (f *SampleFilter) Get() float64 {
	return floats.Dot(f.taps, f.hist[f.head:f.head+len(f.taps)])
}

// Len returns the number of taps.
func (f *SampleFilter) Len() int {
	return len(f.taps)
}
