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

package transmit

import (
	"bufio"
	"io"
	"math"
	"strconv"
	"time"

	"github.com/pkg/errors"

	"github.com/fobrob/fobrob/packet"
)

// A SampleSink accepts transmit samples in order.
type SampleSink interface {
	WriteSample(i, q float64) error
}

// A Modulator renders a symbol held at a fixed amplitude for a duration.
type Modulator interface {
	Hold(amplitude float64, d time.Duration, sink SampleSink) error
}

// OOK keys a carrier on and off. The carrier phase is continuous across
// calls to Hold.
type OOK struct {
	SampleRate  float64
	CarrierFreq float64

	count uint64
}

func NewOOK(sampleRate, carrierFreq float64) *OOK {
	return &OOK{SampleRate: sampleRate, CarrierFreq: carrierFreq}
}

// Samples returns the number of whole samples in d.
func (m *OOK) Samples(d time.Duration) int {
	period := time.Duration(float64(time.Second) / m.SampleRate)
	if period <= 0 {
		return 0
	}
	return int(d / period)
}

func (m *OOK) Hold(amplitude float64, d time.Duration, sink SampleSink) error {
	omega := 2 * math.Pi * m.CarrierFreq / m.SampleRate

	for n := m.Samples(d); n > 0; n-- {
		s, c := math.Sincos(omega * float64(m.count))
		m.count++

		if err := sink.WriteSample(amplitude*s, amplitude*c); err != nil {
			return err
		}
	}

	return nil
}

// Encoder renders complete frames.
type Encoder struct {
	Frame     FrameConfig
	Symbol    time.Duration
	Low, High float64
	Modulator Modulator
}

// Encode writes the frame for p to sink. The first sink error aborts the
// encode; samples already written stay written.
func (enc Encoder) Encode(p packet.Packet, sink SampleSink) error {
	if err := enc.Frame.Validate(); err != nil {
		return errors.Wrap(err, "invalid frame")
	}

	for idx, s := range Frame(enc.Frame, p) {
		amplitude := enc.Low
		if s == 1 {
			amplitude = enc.High
		}

		if err := enc.Modulator.Hold(amplitude, enc.Symbol, sink); err != nil {
			return errors.Wrapf(err, "writing symbol %d", idx)
		}
	}

	return nil
}

// CSVSink writes samples as truncated integer "i,q" lines, the format read
// by bladeRF-cli.
type CSVSink struct {
	w   *bufio.Writer
	buf []byte
	n   int64
}

func NewCSVSink(w io.Writer) *CSVSink {
	return &CSVSink{w: bufio.NewWriter(w), buf: make([]byte, 0, 16)}
}

func (s *CSVSink) WriteSample(i, q float64) error {
	s.buf = strconv.AppendInt(s.buf[:0], int64(i), 10)
	s.buf = append(s.buf, ',')
	s.buf = strconv.AppendInt(s.buf, int64(q), 10)
	s.buf = append(s.buf, '\n')

	if _, err := s.w.Write(s.buf); err != nil {
		return errors.Wrap(err, "unable to write sample")
	}
	s.n++

	return nil
}

// Count returns the number of samples written.
func (s *CSVSink) Count() int64 {
	return s.n
}

func (s *CSVSink) Flush() error {
	return errors.Wrap(s.w.Flush(), "flushing samples")
}
