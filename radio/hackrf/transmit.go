package hackrf

import (
	"math"
	"sync"

	"github.com/pkg/errors"
	"github.com/samuel/go-hackrf/hackrf"
	log "github.com/sirupsen/logrus"
)

const blockSize = 1 << 18

// Transmitter plays samples written to it through the HackRF. It implements
// transmit.SampleSink.
type Transmitter struct {
	dev *hackrf.Device

	// FullScale is the sample amplitude mapped to the largest int8 value.
	FullScale float64

	block   []byte
	blocks  chan []byte
	pending []byte

	started bool
	failed  error
	closed  bool
	drained chan struct{}
	drain   sync.Once
}

// OpenTransmitter opens the first HackRF for transmitting at freq.
func OpenTransmitter(freq uint64, sampleRate int, fullScale float64, opts Options) (*Transmitter, error) {
	dev, err := open(freq, sampleRate, opts.Amp)
	if err != nil {
		return nil, err
	}

	if err := dev.SetTXVGAGain(opts.TXVGAGain); err != nil {
		release(dev)
		return nil, errors.Wrap(err, "setting tx vga gain")
	}

	log.WithFields(log.Fields{
		"freq":        freq,
		"sample_rate": sampleRate,
		"tx_vga_gain": opts.TXVGAGain,
		"amp":         opts.Amp,
	}).Info("transmitting with hackrf")

	return &Transmitter{
		dev:       dev,
		FullScale: fullScale,
		block:     make([]byte, 0, blockSize),
		blocks:    make(chan []byte, 8),
		drained:   make(chan struct{}),
	}, nil
}

func quantize(v float64) byte {
	v = math.Round(v * 127)
	if v > 127 {
		v = 127
	} else if v < -127 {
		v = -127
	}
	return byte(int8(v))
}

func (t *Transmitter) WriteSample(i, q float64) error {
	if t.closed {
		return errors.New("hackrf: write after close")
	}
	if t.failed != nil {
		return t.failed
	}

	t.block = append(t.block, quantize(i/t.FullScale), quantize(q/t.FullScale))
	if len(t.block) < cap(t.block) {
		return nil
	}

	return t.send()
}

func (t *Transmitter) send() error {
	t.blocks <- t.block
	t.block = make([]byte, 0, blockSize)

	if t.started {
		return nil
	}

	if err := t.dev.StartTX(t.callback); err != nil {
		t.failed = errors.Wrap(err, "starting tx")
		return t.failed
	}
	t.started = true

	return nil
}

// callback fills buf from queued blocks, padding with silence once the
// queue is closed and empty.
func (t *Transmitter) callback(buf []byte) error {
	for len(buf) > 0 {
		if len(t.pending) == 0 {
			block, ok := <-t.blocks
			if !ok {
				for idx := range buf {
					buf[idx] = 0
				}
				t.drain.Do(func() { close(t.drained) })
				return nil
			}
			t.pending = block
		}

		n := copy(buf, t.pending)
		buf = buf[n:]
		t.pending = t.pending[n:]
	}

	return nil
}

// Close transmits any buffered samples, waits for the queue to drain and
// releases the device.
func (t *Transmitter) Close() error {
	if t.closed {
		return nil
	}
	t.closed = true

	var err error
	if t.failed == nil && (len(t.block) > 0 || !t.started) {
		err = t.send()
	}
	close(t.blocks)

	if t.started {
		<-t.drained
		if stopErr := t.dev.StopTX(); err == nil {
			err = errors.Wrap(stopErr, "stopping tx")
		}
	}

	if closeErr := release(t.dev); err == nil {
		err = closeErr
	}
	return err
}
