// Package hackrf receives and transmits through a HackRF One.
package hackrf

import (
	"sync"

	"github.com/pkg/errors"
	"github.com/samuel/go-hackrf/hackrf"
	log "github.com/sirupsen/logrus"

	"github.com/fobrob/fobrob/radio"
)

// Options are the HackRF specific gain stages.
type Options struct {
	// LNAGain is the RX IF gain, 0 to 40 dB in 8 dB steps.
	LNAGain int `yaml:"lna_gain"`
	// VGAGain is the RX baseband gain, 0 to 62 dB in 2 dB steps.
	VGAGain int `yaml:"vga_gain"`
	// TXVGAGain is the TX IF gain, 0 to 47 dB.
	TXVGAGain int `yaml:"tx_vga_gain"`
	// Amp enables the RF amplifier on both paths.
	Amp bool `yaml:"amp"`
}

func DefaultOptions() Options {
	return Options{LNAGain: 32, VGAGain: 20, TXVGAGain: 30}
}

// Device reference counting for hackrf.Init and hackrf.Exit.
var (
	libMu   sync.Mutex
	libRefs int
)

func open(freq uint64, sampleRate int, amp bool) (*hackrf.Device, error) {
	libMu.Lock()
	defer libMu.Unlock()

	if libRefs == 0 {
		if err := hackrf.Init(); err != nil {
			return nil, errors.Wrap(err, "initialising libhackrf")
		}
	}

	dev, err := hackrf.Open()
	if err != nil {
		if libRefs == 0 {
			hackrf.Exit()
		}
		return nil, errors.Wrap(err, "opening hackrf")
	}
	libRefs++

	configure := func() error {
		if err := dev.SetFreq(freq); err != nil {
			return errors.Wrap(err, "setting frequency")
		}
		if err := dev.SetSampleRateManual(sampleRate, 1); err != nil {
			return errors.Wrap(err, "setting sample rate")
		}
		if err := dev.SetBasebandFilterBandwidth(sampleRate); err != nil {
			return errors.Wrap(err, "setting baseband filter")
		}
		return errors.Wrap(dev.SetAmpEnable(amp), "setting amplifier")
	}
	if err := configure(); err != nil {
		release(dev)
		return nil, err
	}

	return dev, nil
}

func release(dev *hackrf.Device) error {
	libMu.Lock()
	defer libMu.Unlock()

	err := dev.Close()
	libRefs--
	if libRefs == 0 {
		if exitErr := hackrf.Exit(); err == nil {
			err = exitErr
		}
	}
	return errors.Wrap(err, "closing hackrf")
}

// Receiver streams samples from the HackRF.
type Receiver struct {
	dev *hackrf.Device

	blocks  chan []byte
	done    chan struct{}
	stop    sync.Once
	pending []byte
}

// OpenReceiver opens the first HackRF and starts receiving.
func OpenReceiver(t radio.Tuning, opts Options) (*Receiver, error) {
	dev, err := open(uint64(t.CenterFreq), int(t.SampleRate), opts.Amp)
	if err != nil {
		return nil, err
	}

	r := &Receiver{
		dev:    dev,
		blocks: make(chan []byte, 16),
		done:   make(chan struct{}),
	}

	start := func() error {
		if err := dev.SetLNAGain(opts.LNAGain); err != nil {
			return errors.Wrap(err, "setting lna gain")
		}
		if err := dev.SetVGAGain(opts.VGAGain); err != nil {
			return errors.Wrap(err, "setting vga gain")
		}
		return errors.Wrap(dev.StartRX(r.callback), "starting rx")
	}
	if err := start(); err != nil {
		release(dev)
		return nil, err
	}

	log.WithFields(t.Fields()).WithFields(log.Fields{
		"lna_gain": opts.LNAGain,
		"vga_gain": opts.VGAGain,
		"amp":      opts.Amp,
	}).Info("receiving from hackrf")

	return r, nil
}

func (r *Receiver) callback(buf []byte) error {
	block := make([]byte, len(buf))
	copy(block, buf)

	select {
	case r.blocks <- block:
		return nil
	case <-r.done:
		return errStopped
	}
}

var errStopped = errors.New("hackrf: stopped")

func (r *Receiver) ReadSamples(dst []complex64) (int, error) {
	if len(r.pending) < radio.CS8.SampleSize() {
		select {
		case r.pending = <-r.blocks:
		case <-r.done:
			return 0, errStopped
		}
	}

	n := radio.CS8.Convert(dst, r.pending)
	r.pending = r.pending[n*radio.CS8.SampleSize():]

	return n, nil
}

func (r *Receiver) Close() (err error) {
	r.stop.Do(func() {
		close(r.done)
		err = r.dev.StopRX()
		if closeErr := release(r.dev); err == nil {
			err = closeErr
		}
	})
	return err
}
