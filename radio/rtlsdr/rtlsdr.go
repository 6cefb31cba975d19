// Package rtlsdr reads samples from a locally attached RTL2832U dongle.
package rtlsdr

import (
	"fmt"

	rtl "github.com/jpoirier/gortlsdr"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/fobrob/fobrob/radio"
)

type Source struct {
	dev *rtl.Context

	buf     []byte
	pending []byte
}

// Open opens the dongle at index and tunes it.
func Open(index int, t radio.Tuning) (*Source, error) {
	if count := rtl.GetDeviceCount(); index >= count {
		return nil, fmt.Errorf("rtlsdr: device %d requested, %d present", index, count)
	}

	dev, err := rtl.Open(index)
	if err != nil {
		return nil, errors.Wrapf(err, "opening rtlsdr device %d", index)
	}

	src := &Source{dev: dev, buf: make([]byte, rtl.DefaultBufLength)}
	if err := src.tune(t); err != nil {
		dev.Close()
		return nil, err
	}

	log.WithFields(t.Fields()).WithField("device", rtl.GetDeviceName(index)).Info("opened rtlsdr")

	return src, nil
}

func (src *Source) tune(t radio.Tuning) error {
	if err := src.dev.SetCenterFreq(int(t.CenterFreq)); err != nil {
		return errors.Wrap(err, "setting center frequency")
	}
	if err := src.dev.SetSampleRate(int(t.SampleRate)); err != nil {
		return errors.Wrap(err, "setting sample rate")
	}

	manual := t.Gain > 0
	if err := src.dev.SetTunerGainMode(manual); err != nil {
		return errors.Wrap(err, "setting gain mode")
	}
	if manual {
		// Tenths of a dB.
		if err := src.dev.SetTunerGain(int(t.Gain * 10)); err != nil {
			return errors.Wrap(err, "setting tuner gain")
		}
	}

	return errors.Wrap(src.dev.ResetBuffer(), "resetting buffer")
}

func (src *Source) ReadSamples(dst []complex64) (int, error) {
	if len(src.pending) < radio.CU8.SampleSize() {
		n, err := src.dev.ReadSync(src.buf, len(src.buf))
		if err != nil {
			return 0, errors.Wrap(err, "reading samples")
		}
		src.pending = src.buf[:n]
	}

	n := radio.CU8.Convert(dst, src.pending)
	src.pending = src.pending[n*radio.CU8.SampleSize():]

	return n, nil
}

// Close releases the device. A blocked ReadSync returns with an error.
func (src *Source) Close() error {
	return src.dev.Close()
}
