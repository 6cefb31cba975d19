package radio

import (
	"github.com/bemasher/rtltcp"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// RTLTCP reads samples from an rtl_tcp server.
type RTLTCP struct {
	*rtltcp.SDR
	r *Reader
}

// NewRTLTCP connects sdr to the server named by its flags and tunes it. Flags
// registered with sdr.RegisterFlags and set on the command line are applied
// after the tuning.
func NewRTLTCP(sdr *rtltcp.SDR, t Tuning) (*RTLTCP, error) {
	if err := sdr.Connect(nil); err != nil {
		return nil, errors.Wrap(err, "connecting to rtl_tcp")
	}

	src := &RTLTCP{SDR: sdr, r: NewReader(sdr.TCPConn, CU8)}
	if err := src.tune(t); err != nil {
		sdr.Close()
		return nil, err
	}

	if err := sdr.HandleFlags(); err != nil {
		sdr.Close()
		return nil, errors.Wrap(err, "applying rtl_tcp flags")
	}

	log.WithFields(t.Fields()).WithFields(log.Fields{
		"server":     sdr.Flags.ServerAddr,
		"tuner":      sdr.Info.Tuner,
		"gain_count": sdr.Info.GainCount,
	}).Info("connected to rtl_tcp")

	return src, nil
}

func (src *RTLTCP) tune(t Tuning) error {
	if err := src.SetCenterFreq(t.CenterFreq); err != nil {
		return errors.Wrap(err, "setting center frequency")
	}
	if err := src.SetSampleRate(t.SampleRate); err != nil {
		return errors.Wrap(err, "setting sample rate")
	}

	// rtl_tcp's gain mode is inverted: true selects automatic gain.
	if t.Gain <= 0 {
		return errors.Wrap(src.SetGainMode(true), "enabling automatic gain")
	}
	if err := src.SetGainMode(false); err != nil {
		return errors.Wrap(err, "enabling manual gain")
	}
	return errors.Wrap(src.SetGain(uint32(t.Gain*10)), "setting gain")
}

func (src *RTLTCP) ReadSamples(dst []complex64) (int, error) {
	return src.r.ReadSamples(dst)
}
