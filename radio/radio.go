// Package radio provides sources of complex baseband samples for the
// receiver.
package radio

import (
	"io"
	"os"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// A Source produces normalised complex samples. ReadSamples blocks until at
// least one sample is available and returns io.EOF when the source is
// exhausted.
type Source interface {
	ReadSamples(dst []complex64) (int, error)
	Close() error
}

// Tuning is the front end configuration common to all hardware sources.
type Tuning struct {
	CenterFreq uint32 `yaml:"center_freq"`
	SampleRate uint32 `yaml:"sample_rate"`
	// Gain in dB. Zero selects automatic gain.
	Gain float64 `yaml:"gain"`
}

func (t Tuning) Fields() log.Fields {
	return log.Fields{
		"center_freq": t.CenterFreq,
		"sample_rate": t.SampleRate,
		"gain":        t.Gain,
	}
}

// Reader decodes raw interleaved samples from a byte stream.
type Reader struct {
	r      io.Reader
	format Format
	buf    []byte
}

func NewReader(r io.Reader, format Format) *Reader {
	return &Reader{r: r, format: format}
}

func (r *Reader) Format() Format {
	return r.format
}

// ReadSamples fills dst. A trailing partial sample at the end of the stream
// is discarded.
func (r *Reader) ReadSamples(dst []complex64) (int, error) {
	size := len(dst) * r.format.SampleSize()
	if cap(r.buf) < size {
		r.buf = make([]byte, size)
	}
	buf := r.buf[:size]

	n, err := io.ReadFull(r.r, buf)
	switch err {
	case nil, io.ErrUnexpectedEOF:
		return r.format.Convert(dst, buf[:n]), nil
	case io.EOF:
		return 0, io.EOF
	}

	return 0, errors.Wrap(err, "reading samples")
}

func (r *Reader) Close() error {
	if c, ok := r.r.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// OpenFile opens a file of raw samples. The name "-" reads standard input.
func OpenFile(name string, format Format) (*Reader, error) {
	if name == "-" {
		return NewReader(os.Stdin, format), nil
	}

	f, err := os.Open(name)
	if err != nil {
		return nil, errors.Wrap(err, "opening sample file")
	}

	log.WithFields(log.Fields{"file": name, "format": format}).Info("reading samples from file")

	return NewReader(f, format), nil
}
