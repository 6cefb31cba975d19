package sink

import (
	"encoding/json"
	"encoding/xml"
	"fmt"
	"io"
	"strings"

	"github.com/pkg/errors"

	"github.com/fobrob/fobrob/csv"
	"github.com/fobrob/fobrob/packet"
)

// JSON, XML and CSV all implement this interface so we can simplify log
// output formatting.
type Encoder interface {
	Encode(interface{}) error
}

// Formats lists the names accepted by NewStream.
var Formats = []string{"plain", "csv", "json", "xml"}

type PlainEncoder struct {
	w io.Writer
}

func (pe PlainEncoder) Encode(msg interface{}) (err error) {
	_, err = fmt.Fprintln(pe.w, msg)
	return
}

// Stream writes each message to w in one of Formats.
type Stream struct {
	enc Encoder
}

func NewStream(w io.Writer, format string) (*Stream, error) {
	s := &Stream{}

	switch strings.ToLower(format) {
	case "plain":
		s.enc = PlainEncoder{w}
	case "csv":
		s.enc = csv.NewEncoder(w)
	case "json":
		s.enc = json.NewEncoder(w)
	case "xml":
		s.enc = xml.NewEncoder(w)
	default:
		return nil, fmt.Errorf("invalid output format: %q", format)
	}

	return s, nil
}

func (s *Stream) Write(msg packet.LogMessage) error {
	return errors.Wrap(s.enc.Encode(msg), "encoding message")
}

func (s *Stream) Close() error {
	return nil
}
