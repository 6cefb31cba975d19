// Package sink persists delivered codes.
package sink

import (
	"os"
	"path/filepath"

	"github.com/pkg/errors"

	"github.com/fobrob/fobrob/packet"
)

// A Sink receives every delivered message in order.
type Sink interface {
	Write(packet.LogMessage) error
	Close() error
}

// Multi writes each message to every sink. A failing sink does not stop
// the others; the first error is returned.
type Multi []Sink

func (m Multi) Write(msg packet.LogMessage) (err error) {
	for _, s := range m {
		if sErr := s.Write(msg); sErr != nil && err == nil {
			err = sErr
		}
	}
	return err
}

func (m Multi) Close() (err error) {
	for _, s := range m {
		if sErr := s.Close(); sErr != nil && err == nil {
			err = sErr
		}
	}
	return err
}

const (
	LatestFile   = "latestcode.txt"
	ReceivedFile = "receivedcodes.txt"
)

// Files keeps the most recent code in one file and appends every code to
// another, one hex code per line. Files are opened for each write so they
// can be edited or rotated while the receiver runs.
type Files struct {
	Latest   string
	Received string
}

// NewFiles returns a Files sink writing the default file names in dir.
func NewFiles(dir string) Files {
	return Files{
		Latest:   filepath.Join(dir, LatestFile),
		Received: filepath.Join(dir, ReceivedFile),
	}
}

func (f Files) Write(msg packet.LogMessage) error {
	line := []byte(msg.Code + "\n")

	if f.Latest != "" {
		if err := os.WriteFile(f.Latest, line, 0644); err != nil {
			return errors.Wrap(err, "writing latest code")
		}
	}

	if f.Received == "" {
		return nil
	}

	out, err := os.OpenFile(f.Received, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return errors.Wrap(err, "opening received codes")
	}
	if _, err := out.Write(line); err != nil {
		out.Close()
		return errors.Wrap(err, "appending received code")
	}
	return errors.Wrap(out.Close(), "closing received codes")
}

func (f Files) Close() error {
	return nil
}

// ReadLatest returns the code stored in a latest code file.
func ReadLatest(name string) (packet.Packet, error) {
	buf, err := os.ReadFile(name)
	if err != nil {
		return packet.Packet{}, errors.Wrap(err, "reading latest code")
	}

	for len(buf) > 0 && (buf[len(buf)-1] == '\n' || buf[len(buf)-1] == '\r') {
		buf = buf[:len(buf)-1]
	}

	p, err := packet.Dehexify(string(buf))
	if err != nil {
		return p, errors.Wrap(err, name)
	}
	return p, nil
}
