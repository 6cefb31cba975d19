package csv

import (
	"bytes"
	"encoding/csv"
	"runtime"
	"testing"

	"golang.org/x/xerrors"
)

func TestRecorderNil(t *testing.T) {
	buf := &bytes.Buffer{}
	enc := Encoder{w: csv.NewWriter(buf)}

	if err := enc.Encode(nil); err == nil {
		t.Fatalf("%+v\n", err)
	}
}

type Msg struct{}

func (m Msg) Record() []string {
	return []string{"a", "b"}
}

func TestRecorder(t *testing.T) {
	buf := &bytes.Buffer{}
	enc := Encoder{w: csv.NewWriter(buf)}

	if err := enc.Encode(Msg{}); err != nil {
		t.Fatalf("%+v\n", err)
	}
	if buf.String() != "a,b\n" {
		t.Fatalf("unexpected output: %q\n", buf.String())
	}
}

type HeaderMsg struct {
	Msg
}

func (m HeaderMsg) Header() []string {
	return []string{"x", "y"}
}

func TestHeaderOnce(t *testing.T) {
	buf := &bytes.Buffer{}
	enc := NewEncoder(buf)

	for i := 0; i < 2; i++ {
		if err := enc.Encode(HeaderMsg{}); err != nil {
			t.Fatalf("%+v\n", err)
		}
	}

	if buf.String() != "x,y\na,b\na,b\n" {
		t.Fatalf("unexpected output: %q\n", buf.String())
	}
}

type NonRecorder struct{}

func TestNonRecorder(t *testing.T) {
	buf := &bytes.Buffer{}
	enc := Encoder{w: csv.NewWriter(buf)}

	err := enc.Encode(NonRecorder{})

	var runtimeErr runtime.Error
	if !xerrors.As(err, &runtimeErr) {
		t.Fatalf("%+v\n", runtimeErr)
	}
}
