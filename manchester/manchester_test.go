package manchester

import (
	"bytes"
	"crypto/rand"
	"testing"
)

const (
	Trials = 512
)

func TestLUT(t *testing.T) {
	recv := EncodeToBytes([]byte{0x00})
	expt := []byte{0x55, 0x55}
	if !bytes.Equal(recv, expt) {
		t.Fatalf("Expected %02X got %02X\n", expt, recv)
	}

	recv = EncodeToBytes([]byte{0xF9, 0x53})
	expt = []byte{0xAA, 0x96, 0x66, 0x5A}
	if !bytes.Equal(recv, expt) {
		t.Fatalf("Expected %02X got %02X\n", expt, recv)
	}
}

func TestRoundTrip(t *testing.T) {
	for trial := 0; trial < Trials; trial++ {
		buf := make([]byte, 10)
		rand.Read(buf)

		chips := EncodeToBytes(buf)
		if !Valid(chips) {
			t.Fatalf("encoded chips not valid: %02X\n", chips)
		}

		decoded := make([]byte, len(buf))
		Decode(decoded, chips)
		if !bytes.Equal(decoded, buf) {
			t.Fatalf("Expected %02X got %02X\n", buf, decoded)
		}
	}
}

func TestViolation(t *testing.T) {
	chips := EncodeToBytes([]byte{0x00, 0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08, 0x09})

	for chip := 0; chip < len(chips)<<3; chip++ {
		corrupt := make([]byte, len(chips))
		copy(corrupt, chips)
		corrupt[chip>>3] ^= 0x80 >> uint(chip&7)

		if got := Violation(corrupt); got != chip>>1 {
			t.Fatalf("flipped chip %d: expected violation at pair %d, got %d\n", chip, chip>>1, got)
		}
		if Valid(corrupt) {
			t.Fatalf("flipped chip %d: expected invalid chips\n", chip)
		}
	}
}

func TestPackUnpack(t *testing.T) {
	src := []byte{0xA5, 0x3C}
	chips := Unpack(src)
	if len(chips) != 16 {
		t.Fatalf("expected 16 chips, got %d\n", len(chips))
	}

	packed := make([]byte, 2)
	Pack(packed, chips)
	if !bytes.Equal(packed, src) {
		t.Fatalf("Expected %02X got %02X\n", src, packed)
	}
}

func TestSizeMismatchPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic on mismatched buffers")
		}
	}()

	Encode(make([]byte, 3), make([]byte, 2))
}
