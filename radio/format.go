package radio

import (
	"encoding/binary"
	"fmt"
	"strings"
)

// Format is the wire layout of interleaved I/Q samples.
type Format int

const (
	// CU8 is unsigned 8-bit I/Q as sent by rtl_tcp and librtlsdr.
	CU8 Format = iota
	// CS8 is signed 8-bit I/Q as produced by the HackRF.
	CS8
	// CS16 is little-endian signed 12-bit I/Q in 16-bit words (SC16Q11).
	CS16
)

var formatNames = [...]string{"cu8", "cs8", "cs16"}

func (f Format) String() string {
	if f >= 0 && int(f) < len(formatNames) {
		return formatNames[f]
	}
	return fmt.Sprintf("Format(%d)", int(f))
}

func ParseFormat(s string) (Format, error) {
	for idx, name := range formatNames {
		if strings.EqualFold(s, name) {
			return Format(idx), nil
		}
	}
	return 0, fmt.Errorf("invalid sample format: %q", s)
}

func (f Format) MarshalText() ([]byte, error) {
	return []byte(f.String()), nil
}

func (f *Format) UnmarshalText(text []byte) (err error) {
	*f, err = ParseFormat(string(text))
	return err
}

// SampleSize is the number of bytes in one complex sample.
func (f Format) SampleSize() int {
	if f == CS16 {
		return 4
	}
	return 2
}

// Lookup tables normalising 8-bit components to [-1, 1].
var cu8LUT, cs8LUT [0x100]float32

func init() {
	for idx := range cu8LUT {
		cu8LUT[idx] = (float32(idx) - 127.5) / 127.5
		cs8LUT[idx] = float32(int8(idx)) / 128
	}
}

// Convert decodes as many whole samples from src as fit in dst and returns
// the number converted. Components are scaled so full scale is 1.
func (f Format) Convert(dst []complex64, src []byte) int {
	n := len(src) / f.SampleSize()
	if n > len(dst) {
		n = len(dst)
	}

	switch f {
	case CU8:
		for idx := 0; idx < n; idx++ {
			dst[idx] = complex(cu8LUT[src[idx<<1]], cu8LUT[src[idx<<1+1]])
		}
	case CS8:
		for idx := 0; idx < n; idx++ {
			dst[idx] = complex(cs8LUT[src[idx<<1]], cs8LUT[src[idx<<1+1]])
		}
	case CS16:
		for idx := 0; idx < n; idx++ {
			i := int16(binary.LittleEndian.Uint16(src[idx<<2:]))
			q := int16(binary.LittleEndian.Uint16(src[idx<<2+2:]))
			dst[idx] = complex(float32(i)/2048, float32(q)/2048)
		}
	default:
		panic(fmt.Errorf("radio: convert with invalid format %d", f))
	}

	return n
}
