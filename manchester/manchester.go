// Package manchester implements the line code used by the fob protocol. Each
// data bit is sent as a pair of chips: a one is sent as chips 1,0 and a zero
// as chips 0,1. Chips are packed eight per byte, most significant first.
package manchester

import "fmt"

// LUT maps a nibble to its eight chip encoding.
type LUT [16]byte

func NewLUT() LUT {
	return LUT{
		85, 86, 89, 90, 101, 102, 105, 106, 149, 150, 153, 154, 165, 166, 169, 170,
	}
}

var lut = NewLUT()

// EncodedLen returns the number of bytes needed to hold the chips of n bytes.
func EncodedLen(n int) int {
	return n << 1
}

// Encode writes the chips for src into dst. Panics if dst is not exactly
// EncodedLen(len(src)) bytes long.
func Encode(dst, src []byte) {
	if len(dst) != EncodedLen(len(src)) {
		panic(fmt.Errorf("manchester: encode buffer must be %d bytes: %d", EncodedLen(len(src)), len(dst)))
	}

	for idx, b := range src {
		dst[idx<<1] = lut[b>>4]
		dst[idx<<1+1] = lut[b&0x0F]
	}
}

// EncodeToBytes returns the chips for src in a new slice.
func EncodeToBytes(src []byte) []byte {
	dst := make([]byte, EncodedLen(len(src)))
	Encode(dst, src)
	return dst
}

// Decode recovers len(dst) bytes from the 2*len(dst)*8 chips in src by taking
// the first chip of every pair. Pairs which are not valid transitions are
// decoded the same way; use Valid to check chips beforehand.
func Decode(dst, src []byte) {
	if len(src) != EncodedLen(len(dst)) {
		panic(fmt.Errorf("manchester: decode buffer must be %d bytes: %d", EncodedLen(len(dst)), len(src)))
	}

	for idx := range dst {
		hi, lo := src[idx<<1], src[idx<<1+1]
		dst[idx] = first(hi)<<4 | first(lo)
	}
}

// first extracts the first chip of each of the four pairs in b.
func first(b byte) (n byte) {
	for shift := 7; shift > 0; shift -= 2 {
		n = n<<1 | (b>>uint(shift))&1
	}
	return n
}

// Valid reports whether every chip pair in src is a 01 or 10 transition.
func Valid(src []byte) bool {
	return Violation(src) < 0
}

// Violation returns the index of the first invalid chip pair in src, or -1.
func Violation(src []byte) int {
	for idx, b := range src {
		// XOR of the two chips in each pair must be 1.
		if (b^(b>>1))&0x55 != 0x55 {
			for pair := 0; pair < 4; pair++ {
				shift := uint(6 - pair<<1)
				if c := (b >> shift) & 0x03; c == 0x00 || c == 0x03 {
					return idx<<2 + pair
				}
			}
		}
	}
	return -1
}

// Pack packs a slice of chips, one per byte with values 0 or 1, into dst.
func Pack(dst, chips []byte) {
	if len(dst) != (len(chips)+7)>>3 {
		panic(fmt.Errorf("manchester: pack buffer must be %d bytes: %d", (len(chips)+7)>>3, len(dst)))
	}

	for idx := range dst {
		dst[idx] = 0
	}
	for idx, c := range chips {
		dst[idx>>3] |= (c & 1) << uint(7-idx&7)
	}
}

// Unpack expands packed chips into a slice with one chip per byte.
func Unpack(src []byte) []byte {
	chips := make([]byte, len(src)<<3)

	for idx, b := range src {
		offset := idx << 3
		for bit := 7; bit >= 0; bit-- {
			chips[offset+(7-bit)] = (b >> uint8(bit)) & 0x01
		}
	}

	return chips
}
