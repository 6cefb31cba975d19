// FOBROB - A receiver and transmitter for 433MHz vehicle key fob remotes.
// Copyright (C) 2017 The fobrob Authors
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <http://www.gnu.org/licenses/>.

// Package packet interprets the 10 byte command packets sent by key fobs.
package packet

import (
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"sync"

	"golang.org/x/xerrors"
)

const (
	// Size is the length of a packet in bytes.
	Size = 10
	// HexSize is the length of a packet's hexadecimal representation.
	HexSize = Size << 1
	// Bits is the number of data bits in a packet.
	Bits = Size << 3

	// Unknown is the name of any command missing from a layout's table.
	Unknown = "Unknown"
)

var (
	ErrInvalidHexDigit = xerrors.New("invalid hex digit")
	ErrLength          = xerrors.New("invalid length")
)

// InvalidHexDigitError reports the position and value of a character which
// is not a hexadecimal digit.
type InvalidHexDigitError struct {
	Offset int
	Char   byte
}

func (e InvalidHexDigitError) Error() string {
	return fmt.Sprintf("invalid hex digit %q at offset %d", e.Char, e.Offset)
}

func (e InvalidHexDigitError) Is(target error) bool {
	return target == ErrInvalidHexDigit
}

// Packet is a single decoded transmission.
type Packet [Size]byte

// FromBytes copies b into a packet. Fails with ErrLength unless b is exactly
// Size bytes.
func FromBytes(b []byte) (p Packet, err error) {
	if len(b) != Size {
		return p, xerrors.Errorf("packet must be %d bytes, got %d: %w", Size, len(b), ErrLength)
	}
	copy(p[:], b)
	return p, nil
}

// Hexify returns the lowercase hexadecimal representation of the packet.
func Hexify(p Packet) string {
	return hex.EncodeToString(p[:])
}

// Dehexify parses a 20 character hexadecimal string, either case.
func Dehexify(s string) (p Packet, err error) {
	if len(s) != HexSize {
		return p, xerrors.Errorf("hex code must be %d digits, got %d: %w", HexSize, len(s), ErrLength)
	}

	if _, err := hex.Decode(p[:], []byte(s)); err != nil {
		var invalid hex.InvalidByteError
		if xerrors.As(err, &invalid) {
			return p, InvalidHexDigitError{strings.IndexByte(s, byte(invalid)), byte(invalid)}
		}
		return p, xerrors.Errorf("decoding %q: %w", s, err)
	}

	return p, nil
}

func (p Packet) String() string {
	return Hexify(p)
}

// Field is a big-endian bit field within a packet. Bit 0 is the most
// significant bit of the first byte.
type Field struct {
	Offset int `yaml:"offset"`
	Bits   int `yaml:"bits"`
}

// Valid reports whether the field lies within a packet and fits in a uint32.
func (f Field) Valid() bool {
	return f.Offset >= 0 && f.Bits > 0 && f.Bits <= 32 && f.Offset+f.Bits <= Bits
}

// Extract reads the field from p.
func (f Field) Extract(p Packet) (v uint32) {
	for bit := f.Offset; bit < f.Offset+f.Bits; bit++ {
		v = v<<1 | uint32(p[bit>>3]>>uint(7-bit&7))&1
	}
	return v
}

// Insert writes v into the field of p.
func (f Field) Insert(p *Packet, v uint32) {
	for idx := f.Bits - 1; idx >= 0; idx-- {
		bit := f.Offset + idx
		mask := byte(0x80) >> uint(bit&7)
		if v&1 == 1 {
			p[bit>>3] |= mask
		} else {
			p[bit>>3] &^= mask
		}
		v >>= 1
	}
}

// Layout locates the command and rolling code within a packet and names
// command values.
type Layout struct {
	Name        string            `yaml:"name"`
	Command     Field             `yaml:"command"`
	RollingCode Field             `yaml:"rolling_code"`
	Commands    map[uint32]string `yaml:"commands"`
}

func (l Layout) Validate() error {
	if !l.Command.Valid() {
		return xerrors.Errorf("layout %q: command field out of range: %+v", l.Name, l.Command)
	}
	if !l.RollingCode.Valid() {
		return xerrors.Errorf("layout %q: rolling code field out of range: %+v", l.Name, l.RollingCode)
	}
	return nil
}

// GetCommand returns the command field of p.
func (l Layout) GetCommand(p Packet) uint32 {
	return l.Command.Extract(p)
}

// GetCode returns the rolling code field of p.
func (l Layout) GetCode(p Packet) uint32 {
	return l.RollingCode.Extract(p)
}

// CommandName returns the display name of a command value, Unknown if the
// value isn't in the table.
func (l Layout) CommandName(cmd uint32) string {
	if name, ok := l.Commands[cmd]; ok {
		return name
	}
	return Unknown
}

var (
	layoutMutex sync.Mutex
	layouts     = make(map[string]Layout)
)

// Subaru is the layout used by Subaru key fobs.
var Subaru = Layout{
	Name:        "subaru",
	Command:     Field{Offset: 32, Bits: 8},
	RollingCode: Field{Offset: 40, Bits: 24},
	Commands: map[uint32]string{
		1: "Lock",
		2: "Unlock",
		4: "Trunk",
		8: "Panic",
	},
}

func init() {
	Register(Subaru)
}

// Register makes a layout available by name. Panics if the layout is
// invalid or the name is taken.
func Register(l Layout) {
	layoutMutex.Lock()
	defer layoutMutex.Unlock()

	if err := l.Validate(); err != nil {
		panic(err)
	}
	if _, dup := layouts[l.Name]; dup {
		panic(fmt.Sprintf("packet: layout already registered (%s)", l.Name))
	}
	layouts[l.Name] = l
}

// Lookup returns the registered layout with the given name.
func Lookup(name string) (Layout, error) {
	layoutMutex.Lock()
	defer layoutMutex.Unlock()

	if l, exists := layouts[name]; exists {
		return l, nil
	}
	return Layout{}, xerrors.Errorf("invalid layout: %q", name)
}

// Layouts returns the names of all registered layouts.
func Layouts() (names []string) {
	layoutMutex.Lock()
	defer layoutMutex.Unlock()

	for name := range layouts {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
