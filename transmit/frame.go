// Package transmit renders fob packets as baseband I/Q samples.
package transmit

import (
	"fmt"
	"strings"

	"github.com/fobrob/fobrob/manchester"
	"github.com/fobrob/fobrob/packet"
)

// FrameConfig describes the symbol layout of a transmission.
type FrameConfig struct {
	// PreamblePairs is the number of off/on symbol pairs in the preamble.
	PreamblePairs int `yaml:"preamble_pairs"`
	// GapSymbols is the silence between preamble and packet.
	GapSymbols int `yaml:"gap_symbols"`
	// RepeatGapSymbols is the silence before each repeat of the packet.
	RepeatGapSymbols int `yaml:"repeat_gap_symbols"`
	// Occurrences is the number of times the packet is sent.
	Occurrences int `yaml:"occurrences"`
}

func DefaultFrameConfig() FrameConfig {
	return FrameConfig{
		PreamblePairs:    128,
		GapSymbols:       4,
		RepeatGapSymbols: 8,
		Occurrences:      2,
	}
}

func (cfg FrameConfig) Validate() error {
	if cfg.PreamblePairs < 1 {
		return fmt.Errorf("preamble pairs must be positive: %d", cfg.PreamblePairs)
	}
	if cfg.GapSymbols < 0 || cfg.RepeatGapSymbols < 0 {
		return fmt.Errorf("gaps must not be negative: %d, %d", cfg.GapSymbols, cfg.RepeatGapSymbols)
	}
	if cfg.Occurrences < 1 {
		return fmt.Errorf("occurrences must be positive: %d", cfg.Occurrences)
	}
	return nil
}

// Len returns the number of symbols in a frame.
func (cfg FrameConfig) Len() int {
	return cfg.PreamblePairs<<1 + cfg.GapSymbols +
		cfg.Occurrences*packet.Bits<<1 + (cfg.Occurrences-1)*cfg.RepeatGapSymbols
}

// Chips returns the Manchester chips of p, one per byte.
func Chips(p packet.Packet) []byte {
	return manchester.Unpack(manchester.EncodeToBytes(p[:]))
}

// ChipString formats the chips of p in groups of eight.
func ChipString(p packet.Packet) string {
	var b strings.Builder
	for idx, c := range Chips(p) {
		if idx > 0 && idx&7 == 0 {
			b.WriteByte(' ')
		}
		b.WriteByte('0' + c)
	}
	return b.String()
}

// Frame returns the symbols of a complete transmission of p, 1 for carrier
// on and 0 for off.
func Frame(cfg FrameConfig, p packet.Packet) []byte {
	symbols := make([]byte, 0, cfg.Len())

	for idx := 0; idx < cfg.PreamblePairs; idx++ {
		symbols = append(symbols, 0, 1)
	}
	symbols = appendGap(symbols, cfg.GapSymbols)

	chips := Chips(p)
	for occurrence := 0; occurrence < cfg.Occurrences; occurrence++ {
		if occurrence > 0 {
			symbols = appendGap(symbols, cfg.RepeatGapSymbols)
		}
		symbols = append(symbols, chips...)
	}

	return symbols
}

func appendGap(symbols []byte, n int) []byte {
	for idx := 0; idx < n; idx++ {
		symbols = append(symbols, 0)
	}
	return symbols
}
