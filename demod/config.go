package demod

import (
	"fmt"
	"strings"

	"github.com/fobrob/fobrob/packet"
)

// Chips is the number of chips in one occurrence of a packet.
const Chips = packet.Bits << 1

// Policy decides which occurrences of a twice transmitted packet are
// delivered to the handler.
type Policy int

const (
	// DeliverOnFirstValid delivers the first occurrence which passes
	// validation and suppresses the repeat once something was delivered.
	DeliverOnFirstValid Policy = iota
	// DeliverEach delivers every occurrence which passes validation.
	DeliverEach
	// RequireMatchingRepeat delivers only when both occurrences pass
	// validation and are identical.
	RequireMatchingRepeat
)

var policyNames = map[Policy]string{
	DeliverOnFirstValid:   "first",
	DeliverEach:           "each",
	RequireMatchingRepeat: "match",
}

func (p Policy) String() string {
	if name, ok := policyNames[p]; ok {
		return name
	}
	return fmt.Sprintf("Policy(%d)", int(p))
}

// ParsePolicy accepts the names produced by Policy.String.
func ParsePolicy(s string) (Policy, error) {
	for p, name := range policyNames {
		if strings.EqualFold(s, name) {
			return p, nil
		}
	}
	return 0, fmt.Errorf("invalid repeat policy: %q", s)
}

func (p Policy) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

func (p *Policy) UnmarshalText(text []byte) (err error) {
	*p, err = ParsePolicy(string(text))
	return err
}

// Config specifies symbol timing and framing of the received signal. All
// lengths are in samples of the decimated stream.
type Config struct {
	SamplesPerSymbol       int `yaml:"samples_per_symbol"`
	MinPreambleBits        int `yaml:"min_preamble_bits"`
	MaxPreambleTimingError int `yaml:"max_preamble_timing_error"`

	// Threshold is a fixed decision level for magnitude samples. If zero
	// the level is tracked from the signal envelope.
	Threshold float64 `yaml:"threshold"`

	// GapSymbols is the silence between the end of the preamble and the
	// first chip of the packet.
	GapSymbols int `yaml:"gap_symbols"`

	// RepeatGapSymbols is the silence between the two occurrences of the
	// packet. Zero disables decoding of the repeat.
	RepeatGapSymbols int `yaml:"repeat_gap_symbols"`

	Policy Policy `yaml:"policy"`
}

func DefaultConfig() Config {
	return Config{
		SamplesPerSymbol:       200,
		MinPreambleBits:        42,
		MaxPreambleTimingError: 40,
		GapSymbols:             4,
		RepeatGapSymbols:       8,
		Policy:                 DeliverOnFirstValid,
	}
}

func (cfg Config) Validate() error {
	if cfg.SamplesPerSymbol < 4 {
		return fmt.Errorf("samples per symbol must be at least 4: %d", cfg.SamplesPerSymbol)
	}
	if cfg.MinPreambleBits < 1 {
		return fmt.Errorf("minimum preamble bits must be positive: %d", cfg.MinPreambleBits)
	}
	if cfg.MaxPreambleTimingError < 0 || cfg.MaxPreambleTimingError >= cfg.SamplesPerSymbol>>1 {
		return fmt.Errorf("preamble timing error must be in [0, %d): %d", cfg.SamplesPerSymbol>>1, cfg.MaxPreambleTimingError)
	}
	if cfg.Threshold < 0 {
		return fmt.Errorf("threshold must not be negative: %f", cfg.Threshold)
	}
	if cfg.GapSymbols < 2 {
		return fmt.Errorf("gap must be at least 2 symbols: %d", cfg.GapSymbols)
	}
	if cfg.RepeatGapSymbols < 0 {
		return fmt.Errorf("repeat gap must not be negative: %d", cfg.RepeatGapSymbols)
	}
	if _, ok := policyNames[cfg.Policy]; !ok {
		return fmt.Errorf("invalid repeat policy: %d", cfg.Policy)
	}
	if cfg.Policy == RequireMatchingRepeat && cfg.RepeatGapSymbols == 0 {
		return fmt.Errorf("policy %s requires a repeat gap", cfg.Policy)
	}
	return nil
}
