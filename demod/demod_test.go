package demod_test

import (
	"math/rand"
	"testing"
	"time"

	"github.com/fobrob/fobrob/demod"
	"github.com/fobrob/fobrob/dsp"
	"github.com/fobrob/fobrob/packet"
	"github.com/fobrob/fobrob/transmit"
)

var code = packet.Packet{0x00, 0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08, 0x09}

// signal builds a magnitude stream out of runs of constant level.
type signal []float64

func (s signal) hold(level float64, n int) signal {
	for idx := 0; idx < n; idx++ {
		s = append(s, level)
	}
	return s
}

// preamble appends n alternating symbols starting with carrier on. Symbol
// jitter[k] is added to the length of symbol k.
func (s signal) preamble(n, sps int, jitter map[int]int) signal {
	for k := 0; k < n; k++ {
		s = s.hold(float64(1-k&1), sps+jitter[k])
	}
	return s
}

func (s signal) chips(chips []byte, sps int) signal {
	for _, c := range chips {
		s = s.hold(float64(c), sps)
	}
	return s
}

// frame is a single occurrence of p after a preamble with the given number of
// on-cadence transitions.
func frame(cfg demod.Config, transitions int, chips []byte) signal {
	sps := cfg.SamplesPerSymbol
	return signal{}.
		hold(0, 5*sps).
		preamble(transitions, sps, nil).
		hold(0, cfg.GapSymbols*sps).
		chips(chips, sps).
		hold(0, (cfg.RepeatGapSymbols+demod.Chips+2)*sps)
}

type recorder struct {
	packets []packet.Packet
}

func (r *recorder) handle(p packet.Packet) {
	r.packets = append(r.packets, p)
}

func newDemod(t *testing.T, cfg demod.Config) (*demod.Demodulator, *recorder) {
	t.Helper()

	r := &recorder{}
	d, err := demod.New(cfg, r.handle)
	if err != nil {
		t.Fatal(err)
	}
	return d, r
}

func TestPreambleAcceptance(t *testing.T) {
	cfg := demod.DefaultConfig()
	d, r := newDemod(t, cfg)

	d.Execute(frame(cfg, cfg.MinPreambleBits+1, transmit.Chips(code)))

	if len(r.packets) != 1 {
		t.Fatalf("expected 1 packet, got %d\n", len(r.packets))
	}
	if r.packets[0] != code {
		t.Fatalf("Expected %s got %s\n", code, r.packets[0])
	}
	if d.Stage() != demod.Searching {
		t.Fatalf("expected to return to Searching, in %s\n", d.Stage())
	}
	if s := d.Stats(); s.Locks != 1 || s.Delivered != 1 {
		t.Fatalf("unexpected stats: %+v\n", s)
	}
}

func TestPreambleRejection(t *testing.T) {
	cfg := demod.DefaultConfig()

	for _, n := range []int{0, 1, 10, cfg.MinPreambleBits - 1} {
		d, r := newDemod(t, cfg)
		d.Execute(frame(cfg, n, transmit.Chips(code)))

		if len(r.packets) != 0 {
			t.Fatalf("%d transitions: expected no packets, got %d\n", n, len(r.packets))
		}
		if d.Stats().Locks != 0 {
			t.Fatalf("%d transitions: unexpected lock\n", n)
		}
	}
}

func TestStages(t *testing.T) {
	cfg := demod.DefaultConfig()
	sps := cfg.SamplesPerSymbol
	d, _ := newDemod(t, cfg)

	if d.Stage() != demod.Searching {
		t.Fatalf("expected Searching, in %s\n", d.Stage())
	}

	d.Execute(signal{}.hold(0, sps).preamble(cfg.MinPreambleBits+1, sps, nil))
	if d.Stage() != demod.PreambleLocked {
		t.Fatalf("expected PreambleLocked, in %s\n", d.Stage())
	}

	// The falling edge ends the preamble, the gap is recognised once it
	// outlasts a symbol.
	d.Execute(signal{}.hold(0, sps+cfg.MaxPreambleTimingError+2))
	if d.Stage() != demod.Decoding {
		t.Fatalf("expected Decoding, in %s\n", d.Stage())
	}
}

func TestJitterTolerance(t *testing.T) {
	cfg := demod.DefaultConfig()
	sps := cfg.SamplesPerSymbol
	tol := cfg.MaxPreambleTimingError

	for _, c := range []struct {
		offset int
		want   int
	}{
		{tol, 1},
		{-tol, 1},
		{tol + 1, 0},
		{-(tol + 1), 0},
	} {
		d, r := newDemod(t, cfg)

		s := signal{}.
			hold(0, 5*sps).
			preamble(cfg.MinPreambleBits+1, sps, map[int]int{20: c.offset}).
			hold(0, cfg.GapSymbols*sps).
			chips(transmit.Chips(code), sps).
			hold(0, (cfg.RepeatGapSymbols+demod.Chips+2)*sps)
		d.Execute(s)

		if len(r.packets) != c.want {
			t.Fatalf("offset %d: expected %d packets, got %d\n", c.offset, c.want, len(r.packets))
		}
	}
}

func TestCorruptionRejection(t *testing.T) {
	cfg := demod.DefaultConfig()

	for _, chip := range []int{0, 1, 2, 77, 100, 158, 159} {
		chips := transmit.Chips(code)
		chips[chip] ^= 1

		d, r := newDemod(t, cfg)
		d.Execute(frame(cfg, cfg.MinPreambleBits+1, chips))

		if len(r.packets) != 0 {
			t.Fatalf("chip %d: expected corrupt packet to be discarded, got %s\n", chip, r.packets[0])
		}
		if d.Stats().Corrupt == 0 {
			t.Fatalf("chip %d: expected corrupt occurrence to be counted\n", chip)
		}
	}
}

func TestLostLock(t *testing.T) {
	cfg := demod.DefaultConfig()
	sps := cfg.SamplesPerSymbol
	d, r := newDemod(t, cfg)

	// Carrier stays on after the preamble.
	d.Execute(signal{}.
		hold(0, sps).
		preamble(cfg.MinPreambleBits+1, sps, nil).
		hold(1, 10*sps))

	if d.Stage() != demod.Searching {
		t.Fatalf("expected Searching, in %s\n", d.Stage())
	}
	if s := d.Stats(); s.Locks != 1 || s.Lost != 1 {
		t.Fatalf("unexpected stats: %+v\n", s)
	}
	if len(r.packets) != 0 {
		t.Fatalf("expected no packets, got %d\n", len(r.packets))
	}
}

func TestHandlerIsSynchronous(t *testing.T) {
	cfg := demod.DefaultConfig()

	var d *demod.Demodulator
	var stage demod.Stage = -1
	d, err := demod.New(cfg, func(p packet.Packet) {
		stage = d.Stage()
	})
	if err != nil {
		t.Fatal(err)
	}

	d.Execute(frame(cfg, cfg.MinPreambleBits+1, transmit.Chips(code)))
	if stage != demod.Validating {
		t.Fatalf("expected handler to run while Validating, ran in %s\n", stage)
	}
}

func TestNoiseNeverDelivers(t *testing.T) {
	cfg := demod.DefaultConfig()
	d, r := newDemod(t, cfg)

	rng := rand.New(rand.NewSource(1))
	for idx := 0; idx < 1<<18; idx++ {
		d.Sample(rng.Float64())
	}

	if len(r.packets) != 0 {
		t.Fatalf("expected no packets from noise, got %d\n", len(r.packets))
	}
}

func TestFixedThreshold(t *testing.T) {
	cfg := demod.DefaultConfig()
	cfg.Threshold = 0.5
	d, r := newDemod(t, cfg)

	d.Execute(frame(cfg, cfg.MinPreambleBits+1, transmit.Chips(code)))
	if len(r.packets) != 1 || r.packets[0] != code {
		t.Fatalf("expected %s, got %v\n", code, r.packets)
	}
}

// encode renders a full transmission of p at one sample per microsecond.
func encode(t *testing.T, p packet.Packet, sps int) signal {
	t.Helper()

	enc := transmit.Encoder{
		Frame:     transmit.DefaultFrameConfig(),
		Symbol:    time.Duration(sps) * time.Microsecond,
		High:      1,
		Modulator: transmit.NewOOK(1e6, 0),
	}

	sink := &magnitudeSink{}
	sink.s = sink.s.hold(0, 10*sps)
	if err := enc.Encode(p, sink); err != nil {
		t.Fatal(err)
	}
	sink.s = sink.s.hold(0, 10*sps)

	return sink.s
}

type magnitudeSink struct {
	s signal
}

func (m *magnitudeSink) WriteSample(i, q float64) error {
	m.s = append(m.s, i*i+q*q)
	return nil
}

func TestEndToEnd(t *testing.T) {
	for _, c := range []struct {
		policy demod.Policy
		want   int
	}{
		{demod.DeliverOnFirstValid, 1},
		{demod.DeliverEach, 2},
		{demod.RequireMatchingRepeat, 1},
	} {
		cfg := demod.DefaultConfig()
		cfg.Policy = c.policy
		d, r := newDemod(t, cfg)

		d.Execute(encode(t, code, cfg.SamplesPerSymbol))

		if len(r.packets) != c.want {
			t.Fatalf("policy %s: expected %d packets, got %d\n", c.policy, c.want, len(r.packets))
		}
		for _, p := range r.packets {
			if p != code {
				t.Fatalf("policy %s: Expected %s got %s\n", c.policy, code, p)
			}
		}
	}
}

func TestRepeatRecoversCorruptFirst(t *testing.T) {
	cfg := demod.DefaultConfig()
	sps := cfg.SamplesPerSymbol

	chips := transmit.Chips(code)
	corrupt := transmit.Chips(code)
	corrupt[40] ^= 1

	s := signal{}.
		hold(0, 5*sps).
		preamble(cfg.MinPreambleBits+1, sps, nil).
		hold(0, cfg.GapSymbols*sps).
		chips(corrupt, sps).
		hold(0, cfg.RepeatGapSymbols*sps).
		chips(chips, sps).
		hold(0, 5*sps)

	d, r := newDemod(t, cfg)
	d.Execute(s)
	if len(r.packets) != 1 || r.packets[0] != code {
		t.Fatalf("expected repeat to deliver %s, got %v\n", code, r.packets)
	}

	cfg.Policy = demod.RequireMatchingRepeat
	d, r = newDemod(t, cfg)
	d.Execute(s)
	if len(r.packets) != 0 {
		t.Fatalf("expected no packets without a matching pair, got %v\n", r.packets)
	}
}

func TestRepeatMismatch(t *testing.T) {
	cfg := demod.DefaultConfig()
	cfg.Policy = demod.RequireMatchingRepeat
	sps := cfg.SamplesPerSymbol

	other := code
	other[9] = 0xFF

	d, r := newDemod(t, cfg)
	d.Execute(signal{}.
		hold(0, 5*sps).
		preamble(cfg.MinPreambleBits+1, sps, nil).
		hold(0, cfg.GapSymbols*sps).
		chips(transmit.Chips(code), sps).
		hold(0, cfg.RepeatGapSymbols*sps).
		chips(transmit.Chips(other), sps).
		hold(0, 5*sps))

	if len(r.packets) != 0 {
		t.Fatalf("expected mismatched repeat to be dropped, got %v\n", r.packets)
	}
	if d.Stats().Mismatched != 1 {
		t.Fatalf("unexpected stats: %+v\n", d.Stats())
	}
}

// The receive chain: raw I/Q through the decimating filter into the
// demodulator.
func TestEndToEndFiltered(t *testing.T) {
	const decimation = 10

	cfg := demod.DefaultConfig()
	cfg.SamplesPerSymbol = 40
	cfg.MaxPreambleTimingError = 8

	enc := transmit.Encoder{
		Frame:     transmit.DefaultFrameConfig(),
		Symbol:    time.Duration(cfg.SamplesPerSymbol*decimation) * time.Microsecond,
		High:      1000,
		Modulator: transmit.NewOOK(1e6, 0),
	}

	d, r := newDemod(t, cfg)
	rx := &channelSink{c: dsp.NewChannel(dsp.LowPass(decimation, 0), decimation), d: d}

	for idx := 0; idx < 10*cfg.SamplesPerSymbol*decimation; idx++ {
		rx.WriteSample(0, 0)
	}
	if err := enc.Encode(code, rx); err != nil {
		t.Fatal(err)
	}
	for idx := 0; idx < 10*cfg.SamplesPerSymbol*decimation; idx++ {
		rx.WriteSample(0, 0)
	}

	if len(r.packets) != 1 || r.packets[0] != code {
		t.Fatalf("expected %s, got %v\n", code, r.packets)
	}
}

type channelSink struct {
	c *dsp.Channel
	d *demod.Demodulator
}

func (s *channelSink) WriteSample(i, q float64) error {
	if mag, ok := s.c.Put(i, q); ok {
		s.d.Sample(mag)
	}
	return nil
}

func TestConfigValidate(t *testing.T) {
	if err := demod.DefaultConfig().Validate(); err != nil {
		t.Fatal(err)
	}

	for _, mutate := range []func(*demod.Config){
		func(c *demod.Config) { c.SamplesPerSymbol = 0 },
		func(c *demod.Config) { c.MinPreambleBits = 0 },
		func(c *demod.Config) { c.MaxPreambleTimingError = 100 },
		func(c *demod.Config) { c.MaxPreambleTimingError = -1 },
		func(c *demod.Config) { c.GapSymbols = 1 },
		func(c *demod.Config) { c.Threshold = -1 },
		func(c *demod.Config) { c.Policy = 7 },
		func(c *demod.Config) { c.Policy, c.RepeatGapSymbols = demod.RequireMatchingRepeat, 0 },
	} {
		cfg := demod.DefaultConfig()
		mutate(&cfg)
		if cfg.Validate() == nil {
			t.Fatalf("expected %+v to be invalid\n", cfg)
		}
		if _, err := demod.New(cfg, func(packet.Packet) {}); err == nil {
			t.Fatalf("expected New to reject %+v\n", cfg)
		}
	}

	if _, err := demod.New(demod.DefaultConfig(), nil); err == nil {
		t.Fatal("expected New to reject nil handler")
	}
}

func TestParsePolicy(t *testing.T) {
	for _, p := range []demod.Policy{demod.DeliverOnFirstValid, demod.DeliverEach, demod.RequireMatchingRepeat} {
		got, err := demod.ParsePolicy(p.String())
		if err != nil {
			t.Fatal(err)
		}
		if got != p {
			t.Fatalf("expected %s, got %s\n", p, got)
		}
	}

	if _, err := demod.ParsePolicy("sometimes"); err == nil {
		t.Fatal("expected error for unknown policy")
	}
}

func BenchmarkDemodulate(b *testing.B) {
	cfg := demod.DefaultConfig()
	d, err := demod.New(cfg, func(packet.Packet) {})
	if err != nil {
		b.Fatal(err)
	}

	s := frame(cfg, 256, transmit.Chips(code))

	b.SetBytes(int64(len(s)))
	b.ReportAllocs()
	b.ResetTimer()
	for n := 0; n < b.N; n++ {
		d.Execute(s)
	}
}
