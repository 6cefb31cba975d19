package dsp

import (
	"math"
	"math/rand"
	"testing"
)

func TestLowPassUnityGain(t *testing.T) {
	for _, decimation := range []int{1, 2, 5, 10, 20} {
		taps := LowPass(decimation, 0)
		if len(taps) != 4*decimation+1 {
			t.Fatalf("decimation %d: expected %d taps, got %d\n", decimation, 4*decimation+1, len(taps))
		}

		var sum float64
		for _, tap := range taps {
			sum += tap
		}
		if math.Abs(sum-1) > 1e-9 {
			t.Fatalf("decimation %d: expected unity gain, got %f\n", decimation, sum)
		}

		// Linear phase requires symmetric taps.
		for idx := range taps {
			if math.Abs(taps[idx]-taps[len(taps)-1-idx]) > 1e-12 {
				t.Fatalf("decimation %d: taps not symmetric at %d\n", decimation, idx)
			}
		}
	}
}

func TestLowPassOddLength(t *testing.T) {
	if n := len(LowPass(4, 10)); n != 11 {
		t.Fatalf("expected 11 taps, got %d\n", n)
	}
}

func TestFilterConstant(t *testing.T) {
	for _, v := range []float64{1, -2047, 0.25, 2047} {
		f := NewSampleFilter(LowPass(20, 0))
		for idx := 0; idx < 4*f.Len(); idx++ {
			f.Put(v)
		}

		if got := f.Get(); math.Abs(got-v) > 1e-9*math.Max(1, math.Abs(v)) {
			t.Fatalf("expected filter to settle at %f, got %f\n", v, got)
		}
	}
}

func TestFilterZero(t *testing.T) {
	f := NewSampleFilter(LowPass(20, 0))
	for idx := 0; idx < 1<<12; idx++ {
		f.Put(0)
		if got := f.Get(); got != 0 {
			t.Fatalf("expected zero output at %d, got %f\n", idx, got)
		}
	}
}

func TestFilterGetIsPure(t *testing.T) {
	f := NewSampleFilter(LowPass(8, 0))
	for idx := 0; idx < 17; idx++ {
		f.Put(rand.Float64())
	}

	first := f.Get()
	for idx := 0; idx < 8; idx++ {
		if got := f.Get(); got != first {
			t.Fatalf("repeated Get changed output: %f != %f\n", got, first)
		}
	}
}

func TestFilterImpulse(t *testing.T) {
	taps := LowPass(4, 0)
	f := NewSampleFilter(taps)

	// The impulse response of the filter is its taps.
	f.Put(1)
	for idx, tap := range taps {
		if idx > 0 {
			f.Put(0)
		}
		if got := f.Get(); math.Abs(got-tap) > 1e-12 {
			t.Fatalf("tap %d: expected %f, got %f\n", idx, tap, got)
		}
	}
}

func TestFilterReset(t *testing.T) {
	f := NewSampleFilter(LowPass(4, 0))
	for idx := 0; idx < 40; idx++ {
		f.Put(100)
	}
	f.Reset()

	if got := f.Get(); got != 0 {
		t.Fatalf("expected zero after reset, got %f\n", got)
	}
}

func TestFilterAttenuatesAliases(t *testing.T) {
	const decimation = 10
	f := NewSampleFilter(LowPass(decimation, 0))

	// A tone at the input Nyquist rate would alias onto DC after decimation.
	var peak float64
	for idx := 0; idx < 1<<10; idx++ {
		f.Put(math.Cos(math.Pi * float64(idx)))
		if idx > f.Len() {
			peak = math.Max(peak, math.Abs(f.Get()))
		}
	}

	if peak > 0.05 {
		t.Fatalf("expected tone to be attenuated, peak output %f\n", peak)
	}
}

func TestChannelDecimation(t *testing.T) {
	const decimation = 5
	c := NewChannel(LowPass(decimation, 0), decimation)

	var count int
	for idx := 0; idx < 1000; idx++ {
		if mag, ok := c.Put(3, 4); ok {
			count++
			if idx < 4*decimation+1 {
				continue
			}
			if math.Abs(mag-25) > 1e-9 {
				t.Fatalf("expected magnitude squared of 25, got %f\n", mag)
			}
		}
	}

	if count != 1000/decimation {
		t.Fatalf("expected %d outputs, got %d\n", 1000/decimation, count)
	}
}

func TestChannelExecute(t *testing.T) {
	c := NewChannel(LowPass(4, 0), 4)
	input := make([]complex64, 64)
	for idx := range input {
		input[idx] = complex(1, 0)
	}

	out := c.Execute(input, nil)
	if len(out) != 16 {
		t.Fatalf("expected 16 outputs, got %d\n", len(out))
	}
}

func BenchmarkFilter(b *testing.B) {
	f := NewSampleFilter(LowPass(20, 0))

	b.ReportAllocs()
	b.ResetTimer()
	for n := 0; n < b.N; n++ {
		f.Put(float64(n & 0xFF))
		_ = f.Get()
	}
}

func BenchmarkChannel(b *testing.B) {
	c := NewChannel(LowPass(20, 0), 20)

	b.ReportAllocs()
	b.ResetTimer()
	for n := 0; n < b.N; n++ {
		c.Put(float64(n&0xFF), float64(n&0x7F))
	}
}
