package dsp

// Channel low-pass filters the in-phase and quadrature components of a
// complex stream independently and decimates the result to a stream of
// magnitude squared samples.
type Channel struct {
	i, q *SampleFilter

	decimation int
	count      int
}

// NewChannel returns a channel which keeps every nth filtered sample. Both
// components use their own copy of taps.
func NewChannel(taps []float64, decimation int) *Channel {
	if decimation < 1 {
		decimation = 1
	}

	return &Channel{
		i:          NewSampleFilter(taps),
		q:          NewSampleFilter(taps),
		decimation: decimation,
	}
}

// Put filters a single complex sample. On every nth call it returns the
// magnitude squared of the filtered sample and true.
func (c *Channel) Put(i, q float64) (float64, bool) {
	c.i.Put(i)
	c.q.Put(q)

	c.count++
	if c.count < c.decimation {
		return 0, false
	}
	c.count = 0

	si, sq := c.i.Get(), c.q.Get()

	return si*si + sq*sq, true
}

// Execute runs Put over a block of samples and appends every magnitude
// produced to out.
func (c *Channel) Execute(input []complex64, out []float64) []float64 {
	for _, s := range input {
		if mag, ok := c.Put(float64(real(s)), float64(imag(s))); ok {
			out = append(out, mag)
		}
	}
	return out
}

func (c *Channel) Reset() {
	c.i.Reset()
	c.q.Reset()
	c.count = 0
}

func (c *Channel) Decimation() int {
	return c.decimation
}
