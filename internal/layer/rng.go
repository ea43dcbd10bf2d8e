package layer

import (
	"math"
	"math/rand"
)

// RNG is a seedable generator used for weight initialization.
// The Box-Muller spare is kept on the generator, so two RNGs built from the
// same seed always yield the same stream.
type RNG struct {
	src      *rand.Rand
	hasSpare bool
	spare    float64
}

// NewRNG creates a generator seeded with seed.
func NewRNG(seed uint64) *RNG {
	return &RNG{src: rand.New(rand.NewSource(int64(seed)))}
}

// RandFloat returns a uniform sample in [0, 1).
func (r *RNG) RandFloat() float64 {
	return r.src.Float64()
}

// Intn returns a uniform integer in [0, n).
func (r *RNG) Intn(n int) int {
	return r.src.Intn(n)
}

// Gaussian returns a standard normal sample using the polar Box-Muller
// transform. Each accepted pair produces two samples; the second is cached.
func (r *RNG) Gaussian() float64 {
	if r.hasSpare {
		r.hasSpare = false
		return r.spare
	}

	var u, v, s float64
	for {
		u = r.src.Float64()*2 - 1
		v = r.src.Float64()*2 - 1
		s = u*u + v*v
		if s < 1 && s != 0 {
			break
		}
	}

	s = math.Sqrt(-2 * math.Log(s) / s)
	r.spare = v * s
	r.hasSpare = true
	return u * s
}

// heFill fills w with Gaussian noise scaled by sqrt(2/fanIn).
func heFill(w []float64, fanIn int, rng *RNG) {
	scale := math.Sqrt(2.0 / float64(fanIn))
	for i := range w {
		w[i] = rng.Gaussian() * scale
	}
}
