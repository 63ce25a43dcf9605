package vecmath

import "math/rand/v2"

// NewRNG returns a PCG-backed generator for seed. Every random draw in the
// module goes through a generator created here and passed in explicitly.
func NewRNG(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

// Uniform draws one value in [lo, hi).
func Uniform(rng *rand.Rand, lo, hi float64) float64 {
	return lo + rng.Float64()*(hi-lo)
}

// UniformVector draws n independent values in [lo, hi).
func UniformVector(rng *rand.Rand, n int, lo, hi float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = Uniform(rng, lo, hi)
	}
	return out
}

// UnitInterval draws a value in (0, 1].
func UnitInterval(rng *rand.Rand) float64 {
	return 1 - rng.Float64()
}
