package tension

import (
	"crypto/sha256"
	"encoding/binary"
	"math"
	"math/rand/v2"

	"golang.org/x/text/unicode/norm"

	"github.com/Raiff1982/TheAi-sub000/internal/vecmath"
)

// ContextEncoder projects symbolic context into the engine's vector space.
// Implementations should return dim values; the engine repairs anything else.
type ContextEncoder interface {
	Encode(text string, dim int) []float64
}

// HashEncoder is the default encoder: a seeded, reproducible hash projection.
// Equal (seed, text) pairs map to equal unit vectors; Unicode-equivalent
// spellings of the same text map together.
type HashEncoder struct {
	Seed uint64
}

const encoderDomain = "tension/hash-encoder/v1"

func (h HashEncoder) Encode(text string, dim int) []float64 {
	if dim <= 0 {
		return nil
	}
	var seed [8]byte
	binary.BigEndian.PutUint64(seed[:], h.Seed)

	sum := sha256.New()
	sum.Write([]byte(encoderDomain))
	sum.Write([]byte{0})
	sum.Write(seed[:])
	sum.Write([]byte{0})
	sum.Write(norm.NFC.Bytes([]byte(text)))
	d := sum.Sum(nil)

	rng := rand.New(rand.NewPCG(binary.BigEndian.Uint64(d[0:8]), binary.BigEndian.Uint64(d[8:16])))
	return vecmath.Normalize(vecmath.Pure{}, vecmath.UniformVector(rng, dim, -1, 1))
}

// sanitize fits raw to dim, zeroes non-finite components and scales the
// result to unit norm.
func sanitize(b vecmath.Backend, raw []float64, dim int) []float64 {
	v := vecmath.Fit(raw, dim)
	for i, x := range v {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			v[i] = 0
		}
	}
	return vecmath.Normalize(b, v)
}
