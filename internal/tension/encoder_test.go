package tension

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Raiff1982/TheAi-sub000/internal/vecmath"
)

func TestHashEncoder(t *testing.T) {
	enc := HashEncoder{Seed: 7}
	a := enc.Encode("hello world", 32)
	assert.Len(t, a, 32)
	assert.InDelta(t, 1.0, vecmath.Pure{}.Norm(a), 1e-9)
	assert.Equal(t, a, enc.Encode("hello world", 32), "reproducible")
	assert.NotEqual(t, a, enc.Encode("hello there", 32))
	assert.NotEqual(t, a, HashEncoder{Seed: 8}.Encode("hello world", 32), "seeded")
	assert.Nil(t, enc.Encode("x", 0))
}

func TestHashEncoder_UnicodeEquivalence(t *testing.T) {
	enc := HashEncoder{}
	composed := enc.Encode("caf\u00e9", 8)
	decomposed := enc.Encode("cafe\u0301", 8)
	assert.Equal(t, composed, decomposed)
}

func TestSanitize(t *testing.T) {
	v := sanitize(vecmath.Pure{}, []float64{3, 4}, 3)
	assert.InDeltaSlice(t, []float64{0.6, 0.8, 0}, v, 1e-12)
	assert.Equal(t, []float64{0, 0}, sanitize(vecmath.Pure{}, nil, 2))
}
