package vecmath

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const tol = 1e-9

func TestNewBackend(t *testing.T) {
	b, err := NewBackend("")
	require.NoError(t, err)
	assert.Equal(t, PureName, b.Name())

	b, err = NewBackend(GonumName)
	require.NoError(t, err)
	assert.Equal(t, GonumName, b.Name())

	_, err = NewBackend("numpy")
	assert.Error(t, err)
}

func TestPure_StdDevIsPopulation(t *testing.T) {
	v := []float64{2, 4, 4, 4, 5, 5, 7, 9}
	assert.InDelta(t, 5.0, Pure{}.Mean(v), tol)
	assert.InDelta(t, 4.0, Pure{}.Variance(v), tol)
	assert.InDelta(t, 2.0, Pure{}.StdDev(v), tol)
}

func TestPure_FFTMagnitudeOfImpulse(t *testing.T) {
	mags := Pure{}.FFTMagnitude([]float64{1, 0, 0, 0})
	require.Len(t, mags, 3)
	for _, m := range mags {
		assert.InDelta(t, 1.0, m, tol)
	}
}

func TestBackendsAgree(t *testing.T) {
	rng := NewRNG(7)
	p, g := Pure{}, Gonum{}
	for _, n := range []int{1, 2, 5, 16, 50} {
		a := UniformVector(rng, n, -1, 1)
		b := UniformVector(rng, n, -1, 1)

		assert.InDelta(t, p.Mean(a), g.Mean(a), tol, "mean n=%d", n)
		assert.InDelta(t, p.Variance(a), g.Variance(a), tol, "variance n=%d", n)
		assert.InDelta(t, p.StdDev(a), g.StdDev(a), tol, "stddev n=%d", n)
		assert.InDelta(t, p.Norm(a), g.Norm(a), tol, "norm n=%d", n)
		assert.InDelta(t, p.SquaredDistance(a, b), g.SquaredDistance(a, b), tol, "dist n=%d", n)

		pm, gm := p.FFTMagnitude(a), g.FFTMagnitude(a)
		require.Len(t, gm, len(pm))
		for k := range pm {
			assert.InDelta(t, pm[k], gm[k], 1e-9*float64(n), "fft n=%d k=%d", n, k)
		}
	}
}

func TestEmptyInputs(t *testing.T) {
	for _, b := range []Backend{Pure{}, Gonum{}} {
		assert.Zero(t, b.Mean(nil), b.Name())
		assert.Zero(t, b.StdDev(nil), b.Name())
		assert.Zero(t, b.Norm(nil), b.Name())
		assert.Zero(t, b.SquaredDistance(nil, nil), b.Name())
		assert.Nil(t, b.FFTMagnitude(nil), b.Name())
	}
}

func TestSquaredDistanceMismatchedLengths(t *testing.T) {
	a := []float64{1, 2}
	b := []float64{1, 2, 3}
	assert.InDelta(t, 9.0, Pure{}.SquaredDistance(a, b), tol)
	assert.InDelta(t, 9.0, Gonum{}.SquaredDistance(a, b), tol)
}

func TestNormalize(t *testing.T) {
	v := Normalize(Pure{}, []float64{3, 4})
	assert.InDelta(t, 0.6, v[0], tol)
	assert.InDelta(t, 0.8, v[1], tol)
	assert.Equal(t, []float64{0, 0}, Normalize(Pure{}, []float64{0, 0}))
}

func TestFit(t *testing.T) {
	assert.Equal(t, []float64{1, 2}, Fit([]float64{1, 2, 3}, 2))
	assert.Equal(t, []float64{1, 0, 0}, Fit([]float64{1}, 3))
}

func TestRNGDeterministic(t *testing.T) {
	a := UniformVector(NewRNG(42), 10, -1, 1)
	b := UniformVector(NewRNG(42), 10, -1, 1)
	assert.Equal(t, a, b)
	for _, x := range a {
		assert.True(t, x >= -1 && x < 1)
	}
	for i := 0; i < 1000; i++ {
		u := UnitInterval(NewRNG(uint64(i)))
		assert.True(t, u > 0 && u <= 1 && !math.IsNaN(u))
	}
}
