package vecmath

import (
	"math"
	"math/cmplx"

	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Gonum implements Backend on top of gonum's stat, floats and fourier packages.
type Gonum struct{}

func (Gonum) Name() string { return GonumName }

func (Gonum) Mean(v []float64) float64 {
	if len(v) == 0 {
		return 0
	}
	return stat.Mean(v, nil)
}

func (Gonum) Variance(v []float64) float64 {
	if len(v) == 0 {
		return 0
	}
	return stat.PopVariance(v, nil)
}

func (g Gonum) StdDev(v []float64) float64 {
	return math.Sqrt(g.Variance(v))
}

func (Gonum) Norm(v []float64) float64 {
	if len(v) == 0 {
		return 0
	}
	return floats.Norm(v, 2)
}

func (Gonum) SquaredDistance(a, b []float64) float64 {
	// floats.Distance panics on length mismatch.
	if len(a) != len(b) {
		n := max(len(a), len(b))
		a, b = Fit(a, n), Fit(b, n)
	}
	if len(a) == 0 {
		return 0
	}
	d := floats.Distance(a, b, 2)
	return d * d
}

func (Gonum) FFTMagnitude(v []float64) []float64 {
	if len(v) == 0 {
		return nil
	}
	fft := fourier.NewFFT(len(v))
	coeffs := fft.Coefficients(nil, v)
	out := make([]float64, len(coeffs))
	for i, c := range coeffs {
		out[i] = cmplx.Abs(c)
	}
	return out
}
