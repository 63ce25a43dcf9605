package vecmath

import (
	"math"
	"math/cmplx"
)

// Pure implements Backend with plain loops and a direct DFT.
type Pure struct{}

func (Pure) Name() string { return PureName }

func (Pure) Mean(v []float64) float64 {
	if len(v) == 0 {
		return 0
	}
	var sum float64
	for _, x := range v {
		sum += x
	}
	return sum / float64(len(v))
}

func (p Pure) Variance(v []float64) float64 {
	if len(v) == 0 {
		return 0
	}
	mean := p.Mean(v)
	var ss float64
	for _, x := range v {
		d := x - mean
		ss += d * d
	}
	return ss / float64(len(v))
}

func (p Pure) StdDev(v []float64) float64 {
	return math.Sqrt(p.Variance(v))
}

func (Pure) Norm(v []float64) float64 {
	var ss float64
	for _, x := range v {
		ss += x * x
	}
	return math.Sqrt(ss)
}

// SquaredDistance treats missing trailing components of the shorter vector as zero.
func (Pure) SquaredDistance(a, b []float64) float64 {
	n := max(len(a), len(b))
	var ss float64
	for i := 0; i < n; i++ {
		var x, y float64
		if i < len(a) {
			x = a[i]
		}
		if i < len(b) {
			y = b[i]
		}
		d := x - y
		ss += d * d
	}
	return ss
}

func (Pure) FFTMagnitude(v []float64) []float64 {
	n := len(v)
	if n == 0 {
		return nil
	}
	out := make([]float64, n/2+1)
	for k := range out {
		var sum complex128
		for t, x := range v {
			angle := -2 * math.Pi * float64(k) * float64(t) / float64(n)
			sum += complex(x, 0) * cmplx.Exp(complex(0, angle))
		}
		out[k] = cmplx.Abs(sum)
	}
	return out
}
