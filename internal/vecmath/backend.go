package vecmath

import "fmt"

// #region backend
// Backend is the numeric capability set the graph and tension engine depend on.
// Implementations must agree with each other to within floating-point noise.
type Backend interface {
	Name() string
	Mean(v []float64) float64
	// Variance is the population variance (divides by n).
	Variance(v []float64) float64
	// StdDev is the population standard deviation.
	StdDev(v []float64) float64
	// Norm is the Euclidean (L2) norm.
	Norm(v []float64) float64
	SquaredDistance(a, b []float64) float64
	// FFTMagnitude returns |X_k| for k = 0..n/2 of the real-input DFT of v.
	FFTMagnitude(v []float64) []float64
}

// Backend names accepted by NewBackend.
const (
	PureName  = "pure"
	GonumName = "gonum"
)

// NewBackend returns the backend registered under name. An empty name selects
// the pure implementation.
func NewBackend(name string) (Backend, error) {
	switch name {
	case "", PureName:
		return Pure{}, nil
	case GonumName:
		return Gonum{}, nil
	default:
		return nil, fmt.Errorf("unknown vecmath backend %q (want %q or %q)", name, PureName, GonumName)
	}
}

// #endregion backend

// #region helpers
// Normalize returns v scaled to unit L2 norm. A zero vector is returned as a
// zero vector of the same length.
func Normalize(b Backend, v []float64) []float64 {
	out := make([]float64, len(v))
	n := b.Norm(v)
	if n == 0 {
		return out
	}
	for i, x := range v {
		out[i] = x / n
	}
	return out
}

// Fit truncates or zero-pads v to length n.
func Fit(v []float64, n int) []float64 {
	out := make([]float64, n)
	copy(out, v)
	return out
}
// #endregion helpers
