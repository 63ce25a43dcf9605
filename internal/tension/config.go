package tension

import "fmt"

// #region config
// Config holds the recurrence and convergence parameters of an Engine.
type Config struct {
	Dimension          int
	EpsilonThreshold   float64
	ContractionRatio   float64
	NoiseVariance      float64
	HistoryWindow      int
	ConvergenceWindow  int
	GlyphLength        int
	AttractorTolerance float64
	// InitScale > 0 starts A_0 uniform in [-InitScale, InitScale]; 0 starts at zero.
	InitScale float64
}

// DefaultConfig returns the standard engine parameters.
func DefaultConfig() Config {
	return Config{
		Dimension:          64,
		EpsilonThreshold:   0.1,
		ContractionRatio:   0.85,
		NoiseVariance:      0.0001,
		HistoryWindow:      50,
		ConvergenceWindow:  5,
		GlyphLength:        16,
		AttractorTolerance: 0.1,
	}
}

// Validate checks every parameter range.
func (c Config) Validate() error {
	switch {
	case c.Dimension < 1:
		return &ValidationError{Field: "dimension", Reason: "must be >= 1"}
	case !(c.EpsilonThreshold > 0 && c.EpsilonThreshold < 1):
		return &ValidationError{Field: "epsilon_threshold", Reason: "must be in (0,1)"}
	case !(c.ContractionRatio > 0 && c.ContractionRatio < 1):
		return &ValidationError{Field: "contraction_ratio", Reason: "must be in (0,1)"}
	case !(c.NoiseVariance >= 0):
		return &ValidationError{Field: "noise_variance", Reason: "must be >= 0"}
	case c.HistoryWindow < 1:
		return &ValidationError{Field: "history_window", Reason: "must be >= 1"}
	case c.ConvergenceWindow < 1 || c.ConvergenceWindow > c.HistoryWindow:
		return &ValidationError{Field: "convergence_window", Reason: fmt.Sprintf("must be in 1..%d", c.HistoryWindow)}
	case c.GlyphLength < 1:
		return &ValidationError{Field: "glyph_length", Reason: "must be >= 1"}
	case !(c.AttractorTolerance >= 0):
		return &ValidationError{Field: "attractor_tolerance", Reason: "must be >= 0"}
	case !(c.InitScale >= 0):
		return &ValidationError{Field: "init_scale", Reason: "must be >= 0"}
	}
	return nil
}

// #endregion config

// #region errors
// ValidationError reports an out-of-range engine parameter or snapshot.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("tension: invalid %s: %s", e.Field, e.Reason)
}

// #endregion errors
