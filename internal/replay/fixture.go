package replay

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/Raiff1982/TheAi-sub000/internal/tension"
)

// #region fixture-types

// Fixture is the top-level JSON structure for a replay fixture.
type Fixture struct {
	Description string        `json:"description"`
	Seed        uint64        `json:"seed"`
	Engine      FixtureEngine `json:"engine"`
	Contexts    []string      `json:"contexts"`
	Expect      Expectation   `json:"expect"`
}

// FixtureEngine overlays tension.DefaultConfig. Zero or absent values keep
// the default; NoiseVariance and InitScale are pointers because zero is a
// meaningful setting for both.
type FixtureEngine struct {
	Dimension          int      `json:"dimension,omitempty"`
	EpsilonThreshold   float64  `json:"epsilon_threshold,omitempty"`
	ContractionRatio   float64  `json:"contraction_ratio,omitempty"`
	NoiseVariance      *float64 `json:"noise_variance,omitempty"`
	HistoryWindow      int      `json:"history_window,omitempty"`
	ConvergenceWindow  int      `json:"convergence_window,omitempty"`
	GlyphLength        int      `json:"glyph_length,omitempty"`
	AttractorTolerance float64  `json:"attractor_tolerance,omitempty"`
	InitScale          *float64 `json:"init_scale,omitempty"`
}

// Expectation is what a replay of the fixture must produce.
type Expectation struct {
	Converges   bool  `json:"converges"`
	// ConvergedBy bounds the first converging step when Converges is set.
	ConvergedBy int64 `json:"converged_by,omitempty"`
	GlyphFormed bool  `json:"glyph_formed"`
	Attractors  int   `json:"attractors"`
}

// #endregion fixture-types

// #region fixture-loader

// LoadFixture reads and parses a JSON fixture file.
func LoadFixture(path string) (*Fixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fixture %s: %w", path, err)
	}
	var f Fixture
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse fixture %s: %w", path, err)
	}
	if len(f.Contexts) == 0 {
		return nil, fmt.Errorf("fixture %s: no contexts", path)
	}
	return &f, nil
}

// Config converts the engine overlay to a tension.Config.
func (fe FixtureEngine) Config() tension.Config {
	cfg := tension.DefaultConfig()
	if fe.Dimension != 0 {
		cfg.Dimension = fe.Dimension
	}
	if fe.EpsilonThreshold != 0 {
		cfg.EpsilonThreshold = fe.EpsilonThreshold
	}
	if fe.ContractionRatio != 0 {
		cfg.ContractionRatio = fe.ContractionRatio
	}
	if fe.NoiseVariance != nil {
		cfg.NoiseVariance = *fe.NoiseVariance
	}
	if fe.HistoryWindow != 0 {
		cfg.HistoryWindow = fe.HistoryWindow
	}
	if fe.ConvergenceWindow != 0 {
		cfg.ConvergenceWindow = fe.ConvergenceWindow
	}
	if fe.GlyphLength != 0 {
		cfg.GlyphLength = fe.GlyphLength
	}
	if fe.AttractorTolerance != 0 {
		cfg.AttractorTolerance = fe.AttractorTolerance
	}
	if fe.InitScale != nil {
		cfg.InitScale = *fe.InitScale
	}
	return cfg
}

// #endregion fixture-loader
