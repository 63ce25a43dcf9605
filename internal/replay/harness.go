package replay

import (
	"errors"
	"fmt"

	"github.com/Raiff1982/TheAi-sub000/internal/logging"
	"github.com/Raiff1982/TheAi-sub000/internal/tension"
	"github.com/Raiff1982/TheAi-sub000/internal/vecmath"
)

// #region types
// Result captures one context fed through the engine.
type Result struct {
	Step       int64   `json:"step"`
	Context    string  `json:"context"`
	Xi         float64 `json:"xi"`
	Converging bool    `json:"converging"`
	GlyphID    string  `json:"glyph_id,omitempty"`
}

// Run is a full replay: per-step results plus the engine's final summary.
type Run struct {
	Results    []Result                   `json:"results"`
	Attractors []tension.Attractor        `json:"attractors"`
	Final      tension.ConsciousnessState `json:"final"`
}

// Summary provides aggregate stats from a replay run.
type Summary struct {
	Steps            int   `json:"steps"`
	ConvergingSteps  int   `json:"converging_steps"`
	FirstConvergence int64 `json:"first_convergence"` // 0 when never converged
	Glyphs           int   `json:"glyphs"`
	Attractors       int   `json:"attractors"`
}

// #endregion types

// #region replay
// Replay feeds every context of f, in order, through a fresh engine seeded
// from f.Seed. Converging steps also attempt a glyph. Operates entirely
// in-memory; nothing is persisted.
func Replay(f *Fixture, backend vecmath.Backend) (Run, error) {
	if backend == nil {
		backend = vecmath.Pure{}
	}
	eng, err := tension.NewEngine(f.Engine.Config(), vecmath.NewRNG(f.Seed),
		tension.WithBackend(backend),
		tension.WithEncoder(tension.HashEncoder{Seed: f.Seed}),
		tension.WithLogger(logging.Discard()),
	)
	if err != nil {
		return Run{}, fmt.Errorf("replay engine: %w", err)
	}

	results := make([]Result, 0, len(f.Contexts))
	for _, symbolic := range f.Contexts {
		u := eng.RecursiveUpdate(symbolic, nil)
		r := Result{Step: u.Step, Context: symbolic, Xi: u.Xi, Converging: u.Converging}
		if u.Converging {
			if g, ok := eng.FormGlyph(symbolic); ok {
				r.GlyphID = g.ID
			}
		}
		results = append(results, r)
	}
	return Run{
		Results:    results,
		Attractors: eng.DetectAttractors(),
		Final:      eng.ConsciousnessState(),
	}, nil
}

// Summarize computes aggregate stats from a run.
func Summarize(run Run) Summary {
	s := Summary{Steps: len(run.Results), Attractors: len(run.Attractors)}
	seen := map[string]bool{}
	for _, r := range run.Results {
		if r.Converging {
			s.ConvergingSteps++
			if s.FirstConvergence == 0 {
				s.FirstConvergence = r.Step
			}
		}
		if r.GlyphID != "" && !seen[r.GlyphID] {
			seen[r.GlyphID] = true
			s.Glyphs++
		}
	}
	return s
}

// Check compares a summary with the fixture's expectation and returns every
// mismatch joined into one error.
func Check(exp Expectation, s Summary) error {
	var errs []error
	converged := s.FirstConvergence > 0
	switch {
	case exp.Converges && !converged:
		errs = append(errs, errors.New("expected convergence, never converged"))
	case !exp.Converges && converged:
		errs = append(errs, fmt.Errorf("expected no convergence, converged at step %d", s.FirstConvergence))
	case exp.Converges && exp.ConvergedBy > 0 && s.FirstConvergence > exp.ConvergedBy:
		errs = append(errs, fmt.Errorf("converged at step %d, expected by %d", s.FirstConvergence, exp.ConvergedBy))
	}
	if exp.GlyphFormed != (s.Glyphs > 0) {
		errs = append(errs, fmt.Errorf("glyph_formed=%v, got %d glyphs", exp.GlyphFormed, s.Glyphs))
	}
	if exp.Attractors != s.Attractors {
		errs = append(errs, fmt.Errorf("expected %d attractors, got %d", exp.Attractors, s.Attractors))
	}
	return errors.Join(errs...)
}

// #endregion replay
