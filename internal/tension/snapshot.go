package tension

import "fmt"

// Snapshot is the persistable part of an engine. Attractors and glyphs are
// not included; they are journalled as cocoons instead.
type Snapshot struct {
	Dimension  int         `json:"dimension"`
	Identity   []float64   `json:"identity"`
	Tension    []float64   `json:"tension"`
	Recent     [][]float64 `json:"recent"`
	Step       int64       `json:"step"`
	Converging bool        `json:"converging"`
}

// Snapshot copies the engine's identity state and tension window.
func (e *Engine) Snapshot() Snapshot {
	recent := e.recent.items()
	for i, v := range recent {
		recent[i] = append([]float64(nil), v...)
	}
	return Snapshot{
		Dimension:  e.cfg.Dimension,
		Identity:   append([]float64(nil), e.identity...),
		Tension:    e.tension.items(),
		Recent:     recent,
		Step:       e.step,
		Converging: e.converging,
	}
}

// Restore replaces the engine's state with s. Windows longer than the
// engine's configuration keep only their newest entries.
func (e *Engine) Restore(s Snapshot) error {
	if s.Dimension != e.cfg.Dimension || len(s.Identity) != e.cfg.Dimension {
		return &ValidationError{
			Field:  "snapshot",
			Reason: fmt.Sprintf("dimension %d (identity %d) does not match engine dimension %d", s.Dimension, len(s.Identity), e.cfg.Dimension),
		}
	}
	for _, v := range s.Recent {
		if len(v) != e.cfg.Dimension {
			return &ValidationError{Field: "snapshot", Reason: "recent identity has wrong dimension"}
		}
	}
	for _, xi := range s.Tension {
		if !(xi >= 0) {
			return &ValidationError{Field: "snapshot", Reason: "tension samples must be >= 0"}
		}
	}

	tension := newRing[float64](e.cfg.HistoryWindow)
	for _, xi := range s.Tension {
		tension.push(xi)
	}
	recent := newRing[[]float64](e.cfg.ConvergenceWindow)
	for _, v := range s.Recent {
		recent.push(append([]float64(nil), v...))
	}

	e.identity = append([]float64(nil), s.Identity...)
	e.tension = tension
	e.recent = recent
	e.step = s.Step
	e.converging = s.Converging
	return nil
}
