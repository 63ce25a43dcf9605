package tension

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"math/rand/v2"
	"time"

	"github.com/Raiff1982/TheAi-sub000/internal/telemetry"
	"github.com/Raiff1982/TheAi-sub000/internal/vecmath"
)

// #region types
// Update is the outcome of one recursive update.
type Update struct {
	Step       int64
	Xi         float64
	Converging bool
}

// Reading summarises the tension window.
type Reading struct {
	Latest   float64
	Mean     float64
	Variance float64
	Samples  int
}

// Attractor is a stable region recorded when the engine first converges.
type Attractor struct {
	Centroid      []float64 `json:"centroid"`
	SupportWindow int       `json:"support_window"`
	Step          int64     `json:"step"`
	RegisteredAt  time.Time `json:"registered_at"`
}

// ConsciousnessState is the read-only summary exposed to other components.
type ConsciousnessState struct {
	Step            int64   `json:"step"`
	LatestTension   float64 `json:"latest_tension"`
	MeanTension     float64 `json:"mean_tension"`
	TensionVariance float64 `json:"tension_variance"`
	Samples         int     `json:"samples"`
	Converging      bool    `json:"converging"`
	Attractors      int     `json:"attractors"`
	Glyphs          int     `json:"glyphs"`
	IdentityNorm    float64 `json:"identity_norm"`
}

// Recorder persists cocoon payloads. *journal.Journal satisfies it.
type Recorder interface {
	Save(ctx context.Context, payload any, typeTag string) (string, error)
}

// #endregion types

// #region engine
// Engine evolves an identity vector A_n under A_{n+1} = c*A_n + p + noise and
// tracks the tension xi_n = ||A_{n+1} - A_n||^2. An Engine is single-writer.
type Engine struct {
	cfg      Config
	rng      *rand.Rand
	backend  vecmath.Backend
	encoder  ContextEncoder
	logger   *slog.Logger
	hub      *telemetry.Hub
	recorder Recorder
	now      func() time.Time

	identity   []float64
	tension    *ring[float64]
	recent     *ring[[]float64]
	step       int64
	converging bool
	attractors []Attractor
	glyphs     []Glyph
	glyphByID  map[string]int
}

// Option customises an Engine.
type Option func(*Engine)

func WithBackend(b vecmath.Backend) Option { return func(e *Engine) { e.backend = b } }
func WithEncoder(enc ContextEncoder) Option { return func(e *Engine) { e.encoder = enc } }
func WithLogger(l *slog.Logger) Option { return func(e *Engine) { e.logger = l } }
func WithHub(h *telemetry.Hub) Option { return func(e *Engine) { e.hub = h } }
func WithRecorder(r Recorder) Option { return func(e *Engine) { e.recorder = r } }
func WithClock(now func() time.Time) Option { return func(e *Engine) { e.now = now } }

// NewEngine validates cfg and returns an engine drawing noise from rng.
// Without WithEncoder the engine uses HashEncoder{Seed: 0}.
func NewEngine(cfg Config, rng *rand.Rand, opts ...Option) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if rng == nil {
		return nil, &ValidationError{Field: "rng", Reason: "must not be nil"}
	}
	e := &Engine{
		cfg:       cfg,
		rng:       rng,
		backend:   vecmath.Pure{},
		encoder:   HashEncoder{},
		logger:    slog.Default(),
		now:       time.Now,
		tension:   newRing[float64](cfg.HistoryWindow),
		recent:    newRing[[]float64](cfg.ConvergenceWindow),
		glyphByID: map[string]int{},
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = e.logger.With(slog.String("component", "tension"))

	e.identity = make([]float64, cfg.Dimension)
	if cfg.InitScale > 0 {
		e.identity = vecmath.UniformVector(rng, cfg.Dimension, -cfg.InitScale, cfg.InitScale)
	}
	return e, nil
}

// Config returns the engine's parameters.
func (e *Engine) Config() Config { return e.cfg }

// #endregion engine

// #region recursive-update
// RecursiveUpdate folds symbolic context into the identity state and records
// the resulting tension. Numeric entries of meta are forwarded to telemetry.
func (e *Engine) RecursiveUpdate(symbolic string, meta map[string]any) Update {
	p := e.project(symbolic)

	next := make([]float64, len(e.identity))
	sigma := math.Sqrt(e.cfg.NoiseVariance)
	for i, a := range e.identity {
		next[i] = e.cfg.ContractionRatio*a + p[i]
		if sigma > 0 {
			next[i] += e.rng.NormFloat64() * sigma
		}
	}

	xi := e.backend.SquaredDistance(next, e.identity)
	e.identity = next
	e.step++
	e.tension.push(xi)
	e.recent.push(append([]float64(nil), next...))

	conv, _ := e.CheckConvergence()
	if conv && !e.converging {
		e.registerAttractor()
	}
	e.converging = conv

	fields := map[string]float64{"xi": xi, "step": float64(e.step)}
	for k, v := range meta {
		if f, ok := v.(float64); ok {
			fields["meta_"+k] = f
		}
	}
	e.hub.Emit("tension", "recursive_update", "", fields)

	return Update{Step: e.step, Xi: xi, Converging: conv}
}

// project encodes symbolic context, recovering from encoder panics with a
// zero projection so the update itself always completes.
func (e *Engine) project(symbolic string) (p []float64) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Warn("context encoder panicked, using zero projection", slog.Any("panic", r))
			p = make([]float64, e.cfg.Dimension)
		}
	}()
	raw := e.encoder.Encode(symbolic, e.cfg.Dimension)
	if len(raw) != e.cfg.Dimension {
		e.logger.Debug("encoder returned wrong dimension",
			slog.Int("got", len(raw)), slog.Int("want", e.cfg.Dimension))
	}
	return sanitize(e.backend, raw, e.cfg.Dimension)
}

// #endregion recursive-update

// #region measurements
// MeasureTension summarises the tension window without side effects.
func (e *Engine) MeasureTension() Reading {
	samples := e.tension.items()
	latest, _ := e.tension.last()
	return Reading{
		Latest:   latest,
		Mean:     e.backend.Mean(samples),
		Variance: e.backend.Variance(samples),
		Samples:  len(samples),
	}
}

// CheckConvergence reports whether the newest ConvergenceWindow samples are
// all below EpsilonThreshold, together with their mean. Fewer samples than the
// window never count as converging.
func (e *Engine) CheckConvergence() (bool, float64) {
	k := e.cfg.ConvergenceWindow
	tail := e.tension.tail(k)
	if len(tail) == 0 {
		return false, 0
	}
	distance := e.backend.Mean(tail)
	if len(tail) < k {
		return false, distance
	}
	for _, xi := range tail {
		if xi >= e.cfg.EpsilonThreshold {
			return false, distance
		}
	}
	return true, distance
}

// History returns the tension window oldest first.
func (e *Engine) History() []float64 { return e.tension.items() }

// IdentityNorm is the L2 norm of the current identity state.
func (e *Engine) IdentityNorm() float64 { return e.backend.Norm(e.identity) }

// ConsciousnessState summarises the engine for statistics and cocoons.
func (e *Engine) ConsciousnessState() ConsciousnessState {
	r := e.MeasureTension()
	conv, _ := e.CheckConvergence()
	return ConsciousnessState{
		Step:            e.step,
		LatestTension:   r.Latest,
		MeanTension:     r.Mean,
		TensionVariance: r.Variance,
		Samples:         r.Samples,
		Converging:      conv,
		Attractors:      len(e.attractors),
		Glyphs:          len(e.glyphs),
		IdentityNorm:    e.IdentityNorm(),
	}
}

// #endregion measurements

// #region attractors
// DetectAttractors returns the registered attractors in registration order.
func (e *Engine) DetectAttractors() []Attractor {
	out := make([]Attractor, len(e.attractors))
	for i, a := range e.attractors {
		a.Centroid = append([]float64(nil), a.Centroid...)
		out[i] = a
	}
	return out
}

// registerAttractor records the centroid of the recent identity states unless
// an existing attractor already lies within AttractorTolerance.
func (e *Engine) registerAttractor() {
	window := e.recent.items()
	centroid := make([]float64, e.cfg.Dimension)
	for _, v := range window {
		for i, x := range v {
			centroid[i] += x / float64(len(window))
		}
	}
	tol := e.cfg.AttractorTolerance
	for _, a := range e.attractors {
		if e.backend.SquaredDistance(a.Centroid, centroid) <= tol*tol {
			e.logger.Debug("convergence near existing attractor", slog.Int64("step", e.step))
			return
		}
	}
	e.attractors = append(e.attractors, Attractor{
		Centroid:      centroid,
		SupportWindow: len(window),
		Step:          e.step,
		RegisteredAt:  e.now().UTC(),
	})
	e.hub.Emit("tension", "attractor", fmt.Sprint(len(e.attractors)), map[string]float64{"step": float64(e.step)})
	e.logger.Info("attractor registered", slog.Int64("step", e.step), slog.Int("total", len(e.attractors)))
}

// #endregion attractors
