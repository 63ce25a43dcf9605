package core

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/Raiff1982/TheAi-sub000/internal/codec"
	"github.com/Raiff1982/TheAi-sub000/internal/config"
	"github.com/Raiff1982/TheAi-sub000/internal/graph"
	"github.com/Raiff1982/TheAi-sub000/internal/journal"
	"github.com/Raiff1982/TheAi-sub000/internal/state"
	"github.com/Raiff1982/TheAi-sub000/internal/telemetry"
	"github.com/Raiff1982/TheAi-sub000/internal/tension"
	"github.com/Raiff1982/TheAi-sub000/internal/vecmath"
)

var tracer = otel.Tracer("github.com/Raiff1982/TheAi-sub000/internal/core")

// #region errors
var (
	ErrUnknownNode   = errors.New("unknown node")
	ErrStateDisabled = errors.New("identity snapshots disabled")
)

// #endregion errors

// #region types
// StepTypeTag tags the cocoon written by each Step.
const StepTypeTag = "reflection"

// engineStream separates the engine's noise stream from the graph's draws.
const engineStream = 0x5bd1e995

// Options carries collaborators that are not part of the file configuration.
type Options struct {
	Logger     *slog.Logger
	Registerer prometheus.Registerer
	Now        func() time.Time
	// Encoder overrides the configured encoder kind.
	Encoder    tension.ContextEncoder
}

// Runtime is one explicitly wired graph, engine, journal and optional
// snapshot store. It is single-writer like the graph and engine it owns.
type Runtime struct {
	Config   config.Config
	Logger   *slog.Logger
	Hub      *telemetry.Hub
	Counters *telemetry.Counters
	Backend  vecmath.Backend
	Graph    *graph.Store
	Engine   *tension.Engine
	Journal  *journal.Journal
	States   *state.Store // nil unless state.path is set

	closers     []io.Closer
	lastVersion string
	lastContext string
}

// StepResult is the outcome of one Step. PersistErr is set when the cocoon
// could not be saved; the rest of the result is still valid.
type StepResult struct {
	Report     graph.TensionReport
	Glyph      *tension.Glyph
	Record     map[string]any
	CocoonID   string
	PersistErr error
}

// Snapshot is the aggregated read-only telemetry view.
type Snapshot struct {
	Graph      graph.Statistics    `json:"graph"`
	Journal    journal.Stats       `json:"journal"`
	Tension    tension.Reading     `json:"tension"`
	Counters   map[string]int64    `json:"counters"`
	Glyphs     []string            `json:"glyphs"`
	Attractors []tension.Attractor `json:"attractors"`
}

// #endregion types

// #region constructor
// New validates cfg and wires every component.
func New(cfg config.Config, opts Options) (*Runtime, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	backend, err := vecmath.NewBackend(cfg.Backend)
	if err != nil {
		return nil, err
	}

	r := &Runtime{
		Config:   cfg,
		Logger:   logger.With(slog.String("component", "core")),
		Hub:      telemetry.NewHub(),
		Counters: telemetry.NewCounters(),
		Backend:  backend,
	}
	r.Hub.Subscribe(r.Counters)
	if opts.Registerer != nil {
		prom, err := telemetry.NewPrometheusObserver(opts.Registerer)
		if err != nil {
			return nil, fmt.Errorf("register telemetry: %w", err)
		}
		r.Hub.Subscribe(prom)
	}

	jc := cfg.JournalConfig()
	jc.Logger, jc.Registerer, jc.Hub, jc.Now = logger, opts.Registerer, r.Hub, now
	r.Journal, err = journal.Open(jc)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}

	enc, err := r.encoder(opts.Encoder, logger)
	if err != nil {
		return nil, err
	}

	r.Engine, err = tension.NewEngine(cfg.TensionConfig(), vecmath.NewRNG(cfg.Seed^engineStream),
		tension.WithBackend(backend),
		tension.WithEncoder(enc),
		tension.WithLogger(logger),
		tension.WithHub(r.Hub),
		tension.WithRecorder(r.Journal),
		tension.WithClock(now),
	)
	if err != nil {
		r.Close()
		return nil, fmt.Errorf("create engine: %w", err)
	}

	r.Graph, err = graph.NewStore(vecmath.NewRNG(cfg.Seed),
		graph.WithBackend(backend),
		graph.WithLogger(logger),
		graph.WithHub(r.Hub),
		graph.WithRecorder(r.Journal),
		graph.WithClock(now),
		graph.WithEngine(r.Engine),
	)
	if err != nil {
		r.Close()
		return nil, fmt.Errorf("create graph: %w", err)
	}
	if err := r.Graph.Initialize(cfg.Graph.NodeCount); err != nil {
		r.Close()
		return nil, fmt.Errorf("initialize graph: %w", err)
	}

	if cfg.State.Path != "" {
		r.States, err = state.NewStore(cfg.State.Path)
		if err != nil {
			r.Close()
			return nil, fmt.Errorf("open identity store: %w", err)
		}
		r.closers = append(r.closers, r.States)
	}

	r.Logger.Info("runtime ready",
		slog.String("backend", backend.Name()),
		slog.Int("nodes", cfg.Graph.NodeCount),
		slog.String("journal", cfg.Journal.Dir),
		slog.Bool("snapshots", r.States != nil),
	)
	return r, nil
}

func (r *Runtime) encoder(override tension.ContextEncoder, logger *slog.Logger) (tension.ContextEncoder, error) {
	if override != nil {
		return override, nil
	}
	local := tension.HashEncoder{Seed: r.Config.Engine.EncoderSeed}
	if r.Config.Encoder.Kind != "grpc" {
		return local, nil
	}
	remote, err := codec.NewRemoteEncoder(r.Config.Encoder.Addr, r.Config.Encoder.Timeout, local, logger)
	if err != nil {
		return nil, fmt.Errorf("connect encoder: %w", err)
	}
	r.closers = append(r.closers, remote)
	return remote, nil
}

// Close releases the encoder connection and the snapshot store.
func (r *Runtime) Close() error {
	var errs []error
	for i := len(r.closers) - 1; i >= 0; i-- {
		if err := r.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	r.closers = nil
	return errors.Join(errs...)
}

// #endregion constructor

// #region step
// Step runs one cycle on nodeID: a tension check that forwards symbolic into
// the engine, a glyph attempt, and a best-effort "reflection" cocoon.
func (r *Runtime) Step(ctx context.Context, nodeID, symbolic string) (StepResult, error) {
	ctx, span := tracer.Start(ctx, "core.Step")
	defer span.End()
	span.SetAttributes(attribute.String("node", nodeID))

	rep, ok := r.Graph.DetectTension(nodeID, symbolic)
	if !ok {
		err := fmt.Errorf("step %s: %w", nodeID, ErrUnknownNode)
		span.SetStatus(codes.Error, err.Error())
		return StepResult{}, err
	}
	if symbolic != "" {
		r.lastContext = symbolic
	}
	res := StepResult{Report: rep}

	if rep.Converging {
		if g, ok := r.Engine.FormGlyph(symbolic); ok {
			res.Glyph = &g
		}
	}

	res.Record = r.Engine.BuildCocoonRecord(nodeID, symbolic, rep.Xi, res.Glyph, map[string]any{
		"node_tension": rep.Tension,
		"has_xi":       rep.HasXi,
		"converging":   rep.Converging,
	})
	res.CocoonID, res.PersistErr = r.Journal.Save(ctx, res.Record, StepTypeTag)
	if res.PersistErr != nil {
		r.Logger.Warn("step cocoon not saved", slog.String("node", nodeID), slog.Any("error", res.PersistErr))
		span.RecordError(res.PersistErr)
	}
	span.SetAttributes(attribute.Float64("xi", rep.Xi), attribute.Bool("converging", rep.Converging))
	return res, nil
}

// #endregion step

// #region snapshots
// Checkpoint commits the engine's identity as a child of the last committed
// or restored version and records why.
func (r *Runtime) Checkpoint(note string) (state.Version, error) {
	if r.States == nil {
		return state.Version{}, ErrStateDisabled
	}
	v, err := r.States.Commit(r.Engine.Snapshot(), r.lastVersion)
	if err != nil {
		return state.Version{}, fmt.Errorf("checkpoint: %w", err)
	}
	r.lastVersion = v.ID

	entry := state.ProvenanceEntry{
		VersionID:     v.ID,
		Trigger:       "checkpoint",
		ContextDigest: contextDigest(r.lastContext),
		Xi:            r.Engine.MeasureTension().Latest,
		Note:          note,
		CreatedAt:     v.CreatedAt,
	}
	if glyphs := r.Engine.Glyphs(); len(glyphs) > 0 {
		entry.GlyphID = glyphs[len(glyphs)-1].ID
	}
	if err := r.States.LogProvenance(entry); err != nil {
		r.Logger.Warn("provenance not logged", slog.String("version", v.ID), slog.Any("error", err))
	}
	return v, nil
}

// RestoreLatest loads the active version into the engine.
func (r *Runtime) RestoreLatest() (state.Version, error) {
	if r.States == nil {
		return state.Version{}, ErrStateDisabled
	}
	v, err := r.States.GetCurrent()
	if err != nil {
		return state.Version{}, fmt.Errorf("restore: %w", err)
	}
	if err := r.Engine.Restore(v.Snapshot); err != nil {
		return state.Version{}, fmt.Errorf("restore %s: %w", v.ID, err)
	}
	r.lastVersion = v.ID
	if err := r.States.LogProvenance(state.ProvenanceEntry{
		VersionID: v.ID,
		Trigger:   "restore",
		Xi:        r.Engine.MeasureTension().Latest,
		CreatedAt: time.Now().UTC(),
	}); err != nil {
		r.Logger.Warn("provenance not logged", slog.String("version", v.ID), slog.Any("error", err))
	}
	return v, nil
}

func contextDigest(symbolic string) string {
	if symbolic == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(symbolic))
	return hex.EncodeToString(sum[:])
}

// #endregion snapshots

// #region telemetry
// Telemetry aggregates graph, engine, journal and counter state.
func (r *Runtime) Telemetry() Snapshot {
	glyphs := r.Engine.Glyphs()
	ids := make([]string, len(glyphs))
	for i, g := range glyphs {
		ids[i] = g.ID
	}
	return Snapshot{
		Graph:      r.Graph.Statistics(),
		Journal:    r.Journal.Stats(),
		Tension:    r.Engine.MeasureTension(),
		Counters:   r.Counters.Snapshot(),
		Glyphs:     ids,
		Attractors: r.Engine.DetectAttractors(),
	}
}

// #endregion telemetry
