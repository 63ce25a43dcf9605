package tension

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"log/slog"
	"math"
	"time"

	"github.com/Raiff1982/TheAi-sub000/internal/vecmath"
)

// Glyph is an immutable spectral fingerprint of a converged tension window.
type Glyph struct {
	ID       string    `json:"id"`
	Encoding []float64 `json:"encoding"`
	Step     int64     `json:"step"`
	FormedAt time.Time `json:"formed_at"`
	Context  string    `json:"context"`
}

const glyphDomain = "tension/glyph/v1"

// FormGlyph compresses the full tension window, tagged with symbolic context,
// into a glyph. It returns false
// unless the engine is converging and the window is full. Forming a glyph
// twice over the same window and context returns the first glyph.
func (e *Engine) FormGlyph(symbolic string) (Glyph, bool) {
	conv, _ := e.CheckConvergence()
	samples := e.tension.items()
	if !conv || len(samples) < e.cfg.HistoryWindow {
		return Glyph{}, false
	}

	id := glyphID(samples, symbolic)
	if i, ok := e.glyphByID[id]; ok {
		return e.glyphs[i].clone(), true
	}

	mags := e.backend.FFTMagnitude(samples)
	g := Glyph{
		ID:       id,
		Encoding: vecmath.Normalize(e.backend, vecmath.Fit(mags, e.cfg.GlyphLength)),
		Step:     e.step,
		FormedAt: e.now().UTC(),
		Context:  symbolic,
	}
	e.glyphByID[id] = len(e.glyphs)
	e.glyphs = append(e.glyphs, g)

	e.hub.Emit("tension", "glyph", id, map[string]float64{"step": float64(e.step)})
	e.persist("glyph", map[string]any{"glyph": g, StateKeyName: e.stateSummary()})
	return g.clone(), true
}

// Glyphs returns every glyph formed so far, oldest first.
func (e *Engine) Glyphs() []Glyph {
	out := make([]Glyph, len(e.glyphs))
	for i, g := range e.glyphs {
		out[i] = g.clone()
	}
	return out
}

func (g Glyph) clone() Glyph {
	g.Encoding = append([]float64(nil), g.Encoding...)
	return g
}

// glyphID digests the tension window and context under a domain tag.
func glyphID(samples []float64, symbolic string) string {
	h := sha256.New()
	h.Write([]byte(glyphDomain))
	h.Write([]byte{0})
	var buf [8]byte
	for _, x := range samples {
		binary.BigEndian.PutUint64(buf[:], math.Float64bits(x))
		h.Write(buf[:])
	}
	h.Write([]byte{0})
	h.Write([]byte(symbolic))
	return hex.EncodeToString(h.Sum(nil))
}

// persist hands payload to the recorder, if any. Failures are logged only.
func (e *Engine) persist(typeTag string, payload map[string]any) {
	if e.recorder == nil {
		return
	}
	if _, err := e.recorder.Save(context.Background(), payload, typeTag); err != nil {
		e.logger.Warn("persist cocoon failed", slog.String("type", typeTag), slog.Any("error", err))
	}
}
