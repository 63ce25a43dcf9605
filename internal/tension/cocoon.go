package tension

// StateKeyName is the payload key holding the engine's state summary. It
// matches journal.StateKey so the journal tracks it as the current state.
const StateKeyName = "quantum_state"

// BuildCocoonRecord assembles a serialisable cocoon payload from the inputs
// and the engine's current state. It does not touch the engine.
func (e *Engine) BuildCocoonRecord(nodeID, symbolic string, xi float64, glyph *Glyph, telemetry map[string]any) map[string]any {
	rec := map[string]any{
		"node_id":          nodeID,
		"symbolic_context": symbolic,
		"xi":               xi,
		StateKeyName:       e.stateSummary(),
	}
	if glyph != nil {
		rec["glyph"] = map[string]any{
			"id":        glyph.ID,
			"encoding":  append([]float64(nil), glyph.Encoding...),
			"step":      glyph.Step,
			"formed_at": glyph.FormedAt,
		}
	}
	if len(telemetry) > 0 {
		t := make(map[string]any, len(telemetry))
		for k, v := range telemetry {
			t[k] = v
		}
		rec["telemetry"] = t
	}
	return rec
}

func (e *Engine) stateSummary() map[string]any {
	cs := e.ConsciousnessState()
	return map[string]any{
		"step":           cs.Step,
		"latest_tension": cs.LatestTension,
		"mean_tension":   cs.MeanTension,
		"converging":     cs.Converging,
		"identity_norm":  cs.IdentityNorm,
		"attractors":     cs.Attractors,
		"glyphs":         cs.Glyphs,
	}
}
