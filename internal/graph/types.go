package graph

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// #region dimensions
// Dimension names, in vector order.
const (
	Thought = "thought"
	Time    = "time"
	Speed   = "speed"
	Emotion = "emotion"
	Space   = "space"
)

// Dimensions lists the state keys in vector order.
var Dimensions = [5]string{Thought, Time, Speed, Emotion, Space}

// State is a node's 5-dimensional vector.
type State [5]float64

// Map returns the state keyed by dimension name.
func (s State) Map() map[string]float64 {
	m := make(map[string]float64, len(Dimensions))
	for i, name := range Dimensions {
		m[name] = s[i]
	}
	return m
}

// StateFromMap builds a State from exactly the five dimension keys.
func StateFromMap(m map[string]float64) (State, error) {
	var s State
	if len(m) != len(Dimensions) {
		return s, &ValidationError{Field: "state", Reason: fmt.Sprintf("want %d dimensions, got %d (%s)", len(Dimensions), len(m), keys(m))}
	}
	for i, name := range Dimensions {
		v, ok := m[name]
		if !ok {
			return s, &ValidationError{Field: "state", Reason: fmt.Sprintf("missing dimension %q (got %s)", name, keys(m))}
		}
		s[i] = v
	}
	return s, nil
}

func keys(m map[string]float64) string {
	ks := make([]string, 0, len(m))
	for k := range m {
		ks = append(ks, k)
	}
	sort.Strings(ks)
	return strings.Join(ks, ",")
}

// #endregion dimensions

// #region types
// Edge is an undirected link as seen from one endpoint.
type Edge struct {
	To        string
	Weight    float64
	Entangled bool
}

// Node is a read-only copy of a graph node.
type Node struct {
	ID        string
	State     State
	Neighbors []Edge
}

// Visit is one step of a propagation, in visit order.
type Visit struct {
	ID    string
	Depth int
	State State
}

// Entanglement records one synthetic coupling between two nodes.
type Entanglement struct {
	A         string
	B         string
	State     State
	Coherence float64
	Energy    float64
	CreatedAt time.Time
}

// TensionReport is the result of a tension check on one node.
type TensionReport struct {
	NodeID  string
	Tension float64
	// Xi and HasXi are set when symbolic context was forwarded to an engine.
	Xi         float64
	Converging bool
	HasXi      bool
}

// ValidationError reports a malformed vector or parameter on a write path.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("graph: invalid %s: %s", e.Field, e.Reason)
}

// #endregion types
