package graph

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"math/cmplx"
	"math/rand/v2"
	"time"

	"github.com/Raiff1982/TheAi-sub000/internal/telemetry"
	"github.com/Raiff1982/TheAi-sub000/internal/tension"
	"github.com/Raiff1982/TheAi-sub000/internal/vecmath"
)

// #region interfaces
// Engine is the part of a tension engine the graph forwards context into.
type Engine interface {
	RecursiveUpdate(symbolic string, meta map[string]any) tension.Update
	ConsciousnessState() tension.ConsciousnessState
}

// Recorder persists cocoon payloads. *journal.Journal satisfies it.
type Recorder interface {
	Save(ctx context.Context, payload any, typeTag string) (string, error)
}

// #endregion interfaces

// #region store
const (
	DefaultDepth      = 3
	edgesPerNode      = 3
	coherenceCoupling = 0.8
)

type node struct {
	state     State
	neighbors []string // insertion order
	edges     map[string]*Edge
}

// Store is an in-memory undirected weighted graph of 5-dimensional nodes.
// A Store is single-writer; callers serialise access.
type Store struct {
	rng      *rand.Rand
	backend  vecmath.Backend
	logger   *slog.Logger
	hub      *telemetry.Hub
	engine   Engine
	recorder Recorder
	now      func() time.Time

	order        []string
	nodes        map[string]*node
	edgeCount    int
	collapsed    map[string]State
	entanglement map[string]Entanglement
}

// Option customises a Store.
type Option func(*Store)

func WithBackend(b vecmath.Backend) Option { return func(s *Store) { s.backend = b } }
func WithLogger(l *slog.Logger) Option { return func(s *Store) { s.logger = l } }
func WithHub(h *telemetry.Hub) Option { return func(s *Store) { s.hub = h } }
func WithRecorder(r Recorder) Option { return func(s *Store) { s.recorder = r } }
func WithClock(now func() time.Time) Option { return func(s *Store) { s.now = now } }

// WithEngine attaches a tension engine that receives symbolic context during
// DetectTension.
func WithEngine(e Engine) Option { return func(s *Store) { s.engine = e } }

// NewStore returns an empty store drawing randomness from rng.
func NewStore(rng *rand.Rand, opts ...Option) (*Store, error) {
	if rng == nil {
		return nil, &ValidationError{Field: "rng", Reason: "must not be nil"}
	}
	s := &Store{
		rng:          rng,
		backend:      vecmath.Pure{},
		logger:       slog.Default(),
		now:          time.Now,
		nodes:        map[string]*node{},
		collapsed:    map[string]State{},
		entanglement: map[string]Entanglement{},
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With(slog.String("component", "graph"))
	return s, nil
}

// NodeID returns the id of the i-th node.
func NodeID(i int) string { return fmt.Sprintf("QNode_%d", i) }

// #endregion store

// #region initialize
// Initialize replaces the graph with nodeCount random nodes. Each node after
// the first is wired to up to three random earlier nodes; repeated picks of
// the same pair keep a single edge carrying the last weight drawn.
func (s *Store) Initialize(nodeCount int) error {
	if nodeCount < 1 {
		return &ValidationError{Field: "node_count", Reason: "must be >= 1"}
	}
	s.order = make([]string, 0, nodeCount)
	s.nodes = make(map[string]*node, nodeCount)
	s.edgeCount = 0
	s.collapsed = map[string]State{}
	s.entanglement = map[string]Entanglement{}

	for i := 0; i < nodeCount; i++ {
		id := NodeID(i)
		s.order = append(s.order, id)
		s.nodes[id] = &node{state: s.randomState(), edges: map[string]*Edge{}}
		if i == 0 {
			continue
		}
		for k := 0; k < edgesPerNode; k++ {
			j := s.rng.IntN(i)
			s.link(id, NodeID(j), vecmath.UnitInterval(s.rng), false)
		}
	}
	s.logger.Debug("graph initialised", slog.Int("nodes", nodeCount), slog.Int("edges", s.edgeCount))
	return nil
}

func (s *Store) randomState() State {
	var st State
	for i := range st {
		st[i] = vecmath.Uniform(s.rng, -1, 1)
	}
	return st
}

// link sets the undirected edge a-b, creating it if needed.
func (s *Store) link(a, b string, weight float64, entangled bool) {
	na, nb := s.nodes[a], s.nodes[b]
	if e, ok := na.edges[b]; ok {
		e.Weight, e.Entangled = weight, entangled
		r := nb.edges[a]
		r.Weight, r.Entangled = weight, entangled
		return
	}
	na.edges[b] = &Edge{To: b, Weight: weight, Entangled: entangled}
	nb.edges[a] = &Edge{To: a, Weight: weight, Entangled: entangled}
	na.neighbors = append(na.neighbors, b)
	nb.neighbors = append(nb.neighbors, a)
	s.edgeCount++
}

// #endregion initialize

// #region propagate
// Propagate walks outward from originID up to depth hops, visiting each node
// at most once. The walk is last-in first-out over neighbours in insertion
// order; edge weights never affect the order. An unknown origin yields nil.
func (s *Store) Propagate(originID string, depth int) []Visit {
	if _, ok := s.nodes[originID]; !ok {
		s.logger.Warn("propagate from unknown node", slog.String("node", originID))
		return nil
	}
	if depth < 0 {
		depth = DefaultDepth
	}

	type stackItem struct {
		id    string
		depth int
	}
	stack := []stackItem{{originID, 0}}
	visited := map[string]bool{}
	var out []Visit

	for len(stack) > 0 {
		item := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if visited[item.id] || item.depth > depth {
			continue
		}
		visited[item.id] = true
		n := s.nodes[item.id]
		out = append(out, Visit{ID: item.id, Depth: item.depth, State: n.state})
		for _, nb := range n.neighbors {
			stack = append(stack, stackItem{nb, item.depth + 1})
		}
	}

	s.hub.Emit("graph", "propagate", originID, map[string]float64{"visited": float64(len(out))})
	return out
}

// #endregion propagate

// #region tension
// DetectTension returns the population standard deviation of the node's
// vector. When an engine is attached and symbolic is non-empty, the context
// is forwarded and the engine's xi is merged into the report. Engine failures
// never affect the scalar.
func (s *Store) DetectTension(nodeID, symbolic string) (TensionReport, bool) {
	n, ok := s.nodes[nodeID]
	if !ok {
		return TensionReport{}, false
	}
	rep := TensionReport{NodeID: nodeID, Tension: s.backend.StdDev(n.state[:])}

	if s.engine != nil && symbolic != "" {
		if u, ok := s.forward(nodeID, symbolic, rep.Tension); ok {
			rep.Xi, rep.Converging, rep.HasXi = u.Xi, u.Converging, true
		}
	}

	fields := map[string]float64{"tension": rep.Tension}
	if rep.HasXi {
		fields["xi"] = rep.Xi
	}
	s.hub.Emit("graph", "tension", nodeID, fields)
	return rep, true
}

func (s *Store) forward(nodeID, symbolic string, scalar float64) (u tension.Update, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Warn("tension engine failed", slog.String("node", nodeID), slog.Any("panic", r))
			ok = false
		}
	}()
	return s.engine.RecursiveUpdate(symbolic, map[string]any{"node_tension": scalar}), true
}

// #endregion tension

// #region collapse
// Collapse rounds each component of the node's vector to two decimals, stores
// the result as the node's state and returns it. Collapsing twice is a no-op.
func (s *Store) Collapse(nodeID string) (State, bool) {
	n, ok := s.nodes[nodeID]
	if !ok {
		return State{}, false
	}
	for i, v := range n.state {
		n.state[i] = math.Round(v*100) / 100
	}
	s.collapsed[nodeID] = n.state
	s.hub.Emit("graph", "collapse", nodeID, nil)
	return n.state, true
}

// Collapsed returns the collapsed state recorded for nodeID.
func (s *Store) Collapsed(nodeID string) (State, bool) {
	st, ok := s.collapsed[nodeID]
	return st, ok
}

// #endregion collapse

// #region entangle
// Entangle couples a and b with a fresh random state and a weight-1.0
// entangled edge. Coherence is |0.8 * psi_a * conj(psi_b)| with
// psi = thought + i*emotion; energy is coherence squared. It reports false for
// a self pair, an unknown id or an already entangled pair.
func (s *Store) Entangle(a, b string) bool {
	if a == b {
		return false
	}
	na, okA := s.nodes[a]
	nb, okB := s.nodes[b]
	if !okA || !okB {
		return false
	}
	key := pairKey(a, b)
	if _, exists := s.entanglement[key]; exists {
		return false
	}

	psiA := complex(na.state[0], na.state[3])
	psiB := complex(nb.state[0], nb.state[3])
	coherence := cmplx.Abs(complex(coherenceCoupling, 0) * psiA * cmplx.Conj(psiB))

	rec := Entanglement{
		A:         min(a, b),
		B:         max(a, b),
		State:     s.randomState(),
		Coherence: coherence,
		Energy:    coherence * coherence,
		CreatedAt: s.now().UTC(),
	}
	s.entanglement[key] = rec
	s.link(a, b, 1.0, true)

	s.hub.Emit("graph", "entangle", key, map[string]float64{"coherence": rec.Coherence, "energy": rec.Energy})
	s.persist("entanglement", map[string]any{
		"pair":      []string{rec.A, rec.B},
		"state":     rec.State.Map(),
		"coherence": rec.Coherence,
		"energy":    rec.Energy,
	})
	return true
}

// Entanglement returns the record for the unordered pair a, b.
func (s *Store) Entanglement(a, b string) (Entanglement, bool) {
	rec, ok := s.entanglement[pairKey(a, b)]
	return rec, ok
}

func pairKey(a, b string) string {
	if b < a {
		a, b = b, a
	}
	return a + "|" + b
}

func (s *Store) persist(typeTag string, payload map[string]any) {
	if s.recorder == nil {
		return
	}
	if _, err := s.recorder.Save(context.Background(), payload, typeTag); err != nil {
		s.logger.Warn("persist cocoon failed", slog.String("type", typeTag), slog.Any("error", err))
	}
}

// #endregion entangle

// #region node-state
// UpdateNodeState replaces the node's vector. It reports false with no error
// for an unknown id, and false with a *ValidationError unless exactly the five
// dimension keys are present.
func (s *Store) UpdateNodeState(nodeID string, values map[string]float64) (bool, error) {
	n, ok := s.nodes[nodeID]
	if !ok {
		return false, nil
	}
	st, err := StateFromMap(values)
	if err != nil {
		return false, err
	}
	n.state = st
	s.hub.Emit("graph", "update", nodeID, nil)
	return true, nil
}

// State returns a copy of the node's vector.
func (s *Store) State(nodeID string) (State, bool) {
	n, ok := s.nodes[nodeID]
	if !ok {
		return State{}, false
	}
	return n.state, true
}

// Node returns a copy of the node with its edges in insertion order.
func (s *Store) Node(nodeID string) (Node, bool) {
	n, ok := s.nodes[nodeID]
	if !ok {
		return Node{}, false
	}
	out := Node{ID: nodeID, State: n.state, Neighbors: make([]Edge, 0, len(n.neighbors))}
	for _, nb := range n.neighbors {
		out.Neighbors = append(out.Neighbors, *n.edges[nb])
	}
	return out, true
}

// IDs returns every node id in creation order.
func (s *Store) IDs() []string {
	return append([]string(nil), s.order...)
}

// #endregion node-state

// #region statistics
// Statistics summarises the graph and, when attached, the engine.
type Statistics struct {
	Nodes          int                         `json:"nodes"`
	Edges          int                         `json:"edges"`
	EntangledPairs int                         `json:"entangled_pairs"`
	Collapsed      int                         `json:"collapsed"`
	Dimensions     int                         `json:"dimensions"`
	Consciousness  *tension.ConsciousnessState `json:"consciousness,omitempty"`
}

// Statistics reports node, edge and entanglement counts.
func (s *Store) Statistics() Statistics {
	st := Statistics{
		Nodes:          len(s.nodes),
		Edges:          s.edgeCount,
		EntangledPairs: len(s.entanglement),
		Collapsed:      len(s.collapsed),
		Dimensions:     len(Dimensions),
	}
	if s.engine != nil {
		cs := s.engine.ConsciousnessState()
		st.Consciousness = &cs
	}
	return st
}

// #endregion statistics
