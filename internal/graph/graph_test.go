package graph

import (
	"context"
	"math"
	"math/cmplx"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Raiff1982/TheAi-sub000/internal/telemetry"
	"github.com/Raiff1982/TheAi-sub000/internal/tension"
	"github.com/Raiff1982/TheAi-sub000/internal/vecmath"
)

func newInitialized(t *testing.T, n int, opts ...Option) *Store {
	t.Helper()
	s, err := NewStore(vecmath.NewRNG(42), opts...)
	require.NoError(t, err)
	require.NoError(t, s.Initialize(n))
	return s
}

// manual builds a store with zero-state nodes and no edges.
func manual(t *testing.T, ids ...string) *Store {
	t.Helper()
	s, err := NewStore(vecmath.NewRNG(1))
	require.NoError(t, err)
	for _, id := range ids {
		s.order = append(s.order, id)
		s.nodes[id] = &node{edges: map[string]*Edge{}}
	}
	return s
}

func TestInitialize(t *testing.T) {
	s := newInitialized(t, 128)
	stats := s.Statistics()
	assert.Equal(t, 128, stats.Nodes)
	assert.Equal(t, 5, stats.Dimensions)
	assert.Nil(t, stats.Consciousness)

	edges := 0
	for i, id := range s.IDs() {
		assert.Equal(t, NodeID(i), id)
		n, ok := s.Node(id)
		require.True(t, ok)
		for _, v := range n.State {
			assert.True(t, v >= -1 && v <= 1, "%s state %v", id, v)
		}
		earlier := 0
		for _, e := range n.Neighbors {
			assert.True(t, e.Weight > 0 && e.Weight <= 1, "weight %v", e.Weight)
			assert.False(t, e.Entangled)
			back, ok := s.Node(e.To)
			require.True(t, ok)
			assert.Contains(t, back.Neighbors, Edge{To: id, Weight: e.Weight})
			j, err := strconv.Atoi(strings.TrimPrefix(e.To, "QNode_"))
			require.NoError(t, err)
			if j < i {
				earlier++
			}
			edges++
		}
		if i > 0 {
			assert.True(t, earlier >= 1 && earlier <= 3, "%s has %d earlier neighbours", id, earlier)
		}
	}
	assert.Equal(t, stats.Edges*2, edges, "every edge seen from both ends")
	assert.LessOrEqual(t, stats.Edges, 3*127)
}

func TestInitialize_Deterministic(t *testing.T) {
	a := newInitialized(t, 32)
	b := newInitialized(t, 32)
	for _, id := range a.IDs() {
		na, _ := a.Node(id)
		nb, _ := b.Node(id)
		assert.Equal(t, na, nb)
	}
}

func TestInitialize_Invalid(t *testing.T) {
	s, err := NewStore(vecmath.NewRNG(1))
	require.NoError(t, err)
	var verr *ValidationError
	assert.ErrorAs(t, s.Initialize(0), &verr)

	_, err = NewStore(nil)
	assert.ErrorAs(t, err, &verr)
}

func TestInitialize_SingleNode(t *testing.T) {
	s := newInitialized(t, 1)
	assert.Equal(t, 0, s.Statistics().Edges)
	visits := s.Propagate("QNode_0", 3)
	require.Len(t, visits, 1)
	assert.Equal(t, "QNode_0", visits[0].ID)
}

func diamond(t *testing.T) *Store {
	s := manual(t, "A", "B", "C", "D", "E")
	s.link("A", "B", 0.9, false)
	s.link("A", "C", 0.1, false)
	s.link("B", "D", 0.5, false)
	s.link("C", "D", 0.5, false)
	s.link("D", "E", 0.5, false)
	return s
}

func ids(visits []Visit) []string {
	out := make([]string, len(visits))
	for i, v := range visits {
		out[i] = v.ID
	}
	return out
}

func TestPropagate_Order(t *testing.T) {
	s := diamond(t)

	visits := s.Propagate("A", 3)
	assert.Equal(t, []string{"A", "C", "D", "E", "B"}, ids(visits))
	depths := make([]int, len(visits))
	for i, v := range visits {
		depths[i] = v.Depth
	}
	assert.Equal(t, []int{0, 1, 2, 3, 3}, depths)

	assert.Equal(t, []string{"A", "C", "D", "B"}, ids(s.Propagate("A", 2)))
	assert.Equal(t, []string{"A"}, ids(s.Propagate("A", 0)))
}

func TestPropagate_WeightAgnostic(t *testing.T) {
	s := diamond(t)
	before := ids(s.Propagate("A", 3))
	s.link("A", "B", 0.01, false)
	s.link("A", "C", 1.0, false)
	assert.Equal(t, before, ids(s.Propagate("A", 3)))
}

func TestPropagate_UniqueAndBounded(t *testing.T) {
	s := newInitialized(t, 64)
	for _, depth := range []int{0, 1, 2, 3, 5} {
		visits := s.Propagate("QNode_10", depth)
		require.NotEmpty(t, visits)
		assert.Equal(t, "QNode_10", visits[0].ID)
		seen := map[string]bool{}
		for _, v := range visits {
			assert.False(t, seen[v.ID], "duplicate %s", v.ID)
			seen[v.ID] = true
			assert.LessOrEqual(t, v.Depth, depth)
			st, _ := s.State(v.ID)
			assert.Equal(t, st, v.State)
		}
	}
}

func TestPropagate_UnknownOrigin(t *testing.T) {
	s := newInitialized(t, 4)
	assert.Empty(t, s.Propagate("QNode_99", 3))
}

func TestDetectTension(t *testing.T) {
	s := newInitialized(t, 8)
	st, _ := s.State("QNode_3")
	rep, ok := s.DetectTension("QNode_3", "")
	require.True(t, ok)

	var mean float64
	for _, v := range st {
		mean += v / 5
	}
	var ss float64
	for _, v := range st {
		ss += (v - mean) * (v - mean)
	}
	assert.InDelta(t, math.Sqrt(ss/5), rep.Tension, 1e-12)
	assert.False(t, rep.HasXi)

	_, ok = s.DetectTension("nope", "ctx")
	assert.False(t, ok)
}

type fakeEngine struct {
	calls int
	panic bool
}

func (f *fakeEngine) RecursiveUpdate(string, map[string]any) tension.Update {
	f.calls++
	if f.panic {
		panic("engine down")
	}
	return tension.Update{Step: int64(f.calls), Xi: 0.25, Converging: true}
}

func (f *fakeEngine) ConsciousnessState() tension.ConsciousnessState {
	return tension.ConsciousnessState{Step: int64(f.calls)}
}

func TestDetectTension_ForwardsContext(t *testing.T) {
	eng := &fakeEngine{}
	s := newInitialized(t, 8, WithEngine(eng))
	plain := newInitialized(t, 8)

	rep, ok := s.DetectTension("QNode_1", "symbolic")
	require.True(t, ok)
	assert.True(t, rep.HasXi)
	assert.Equal(t, 0.25, rep.Xi)
	assert.True(t, rep.Converging)

	want, _ := plain.DetectTension("QNode_1", "symbolic")
	assert.Equal(t, want.Tension, rep.Tension)

	_, _ = s.DetectTension("QNode_1", "")
	assert.Equal(t, 1, eng.calls, "empty context is not forwarded")
}

func TestDetectTension_EngineFailureKeepsScalar(t *testing.T) {
	eng := &fakeEngine{panic: true}
	s := newInitialized(t, 8, WithEngine(eng))
	plain := newInitialized(t, 8)

	rep, ok := s.DetectTension("QNode_2", "ctx")
	require.True(t, ok)
	assert.False(t, rep.HasXi)
	want, _ := plain.DetectTension("QNode_2", "")
	assert.Equal(t, want.Tension, rep.Tension)
}

func TestDetectTension_RealEngine(t *testing.T) {
	cfg := tension.DefaultConfig()
	cfg.NoiseVariance = 0
	eng, err := tension.NewEngine(cfg, vecmath.NewRNG(5))
	require.NoError(t, err)
	s := newInitialized(t, 8, WithEngine(eng))

	rep, ok := s.DetectTension("QNode_0", "hello")
	require.True(t, ok)
	assert.True(t, rep.HasXi)
	assert.InDelta(t, 1.0, rep.Xi, 1e-9)

	stats := s.Statistics()
	require.NotNil(t, stats.Consciousness)
	assert.EqualValues(t, 1, stats.Consciousness.Step)
}

func TestCollapse(t *testing.T) {
	s := newInitialized(t, 8)
	first, ok := s.Collapse("QNode_4")
	require.True(t, ok)
	for _, v := range first {
		assert.InDelta(t, v, math.Round(v*100)/100, 1e-12)
	}
	second, ok := s.Collapse("QNode_4")
	require.True(t, ok)
	assert.Equal(t, first, second)

	st, _ := s.State("QNode_4")
	assert.Equal(t, first, st)
	c, ok := s.Collapsed("QNode_4")
	require.True(t, ok)
	assert.Equal(t, first, c)
	assert.Equal(t, 1, s.Statistics().Collapsed)

	_, ok = s.Collapse("missing")
	assert.False(t, ok)
}

func TestCollapse_Rounding(t *testing.T) {
	s := manual(t, "n")
	ok, err := s.UpdateNodeState("n", map[string]float64{Thought: 0.123, Time: -0.456, Speed: 0.999, Emotion: -1, Space: 0.005})
	require.NoError(t, err)
	require.True(t, ok)
	st, _ := s.Collapse("n")
	assert.InDeltaSlice(t, []float64{0.12, -0.46, 1.0, -1, 0.01}, st[:], 1e-12)
}

func TestEntangle(t *testing.T) {
	s := newInitialized(t, 16)
	edgesBefore := s.Statistics().Edges

	assert.False(t, s.Entangle("QNode_1", "QNode_1"))
	assert.False(t, s.Entangle("QNode_1", "ghost"))
	assert.Zero(t, s.Statistics().EntangledPairs)

	require.True(t, s.Entangle("QNode_9", "QNode_2"))
	assert.False(t, s.Entangle("QNode_2", "QNode_9"), "pair already entangled")

	rec, ok := s.Entanglement("QNode_2", "QNode_9")
	require.True(t, ok)
	assert.Equal(t, "QNode_2", rec.A)
	assert.Equal(t, "QNode_9", rec.B)

	a, _ := s.State("QNode_9")
	b, _ := s.State("QNode_2")
	want := cmplx.Abs(0.8 * complex(a[0], a[3]) * cmplx.Conj(complex(b[0], b[3])))
	assert.InDelta(t, want, rec.Coherence, 1e-12)
	assert.InDelta(t, want*want, rec.Energy, 1e-12)
	for _, v := range rec.State {
		assert.True(t, v >= -1 && v <= 1)
	}

	entangled := 0
	for _, id := range []string{"QNode_9", "QNode_2"} {
		n, _ := s.Node(id)
		for _, e := range n.Neighbors {
			if e.Entangled {
				entangled++
				assert.Equal(t, 1.0, e.Weight)
			}
		}
	}
	assert.Equal(t, 2, entangled, "one entangled edge seen from both ends")
	assert.Equal(t, 1, s.Statistics().EntangledPairs)
	assert.LessOrEqual(t, s.Statistics().Edges-edgesBefore, 1)
}

func TestEntangle_ReplacesRandomEdge(t *testing.T) {
	s := diamond(t)
	before := s.Statistics().Edges
	require.True(t, s.Entangle("A", "B"))
	assert.Equal(t, before, s.Statistics().Edges)
	n, _ := s.Node("A")
	assert.Equal(t, Edge{To: "B", Weight: 1.0, Entangled: true}, n.Neighbors[0])
	assert.Equal(t, []string{"A", "C", "D", "E", "B"}, ids(s.Propagate("A", 3)), "neighbour order kept")
}

type captureRecorder struct {
	types []string
}

func (c *captureRecorder) Save(_ context.Context, _ any, typeTag string) (string, error) {
	c.types = append(c.types, typeTag)
	return "id", nil
}

func TestEntangle_PersistsAndEmits(t *testing.T) {
	rec := &captureRecorder{}
	hub := telemetry.NewHub()
	counters := telemetry.NewCounters()
	hub.Subscribe(counters)
	s := newInitialized(t, 4, WithRecorder(rec), WithHub(hub))

	require.True(t, s.Entangle("QNode_0", "QNode_3"))
	assert.Equal(t, []string{"entanglement"}, rec.types)
	ev, ok := counters.Last("graph", "entangle")
	require.True(t, ok)
	assert.Equal(t, "QNode_0|QNode_3", ev.Subject)
	assert.Contains(t, ev.Fields, "coherence")
}

func TestUpdateNodeState(t *testing.T) {
	s := newInitialized(t, 4)
	full := map[string]float64{Thought: 0.1, Time: 0.2, Speed: 0.3, Emotion: 0.4, Space: 0.5}

	ok, err := s.UpdateNodeState("QNode_1", full)
	require.NoError(t, err)
	require.True(t, ok)
	st, _ := s.State("QNode_1")
	assert.Equal(t, State{0.1, 0.2, 0.3, 0.4, 0.5}, st)
	assert.Equal(t, full, st.Map())

	ok, err = s.UpdateNodeState("ghost", full)
	assert.NoError(t, err)
	assert.False(t, ok)

	bad := []map[string]float64{
		{Thought: 1, Time: 1, Speed: 1, Emotion: 1},
		{Thought: 1, Time: 1, Speed: 1, Emotion: 1, Space: 1, "mood": 1},
		{Thought: 1, Time: 1, Speed: 1, Emotion: 1, "place": 1},
	}
	for _, m := range bad {
		ok, err := s.UpdateNodeState("QNode_1", m)
		assert.False(t, ok)
		var verr *ValidationError
		assert.ErrorAs(t, err, &verr)
		after, _ := s.State("QNode_1")
		assert.Equal(t, st, after, "rejected write leaves state unchanged")
	}
}

func TestScenario_ThirtyTwoNodes(t *testing.T) {
	s := newInitialized(t, 32)
	origin := NodeID(0)

	visits := s.Propagate(origin, 3)
	require.NotEmpty(t, visits)
	assert.Equal(t, origin, visits[0].ID)
	st, _ := s.State(origin)
	assert.Equal(t, st, visits[0].State)

	rep, ok := s.DetectTension(origin, "")
	require.True(t, ok)
	assert.GreaterOrEqual(t, rep.Tension, 0.0)
	assert.LessOrEqual(t, rep.Tension, 2.0)

	collapsed, ok := s.Collapse(origin)
	require.True(t, ok)
	for _, v := range collapsed {
		assert.InDelta(t, v, math.Round(v*100)/100, 1e-12)
	}
	again, _ := s.Collapse(origin)
	assert.Equal(t, collapsed, again)
}
