package telemetry

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHub_NotifiesAllObserversInOrder(t *testing.T) {
	h := NewHub()
	var order []string
	h.Subscribe(ObserverFunc(func(e Event) { order = append(order, "a:"+e.Op) }))
	h.Subscribe(ObserverFunc(func(e Event) { order = append(order, "b:"+e.Op) }))
	require.Equal(t, 2, h.Len())

	h.Emit("graph", "collapse", "QNode_0", nil)
	assert.Equal(t, []string{"a:collapse", "b:collapse"}, order)
}

func TestHub_StampsTime(t *testing.T) {
	h := NewHub()
	var got Event
	h.Subscribe(ObserverFunc(func(e Event) { got = e }))
	h.Emit("tension", "recursive_update", "", map[string]float64{"xi": 0.5})
	assert.False(t, got.At.IsZero())
	assert.Equal(t, 0.5, got.Fields["xi"])
}

func TestHub_NilIsNoop(t *testing.T) {
	var h *Hub
	h.Subscribe(NewCounters())
	h.Emit("graph", "collapse", "", nil)
	assert.Zero(t, h.Len())
}

func TestCounters(t *testing.T) {
	c := NewCounters()
	h := NewHub()
	h.Subscribe(c)
	h.Emit("graph", "entangle", "a|b", map[string]float64{"coherence": 0.2})
	h.Emit("graph", "entangle", "c|d", nil)
	h.Emit("journal", "save", "x", nil)

	assert.EqualValues(t, 2, c.Count("graph", "entangle"))
	assert.EqualValues(t, 1, c.Count("journal", "save"))
	assert.Zero(t, c.Count("journal", "rotate"))

	last, ok := c.Last("graph", "entangle")
	require.True(t, ok)
	assert.Equal(t, "c|d", last.Subject)

	assert.Equal(t, []string{"graph/entangle", "journal/save"}, c.Keys())
	assert.Equal(t, map[string]int64{"graph/entangle": 2, "journal/save": 1}, c.Snapshot())
}

func TestPrometheusObserver(t *testing.T) {
	reg := prometheus.NewRegistry()
	p, err := NewPrometheusObserver(reg)
	require.NoError(t, err)

	h := NewHub()
	h.Subscribe(p)
	h.Emit("tension", "recursive_update", "", map[string]float64{"xi": 0.25})
	h.Emit("tension", "recursive_update", "", map[string]float64{"xi": 0.125})

	assert.Equal(t, 2.0, testutil.ToFloat64(p.events.WithLabelValues("tension", "recursive_update")))
	assert.Equal(t, 0.125, testutil.ToFloat64(p.fields.WithLabelValues("tension", "recursive_update", "xi")))

	_, err = NewPrometheusObserver(reg)
	assert.Error(t, err, "duplicate registration")
}
