package metrics

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryReturnsSameMetric(t *testing.T) {
	r := NewRegistry("unilang")
	a := r.Counter("keys_total", "keys")
	b := r.Counter("keys_total", "ignored")
	assert.Same(t, a, b)
	assert.Equal(t, "unilang_keys_total", a.Name())
}

func TestHistogramBuckets(t *testing.T) {
	r := NewRegistry("")
	h := r.Histogram("lat", "latency", []float64{1, 0.1, 0.5})

	h.Observe(0.05)
	h.Observe(0.1) // on a bound
	h.Observe(0.3)
	h.Observe(2)

	s := h.Snapshot()
	assert.Equal(t, []float64{0.1, 0.5, 1}, s.Buckets)
	assert.Equal(t, []uint64{2, 3, 3, 4}, s.Counts)
	assert.Equal(t, uint64(4), s.Count)
	assert.InDelta(t, 2.45, s.Sum, 1e-9)
	assert.InDelta(t, 0.6125, s.Mean(), 1e-9)
}

func TestQuantile(t *testing.T) {
	r := NewRegistry("")
	h := r.Histogram("lat", "latency", []float64{1, 2, 4})
	for i := 0; i < 10; i++ {
		h.Observe(1.5)
	}

	s := h.Snapshot()
	q := s.Quantile(0.5)
	assert.Greater(t, q, 1.0)
	assert.LessOrEqual(t, q, 2.0)
	assert.Zero(t, HistogramSnapshot{}.Quantile(0.9))
}

func TestObserveDuration(t *testing.T) {
	h := NewRegistry("").Histogram("d", "", nil)
	h.ObserveDuration(2 * time.Millisecond)
	assert.Equal(t, uint64(1), h.Snapshot().Count)
	assert.Equal(t, LatencyBuckets, h.Snapshot().Buckets)
}

func TestWritePrometheus(t *testing.T) {
	r := NewRegistry("unilang")
	m := NewEngine(r)
	m.Keys.Add(3)
	m.TableSize.Set(42)
	m.HandleKey.Observe(0.00002)

	var buf bytes.Buffer
	require.NoError(t, r.WritePrometheus(&buf))
	out := buf.String()

	assert.Contains(t, out, "# TYPE unilang_keys_total counter\nunilang_keys_total 3\n")
	assert.Contains(t, out, "unilang_table_size 42\n")
	assert.Contains(t, out, `unilang_handle_key_seconds_bucket{le="5e-05"} 1`)
	assert.Contains(t, out, `unilang_handle_key_seconds_bucket{le="+Inf"} 1`)
	assert.Contains(t, out, "unilang_handle_key_seconds_count 1\n")

	// counters are emitted in name order
	assert.Less(t, strings.Index(out, "unilang_injector_errors_total"), strings.Index(out, "unilang_keys_total"))
}

func TestWriteJSON(t *testing.T) {
	r := NewRegistry("unilang")
	m := NewEngine(r)
	m.Replacements.Inc()

	var buf bytes.Buffer
	require.NoError(t, r.WriteJSON(&buf))

	var snap Snapshot
	require.NoError(t, json.Unmarshal(buf.Bytes(), &snap))
	assert.Equal(t, uint64(1), snap.Counters["unilang_replacements_total"])
	assert.Contains(t, snap.Histograms, "unilang_handle_key_seconds")
}
