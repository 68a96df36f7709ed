package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// gathered returns the summed value of every series of the named family
func gathered(t *testing.T, reg *prometheus.Registry, name string, labels map[string]string) float64 {
	t.Helper()

	families, err := reg.Gather()
	require.NoError(t, err)

	var total float64
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, metric := range mf.GetMetric() {
			if !hasLabels(metric.GetLabel(), labels) {
				continue
			}
			if c := metric.GetCounter(); c != nil {
				total += c.GetValue()
			}
			if g := metric.GetGauge(); g != nil {
				total += g.GetValue()
			}
		}
	}
	return total
}

func hasLabels(pairs []*dto.LabelPair, want map[string]string) bool {
	matched := 0
	for _, p := range pairs {
		if v, ok := want[p.GetName()]; ok && v == p.GetValue() {
			matched++
		}
	}
	return matched == len(want)
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics

	assert.NotPanics(t, func() {
		m.SetActiveDocuments(3)
		m.RecordDocumentCreated()
		m.RecordRefinement(10, 1, 0, 0.2)
		m.RecordPlaybackTransition("PLAYING")
		m.RecordRender(1, 1024)
		m.RecordHTTPRequest("GET", "/health", "200", 0.01)
	})
}

func TestRecordRefinement(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.RecordRefinement(12, 2, 1, 0.05)
	m.RecordRefinement(3, 0, 0, 0.01)

	assert.Equal(t, 15.0, gathered(t, reg, "narration_segments_refined_total", nil))
	assert.Equal(t, 2.0, gathered(t, reg, "narration_refiner_fallbacks_total", nil))
	assert.Equal(t, 1.0, gathered(t, reg, "narration_degenerate_segments_total", nil))
}

func TestRecordPlaybackTransition(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.RecordPlaybackTransition("PLAYING")
	m.RecordPlaybackTransition("PLAYING")
	m.RecordPlaybackTransition("PAUSED")

	name := "narration_playback_transitions_total"
	assert.Equal(t, 2.0, gathered(t, reg, name, map[string]string{"state": "PLAYING"}))
	assert.Equal(t, 1.0, gathered(t, reg, name, map[string]string{"state": "PAUSED"}))
	assert.Equal(t, 3.0, gathered(t, reg, name, nil))
}

func TestSeparateRegistries(t *testing.T) {
	// Registering twice on fresh registries must not panic
	assert.NotPanics(t, func() {
		NewMetrics(prometheus.NewRegistry())
		NewMetrics(prometheus.NewRegistry())
	})
}
