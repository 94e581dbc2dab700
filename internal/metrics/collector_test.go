package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func counterValue(t *testing.T, reg *prometheus.Registry, name string, labels map[string]string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
	metrics:
		for _, m := range mf.GetMetric() {
			for _, lp := range m.GetLabel() {
				if want, ok := labels[lp.GetName()]; ok && want != lp.GetValue() {
					continue metrics
				}
			}
			return m.GetCounter().GetValue()
		}
	}
	t.Fatalf("metric %s %v not found", name, labels)
	return 0
}

func TestCollectorCounts(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewCollector(reg)

	m.ObserveRequest("GET", "locations", 200, 20*time.Millisecond)
	m.ObserveRequest("GET", "locations", 200, 10*time.Millisecond)
	m.IncrementCommands("STOP_SESSION", "NOT_SUPPORTED")
	m.ObserveClientRequest("tokens", "GET", "error", 3, time.Second)

	assert.Equal(t, 2.0, counterValue(t, reg, "cpo_requests_total", map[string]string{"module": "locations", "status": "200"}))
	assert.Equal(t, 1.0, counterValue(t, reg, "cpo_commands_total", map[string]string{"command": "STOP_SESSION"}))
	assert.Equal(t, 2.0, counterValue(t, reg, "cpo_client_retries_total", map[string]string{"module": "tokens"}))
}

func TestCollectorPerRegistry(t *testing.T) {
	assert.NotPanics(t, func() {
		NewCollector(prometheus.NewRegistry())
		NewCollector(prometheus.NewRegistry())
	})
}
