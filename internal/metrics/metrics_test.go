package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestSchedulingMetricsObserve(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewSchedulingMetrics(reg)

	m.ObserveCommand("schedule", "ok", 0.01)
	m.ObserveCommand("schedule", "conflict", 0.02)
	m.ObserveCommand("schedule", "ok", 0.01)
	m.ObserveConflict("schedule")
	m.ObserveEvent("appointment.scheduled", "delivered")
	m.SetQueueDepth(3)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.commandsTotal.WithLabelValues("schedule", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.conflictsTotal.WithLabelValues("schedule")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.eventsTotal.WithLabelValues("appointment.scheduled", "delivered")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.eventQueueDepth))
}

func TestSchedulingMetricsNilSafe(t *testing.T) {
	var m *SchedulingMetrics
	m.ObserveCommand("confirm", "ok", 0.1)
	m.ObserveConflict("reschedule")
	m.ObserveEvent("appointment.confirmed", "failed")
	m.SetQueueDepth(1)
}
