package metrics

import "github.com/prometheus/client_golang/prometheus"

// SchedulingMetrics exposes counters/histograms for booking commands and
// event delivery. All methods are safe on a nil receiver.
type SchedulingMetrics struct {
	commandsTotal   *prometheus.CounterVec
	commandLatency  *prometheus.HistogramVec
	conflictsTotal  *prometheus.CounterVec
	eventsTotal     *prometheus.CounterVec
	eventQueueDepth prometheus.Gauge
}

func NewSchedulingMetrics(reg prometheus.Registerer) *SchedulingMetrics {
	m := &SchedulingMetrics{
		commandsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "scheduling",
			Subsystem: "appointments",
			Name:      "commands_total",
			Help:      "Appointment commands by operation and result",
		}, []string{"operation", "result"}),
		commandLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "scheduling",
			Subsystem: "appointments",
			Name:      "command_duration_seconds",
			Help:      "Latency of appointment commands",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
		conflictsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "scheduling",
			Subsystem: "appointments",
			Name:      "slot_conflicts_total",
			Help:      "Schedule or reschedule attempts rejected for overlapping a booking",
		}, []string{"operation"}),
		eventsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "scheduling",
			Subsystem: "events",
			Name:      "published_total",
			Help:      "Domain events handed to the delivery sink by type and result",
		}, []string{"event_type", "result"}),
		eventQueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "scheduling",
			Subsystem: "events",
			Name:      "queue_depth",
			Help:      "Events waiting for asynchronous delivery",
		}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.commandsTotal, m.commandLatency, m.conflictsTotal, m.eventsTotal, m.eventQueueDepth)
	return m
}

func (m *SchedulingMetrics) ObserveCommand(operation, result string, seconds float64) {
	if m == nil {
		return
	}
	m.commandsTotal.WithLabelValues(operation, result).Inc()
	m.commandLatency.WithLabelValues(operation).Observe(seconds)
}

func (m *SchedulingMetrics) ObserveConflict(operation string) {
	if m == nil {
		return
	}
	m.conflictsTotal.WithLabelValues(operation).Inc()
}

func (m *SchedulingMetrics) ObserveEvent(eventType, result string) {
	if m == nil {
		return
	}
	m.eventsTotal.WithLabelValues(eventType, result).Inc()
}

func (m *SchedulingMetrics) SetQueueDepth(n int) {
	if m == nil {
		return
	}
	m.eventQueueDepth.Set(float64(n))
}
