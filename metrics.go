package mediaview

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics contains Prometheus metrics for element activity. One Metrics
// value may be shared by many elements.
type Metrics struct {
	eventsTotal          *prometheus.CounterVec
	acquisitionsTotal    *prometheus.CounterVec
	reconciliationsTotal *prometheus.CounterVec
	activeResources      *prometheus.GaugeVec
}

// NewMetrics creates element metrics and registers them with registry.
func NewMetrics(registry prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		eventsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mediaview_events_total",
				Help: "Total number of element events emitted",
			},
			[]string{"type"},
		),
		acquisitionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mediaview_camera_acquisitions_total",
				Help: "Total number of camera acquisitions by result",
			},
			[]string{"result"}, // result: success, failure, stale
		),
		reconciliationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mediaview_reconciliations_total",
				Help: "Total number of source reconciliation passes by outcome",
			},
			[]string{"outcome"}, // outcome: changed, unchanged, pending, deferred
		),
		activeResources: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "mediaview_active_resources",
				Help: "Number of elements with an active resource of each kind",
			},
			[]string{"kind"},
		),
	}
	if err := registry.Register(m); err != nil {
		return nil, err
	}
	return m, nil
}

// Describe implements prometheus.Collector.
func (m *Metrics) Describe(ch chan<- *prometheus.Desc) {
	m.eventsTotal.Describe(ch)
	m.acquisitionsTotal.Describe(ch)
	m.reconciliationsTotal.Describe(ch)
	m.activeResources.Describe(ch)
}

// Collect implements prometheus.Collector.
func (m *Metrics) Collect(ch chan<- prometheus.Metric) {
	m.eventsTotal.Collect(ch)
	m.acquisitionsTotal.Collect(ch)
	m.reconciliationsTotal.Collect(ch)
	m.activeResources.Collect(ch)
}

func (m *Metrics) recordEvent(t EventType) {
	if m == nil {
		return
	}
	m.eventsTotal.WithLabelValues(string(t)).Inc()
}

func (m *Metrics) recordAcquisition(result string) {
	if m == nil {
		return
	}
	m.acquisitionsTotal.WithLabelValues(result).Inc()
}

func (m *Metrics) recordReconcile(outcome string) {
	if m == nil {
		return
	}
	m.reconciliationsTotal.WithLabelValues(outcome).Inc()
}

// recordActive moves one element from kind old to kind new.
func (m *Metrics) recordActive(old, new ResourceKind) {
	if m == nil || old == new {
		return
	}
	if old != ResourceNone {
		m.activeResources.WithLabelValues(old.String()).Dec()
	}
	if new != ResourceNone {
		m.activeResources.WithLabelValues(new.String()).Inc()
	}
}
