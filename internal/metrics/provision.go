package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/vertextoedge/owncloud-controlled-link/internal/port"
)

type provisionMetrics struct {
	outcomes    *prometheus.CounterVec
	duration    prometheus.Histogram
	collections *prometheus.CounterVec
	remoteCalls *prometheus.CounterVec
}

// NewProvisionMetrics creates a Prometheus-backed port.ProvisionMetrics.
//
// Returns nil if metrics are not enabled.
func NewProvisionMetrics() port.ProvisionMetrics {
	if !IsEnabled() {
		return nil
	}
	return newProvisionMetrics(GetRegistry())
}

func newProvisionMetrics(reg prometheus.Registerer) *provisionMetrics {
	return &provisionMetrics{
		outcomes: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "controlled_link_provisions_total",
				Help: "Total number of provisioning attempts by outcome",
			},
			[]string{"outcome"},
		),
		duration: promauto.With(reg).NewHistogram(
			prometheus.HistogramOpts{
				Name:    "controlled_link_provision_duration_seconds",
				Help:    "Duration of provisioning attempts in seconds",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
			},
		),
		collections: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "controlled_link_collection_creates_total",
				Help: "Total number of collection-create calls by result",
			},
			[]string{"result"},
		),
		remoteCalls: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "controlled_link_remote_calls_total",
				Help: "Total number of remote WebDAV and OCS calls",
			},
			[]string{"op", "failed"},
		),
	}
}

func (m *provisionMetrics) ObserveProvision(outcome string, d time.Duration) {
	m.outcomes.WithLabelValues(outcome).Inc()
	m.duration.Observe(d.Seconds())
}

func (m *provisionMetrics) RecordCollection(result string) {
	m.collections.WithLabelValues(result).Inc()
}

func (m *provisionMetrics) RecordRemoteCall(op string, failed bool) {
	m.remoteCalls.WithLabelValues(op, strconv.FormatBool(failed)).Inc()
}
