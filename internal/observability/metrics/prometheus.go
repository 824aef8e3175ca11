// Package metrics provides Prometheus metrics for the claims pipeline.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all application metrics
type Metrics struct {
	ClaimsResolved        prometheus.Counter
	ClaimsValidationFail  prometheus.Counter
	FilesBuilt            prometheus.Counter
	BuildDuration         prometheus.Histogram
	AcksProcessed         *prometheus.CounterVec
	FilesQuarantined      prometheus.Counter
	KafkaMessagesProduced prometheus.Counter
	KafkaMessagesConsumed prometheus.Counter
	OutboxPending         prometheus.Gauge
}

// New creates and registers all metrics
func New() *Metrics {
	m := &Metrics{
		ClaimsResolved: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "claims_resolved_total",
			Help: "Total claims resolved from billing records",
		}),
		ClaimsValidationFail: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "claims_validation_failures_total",
			Help: "Total claims rejected by pre-build validation",
		}),
		FilesBuilt: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "edi_files_built_total",
			Help: "Total 837P interchanges built",
		}),
		BuildDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "edi_build_duration_seconds",
			Help:    "Interchange build duration",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		}),
		AcksProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "acknowledgments_processed_total",
			Help: "Total acknowledgment events applied, by transaction type and outcome",
		}, []string{"type", "outcome"}),
		FilesQuarantined: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "response_files_quarantined_total",
			Help: "Total malformed payer response files quarantined",
		}),
		KafkaMessagesProduced: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "kafka_messages_produced_total",
			Help: "Total Kafka messages produced",
		}),
		KafkaMessagesConsumed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "kafka_messages_consumed_total",
			Help: "Total Kafka messages consumed",
		}),
		OutboxPending: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "outbox_pending_entries",
			Help: "Pending outbox entries",
		}),
	}

	prometheus.MustRegister(
		m.ClaimsResolved,
		m.ClaimsValidationFail,
		m.FilesBuilt,
		m.BuildDuration,
		m.AcksProcessed,
		m.FilesQuarantined,
		m.KafkaMessagesProduced,
		m.KafkaMessagesConsumed,
		m.OutboxPending,
	)

	return m
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}
