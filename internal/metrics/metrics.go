// Package metrics holds the Prometheus metrics for the campaign
// engine on a private registry.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the engine
type Metrics struct {
	// Generation pipeline
	LeadsProcessedTotal   prometheus.Counter
	GenerationFailedTotal prometheus.Counter
	GenerationSeconds     prometheus.Histogram

	// Send path
	EmailsSentTotal *prometheus.CounterVec // labeled by trigger: sweep, manual
	SendFailedTotal prometheus.Counter
	SweepSeconds    prometheus.Histogram

	// State
	LeadsByStatus      *prometheus.GaugeVec
	TriggersRegistered *prometheus.GaugeVec // labeled by purpose

	registry *prometheus.Registry
}

// New creates a Metrics instance with all metrics registered on a
// fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		LeadsProcessedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "frankie_leads_processed_total",
			Help: "Total number of leads run through the generation pipeline",
		}),
		GenerationFailedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "frankie_generation_failed_total",
			Help: "Total number of leads whose content generation failed",
		}),
		GenerationSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "frankie_generation_duration_seconds",
			Help:    "Duration of per-lead content generation",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 10),
		}),
		EmailsSentTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "frankie_emails_sent_total",
			Help: "Total number of follow-up emails sent",
		}, []string{"trigger"}),
		SendFailedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "frankie_send_failed_total",
			Help: "Total number of gateway send failures",
		}),
		SweepSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "frankie_sweep_duration_seconds",
			Help:    "Duration of one global sweep",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
		}),
		LeadsByStatus: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "frankie_leads",
			Help: "Current number of leads by status",
		}, []string{"status"}),
		TriggersRegistered: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "frankie_triggers_registered",
			Help: "Currently registered scheduler triggers by purpose",
		}, []string{"purpose"}),
		registry: reg,
	}

	reg.MustRegister(
		m.LeadsProcessedTotal,
		m.GenerationFailedTotal,
		m.GenerationSeconds,
		m.EmailsSentTotal,
		m.SendFailedTotal,
		m.SweepSeconds,
		m.LeadsByStatus,
		m.TriggersRegistered,
	)

	return m
}

// Handler returns an HTTP handler serving the registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
