package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/acme/campaign-dispatch/internal/domain"
)

const namespace = "dispatch"

// Metrics holds the service collectors on a private registry. A nil *Metrics
// is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	ticks         *prometheus.CounterVec
	tickDuration  prometheus.Histogram
	leadsSelected prometheus.Counter
	batches       prometheus.Counter
	skipped       *prometheus.CounterVec
	swept         prometheus.Counter
	published     *prometheus.CounterVec
	availability  *prometheus.CounterVec
	callEvents    *prometheus.CounterVec
	ticksDropped  prometheus.Counter
}

// NewMetrics registers all collectors on a fresh registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		ticks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "ticks_total", Help: "Dispatch ticks by result.",
		}, []string{"result"}),
		tickDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Name: "tick_duration_seconds", Help: "Wall time of a dispatch tick.",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 10),
		}),
		leadsSelected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "leads_selected_total", Help: "Leads placed in dispatch batches.",
		}),
		batches: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "batches_total", Help: "Dispatch batches emitted.",
		}),
		skipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "campaigns_skipped_total", Help: "Campaigns skipped by reason.",
		}, []string{"reason"}),
		swept: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "leads_swept_total", Help: "Exhausted leads moved to bad_lead.",
		}),
		published: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "batches_published_total", Help: "Batch hand-off results.",
		}, []string{"result"}),
		availability: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "availability_requests_total", Help: "Availability queries by outcome.",
		}, []string{"outcome"}),
		callEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "call_events_total", Help: "Call lifecycle events consumed.",
		}, []string{"type", "result"}),
		ticksDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "ticks_dropped_total", Help: "Triggers dropped because a tick was still running.",
		}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.ticks, m.tickDuration, m.leadsSelected, m.batches, m.skipped, m.swept,
		m.published, m.availability, m.callEvents, m.ticksDropped,
	)
	return m
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{EnableOpenMetrics: true})
}

// ObserveTick records a finished tick. A nil result counts as a failed tick.
func (m *Metrics) ObserveTick(result *domain.DispatchResult, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.tickDuration.Observe(elapsed.Seconds())
	if result == nil {
		m.ticks.WithLabelValues("error").Inc()
		return
	}
	m.ticks.WithLabelValues("ok").Inc()
	m.batches.Add(float64(len(result.Batches)))
	m.leadsSelected.Add(float64(result.TotalLeads))
	m.swept.Add(float64(result.Swept))
	for _, s := range result.Skipped {
		m.skipped.WithLabelValues(string(s.Reason)).Inc()
	}
}

// TickDropped counts a trigger ignored because the previous tick was running.
func (m *Metrics) TickDropped() {
	if m == nil {
		return
	}
	m.ticksDropped.Inc()
}

// BatchesPublished records hand-off results.
func (m *Metrics) BatchesPublished(ok, failed int) {
	if m == nil {
		return
	}
	m.published.WithLabelValues("ok").Add(float64(ok))
	m.published.WithLabelValues("error").Add(float64(failed))
}

// AvailabilityRequest records an availability query outcome.
func (m *Metrics) AvailabilityRequest(outcome string) {
	if m == nil {
		return
	}
	m.availability.WithLabelValues(outcome).Inc()
}

// CallEvent records a consumed call lifecycle event.
func (m *Metrics) CallEvent(eventType, result string) {
	if m == nil {
		return
	}
	m.callEvents.WithLabelValues(eventType, result).Inc()
}
