package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"labmonitor/internal/models"
)

// Recorder exposes probe outcomes as Prometheus metrics on a private registry.
type Recorder struct {
	registry *prometheus.Registry

	probesTotal   *prometheus.CounterVec
	probeDuration *prometheus.HistogramVec
	serviceUp     *prometheus.GaugeVec
	statusBuckets *prometheus.GaugeVec
}

// NewRecorder creates a recorder with all collectors registered.
func NewRecorder() *Recorder {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())

	r := &Recorder{
		registry: registry,
		probesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "labmonitor",
			Name:      "probes_total",
			Help:      "Probe attempts by service, strategy and resulting status.",
		}, []string{"service", "method", "status"}),
		probeDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "labmonitor",
			Name:      "probe_duration_seconds",
			Help:      "Wall time spent per probe.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"service", "method"}),
		serviceUp: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "labmonitor",
			Name:      "service_up",
			Help:      "1 when the last probe was healthy, 0 otherwise.",
		}, []string{"service"}),
		statusBuckets: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "labmonitor",
			Name:      "services_by_status",
			Help:      "Current number of services per status bucket.",
		}, []string{"status"}),
	}
	registry.MustRegister(r.probesTotal, r.probeDuration, r.serviceUp, r.statusBuckets)
	return r
}

// ObserveProbe records one probe outcome.
func (r *Recorder) ObserveProbe(result models.HealthResult, elapsed time.Duration) {
	if r == nil {
		return
	}
	r.probesTotal.WithLabelValues(result.ServiceID, string(result.Method), string(result.Status)).Inc()
	r.probeDuration.WithLabelValues(result.ServiceID, string(result.Method)).Observe(elapsed.Seconds())

	up := 0.0
	if result.Status == models.StatusHealthy {
		up = 1.0
	}
	r.serviceUp.WithLabelValues(result.ServiceID).Set(up)
}

// SetSummary publishes the latest per-bucket tallies.
func (r *Recorder) SetSummary(summary models.Summary) {
	if r == nil {
		return
	}
	r.statusBuckets.WithLabelValues(string(models.StatusHealthy)).Set(float64(summary.Healthy))
	r.statusBuckets.WithLabelValues(string(models.StatusWarning)).Set(float64(summary.Warning))
	r.statusBuckets.WithLabelValues(string(models.StatusError)).Set(float64(summary.Error))
	r.statusBuckets.WithLabelValues(string(models.StatusUnknown)).Set(float64(summary.Unknown))
}

// Handler serves the registry in Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	if r == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}
