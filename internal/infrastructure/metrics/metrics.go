// Package metrics exposes gateway counters and gauges in Prometheus format.
//
// A Collector owns its own prometheus.Registry (not the global default), so
// tests can create as many as they like. Collector's event methods match
// the farm's Metrics interface and the RPC server's call hook.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// namespace prefixes every metric name.
const namespace = "bambufarm"

// Collector records gateway events.
//
// Thread Safety: All methods are safe for concurrent use.
type Collector struct {
	registry *prometheus.Registry

	sessionsActive      *prometheus.GaugeVec
	sessionsTotal       *prometheus.CounterVec
	messagesRelayed     *prometheus.CounterVec
	publishFailures     *prometheus.CounterVec
	streamInterruptions *prometheus.CounterVec
	uploadsTotal        *prometheus.CounterVec
	uploadDuration      prometheus.Histogram
	registryUnavailable prometheus.Counter
	rpcHandled          *prometheus.CounterVec
	printers            prometheus.Gauge
}

// New creates a Collector with Go runtime and process collectors attached.
func New() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		sessionsActive: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_active",
			Help:      "Printer sessions currently open.",
		}, []string{"device_id"}),
		sessionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_opened_total",
			Help:      "Printer sessions opened.",
		}, []string{"device_id"}),
		messagesRelayed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_relayed_total",
			Help:      "Messages relayed between clients and printers.",
		}, []string{"device_id", "direction"}),
		publishFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "publish_failures_total",
			Help:      "Commands that could not be published to a printer.",
		}, []string{"device_id"}),
		streamInterruptions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stream_interruptions_total",
			Help:      "Transient printer stream failures.",
		}, []string{"device_id"}),
		uploadsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "uploads_total",
			Help:      "File uploads by outcome.",
		}, []string{"device_id", "result"}),
		uploadDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "upload_duration_seconds",
			Help:      "Time spent delivering files to printers.",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300, 600},
		}),
		registryUnavailable: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "roster_skipped_total",
			Help:      "Roster emissions skipped because the session hub did not answer in time.",
		}),
		rpcHandled: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rpc_handled_total",
			Help:      "RPCs completed, by method and status code.",
		}, []string{"method", "code"}),
		printers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "printers",
			Help:      "Printers in the roster.",
		}),
	}

	c.registry.MustRegister(
		c.sessionsActive,
		c.sessionsTotal,
		c.messagesRelayed,
		c.publishFailures,
		c.streamInterruptions,
		c.uploadsTotal,
		c.uploadDuration,
		c.registryUnavailable,
		c.rpcHandled,
		c.printers,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return c
}

// Registry returns the underlying Prometheus registry.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// SetPrinters records the roster size.
func (c *Collector) SetPrinters(n int) {
	c.printers.Set(float64(n))
}

// SessionOpened records a session going live.
func (c *Collector) SessionOpened(deviceID string) {
	c.sessionsActive.WithLabelValues(deviceID).Inc()
	c.sessionsTotal.WithLabelValues(deviceID).Inc()
}

// SessionClosed records a session ending.
func (c *Collector) SessionClosed(deviceID string) {
	c.sessionsActive.WithLabelValues(deviceID).Dec()
}

// MessageRelayed counts one message in the given direction.
func (c *Collector) MessageRelayed(deviceID, direction string) {
	c.messagesRelayed.WithLabelValues(deviceID, direction).Inc()
}

// PublishFailed counts a command that was dropped.
func (c *Collector) PublishFailed(deviceID string) {
	c.publishFailures.WithLabelValues(deviceID).Inc()
}

// StreamInterrupted counts a transient receive failure.
func (c *Collector) StreamInterrupted(deviceID string) {
	c.streamInterruptions.WithLabelValues(deviceID).Inc()
}

// UploadFinished records an upload outcome and its duration.
func (c *Collector) UploadFinished(deviceID string, ok bool, seconds float64) {
	result := "failure"
	if ok {
		result = "success"
	}
	c.uploadsTotal.WithLabelValues(deviceID, result).Inc()
	c.uploadDuration.Observe(seconds)
}

// RegistryUnavailable counts a skipped roster emission.
func (c *Collector) RegistryUnavailable() {
	c.registryUnavailable.Inc()
}

// RPCHandled counts a completed RPC.
func (c *Collector) RPCHandled(method, code string) {
	c.rpcHandled.WithLabelValues(method, code).Inc()
}
