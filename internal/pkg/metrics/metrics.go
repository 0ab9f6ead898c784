package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry holds the application-specific Prometheus collectors.
	Registry = prometheus.NewRegistry()

	dispatchTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "church_portal",
			Subsystem: "rpc",
			Name:      "requests_total",
			Help:      "Total number of realtime requests dispatched.",
		},
		[]string{"action", "code"},
	)

	dispatchDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "church_portal",
			Subsystem: "rpc",
			Name:      "request_duration_seconds",
			Help:      "Duration of realtime request handling.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
		},
		[]string{"action"},
	)

	connections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "church_portal",
			Subsystem: "ws",
			Name:      "connections",
			Help:      "Currently open realtime connections.",
		},
	)

	transferSessions = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "church_portal",
			Subsystem: "transfer",
			Name:      "open_sessions",
			Help:      "Open chunked transfer sessions.",
		},
		[]string{"kind"},
	)

	transferBytes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "church_portal",
			Subsystem: "transfer",
			Name:      "bytes_total",
			Help:      "Bytes accepted by uploads or sent by downloads.",
		},
		[]string{"kind"},
	)

	reportJobs = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "church_portal",
			Subsystem: "report",
			Name:      "jobs_total",
			Help:      "Report jobs by terminal status.",
		},
		[]string{"status"},
	)

	reportRenderDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "church_portal",
			Subsystem: "report",
			Name:      "render_duration_seconds",
			Help:      "Duration of renderer invocations.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
		},
	)
)

func init() {
	Registry.MustRegister(
		dispatchTotal,
		dispatchDuration,
		connections,
		transferSessions,
		transferBytes,
		reportJobs,
		reportRenderDuration,
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		prometheus.NewGoCollector(),
	)
}

// Handler returns an HTTP handler exposing the registered Prometheus metrics.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

func ObserveDispatch(action, code string, elapsed time.Duration) {
	dispatchTotal.WithLabelValues(action, code).Inc()
	dispatchDuration.WithLabelValues(action).Observe(elapsed.Seconds())
}

func ConnectionOpened() { connections.Inc() }

func ConnectionClosed() { connections.Dec() }

func SessionOpened(kind string) { transferSessions.WithLabelValues(kind).Inc() }

func SessionClosed(kind string) { transferSessions.WithLabelValues(kind).Dec() }

func AddTransferBytes(kind string, n int) {
	transferBytes.WithLabelValues(kind).Add(float64(n))
}

func ObserveReportJob(status string, renderTime time.Duration) {
	reportJobs.WithLabelValues(status).Inc()
	reportRenderDuration.Observe(renderTime.Seconds())
}
