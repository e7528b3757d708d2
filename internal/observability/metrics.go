package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "edgeworker",
			Subsystem: "admin",
			Name:      "requests_total",
			Help:      "Total admin HTTP requests.",
		},
		[]string{"worker", "method", "path", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "edgeworker",
			Subsystem: "admin",
			Name:      "request_duration_seconds",
			Help:      "Admin HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"worker", "method", "path", "status"},
	)
	workerRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "edgeworker",
			Subsystem: "worker",
			Name:      "requests_total",
			Help:      "Dispatched worker requests by outcome.",
		},
		[]string{"implementation", "operation", "outcome"},
	)
	workerDispatchDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "edgeworker",
			Subsystem: "worker",
			Name:      "dispatch_duration_seconds",
			Help:      "Worker dispatch duration in seconds, resolution through classification.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"implementation", "operation", "outcome"},
	)
	workerStreamFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "edgeworker",
			Subsystem: "worker",
			Name:      "stream_failures_total",
			Help:      "Transport faults routed to a pending request.",
		},
		[]string{"implementation"},
	)
	workerRespondErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "edgeworker",
			Subsystem: "worker",
			Name:      "respond_errors_total",
			Help:      "Responses the transport failed to send.",
		},
		[]string{"implementation"},
	)
	workerTerminations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "edgeworker",
			Subsystem: "worker",
			Name:      "terminations_total",
			Help:      "Termination signal releases by reason.",
		},
		[]string{"implementation", "reason"},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			httpRequests,
			httpDuration,
			workerRequests,
			workerDispatchDuration,
			workerStreamFailures,
			workerRespondErrors,
			workerTerminations,
		)
	})
}

func RecordHTTPRequest(worker, method, path string, status int, duration time.Duration) {
	RegisterMetrics()
	statusLabel := strconv.Itoa(status)
	httpRequests.WithLabelValues(worker, method, path, statusLabel).Inc()
	httpDuration.WithLabelValues(worker, method, path, statusLabel).Observe(duration.Seconds())
}

func RecordDispatch(implementation, operation, outcome string, duration time.Duration) {
	RegisterMetrics()
	workerRequests.WithLabelValues(implementation, operation, outcome).Inc()
	workerDispatchDuration.WithLabelValues(implementation, operation, outcome).Observe(duration.Seconds())
}

func RecordStreamFailure(implementation string) {
	RegisterMetrics()
	workerStreamFailures.WithLabelValues(implementation).Inc()
}

func RecordRespondError(implementation string) {
	RegisterMetrics()
	workerRespondErrors.WithLabelValues(implementation).Inc()
}

func RecordTermination(implementation, reason string) {
	RegisterMetrics()
	workerTerminations.WithLabelValues(implementation, reason).Inc()
}
