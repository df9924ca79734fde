/*
metrics.go - Prometheus instrumentation

PURPOSE:
  Counts the business events operators alert on (invoices generated,
  payments recorded, overdue sweeps) and times HTTP requests. Exposed on
  GET /metrics in the Prometheus text format.
*/
package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	invoicesGenerated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "billing_invoices_generated_total",
		Help: "Invoices generated, including scheduler runs.",
	})

	paymentsRecorded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "billing_payments_recorded_total",
		Help: "Payments recorded against invoices.",
	})

	overdueMarked = promauto.NewCounter(prometheus.CounterOpts{
		Name: "billing_invoices_marked_overdue_total",
		Help: "Invoices relabelled overdue by sweeps.",
	})

	httpDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "billing_http_request_duration_seconds",
		Help:    "HTTP request latency by method and status.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "status"})
)

// MetricsHandler serves the Prometheus scrape endpoint.
func MetricsHandler() http.Handler {
	return promhttp.Handler()
}

// MetricsMiddleware times every request.
func MetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		httpDuration.WithLabelValues(r.Method, strconv.Itoa(rec.status)).
			Observe(time.Since(start).Seconds())
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}
