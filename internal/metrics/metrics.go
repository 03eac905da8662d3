// Package metrics holds the process-wide Prometheus collectors.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "campusrent_http_requests_total",
			Help: "HTTP requests by method, route pattern and status code.",
		},
		[]string{"method", "route", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "campusrent_http_request_duration_seconds",
			Help:    "HTTP request latency by method and route pattern.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	// BookingTransitions counts lending request status changes by target status
	// and by source. Cascading cancellations use the owner or moderator source.
	BookingTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "campusrent_booking_transitions_total",
			Help: "Lending request status transitions by target status and source.",
		},
		[]string{"status", "source"},
	)

	// BookingConflicts counts requests and accepts refused for overlapping dates.
	BookingConflicts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "campusrent_booking_conflicts_total",
		Help: "Booking attempts refused because of an overlapping reservation.",
	})

	// NotificationsSent counts notification deliveries by sink and outcome.
	NotificationsSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "campusrent_notifications_total",
			Help: "Notification deliveries by sink and status.",
		},
		[]string{"sink", "status"},
	)

	// ModerationActions counts moderation actions by action name.
	ModerationActions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "campusrent_moderation_actions_total",
			Help: "Moderation actions performed, by action.",
		},
		[]string{"action"},
	)
)

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// Middleware records request counts and latencies. Requests are labelled by
// the ServeMux pattern that matched, so path parameters do not explode the
// label space.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)

		route := r.Pattern
		if route == "" {
			route = "unmatched"
		}
		httpRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(sw.status)).Inc()
		httpRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}
