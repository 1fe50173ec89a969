// Package metrics holds the prometheus collectors shared by the stream client,
// the alert registry and the backend API.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	TicksReceived = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "coinpulse_ticks_received_total",
		Help: "Price ticks received from the push channel.",
	}, []string{"coin"})

	// Ticks dropped because the price equals the last one seen for the coin.
	TicksSuppressed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "coinpulse_ticks_suppressed_total",
		Help: "Price ticks suppressed as duplicates.",
	}, []string{"coin"})

	StreamConnected = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "coinpulse_stream_connected",
		Help: "1 while the push channel connection is up.",
	})

	StreamReconnects = promauto.NewCounter(prometheus.CounterOpts{
		Name: "coinpulse_stream_reconnect_attempts_total",
		Help: "Push channel reconnection attempts.",
	})

	StreamLeases = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "coinpulse_stream_leases",
		Help: "Active holders of the shared push channel connection.",
	})

	AlertOperations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "coinpulse_alert_operations_total",
		Help: "Alert registry operations by outcome.",
	}, []string{"op", "result"})

	AlertsTriggered = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "coinpulse_alerts_triggered_total",
		Help: "Alerts whose condition was crossed.",
	}, []string{"coin", "source"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name: "coinpulse_http_request_duration_seconds",
		Help: "Duration of backend HTTP requests.",
	}, []string{"method", "path"})
)

// Middleware records request durations. Routes are labelled by pattern, not raw
// path, so alert ids do not explode label cardinality.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		path := r.Pattern
		if path == "" {
			path = "unmatched"
		}
		HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
	})
}
