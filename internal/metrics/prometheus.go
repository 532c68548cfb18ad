/*-------------------------------------------------------------------------
 *
 * prometheus.go
 *    Prometheus metrics for the bastion gateway
 *
 * IDENTIFICATION
 *    internal/metrics/prometheus.go
 *
 *-------------------------------------------------------------------------
 */

package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	/* Request metrics */
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bastion_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "bastion_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)

	/* Approval lifecycle metrics */
	requestsCreatedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bastion_approval_requests_created_total",
			Help: "Total number of approval requests created",
		},
		[]string{"plugin", "action"},
	)

	transitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bastion_status_transitions_total",
			Help: "Total number of approval request status transitions",
		},
		[]string{"from", "to"},
	)

	otpFailuresTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "bastion_otp_failures_total",
			Help: "Total number of failed one-time code verifications",
		},
	)

	/* Plugin call metrics */
	pluginCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bastion_plugin_calls_total",
			Help: "Total number of outbound plugin calls",
		},
		[]string{"plugin", "operation", "status"},
	)

	pluginCallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "bastion_plugin_call_duration_seconds",
			Help:    "Outbound plugin call duration in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30},
		},
		[]string{"plugin", "operation"},
	)

	/* Sweeper metrics */
	sweepExpiredTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "bastion_sweep_expired_total",
			Help: "Total number of approval requests expired by the sweeper",
		},
	)

	sweepTicksTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "bastion_sweep_ticks_total",
			Help: "Total number of sweeper ticks",
		},
	)
)

/* RecordHTTPRequest records an HTTP request */
func RecordHTTPRequest(method, endpoint string, status int, duration time.Duration) {
	/* Convert status code to status class for better PromQL queries */
	statusClass := "unknown"
	if status >= 200 && status < 300 {
		statusClass = "2xx"
	} else if status >= 300 && status < 400 {
		statusClass = "3xx"
	} else if status >= 400 && status < 500 {
		statusClass = "4xx"
	} else if status >= 500 {
		statusClass = "5xx"
	}

	httpRequestsTotal.WithLabelValues(method, endpoint, statusClass).Inc()
	httpRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

/* RecordRequestCreated records a newly created approval request */
func RecordRequestCreated(plugin, action string) {
	requestsCreatedTotal.WithLabelValues(plugin, action).Inc()
}

/* RecordTransition records a status transition */
func RecordTransition(from, to string) {
	transitionsTotal.WithLabelValues(from, to).Inc()
}

/* RecordOTPFailure records a failed one-time code verification */
func RecordOTPFailure() {
	otpFailuresTotal.Inc()
}

/* RecordPluginCall records an outbound plugin call */
func RecordPluginCall(plugin, operation, status string, duration time.Duration) {
	pluginCallsTotal.WithLabelValues(plugin, operation, status).Inc()
	pluginCallDuration.WithLabelValues(plugin, operation).Observe(duration.Seconds())
}

/* RecordSweepTick records one sweeper tick and how many requests it expired */
func RecordSweepTick(expired int) {
	sweepTicksTotal.Inc()
	sweepExpiredTotal.Add(float64(expired))
}

/* Handler returns the Prometheus metrics handler */
func Handler() http.Handler {
	return promhttp.Handler()
}
