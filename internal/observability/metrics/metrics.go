// Package metrics provides Prometheus instrumentation for web3auth.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	enabled     bool
	serviceName string

	// HTTP metrics
	httpRequestsTotal *prometheus.CounterVec
	httpDuration      *prometheus.HistogramVec

	// Verification domain metrics
	verificationTotal *prometheus.CounterVec

	// Contract call metrics
	contractCallTotal    *prometheus.CounterVec
	contractCallDuration *prometheus.HistogramVec

	// SIP metrics
	sipRequestsTotal  *prometheus.CounterVec
	sipChallengeTotal prometheus.Counter
)

// Init initializes the metrics system.
func Init(enabledFlag bool, svcName string) {
	enabled = enabledFlag
	serviceName = svcName

	if !enabled {
		return
	}

	// HTTP request counter
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// HTTP request duration histogram
	httpDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// Verification verdict counter
	verificationTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "verification_total",
			Help: "Total number of credential verifications",
		},
		[]string{"transport", "verdict"},
	)

	// Contract call counter
	contractCallTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "contract_call_total",
			Help: "Total number of eth_call requests to the node",
		},
		[]string{"status"},
	)

	// Contract call duration histogram
	contractCallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "contract_call_duration_seconds",
			Help:    "eth_call round-trip latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"status"},
	)

	// SIP request counter
	sipRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sip_requests_total",
			Help: "Total number of SIP requests handled",
		},
		[]string{"method", "status"},
	)

	// SIP challenge counter
	sipChallengeTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sip_challenges_total",
			Help: "Total number of digest challenges issued",
		},
	)

	// Note: Go runtime metrics (goroutines, memory, GC) are automatically
	// collected by prometheus/client_golang - no custom collector needed
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	if !enabled {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		})
	}
	return promhttp.Handler()
}

// Enabled returns whether metrics are enabled.
func Enabled() bool {
	return enabled
}

// ServiceName returns the configured service name for metric labels.
func ServiceName() string {
	return serviceName
}

// RecordVerification records a completed verification and its verdict.
func RecordVerification(transport, verdict string) {
	if !enabled {
		return
	}
	verificationTotal.WithLabelValues(transport, verdict).Inc()
}

// RecordContractCall records an eth_call round trip.
func RecordContractCall(status string, duration time.Duration) {
	if !enabled {
		return
	}
	contractCallTotal.WithLabelValues(status).Inc()
	contractCallDuration.WithLabelValues(status).Observe(duration.Seconds())
}

// RecordSIPRequest records a handled SIP request and its response status.
func RecordSIPRequest(method, status string) {
	if !enabled {
		return
	}
	sipRequestsTotal.WithLabelValues(method, status).Inc()
}

// RecordSIPChallenge records an issued digest challenge.
func RecordSIPChallenge() {
	if !enabled {
		return
	}
	sipChallengeTotal.Inc()
}
