package metrics

import (
	"net/http"

	"github.com/ErlanBelekov/otp-auth/internal/health"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Auth metrics

	OTPRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "otpauth",
		Name:      "otp_requests_total",
		Help:      "OTP requests, by outcome.",
	}, []string{"outcome"})

	OTPVerificationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "otpauth",
		Name:      "otp_verifications_total",
		Help:      "OTP verifications, by outcome.",
	}, []string{"outcome"})

	MailDeliveryFailuresTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "otpauth",
		Name:      "mail_delivery_failures_total",
		Help:      "OTP emails the mail transport failed to accept.",
	})

	MailDeliveryDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "otpauth",
		Name:      "mail_delivery_duration_seconds",
		Help:      "Time spent handing an OTP email to the transport.",
		Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 20},
	})

	SessionsCreatedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "otpauth",
		Name:      "sessions_created_total",
		Help:      "Sessions issued after successful verification.",
	})

	SessionCreationFailuresTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "otpauth",
		Name:      "session_creation_failures_total",
		Help:      "Verified logins for which no session could be persisted.",
	})

	// Sweeper metrics

	SessionsSweptTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "otpauth",
		Name:      "sessions_swept_total",
		Help:      "Expired sessions deleted by the sweeper.",
	})

	SweeperCycleDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "otpauth",
		Name:      "sweeper_cycle_duration_seconds",
		Help:      "Time taken for one sweeper cycle.",
		Buckets:   prometheus.DefBuckets,
	})

	// HTTP metrics

	HTTPRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "otpauth",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request latency.",
		Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
	}, []string{"method", "path", "status"})

	HTTPRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "otpauth",
		Name:      "http_requests_total",
		Help:      "Total HTTP requests.",
	}, []string{"method", "path", "status"})

	RateLimitedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "otpauth",
		Name:      "http_rate_limited_total",
		Help:      "Requests rejected by the per-client rate limiter.",
	})
)

func Register() {
	prometheus.MustRegister(
		OTPRequestsTotal,
		OTPVerificationsTotal,
		MailDeliveryFailuresTotal,
		MailDeliveryDuration,
		SessionsCreatedTotal,
		SessionCreationFailuresTotal,
		SessionsSweptTotal,
		SweeperCycleDuration,
		HTTPRequestDuration,
		HTTPRequestsTotal,
		RateLimitedTotal,
	)
}

// NewServer serves /metrics plus liveness and readiness probes.
func NewServer(addr string, checker *health.Checker) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/livez", func(w http.ResponseWriter, r *http.Request) {
		health.WriteJSON(w, checker.Liveness(r.Context()))
	})
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		health.WriteJSON(w, checker.Readiness(r.Context()))
	})
	return &http.Server{Addr: addr, Handler: mux}
}
