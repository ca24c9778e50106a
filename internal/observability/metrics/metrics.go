package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ridewatch_http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ridewatch_http_request_duration_seconds",
		Help:    "Duration of HTTP requests",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	invitationsCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ridewatch_invitations_created_total",
		Help: "Count of driver invitations created",
	})

	invitationsRedeemed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ridewatch_invitations_redeemed_total",
		Help: "Count of invitation redemption attempts by result",
	}, []string{"result"})

	verificationCodesIssued = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ridewatch_verification_codes_issued_total",
		Help: "Count of registration verification codes issued",
	})

	verificationCodesRedeemed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ridewatch_verification_codes_redeemed_total",
		Help: "Count of verification code redemption attempts by result",
	}, []string{"result"})

	emailsSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ridewatch_emails_sent_total",
		Help: "Count of outbound emails by kind and result",
	}, []string{"kind", "result"})

	pendingInvitations = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ridewatch_pending_invitations",
		Help: "Number of invitations currently pending",
	})

	sweeperOperations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ridewatch_sweeper_operations_total",
		Help: "Count of retention sweep deletions by record kind and result",
	}, []string{"kind", "result"})
)

// ObserveHTTPRequest records an HTTP request metric
func ObserveHTTPRequest(method, path, status string, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, path, status).Inc()
	httpRequestDuration.WithLabelValues(method, path, status).Observe(duration.Seconds())
}

// IncInvitationsCreated counts a newly created invitation
func IncInvitationsCreated() {
	invitationsCreated.Inc()
}

// IncInvitationsRedeemed counts a redemption attempt with its outcome
func IncInvitationsRedeemed(result string) {
	invitationsRedeemed.WithLabelValues(result).Inc()
}

// IncVerificationCodesIssued counts an issued verification code
func IncVerificationCodesIssued() {
	verificationCodesIssued.Inc()
}

// IncVerificationCodesRedeemed counts a code redemption attempt with its outcome
func IncVerificationCodesRedeemed(result string) {
	verificationCodesRedeemed.WithLabelValues(result).Inc()
}

// IncEmailsSent counts an outbound email attempt
func IncEmailsSent(kind, result string) {
	emailsSent.WithLabelValues(kind, result).Inc()
}

// SetPendingInvitations sets the pending invitation gauge
func SetPendingInvitations(n int) {
	pendingInvitations.Set(float64(n))
}

// ObserveSweep counts a retention sweep deletion
func ObserveSweep(kind, result string) {
	sweeperOperations.WithLabelValues(kind, result).Inc()
}
