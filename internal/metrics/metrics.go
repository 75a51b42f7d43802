package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	LoginAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "storefront",
		Name:      "login_attempts_total",
		Help:      "Login attempts by method and outcome.",
	}, []string{"method", "outcome"})

	AccountLocks = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "storefront",
		Name:      "account_locks_total",
		Help:      "Accounts moved into the locked state.",
	})

	OTPIssued = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "storefront",
		Name:      "otp_issued_total",
		Help:      "One-time codes issued by purpose.",
	}, []string{"purpose"})

	OTPVerifications = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "storefront",
		Name:      "otp_verifications_total",
		Help:      "One-time code verifications by outcome.",
	}, []string{"outcome"})

	NotificationsFailed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "storefront",
		Name:      "notifications_failed_total",
		Help:      "Fire-and-forget notifications that failed, by kind.",
	}, []string{"kind"})
)

// Handler returns an http.Handler for Prometheus scraping
func Handler() http.Handler {
	return promhttp.Handler()
}
