// Package metrics holds the Prometheus collectors the server exports on
// /metrics. They register with the default registry at init.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lendpal_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	HTTPRequestDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "lendpal_http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	// result is "ok", "duplicate_email", "password_mismatch",
	// "email_invalid" or "error".
	RegistrationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lendpal_registrations_total",
			Help: "Total number of registration attempts by result",
		},
		[]string{"result"},
	)

	LoginsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lendpal_logins_total",
			Help: "Total number of login attempts by result",
		},
		[]string{"result"},
	)

	LoansTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "lendpal_loans_total",
			Help: "Total number of items lent out, renewals included",
		},
	)

	ReturnsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "lendpal_returns_total",
			Help: "Total number of items returned",
		},
	)

	ItemsOnLoan = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "lendpal_items_on_loan",
			Help: "Number of items currently lent out",
		},
	)

	StoreWritesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lendpal_store_writes_total",
			Help: "Total number of registry snapshots written by result",
		},
		[]string{"result"},
	)

	StoreWriteDurationSeconds = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "lendpal_store_write_duration_seconds",
			Help:    "Duration of registry snapshot writes in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)
)

// Result turns an error into the "result" label value.
func Result(err error) string {
	if err == nil {
		return "ok"
	}
	return "error"
}
