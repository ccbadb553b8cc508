package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	submissionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ussd_submissions_total",
			Help: "Total number of accepted activation and top-up requests",
		},
		[]string{"type", "operator"},
	)

	submissionsRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ussd_submissions_rejected_total",
			Help: "Total number of rejected requests by error kind",
		},
		[]string{"type", "kind"},
	)

	resolutionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ussd_resolutions_total",
			Help: "Total number of executor responses by resulting status and outcome",
		},
		[]string{"type", "status", "outcome"},
	)

	responseLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ussd_response_latency_seconds",
			Help:    "Time between submission and executor response",
			Buckets: prometheus.ExponentialBuckets(1, 2, 10),
		},
		[]string{"type", "operator"},
	)

	refundsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ussd_refunds_total",
			Help: "Total number of refunded transactions",
		},
		[]string{"type"},
	)

	refundedAmount = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ussd_refunded_amount_total",
			Help: "Sum of refunded costs",
		},
	)

	cancelledTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ussd_cancelled_total",
			Help: "Total number of pending transactions cancelled by an administrator",
		},
		[]string{"type"},
	)
)

func RecordSubmission(txType, operator string) {
	submissionsTotal.WithLabelValues(txType, operator).Inc()
}

func RecordRejection(txType, kind string) {
	if kind == "" {
		kind = "internal"
	}
	submissionsRejected.WithLabelValues(txType, kind).Inc()
}

func RecordResolution(txType, status, outcome string) {
	resolutionsTotal.WithLabelValues(txType, status, outcome).Inc()
}

func RecordResponseLatency(txType, operator string, seconds float64) {
	if seconds < 0 {
		return
	}
	responseLatency.WithLabelValues(txType, operator).Observe(seconds)
}

func RecordRefund(txType string, amount float64) {
	refundsTotal.WithLabelValues(txType).Inc()
	refundedAmount.Add(amount)
}

func RecordCancellation(txType string, count int) {
	cancelledTotal.WithLabelValues(txType).Add(float64(count))
}
