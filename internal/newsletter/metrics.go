package newsletter

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "pnwdeals"

// Email status labels.
const (
	emailStatusSent    = "sent"
	emailStatusFailed  = "failed"
	emailStatusSkipped = "skipped"
)

// Run result labels.
const (
	runResultDone          = "done"
	runResultNothingToSend = "nothing_to_send"
	runResultAborted       = "aborted"
)

var (
	dispatchRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "newsletter",
			Name:      "runs_total",
			Help:      "Total dispatch runs by result",
		},
		[]string{"result"},
	)

	emailsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "newsletter",
			Name:      "emails_total",
			Help:      "Subscribers processed by provider and status",
		},
		[]string{"provider", "status"},
	)

	emailSendDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "newsletter",
			Name:      "send_duration_seconds",
			Help:      "Time to hand one email to the provider",
			Buckets:   []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		},
		[]string{"provider"},
	)

	runDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "newsletter",
			Name:      "run_duration_seconds",
			Help:      "Duration of a complete dispatch run",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800, 3600},
		},
	)

	lastSuccessfulRun = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "newsletter",
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time of the last run that reached the done state",
		},
	)

	dealsWithoutBusiness = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "newsletter",
			Name:      "deals_without_business_total",
			Help:      "Deals excluded from a run because their business could not be joined",
		},
	)
)

func recordEmail(provider, status string) {
	emailsProcessed.WithLabelValues(provider, status).Inc()
}

func recordSendDuration(provider string, d time.Duration) {
	emailSendDuration.WithLabelValues(provider).Observe(d.Seconds())
}

func recordRun(result string, d time.Duration, finishedAt time.Time) {
	dispatchRuns.WithLabelValues(result).Inc()
	if result == runResultAborted {
		return
	}
	runDuration.Observe(d.Seconds())
	lastSuccessfulRun.Set(float64(finishedAt.Unix()))
}

// RecordDealsWithoutBusiness counts deals dropped by a DealLoader because
// their business row was missing.
func RecordDealsWithoutBusiness(n int) {
	if n > 0 {
		dealsWithoutBusiness.Add(float64(n))
	}
}
