package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	activityPersistGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "timebudget",
		Subsystem: "persistence",
		Name:      "last_activity_persisted_timestamp_seconds",
		Help:      "Unix timestamp of the most recent activity write committed to Postgres.",
	})
	budgetRejectionCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "timebudget",
		Subsystem: "ledger",
		Name:      "budget_rejections_total",
		Help:      "Number of writes rejected because they would exceed the daily minute budget.",
	})
)

func init() {
	prometheus.MustRegister(activityPersistGauge, budgetRejectionCounter)
}

// RecordActivityPersisted updates the persistence watermark gauge.
func RecordActivityPersisted(ts time.Time) {
	if ts.IsZero() {
		return
	}
	activityPersistGauge.Set(float64(ts.Unix()))
}

// RecordBudgetRejection counts a budget-exceeded rejection.
func RecordBudgetRejection() {
	budgetRejectionCounter.Inc()
}
