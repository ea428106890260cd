package monitoring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	activeSessions = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "gatekeeper_active_sessions",
			Help: "Currently active (non-expired) sessions per event and lane",
		},
		[]string{"event_id", "lane"},
	)

	waitingSessions = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "gatekeeper_waiting_sessions",
			Help: "Currently waiting sessions per event and lane",
		},
		[]string{"event_id", "lane"},
	)

	admissionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gatekeeper_admissions_total",
			Help: "Total sessions admitted into the registration flow",
		},
		[]string{"event_id", "lane"},
	)

	expirationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gatekeeper_expirations_total",
			Help: "Total active sessions reclaimed after timeout",
		},
		[]string{"event_id", "lane"},
	)

	extensionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gatekeeper_extensions_total",
			Help: "Total one-time session extensions granted",
		},
		[]string{"event_id", "lane"},
	)

	sweepDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "gatekeeper_sweep_duration_seconds",
			Help:    "Duration of reconciliation sweeps",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
		},
	)
)

func SetQueueDepth(eventID, lane string, active, waiting int64) {
	activeSessions.WithLabelValues(eventID, lane).Set(float64(active))
	waitingSessions.WithLabelValues(eventID, lane).Set(float64(waiting))
}

func IncAdmission(eventID, lane string) {
	admissionsTotal.WithLabelValues(eventID, lane).Inc()
}

func IncExpiration(eventID, lane string) {
	expirationsTotal.WithLabelValues(eventID, lane).Inc()
}

func IncExtension(eventID, lane string) {
	extensionsTotal.WithLabelValues(eventID, lane).Inc()
}

func ObserveSweepDuration(d time.Duration) {
	sweepDuration.Observe(d.Seconds())
}
