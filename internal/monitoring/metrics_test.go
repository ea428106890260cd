package monitoring

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestSetQueueDepth(t *testing.T) {
	SetQueueDepth("ev-depth", "group", 7, 12)

	assert.Equal(t, 7.0, testutil.ToFloat64(activeSessions.WithLabelValues("ev-depth", "group")))
	assert.Equal(t, 12.0, testutil.ToFloat64(waitingSessions.WithLabelValues("ev-depth", "group")))

	// Gauges overwrite, not accumulate.
	SetQueueDepth("ev-depth", "group", 3, 0)
	assert.Equal(t, 3.0, testutil.ToFloat64(activeSessions.WithLabelValues("ev-depth", "group")))
	assert.Equal(t, 0.0, testutil.ToFloat64(waitingSessions.WithLabelValues("ev-depth", "group")))
}

func TestCounters(t *testing.T) {
	IncAdmission("ev-counters", "group")
	IncAdmission("ev-counters", "group")
	IncExpiration("ev-counters", "group")
	IncExtension("ev-counters", "group")

	assert.Equal(t, 2.0, testutil.ToFloat64(admissionsTotal.WithLabelValues("ev-counters", "group")))
	assert.Equal(t, 1.0, testutil.ToFloat64(expirationsTotal.WithLabelValues("ev-counters", "group")))
	assert.Equal(t, 1.0, testutil.ToFloat64(extensionsTotal.WithLabelValues("ev-counters", "group")))
}

func TestObserveSweepDuration(t *testing.T) {
	ObserveSweepDuration(5 * time.Millisecond)

	assert.Equal(t, 1, testutil.CollectAndCount(sweepDuration))
}
