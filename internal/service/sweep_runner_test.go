package service

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgLog "github.com/vogiaan1904/regflow-gatekeeper/pkg/logger"
)

type countingSweeper struct {
	calls atomic.Int64
}

func (s *countingSweeper) Sweep(context.Context) (*SweepResult, error) {
	s.calls.Add(1)
	return &SweepResult{Expired: 2, Admitted: 1}, nil
}

func (s *countingSweeper) ClearStuckSessions(context.Context, string) (int, error) {
	return 0, nil
}

func TestSweepRunner_RunsOnInterval(t *testing.T) {
	sweeper := &countingSweeper{}
	runner := NewSweepRunner(sweeper, RunnerConfig{
		Interval:        10 * time.Millisecond,
		ShutdownTimeout: time.Second,
	}, pkgLog.InitializeTestZapLogger())

	require.NoError(t, runner.Start(context.Background()))

	assert.Eventually(t, func() bool {
		return sweeper.calls.Load() >= 3
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, runner.Stop())

	status := runner.Status()
	assert.False(t, status.IsRunning)
	assert.GreaterOrEqual(t, status.TotalExpired, int64(6))
	assert.GreaterOrEqual(t, status.TotalAdmitted, int64(3))
	assert.Equal(t, int64(0), status.ErrorCount)
	assert.False(t, status.LastSweep.IsZero())
}

func TestSweepRunner_DoubleStartFails(t *testing.T) {
	runner := NewSweepRunner(&countingSweeper{}, RunnerConfig{
		Interval: time.Hour,
	}, pkgLog.InitializeTestZapLogger())

	require.NoError(t, runner.Start(context.Background()))
	assert.Error(t, runner.Start(context.Background()))
	require.NoError(t, runner.Stop())
}

func TestSweepRunner_StopWithoutStartFails(t *testing.T) {
	runner := NewSweepRunner(&countingSweeper{}, RunnerConfig{}, pkgLog.InitializeTestZapLogger())

	assert.Error(t, runner.Stop())
}

func TestSweepRunner_StatusWhileRunning(t *testing.T) {
	runner := NewSweepRunner(&countingSweeper{}, RunnerConfig{
		Interval: time.Hour,
	}, pkgLog.InitializeTestZapLogger())

	require.NoError(t, runner.Start(context.Background()))
	status := runner.Status()
	assert.True(t, status.IsRunning)
	assert.False(t, status.StartedAt.IsZero())
	require.NoError(t, runner.Stop())
}
