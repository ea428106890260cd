package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/vogiaan1904/regflow-gatekeeper/pkg/logger"
)

// SweepRunner drives the sweeper on a fixed interval. The sweeper itself has
// no scheduler; this is the cron-equivalent collaborator that invokes it.
type SweepRunner interface {
	Start(ctx context.Context) error
	Stop() error
	Status() RunnerStatus
}

type RunnerStatus struct {
	IsRunning     bool      `json:"is_running"`
	StartedAt     time.Time `json:"started_at,omitempty"`
	LastSweep     time.Time `json:"last_sweep,omitempty"`
	TotalExpired  int64     `json:"total_expired"`
	TotalAdmitted int64     `json:"total_admitted"`
	ErrorCount    int64     `json:"error_count"`
}

type RunnerConfig struct {
	Interval        time.Duration
	ShutdownTimeout time.Duration
}

type sweepRunner struct {
	sweeper SweeperService
	l       logger.Logger
	cfg     RunnerConfig

	mu        sync.RWMutex
	isRunning bool
	startedAt time.Time
	stopCh    chan struct{}
	ticker    *time.Ticker
	wg        sync.WaitGroup

	lastSweep     time.Time
	totalExpired  int64
	totalAdmitted int64
	errorCount    int64
}

func NewSweepRunner(sweeper SweeperService, cfg RunnerConfig, l logger.Logger) SweepRunner {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 30 * time.Second
	}
	return &sweepRunner{
		sweeper: sweeper,
		l:       l,
		cfg:     cfg,
	}
}

func (r *sweepRunner) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.isRunning {
		return errors.New("sweep runner is already running")
	}

	r.l.Infof(ctx, "Starting sweep runner: interval=%v", r.cfg.Interval)

	r.isRunning = true
	r.startedAt = time.Now()
	r.stopCh = make(chan struct{})
	r.ticker = time.NewTicker(r.cfg.Interval)

	r.wg.Add(1)
	go r.loop(ctx, r.stopCh, r.ticker.C)

	return nil
}

func (r *sweepRunner) Stop() error {
	r.mu.Lock()
	if !r.isRunning {
		r.mu.Unlock()
		return errors.New("sweep runner is not running")
	}

	close(r.stopCh)
	r.ticker.Stop()
	r.isRunning = false
	r.mu.Unlock()

	// Wait outside the lock; a sweep in flight needs it to record its result.
	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		r.l.Info(context.Background(), "Sweep runner stopped gracefully")
	case <-time.After(r.cfg.ShutdownTimeout):
		r.l.Warn(context.Background(), "Sweep runner shutdown timeout exceeded")
	}

	return nil
}

func (r *sweepRunner) loop(ctx context.Context, stopCh <-chan struct{}, tick <-chan time.Time) {
	defer r.wg.Done()

	for {
		select {
		case <-ctx.Done():
			r.l.Info(ctx, "Sweep runner stopped due to context cancellation")
			return
		case <-stopCh:
			return
		case <-tick:
			r.runOnce(ctx)
		}
	}
}

func (r *sweepRunner) runOnce(ctx context.Context) {
	res, err := r.sweeper.Sweep(ctx)

	r.mu.Lock()
	defer r.mu.Unlock()

	r.lastSweep = time.Now()
	if err != nil {
		r.errorCount++
		r.l.Errorf(ctx, "service.sweepRunner.runOnce: %v", err)
		return
	}

	r.totalExpired += int64(res.Expired)
	r.totalAdmitted += int64(res.Admitted)
}

func (r *sweepRunner) Status() RunnerStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return RunnerStatus{
		IsRunning:     r.isRunning,
		StartedAt:     r.startedAt,
		LastSweep:     r.lastSweep,
		TotalExpired:  r.totalExpired,
		TotalAdmitted: r.totalAdmitted,
		ErrorCount:    r.errorCount,
	}
}
