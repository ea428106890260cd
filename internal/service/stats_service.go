package service

import (
	"context"
	"fmt"
	"time"

	"github.com/vogiaan1904/regflow-gatekeeper/internal/monitoring"
	repo "github.com/vogiaan1904/regflow-gatekeeper/internal/repository/redis"
	"github.com/vogiaan1904/regflow-gatekeeper/pkg/logger"
)

// StatsService is the read-only aggregation for operator dashboards.
type StatsService interface {
	GetStats(ctx context.Context, eID string) (*QueueStats, error)
}

type statsService struct {
	entries  repo.EntryRepository
	settings repo.SettingsRepository
	l        logger.Logger
	now      func() time.Time
}

func NewStatsService(
	entries repo.EntryRepository,
	settings repo.SettingsRepository,
	l logger.Logger,
) StatsService {
	return &statsService{
		entries:  entries,
		settings: settings,
		l:        l,
		now:      time.Now,
	}
}

// GetStats returns live per-lane counts, or nil when the event was never
// configured. The active count uses the same expiry-filtered predicate as the
// admission check, so the displayed occupancy cannot drift from admission
// behavior.
func (s *statsService) GetStats(ctx context.Context, eID string) (*QueueStats, error) {
	configured, err := s.settings.Exists(ctx, eID)
	if err != nil {
		return nil, fmt.Errorf("failed to check queue settings: %w", err)
	}
	if !configured {
		return nil, nil
	}

	st, err := s.settings.Get(ctx, eID)
	if err != nil {
		return nil, fmt.Errorf("failed to get queue settings: %w", err)
	}

	now := s.now()

	lanes := make(map[string]struct{}, len(st.Lanes))
	for lane := range st.Lanes {
		lanes[lane] = struct{}{}
	}
	// Sessions may sit in lanes the operator never configured.
	indexed, err := s.entries.Lanes(ctx, eID)
	if err != nil {
		return nil, fmt.Errorf("failed to list lanes: %w", err)
	}
	for _, lane := range indexed {
		lanes[lane] = struct{}{}
	}

	stats := &QueueStats{
		EventID: eID,
		Lanes:   make(map[string]LaneStats, len(lanes)),
	}

	for lane := range lanes {
		active, err := s.entries.CountActive(ctx, eID, lane, now)
		if err != nil {
			return nil, fmt.Errorf("failed to count active sessions: %w", err)
		}
		waiting, err := s.entries.CountWaiting(ctx, eID, lane)
		if err != nil {
			return nil, fmt.Errorf("failed to count waiting sessions: %w", err)
		}

		stats.Lanes[lane] = LaneStats{
			Active:        active,
			Waiting:       waiting,
			MaxConcurrent: st.Lane(lane).MaxConcurrent,
		}

		monitoring.SetQueueDepth(eID, lane, active, waiting)
	}

	return stats, nil
}
