package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/vogiaan1904/regflow-gatekeeper/internal/models"
	repo "github.com/vogiaan1904/regflow-gatekeeper/internal/repository/redis"
	"github.com/vogiaan1904/regflow-gatekeeper/pkg/logger"
)

type SettingsService interface {
	Get(ctx context.Context, eID string) (*models.QueueSettings, error)
	Update(ctx context.Context, eID string, in UpdateSettingsInput) (*models.QueueSettings, error)
}

type settingsService struct {
	repo repo.SettingsRepository
	l    logger.Logger
}

func NewSettingsService(repo repo.SettingsRepository, l logger.Logger) SettingsService {
	return &settingsService{
		repo: repo,
		l:    l,
	}
}

// Get returns the event's settings, creating and persisting the defaults on
// first read. Settings rows are upserted, never deleted.
func (s *settingsService) Get(ctx context.Context, eID string) (*models.QueueSettings, error) {
	st, err := s.repo.Get(ctx, eID)
	if err == nil {
		return st, nil
	}
	if !errors.Is(err, repo.ErrSettingsNotFound) {
		return nil, fmt.Errorf("failed to get queue settings: %w", err)
	}

	st = models.DefaultSettings(eID)
	if err := s.repo.Save(ctx, st); err != nil {
		return nil, fmt.Errorf("failed to save default queue settings: %w", err)
	}

	s.l.Infof(ctx, "Created default queue settings for event %s", eID)

	return st, nil
}

func (s *settingsService) Update(ctx context.Context, eID string, in UpdateSettingsInput) (*models.QueueSettings, error) {
	st, err := s.Get(ctx, eID)
	if err != nil {
		return nil, err
	}

	if in.Enabled != nil {
		st.Enabled = *in.Enabled
	}
	for lane, ls := range in.Lanes {
		st.Lanes[lane] = clampLane(ls)
	}
	if in.AllowTimeExtension != nil {
		st.AllowTimeExtension = *in.AllowTimeExtension
	}
	if in.ExtensionDuration != nil && *in.ExtensionDuration > 0 {
		st.ExtensionDuration = *in.ExtensionDuration
	}
	if in.ClearActiveWindow {
		st.ActiveFrom = nil
		st.ActiveUntil = nil
	} else {
		if in.ActiveFrom != nil {
			st.ActiveFrom = in.ActiveFrom
		}
		if in.ActiveUntil != nil {
			st.ActiveUntil = in.ActiveUntil
		}
	}
	if in.WaitingRoomMessage != nil {
		st.WaitingRoomMessage = *in.WaitingRoomMessage
	}
	st.UpdatedAt = time.Now()

	if err := s.repo.Save(ctx, st); err != nil {
		return nil, fmt.Errorf("failed to save queue settings: %w", err)
	}

	s.l.Infof(ctx, "Queue settings updated for event %s: enabled=%v", eID, st.Enabled)

	return st, nil
}

// clampLane forces caps and timeouts to sane positive values; a zero cap
// would deadlock the lane and a zero timeout would expire sessions instantly.
func clampLane(ls models.LaneSettings) models.LaneSettings {
	if ls.MaxConcurrent < 1 {
		ls.MaxConcurrent = 1
	}
	if ls.SessionTimeout < time.Second {
		ls.SessionTimeout = time.Second
	}
	return ls
}
