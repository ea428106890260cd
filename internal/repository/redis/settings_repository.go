package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/vogiaan1904/regflow-gatekeeper/internal/models"
	"github.com/vogiaan1904/regflow-gatekeeper/pkg/logger"
)

var ErrSettingsNotFound = errors.New("queue settings not found")

// SettingsRepository stores per-event queue configuration. Absence is
// reported, not papered over: the settings service decides when to create
// defaults, and the stats reporter needs to distinguish "never configured".
type SettingsRepository interface {
	Get(ctx context.Context, eID string) (*models.QueueSettings, error)
	Save(ctx context.Context, s *models.QueueSettings) error
	Exists(ctx context.Context, eID string) (bool, error)
}

type redisSettingsRepository struct {
	cli *redis.Client
	l   logger.Logger
}

func NewRedisSettingsRepository(cli *redis.Client, l logger.Logger) SettingsRepository {
	return &redisSettingsRepository{
		cli: cli,
		l:   l,
	}
}

func (r *redisSettingsRepository) Get(ctx context.Context, eID string) (*models.QueueSettings, error) {
	data, err := r.cli.Get(ctx, r.settingsKey(eID)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, ErrSettingsNotFound
		}
		r.l.Errorf(ctx, "redisSettingsRepository.Get: %v", err)
		return nil, err
	}

	var s models.QueueSettings
	if err := json.Unmarshal(data, &s); err != nil {
		r.l.Errorf(ctx, "redisSettingsRepository.Get: %v", err)
		return nil, fmt.Errorf("failed to unmarshal queue settings: %w", err)
	}

	return &s, nil
}

func (r *redisSettingsRepository) Save(ctx context.Context, s *models.QueueSettings) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to marshal queue settings: %w", err)
	}

	// Settings rows are never deleted, so no TTL.
	if err := r.cli.Set(ctx, r.settingsKey(s.EventID), data, 0).Err(); err != nil {
		r.l.Errorf(ctx, "redisSettingsRepository.Save: %v", err)
		return err
	}

	return nil
}

func (r *redisSettingsRepository) Exists(ctx context.Context, eID string) (bool, error) {
	n, err := r.cli.Exists(ctx, r.settingsKey(eID)).Result()
	if err != nil {
		r.l.Errorf(ctx, "redisSettingsRepository.Exists: %v", err)
		return false, err
	}

	return n > 0, nil
}

func (r *redisSettingsRepository) settingsKey(eID string) string {
	return fmt.Sprintf("gatekeeper:settings:%s", eID)
}
