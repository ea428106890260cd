package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/vogiaan1904/regflow-gatekeeper/internal/models"
	"github.com/vogiaan1904/regflow-gatekeeper/pkg/logger"
)

var ErrEntryNotFound = errors.New("queue entry not found")

type TryAdmitInput struct {
	EventID       string
	Lane          string
	SessionID     string
	MaxConcurrent int
	EnteredAt     time.Time
	Now           time.Time
	ExpiresAt     time.Time
}

type TryAdmitResult struct {
	Admitted     bool
	WaitingAhead int64
}

// EntryRepository is the durable queue entry store. Entries are JSON blobs
// keyed by session id; per event+lane sorted sets index active members by
// expiry and waiting members by queue entry time, so occupancy, FIFO order
// and expiry reaping are all range queries over the same predicate the
// admission logic uses.
type EntryRepository interface {
	Get(ctx context.Context, ssID string) (*models.QueueEntry, error)
	Save(ctx context.Context, e *models.QueueEntry) error
	TryAdmit(ctx context.Context, in TryAdmitInput) (*TryAdmitResult, error)
	WaitingAhead(ctx context.Context, eID, lane string, enteredAt time.Time) (int64, error)
	CountActive(ctx context.Context, eID, lane string, now time.Time) (int64, error)
	CountWaiting(ctx context.Context, eID, lane string) (int64, error)
	ReapExpired(ctx context.Context, eID, lane string, now time.Time) ([]string, error)
	PromoteOldest(ctx context.Context, eID, lane string, maxConcurrent int, now, expiresAt time.Time) ([]string, error)
	ExtendActive(ctx context.Context, eID, lane, ssID string, expiresAt time.Time) error
	RemoveFromIndexes(ctx context.Context, eID, lane, ssID string) error
	Events(ctx context.Context) ([]string, error)
	Lanes(ctx context.Context, eID string) ([]string, error)
}

type redisEntryRepository struct {
	cli *redis.Client
	ttl time.Duration
	l   logger.Logger
}

func NewRedisEntryRepository(cli *redis.Client, ttl time.Duration, l logger.Logger) EntryRepository {
	return &redisEntryRepository{
		cli: cli,
		ttl: ttl,
		l:   l,
	}
}

func (r *redisEntryRepository) Get(ctx context.Context, ssID string) (*models.QueueEntry, error) {
	data, err := r.cli.Get(ctx, r.entryKey(ssID)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, ErrEntryNotFound
		}
		r.l.Errorf(ctx, "redisEntryRepository.Get: %v", err)
		return nil, err
	}

	var e models.QueueEntry
	if err := json.Unmarshal(data, &e); err != nil {
		r.l.Errorf(ctx, "redisEntryRepository.Get: %v", err)
		return nil, fmt.Errorf("failed to unmarshal queue entry: %w", err)
	}

	return &e, nil
}

func (r *redisEntryRepository) Save(ctx context.Context, e *models.QueueEntry) error {
	e.UpdatedAt = time.Now()

	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to marshal queue entry: %w", err)
	}

	if err := r.cli.Set(ctx, r.entryKey(e.SessionID), data, r.ttl).Err(); err != nil {
		r.l.Errorf(ctx, "redisEntryRepository.Save: %v", err)
		return err
	}

	return nil
}

func (r *redisEntryRepository) TryAdmit(ctx context.Context, in TryAdmitInput) (*TryAdmitResult, error) {
	keys := []string{
		r.activeKey(in.EventID, in.Lane),
		r.waitingKey(in.EventID, in.Lane),
		r.eventsKey(),
		r.lanesKey(in.EventID),
	}
	argv := []interface{}{
		in.SessionID,
		in.MaxConcurrent,
		in.Now.UnixMilli(),
		in.ExpiresAt.UnixMilli(),
		in.EnteredAt.UnixMilli(),
		in.EventID,
		in.Lane,
	}

	res, err := admitScript.Run(ctx, r.cli, keys, argv...).Slice()
	if err != nil {
		r.l.Errorf(ctx, "redisEntryRepository.TryAdmit: %v", err)
		return nil, err
	}
	if len(res) != 2 {
		return nil, fmt.Errorf("unexpected admit script reply: %v", res)
	}

	admitted, _ := res[0].(int64)
	ahead, _ := res[1].(int64)

	return &TryAdmitResult{
		Admitted:     admitted == 1,
		WaitingAhead: ahead,
	}, nil
}

func (r *redisEntryRepository) WaitingAhead(ctx context.Context, eID, lane string, enteredAt time.Time) (int64, error) {
	max := "(" + strconv.FormatInt(enteredAt.UnixMilli(), 10)

	count, err := r.cli.ZCount(ctx, r.waitingKey(eID, lane), "-inf", max).Result()
	if err != nil {
		r.l.Errorf(ctx, "redisEntryRepository.WaitingAhead: %v", err)
		return 0, err
	}

	return count, nil
}

func (r *redisEntryRepository) CountActive(ctx context.Context, eID, lane string, now time.Time) (int64, error) {
	min := "(" + strconv.FormatInt(now.UnixMilli(), 10)

	count, err := r.cli.ZCount(ctx, r.activeKey(eID, lane), min, "+inf").Result()
	if err != nil {
		r.l.Errorf(ctx, "redisEntryRepository.CountActive: %v", err)
		return 0, err
	}

	return count, nil
}

func (r *redisEntryRepository) CountWaiting(ctx context.Context, eID, lane string) (int64, error) {
	count, err := r.cli.ZCard(ctx, r.waitingKey(eID, lane)).Result()
	if err != nil {
		r.l.Errorf(ctx, "redisEntryRepository.CountWaiting: %v", err)
		return 0, err
	}

	return count, nil
}

func (r *redisEntryRepository) ReapExpired(ctx context.Context, eID, lane string, now time.Time) ([]string, error) {
	res, err := reapScript.Run(ctx, r.cli, []string{r.activeKey(eID, lane)}, now.UnixMilli()).Result()
	if err != nil {
		r.l.Errorf(ctx, "redisEntryRepository.ReapExpired: %v", err)
		return nil, err
	}

	return toStringSlice(res), nil
}

func (r *redisEntryRepository) PromoteOldest(ctx context.Context, eID, lane string, maxConcurrent int, now, expiresAt time.Time) ([]string, error) {
	keys := []string{r.activeKey(eID, lane), r.waitingKey(eID, lane)}

	res, err := promoteScript.Run(ctx, r.cli, keys, maxConcurrent, now.UnixMilli(), expiresAt.UnixMilli()).Result()
	if err != nil {
		r.l.Errorf(ctx, "redisEntryRepository.PromoteOldest: %v", err)
		return nil, err
	}

	return toStringSlice(res), nil
}

func (r *redisEntryRepository) ExtendActive(ctx context.Context, eID, lane, ssID string, expiresAt time.Time) error {
	// XX: only refresh the score of a member still holding a slot. A session
	// already reaped by the sweeper must not re-enter the active set here.
	if err := r.cli.ZAddXX(ctx, r.activeKey(eID, lane), redis.Z{
		Score:  float64(expiresAt.UnixMilli()),
		Member: ssID,
	}).Err(); err != nil {
		r.l.Errorf(ctx, "redisEntryRepository.ExtendActive: %v", err)
		return err
	}

	return nil
}

func (r *redisEntryRepository) RemoveFromIndexes(ctx context.Context, eID, lane, ssID string) error {
	pipe := r.cli.Pipeline()
	pipe.ZRem(ctx, r.activeKey(eID, lane), ssID)
	pipe.ZRem(ctx, r.waitingKey(eID, lane), ssID)

	if _, err := pipe.Exec(ctx); err != nil {
		r.l.Errorf(ctx, "redisEntryRepository.RemoveFromIndexes: %v", err)
		return err
	}

	return nil
}

func (r *redisEntryRepository) Events(ctx context.Context) ([]string, error) {
	events, err := r.cli.SMembers(ctx, r.eventsKey()).Result()
	if err != nil {
		r.l.Errorf(ctx, "redisEntryRepository.Events: %v", err)
		return nil, err
	}

	return events, nil
}

func (r *redisEntryRepository) Lanes(ctx context.Context, eID string) ([]string, error) {
	lanes, err := r.cli.SMembers(ctx, r.lanesKey(eID)).Result()
	if err != nil {
		r.l.Errorf(ctx, "redisEntryRepository.Lanes: %v", err)
		return nil, err
	}

	return lanes, nil
}

func (r *redisEntryRepository) entryKey(ssID string) string {
	return fmt.Sprintf("gatekeeper:entry:%s", ssID)
}

func (r *redisEntryRepository) activeKey(eID, lane string) string {
	return fmt.Sprintf("gatekeeper:%s:%s:active", eID, lane)
}

func (r *redisEntryRepository) waitingKey(eID, lane string) string {
	return fmt.Sprintf("gatekeeper:%s:%s:waiting", eID, lane)
}

func (r *redisEntryRepository) eventsKey() string {
	return "gatekeeper:events"
}

func (r *redisEntryRepository) lanesKey(eID string) string {
	return fmt.Sprintf("gatekeeper:%s:lanes", eID)
}

func toStringSlice(res interface{}) []string {
	out := make([]string, 0)
	if slice, ok := res.([]interface{}); ok {
		for _, v := range slice {
			if s, ok := v.(string); ok {
				out = append(out, s)
			}
		}
	}
	return out
}
