package repository

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vogiaan1904/regflow-gatekeeper/internal/models"
	pkgLog "github.com/vogiaan1904/regflow-gatekeeper/pkg/logger"
)

func newEntryRepo(t *testing.T) (EntryRepository, redismock.ClientMock) {
	t.Helper()

	cli, mock := redismock.NewClientMock()
	return NewRedisEntryRepository(cli, 24*time.Hour, pkgLog.InitializeTestZapLogger()), mock
}

func TestEntryRepository_Get(t *testing.T) {
	repo, mock := newEntryRepo(t)

	entry := models.QueueEntry{
		SessionID: "ss-1",
		EventID:   "ev-1",
		Lane:      models.LaneGroup,
		Status:    models.EntryStatusWaiting,
	}
	data, err := json.Marshal(entry)
	require.NoError(t, err)

	mock.ExpectGet("gatekeeper:entry:ss-1").SetVal(string(data))

	got, err := repo.Get(context.Background(), "ss-1")
	require.NoError(t, err)
	assert.Equal(t, entry.SessionID, got.SessionID)
	assert.Equal(t, entry.EventID, got.EventID)
	assert.Equal(t, models.EntryStatusWaiting, got.Status)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEntryRepository_GetNotFound(t *testing.T) {
	repo, mock := newEntryRepo(t)

	mock.ExpectGet("gatekeeper:entry:missing").RedisNil()

	_, err := repo.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrEntryNotFound)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEntryRepository_GetCorruptPayload(t *testing.T) {
	repo, mock := newEntryRepo(t)

	mock.ExpectGet("gatekeeper:entry:ss-1").SetVal("{not json")

	_, err := repo.Get(context.Background(), "ss-1")
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrEntryNotFound)
}

func TestEntryRepository_CountActive(t *testing.T) {
	repo, mock := newEntryRepo(t)

	now := time.UnixMilli(1_750_000_000_000)

	// Only members strictly beyond now count as occupants.
	mock.ExpectZCount("gatekeeper:ev-1:group:active", "(1750000000000", "+inf").SetVal(3)

	n, err := repo.CountActive(context.Background(), "ev-1", models.LaneGroup, now)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEntryRepository_WaitingAhead(t *testing.T) {
	repo, mock := newEntryRepo(t)

	enteredAt := time.UnixMilli(1_750_000_000_000)

	// Exclusive upper bound: the session itself is not ahead of itself.
	mock.ExpectZCount("gatekeeper:ev-1:group:waiting", "-inf", "(1750000000000").SetVal(7)

	n, err := repo.WaitingAhead(context.Background(), "ev-1", models.LaneGroup, enteredAt)
	require.NoError(t, err)
	assert.Equal(t, int64(7), n)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEntryRepository_CountWaiting(t *testing.T) {
	repo, mock := newEntryRepo(t)

	mock.ExpectZCard("gatekeeper:ev-1:group:waiting").SetVal(12)

	n, err := repo.CountWaiting(context.Background(), "ev-1", models.LaneGroup)
	require.NoError(t, err)
	assert.Equal(t, int64(12), n)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEntryRepository_ExtendActive(t *testing.T) {
	repo, mock := newEntryRepo(t)

	expiresAt := time.UnixMilli(1_750_000_300_000)

	mock.ExpectZAddXX("gatekeeper:ev-1:group:active", redis.Z{
		Score:  float64(expiresAt.UnixMilli()),
		Member: "ss-1",
	}).SetVal(1)

	err := repo.ExtendActive(context.Background(), "ev-1", models.LaneGroup, "ss-1", expiresAt)
	require.NoError(t, err)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEntryRepository_RemoveFromIndexes(t *testing.T) {
	repo, mock := newEntryRepo(t)

	mock.ExpectZRem("gatekeeper:ev-1:group:active", "ss-1").SetVal(1)
	mock.ExpectZRem("gatekeeper:ev-1:group:waiting", "ss-1").SetVal(0)

	err := repo.RemoveFromIndexes(context.Background(), "ev-1", models.LaneGroup, "ss-1")
	require.NoError(t, err)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEntryRepository_Events(t *testing.T) {
	repo, mock := newEntryRepo(t)

	mock.ExpectSMembers("gatekeeper:events").SetVal([]string{"ev-1", "ev-2"})

	events, err := repo.Events(context.Background())
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"ev-1", "ev-2"}, events)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEntryRepository_Lanes(t *testing.T) {
	repo, mock := newEntryRepo(t)

	mock.ExpectSMembers("gatekeeper:ev-1:lanes").SetVal([]string{models.LaneGroup, models.LaneIndividual})

	lanes, err := repo.Lanes(context.Background(), "ev-1")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"group", "individual"}, lanes)

	assert.NoError(t, mock.ExpectationsWereMet())
}
