package service

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/vogiaan1904/regflow-gatekeeper/internal/kafka"
	"github.com/vogiaan1904/regflow-gatekeeper/internal/models"
	repo "github.com/vogiaan1904/regflow-gatekeeper/internal/repository/redis"
)

// fakeClock lets tests move time without sleeping.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// fakeEntryRepo mirrors the Redis entry store semantics in memory: JSON-blob
// entries plus per event+lane active/waiting indexes with the same scoring
// and the same atomic claim guarantees.
type fakeEntryRepo struct {
	mu      sync.Mutex
	entries map[string]models.QueueEntry
	active  map[string]map[string]int64 // event|lane -> session -> expiry ms
	waiting map[string]map[string]int64 // event|lane -> session -> entered ms
	events  map[string]struct{}
	lanes   map[string]map[string]struct{}
}

func newFakeEntryRepo() *fakeEntryRepo {
	return &fakeEntryRepo{
		entries: make(map[string]models.QueueEntry),
		active:  make(map[string]map[string]int64),
		waiting: make(map[string]map[string]int64),
		events:  make(map[string]struct{}),
		lanes:   make(map[string]map[string]struct{}),
	}
}

func laneKey(eID, lane string) string { return eID + "|" + lane }

func (f *fakeEntryRepo) index(m map[string]map[string]int64, key string) map[string]int64 {
	if m[key] == nil {
		m[key] = make(map[string]int64)
	}
	return m[key]
}

func (f *fakeEntryRepo) Get(_ context.Context, ssID string) (*models.QueueEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	e, ok := f.entries[ssID]
	if !ok {
		return nil, repo.ErrEntryNotFound
	}
	cp := e
	return &cp, nil
}

func (f *fakeEntryRepo) Save(_ context.Context, e *models.QueueEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.entries[e.SessionID] = *e
	return nil
}

func (f *fakeEntryRepo) TryAdmit(_ context.Context, in repo.TryAdmitInput) (*repo.TryAdmitResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	key := laneKey(in.EventID, in.Lane)
	active := f.index(f.active, key)
	waiting := f.index(f.waiting, key)

	f.events[in.EventID] = struct{}{}
	if f.lanes[in.EventID] == nil {
		f.lanes[in.EventID] = make(map[string]struct{})
	}
	f.lanes[in.EventID][in.Lane] = struct{}{}

	nowMs := in.Now.UnixMilli()
	occupancy := 0
	for _, exp := range active {
		if exp > nowMs {
			occupancy++
		}
	}

	if occupancy < in.MaxConcurrent {
		active[in.SessionID] = in.ExpiresAt.UnixMilli()
		delete(waiting, in.SessionID)
		return &repo.TryAdmitResult{Admitted: true}, nil
	}

	// Mirrors the admit script: a queued session's stale active membership
	// from an earlier grant is cleared so the sweeper cannot reap it.
	delete(active, in.SessionID)

	enteredMs := in.EnteredAt.UnixMilli()
	if _, ok := waiting[in.SessionID]; !ok {
		waiting[in.SessionID] = enteredMs
	}

	var ahead int64
	for _, entered := range waiting {
		if entered < waiting[in.SessionID] {
			ahead++
		}
	}

	return &repo.TryAdmitResult{Admitted: false, WaitingAhead: ahead}, nil
}

func (f *fakeEntryRepo) WaitingAhead(_ context.Context, eID, lane string, enteredAt time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var ahead int64
	for _, entered := range f.index(f.waiting, laneKey(eID, lane)) {
		if entered < enteredAt.UnixMilli() {
			ahead++
		}
	}
	return ahead, nil
}

func (f *fakeEntryRepo) CountActive(_ context.Context, eID, lane string, now time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var n int64
	for _, exp := range f.index(f.active, laneKey(eID, lane)) {
		if exp > now.UnixMilli() {
			n++
		}
	}
	return n, nil
}

func (f *fakeEntryRepo) CountWaiting(_ context.Context, eID, lane string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	return int64(len(f.index(f.waiting, laneKey(eID, lane)))), nil
}

func (f *fakeEntryRepo) ReapExpired(_ context.Context, eID, lane string, now time.Time) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	active := f.index(f.active, laneKey(eID, lane))
	var stale []string
	for ssID, exp := range active {
		if exp <= now.UnixMilli() {
			stale = append(stale, ssID)
		}
	}
	for _, ssID := range stale {
		delete(active, ssID)
	}
	sort.Strings(stale)
	return stale, nil
}

func (f *fakeEntryRepo) PromoteOldest(_ context.Context, eID, lane string, maxConcurrent int, now, expiresAt time.Time) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	key := laneKey(eID, lane)
	active := f.index(f.active, key)
	waiting := f.index(f.waiting, key)

	occupancy := 0
	for _, exp := range active {
		if exp > now.UnixMilli() {
			occupancy++
		}
	}
	spots := maxConcurrent - occupancy
	if spots <= 0 {
		return nil, nil
	}

	type member struct {
		id      string
		entered int64
	}
	members := make([]member, 0, len(waiting))
	for ssID, entered := range waiting {
		members = append(members, member{ssID, entered})
	}
	sort.Slice(members, func(i, j int) bool {
		if members[i].entered != members[j].entered {
			return members[i].entered < members[j].entered
		}
		return members[i].id < members[j].id
	})

	if spots > len(members) {
		spots = len(members)
	}

	promoted := make([]string, 0, spots)
	for _, m := range members[:spots] {
		delete(waiting, m.id)
		active[m.id] = expiresAt.UnixMilli()
		promoted = append(promoted, m.id)
	}
	return promoted, nil
}

func (f *fakeEntryRepo) ExtendActive(_ context.Context, eID, lane, ssID string, expiresAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	active := f.index(f.active, laneKey(eID, lane))
	if _, ok := active[ssID]; ok {
		active[ssID] = expiresAt.UnixMilli()
	}
	return nil
}

func (f *fakeEntryRepo) RemoveFromIndexes(_ context.Context, eID, lane, ssID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	delete(f.index(f.active, laneKey(eID, lane)), ssID)
	delete(f.index(f.waiting, laneKey(eID, lane)), ssID)
	return nil
}

func (f *fakeEntryRepo) Events(_ context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]string, 0, len(f.events))
	for eID := range f.events {
		out = append(out, eID)
	}
	sort.Strings(out)
	return out, nil
}

func (f *fakeEntryRepo) Lanes(_ context.Context, eID string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]string, 0, len(f.lanes[eID]))
	for lane := range f.lanes[eID] {
		out = append(out, lane)
	}
	sort.Strings(out)
	return out, nil
}

func (f *fakeEntryRepo) entryCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.entries)
}

type fakeSettingsRepo struct {
	mu       sync.Mutex
	settings map[string]*models.QueueSettings
}

func newFakeSettingsRepo() *fakeSettingsRepo {
	return &fakeSettingsRepo{settings: make(map[string]*models.QueueSettings)}
}

func (f *fakeSettingsRepo) Get(_ context.Context, eID string) (*models.QueueSettings, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	st, ok := f.settings[eID]
	if !ok {
		return nil, repo.ErrSettingsNotFound
	}
	return st, nil
}

func (f *fakeSettingsRepo) Save(_ context.Context, st *models.QueueSettings) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.settings[st.EventID] = st
	return nil
}

func (f *fakeSettingsRepo) Exists(_ context.Context, eID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	_, ok := f.settings[eID]
	return ok, nil
}

// fakeProducer records published lifecycle events.
type fakeProducer struct {
	mu        sync.Mutex
	queued    []kafka.SessionQueuedEvent
	admitted  []kafka.SessionAdmittedEvent
	expired   []kafka.SessionExpiredEvent
	completed []kafka.SessionCompletedEvent
	abandoned []kafka.SessionAbandonedEvent
}

func (p *fakeProducer) PublishSessionQueued(_ context.Context, e kafka.SessionQueuedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.queued = append(p.queued, e)
	return nil
}

func (p *fakeProducer) PublishSessionAdmitted(_ context.Context, e kafka.SessionAdmittedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.admitted = append(p.admitted, e)
	return nil
}

func (p *fakeProducer) PublishSessionExpired(_ context.Context, e kafka.SessionExpiredEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.expired = append(p.expired, e)
	return nil
}

func (p *fakeProducer) PublishSessionCompleted(_ context.Context, e kafka.SessionCompletedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.completed = append(p.completed, e)
	return nil
}

func (p *fakeProducer) PublishSessionAbandoned(_ context.Context, e kafka.SessionAbandonedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.abandoned = append(p.abandoned, e)
	return nil
}

func (p *fakeProducer) Close() error { return nil }
