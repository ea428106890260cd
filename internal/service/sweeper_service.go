package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/vogiaan1904/regflow-gatekeeper/internal/kafka"
	"github.com/vogiaan1904/regflow-gatekeeper/internal/models"
	"github.com/vogiaan1904/regflow-gatekeeper/internal/monitoring"
	repo "github.com/vogiaan1904/regflow-gatekeeper/internal/repository/redis"
	"github.com/vogiaan1904/regflow-gatekeeper/pkg/logger"
)

// SweeperService reconciles queue state independently of any session's own
// requests: it expires stale active sessions and promotes the longest-waiting
// ones into the freed slots. This is what keeps the queue from deadlocking
// behind sessions that vanished without an abandon signal.
type SweeperService interface {
	Sweep(ctx context.Context) (*SweepResult, error)
	ClearStuckSessions(ctx context.Context, eID string) (int, error)
}

type sweeperService struct {
	entries  repo.EntryRepository
	settings repo.SettingsRepository
	prod     kafka.Producer
	l        logger.Logger
	now      func() time.Time
}

func NewSweeperService(
	entries repo.EntryRepository,
	settings repo.SettingsRepository,
	prod kafka.Producer,
	l logger.Logger,
) SweeperService {
	return &sweeperService{
		entries:  entries,
		settings: settings,
		prod:     prod,
		l:        l,
		now:      time.Now,
	}
}

// Sweep runs the two reconciliation phases: a global expiry pass over every
// known event and lane, then a promotion pass for events whose queue is
// enabled and inside its schedule. Safe to call concurrently or redundantly;
// the store-side guards make both phases claim each session at most once.
func (s *sweeperService) Sweep(ctx context.Context) (*SweepResult, error) {
	start := s.now()
	defer func() {
		monitoring.ObserveSweepDuration(time.Since(start))
	}()

	events, err := s.entries.Events(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}

	res := &SweepResult{}

	for _, eID := range events {
		lanes, err := s.entries.Lanes(ctx, eID)
		if err != nil {
			s.l.Errorf(ctx, "service.sweeperService.Sweep: %v", err)
			continue
		}

		for _, lane := range lanes {
			n, err := s.expireLane(ctx, eID, lane)
			if err != nil {
				s.l.Errorf(ctx, "service.sweeperService.Sweep: %v", err)
				continue
			}
			res.Expired += n
		}
	}

	for _, eID := range events {
		st, err := s.settings.Get(ctx, eID)
		if err != nil {
			if !errors.Is(err, repo.ErrSettingsNotFound) {
				s.l.Errorf(ctx, "service.sweeperService.Sweep: %v", err)
			}
			continue
		}
		if !st.IsActiveAt(s.now()) {
			continue
		}

		lanes, err := s.entries.Lanes(ctx, eID)
		if err != nil {
			s.l.Errorf(ctx, "service.sweeperService.Sweep: %v", err)
			continue
		}

		for _, lane := range lanes {
			n, err := s.promoteLane(ctx, eID, lane, st.Lane(lane))
			if err != nil {
				s.l.Errorf(ctx, "service.sweeperService.Sweep: %v", err)
				continue
			}
			res.Admitted += n
		}
	}

	// Depth gauges are refreshed here rather than only on dashboard reads, so
	// /metrics stays current between stats polls.
	for _, eID := range events {
		lanes, err := s.entries.Lanes(ctx, eID)
		if err != nil {
			s.l.Errorf(ctx, "service.sweeperService.Sweep: %v", err)
			continue
		}
		for _, lane := range lanes {
			s.refreshDepth(ctx, eID, lane)
		}
	}

	if res.Expired > 0 || res.Admitted > 0 {
		s.l.Infof(ctx, "Sweep completed: expired=%d admitted=%d", res.Expired, res.Admitted)
	}

	return res, nil
}

func (s *sweeperService) refreshDepth(ctx context.Context, eID, lane string) {
	active, err := s.entries.CountActive(ctx, eID, lane, s.now())
	if err != nil {
		s.l.Warnf(ctx, "service.sweeperService.refreshDepth: %v", err)
		return
	}
	waiting, err := s.entries.CountWaiting(ctx, eID, lane)
	if err != nil {
		s.l.Warnf(ctx, "service.sweeperService.refreshDepth: %v", err)
		return
	}

	monitoring.SetQueueDepth(eID, lane, active, waiting)
}

// ClearStuckSessions is the operator-triggered expiry pass for one event. It
// does not promote; waiting sessions move up on the next sweep or their next
// admission check.
func (s *sweeperService) ClearStuckSessions(ctx context.Context, eID string) (int, error) {
	lanes, err := s.entries.Lanes(ctx, eID)
	if err != nil {
		return 0, fmt.Errorf("failed to list lanes: %w", err)
	}

	cleared := 0
	for _, lane := range lanes {
		n, err := s.expireLane(ctx, eID, lane)
		if err != nil {
			return cleared, err
		}
		cleared += n
	}

	s.l.Infof(ctx, "Cleared stuck sessions: event_id=%s count=%d", eID, cleared)

	return cleared, nil
}

func (s *sweeperService) expireLane(ctx context.Context, eID, lane string) (int, error) {
	now := s.now()

	ids, err := s.entries.ReapExpired(ctx, eID, lane, now)
	if err != nil {
		return 0, fmt.Errorf("failed to reap expired sessions: %w", err)
	}

	expired := 0
	for _, ssID := range ids {
		entry, err := s.entries.Get(ctx, ssID)
		if err != nil {
			s.l.Warnf(ctx, "service.sweeperService.expireLane: %v", err)
			continue
		}

		// The reaped member can be a leftover from an earlier grant: the
		// session may have re-entered the queue or been re-admitted with a
		// fresh expiry since. Only a lapsed active entry flips to expired.
		if entry.Status != models.EntryStatusActive || entry.IsLiveActive(now) {
			continue
		}

		entry.Status = models.EntryStatusExpired
		entry.QueuePosition = nil

		if err := s.entries.Save(ctx, entry); err != nil {
			s.l.Errorf(ctx, "service.sweeperService.expireLane: %v", err)
			continue
		}

		monitoring.IncExpiration(eID, lane)

		if s.prod != nil {
			if err := s.prod.PublishSessionExpired(ctx, kafka.SessionExpiredEvent{
				SessionID: ssID,
				EventID:   eID,
				Lane:      lane,
				ExpiredAt: now,
			}); err != nil {
				s.l.Errorf(ctx, "service.sweeperService.expireLane: %v", err)
			}
		}

		expired++
	}

	return expired, nil
}

func (s *sweeperService) promoteLane(ctx context.Context, eID, lane string, laneCfg models.LaneSettings) (int, error) {
	now := s.now()
	expiresAt := now.Add(laneCfg.SessionTimeout)

	ids, err := s.entries.PromoteOldest(ctx, eID, lane, laneCfg.MaxConcurrent, now, expiresAt)
	if err != nil {
		return 0, fmt.Errorf("failed to promote waiting sessions: %w", err)
	}

	for _, ssID := range ids {
		entry, err := s.entries.Get(ctx, ssID)
		if err != nil {
			s.l.Warnf(ctx, "service.sweeperService.promoteLane: %v", err)
			continue
		}

		entry.Status = models.EntryStatusActive
		entry.AdmittedAt = &now
		entry.ExpiresAt = &expiresAt
		entry.QueuePosition = nil
		entry.ExtensionUsed = false

		if err := s.entries.Save(ctx, entry); err != nil {
			s.l.Errorf(ctx, "service.sweeperService.promoteLane: %v", err)
			continue
		}

		monitoring.IncAdmission(eID, lane)

		if s.prod != nil {
			if err := s.prod.PublishSessionAdmitted(ctx, kafka.SessionAdmittedEvent{
				SessionID:  ssID,
				EventID:    eID,
				Lane:       lane,
				AdmittedAt: now,
				ExpiresAt:  expiresAt,
			}); err != nil {
				s.l.Errorf(ctx, "service.sweeperService.promoteLane: %v", err)
			}
		}

		s.l.Infof(ctx, "Session promoted from queue: session_id=%s event_id=%s lane=%s",
			ssID, eID, lane)
	}

	return len(ids), nil
}
