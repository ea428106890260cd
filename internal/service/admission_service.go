package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/vogiaan1904/regflow-gatekeeper/internal/kafka"
	"github.com/vogiaan1904/regflow-gatekeeper/internal/models"
	"github.com/vogiaan1904/regflow-gatekeeper/internal/monitoring"
	repo "github.com/vogiaan1904/regflow-gatekeeper/internal/repository/redis"
	"github.com/vogiaan1904/regflow-gatekeeper/pkg/logger"
)

// AdmissionService is the decision engine gating entry into the registration
// flow. It is called on every page load of the flow with a stable,
// caller-generated session id; the service never generates or rotates ids.
type AdmissionService interface {
	CheckAdmission(ctx context.Context, eID, ssID, lane string, rc RequestContext) (*AdmissionResult, error)
	GetStatus(ctx context.Context, eID, ssID, lane string) (*AdmissionResult, error)
	Extend(ctx context.Context, ssID string) (*ExtendResult, error)
	MarkCompleted(ctx context.Context, ssID string) error
	MarkAbandoned(ctx context.Context, ssID string) error
}

type admissionService struct {
	entries  repo.EntryRepository
	settings SettingsService
	prod     kafka.Producer
	l        logger.Logger
	now      func() time.Time
}

func NewAdmissionService(
	entries repo.EntryRepository,
	settings SettingsService,
	prod kafka.Producer,
	l logger.Logger,
) AdmissionService {
	return &admissionService{
		entries:  entries,
		settings: settings,
		prod:     prod,
		l:        l,
		now:      time.Now,
	}
}

func (s *admissionService) CheckAdmission(ctx context.Context, eID, ssID, lane string, rc RequestContext) (*AdmissionResult, error) {
	st, err := s.settings.Get(ctx, eID)
	if err != nil {
		return nil, err
	}

	now := s.now()

	// Full bypass: queue disabled or outside its schedule. No entry state is
	// created or consulted.
	if !st.IsActiveAt(now) {
		return &AdmissionResult{
			Allowed:   true,
			SessionID: ssID,
			Status:    models.EntryStatusActive,
		}, nil
	}

	laneCfg := st.Lane(lane)

	entry, err := s.entries.Get(ctx, ssID)
	if err != nil && !errors.Is(err, repo.ErrEntryNotFound) {
		return nil, fmt.Errorf("failed to get queue entry: %w", err)
	}

	wasWaiting := false
	if entry != nil {
		switch {
		case entry.Status == models.EntryStatusCompleted:
			// Idempotent replay after completion.
			return &AdmissionResult{
				Allowed:   true,
				SessionID: ssID,
				Status:    models.EntryStatusCompleted,
			}, nil

		case entry.IsLiveActive(now):
			return &AdmissionResult{
				Allowed:          true,
				SessionID:        ssID,
				Status:           models.EntryStatusActive,
				ExpiresAt:        entry.ExpiresAt,
				ExtensionAllowed: st.AllowTimeExtension && !entry.ExtensionUsed,
				ExtensionUsed:    entry.ExtensionUsed,
			}, nil

		case entry.Status == models.EntryStatusWaiting:
			wasWaiting = true

		default:
			// Expired, abandoned, or active past its expiry: back to waiting.
			// EnteredQueueAt survives the reset so the session keeps its
			// original seniority.
			entry.ResetForReentry()
		}
	} else {
		entry = &models.QueueEntry{
			SessionID:      ssID,
			EventID:        eID,
			Lane:           lane,
			UserID:         rc.UserID,
			IPAddress:      rc.IPAddress,
			UserAgent:      rc.UserAgent,
			Status:         models.EntryStatusWaiting,
			EnteredQueueAt: now,
			CreatedAt:      now,
		}
	}

	expiresAt := now.Add(laneCfg.SessionTimeout)

	res, err := s.entries.TryAdmit(ctx, repo.TryAdmitInput{
		EventID:       eID,
		Lane:          lane,
		SessionID:     ssID,
		MaxConcurrent: laneCfg.MaxConcurrent,
		EnteredAt:     entry.EnteredQueueAt,
		Now:           now,
		ExpiresAt:     expiresAt,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to run admission check: %w", err)
	}

	if res.Admitted {
		entry.Status = models.EntryStatusActive
		entry.AdmittedAt = &now
		entry.ExpiresAt = &expiresAt
		entry.QueuePosition = nil
		// A fresh admission always resets extension eligibility, even on
		// re-entry after expiry.
		entry.ExtensionUsed = false

		if err := s.entries.Save(ctx, entry); err != nil {
			return nil, fmt.Errorf("failed to save queue entry: %w", err)
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
				s.l.Errorf(ctx, "service.admissionService.CheckAdmission: %v", err)
			}
		}

		s.l.Infof(ctx, "Session admitted: session_id=%s event_id=%s lane=%s expires_at=%s",
			ssID, eID, lane, expiresAt.Format(time.RFC3339))

		return &AdmissionResult{
			Allowed:          true,
			SessionID:        ssID,
			Status:           models.EntryStatusActive,
			ExpiresAt:        entry.ExpiresAt,
			ExtensionAllowed: st.AllowTimeExtension,
		}, nil
	}

	pos := res.WaitingAhead + 1
	entry.Status = models.EntryStatusWaiting
	entry.QueuePosition = &pos

	if err := s.entries.Save(ctx, entry); err != nil {
		return nil, fmt.Errorf("failed to save queue entry: %w", err)
	}

	if !wasWaiting && s.prod != nil {
		if err := s.prod.PublishSessionQueued(ctx, kafka.SessionQueuedEvent{
			SessionID: ssID,
			EventID:   eID,
			Lane:      lane,
			Position:  pos,
			EnteredAt: entry.EnteredQueueAt,
		}); err != nil {
			s.l.Errorf(ctx, "service.admissionService.CheckAdmission: %v", err)
		}
	}

	return &AdmissionResult{
		Allowed:              false,
		SessionID:            ssID,
		Status:               models.EntryStatusWaiting,
		QueuePosition:        pos,
		EstimatedWaitMinutes: estimatedWaitMinutes(pos, laneCfg),
		WaitingRoomMessage:   st.WaitingRoomMessage,
	}, nil
}

// GetStatus is the read-only decision for polling UIs. It recomputes the
// position of waiting sessions (persisting it as a cache only) but never
// promotes anyone; promotion happens in CheckAdmission and the sweeper.
// Returns nil when the session has no entry.
func (s *admissionService) GetStatus(ctx context.Context, eID, ssID, lane string) (*AdmissionResult, error) {
	entry, err := s.entries.Get(ctx, ssID)
	if err != nil {
		if errors.Is(err, repo.ErrEntryNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get queue entry: %w", err)
	}

	now := s.now()

	switch {
	case entry.Status == models.EntryStatusCompleted:
		return &AdmissionResult{
			Allowed:   true,
			SessionID: ssID,
			Status:    models.EntryStatusCompleted,
		}, nil

	case entry.IsLiveActive(now):
		st, err := s.settings.Get(ctx, entry.EventID)
		if err != nil {
			return nil, err
		}
		return &AdmissionResult{
			Allowed:          true,
			SessionID:        ssID,
			Status:           models.EntryStatusActive,
			ExpiresAt:        entry.ExpiresAt,
			ExtensionAllowed: st.AllowTimeExtension && !entry.ExtensionUsed,
			ExtensionUsed:    entry.ExtensionUsed,
		}, nil

	case entry.Status == models.EntryStatusActive:
		// Past expiry but not yet swept: logically expired.
		return &AdmissionResult{
			Allowed:   false,
			SessionID: ssID,
			Status:    models.EntryStatusExpired,
		}, nil

	case entry.Status == models.EntryStatusWaiting:
		st, err := s.settings.Get(ctx, entry.EventID)
		if err != nil {
			return nil, err
		}

		ahead, err := s.entries.WaitingAhead(ctx, entry.EventID, entry.Lane, entry.EnteredQueueAt)
		if err != nil {
			return nil, fmt.Errorf("failed to count waiting sessions: %w", err)
		}

		pos := ahead + 1
		if entry.QueuePosition == nil || *entry.QueuePosition != pos {
			entry.QueuePosition = &pos
			if err := s.entries.Save(ctx, entry); err != nil {
				// Cached position only; the stored value is never the source
				// of truth for ordering.
				s.l.Warnf(ctx, "service.admissionService.GetStatus: %v", err)
			}
		}

		return &AdmissionResult{
			Allowed:              false,
			SessionID:            ssID,
			Status:               models.EntryStatusWaiting,
			QueuePosition:        pos,
			EstimatedWaitMinutes: estimatedWaitMinutes(pos, st.Lane(entry.Lane)),
			WaitingRoomMessage:   st.WaitingRoomMessage,
		}, nil

	default:
		return &AdmissionResult{
			Allowed:   false,
			SessionID: ssID,
			Status:    entry.Status,
		}, nil
	}
}

// Extend grants the one-time time extension. The new expiry is anchored at
// max(currentExpiresAt, now): a session extending right at the boundary gets
// the full grant, and an active row the sweeper has not yet reclaimed may
// still extend past its lapsed expiry. That grace is deliberate.
func (s *admissionService) Extend(ctx context.Context, ssID string) (*ExtendResult, error) {
	entry, err := s.entries.Get(ctx, ssID)
	if err != nil {
		if errors.Is(err, repo.ErrEntryNotFound) {
			return nil, ErrEntryNotFound
		}
		return nil, fmt.Errorf("failed to get queue entry: %w", err)
	}

	if entry.Status != models.EntryStatusActive || entry.ExpiresAt == nil {
		return nil, ErrEntryNotActive
	}
	if entry.ExtensionUsed {
		return nil, ErrExtensionUsed
	}

	st, err := s.settings.Get(ctx, entry.EventID)
	if err != nil {
		return nil, err
	}
	if !st.AllowTimeExtension {
		return nil, ErrExtensionNotAllowed
	}

	now := s.now()
	base := *entry.ExpiresAt
	if base.Before(now) {
		base = now
	}
	newExpiresAt := base.Add(st.ExtensionDuration)

	entry.ExpiresAt = &newExpiresAt
	entry.ExtensionUsed = true

	if err := s.entries.Save(ctx, entry); err != nil {
		return nil, fmt.Errorf("failed to save queue entry: %w", err)
	}
	if err := s.entries.ExtendActive(ctx, entry.EventID, entry.Lane, ssID, newExpiresAt); err != nil {
		return nil, fmt.Errorf("failed to extend active slot: %w", err)
	}

	monitoring.IncExtension(entry.EventID, entry.Lane)

	s.l.Infof(ctx, "Session extended: session_id=%s new_expires_at=%s",
		ssID, newExpiresAt.Format(time.RFC3339))

	return &ExtendResult{NewExpiresAt: newExpiresAt}, nil
}

// MarkCompleted records a successful registration. Missing entries are
// swallowed: the queue may have been bypassed when the session started.
func (s *admissionService) MarkCompleted(ctx context.Context, ssID string) error {
	entry, err := s.entries.Get(ctx, ssID)
	if err != nil {
		if errors.Is(err, repo.ErrEntryNotFound) {
			return nil
		}
		return fmt.Errorf("failed to get queue entry: %w", err)
	}

	now := s.now()
	entry.Status = models.EntryStatusCompleted
	entry.CompletedAt = &now
	entry.QueuePosition = nil

	if err := s.entries.Save(ctx, entry); err != nil {
		return fmt.Errorf("failed to save queue entry: %w", err)
	}
	if err := s.entries.RemoveFromIndexes(ctx, entry.EventID, entry.Lane, ssID); err != nil {
		return fmt.Errorf("failed to release queue slot: %w", err)
	}

	if s.prod != nil {
		if err := s.prod.PublishSessionCompleted(ctx, kafka.SessionCompletedEvent{
			SessionID:   ssID,
			EventID:     entry.EventID,
			Lane:        entry.Lane,
			CompletedAt: now,
		}); err != nil {
			s.l.Errorf(ctx, "service.admissionService.MarkCompleted: %v", err)
		}
	}

	s.l.Infof(ctx, "Session completed: session_id=%s event_id=%s", ssID, entry.EventID)

	return nil
}

// MarkAbandoned records an explicit exit. Idempotent; missing entries are
// swallowed for the same bypass reason as MarkCompleted.
func (s *admissionService) MarkAbandoned(ctx context.Context, ssID string) error {
	entry, err := s.entries.Get(ctx, ssID)
	if err != nil {
		if errors.Is(err, repo.ErrEntryNotFound) {
			return nil
		}
		return fmt.Errorf("failed to get queue entry: %w", err)
	}

	entry.Status = models.EntryStatusAbandoned
	entry.QueuePosition = nil

	if err := s.entries.Save(ctx, entry); err != nil {
		return fmt.Errorf("failed to save queue entry: %w", err)
	}
	if err := s.entries.RemoveFromIndexes(ctx, entry.EventID, entry.Lane, ssID); err != nil {
		return fmt.Errorf("failed to release queue slot: %w", err)
	}

	if s.prod != nil {
		if err := s.prod.PublishSessionAbandoned(ctx, kafka.SessionAbandonedEvent{
			SessionID: ssID,
			EventID:   entry.EventID,
			Lane:      entry.Lane,
			Reason:    "user_left",
		}); err != nil {
			s.l.Errorf(ctx, "service.admissionService.MarkAbandoned: %v", err)
		}
	}

	s.l.Infof(ctx, "Session abandoned: session_id=%s event_id=%s", ssID, entry.EventID)

	return nil
}

// estimatedWaitMinutes assumes slots turn over every session timeout and the
// lane serves maxConcurrent sessions per turnover cycle.
func estimatedWaitMinutes(pos int64, laneCfg models.LaneSettings) int {
	if laneCfg.MaxConcurrent <= 0 {
		return 0
	}
	perSession := laneCfg.SessionTimeout.Minutes() / float64(laneCfg.MaxConcurrent)
	return int(math.Ceil(float64(pos) * perSession))
}
