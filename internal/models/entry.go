package models

import "time"

type EntryStatus string

const (
	EntryStatusWaiting   EntryStatus = "waiting"
	EntryStatusActive    EntryStatus = "active"
	EntryStatusCompleted EntryStatus = "completed"
	EntryStatusExpired   EntryStatus = "expired"
	EntryStatusAbandoned EntryStatus = "abandoned"
)

// QueueEntry is one session's row in the registration queue. SessionID is
// caller-supplied and unique across the store; a session belongs to exactly
// one event at a time.
type QueueEntry struct {
	SessionID      string      `json:"session_id"`
	EventID        string      `json:"event_id"`
	Lane           string      `json:"lane"`
	UserID         string      `json:"user_id,omitempty"`
	IPAddress      string      `json:"ip_address,omitempty"`
	UserAgent      string      `json:"user_agent,omitempty"`
	Status         EntryStatus `json:"status"`
	EnteredQueueAt time.Time   `json:"entered_queue_at"`
	QueuePosition  *int64      `json:"queue_position,omitempty"`
	AdmittedAt     *time.Time  `json:"admitted_at,omitempty"`
	ExpiresAt      *time.Time  `json:"expires_at,omitempty"`
	ExtensionUsed  bool        `json:"extension_used"`
	CompletedAt    *time.Time  `json:"completed_at,omitempty"`
	CreatedAt      time.Time   `json:"created_at"`
	UpdatedAt      time.Time   `json:"updated_at"`
}

// IsLiveActive reports whether the entry currently occupies a slot. The time
// check is part of the definition: an active row past its expiry no longer
// counts toward capacity even before a sweep flips its status.
func (e *QueueEntry) IsLiveActive(now time.Time) bool {
	return e.Status == EntryStatusActive && e.ExpiresAt != nil && e.ExpiresAt.After(now)
}

func (e *QueueEntry) IsTerminal() bool {
	return e.Status == EntryStatusCompleted
}

// ResetForReentry puts an expired or abandoned entry back into the waiting
// state. EnteredQueueAt is preserved, so a returning session keeps its
// original place in line.
func (e *QueueEntry) ResetForReentry() {
	e.Status = EntryStatusWaiting
	e.QueuePosition = nil
	e.AdmittedAt = nil
	e.ExpiresAt = nil
	e.ExtensionUsed = false
}
