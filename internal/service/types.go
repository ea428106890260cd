package service

import (
	"time"

	"github.com/vogiaan1904/regflow-gatekeeper/internal/models"
)

// RequestContext carries audit context from the registration flow. All fields
// are optional.
type RequestContext struct {
	UserID    string
	IPAddress string
	UserAgent string
}

// AdmissionResult is the outcome of an admission decision. QueuePosition and
// EstimatedWaitMinutes are only meaningful when the session is waiting;
// ExpiresAt and the extension fields only when it is active. Positions are
// advisory and recomputed on every poll.
type AdmissionResult struct {
	Allowed              bool               `json:"allowed"`
	SessionID            string             `json:"session_id"`
	Status               models.EntryStatus `json:"status"`
	QueuePosition        int64              `json:"queue_position,omitempty"`
	EstimatedWaitMinutes int                `json:"estimated_wait_minutes,omitempty"`
	ExpiresAt            *time.Time         `json:"expires_at,omitempty"`
	ExtensionAllowed     bool               `json:"extension_allowed,omitempty"`
	ExtensionUsed        bool               `json:"extension_used,omitempty"`
	WaitingRoomMessage   string             `json:"waiting_room_message,omitempty"`
}

type ExtendResult struct {
	NewExpiresAt time.Time `json:"new_expires_at"`
}

type SweepResult struct {
	Expired  int `json:"expired"`
	Admitted int `json:"admitted"`
}

type LaneStats struct {
	Active        int64 `json:"active"`
	Waiting       int64 `json:"waiting"`
	MaxConcurrent int   `json:"max_concurrent"`
}

type QueueStats struct {
	EventID string               `json:"event_id"`
	Lanes   map[string]LaneStats `json:"lanes"`
}

// UpdateSettingsInput is a partial settings update; nil fields keep the
// current value. Lanes entries are merged per lane, not replaced wholesale.
type UpdateSettingsInput struct {
	Enabled            *bool
	Lanes              map[string]models.LaneSettings
	AllowTimeExtension *bool
	ExtensionDuration  *time.Duration
	ActiveFrom         *time.Time
	ActiveUntil        *time.Time
	ClearActiveWindow  bool
	WaitingRoomMessage *string
}
