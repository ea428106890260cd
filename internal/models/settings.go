package models

import "time"

const (
	LaneGroup      = "group"
	LaneIndividual = "individual"
)

// LaneSettings is the capacity pool configuration for one registration type.
type LaneSettings struct {
	MaxConcurrent  int           `json:"max_concurrent"`
	SessionTimeout time.Duration `json:"session_timeout"`
}

// QueueSettings is the per-event queue configuration. Lanes is an open set
// keyed by registration type so new lanes can be added without schema changes.
type QueueSettings struct {
	EventID            string                  `json:"event_id"`
	Enabled            bool                    `json:"enabled"`
	Lanes              map[string]LaneSettings `json:"lanes"`
	AllowTimeExtension bool                    `json:"allow_time_extension"`
	ExtensionDuration  time.Duration           `json:"extension_duration"`
	ActiveFrom         *time.Time              `json:"active_from,omitempty"`
	ActiveUntil        *time.Time              `json:"active_until,omitempty"`
	WaitingRoomMessage string                  `json:"waiting_room_message,omitempty"`
	CreatedAt          time.Time               `json:"created_at"`
	UpdatedAt          time.Time               `json:"updated_at"`
}

// DefaultSettings is what an event gets on first read: queue disabled, group
// and individual lanes with their standard caps and timeouts, one-time
// extension enabled, no schedule.
func DefaultSettings(eventID string) *QueueSettings {
	now := time.Now()
	return &QueueSettings{
		EventID: eventID,
		Enabled: false,
		Lanes: map[string]LaneSettings{
			LaneGroup:      {MaxConcurrent: 10, SessionTimeout: 600 * time.Second},
			LaneIndividual: {MaxConcurrent: 40, SessionTimeout: 420 * time.Second},
		},
		AllowTimeExtension: true,
		ExtensionDuration:  300 * time.Second,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
}

// IsActiveAt reports whether the queue gate applies at the given instant.
// When false every request is admitted without touching entry state.
func (s *QueueSettings) IsActiveAt(now time.Time) bool {
	if !s.Enabled {
		return false
	}
	if s.ActiveFrom != nil && now.Before(*s.ActiveFrom) {
		return false
	}
	if s.ActiveUntil != nil && now.After(*s.ActiveUntil) {
		return false
	}
	return true
}

// Lane returns the configuration for a registration type. Lanes the operator
// never configured fall back to the group defaults rather than rejecting the
// session.
func (s *QueueSettings) Lane(name string) LaneSettings {
	if ls, ok := s.Lanes[name]; ok {
		return ls
	}
	return LaneSettings{MaxConcurrent: 10, SessionTimeout: 600 * time.Second}
}
