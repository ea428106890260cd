package kafka

import "time"

const (
	TopicSessionQueued    = "gatekeeper.session.queued"
	TopicSessionAdmitted  = "gatekeeper.session.admitted"
	TopicSessionExpired   = "gatekeeper.session.expired"
	TopicSessionCompleted = "gatekeeper.session.completed"
	TopicSessionAbandoned = "gatekeeper.session.abandoned"

	TopicRegistrationCompleted = "registration.completed"
	TopicRegistrationAbandoned = "registration.abandoned"
)

// Events published by the gatekeeper.

type SessionQueuedEvent struct {
	SessionID string    `json:"session_id"`
	EventID   string    `json:"event_id"`
	Lane      string    `json:"lane"`
	Position  int64     `json:"position"`
	EnteredAt time.Time `json:"entered_at"`
	Timestamp time.Time `json:"timestamp"`
}

type SessionAdmittedEvent struct {
	SessionID  string    `json:"session_id"`
	EventID    string    `json:"event_id"`
	Lane       string    `json:"lane"`
	AdmittedAt time.Time `json:"admitted_at"`
	ExpiresAt  time.Time `json:"expires_at"`
	Timestamp  time.Time `json:"timestamp"`
}

type SessionExpiredEvent struct {
	SessionID string    `json:"session_id"`
	EventID   string    `json:"event_id"`
	Lane      string    `json:"lane"`
	ExpiredAt time.Time `json:"expired_at"`
	Timestamp time.Time `json:"timestamp"`
}

type SessionCompletedEvent struct {
	SessionID   string    `json:"session_id"`
	EventID     string    `json:"event_id"`
	Lane        string    `json:"lane"`
	CompletedAt time.Time `json:"completed_at"`
	Timestamp   time.Time `json:"timestamp"`
}

type SessionAbandonedEvent struct {
	SessionID string    `json:"session_id"`
	EventID   string    `json:"event_id"`
	Lane      string    `json:"lane"`
	Reason    string    `json:"reason"` // user_left, admin_cleared
	Timestamp time.Time `json:"timestamp"`
}

// Events consumed from the registration flow.

type RegistrationCompletedEvent struct {
	SessionID      string    `json:"session_id"`
	EventID        string    `json:"event_id"`
	RegistrationID string    `json:"registration_id,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
}

type RegistrationAbandonedEvent struct {
	SessionID string    `json:"session_id"`
	EventID   string    `json:"event_id"`
	Reason    string    `json:"reason,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}
