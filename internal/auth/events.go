package auth

import (
	"context"
	"time"
)

// EventType identifies an account or session event.
type EventType string

// Event types emitted by Service.
const (
	EventLogin           EventType = "login"
	EventLoginFailed     EventType = "login_failed"
	EventLogout          EventType = "logout"
	EventForceLogout     EventType = "force_logout"
	EventUserCreated     EventType = "user_created"
	EventUserUpdated     EventType = "user_updated"
	EventPasswordChanged EventType = "password_changed"
)

// Event describes something that happened to an account. It never carries
// passwords, hashes or raw tokens.
type Event struct {
	Type     EventType `json:"type"`
	ActorID  string    `json:"actor_id,omitempty"`
	UserID   string    `json:"user_id,omitempty"`
	Username string    `json:"username,omitempty"`
	Success  bool      `json:"success"`
	Reason   string    `json:"reason,omitempty"`
	At       time.Time `json:"at"`
}

// EventSink receives events. Implementations must not block for long and
// must not fail the operation that produced the event.
type EventSink interface {
	RecordEvent(ctx context.Context, e Event)
}

type noopSink struct{}

func (noopSink) RecordEvent(context.Context, Event) {}
