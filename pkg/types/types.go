package types

import (
	"time"
)

// EventKind names a domain event published on the event bus and pushed to
// live viewers as the frame's "type" field.
type EventKind string

const (
	EventSession           EventKind = "SESSION"
	EventSessionUsers      EventKind = "SESSION_USERS"
	EventSessionActivities EventKind = "SESSION_ACTIVITIES"
)

// EventKinds lists every kind in a stable order.
var EventKinds = []EventKind{EventSession, EventSessionUsers, EventSessionActivities}

// Session is a bounded turn-order activity with a host and participants.
// StartedAt and StoppedAt are only ever written by the start and stop transitions.
type Session struct {
	ID        string     `json:"id" db:"id"`
	Name      string     `json:"name" db:"name"`
	StartedAt *time.Time `json:"startedAt" db:"started_at"`
	StoppedAt *time.Time `json:"stoppedAt" db:"stopped_at"`
	CreatedAt time.Time  `json:"createdAt" db:"created_at"`
}

// IsOpen reports whether the session has not been stopped yet.
func (s *Session) IsOpen() bool {
	return s.StoppedAt == nil
}

// User is a participant of one session. Order is the 1-based turn position.
type User struct {
	ID        string    `json:"id" db:"id"`
	SessionID string    `json:"sessionId" db:"session_id" validate:"required"`
	Name      string    `json:"name" db:"name" validate:"required"`
	IsHost    bool      `json:"isHost" db:"is_host"`
	Order     int       `json:"order" db:"turn_order" validate:"min=1"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
}

// Activity is an append-only timeline entry for a session.
type Activity struct {
	ID        string    `json:"id" db:"id"`
	SessionID string    `json:"sessionId" db:"session_id" validate:"required"`
	Event     string    `json:"event" db:"event" validate:"required"`
	EventAt   time.Time `json:"eventAt" db:"event_at"`
	Seq       int64     `json:"-" db:"seq"`
}

// Event is a full-snapshot domain event. Implementations serialize to a flat
// JSON object carrying the kind in "type".
type Event interface {
	Kind() EventKind
}

// SessionEvent carries the complete session after a transition.
type SessionEvent struct {
	Type    EventKind `json:"type"`
	Session *Session  `json:"session"`
}

func NewSessionEvent(session *Session) *SessionEvent {
	return &SessionEvent{Type: EventSession, Session: session}
}

func (e *SessionEvent) Kind() EventKind { return EventSession }

// SessionUsersEvent carries the complete, order-sorted user list of a session.
type SessionUsersEvent struct {
	Type      EventKind `json:"type"`
	SessionID string    `json:"sessionId"`
	Users     []*User   `json:"users"`
}

func NewSessionUsersEvent(sessionID string, users []*User) *SessionUsersEvent {
	return &SessionUsersEvent{Type: EventSessionUsers, SessionID: sessionID, Users: users}
}

func (e *SessionUsersEvent) Kind() EventKind { return EventSessionUsers }

// SessionActivitiesEvent carries the complete, time-ordered timeline of a session.
type SessionActivitiesEvent struct {
	Type       EventKind   `json:"type"`
	SessionID  string      `json:"sessionId"`
	Activities []*Activity `json:"activities"`
}

func NewSessionActivitiesEvent(sessionID string, activities []*Activity) *SessionActivitiesEvent {
	return &SessionActivitiesEvent{Type: EventSessionActivities, SessionID: sessionID, Activities: activities}
}

func (e *SessionActivitiesEvent) Kind() EventKind { return EventSessionActivities }
