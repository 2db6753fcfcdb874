package interfaces

import (
	"context"

	"huddle/pkg/types"
)

// SessionRepository persists sessions.
type SessionRepository interface {
	// CreateSession inserts a new session. The caller assigns the ID.
	CreateSession(ctx context.Context, session *types.Session) error

	// GetSession returns types.ErrSessionNotFound when no row matches.
	GetSession(ctx context.Context, sessionID string) (*types.Session, error)

	// UpdateSession overwrites the mutable timestamps of an existing session.
	UpdateSession(ctx context.Context, session *types.Session) error
}

// UserRepository persists participants.
type UserRepository interface {
	CreateUser(ctx context.Context, user *types.User) error

	// GetUser returns types.ErrUserNotFound when no row matches.
	GetUser(ctx context.Context, userID string) (*types.User, error)

	// ListUsers returns every user of a session in no particular order.
	ListUsers(ctx context.Context, sessionID string) ([]*types.User, error)

	// UpdateUser overwrites the user's name and order.
	UpdateUser(ctx context.Context, user *types.User) error
}

// ActivityRepository persists the append-only session timeline.
type ActivityRepository interface {
	// CreateActivity appends an entry and assigns its insertion sequence.
	CreateActivity(ctx context.Context, activity *types.Activity) error

	// ListActivities returns every entry of a session in no particular order.
	ListActivities(ctx context.Context, sessionID string) ([]*types.Activity, error)
}

// Repositories groups the three entity repositories. Inside WithinTx every
// call sees and writes the same transaction.
type Repositories interface {
	SessionRepository
	UserRepository
	ActivityRepository
}

// Store is the durable backend behind the orchestrator.
type Store interface {
	Repositories

	// WithinTx runs fn as one serializable unit. Writes are committed only if
	// fn returns nil; concurrent WithinTx calls never interleave.
	WithinTx(ctx context.Context, fn func(repos Repositories) error) error

	// HealthCheck verifies the backend is reachable.
	HealthCheck(ctx context.Context) error

	// Close releases the backend. Later calls fail with ErrStoreClosed.
	Close() error
}
