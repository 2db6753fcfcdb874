package interfaces

import (
	"context"

	"huddle/pkg/types"
)

// SessionOrchestrator drives the session lifecycle: create, join, start, stop.
// Mutating operations publish full-snapshot domain events after they commit.
type SessionOrchestrator interface {
	CreateSession(ctx context.Context, sessionName, hostName string) (*types.Session, error)
	JoinSession(ctx context.Context, sessionID, userName string) (*types.User, error)
	StartSession(ctx context.Context, sessionID, userID string) (*types.Session, error)
	StopSession(ctx context.Context, sessionID, userID string) (*types.Session, error)

	GetSession(ctx context.Context, sessionID string) (*types.Session, error)
	GetSessionUsers(ctx context.Context, sessionID string) ([]*types.User, error)
	GetSessionActivities(ctx context.Context, sessionID string) ([]*types.Activity, error)
}

// EventPublisher delivers domain events to in-process subscribers.
type EventPublisher interface {
	Publish(event types.Event)
}
