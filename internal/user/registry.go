// Package user manages participant records and their turn order.
package user

import (
	"context"
	"slices"
	"time"

	"github.com/google/uuid"

	"huddle/pkg/interfaces"
	"huddle/pkg/types"
)

// Registry validates participant records before they reach a repository.
// Order is always supplied by the caller.
type Registry struct {
	now func() time.Time
}

func NewRegistry(now func() time.Time) *Registry {
	if now == nil {
		now = time.Now
	}
	return &Registry{now: now}
}

func (r *Registry) FindUser(ctx context.Context, repo interfaces.UserRepository, userID string) (*types.User, error) {
	return repo.GetUser(ctx, userID)
}

// FindUsersBySession returns the session's users sorted ascending by order.
// This is the canonical turn sequence.
func (r *Registry) FindUsersBySession(ctx context.Context, repo interfaces.UserRepository, sessionID string) ([]*types.User, error) {
	users, err := repo.ListUsers(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	slices.SortStableFunc(users, func(a, b *types.User) int { return a.Order - b.Order })
	return users, nil
}

// CreateUser assigns an ID and creation time, validates, then inserts.
func (r *Registry) CreateUser(ctx context.Context, repo interfaces.UserRepository, sessionID, name string, isHost bool, order int) (*types.User, error) {
	user := &types.User{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		Name:      name,
		IsHost:    isHost,
		Order:     order,
		CreatedAt: r.now().UTC(),
	}
	if err := user.Validate(); err != nil {
		return nil, err
	}
	if err := repo.CreateUser(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

// UpdateUserOrder persists a new turn position for user.
func (r *Registry) UpdateUserOrder(ctx context.Context, repo interfaces.UserRepository, user *types.User, order int) error {
	updated := *user
	updated.Order = order
	if err := updated.Validate(); err != nil {
		return err
	}
	if err := repo.UpdateUser(ctx, &updated); err != nil {
		return err
	}
	user.Order = order
	return nil
}
