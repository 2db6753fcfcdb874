package app

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"huddle/pkg/interfaces"
	"huddle/pkg/types"
)

// Seed is the on-disk fixture format. Sessions are inserted first, then
// users, then activities, all in one transaction.
type Seed struct {
	Sessions   []*types.Session  `json:"sessions"`
	Users      []*types.User     `json:"users"`
	Activities []*types.Activity `json:"activities"`
}

// LoadSeedFile reads a Seed from a JSON file.
func LoadSeedFile(path string) (*Seed, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read seed file %s: %w", path, err)
	}

	var seed Seed
	if err := json.Unmarshal(data, &seed); err != nil {
		return nil, fmt.Errorf("failed to parse seed file %s: %w", path, err)
	}
	return &seed, nil
}

// Apply inserts the fixture. Nothing is written if any record is rejected.
func (s *Seed) Apply(ctx context.Context, store interfaces.Store) error {
	return store.WithinTx(ctx, func(repos interfaces.Repositories) error {
		for _, session := range s.Sessions {
			if err := types.ValidateName(session.Name, types.ErrSessionNameRequired); err != nil {
				return fmt.Errorf("seed session %s: %w", session.ID, err)
			}
			if err := repos.CreateSession(ctx, session); err != nil {
				return fmt.Errorf("seed session %s: %w", session.ID, err)
			}
		}

		for _, user := range s.Users {
			if err := user.Validate(); err != nil {
				return fmt.Errorf("seed user %s: %w", user.ID, err)
			}
			if err := repos.CreateUser(ctx, user); err != nil {
				return fmt.Errorf("seed user %s: %w", user.ID, err)
			}
		}

		for _, activity := range s.Activities {
			if err := activity.Validate(); err != nil {
				return fmt.Errorf("seed activity %s: %w", activity.ID, err)
			}
			if err := repos.CreateActivity(ctx, activity); err != nil {
				return fmt.Errorf("seed activity %s: %w", activity.ID, err)
			}
		}
		return nil
	})
}
