package session

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"huddle/internal/activity"
	"huddle/internal/user"
	"huddle/pkg/interfaces"
	"huddle/pkg/types"
)

// Manager implements interfaces.SessionOrchestrator. Every transition runs
// in one store transaction; events are published only after it commits.
type Manager struct {
	store    interfaces.Store
	bus      interfaces.EventPublisher
	log      *slog.Logger
	recorder *activity.Recorder
	users    *user.Registry
	now      func() time.Time

	rngMu sync.Mutex
	rng   *rand.Rand

	// publishMu spans commit and publish of a transition so subscribers see
	// snapshots in commit order. Handlers must not call back into the Manager.
	publishMu sync.Mutex
}

var _ interfaces.SessionOrchestrator = (*Manager)(nil)

type Option func(*Manager)

// WithClock replaces time.Now for session timestamps and activity entries.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// WithRand replaces the random source used to shuffle turn order.
func WithRand(rng *rand.Rand) Option {
	return func(m *Manager) { m.rng = rng }
}

func NewManager(store interfaces.Store, bus interfaces.EventPublisher, log *slog.Logger, opts ...Option) *Manager {
	m := &Manager{
		store: store,
		bus:   bus,
		log:   log,
		now:   time.Now,
		rng:   rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.recorder = activity.NewRecorder(m.now)
	m.users = user.NewRegistry(m.now)
	return m
}

// CreateSession creates the session, its host (order 1) and the first
// timeline entry. No event is published.
func (m *Manager) CreateSession(ctx context.Context, sessionName, hostName string) (*types.Session, error) {
	sessionName = strings.TrimSpace(sessionName)
	hostName = strings.TrimSpace(hostName)
	if err := types.ValidateName(sessionName, types.ErrSessionNameRequired); err != nil {
		return nil, err
	}
	if err := types.ValidateName(hostName, types.ErrUserNameRequired); err != nil {
		return nil, err
	}

	session := &types.Session{
		ID:        uuid.NewString(),
		Name:      sessionName,
		CreatedAt: m.now().UTC(),
	}

	err := m.store.WithinTx(ctx, func(repos interfaces.Repositories) error {
		if err := repos.CreateSession(ctx, session); err != nil {
			return err
		}
		if _, err := m.users.CreateUser(ctx, repos, session.ID, hostName, true, 1); err != nil {
			return err
		}
		_, err := m.recorder.Record(ctx, repos, session.ID, activity.SessionCreated(hostName, sessionName))
		return err
	})
	if err != nil {
		return nil, err
	}

	m.log.Info("Session created", "session_id", session.ID, "name", session.Name)
	return session, nil
}

// JoinSession appends a participant at order N+1, then publishes the full
// user list followed by the full timeline.
func (m *Manager) JoinSession(ctx context.Context, sessionID, userName string) (*types.User, error) {
	m.publishMu.Lock()
	defer m.publishMu.Unlock()

	var (
		joined     *types.User
		users      []*types.User
		activities []*types.Activity
	)

	err := m.store.WithinTx(ctx, func(repos interfaces.Repositories) error {
		if _, err := repos.GetSession(ctx, sessionID); err != nil {
			return err
		}
		existing, err := m.users.FindUsersBySession(ctx, repos, sessionID)
		if err != nil {
			return err
		}
		joined, err = m.users.CreateUser(ctx, repos, sessionID, userName, false, len(existing)+1)
		if err != nil {
			return err
		}
		if _, err := m.recorder.Record(ctx, repos, sessionID, activity.UserJoined(joined.Name)); err != nil {
			return err
		}
		users = append(existing, joined)
		activities, err = m.recorder.ListBySession(ctx, repos, sessionID)
		return err
	})
	if err != nil {
		return nil, err
	}

	m.log.Info("User joined session", "session_id", sessionID, "user_id", joined.ID, "order", joined.Order)
	m.bus.Publish(types.NewSessionUsersEvent(sessionID, users))
	m.bus.Publish(types.NewSessionActivitiesEvent(sessionID, activities))
	return joined, nil
}

// StartSession stamps startedAt and reshuffles every user's order into a
// fresh permutation of 1..N. Starting again reshuffles again.
func (m *Manager) StartSession(ctx context.Context, sessionID, userID string) (*types.Session, error) {
	m.publishMu.Lock()
	defer m.publishMu.Unlock()

	var session *types.Session

	err := m.store.WithinTx(ctx, func(repos interfaces.Repositories) error {
		var (
			actor *types.User
			err   error
		)
		session, actor, err = m.loadTransition(ctx, repos, sessionID, userID)
		if err != nil {
			return err
		}

		now := m.now().UTC()
		session.StartedAt = &now
		if err := repos.UpdateSession(ctx, session); err != nil {
			return err
		}

		users, err := m.users.FindUsersBySession(ctx, repos, sessionID)
		if err != nil {
			return err
		}
		m.shuffle(users)
		for i, u := range users {
			if err := m.users.UpdateUserOrder(ctx, repos, u, i+1); err != nil {
				return err
			}
		}

		_, err = m.recorder.Record(ctx, repos, sessionID, activity.SessionStarted(actor.Name))
		return err
	})
	if err != nil {
		return nil, err
	}

	m.log.Info("Session started", "session_id", sessionID, "user_id", userID)
	m.bus.Publish(types.NewSessionEvent(session))
	return session, nil
}

// StopSession stamps stoppedAt. It does not check whether the session was
// started or already stopped.
func (m *Manager) StopSession(ctx context.Context, sessionID, userID string) (*types.Session, error) {
	m.publishMu.Lock()
	defer m.publishMu.Unlock()

	var (
		session    *types.Session
		activities []*types.Activity
	)

	err := m.store.WithinTx(ctx, func(repos interfaces.Repositories) error {
		var (
			actor *types.User
			err   error
		)
		session, actor, err = m.loadTransition(ctx, repos, sessionID, userID)
		if err != nil {
			return err
		}

		now := m.now().UTC()
		session.StoppedAt = &now
		if err := repos.UpdateSession(ctx, session); err != nil {
			return err
		}

		if _, err := m.recorder.Record(ctx, repos, sessionID, activity.SessionStopped(actor.Name)); err != nil {
			return err
		}
		activities, err = m.recorder.ListBySession(ctx, repos, sessionID)
		return err
	})
	if err != nil {
		return nil, err
	}

	m.log.Info("Session stopped", "session_id", sessionID, "user_id", userID)
	m.bus.Publish(types.NewSessionActivitiesEvent(sessionID, activities))
	return session, nil
}

func (m *Manager) GetSession(ctx context.Context, sessionID string) (*types.Session, error) {
	return m.store.GetSession(ctx, sessionID)
}

// GetSessionUsers returns the users in turn order.
func (m *Manager) GetSessionUsers(ctx context.Context, sessionID string) ([]*types.User, error) {
	if _, err := m.store.GetSession(ctx, sessionID); err != nil {
		return nil, err
	}
	return m.users.FindUsersBySession(ctx, m.store, sessionID)
}

// GetSessionActivities returns the timeline, oldest first.
func (m *Manager) GetSessionActivities(ctx context.Context, sessionID string) ([]*types.Activity, error) {
	if _, err := m.store.GetSession(ctx, sessionID); err != nil {
		return nil, err
	}
	return m.recorder.ListBySession(ctx, m.store, sessionID)
}

// loadTransition resolves the session and the acting user, who must belong
// to it.
func (m *Manager) loadTransition(ctx context.Context, repos interfaces.Repositories, sessionID, userID string) (*types.Session, *types.User, error) {
	session, err := repos.GetSession(ctx, sessionID)
	if err != nil {
		return nil, nil, err
	}
	actor, err := m.users.FindUser(ctx, repos, userID)
	if err != nil {
		return nil, nil, err
	}
	if actor.SessionID != sessionID {
		return nil, nil, ErrNotSessionMember
	}
	return session, actor, nil
}

// shuffle permutes users uniformly (Fisher-Yates).
func (m *Manager) shuffle(users []*types.User) {
	m.rngMu.Lock()
	defer m.rngMu.Unlock()
	m.rng.Shuffle(len(users), func(i, j int) { users[i], users[j] = users[j], users[i] })
}
