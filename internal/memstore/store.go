// Package memstore keeps sessions, users and activities in process memory.
// It backs tests and the "memory" database driver.
package memstore

import (
	"context"
	"sync"

	"github.com/samber/lo"

	"huddle/pkg/interfaces"
	"huddle/pkg/types"
)

// Store implements interfaces.Store. Every value crossing the boundary is
// copied so callers never alias stored state.
type Store struct {
	txMu sync.RWMutex // write transactions exclusive; store-level reads shared

	mu         sync.RWMutex
	sessions   map[string]*types.Session
	users      map[string]*types.User
	activities map[string][]*types.Activity // sessionID -> entries in insertion order
	seq        int64
	closed     bool
}

var _ interfaces.Store = (*Store)(nil)

func New() *Store {
	return &Store{
		sessions:   make(map[string]*types.Session),
		users:      make(map[string]*types.User),
		activities: make(map[string][]*types.Activity),
	}
}

// WithinTx runs fn while holding the transaction lock. On error every write
// made by fn is discarded. Store-level reads wait for the running transaction,
// so they only observe committed state.
func (s *Store) WithinTx(ctx context.Context, fn func(repos interfaces.Repositories) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return interfaces.ErrStoreClosed
	}
	saved := s.snapshot()
	s.mu.Unlock()

	if err := fn(&tx{store: s}); err != nil {
		s.mu.Lock()
		s.restore(saved)
		s.mu.Unlock()
		return err
	}
	return nil
}

func (s *Store) CreateSession(ctx context.Context, session *types.Session) error {
	return s.WithinTx(ctx, func(r interfaces.Repositories) error { return r.CreateSession(ctx, session) })
}

func (s *Store) UpdateSession(ctx context.Context, session *types.Session) error {
	return s.WithinTx(ctx, func(r interfaces.Repositories) error { return r.UpdateSession(ctx, session) })
}

func (s *Store) CreateUser(ctx context.Context, user *types.User) error {
	return s.WithinTx(ctx, func(r interfaces.Repositories) error { return r.CreateUser(ctx, user) })
}

func (s *Store) UpdateUser(ctx context.Context, user *types.User) error {
	return s.WithinTx(ctx, func(r interfaces.Repositories) error { return r.UpdateUser(ctx, user) })
}

func (s *Store) CreateActivity(ctx context.Context, activity *types.Activity) error {
	return s.WithinTx(ctx, func(r interfaces.Repositories) error { return r.CreateActivity(ctx, activity) })
}

func (s *Store) GetSession(ctx context.Context, sessionID string) (*types.Session, error) {
	s.txMu.RLock()
	defer s.txMu.RUnlock()
	return (&tx{store: s}).GetSession(ctx, sessionID)
}

func (s *Store) GetUser(ctx context.Context, userID string) (*types.User, error) {
	s.txMu.RLock()
	defer s.txMu.RUnlock()
	return (&tx{store: s}).GetUser(ctx, userID)
}

func (s *Store) ListUsers(ctx context.Context, sessionID string) ([]*types.User, error) {
	s.txMu.RLock()
	defer s.txMu.RUnlock()
	return (&tx{store: s}).ListUsers(ctx, sessionID)
}

func (s *Store) ListActivities(ctx context.Context, sessionID string) ([]*types.Activity, error) {
	s.txMu.RLock()
	defer s.txMu.RUnlock()
	return (&tx{store: s}).ListActivities(ctx, sessionID)
}

func (s *Store) HealthCheck(ctx context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return interfaces.ErrStoreClosed
	}
	return nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

type state struct {
	sessions   map[string]*types.Session
	users      map[string]*types.User
	activities map[string][]*types.Activity
	seq        int64
}

// snapshot copies the maps. Stored values are never mutated in place, so a
// shallow copy is enough to roll back.
func (s *Store) snapshot() state {
	st := state{
		sessions:   make(map[string]*types.Session, len(s.sessions)),
		users:      make(map[string]*types.User, len(s.users)),
		activities: make(map[string][]*types.Activity, len(s.activities)),
		seq:        s.seq,
	}
	for k, v := range s.sessions {
		st.sessions[k] = v
	}
	for k, v := range s.users {
		st.users[k] = v
	}
	for k, v := range s.activities {
		st.activities[k] = v
	}
	return st
}

func (s *Store) restore(st state) {
	s.sessions = st.sessions
	s.users = st.users
	s.activities = st.activities
	s.seq = st.seq
}

// tx is the repository view handed to WithinTx callbacks.
type tx struct {
	store *Store
}

func (t *tx) CreateSession(_ context.Context, session *types.Session) error {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	t.store.sessions[session.ID] = copySession(session)
	return nil
}

func (t *tx) GetSession(_ context.Context, sessionID string) (*types.Session, error) {
	t.store.mu.RLock()
	defer t.store.mu.RUnlock()
	session, ok := t.store.sessions[sessionID]
	if !ok {
		return nil, types.ErrSessionNotFound
	}
	return copySession(session), nil
}

func (t *tx) UpdateSession(_ context.Context, session *types.Session) error {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	if _, ok := t.store.sessions[session.ID]; !ok {
		return types.ErrSessionNotFound
	}
	t.store.sessions[session.ID] = copySession(session)
	return nil
}

func (t *tx) CreateUser(_ context.Context, user *types.User) error {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	if _, ok := t.store.sessions[user.SessionID]; !ok {
		return types.ErrSessionNotFound
	}
	t.store.users[user.ID] = copyUser(user)
	return nil
}

func (t *tx) GetUser(_ context.Context, userID string) (*types.User, error) {
	t.store.mu.RLock()
	defer t.store.mu.RUnlock()
	user, ok := t.store.users[userID]
	if !ok {
		return nil, types.ErrUserNotFound
	}
	return copyUser(user), nil
}

func (t *tx) ListUsers(_ context.Context, sessionID string) ([]*types.User, error) {
	t.store.mu.RLock()
	defer t.store.mu.RUnlock()
	matching := lo.Filter(lo.Values(t.store.users), func(u *types.User, _ int) bool {
		return u.SessionID == sessionID
	})
	return lo.Map(matching, func(u *types.User, _ int) *types.User { return copyUser(u) }), nil
}

func (t *tx) UpdateUser(_ context.Context, user *types.User) error {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	if _, ok := t.store.users[user.ID]; !ok {
		return types.ErrUserNotFound
	}
	t.store.users[user.ID] = copyUser(user)
	return nil
}

func (t *tx) CreateActivity(_ context.Context, activity *types.Activity) error {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	if _, ok := t.store.sessions[activity.SessionID]; !ok {
		return types.ErrSessionNotFound
	}
	t.store.seq++
	activity.Seq = t.store.seq
	stored := *activity
	t.store.activities[activity.SessionID] = append(t.store.activities[activity.SessionID], &stored)
	return nil
}

func (t *tx) ListActivities(_ context.Context, sessionID string) ([]*types.Activity, error) {
	t.store.mu.RLock()
	defer t.store.mu.RUnlock()
	return lo.Map(t.store.activities[sessionID], func(a *types.Activity, _ int) *types.Activity {
		c := *a
		return &c
	}), nil
}

func copySession(s *types.Session) *types.Session {
	c := *s
	if s.StartedAt != nil {
		started := *s.StartedAt
		c.StartedAt = &started
	}
	if s.StoppedAt != nil {
		stopped := *s.StoppedAt
		c.StoppedAt = &stopped
	}
	return &c
}

func copyUser(u *types.User) *types.User {
	c := *u
	return &c
}
