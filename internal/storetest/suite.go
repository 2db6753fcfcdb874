// Package storetest holds the behavioural checks every interfaces.Store
// implementation must pass.
package storetest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"huddle/pkg/interfaces"
	"huddle/pkg/types"
)

// Run executes the suite. newStore must return an empty, ready store; the
// suite closes it.
func Run(t *testing.T, newStore func(t *testing.T) interfaces.Store) {
	t.Run("session round trip", func(t *testing.T) { testSessionRoundTrip(t, newStore(t)) })
	t.Run("missing entities", func(t *testing.T) { testMissing(t, newStore(t)) })
	t.Run("users scoped to session", func(t *testing.T) { testUsers(t, newStore(t)) })
	t.Run("activities keep insertion sequence", func(t *testing.T) { testActivities(t, newStore(t)) })
	t.Run("transaction rolls back on error", func(t *testing.T) { testRollback(t, newStore(t)) })
	t.Run("transactions serialize", func(t *testing.T) { testSerialized(t, newStore(t)) })
	t.Run("closed store", func(t *testing.T) { testClosed(t, newStore(t)) })
}

// NewSession returns a fresh session with a second-truncated UTC timestamp so
// it survives a database round trip unchanged.
func NewSession(name string) *types.Session {
	return &types.Session{
		ID:        uuid.NewString(),
		Name:      name,
		CreatedAt: time.Now().UTC().Truncate(time.Second),
	}
}

func newUser(sessionID, name string, order int) *types.User {
	return &types.User{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		Name:      name,
		IsHost:    order == 1,
		Order:     order,
		CreatedAt: time.Now().UTC().Truncate(time.Second),
	}
}

func newActivity(sessionID, event string, at time.Time) *types.Activity {
	return &types.Activity{ID: uuid.NewString(), SessionID: sessionID, Event: event, EventAt: at}
}

func testSessionRoundTrip(t *testing.T, store interfaces.Store) {
	defer func() { _ = store.Close() }()
	ctx := context.Background()

	session := NewSession("Trivia Night")
	require.NoError(t, store.CreateSession(ctx, session))

	got, err := store.GetSession(ctx, session.ID)
	require.NoError(t, err)
	require.Equal(t, session.Name, got.Name)
	require.Nil(t, got.StartedAt)
	require.Nil(t, got.StoppedAt)
	require.True(t, session.CreatedAt.Equal(got.CreatedAt))

	started := time.Now().UTC().Truncate(time.Second)
	got.StartedAt = &started
	require.NoError(t, store.UpdateSession(ctx, got))

	again, err := store.GetSession(ctx, session.ID)
	require.NoError(t, err)
	require.NotNil(t, again.StartedAt)
	require.True(t, started.Equal(*again.StartedAt))
	require.Nil(t, again.StoppedAt)

	require.NoError(t, store.HealthCheck(ctx))
}

func testMissing(t *testing.T, store interfaces.Store) {
	defer func() { _ = store.Close() }()
	ctx := context.Background()

	_, err := store.GetSession(ctx, "missing")
	require.ErrorIs(t, err, types.ErrSessionNotFound)

	_, err = store.GetUser(ctx, "missing")
	require.ErrorIs(t, err, types.ErrUserNotFound)

	err = store.UpdateSession(ctx, NewSession("ghost"))
	require.True(t, types.IsNotFoundError(err), "got %v", err)

	err = store.UpdateUser(ctx, newUser("missing", "ghost", 1))
	require.True(t, types.IsNotFoundError(err), "got %v", err)

	err = store.CreateUser(ctx, newUser("missing", "orphan", 1))
	require.True(t, types.IsNotFoundError(err), "got %v", err)

	users, err := store.ListUsers(ctx, "missing")
	require.NoError(t, err)
	require.Empty(t, users)
}

func testUsers(t *testing.T, store interfaces.Store) {
	defer func() { _ = store.Close() }()
	ctx := context.Background()

	a, b := NewSession("A"), NewSession("B")
	require.NoError(t, store.CreateSession(ctx, a))
	require.NoError(t, store.CreateSession(ctx, b))

	ada := newUser(a.ID, "Ada", 1)
	bob := newUser(a.ID, "Bob", 2)
	cy := newUser(b.ID, "Cy", 1)
	for _, u := range []*types.User{ada, bob, cy} {
		require.NoError(t, store.CreateUser(ctx, u))
	}

	users, err := store.ListUsers(ctx, a.ID)
	require.NoError(t, err)
	require.Len(t, users, 2)

	got, err := store.GetUser(ctx, ada.ID)
	require.NoError(t, err)
	require.True(t, got.IsHost)
	require.Equal(t, 1, got.Order)

	got.Order = 5
	require.NoError(t, store.UpdateUser(ctx, got))
	got, err = store.GetUser(ctx, ada.ID)
	require.NoError(t, err)
	require.Equal(t, 5, got.Order)
	require.Equal(t, a.ID, got.SessionID)
}

func testActivities(t *testing.T, store interfaces.Store) {
	defer func() { _ = store.Close() }()
	ctx := context.Background()

	session := NewSession("Timeline")
	require.NoError(t, store.CreateSession(ctx, session))

	at := time.Now().UTC().Truncate(time.Second)
	first := newActivity(session.ID, "first", at)
	second := newActivity(session.ID, "second", at)
	require.NoError(t, store.CreateActivity(ctx, first))
	require.NoError(t, store.CreateActivity(ctx, second))
	require.Greater(t, second.Seq, first.Seq)

	err := store.CreateActivity(ctx, newActivity("missing", "orphan", at))
	require.True(t, types.IsNotFoundError(err), "got %v", err)

	activities, err := store.ListActivities(ctx, session.ID)
	require.NoError(t, err)
	require.Len(t, activities, 2)
	seqs := map[string]int64{}
	for _, a := range activities {
		seqs[a.Event] = a.Seq
	}
	require.Equal(t, first.Seq, seqs["first"])
	require.Equal(t, second.Seq, seqs["second"])
}

func testRollback(t *testing.T, store interfaces.Store) {
	defer func() { _ = store.Close() }()
	ctx := context.Background()

	session := NewSession("Rollback")
	require.NoError(t, store.CreateSession(ctx, session))

	boom := errors.New("boom")
	err := store.WithinTx(ctx, func(repos interfaces.Repositories) error {
		if err := repos.CreateUser(ctx, newUser(session.ID, "Ada", 1)); err != nil {
			return err
		}
		if err := repos.CreateActivity(ctx, newActivity(session.ID, "Ada joined session.", time.Now())); err != nil {
			return err
		}
		users, err := repos.ListUsers(ctx, session.ID)
		if err != nil {
			return err
		}
		if len(users) != 1 {
			return fmt.Errorf("transaction should see its own write, got %d users", len(users))
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	users, err := store.ListUsers(ctx, session.ID)
	require.NoError(t, err)
	require.Empty(t, users)

	activities, err := store.ListActivities(ctx, session.ID)
	require.NoError(t, err)
	require.Empty(t, activities)
}

// testSerialized runs read-count-then-insert transactions concurrently; any
// interleaving would produce duplicate orders.
func testSerialized(t *testing.T, store interfaces.Store) {
	defer func() { _ = store.Close() }()
	ctx := context.Background()

	session := NewSession("Race")
	require.NoError(t, store.CreateSession(ctx, session))

	const joiners = 20
	var wg sync.WaitGroup
	errs := make(chan error, joiners)
	for i := 0; i < joiners; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs <- store.WithinTx(ctx, func(repos interfaces.Repositories) error {
				users, err := repos.ListUsers(ctx, session.ID)
				if err != nil {
					return err
				}
				return repos.CreateUser(ctx, newUser(session.ID, fmt.Sprintf("user-%d", i), len(users)+1))
			})
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	users, err := store.ListUsers(ctx, session.ID)
	require.NoError(t, err)
	require.Len(t, users, joiners)

	seen := map[int]bool{}
	for _, u := range users {
		require.False(t, seen[u.Order], "duplicate order %d", u.Order)
		seen[u.Order] = true
	}
	for order := 1; order <= joiners; order++ {
		require.True(t, seen[order], "missing order %d", order)
	}
}

func testClosed(t *testing.T, store interfaces.Store) {
	ctx := context.Background()
	require.NoError(t, store.Close())
	require.NoError(t, store.Close())

	err := store.CreateSession(ctx, NewSession("late"))
	require.ErrorIs(t, err, interfaces.ErrStoreClosed)
	require.ErrorIs(t, store.HealthCheck(ctx), interfaces.ErrStoreClosed)
}
