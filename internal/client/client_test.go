package client

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"huddle/internal/api"
	"huddle/internal/events"
	"huddle/internal/hub"
	"huddle/internal/memstore"
	"huddle/internal/session"
	wsserver "huddle/internal/websocket"
	"huddle/pkg/types"
)

type stack struct {
	http     *HTTPClient
	wsURL    string
	registry *wsserver.Registry
	hub      *hub.Hub
}

func newStack(t *testing.T) *stack {
	t.Helper()
	log := slog.Default()
	store := memstore.New()
	bus := events.NewBus(log)
	registry := wsserver.NewRegistry()
	messageHub := hub.NewHub(registry, bus, time.Hour, log)
	require.NoError(t, messageHub.Start(t.Context()))
	t.Cleanup(func() { _ = messageHub.Stop() })

	apiServer := api.NewServer(session.NewManager(store, bus, log), store, registry, nil, log)
	mux := http.NewServeMux()
	mux.Handle("/api/", apiServer)
	mux.HandleFunc("/ws", wsserver.NewHandler(registry, wsserver.DefaultConnectionOptions(), log).HandleWebSocket)

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	t.Cleanup(registry.CloseAll)

	return &stack{
		http:     NewHTTPClient(server.URL),
		wsURL:    "ws" + strings.TrimPrefix(server.URL, "http") + "/ws",
		registry: registry,
		hub:      messageHub,
	}
}

func (s *stack) dial(t *testing.T) *Stream {
	t.Helper()
	before := s.registry.Count()
	stream, err := Dial(t.Context(), s.wsURL, 0)
	require.NoError(t, err)
	t.Cleanup(func() { _ = stream.Close() })
	require.Eventually(t, func() bool { return s.registry.Count() == before+1 }, 2*time.Second, 10*time.Millisecond)
	return stream
}

func TestHTTPClient_Lifecycle(t *testing.T) {
	s := newStack(t)
	ctx := t.Context()

	created, err := s.http.CreateSession(ctx, "Trivia Night", "Ada")
	require.NoError(t, err)
	require.Equal(t, "Trivia Night", created.Name)
	require.Nil(t, created.StartedAt)

	bob, err := s.http.JoinSession(ctx, created.ID, "Bob")
	require.NoError(t, err)
	require.Equal(t, 2, bob.Order)

	users, err := s.http.GetSessionUsers(ctx, created.ID)
	require.NoError(t, err)
	require.Len(t, users, 2)

	started, err := s.http.StartSession(ctx, created.ID, users[0].ID)
	require.NoError(t, err)
	require.NotNil(t, started.StartedAt)

	stopped, err := s.http.StopSession(ctx, created.ID, bob.ID)
	require.NoError(t, err)
	require.NotNil(t, stopped.StoppedAt)

	got, err := s.http.GetSession(ctx, created.ID)
	require.NoError(t, err)
	require.NotNil(t, got.StoppedAt)

	activities, err := s.http.GetSessionActivities(ctx, created.ID)
	require.NoError(t, err)
	require.Len(t, activities, 4)
	require.Equal(t, "Ada created session Trivia Night.", activities[0].Event)
}

func TestHTTPClient_Errors(t *testing.T) {
	s := newStack(t)
	ctx := t.Context()

	_, err := s.http.GetSession(ctx, "missing")
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	require.Equal(t, http.StatusNotFound, apiErr.StatusCode)
	require.Equal(t, "Session does not exist", apiErr.Message)

	_, err = s.http.CreateSession(ctx, "", "Ada")
	require.True(t, errors.As(err, &apiErr))
	require.Equal(t, http.StatusUnprocessableEntity, apiErr.StatusCode)
	require.Equal(t, "Session name is required", apiErr.Message)
}

func TestStream_ReceivesEventsInPublishOrder(t *testing.T) {
	s := newStack(t)
	ctx := t.Context()

	created, err := s.http.CreateSession(ctx, "Trivia Night", "Ada")
	require.NoError(t, err)
	stream := s.dial(t)

	_, err = s.http.JoinSession(ctx, created.ID, "Bob")
	require.NoError(t, err)

	first, err := stream.Next()
	require.NoError(t, err)
	users, ok := first.(*types.SessionUsersEvent)
	require.True(t, ok, "expected users event first, got %T", first)
	require.Equal(t, created.ID, users.SessionID)
	require.Len(t, users.Users, 2)

	second, err := stream.Next()
	require.NoError(t, err)
	activities, ok := second.(*types.SessionActivitiesEvent)
	require.True(t, ok, "expected activities event second, got %T", second)
	require.Len(t, activities.Activities, 2)

	_, err = s.http.StartSession(ctx, created.ID, users.Users[0].ID)
	require.NoError(t, err)

	third, err := stream.Next()
	require.NoError(t, err)
	started, ok := third.(*types.SessionEvent)
	require.True(t, ok)
	require.NotNil(t, started.Session.StartedAt)
}

func TestStream_AnswersProbes(t *testing.T) {
	s := newStack(t)
	stream := s.dial(t)

	// Pongs are only processed while the stream is reading.
	go func() {
		for {
			if _, err := stream.Next(); err != nil {
				return
			}
		}
	}()

	for i := 0; i < 3; i++ {
		s.hub.ProbeOnce()
		time.Sleep(100 * time.Millisecond)
	}
	require.Equal(t, 1, s.registry.Count(), "a responsive stream must survive probing")
}

func TestStream_MissedProbeWindowCloses(t *testing.T) {
	upgrader := websocket.Upgrader{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		// Never ping; hold the connection open.
		_, _, _ = conn.ReadMessage()
	}))
	t.Cleanup(server.Close)

	stream, err := Dial(t.Context(), "ws"+strings.TrimPrefix(server.URL, "http"), 150*time.Millisecond)
	require.NoError(t, err)
	defer stream.Close()

	done := make(chan error, 1)
	go func() {
		_, err := stream.Next()
		done <- err
	}()

	select {
	case err := <-done:
		require.Error(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("stream did not close after the probe window elapsed")
	}
}

func TestStream_DialFailure(t *testing.T) {
	ctx, cancel := context.WithTimeout(t.Context(), time.Second)
	defer cancel()

	_, err := Dial(ctx, "ws://127.0.0.1:1/ws", 0)
	require.Error(t, err)
}

func TestDecodeEvent(t *testing.T) {
	event, err := DecodeEvent([]byte(`{"type":"SESSION","session":{"id":"s1","name":"Trivia Night"}}`))
	require.NoError(t, err)
	require.Equal(t, types.EventSession, event.Kind())
	require.Equal(t, "s1", event.(*types.SessionEvent).Session.ID)

	_, err = DecodeEvent([]byte(`{"type":"CHAT"}`))
	require.ErrorIs(t, err, ErrUnknownEvent)

	_, err = DecodeEvent([]byte(`not json`))
	require.Error(t, err)
}
