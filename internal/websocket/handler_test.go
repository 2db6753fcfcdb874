package websocket

import (
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal(msg)
}

func startHandler(t *testing.T) (*Registry, string) {
	t.Helper()
	registry := NewRegistry()
	handler := NewHandler(registry, DefaultConnectionOptions(), slog.Default())
	server := httptest.NewServer(http.HandlerFunc(handler.HandleWebSocket))
	t.Cleanup(server.Close)
	return registry, "ws" + strings.TrimPrefix(server.URL, "http")
}

func TestHandler_RegistersAndUnregisters(t *testing.T) {
	registry, url := startHandler(t)

	client, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	waitFor(t, func() bool { return registry.Count() == 1 }, "connection was not registered")

	_ = client.Close()
	waitFor(t, func() bool { return registry.Count() == 0 }, "connection was not unregistered")
}

func TestHandler_NoReplayOnConnect(t *testing.T) {
	registry, url := startHandler(t)

	client, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	defer client.Close()
	waitFor(t, func() bool { return registry.Count() == 1 }, "connection was not registered")

	_ = client.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	if _, data, err := client.ReadMessage(); err == nil {
		t.Errorf("expected no frame on connect, got %s", data)
	}
}

func TestHandler_PongMarksAlive(t *testing.T) {
	registry, url := startHandler(t)

	client, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	defer client.Close()
	// Default ping handler answers with a pong; reading drives it.
	go func() {
		for {
			if _, _, err := client.ReadMessage(); err != nil {
				return
			}
		}
	}()
	waitFor(t, func() bool { return registry.Count() == 1 }, "connection was not registered")

	conn := registry.Snapshot()[0]
	if !conn.Probe() {
		t.Fatal("probe failed")
	}
	waitFor(t, conn.IsAlive, "pong did not mark the connection alive")
}

func TestHandler_RejectsPlainHTTP(t *testing.T) {
	registry := NewRegistry()
	handler := NewHandler(registry, DefaultConnectionOptions(), slog.Default())

	rec := httptest.NewRecorder()
	handler.HandleWebSocket(rec, httptest.NewRequest("GET", "/ws", nil))

	if rec.Code != 400 {
		t.Errorf("expected 400 for non-upgrade request, got %d", rec.Code)
	}
	if registry.Count() != 0 {
		t.Error("failed upgrade must not register a connection")
	}
}
