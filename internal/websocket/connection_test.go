package websocket

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// Test WebSocket upgrader for creating test connections
var testUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// peer is the far side of a test connection; every frame it reads is sent
// on received.
type peer struct {
	received chan []byte
	pings    chan struct{}
}

// createTestWebSocketConnection returns the server side of a live socket
// and the client peer reading from it.
func createTestWebSocketConnection(t *testing.T, answerPings bool) (*websocket.Conn, *peer) {
	t.Helper()
	serverSide := make(chan *websocket.Conn, 1)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("Failed to upgrade connection: %v", err)
			return
		}
		serverSide <- conn
	}))
	t.Cleanup(server.Close)

	url := "ws" + strings.TrimPrefix(server.URL, "http")
	client, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Failed to create test WebSocket connection: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })

	p := &peer{received: make(chan []byte, 16), pings: make(chan struct{}, 16)}
	client.SetPingHandler(func(data string) error {
		p.pings <- struct{}{}
		if !answerPings {
			return nil
		}
		return client.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(time.Second))
	})
	go func() {
		for {
			_, data, err := client.ReadMessage()
			if err != nil {
				close(p.received)
				return
			}
			p.received <- data
		}
	}()

	select {
	case conn := <-serverSide:
		return conn, p
	case <-time.After(2 * time.Second):
		t.Fatal("server side never upgraded")
		return nil, nil
	}
}

func TestConnection_NewConnectionInitialization(t *testing.T) {
	wsConn, _ := createTestWebSocketConnection(t, true)

	conn := NewConnection(wsConn, ConnectionOptions{})
	defer conn.Close()

	if conn.ID() == "" {
		t.Error("connection must have an ID")
	}
	if cap(conn.writeCh) != 100 {
		t.Errorf("Expected default buffer of 100, got %d", cap(conn.writeCh))
	}
	if conn.writeTimeout != 5*time.Second {
		t.Errorf("Expected default write timeout 5s, got %v", conn.writeTimeout)
	}
	if !conn.IsAlive() {
		t.Error("new connection should start alive")
	}
}

func TestConnection_SendDeliversFramesInOrder(t *testing.T) {
	wsConn, p := createTestWebSocketConnection(t, true)
	conn := NewConnection(wsConn, DefaultConnectionOptions())
	defer conn.Close()

	for _, frame := range []string{`{"n":1}`, `{"n":2}`, `{"n":3}`} {
		if err := conn.Send([]byte(frame)); err != nil {
			t.Fatalf("Send failed: %v", err)
		}
	}

	for _, want := range []string{`{"n":1}`, `{"n":2}`, `{"n":3}`} {
		select {
		case got := <-p.received:
			if string(got) != want {
				t.Errorf("received %s, want %s", got, want)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for %s", want)
		}
	}
}

func TestConnection_SendAfterClose(t *testing.T) {
	wsConn, _ := createTestWebSocketConnection(t, true)
	conn := NewConnection(wsConn, DefaultConnectionOptions())

	if err := conn.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	_ = conn.Close()

	if err := conn.Send([]byte("x")); err != ErrConnectionClosed {
		t.Errorf("expected ErrConnectionClosed, got %v", err)
	}
	select {
	case <-conn.Done():
	default:
		t.Error("Done must be closed after Close")
	}
}

func TestConnection_SendNeverBlocks(t *testing.T) {
	conn := newDetachedConnection()
	defer conn.cancel()

	if err := conn.Send([]byte("first")); err != nil {
		t.Fatalf("first Send failed: %v", err)
	}
	if err := conn.Send([]byte("second")); err != ErrSendBufferFull {
		t.Errorf("expected ErrSendBufferFull, got %v", err)
	}
}

func TestConnection_ProbeCycle(t *testing.T) {
	wsConn, p := createTestWebSocketConnection(t, false)
	conn := NewConnection(wsConn, DefaultConnectionOptions())
	defer conn.Close()

	if !conn.Probe() {
		t.Fatal("first probe of a fresh connection must succeed")
	}
	if conn.IsAlive() {
		t.Error("probe must mark the connection unconfirmed")
	}
	select {
	case <-p.pings:
	case <-time.After(2 * time.Second):
		t.Fatal("peer never saw the ping")
	}

	if conn.Probe() {
		t.Error("unanswered probe must report the connection dead")
	}

	conn.MarkAlive()
	if !conn.Probe() {
		t.Error("probe after MarkAlive must succeed")
	}
}
