package hub

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"huddle/internal/events"
	"huddle/internal/websocket"
	"huddle/pkg/types"
)

// DefaultPingInterval is the liveness probe period.
const DefaultPingInterval = 30 * time.Second

// EventSource is the subscription side of the event bus.
type EventSource interface {
	Subscribe(kind types.EventKind, h events.Handler) (unsubscribe func())
}

// Hub forwards every domain event to every open push connection and evicts
// connections that stop answering liveness probes.
type Hub struct {
	registry     *websocket.Registry
	source       EventSource
	pingInterval time.Duration
	log          *slog.Logger

	mu           sync.Mutex
	running      bool
	unsubscribes []func()
	shutdown     chan struct{}
	done         chan struct{}
}

func NewHub(registry *websocket.Registry, source EventSource, pingInterval time.Duration, log *slog.Logger) *Hub {
	if pingInterval <= 0 {
		pingInterval = DefaultPingInterval
	}
	return &Hub{
		registry:     registry,
		source:       source,
		pingInterval: pingInterval,
		log:          log,
	}
}

// Start subscribes to every event kind and starts the probe loop. The loop
// ends on Stop or when ctx is cancelled.
func (h *Hub) Start(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.running {
		return ErrHubAlreadyRunning
	}
	h.running = true
	h.shutdown = make(chan struct{})
	h.done = make(chan struct{})

	for _, kind := range types.EventKinds {
		h.unsubscribes = append(h.unsubscribes, h.source.Subscribe(kind, h.Broadcast))
	}

	go h.probeLoop(ctx, h.shutdown, h.done)

	h.log.Info("Hub started", "ping_interval", h.pingInterval)
	return nil
}

// Stop unsubscribes from the bus and waits for the probe loop to exit.
// Open connections are left to the caller.
func (h *Hub) Stop() error {
	h.mu.Lock()
	if !h.running {
		h.mu.Unlock()
		return ErrHubNotRunning
	}
	h.running = false

	for _, unsubscribe := range h.unsubscribes {
		unsubscribe()
	}
	h.unsubscribes = nil
	close(h.shutdown)
	done := h.done
	h.mu.Unlock()

	<-done
	h.log.Info("Hub stopped")
	return nil
}

// IsRunning reports whether Start has been called without a matching Stop.
func (h *Hub) IsRunning() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.running
}

// Broadcast serializes event once and queues the frame on every current
// connection. A connection whose queue is full is dropped so it cannot hold
// back the others.
func (h *Hub) Broadcast(event types.Event) {
	frame, err := json.Marshal(event)
	if err != nil {
		h.log.Error("Failed to encode event", "kind", event.Kind(), "error", err)
		return
	}

	for _, conn := range h.registry.Snapshot() {
		err := conn.Send(frame)
		switch {
		case err == nil:
		case errors.Is(err, websocket.ErrSendBufferFull):
			h.log.Warn("Dropping slow connection", "connection_id", conn.ID())
			h.evict(conn)
		default:
			h.evict(conn)
		}
	}
}

func (h *Hub) probeLoop(ctx context.Context, shutdown <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(h.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			h.ProbeOnce()
		case <-shutdown:
			return
		case <-ctx.Done():
			return
		}
	}
}

// ProbeOnce runs one liveness round over the current connections: those
// that missed the previous probe are closed and evicted, the rest are
// pinged.
func (h *Hub) ProbeOnce() {
	for _, conn := range h.registry.Snapshot() {
		if !conn.Probe() {
			h.log.Info("Evicting unresponsive connection", "connection_id", conn.ID())
			h.evict(conn)
		}
	}
}

func (h *Hub) evict(conn *websocket.Connection) {
	h.registry.Remove(conn)
	_ = conn.Close()
}
