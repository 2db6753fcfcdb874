package client

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"time"

	"github.com/gorilla/websocket"

	"huddle/pkg/types"
)

const (
	// DefaultProbeTimeout is one server ping interval plus a second of slack.
	DefaultProbeTimeout = 31 * time.Second
	pongWriteTimeout    = 5 * time.Second
)

// Stream is a read-only subscription to the server's push channel. The
// server pings periodically; each ping extends the read deadline by the
// probe timeout, so a silent server closes the stream.
type Stream struct {
	conn         *websocket.Conn
	probeTimeout time.Duration
}

// Dial connects to a /ws endpoint such as "ws://127.0.0.1:8080/ws".
// A non-positive probeTimeout selects DefaultProbeTimeout.
func Dial(ctx context.Context, url string, probeTimeout time.Duration) (*Stream, error) {
	if probeTimeout <= 0 {
		probeTimeout = DefaultProbeTimeout
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, err
	}

	s := &Stream{conn: conn, probeTimeout: probeTimeout}
	conn.SetPingHandler(s.handlePing)
	_ = conn.SetReadDeadline(time.Now().Add(probeTimeout))
	return s, nil
}

func (s *Stream) handlePing(appData string) error {
	_ = s.conn.SetReadDeadline(time.Now().Add(s.probeTimeout))

	err := s.conn.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(pongWriteTimeout))
	if errors.Is(err, websocket.ErrCloseSent) {
		return nil
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return nil
	}
	return err
}

// Next blocks until the next domain event arrives. Frames of unknown type
// are skipped. Any read error, including a missed probe window, is returned
// and the stream is unusable afterwards.
func (s *Stream) Next() (types.Event, error) {
	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			return nil, err
		}

		event, err := DecodeEvent(data)
		if err != nil {
			continue
		}
		return event, nil
	}
}

func (s *Stream) Close() error {
	return s.conn.Close()
}

// ErrUnknownEvent is returned by DecodeEvent for a frame type it does not know.
var ErrUnknownEvent = errors.New("unknown event type")

// DecodeEvent parses one push frame into its typed event.
func DecodeEvent(data []byte) (types.Event, error) {
	var envelope struct {
		Type types.EventKind `json:"type"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, err
	}

	var event types.Event
	switch envelope.Type {
	case types.EventSession:
		event = &types.SessionEvent{}
	case types.EventSessionUsers:
		event = &types.SessionUsersEvent{}
	case types.EventSessionActivities:
		event = &types.SessionActivitiesEvent{}
	default:
		return nil, ErrUnknownEvent
	}

	if err := json.Unmarshal(data, event); err != nil {
		return nil, err
	}
	return event, nil
}
