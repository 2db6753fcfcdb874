package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"huddle/pkg/types"
)

// APIError is a non-2xx answer from the REST surface.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("huddle: %d %s", e.StatusCode, e.Message)
}

// HTTPClient makes REST calls to a huddle server.
type HTTPClient struct {
	baseURL string
	client  *http.Client
}

// NewHTTPClient creates a client targeting the given base URL (e.g. "http://127.0.0.1:8080").
func NewHTTPClient(baseURL string) *HTTPClient {
	return &HTTPClient{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

// CreateSession sends POST /api/sessions. The caller becomes the host.
func (c *HTTPClient) CreateSession(ctx context.Context, sessionName, userName string) (*types.Session, error) {
	body := map[string]string{"sessionName": sessionName, "userName": userName}
	var out types.Session
	if err := c.post(ctx, "/api/sessions", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetSession fetches /api/sessions/{id}.
func (c *HTTPClient) GetSession(ctx context.Context, sessionID string) (*types.Session, error) {
	var out types.Session
	if err := c.get(ctx, "/api/sessions/"+sessionID, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetSessionUsers fetches the order-sorted participants.
func (c *HTTPClient) GetSessionUsers(ctx context.Context, sessionID string) ([]*types.User, error) {
	var out []*types.User
	if err := c.get(ctx, "/api/sessions/"+sessionID+"/users", &out); err != nil {
		return nil, err
	}
	return out, nil
}

// GetSessionActivities fetches the time-ordered timeline.
func (c *HTTPClient) GetSessionActivities(ctx context.Context, sessionID string) ([]*types.Activity, error) {
	var out []*types.Activity
	if err := c.get(ctx, "/api/sessions/"+sessionID+"/activities", &out); err != nil {
		return nil, err
	}
	return out, nil
}

// JoinSession sends POST /api/sessions/{id}/join.
func (c *HTTPClient) JoinSession(ctx context.Context, sessionID, userName string) (*types.User, error) {
	body := map[string]string{"userName": userName}
	var out types.User
	if err := c.post(ctx, "/api/sessions/"+sessionID+"/join", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// StartSession sends POST /api/sessions/{id}/start on behalf of userID.
func (c *HTTPClient) StartSession(ctx context.Context, sessionID, userID string) (*types.Session, error) {
	return c.transition(ctx, sessionID, "start", userID)
}

// StopSession sends POST /api/sessions/{id}/stop on behalf of userID.
func (c *HTTPClient) StopSession(ctx context.Context, sessionID, userID string) (*types.Session, error) {
	return c.transition(ctx, sessionID, "stop", userID)
}

func (c *HTTPClient) transition(ctx context.Context, sessionID, action, userID string) (*types.Session, error) {
	body := map[string]string{"userId": userID}
	var out types.Session
	if err := c.post(ctx, "/api/sessions/"+sessionID+"/"+action, body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *HTTPClient) get(ctx context.Context, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *HTTPClient) post(ctx context.Context, path string, body interface{}, out interface{}) error {
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *HTTPClient) do(req *http.Request, out interface{}) error {
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(resp.Body)
		apiErr := &APIError{StatusCode: resp.StatusCode, Message: string(respBody)}
		var decoded struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(respBody, &decoded) == nil && decoded.Error != "" {
			apiErr.Message = decoded.Error
		}
		return apiErr
	}

	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}
