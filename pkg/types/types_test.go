package types

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestUser_Validate(t *testing.T) {
	tests := []struct {
		name    string
		user    User
		wantErr error
	}{
		{
			name:    "valid participant",
			user:    User{SessionID: "s1", Name: "Bob", Order: 2},
			wantErr: nil,
		},
		{
			name:    "empty name",
			user:    User{SessionID: "s1", Name: "", Order: 1},
			wantErr: ErrUserNameRequired,
		},
		{
			name:    "blank name",
			user:    User{SessionID: "s1", Name: "   ", Order: 1},
			wantErr: ErrUserNameRequired,
		},
		{
			name:    "missing session",
			user:    User{Name: "Ada", Order: 1},
			wantErr: ErrSessionRequired,
		},
		{
			name:    "zero order",
			user:    User{SessionID: "s1", Name: "Ada", Order: 0},
			wantErr: ErrInvalidOrder,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.user.Validate()
			if err != tt.wantErr {
				t.Errorf("Validate() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestUser_ValidateTrimsName(t *testing.T) {
	u := User{SessionID: "s1", Name: "  Ada  ", Order: 1}
	if err := u.Validate(); err != nil {
		t.Fatalf("Validate() unexpected error: %v", err)
	}
	if u.Name != "Ada" {
		t.Errorf("expected trimmed name 'Ada', got %q", u.Name)
	}
}

func TestActivity_Validate(t *testing.T) {
	tests := []struct {
		name     string
		activity Activity
		wantErr  error
	}{
		{"valid", Activity{SessionID: "s1", Event: "Ada joined session."}, nil},
		{"missing event", Activity{SessionID: "s1"}, ErrEventRequired},
		{"missing session", Activity{Event: "x"}, ErrSessionRequired},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.activity.Validate(); err != tt.wantErr {
				t.Errorf("Validate() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateName(t *testing.T) {
	if err := ValidateName("Trivia Night", ErrSessionNameRequired); err != nil {
		t.Errorf("expected nil for non-empty name, got %v", err)
	}
	if err := ValidateName(" \t", ErrSessionNameRequired); err != ErrSessionNameRequired {
		t.Errorf("expected ErrSessionNameRequired, got %v", err)
	}
}

func TestValidateRequest(t *testing.T) {
	type joinRequest struct {
		UserName string `validate:"required"`
	}

	if err := ValidateRequest(joinRequest{UserName: "Cy"}); err != nil {
		t.Errorf("expected valid request, got %v", err)
	}

	err := ValidateRequest(joinRequest{})
	if !IsValidationError(err) {
		t.Fatalf("expected ValidationError, got %T %v", err, err)
	}
	if err.Error() != "UserName is required" {
		t.Errorf("unexpected message %q", err.Error())
	}
}

func TestErrorTaxonomy(t *testing.T) {
	wrapped := fmt.Errorf("start session: %w", ErrSessionNotFound)

	if !IsNotFoundError(wrapped) {
		t.Error("wrapped NotFoundError should be detected")
	}
	if IsValidationError(wrapped) {
		t.Error("NotFoundError must not be reported as ValidationError")
	}
	if !errors.Is(wrapped, ErrSessionNotFound) {
		t.Error("errors.Is should match the sentinel through wrapping")
	}
	if !IsValidationError(ErrUserNameRequired) {
		t.Error("ErrUserNameRequired should be a ValidationError")
	}
	if (&NotFoundError{}).Error() != "Not Found" {
		t.Error("empty NotFoundError should fall back to default message")
	}
	if (&ValidationError{}).Error() != "Unprocessable Entity" {
		t.Error("empty ValidationError should fall back to default message")
	}
}

func TestSession_IsOpen(t *testing.T) {
	now := time.Now()
	s := Session{ID: "s1", Name: "Trivia Night"}
	if !s.IsOpen() {
		t.Error("new session should be open")
	}
	s.StartedAt = &now
	if !s.IsOpen() {
		t.Error("started session should still be open")
	}
	s.StoppedAt = &now
	if s.IsOpen() {
		t.Error("stopped session should be closed")
	}
}

func TestEvents_FrameShape(t *testing.T) {
	tests := []struct {
		name     string
		event    Event
		wantType EventKind
		wantKeys []string
	}{
		{
			name:     "session",
			event:    NewSessionEvent(&Session{ID: "s1", Name: "Trivia Night"}),
			wantType: EventSession,
			wantKeys: []string{"type", "session"},
		},
		{
			name:     "session users",
			event:    NewSessionUsersEvent("s1", []*User{{ID: "u1", SessionID: "s1", Name: "Ada", IsHost: true, Order: 1}}),
			wantType: EventSessionUsers,
			wantKeys: []string{"type", "sessionId", "users"},
		},
		{
			name:     "session activities",
			event:    NewSessionActivitiesEvent("s1", []*Activity{{ID: "a1", SessionID: "s1", Event: "Ada joined session."}}),
			wantType: EventSessionActivities,
			wantKeys: []string{"type", "sessionId", "activities"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.event.Kind() != tt.wantType {
				t.Errorf("Kind() = %s, want %s", tt.event.Kind(), tt.wantType)
			}

			data, err := json.Marshal(tt.event)
			if err != nil {
				t.Fatalf("marshal: %v", err)
			}

			var frame map[string]json.RawMessage
			if err := json.Unmarshal(data, &frame); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			if len(frame) != len(tt.wantKeys) {
				t.Errorf("expected %d keys, got %d: %s", len(tt.wantKeys), len(frame), data)
			}
			for _, key := range tt.wantKeys {
				if _, ok := frame[key]; !ok {
					t.Errorf("frame missing key %q: %s", key, data)
				}
			}

			var typ EventKind
			if err := json.Unmarshal(frame["type"], &typ); err != nil || typ != tt.wantType {
				t.Errorf("frame type = %q, want %q", typ, tt.wantType)
			}
		})
	}
}
