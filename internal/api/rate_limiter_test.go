package api

import (
	"testing"
	"time"
)

func TestRateLimiter_Window(t *testing.T) {
	rl := NewRateLimiter(3, time.Minute)
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }

	for i := 0; i < 3; i++ {
		if !rl.Allow("10.0.0.1") {
			t.Fatalf("request %d should be allowed", i)
		}
	}
	if rl.Allow("10.0.0.1") {
		t.Error("fourth request in the window must be rejected")
	}
	if !rl.Allow("10.0.0.2") {
		t.Error("limits are per client")
	}

	now = now.Add(time.Minute)
	if !rl.Allow("10.0.0.1") {
		t.Error("a new window must reset the count")
	}
}

func TestRateLimiter_Disabled(t *testing.T) {
	rl := NewRateLimiter(0, time.Minute)
	for i := 0; i < 1000; i++ {
		if !rl.Allow("k") {
			t.Fatal("zero requests disables limiting")
		}
	}
}

func TestRateLimiter_Cleanup(t *testing.T) {
	rl := NewRateLimiter(1, time.Minute)
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }

	rl.Allow("stale")
	now = now.Add(4 * time.Minute)
	rl.Allow("fresh")
	now = now.Add(2 * time.Minute)

	rl.Cleanup()
	if rl.tracked() != 1 {
		t.Errorf("expected only the fresh client to remain, got %d", rl.tracked())
	}
}
