// Package activity appends and reads the human-readable session timeline.
package activity

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"

	"huddle/pkg/interfaces"
	"huddle/pkg/types"
)

// Recorder stamps and appends timeline entries. It holds no state besides
// its clock, so one Recorder serves every transaction.
type Recorder struct {
	now func() time.Time
}

func NewRecorder(now func() time.Time) *Recorder {
	if now == nil {
		now = time.Now
	}
	return &Recorder{now: now}
}

// Record appends event to the session timeline. EventAt is never earlier
// than the latest existing entry, even if the clock steps backwards.
func (r *Recorder) Record(ctx context.Context, repo interfaces.ActivityRepository, sessionID, event string) (*types.Activity, error) {
	activity := &types.Activity{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		Event:     event,
		EventAt:   r.now().UTC(),
	}
	if err := activity.Validate(); err != nil {
		return nil, err
	}

	existing, err := repo.ListActivities(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to read timeline: %w", err)
	}
	for _, prev := range existing {
		if prev.EventAt.After(activity.EventAt) {
			activity.EventAt = prev.EventAt
		}
	}

	if err := repo.CreateActivity(ctx, activity); err != nil {
		return nil, err
	}
	return activity, nil
}

// ListBySession returns the timeline ordered by EventAt, ties broken by
// insertion sequence.
func (r *Recorder) ListBySession(ctx context.Context, repo interfaces.ActivityRepository, sessionID string) ([]*types.Activity, error) {
	activities, err := repo.ListActivities(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	slices.SortStableFunc(activities, func(a, b *types.Activity) int {
		if c := a.EventAt.Compare(b.EventAt); c != 0 {
			return c
		}
		switch {
		case a.Seq < b.Seq:
			return -1
		case a.Seq > b.Seq:
			return 1
		}
		return 0
	})
	return activities, nil
}

// Timeline messages
func SessionCreated(host, sessionName string) string {
	return fmt.Sprintf("%s created session %s.", host, sessionName)
}

func UserJoined(name string) string {
	return fmt.Sprintf("%s joined session.", name)
}

func SessionStarted(actor string) string {
	return fmt.Sprintf("%s started the session.", actor)
}

func SessionStopped(actor string) string {
	return fmt.Sprintf("%s stopped the session.", actor)
}
