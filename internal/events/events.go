// Package events carries in-process activity notifications.
package events

import (
	"context"
	"time"

	"example.com/activitysync/internal/domain"
)

// Name identifies an event kind.
type Name string

const (
	ActivitySaved            Name = "activity:saved"
	ActivityUpdated          Name = "activity:updated"
	ActivityRemoved          Name = "activity:removed"
	ActivityContentGenerated Name = "activity:content-generated"
	ActivitiesCleared        Name = "activity:all-cleared"

	// LegacyActivityCompleted is the notification older construction views listen for.
	LegacyActivityCompleted Name = "construction:activity_completed"
)

// Event is the detail of every activity:* notification.
type Event struct {
	ActivityID string
	Type       string
	Origin     domain.Origin
	Record     *domain.ActivityRecord
	Timestamp  time.Time
}

// LegacyEvent is the detail of construction:activity_completed.
type LegacyEvent struct {
	ActivityID   string
	ActivityType string
	Content      map[string]any
	Timestamp    time.Time
}

// Change is a notification that another process touched a storage key.
type Change struct {
	Key    string
	Op     string
	Source string
	At     time.Time
}

// ChangeFeed delivers changes made outside this process. It is an inbound
// source of its own and is never re-published on a Bus.
type ChangeFeed interface {
	Start(ctx context.Context, fn func(Change)) error
	Close() error
}
