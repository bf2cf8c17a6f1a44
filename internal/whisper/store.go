package whisper

import (
	"context"
	"time"

	"whisperq/internal/constants"
)

// Store is the persistence the dispatcher depends on: one named timer record
// and the MaxWhisperRecipients application setting.
type Store interface {
	// GetTimer returns the timestamp stored under name, or nil if none exists.
	GetTimer(ctx context.Context, name string) (*time.Time, error)
	// SaveTimer creates or overwrites the timer stored under name.
	SaveTimer(ctx context.Context, name string, at time.Time) error
	// GetMaxWhisperRecipients returns the configured cap and whether it is set.
	GetMaxWhisperRecipients(ctx context.Context) (int, bool, error)
	SetMaxWhisperRecipients(ctx context.Context, n int) error
}

// ActivityMarker persists the time of the last confirmed whisper so window
// state can be judged stale across restarts and idle gaps.
type ActivityMarker struct {
	store Store
	name  string
}

// NewActivityMarker returns the marker stored under the WhisperQueue timer.
func NewActivityMarker(store Store) *ActivityMarker {
	return &ActivityMarker{
		store: store,
		name:  constants.WhisperQueueTimerName,
	}
}

// Name returns the timer record name.
func (m *ActivityMarker) Name() string {
	return m.name
}

// Read returns the last recorded activity, or nil if none was ever written.
func (m *ActivityMarker) Read(ctx context.Context) (*time.Time, error) {
	return m.store.GetTimer(ctx, m.name)
}

// Write records now as the last activity.
func (m *ActivityMarker) Write(ctx context.Context, now time.Time) error {
	return m.store.SaveTimer(ctx, m.name, now)
}

// Age returns how long ago the last activity was recorded. ok is false when
// the marker has never been written.
func (m *ActivityMarker) Age(ctx context.Context, now time.Time) (age time.Duration, ok bool, err error) {
	last, err := m.Read(ctx)
	if err != nil || last == nil {
		return 0, false, err
	}
	return now.Sub(*last), true, nil
}
