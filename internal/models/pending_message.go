package models

import "time"

// User references a Twitch account. ID is the platform user id and stays empty
// until upstream resolution fills it in.
type User struct {
	DisplayName string `json:"displayName"`
	ID          string `json:"id,omitempty"`
}

// Resolved reports whether the platform id is known.
func (u User) Resolved() bool {
	return u.ID != ""
}

// PendingMessage is a whisper waiting in the dispatch backlog.
type PendingMessage struct {
	Recipient  User      `json:"recipient"`
	Text       string    `json:"text"`
	EnqueuedAt time.Time `json:"enqueuedAt"`
}
