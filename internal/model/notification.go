package model

import "time"

// Notification is a log entry for an alert that reached the sink.
type Notification struct {
	// ID is the unique identifier for this notification.
	ID string `json:"id"`

	// Kind tells whether a comment or a pipeline triggered it.
	Kind ChangeKind `json:"kind"`

	// ItemID is the note id or pipeline key that was notified.
	ItemID string `json:"item_id"`

	// Project is the project identifier the change belongs to.
	Project string `json:"project"`

	// Title is a one-line summary shown by the status view.
	Title string `json:"title"`

	// CreatedAt is when the sink accepted the message.
	CreatedAt time.Time `json:"created_at"`
}
