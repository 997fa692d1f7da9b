package store

import "time"

// EventType names a stream session lifecycle transition.
type EventType string

const (
	// EventOpened is published when a session has written its stream headers.
	EventOpened EventType = "opened"

	// EventClosed is published once when a session reaches its terminal state.
	EventClosed EventType = "closed"
)

// Session is the registry entry for one event stream session.
type Session struct {
	// ID is the session's unique identifier.
	ID string `json:"id"`

	// Remote is the peer address.
	Remote string `json:"remote"`

	// OpenedAt is when the stream headers were written.
	OpenedAt time.Time `json:"opened_at"`

	// Frames is the number of frames written. Only set on close events.
	Frames int64 `json:"frames"`
}

// Event describes one lifecycle transition of a session.
type Event struct {
	Type    EventType
	Session Session

	// ClosedAt is set for [EventClosed].
	ClosedAt time.Time

	// Err is the reason the session ended, or nil for a clean shutdown.
	Err error
}

// Store defines the interface for tracking and subscribing to stream sessions.
//
// Store implementations must be safe for concurrent access.
type Store interface {
	// Open registers a session and notifies subscribers.
	Open(s Session)

	// Close removes a session, records its final frame count and notifies
	// subscribers. Closing an unknown id is a no-op.
	Close(id string, frames int64, err error)

	// GetAll returns the open sessions ordered by OpenedAt.
	// The returned slice is a snapshot; modifications do not affect the store.
	GetAll() []Session

	// Count returns the number of open sessions.
	Count() int

	// Subscribe returns a channel that receives lifecycle events.
	// Caller must call Unsubscribe when done to prevent resource leaks.
	Subscribe() <-chan Event

	// Unsubscribe removes a subscription and closes the channel.
	// Safe to call with a channel that was already unsubscribed.
	Unsubscribe(ch <-chan Event)
}
