package gpiolive

import (
	"log/slog"
	"time"

	"github.com/jpalmerr/gpiolive/internal/store"
)

// SessionEventType says whether a stream opened or closed.
type SessionEventType string

const (
	SessionOpened SessionEventType = "opened"
	SessionClosed SessionEventType = "closed"
)

// SessionEvent describes a change in the set of live event streams.
type SessionEvent struct {
	Type SessionEventType

	// ID uniquely identifies the stream session.
	ID string

	// Remote is the peer address.
	Remote string

	OpenedAt time.Time

	// ClosedAt, Frames and Err are set on [SessionClosed] events.
	ClosedAt time.Time
	Frames   int64

	// Err is why the stream ended, nil on server shutdown.
	Err error
}

func storeEventToPublic(ev store.Event) SessionEvent {
	out := SessionEvent{
		ID:       ev.Session.ID,
		Remote:   ev.Session.Remote,
		OpenedAt: ev.Session.OpenedAt,
	}
	switch ev.Type {
	case store.EventClosed:
		out.Type = SessionClosed
		out.ClosedAt = ev.ClosedAt
		out.Frames = ev.Session.Frames
		out.Err = ev.Err
	default:
		out.Type = SessionOpened
	}
	return out
}

// invokeCallbackSafe calls a session callback with panic recovery.
// Panics are logged but do not propagate.
func invokeCallbackSafe(cb func(SessionEvent), ev SessionEvent, logger *slog.Logger) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("session callback panicked",
				"panic", r,
				"session_id", ev.ID,
			)
		}
	}()
	cb(ev)
}
