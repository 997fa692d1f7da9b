package server

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/goccy/go-json"

	"github.com/jpalmerr/gpiolive/internal/store"
)

type sessionState int

const (
	sessionOpened sessionState = iota
	sessionStreaming
	sessionClosed
)

func (s sessionState) String() string {
	switch s {
	case sessionOpened:
		return "opened"
	case sessionStreaming:
		return "streaming"
	default:
		return "closed"
	}
}

// streamSession pushes one snapshot frame per interval to a single peer.
//
// Opened -> Streaming after the headers are written; Streaming -> Closed
// on the first failed write or when ctx is cancelled. Closed is terminal
// and no further bytes are written.
type streamSession struct {
	id       string
	remote   string
	w        io.Writer
	builder  SnapshotBuilder
	interval time.Duration
	clock    Clock
	sessions store.Store
	observer Observer
	logger   *slog.Logger

	state  sessionState
	frames int64
}

// run drives the session until the peer departs or ctx is cancelled.
// Returns nil on cancellation and an error wrapping [ErrWriteFailure] when
// the peer stops accepting bytes.
func (s *streamSession) run(ctx context.Context) (err error) {
	if _, err := io.WriteString(s.w, streamHeaders); err != nil {
		s.state = sessionClosed
		return err
	}

	s.sessions.Open(store.Session{
		ID:       s.id,
		Remote:   s.remote,
		OpenedAt: s.clock.Now(),
	})
	s.observer.StreamOpened()
	s.state = sessionStreaming
	s.logger.Debug("stream opened", "session", s.id, "remote", s.remote)

	defer func() {
		s.state = sessionClosed
		s.sessions.Close(s.id, s.frames, err)
		s.observer.StreamClosed()
		s.logger.Debug("stream closed", "session", s.id, "frames", s.frames, "error", err)
	}()

	var frame bytes.Buffer
	for {
		started := time.Now()
		snap := s.builder.Build(ctx)
		s.observer.ObserveBuild(time.Since(started))

		data, err := json.Marshal(snap)
		if err != nil {
			return err
		}

		frame.Reset()
		frame.WriteString("data: ")
		frame.Write(data)
		frame.WriteString("\n\n")
		if _, err := s.w.Write(frame.Bytes()); err != nil {
			return err
		}
		s.frames++
		s.observer.FrameWritten()

		select {
		case <-ctx.Done():
			return nil
		case <-s.clock.After(s.interval):
		}
	}
}
