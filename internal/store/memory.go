package store

import (
	"sort"
	"sync"
	"time"
)

const subscriberBuffer = 100

// MemoryStore is an in-memory implementation of [Store].
//
// Subscribers receive events via buffered channels (buffer size 100). Events
// are sent non-blocking; if a subscriber's buffer is full, the event is
// dropped for that subscriber so that a stream never waits on a listener.
type MemoryStore struct {
	mu          sync.RWMutex
	sessions    map[string]Session
	subscribers map[chan Event]struct{}
	subMu       sync.RWMutex
	now         func() time.Time
}

// NewMemoryStore creates a new in-memory [Store] implementation.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions:    make(map[string]Session),
		subscribers: make(map[chan Event]struct{}),
		now:         time.Now,
	}
}

// Open registers s and publishes an [EventOpened] event.
func (m *MemoryStore) Open(s Session) {
	m.mu.Lock()
	m.sessions[s.ID] = s
	m.mu.Unlock()

	m.notifySubscribers(Event{Type: EventOpened, Session: s})
}

// Close removes the session and publishes an [EventClosed] event.
func (m *MemoryStore) Close(id string, frames int64, err error) {
	m.mu.Lock()
	s, ok := m.sessions[id]
	if ok {
		delete(m.sessions, id)
	}
	m.mu.Unlock()

	if !ok {
		return
	}

	s.Frames = frames
	m.notifySubscribers(Event{
		Type:     EventClosed,
		Session:  s,
		ClosedAt: m.now(),
		Err:      err,
	})
}

// GetAll returns the open sessions, oldest first.
func (m *MemoryStore) GetAll() []Session {
	m.mu.RLock()
	sessions := make([]Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.mu.RUnlock()

	sort.Slice(sessions, func(i, j int) bool {
		if sessions[i].OpenedAt.Equal(sessions[j].OpenedAt) {
			return sessions[i].ID < sessions[j].ID
		}
		return sessions[i].OpenedAt.Before(sessions[j].OpenedAt)
	})
	return sessions
}

// Count returns the number of open sessions.
func (m *MemoryStore) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Subscribe creates a new subscription and returns a channel for receiving events.
//
// Caller must call [MemoryStore.Unsubscribe] when done to prevent resource leaks.
func (m *MemoryStore) Subscribe() <-chan Event {
	ch := make(chan Event, subscriberBuffer)

	m.subMu.Lock()
	m.subscribers[ch] = struct{}{}
	m.subMu.Unlock()

	return ch
}

// Unsubscribe removes a subscription and closes its channel.
// Safe to call multiple times or with an unknown channel.
func (m *MemoryStore) Unsubscribe(ch <-chan Event) {
	m.subMu.Lock()
	defer m.subMu.Unlock()

	for subCh := range m.subscribers {
		if subCh == ch {
			delete(m.subscribers, subCh)
			close(subCh)
			break
		}
	}
}

// notifySubscribers sends ev to all active subscribers without blocking.
func (m *MemoryStore) notifySubscribers(ev Event) {
	m.subMu.RLock()
	defer m.subMu.RUnlock()

	for ch := range m.subscribers {
		select {
		case ch <- ev:
		default:
			// subscriber is slow, drop the event
		}
	}
}
