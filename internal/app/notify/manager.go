// Package notify broadcasts mixer end events to application subscribers.
package notify

import (
	"sync"

	"github.com/google/uuid"

	"github.com/mochuelitoval/renpy/internal/app/mixer"
)

// Manager manages event subscriptions and broadcasting. The mix-tick side
// never touches it directly; the lifecycle pump feeds it from the engine's
// event queue, so subscribers see events without polling the audio path.
type Manager struct {
	mu     sync.RWMutex
	subs   map[string]chan mixer.Event
	closed bool
}

// NewManager creates a new event manager.
func NewManager() *Manager {
	return &Manager{
		subs: make(map[string]chan mixer.Event),
	}
}

// Subscribe adds a subscriber and returns its ID and receive channel. The
// channel holds up to buffer events; a slow subscriber loses events rather
// than stalling the broadcast.
func (m *Manager) Subscribe(buffer int) (string, <-chan mixer.Event) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if buffer < 1 {
		buffer = 1
	}
	id := uuid.New().String()
	ch := make(chan mixer.Event, buffer)
	if m.closed {
		close(ch)
		return id, ch
	}
	m.subs[id] = ch
	return id, ch
}

// Unsubscribe removes a subscriber and closes its channel.
func (m *Manager) Unsubscribe(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if ch, ok := m.subs[id]; ok {
		delete(m.subs, id)
		close(ch)
	}
}

// Broadcast delivers ev to every subscriber. Sends never block, so the
// read lock is held for the whole pass; full channels are skipped. Holding
// the lock keeps Unsubscribe from closing a channel mid-send.
func (m *Manager) Broadcast(ev mixer.Event) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, ch := range m.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

// Close closes every subscriber channel. Further broadcasts are dropped;
// further subscriptions receive an already-closed channel.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return
	}
	m.closed = true
	for id, ch := range m.subs {
		delete(m.subs, id)
		close(ch)
	}
}
