package service

import (
	"sync"
	"time"
)

const (
	EventAutopilotState = "autopilot_state"
	EventJobUpdate      = "job_update"
)

// Event is a state-change notification pushed to dashboard subscribers.
// Polling the status endpoints remains valid as a fallback.
type Event struct {
	Type     string    `json:"type"`
	State    string    `json:"state,omitempty"`
	JobID    string    `json:"job_id,omitempty"`
	Platform string    `json:"platform,omitempty"`
	Status   string    `json:"status,omitempty"`
	Error    string    `json:"error,omitempty"`
	At       time.Time `json:"at"`
}

// EventBus fans events out to registered subscriber channels. Sends never
// block: a subscriber that cannot keep up drops events rather than stalling
// the scheduler.
type EventBus struct {
	mu   sync.RWMutex
	subs map[chan Event]struct{}
}

func NewEventBus() *EventBus {
	return &EventBus{subs: make(map[chan Event]struct{})}
}

func (b *EventBus) Subscribe() chan Event {
	ch := make(chan Event, 16)
	b.mu.Lock()
	b.subs[ch] = struct{}{}
	b.mu.Unlock()
	return ch
}

func (b *EventBus) Unsubscribe(ch chan Event) {
	b.mu.Lock()
	if _, ok := b.subs[ch]; ok {
		delete(b.subs, ch)
		close(ch)
	}
	b.mu.Unlock()
}

func (b *EventBus) Publish(evt Event) {
	if evt.At.IsZero() {
		evt.At = time.Now()
	}
	b.mu.RLock()
	for ch := range b.subs {
		select { // non-blocking
		case ch <- evt:
		default:
		}
	}
	b.mu.RUnlock()
}
