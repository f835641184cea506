// Package events provides the in-process lifecycle notification bus.
// Delivery is best-effort and fire-and-forget: a slow or absent
// subscriber never blocks the ledger or the scheduler, it just misses
// events. Presentation layers (SSE feeds, dashboards) subscribe here.
package events

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Type identifies a lifecycle event.
type Type string

const (
	JobPosted    Type = "posted"
	JobClaimed   Type = "claimed"
	JobSubmitted Type = "submitted"
	JobCompleted Type = "completed"
	JobDisputed  Type = "disputed"
	JobCancelled Type = "cancelled"
	JobExpired   Type = "expired"
	JobResolved  Type = "resolved"
	WorkFailed   Type = "failed" // Scheduler-local failure (executor error or timeout)
)

// Event is one lifecycle notification.
type Event struct {
	ID     string    `json:"id"`
	Type   Type      `json:"type"`
	JobID  int64     `json:"job_id"`
	Agent  string    `json:"agent,omitempty"`
	Amount int64     `json:"amount,omitempty"` // Credits moved, when funds were involved
	Reason string    `json:"reason,omitempty"`
	Time   time.Time `json:"time"`
}

// Bus fans events out to subscribers. Safe for concurrent use.
type Bus struct {
	mu   sync.Mutex
	subs map[string]chan Event
}

// NewBus creates an event bus with no subscribers.
func NewBus() *Bus {
	return &Bus{subs: make(map[string]chan Event)}
}

// Subscribe registers a buffered subscriber channel. The returned
// cancel func removes the subscription and closes the channel.
func (b *Bus) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 16
	}
	ch := make(chan Event, buffer)
	key := uuid.NewString()

	b.mu.Lock()
	b.subs[key] = ch
	b.mu.Unlock()

	cancel := func() {
		b.mu.Lock()
		if sub, ok := b.subs[key]; ok {
			delete(b.subs, key)
			close(sub)
		}
		b.mu.Unlock()
	}
	return ch, cancel
}

// Publish delivers the event to every subscriber without blocking.
// Subscribers with full buffers drop the event.
func (b *Bus) Publish(ev Event) {
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.Time.IsZero() {
		ev.Time = time.Now()
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

// Subscribers returns the current subscriber count.
func (b *Bus) Subscribers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}
