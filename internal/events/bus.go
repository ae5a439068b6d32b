package events

import (
	"log/slog"
	"sync"
)

type Kind string

const (
	WWDCWeekStarted  Kind = "wwdc_week_started"
	WWDCWeekEnded    Kind = "wwdc_week_ended"
	IndexingStarted  Kind = "indexing_started"
	IndexingProgress Kind = "indexing_progress"
	IndexingStopped  Kind = "indexing_stopped"
	SessionsChanged  Kind = "sessions_changed"
)

// Progress is a snapshot of an indexing pass.
type Progress struct {
	Total     int `json:"total"`
	Completed int `json:"completed"`
}

// Fraction is Completed over Total, 1 for an empty pass.
func (p Progress) Fraction() float64 {
	if p.Total == 0 {
		return 1
	}
	return float64(p.Completed) / float64(p.Total)
}

type Event struct {
	Kind     Kind     `json:"kind"`
	Progress Progress `json:"progress"`
	Keys     []string `json:"keys,omitempty"`
}

// Bus fans events out to subscribers. Publish never blocks; a subscriber whose
// buffer is full misses the event.
type Bus struct {
	mu     sync.RWMutex
	nextID int
	subs   map[int]chan Event
}

func NewBus() *Bus {
	return &Bus{subs: make(map[int]chan Event)}
}

// Subscribe returns a receive channel and a function that unsubscribes and closes it.
func (b *Bus) Subscribe(buffer int) (<-chan Event, func()) {
	ch := make(chan Event, buffer)
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs[id] = ch
	b.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
			close(ch)
		})
	}
}

func (b *Bus) Publish(event Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for id, ch := range b.subs {
		select {
		case ch <- event:
		default:
			slog.Warn("dropping event for slow subscriber", "kind", event.Kind, "subscriber_id", id)
		}
	}
}

type Publisher interface {
	Publish(event Event)
}
