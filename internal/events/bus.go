// Package events provides the in-process pub/sub bus connecting the
// work queue, the scheduler and the HTTP event stream.
package events

import (
	"sync"
	"time"
)

// EventType identifies what happened.
type EventType string

const (
	JobQueued       EventType = "job_queued"
	JobStarted      EventType = "job_started"
	JobProgress     EventType = "job_progress"
	JobFinished     EventType = "job_finished"
	AdvisoryReady   EventType = "advisory_ready"
	SignalsRecorded EventType = "signals_recorded"
	BackupCompleted EventType = "backup_completed"
)

// Event is one bus message. Data holds event-specific fields and is
// marshalled as-is onto the websocket stream.
type Event struct {
	Type EventType              `json:"type"`
	Time time.Time              `json:"time"`
	Data map[string]interface{} `json:"data,omitempty"`
}

// Bus fans events out to subscribers. Publish never blocks: a
// subscriber that stops draining loses events rather than stalling
// the publisher.
type Bus struct {
	mu     sync.RWMutex
	nextID int
	subs   map[int]chan Event
}

func NewBus() *Bus {
	return &Bus{subs: make(map[int]chan Event)}
}

// Subscribe returns a receive channel and its cancel function. The
// channel is buffered; cancel closes it and detaches the subscriber.
func (b *Bus) Subscribe() (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	ch := make(chan Event, 64)
	b.subs[id] = ch

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if sub, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(sub)
		}
	}
	return ch, cancel
}

// Publish delivers the event to every subscriber with room in its
// buffer.
func (b *Bus) Publish(eventType EventType, data map[string]interface{}) {
	evt := Event{Type: eventType, Time: time.Now(), Data: data}

	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs {
		select {
		case ch <- evt:
		default:
		}
	}
}

// Subscribers reports the current subscriber count.
func (b *Bus) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
