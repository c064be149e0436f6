package sender

import (
	"sync"

	"github.com/zuckdorsey/inputtrace/internal/models"
)

// backlog is the bounded in-memory queue of captured events awaiting the next
// delivery cycle. The capture callback pushes, the sender drains; both sides
// go through the mutex so the hand-off never interleaves.
//
// When the queue is full the oldest unsent event is evicted. The local store
// already holds the event; it only falls out of the delivery pipeline.
type backlog struct {
	mu     sync.Mutex
	events []models.Event
	max    int
}

func newBacklog(max int) *backlog {
	if max < 1 {
		max = 1
	}
	return &backlog{max: max}
}

// push appends an event, evicting the oldest entry when the queue is full.
// It reports whether an eviction happened.
func (b *backlog) push(e models.Event) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	evicted := false
	if len(b.events) >= b.max {
		b.events = b.events[1:]
		evicted = true
	}
	b.events = append(b.events, e)
	return evicted
}

// drain removes and returns all queued events in capture order.
func (b *backlog) drain() []models.Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.events) == 0 {
		return nil
	}
	out := b.events
	b.events = nil
	return out
}

// prepend puts events back at the front of the queue, ahead of anything
// captured while a cycle was running. If the merge exceeds the bound the
// oldest entries are dropped so the newest data survives.
func (b *backlog) prepend(events []models.Event) {
	if len(events) == 0 {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	merged := make([]models.Event, 0, len(events)+len(b.events))
	merged = append(merged, events...)
	merged = append(merged, b.events...)
	if len(merged) > b.max {
		merged = merged[len(merged)-b.max:]
	}
	b.events = merged
}

func (b *backlog) len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.events)
}
