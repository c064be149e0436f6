// Package models defines the normalized input event records exchanged between
// the capture agent and the receiver.
package models

import (
	"time"

	"github.com/google/uuid"
)

// Kind is the normalized input event variant.
type Kind string

// Event kinds.
const (
	KindKeyPress    Kind = "key_press"
	KindKeyRelease  Kind = "key_release"
	KindMouseMove   Kind = "mouse_move"
	KindMouseClick  Kind = "mouse_click"
	KindMouseScroll Kind = "mouse_scroll"
	KindSnapshot    Kind = "snapshot"
)

// Valid reports whether k is a known event kind.
func (k Kind) Valid() bool {
	switch k {
	case KindKeyPress, KindKeyRelease, KindMouseMove, KindMouseClick, KindMouseScroll, KindSnapshot:
		return true
	}
	return false
}

// Event is one normalized input event. Events are immutable after creation:
// the capture pipeline builds them once and every downstream consumer (local
// store, sender, receiver) only reads them.
type Event struct {
	TSUTC    int64  `json:"ts_utc"` // unix milliseconds
	TSISO    string `json:"ts_iso"` // RFC3339, UTC
	Kind     Kind   `json:"kind"`
	Window   string `json:"window,omitempty"`
	Key      string `json:"key,omitempty"`
	Button   string `json:"button,omitempty"`
	Pressed  bool   `json:"pressed,omitempty"`
	X        int    `json:"x,omitempty"`
	Y        int    `json:"y,omitempty"`
	DeltaX   int    `json:"dx,omitempty"`
	DeltaY   int    `json:"dy,omitempty"`
	Redacted bool   `json:"redacted,omitempty"`
}

// Stamp fills the timestamp fields from t.
func (e *Event) Stamp(t time.Time) {
	t = t.UTC()
	e.TSUTC = t.UnixMilli()
	e.TSISO = t.Format(time.RFC3339)
}

// Batch is an ordered group of events sent together in one delivery attempt.
// The ID identifies the batch in the pending cache so a confirmed delivery
// removes exactly the batch that was sent.
type Batch struct {
	ID     string  `json:"id"`
	Events []Event `json:"events"`
}

// NewBatch wraps events in a batch with a fresh identifier.
func NewBatch(events []Event) Batch {
	return Batch{ID: uuid.NewString(), Events: events}
}

// Chunk partitions events into batches of at most size events each, preserving
// order. A size below 1 yields a single batch.
func Chunk(events []Event, size int) []Batch {
	if len(events) == 0 {
		return nil
	}
	if size < 1 {
		return []Batch{NewBatch(events)}
	}
	batches := make([]Batch, 0, (len(events)+size-1)/size)
	for start := 0; start < len(events); start += size {
		end := start + size
		if end > len(events) {
			end = len(events)
		}
		batches = append(batches, NewBatch(events[start:end]))
	}
	return batches
}
