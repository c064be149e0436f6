// Package capture binds input event sources to the local store and the batch
// sender.
//
// OS-level hook bindings (keyboard/mouse listeners, active window lookup) are
// collaborators that live outside this repository; they implement Source and
// feed raw events into the Recorder.
package capture

import (
	"context"
	"time"

	"github.com/zuckdorsey/inputtrace/internal/models"
)

// RawEvent is one input event as produced by a capture source, before
// redaction and normalization.
type RawEvent struct {
	Kind    models.Kind
	Time    time.Time
	Window  string // active window title at capture time
	Key     string
	Button  string
	Pressed bool
	X, Y    int
	DX, DY  int
}

// Source produces raw input events. Start returns once the source is running;
// events arrive on the Events channel until the context is cancelled, after
// which the channel is closed.
type Source interface {
	Start(ctx context.Context) error
	Events() <-chan RawEvent
}
