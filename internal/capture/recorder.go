package capture

import (
	"context"

	"go.uber.org/zap"

	"github.com/zuckdorsey/inputtrace/internal/logging"
	"github.com/zuckdorsey/inputtrace/internal/metrics"
	"github.com/zuckdorsey/inputtrace/internal/models"
	"github.com/zuckdorsey/inputtrace/internal/sender"
	"github.com/zuckdorsey/inputtrace/internal/store"
)

// Recorder normalizes raw events, applies redaction, appends to the local
// store and hands the event to the sender. The local append gates delivery:
// an event only enters the delivery pipeline once its line is on disk, so a
// delivery failure loses nothing and every delivered event has a local record.
type Recorder struct {
	redactor *models.Redactor
	store    *store.Store
	sender   *sender.Sender
	logger   *zap.Logger
	metrics  *metrics.Metrics
}

// NewRecorder wires the capture pipeline.
func NewRecorder(redactor *models.Redactor, st *store.Store, snd *sender.Sender, logger *zap.Logger, m *metrics.Metrics) *Recorder {
	return &Recorder{
		redactor: redactor,
		store:    st,
		sender:   snd,
		logger:   logger,
		metrics:  m,
	}
}

// Handle processes one raw event. Malformed input is dropped silently apart
// from a debug log line.
func (r *Recorder) Handle(raw RawEvent) {
	if !raw.Kind.Valid() || raw.Time.IsZero() {
		r.metrics.EventsDropped.Inc()
		r.logger.Debug("dropping malformed raw event", logging.Kind(string(raw.Kind)))
		return
	}

	e := models.Event{
		Kind:    raw.Kind,
		Window:  raw.Window,
		Key:     raw.Key,
		Button:  raw.Button,
		Pressed: raw.Pressed,
		X:       raw.X,
		Y:       raw.Y,
		DeltaX:  raw.DX,
		DeltaY:  raw.DY,
	}
	e.Stamp(raw.Time)
	e = r.redactor.Apply(e)

	r.metrics.EventsCaptured.Inc()
	if e.Redacted {
		r.metrics.EventsRedacted.Inc()
	}

	if err := r.store.Append(e); err != nil {
		// An event that never reached the local log is not handed to the
		// sender; everything delivered must exist on disk first.
		r.metrics.EventsDropped.Inc()
		r.logger.Error("append to local store failed, dropping event from delivery",
			logging.Path(r.store.Path()), zap.Error(err))
		return
	}
	r.sender.Enqueue(e)
}

// Consume pumps events from a source into the recorder until the source
// channel closes or the context is cancelled.
func (r *Recorder) Consume(ctx context.Context, src Source) error {
	if err := src.Start(ctx); err != nil {
		return err
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case raw, ok := <-src.Events():
			if !ok {
				return nil
			}
			r.Handle(raw)
		}
	}
}
