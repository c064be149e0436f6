package capture

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/zuckdorsey/inputtrace/internal/models"
)

// ReplaySource re-emits a previously recorded events.jsonl file as raw
// events, re-stamped to the current time. Useful for demos and for exercising
// the delivery pipeline without an OS hook binding.
type ReplaySource struct {
	path string
	pace time.Duration
	out  chan RawEvent
}

// NewReplaySource reads events from path and emits one every pace interval.
func NewReplaySource(path string, pace time.Duration) *ReplaySource {
	if pace <= 0 {
		pace = 50 * time.Millisecond
	}
	return &ReplaySource{
		path: path,
		pace: pace,
		out:  make(chan RawEvent),
	}
}

// Events returns the replayed raw event stream.
func (s *ReplaySource) Events() <-chan RawEvent { return s.out }

// Start begins replaying in the background. The events channel closes when
// the file is exhausted or ctx is cancelled.
func (s *ReplaySource) Start(ctx context.Context) error {
	f, err := os.Open(s.path)
	if err != nil {
		return fmt.Errorf("open replay file: %w", err)
	}

	go func() {
		defer close(s.out)
		defer f.Close()

		ticker := time.NewTicker(s.pace)
		defer ticker.Stop()

		scanner := bufio.NewScanner(f)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			var e models.Event
			if err := json.Unmarshal(scanner.Bytes(), &e); err != nil {
				continue
			}
			raw := RawEvent{
				Kind:    e.Kind,
				Time:    time.Now(),
				Window:  e.Window,
				Key:     e.Key,
				Button:  e.Button,
				Pressed: e.Pressed,
				X:       e.X,
				Y:       e.Y,
				DX:      e.DeltaX,
				DY:      e.DeltaY,
			}
			select {
			case <-ctx.Done():
				return
			case s.out <- raw:
			}
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()

	return nil
}
