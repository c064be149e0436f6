package pending

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/zuckdorsey/inputtrace/internal/models"
)

func testBatch(n int) models.Batch {
	events := make([]models.Event, n)
	for i := range events {
		events[i] = models.Event{Kind: models.KindKeyPress, Key: "k"}
		events[i].Stamp(time.Now())
	}
	return models.NewBatch(events)
}

func TestOpenMissingFile(t *testing.T) {
	c, err := Open(filepath.Join(t.TempDir(), "pending_events.jsonl"), zap.NewNop())
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if c.Len() != 0 {
		t.Errorf("expected empty cache, got %d", c.Len())
	}
}

func TestEnqueuePeekOrder(t *testing.T) {
	c, err := Open(filepath.Join(t.TempDir(), "pending_events.jsonl"), zap.NewNop())
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	batches := []models.Batch{testBatch(1), testBatch(2), testBatch(3)}
	for _, b := range batches {
		if err := c.Enqueue(b); err != nil {
			t.Fatalf("Enqueue failed: %v", err)
		}
	}

	got := c.PeekAll()
	if len(got) != 3 {
		t.Fatalf("expected 3 batches, got %d", len(got))
	}
	for i := range batches {
		if got[i].ID != batches[i].ID {
			t.Errorf("batch %d: expected id %s, got %s", i, batches[i].ID, got[i].ID)
		}
	}
}

func TestRestartDurability(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pending_events.jsonl")

	c, err := Open(path, zap.NewNop())
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	batches := []models.Batch{testBatch(2), testBatch(5), testBatch(1)}
	for _, b := range batches {
		if err := c.Enqueue(b); err != nil {
			t.Fatalf("Enqueue failed: %v", err)
		}
	}

	// Simulate a process restart by reloading from disk.
	reloaded, err := Open(path, zap.NewNop())
	if err != nil {
		t.Fatalf("reload failed: %v", err)
	}

	got := reloaded.PeekAll()
	if len(got) != 3 {
		t.Fatalf("expected 3 batches after restart, got %d", len(got))
	}
	for i := range batches {
		if got[i].ID != batches[i].ID {
			t.Errorf("batch %d: expected id %s, got %s", i, batches[i].ID, got[i].ID)
		}
		if len(got[i].Events) != len(batches[i].Events) {
			t.Errorf("batch %d: expected %d events, got %d", i, len(batches[i].Events), len(got[i].Events))
		}
	}
}

func TestRemoveMiddleBatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pending_events.jsonl")
	c, err := Open(path, zap.NewNop())
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	b1, b2, b3 := testBatch(1), testBatch(1), testBatch(1)
	for _, b := range []models.Batch{b1, b2, b3} {
		if err := c.Enqueue(b); err != nil {
			t.Fatalf("Enqueue failed: %v", err)
		}
	}

	if err := c.Remove(b2.ID); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}

	got := c.PeekAll()
	if len(got) != 2 || got[0].ID != b1.ID || got[1].ID != b3.ID {
		t.Errorf("unexpected cache contents after remove: %v", got)
	}

	// Removal must be durable too.
	reloaded, err := Open(path, zap.NewNop())
	if err != nil {
		t.Fatalf("reload failed: %v", err)
	}
	if reloaded.Len() != 2 {
		t.Errorf("expected 2 batches after reload, got %d", reloaded.Len())
	}
}

func TestRemoveLastBatchDeletesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pending_events.jsonl")
	c, err := Open(path, zap.NewNop())
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	b := testBatch(1)
	if err := c.Enqueue(b); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}
	if err := c.Remove(b.ID); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}

	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("expected cache file to be removed when empty")
	}
}

func TestRemoveUnknownIDIsNoop(t *testing.T) {
	c, err := Open(filepath.Join(t.TempDir(), "pending_events.jsonl"), zap.NewNop())
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if err := c.Enqueue(testBatch(1)); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}

	if err := c.Remove("no-such-id"); err != nil {
		t.Errorf("Remove of unknown id should be a no-op, got %v", err)
	}
	if c.Len() != 1 {
		t.Errorf("expected 1 batch, got %d", c.Len())
	}
}

func TestOpenSkipsCorruptedLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pending_events.jsonl")

	c, err := Open(path, zap.NewNop())
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	good := testBatch(2)
	if err := c.Enqueue(good); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		t.Fatalf("open cache file: %v", err)
	}
	if _, err := f.WriteString("{this is not json\n"); err != nil {
		t.Fatalf("write garbage: %v", err)
	}
	f.Close()

	reloaded, err := Open(path, zap.NewNop())
	if err != nil {
		t.Fatalf("reload with corruption failed: %v", err)
	}
	got := reloaded.PeekAll()
	if len(got) != 1 || got[0].ID != good.ID {
		t.Errorf("expected only the valid batch to survive, got %v", got)
	}
}
