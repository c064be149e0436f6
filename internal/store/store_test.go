package store

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/zuckdorsey/inputtrace/internal/models"
)

func testEvent(i int) models.Event {
	e := models.Event{Kind: models.KindKeyPress, Key: "k"}
	e.Stamp(time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC).Add(time.Duration(i) * time.Millisecond))
	return e
}

func TestOpenCreatesDirectoryAndFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "events.jsonl")

	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer s.Close()

	if _, err := os.Stat(path); err != nil {
		t.Errorf("log file was not created: %v", err)
	}
}

func TestAppendWritesOneLinePerEvent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.jsonl")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer s.Close()

	const n = 25
	for i := 0; i < n; i++ {
		if err := s.Append(testEvent(i)); err != nil {
			t.Fatalf("Append %d failed: %v", i, err)
		}
	}

	if got := countLines(t, path); got != n {
		t.Errorf("expected %d lines, got %d", n, got)
	}
}

func TestAppendConcurrentLinesNeverInterleave(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.jsonl")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer s.Close()

	const writers = 8
	const perWriter = 20

	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				if err := s.Append(testEvent(w*perWriter + i)); err != nil {
					t.Errorf("Append failed: %v", err)
				}
			}
		}(w)
	}
	wg.Wait()

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open log: %v", err)
	}
	defer f.Close()

	count := 0
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var e models.Event
		if err := json.Unmarshal(scanner.Bytes(), &e); err != nil {
			t.Fatalf("line %d is not valid JSON: %v", count, err)
		}
		count++
	}
	if count != writers*perWriter {
		t.Errorf("expected %d lines, got %d", writers*perWriter, count)
	}
}

func TestReadRecentReturnsTail(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.jsonl")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer s.Close()

	for i := 0; i < 10; i++ {
		if err := s.Append(testEvent(i)); err != nil {
			t.Fatalf("Append failed: %v", err)
		}
	}

	events, err := s.ReadRecent(3)
	if err != nil {
		t.Fatalf("ReadRecent failed: %v", err)
	}
	if len(events) != 3 {
		t.Fatalf("expected 3 events, got %d", len(events))
	}
	if events[2].TSUTC <= events[0].TSUTC {
		t.Error("expected oldest-first order in tail")
	}
}

func TestAppendAfterCloseFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.jsonl")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	if err := s.Append(testEvent(0)); err == nil {
		t.Error("expected error appending to closed store")
	}
}

func TestOpenUnwritableDirectory(t *testing.T) {
	if os.Getuid() == 0 {
		t.Skip("running as root, permission bits are not enforced")
	}
	dir := t.TempDir()
	if err := os.Chmod(dir, 0o555); err != nil {
		t.Fatalf("chmod: %v", err)
	}
	defer os.Chmod(dir, 0o755)

	if _, err := Open(filepath.Join(dir, "sub", "events.jsonl")); err == nil {
		t.Error("expected error opening store in unwritable directory")
	}
}

func countLines(t *testing.T, path string) int {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open %s: %v", path, err)
	}
	defer f.Close()

	n := 0
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		n++
	}
	return n
}
