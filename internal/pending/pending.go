// Package pending implements the durable queue of batches that failed
// delivery and await retry.
package pending

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"

	"github.com/zuckdorsey/inputtrace/internal/logging"
	"github.com/zuckdorsey/inputtrace/internal/models"
)

// Cache is a durable FIFO of undelivered batches. The file format is one JSON
// batch object per line. Entries are removed only after confirmed delivery,
// so a crash between delivery and removal results in a duplicate resend
// (at-least-once); the receiver tolerates duplicates.
type Cache struct {
	path   string
	logger *zap.Logger

	mu      sync.Mutex
	batches []models.Batch
}

// Open loads the cache file at path, creating its directory if needed.
// Corrupted lines are skipped and logged rather than failing startup: losing
// a buffered delivery is preferable to blocking capture indefinitely.
func Open(path string, logger *zap.Logger) (*Cache, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create cache directory: %w", err)
	}

	c := &Cache{path: path, logger: logger}

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return c, nil
		}
		return nil, fmt.Errorf("open pending cache: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		var b models.Batch
		if err := json.Unmarshal(scanner.Bytes(), &b); err != nil {
			logger.Warn("skipping malformed pending entry", logging.Path(path), zap.Error(err))
			continue
		}
		c.batches = append(c.batches, b)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan pending cache: %w", err)
	}

	return c, nil
}

// Enqueue appends a batch to the cache and persists it before returning.
func (c *Cache) Enqueue(b models.Batch) error {
	line, err := json.Marshal(b)
	if err != nil {
		return fmt.Errorf("marshal batch: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	f, err := os.OpenFile(c.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open pending cache: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("append pending batch: %w", err)
	}
	if err := f.Sync(); err != nil {
		return fmt.Errorf("sync pending cache: %w", err)
	}

	c.batches = append(c.batches, b)
	return nil
}

// PeekAll returns the pending batches in arrival order without removing them.
func (c *Cache) PeekAll() []models.Batch {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]models.Batch, len(c.batches))
	copy(out, c.batches)
	return out
}

// Len returns the number of pending batches.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.batches)
}

// Remove deletes the batch with the given id after confirmed delivery and
// rewrites the cache file atomically.
func (c *Cache) Remove(id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	idx := -1
	for i, b := range c.batches {
		if b.ID == id {
			idx = i
			break
		}
	}
	if idx == -1 {
		return nil
	}

	remaining := make([]models.Batch, 0, len(c.batches)-1)
	remaining = append(remaining, c.batches[:idx]...)
	remaining = append(remaining, c.batches[idx+1:]...)

	if err := c.rewrite(remaining); err != nil {
		return err
	}
	c.batches = remaining
	return nil
}

// rewrite persists the given batches via a temp file and rename so a crash
// mid-rewrite never leaves a truncated cache. Caller holds c.mu.
func (c *Cache) rewrite(batches []models.Batch) error {
	if len(batches) == 0 {
		if err := os.Remove(c.path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("remove pending cache: %w", err)
		}
		return nil
	}

	tmp, err := os.CreateTemp(filepath.Dir(c.path), ".pending-*")
	if err != nil {
		return fmt.Errorf("create temp cache: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	for _, b := range batches {
		line, err := json.Marshal(b)
		if err != nil {
			tmp.Close()
			return fmt.Errorf("marshal batch: %w", err)
		}
		if _, err := tmp.Write(append(line, '\n')); err != nil {
			tmp.Close()
			return fmt.Errorf("write temp cache: %w", err)
		}
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync temp cache: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp cache: %w", err)
	}

	if err := os.Rename(tmpName, c.path); err != nil {
		return fmt.Errorf("replace pending cache: %w", err)
	}
	return nil
}
