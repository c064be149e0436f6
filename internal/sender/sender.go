// Package sender implements the periodic batch delivery loop and its
// offline-durability semantics.
//
// Each cycle runs two phases. REPLAY drains the pending cache in FIFO order,
// stopping at the first failure so batch order is preserved. FLUSH then
// chunks the freshly captured backlog into batches and delivers them in
// order; the first failed batch is persisted to the pending cache and the
// rest of the cycle is abandoned. Delivery is at-least-once: a batch is only
// removed from the cache after the receiver acknowledged it.
package sender

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/zuckdorsey/inputtrace/internal/config"
	"github.com/zuckdorsey/inputtrace/internal/logging"
	"github.com/zuckdorsey/inputtrace/internal/metrics"
	"github.com/zuckdorsey/inputtrace/internal/models"
	"github.com/zuckdorsey/inputtrace/internal/pending"
)

// payload is the wire body POSTed to the receiver.
type payload struct {
	Events []models.Event `json:"events"`
}

// Sender accumulates captured events and ships them to the webhook on a fixed
// interval.
type Sender struct {
	webhookURL string
	interval   time.Duration
	batchSize  int

	client  *http.Client
	cache   *pending.Cache
	backlog *backlog
	logger  *zap.Logger
	metrics *metrics.Metrics

	// cycleMu is the single-flight guard: if a cycle is still delivering
	// when the timer fires again, the new firing is skipped.
	cycleMu sync.Mutex
}

// New builds a sender from the resolved configuration.
func New(cfg *config.Config, cache *pending.Cache, logger *zap.Logger, m *metrics.Metrics) *Sender {
	s := &Sender{
		webhookURL: cfg.WebhookURL,
		interval:   cfg.SendInterval(),
		batchSize:  cfg.BatchSize,
		client:     &http.Client{Timeout: cfg.SendTimeout()},
		cache:      cache,
		backlog:    newBacklog(cfg.MaxBacklog),
		logger:     logger,
		metrics:    m,
	}
	m.PendingBatches.Set(float64(cache.Len()))
	return s
}

// Enqueue adds a captured event to the delivery backlog. Called from the
// capture callback; never blocks.
func (s *Sender) Enqueue(e models.Event) {
	if s.backlog.push(e) {
		s.metrics.EventsDropped.Inc()
		s.logger.Warn("delivery backlog full, evicting oldest unsent event")
	}
	s.metrics.BacklogDepth.Set(float64(s.backlog.len()))
}

// Run executes delivery cycles until ctx is cancelled, then performs one
// final flush so a clean shutdown leaves as little behind as possible. An
// in-flight network call is never killed; it finishes within the HTTP client
// timeout.
func (s *Sender) Run(ctx context.Context) {
	s.logger.Info("sender started",
		logging.URL(s.webhookURL),
		zap.Duration("interval", s.interval),
		logging.BatchSize(s.batchSize),
		logging.Pending(s.cache.Len()))

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.shutdownFlush()
			s.logger.Info("sender stopped", logging.Pending(s.cache.Len()))
			return
		case <-ticker.C:
			if err := s.RunCycle(ctx); err != nil {
				s.logger.Warn("delivery cycle incomplete", zap.Error(err))
			}
		}
	}
}

// RunCycle performs one REPLAY+FLUSH pass. If a previous cycle is still
// running the call is a no-op. The returned error reports the first delivery
// failure; delivery failures are never fatal.
func (s *Sender) RunCycle(ctx context.Context) error {
	if !s.cycleMu.TryLock() {
		s.logger.Debug("cycle already in progress, skipping")
		return nil
	}
	defer s.cycleMu.Unlock()

	if err := s.replay(ctx); err != nil {
		return err
	}
	return s.flush(ctx)
}

// replay delivers previously failed batches in FIFO order. It stops at the
// first failure, leaving the failed batch and everything behind it in the
// cache so the original order survives.
func (s *Sender) replay(ctx context.Context) error {
	for _, b := range s.cache.PeekAll() {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := s.deliver(b); err != nil {
			s.metrics.BatchesFailed.Inc()
			return fmt.Errorf("replay batch %s: %w", b.ID, err)
		}
		if err := s.cache.Remove(b.ID); err != nil {
			// The batch was delivered; a failed removal means it may be
			// resent next cycle. At-least-once allows that.
			s.logger.Error("remove delivered batch failed", logging.BatchID(b.ID), zap.Error(err))
		}
		s.markDelivered(b)
	}
	return nil
}

// flush drains the backlog, chunks it and delivers batch by batch. On the
// first failure the batch is persisted to the pending cache and the not yet
// attempted events go back to the front of the backlog for the next cycle,
// behind everything already pending.
func (s *Sender) flush(ctx context.Context) error {
	events := s.backlog.drain()
	s.metrics.BacklogDepth.Set(float64(s.backlog.len()))
	if len(events) == 0 {
		return nil
	}

	batches := models.Chunk(events, s.batchSize)
	for i, b := range batches {
		if err := ctx.Err(); err != nil {
			s.requeue(batches[i:])
			return err
		}
		if err := s.deliver(b); err != nil {
			s.metrics.BatchesFailed.Inc()
			if enqErr := s.cache.Enqueue(b); enqErr != nil {
				// Cannot persist the batch either; keep it in memory so the
				// next cycle retries it. The local store still has the data.
				s.logger.Error("enqueue pending batch failed", logging.BatchID(b.ID), zap.Error(enqErr))
				s.requeue(batches[i:])
			} else {
				s.metrics.PendingBatches.Set(float64(s.cache.Len()))
				s.requeue(batches[i+1:])
			}
			return fmt.Errorf("deliver batch %s: %w", b.ID, err)
		}
		s.markDelivered(b)
	}
	return nil
}

// requeue returns the events of unattempted batches to the backlog front.
func (s *Sender) requeue(batches []models.Batch) {
	var events []models.Event
	for _, b := range batches {
		events = append(events, b.Events...)
	}
	s.backlog.prepend(events)
	s.metrics.BacklogDepth.Set(float64(s.backlog.len()))
}

// deliver POSTs one batch to the webhook. Any 2xx response within the client
// timeout counts as delivered; everything else is a failure.
func (s *Sender) deliver(b models.Batch) error {
	body, err := json.Marshal(payload{Events: b.Events})
	if err != nil {
		return fmt.Errorf("marshal batch: %w", err)
	}

	req, err := http.NewRequest(http.MethodPost, s.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("post batch: %w", err)
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("receiver returned status %s", resp.Status)
	}
	return nil
}

func (s *Sender) markDelivered(b models.Batch) {
	s.metrics.BatchesDelivered.Inc()
	s.metrics.EventsSent.Add(float64(len(b.Events)))
	s.metrics.PendingBatches.Set(float64(s.cache.Len()))
	s.logger.Debug("batch delivered", logging.BatchID(b.ID), logging.BatchSize(len(b.Events)))
}

// shutdownFlush runs one last cycle on exit with a background context so the
// remaining backlog either reaches the receiver or lands in the pending cache
// before the process goes away.
func (s *Sender) shutdownFlush() {
	if err := s.RunCycle(context.Background()); err != nil {
		s.logger.Warn("final flush incomplete", zap.Error(err))
	}
	if n := s.backlog.len(); n > 0 {
		events := s.backlog.drain()
		for _, b := range models.Chunk(events, s.batchSize) {
			if err := s.cache.Enqueue(b); err != nil {
				s.logger.Error("persist backlog on shutdown failed", zap.Error(err))
				return
			}
		}
		s.metrics.PendingBatches.Set(float64(s.cache.Len()))
		s.logger.Info("persisted unsent events on shutdown", zap.Int("events", n))
	}
}
