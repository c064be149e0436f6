package sender

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/zuckdorsey/inputtrace/internal/config"
	"github.com/zuckdorsey/inputtrace/internal/metrics"
	"github.com/zuckdorsey/inputtrace/internal/models"
	"github.com/zuckdorsey/inputtrace/internal/pending"
)

// receivedBatch records one POST body seen by the test receiver.
type receivedBatch struct {
	Events []models.Event `json:"events"`
}

// testReceiver is a webhook stub whose failure behavior can be flipped.
type testReceiver struct {
	mu       sync.Mutex
	fail     bool
	requests []receivedBatch
}

func (r *testReceiver) handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		r.mu.Lock()
		defer r.mu.Unlock()
		if r.fail {
			http.Error(w, "unavailable", http.StatusServiceUnavailable)
			return
		}
		var b receivedBatch
		if err := json.NewDecoder(req.Body).Decode(&b); err != nil {
			http.Error(w, "bad json", http.StatusBadRequest)
			return
		}
		r.requests = append(r.requests, b)
		w.WriteHeader(http.StatusOK)
	})
}

func (r *testReceiver) setFail(fail bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fail = fail
}

func (r *testReceiver) batches() []receivedBatch {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]receivedBatch, len(r.requests))
	copy(out, r.requests)
	return out
}

func newTestSender(t *testing.T, url string, batchSize int) (*Sender, *pending.Cache) {
	t.Helper()

	cfg := config.Default()
	cfg.WebhookURL = url
	cfg.BatchSize = batchSize
	cfg.SendTimeoutSeconds = 2

	cache, err := pending.Open(filepath.Join(t.TempDir(), "pending_events.jsonl"), zap.NewNop())
	if err != nil {
		t.Fatalf("open cache: %v", err)
	}

	m := metrics.New(prometheus.NewRegistry())
	return New(cfg, cache, zap.NewNop(), m), cache
}

func enqueueEvents(s *Sender, n int) {
	base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < n; i++ {
		e := models.Event{Kind: models.KindKeyPress, Key: "k"}
		e.Stamp(base.Add(time.Duration(i) * time.Millisecond))
		s.Enqueue(e)
	}
}

func TestFlushDeliversExactBatches(t *testing.T) {
	recv := &testReceiver{}
	srv := httptest.NewServer(recv.handler())
	defer srv.Close()

	s, cache := newTestSender(t, srv.URL, 10)
	enqueueEvents(s, 30)

	if err := s.RunCycle(context.Background()); err != nil {
		t.Fatalf("RunCycle failed: %v", err)
	}

	got := recv.batches()
	if len(got) != 3 {
		t.Fatalf("expected 3 batches, got %d", len(got))
	}
	for i, b := range got {
		if len(b.Events) != 10 {
			t.Errorf("batch %d: expected 10 events, got %d", i, len(b.Events))
		}
	}
	if cache.Len() != 0 {
		t.Errorf("expected empty pending cache, got %d", cache.Len())
	}
}

func TestFailureParksFirstBatchAndHaltsFlush(t *testing.T) {
	recv := &testReceiver{fail: true}
	srv := httptest.NewServer(recv.handler())
	defer srv.Close()

	s, cache := newTestSender(t, srv.URL, 10)
	enqueueEvents(s, 30)

	for i := 0; i < 3; i++ {
		if err := s.RunCycle(context.Background()); err == nil {
			t.Fatalf("cycle %d: expected delivery error", i)
		}
	}

	// Only the first batch was ever attempted; replay blocks the rest so
	// order is preserved.
	if cache.Len() != 1 {
		t.Fatalf("expected 1 pending batch, got %d", cache.Len())
	}
	pendingBatch := cache.PeekAll()[0]
	if len(pendingBatch.Events) != 10 {
		t.Errorf("expected pending batch of 10 events, got %d", len(pendingBatch.Events))
	}
	if s.backlog.len() != 20 {
		t.Errorf("expected 20 events back in the backlog, got %d", s.backlog.len())
	}
}

func TestRetrySuccessDrainsCacheInOrder(t *testing.T) {
	recv := &testReceiver{fail: true}
	srv := httptest.NewServer(recv.handler())
	defer srv.Close()

	s, cache := newTestSender(t, srv.URL, 10)
	enqueueEvents(s, 30)

	if err := s.RunCycle(context.Background()); err == nil {
		t.Fatal("expected first cycle to fail")
	}

	recv.setFail(false)
	if err := s.RunCycle(context.Background()); err != nil {
		t.Fatalf("retry cycle failed: %v", err)
	}

	got := recv.batches()
	if len(got) != 3 {
		t.Fatalf("expected 3 delivered batches, got %d", len(got))
	}
	// Batch i must never be first-delivered after batch i+1.
	var prev int64 = -1
	for i, b := range got {
		first := b.Events[0].TSUTC
		if first <= prev {
			t.Errorf("batch %d delivered out of order: first ts %d after %d", i, first, prev)
		}
		prev = first
	}
	if cache.Len() != 0 {
		t.Errorf("expected pending cache to drain, got %d", cache.Len())
	}
}

func TestReplayDrainsPreexistingCacheFirst(t *testing.T) {
	recv := &testReceiver{}
	srv := httptest.NewServer(recv.handler())
	defer srv.Close()

	s, cache := newTestSender(t, srv.URL, 10)

	// Batches left over from a previous run.
	old := models.NewBatch([]models.Event{{TSUTC: 1, TSISO: "old", Kind: models.KindKeyPress}})
	if err := cache.Enqueue(old); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	enqueueEvents(s, 5)

	if err := s.RunCycle(context.Background()); err != nil {
		t.Fatalf("RunCycle failed: %v", err)
	}

	got := recv.batches()
	if len(got) != 2 {
		t.Fatalf("expected 2 batches, got %d", len(got))
	}
	if got[0].Events[0].TSISO != "old" {
		t.Error("pending batch must be replayed before newly captured events")
	}
	if cache.Len() != 0 {
		t.Errorf("expected empty cache, got %d", cache.Len())
	}
}

func TestDeliveryTimeoutParksBatch(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer srv.Close()
	defer close(release)

	cfg := config.Default()
	cfg.WebhookURL = srv.URL
	cfg.BatchSize = 10
	cfg.SendTimeoutSeconds = 1

	cache, err := pending.Open(filepath.Join(t.TempDir(), "pending_events.jsonl"), zap.NewNop())
	if err != nil {
		t.Fatalf("open cache: %v", err)
	}
	s := New(cfg, cache, zap.NewNop(), metrics.New(prometheus.NewRegistry()))
	enqueueEvents(s, 5)

	if err := s.RunCycle(context.Background()); err == nil {
		t.Fatal("expected timeout to count as delivery failure")
	}
	if cache.Len() != 1 {
		t.Errorf("expected timed-out batch in pending cache, got %d", cache.Len())
	}
}

func TestCyclesDoNotOverlap(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	var requests atomic.Int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if requests.Add(1) == 1 {
			close(started)
			<-release
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	s, _ := newTestSender(t, srv.URL, 10)
	enqueueEvents(s, 5)

	done := make(chan error, 1)
	go func() { done <- s.RunCycle(context.Background()) }()

	<-started
	// A second firing while the first cycle is mid-delivery is skipped.
	if err := s.RunCycle(context.Background()); err != nil {
		t.Errorf("overlapping cycle should be a no-op, got %v", err)
	}
	if got := requests.Load(); got != 1 {
		t.Errorf("expected 1 in-flight request during overlap, got %d", got)
	}

	close(release)
	if err := <-done; err != nil {
		t.Errorf("first cycle failed: %v", err)
	}
}

func TestBacklogEvictsOldestWhenFull(t *testing.T) {
	recv := &testReceiver{}
	srv := httptest.NewServer(recv.handler())
	defer srv.Close()

	cfg := config.Default()
	cfg.WebhookURL = srv.URL
	cfg.BatchSize = 5
	cfg.MaxBacklog = 10
	cfg.SendTimeoutSeconds = 2

	cache, err := pending.Open(filepath.Join(t.TempDir(), "pending_events.jsonl"), zap.NewNop())
	if err != nil {
		t.Fatalf("open cache: %v", err)
	}
	s := New(cfg, cache, zap.NewNop(), metrics.New(prometheus.NewRegistry()))

	enqueueEvents(s, 25)
	if err := s.RunCycle(context.Background()); err != nil {
		t.Fatalf("RunCycle failed: %v", err)
	}

	total := 0
	var firstTS int64
	for i, b := range recv.batches() {
		if i == 0 {
			firstTS = b.Events[0].TSUTC
		}
		total += len(b.Events)
	}
	if total != 10 {
		t.Errorf("expected 10 surviving events after eviction, got %d", total)
	}
	// The newest events survive; the first delivered event is number 15.
	base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC).UnixMilli()
	if firstTS != base+15 {
		t.Errorf("expected first surviving event at ts %d, got %d", base+15, firstTS)
	}
}

func TestRunStopsAndFlushesOnCancel(t *testing.T) {
	recv := &testReceiver{}
	srv := httptest.NewServer(recv.handler())
	defer srv.Close()

	cfg := config.Default()
	cfg.WebhookURL = srv.URL
	cfg.BatchSize = 10
	cfg.SendIntervalSeconds = 60 // never fires during the test
	cfg.SendTimeoutSeconds = 2

	cache, err := pending.Open(filepath.Join(t.TempDir(), "pending_events.jsonl"), zap.NewNop())
	if err != nil {
		t.Fatalf("open cache: %v", err)
	}
	s := New(cfg, cache, zap.NewNop(), metrics.New(prometheus.NewRegistry()))
	enqueueEvents(s, 7)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("sender did not stop")
	}

	// The shutdown flush delivered the backlog even though no tick fired.
	total := 0
	for _, b := range recv.batches() {
		total += len(b.Events)
	}
	if total != 7 {
		t.Errorf("expected 7 events delivered on shutdown, got %d", total)
	}
	if cache.Len() != 0 {
		t.Errorf("expected empty cache after clean shutdown, got %d", cache.Len())
	}
}
