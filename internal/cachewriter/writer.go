// Package cachewriter persists live-discovered postings in the background so
// later requests for the same query can be served from the cached store.
package cachewriter

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"jobmate/match-service/internal/fingerprint"
	"jobmate/match-service/internal/metrics"
	"jobmate/match-service/internal/model"
	"jobmate/match-service/internal/querycache"
)

// Store is the persistence the writer needs.
type Store interface {
	KnownFingerprints(ctx context.Context, fps []string) (map[string]bool, error)
	UpsertExternal(ctx context.Context, p model.Posting, fingerprint string) error
}

// Job is one batch of live postings found for a query.
type Job struct {
	Signature string
	Postings  []model.Posting
	// MarkWarm records Signature in the query cache once every posting is
	// written. Leave it false for incomplete live fetches.
	MarkWarm bool
}

// Config sizes the worker pool.
type Config struct {
	Workers      int
	QueueSize    int
	WriteTimeout time.Duration
}

const (
	defaultWorkers      = 2
	defaultQueueSize    = 64
	defaultWriteTimeout = 30 * time.Second
)

// Writer is a bounded queue drained by a fixed pool of workers.
type Writer struct {
	store   Store
	cache   querycache.Cache
	cfg     Config
	logger  *zap.Logger
	metrics *metrics.Metrics

	jobs chan Job
	wg   sync.WaitGroup

	mu      sync.RWMutex
	closed  bool
	started bool
}

// New returns a Writer. cache may be nil. Call Start to launch the workers.
func New(s Store, cache querycache.Cache, cfg Config, logger *zap.Logger, m *metrics.Metrics) *Writer {
	if cfg.Workers <= 0 {
		cfg.Workers = defaultWorkers
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = defaultQueueSize
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = defaultWriteTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Writer{
		store:   s,
		cache:   cache,
		cfg:     cfg,
		logger:  logger,
		metrics: m,
		jobs:    make(chan Job, cfg.QueueSize),
	}
}

// Start launches the workers. It is a no-op after the first call.
func (w *Writer) Start() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.started || w.closed {
		return
	}
	w.started = true
	for i := 0; i < w.cfg.Workers; i++ {
		w.wg.Add(1)
		go w.loop(i)
	}
	w.logger.Info("cache writer started", zap.Int("workers", w.cfg.Workers), zap.Int("queue", w.cfg.QueueSize))
}

// Enqueue hands j to the pool without blocking. It returns false, and counts
// the drop, when the queue is full or the writer is closed.
func (w *Writer) Enqueue(j Job) bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.closed {
		return false
	}
	select {
	case w.jobs <- j:
		return true
	default:
		w.metrics.CacheJobDropped()
		w.logger.Warn("cache writer queue full, dropping job",
			zap.String("signature", j.Signature), zap.Int("postings", len(j.Postings)))
		return false
	}
}

// Close stops accepting jobs, drains the queue and waits for the workers.
func (w *Writer) Close() {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	w.closed = true
	close(w.jobs)
	started := w.started
	w.mu.Unlock()

	if !started {
		return
	}
	w.wg.Wait()
	w.logger.Info("cache writer stopped")
}

func (w *Writer) loop(id int) {
	defer w.wg.Done()
	for j := range w.jobs {
		ctx, cancel := context.WithTimeout(context.Background(), w.cfg.WriteTimeout)
		written, known, failed := w.Run(ctx, j)
		cancel()
		w.logger.Debug("cache job done",
			zap.Int("worker", id), zap.String("signature", j.Signature),
			zap.Int("written", written), zap.Int("known", known), zap.Int("failed", failed))
	}
}

// Run persists one job synchronously: postings whose fingerprint is already
// cached are skipped, the rest are upserted on (external_id, source).
func (w *Writer) Run(ctx context.Context, j Job) (written, known, failed int) {
	fps := make([]string, len(j.Postings))
	for i := range j.Postings {
		fps[i] = fingerprint.Of(&j.Postings[i])
	}

	existing, err := w.store.KnownFingerprints(ctx, fps)
	if err != nil {
		w.logger.Warn("cache writer fingerprint lookup failed", zap.Error(err))
		w.metrics.CacheWrite("failed", len(j.Postings))
		return 0, 0, len(j.Postings)
	}

	done := make(map[string]bool, len(fps))
	for i, p := range j.Postings {
		fp := fps[i]
		if existing[fp] || done[fp] {
			known++
			continue
		}
		if err := w.store.UpsertExternal(ctx, p, fp); err != nil {
			w.logger.Warn("cache writer upsert failed",
				zap.String("externalId", p.ExternalID), zap.String("provider", p.Provider), zap.Error(err))
			failed++
			continue
		}
		done[fp] = true
		written++
	}

	w.metrics.CacheWrite("written", written)
	w.metrics.CacheWrite("known", known)
	w.metrics.CacheWrite("failed", failed)

	if j.MarkWarm && failed == 0 && w.cache != nil && j.Signature != "" {
		if err := w.cache.MarkWarm(ctx, j.Signature); err != nil {
			w.logger.Warn("mark query warm failed", zap.String("signature", j.Signature), zap.Error(err))
		}
	}
	return written, known, failed
}
