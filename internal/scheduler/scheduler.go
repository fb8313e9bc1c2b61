// Package scheduler wires up the cron job that keeps the cached external
// store useful: it purges postings past the retention window and re-runs
// every active search config against the live source.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"jobmate/match-service/internal/discovery"
	"jobmate/match-service/internal/model"
)

// Store is the persistence the scheduler needs.
type Store interface {
	LoadActiveConfigs(ctx context.Context) ([]model.SearchConfig, error)
	PurgeExternal(ctx context.Context, cutoff time.Time) (int64, error)
}

// Warmer runs discovery for a saved search. *discovery.Service implements it.
type Warmer interface {
	DiscoverConfig(ctx context.Context, cfg *model.SearchConfig, forceLive bool) (*discovery.Response, error)
}

// Config controls the cycle.
type Config struct {
	IntervalHours int
	RetentionDays int
}

// Scheduler wraps robfig/cron and manages the warm loop.
type Scheduler struct {
	cron   *cron.Cron
	store  Store
	warmer Warmer
	cfg    Config
	spec   string // cron spec, e.g. "@every 6h"
	log    *zap.Logger
	now    func() time.Time
}

// New creates a Scheduler that fires every cfg.IntervalHours hours.
func New(s Store, w Warmer, cfg Config, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	log := logger.Named("scheduler")
	cl := cronLogger{log.Sugar()}
	return &Scheduler{
		cron:   cron.New(cron.WithLogger(cl), cron.WithChain(cron.SkipIfStillRunning(cl))),
		store:  s,
		warmer: w,
		cfg:    cfg,
		spec:   fmt.Sprintf("@every %dh", cfg.IntervalHours),
		log:    log,
		now:    time.Now,
	}
}

// Start registers the job and starts the scheduler. Also runs one cycle
// immediately so the cache is populated without waiting for the first tick.
func (s *Scheduler) Start(ctx context.Context) error {
	_, err := s.cron.AddFunc(s.spec, func() {
		s.RunOnce(ctx)
	})
	if err != nil {
		return fmt.Errorf("cron.AddFunc: %w", err)
	}

	s.cron.Start()
	s.log.Info("cron started", zap.String("spec", s.spec))

	go s.RunOnce(ctx)

	return nil
}

// Stop stops the scheduler and waits for a running cycle to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.log.Info("cron stopped")
}

// Summary reports one cycle.
type Summary struct {
	Purged int64
	Warmed int
	Failed int
}

// RunOnce purges expired cached postings, then runs every active search
// config with a forced live fetch. Failures are logged and counted.
func (s *Scheduler) RunOnce(ctx context.Context) Summary {
	var sum Summary
	s.log.Info("cycle started")

	if s.cfg.RetentionDays > 0 {
		cutoff := s.now().AddDate(0, 0, -s.cfg.RetentionDays)
		n, err := s.store.PurgeExternal(ctx, cutoff)
		if err != nil {
			s.log.Warn("purge failed", zap.Error(err))
		} else {
			sum.Purged = n
		}
	}

	configs, err := s.store.LoadActiveConfigs(ctx)
	if err != nil {
		s.log.Error("load active configs", zap.Error(err))
		return sum
	}
	if len(configs) == 0 {
		s.log.Info("no active search configs, nothing to warm")
		return sum
	}

	for i := range configs {
		if ctx.Err() != nil {
			break
		}
		cfg := &configs[i]
		resp, err := s.warmer.DiscoverConfig(ctx, cfg, true)
		if err != nil {
			sum.Failed++
			s.log.Warn("warm failed", zap.String("configId", cfg.ID), zap.Error(err))
			continue
		}
		sum.Warmed++
		s.log.Debug("config warmed",
			zap.String("configId", cfg.ID),
			zap.Int("discovered", resp.Metadata.DiscoveredTotal),
			zap.Bool("partial", resp.Metadata.Partial))
	}

	s.log.Info("cycle complete",
		zap.Int64("purged", sum.Purged),
		zap.Int("warmed", sum.Warmed),
		zap.Int("failed", sum.Failed))
	return sum
}

// cronLogger adapts zap to cron.Logger.
type cronLogger struct{ s *zap.SugaredLogger }

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.s.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.s.Errorw(msg, append(keysAndValues, "error", err)...)
}
