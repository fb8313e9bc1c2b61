package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"jobmate/match-service/internal/aggregator"
	"jobmate/match-service/internal/cachewriter"
	"jobmate/match-service/internal/config"
	"jobmate/match-service/internal/discovery"
	"jobmate/match-service/internal/freshness"
	"jobmate/match-service/internal/logger"
	"jobmate/match-service/internal/metrics"
	"jobmate/match-service/internal/querycache"
	"jobmate/match-service/internal/ranker"
	"jobmate/match-service/internal/scoring"
	"jobmate/match-service/internal/source"
	"jobmate/match-service/internal/source/adzuna"
)

type rootOptions struct {
	configFile string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:           "match-service",
		Short:         "Rank job postings for a candidate across internal, cached and live sources",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&opts.configFile, "config", "", "optional YAML config file (environment variables take precedence)")

	cmd.AddCommand(newServeCmd(opts), newDiscoverCmd(opts))
	return cmd
}

// load reads the configuration and builds the logger.
func (o *rootOptions) load() (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load(o.configFile)
	if err != nil {
		return nil, nil, err
	}
	log, err := logger.New(cfg.LogJSON, cfg.LogLevel)
	if err != nil {
		return nil, nil, err
	}
	return cfg, log, nil
}

// matchStore is the persistence used by the pipeline. store.Postgres and
// memstore.Store both satisfy it.
type matchStore interface {
	source.InternalStore
	source.ExternalStore
	cachewriter.Store
	discovery.ConfigStore
}

// pipeline is the assembled discovery service and its background writer.
type pipeline struct {
	svc    *discovery.Service
	writer *cachewriter.Writer
}

// buildPipeline wires sources, ranking and cache-on-read around st. The
// writer is started; callers Close it on shutdown.
func buildPipeline(cfg *config.Config, st matchStore, qc querycache.Cache, log *zap.Logger, m *metrics.Metrics) *pipeline {
	live := adzuna.New(adzuna.Config{
		AppID:      cfg.Adzuna.AppID,
		AppKey:     cfg.Adzuna.AppKey,
		Country:    cfg.Adzuna.Country,
		BaseURL:    cfg.Adzuna.BaseURL,
		PageSize:   cfg.Adzuna.PageSize,
		MaxPages:   cfg.Adzuna.MaxPages,
		RatePerSec: cfg.Adzuna.RatePerSec,
	}, log.Named("adzuna"))

	agg := aggregator.New([]source.Fetcher{
		source.NewInternal(st, cfg.StoreLimit),
		source.NewCachedExternal(st, cfg.FreshnessWindowDays, cfg.StoreLimit),
		source.NewLive(live, source.LiveConfig{
			Timeout:      cfg.Live.Timeout,
			WindowDays:   cfg.FreshnessWindowDays,
			DefaultTrust: cfg.Live.DefaultTrust,
		}, log.Named("live")),
	}, log.Named("aggregator"), m)

	writer := cachewriter.New(st, qc, cachewriter.Config{
		Workers:   cfg.CacheWriterWorkers,
		QueueSize: cfg.CacheWriterQueue,
	}, log.Named("cachewriter"), m)
	writer.Start()

	memo := scoring.NewMemo(cfg.ScoreMemoTTL, cfg.ScoreMemoMax)
	svc := discovery.New(discovery.Deps{
		Aggregator: agg,
		Ranker:     ranker.New(cfg.Weights, freshness.New(cfg.FreshnessWindowDays), memo),
		Memo:       memo,
		QueryCache: qc,
		Writer:     writer,
		Configs:    st,
		Logger:     log.Named("discovery"),
		Metrics:    m,
	}, discovery.Config{
		MinScore:    cfg.MinMatchScore,
		MaxExternal: cfg.MaxExternalJobs,
	})

	return &pipeline{svc: svc, writer: writer}
}
