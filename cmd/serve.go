package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"google.golang.org/grpc"

	"jobmate/match-service/internal/config"
	"jobmate/match-service/internal/db"
	"jobmate/match-service/internal/grpcserver"
	"jobmate/match-service/internal/httpapi"
	"jobmate/match-service/internal/metrics"
	"jobmate/match-service/internal/querycache"
	"jobmate/match-service/internal/scheduler"
	"jobmate/match-service/internal/store"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP and gRPC APIs and the cache warmer",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := opts.load()
			if err != nil {
				return err
			}
			defer log.Sync() //nolint:errcheck
			if err := cfg.RequireStores(); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg, log)
		},
	}
}

func serve(ctx context.Context, cfg *config.Config, log *zap.Logger) error {
	// ── PostgreSQL ───────────────────────────────────────────────────────────
	log.Info("connecting to PostgreSQL")
	pool, err := db.NewPostgresPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns)
	if err != nil {
		return fmt.Errorf("postgres: %w", err)
	}
	defer pool.Close()

	// ── Redis ────────────────────────────────────────────────────────────────
	log.Info("connecting to Redis")
	rdb, err := db.NewRedisClient(ctx, cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("redis: %w", err)
	}
	defer rdb.Close()

	// ── Metrics ──────────────────────────────────────────────────────────────
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New()
	m.MustRegister(reg)
	hm := metrics.NewHTTP()
	hm.MustRegister(reg)

	// ── Pipeline ─────────────────────────────────────────────────────────────
	st := store.NewPostgres(pool)
	p := buildPipeline(cfg, st, querycache.NewRedis(rdb, cfg.QueryCacheTTL), log, m)
	defer p.writer.Close()

	if cfg.Adzuna.AppID == "" || cfg.Adzuna.AppKey == "" {
		log.Warn("ADZUNA_APP_ID / ADZUNA_APP_KEY not set, live discovery disabled")
	}

	// ── HTTP server ──────────────────────────────────────────────────────────
	srv := &http.Server{
		Addr:        ":" + cfg.Port,
		Handler:     httpapi.NewHandler(p.svc, log, version).Router(hm, reg),
		ReadTimeout: 10 * time.Second,
		// A discovery request may wait for the full live timeout.
		WriteTimeout: cfg.Live.Timeout + 10*time.Second,
	}

	// ── gRPC server ──────────────────────────────────────────────────────────
	lis, err := net.Listen("tcp", ":"+cfg.GRPCPort)
	if err != nil {
		return fmt.Errorf("grpc listen: %w", err)
	}
	gs := grpc.NewServer(grpc.UnaryInterceptor(grpcserver.LoggingInterceptor(log)))
	health := grpcserver.Register(gs, grpcserver.NewServer(p.svc, log))

	errc := make(chan error, 2)
	go func() {
		log.Info("HTTP listening", zap.String("version", version), zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- fmt.Errorf("http server: %w", err)
		}
	}()
	go func() {
		log.Info("gRPC listening", zap.String("addr", lis.Addr().String()))
		if err := gs.Serve(lis); err != nil {
			errc <- fmt.Errorf("grpc server: %w", err)
		}
	}()

	// ── Scheduler ────────────────────────────────────────────────────────────
	sched := scheduler.New(st, p.svc, scheduler.Config{
		IntervalHours: cfg.WarmIntervalHours,
		RetentionDays: cfg.CacheRetentionDays,
	}, log)
	if err := sched.Start(ctx); err != nil {
		return err
	}

	// ── Graceful shutdown ────────────────────────────────────────────────────
	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-errc:
	}

	log.Info("shutting down")
	health.Shutdown()
	sched.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("HTTP shutdown", zap.Error(err))
	}

	done := make(chan struct{})
	go func() {
		gs.GracefulStop()
		close(done)
	}()
	select {
	case <-done:
	case <-shutdownCtx.Done():
		gs.Stop()
	}

	log.Info("stopped")
	return runErr
}
