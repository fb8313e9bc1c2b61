// Package discovery is the entry point of the match service: it validates a
// request, gathers postings from every source, ranks them and assembles the
// sectioned response. Live results are handed to the cache writer so the
// next identical query is served from the cached store.
package discovery

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"jobmate/match-service/internal/aggregator"
	"jobmate/match-service/internal/cachewriter"
	"jobmate/match-service/internal/metrics"
	"jobmate/match-service/internal/model"
	"jobmate/match-service/internal/querycache"
	"jobmate/match-service/internal/ranker"
	"jobmate/match-service/internal/scoring"
)

// ConfigStore loads saved searches.
type ConfigStore interface {
	LoadSearchConfig(ctx context.Context, userID, id string) (*model.SearchConfig, error)
}

// CacheWriter accepts cache-on-read jobs. *cachewriter.Writer implements it.
type CacheWriter interface {
	Enqueue(j cachewriter.Job) bool
}

// Deps are the collaborators of a Service. Only Aggregator and Ranker are
// required.
type Deps struct {
	Aggregator *aggregator.Aggregator
	Ranker     *ranker.Ranker
	Memo       *scoring.Memo
	QueryCache querycache.Cache
	Writer     CacheWriter
	Configs    ConfigStore
	Logger     *zap.Logger
	Metrics    *metrics.Metrics
}

// Config holds request defaults.
type Config struct {
	MinScore    float64 // 0–1
	MaxExternal int
}

// Service orchestrates one discovery request end to end.
type Service struct {
	deps Deps
	cfg  Config
	now  func() time.Time
}

// New returns a Service.
func New(deps Deps, cfg Config) *Service {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if cfg.MaxExternal <= 0 {
		cfg.MaxExternal = ranker.DefaultMaxExternal
	}
	return &Service{deps: deps, cfg: cfg, now: time.Now}
}

// WithClock overrides the request clock. Intended for tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

type options struct {
	forceLive   bool
	minScore    float64
	maxExternal int
}

// Discover runs a validated discovery request.
//
// Returns a *ValidationError for bad input and an error wrapping
// ErrSourceFatal when the internal store is unavailable. Any other source
// failure yields a normal response with Metadata.Partial set.
func (s *Service) Discover(ctx context.Context, req Request) (*Response, error) {
	if err := req.Validate(); err != nil {
		s.deps.Metrics.ObserveDiscovery("invalid", 0)
		return nil, err
	}

	opts := options{forceLive: req.ForceLive, minScore: s.cfg.MinScore, maxExternal: s.cfg.MaxExternal}
	if req.MinMatchScore != nil {
		opts.minScore = *req.MinMatchScore / 100
	}
	if req.MaxExternalJobs > 0 {
		opts.maxExternal = req.MaxExternalJobs
	}

	q := req.Query()
	return s.run(ctx, &q, opts)
}

// DiscoverSearchConfig runs discovery for a saved search owned by userID.
func (s *Service) DiscoverSearchConfig(ctx context.Context, userID, configID string, forceLive bool) (*Response, error) {
	if s.deps.Configs == nil {
		return nil, ErrNotFound
	}
	cfg, err := s.deps.Configs.LoadSearchConfig(ctx, userID, configID)
	if err != nil {
		return nil, err
	}
	return s.DiscoverConfig(ctx, cfg, forceLive)
}

// DiscoverConfig runs discovery for an already loaded search config.
func (s *Service) DiscoverConfig(ctx context.Context, cfg *model.SearchConfig, forceLive bool) (*Response, error) {
	q := cfg.Query()
	if len(q.Skills) == 0 && strings.TrimSpace(q.Title) == "" {
		s.deps.Metrics.ObserveDiscovery("invalid", 0)
		return nil, &ValidationError{Msg: "search config has neither job titles nor keywords"}
	}
	return s.run(ctx, &q, options{forceLive: forceLive, minScore: s.cfg.MinScore, maxExternal: s.cfg.MaxExternal})
}

func (s *Service) run(ctx context.Context, q *model.CandidateQuery, opts options) (*Response, error) {
	start := s.now()
	reqID := uuid.NewString()
	log := s.deps.Logger.With(zap.String("requestId", reqID))
	sig := Signature(q)

	warm := false
	if !opts.forceLive && s.deps.QueryCache != nil {
		var err error
		warm, err = s.deps.QueryCache.IsWarm(ctx, sig)
		switch {
		case err != nil:
			log.Warn("query cache lookup failed", zap.Error(err))
			s.deps.Metrics.QueryCacheLookup("error")
		case warm:
			s.deps.Metrics.QueryCacheLookup("hit")
		default:
			s.deps.Metrics.QueryCacheLookup("miss")
		}
	}

	agg, err := s.deps.Aggregator.Aggregate(ctx, q, start, aggregator.Options{SkipLive: warm})
	if err != nil {
		s.deps.Metrics.ObserveDiscovery("failed", s.now().Sub(start))
		if errors.Is(err, ErrSourceFatal) {
			log.Error("discovery failed", zap.Error(err))
		}
		return nil, err
	}

	ranked := s.deps.Ranker.Rank(q, sig, agg.Postings, start, opts.minScore)
	sections := ranker.Section(ranked.Matches, opts.maxExternal)

	s.enqueueLive(log, sig, agg)

	resp := &Response{
		Direct:     toMatches(sections.Direct),
		Discovered: toMatches(sections.Discovered),
		Metadata: Metadata{
			RequestID:         reqID,
			DirectCount:       len(sections.Direct),
			DiscoveredCount:   len(sections.Discovered),
			DiscoveredTotal:   sections.DiscoveredTotal,
			SourceCounts:      make(map[string]int, len(agg.SourceCounts)),
			Partial:           agg.Partial(),
			LiveSkipped:       agg.LiveSkipped,
			LiveIncomplete:    agg.LiveIncomplete,
			InvalidDropped:    agg.InvalidDropped,
			TransformErrors:   agg.TransformErrors,
			DuplicatesRemoved: agg.DuplicatesRemoved,
			ExcludedByTerms:   agg.ExcludedByTerms,
			ExpiredExcluded:   ranked.ExpiredExcluded,
			BelowThreshold:    ranked.BelowThreshold,
			QuerySignature:    sig,
		},
	}
	for src, n := range agg.SourceCounts {
		resp.Metadata.SourceCounts[string(src)] = n
	}
	for _, src := range agg.FailedSources {
		resp.Metadata.FailedSources = append(resp.Metadata.FailedSources, string(src))
	}
	switch {
	case resp.Metadata.Partial:
		resp.Metadata.Message = msgPartial
	case resp.Metadata.DirectCount+resp.Metadata.DiscoveredCount == 0:
		resp.Metadata.Message = msgEmpty
	case agg.LiveSkipped:
		resp.Metadata.Message = msgLiveCached
	}

	s.deps.Metrics.Dropped("expired", ranked.ExpiredExcluded)
	s.deps.Metrics.Dropped("below_threshold", ranked.BelowThreshold)

	elapsed := s.now().Sub(start)
	resp.Metadata.ExecutionTimeMs = elapsed.Milliseconds()
	outcome := "complete"
	if resp.Metadata.Partial {
		outcome = "partial"
	}
	s.deps.Metrics.ObserveDiscovery(outcome, elapsed)

	log.Info("discovery complete",
		zap.String("signature", sig),
		zap.Int("direct", resp.Metadata.DirectCount),
		zap.Int("discovered", resp.Metadata.DiscoveredCount),
		zap.Bool("partial", resp.Metadata.Partial),
		zap.Bool("liveSkipped", agg.LiveSkipped),
		zap.Duration("elapsed", elapsed))

	return resp, nil
}

// enqueueLive hands live results to the cache writer when the live source
// actually ran. Only complete fetches mark the query warm.
func (s *Service) enqueueLive(log *zap.Logger, sig string, agg *aggregator.Result) {
	if s.deps.Writer == nil {
		return
	}
	if _, ran := agg.SourceCounts[model.SourceLiveDiscovery]; !ran {
		return
	}
	ok := s.deps.Writer.Enqueue(cachewriter.Job{
		Signature: sig,
		Postings:  agg.LivePostings,
		MarkWarm:  !agg.LiveIncomplete,
	})
	if !ok {
		log.Debug("cache-on-read job not queued", zap.Int("postings", len(agg.LivePostings)))
	}
}

// InvalidateCandidate drops memoized scores of one candidate.
func (s *Service) InvalidateCandidate(candidateID string) int {
	return s.deps.Memo.Invalidate(candidateID)
}

// InvalidateQuery forgets the warm mark of the query built from req, so the
// next identical request queries the live source again.
func (s *Service) InvalidateQuery(ctx context.Context, req Request) (string, error) {
	q := req.Query()
	sig := Signature(&q)
	if s.deps.QueryCache == nil {
		return sig, nil
	}
	return sig, s.deps.QueryCache.Invalidate(ctx, sig)
}

// FlushQueries forgets every warm mark.
func (s *Service) FlushQueries(ctx context.Context) error {
	if s.deps.QueryCache == nil {
		return nil
	}
	return s.deps.QueryCache.Flush(ctx)
}
