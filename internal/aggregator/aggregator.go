// Package aggregator fans a query out to every posting source, merges the
// batches in a fixed order, validates and deduplicates the result.
package aggregator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"jobmate/match-service/internal/fingerprint"
	"jobmate/match-service/internal/metrics"
	"jobmate/match-service/internal/model"
	"jobmate/match-service/internal/source"
)

// ErrSourceFatal is returned when the internal source fails. Other sources
// degrade the result instead.
var ErrSourceFatal = errors.New("required source unavailable")

// Options tweak one aggregation.
type Options struct {
	// SkipLive leaves the live source out, for queries whose live results
	// are already cached.
	SkipLive bool
}

// Result is the merged, validated and deduplicated posting set.
type Result struct {
	Postings []model.Posting
	// LivePostings are the valid live postings, before exclusion and
	// dedup, eligible for cache-on-read.
	LivePostings []model.Posting

	SourceCounts      map[model.Source]int
	FailedSources     []model.Source
	LiveIncomplete    bool
	LiveSkipped       bool
	InvalidDropped    int
	TransformErrors   int
	DuplicatesRemoved int
	ExcludedByTerms   int
}

// Partial reports whether the result lacks data from at least one source.
func (r *Result) Partial() bool {
	return len(r.FailedSources) > 0 || r.LiveIncomplete
}

// Aggregator owns the set of fetchers.
type Aggregator struct {
	fetchers map[model.Source]source.Fetcher
	logger   *zap.Logger
	metrics  *metrics.Metrics
}

// New returns an Aggregator over fetchers. At most one fetcher per source
// is kept; the last one wins.
func New(fetchers []source.Fetcher, logger *zap.Logger, m *metrics.Metrics) *Aggregator {
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &Aggregator{
		fetchers: make(map[model.Source]source.Fetcher, len(fetchers)),
		logger:   logger,
		metrics:  m,
	}
	for _, f := range fetchers {
		a.fetchers[f.Source()] = f
	}
	return a
}

type outcome struct {
	batch source.Batch
	err   error
}

// Aggregate queries every source concurrently. A failing source does not
// cancel the others. The join always happens in model.Sources order so the
// first-seen dedup rule is independent of completion order.
func (a *Aggregator) Aggregate(ctx context.Context, q *model.CandidateQuery, now time.Time, opts Options) (*Result, error) {
	outcomes := make(map[model.Source]*outcome, len(model.Sources))
	var g errgroup.Group

	for _, src := range model.Sources {
		f, ok := a.fetchers[src]
		if !ok {
			continue
		}
		if src == model.SourceLiveDiscovery && opts.SkipLive {
			a.metrics.ObserveFetch(string(src), "skipped", 0)
			continue
		}
		o := &outcome{}
		outcomes[src] = o
		g.Go(func() error {
			start := time.Now()
			o.batch, o.err = f.Fetch(ctx, q, now)
			a.metrics.ObserveFetch(string(src), fetchStatus(o), time.Since(start))
			return nil
		})
	}
	_ = g.Wait()

	res := &Result{
		SourceCounts: make(map[model.Source]int, len(model.Sources)),
		LiveSkipped:  opts.SkipLive && a.fetchers[model.SourceLiveDiscovery] != nil,
	}

	var merged []model.Posting
	for _, src := range model.Sources {
		o, ok := outcomes[src]
		if !ok {
			continue
		}
		if o.err != nil {
			if src == model.SourceInternal {
				return nil, fmt.Errorf("%w: %s: %w", ErrSourceFatal, src, o.err)
			}
			a.logger.Warn("source unavailable", zap.String("source", string(src)), zap.Error(o.err))
			res.FailedSources = append(res.FailedSources, src)
			continue
		}

		res.SourceCounts[src] = len(o.batch.Postings)
		res.TransformErrors += o.batch.TransformErrors
		if src == model.SourceLiveDiscovery && o.batch.Incomplete {
			res.LiveIncomplete = true
		}

		for _, p := range o.batch.Postings {
			if p.Source != src || !p.Valid() {
				res.InvalidDropped++
				continue
			}
			if src == model.SourceLiveDiscovery {
				res.LivePostings = append(res.LivePostings, p)
			}
			if ContainsRedFlag(&p, q.ExcludeTerms) {
				res.ExcludedByTerms++
				continue
			}
			merged = append(merged, p)
		}
	}

	res.Postings, res.DuplicatesRemoved = Dedup(merged)

	a.metrics.Dropped("invalid", res.InvalidDropped)
	a.metrics.Dropped("transform", res.TransformErrors)
	a.metrics.Dropped("red_flag", res.ExcludedByTerms)
	a.metrics.Dropped("duplicate", res.DuplicatesRemoved)

	a.logger.Debug("aggregated",
		zap.Any("sourceCounts", res.SourceCounts),
		zap.Int("kept", len(res.Postings)),
		zap.Int("duplicates", res.DuplicatesRemoved),
		zap.Int("invalid", res.InvalidDropped),
		zap.Bool("partial", res.Partial()))

	return res, nil
}

func fetchStatus(o *outcome) string {
	switch {
	case o.err != nil:
		return "failed"
	case o.batch.Incomplete:
		return "incomplete"
	default:
		return "ok"
	}
}

// Dedup collapses postings sharing a fingerprint. Internal postings are
// never merged away, and an external posting matching an internal one is
// dropped. Among external duplicates the higher trust score wins and ties
// keep the first seen; the survivor takes the first one's slot. It returns
// the kept postings and the number removed.
func Dedup(postings []model.Posting) ([]model.Posting, int) {
	internal := make(map[string]struct{})
	for i := range postings {
		if postings[i].Source == model.SourceInternal {
			internal[fingerprint.Of(&postings[i])] = struct{}{}
		}
	}

	kept := make([]model.Posting, 0, len(postings))
	seen := make(map[string]int, len(postings))
	removed := 0

	for _, p := range postings {
		if p.Source == model.SourceInternal {
			kept = append(kept, p)
			continue
		}
		fp := fingerprint.Of(&p)
		if _, ok := internal[fp]; ok {
			removed++
			continue
		}
		if i, ok := seen[fp]; ok {
			removed++
			if p.TrustScore > kept[i].TrustScore {
				kept[i] = p
			}
			continue
		}
		seen[fp] = len(kept)
		kept = append(kept, p)
	}
	return kept, removed
}
