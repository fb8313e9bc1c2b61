// Package source implements the three posting sources queried for every
// discovery request: the local job store, the cached external store and the
// live discovery provider.
package source

import (
	"context"
	"fmt"
	"time"

	"jobmate/match-service/internal/model"
	"jobmate/match-service/internal/store"
)

// Batch is what a fetcher returns for one query.
type Batch struct {
	Postings []model.Posting
	// Incomplete is set when a fetch stopped early (timeout, provider
	// error, missing credentials) and Postings holds only what arrived.
	Incomplete bool
	// TransformErrors counts records dropped during normalization: provider
	// records that failed to convert, or malformed store rows.
	TransformErrors int
}

// Fetcher retrieves candidate postings from one origin.
type Fetcher interface {
	Source() model.Source
	Fetch(ctx context.Context, q *model.CandidateQuery, now time.Time) (Batch, error)
}

// InternalStore reads employer postings. The int is the number of
// malformed rows skipped.
type InternalStore interface {
	ListInternal(ctx context.Context, f store.Filter) ([]model.Posting, int, error)
}

// ExternalStore reads cached external postings.
type ExternalStore interface {
	ListExternal(ctx context.Context, f store.Filter) ([]model.Posting, int, error)
}

const day = 24 * time.Hour

// ─── Internal ────────────────────────────────────────────────────────────────

// Internal reads active, unexpired postings from the local job store.
type Internal struct {
	store InternalStore
	limit int
}

// NewInternal returns an Internal source reading at most limit rows.
func NewInternal(s InternalStore, limit int) *Internal {
	return &Internal{store: s, limit: limit}
}

func (s *Internal) Source() model.Source { return model.SourceInternal }

// Fetch never returns a partial batch: either the read succeeds or the
// error is returned as is. Malformed rows are skipped and counted.
func (s *Internal) Fetch(ctx context.Context, q *model.CandidateQuery, now time.Time) (Batch, error) {
	ps, skipped, err := s.store.ListInternal(ctx, store.Filter{Skills: q.Skills, Now: now, Limit: s.limit})
	if err != nil {
		return Batch{}, fmt.Errorf("internal store: %w", err)
	}
	for i := range ps {
		ps[i].Source = model.SourceInternal
	}
	return Batch{Postings: ps, TransformErrors: skipped}, nil
}

// ─── Cached external ─────────────────────────────────────────────────────────

// CachedExternal reads previously scraped or discovered postings still
// inside the freshness window.
type CachedExternal struct {
	store      ExternalStore
	windowDays int
	limit      int
}

// NewCachedExternal returns a CachedExternal source.
func NewCachedExternal(s ExternalStore, windowDays, limit int) *CachedExternal {
	return &CachedExternal{store: s, windowDays: windowDays, limit: limit}
}

func (s *CachedExternal) Source() model.Source { return model.SourceCachedExternal }

// Fetch reads postings younger than windowDays+1 days. The day boundary
// itself is enforced by the freshness classifier.
func (s *CachedExternal) Fetch(ctx context.Context, q *model.CandidateQuery, now time.Time) (Batch, error) {
	after := now.Add(-time.Duration(s.windowDays+1) * day)
	ps, skipped, err := s.store.ListExternal(ctx, store.Filter{Skills: q.Skills, PostedAfter: after, Now: now, Limit: s.limit})
	if err != nil {
		return Batch{}, fmt.Errorf("external store: %w", err)
	}
	for i := range ps {
		ps[i].Source = model.SourceCachedExternal
	}
	return Batch{Postings: ps, TransformErrors: skipped}, nil
}
