// Package memstore is an in-memory store used by tests and by the
// discover command when no database is configured.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"jobmate/match-service/internal/model"
	"jobmate/match-service/internal/store"
)

// Store holds postings and search configs in memory. Its read semantics
// follow store.Postgres. The Err* fields inject failures; the Malformed*
// fields add that many skipped rows to each read.
type Store struct {
	mu       sync.Mutex
	internal []model.Posting
	external map[string]record // key: externalID + "\x00" + provider
	configs  []model.SearchConfig
	upserts  int

	ErrInternal error
	ErrExternal error
	ErrUpsert   error
	ErrConfigs  error

	MalformedInternal int
	MalformedExternal int
}

type record struct {
	posting     model.Posting
	fingerprint string
}

// New returns an empty Store.
func New() *Store {
	return &Store{external: make(map[string]record)}
}

// AddInternal appends employer postings.
func (s *Store) AddInternal(ps ...model.Posting) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range ps {
		p.Source = model.SourceInternal
		s.internal = append(s.internal, p)
	}
}

// AddExternal seeds cached external postings with their fingerprints.
func (s *Store) AddExternal(fingerprint string, ps ...model.Posting) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range ps {
		s.external[p.ExternalID+"\x00"+p.Provider] = record{posting: p, fingerprint: fingerprint}
	}
}

// AddConfigs appends search configs.
func (s *Store) AddConfigs(cs ...model.SearchConfig) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.configs = append(s.configs, cs...)
}

// ListInternal mirrors store.Postgres.ListInternal.
func (s *Store) ListInternal(_ context.Context, f store.Filter) ([]model.Posting, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ErrInternal != nil {
		return nil, 0, s.ErrInternal
	}

	now := f.Now
	if now.IsZero() {
		now = time.Now()
	}
	skills := f.NormalizedSkills()
	out := make([]model.Posting, 0, len(s.internal))
	for _, p := range s.internal {
		if p.ExpiresAt == nil || !p.ExpiresAt.After(now) {
			continue
		}
		if !store.SkillOverlap(p.Skills, skills) {
			continue
		}
		out = append(out, p)
	}
	return limit(newestFirst(out), f.Limit), s.MalformedInternal, nil
}

// ListExternal mirrors store.Postgres.ListExternal.
func (s *Store) ListExternal(_ context.Context, f store.Filter) ([]model.Posting, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ErrExternal != nil {
		return nil, 0, s.ErrExternal
	}

	skills := f.NormalizedSkills()
	out := make([]model.Posting, 0, len(s.external))
	for _, r := range s.external {
		p := r.posting
		if p.PostedDate.Before(f.PostedAfter) {
			continue
		}
		if !store.SkillOverlap(p.Skills, skills) {
			continue
		}
		p.Source = model.SourceCachedExternal
		out = append(out, p)
	}
	return limit(newestFirst(out), f.Limit), s.MalformedExternal, nil
}

// KnownFingerprints returns the subset of fps already stored.
func (s *Store) KnownFingerprints(_ context.Context, fps []string) (map[string]bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	want := make(map[string]bool, len(fps))
	for _, fp := range fps {
		want[fp] = true
	}
	known := make(map[string]bool)
	for _, r := range s.external {
		if want[r.fingerprint] {
			known[r.fingerprint] = true
		}
	}
	return known, nil
}

// UpsertExternal inserts or replaces the posting keyed by
// (ExternalID, Provider), keeping trust and liveness of an existing row.
func (s *Store) UpsertExternal(_ context.Context, p model.Posting, fingerprint string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ErrUpsert != nil {
		return s.ErrUpsert
	}

	key := p.ExternalID + "\x00" + p.Provider
	if old, ok := s.external[key]; ok {
		p.TrustScore = old.posting.TrustScore
		p.Liveness = old.posting.Liveness
	}
	s.external[key] = record{posting: p, fingerprint: fingerprint}
	s.upserts++
	return nil
}

// PurgeExternal deletes external postings published before cutoff.
func (s *Store) PurgeExternal(_ context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for k, r := range s.external {
		if r.posting.PostedDate.Before(cutoff) {
			delete(s.external, k)
			n++
		}
	}
	return n, nil
}

// LoadActiveConfigs returns every stored config.
func (s *Store) LoadActiveConfigs(context.Context) ([]model.SearchConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ErrConfigs != nil {
		return nil, s.ErrConfigs
	}
	return append([]model.SearchConfig(nil), s.configs...), nil
}

// LoadSearchConfig returns the config with id owned by userID.
func (s *Store) LoadSearchConfig(_ context.Context, userID, id string) (*model.SearchConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.configs {
		if c.ID == id && c.UserID == userID {
			c := c
			return &c, nil
		}
	}
	return nil, store.ErrNotFound
}

// ExternalCount returns the number of stored external rows.
func (s *Store) ExternalCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.external)
}

// Upserts returns the number of successful UpsertExternal calls.
func (s *Store) Upserts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.upserts
}

func newestFirst(ps []model.Posting) []model.Posting {
	sort.SliceStable(ps, func(i, j int) bool {
		if !ps[i].PostedDate.Equal(ps[j].PostedDate) {
			return ps[i].PostedDate.After(ps[j].PostedDate)
		}
		return ps[i].Key() < ps[j].Key()
	})
	return ps
}

func limit(ps []model.Posting, n int) []model.Posting {
	if n > 0 && len(ps) > n {
		return ps[:n]
	}
	return ps
}
