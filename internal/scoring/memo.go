package scoring

import (
	"math"
	"strconv"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"

	"jobmate/match-service/internal/model"
)

// MemoKey identifies one memoized score. DaysOld is part of the key so a
// posting crossing a day boundary is rescored; TrustScore, Liveness and
// Inputs make a re-rated or rewritten posting miss.
type MemoKey struct {
	CandidateID string
	Signature   string
	PostingKey  string
	DaysOld     int
	TrustScore  int
	Liveness    model.Liveness
	Inputs      uint64
}

// NewMemoKey builds the key scoring p for one candidate query.
func NewMemoKey(candidateID, signature string, p *model.Posting, daysOld int) MemoKey {
	return MemoKey{
		CandidateID: candidateID,
		Signature:   signature,
		PostingKey:  string(p.Source) + "/" + p.Key(),
		DaysOld:     daysOld,
		TrustScore:  p.TrustScore,
		Liveness:    p.Liveness,
		Inputs:      inputsHash(p),
	}
}

// inputsHash digests the remaining posting fields Score reads.
func inputsHash(p *model.Posting) uint64 {
	d := xxhash.New()
	for _, s := range p.Skills {
		_, _ = d.WriteString(s)
		_, _ = d.Write([]byte{0})
	}
	_, _ = d.Write([]byte{1})
	_, _ = d.WriteString(p.Location)
	_, _ = d.Write([]byte{0})
	_, _ = d.WriteString(string(p.WorkArrangement))
	_, _ = d.Write([]byte{0})
	_, _ = d.WriteString(strconv.FormatUint(math.Float64bits(p.SalaryMin), 16))
	_, _ = d.Write([]byte{0})
	_, _ = d.WriteString(strconv.FormatUint(math.Float64bits(p.SalaryMax), 16))
	return d.Sum64()
}

type memoEntry struct {
	match   model.ScoredMatch
	expires time.Time
}

// Memo is an explicitly scoped, TTL-bound score cache. The zero value is not
// usable; build one with NewMemo and hand it to whoever needs it.
type Memo struct {
	mu         sync.Mutex
	ttl        time.Duration
	maxEntries int
	now        func() time.Time
	entries    map[MemoKey]memoEntry
}

// NewMemo returns an empty Memo. maxEntries <= 0 means 10 000.
func NewMemo(ttl time.Duration, maxEntries int) *Memo {
	if maxEntries <= 0 {
		maxEntries = 10_000
	}
	return &Memo{
		ttl:        ttl,
		maxEntries: maxEntries,
		now:        time.Now,
		entries:    make(map[MemoKey]memoEntry),
	}
}

// WithClock overrides the clock used for expiry. Intended for tests.
func (m *Memo) WithClock(now func() time.Time) *Memo {
	m.now = now
	return m
}

// Get returns a live entry for key.
func (m *Memo) Get(key MemoKey) (model.ScoredMatch, bool) {
	if m == nil || m.ttl <= 0 {
		return model.ScoredMatch{}, false
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[key]
	if !ok {
		return model.ScoredMatch{}, false
	}
	if !m.now().Before(e.expires) {
		delete(m.entries, key)
		return model.ScoredMatch{}, false
	}
	return e.match, true
}

// Put stores match under key until the TTL elapses.
func (m *Memo) Put(key MemoKey, match model.ScoredMatch) {
	if m == nil || m.ttl <= 0 {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if len(m.entries) >= m.maxEntries {
		m.purgeLocked(now)
		if len(m.entries) >= m.maxEntries {
			m.entries = make(map[MemoKey]memoEntry)
		}
	}
	m.entries[key] = memoEntry{match: match, expires: now.Add(m.ttl)}
}

// Invalidate drops every entry of a candidate and returns how many were removed.
func (m *Memo) Invalidate(candidateID string) int {
	if m == nil {
		return 0
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for k := range m.entries {
		if k.CandidateID == candidateID {
			delete(m.entries, k)
			n++
		}
	}
	return n
}

// Len returns the number of stored entries, expired ones included.
func (m *Memo) Len() int {
	if m == nil {
		return 0
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

func (m *Memo) purgeLocked(now time.Time) {
	for k, e := range m.entries {
		if !now.Before(e.expires) {
			delete(m.entries, k)
		}
	}
}
