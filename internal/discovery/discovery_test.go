package discovery

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jobmate/match-service/internal/aggregator"
	"jobmate/match-service/internal/cachewriter"
	"jobmate/match-service/internal/freshness"
	"jobmate/match-service/internal/model"
	"jobmate/match-service/internal/querycache"
	"jobmate/match-service/internal/ranker"
	"jobmate/match-service/internal/scoring"
	"jobmate/match-service/internal/source"
	"jobmate/match-service/internal/source/adzuna"
	"jobmate/match-service/internal/store/memstore"
)

var now = time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)

type fakeProvider struct {
	mu    sync.Mutex
	jobs  []adzuna.Job
	err   error
	calls int
}

func (f *fakeProvider) Configured() bool { return true }

func (f *fakeProvider) Search(context.Context, adzuna.Params) (adzuna.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return adzuna.Result{Jobs: f.jobs, Pages: 1}, f.err
}

type recordingWriter struct {
	mu   sync.Mutex
	jobs []cachewriter.Job
}

func (w *recordingWriter) Enqueue(j cachewriter.Job) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.jobs = append(w.jobs, j)
	return true
}

type harness struct {
	svc    *Service
	store  *memstore.Store
	live   *fakeProvider
	cache  *querycache.Memory
	writer *recordingWriter
	memo   *scoring.Memo
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		store:  memstore.New(),
		live:   &fakeProvider{},
		cache:  querycache.NewMemory(time.Hour).WithClock(func() time.Time { return now }),
		writer: &recordingWriter{},
		memo:   scoring.NewMemo(time.Minute, 0).WithClock(func() time.Time { return now }),
	}
	agg := aggregator.New([]source.Fetcher{
		source.NewInternal(h.store, 500),
		source.NewCachedExternal(h.store, 15, 500),
		source.NewLive(h.live, source.LiveConfig{Timeout: time.Second, WindowDays: 15, DefaultTrust: 80}, nil),
	}, nil, nil)

	h.svc = New(Deps{
		Aggregator: agg,
		Ranker:     ranker.New(scoring.DefaultWeights(), freshness.New(15), h.memo),
		Memo:       h.memo,
		QueryCache: h.cache,
		Writer:     h.writer,
		Configs:    h.store,
	}, Config{MinScore: ranker.DefaultMinScore, MaxExternal: 20}).WithClock(func() time.Time { return now })
	return h
}

func internalPosting(id string, skills ...string) model.Posting {
	exp := now.Add(7 * 24 * time.Hour)
	return model.Posting{ID: id, Title: "Engineer " + id, Company: "JobMate", Skills: skills,
		PostedDate: now.Add(-time.Hour), ExpiresAt: &exp, TrustScore: 100, Liveness: model.LivenessActive}
}

func cachedPosting(id, company, title string, daysOld int, skills ...string) model.Posting {
	return model.Posting{ExternalID: id, Provider: "adzuna", Company: company, Title: title, Skills: skills,
		PostedDate: now.AddDate(0, 0, -daysOld), TrustScore: 70, Liveness: model.LivenessActive}
}

func liveJob(id, company, title, desc string) adzuna.Job {
	return adzuna.Job{ID: id, Title: title, Description: desc, Company: adzuna.Company{DisplayName: company},
		Created: now.Add(-2 * time.Hour).Format(time.RFC3339)}
}

func TestDiscover_JSReactNodeScenario(t *testing.T) {
	h := newHarness(t)
	h.store.AddExternal("", cachedPosting("c1", "Acme", "Fullstack Developer", 0,
		"JavaScript", "React", "Node.js", "Kubernetes"))

	resp, err := h.svc.Discover(context.Background(), Request{Skills: []string{"javascript", "react", "node"}})
	require.NoError(t, err)

	require.Len(t, resp.Discovered, 1)
	m := resp.Discovered[0]
	assert.InDelta(t, 0.75, m.Scores.Semantic, 1e-9)
	assert.InDelta(t, 1.0, m.Scores.Recency, 1e-9)
	assert.GreaterOrEqual(t, m.Scores.Final, 0.5)
	assert.Equal(t, MatchScore(m.Scores.Final), m.MatchScore)
	assert.Contains(t, []model.Tier{model.TierGood, model.TierGreat}, m.MatchTier)
	assert.Equal(t, model.FreshJustPosted, m.FreshnessLabel)
	assert.ElementsMatch(t, []string{"JavaScript", "React", "Node.js"}, m.SkillMatches)
}

func TestDiscover_SectionsAndCap(t *testing.T) {
	h := newHarness(t)
	for i := 0; i < 25; i++ {
		h.store.AddInternal(internalPosting(fmt.Sprintf("i%02d", i), "Go", "SQL"))
	}
	for i := 0; i < 30; i++ {
		h.store.AddExternal("", cachedPosting(fmt.Sprintf("c%02d", i), fmt.Sprintf("Co%02d", i), "Go Developer", i%5, "Go", "SQL"))
	}

	resp, err := h.svc.Discover(context.Background(), Request{Skills: []string{"go", "sql"}, Title: "go developer"})
	require.NoError(t, err)
	assert.Len(t, resp.Direct, 25)
	assert.Len(t, resp.Discovered, 20)
	assert.Equal(t, 25, resp.Metadata.DirectCount)
	assert.Equal(t, 20, resp.Metadata.DiscoveredCount)
	assert.Equal(t, 30, resp.Metadata.DiscoveredTotal)
	for _, m := range resp.Direct {
		assert.Equal(t, model.SourceInternal, m.Source)
	}
	for i := 1; i < len(resp.Discovered); i++ {
		assert.GreaterOrEqual(t, resp.Discovered[i-1].Scores.Final, resp.Discovered[i].Scores.Final)
	}

	resp, err = h.svc.Discover(context.Background(), Request{Skills: []string{"go", "sql"}, MaxExternalJobs: 5})
	require.NoError(t, err)
	assert.Len(t, resp.Discovered, 5)
}

func TestDiscover_LiveFailureIsPartial(t *testing.T) {
	h := newHarness(t)
	h.store.AddInternal(internalPosting("i1", "Go"))
	h.store.AddExternal("", cachedPosting("c1", "Acme", "Go Developer", 1, "Go"))
	h.live.err = context.DeadlineExceeded

	resp, err := h.svc.Discover(context.Background(), Request{Skills: []string{"go"}})
	require.NoError(t, err)
	assert.True(t, resp.Metadata.Partial)
	assert.True(t, resp.Metadata.LiveIncomplete)
	assert.Equal(t, msgPartial, resp.Metadata.Message)
	assert.Len(t, resp.Direct, 1)
	assert.Len(t, resp.Discovered, 1)

	require.Len(t, h.writer.jobs, 1)
	assert.False(t, h.writer.jobs[0].MarkWarm, "incomplete live fetches never mark a query warm")
}

func TestDiscover_CachedFailureIsPartial(t *testing.T) {
	h := newHarness(t)
	h.store.AddInternal(internalPosting("i1", "Go"))
	h.store.ErrExternal = errors.New("replica lag")

	resp, err := h.svc.Discover(context.Background(), Request{Skills: []string{"go"}})
	require.NoError(t, err)
	assert.True(t, resp.Metadata.Partial)
	assert.Equal(t, []string{string(model.SourceCachedExternal)}, resp.Metadata.FailedSources)
	assert.Len(t, resp.Direct, 1)
}

func TestDiscover_InternalFailureFailsRequest(t *testing.T) {
	h := newHarness(t)
	h.store.ErrInternal = errors.New("connection refused")

	resp, err := h.svc.Discover(context.Background(), Request{Skills: []string{"go"}})
	require.Error(t, err)
	assert.Nil(t, resp)
	assert.ErrorIs(t, err, ErrSourceFatal)
}

func TestDiscover_CacheOnReadThenWarmPath(t *testing.T) {
	h := newHarness(t)
	h.live.jobs = []adzuna.Job{liveJob("L1", "Globex", "Go Developer", "We write Go and SQL every day.")}
	req := Request{Skills: []string{"go", "sql"}, Title: "Go Developer"}

	cold, err := h.svc.Discover(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, cold.Discovered, 1)
	assert.Equal(t, model.SourceLiveDiscovery, cold.Discovered[0].Source)
	assert.False(t, cold.Metadata.LiveSkipped)

	require.Len(t, h.writer.jobs, 1)
	job := h.writer.jobs[0]
	assert.True(t, job.MarkWarm)
	assert.Equal(t, cold.Metadata.QuerySignature, job.Signature)

	// Run the job the way a background worker would.
	w := cachewriter.New(h.store, h.cache, cachewriter.Config{}, nil, nil)
	written, _, _ := w.Run(context.Background(), job)
	assert.Equal(t, 1, written)

	warm, err := h.svc.Discover(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, warm.Metadata.LiveSkipped)
	assert.Equal(t, msgLiveCached, warm.Metadata.Message)
	assert.Equal(t, 1, h.live.calls, "warm queries skip the live source")
	require.Len(t, warm.Discovered, 1)
	assert.Equal(t, model.SourceCachedExternal, warm.Discovered[0].Source)
	assert.Equal(t, "L1", warm.Discovered[0].ExternalID)

	req.ForceLive = true
	_, err = h.svc.Discover(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, 2, h.live.calls, "forceLive bypasses the warm mark")
}

func TestDiscover_LiveAndCachedDuplicatesCollapse(t *testing.T) {
	h := newHarness(t)
	h.store.AddExternal("", cachedPosting("c1", "Stripe", "Senior Backend Engineer", 1, "Go"))
	h.live.jobs = []adzuna.Job{liveJob("L1", "Stripe", "Backend Engineer", "Go services")}

	resp, err := h.svc.Discover(context.Background(), Request{Skills: []string{"go"}, Title: "backend engineer"})
	require.NoError(t, err)
	require.Len(t, resp.Discovered, 1)
	assert.Equal(t, "L1", resp.Discovered[0].ExternalID, "live posting carries the higher trust")
	assert.Equal(t, 1, resp.Metadata.DuplicatesRemoved)
}

func TestDiscover_MinMatchScoreOverride(t *testing.T) {
	h := newHarness(t)
	h.store.AddExternal("", cachedPosting("c1", "Acme", "Go Developer", 10, "Go", "Rust", "Java", "PHP"))

	resp, err := h.svc.Discover(context.Background(), Request{Skills: []string{"go"}})
	require.NoError(t, err)
	require.Len(t, resp.Discovered, 1)
	score := resp.Discovered[0].MatchScore

	strict := float64(score + 5)
	resp, err = h.svc.Discover(context.Background(), Request{Skills: []string{"go"}, MinMatchScore: &strict})
	require.NoError(t, err)
	assert.Empty(t, resp.Discovered)
	assert.Equal(t, 1, resp.Metadata.BelowThreshold)
	assert.Equal(t, msgEmpty, resp.Metadata.Message)
}

func TestDiscover_EmptyResultIsWellFormed(t *testing.T) {
	h := newHarness(t)

	resp, err := h.svc.Discover(context.Background(), Request{Title: "astronaut"})
	require.NoError(t, err)
	assert.False(t, resp.Metadata.Partial)
	assert.NotEmpty(t, resp.Metadata.RequestID)

	raw, err := json.Marshal(resp)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"direct":[]`)
	assert.Contains(t, string(raw), `"discovered":[]`)
}

func TestDiscover_Validation(t *testing.T) {
	h := newHarness(t)
	neg, over := -1.0, 101.0

	for name, req := range map[string]Request{
		"empty":           {},
		"blank skills":    {Skills: []string{" ", ""}},
		"bad workType":    {Skills: []string{"go"}, WorkType: "sometimes"},
		"negative salary": {Skills: []string{"go"}, SalaryMin: -1},
		"cap too large":   {Skills: []string{"go"}, MaxExternalJobs: 1000},
		"score below 0":   {Skills: []string{"go"}, MinMatchScore: &neg},
		"score above 100": {Skills: []string{"go"}, MinMatchScore: &over},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := h.svc.Discover(context.Background(), req)
			var ve *ValidationError
			assert.True(t, errors.As(err, &ve), "want *ValidationError, got %v", err)
		})
	}
}

func TestDiscoverSearchConfig(t *testing.T) {
	h := newHarness(t)
	h.store.AddInternal(internalPosting("i1", "Go"))
	h.store.AddConfigs(
		model.SearchConfig{ID: "cfg1", UserID: "u1", JobTitles: []string{"Go developer"}, Keywords: []string{"go"}},
		model.SearchConfig{ID: "cfg2", UserID: "u1"},
	)

	resp, err := h.svc.DiscoverSearchConfig(context.Background(), "u1", "cfg1", false)
	require.NoError(t, err)
	assert.Len(t, resp.Direct, 1)

	_, err = h.svc.DiscoverSearchConfig(context.Background(), "u2", "cfg1", false)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = h.svc.DiscoverSearchConfig(context.Background(), "u1", "cfg2", false)
	var ve *ValidationError
	assert.True(t, errors.As(err, &ve))
}

func TestInvalidation(t *testing.T) {
	h := newHarness(t)
	h.store.AddInternal(internalPosting("i1", "Go"))
	req := Request{CandidateID: "u1", Skills: []string{"go"}}

	_, err := h.svc.Discover(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, 1, h.memo.Len())
	assert.Equal(t, 1, h.svc.InvalidateCandidate("u1"))
	assert.Zero(t, h.memo.Len())

	q := req.Query()
	require.NoError(t, h.cache.MarkWarm(context.Background(), Signature(&q)))
	sig, err := h.svc.InvalidateQuery(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, Signature(&q), sig)
	warm, _ := h.cache.IsWarm(context.Background(), sig)
	assert.False(t, warm)

	require.NoError(t, h.cache.MarkWarm(context.Background(), "other"))
	require.NoError(t, h.svc.FlushQueries(context.Background()))
	warm, _ = h.cache.IsWarm(context.Background(), "other")
	assert.False(t, warm)
}

func TestSignature(t *testing.T) {
	a := &model.CandidateQuery{Skills: []string{"Go", "SQL"}, Title: "Backend  Engineer", Location: "Paris"}
	b := &model.CandidateQuery{CandidateID: "someone", Skills: []string{"sql", "go"}, Title: "backend engineer", Location: "paris"}
	c := &model.CandidateQuery{Skills: []string{"go"}, Title: "Backend Engineer", Location: "Paris"}

	assert.Equal(t, Signature(a), Signature(b))
	assert.NotEqual(t, Signature(a), Signature(c))
	assert.Len(t, Signature(a), 16)
}

func TestMatchScore(t *testing.T) {
	assert.Equal(t, 40, MatchScore(0.40))
	assert.Equal(t, 75, MatchScore(0.746))
	assert.Equal(t, 74, MatchScore(0.744))
	assert.Equal(t, 100, MatchScore(1))
	assert.Equal(t, 0, MatchScore(0))
}
