package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jobmate/match-service/internal/aggregator"
	"jobmate/match-service/internal/cachewriter"
	"jobmate/match-service/internal/discovery"
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

type fakeWarmer struct {
	mu     sync.Mutex
	failOn string
	seen   []string
	forced []bool
}

func (f *fakeWarmer) DiscoverConfig(_ context.Context, cfg *model.SearchConfig, forceLive bool) (*discovery.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seen = append(f.seen, cfg.ID)
	f.forced = append(f.forced, forceLive)
	if cfg.ID == f.failOn {
		return nil, &discovery.ValidationError{Msg: "search config has neither job titles nor keywords"}
	}
	return &discovery.Response{}, nil
}

func (f *fakeWarmer) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.seen)
}

func newScheduler(s Store, w Warmer) *Scheduler {
	sch := New(s, w, Config{IntervalHours: 6, RetentionDays: 30}, nil)
	sch.now = func() time.Time { return now }
	return sch
}

func TestRunOnce_PurgesAndWarms(t *testing.T) {
	ms := memstore.New()
	ms.AddExternal("old", model.Posting{ExternalID: "old", Provider: "adzuna", PostedDate: now.AddDate(0, 0, -31)})
	ms.AddExternal("new", model.Posting{ExternalID: "new", Provider: "adzuna", PostedDate: now.AddDate(0, 0, -29)})
	ms.AddConfigs(
		model.SearchConfig{ID: "a", UserID: "u1", Keywords: []string{"go"}},
		model.SearchConfig{ID: "b", UserID: "u2"},
		model.SearchConfig{ID: "c", UserID: "u3", JobTitles: []string{"Data Engineer"}},
	)
	w := &fakeWarmer{failOn: "b"}

	sum := newScheduler(ms, w).RunOnce(context.Background())

	assert.Equal(t, Summary{Purged: 1, Warmed: 2, Failed: 1}, sum)
	assert.Equal(t, 1, ms.ExternalCount())
	assert.Equal(t, []string{"a", "b", "c"}, w.seen)
	assert.Equal(t, []bool{true, true, true}, w.forced, "warming always queries the live source")
}

func TestRunOnce_ConfigLoadFailure(t *testing.T) {
	ms := memstore.New()
	ms.ErrConfigs = errors.New("connection reset")
	w := &fakeWarmer{}

	sum := newScheduler(ms, w).RunOnce(context.Background())
	assert.Zero(t, sum.Warmed)
	assert.Zero(t, w.calls())
}

func TestRunOnce_StopsOnCancel(t *testing.T) {
	ms := memstore.New()
	ms.AddConfigs(model.SearchConfig{ID: "a", Keywords: []string{"go"}})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	w := &fakeWarmer{}
	newScheduler(ms, w).RunOnce(ctx)
	assert.Zero(t, w.calls())
}

func TestStart_RunsImmediately(t *testing.T) {
	ms := memstore.New()
	ms.AddConfigs(model.SearchConfig{ID: "a", Keywords: []string{"go"}})
	w := &fakeWarmer{}
	sch := newScheduler(ms, w)

	require.NoError(t, sch.Start(context.Background()))
	require.Eventually(t, func() bool { return w.calls() == 1 }, time.Second, 10*time.Millisecond)
	sch.Stop()
}

func TestStart_InvalidSpec(t *testing.T) {
	sch := New(memstore.New(), &fakeWarmer{}, Config{IntervalHours: 0}, nil)
	sch.spec = "not a spec"
	assert.Error(t, sch.Start(context.Background()))
}

type liveJobs struct{ jobs []adzuna.Job }

func (l liveJobs) Configured() bool { return true }

func (l liveJobs) Search(context.Context, adzuna.Params) (adzuna.Result, error) {
	return adzuna.Result{Jobs: l.jobs, Pages: 1}, nil
}

// A warm cycle feeds the cached store and marks the config's query warm.
func TestRunOnce_PopulatesCache(t *testing.T) {
	ms := memstore.New()
	cfg := model.SearchConfig{ID: "a", UserID: "u1", JobTitles: []string{"Go Developer"}, Keywords: []string{"go"}}
	ms.AddConfigs(cfg)

	provider := liveJobs{jobs: []adzuna.Job{{
		ID: "L1", Title: "Go Developer", Description: "Go all day.",
		Company: adzuna.Company{DisplayName: "Globex"}, Created: now.Add(-time.Hour).Format(time.RFC3339),
	}}}
	cache := querycache.NewMemory(time.Hour).WithClock(func() time.Time { return now })
	writer := cachewriter.New(ms, cache, cachewriter.Config{Workers: 1}, nil, nil)
	writer.Start()

	agg := aggregator.New([]source.Fetcher{
		source.NewInternal(ms, 500),
		source.NewCachedExternal(ms, 15, 500),
		source.NewLive(provider, source.LiveConfig{Timeout: time.Second, WindowDays: 15, DefaultTrust: 80}, nil),
	}, nil, nil)
	svc := discovery.New(discovery.Deps{
		Aggregator: agg,
		Ranker:     ranker.New(scoring.DefaultWeights(), freshness.New(15), nil),
		QueryCache: cache,
		Writer:     writer,
		Configs:    ms,
	}, discovery.Config{MinScore: ranker.DefaultMinScore}).WithClock(func() time.Time { return now })

	sum := newScheduler(ms, svc).RunOnce(context.Background())
	writer.Close()

	assert.Equal(t, 1, sum.Warmed)
	assert.Equal(t, 1, ms.ExternalCount())

	q := cfg.Query()
	warm, err := cache.IsWarm(context.Background(), discovery.Signature(&q))
	require.NoError(t, err)
	assert.True(t, warm)
}
