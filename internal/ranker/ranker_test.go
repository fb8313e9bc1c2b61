package ranker

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jobmate/match-service/internal/freshness"
	"jobmate/match-service/internal/model"
	"jobmate/match-service/internal/scoring"
)

var now = time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)

// semanticOnly makes FinalScore equal to the skill overlap ratio.
var semanticOnly = scoring.Weights{Semantic: 1}

func posting(id string, src model.Source, skills []string, daysOld int) model.Posting {
	p := model.Posting{
		ID: id, ExternalID: id, Provider: "adzuna", Title: "Engineer " + id, Company: "Co " + id,
		Skills: skills, Source: src, PostedDate: now.AddDate(0, 0, -daysOld),
		TrustScore: 80, Liveness: model.LivenessActive,
	}
	if src == model.SourceInternal {
		exp := now.Add(24 * time.Hour)
		p.ExpiresAt = &exp
	}
	return p
}

func TestRank_ThresholdIsInclusive(t *testing.T) {
	q := &model.CandidateQuery{Skills: []string{"go", "sql"}}
	atThreshold := posting("a", model.SourceCachedExternal, []string{"Go", "SQL", "Rust", "Java", "PHP"}, 1) // 2/5
	below := posting("b", model.SourceCachedExternal,
		[]string{"Go", "SQL", "Rust", "Java", "PHP", "Ruby", "Perl", "Lua"}, 1) // 2/8

	r := New(semanticOnly, freshness.New(15), nil)
	res := r.Rank(q, "sig", []model.Posting{atThreshold, below}, now, DefaultMinScore)

	require.Len(t, res.Matches, 1)
	assert.Equal(t, "a", res.Matches[0].Posting.ID)
	assert.InDelta(t, 0.40, res.Matches[0].FinalScore, 1e-12)
	assert.Equal(t, model.TierWorthALook, res.Matches[0].Tier)
	assert.Equal(t, 1, res.BelowThreshold)

	res = r.Rank(q, "sig", []model.Posting{atThreshold}, now, 0.40+1e-6)
	assert.Empty(t, res.Matches)
}

func TestRank_ExcludesExpiredAndStale(t *testing.T) {
	q := &model.CandidateQuery{Skills: []string{"go"}}
	expired := posting("i", model.SourceInternal, []string{"go"}, 1)
	past := now.Add(-time.Minute)
	expired.ExpiresAt = &past
	stale := posting("s", model.SourceLiveDiscovery, []string{"go"}, 16)
	fresh := posting("f", model.SourceLiveDiscovery, []string{"go"}, 15)

	res := New(scoring.DefaultWeights(), freshness.New(15), nil).
		Rank(q, "sig", []model.Posting{expired, stale, fresh}, now, 0)

	require.Len(t, res.Matches, 1)
	assert.Equal(t, "f", res.Matches[0].Posting.ID)
	assert.Equal(t, model.FreshRecent, res.Matches[0].FreshnessLabel)
	assert.Equal(t, 2, res.ExpiredExcluded)
}

func TestRank_InternalOldButUnexpiredStays(t *testing.T) {
	q := &model.CandidateQuery{Skills: []string{"go"}}
	old := posting("i", model.SourceInternal, []string{"go"}, 60)

	res := New(scoring.DefaultWeights(), freshness.New(15), nil).Rank(q, "sig", []model.Posting{old}, now, 0)
	require.Len(t, res.Matches, 1)
	assert.Equal(t, model.FreshStale, res.Matches[0].FreshnessLabel)
	assert.Equal(t, 60, res.Matches[0].DaysOld)
}

func TestTier_Boundaries(t *testing.T) {
	tests := []struct {
		score float64
		want  model.Tier
	}{
		{1, model.TierGreat},
		{0.75, model.TierGreat},
		{0.7499, model.TierGood},
		{0.50, model.TierGood},
		{0.4999, model.TierWorthALook},
		{0.40, model.TierWorthALook},
		{0.3999, model.TierBelowThreshold},
		{0, model.TierBelowThreshold},
	}
	for _, tc := range tests {
		t.Run(fmt.Sprintf("%v", tc.score), func(t *testing.T) {
			assert.Equal(t, tc.want, Tier(tc.score))
		})
	}
}

func TestSort_ScoreThenDateThenKey(t *testing.T) {
	mk := func(key string, score float64, daysOld int) model.ScoredMatch {
		return model.ScoredMatch{FinalScore: score, Posting: model.Posting{
			ID: key, Source: model.SourceInternal, PostedDate: now.AddDate(0, 0, -daysOld)}}
	}
	ms := []model.ScoredMatch{
		mk("d", 0.5, 1),
		mk("c", 0.5, 1),
		mk("b", 0.5, 0),
		mk("a", 0.9, 10),
	}
	Sort(ms)

	var got []string
	for _, m := range ms {
		got = append(got, m.Posting.ID)
	}
	assert.Equal(t, []string{"a", "b", "c", "d"}, got)
}

func TestRank_DeterministicForSameInputs(t *testing.T) {
	q := &model.CandidateQuery{Skills: []string{"go", "kafka"}, Location: "Paris"}
	var ps []model.Posting
	for i := 0; i < 10; i++ {
		ps = append(ps, posting(fmt.Sprintf("p%02d", i), model.SourceCachedExternal, []string{"Go", "Kafka"}, i%4))
	}
	r := New(scoring.DefaultWeights(), freshness.New(15), nil)

	first := r.Rank(q, "sig", ps, now, DefaultMinScore)
	second := r.Rank(q, "sig", ps, now, DefaultMinScore)
	assert.Equal(t, first, second)
}

func TestRank_UsesMemo(t *testing.T) {
	q := &model.CandidateQuery{CandidateID: "u1", Skills: []string{"go"}}
	p := posting("a", model.SourceCachedExternal, []string{"go"}, 1)
	memo := scoring.NewMemo(time.Minute, 0)
	r := New(scoring.DefaultWeights(), freshness.New(15), memo)

	first := r.Rank(q, "sig", []model.Posting{p}, now, 0)
	assert.Equal(t, 1, memo.Len())

	p.Description = "updated"
	second := r.Rank(q, "sig", []model.Posting{p}, now, 0)
	require.Len(t, second.Matches, 1)
	assert.Equal(t, first.Matches[0].FinalScore, second.Matches[0].FinalScore)
	assert.Equal(t, "updated", second.Matches[0].Posting.Description, "memo hits carry the current posting")
	assert.Equal(t, 1, memo.Len())
}

func TestRank_RescoresReRatedPosting(t *testing.T) {
	q := &model.CandidateQuery{CandidateID: "u1", Skills: []string{"go"}}
	p := posting("a", model.SourceCachedExternal, []string{"go"}, 1)
	memo := scoring.NewMemo(time.Minute, 0)
	r := New(scoring.DefaultWeights(), freshness.New(15), memo)

	first := r.Rank(q, "sig", []model.Posting{p}, now, 0)
	require.Len(t, first.Matches, 1)

	p.TrustScore = 20
	p.Liveness = model.LivenessStale
	second := r.Rank(q, "sig", []model.Posting{p}, now, 0)
	require.Len(t, second.Matches, 1)
	assert.Less(t, second.Matches[0].Liveness, first.Matches[0].Liveness, "re-rated posting is rescored")
	assert.Less(t, second.Matches[0].FinalScore, first.Matches[0].FinalScore)

	p.Skills = []string{"rust"}
	third := r.Rank(q, "sig", []model.Posting{p}, now, 0)
	require.Len(t, third.Matches, 1)
	assert.Less(t, third.Matches[0].FinalScore, second.Matches[0].FinalScore, "new skills are rescored")
	assert.Equal(t, 3, memo.Len())
}

func TestSection_DirectUnlimitedDiscoveredCapped(t *testing.T) {
	var ms []model.ScoredMatch
	for i := 0; i < 25; i++ {
		ms = append(ms, model.ScoredMatch{FinalScore: 0.6, Posting: model.Posting{
			ID: fmt.Sprintf("i%02d", i), Source: model.SourceInternal}})
	}
	for i := 0; i < 30; i++ {
		src := model.SourceCachedExternal
		if i%2 == 0 {
			src = model.SourceLiveDiscovery
		}
		ms = append(ms, model.ScoredMatch{FinalScore: 0.9 - float64(i)/100, Posting: model.Posting{
			ExternalID: fmt.Sprintf("e%02d", i), Provider: "adzuna", Source: src}})
	}
	Sort(ms)

	s := Section(ms, 20)
	assert.Len(t, s.Direct, 25)
	require.Len(t, s.Discovered, 20)
	assert.Equal(t, 30, s.DiscoveredTotal)
	assert.Equal(t, "e00", s.Discovered[0].Posting.ExternalID)
	assert.Equal(t, "e19", s.Discovered[19].Posting.ExternalID)
	for i := 1; i < len(s.Discovered); i++ {
		assert.GreaterOrEqual(t, s.Discovered[i-1].FinalScore, s.Discovered[i].FinalScore)
	}
}

func TestSection_DefaultsAndEmpty(t *testing.T) {
	s := Section(nil, 0)
	assert.NotNil(t, s.Direct)
	assert.NotNil(t, s.Discovered)
	assert.Zero(t, s.DiscoveredTotal)
}
