// Package ranker turns aggregated postings into thresholded, tiered and
// ordered matches, and splits them into result sections.
package ranker

import (
	"sort"
	"time"

	"jobmate/match-service/internal/freshness"
	"jobmate/match-service/internal/model"
	"jobmate/match-service/internal/scoring"
)

const (
	// DefaultMinScore is the inclusive relevance threshold.
	DefaultMinScore = 0.40

	tierGreat = 0.75
	tierGood  = 0.50

	// epsilon absorbs float error at the threshold and tier boundaries.
	epsilon = 1e-9
)

// Ranker scores postings for one candidate query at a time.
type Ranker struct {
	weights    scoring.Weights
	classifier freshness.Classifier
	memo       *scoring.Memo
}

// New returns a Ranker. memo may be nil.
func New(w scoring.Weights, c freshness.Classifier, memo *scoring.Memo) *Ranker {
	return &Ranker{weights: w, classifier: c, memo: memo}
}

// Result holds the kept matches, best first, and what was filtered out.
type Result struct {
	Matches []model.ScoredMatch

	ExpiredExcluded int
	BelowThreshold  int
}

// Rank classifies freshness, drops invalid postings, scores the rest,
// keeps those scoring at least minScore and orders them by score desc,
// posted date desc, then key asc.
//
// signature identifies the query for memoization.
func (r *Ranker) Rank(q *model.CandidateQuery, signature string, postings []model.Posting, now time.Time, minScore float64) Result {
	var res Result
	res.Matches = make([]model.ScoredMatch, 0, len(postings))

	for i := range postings {
		p := &postings[i]
		f := r.classifier.Classify(p, now)
		if !f.Valid {
			res.ExpiredExcluded++
			continue
		}

		m := r.score(q, signature, p, f)
		if m.FinalScore+epsilon < minScore {
			res.BelowThreshold++
			continue
		}
		m.Tier = Tier(m.FinalScore)
		res.Matches = append(res.Matches, m)
	}

	Sort(res.Matches)
	return res
}

func (r *Ranker) score(q *model.CandidateQuery, signature string, p *model.Posting, f freshness.Result) model.ScoredMatch {
	key := scoring.NewMemoKey(q.CandidateID, signature, p, f.DaysOld)
	if m, ok := r.memo.Get(key); ok {
		m.Posting = *p
		return m
	}
	m := scoring.Score(q, p, r.weights, f)
	r.memo.Put(key, m)
	return m
}

// Tier buckets a final score.
func Tier(score float64) model.Tier {
	switch {
	case score+epsilon >= tierGreat:
		return model.TierGreat
	case score+epsilon >= tierGood:
		return model.TierGood
	case score+epsilon >= DefaultMinScore:
		return model.TierWorthALook
	default:
		return model.TierBelowThreshold
	}
}

// Sort orders matches by final score desc, posted date desc, then posting
// key asc, making the order total and deterministic.
func Sort(ms []model.ScoredMatch) {
	sort.SliceStable(ms, func(i, j int) bool {
		a, b := &ms[i], &ms[j]
		if a.FinalScore != b.FinalScore {
			return a.FinalScore > b.FinalScore
		}
		if !a.Posting.PostedDate.Equal(b.Posting.PostedDate) {
			return a.Posting.PostedDate.After(b.Posting.PostedDate)
		}
		return a.Posting.Key() < b.Posting.Key()
	})
}
