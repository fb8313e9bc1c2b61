// Package scoring computes the hybrid relevance of a posting for a candidate.
//
//	final = w.Semantic·semantic + w.Recency·recency + w.Liveness·liveness
//	      + w.Personalization·personalization
//
// Every component and the final score lie in [0, 1]. Score is a pure
// function of its inputs; memoization lives in Memo and is owned by the caller.
package scoring

import (
	"math"
	"strings"
	"unicode"

	"jobmate/match-service/internal/freshness"
	"jobmate/match-service/internal/model"
)

// RecencyHorizonDays is the age at which the recency component reaches 0.
const RecencyHorizonDays = 30

// minSubstringLen guards substring matching against tiny tokens ("go" would
// otherwise match "django").
const minSubstringLen = 3

// Score returns the ScoredMatch of p for q. f carries the freshness of p at
// the request instant; Tier is left for the ranker to assign.
func Score(q *model.CandidateQuery, p *model.Posting, w Weights, f freshness.Result) model.ScoredMatch {
	semantic, matched := SemanticRelevance(q.Skills, p.Skills)

	m := model.ScoredMatch{
		Posting:           *p,
		SemanticRelevance: semantic,
		Recency:           Recency(f.DaysOld),
		Liveness:          Liveness(p.Liveness, p.TrustScore),
		Personalization:   Personalization(q, p),
		FreshnessLabel:    f.Label,
		DaysOld:           f.DaysOld,
		SkillMatches:      matched,
	}
	m.FinalScore = clamp01(w.Semantic*m.SemanticRelevance +
		w.Recency*m.Recency +
		w.Liveness*m.Liveness +
		w.Personalization*m.Personalization)
	return m
}

// SemanticRelevance is |matched posting skills| / max(|posting skills|, 1).
// It returns the posting skills (original spelling) that matched.
func SemanticRelevance(candidate, posting []string) (float64, []string) {
	cand := make([]string, 0, len(candidate))
	for _, s := range candidate {
		if n := NormalizeSkill(s); n != "" {
			cand = append(cand, n)
		}
	}

	seen := make(map[string]bool, len(posting))
	var matched []string
	total := 0
	for _, raw := range posting {
		n := NormalizeSkill(raw)
		if n == "" || seen[n] {
			continue
		}
		seen[n] = true
		total++
		for _, c := range cand {
			if skillsMatch(c, n) {
				matched = append(matched, raw)
				break
			}
		}
	}

	denom := total
	if denom < 1 {
		denom = 1
	}
	return clamp01(float64(len(matched)) / float64(denom)), matched
}

// NormalizeSkill lowercases s and keeps letters, digits, '+' and '#', so
// "Node.js" and "nodejs" are the same token while "C++" stays distinct from "C".
func NormalizeSkill(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '+' || r == '#' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func skillsMatch(a, b string) bool {
	if a == b {
		return true
	}
	short, long := a, b
	if len(short) > len(long) {
		short, long = long, short
	}
	return len(short) >= minSubstringLen && strings.Contains(long, short)
}

// Recency decays linearly from 1 (posted today) to 0 at RecencyHorizonDays.
func Recency(daysOld int) float64 {
	if daysOld <= 0 {
		return 1
	}
	return clamp01(1 - float64(daysOld)/RecencyHorizonDays)
}

// Liveness blends the coarse status with the 0–100 trust score.
func Liveness(status model.Liveness, trust int) float64 {
	var s float64
	switch status {
	case model.LivenessActive:
		s = 1
	case model.LivenessStale:
		s = 0
	default:
		s = 0.5
	}
	t := float64(trust) / 100
	return clamp01(0.6*s + 0.4*clamp01(t))
}

// Personalization is the weighted average of location, work-arrangement and
// compensation compatibility.
func Personalization(q *model.CandidateQuery, p *model.Posting) float64 {
	return clamp01(0.4*LocationFit(q.Location, p) +
		0.3*ArrangementFit(q.WorkArrangement, p.WorkArrangement) +
		0.3*CompensationFit(q.SalaryFloor, p.SalaryMin, p.SalaryMax))
}

// LocationFit is 1 for an exact/contained or remote match, 0.5 when either
// side is unknown and 0 otherwise.
func LocationFit(pref string, p *model.Posting) float64 {
	want := strings.ToLower(strings.TrimSpace(pref))
	have := strings.ToLower(strings.TrimSpace(p.Location))
	postingRemote := p.WorkArrangement == model.WorkRemote || strings.Contains(have, "remote")

	switch {
	case want == "":
		return 0.5
	case postingRemote:
		return 1
	case want == "remote":
		return 0
	case have == "":
		return 0.5
	case strings.Contains(have, want) || strings.Contains(want, have):
		return 1
	}

	wantCity, _, _ := strings.Cut(want, ",")
	haveCity, _, _ := strings.Cut(have, ",")
	if strings.TrimSpace(wantCity) == strings.TrimSpace(haveCity) {
		return 1
	}
	return 0
}

// ArrangementFit compares work arrangements; hybrid half-matches both others.
func ArrangementFit(pref, have model.WorkArrangement) float64 {
	switch {
	case pref == "" || have == "":
		return 0.5
	case pref == have:
		return 1
	case pref == model.WorkHybrid || have == model.WorkHybrid:
		return 0.5
	}
	return 0
}

// CompensationFit is the fraction of the posting's range at or above floor.
func CompensationFit(floor, salaryMin, salaryMax float64) float64 {
	if floor <= 0 || (salaryMin <= 0 && salaryMax <= 0) {
		return 0.5
	}
	lo, hi := salaryMin, salaryMax
	if lo <= 0 {
		lo = hi
	}
	if hi <= 0 {
		hi = lo
	}
	if hi < lo {
		lo, hi = hi, lo
	}
	switch {
	case lo >= floor:
		return 1
	case hi < floor:
		return 0
	}
	return clamp01((hi - floor) / (hi - lo))
}

func clamp01(v float64) float64 {
	switch {
	case math.IsNaN(v):
		return 0
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
