// Package store reads and writes postings and saved searches in PostgreSQL.
//
// Tables (owned by other services, consumed here):
//
//	jobs           employer postings, joined with employers for is_active
//	external_jobs  scraped / discovered postings, UNIQUE (external_id, source)
//	search_configs saved candidate searches
//
// The external_jobs.source column holds the provider label ("adzuna", ...),
// so the (external_id, source) pair identifies an opening across writers.
package store

import (
	"errors"
	"strings"
	"time"

	"jobmate/match-service/internal/scoring"
)

// ErrNotFound is returned when a row is missing or not owned by the caller.
var ErrNotFound = errors.New("not found")

// Filter narrows posting reads.
type Filter struct {
	// Skills restricts results to postings sharing at least one skill
	// (lexical overlap). Empty means no restriction.
	Skills []string
	// PostedAfter drops external postings published before it. Ignored for
	// internal postings, which are bounded by their expiry.
	PostedAfter time.Time
	// Now is the reference instant for expiry checks.
	Now   time.Time
	Limit int
}

// NormalizedSkills returns the filter skills in scoring's token form,
// without empties or duplicates.
func (f Filter) NormalizedSkills() []string {
	seen := make(map[string]bool, len(f.Skills))
	out := make([]string, 0, len(f.Skills))
	for _, s := range f.Skills {
		n := scoring.NormalizeSkill(s)
		if n == "" || seen[n] {
			continue
		}
		seen[n] = true
		out = append(out, n)
	}
	return out
}

// SkillOverlap reports whether any posting skill contains, or is contained
// in, one of the normalized candidate skills. It mirrors the SQL overlap
// predicate used by Postgres and is deliberately looser than scoring.
func SkillOverlap(postingSkills, normalized []string) bool {
	if len(normalized) == 0 {
		return true
	}
	for _, raw := range postingSkills {
		s := scoring.NormalizeSkill(raw)
		if s == "" {
			continue
		}
		for _, c := range normalized {
			if strings.Contains(s, c) || strings.Contains(c, s) {
				return true
			}
		}
	}
	return false
}
