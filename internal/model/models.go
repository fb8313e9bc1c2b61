// Package model defines shared data structures for the match service.
package model

import (
	"strings"
	"time"
)

// Source is the origin discriminant of a Posting.
type Source string

const (
	SourceInternal       Source = "internal"
	SourceCachedExternal Source = "cached-external"
	SourceLiveDiscovery  Source = "live-discovery"
)

// Sources lists every source in fan-out order. The order also defines which
// posting is "first seen" when two non-internal postings tie on trust.
var Sources = []Source{SourceInternal, SourceCachedExternal, SourceLiveDiscovery}

// Liveness mirrors the liveness_status column maintained by the external
// liveness checker.
type Liveness string

const (
	LivenessActive  Liveness = "active"
	LivenessStale   Liveness = "stale"
	LivenessUnknown Liveness = "unknown"
)

// ParseLiveness maps a raw column value to a Liveness. Anything unrecognised
// is treated as unknown.
func ParseLiveness(s string) Liveness {
	switch Liveness(strings.ToLower(strings.TrimSpace(s))) {
	case LivenessActive:
		return LivenessActive
	case LivenessStale:
		return LivenessStale
	}
	return LivenessUnknown
}

// WorkArrangement is remote, hybrid or onsite. The empty value means unknown.
type WorkArrangement string

const (
	WorkRemote WorkArrangement = "remote"
	WorkHybrid WorkArrangement = "hybrid"
	WorkOnsite WorkArrangement = "onsite"
)

// ParseWorkArrangement accepts the common spellings used by employers,
// search configs and job boards.
func ParseWorkArrangement(s string) WorkArrangement {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "remote", "full_remote", "fully remote", "remote_only", "télétravail":
		return WorkRemote
	case "hybrid", "hybride", "partial_remote":
		return WorkHybrid
	case "onsite", "on-site", "on_site", "office", "in office", "no_remote":
		return WorkOnsite
	}
	return ""
}

// Posting is a job opening, regardless of origin.
type Posting struct {
	ID         string `json:"id"`
	ExternalID string `json:"externalId,omitempty"`
	// Provider is the job board label (e.g. "adzuna"). Together with
	// ExternalID it is the uniqueness key of the external_jobs table.
	Provider string `json:"provider,omitempty"`

	Title           string          `json:"title"`
	Company         string          `json:"company"`
	Description     string          `json:"description"`
	Skills          []string        `json:"skills"`
	Requirements    []string        `json:"requirements"`
	Location        string          `json:"location"`
	WorkArrangement WorkArrangement `json:"workType,omitempty"`
	SalaryMin       float64         `json:"salaryMin,omitempty"`
	SalaryMax       float64         `json:"salaryMax,omitempty"`
	ApplyURL        string          `json:"applyUrl,omitempty"`

	PostedDate time.Time  `json:"postedDate"`
	ExpiresAt  *time.Time `json:"expiresAt,omitempty"`
	Source     Source     `json:"source"`
	TrustScore int        `json:"trustScore"`
	Liveness   Liveness   `json:"livenessStatus"`
}

// Key returns a stable identity for the posting within one request:
// the local id for internal postings, provider:externalId otherwise.
func (p *Posting) Key() string {
	if p.Source == SourceInternal || p.ExternalID == "" {
		return p.ID
	}
	return p.Provider + ":" + p.ExternalID
}

// Valid reports whether the posting satisfies the lifecycle invariant:
// internal postings carry an expiry, external ones carry a posted date.
func (p *Posting) Valid() bool {
	switch p.Source {
	case SourceInternal:
		return p.ExpiresAt != nil
	case SourceCachedExternal, SourceLiveDiscovery:
		return !p.PostedDate.IsZero()
	}
	return false
}

// CandidateQuery is the ephemeral input of one discovery call.
type CandidateQuery struct {
	CandidateID     string
	Skills          []string
	Title           string
	Location        string
	WorkArrangement WorkArrangement
	SalaryFloor     float64
	// ExcludeTerms discard any posting mentioning one of them (red flags).
	ExcludeTerms []string
}

// Tier is the coarse display bucket derived from the final score.
type Tier string

const (
	TierGreat          Tier = "great"
	TierGood           Tier = "good"
	TierWorthALook     Tier = "worth-a-look"
	TierBelowThreshold Tier = "below-threshold"
)

// FreshnessLabel is the coarse age bucket of a posting.
type FreshnessLabel string

const (
	FreshJustPosted FreshnessLabel = "just-posted"
	FreshThisWeek   FreshnessLabel = "this-week"
	FreshRecent     FreshnessLabel = "recent"
	FreshStale      FreshnessLabel = "stale"
)

// ScoredMatch is a posting annotated with its relevance for one candidate.
type ScoredMatch struct {
	Posting Posting

	SemanticRelevance float64
	Recency           float64
	Liveness          float64
	Personalization   float64
	FinalScore        float64

	Tier           Tier
	FreshnessLabel FreshnessLabel
	DaysOld        int
	SkillMatches   []string
}

// SearchConfig mirrors the search_configs table row relevant to discovery.
type SearchConfig struct {
	ID           string
	UserID       string
	JobTitles    []string
	Locations    []string
	RemotePolicy string
	Keywords     []string // must-have tech/role keywords, used as candidate skills
	RedFlags     []string // exclusion terms; any match discards the offer
	SalaryMin    *int
	SalaryMax    *int
}

// Query builds the CandidateQuery equivalent of a saved search config.
// The first title and location are the primary preferences.
func (c *SearchConfig) Query() CandidateQuery {
	q := CandidateQuery{
		CandidateID:     c.UserID,
		Skills:          append([]string(nil), c.Keywords...),
		WorkArrangement: ParseWorkArrangement(c.RemotePolicy),
		ExcludeTerms:    append([]string(nil), c.RedFlags...),
	}
	if len(c.JobTitles) > 0 {
		q.Title = c.JobTitles[0]
	}
	if len(c.Locations) > 0 {
		q.Location = c.Locations[0]
	}
	if c.SalaryMin != nil {
		q.SalaryFloor = float64(*c.SalaryMin)
	}
	return q
}
