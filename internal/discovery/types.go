package discovery

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"

	"jobmate/match-service/internal/aggregator"
	"jobmate/match-service/internal/model"
	"jobmate/match-service/internal/scoring"
	"jobmate/match-service/internal/store"
)

// ─── Errors ──────────────────────────────────────────────────────────────────

// ErrSourceFatal is returned when the internal job store cannot be read.
var ErrSourceFatal = aggregator.ErrSourceFatal

// ErrNotFound is returned when a search config is missing or not owned by
// the caller.
var ErrNotFound = store.ErrNotFound

// ValidationError carries a user-facing message for invalid input.
type ValidationError struct{ Msg string }

func (e *ValidationError) Error() string { return e.Msg }

// ─── Request ─────────────────────────────────────────────────────────────────

const (
	maxSkills          = 100
	maxExternalJobsCap = 100
)

// Request is the discovery input accepted by every transport.
type Request struct {
	CandidateID     string   `json:"-" yaml:"candidateId"`
	Skills          []string `json:"skills" yaml:"skills"`
	Title           string   `json:"title,omitempty" yaml:"title"`
	Location        string   `json:"location,omitempty" yaml:"location"`
	WorkType        string   `json:"workType,omitempty" yaml:"workType"`
	SalaryMin       float64  `json:"salaryMin,omitempty" yaml:"salaryMin"`
	ExcludeTerms    []string `json:"excludeTerms,omitempty" yaml:"excludeTerms"`
	MaxExternalJobs int      `json:"maxExternalJobs,omitempty" yaml:"maxExternalJobs"`
	// MinMatchScore overrides the threshold, on the 0–100 scale.
	MinMatchScore *float64 `json:"minMatchScore,omitempty" yaml:"minMatchScore"`
	ForceLive     bool     `json:"forceLive,omitempty" yaml:"forceLive"`
}

// Validate checks the request. It returns a *ValidationError.
func (r *Request) Validate() error {
	hasSkill := false
	for _, s := range r.Skills {
		if strings.TrimSpace(s) != "" {
			hasSkill = true
			break
		}
	}
	switch {
	case !hasSkill && strings.TrimSpace(r.Title) == "":
		return &ValidationError{Msg: "skills or title is required"}
	case len(r.Skills) > maxSkills:
		return &ValidationError{Msg: fmt.Sprintf("at most %d skills are accepted", maxSkills)}
	case r.WorkType != "" && model.ParseWorkArrangement(r.WorkType) == "":
		return &ValidationError{Msg: fmt.Sprintf("unknown workType %q (want remote, hybrid or onsite)", r.WorkType)}
	case r.SalaryMin < 0:
		return &ValidationError{Msg: "salaryMin must not be negative"}
	case r.MaxExternalJobs < 0 || r.MaxExternalJobs > maxExternalJobsCap:
		return &ValidationError{Msg: fmt.Sprintf("maxExternalJobs must be between 0 and %d", maxExternalJobsCap)}
	case r.MinMatchScore != nil && (*r.MinMatchScore < 0 || *r.MinMatchScore > 100):
		return &ValidationError{Msg: "minMatchScore must be between 0 and 100"}
	}
	return nil
}

// Query converts the request into a CandidateQuery.
func (r *Request) Query() model.CandidateQuery {
	return model.CandidateQuery{
		CandidateID:     r.CandidateID,
		Skills:          trimAll(r.Skills),
		Title:           strings.TrimSpace(r.Title),
		Location:        strings.TrimSpace(r.Location),
		WorkArrangement: model.ParseWorkArrangement(r.WorkType),
		SalaryFloor:     r.SalaryMin,
		ExcludeTerms:    trimAll(r.ExcludeTerms),
	}
}

func trimAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// Signature is a stable hash of everything in q that influences results,
// except the candidate id. Skill and exclusion order do not matter.
func Signature(q *model.CandidateQuery) string {
	skills := make([]string, 0, len(q.Skills))
	for _, s := range q.Skills {
		if n := scoring.NormalizeSkill(s); n != "" {
			skills = append(skills, n)
		}
	}
	sort.Strings(skills)

	excl := make([]string, 0, len(q.ExcludeTerms))
	for _, t := range q.ExcludeTerms {
		excl = append(excl, strings.ToLower(strings.TrimSpace(t)))
	}
	sort.Strings(excl)

	var b strings.Builder
	b.WriteString(strings.Join(skills, ","))
	b.WriteByte('|')
	b.WriteString(strings.ToLower(strings.Join(strings.Fields(q.Title), " ")))
	b.WriteByte('|')
	b.WriteString(strings.ToLower(strings.Join(strings.Fields(q.Location), " ")))
	b.WriteByte('|')
	b.WriteString(string(q.WorkArrangement))
	b.WriteByte('|')
	b.WriteString(strconv.FormatFloat(q.SalaryFloor, 'f', -1, 64))
	b.WriteByte('|')
	b.WriteString(strings.Join(excl, ","))

	return fmt.Sprintf("%016x", xxhash.Sum64String(b.String()))
}

// ─── Response ────────────────────────────────────────────────────────────────

// Scores is the component breakdown of a match.
type Scores struct {
	Semantic        float64 `json:"semantic"`
	Recency         float64 `json:"recency"`
	Liveness        float64 `json:"liveness"`
	Personalization float64 `json:"personalization"`
	Final           float64 `json:"final"`
}

// Match is one posting annotated for display.
type Match struct {
	model.Posting
	MatchScore     int                  `json:"matchScore"`
	MatchTier      model.Tier           `json:"matchTier"`
	FreshnessLabel model.FreshnessLabel `json:"freshnessLabel"`
	DaysOld        int                  `json:"daysOld"`
	SkillMatches   []string             `json:"skillMatches"`
	Scores         Scores               `json:"scores"`
}

// Metadata describes how a response was produced.
type Metadata struct {
	RequestID         string         `json:"requestId"`
	DirectCount       int            `json:"directCount"`
	DiscoveredCount   int            `json:"discoveredCount"`
	DiscoveredTotal   int            `json:"discoveredTotal"`
	SourceCounts      map[string]int `json:"sourceCounts"`
	FailedSources     []string       `json:"failedSources,omitempty"`
	ExecutionTimeMs   int64          `json:"executionTimeMs"`
	Partial           bool           `json:"partial"`
	Message           string         `json:"message,omitempty"`
	LiveSkipped       bool           `json:"liveSkipped"`
	LiveIncomplete    bool           `json:"liveIncomplete"`
	InvalidDropped    int            `json:"invalidDropped"`
	TransformErrors   int            `json:"transformErrors"`
	DuplicatesRemoved int            `json:"duplicatesRemoved"`
	ExcludedByTerms   int            `json:"excludedByTerms"`
	ExpiredExcluded   int            `json:"expiredExcluded"`
	BelowThreshold    int            `json:"belowThreshold"`
	QuerySignature    string         `json:"querySignature"`
}

// Response is the discovery output.
type Response struct {
	Direct     []Match  `json:"direct"`
	Discovered []Match  `json:"discovered"`
	Metadata   Metadata `json:"metadata"`
}

const (
	msgPartial = "Some sources were unavailable or timed out: cached and partial results are shown. " +
		"Retry later to include live discovery results."
	msgLiveCached = "Live discovery results were served from cache."
	msgEmpty      = "No matching jobs found."
)

// MatchScore converts a 0–1 final score into the 0–100 display score.
func MatchScore(final float64) int {
	return int(final*100 + 0.5)
}

func toMatches(ms []model.ScoredMatch) []Match {
	out := make([]Match, 0, len(ms))
	for _, m := range ms {
		skills := m.SkillMatches
		if skills == nil {
			skills = []string{}
		}
		out = append(out, Match{
			Posting:        m.Posting,
			MatchScore:     MatchScore(m.FinalScore),
			MatchTier:      m.Tier,
			FreshnessLabel: m.FreshnessLabel,
			DaysOld:        m.DaysOld,
			SkillMatches:   skills,
			Scores: Scores{
				Semantic:        m.SemanticRelevance,
				Recency:         m.Recency,
				Liveness:        m.Liveness,
				Personalization: m.Personalization,
				Final:           m.FinalScore,
			},
		})
	}
	return out
}
