package source

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"jobmate/match-service/internal/model"
	"jobmate/match-service/internal/source/adzuna"
)

// Provider is a paginated keyword search API. *adzuna.Client implements it.
type Provider interface {
	Configured() bool
	Search(ctx context.Context, p adzuna.Params) (adzuna.Result, error)
}

// LiveConfig tunes the live source.
type LiveConfig struct {
	// Timeout bounds the whole paginated call; in-flight I/O is cancelled
	// when it elapses.
	Timeout      time.Duration
	WindowDays   int
	DefaultTrust int
}

// Live queries the discovery provider for fresh postings. It never returns
// an error: failures surface as Batch.Incomplete with whatever pages
// completed.
type Live struct {
	provider Provider
	cfg      LiveConfig
	logger   *zap.Logger
}

// NewLive returns a Live source.
func NewLive(p Provider, cfg LiveConfig, logger *zap.Logger) *Live {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Live{provider: p, cfg: cfg, logger: logger}
}

func (s *Live) Source() model.Source { return model.SourceLiveDiscovery }

// maxWhatSkills caps the skills used as search keywords when the query has
// no title; the provider ANDs every word.
const maxWhatSkills = 3

// Fetch runs one paginated search under the configured timeout.
func (s *Live) Fetch(ctx context.Context, q *model.CandidateQuery, now time.Time) (Batch, error) {
	if !s.provider.Configured() {
		s.logger.Warn("ADZUNA_APP_ID / ADZUNA_APP_KEY not set, skipping live discovery")
		return Batch{Incomplete: true}, nil
	}

	params := s.params(q)
	if params.What == "" && params.Where == "" {
		return Batch{}, nil
	}

	if s.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.Timeout)
		defer cancel()
	}

	res, err := s.provider.Search(ctx, params)
	b := Batch{TransformErrors: res.DecodeErrors}
	if err != nil {
		b.Incomplete = true
		s.logger.Warn("live discovery incomplete",
			zap.Error(err),
			zap.Bool("timeout", errors.Is(err, context.DeadlineExceeded)),
			zap.Int("pages", res.Pages),
			zap.Int("records", len(res.Jobs)))
	}

	for _, j := range res.Jobs {
		p, ok := s.transform(j, q)
		if !ok {
			b.TransformErrors++
			continue
		}
		b.Postings = append(b.Postings, p)
	}
	return b, nil
}

func (s *Live) params(q *model.CandidateQuery) adzuna.Params {
	p := adzuna.Params{What: strings.TrimSpace(q.Title), MaxDaysOld: s.cfg.WindowDays}
	if p.What == "" {
		skills := q.Skills
		if len(skills) > maxWhatSkills {
			skills = skills[:maxWhatSkills]
		}
		p.What = strings.TrimSpace(strings.Join(skills, " "))
	}
	if loc := strings.TrimSpace(q.Location); !strings.EqualFold(loc, "remote") {
		p.Where = loc
	}
	return p
}

var createdLayouts = []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02"}

func parseCreated(s string) (time.Time, bool) {
	for _, layout := range createdLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

// transform normalizes a provider record into a Posting. Records without
// an id or a parseable creation date are rejected.
func (s *Live) transform(j adzuna.Job, q *model.CandidateQuery) (model.Posting, bool) {
	id := strings.TrimSpace(j.ID)
	if id == "" {
		return model.Posting{}, false
	}
	posted, ok := parseCreated(strings.TrimSpace(j.Created))
	if !ok {
		return model.Posting{}, false
	}

	title := StripMarkup(j.Title)
	desc := StripMarkup(j.Description)
	location := NormalizeLocation(j.Location.DisplayName)
	if location == "" && len(j.Location.Area) > 0 {
		location = NormalizeLocation(j.Location.Area[len(j.Location.Area)-1])
	}

	return model.Posting{
		ExternalID:      id,
		Provider:        adzuna.Provider,
		Title:           title,
		Company:         strings.TrimSpace(j.Company.DisplayName),
		Description:     desc,
		Skills:          ExtractSkills(title+"\n"+desc, q.Skills),
		Requirements:    ExtractRequirements(desc),
		Location:        location,
		WorkArrangement: DetectWorkArrangement(title, desc, location),
		SalaryMin:       j.SalaryMin,
		SalaryMax:       j.SalaryMax,
		ApplyURL:        j.RedirectURL,
		PostedDate:      posted,
		Source:          model.SourceLiveDiscovery,
		TrustScore:      s.cfg.DefaultTrust,
		Liveness:        model.LivenessActive,
	}, true
}
