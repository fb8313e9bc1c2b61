package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"jobmate/match-service/internal/model"
)

// ─── Postgres ────────────────────────────────────────────────────────────────

// Postgres implements every repository interface of the service on a pgx pool.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres returns a Postgres store backed by pool.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

// skillOverlapSQL is the SQL rendition of SkillOverlap. $n is a text[] of
// already normalized candidate skills; an empty array disables the filter.
const skillOverlapSQL = `(cardinality(%[1]s::text[]) = 0 OR EXISTS (
	SELECT 1
	FROM unnest(%[2]s) AS ps(skill), unnest(%[1]s::text[]) AS cs(skill)
	WHERE regexp_replace(lower(ps.skill), '[^a-z0-9+#]', '', 'g') <> ''
	  AND (strpos(regexp_replace(lower(ps.skill), '[^a-z0-9+#]', '', 'g'), cs.skill) > 0
	    OR strpos(cs.skill, regexp_replace(lower(ps.skill), '[^a-z0-9+#]', '', 'g')) > 0)))`

// ─── Row scanning ────────────────────────────────────────────────────────────

// errMalformedRow marks a row lacking a column a posting cannot do without.
var errMalformedRow = errors.New("malformed row")

// rowScanner is the part of pgx.Rows the posting readers use.
type rowScanner interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}

// postingRow is a scan target convertible into a posting.
type postingRow interface {
	targets() []any
	posting() (model.Posting, error)
}

// collectPostings scans every row into R. pgx aborts the result set on a
// scan error, so nullable columns are coalesced or scanned into pointers
// and rows that do not convert are skipped and counted instead.
func collectPostings[R any, P interface {
	*R
	postingRow
}](rows rowScanner) ([]model.Posting, int, error) {
	postings := make([]model.Posting, 0)
	skipped := 0
	for rows.Next() {
		var r R
		if err := rows.Scan(P(&r).targets()...); err != nil {
			return nil, skipped, err
		}
		p, err := P(&r).posting()
		if err != nil {
			skipped++
			continue
		}
		postings = append(postings, p)
	}
	if err := rows.Err(); err != nil {
		return nil, skipped, err
	}
	return postings, skipped, nil
}

func blank(s string) bool { return strings.TrimSpace(s) == "" }

// ─── Internal postings ───────────────────────────────────────────────────────

// ListInternal returns active, unexpired employer postings whose employer is
// active, newest first, and the number of malformed rows skipped.
func (s *Postgres) ListInternal(ctx context.Context, f Filter) ([]model.Posting, int, error) {
	query := `
		SELECT j.id::text, COALESCE(j.title, ''), COALESCE(e.name, ''), COALESCE(j.description, ''),
		       COALESCE(j.skills, '{}'), COALESCE(j.requirements, '{}'),
		       COALESCE(j.location, ''), COALESCE(j.work_type, ''),
		       COALESCE(j.salary_min, 0), COALESCE(j.salary_max, 0),
		       j.created_at, j.expires_at
		FROM jobs j
		JOIN employers e ON e.id = j.employer_id
		WHERE e.is_active = true
		  AND j.status = 'ACTIVE'
		  AND j.expires_at > $2
		  AND ` + fmt.Sprintf(skillOverlapSQL, "$1", "COALESCE(j.skills, '{}')") + `
		ORDER BY j.created_at DESC
		LIMIT $3`

	rows, err := s.pool.Query(ctx, query, f.NormalizedSkills(), nowOr(f.Now), limitOr(f.Limit))
	if err != nil {
		return nil, 0, fmt.Errorf("listInternal query: %w", err)
	}
	defer rows.Close()

	postings, skipped, err := collectPostings[internalRow](rows)
	if err != nil {
		return nil, skipped, fmt.Errorf("listInternal scan: %w", err)
	}
	return postings, skipped, nil
}

type internalRow struct {
	ID, Title, Company, Description string
	Skills, Requirements            []string
	Location, WorkType              string
	SalaryMin, SalaryMax            float64
	CreatedAt                       *time.Time
	ExpiresAt                       *time.Time
}

func (r *internalRow) targets() []any {
	return []any{
		&r.ID, &r.Title, &r.Company, &r.Description,
		&r.Skills, &r.Requirements,
		&r.Location, &r.WorkType,
		&r.SalaryMin, &r.SalaryMax,
		&r.CreatedAt, &r.ExpiresAt,
	}
}

// Internal postings are first-party: full trust, liveness known by status.
func (r *internalRow) posting() (model.Posting, error) {
	if blank(r.ID) || blank(r.Title) || blank(r.Company) || r.CreatedAt == nil {
		return model.Posting{}, fmt.Errorf("%w: job %q", errMalformedRow, r.ID)
	}
	return model.Posting{
		ID:              r.ID,
		Title:           r.Title,
		Company:         r.Company,
		Description:     r.Description,
		Skills:          r.Skills,
		Requirements:    r.Requirements,
		Location:        r.Location,
		WorkArrangement: model.ParseWorkArrangement(r.WorkType),
		SalaryMin:       r.SalaryMin,
		SalaryMax:       r.SalaryMax,
		PostedDate:      *r.CreatedAt,
		ExpiresAt:       r.ExpiresAt,
		Source:          model.SourceInternal,
		TrustScore:      100,
		Liveness:        model.LivenessActive,
	}, nil
}

// ─── External postings ───────────────────────────────────────────────────────

// ListExternal returns cached external postings published after
// f.PostedAfter, newest first, and the number of malformed rows skipped.
func (s *Postgres) ListExternal(ctx context.Context, f Filter) ([]model.Posting, int, error) {
	query := `
		SELECT id::text, COALESCE(external_id, ''), COALESCE(source, ''),
		       COALESCE(title, ''), COALESCE(company, ''), COALESCE(description, ''),
		       COALESCE(skills, '{}'), COALESCE(requirements, '{}'),
		       COALESCE(location, ''), COALESCE(work_type, ''),
		       COALESCE(salary_min, 0), COALESCE(salary_max, 0), COALESCE(apply_url, ''),
		       posted_date, COALESCE(trust_score, 0), COALESCE(liveness_status, 'unknown')
		FROM external_jobs
		WHERE posted_date >= $2
		  AND ` + fmt.Sprintf(skillOverlapSQL, "$1", "COALESCE(skills, '{}')") + `
		ORDER BY posted_date DESC
		LIMIT $3`

	rows, err := s.pool.Query(ctx, query, f.NormalizedSkills(), f.PostedAfter, limitOr(f.Limit))
	if err != nil {
		return nil, 0, fmt.Errorf("listExternal query: %w", err)
	}
	defer rows.Close()

	postings, skipped, err := collectPostings[externalRow](rows)
	if err != nil {
		return nil, skipped, fmt.Errorf("listExternal scan: %w", err)
	}
	return postings, skipped, nil
}

type externalRow struct {
	ID, ExternalID, Provider, Title, Company, Description string
	Skills, Requirements                                  []string
	Location, WorkType                                    string
	SalaryMin, SalaryMax                                  float64
	ApplyURL                                              string
	PostedDate                                            *time.Time
	TrustScore                                            int
	Liveness                                              string
}

func (r *externalRow) targets() []any {
	return []any{
		&r.ID, &r.ExternalID, &r.Provider, &r.Title, &r.Company, &r.Description,
		&r.Skills, &r.Requirements,
		&r.Location, &r.WorkType,
		&r.SalaryMin, &r.SalaryMax, &r.ApplyURL,
		&r.PostedDate, &r.TrustScore, &r.Liveness,
	}
}

func (r *externalRow) posting() (model.Posting, error) {
	if blank(r.ExternalID) || blank(r.Provider) || blank(r.Title) || blank(r.Company) || r.PostedDate == nil {
		return model.Posting{}, fmt.Errorf("%w: external job %q", errMalformedRow, r.ID)
	}
	return model.Posting{
		ID:              r.ID,
		ExternalID:      r.ExternalID,
		Provider:        r.Provider,
		Title:           r.Title,
		Company:         r.Company,
		Description:     r.Description,
		Skills:          r.Skills,
		Requirements:    r.Requirements,
		Location:        r.Location,
		WorkArrangement: model.ParseWorkArrangement(r.WorkType),
		SalaryMin:       r.SalaryMin,
		SalaryMax:       r.SalaryMax,
		ApplyURL:        r.ApplyURL,
		PostedDate:      *r.PostedDate,
		Source:          model.SourceCachedExternal,
		TrustScore:      r.TrustScore,
		Liveness:        model.ParseLiveness(r.Liveness),
	}, nil
}

// KnownFingerprints returns the subset of fps already present in
// external_jobs.
func (s *Postgres) KnownFingerprints(ctx context.Context, fps []string) (map[string]bool, error) {
	known := make(map[string]bool)
	if len(fps) == 0 {
		return known, nil
	}

	rows, err := s.pool.Query(ctx,
		`SELECT DISTINCT fingerprint FROM external_jobs WHERE fingerprint = ANY($1)`, fps)
	if err != nil {
		return nil, fmt.Errorf("knownFingerprints query: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var fp string
		if err := rows.Scan(&fp); err != nil {
			return nil, fmt.Errorf("knownFingerprints scan: %w", err)
		}
		known[fp] = true
	}
	return known, rows.Err()
}

// UpsertExternal inserts or refreshes a discovered posting keyed by
// (external_id, source). Trust and liveness are owned by the liveness
// checker and are only set on insert.
func (s *Postgres) UpsertExternal(ctx context.Context, p model.Posting, fingerprint string) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO external_jobs (
		   external_id, source, fingerprint, title, company, description,
		   skills, requirements, location, work_type, salary_min, salary_max,
		   apply_url, posted_date, trust_score, liveness_status, fetched_at, updated_at
		 ) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, NOW(), NOW())
		 ON CONFLICT (external_id, source) DO UPDATE SET
		   fingerprint  = EXCLUDED.fingerprint,
		   title        = EXCLUDED.title,
		   company      = EXCLUDED.company,
		   description  = EXCLUDED.description,
		   skills       = EXCLUDED.skills,
		   requirements = EXCLUDED.requirements,
		   location     = EXCLUDED.location,
		   work_type    = EXCLUDED.work_type,
		   salary_min   = EXCLUDED.salary_min,
		   salary_max   = EXCLUDED.salary_max,
		   apply_url    = EXCLUDED.apply_url,
		   posted_date  = EXCLUDED.posted_date,
		   updated_at   = NOW()`,
		p.ExternalID, p.Provider, fingerprint, p.Title, p.Company, p.Description,
		nonNil(p.Skills), nonNil(p.Requirements), p.Location, string(p.WorkArrangement),
		p.SalaryMin, p.SalaryMax, p.ApplyURL, p.PostedDate, p.TrustScore, string(p.Liveness),
	)
	if err != nil {
		return fmt.Errorf("upsertExternal %s:%s: %w", p.Provider, p.ExternalID, err)
	}
	return nil
}

// PurgeExternal deletes external postings published before cutoff and
// returns the number of rows removed.
func (s *Postgres) PurgeExternal(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM external_jobs WHERE posted_date < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("purgeExternal: %w", err)
	}
	return tag.RowsAffected(), nil
}

// ─── Search configs ──────────────────────────────────────────────────────────

const searchConfigColumns = `id::text, user_id::text, job_titles, locations, COALESCE(remote_policy, ''),
	COALESCE(keywords, '{}'), COALESCE(red_flags, '{}'), salary_min, salary_max`

// LoadActiveConfigs fetches all is_active = true search configs.
func (s *Postgres) LoadActiveConfigs(ctx context.Context) ([]model.SearchConfig, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+searchConfigColumns+` FROM search_configs WHERE is_active = true`)
	if err != nil {
		return nil, fmt.Errorf("query search_configs: %w", err)
	}
	defer rows.Close()

	var configs []model.SearchConfig
	for rows.Next() {
		c, err := scanSearchConfig(rows)
		if err != nil {
			return nil, err
		}
		configs = append(configs, c)
	}
	return configs, rows.Err()
}

// LoadSearchConfig returns one search config owned by userID.
// Returns ErrNotFound if it does not exist or belongs to someone else.
func (s *Postgres) LoadSearchConfig(ctx context.Context, userID, id string) (*model.SearchConfig, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+searchConfigColumns+` FROM search_configs WHERE id::text = $1 AND user_id::text = $2`,
		id, userID)
	c, err := scanSearchConfig(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func scanSearchConfig(row pgx.Row) (model.SearchConfig, error) {
	var c model.SearchConfig
	if err := row.Scan(
		&c.ID, &c.UserID, &c.JobTitles, &c.Locations,
		&c.RemotePolicy, &c.Keywords, &c.RedFlags,
		&c.SalaryMin, &c.SalaryMax,
	); err != nil {
		return c, fmt.Errorf("scan search_config: %w", err)
	}
	return c, nil
}

const defaultLimit = 500

func limitOr(n int) int {
	if n <= 0 {
		return defaultLimit
	}
	return n
}

func nowOr(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now()
	}
	return t
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
