package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"jobmate/match-service/internal/db"
	"jobmate/match-service/internal/discovery"
	"jobmate/match-service/internal/fingerprint"
	"jobmate/match-service/internal/model"
	"jobmate/match-service/internal/querycache"
	"jobmate/match-service/internal/store"
	"jobmate/match-service/internal/store/memstore"
)

type discoverOptions struct {
	candidate    string
	searchConfig string
	userID       string
	postings     string
	forceLive    bool
}

func newDiscoverCmd(root *rootOptions) *cobra.Command {
	opts := &discoverOptions{}
	cmd := &cobra.Command{
		Use:   "discover",
		Short: "Run one discovery request and print the JSON response",
		Long: `Run one discovery request described by a YAML candidate file, or run a
saved search config with --search-config and --user.

Postings come from DATABASE_URL when set, otherwise from the --postings
fixture file. Live discovery runs when Adzuna credentials are configured.`,
		Example: `  match-service discover --candidate candidate.yaml --postings postings.yaml`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := root.load()
			if err != nil {
				return err
			}
			defer log.Sync() //nolint:errcheck

			if (opts.candidate == "") == (opts.searchConfig == "") {
				return errors.New("exactly one of --candidate or --search-config is required")
			}

			ctx := cmd.Context()
			var st matchStore
			switch {
			case cfg.DatabaseURL != "":
				pool, err := db.NewPostgresPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns)
				if err != nil {
					return fmt.Errorf("postgres: %w", err)
				}
				defer pool.Close()
				st = store.NewPostgres(pool)
			case opts.postings != "":
				ms, err := readFixtures(opts.postings)
				if err != nil {
					return err
				}
				st = ms
			default:
				return errors.New("either DATABASE_URL or --postings is required")
			}

			p := buildPipeline(cfg, st, querycache.NewMemory(cfg.QueryCacheTTL), log, nil)
			defer p.writer.Close()

			var resp *discovery.Response
			if opts.searchConfig != "" {
				resp, err = p.svc.DiscoverSearchConfig(ctx, opts.userID, opts.searchConfig, opts.forceLive)
			} else {
				var req discovery.Request
				if req, err = readCandidate(opts.candidate); err != nil {
					return err
				}
				req.ForceLive = req.ForceLive || opts.forceLive
				resp, err = p.svc.Discover(ctx, req)
			}
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), resp)
		},
	}
	cmd.Flags().StringVar(&opts.candidate, "candidate", "", "YAML file with the discovery request")
	cmd.Flags().StringVar(&opts.searchConfig, "search-config", "", "run a saved search config instead of a candidate file")
	cmd.Flags().StringVar(&opts.userID, "user", "", "owner of --search-config")
	cmd.Flags().StringVar(&opts.postings, "postings", "", "YAML fixture of internal and external postings, used without a database")
	cmd.Flags().BoolVar(&opts.forceLive, "force-live", false, "query the live source even for warm queries")
	cmd.MarkFlagsMutuallyExclusive("candidate", "search-config")
	return cmd
}

func writeJSON(w io.Writer, resp *discovery.Response) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(resp)
}

func readCandidate(path string) (discovery.Request, error) {
	var req discovery.Request
	if err := decodeYAMLFile(path, &req); err != nil {
		return req, fmt.Errorf("candidate file: %w", err)
	}
	return req, nil
}

// ─── Fixtures ────────────────────────────────────────────────────────────────

type fixtureFile struct {
	Internal []fixturePosting `yaml:"internal"`
	External []fixturePosting `yaml:"external"`
	Configs  []fixtureConfig  `yaml:"searchConfigs"`
}

type fixturePosting struct {
	ID          string     `yaml:"id"`
	ExternalID  string     `yaml:"externalId"`
	Provider    string     `yaml:"provider"`
	Title       string     `yaml:"title"`
	Company     string     `yaml:"company"`
	Description string     `yaml:"description"`
	Skills      []string   `yaml:"skills"`
	Location    string     `yaml:"location"`
	WorkType    string     `yaml:"workType"`
	SalaryMin   float64    `yaml:"salaryMin"`
	SalaryMax   float64    `yaml:"salaryMax"`
	ApplyURL    string     `yaml:"applyUrl"`
	PostedDate  time.Time  `yaml:"postedDate"`
	ExpiresAt   *time.Time `yaml:"expiresAt"`
	TrustScore  int        `yaml:"trustScore"`
	Liveness    string     `yaml:"liveness"`
}

func (f fixturePosting) posting(src model.Source) model.Posting {
	p := model.Posting{
		ID:              f.ID,
		ExternalID:      f.ExternalID,
		Provider:        f.Provider,
		Title:           f.Title,
		Company:         f.Company,
		Description:     f.Description,
		Skills:          f.Skills,
		Location:        f.Location,
		WorkArrangement: model.ParseWorkArrangement(f.WorkType),
		SalaryMin:       f.SalaryMin,
		SalaryMax:       f.SalaryMax,
		ApplyURL:        f.ApplyURL,
		PostedDate:      f.PostedDate,
		ExpiresAt:       f.ExpiresAt,
		Source:          src,
		TrustScore:      f.TrustScore,
		Liveness:        model.ParseLiveness(f.Liveness),
	}
	if src == model.SourceInternal {
		if p.TrustScore == 0 {
			p.TrustScore = 100
		}
		if f.Liveness == "" {
			p.Liveness = model.LivenessActive
		}
	}
	return p
}

type fixtureConfig struct {
	ID           string   `yaml:"id"`
	UserID       string   `yaml:"userId"`
	JobTitles    []string `yaml:"jobTitles"`
	Locations    []string `yaml:"locations"`
	RemotePolicy string   `yaml:"remotePolicy"`
	Keywords     []string `yaml:"keywords"`
	RedFlags     []string `yaml:"redFlags"`
}

// readFixtures loads a fixture file into a memstore.
func readFixtures(path string) (*memstore.Store, error) {
	var f fixtureFile
	if err := decodeYAMLFile(path, &f); err != nil {
		return nil, fmt.Errorf("postings file: %w", err)
	}

	ms := memstore.New()
	for _, fp := range f.Internal {
		ms.AddInternal(fp.posting(model.SourceInternal))
	}
	for _, fp := range f.External {
		p := fp.posting(model.SourceCachedExternal)
		if p.Provider == "" {
			p.Provider = "fixture"
		}
		ms.AddExternal(fingerprint.Of(&p), p)
	}
	for _, c := range f.Configs {
		ms.AddConfigs(model.SearchConfig{
			ID: c.ID, UserID: c.UserID, JobTitles: c.JobTitles, Locations: c.Locations,
			RemotePolicy: c.RemotePolicy, Keywords: c.Keywords, RedFlags: c.RedFlags,
		})
	}
	return ms, nil
}

func decodeYAMLFile(path string, v any) error {
	fh, err := os.Open(path)
	if err != nil {
		return err
	}
	defer fh.Close()

	dec := yaml.NewDecoder(fh)
	dec.KnownFields(true)
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}
