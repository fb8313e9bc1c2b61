// Package adzuna is a minimal client for the Adzuna job search API.
package adzuna

import (
	"compress/gzip"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/andybalholm/brotli"
	"github.com/mitchellh/mapstructure"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	// Provider is the label stored in external_jobs.source.
	Provider = "adzuna"

	defaultBaseURL  = "https://api.adzuna.com/v1/api/jobs"
	defaultPageSize = 50
	defaultMaxPages = 3
	httpTimeout     = 15 * time.Second
	acceptEncoding  = "gzip, br"
	maxErrorBody    = 512
)

// Config configures a Client. Zero values fall back to defaults.
type Config struct {
	AppID      string
	AppKey     string
	Country    string // "fr", "gb", "us", …
	BaseURL    string
	PageSize   int
	MaxPages   int
	RatePerSec float64 // page requests per second across all searches; <= 0 disables
	HTTPClient *http.Client
}

// Client fetches job listings from Adzuna, page by page.
type Client struct {
	appID    string
	appKey   string
	country  string
	baseURL  string
	pageSize int
	maxPages int
	limiter  *rate.Limiter
	http     *http.Client
	logger   *zap.Logger
}

// New constructs a Client.
func New(cfg Config, logger *zap.Logger) *Client {
	c := &Client{
		appID:    cfg.AppID,
		appKey:   cfg.AppKey,
		country:  cfg.Country,
		baseURL:  cfg.BaseURL,
		pageSize: cfg.PageSize,
		maxPages: cfg.MaxPages,
		http:     cfg.HTTPClient,
		logger:   logger,
	}
	if c.country == "" {
		c.country = "fr"
	}
	if c.baseURL == "" {
		c.baseURL = defaultBaseURL
	}
	if c.pageSize <= 0 {
		c.pageSize = defaultPageSize
	}
	if c.maxPages <= 0 {
		c.maxPages = defaultMaxPages
	}
	if c.http == nil {
		c.http = &http.Client{Timeout: httpTimeout}
	}
	if c.logger == nil {
		c.logger = zap.NewNop()
	}
	if cfg.RatePerSec > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), 1)
	} else {
		c.limiter = rate.NewLimiter(rate.Inf, 1)
	}
	return c
}

// Configured reports whether credentials are present.
func (c *Client) Configured() bool {
	return c.appID != "" && c.appKey != ""
}

// Params are the search parameters of one query.
type Params struct {
	What       string
	Where      string
	MaxDaysOld int
	FullTime   bool
}

// Job mirrors a single Adzuna job listing.
type Job struct {
	ID           string   `json:"id"`
	Title        string   `json:"title"`
	Description  string   `json:"description"`
	Company      Company  `json:"company"`
	Location     Location `json:"location"`
	Category     Category `json:"category"`
	SalaryMin    float64  `json:"salary_min"`
	SalaryMax    float64  `json:"salary_max"`
	RedirectURL  string   `json:"redirect_url"`
	Created      string   `json:"created"`
	ContractTime string   `json:"contract_time"`
	ContractType string   `json:"contract_type"`
}

type Company struct {
	DisplayName string `json:"display_name"`
}

type Location struct {
	DisplayName string   `json:"display_name"`
	Area        []string `json:"area"`
}

type Category struct {
	Label string `json:"label"`
	Tag   string `json:"tag"`
}

// Result accumulates the pages fetched by Search.
type Result struct {
	Jobs []Job
	// DecodeErrors counts records that could not be decoded into a Job.
	DecodeErrors int
	Pages        int
}

// StatusError is returned for a non-2xx provider response.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("adzuna returned %d: %s", e.Code, e.Body)
}

// response mirrors the top-level Adzuna JSON response. Results are kept raw
// so that one malformed record does not fail the whole page.
type response struct {
	Results []map[string]any `json:"results"`
	Count   int              `json:"count"`
}

// Search iterates through pages until a short page, maxPages, or an error.
// On error the returned Result still holds every page completed before it.
func (c *Client) Search(ctx context.Context, p Params) (Result, error) {
	var res Result

	for page := 1; page <= c.maxPages; page++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return res, fmt.Errorf("page %d: rate limit: %w", page, err)
		}

		raw, err := c.fetchPage(ctx, p, page)
		if err != nil {
			return res, fmt.Errorf("page %d: %w", page, err)
		}
		res.Pages++

		jobs, bad := decodeJobs(raw.Results)
		res.Jobs = append(res.Jobs, jobs...)
		res.DecodeErrors += bad

		c.logger.Debug("fetched page",
			zap.Int("page", page), zap.Int("records", len(raw.Results)), zap.Int("count", raw.Count))

		if len(raw.Results) < c.pageSize {
			break
		}
	}

	return res, nil
}

func (c *Client) fetchPage(ctx context.Context, p Params, page int) (*response, error) {
	endpoint := fmt.Sprintf("%s/%s/search/%d", c.baseURL, c.country, page)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, http.NoBody)
	if err != nil {
		return nil, err
	}
	req.URL.RawQuery = c.query(p).Encode()
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Accept-Encoding", acceptEncoding)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http GET: %w", err)
	}
	body, err := decodedBody(resp)
	if err != nil {
		resp.Body.Close()
		return nil, err
	}
	defer body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(body, maxErrorBody))
		return nil, &StatusError{Code: resp.StatusCode, Body: string(snippet)}
	}

	var out response
	if err := json.NewDecoder(body).Decode(&out); err != nil {
		return nil, fmt.Errorf("json decode: %w", err)
	}
	return &out, nil
}

func (c *Client) query(p Params) url.Values {
	q := url.Values{}
	q.Set("app_id", c.appID)
	q.Set("app_key", c.appKey)
	q.Set("results_per_page", strconv.Itoa(c.pageSize))
	q.Set("content-type", "application/json")
	q.Set("sort_by", "date")
	if p.What != "" {
		q.Set("what", p.What)
	}
	if p.Where != "" {
		q.Set("where", p.Where)
	}
	if p.MaxDaysOld > 0 {
		q.Set("max_days_old", strconv.Itoa(p.MaxDaysOld))
	}
	if p.FullTime {
		q.Set("full_time", "1")
	}
	return q
}

// decodedBody unwraps the Content-Encoding we asked for. Setting
// Accept-Encoding by hand turns off the transport's transparent gzip.
// Closing the result closes the decoder and resp.Body.
func decodedBody(resp *http.Response) (io.ReadCloser, error) {
	switch resp.Header.Get("Content-Encoding") {
	case "gzip":
		zr, err := gzip.NewReader(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("gzip reader: %w", err)
		}
		return &decodedReader{Reader: zr, closers: []io.Closer{zr, resp.Body}}, nil
	case "br":
		return &decodedReader{Reader: brotli.NewReader(resp.Body), closers: []io.Closer{resp.Body}}, nil
	default:
		return resp.Body, nil
	}
}

type decodedReader struct {
	io.Reader
	closers []io.Closer
}

func (d *decodedReader) Close() error {
	var errs []error
	for _, c := range d.closers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// decodeJobs converts raw records with mapstructure, reusing the json tags.
// Numeric ids are accepted as strings.
func decodeJobs(records []map[string]any) ([]Job, int) {
	jobs := make([]Job, 0, len(records))
	bad := 0
	for _, rec := range records {
		var j Job
		dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
			Result:           &j,
			TagName:          "json",
			WeaklyTypedInput: true,
		})
		if err != nil {
			bad++
			continue
		}
		if err := dec.Decode(rec); err != nil {
			bad++
			continue
		}
		jobs = append(jobs, j)
	}
	return jobs, bad
}
