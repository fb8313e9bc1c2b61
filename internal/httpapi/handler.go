// Package httpapi implements the HTTP handlers of the match service.
//
// Routes:
//
//	POST /discover                       → run a discovery request
//	GET  /search-configs/{id}/discover   → run a saved search (x-user-id header)
//	POST /cache/invalidate               → drop memoized scores and warm marks
//	GET  /health                         → liveness probe
//	GET  /metrics                        → Prometheus exposition
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"jobmate/match-service/internal/discovery"
	"jobmate/match-service/internal/metrics"
)

const maxBodyBytes = 1 << 20

// Service is the part of *discovery.Service used by the handlers.
type Service interface {
	Discover(ctx context.Context, req discovery.Request) (*discovery.Response, error)
	DiscoverSearchConfig(ctx context.Context, userID, configID string, forceLive bool) (*discovery.Response, error)
	InvalidateCandidate(candidateID string) int
	InvalidateQuery(ctx context.Context, req discovery.Request) (string, error)
	FlushQueries(ctx context.Context) error
}

// ─── Handler ─────────────────────────────────────────────────────────────────

// Handler holds shared dependencies.
type Handler struct {
	svc     Service
	log     *zap.Logger
	version string
}

// NewHandler returns a configured Handler.
func NewHandler(svc Service, logger *zap.Logger, version string) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{svc: svc, log: logger.Named("http"), version: version}
}

// Router builds the chi router. httpMetrics and gatherer may be nil, in
// which case request instrumentation and /metrics are left out.
func (h *Handler) Router(httpMetrics *metrics.HTTP, gatherer prometheus.Gatherer) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	if httpMetrics != nil {
		r.Use(httpMetrics.Middleware)
	}

	r.Get("/health", h.health)
	if gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}
	r.Post("/discover", h.discover)
	r.Get("/search-configs/{id}/discover", h.discoverSearchConfig)
	r.Post("/cache/invalidate", h.invalidate)
	return r
}

// ─── Individual handlers ─────────────────────────────────────────────────────

func (h *Handler) health(w http.ResponseWriter, _ *http.Request) {
	jsonOK(w, map[string]string{
		"status":  "ok",
		"service": "match-service",
		"version": h.version,
	})
}

func (h *Handler) discover(w http.ResponseWriter, r *http.Request) {
	var req discovery.Request
	if err := decodeBody(w, r, &req); err != nil {
		jsonError(w, "invalid JSON body: "+err.Error(), http.StatusBadRequest)
		return
	}
	req.CandidateID = r.Header.Get("x-user-id")

	resp, err := h.svc.Discover(r.Context(), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	jsonOK(w, resp)
}

func (h *Handler) discoverSearchConfig(w http.ResponseWriter, r *http.Request) {
	userID := r.Header.Get("x-user-id")
	if userID == "" {
		jsonError(w, "missing x-user-id header", http.StatusUnauthorized)
		return
	}

	forceLive := false
	if v := r.URL.Query().Get("forceLive"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			jsonError(w, "forceLive must be a boolean", http.StatusBadRequest)
			return
		}
		forceLive = b
	}

	resp, err := h.svc.DiscoverSearchConfig(r.Context(), userID, chi.URLParam(r, "id"), forceLive)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	jsonOK(w, resp)
}

// invalidateRequest selects what to forget. An empty body flushes every
// warm mark.
type invalidateRequest struct {
	CandidateID string             `json:"candidateId"`
	Query       *discovery.Request `json:"query"`
	All         bool               `json:"all"`
}

type invalidateResponse struct {
	MemoEntries int    `json:"memoEntries"`
	Signature   string `json:"signature,omitempty"`
	Flushed     bool   `json:"flushed"`
}

func (h *Handler) invalidate(w http.ResponseWriter, r *http.Request) {
	var body invalidateRequest
	if r.ContentLength != 0 {
		if err := decodeBody(w, r, &body); err != nil {
			jsonError(w, "invalid JSON body: "+err.Error(), http.StatusBadRequest)
			return
		}
	}

	var out invalidateResponse
	if body.CandidateID != "" {
		out.MemoEntries = h.svc.InvalidateCandidate(body.CandidateID)
	}
	if body.Query != nil {
		sig, err := h.svc.InvalidateQuery(r.Context(), *body.Query)
		if err != nil {
			h.log.Error("invalidate query", zap.Error(err))
			jsonError(w, "cache error", http.StatusInternalServerError)
			return
		}
		out.Signature = sig
	}
	if body.All || (body.CandidateID == "" && body.Query == nil) {
		if err := h.svc.FlushQueries(r.Context()); err != nil {
			h.log.Error("flush query cache", zap.Error(err))
			jsonError(w, "cache error", http.StatusInternalServerError)
			return
		}
		out.Flushed = true
	}
	jsonOK(w, out)
}

// ─── Helpers ─────────────────────────────────────────────────────────────────

// writeError maps domain errors to HTTP status codes.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var ve *discovery.ValidationError
	switch {
	case errors.As(err, &ve):
		jsonError(w, ve.Msg, http.StatusBadRequest)
	case errors.Is(err, discovery.ErrNotFound):
		jsonError(w, "search config not found", http.StatusNotFound)
	case errors.Is(err, discovery.ErrSourceFatal):
		jsonError(w, "job store unavailable", http.StatusServiceUnavailable)
	case errors.Is(err, context.Canceled):
		h.log.Debug("client went away", zap.String("path", r.URL.Path))
	default:
		h.log.Error("request failed", zap.String("path", r.URL.Path), zap.Error(err))
		jsonError(w, "internal server error", http.StatusInternalServerError)
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func jsonOK(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func jsonError(w http.ResponseWriter, msg string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": msg}) //nolint:errcheck
}
