// Package server exposes the cache administration endpoints over HTTP.
package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"link-router/internal/cache"
	"link-router/internal/common/errors"
	"link-router/internal/common/logging"
	"link-router/internal/common/ratelimit"
	"link-router/internal/common/validation"
)

// Cache is the part of the Orchestrator the admin surface drives.
type Cache interface {
	Stats(ctx context.Context) cache.Statistics
	InvalidatePattern(ctx context.Context, glob string, opts cache.InvalidateOptions) (int, error)
}

// Dependencies holds what the admin routes need. Only Cache is required.
type Dependencies struct {
	Cache  Cache
	Logger logging.Logger
	// Health reports the Distributed tier connection state.
	Health func() error
	// Warm runs one warming pass on demand.
	Warm func(ctx context.Context) cache.WarmStats
	// Metrics is mounted at MetricsPath when set.
	Metrics     http.Handler
	MetricsPath string
	// RateLimit throttles the write endpoints per client address.
	RateLimit *ratelimit.Limiter
}

type handlers struct {
	deps      Dependencies
	validator *validation.Validator
}

// NewRouter builds the admin router.
func NewRouter(deps Dependencies) http.Handler {
	if deps.Logger == nil {
		deps.Logger = logging.GetGlobalLogger().Named("server")
	}
	h := &handlers{deps: deps, validator: validation.New()}

	r := mux.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(deps.Logger))

	r.HandleFunc("/health", h.health).Methods(http.MethodGet)
	r.HandleFunc("/cache/stats", h.stats).Methods(http.MethodGet)

	limited := rateLimitMiddleware(deps.RateLimit)
	r.Handle("/cache/invalidate", limited(http.HandlerFunc(h.invalidate))).Methods(http.MethodPost)
	if deps.Warm != nil {
		r.Handle("/cache/warm", limited(http.HandlerFunc(h.warm))).Methods(http.MethodPost)
	}
	if deps.Metrics != nil {
		path := deps.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		r.Handle(path, deps.Metrics).Methods(http.MethodGet)
	}
	return r
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	body := map[string]interface{}{"error": err.Error()}
	if t := errors.GetType(err); t != "" {
		body["type"] = t
	}
	writeJSON(w, status, body)
}

func (h *handlers) health(w http.ResponseWriter, r *http.Request) {
	if h.deps.Health != nil {
		if err := h.deps.Health(); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "degraded",
				"error":  err.Error(),
			})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *handlers) stats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.deps.Cache.Stats(r.Context()))
}

type invalidateRequest struct {
	Pattern    string `json:"pattern" validate:"required,max=1024"`
	OnlyMemory bool   `json:"only_memory"`
	BatchSize  int    `json:"batch_size" validate:"gte=0,lte=10000"`
}

type invalidateResponse struct {
	Pattern string `json:"pattern"`
	Removed int    `json:"removed"`
}

func (h *handlers) invalidate(w http.ResponseWriter, r *http.Request) {
	var req invalidateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, errors.ValidationError("invalid request body"))
		return
	}
	if err := h.validator.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	removed, err := h.deps.Cache.InvalidatePattern(r.Context(), req.Pattern, cache.InvalidateOptions{
		OnlyMemory: req.OnlyMemory,
		BatchSize:  req.BatchSize,
	})
	if err != nil {
		status := http.StatusInternalServerError
		if errors.IsType(err, errors.ErrTypeInvalidPattern) {
			status = http.StatusBadRequest
		}
		writeError(w, status, err)
		return
	}

	writeJSON(w, http.StatusOK, invalidateResponse{Pattern: req.Pattern, Removed: removed})
}

type warmResponse struct {
	TotalCandidates int    `json:"total_candidates"`
	CachedCount     int    `json:"cached_count"`
	DurationMs      int64  `json:"duration_ms"`
	Error           string `json:"error,omitempty"`
}

func (h *handlers) warm(w http.ResponseWriter, r *http.Request) {
	stats := h.deps.Warm(r.Context())

	resp := warmResponse{
		TotalCandidates: stats.TotalCandidates,
		CachedCount:     stats.CachedCount,
		DurationMs:      stats.Duration.Round(time.Millisecond).Milliseconds(),
	}
	status := http.StatusOK
	if stats.Err != nil {
		resp.Error = stats.Err.Error()
		status = http.StatusBadGateway
	}
	writeJSON(w, status, resp)
}
