// Package api exposes the HTTP interface for the discovery service.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/tafuta/tafuta/internal/config"
	"github.com/tafuta/tafuta/internal/discovery"
	"github.com/tafuta/tafuta/internal/metrics"
)

// DiscoveryService is the surface of the discovery orchestrator the HTTP
// layer depends on.
type DiscoveryService interface {
	Discover(ctx context.Context, opts discovery.Options) (*discovery.Result, error)
	AccountPosts(ctx context.Context, handle string, limit int) ([]discovery.Post, error)
	Stats(ctx context.Context) *discovery.StatsReport
	Clear(ctx context.Context) error
}

// Server wires HTTP handlers to the discovery service.
type Server struct {
	router chi.Router
	svc    DiscoveryService
	cfg    config.Config
	logger *zap.Logger
}

// NewServer constructs a Server with middleware and routes. Probe and metrics
// endpoints stay open; the /v1 API is behind the key when auth is enabled.
func NewServer(svc DiscoveryService, cfg config.Config, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		svc:    svc,
		cfg:    cfg,
		logger: logger,
	}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(logger))
	r.Use(recoverMiddleware(logger))
	r.Use(timeoutMiddleware(cfg.ServerTimeout()))
	r.Use(metrics.Middleware)

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		if cfg.Auth.Enabled {
			r.Use(apiKeyMiddleware(cfg.Auth.APIKey))
		}
		r.Post("/discover", s.discover)
		r.Post("/accounts/{handle}/posts", s.accountPosts)
		r.Get("/stats", s.stats)
		r.Post("/cache/clear", s.clearCache)
	})

	s.router = r
	return s
}

// Handler returns the router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

var (
	errInvalidRate      = errors.New("explorationRate must be within [0, 1]")
	errInvalidFreshness = errors.New(`freshness must be "any" or "recent"`)
)

type discoverRequest struct {
	Limit           int      `json:"limit"`
	ExplorationRate *float64 `json:"explorationRate"`
	Tags            []string `json:"tags"`
	Freshness       string   `json:"freshness"`
}

func (s *Server) discover(w http.ResponseWriter, r *http.Request) {
	var req discoverRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON")
			return
		}
	}
	opts, err := s.toOptions(req)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	res, err := s.svc.Discover(r.Context(), opts)
	if err != nil {
		s.logger.Error("discovery failed", zap.Error(err))
		writeError(w, http.StatusBadGateway, "discovery failed")
		return
	}
	writeJSON(w, http.StatusOK, discoverResponse{Result: res, Timestamp: time.Now().UTC()})
}

// discoverResponse is the HTTP shape: the discovery result plus a server
// timestamp.
type discoverResponse struct {
	*discovery.Result
	Timestamp time.Time `json:"timestamp"`
}

func (s *Server) toOptions(req discoverRequest) (discovery.Options, error) {
	opts := discovery.Options{
		Limit: req.Limit,
		Tags:  req.Tags,
	}
	if req.ExplorationRate != nil {
		if *req.ExplorationRate < 0 || *req.ExplorationRate > 1 {
			return discovery.Options{}, errInvalidRate
		}
		opts.ExplorationRate = *req.ExplorationRate
	} else {
		opts.ExplorationRate = s.cfg.Discovery.ExplorationRate
	}
	switch req.Freshness {
	case "", string(discovery.FreshnessAny):
		opts.Freshness = discovery.FreshnessAny
	case string(discovery.FreshnessRecent):
		opts.Freshness = discovery.FreshnessRecent
	default:
		return discovery.Options{}, errInvalidFreshness
	}
	return opts, nil
}

type accountPostsRequest struct {
	Limit int `json:"limit"`
}

func (s *Server) accountPosts(w http.ResponseWriter, r *http.Request) {
	handle := chi.URLParam(r, "handle")
	if handle == "" {
		writeError(w, http.StatusBadRequest, "missing handle")
		return
	}

	var req accountPostsRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON")
			return
		}
	}

	posts, err := s.svc.AccountPosts(r.Context(), handle, req.Limit)
	if err != nil {
		writeError(w, http.StatusNotFound, "account not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"handle": handle,
		"posts":  posts,
	})
}

func (s *Server) stats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.svc.Stats(r.Context()))
}

func (s *Server) clearCache(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.Clear(r.Context()); err != nil {
		s.logger.Error("cache clear failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "cache clear failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "cleared"})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		zap.L().Error("write JSON failed", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
