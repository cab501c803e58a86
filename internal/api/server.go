// Package api exposes the HTTP interface for the rank tracker.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/ranklens/ranklens/internal/config"
	"github.com/ranklens/ranklens/internal/metrics"
	"github.com/ranklens/ranklens/internal/middleware"
	"github.com/ranklens/ranklens/internal/tracker"
)

// Refresher runs a refresh batch. Satisfied by refresh.Orchestrator.
type Refresher interface {
	RefreshBatch(ctx context.Context, keywords []tracker.Keyword, settings tracker.Settings) ([]tracker.Keyword, error)
}

// Server wires HTTP handlers to the stores and the refresh orchestrator.
type Server struct {
	router    chi.Router
	keywords  tracker.KeywordStore
	domains   tracker.DomainStore
	refresher Refresher
	settings  tracker.Settings
	logger    *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(
	keywords tracker.KeywordStore,
	domains tracker.DomainStore,
	refresher Refresher,
	settings tracker.Settings,
	cfg config.Config,
	logger *zap.Logger,
) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		keywords:  keywords,
		domains:   domains,
		refresher: refresher,
		settings:  settings,
		logger:    logger,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logging(logger))
	r.Use(middleware.Metrics)
	r.Use(middleware.Recover(logger))

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		if cfg.APIKey != "" {
			r.Use(middleware.APIKey(cfg.APIKey))
		}
		r.Get("/domains", s.listDomains)
		r.Route("/domains/{domain}", func(r chi.Router) {
			r.Get("/", s.getDomain)
			r.Get("/keywords", s.listKeywords)
		})
		r.Get("/keywords/{id}", s.getKeyword)
		r.Post("/refresh", s.refresh)
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

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	// The store is the only downstream; a cheap query proves it answers.
	if _, err := s.domains.ListDomains(r.Context()); err != nil {
		writeError(w, http.StatusServiceUnavailable, "store unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) listDomains(w http.ResponseWriter, r *http.Request) {
	domains, err := s.domains.ListDomains(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list domains")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"domains": domains})
}

func (s *Server) getDomain(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "domain")
	d, err := s.domains.GetDomain(r.Context(), name)
	if err != nil {
		if errors.Is(err, tracker.ErrDomainNotFound) {
			writeError(w, http.StatusNotFound, "domain not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to load domain")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"domain": d})
}

func (s *Server) listKeywords(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "domain")
	if _, err := s.domains.GetDomain(r.Context(), name); err != nil {
		if errors.Is(err, tracker.ErrDomainNotFound) {
			writeError(w, http.StatusNotFound, "domain not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to load domain")
		return
	}
	keywords, err := s.keywords.ListKeywords(r.Context(), name)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list keywords")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"keywords": keywords})
}

func (s *Server) getKeyword(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid keyword id")
		return
	}
	k, err := s.keywords.GetKeyword(r.Context(), id)
	if err != nil {
		if errors.Is(err, tracker.ErrKeywordNotFound) {
			writeError(w, http.StatusNotFound, "keyword not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to load keyword")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"keyword": k})
}

type refreshRequest struct {
	IDs    []int64 `json:"ids"`
	Domain string  `json:"domain"`
}

// refresh re-scrapes the requested keywords synchronously and returns
// their post-refresh state. Either an explicit id list or a whole
// domain may be requested, not both.
func (s *Server) refresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if (len(req.IDs) == 0) == (req.Domain == "") {
		writeError(w, http.StatusBadRequest, "exactly one of ids or domain required")
		return
	}

	var (
		keywords []tracker.Keyword
		err      error
	)
	if req.Domain != "" {
		keywords, err = s.keywords.ListKeywords(r.Context(), req.Domain)
	} else {
		keywords, err = s.keywords.ListKeywordsByIDs(r.Context(), req.IDs)
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load keywords")
		return
	}
	if len(keywords) == 0 {
		writeError(w, http.StatusNotFound, "no keywords matched")
		return
	}

	updated, err := s.refresher.RefreshBatch(r.Context(), keywords, s.settings)
	if err != nil {
		if errors.Is(err, tracker.ErrDomainNotFound) {
			writeError(w, http.StatusNotFound, "domain not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "refresh failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"keywords": updated})
}

func parseID(raw string) (int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, errors.New("invalid id")
	}
	return id, nil
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
