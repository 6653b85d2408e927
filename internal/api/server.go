// Package api serves the read/control surface over HTTP. Routing is
// gorilla/mux; all domain work is delegated to the monitor service.
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/evford/tickerwatch/internal/model"
	"github.com/evford/tickerwatch/internal/monitor"
	"github.com/evford/tickerwatch/internal/xapi"
)

// Server routes HTTP requests onto the monitor service.
type Server struct {
	svc     *monitor.Service
	version string
}

// NewServer creates a Server for svc.
func NewServer(svc *monitor.Service, version string) *Server {
	return &Server{svc: svc, version: version}
}

// Router builds the full route table under /api/v1.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/", s.handleRoot).Methods(http.MethodGet)

	v1 := r.PathPrefix("/api/v1").Subrouter()
	v1.HandleFunc("/topics", s.handleListTopics).Methods(http.MethodGet)
	v1.HandleFunc("/topics", s.handleCreateTopic).Methods(http.MethodPost)
	v1.HandleFunc("/topics/{id}", s.handleGetTopic).Methods(http.MethodGet)
	v1.HandleFunc("/topics/{id}", s.handleDeleteTopic).Methods(http.MethodDelete)
	v1.HandleFunc("/topics/{id}/pause", s.handlePauseTopic).Methods(http.MethodPost)
	v1.HandleFunc("/topics/{id}/resume", s.handleResumeTopic).Methods(http.MethodPost)
	v1.HandleFunc("/topics/{id}/resolution", s.handleSetResolution).Methods(http.MethodPatch)
	v1.HandleFunc("/topics/{id}/bars", s.handleGetBars).Methods(http.MethodGet)
	v1.HandleFunc("/topics/{id}/bars/latest", s.handleLatestBar).Methods(http.MethodGet)
	v1.HandleFunc("/topics/{id}/poll", s.handlePollTopic).Methods(http.MethodPost)
	v1.HandleFunc("/topics/{id}/digest", s.handleDigest).Methods(http.MethodPost)
	v1.HandleFunc("/poll", s.handlePollAll).Methods(http.MethodPost)
	v1.HandleFunc("/resolutions", s.handleResolutions).Methods(http.MethodGet)
	v1.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	return r
}

type errorPayload struct {
	Code   string `json:"code"`
	Detail string `json:"detail"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("write response failed", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, code, detail string) {
	writeJSON(w, status, errorPayload{Code: code, Detail: detail})
}

// writeServiceError maps domain errors onto HTTP statuses with stable
// machine codes.
func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, monitor.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, monitor.ErrConflict):
		writeError(w, http.StatusConflict, "conflict", err.Error())
	case errors.Is(err, monitor.ErrInvalidResolution):
		writeError(w, http.StatusBadRequest, "invalid_resolution", err.Error())
	case errors.Is(err, monitor.ErrInvalidTopic):
		writeError(w, http.StatusBadRequest, "invalid_topic", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal", err.Error())
	}
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"service": "tickerwatch",
		"version": s.version,
	})
}

func (s *Server) handleListTopics(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.svc.ListTopics())
}

func (s *Server) handleCreateTopic(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Label      string `json:"label"`
		Query      string `json:"query"`
		Resolution string `json:"resolution"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", err.Error())
		return
	}
	topic, err := s.svc.CreateTopic(r.Context(), req.Label, req.Query, req.Resolution)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, topic)
}

func (s *Server) handleGetTopic(w http.ResponseWriter, r *http.Request) {
	topic, err := s.svc.GetTopic(mux.Vars(r)["id"])
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, topic)
}

func (s *Server) handleDeleteTopic(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.DeleteTopic(mux.Vars(r)["id"]); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handlePauseTopic(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := s.svc.PauseTopic(id); err != nil {
		writeServiceError(w, err)
		return
	}
	topic, err := s.svc.GetTopic(id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, topic)
}

func (s *Server) handleResumeTopic(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := s.svc.ResumeTopic(id); err != nil {
		writeServiceError(w, err)
		return
	}
	topic, err := s.svc.GetTopic(id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, topic)
}

func (s *Server) handleSetResolution(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Resolution string `json:"resolution"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", err.Error())
		return
	}
	topic, err := s.svc.SetResolution(mux.Vars(r)["id"], req.Resolution)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, topic)
}

func (s *Server) handleGetBars(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit := 50
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "invalid_limit", "limit must be a positive integer")
			return
		}
		limit = n
	}
	withSummaries := true
	if v := q.Get("with_summaries"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_with_summaries", "with_summaries must be a boolean")
			return
		}
		withSummaries = b
	}

	bars, err := s.svc.GetBars(r.Context(), mux.Vars(r)["id"], q.Get("resolution"), limit, withSummaries)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toBarPayloads(bars))
}

func (s *Server) handleLatestBar(w http.ResponseWriter, r *http.Request) {
	bar, err := s.svc.LatestBar(r.Context(), mux.Vars(r)["id"], r.URL.Query().Get("resolution"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if bar == nil {
		writeJSON(w, http.StatusOK, nil)
		return
	}
	writeJSON(w, http.StatusOK, toBarPayload(*bar))
}

func (s *Server) handlePollTopic(w http.ResponseWriter, r *http.Request) {
	res, err := s.svc.Poll(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writePollError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handlePollAll(w http.ResponseWriter, r *http.Request) {
	s.svc.PollAll(r.Context())
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// writePollError distinguishes upstream failures from domain errors so a
// rate-limited or misconfigured provider does not read as a server bug.
func writePollError(w http.ResponseWriter, err error) {
	var rlErr *xapi.RateLimitError
	var authErr *xapi.AuthError
	switch {
	case errors.Is(err, monitor.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", err.Error())
	case errors.As(err, &rlErr):
		writeError(w, http.StatusTooManyRequests, "rate_limited", err.Error())
	case errors.As(err, &authErr):
		writeError(w, http.StatusBadGateway, "upstream_auth", err.Error())
	default:
		writeError(w, http.StatusBadGateway, "upstream_error", err.Error())
	}
}

func (s *Server) handleDigest(w http.ResponseWriter, r *http.Request) {
	lookback := 0
	if v := r.URL.Query().Get("lookback_bars"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "invalid_lookback", "lookback_bars must be a positive integer")
			return
		}
		lookback = n
	}

	digest, err := s.svc.Digest(r.Context(), mux.Vars(r)["id"], lookback)
	if err != nil {
		if errors.Is(err, monitor.ErrNotFound) {
			writeError(w, http.StatusNotFound, "not_found", err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, "digest_failed", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, digest)
}

func (s *Server) handleResolutions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"resolutions": model.Resolutions,
		"default":     model.DefaultResolution,
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.svc.Health())
}
