// Package api exposes the minimal diagnostics/command HTTP surface
// described in SPEC_FULL.md's DOMAIN STACK section — submit_run,
// retry_task, and read commands, not the full control-plane CRUD
// surface spec.md §1 puts out of scope.
package api

import (
	"encoding/json"
	"errors"
	"net"
	"net/http"

	"project-tachyon/internal/audit"
	"project-tachyon/internal/command"
	"project-tachyon/internal/layout"
	"project-tachyon/internal/stats"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Server is the diagnostics HTTP surface. It never implements business
// logic itself — every handler is a thin translation into a Commands
// call.
type Server struct {
	commands *command.Commands
	stats    *stats.Manager
	audit    *audit.Logger
	router   *chi.Mux
}

// New builds a Server with routes registered.
func New(commands *command.Commands, statsManager *stats.Manager, auditLogger *audit.Logger) *Server {
	s := &Server{commands: commands, stats: statsManager, audit: auditLogger, router: chi.NewRouter()}
	s.setupRoutes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) setupRoutes() {
	s.router.Use(middleware.Logger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(s.auditMiddleware)

	s.router.Get("/healthz", s.handleHealth)
	s.router.Get("/stats", s.handleStats)
	s.router.Post("/runs", s.handleSubmitRun)
	s.router.Get("/runs/{id}", s.handleGetRun)
	s.router.Get("/runs/{id}/tasks", s.handleListTasks)
	s.router.Get("/tasks/{id}", s.handleGetTask)
	s.router.Post("/tasks/{id}/retry", s.handleRetryTask)

	s.router.Get("/providers", s.handleListProviders)
	s.router.Post("/providers/{id}/enable", s.handleEnableProvider)
	s.router.Post("/providers/{id}/disable", s.handleDisableProvider)
	s.router.Post("/providers/{id}/priority", s.handleSetProviderPriority)
	s.router.Post("/providers/{id}/weight", s.handleSetProviderWeight)
	s.router.Post("/models/{id}/enable", s.handleEnableModel)
	s.router.Post("/models/{id}/disable", s.handleDisableModel)
}

func (s *Server) auditMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sourceIP, _, _ := net.SplitHostPort(r.RemoteAddr)
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		if s.audit != nil {
			s.audit.Log(sourceIP, r.Method+" "+r.URL.Path, rec.status, "")
		}
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	snapshot, err := s.stats.Snapshot(7)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, snapshot)
}

type submitRunPayload struct {
	StoryboardID    string `json:"storyboard_id"`
	ModelID         string `json:"model_id"`
	RoutingStrategy string `json:"routing_strategy"`
	GenCount        int    `json:"gen_count"`
	SegmentRange    string `json:"segment_range"`
	Concurrency     int    `json:"concurrency"`
	DryRun          bool   `json:"dry_run"`
	Force           bool   `json:"force"`
	OutputLayout    string `json:"output_layout"`
	OutputPath      string `json:"output_path"`
}

func (s *Server) handleSubmitRun(w http.ResponseWriter, r *http.Request) {
	var payload submitRunPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeCodedError(w, http.StatusBadRequest, "invalid_body", err.Error(), nil)
		return
	}

	desc, err := s.commands.SubmitRun(r.Context(), command.SubmitRunRequest{
		StoryboardID:    payload.StoryboardID,
		ModelID:         payload.ModelID,
		RoutingStrategy: payload.RoutingStrategy,
		GenCount:        payload.GenCount,
		SegmentRange:    payload.SegmentRange,
		Concurrency:     payload.Concurrency,
		DryRun:          payload.DryRun,
		Force:           payload.Force,
		OutputLayout:    layout.Mode(payload.OutputLayout),
		CustomPath:      payload.OutputPath,
	})
	if err != nil {
		s.writeCommandError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, desc)
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	run, ok := s.commands.GetRun(id)
	if !ok {
		writeCodedError(w, http.StatusNotFound, "not_found", errNotFound.Error(), nil)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func (s *Server) handleListTasks(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	writeJSON(w, http.StatusOK, s.commands.ListTasks(id))
}

func (s *Server) handleGetTask(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	task, ok := s.commands.GetTask(id)
	if !ok {
		writeCodedError(w, http.StatusNotFound, "not_found", errNotFound.Error(), nil)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

func (s *Server) handleRetryTask(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	task, err := s.commands.RetryTask(r.Context(), id)
	if err != nil {
		s.writeCommandError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, task)
}

func (s *Server) handleListProviders(w http.ResponseWriter, r *http.Request) {
	providers, err := s.commands.ListProviders()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, providers)
}

func (s *Server) handleEnableProvider(w http.ResponseWriter, r *http.Request) {
	s.adminAction(w, r, func(id string) error { return s.commands.EnableProvider(id) })
}

func (s *Server) handleDisableProvider(w http.ResponseWriter, r *http.Request) {
	s.adminAction(w, r, func(id string) error { return s.commands.DisableProvider(id) })
}

func (s *Server) handleEnableModel(w http.ResponseWriter, r *http.Request) {
	s.adminAction(w, r, func(id string) error { return s.commands.EnableModel(id) })
}

func (s *Server) handleDisableModel(w http.ResponseWriter, r *http.Request) {
	s.adminAction(w, r, func(id string) error { return s.commands.DisableModel(id) })
}

type intValuePayload struct {
	Value int `json:"value"`
}

func (s *Server) handleSetProviderPriority(w http.ResponseWriter, r *http.Request) {
	var payload intValuePayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeCodedError(w, http.StatusBadRequest, "invalid_body", err.Error(), nil)
		return
	}
	id := chi.URLParam(r, "id")
	if err := s.commands.UpdateProviderPriority(id, payload.Value); err != nil {
		s.writeCommandError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleSetProviderWeight(w http.ResponseWriter, r *http.Request) {
	var payload intValuePayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeCodedError(w, http.StatusBadRequest, "invalid_body", err.Error(), nil)
		return
	}
	id := chi.URLParam(r, "id")
	if err := s.commands.UpdateProviderWeight(id, payload.Value); err != nil {
		s.writeCommandError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) adminAction(w http.ResponseWriter, r *http.Request, action func(id string) error) {
	id := chi.URLParam(r, "id")
	if err := action(id); err != nil {
		s.writeCommandError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) writeCommandError(w http.ResponseWriter, err error) {
	var verr *command.ValidationError
	if errors.As(err, &verr) {
		writeCodedError(w, http.StatusBadRequest, verr.Code, verr.Error(), verr.Detail)
		return
	}
	writeError(w, http.StatusInternalServerError, err)
}

var errNotFound = errors.New("not found")

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

// errorPayload is the {code, message, details?} shape every control-plane
// error response carries.
type errorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeCodedError(w, status, "internal_error", err.Error(), nil)
}

func writeCodedError(w http.ResponseWriter, status int, code, message string, details any) {
	writeJSON(w, status, errorPayload{Code: code, Message: message, Details: details})
}
