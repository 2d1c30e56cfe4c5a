package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"appforge/internal/app"
	"appforge/internal/ownerlock"
	"appforge/internal/ratelimit"
	"appforge/internal/util"
	"appforge/pkg/domain"
)

// Config wires required dependencies for the HTTP server.
type Config struct {
	App                *app.App
	RedisAddr          string
	RedisPassword      string
	RateLimitPerMinute int
}

// Server exposes HTTP endpoints for the backend.
type Server struct {
	app           *app.App
	mux           *http.ServeMux
	promptLimiter *ratelimit.FixedWindowLimiter
}

// New constructs the server with routes configured.
func New(cfg Config) (*Server, error) {
	if cfg.App == nil {
		return nil, errors.New("app required")
	}
	limit := cfg.RateLimitPerMinute
	if limit <= 0 {
		limit = 30
	}
	promptLimiter, err := ratelimit.NewRedisFixedWindowLimiter(
		cfg.RedisAddr, cfg.RedisPassword, "appforge:ratelimit:prompt", limit, time.Minute)
	if err != nil {
		return nil, fmt.Errorf("init prompt limiter: %w", err)
	}
	s := &Server{
		app:           cfg.App,
		mux:           http.NewServeMux(),
		promptLimiter: promptLimiter,
	}
	s.routes()
	return s, nil
}

// Router returns the configured handler.
func (s *Server) Router() http.Handler {
	return util.WithRequestID(util.WithRequestLog("appforge", util.WithSecurityHeaders(util.WithCORS(s.mux))))
}

func (s *Server) routes() {
	s.mux.HandleFunc("/healthz", s.handleHealth)

	// generation
	s.mux.HandleFunc("/api/prompt", s.handlePrompt)
	s.mux.HandleFunc("/api/files/update", s.handleUpdateFiles)

	// files
	s.mux.HandleFunc("/api/files", s.handleFiles)

	// containers
	s.mux.HandleFunc("/api/deploy", s.handleDeploy)
	s.mux.HandleFunc("/api/containers", s.handleContainers)
	s.mux.HandleFunc("/api/containers/logs", s.handleContainerLogs)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type promptRequest struct {
	UserID    string `json:"userId"`
	Prompt    string `json:"prompt"`
	Framework string `json:"framework"`
}

type fileOperationPayload struct {
	Action  string `json:"action"`
	Path    string `json:"path"`
	Content string `json:"content"`
}

type saveFilesRequest struct {
	UserID string                 `json:"userId"`
	Files  []fileOperationPayload `json:"files"`
}

type promptResponse struct {
	Success     bool               `json:"success"`
	Description string             `json:"description"`
	Files       []domain.Artifact  `json:"files"`
	Deleted     []string           `json:"deleted,omitempty"`
	Deployment  *domain.Deployment `json:"deployment,omitempty"`
	Warning     string             `json:"warning,omitempty"`
}

func (s *Server) handlePrompt(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	if !s.allowRate(w, r, "too many generation requests") {
		return
	}
	var req promptRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if strings.TrimSpace(req.UserID) == "" || strings.TrimSpace(req.Prompt) == "" {
		writeError(w, http.StatusBadRequest, "userId and prompt are required")
		return
	}
	out, err := s.app.HandlePrompt(r.Context(), req.UserID, req.Prompt, req.Framework)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, promptResponse{
		Success:     true,
		Description: out.Description,
		Files:       out.Files,
		Deleted:     out.Deleted,
		Deployment:  &out.Deployment,
		Warning:     out.Warning,
	})
}

func (s *Server) handleUpdateFiles(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	if !s.allowRate(w, r, "too many generation requests") {
		return
	}
	var req promptRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if strings.TrimSpace(req.UserID) == "" || strings.TrimSpace(req.Prompt) == "" {
		writeError(w, http.StatusBadRequest, "userId and prompt are required")
		return
	}
	out, err := s.app.UpdateFiles(r.Context(), req.UserID, req.Prompt)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, promptResponse{
		Success:     true,
		Description: out.Description,
		Files:       out.Updated,
		Deleted:     out.Deleted,
		Warning:     out.Warning,
	})
}

// handleFiles serves direct file access: POST saves a client batch,
// GET lists the owner's live artifact set.
func (s *Server) handleFiles(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.handleSaveFiles(w, r)
	case http.MethodGet:
		s.handleListFiles(w, r)
	default:
		methodNotAllowed(w)
	}
}

func (s *Server) handleSaveFiles(w http.ResponseWriter, r *http.Request) {
	var req saveFilesRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 16<<20)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if strings.TrimSpace(req.UserID) == "" {
		writeError(w, http.StatusBadRequest, "userId is required")
		return
	}
	if len(req.Files) == 0 {
		writeError(w, http.StatusBadRequest, "files must not be empty")
		return
	}
	batch := make([]domain.FileOperation, 0, len(req.Files))
	for _, f := range req.Files {
		action := domain.FileAction(strings.ToLower(strings.TrimSpace(f.Action)))
		if action == "" {
			action = domain.ActionAdd
		}
		if !action.Valid() {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid action %q", f.Action))
			return
		}
		batch = append(batch, domain.FileOperation{Action: action, Path: f.Path, Content: f.Content})
	}
	records, err := s.app.SaveFiles(r.Context(), req.UserID, batch)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"files": records})
}

func (s *Server) handleListFiles(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	artifacts, err := s.app.ListArtifacts(ownerID)
	if err != nil {
		writeAppError(w, err)
		return
	}
	if artifacts == nil {
		artifacts = []domain.Artifact{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"files": artifacts})
}

type deployRequest struct {
	UserID    string                 `json:"userId"`
	Framework string                 `json:"framework"`
	Files     []fileOperationPayload `json:"files,omitempty"`
}

func (s *Server) handleDeploy(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var req deployRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 16<<20)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if strings.TrimSpace(req.UserID) == "" {
		writeError(w, http.StatusBadRequest, "userId is required")
		return
	}
	batch := make([]domain.FileOperation, 0, len(req.Files))
	for _, f := range req.Files {
		action := domain.FileAction(strings.ToLower(strings.TrimSpace(f.Action)))
		if action == "" {
			action = domain.ActionAdd
		}
		if !action.Valid() {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid action %q", f.Action))
			return
		}
		batch = append(batch, domain.FileOperation{Action: action, Path: f.Path, Content: f.Content})
	}
	record, err := s.app.Deploy(r.Context(), req.UserID, req.Framework, batch)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":    true,
		"projectUrl": record.ProjectURL,
		"deployment": record,
	})
}

// handleContainers serves container provisioning (POST), deployment
// status (GET), and teardown (DELETE). GET and DELETE name the owner via
// the userId query parameter.
func (s *Server) handleContainers(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.handleDeploy(w, r)
	case http.MethodGet:
		s.handleContainerStatus(w, r)
	case http.MethodDelete:
		s.handleContainerTeardown(w, r)
	default:
		methodNotAllowed(w)
	}
}

func (s *Server) handleContainerStatus(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	record, _, err := s.app.DeploymentStatus(ownerID)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, record)
}

func (s *Server) handleContainerTeardown(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	record, err := s.app.TeardownContainer(r.Context(), ownerID)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, record)
}

func (s *Server) handleContainerLogs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	ownerID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	logs, err := s.app.ContainerLogs(r.Context(), ownerID)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"logs": logs})
}

func requireUserID(w http.ResponseWriter, r *http.Request) (string, bool) {
	ownerID := strings.TrimSpace(r.URL.Query().Get("userId"))
	if ownerID == "" {
		writeError(w, http.StatusBadRequest, "userId query parameter is required")
		return "", false
	}
	return ownerID, true
}

// writeAppError maps application errors onto HTTP statuses. Invalid input
// is the caller's fault; a busy owner conflicts; everything else is a
// server-side failure.
func writeAppError(w http.ResponseWriter, err error) {
	var invalidPath *app.InvalidPathError
	if errors.As(err, &invalidPath) {
		writeError(w, http.StatusBadRequest, invalidPath.Error())
		return
	}
	if errors.Is(err, ownerlock.ErrBusy) {
		writeError(w, http.StatusConflict, "another operation is in progress for this user")
		return
	}
	if errors.Is(err, app.ErrNoArtifacts) {
		writeError(w, http.StatusBadRequest, app.ErrNoArtifacts.Error())
		return
	}
	var gen *app.GenerationError
	if errors.As(err, &gen) {
		writeErrorDetails(w, http.StatusInternalServerError, "generation failed", gen.Unwrap().Error())
		return
	}
	var prov *app.ProvisionError
	if errors.As(err, &prov) {
		writeErrorDetails(w, http.StatusInternalServerError, "deployment failed", prov.Error())
		return
	}
	var rec *app.ReconcileError
	if errors.As(err, &rec) {
		writeErrorDetails(w, http.StatusInternalServerError, "file reconciliation failed", rec.Error())
		return
	}
	writeError(w, http.StatusInternalServerError, err.Error())
}

func (s *Server) allowRate(w http.ResponseWriter, r *http.Request, msg string) bool {
	key := r.URL.Path + "|" + util.ClientIP(r, nil)
	if s.promptLimiter.Allow(key) {
		return true
	}
	w.Header().Set("Retry-After", "60")
	writeError(w, http.StatusTooManyRequests, msg)
	return false
}

func methodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeErrorDetails(w http.ResponseWriter, status int, msg, details string) {
	writeJSON(w, status, map[string]string{"error": msg, "details": details})
}
