// Package server exposes the intake application over HTTP: admin project
// management and analysis runs behind session auth, plus the client-facing
// intake form and published proposals keyed by slug.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/l3ad-solutions/intake/internal/agent"
	"github.com/l3ad-solutions/intake/internal/config"
	"github.com/l3ad-solutions/intake/internal/model"
	"github.com/l3ad-solutions/intake/internal/store"
)

// Analyzer runs the business-analysis pipeline. *agent.Analyzer satisfies it.
type Analyzer interface {
	AnalyzeBusinessLinks(ctx context.Context, clientName, businessType, location string, urls []model.SocialLink) (*model.BusinessAnalysis, error)
	AnalyzeFromURL(ctx context.Context, sourceURL, notes string) (*model.BusinessAnalysis, error)
}

// Server wires the store and the analyzer into an HTTP API.
type Server struct {
	store    store.Store
	analyzer Analyzer
	auth     *Auth
	limiter  *loginLimiter
	router   chi.Router

	// analyzing tracks in-flight pipeline runs so a project is only
	// analyzed by one request at a time.
	mu        sync.Mutex
	analyzing map[string]struct{}
}

// New builds a Server with all routes registered.
func New(st store.Store, analyzer Analyzer, serverCfg config.ServerConfig, authCfg config.AuthConfig) *Server {
	s := &Server{
		store:     st,
		analyzer:  analyzer,
		auth:      NewAuth(authCfg),
		limiter:   newLoginLimiter(),
		analyzing: make(map[string]struct{}),
	}

	r := chi.NewRouter()
	r.Use(requestLogger)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   serverCfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", s.handleHealth)
	r.Post("/api/login", s.handleLogin)
	r.Post("/api/logout", s.handleLogout)

	// Client-facing routes, keyed by project or proposal slug.
	r.Get("/api/intake/{slug}", s.handleGetIntake)
	r.Post("/api/intake/{slug}", s.handleSaveIntake)
	r.Get("/api/proposals/{slug}", s.handleGetPublishedProposal)

	// Admin routes.
	r.Group(func(r chi.Router) {
		r.Use(s.auth.Middleware)
		r.Get("/api/projects", s.handleListProjects)
		r.Post("/api/projects", s.handleCreateProject)
		r.Get("/api/projects/{id}", s.handleGetProject)
		r.Put("/api/projects/{id}", s.handleUpdateProject)
		r.Delete("/api/projects/{id}", s.handleDeleteProject)
		r.Post("/api/projects/analyze-url", s.handleAnalyzeURL)
		r.Post("/api/projects/{id}/analyze", s.handleAnalyze)
		r.Get("/api/projects/{id}/proposals", s.handleListProposals)
		r.Post("/api/projects/{id}/proposals", s.handleCreateProposal)
		r.Put("/api/proposals/{id}", s.handleUpdateProposal)
	})

	s.router = r
	return s
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		zap.L().Info("server: request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Duration("duration", time.Since(start)),
		)
	})
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Error("server: encode response", zap.Error(err))
	}
}

func respondError(w http.ResponseWriter, status int, msg string) {
	respondJSON(w, status, map[string]string{"error": msg})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if !s.limiter.Allow(clientIP(r)) {
		respondError(w, http.StatusTooManyRequests, "too many login attempts, try again later")
		return
	}

	var req struct {
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	token, err := s.auth.Login(req.Password)
	if err != nil {
		zap.L().Warn("server: failed login", zap.String("ip", clientIP(r)))
		respondError(w, http.StatusUnauthorized, "invalid password")
		return
	}
	s.auth.SetSession(w, token)
	respondJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	s.auth.ClearSession(w)
	respondJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *Server) handleListProjects(w http.ResponseWriter, r *http.Request) {
	filter := store.ProjectFilter{
		Status: model.ProjectStatus(r.URL.Query().Get("status")),
	}
	projects, err := s.store.ListProjects(r.Context(), filter)
	if err != nil {
		zap.L().Error("server: list projects", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "failed to list projects")
		return
	}
	if projects == nil {
		projects = []model.Project{}
	}
	respondJSON(w, http.StatusOK, projects)
}

func (s *Server) handleCreateProject(w http.ResponseWriter, r *http.Request) {
	var p model.Project
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if p.ClientName == "" {
		respondError(w, http.StatusBadRequest, "client_name is required")
		return
	}
	if p.Slug == "" {
		p.Slug = newSlug(p.ClientName)
	}

	created, err := s.store.CreateProject(r.Context(), &p)
	if err != nil {
		zap.L().Error("server: create project", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "failed to create project")
		return
	}
	respondJSON(w, http.StatusCreated, created)
}

func (s *Server) handleGetProject(w http.ResponseWriter, r *http.Request) {
	p, err := s.store.GetProject(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, store.ErrNotFound) {
		respondError(w, http.StatusNotFound, "project not found")
		return
	}
	if err != nil {
		zap.L().Error("server: get project", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "failed to load project")
		return
	}
	respondJSON(w, http.StatusOK, p)
}

func (s *Server) handleUpdateProject(w http.ResponseWriter, r *http.Request) {
	var p model.Project
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	p.ID = chi.URLParam(r, "id")

	err := s.store.UpdateProject(r.Context(), &p)
	if errors.Is(err, store.ErrNotFound) {
		respondError(w, http.StatusNotFound, "project not found")
		return
	}
	if err != nil {
		zap.L().Error("server: update project", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "failed to update project")
		return
	}
	respondJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *Server) handleDeleteProject(w http.ResponseWriter, r *http.Request) {
	err := s.store.DeleteProject(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, store.ErrNotFound) {
		respondError(w, http.StatusNotFound, "project not found")
		return
	}
	if err != nil {
		zap.L().Error("server: delete project", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "failed to delete project")
		return
	}
	respondJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// beginAnalysis claims the in-flight slot for a project. The release
// function must be called exactly once.
func (s *Server) beginAnalysis(projectID string) (release func(), err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, busy := s.analyzing[projectID]; busy {
		return nil, store.ErrAnalysisInProgress
	}
	s.analyzing[projectID] = struct{}{}
	return func() {
		s.mu.Lock()
		delete(s.analyzing, projectID)
		s.mu.Unlock()
	}, nil
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	p, err := s.store.GetProject(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		respondError(w, http.StatusNotFound, "project not found")
		return
	}
	if err != nil {
		zap.L().Error("server: get project for analysis", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "failed to load project")
		return
	}

	if p.SourceURL == "" && len(p.SocialURLs) == 0 {
		respondError(w, http.StatusBadRequest, "project has no URLs to analyze")
		return
	}

	release, err := s.beginAnalysis(id)
	if err != nil {
		respondError(w, http.StatusConflict, "analysis already in progress")
		return
	}
	defer release()

	var analysis *model.BusinessAnalysis
	if p.SourceURL != "" {
		analysis, err = s.analyzer.AnalyzeFromURL(r.Context(), p.SourceURL, p.Notes)
	} else {
		links := make([]model.SocialLink, 0, len(p.SocialURLs))
		for _, u := range p.SocialURLs {
			links = append(links, model.SocialLink{Platform: agent.PlatformFor(u), URL: u})
		}
		analysis, err = s.analyzer.AnalyzeBusinessLinks(r.Context(), p.ClientName, p.BusinessType, p.Location, links)
	}
	if errors.Is(err, agent.ErrNoURLs) {
		respondError(w, http.StatusBadRequest, "project has no URLs to analyze")
		return
	}
	if err != nil {
		zap.L().Error("server: analysis failed",
			zap.String("project_id", id),
			zap.Error(err),
		)
		respondError(w, http.StatusBadGateway, "analysis failed: "+eris.Cause(err).Error())
		return
	}

	err = s.store.SaveAnalysis(r.Context(), id, analysis)
	if errors.Is(err, store.ErrAnalysisInProgress) {
		respondError(w, http.StatusConflict, "analysis already in progress")
		return
	}
	if err != nil {
		zap.L().Error("server: save analysis", zap.String("project_id", id), zap.Error(err))
		respondError(w, http.StatusInternalServerError, "failed to save analysis")
		return
	}
	respondJSON(w, http.StatusOK, analysis)
}

// handleAnalyzeURL runs the pipeline against an arbitrary website without a
// project, for sizing up a prospect before creating one. Nothing is persisted.
func (s *Server) handleAnalyzeURL(w http.ResponseWriter, r *http.Request) {
	var req struct {
		URL   string `json:"url"`
		Notes string `json:"notes"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.URL == "" {
		respondError(w, http.StatusBadRequest, "url is required")
		return
	}
	if err := agent.ValidateURL(req.URL); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	analysis, err := s.analyzer.AnalyzeFromURL(r.Context(), req.URL, req.Notes)
	if err != nil {
		zap.L().Error("server: url analysis failed", zap.String("url", req.URL), zap.Error(err))
		respondError(w, http.StatusBadGateway, "analysis failed: "+eris.Cause(err).Error())
		return
	}
	respondJSON(w, http.StatusOK, analysis)
}

// emptyIntake is what a client sees before their first save.
func emptyIntake(projectID string) *model.IntakeResponse {
	return &model.IntakeResponse{
		ProjectID: projectID,
		Responses: json.RawMessage(`{}`),
	}
}

func (s *Server) handleGetIntake(w http.ResponseWriter, r *http.Request) {
	p, err := s.store.GetProjectBySlug(r.Context(), chi.URLParam(r, "slug"))
	if errors.Is(err, store.ErrNotFound) {
		respondError(w, http.StatusNotFound, "project not found")
		return
	}
	if err != nil {
		zap.L().Error("server: get project by slug", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "failed to load project")
		return
	}

	intake, err := s.store.GetIntake(r.Context(), p.ID)
	if errors.Is(err, store.ErrNotFound) {
		respondJSON(w, http.StatusOK, emptyIntake(p.ID))
		return
	}
	if err != nil {
		zap.L().Error("server: get intake", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "failed to load intake")
		return
	}
	respondJSON(w, http.StatusOK, intake)
}

func (s *Server) handleSaveIntake(w http.ResponseWriter, r *http.Request) {
	p, err := s.store.GetProjectBySlug(r.Context(), chi.URLParam(r, "slug"))
	if errors.Is(err, store.ErrNotFound) {
		respondError(w, http.StatusNotFound, "project not found")
		return
	}
	if err != nil {
		zap.L().Error("server: get project by slug", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "failed to load project")
		return
	}

	var req struct {
		Responses   json.RawMessage `json:"responses"`
		CurrentStep int             `json:"current_step"`
		Completed   bool            `json:"completed"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	saved, err := s.store.SaveIntake(r.Context(), &model.IntakeResponse{
		ProjectID:   p.ID,
		Responses:   req.Responses,
		CurrentStep: req.CurrentStep,
		Completed:   req.Completed,
	})
	if err != nil {
		zap.L().Error("server: save intake", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "failed to save intake")
		return
	}

	// The project tracks form progress: first save moves sent to
	// in_progress, a completed form moves it to completed.
	if next := nextProjectStatus(p.Status, req.Completed); next != p.Status {
		p.Status = next
		if err := s.store.UpdateProject(r.Context(), p); err != nil {
			zap.L().Error("server: update project status", zap.Error(err))
		}
	}

	respondJSON(w, http.StatusOK, saved)
}

func nextProjectStatus(current model.ProjectStatus, completed bool) model.ProjectStatus {
	if completed {
		return model.ProjectCompleted
	}
	if current == model.ProjectSent || current == model.ProjectDraft {
		return model.ProjectInProgress
	}
	return current
}

func (s *Server) handleListProposals(w http.ResponseWriter, r *http.Request) {
	proposals, err := s.store.ListProposals(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		zap.L().Error("server: list proposals", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "failed to list proposals")
		return
	}
	if proposals == nil {
		proposals = []model.Proposal{}
	}
	respondJSON(w, http.StatusOK, proposals)
}

func (s *Server) handleCreateProposal(w http.ResponseWriter, r *http.Request) {
	projectID := chi.URLParam(r, "id")
	p, err := s.store.GetProject(r.Context(), projectID)
	if errors.Is(err, store.ErrNotFound) {
		respondError(w, http.StatusNotFound, "project not found")
		return
	}
	if err != nil {
		zap.L().Error("server: get project for proposal", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "failed to load project")
		return
	}

	var prop model.Proposal
	if err := json.NewDecoder(r.Body).Decode(&prop); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	prop.ProjectID = projectID
	if prop.ClientName == "" {
		prop.ClientName = p.ClientName
	}
	if prop.Slug == "" {
		prop.Slug = newSlug(prop.ClientName)
	}

	created, err := s.store.CreateProposal(r.Context(), &prop)
	if err != nil {
		zap.L().Error("server: create proposal", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "failed to create proposal")
		return
	}
	respondJSON(w, http.StatusCreated, created)
}

func (s *Server) handleUpdateProposal(w http.ResponseWriter, r *http.Request) {
	var prop model.Proposal
	if err := json.NewDecoder(r.Body).Decode(&prop); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	prop.ID = chi.URLParam(r, "id")

	err := s.store.UpdateProposal(r.Context(), &prop)
	if errors.Is(err, store.ErrNotFound) {
		respondError(w, http.StatusNotFound, "proposal not found")
		return
	}
	if err != nil {
		zap.L().Error("server: update proposal", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "failed to update proposal")
		return
	}
	respondJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// handleGetPublishedProposal serves a proposal to its client. Drafts and
// archived proposals are indistinguishable from missing ones.
func (s *Server) handleGetPublishedProposal(w http.ResponseWriter, r *http.Request) {
	prop, err := s.store.GetProposalBySlug(r.Context(), chi.URLParam(r, "slug"))
	if errors.Is(err, store.ErrNotFound) {
		respondError(w, http.StatusNotFound, "proposal not found")
		return
	}
	if err != nil {
		zap.L().Error("server: get proposal", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "failed to load proposal")
		return
	}
	if prop.Status != model.ProposalPublished {
		respondError(w, http.StatusNotFound, "proposal not found")
		return
	}
	respondJSON(w, http.StatusOK, prop)
}

// newSlug derives a URL slug from a client name plus a short random suffix
// so repeat clients do not collide.
func newSlug(name string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(name) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == ' ', r == '-', r == '_':
			b.WriteByte('-')
		}
	}
	slug := strings.Trim(b.String(), "-")
	for strings.Contains(slug, "--") {
		slug = strings.ReplaceAll(slug, "--", "-")
	}
	if slug == "" {
		slug = "client"
	}
	return fmt.Sprintf("%s-%s", slug, uuid.New().String()[:8])
}
