package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"tracklight/internal/audit"
	"tracklight/internal/auth"
	"tracklight/internal/store"
	"tracklight/internal/validation"
)

// snippetView is a snippet as the admin API reports it. Whether the snippet
// is the active one is derived from the shared active-script state, not
// stored on the snippet itself.
type snippetView struct {
	store.Snippet
	IsActive bool `json:"isActive"`
}

func (s *Server) snippetViews(r *http.Request, snippets []store.Snippet) []snippetView {
	activeID, _, err := s.active.Active(r.Context())
	if err != nil {
		s.log.Warn().Err(err).Msg("active script lookup failed")
	}
	views := make([]snippetView, len(snippets))
	for i, sn := range snippets {
		views[i] = snippetView{Snippet: sn, IsActive: sn.ID == activeID}
	}
	return views
}

type snippetRequest struct {
	Name   string `json:"name"`
	Script string `json:"script"`
}

func (s *Server) decodeSnippet(w http.ResponseWriter, r *http.Request) (*snippetRequest, bool) {
	var req snippetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequestError(w, r, ErrCodeInvalidJSON, "invalid JSON body")
		return nil, false
	}
	result := validation.ValidateSnippet(validation.SnippetValidationParams{
		Name:   req.Name,
		Script: req.Script,
	})
	if !result.Valid {
		ValidationError(w, r, "snippet validation failed", result.Errors)
		return nil, false
	}
	return &req, true
}

func (s *Server) handleListSnippets(w http.ResponseWriter, r *http.Request) {
	snippets, err := s.store.ListSnippets(r.Context())
	if err != nil {
		s.log.Error().Err(err).Msg("list snippets failed")
		InternalError(w, r, "failed to list snippets")
		return
	}
	views := s.snippetViews(r, snippets)
	writeJSON(w, http.StatusOK, map[string]any{"snippets": views, "count": len(views)})
}

func (s *Server) handleGetSnippet(w http.ResponseWriter, r *http.Request) {
	snippet, err := s.store.GetSnippet(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			NotFoundError(w, r, "snippet not found")
			return
		}
		s.log.Error().Err(err).Msg("get snippet failed")
		InternalError(w, r, "failed to load snippet")
		return
	}
	views := s.snippetViews(r, []store.Snippet{*snippet})
	writeJSON(w, http.StatusOK, views[0])
}

func (s *Server) handleCreateSnippet(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeSnippet(w, r)
	if !ok {
		return
	}
	snippet, err := s.store.CreateSnippet(r.Context(), store.SnippetParams{Name: req.Name, Script: req.Script})
	if err != nil {
		s.log.Error().Err(err).Msg("create snippet failed")
		InternalError(w, r, "failed to create snippet")
		return
	}
	s.audit.Record(auth.Username(r.Context()), audit.ActionCreated, audit.ResourceSnippet, snippet.ID, snippet.Name)
	writeJSON(w, http.StatusCreated, snippetView{Snippet: *snippet})
}

func (s *Server) handleUpdateSnippet(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeSnippet(w, r)
	if !ok {
		return
	}
	id := chi.URLParam(r, "id")
	snippet, err := s.store.UpdateSnippet(r.Context(), id, store.SnippetParams{Name: req.Name, Script: req.Script})
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			NotFoundError(w, r, "snippet not found")
			return
		}
		s.log.Error().Err(err).Msg("update snippet failed")
		InternalError(w, r, "failed to update snippet")
		return
	}
	s.audit.Record(auth.Username(r.Context()), audit.ActionUpdated, audit.ResourceSnippet, snippet.ID, snippet.Name)
	views := s.snippetViews(r, []store.Snippet{*snippet})
	writeJSON(w, http.StatusOK, views[0])
}

func (s *Server) handleDeleteSnippet(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.store.DeleteSnippet(r.Context(), id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			NotFoundError(w, r, "snippet not found")
			return
		}
		s.log.Error().Err(err).Msg("delete snippet failed")
		InternalError(w, r, "failed to delete snippet")
		return
	}
	// Deleting the active snippet clears the active slot so the pull path
	// does not serve a dangling reference.
	if err := s.active.Deactivate(r.Context(), id); err != nil {
		s.log.Warn().Err(err).Str("snippet_id", id).Msg("active script clear failed")
	}
	s.audit.Record(auth.Username(r.Context()), audit.ActionDeleted, audit.ResourceSnippet, id, "")
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

type executeRequest struct {
	SnippetID string `json:"snippetId"`
}

// handleExecuteSnippet activates a snippet and pushes it to every connected
// session over the realtime channel.
func (s *Server) handleExecuteSnippet(w http.ResponseWriter, r *http.Request) {
	var req executeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequestError(w, r, ErrCodeInvalidJSON, "invalid JSON body")
		return
	}
	if strings.TrimSpace(req.SnippetID) == "" {
		BadRequestError(w, r, ErrCodeMissingField, "snippetId is required")
		return
	}

	snippet, err := s.store.GetSnippet(r.Context(), req.SnippetID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			NotFoundError(w, r, "snippet not found")
			return
		}
		s.log.Error().Err(err).Msg("execute snippet failed")
		InternalError(w, r, "failed to load snippet")
		return
	}

	if err := s.active.Activate(r.Context(), snippet.ID); err != nil {
		s.log.Error().Err(err).Str("snippet_id", snippet.ID).Msg("snippet activation failed")
		InternalError(w, r, "failed to activate snippet")
		return
	}
	s.hub.ExecuteScript(snippet.ID, snippet.Script)
	s.audit.Record(auth.Username(r.Context()), audit.ActionExecuted, audit.ResourceSnippet, snippet.ID, snippet.Name)
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "clients": s.hub.ClientCount()})
}

// handleDeactivateSnippet clears the active slot if the given snippet still
// holds it. A stale id is a no-op, not an error.
func (s *Server) handleDeactivateSnippet(w http.ResponseWriter, r *http.Request) {
	var req executeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequestError(w, r, ErrCodeInvalidJSON, "invalid JSON body")
		return
	}
	if strings.TrimSpace(req.SnippetID) == "" {
		BadRequestError(w, r, ErrCodeMissingField, "snippetId is required")
		return
	}
	if err := s.active.Deactivate(r.Context(), req.SnippetID); err != nil {
		s.log.Error().Err(err).Str("snippet_id", req.SnippetID).Msg("snippet deactivation failed")
		InternalError(w, r, "failed to deactivate snippet")
		return
	}
	s.audit.Record(auth.Username(r.Context()), audit.ActionDeactivated, audit.ResourceSnippet, req.SnippetID, "")
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

// handleLatestSnippet returns the currently active snippet as JSON, or 404
// when no snippet is active.
func (s *Server) handleLatestSnippet(w http.ResponseWriter, r *http.Request) {
	snippet, ok := s.loadActiveSnippet(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, snippetView{Snippet: *snippet, IsActive: true})
}

// handleLatestScript serves the active snippet body as raw JavaScript. This
// is the catch-up path for pages that missed the realtime push.
func (s *Server) handleLatestScript(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/javascript")
	w.Header().Set("Cache-Control", "no-store")

	activeID, ok, err := s.active.Active(r.Context())
	if err != nil {
		s.log.Error().Err(err).Msg("active script lookup failed")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("// Script lookup failed.\n"))
		return
	}
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte("// No script available.\n"))
		return
	}

	snippet, err := s.store.GetSnippet(r.Context(), activeID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte("// No script available.\n"))
			return
		}
		s.log.Error().Err(err).Msg("active script load failed")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("// Script lookup failed.\n"))
		return
	}

	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(snippet.Script))
}

func (s *Server) loadActiveSnippet(w http.ResponseWriter, r *http.Request) (*store.Snippet, bool) {
	activeID, ok, err := s.active.Active(r.Context())
	if err != nil {
		s.log.Error().Err(err).Msg("active script lookup failed")
		InternalError(w, r, "failed to load active snippet")
		return nil, false
	}
	if !ok {
		NotFoundError(w, r, "no active snippet")
		return nil, false
	}
	snippet, err := s.store.GetSnippet(r.Context(), activeID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			NotFoundError(w, r, "no active snippet")
			return nil, false
		}
		s.log.Error().Err(err).Msg("active snippet load failed")
		InternalError(w, r, "failed to load active snippet")
		return nil, false
	}
	return snippet, true
}
