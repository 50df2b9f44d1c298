package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"tracklight/internal/audit"
	"tracklight/internal/auth"
	"tracklight/internal/engine"
	"tracklight/internal/store"
	"tracklight/internal/validation"
)

type ruleRequest struct {
	URL        string   `json:"url"`
	Countries  []string `json:"countries"`
	Percentage int      `json:"percentage"`
	Expression *string  `json:"expression,omitempty"`
	ScriptID   *string  `json:"scriptId,omitempty"`
	IsActive   *bool    `json:"isActive,omitempty"`
}

func (req *ruleRequest) params() store.RuleParams {
	active := true
	if req.IsActive != nil {
		active = *req.IsActive
	}
	return store.RuleParams{
		URLPattern: req.URL,
		Countries:  engine.NormalizeCountries(req.Countries),
		Percentage: req.Percentage,
		Expression: req.Expression,
		ScriptID:   req.ScriptID,
		IsActive:   active,
	}
}

func (s *Server) decodeRule(w http.ResponseWriter, r *http.Request) (*ruleRequest, bool) {
	var req ruleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequestError(w, r, ErrCodeInvalidJSON, "invalid JSON body")
		return nil, false
	}
	result := validation.ValidateRule(validation.RuleValidationParams{
		URLPattern: req.URL,
		Countries:  req.Countries,
		Percentage: req.Percentage,
		Expression: req.Expression,
	})
	if !result.Valid {
		ValidationError(w, r, "rule validation failed", result.Errors)
		return nil, false
	}
	return &req, true
}

func (s *Server) handleListRules(w http.ResponseWriter, r *http.Request) {
	rules, err := s.store.ListRules(r.Context())
	if err != nil {
		s.log.Error().Err(err).Msg("list rules failed")
		InternalError(w, r, "failed to list rules")
		return
	}
	if rules == nil {
		rules = []store.Rule{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"rules": rules, "count": len(rules)})
}

func (s *Server) handleGetRule(w http.ResponseWriter, r *http.Request) {
	rule, err := s.store.GetRule(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			NotFoundError(w, r, "rule not found")
			return
		}
		s.log.Error().Err(err).Msg("get rule failed")
		InternalError(w, r, "failed to load rule")
		return
	}
	writeJSON(w, http.StatusOK, rule)
}

func (s *Server) handleCreateRule(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeRule(w, r)
	if !ok {
		return
	}
	rule, err := s.store.CreateRule(r.Context(), req.params())
	if err != nil {
		s.log.Error().Err(err).Msg("create rule failed")
		InternalError(w, r, "failed to create rule")
		return
	}
	s.audit.Record(auth.Username(r.Context()), audit.ActionCreated, audit.ResourceRule, rule.ID, rule.URLPattern)
	writeJSON(w, http.StatusCreated, rule)
}

func (s *Server) handleUpdateRule(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeRule(w, r)
	if !ok {
		return
	}
	id := chi.URLParam(r, "id")
	rule, err := s.store.UpdateRule(r.Context(), id, req.params())
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			NotFoundError(w, r, "rule not found")
			return
		}
		s.log.Error().Err(err).Msg("update rule failed")
		InternalError(w, r, "failed to update rule")
		return
	}
	s.audit.Record(auth.Username(r.Context()), audit.ActionUpdated, audit.ResourceRule, rule.ID, rule.URLPattern)
	writeJSON(w, http.StatusOK, rule)
}

func (s *Server) handleDeleteRule(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.store.DeleteRule(r.Context(), id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			NotFoundError(w, r, "rule not found")
			return
		}
		s.log.Error().Err(err).Msg("delete rule failed")
		InternalError(w, r, "failed to delete rule")
		return
	}
	s.audit.Record(auth.Username(r.Context()), audit.ActionDeleted, audit.ResourceRule, id, "")
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}
