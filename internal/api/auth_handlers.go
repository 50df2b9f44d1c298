package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"tracklight/internal/audit"
	"tracklight/internal/auth"
)

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token string `json:"token"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequestError(w, r, ErrCodeInvalidJSON, "invalid JSON body")
		return
	}
	if strings.TrimSpace(req.Username) == "" || req.Password == "" {
		BadRequestError(w, r, ErrCodeMissingField, "username and password are required")
		return
	}

	token, err := s.auth.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			UnauthorizedError(w, r, "invalid username or password")
			return
		}
		s.log.Error().Err(err).Msg("login failed")
		InternalError(w, r, "login failed")
		return
	}

	s.audit.Record(req.Username, audit.ActionLoggedIn, audit.ResourceUser, req.Username, "")
	writeJSON(w, http.StatusOK, loginResponse{Token: token})
}
