package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"tracklight/internal/engine"
	"tracklight/internal/geo"
	"tracklight/internal/store"
)

type trackRequest struct {
	URL string `json:"url"`
}

type trackResponse struct {
	UniqueVisit      bool     `json:"uniqueVisit"`
	TriggeredCount   int      `json:"triggeredCount"`
	TriggeredRuleIDs []string `json:"triggeredRuleIds"`
	SnippetCodes     []string `json:"snippetCodes"`
}

// handleTrack records a page visit and evaluates it against the rule set in
// one round trip. The response carries any admitted snippet bodies so the
// tracking script can execute them without a second request.
func (s *Server) handleTrack(w http.ResponseWriter, r *http.Request) {
	var req trackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequestError(w, r, ErrCodeInvalidJSON, "invalid JSON body")
		return
	}
	if strings.TrimSpace(req.URL) == "" {
		BadRequestError(w, r, ErrCodeMissingField, "url is required")
		return
	}

	visitor, match, err := s.tracker.Track(r.Context(), req.URL, clientIP(r))
	if err != nil {
		s.log.Error().Err(err).Str("url", req.URL).Msg("track failed")
		InternalError(w, r, "failed to record visit")
		return
	}

	resp := trackResponse{UniqueVisit: visitor.UniqueVisit}
	if match != nil {
		resp.TriggeredCount = len(match.TriggeredRuleIDs)
		resp.TriggeredRuleIDs = match.TriggeredRuleIDs
		resp.SnippetCodes = match.SnippetCodes
	}
	if resp.TriggeredRuleIDs == nil {
		resp.TriggeredRuleIDs = []string{}
	}
	if resp.SnippetCodes == nil {
		resp.SnippetCodes = []string{}
	}
	writeJSON(w, http.StatusOK, resp)
}

type pingRequest struct {
	URL string `json:"url"`
}

// handlePing refreshes a visitor's liveness without re-running the match
// pipeline. Heartbeats arrive every few seconds per open tab.
func (s *Server) handlePing(w http.ResponseWriter, r *http.Request) {
	var req pingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequestError(w, r, ErrCodeInvalidJSON, "invalid JSON body")
		return
	}
	if strings.TrimSpace(req.URL) == "" {
		BadRequestError(w, r, ErrCodeMissingField, "url is required")
		return
	}

	created, err := s.tracker.Ping(r.Context(), req.URL, clientIP(r))
	if err != nil {
		s.log.Error().Err(err).Str("url", req.URL).Msg("ping failed")
		InternalError(w, r, "failed to record heartbeat")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "created": created})
}

type matchingDebug struct {
	IP      string `json:"ip"`
	Country string `json:"country"`
	Mode    string `json:"mode"`
}

type matchingResponse struct {
	TriggeredCount int           `json:"triggeredCount"`
	SnippetCodes   []string      `json:"snippetCodes"`
	Debug          matchingDebug `json:"debug"`
}

// handleMatching is the pull path: it evaluates the caller's URL against
// the rule set and returns matching snippet bodies. A test_country query
// parameter forces that country and admission, for operator testing.
func (s *Server) handleMatching(w http.ResponseWriter, r *http.Request) {
	rawURL := r.URL.Query().Get("url")
	if strings.TrimSpace(rawURL) == "" {
		BadRequestError(w, r, ErrCodeMissingField, "url query parameter is required")
		return
	}

	ip := clientIP(r)
	testCountry := r.URL.Query().Get("test_country")

	var (
		match *engine.MatchResult
		err   error
		debug matchingDebug
	)
	if testCountry != "" {
		match, err = s.engine.ForceMatch(r.Context(), rawURL, ip, testCountry)
		debug = matchingDebug{IP: ip, Country: engine.NormalizeCountry(testCountry), Mode: "forced"}
	} else {
		country := s.geo.Country(ip)
		match, err = s.engine.EvaluateWithCountry(r.Context(), rawURL, ip, country)
		debug = matchingDebug{IP: ip, Country: engine.NormalizeCountry(country), Mode: "live"}
	}
	if err != nil {
		s.log.Error().Err(err).Str("url", rawURL).Msg("matching failed")
		InternalError(w, r, "failed to evaluate rules")
		return
	}

	resp := matchingResponse{
		TriggeredCount: len(match.TriggeredRuleIDs),
		SnippetCodes:   match.SnippetCodes,
		Debug:          debug,
	}
	if resp.SnippetCodes == nil {
		resp.SnippetCodes = []string{}
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleDashboardStats returns per-domain visit rollups for the admin panel.
func (s *Server) handleDashboardStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.store.DashboardStats(r.Context())
	if err != nil {
		s.log.Error().Err(err).Msg("dashboard stats failed")
		InternalError(w, r, "failed to load dashboard stats")
		return
	}
	if stats == nil {
		stats = []store.DomainStats{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"domains": stats})
}

// handleUserActivities lists recent visitors of one URL.
func (s *Server) handleUserActivities(w http.ResponseWriter, r *http.Request) {
	url := r.URL.Query().Get("url")
	if strings.TrimSpace(url) == "" {
		BadRequestError(w, r, ErrCodeMissingField, "url query parameter is required")
		return
	}

	limit := 100
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > 1000 {
			BadRequestError(w, r, ErrCodeBadRequest, "limit must be between 1 and 1000")
			return
		}
		limit = n
	}

	visitors, err := s.store.ListVisitorsByURL(r.Context(), url, limit)
	if err != nil {
		s.log.Error().Err(err).Str("url", url).Msg("user activities failed")
		InternalError(w, r, "failed to load visitor activity")
		return
	}
	for i := range visitors {
		if visitors[i].Country == geo.Unknown {
			visitors[i].Country = "Unknown"
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"visitors": visitors, "count": len(visitors)})
}
