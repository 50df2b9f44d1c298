package api_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"tracklight/internal/store"
	"tracklight/internal/testutil"
)

func authHeaders(token string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + token}
}

func decodeBody(t *testing.T, body []byte, out any) {
	t.Helper()
	if err := json.Unmarshal(body, out); err != nil {
		t.Fatalf("decode response: %v\nbody: %s", err, body)
	}
}

func TestHealthz(t *testing.T) {
	env := testutil.NewEnv(t)

	rr := (&testutil.HTTPRequest{Method: "GET", Path: "/healthz"}).Do(t, env.Handler)
	if rr.Code != http.StatusOK || rr.Body.String() != "ok" {
		t.Fatalf("healthz: status %d, body %q", rr.Code, rr.Body.String())
	}
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	env := testutil.NewEnv(t)

	rr := (&testutil.HTTPRequest{
		Method: "POST",
		Path:   "/auth/login",
		Body:   `{"username":"admin","password":"wrong"}`,
	}).Do(t, env.Handler)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rr.Code)
	}
}

func TestAdminRoutesRequireToken(t *testing.T) {
	env := testutil.NewEnv(t)

	paths := []struct {
		method, path string
	}{
		{"GET", "/rules"},
		{"POST", "/rules"},
		{"GET", "/js-snippets"},
		{"GET", "/visitors/dashboard-stats"},
	}
	for _, p := range paths {
		rr := (&testutil.HTTPRequest{Method: p.method, Path: p.path}).Do(t, env.Handler)
		if rr.Code != http.StatusUnauthorized {
			t.Errorf("%s %s without token: status %d, want 401", p.method, p.path, rr.Code)
		}
	}
}

func TestRuleLifecycle(t *testing.T) {
	env := testutil.NewEnv(t)
	token := env.Login(t)

	rr := (&testutil.HTTPRequest{
		Method:  "POST",
		Path:    "/rules",
		Body:    `{"url":"example.com/pricing","countries":["uk","US"],"percentage":50}`,
		Headers: authHeaders(token),
	}).Do(t, env.Handler)
	if rr.Code != http.StatusCreated {
		t.Fatalf("create: status %d, body %s", rr.Code, rr.Body.String())
	}
	var created store.Rule
	decodeBody(t, rr.Body.Bytes(), &created)
	if created.ID == "" {
		t.Fatal("create: missing rule id")
	}
	if !created.IsActive {
		t.Error("rules should default to active")
	}
	if len(created.Countries) != 2 || created.Countries[0] != "GB" || created.Countries[1] != "US" {
		t.Errorf("countries not normalized: %v", created.Countries)
	}

	rr = (&testutil.HTTPRequest{Method: "GET", Path: "/rules", Headers: authHeaders(token)}).Do(t, env.Handler)
	if rr.Code != http.StatusOK {
		t.Fatalf("list: status %d", rr.Code)
	}
	var list struct {
		Rules []store.Rule `json:"rules"`
		Count int          `json:"count"`
	}
	decodeBody(t, rr.Body.Bytes(), &list)
	if list.Count != 1 || len(list.Rules) != 1 {
		t.Fatalf("list: %+v", list)
	}

	rr = (&testutil.HTTPRequest{
		Method:  "PUT",
		Path:    "/rules/" + created.ID,
		Body:    `{"url":"example.com/docs","countries":[],"percentage":25,"isActive":false}`,
		Headers: authHeaders(token),
	}).Do(t, env.Handler)
	if rr.Code != http.StatusOK {
		t.Fatalf("update: status %d, body %s", rr.Code, rr.Body.String())
	}
	var updated store.Rule
	decodeBody(t, rr.Body.Bytes(), &updated)
	if updated.URLPattern != "example.com/docs" || updated.IsActive {
		t.Errorf("update not applied: %+v", updated)
	}

	rr = (&testutil.HTTPRequest{Method: "DELETE", Path: "/rules/" + created.ID, Headers: authHeaders(token)}).Do(t, env.Handler)
	if rr.Code != http.StatusOK {
		t.Fatalf("delete: status %d", rr.Code)
	}
	rr = (&testutil.HTTPRequest{Method: "GET", Path: "/rules/" + created.ID, Headers: authHeaders(token)}).Do(t, env.Handler)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("get after delete: status %d, want 404", rr.Code)
	}
}

func TestCreateRuleValidation(t *testing.T) {
	env := testutil.NewEnv(t)
	token := env.Login(t)

	rr := (&testutil.HTTPRequest{
		Method:  "POST",
		Path:    "/rules",
		Body:    `{"url":"","countries":["USA"],"percentage":150}`,
		Headers: authHeaders(token),
	}).Do(t, env.Handler)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rr.Code)
	}
	var resp struct {
		Code   string            `json:"code"`
		Fields map[string]string `json:"fields"`
	}
	decodeBody(t, rr.Body.Bytes(), &resp)
	if resp.Code != "VALIDATION_ERROR" {
		t.Errorf("code = %q", resp.Code)
	}
	for _, field := range []string{"url", "countries", "percentage"} {
		if _, ok := resp.Fields[field]; !ok {
			t.Errorf("missing field error %q: %v", field, resp.Fields)
		}
	}
}

func TestSnippetExecuteAndPullPath(t *testing.T) {
	env := testutil.NewEnv(t)
	token := env.Login(t)

	rr := (&testutil.HTTPRequest{
		Method:  "POST",
		Path:    "/js-snippets",
		Body:    `{"name":"promo","script":"alert(1)"}`,
		Headers: authHeaders(token),
	}).Do(t, env.Handler)
	if rr.Code != http.StatusCreated {
		t.Fatalf("create snippet: status %d, body %s", rr.Code, rr.Body.String())
	}
	var created struct {
		ID       string `json:"id"`
		IsActive bool   `json:"isActive"`
	}
	decodeBody(t, rr.Body.Bytes(), &created)
	if created.IsActive {
		t.Error("a new snippet must not be active")
	}

	// Nothing is active yet: the pull path serves its placeholder comment.
	rr = (&testutil.HTTPRequest{Method: "GET", Path: "/js-snippets/latest-script.js"}).Do(t, env.Handler)
	if rr.Code != http.StatusNotFound || rr.Body.String() != "// No script available.\n" {
		t.Fatalf("latest-script before activation: status %d, body %q", rr.Code, rr.Body.String())
	}

	rr = (&testutil.HTTPRequest{
		Method:  "POST",
		Path:    "/js-snippets/execute",
		Body:    `{"snippetId":"` + created.ID + `"}`,
		Headers: authHeaders(token),
	}).Do(t, env.Handler)
	if rr.Code != http.StatusOK {
		t.Fatalf("execute: status %d, body %s", rr.Code, rr.Body.String())
	}

	// Execution makes the snippet the active one for late joiners.
	rr = (&testutil.HTTPRequest{Method: "GET", Path: "/js-snippets/latest"}).Do(t, env.Handler)
	if rr.Code != http.StatusOK {
		t.Fatalf("latest: status %d", rr.Code)
	}
	var latest struct {
		ID       string `json:"id"`
		IsActive bool   `json:"isActive"`
	}
	decodeBody(t, rr.Body.Bytes(), &latest)
	if latest.ID != created.ID || !latest.IsActive {
		t.Errorf("unexpected latest snippet: %+v", latest)
	}

	rr = (&testutil.HTTPRequest{Method: "GET", Path: "/js-snippets/latest-script.js"}).Do(t, env.Handler)
	if rr.Code != http.StatusOK || rr.Body.String() != "alert(1)" {
		t.Fatalf("latest-script: status %d, body %q", rr.Code, rr.Body.String())
	}
	if ct := rr.Header().Get("Content-Type"); ct != "application/javascript" {
		t.Errorf("content type = %q", ct)
	}

	rr = (&testutil.HTTPRequest{
		Method:  "POST",
		Path:    "/js-snippets/deactivate",
		Body:    `{"snippetId":"` + created.ID + `"}`,
		Headers: authHeaders(token),
	}).Do(t, env.Handler)
	if rr.Code != http.StatusOK {
		t.Fatalf("deactivate: status %d", rr.Code)
	}
	rr = (&testutil.HTTPRequest{Method: "GET", Path: "/js-snippets/latest"}).Do(t, env.Handler)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("latest after deactivate: status %d, want 404", rr.Code)
	}
}

func TestDeleteActiveSnippetClearsSlot(t *testing.T) {
	env := testutil.NewEnv(t)
	token := env.Login(t)
	snippet := testutil.SeedSnippet(t, env.Store, "promo", "alert(1)")

	rr := (&testutil.HTTPRequest{
		Method:  "POST",
		Path:    "/js-snippets/execute",
		Body:    `{"snippetId":"` + snippet.ID + `"}`,
		Headers: authHeaders(token),
	}).Do(t, env.Handler)
	if rr.Code != http.StatusOK {
		t.Fatalf("execute: status %d", rr.Code)
	}

	rr = (&testutil.HTTPRequest{Method: "DELETE", Path: "/js-snippets/" + snippet.ID, Headers: authHeaders(token)}).Do(t, env.Handler)
	if rr.Code != http.StatusOK {
		t.Fatalf("delete: status %d", rr.Code)
	}
	rr = (&testutil.HTTPRequest{Method: "GET", Path: "/js-snippets/latest"}).Do(t, env.Handler)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("latest after delete: status %d, want 404", rr.Code)
	}
}

func TestRealtimeUpgradeThroughRouter(t *testing.T) {
	env := testutil.NewEnv(t)
	token := env.Login(t)
	snippet := testutil.SeedSnippet(t, env.Store, "promo", "alert(1)")

	// The websocket endpoint sits behind the full middleware chain, so the
	// upgrade has to survive the instrumented response writer.
	server := httptest.NewServer(env.Handler)
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "/realtime"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial /realtime: %v", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for env.Hub.ClientCount() != 1 {
		if time.Now().After(deadline) {
			t.Fatalf("client count = %d, want 1", env.Hub.ClientCount())
		}
		time.Sleep(10 * time.Millisecond)
	}

	rr := (&testutil.HTTPRequest{
		Method:  "POST",
		Path:    "/js-snippets/execute",
		Body:    `{"snippetId":"` + snippet.ID + `"}`,
		Headers: authHeaders(token),
	}).Do(t, env.Handler)
	if rr.Code != http.StatusOK {
		t.Fatalf("execute: status %d, body %s", rr.Code, rr.Body.String())
	}
	var execResp struct {
		Clients int `json:"clients"`
	}
	decodeBody(t, rr.Body.Bytes(), &execResp)
	if execResp.Clients != 1 {
		t.Errorf("clients = %d, want 1", execResp.Clients)
	}

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read broadcast: %v", err)
	}
	var event struct {
		Event       string `json:"event"`
		SnippetID   string `json:"snippetId"`
		SnippetCode string `json:"snippetCode"`
	}
	decodeBody(t, msg, &event)
	if event.Event != "executeScript" || event.SnippetID != snippet.ID || event.SnippetCode != "alert(1)" {
		t.Errorf("unexpected event: %+v", event)
	}
}

func TestExecuteUnknownSnippet(t *testing.T) {
	env := testutil.NewEnv(t)
	token := env.Login(t)

	rr := (&testutil.HTTPRequest{
		Method:  "POST",
		Path:    "/js-snippets/execute",
		Body:    `{"snippetId":"missing"}`,
		Headers: authHeaders(token),
	}).Do(t, env.Handler)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rr.Code)
	}
}

func TestTrackMatchesAndReportsUniqueness(t *testing.T) {
	env := testutil.NewEnv(t)
	env.Geo["9.9.9.9"] = "DE"
	snippet := testutil.SeedSnippet(t, env.Store, "promo", "alert(1)")
	rule := testutil.SeedRule(t, env.Store, store.RuleParams{
		URLPattern: "example.com",
		Countries:  []string{"DE"},
		Percentage: 100,
		ScriptID:   &snippet.ID,
		IsActive:   true,
	})

	headers := map[string]string{"X-Forwarded-For": "9.9.9.9"}
	rr := (&testutil.HTTPRequest{
		Method:  "POST",
		Path:    "/visitors/track",
		Body:    `{"url":"https://example.com/pricing"}`,
		Headers: headers,
	}).Do(t, env.Handler)
	if rr.Code != http.StatusOK {
		t.Fatalf("track: status %d, body %s", rr.Code, rr.Body.String())
	}
	var resp struct {
		UniqueVisit      bool     `json:"uniqueVisit"`
		TriggeredCount   int      `json:"triggeredCount"`
		TriggeredRuleIDs []string `json:"triggeredRuleIds"`
		SnippetCodes     []string `json:"snippetCodes"`
	}
	decodeBody(t, rr.Body.Bytes(), &resp)
	if !resp.UniqueVisit || resp.TriggeredCount != 1 {
		t.Errorf("unexpected track response: %+v", resp)
	}
	if len(resp.TriggeredRuleIDs) != 1 || resp.TriggeredRuleIDs[0] != rule.ID {
		t.Errorf("triggered rule ids: %v, want [%s]", resp.TriggeredRuleIDs, rule.ID)
	}
	if len(resp.SnippetCodes) != 1 || resp.SnippetCodes[0] != "alert(1)" {
		t.Errorf("snippet codes: %v", resp.SnippetCodes)
	}
	if pushes := env.Broadcasts.Pushes(); len(pushes) != 1 || pushes[0] != snippet.ID {
		t.Errorf("expected one realtime push of %s, got %v", snippet.ID, pushes)
	}

	// Same pair again: liveness refresh, not a new unique.
	rr = (&testutil.HTTPRequest{
		Method:  "POST",
		Path:    "/visitors/track",
		Body:    `{"url":"https://example.com/pricing"}`,
		Headers: headers,
	}).Do(t, env.Handler)
	decodeBody(t, rr.Body.Bytes(), &resp)
	if resp.UniqueVisit {
		t.Error("second track of the same pair must not be unique")
	}
}

func TestTrackRejectsBadBody(t *testing.T) {
	env := testutil.NewEnv(t)

	tests := []struct {
		name string
		body string
		code string
	}{
		{"broken json", `{"url":`, "INVALID_JSON"},
		{"missing url", `{}`, "MISSING_FIELD"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := (&testutil.HTTPRequest{Method: "POST", Path: "/visitors/track", Body: tt.body}).Do(t, env.Handler)
			if rr.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400", rr.Code)
			}
			var resp struct {
				Code string `json:"code"`
			}
			decodeBody(t, rr.Body.Bytes(), &resp)
			if resp.Code != tt.code {
				t.Errorf("code = %q, want %q", resp.Code, tt.code)
			}
		})
	}
}

func TestPingCreatesOrRefreshes(t *testing.T) {
	env := testutil.NewEnv(t)
	headers := map[string]string{"X-Forwarded-For": "9.9.9.9"}

	rr := (&testutil.HTTPRequest{
		Method:  "POST",
		Path:    "/visitors/ping",
		Body:    `{"url":"https://example.com"}`,
		Headers: headers,
	}).Do(t, env.Handler)
	if rr.Code != http.StatusOK {
		t.Fatalf("ping: status %d", rr.Code)
	}
	var resp struct {
		OK      bool `json:"ok"`
		Created bool `json:"created"`
	}
	decodeBody(t, rr.Body.Bytes(), &resp)
	if !resp.OK || !resp.Created {
		t.Errorf("first ping should create a row: %+v", resp)
	}

	rr = (&testutil.HTTPRequest{
		Method:  "POST",
		Path:    "/visitors/ping",
		Body:    `{"url":"https://example.com"}`,
		Headers: headers,
	}).Do(t, env.Handler)
	decodeBody(t, rr.Body.Bytes(), &resp)
	if resp.Created {
		t.Error("second ping should refresh, not create")
	}
}

func TestMatchingLiveAndForced(t *testing.T) {
	env := testutil.NewEnv(t)
	env.Geo["9.9.9.9"] = "DE"
	snippet := testutil.SeedSnippet(t, env.Store, "promo", "alert(1)")
	testutil.SeedRule(t, env.Store, store.RuleParams{
		URLPattern: "example.com",
		Countries:  []string{"FR"},
		Percentage: 100,
		ScriptID:   &snippet.ID,
		IsActive:   true,
	})
	headers := map[string]string{"X-Forwarded-For": "9.9.9.9"}

	// Live mode resolves the caller's country, which does not match.
	rr := (&testutil.HTTPRequest{
		Method:  "GET",
		Path:    "/rules/matching?url=example.com",
		Headers: headers,
	}).Do(t, env.Handler)
	if rr.Code != http.StatusOK {
		t.Fatalf("matching: status %d, body %s", rr.Code, rr.Body.String())
	}
	var resp struct {
		TriggeredCount int      `json:"triggeredCount"`
		SnippetCodes   []string `json:"snippetCodes"`
		Debug          struct {
			IP      string `json:"ip"`
			Country string `json:"country"`
			Mode    string `json:"mode"`
		} `json:"debug"`
	}
	decodeBody(t, rr.Body.Bytes(), &resp)
	if resp.TriggeredCount != 0 {
		t.Errorf("DE visitor must not match a FR rule: %+v", resp)
	}
	if resp.Debug.Mode != "live" || resp.Debug.Country != "DE" || resp.Debug.IP != "9.9.9.9" {
		t.Errorf("unexpected debug info: %+v", resp.Debug)
	}

	// test_country forces both the country and admission.
	rr = (&testutil.HTTPRequest{
		Method:  "GET",
		Path:    "/rules/matching?url=example.com&test_country=fr",
		Headers: headers,
	}).Do(t, env.Handler)
	decodeBody(t, rr.Body.Bytes(), &resp)
	if resp.TriggeredCount != 1 || len(resp.SnippetCodes) != 1 {
		t.Errorf("forced match failed: %+v", resp)
	}
	if resp.Debug.Mode != "forced" || resp.Debug.Country != "FR" {
		t.Errorf("unexpected debug info: %+v", resp.Debug)
	}
}

func TestMatchingRequiresURL(t *testing.T) {
	env := testutil.NewEnv(t)

	rr := (&testutil.HTTPRequest{Method: "GET", Path: "/rules/matching"}).Do(t, env.Handler)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rr.Code)
	}
}

func TestDashboardStats(t *testing.T) {
	env := testutil.NewEnv(t)
	token := env.Login(t)

	for _, ip := range []string{"1.1.1.1", "2.2.2.2"} {
		rr := (&testutil.HTTPRequest{
			Method:  "POST",
			Path:    "/visitors/track",
			Body:    `{"url":"https://example.com/pricing"}`,
			Headers: map[string]string{"X-Forwarded-For": ip},
		}).Do(t, env.Handler)
		if rr.Code != http.StatusOK {
			t.Fatalf("track: status %d", rr.Code)
		}
	}

	rr := (&testutil.HTTPRequest{Method: "GET", Path: "/visitors/dashboard-stats", Headers: authHeaders(token)}).Do(t, env.Handler)
	if rr.Code != http.StatusOK {
		t.Fatalf("dashboard-stats: status %d", rr.Code)
	}
	var resp struct {
		Domains []store.DomainStats `json:"domains"`
	}
	decodeBody(t, rr.Body.Bytes(), &resp)
	if len(resp.Domains) != 1 {
		t.Fatalf("expected one domain, got %+v", resp.Domains)
	}
	d := resp.Domains[0]
	if d.Domain != "example.com" || d.Visits != 2 || d.UniqueVisitors != 2 {
		t.Errorf("unexpected rollup: %+v", d)
	}
}

func TestUserActivities(t *testing.T) {
	env := testutil.NewEnv(t)
	token := env.Login(t)

	// Unmapped IP: the resolver reports the unknown sentinel, which the
	// admin API renders as a readable label.
	rr := (&testutil.HTTPRequest{
		Method:  "POST",
		Path:    "/visitors/track",
		Body:    `{"url":"https://example.com"}`,
		Headers: map[string]string{"X-Forwarded-For": "9.9.9.9"},
	}).Do(t, env.Handler)
	if rr.Code != http.StatusOK {
		t.Fatalf("track: status %d", rr.Code)
	}

	rr = (&testutil.HTTPRequest{
		Method:  "GET",
		Path:    "/visitors/user-activities?url=" + "https%3A%2F%2Fexample.com",
		Headers: authHeaders(token),
	}).Do(t, env.Handler)
	if rr.Code != http.StatusOK {
		t.Fatalf("user-activities: status %d, body %s", rr.Code, rr.Body.String())
	}
	var resp struct {
		Visitors []store.Visitor `json:"visitors"`
		Count    int             `json:"count"`
	}
	decodeBody(t, rr.Body.Bytes(), &resp)
	if resp.Count != 1 || len(resp.Visitors) != 1 {
		t.Fatalf("unexpected response: %+v", resp)
	}
	if resp.Visitors[0].Country != "Unknown" {
		t.Errorf("country = %q, want Unknown", resp.Visitors[0].Country)
	}

	rr = (&testutil.HTTPRequest{
		Method:  "GET",
		Path:    "/visitors/user-activities?url=x&limit=5000",
		Headers: authHeaders(token),
	}).Do(t, env.Handler)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("oversized limit: status %d, want 400", rr.Code)
	}

	rr = (&testutil.HTTPRequest{
		Method:  "GET",
		Path:    "/visitors/user-activities",
		Headers: authHeaders(token),
	}).Do(t, env.Handler)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("missing url: status %d, want 400", rr.Code)
	}
}
