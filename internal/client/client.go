package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"tracklight/internal/store"
)

// Snippet is a snippet as the admin API reports it, with the derived
// active marker.
type Snippet struct {
	store.Snippet
	IsActive bool `json:"isActive"`
}

// Client is an HTTP client for the tracklight admin API. It logs in with
// the configured credentials on first use and reuses the session token.
type Client struct {
	BaseURL    string
	Username   string
	Password   string
	HTTPClient *http.Client

	token string
}

// NewClient creates a new API client
func NewClient(baseURL, username, password string) *Client {
	return &Client{
		BaseURL:  baseURL,
		Username: username,
		Password: password,
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// login exchanges the credentials for a session token.
func (c *Client) login(ctx context.Context) error {
	body, err := json.Marshal(map[string]string{
		"username": c.Username,
		"password": c.Password,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.BaseURL+"/auth/login", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("login failed (status %d): %s", resp.StatusCode, string(bodyBytes))
	}

	var result struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	c.token = result.Token
	return nil
}

// do performs an authenticated request and decodes the JSON response into
// out when out is non-nil.
func (c *Client) do(ctx context.Context, method, path string, payload, out any) error {
	if c.token == "" {
		if err := c.login(ctx); err != nil {
			return err
		}
	}

	var body io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("API error (status %d): %s", resp.StatusCode, string(bodyBytes))
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}

// RuleParams carries the rule fields the admin API accepts.
type RuleParams struct {
	URL        string   `json:"url"`
	Countries  []string `json:"countries"`
	Percentage int      `json:"percentage"`
	Expression *string  `json:"expression,omitempty"`
	ScriptID   *string  `json:"scriptId,omitempty"`
	IsActive   *bool    `json:"isActive,omitempty"`
}

// ListRules retrieves all targeting rules
func (c *Client) ListRules(ctx context.Context) ([]store.Rule, error) {
	var result struct {
		Rules []store.Rule `json:"rules"`
	}
	if err := c.do(ctx, "GET", "/rules", nil, &result); err != nil {
		return nil, err
	}
	return result.Rules, nil
}

// CreateRule creates a targeting rule
func (c *Client) CreateRule(ctx context.Context, params RuleParams) (*store.Rule, error) {
	var rule store.Rule
	if err := c.do(ctx, "POST", "/rules", params, &rule); err != nil {
		return nil, err
	}
	return &rule, nil
}

// UpdateRule updates an existing rule
func (c *Client) UpdateRule(ctx context.Context, id string, params RuleParams) (*store.Rule, error) {
	var rule store.Rule
	if err := c.do(ctx, "PUT", "/rules/"+url.PathEscape(id), params, &rule); err != nil {
		return nil, err
	}
	return &rule, nil
}

// DeleteRule deletes a rule
func (c *Client) DeleteRule(ctx context.Context, id string) error {
	return c.do(ctx, "DELETE", "/rules/"+url.PathEscape(id), nil, nil)
}

// SnippetParams carries the snippet fields the admin API accepts.
type SnippetParams struct {
	Name   string `json:"name"`
	Script string `json:"script"`
}

// ListSnippets retrieves all snippets
func (c *Client) ListSnippets(ctx context.Context) ([]Snippet, error) {
	var result struct {
		Snippets []Snippet `json:"snippets"`
	}
	if err := c.do(ctx, "GET", "/js-snippets", nil, &result); err != nil {
		return nil, err
	}
	return result.Snippets, nil
}

// CreateSnippet creates a snippet
func (c *Client) CreateSnippet(ctx context.Context, params SnippetParams) (*Snippet, error) {
	var snippet Snippet
	if err := c.do(ctx, "POST", "/js-snippets", params, &snippet); err != nil {
		return nil, err
	}
	return &snippet, nil
}

// UpdateSnippet updates an existing snippet
func (c *Client) UpdateSnippet(ctx context.Context, id string, params SnippetParams) (*Snippet, error) {
	var snippet Snippet
	if err := c.do(ctx, "PUT", "/js-snippets/"+url.PathEscape(id), params, &snippet); err != nil {
		return nil, err
	}
	return &snippet, nil
}

// DeleteSnippet deletes a snippet
func (c *Client) DeleteSnippet(ctx context.Context, id string) error {
	return c.do(ctx, "DELETE", "/js-snippets/"+url.PathEscape(id), nil, nil)
}

// ExecuteSnippet activates a snippet and pushes it to connected sessions.
// Returns how many realtime clients received the push.
func (c *Client) ExecuteSnippet(ctx context.Context, id string) (int, error) {
	var result struct {
		Clients int `json:"clients"`
	}
	err := c.do(ctx, "POST", "/js-snippets/execute", map[string]string{"snippetId": id}, &result)
	return result.Clients, err
}

// DeactivateSnippet clears the active slot if the snippet holds it
func (c *Client) DeactivateSnippet(ctx context.Context, id string) error {
	return c.do(ctx, "POST", "/js-snippets/deactivate", map[string]string{"snippetId": id}, nil)
}

// DashboardStats retrieves per-domain visit rollups
func (c *Client) DashboardStats(ctx context.Context) ([]store.DomainStats, error) {
	var result struct {
		Domains []store.DomainStats `json:"domains"`
	}
	if err := c.do(ctx, "GET", "/visitors/dashboard-stats", nil, &result); err != nil {
		return nil, err
	}
	return result.Domains, nil
}

// UserActivities retrieves recent visitors of one URL
func (c *Client) UserActivities(ctx context.Context, pageURL string) ([]store.Visitor, error) {
	var result struct {
		Visitors []store.Visitor `json:"visitors"`
	}
	path := "/visitors/user-activities?url=" + url.QueryEscape(pageURL)
	if err := c.do(ctx, "GET", path, nil, &result); err != nil {
		return nil, err
	}
	return result.Visitors, nil
}
