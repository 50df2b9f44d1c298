package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a rule, snippet, or user does not exist.
var ErrNotFound = errors.New("not found")

// Rule binds a URL pattern and audience filters to a snippet. A visit that
// passes every filter rolls against Percentage for admission.
type Rule struct {
	ID         string    `json:"id"`
	URLPattern string    `json:"urlPattern"`
	Countries  []string  `json:"countries"`            // normalized ISO alpha-2; empty means all countries
	Percentage int       `json:"percentage"`           // 0..100 admission probability
	Expression *string   `json:"expression,omitempty"` // optional JSON Logic targeting expression
	ScriptID   *string   `json:"scriptId,omitempty"`
	IsActive   bool      `json:"isActive"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// Snippet is a stored JavaScript payload. The body is opaque to the server.
// Whether a snippet is the currently active one is tracked separately by the
// activestate package, not as a column here.
type Snippet struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Script    string    `json:"script"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Visitor is one tracked (ip, url) pair. There is a single row per pair;
// repeat visits refresh it rather than appending.
type Visitor struct {
	IP           string    `json:"ip"`
	URL          string    `json:"url"`
	Country      string    `json:"country"`
	FirstSeenAt  time.Time `json:"firstSeenAt"`
	LastActiveAt time.Time `json:"lastActiveAt"`
	UniqueVisit  bool      `json:"uniqueVisit"`
	Active       bool      `json:"active"`
}

// User is an admin panel account.
type User struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"createdAt"`
}

// URLStats is the per-URL dashboard rollup.
type URLStats struct {
	URL            string    `json:"url"`
	Visits         int64     `json:"visits"`
	UniqueVisitors int64     `json:"uniqueVisitors"`
	ActiveNow      int64     `json:"activeNow"`
	SameDayUniques int64     `json:"sameDayUniques"`
	LastVisitAt    time.Time `json:"lastVisitAt"`
}

// DomainStats groups URL rollups under their host.
type DomainStats struct {
	Domain         string     `json:"domain"`
	Visits         int64      `json:"visits"`
	UniqueVisitors int64      `json:"uniqueVisitors"`
	ActiveNow      int64      `json:"activeNow"`
	LastVisitAt    time.Time  `json:"lastVisitAt"`
	URLs           []URLStats `json:"urls"`
}

// RuleParams carries the rule fields settable through the admin API.
type RuleParams struct {
	URLPattern string
	Countries  []string
	Percentage int
	Expression *string
	ScriptID   *string
	IsActive   bool
}

// SnippetParams carries the snippet fields settable through the admin API.
type SnippetParams struct {
	Name   string
	Script string
}

// Store is the persistence boundary shared by the engine, the tracker, and
// the admin API. Implementations must be safe for concurrent use.
type Store interface {
	// Rules.
	ListRules(ctx context.Context) ([]Rule, error)
	GetRule(ctx context.Context, id string) (*Rule, error)
	CreateRule(ctx context.Context, p RuleParams) (*Rule, error)
	UpdateRule(ctx context.Context, id string, p RuleParams) (*Rule, error)
	DeleteRule(ctx context.Context, id string) error

	// Snippets.
	ListSnippets(ctx context.Context) ([]Snippet, error)
	GetSnippet(ctx context.Context, id string) (*Snippet, error)
	CreateSnippet(ctx context.Context, p SnippetParams) (*Snippet, error)
	UpdateSnippet(ctx context.Context, id string, p SnippetParams) (*Snippet, error)
	DeleteSnippet(ctx context.Context, id string) error

	// Visitors. RecordVisit upserts the (ip, url) row: on insert the row is
	// created with UniqueVisit=unique; on update only liveness fields are
	// refreshed. TouchVisitor refreshes liveness and reports whether the row
	// existed. MarkInactiveBefore flips Active off on rows whose
	// LastActiveAt is older than cutoff and returns how many were flipped.
	RecordVisit(ctx context.Context, ip, url, country string, at time.Time, unique bool) (*Visitor, bool, error)
	TouchVisitor(ctx context.Context, ip, url string, at time.Time) (bool, error)
	MarkInactiveBefore(ctx context.Context, cutoff time.Time) (int64, error)
	ListVisitorsByURL(ctx context.Context, url string, limit int) ([]Visitor, error)
	DashboardStats(ctx context.Context) ([]DomainStats, error)

	// Admin accounts.
	GetUserByUsername(ctx context.Context, username string) (*User, error)
	CreateUser(ctx context.Context, username, passwordHash string) (*User, error)

	// Close releases any resources held by the store.
	Close() error
}
