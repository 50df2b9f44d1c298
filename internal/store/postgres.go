package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// queryTimeout bounds every store call so a slow database cannot stall a
// tracking request indefinitely.
const queryTimeout = 5 * time.Second

// PostgresStore is a PostgreSQL implementation of the Store interface built
// on pgxpool with hand-written SQL.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore wraps an existing connection pool.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Pool exposes the underlying connection pool so other components can share
// the same database.
func (p *PostgresStore) Pool() *pgxpool.Pool { return p.pool }

// EnsureSchema creates the tables this store needs if they do not exist yet.
// Mirrors how the original deployment synced its schema at startup.
func (p *PostgresStore) EnsureSchema(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	_, err := p.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS snippets (
			id         UUID PRIMARY KEY,
			name       TEXT NOT NULL,
			script     TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		);
		CREATE TABLE IF NOT EXISTS rules (
			id          UUID PRIMARY KEY,
			url_pattern TEXT NOT NULL,
			countries   TEXT[] NOT NULL DEFAULT '{}',
			percentage  INT NOT NULL CHECK (percentage BETWEEN 0 AND 100),
			expression  TEXT,
			script_id   UUID REFERENCES snippets(id) ON DELETE SET NULL,
			is_active   BOOLEAN NOT NULL DEFAULT TRUE,
			created_at  TIMESTAMPTZ NOT NULL,
			updated_at  TIMESTAMPTZ NOT NULL
		);
		CREATE TABLE IF NOT EXISTS visitors (
			ip             TEXT NOT NULL,
			url            TEXT NOT NULL,
			country        TEXT NOT NULL,
			first_seen_at  TIMESTAMPTZ NOT NULL,
			last_active_at TIMESTAMPTZ NOT NULL,
			unique_visit   BOOLEAN NOT NULL,
			active         BOOLEAN NOT NULL,
			PRIMARY KEY (ip, url)
		);
		CREATE INDEX IF NOT EXISTS visitors_url_idx ON visitors (url, last_active_at DESC);
		CREATE TABLE IF NOT EXISTS users (
			id            UUID PRIMARY KEY,
			username      TEXT NOT NULL UNIQUE,
			password_hash TEXT NOT NULL,
			created_at    TIMESTAMPTZ NOT NULL
		);
	`)
	if err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// ---- rules ----

const ruleColumns = `id, url_pattern, countries, percentage, expression, script_id, is_active, created_at, updated_at`

func scanRule(row pgx.Row) (*Rule, error) {
	var r Rule
	err := row.Scan(&r.ID, &r.URLPattern, &r.Countries, &r.Percentage,
		&r.Expression, &r.ScriptID, &r.IsActive, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &r, nil
}

func (p *PostgresStore) ListRules(ctx context.Context) ([]Rule, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	rows, err := p.pool.Query(ctx, `SELECT `+ruleColumns+` FROM rules ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("query rules: %w", err)
	}
	defer rows.Close()

	var out []Rule
	for rows.Next() {
		r, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

func (p *PostgresStore) GetRule(ctx context.Context, id string) (*Rule, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	return scanRule(p.pool.QueryRow(ctx, `SELECT `+ruleColumns+` FROM rules WHERE id = $1`, id))
}

func (p *PostgresStore) CreateRule(ctx context.Context, params RuleParams) (*Rule, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	countries := params.Countries
	if countries == nil {
		countries = []string{}
	}
	return scanRule(p.pool.QueryRow(ctx, `
		INSERT INTO rules (id, url_pattern, countries, percentage, expression, script_id, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, now(), now())
		RETURNING `+ruleColumns,
		uuid.NewString(), params.URLPattern, countries, params.Percentage,
		params.Expression, params.ScriptID, params.IsActive))
}

func (p *PostgresStore) UpdateRule(ctx context.Context, id string, params RuleParams) (*Rule, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	countries := params.Countries
	if countries == nil {
		countries = []string{}
	}
	return scanRule(p.pool.QueryRow(ctx, `
		UPDATE rules
		SET url_pattern = $2, countries = $3, percentage = $4, expression = $5,
		    script_id = $6, is_active = $7, updated_at = now()
		WHERE id = $1
		RETURNING `+ruleColumns,
		id, params.URLPattern, countries, params.Percentage,
		params.Expression, params.ScriptID, params.IsActive))
}

func (p *PostgresStore) DeleteRule(ctx context.Context, id string) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	tag, err := p.pool.Exec(ctx, `DELETE FROM rules WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete rule: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ---- snippets ----

const snippetColumns = `id, name, script, created_at, updated_at`

func scanSnippet(row pgx.Row) (*Snippet, error) {
	var s Snippet
	err := row.Scan(&s.ID, &s.Name, &s.Script, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &s, nil
}

func (p *PostgresStore) ListSnippets(ctx context.Context) ([]Snippet, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	rows, err := p.pool.Query(ctx, `SELECT `+snippetColumns+` FROM snippets ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("query snippets: %w", err)
	}
	defer rows.Close()

	var out []Snippet
	for rows.Next() {
		s, err := scanSnippet(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *s)
	}
	return out, rows.Err()
}

func (p *PostgresStore) GetSnippet(ctx context.Context, id string) (*Snippet, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	return scanSnippet(p.pool.QueryRow(ctx, `SELECT `+snippetColumns+` FROM snippets WHERE id = $1`, id))
}

func (p *PostgresStore) CreateSnippet(ctx context.Context, params SnippetParams) (*Snippet, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	return scanSnippet(p.pool.QueryRow(ctx, `
		INSERT INTO snippets (id, name, script, created_at, updated_at)
		VALUES ($1, $2, $3, now(), now())
		RETURNING `+snippetColumns,
		uuid.NewString(), params.Name, params.Script))
}

func (p *PostgresStore) UpdateSnippet(ctx context.Context, id string, params SnippetParams) (*Snippet, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	return scanSnippet(p.pool.QueryRow(ctx, `
		UPDATE snippets SET name = $2, script = $3, updated_at = now()
		WHERE id = $1
		RETURNING `+snippetColumns,
		id, params.Name, params.Script))
}

func (p *PostgresStore) DeleteSnippet(ctx context.Context, id string) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	tag, err := p.pool.Exec(ctx, `DELETE FROM snippets WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete snippet: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ---- visitors ----

func (p *PostgresStore) RecordVisit(ctx context.Context, ip, url, country string, at time.Time, unique bool) (*Visitor, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var v Visitor
	var inserted bool
	err := p.pool.QueryRow(ctx, `
		INSERT INTO visitors (ip, url, country, first_seen_at, last_active_at, unique_visit, active)
		VALUES ($1, $2, $3, $4, $4, $5, TRUE)
		ON CONFLICT (ip, url)
		DO UPDATE SET last_active_at = EXCLUDED.last_active_at, active = TRUE
		RETURNING ip, url, country, first_seen_at, last_active_at, unique_visit, active, (xmax = 0)`,
		ip, url, country, at, unique).
		Scan(&v.IP, &v.URL, &v.Country, &v.FirstSeenAt, &v.LastActiveAt, &v.UniqueVisit, &v.Active, &inserted)
	if err != nil {
		return nil, false, fmt.Errorf("record visit: %w", err)
	}
	return &v, inserted, nil
}

func (p *PostgresStore) TouchVisitor(ctx context.Context, ip, url string, at time.Time) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	tag, err := p.pool.Exec(ctx, `
		UPDATE visitors SET last_active_at = $3, active = TRUE WHERE ip = $1 AND url = $2`,
		ip, url, at)
	if err != nil {
		return false, fmt.Errorf("touch visitor: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (p *PostgresStore) MarkInactiveBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	// Scoped to stale rows only, so the sweep never contends with the
	// track/ping hot path on fresh rows.
	tag, err := p.pool.Exec(ctx, `
		UPDATE visitors SET active = FALSE WHERE active = TRUE AND last_active_at < $1`,
		cutoff)
	if err != nil {
		return 0, fmt.Errorf("mark inactive: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (p *PostgresStore) ListVisitorsByURL(ctx context.Context, url string, limit int) ([]Visitor, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	rows, err := p.pool.Query(ctx, `
		SELECT ip, url, country, first_seen_at, last_active_at, unique_visit, active
		FROM visitors WHERE url = $1
		ORDER BY last_active_at DESC
		LIMIT $2`, url, limit)
	if err != nil {
		return nil, fmt.Errorf("query visitors: %w", err)
	}
	defer rows.Close()

	var out []Visitor
	for rows.Next() {
		var v Visitor
		if err := rows.Scan(&v.IP, &v.URL, &v.Country, &v.FirstSeenAt, &v.LastActiveAt, &v.UniqueVisit, &v.Active); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func (p *PostgresStore) DashboardStats(ctx context.Context) ([]DomainStats, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	rows, err := p.pool.Query(ctx, `
		SELECT url,
		       count(*),
		       count(*) FILTER (WHERE unique_visit),
		       count(*) FILTER (WHERE active),
		       count(*) FILTER (WHERE unique_visit AND first_seen_at >= date_trunc('day', now())),
		       max(last_active_at)
		FROM visitors
		GROUP BY url
		ORDER BY url`)
	if err != nil {
		return nil, fmt.Errorf("query dashboard stats: %w", err)
	}
	defer rows.Close()

	byDomain := make(map[string]*DomainStats)
	var order []string
	for rows.Next() {
		var st URLStats
		if err := rows.Scan(&st.URL, &st.Visits, &st.UniqueVisitors, &st.ActiveNow, &st.SameDayUniques, &st.LastVisitAt); err != nil {
			return nil, err
		}
		domain := domainOf(st.URL)
		ds, ok := byDomain[domain]
		if !ok {
			ds = &DomainStats{Domain: domain}
			byDomain[domain] = ds
			order = append(order, domain)
		}
		ds.Visits += st.Visits
		ds.UniqueVisitors += st.UniqueVisitors
		ds.ActiveNow += st.ActiveNow
		if st.LastVisitAt.After(ds.LastVisitAt) {
			ds.LastVisitAt = st.LastVisitAt
		}
		ds.URLs = append(ds.URLs, st)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]DomainStats, 0, len(order))
	for _, domain := range order {
		out = append(out, *byDomain[domain])
	}
	return out, nil
}

// ---- users ----

func (p *PostgresStore) GetUserByUsername(ctx context.Context, username string) (*User, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var u User
	err := p.pool.QueryRow(ctx, `
		SELECT id, username, password_hash, created_at FROM users WHERE username = $1`, username).
		Scan(&u.ID, &u.Username, &u.PasswordHash, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &u, nil
}

func (p *PostgresStore) CreateUser(ctx context.Context, username, passwordHash string) (*User, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var u User
	err := p.pool.QueryRow(ctx, `
		INSERT INTO users (id, username, password_hash, created_at)
		VALUES ($1, $2, $3, now())
		RETURNING id, username, password_hash, created_at`,
		uuid.NewString(), username, passwordHash).
		Scan(&u.ID, &u.Username, &u.PasswordHash, &u.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}
	return &u, nil
}

// Close closes the underlying connection pool.
func (p *PostgresStore) Close() error {
	p.pool.Close()
	return nil
}
