package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is an in-memory implementation of the Store interface.
// It uses maps guarded by an RWMutex and is suitable for development,
// testing, or single-instance deployments without Postgres.
type MemoryStore struct {
	mu       sync.RWMutex
	rules    map[string]Rule
	snippets map[string]Snippet
	visitors map[string]Visitor // keyed by ip + "\n" + url
	users    map[string]User    // keyed by username
	now      func() time.Time
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		rules:    make(map[string]Rule),
		snippets: make(map[string]Snippet),
		visitors: make(map[string]Visitor),
		users:    make(map[string]User),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func visitorKey(ip, url string) string { return ip + "\n" + url }

// ---- rules ----

func (m *MemoryStore) ListRules(ctx context.Context) ([]Rule, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Rule, 0, len(m.rules))
	for _, r := range m.rules {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *MemoryStore) GetRule(ctx context.Context, id string) (*Rule, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	r, ok := m.rules[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &r, nil
}

func (m *MemoryStore) CreateRule(ctx context.Context, p RuleParams) (*Rule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	r := Rule{
		ID:         uuid.NewString(),
		URLPattern: p.URLPattern,
		Countries:  append([]string(nil), p.Countries...),
		Percentage: p.Percentage,
		Expression: p.Expression,
		ScriptID:   p.ScriptID,
		IsActive:   p.IsActive,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	m.rules[r.ID] = r
	return &r, nil
}

func (m *MemoryStore) UpdateRule(ctx context.Context, id string, p RuleParams) (*Rule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.rules[id]
	if !ok {
		return nil, ErrNotFound
	}
	r.URLPattern = p.URLPattern
	r.Countries = append([]string(nil), p.Countries...)
	r.Percentage = p.Percentage
	r.Expression = p.Expression
	r.ScriptID = p.ScriptID
	r.IsActive = p.IsActive
	r.UpdatedAt = m.now()
	m.rules[id] = r
	return &r, nil
}

func (m *MemoryStore) DeleteRule(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.rules[id]; !ok {
		return ErrNotFound
	}
	delete(m.rules, id)
	return nil
}

// ---- snippets ----

func (m *MemoryStore) ListSnippets(ctx context.Context) ([]Snippet, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Snippet, 0, len(m.snippets))
	for _, s := range m.snippets {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *MemoryStore) GetSnippet(ctx context.Context, id string) (*Snippet, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.snippets[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &s, nil
}

func (m *MemoryStore) CreateSnippet(ctx context.Context, p SnippetParams) (*Snippet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	s := Snippet{
		ID:        uuid.NewString(),
		Name:      p.Name,
		Script:    p.Script,
		CreatedAt: now,
		UpdatedAt: now,
	}
	m.snippets[s.ID] = s
	return &s, nil
}

func (m *MemoryStore) UpdateSnippet(ctx context.Context, id string, p SnippetParams) (*Snippet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.snippets[id]
	if !ok {
		return nil, ErrNotFound
	}
	s.Name = p.Name
	s.Script = p.Script
	s.UpdatedAt = m.now()
	m.snippets[id] = s
	return &s, nil
}

func (m *MemoryStore) DeleteSnippet(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.snippets[id]; !ok {
		return ErrNotFound
	}
	delete(m.snippets, id)
	return nil
}

// ---- visitors ----

func (m *MemoryStore) RecordVisit(ctx context.Context, ip, url, country string, at time.Time, unique bool) (*Visitor, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := visitorKey(ip, url)
	if v, ok := m.visitors[key]; ok {
		v.LastActiveAt = at
		v.Active = true
		m.visitors[key] = v
		return &v, false, nil
	}

	v := Visitor{
		IP:           ip,
		URL:          url,
		Country:      country,
		FirstSeenAt:  at,
		LastActiveAt: at,
		UniqueVisit:  unique,
		Active:       true,
	}
	m.visitors[key] = v
	return &v, true, nil
}

func (m *MemoryStore) TouchVisitor(ctx context.Context, ip, url string, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := visitorKey(ip, url)
	v, ok := m.visitors[key]
	if !ok {
		return false, nil
	}
	v.LastActiveAt = at
	v.Active = true
	m.visitors[key] = v
	return true, nil
}

func (m *MemoryStore) MarkInactiveBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var n int64
	for key, v := range m.visitors {
		if v.Active && v.LastActiveAt.Before(cutoff) {
			v.Active = false
			m.visitors[key] = v
			n++
		}
	}
	return n, nil
}

func (m *MemoryStore) ListVisitorsByURL(ctx context.Context, url string, limit int) ([]Visitor, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Visitor, 0)
	for _, v := range m.visitors {
		if v.URL == url {
			out = append(out, v)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LastActiveAt.After(out[j].LastActiveAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryStore) DashboardStats(ctx context.Context) ([]DomainStats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	today := m.now().Truncate(24 * time.Hour)
	byURL := make(map[string]*URLStats)
	for _, v := range m.visitors {
		st, ok := byURL[v.URL]
		if !ok {
			st = &URLStats{URL: v.URL}
			byURL[v.URL] = st
		}
		st.Visits++
		if v.UniqueVisit {
			st.UniqueVisitors++
		}
		if v.Active {
			st.ActiveNow++
		}
		if v.UniqueVisit && !v.FirstSeenAt.Before(today) {
			st.SameDayUniques++
		}
		if v.LastActiveAt.After(st.LastVisitAt) {
			st.LastVisitAt = v.LastActiveAt
		}
	}

	byDomain := make(map[string]*DomainStats)
	for url, st := range byURL {
		domain := domainOf(url)
		ds, ok := byDomain[domain]
		if !ok {
			ds = &DomainStats{Domain: domain}
			byDomain[domain] = ds
		}
		ds.Visits += st.Visits
		ds.UniqueVisitors += st.UniqueVisitors
		ds.ActiveNow += st.ActiveNow
		if st.LastVisitAt.After(ds.LastVisitAt) {
			ds.LastVisitAt = st.LastVisitAt
		}
		ds.URLs = append(ds.URLs, *st)
	}

	out := make([]DomainStats, 0, len(byDomain))
	for _, ds := range byDomain {
		sort.Slice(ds.URLs, func(i, j int) bool { return ds.URLs[i].URL < ds.URLs[j].URL })
		out = append(out, *ds)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Domain < out[j].Domain })
	return out, nil
}

// domainOf extracts the host part of a tracked URL. Tracked URLs arrive from
// the beacon as full page locations, so this only needs to peel the scheme
// and path off.
func domainOf(url string) string {
	s := strings.TrimPrefix(url, "https://")
	s = strings.TrimPrefix(s, "http://")
	if i := strings.IndexAny(s, "/?#"); i >= 0 {
		s = s[:i]
	}
	return strings.ToLower(s)
}

// ---- users ----

func (m *MemoryStore) GetUserByUsername(ctx context.Context, username string) (*User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	u, ok := m.users[username]
	if !ok {
		return nil, ErrNotFound
	}
	return &u, nil
}

func (m *MemoryStore) CreateUser(ctx context.Context, username, passwordHash string) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	u := User{
		ID:           uuid.NewString(),
		Username:     username,
		PasswordHash: passwordHash,
		CreatedAt:    m.now(),
	}
	m.users[username] = u
	return &u, nil
}

// Close is a no-op for MemoryStore.
func (m *MemoryStore) Close() error { return nil }
