// Package tracker maintains visitor records and feeds visits into the
// matching engine. Tracking is best-effort from the beacon's point of view:
// the third-party script fires and forgets.
package tracker

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"tracklight/internal/engine"
	"tracklight/internal/geo"
	"tracklight/internal/store"
	"tracklight/internal/telemetry"
)

// Tracker upserts visitor records and runs matching on tracked visits.
type Tracker struct {
	store  store.Store
	geo    geo.Resolver
	engine *engine.Engine
	log    zerolog.Logger
	now    func() time.Time
}

// New creates a tracker.
func New(st store.Store, g geo.Resolver, eng *engine.Engine, log zerolog.Logger) *Tracker {
	return &Tracker{
		store:  st,
		geo:    g,
		engine: eng,
		log:    log,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Track records a visit for (ip, url) and immediately evaluates the rule
// set for it. The visitor record is created with uniqueVisit=true on first
// sight of the pair; later visits only refresh liveness.
func (t *Tracker) Track(ctx context.Context, url, ip string) (*store.Visitor, *engine.MatchResult, error) {
	country := t.geo.Country(ip)

	visitor, created, err := t.store.RecordVisit(ctx, ip, url, country, t.now(), true)
	if err != nil {
		return nil, nil, err
	}
	telemetry.VisitsTotal.Inc()
	if created {
		t.log.Info().Str("ip", ip).Str("url", url).Str("country", country).Msg("new visitor")
	}

	res, err := t.engine.EvaluateWithCountry(ctx, url, ip, country)
	if err != nil {
		return nil, nil, err
	}
	return visitor, res, nil
}

// Ping refreshes liveness for (ip, url). It never re-runs matching: a
// heartbeat is not a visit. When no record exists (server restarted, row
// swept) one is created with uniqueVisit=false so the pair is not counted
// as a fresh unique.
func (t *Tracker) Ping(ctx context.Context, url, ip string) (created bool, err error) {
	found, err := t.store.TouchVisitor(ctx, ip, url, t.now())
	if err != nil {
		return false, err
	}
	telemetry.HeartbeatsTotal.Inc()
	if found {
		return false, nil
	}

	country := t.geo.Country(ip)
	_, created, err = t.store.RecordVisit(ctx, ip, url, country, t.now(), false)
	return created, err
}
