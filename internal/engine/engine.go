// Package engine implements rule matching and script activation: given a
// visit, it decides which targeting rules trigger and which snippet gets
// delivered, then applies the side effects both delivery paths depend on:
// the shared active-script state for pull and a broadcast for push.
package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"tracklight/internal/activestate"
	"tracklight/internal/geo"
	"tracklight/internal/store"
	"tracklight/internal/telemetry"
)

// Broadcaster pushes an activated snippet to all connected sessions.
// Delivery is fire-and-forget; sessions that miss it catch up via pull.
type Broadcaster interface {
	ExecuteScript(snippetID, code string)
}

// Dispatcher records trigger events for external delivery (webhooks).
type Dispatcher interface {
	RuleTriggered(ruleID, snippetID, url, country string)
}

// MatchResult is the outcome of evaluating one visit against all rules.
type MatchResult struct {
	URL              string   `json:"url"`
	Country          string   `json:"country"`
	TriggeredRuleIDs []string `json:"triggeredRuleIds"`
	SnippetCodes     []string `json:"snippetCodes"`
	Forced           bool     `json:"forced"`
}

// StorageError wraps a persistence failure during evaluation. Callers map
// it to a server error; no snippet activation should be assumed when it is
// returned.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string { return fmt.Sprintf("storage: %s: %v", e.Op, e.Err) }
func (e *StorageError) Unwrap() error { return e.Err }

// Deps are the collaborators an Engine needs. Broadcaster and Events may be
// nil; the engine then skips the corresponding side effect.
type Deps struct {
	Store       store.Store
	Active      activestate.State
	Geo         geo.Resolver
	Roller      Roller
	Broadcaster Broadcaster
	Events      Dispatcher
	Logger      zerolog.Logger
}

// Engine evaluates visits against the rule set.
type Engine struct {
	store  store.Store
	active activestate.State
	geo    geo.Resolver
	roller Roller
	bc     Broadcaster
	events Dispatcher
	log    zerolog.Logger
}

// New creates an engine. A nil Roller defaults to RandomRoller.
func New(d Deps) *Engine {
	roller := d.Roller
	if roller == nil {
		roller = RandomRoller{}
	}
	geoResolver := d.Geo
	if geoResolver == nil {
		geoResolver = geo.NopResolver{}
	}
	return &Engine{
		store:  d.Store,
		active: d.Active,
		geo:    geoResolver,
		roller: roller,
		bc:     d.Broadcaster,
		events: d.Events,
		log:    d.Logger,
	}
}

// Evaluate resolves the client's country and runs the full matching
// pipeline with side effects. This is the live path used by visit tracking.
func (e *Engine) Evaluate(ctx context.Context, rawURL, clientIP string) (*MatchResult, error) {
	return e.run(ctx, rawURL, clientIP, e.geo.Country(clientIP), false)
}

// EvaluateWithCountry is Evaluate for callers that already resolved the
// country, so the lookup is not repeated.
func (e *Engine) EvaluateWithCountry(ctx context.Context, rawURL, clientIP, country string) (*MatchResult, error) {
	return e.run(ctx, rawURL, clientIP, country, false)
}

// ForceMatch runs the pipeline with the given country and admission forced
// (percentage treated as 100). This is the operator test/override mode of
// the pull endpoint; callers must mark it as such, never use it on the live
// path.
func (e *Engine) ForceMatch(ctx context.Context, rawURL, clientIP, country string) (*MatchResult, error) {
	return e.run(ctx, rawURL, clientIP, country, true)
}

func (e *Engine) run(ctx context.Context, rawURL, clientIP, country string, force bool) (*MatchResult, error) {
	url := CanonicalURL(rawURL)
	country = NormalizeCountry(country)

	res := &MatchResult{
		URL:              url,
		Country:          country,
		TriggeredRuleIDs: []string{},
		SnippetCodes:     []string{},
		Forced:           force,
	}

	rules, err := e.store.ListRules(ctx)
	if err != nil {
		return nil, &StorageError{Op: "list rules", Err: err}
	}

	for _, rule := range rules {
		if !rule.IsActive {
			continue
		}
		if !matchURL(url, CanonicalURL(rule.URLPattern)) {
			continue
		}
		if !countryAllowed(rule.Countries, country) {
			continue
		}
		if rule.Expression != nil {
			ok, exprErr := EvaluateExpression(*rule.Expression, VisitContext{URL: url, Country: country, IP: clientIP})
			if exprErr != nil {
				e.log.Warn().Err(exprErr).Str("rule_id", rule.ID).Msg("rule expression failed, skipping rule")
				continue
			}
			if !ok {
				continue
			}
		}
		if !force && !e.roller.Admit(clientIP, rule.ID, rule.Percentage) {
			continue
		}

		res.TriggeredRuleIDs = append(res.TriggeredRuleIDs, rule.ID)
		telemetry.RuleTriggersTotal.Inc()

		if rule.ScriptID == nil {
			continue
		}
		snippet, err := e.store.GetSnippet(ctx, *rule.ScriptID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				e.log.Warn().Str("rule_id", rule.ID).Str("script_id", *rule.ScriptID).Msg("rule references missing snippet")
				continue
			}
			return nil, &StorageError{Op: "get snippet", Err: err}
		}

		// Pull path state first, then push. The two writes are not atomic;
		// the accepted inconsistency window is bounded by the next trigger.
		if err := e.active.Activate(ctx, snippet.ID); err != nil {
			return nil, &StorageError{Op: "activate snippet", Err: err}
		}
		res.SnippetCodes = append(res.SnippetCodes, snippet.Script)

		if e.bc != nil {
			e.bc.ExecuteScript(snippet.ID, snippet.Script)
		}
		if e.events != nil {
			e.events.RuleTriggered(rule.ID, snippet.ID, url, country)
		}

		e.log.Info().
			Str("rule_id", rule.ID).
			Str("snippet_id", snippet.ID).
			Str("url", url).
			Str("country", country).
			Bool("forced", force).
			Msg("rule triggered")
	}

	return res, nil
}
