// Package activestate tracks which snippet is currently active: the state
// the pull delivery path serves and the engine and admin execute action
// write. It is a dedicated single entry rather than a flag scattered across
// snippet rows, so concurrent triggers converge to one winner and multiple
// server instances can share it through Postgres or Redis.
package activestate

import "context"

// State holds the identifier of the currently active snippet.
// Activate replaces any previous value; there is never more than one.
type State interface {
	// Activate makes snippetID the single active snippet.
	Activate(ctx context.Context, snippetID string) error

	// Active returns the active snippet id, or ok=false when none is set.
	Active(ctx context.Context) (id string, ok bool, err error)

	// Deactivate clears the state if snippetID is still the active one.
	// Used when a snippet is deleted. A concurrent activation of another
	// snippet wins; that is fine.
	Deactivate(ctx context.Context, snippetID string) error

	// Close releases any resources held by the backend.
	Close() error
}
