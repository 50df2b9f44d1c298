package webhook

import "time"

// Event types that can be delivered to webhook endpoints.
const (
	EventRuleTriggered      = "rule.triggered"
	EventSnippetActivated   = "snippet.activated"
	EventSnippetDeactivated = "snippet.deactivated"
)

// Event is the payload posted to every configured webhook endpoint.
type Event struct {
	Type      string    `json:"event"`
	Timestamp time.Time `json:"timestamp"`
	RuleID    string    `json:"ruleId,omitempty"`
	SnippetID string    `json:"snippetId,omitempty"`
	URL       string    `json:"url,omitempty"`
	Country   string    `json:"country,omitempty"`
}
