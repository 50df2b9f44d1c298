package engine

import "strings"

// CanonicalURL normalizes a URL (or URL fragment) for matching: trimmed,
// lower-cased, scheme and leading "www." peeled off, trailing slash dropped.
//
// The same canonicalization is applied when a rule pattern is stored and
// when a visit is evaluated, so "https://www.Example.com/Pricing/" and
// "example.com/pricing" compare equal. Matching is substring containment,
// not exact equality: a pattern of "example.com" covers every page on the
// site, while "example.com/pricing" narrows to one path.
func CanonicalURL(raw string) string {
	s := strings.ToLower(strings.TrimSpace(raw))
	s = strings.TrimPrefix(s, "https://")
	s = strings.TrimPrefix(s, "http://")
	s = strings.TrimPrefix(s, "www.")
	return strings.TrimSuffix(s, "/")
}

// matchURL reports whether the canonicalized visit URL contains the
// canonicalized rule pattern. An empty pattern matches nothing.
func matchURL(visited, pattern string) bool {
	if pattern == "" {
		return false
	}
	return strings.Contains(visited, pattern)
}
