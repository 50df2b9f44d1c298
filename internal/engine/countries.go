package engine

import (
	"strings"

	"tracklight/internal/geo"
)

// globalSentinel is a legacy value meaning "all countries". Older rule data
// carried it as a literal list entry; it is normalized away so an empty set
// is the only representation of a global rule.
const globalSentinel = "GLOBAL"

// NormalizeCountry upper-cases a country code and maps the legacy UK alias
// to its ISO code GB.
func NormalizeCountry(c string) string {
	c = strings.ToUpper(strings.TrimSpace(c))
	if c == "UK" {
		return "GB"
	}
	return c
}

// NormalizeCountries canonicalizes a rule's country set: codes upper-cased,
// UK aliased to GB, duplicates and empty entries dropped, and the GLOBAL
// sentinel removed. An empty result means every country is eligible.
func NormalizeCountries(countries []string) []string {
	out := make([]string, 0, len(countries))
	seen := make(map[string]bool, len(countries))
	for _, c := range countries {
		n := NormalizeCountry(c)
		if n == "" || n == globalSentinel || seen[n] {
			continue
		}
		seen[n] = true
		out = append(out, n)
	}
	return out
}

// countryAllowed reports whether a visitor country passes a rule's country
// filter. An empty set admits everyone, including unresolved visitors; a
// non-empty set never admits the unknown sentinel.
func countryAllowed(set []string, visitor string) bool {
	if len(set) == 0 {
		return true
	}
	if visitor == geo.Unknown {
		return false
	}
	visitor = NormalizeCountry(visitor)
	for _, c := range set {
		if NormalizeCountry(c) == visitor {
			return true
		}
	}
	return false
}
