// Package geo resolves client IP addresses to ISO 3166-1 alpha-2 country
// codes. Resolution is best-effort: every failure mode degrades to the
// Unknown sentinel so a broken or missing GeoIP database never fails a
// tracking request.
package geo

// Unknown is the sentinel country code for unresolvable addresses. It
// matches only rules with an empty country set.
const Unknown = "??"

// Resolver maps a client IP to a country code. Implementations must return
// Unknown rather than an error when the address cannot be resolved.
type Resolver interface {
	Country(ip string) string
}

// NopResolver always reports Unknown. Used when no GeoIP database is
// configured, matching the cold-start behavior of the lookup service.
type NopResolver struct{}

func (NopResolver) Country(string) string { return Unknown }

// StaticResolver resolves from a fixed map. Intended for tests.
type StaticResolver map[string]string

func (s StaticResolver) Country(ip string) string {
	if c, ok := s[ip]; ok {
		return c
	}
	return Unknown
}
