package geo

import (
	"fmt"
	"net"

	"github.com/oschwald/geoip2-golang"
)

// MaxMindResolver resolves countries from a local MaxMind GeoLite2 database.
// Lookups are in-memory and do not leave the process, so no timeout handling
// is needed on the request path.
type MaxMindResolver struct {
	db *geoip2.Reader
}

// OpenMaxMind loads a GeoLite2 .mmdb file.
func OpenMaxMind(path string) (*MaxMindResolver, error) {
	db, err := geoip2.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open geoip database %s: %w", path, err)
	}
	return &MaxMindResolver{db: db}, nil
}

// Country returns the ISO country code for ip, or Unknown when the address
// is malformed or absent from the database.
func (r *MaxMindResolver) Country(ip string) string {
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return Unknown
	}
	rec, err := r.db.Country(parsed)
	if err != nil || rec.Country.IsoCode == "" {
		return Unknown
	}
	return rec.Country.IsoCode
}

// Close releases the memory-mapped database.
func (r *MaxMindResolver) Close() error { return r.db.Close() }
