package engine

import (
	"reflect"
	"testing"

	"tracklight/internal/geo"
)

func TestNormalizeCountry(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"us", "US"},
		{"US", "US"},
		{" de ", "DE"},
		{"uk", "GB"},
		{"UK", "GB"},
		{"gb", "GB"},
		{"", ""},
	}

	for _, tt := range tests {
		if got := NormalizeCountry(tt.in); got != tt.want {
			t.Errorf("NormalizeCountry(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestNormalizeCountries(t *testing.T) {
	tests := []struct {
		name string
		in   []string
		want []string
	}{
		{"uppercased", []string{"us", "de"}, []string{"US", "DE"}},
		{"duplicates dropped", []string{"US", "us", "DE"}, []string{"US", "DE"}},
		{"uk aliased then deduped", []string{"uk", "GB"}, []string{"GB"}},
		{"global sentinel removed", []string{"GLOBAL", "US"}, []string{"US"}},
		{"empties dropped", []string{"", "  ", "FR"}, []string{"FR"}},
		{"all removed leaves empty set", []string{"global", ""}, []string{}},
		{"nil", nil, []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NormalizeCountries(tt.in)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("NormalizeCountries(%v) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestCountryAllowed(t *testing.T) {
	tests := []struct {
		name    string
		set     []string
		visitor string
		want    bool
	}{
		{"empty set admits anyone", nil, "US", true},
		{"empty set admits unknown", nil, geo.Unknown, true},
		{"member admitted", []string{"US", "GB"}, "US", true},
		{"non-member rejected", []string{"US", "GB"}, "FR", false},
		{"unknown never admitted by non-empty set", []string{"US"}, geo.Unknown, false},
		{"case-insensitive visitor", []string{"US"}, "us", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := countryAllowed(tt.set, tt.visitor); got != tt.want {
				t.Errorf("countryAllowed(%v, %q) = %t, want %t", tt.set, tt.visitor, got, tt.want)
			}
		})
	}
}
