// Package locale maps tracked country codes to Google search locales.
package locale

import "strings"

// Locale describes how to query Google for one country.
type Locale struct {
	Name     string
	City     string
	Language string
	// DomainID is the google_domain style identifier providers expect,
	// e.g. "google.co.uk".
	DomainID string
}

// DefaultCountry is used when a keyword's country is unknown to the
// table or disallowed by the selected provider.
const DefaultCountry = "US"

var countries = map[string]Locale{
	"US": {Name: "United States", City: "New York", Language: "en", DomainID: "google.com"},
	"GB": {Name: "United Kingdom", City: "London", Language: "en", DomainID: "google.co.uk"},
	"CA": {Name: "Canada", City: "Toronto", Language: "en", DomainID: "google.ca"},
	"AU": {Name: "Australia", City: "Sydney", Language: "en", DomainID: "google.com.au"},
	"DE": {Name: "Germany", City: "Berlin", Language: "de", DomainID: "google.de"},
	"FR": {Name: "France", City: "Paris", Language: "fr", DomainID: "google.fr"},
	"ES": {Name: "Spain", City: "Madrid", Language: "es", DomainID: "google.es"},
	"IT": {Name: "Italy", City: "Rome", Language: "it", DomainID: "google.it"},
	"NL": {Name: "Netherlands", City: "Amsterdam", Language: "nl", DomainID: "google.nl"},
	"BR": {Name: "Brazil", City: "Sao Paulo", Language: "pt", DomainID: "google.com.br"},
	"IN": {Name: "India", City: "Mumbai", Language: "en", DomainID: "google.co.in"},
	"JP": {Name: "Japan", City: "Tokyo", Language: "ja", DomainID: "google.co.jp"},
	"MX": {Name: "Mexico", City: "Mexico City", Language: "es", DomainID: "google.com.mx"},
	"SE": {Name: "Sweden", City: "Stockholm", Language: "sv", DomainID: "google.se"},
	"PL": {Name: "Poland", City: "Warsaw", Language: "pl", DomainID: "google.pl"},
	"SG": {Name: "Singapore", City: "Singapore", Language: "en", DomainID: "google.com.sg"},
	"ZA": {Name: "South Africa", City: "Johannesburg", Language: "en", DomainID: "google.co.za"},
	"NZ": {Name: "New Zealand", City: "Auckland", Language: "en", DomainID: "google.co.nz"},
	"IE": {Name: "Ireland", City: "Dublin", Language: "en", DomainID: "google.ie"},
	"CH": {Name: "Switzerland", City: "Zurich", Language: "de", DomainID: "google.ch"},
}

// Lookup returns the locale for a country code, falling back to the
// default country when the code is unknown.
func Lookup(country string) Locale {
	if l, ok := countries[strings.ToUpper(country)]; ok {
		return l
	}
	return countries[DefaultCountry]
}

// Known reports whether the country code is in the table.
func Known(country string) bool {
	_, ok := countries[strings.ToUpper(country)]
	return ok
}

// Normalize upper-cases the country code and substitutes the default
// country when the code is unknown or not in allowed (nil = all).
func Normalize(country string, allowed []string) string {
	c := strings.ToUpper(country)
	if !Known(c) {
		return DefaultCountry
	}
	if len(allowed) == 0 {
		return c
	}
	for _, a := range allowed {
		if strings.EqualFold(a, c) {
			return c
		}
	}
	return DefaultCountry
}
