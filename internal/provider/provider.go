// Package provider defines the pluggable SERP provider contract and
// the closed registry of concrete adapters.
package provider

import (
	"errors"
	"fmt"
	"net/http"
	"sort"
	"time"

	"github.com/ranklens/ranklens/internal/tracker"
)

// ErrUnknownProvider is returned by the registry for ids it does not hold.
var ErrUnknownProvider = errors.New("unknown scraper provider")

// Request is a provider API call ready to execute: the full URL with
// the API key embedded, plus any provider-specific headers.
type Request struct {
	URL     string
	Headers http.Header
}

// DecodeInput carries everything an adapter needs to decode a response.
// Parsed, when non-nil, is a pre-parsed payload; otherwise adapters
// parse Body themselves.
type DecodeInput struct {
	Body     []byte
	Parsed   any
	Keyword  tracker.Keyword
	Settings tracker.Settings
}

// DecodeOutput is the provider-neutral refresh result.
// HasLocalSection reports whether the payload contained a local results
// section at all (even empty); its absence on a mobile keyword triggers
// the sibling-desktop map-pack fallback in the orchestrator.
type DecodeOutput struct {
	OrganicResults  []tracker.SerpResult
	LocalResults    []tracker.SerpResult
	MapPackTop3     bool
	HasLocalSection bool
}

// Adapter is one pluggable integration with a third-party SERP API.
type Adapter interface {
	// ID is the stable identifier providers are selected by.
	ID() string
	// Name is the human-readable display name.
	Name() string
	// SupportsParallel reports whether the API tolerates concurrent
	// high-rate calls; others are scraped strictly sequentially.
	SupportsParallel() bool
	// SupportsMapPack reports whether the adapter can detect local
	// pack membership. Adapters returning false never set
	// DecodeOutput.MapPackTop3.
	SupportsMapPack() bool
	// SupportsCityLocation reports whether city-level locations are
	// honored in requests.
	SupportsCityLocation() bool
	// AllowedCountries restricts the country codes the API accepts;
	// nil means all. Requests for other countries fall back to the
	// default country.
	AllowedCountries() []string
	// Timeout overrides the global request timeout when positive.
	Timeout() time.Duration

	BuildRequest(k tracker.Keyword, s tracker.Settings) (Request, error)
	DecodeResponse(in DecodeInput) (DecodeOutput, error)
}

// Registry holds the closed set of adapters keyed by id.
type Registry struct {
	adapters map[string]Adapter
}

// NewRegistry builds the registry with every known adapter.
func NewRegistry() *Registry {
	r := &Registry{adapters: make(map[string]Adapter)}
	for _, a := range []Adapter{
		&SerpAPI{},
		&ValueSerp{},
		&SpaceSerp{},
		&Serply{},
		&ScrapingRobot{},
		&ScrapingAnt{},
	} {
		r.adapters[a.ID()] = a
	}
	return r
}

// Lookup resolves an adapter by id, rejecting unknown ids up front
// rather than at call time.
func (r *Registry) Lookup(id string) (Adapter, error) {
	a, ok := r.adapters[id]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, id)
	}
	return a, nil
}

// IDs returns the registered provider ids in stable order.
func (r *Registry) IDs() []string {
	ids := make([]string, 0, len(r.adapters))
	for id := range r.adapters {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
