package provider

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/ranklens/ranklens/internal/locale"
	"github.com/ranklens/ranklens/internal/tracker"
)

// ValueSerp integrates api.valueserp.com. Concurrent-call friendly, but
// its payloads carry no usable local pack data.
type ValueSerp struct{}

func (v *ValueSerp) ID() string { return "valueserp" }
func (v *ValueSerp) Name() string { return "Value Serp" }
func (v *ValueSerp) SupportsParallel() bool { return true }
func (v *ValueSerp) SupportsMapPack() bool { return false }
func (v *ValueSerp) SupportsCityLocation() bool { return true }
func (v *ValueSerp) AllowedCountries() []string { return nil }
func (v *ValueSerp) Timeout() time.Duration { return 0 }

func (v *ValueSerp) BuildRequest(k tracker.Keyword, set tracker.Settings) (Request, error) {
	country := locale.Normalize(k.Country, v.AllowedCountries())
	loc := locale.Lookup(country)

	q := url.Values{}
	q.Set("api_key", set.APIKey)
	q.Set("q", cleanTerm(k.Keyword))
	q.Set("gl", strings.ToLower(country))
	q.Set("hl", loc.Language)
	q.Set("google_domain", loc.DomainID)
	q.Set("device", string(k.Device))
	q.Set("num", "100")
	city := k.Location
	if city == "" {
		city = loc.City
	}
	q.Set("location", fmt.Sprintf("%s,%s", cleanTerm(city), loc.Name))
	return Request{URL: "https://api.valueserp.com/search?" + q.Encode()}, nil
}

func (v *ValueSerp) DecodeResponse(in DecodeInput) (DecodeOutput, error) {
	parsed, err := payload(in)
	if err != nil {
		return DecodeOutput{}, err
	}
	root, ok := parsed.(map[string]any)
	if !ok {
		return DecodeOutput{}, fmt.Errorf("valueserp: unexpected payload shape")
	}
	if info, ok := root["request_info"].(map[string]any); ok {
		if success, ok := info["success"].(bool); ok && !success {
			return DecodeOutput{}, fmt.Errorf("valueserp: %s", stringField(info, "message"))
		}
	}
	return DecodeOutput{OrganicResults: organicFromList(root["organic_results"])}, nil
}
