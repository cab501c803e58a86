package provider

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/ranklens/ranklens/internal/locale"
	"github.com/ranklens/ranklens/internal/tracker"
)

// ScrapingAnt integrates scrapingant.com. Country routing happens via
// proxy selection, which only a subset of countries supports.
// Sequential only.
type ScrapingAnt struct{}

func (s *ScrapingAnt) ID() string { return "scrapingant" }
func (s *ScrapingAnt) Name() string { return "ScrapingAnt" }
func (s *ScrapingAnt) SupportsParallel() bool { return false }
func (s *ScrapingAnt) SupportsMapPack() bool { return false }
func (s *ScrapingAnt) SupportsCityLocation() bool { return false }

func (s *ScrapingAnt) AllowedCountries() []string {
	return []string{"US", "GB", "DE", "FR", "ES", "IT", "NL", "BR", "IN", "JP", "AU", "CA"}
}

func (s *ScrapingAnt) Timeout() time.Duration { return 0 }

func (s *ScrapingAnt) BuildRequest(k tracker.Keyword, set tracker.Settings) (Request, error) {
	country := locale.Normalize(k.Country, s.AllowedCountries())
	loc := locale.Lookup(country)

	target := url.Values{}
	target.Set("q", cleanTerm(k.Keyword))
	target.Set("hl", loc.Language)
	target.Set("num", "100")
	searchURL := fmt.Sprintf("https://www.%s/search?%s", loc.DomainID, target.Encode())

	q := url.Values{}
	q.Set("url", searchURL)
	q.Set("x-api-key", set.APIKey)
	q.Set("proxy_country", strings.ToLower(country))
	q.Set("browser", "false")
	return Request{URL: "https://api.scrapingant.com/v2/extended?" + q.Encode()}, nil
}

func (s *ScrapingAnt) DecodeResponse(in DecodeInput) (DecodeOutput, error) {
	parsed, err := payload(in)
	if err != nil {
		return DecodeOutput{}, err
	}
	root, ok := parsed.(map[string]any)
	if !ok {
		return DecodeOutput{}, fmt.Errorf("scrapingant: unexpected payload shape")
	}
	if msg := stringField(root, "detail"); msg != "" {
		return DecodeOutput{}, fmt.Errorf("scrapingant: %s", msg)
	}
	results := root["organic_results"]
	if results == nil {
		results = root["results"]
	}
	if results == nil {
		return DecodeOutput{}, fmt.Errorf("scrapingant: no results in payload")
	}
	return DecodeOutput{OrganicResults: organicFromList(results)}, nil
}
