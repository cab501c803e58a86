package provider

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/ranklens/ranklens/internal/locale"
	"github.com/ranklens/ranklens/internal/tracker"
)

// ScrapingRobot integrates scrapingrobot.com. The API wraps the SERP in
// a result envelope whose inner payload is itself a JSON string, so the
// decoder handles a second parsing pass. Sequential only.
type ScrapingRobot struct{}

func (s *ScrapingRobot) ID() string { return "scrapingrobot" }
func (s *ScrapingRobot) Name() string { return "Scraping Robot" }
func (s *ScrapingRobot) SupportsParallel() bool { return false }
func (s *ScrapingRobot) SupportsMapPack() bool { return false }
func (s *ScrapingRobot) SupportsCityLocation() bool { return false }
func (s *ScrapingRobot) AllowedCountries() []string { return nil }

// Timeout is raised above the global default; the serp module renders
// a full results page server-side before responding.
func (s *ScrapingRobot) Timeout() time.Duration { return 60 * time.Second }

func (s *ScrapingRobot) BuildRequest(k tracker.Keyword, set tracker.Settings) (Request, error) {
	country := locale.Normalize(k.Country, s.AllowedCountries())

	q := url.Values{}
	q.Set("token", set.APIKey)
	q.Set("module", "SerpModule")
	q.Set("query", cleanTerm(k.Keyword))
	q.Set("countryCode", strings.ToLower(country))
	q.Set("num", "100")
	if k.Device == tracker.DeviceMobile {
		q.Set("mobile", "true")
	}
	return Request{URL: "https://api.scrapingrobot.com/?" + q.Encode()}, nil
}

func (s *ScrapingRobot) DecodeResponse(in DecodeInput) (DecodeOutput, error) {
	parsed, err := payload(in)
	if err != nil {
		return DecodeOutput{}, err
	}
	root, ok := parsed.(map[string]any)
	if !ok {
		return DecodeOutput{}, fmt.Errorf("scrapingrobot: unexpected payload shape")
	}
	if status := stringField(root, "status"); status != "" && !strings.EqualFold(status, "success") {
		return DecodeOutput{}, fmt.Errorf("scrapingrobot: status %s", status)
	}

	inner := root["result"]
	// The result envelope may be a JSON string needing its own parse.
	if raw, ok := inner.(string); ok {
		var v any
		if err := json.Unmarshal([]byte(raw), &v); err != nil {
			return DecodeOutput{}, fmt.Errorf("parse scrapingrobot result: %w", err)
		}
		inner = v
	}
	obj, ok := inner.(map[string]any)
	if !ok {
		return DecodeOutput{}, fmt.Errorf("scrapingrobot: no result in payload")
	}
	return DecodeOutput{OrganicResults: organicFromList(obj["organicResults"])}, nil
}
