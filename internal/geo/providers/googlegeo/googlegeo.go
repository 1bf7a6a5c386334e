// Package googlegeo adapts the Google Geocoding API to the geo Provider port.
package googlegeo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"civic/internal/civic/models"
	"civic/internal/geo/providers"
	"civic/pkg/domain"
)

const (
	DefaultID      = "google"
	apiVersion     = "geocode/v1"
	maxBodyBytes   = 1 << 20
	partialPenalty = 0.6
	// Share of confidence kept by each place when a ZIP spans several localities.
	multiLocalityPenalty = 0.7
	missingCountyPenalty = 0.1
)

// locationTypeConfidence maps geometry.location_type to a base score.
var locationTypeConfidence = map[string]float64{
	"ROOFTOP":            0.95,
	"RANGE_INTERPOLATED": 0.9,
	"GEOMETRIC_CENTER":   0.85,
	"APPROXIMATE":        0.8,
}

// Provider queries Google's geocoder with a postal_code component filter.
type Provider struct {
	id      string
	baseURL string
	apiKey  string
	client  *http.Client
}

type Option func(*Provider)

// WithHTTPClient replaces the default client.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) {
		if c != nil {
			p.client = c
		}
	}
}

// WithID overrides DefaultID.
func WithID(id string) Option {
	return func(p *Provider) {
		if id != "" {
			p.id = id
		}
	}
}

// New builds a provider against baseURL (the geocode/json endpoint).
func New(baseURL, apiKey string, timeout time.Duration, opts ...Option) *Provider {
	p := &Provider{
		id:      DefaultID,
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  &http.Client{Timeout: timeout},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Provider) ID() string {
	return p.id
}

func (p *Provider) Capabilities() providers.Capabilities {
	return providers.Capabilities{
		Protocol:      providers.ProtocolHTTP,
		Version:       apiVersion,
		Fields:        []string{providers.FieldCity, providers.FieldCounty, providers.FieldState, providers.FieldLocation},
		MaxConfidence: 0.95,
	}
}

// Lookup geocodes the ZIP code restricted to the United States.
func (p *Provider) Lookup(ctx context.Context, zip domain.ZipCode) ([]models.PlaceCandidate, error) {
	if p.apiKey == "" {
		return nil, providers.NewProviderError(providers.ErrorAuthentication, p.id, "api key not configured", nil)
	}
	q := url.Values{}
	q.Set("components", "postal_code:"+zip.String()+"|country:US")
	q.Set("key", p.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"?"+q.Encode(), nil)
	if err != nil {
		return nil, providers.NewProviderError(providers.ErrorInternal, p.id, "build request", err)
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return nil, transportError(ctx, p.id, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, transportError(ctx, p.id, err)
	}
	return parseGeocodeResponse(p.id, zip, resp.StatusCode, body)
}

// Health issues a cheap request and reports transport or auth failures.
func (p *Provider) Health(ctx context.Context) error {
	_, err := p.Lookup(ctx, domain.MustZipCode("20500"))
	return err
}

func transportError(ctx context.Context, id string, err error) error {
	if ctx.Err() != nil || errors.Is(err, context.DeadlineExceeded) {
		return providers.NewProviderError(providers.ErrorTimeout, id, "request timed out", err)
	}
	var uerr *url.Error
	if errors.As(err, &uerr) && uerr.Timeout() {
		return providers.NewProviderError(providers.ErrorTimeout, id, "request timed out", err)
	}
	return providers.NewProviderError(providers.ErrorProviderOutage, id, "request failed", err)
}

type geocodeResponse struct {
	Status       string          `json:"status"`
	ErrorMessage string          `json:"error_message"`
	Results      []geocodeResult `json:"results"`
}

type geocodeResult struct {
	AddressComponents  []addressComponent `json:"address_components"`
	Geometry           geometry           `json:"geometry"`
	PartialMatch       bool               `json:"partial_match"`
	PostcodeLocalities []string           `json:"postcode_localities"`
}

type addressComponent struct {
	LongName  string   `json:"long_name"`
	ShortName string   `json:"short_name"`
	Types     []string `json:"types"`
}

type geometry struct {
	Location struct {
		Lat float64 `json:"lat"`
		Lng float64 `json:"lng"`
	} `json:"location"`
	LocationType string `json:"location_type"`
}

func parseGeocodeResponse(id string, zip domain.ZipCode, status int, body []byte) ([]models.PlaceCandidate, error) {
	if status != http.StatusOK {
		return nil, providers.NewProviderError(providers.CategoryForStatus(status), id,
			fmt.Sprintf("unexpected status %d", status), nil)
	}
	var resp geocodeResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, providers.NewProviderError(providers.ErrorBadData, id, "decode response", err)
	}

	switch resp.Status {
	case "OK":
	case "ZERO_RESULTS":
		return nil, nil
	case "OVER_QUERY_LIMIT", "OVER_DAILY_LIMIT":
		return nil, providers.NewProviderError(providers.ErrorRateLimited, id, resp.Status, nil)
	case "REQUEST_DENIED":
		return nil, providers.NewProviderError(providers.ErrorAuthentication, id, resp.ErrorMessage, nil)
	case "UNKNOWN_ERROR":
		return nil, providers.NewProviderError(providers.ErrorProviderOutage, id, resp.Status, nil)
	default:
		return nil, providers.NewProviderError(providers.ErrorContractMismatch, id,
			"unexpected status "+resp.Status, nil)
	}

	var out []models.PlaceCandidate
	for _, r := range resp.Results {
		out = append(out, candidatesFromResult(zip, r)...)
	}
	return out, nil
}

func candidatesFromResult(zip domain.ZipCode, r geocodeResult) []models.PlaceCandidate {
	var city, county, state, postal string
	for _, c := range r.AddressComponents {
		switch {
		case hasType(c, "postal_code"):
			postal = c.LongName
		case hasType(c, "locality"):
			city = c.LongName
		case hasType(c, "postal_town") && city == "":
			city = c.LongName
		case hasType(c, "administrative_area_level_2"):
			county = c.LongName
		case hasType(c, "administrative_area_level_1"):
			state = c.ShortName
		}
	}
	// A result for a different postal code is not an answer for this one.
	if postal != "" && postal != zip.String() {
		return nil
	}

	confidence, ok := locationTypeConfidence[r.Geometry.LocationType]
	if !ok {
		confidence = 0.5
	}
	if r.PartialMatch {
		confidence *= partialPenalty
	}
	if county == "" {
		confidence -= missingCountyPenalty
	}
	loc := &models.Coordinates{Latitude: r.Geometry.Location.Lat, Longitude: r.Geometry.Location.Lng}

	cities := []string{city}
	if len(r.PostcodeLocalities) > 1 {
		cities = r.PostcodeLocalities
		confidence *= multiLocalityPenalty
	}

	out := make([]models.PlaceCandidate, 0, len(cities))
	for _, name := range cities {
		if strings.TrimSpace(name) == "" {
			continue
		}
		out = append(out, models.PlaceCandidate{
			ZipCode:    zip,
			City:       name,
			County:     county,
			State:      state,
			Location:   loc,
			Confidence: models.ClampConfidence(confidence),
		})
	}
	return out
}

func hasType(c addressComponent, t string) bool {
	for _, ct := range c.Types {
		if ct == t {
			return true
		}
	}
	return false
}
