// Package zippopotam adapts the public Zippopotam.us postal-code API. It has
// no county data, so its candidates score below a full geocoder.
package zippopotam

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"civic/internal/civic/models"
	"civic/internal/geo/providers"
	"civic/pkg/domain"
)

const (
	DefaultID    = "zippopotam"
	maxBodyBytes = 256 << 10

	singlePlaceConfidence = 0.6
	multiPlaceConfidence  = 0.45
)

type Provider struct {
	id      string
	baseURL string
	client  *http.Client
}

type Option func(*Provider)

func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) {
		if c != nil {
			p.client = c
		}
	}
}

// New builds a provider; baseURL is the country root, e.g. https://api.zippopotam.us/us.
func New(baseURL string, timeout time.Duration, opts ...Option) *Provider {
	p := &Provider{
		id:      DefaultID,
		baseURL: strings.TrimRight(baseURL, "/"),
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
		Version:       "v1",
		Fields:        []string{providers.FieldCity, providers.FieldState, providers.FieldLocation},
		MaxConfidence: singlePlaceConfidence,
	}
}

func (p *Provider) Lookup(ctx context.Context, zip domain.ZipCode) ([]models.PlaceCandidate, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/"+zip.String(), nil)
	if err != nil {
		return nil, providers.NewProviderError(providers.ErrorInternal, p.id, "build request", err)
	}
	resp, err := p.client.Do(req)
	if err != nil {
		if ctx.Err() != nil || errors.Is(err, context.DeadlineExceeded) {
			return nil, providers.NewProviderError(providers.ErrorTimeout, p.id, "request timed out", err)
		}
		return nil, providers.NewProviderError(providers.ErrorProviderOutage, p.id, "request failed", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, providers.NewProviderError(providers.ErrorProviderOutage, p.id, "read body", err)
	}
	return parsePostcodeResponse(p.id, zip, resp.StatusCode, body)
}

func (p *Provider) Health(ctx context.Context) error {
	_, err := p.Lookup(ctx, domain.MustZipCode("90210"))
	return err
}

type postcodeResponse struct {
	PostCode string  `json:"post code"`
	Country  string  `json:"country abbreviation"`
	Places   []place `json:"places"`
}

type place struct {
	Name      string `json:"place name"`
	StateAbbr string `json:"state abbreviation"`
	Latitude  string `json:"latitude"`
	Longitude string `json:"longitude"`
}

func parsePostcodeResponse(id string, zip domain.ZipCode, status int, body []byte) ([]models.PlaceCandidate, error) {
	// Unknown codes come back as 404 with an empty object.
	if status == http.StatusNotFound {
		return nil, nil
	}
	if status != http.StatusOK {
		return nil, providers.NewProviderError(providers.CategoryForStatus(status), id,
			fmt.Sprintf("unexpected status %d", status), nil)
	}
	var resp postcodeResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, providers.NewProviderError(providers.ErrorBadData, id, "decode response", err)
	}
	if resp.PostCode != "" && resp.PostCode != zip.String() {
		return nil, providers.NewProviderError(providers.ErrorContractMismatch, id,
			"response for post code "+resp.PostCode, nil)
	}

	confidence := singlePlaceConfidence
	if len(resp.Places) > 1 {
		confidence = multiPlaceConfidence
	}
	out := make([]models.PlaceCandidate, 0, len(resp.Places))
	for _, pl := range resp.Places {
		out = append(out, models.PlaceCandidate{
			ZipCode:    zip,
			City:       pl.Name,
			State:      pl.StateAbbr,
			Location:   parseCoordinates(pl.Latitude, pl.Longitude),
			Confidence: confidence,
		})
	}
	return out, nil
}

func parseCoordinates(lat, lng string) *models.Coordinates {
	la, err1 := strconv.ParseFloat(lat, 64)
	lo, err2 := strconv.ParseFloat(lng, 64)
	if err1 != nil || err2 != nil {
		return nil
	}
	return &models.Coordinates{Latitude: la, Longitude: lo}
}
