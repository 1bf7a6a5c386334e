package providers

import (
	"context"
	"fmt"

	"civic/internal/civic/models"
	"civic/pkg/domain"
)

// Protocol identifies how a provider is reached.
type Protocol string

const (
	ProtocolHTTP    Protocol = "http"
	ProtocolOffline Protocol = "offline"
)

// Field names a provider may populate on a candidate.
const (
	FieldCity     = "city"
	FieldCounty   = "county"
	FieldState    = "state"
	FieldLocation = "location"
)

// Capabilities describes what a provider returns.
type Capabilities struct {
	Protocol Protocol
	Version  string
	// Fields lists the candidate fields the provider can fill.
	Fields []string
	// MaxConfidence is the best score the provider ever reports.
	MaxConfidence float64
}

// Provides reports whether the provider declares the field.
func (c Capabilities) Provides(field string) bool {
	for _, f := range c.Fields {
		if f == field {
			return true
		}
	}
	return false
}

//go:generate mockgen -destination=mocks/mock_provider.go -package=mocks civic/internal/geo/providers Provider

// Provider is the port every geo lookup source implements.
type Provider interface {
	// ID returns a unique identifier for this provider instance
	ID() string

	Capabilities() Capabilities

	// Lookup returns the places the provider associates with zip. An empty
	// slice with a nil error means the provider knows nothing about the code.
	Lookup(ctx context.Context, zip domain.ZipCode) ([]models.PlaceCandidate, error)

	Health(ctx context.Context) error
}

// ProviderRegistry keeps providers in registration order, which is also the
// fallback priority order of the chain.
type ProviderRegistry struct {
	order     []string
	providers map[string]Provider
}

// NewProviderRegistry creates a new empty registry
func NewProviderRegistry() *ProviderRegistry {
	return &ProviderRegistry{
		providers: make(map[string]Provider),
	}
}

// Register appends a provider at the lowest priority so far.
func (r *ProviderRegistry) Register(p Provider) error {
	id := p.ID()
	if _, exists := r.providers[id]; exists {
		return fmt.Errorf("provider %s already registered", id)
	}
	r.providers[id] = p
	r.order = append(r.order, id)
	return nil
}

// Get retrieves a provider by ID
func (r *ProviderRegistry) Get(id string) (Provider, bool) {
	p, ok := r.providers[id]
	return p, ok
}

// Ordered returns all providers, highest priority first.
func (r *ProviderRegistry) Ordered() []Provider {
	result := make([]Provider, 0, len(r.order))
	for _, id := range r.order {
		result = append(result, r.providers[id])
	}
	return result
}

// Len returns the number of registered providers.
func (r *ProviderRegistry) Len() int {
	return len(r.order)
}
