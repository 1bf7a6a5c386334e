package providers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"civic/internal/civic/models"
	"civic/internal/geo/metrics"
	"civic/pkg/domain"
	"civic/pkg/platform/circuit"
)

// DefaultConfidenceFloor is the minimum confidence for a first-pass accept.
const DefaultConfidenceFloor = 0.5

const defaultProviderTimeout = 1500 * time.Millisecond

// Provider outcomes recorded per attempt.
const (
	OutcomeAccepted    = "accepted"
	OutcomeBelowFloor  = "below_floor"
	OutcomeEmpty       = "empty"
	OutcomeError       = "error"
	OutcomeCircuitOpen = "circuit_open"
)

// Attempt records what one provider contributed to a resolution.
type Attempt struct {
	ProviderID string
	Outcome    string
	Candidates int
	Duration   time.Duration
	Err        error
}

// Resolution is the chain's answer: the chosen candidate and the trail of
// providers consulted to get there.
type Resolution struct {
	Candidate models.PlaceCandidate
	Attempts  []Attempt
}

// Chain queries providers in priority order until one yields a candidate at
// or above the confidence floor. Failing providers are skipped, never retried
// within a call.
type Chain struct {
	registry        *ProviderRegistry
	floor           float64
	providerTimeout time.Duration
	breakers        map[string]*circuit.Breaker
	breakerOpts     []circuit.Option
	logger          *slog.Logger
	metrics         *metrics.Metrics
}

// ChainOption configures a Chain.
type ChainOption func(*Chain)

// WithConfidenceFloor overrides DefaultConfidenceFloor.
func WithConfidenceFloor(floor float64) ChainOption {
	return func(c *Chain) {
		c.floor = models.ClampConfidence(floor)
	}
}

// WithProviderTimeout bounds each provider call.
func WithProviderTimeout(d time.Duration) ChainOption {
	return func(c *Chain) {
		if d > 0 {
			c.providerTimeout = d
		}
	}
}

// WithBreakerOptions configures the per-provider circuit breakers.
func WithBreakerOptions(opts ...circuit.Option) ChainOption {
	return func(c *Chain) {
		c.breakerOpts = append(c.breakerOpts, opts...)
	}
}

func WithLogger(logger *slog.Logger) ChainOption {
	return func(c *Chain) {
		if logger != nil {
			c.logger = logger
		}
	}
}

func WithMetrics(m *metrics.Metrics) ChainOption {
	return func(c *Chain) {
		c.metrics = m
	}
}

// NewChain builds a chain over the registry's providers.
func NewChain(registry *ProviderRegistry, opts ...ChainOption) *Chain {
	c := &Chain{
		registry:        registry,
		floor:           DefaultConfidenceFloor,
		providerTimeout: defaultProviderTimeout,
		breakers:        make(map[string]*circuit.Breaker),
		logger:          slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	for _, p := range registry.Ordered() {
		c.breakers[p.ID()] = circuit.New(p.ID(), c.breakerOpts...)
	}
	return c
}

// Floor returns the configured confidence floor.
func (c *Chain) Floor() float64 {
	return c.floor
}

// Resolve walks the providers. The first candidate at or above the floor is
// returned as is. If none qualifies, the best below-floor candidate is
// returned re-tagged with Source "fallback". With no candidate at all the
// error is models.ErrJurisdictionUnresolved.
func (c *Chain) Resolve(ctx context.Context, zip domain.ZipCode) (Resolution, error) {
	var res Resolution
	if c.registry.Len() == 0 {
		c.metrics.IncrementChainResult("unresolved")
		return res, models.Unresolved(ErrNoProviders)
	}

	var (
		fallback    models.PlaceCandidate
		hasFallback bool
		failures    int
	)
	for priority, p := range c.registry.Ordered() {
		if ctx.Err() != nil {
			break
		}
		attempt, candidates := c.attempt(ctx, p, priority, zip)
		res.Attempts = append(res.Attempts, attempt)
		if attempt.Err != nil {
			failures++
			continue
		}

		best, ok := SelectBest(candidates)
		if !ok {
			continue
		}
		if best.Confidence >= c.floor {
			res.Attempts[len(res.Attempts)-1].Outcome = OutcomeAccepted
			c.metrics.IncrementChainResult("accepted")
			res.Candidate = best
			return res, nil
		}
		if !hasFallback || Better(best, fallback) {
			fallback, hasFallback = best, true
		}
	}

	if hasFallback {
		fallback.Source = models.SourceFallback
		c.logger.InfoContext(ctx, "geo chain accepted below-floor candidate",
			"zip", zip,
			"provider", fallback.ProviderID,
			"confidence", fallback.Confidence,
			"floor", c.floor,
		)
		c.metrics.IncrementChainResult("fallback")
		res.Candidate = fallback
		return res, nil
	}

	c.metrics.IncrementChainResult("unresolved")
	cause := ErrNoCandidates
	switch {
	case ctx.Err() != nil:
		return res, models.Unresolved(fmt.Errorf("%w: %w", models.ErrProviderTimeout, ctx.Err()))
	case failures == len(res.Attempts) && failures > 0:
		cause = ErrAllProvidersFailed
	}
	return res, models.Unresolved(cause)
}

func (c *Chain) attempt(ctx context.Context, p Provider, priority int, zip domain.ZipCode) (Attempt, []models.PlaceCandidate) {
	id := p.ID()
	attempt := Attempt{ProviderID: id}
	breaker := c.breakers[id]

	if breaker != nil && !breaker.Allow() {
		attempt.Outcome = OutcomeCircuitOpen
		attempt.Err = NewProviderError(ErrorCircuitOpen, id, "skipped while circuit open", nil)
		c.metrics.ObserveProvider(id, OutcomeCircuitOpen, 0)
		return attempt, nil
	}

	pctx, cancel := context.WithTimeout(ctx, c.providerTimeout)
	defer cancel()

	start := time.Now()
	raw, err := p.Lookup(pctx, zip)
	attempt.Duration = time.Since(start)

	if err == nil && pctx.Err() != nil {
		// Providers that ignore ctx must not sneak a late answer in.
		err = pctx.Err()
	}
	if err != nil {
		if GetCategory(err) == ErrorTimeout || errors.Is(err, context.DeadlineExceeded) {
			err = fmt.Errorf("%w: %w", models.ErrProviderTimeout, err)
		}
		attempt.Outcome = OutcomeError
		attempt.Err = err
		c.recordFailure(ctx, breaker, id, err)
		c.metrics.ObserveProvider(id, OutcomeError, attempt.Duration)
		c.logger.WarnContext(ctx, "geo provider lookup failed",
			"zip", zip,
			"provider", id,
			"category", string(GetCategory(err)),
			"error", err,
		)
		return attempt, nil
	}
	c.recordSuccess(ctx, breaker, id)

	candidates := normalize(raw, zip, id, priority)
	attempt.Candidates = len(candidates)
	switch best, ok := SelectBest(candidates); {
	case !ok:
		attempt.Outcome = OutcomeEmpty
	case best.Confidence >= c.floor:
		attempt.Outcome = OutcomeAccepted
	default:
		attempt.Outcome = OutcomeBelowFloor
	}
	c.metrics.ObserveProvider(id, attempt.Outcome, attempt.Duration)
	c.logger.DebugContext(ctx, "geo provider lookup",
		"zip", zip,
		"provider", id,
		"candidates", len(candidates),
		"outcome", attempt.Outcome,
	)
	return attempt, candidates
}

func (c *Chain) recordFailure(ctx context.Context, b *circuit.Breaker, id string, err error) {
	if b == nil {
		return
	}
	// Not-found answers are data, not provider health.
	if GetCategory(err) == ErrorNotFound {
		return
	}
	if _, change := b.RecordFailure(); change.Opened {
		c.metrics.IncrementBreakerTransition(id, "open")
		c.logger.WarnContext(ctx, "geo provider circuit opened", "provider", id, "error", err)
	}
}

func (c *Chain) recordSuccess(ctx context.Context, b *circuit.Breaker, id string) {
	if b == nil {
		return
	}
	if _, change := b.RecordSuccess(); change.Closed {
		c.metrics.IncrementBreakerTransition(id, "closed")
		c.logger.InfoContext(ctx, "geo provider circuit closed", "provider", id)
	}
}

// normalize stamps chain-owned fields and drops candidates that lack a city
// or state. Missing identity is never filled in here.
func normalize(raw []models.PlaceCandidate, zip domain.ZipCode, providerID string, priority int) []models.PlaceCandidate {
	out := make([]models.PlaceCandidate, 0, len(raw))
	for _, c := range raw {
		c.City = strings.TrimSpace(c.City)
		c.County = strings.TrimSpace(c.County)
		c.State = strings.ToUpper(strings.TrimSpace(c.State))
		if c.City == "" || c.State == "" {
			continue
		}
		if c.ZipCode == "" {
			c.ZipCode = zip
		}
		c.ProviderID = providerID
		c.Source = providerID
		c.Priority = priority
		c.Confidence = models.ClampConfidence(c.Confidence)
		out = append(out, c)
	}
	return out
}
