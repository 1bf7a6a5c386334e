// Package contract holds reusable checks every geo provider adapter must pass.
package contract

import (
	"context"
	"testing"

	"civic/internal/civic/models"
	"civic/internal/geo/providers"
	"civic/pkg/domain"
)

// ContractTest defines a test case for provider contract validation
type ContractTest struct {
	Name         string
	Zip          domain.ZipCode
	WantEmpty    bool
	ValidateFunc func(candidates []models.PlaceCandidate) error
}

// ContractSuite is a collection of contract tests for a provider
type ContractSuite struct {
	Provider providers.Provider
	Tests    []ContractTest
}

// Run executes all contract tests in the suite
func (s *ContractSuite) Run(t *testing.T) {
	t.Helper()
	for _, test := range s.Tests {
		t.Run(test.Name, func(t *testing.T) {
			candidates, err := s.Provider.Lookup(context.Background(), test.Zip)
			if err != nil {
				t.Fatalf("provider lookup failed: %v", err)
			}
			if test.WantEmpty {
				if len(candidates) != 0 {
					t.Fatalf("expected no candidates, got %d", len(candidates))
				}
				return
			}
			if len(candidates) == 0 {
				t.Fatal("expected at least one candidate")
			}

			maxConfidence := s.Provider.Capabilities().MaxConfidence
			for i, c := range candidates {
				if c.ZipCode != test.Zip {
					t.Errorf("candidate %d: zip %q, want %q", i, c.ZipCode, test.Zip)
				}
				if c.City == "" || c.State == "" {
					t.Errorf("candidate %d: city and state must be populated", i)
				}
				if c.Confidence < 0 || c.Confidence > 1.0 {
					t.Errorf("candidate %d: confidence %f out of range [0, 1]", i, c.Confidence)
				}
				if maxConfidence > 0 && c.Confidence > maxConfidence {
					t.Errorf("candidate %d: confidence %f above declared max %f", i, c.Confidence, maxConfidence)
				}
				if c.Source == models.SourceFallback {
					t.Errorf("candidate %d: providers must not tag fallback themselves", i)
				}
			}

			if test.ValidateFunc != nil {
				if err := test.ValidateFunc(candidates); err != nil {
					t.Errorf("custom validation failed: %v", err)
				}
			}
		})
	}
}

// CapabilityTest validates that provider capabilities are correctly declared
type CapabilityTest struct {
	Provider providers.Provider
}

// Run executes a capability test
func (ct *CapabilityTest) Run(t *testing.T) {
	t.Helper()
	caps := ct.Provider.Capabilities()

	if caps.Protocol == "" {
		t.Error("protocol not set")
	}
	if caps.Version == "" {
		t.Error("version not set")
	}
	if !caps.Provides(providers.FieldCity) || !caps.Provides(providers.FieldState) {
		t.Error("providers must at least declare city and state")
	}
	if caps.MaxConfidence <= 0 || caps.MaxConfidence > 1 {
		t.Errorf("max confidence %f out of range (0, 1]", caps.MaxConfidence)
	}
}

// ErrorContractTest validates that provider errors follow the taxonomy
type ErrorContractTest struct {
	Name          string
	Provider      providers.Provider
	Ctx           context.Context
	Zip           domain.ZipCode
	ExpectedError providers.ErrorCategory
	ExpectedRetry bool
}

// Run executes an error contract test
func (ect *ErrorContractTest) Run(t *testing.T) {
	t.Helper()
	ctx := ect.Ctx
	if ctx == nil {
		ctx = context.Background()
	}

	_, err := ect.Provider.Lookup(ctx, ect.Zip)
	if err == nil {
		t.Fatal("expected error but got none")
	}
	if category := providers.GetCategory(err); category != ect.ExpectedError {
		t.Errorf("expected error category %s, got %s", ect.ExpectedError, category)
	}
	if retryable := providers.IsRetryable(err); retryable != ect.ExpectedRetry {
		t.Errorf("expected retryable=%v, got %v", ect.ExpectedRetry, retryable)
	}
}
