package models

import (
	"time"

	"civic/pkg/domain"
)

// Contact holds a representative's public contact channels.
type Contact struct {
	Phone         string `json:"phone,omitempty" yaml:"phone"`
	Email         string `json:"email,omitempty" yaml:"email"`
	Website       string `json:"website,omitempty" yaml:"website"`
	OfficeAddress string `json:"office_address,omitempty" yaml:"office_address"`
}

// Provenance records where a record came from and how far it is trusted.
type Provenance struct {
	Source     string  `json:"source" yaml:"source"`
	SourceURL  string  `json:"source_url,omitempty" yaml:"source_url"`
	Confidence float64 `json:"confidence" yaml:"confidence"`
}

// Representative is owned by the directory for its level. Jurisdictions only
// reference representatives through district keys.
type Representative struct {
	ID             string         `json:"id" yaml:"id"`
	Name           string         `json:"name" yaml:"name"`
	Level          domain.Level   `json:"level" yaml:"level"`
	Chamber        domain.Chamber `json:"chamber,omitempty" yaml:"chamber"`
	DistrictID     string         `json:"district_id" yaml:"district_id"`
	Party          string         `json:"party,omitempty" yaml:"party"`
	Contact        Contact        `json:"contact" yaml:"contact"`
	TermStart      *time.Time     `json:"term_start,omitempty" yaml:"term_start"`
	TermEnd        *time.Time     `json:"term_end,omitempty" yaml:"term_end"`
	Committees     []string       `json:"committees,omitempty" yaml:"committees"`
	Provenance     Provenance     `json:"provenance" yaml:"provenance"`
	LastVerifiedAt time.Time      `json:"last_verified_at" yaml:"last_verified_at"`
}
