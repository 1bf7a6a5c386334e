package handler

import (
	"strings"

	"civic/pkg/domain"
	dErrors "civic/pkg/domain-errors"
)

// InvalidateRequest is the body of POST /v1/admin/cache/invalidate. Exactly
// one of ZipCode or (Level, DistrictID) is set.
type InvalidateRequest struct {
	ZipCode    string `json:"zip"`
	Level      string `json:"level"`
	DistrictID string `json:"district_id"`

	parsedLevel domain.Level
}

// Validate implements httputil.Validatable.
func (r *InvalidateRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	r.ZipCode = strings.TrimSpace(r.ZipCode)
	r.Level = strings.TrimSpace(r.Level)
	r.DistrictID = strings.TrimSpace(r.DistrictID)

	hasZip := r.ZipCode != ""
	hasDistrict := r.Level != "" || r.DistrictID != ""
	switch {
	case hasZip && hasDistrict:
		return dErrors.New(dErrors.CodeValidation, "give either zip or level and district_id, not both")
	case hasZip:
		if _, err := domain.ParseZipCode(r.ZipCode); err != nil {
			return err
		}
		return nil
	case hasDistrict:
		if r.Level == "" || r.DistrictID == "" {
			return dErrors.New(dErrors.CodeValidation, "level and district_id are both required")
		}
		level, err := domain.ParseLevel(r.Level)
		if err != nil {
			return dErrors.New(dErrors.CodeValidation, err.Error())
		}
		r.parsedLevel = level
		return nil
	default:
		return dErrors.New(dErrors.CodeValidation, "zip or level and district_id is required")
	}
}

// InvalidateResponse echoes what was dropped.
type InvalidateResponse struct {
	Invalidated string `json:"invalidated"`
}
