package domain

import (
	"strings"

	dErrors "civic/pkg/domain-errors"
)

// ZipCode is a validated 5-digit U.S. postal code. It is only ever a lookup
// key; nothing in the engine owns a ZipCode's lifecycle.
type ZipCode string

// reservedZipCodes are syntactically valid but never assigned by USPS.
var reservedZipCodes = map[ZipCode]struct{}{
	"00000": {},
	"99999": {},
}

// ParseZipCode validates a ZIP code. ZIP+4 input ("95814-1234") is reduced to
// its 5-digit prefix; anything else that is not exactly five ASCII digits is
// rejected.
func ParseZipCode(s string) (ZipCode, error) {
	s = strings.TrimSpace(s)
	if len(s) == 10 && s[5] == '-' && allDigits(s[6:]) {
		s = s[:5]
	}
	if len(s) != 5 || !allDigits(s) {
		return "", dErrors.New(dErrors.CodeInvalidInput, "zip code must be 5 digits")
	}
	return ZipCode(s), nil
}

// MustZipCode parses a ZIP code, panicking if invalid. Tests and fixtures only.
func MustZipCode(s string) ZipCode {
	z, err := ParseZipCode(s)
	if err != nil {
		panic(err)
	}
	return z
}

// IsAssignable reports whether the code could belong to a real delivery area.
func (z ZipCode) IsAssignable() bool {
	if z == "" {
		return false
	}
	_, reserved := reservedZipCodes[z]
	return !reserved
}

func (z ZipCode) String() string {
	return string(z)
}

func allDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
