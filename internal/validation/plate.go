// Package validation holds input checks for caller-supplied identifiers.
package validation

import (
	"regexp"
	"strings"

	"jpjgate/internal/errors"
)

var plateFormatRe = regexp.MustCompile(`^[A-Z]{1,3}\s?\d{1,4}\s?[A-Z]?$`)

// NormalizePlateNumber uppercases a plate and strips internal whitespace.
func NormalizePlateNumber(plate string) string {
	upper := strings.ToUpper(strings.TrimSpace(plate))
	return strings.ReplaceAll(upper, " ", "")
}

// ValidatePlateNumber checks that the input looks like a Malaysian
// registration plate (one to three letters, up to four digits, optional
// trailing letter). Returns the normalized form.
func ValidatePlateNumber(plate string) (string, error) {
	trimmed := strings.ToUpper(strings.TrimSpace(plate))
	if trimmed == "" {
		return "", errors.NewValidationError("plate_number", plate, "plate number is required")
	}
	if !plateFormatRe.MatchString(trimmed) {
		return "", errors.NewValidationError("plate_number", plate, "plate number format is invalid")
	}
	return NormalizePlateNumber(trimmed), nil
}
