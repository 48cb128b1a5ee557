// Package utils provides common utility functions for instrument code validation.
//
// Instrument codes are the identities ticks and bars are recorded under, so they
// double as store series keys. These helpers keep codes usable as such keys.
package utils

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
)

// Error definitions for validation functions
var (
	ErrNoCodes       = errors.New("zero instrument codes requested")
	ErrTooManyCodes  = errors.New("too many instrument codes requested")
	ErrDuplicateCode = errors.New("duplicate instrument code")
)

// maxCodeLength bounds a code so that it stays usable as a collection, key or
// topic name in every storage backend.
const maxCodeLength = 64

// ValidateCode validates that an instrument code can be used as a series identity.
//
// A valid code is non-empty, at most 64 bytes and made of letters, digits and
// the separators '.', '-' and '_'. Codes are case-sensitive ("rb1610" and
// "RB1610" are different instruments on some exchanges).
func ValidateCode(code string) error {
	if code == "" {
		return errors.New("code cannot be empty")
	}

	if len(code) > maxCodeLength {
		return fmt.Errorf("code %q longer than %d bytes", code, maxCodeLength)
	}

	for _, r := range code {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			continue
		}
		switch r {
		case '.', '-', '_':
			continue
		}
		return fmt.Errorf("code %q contains invalid character %q", code, r)
	}

	return nil
}

// ValidateCodes validates a slice of instrument codes.
//
// This function performs two types of validation:
//  1. Format validation: each code using ValidateCode
//  2. Uniqueness: a code may appear only once in the slice
func ValidateCodes(codes []string) error {
	if len(codes) == 0 {
		return ErrNoCodes
	}

	seen := make(map[string]struct{}, len(codes))
	for i, code := range codes {
		if err := ValidateCode(code); err != nil {
			return fmt.Errorf("invalid code at index %d (%q): %w", i, code, err)
		}
		if _, dup := seen[code]; dup {
			return fmt.Errorf("%w: %q at index %d", ErrDuplicateCode, code, i)
		}
		seen[code] = struct{}{}
	}

	return nil
}

// ValidateCodeLimit validates codes and enforces a per-connection quantity limit.
// A non-positive maxAllowed disables the limit.
func ValidateCodeLimit(codes []string, maxAllowed int) error {
	if maxAllowed > 0 && len(codes) > maxAllowed {
		return fmt.Errorf("%w: requested %d codes, maximum allowed %d",
			ErrTooManyCodes, len(codes), maxAllowed)
	}
	return ValidateCodes(codes)
}

// SeriesKey joins a store name and a series identity into a flat key for
// backends without native collections.
func SeriesKey(store, series string) string {
	return strings.Join([]string{store, series}, ":")
}
