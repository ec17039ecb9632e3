// Package strings provides string normalization utilities shared by form
// payloads and search.
package strings

import (
	"strings"
)

// TrimToNil trims whitespace and returns nil for blank input, so optional
// fields submitted as "" are stored as absent.
//
// Example:
//
//	TrimToNil(ptr("  Acme "))  // ptr("Acme")
//	TrimToNil(ptr("   "))      // nil
func TrimToNil(s *string) *string {
	if s == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*s)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

// IsBlank reports whether s is empty after trimming whitespace.
func IsBlank(s string) bool {
	return strings.TrimSpace(s) == ""
}

// ContainsFold reports whether substr occurs in s, ignoring case.
// A nil s never matches.
func ContainsFold(s *string, substr string) bool {
	if s == nil {
		return false
	}
	return strings.Contains(strings.ToLower(*s), strings.ToLower(substr))
}

// FirstNonEmpty returns the first value that is non-nil and non-blank.
func FirstNonEmpty(values ...*string) string {
	for _, v := range values {
		if v != nil && !IsBlank(*v) {
			return *v
		}
	}
	return ""
}

// Ptr returns a pointer to s.
func Ptr(s string) *string {
	return &s
}
