package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Stores and the record service
// return these (optionally wrapped) so services can translate them into
// domain errors.
//
// - ErrNotFound: record does not exist in the store
// - ErrConflict: unique constraint or concurrent write collision
// - ErrExpired: confirmation token or access token has expired
// - ErrAlreadyUsed: single-use token already consumed
// - ErrUnavailable: store or broker temporarily unavailable
// - ErrInvalidState: operation not valid for the current configuration
//
// For validation errors (bad input, missing fields), use pkg/domain-errors directly.
var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrExpired      = errors.New("expired")
	ErrAlreadyUsed  = errors.New("already used")
	ErrUnavailable  = errors.New("unavailable")
	ErrInvalidState = errors.New("invalid state")
)
