package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Stores and infrastructure layers return
// these (optionally wrapped) so services can translate them into domain errors.
//
// These represent factual states about resources, not validation failures:
// - ErrNotFound: row does not exist in store or is tombstoned
// - ErrConflict: unique constraint hit or optimistic row version mismatch
// - ErrInvalidState: entity in wrong state for requested operation
// - ErrUnavailable: backing service (object storage, broker) temporarily unavailable
//
// For validation errors (bad input, malformed enum values), use pkg/dlerrors directly.
var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrInvalidState = errors.New("invalid state")
	ErrUnavailable  = errors.New("unavailable")
)
