package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Stores return these (optionally
// wrapped) and services translate them into coded domain errors.
//
//   - ErrNotFound: record does not exist in the store
//   - ErrConflict: another record already holds the (person, year) key
//   - ErrUnavailable: backing store is temporarily unreachable
//
// For validation failures use pkg/domain-errors directly.
var (
	ErrNotFound    = errors.New("not found")
	ErrConflict    = errors.New("conflict")
	ErrUnavailable = errors.New("unavailable")
)
