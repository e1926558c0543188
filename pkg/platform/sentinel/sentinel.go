package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Stores return these (optionally
// wrapped) so services can translate them into domain errors.
//
//   - ErrNotFound: row does not exist in the store
//   - ErrConflict: a uniqueness constraint rejected the write
//   - ErrAlreadyChained: chain values were already set for the row
//   - ErrUnavailable: backing service temporarily unavailable
var (
	ErrNotFound       = errors.New("not found")
	ErrConflict       = errors.New("conflict")
	ErrAlreadyChained = errors.New("already chained")
	ErrUnavailable    = errors.New("unavailable")
)
