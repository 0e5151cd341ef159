package domain

import "errors"

// Store-level errors shared by every persistence backend (SQL and Redis) so
// callers can match them without knowing which adapter is wired.
var (
	// ErrReservationNotFound means no live reservation exists for a number,
	// either because it was never issued or because its TTL has lapsed.
	ErrReservationNotFound = errors.New("reservation not found")

	// ErrDuplicate is returned when a unique key (order SPK, idempotency key)
	// is already taken.
	ErrDuplicate = errors.New("duplicate")
)
