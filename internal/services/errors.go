// Package services holds the SPK issuance logic: generation, verification,
// expiry sweeping, counter audit and the order boundary that consumes numbers.
// This file centralizes the service-level error values.
//
// Handlers translate these into HTTP status codes; raw storage errors are
// never returned past this package.
package services

import (
	"errors"

	"github.com/tbourn/spk-service/internal/domain"
	"github.com/tbourn/spk-service/internal/spknum"
)

var (
	// ErrCounterUnavailable means the sequence counter could not be read or
	// advanced. Generation falls back to the degraded scan path.
	ErrCounterUnavailable = errors.New("sequence counter unavailable")

	// ErrGenerationFailed is returned when no number could be reserved within
	// the attempt budget. Callers may retry.
	ErrGenerationFailed = errors.New("spk generation failed")

	// ErrSequenceOverflow means the month's sequence no longer fits the
	// configured width. Not retryable until the next month.
	ErrSequenceOverflow = errors.New("monthly sequence exhausted")

	// ErrMalformed is returned for strings that are not a well-formed SPK.
	ErrMalformed = spknum.ErrMalformed

	// ErrReservationNotFound means no live reservation exists for a number.
	ErrReservationNotFound = domain.ErrReservationNotFound

	// ErrVerificationUnavailable is returned when storage kept failing while
	// verifying a number.
	ErrVerificationUnavailable = errors.New("verification unavailable")

	// ErrSPKNotReserved rejects an order whose SPK is not currently reserved.
	ErrSPKNotReserved = errors.New("spk is not reserved")

	// ErrSPKAlreadyUsed rejects an order whose SPK is already on another order.
	ErrSPKAlreadyUsed = errors.New("spk already used")

	// ErrInvalidOrder is returned for order input that fails validation.
	ErrInvalidOrder = errors.New("invalid order")
)
