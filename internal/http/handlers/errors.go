// Package handlers defines HTTP-layer error codes used across all API endpoints.
//
// Codes are lowercase snake_case and stable; clients branch on them. Generic
// codes mirror HTTP status semantics, SPK-specific ones name the issuance or
// verification outcome that a status alone cannot convey.
package handlers

const (
	ErrCodeBadRequest       = "bad_request"
	ErrCodeNotFound         = "not_found"
	ErrCodeConflict         = "conflict"
	ErrCodeInternal         = "internal_error"
	ErrCodeMethodNotAllowed = "method_not_allowed"
	ErrCodeUnavailable      = "service_unavailable"

	// SPK issuance and verification.
	ErrCodeGenerationFailed        = "generation_failed"
	ErrCodeSequenceOverflow        = "sequence_overflow"
	ErrCodeVerificationUnavailable = "verification_unavailable"
	ErrCodeSPKNotReserved          = "spk_not_reserved"
	ErrCodeMalformedSPK            = "malformed_spk"
	ErrCodeListFailed              = "list_failed"
)
