package server

import "errors"

// Lifecycle and validation errors surfaced to the administrative caller.
// Each conflict is a distinct, user-facing reason rather than a generic
// invalid-state error, and none of them is retried automatically.
var (
	// ErrSecretNotConfigured indicates no base secret has been configured
	// yet, so no local master password can be derived.
	ErrSecretNotConfigured = errors.New("base secret not configured")

	// ErrReasonRequired indicates a cloud issuance without a justification.
	ErrReasonRequired = errors.New("reason is required")

	// ErrInvalidValidity indicates a validity window outside the allowed set.
	ErrInvalidValidity = errors.New("invalid validity window")

	// ErrNotFound indicates an unknown emergency password record id.
	ErrNotFound = errors.New("emergency password not found")

	// ErrAlreadyUsed indicates the record already reached the Used state.
	ErrAlreadyUsed = errors.New("emergency password already used")

	// ErrAlreadyRevoked indicates the record already reached the Revoked state.
	ErrAlreadyRevoked = errors.New("emergency password already revoked")

	// ErrAlreadyExpired indicates the record's validity window has passed;
	// expired records are beyond any actionable state.
	ErrAlreadyExpired = errors.New("emergency password already expired")
)
