package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors for the emission workflow and callback reconciliation.
var (
	// ErrIssuerNotFound means no active issuer profile exists for the
	// originating address. Fatal for the emission attempt.
	ErrIssuerNotFound = errors.New("issuer not found for address")

	// ErrCounterpartyNotFound means the external registry has no record
	// for the payer tax id. Surfaced to the user, not a technical failure.
	ErrCounterpartyNotFound = errors.New("counterparty not found in registry")

	// ErrDuplicateConfirmation means an emission record already exists
	// for the correlation id; the attempt must be a no-op.
	ErrDuplicateConfirmation = errors.New("emission already exists for correlation id")

	// ErrSessionNotFound means no session matches the requested key.
	ErrSessionNotFound = errors.New("session not found")

	// ErrEmissionNotFound means no emission record matches the key.
	ErrEmissionNotFound = errors.New("emission not found")
)

// TransientLookupError wraps a network or timeout failure of an external
// lookup that is eligible for limited automatic retry.
type TransientLookupError struct {
	Err error
}

func (e *TransientLookupError) Error() string {
	return fmt.Sprintf("transient lookup failure: %v", e.Err)
}

func (e *TransientLookupError) Unwrap() error { return e.Err }

// IsTransientLookup reports whether err is a retryable lookup failure.
func IsTransientLookup(err error) bool {
	var t *TransientLookupError
	return errors.As(err, &t)
}

// GatewayError wraps a synchronous submission failure at the emission
// gateway. Never retried without a fresh user confirmation.
type GatewayError struct {
	StatusCode int
	Detail     string
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("gateway submission failed (status %d): %s", e.StatusCode, e.Detail)
}

// TransitionError reports an attempt to apply a transition the state
// machine forbids.
type TransitionError struct {
	From SessionState
	To   SessionState
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("invalid session transition %s -> %s", e.From, e.To)
}
