package domain

import "errors"

// Sentinel errors for domain-level error handling.
// The handler layer maps these to HTTP status codes.
var (
	ErrInsufficientFunds    = errors.New("insufficient_funds")
	ErrInsufficientPosition = errors.New("insufficient_position")
	ErrOrderNotFound        = errors.New("order_not_found")
	ErrOrderAlreadyTerminal = errors.New("order_already_terminal")
	ErrOrderInFlight        = errors.New("order_in_flight")
	ErrUnknownSymbol        = errors.New("unknown_symbol")
	ErrAccountNotFound      = errors.New("account_not_found")
	ErrUserExists           = errors.New("user_already_exists")
	ErrInvalidCredentials   = errors.New("invalid_credentials")
	ErrFeedUnavailable      = errors.New("feed_unavailable")
)

// ValidationError represents a request validation failure. The
// request touched no state and may be reformulated and resubmitted.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// ComplianceRejection is a policy-level denial from the compliance
// gate. The reason is returned to the caller verbatim.
type ComplianceRejection struct {
	Reason string
}

func (e *ComplianceRejection) Error() string {
	return e.Reason
}
