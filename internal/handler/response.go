package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/paperstreet/brokerd/internal/domain"
)

// WriteJSON writes a JSON response with the given status code and data.
// Sets Content-Type to application/json before writing the status code.
func WriteJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data) // Write error intentionally ignored in response helper
}

// errorResponse is the standard error response format.
type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// WriteError writes a standard error response with the given status code,
// error code, and human-readable message.
func WriteError(w http.ResponseWriter, status int, errorCode, message string) {
	WriteJSON(w, status, errorResponse{
		Error:   errorCode,
		Message: message,
	})
}

// ParseJSON decodes the request body as JSON into v, rejecting
// unknown fields.
func ParseJSON(r *http.Request, v any) error {
	ct := r.Header.Get("Content-Type")
	if ct == "" || !strings.HasPrefix(ct, "application/json") {
		return fmt.Errorf("request body must be valid JSON with Content-Type: application/json")
	}

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("request body must be valid JSON with Content-Type: application/json")
	}

	return nil
}

// MapError translates domain errors into the HTTP error envelope.
// Every category keeps its own code so the caller can distinguish a
// reformulate-and-retry from a policy denial from a transient failure.
func MapError(w http.ResponseWriter, err error) {
	var validationErr *domain.ValidationError
	if errors.As(err, &validationErr) {
		WriteError(w, http.StatusBadRequest, "validation_error", validationErr.Message)
		return
	}
	var rejection *domain.ComplianceRejection
	if errors.As(err, &rejection) {
		WriteError(w, http.StatusForbidden, "compliance_rejected", rejection.Reason)
		return
	}

	switch {
	case errors.Is(err, domain.ErrInsufficientFunds):
		WriteError(w, http.StatusBadRequest, "insufficient_funds", "Insufficient funds for this order")
	case errors.Is(err, domain.ErrInsufficientPosition):
		WriteError(w, http.StatusBadRequest, "insufficient_position", "Insufficient shares for this order")
	case errors.Is(err, domain.ErrOrderNotFound):
		WriteError(w, http.StatusNotFound, "order_not_found", "Order not found")
	case errors.Is(err, domain.ErrOrderAlreadyTerminal):
		WriteError(w, http.StatusConflict, "order_already_terminal", "Order is already in a terminal state")
	case errors.Is(err, domain.ErrOrderInFlight):
		WriteError(w, http.StatusConflict, "order_in_flight", "Order is being processed, retry shortly")
	case errors.Is(err, domain.ErrAccountNotFound):
		WriteError(w, http.StatusNotFound, "account_not_found", "Account not found")
	case errors.Is(err, domain.ErrUserExists):
		WriteError(w, http.StatusConflict, "user_already_exists", "An account with this email already exists")
	case errors.Is(err, domain.ErrInvalidCredentials):
		WriteError(w, http.StatusUnauthorized, "invalid_credentials", "Invalid email or password")
	default:
		WriteError(w, http.StatusInternalServerError, "internal_error", "Internal error")
	}
}
