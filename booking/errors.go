/*
errors.go - Centralized error types for the booking engine

PURPOSE:
  All error types in one place. The HTTP layer branches on machine codes
  derived here, never on free-text error content.

TAXONOMY:
  Validation - malformed input, rejected before touching the store
  Conflict   - concurrent state change detected; retryable by the caller
  Policy     - business-rule violation; not retryable
  Security   - token failures; always audited
  NotFound   - referenced entity does not exist
  System     - store failures; fatal to the request

USAGE:
  if errors.Is(err, booking.ErrSlotUnavailable) { ... }
  code, status := booking.ErrorCode(err)

SEE ALSO:
  - engine.go: guard failures abort the whole atomic unit with these errors
  - api/handlers.go: ErrorCode -> HTTP mapping
*/
package booking

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/shopspring/decimal"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// Validation
	ErrInvalidInput  = errors.New("invalid input")
	ErrInvalidAmount = errors.New("invalid amount: must be positive")
	ErrInvalidWindow = errors.New("invalid window: end not after start")

	// Conflict (retryable by caller)
	ErrSlotUnavailable = errors.New("slot unavailable")
	ErrSlotConflict    = errors.New("slot changed concurrently")
	ErrTimeConflict    = errors.New("time window conflicts with existing availability")
	ErrSlotOpenNow     = errors.New("a matching slot is currently available; book it directly")
	ErrUnresolvable    = errors.New("no conflict-free adjustment within bounds")

	// Policy (not retryable)
	ErrInsufficientBalance      = errors.New("insufficient credit balance")
	ErrNoCreditAccount          = errors.New("no credit account for student and teacher")
	ErrAccountInactive          = errors.New("credit account is deactivated")
	ErrSlotInPast               = errors.New("slot start time is not in the future")
	ErrCancellationWindowPassed = errors.New("cancellation window has passed")
	ErrAlreadyCancelled         = errors.New("booking already cancelled")
	ErrSlotNotDeletable         = errors.New("only unbooked future slots can be deleted")

	// Security (always audited)
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token expired")

	// NotFound
	ErrSlotNotFound     = errors.New("slot not found")
	ErrBookingNotFound  = errors.New("booking not found")
	ErrAccountNotFound  = errors.New("credit account not found")
	ErrTemplateNotFound = errors.New("template not found")
	ErrEntryNotFound    = errors.New("waitlist entry not found")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// InsufficientBalanceError reports the shortfall on a rejected deduction.
type InsufficientBalanceError struct {
	AccountID AccountID
	Available decimal.Decimal
	Requested decimal.Decimal
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("insufficient balance: available %s, requested %s",
		e.Available.String(), e.Requested.String())
}

func (e *InsufficientBalanceError) Unwrap() error { return ErrInsufficientBalance }

// BookingConflictError reports a lost race on a slot.
type BookingConflictError struct {
	SlotID SlotID
	Status SlotStatus // status observed at transaction time
}

func (e *BookingConflictError) Error() string {
	return fmt.Sprintf("slot %s is %s", e.SlotID, e.Status)
}

func (e *BookingConflictError) Unwrap() error { return ErrSlotUnavailable }

// TimeConflictError reports candidate windows that overlap existing ones.
type TimeConflictError struct {
	Conflicts []Conflict
}

func (e *TimeConflictError) Error() string {
	return fmt.Sprintf("%d candidate window(s) conflict with existing availability", len(e.Conflicts))
}

func (e *TimeConflictError) Unwrap() error { return ErrTimeConflict }

// =============================================================================
// CLASSIFICATION HELPERS
// =============================================================================

// IsConflict reports whether the error is a concurrent-state conflict the
// caller may retry.
func IsConflict(err error) bool {
	return errors.Is(err, ErrSlotUnavailable) ||
		errors.Is(err, ErrSlotConflict) ||
		errors.Is(err, ErrTimeConflict) ||
		errors.Is(err, ErrSlotOpenNow)
}

// IsPolicy reports whether the error is a business-rule violation.
func IsPolicy(err error) bool {
	return errors.Is(err, ErrInsufficientBalance) ||
		errors.Is(err, ErrNoCreditAccount) ||
		errors.Is(err, ErrAccountInactive) ||
		errors.Is(err, ErrSlotInPast) ||
		errors.Is(err, ErrCancellationWindowPassed) ||
		errors.Is(err, ErrAlreadyCancelled) ||
		errors.Is(err, ErrSlotNotDeletable)
}

// IsSecurity reports whether the error is a token failure.
func IsSecurity(err error) bool {
	return errors.Is(err, ErrInvalidToken) || errors.Is(err, ErrExpiredToken)
}

// IsNotFound reports whether the error indicates a missing entity.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrSlotNotFound) ||
		errors.Is(err, ErrBookingNotFound) ||
		errors.Is(err, ErrAccountNotFound) ||
		errors.Is(err, ErrTemplateNotFound) ||
		errors.Is(err, ErrEntryNotFound)
}

// IsValidation reports whether the error is a malformed-input rejection.
func IsValidation(err error) bool {
	return errors.Is(err, ErrInvalidInput) ||
		errors.Is(err, ErrInvalidAmount) ||
		errors.Is(err, ErrInvalidWindow)
}

// =============================================================================
// MACHINE CODES - The contract the API caller branches on
// =============================================================================

var errorCodes = []struct {
	target error
	code   string
	status int
}{
	{ErrInvalidToken, "invalid_token", http.StatusUnauthorized},
	{ErrExpiredToken, "expired_token", http.StatusUnauthorized},
	{ErrSlotNotFound, "slot_not_found", http.StatusNotFound},
	{ErrBookingNotFound, "booking_not_found", http.StatusNotFound},
	{ErrAccountNotFound, "account_not_found", http.StatusNotFound},
	{ErrTemplateNotFound, "template_not_found", http.StatusNotFound},
	{ErrEntryNotFound, "waitlist_entry_not_found", http.StatusNotFound},
	{ErrSlotOpenNow, "slot_currently_available", http.StatusConflict},
	{ErrSlotUnavailable, "slot_unavailable", http.StatusConflict},
	{ErrSlotConflict, "booking_conflict", http.StatusConflict},
	{ErrTimeConflict, "time_conflict", http.StatusConflict},
	{ErrAlreadyCancelled, "already_cancelled", http.StatusConflict},
	{ErrInsufficientBalance, "insufficient_credits", http.StatusBadRequest},
	{ErrNoCreditAccount, "no_credit_account", http.StatusBadRequest},
	{ErrAccountInactive, "account_inactive", http.StatusBadRequest},
	{ErrSlotInPast, "slot_in_past", http.StatusBadRequest},
	{ErrCancellationWindowPassed, "cancellation_window_passed", http.StatusBadRequest},
	{ErrSlotNotDeletable, "slot_not_deletable", http.StatusBadRequest},
	{ErrUnresolvable, "unresolvable_conflict", http.StatusConflict},
	{ErrInvalidAmount, "invalid_input", http.StatusBadRequest},
	{ErrInvalidWindow, "invalid_input", http.StatusBadRequest},
	{ErrInvalidInput, "invalid_input", http.StatusBadRequest},
}

// ErrorCode maps an error to its machine-readable code and HTTP status.
// Unknown errors are System errors: "internal_error", 500.
func ErrorCode(err error) (string, int) {
	for _, ec := range errorCodes {
		if errors.Is(err, ec.target) {
			return ec.code, ec.status
		}
	}
	return "internal_error", http.StatusInternalServerError
}
