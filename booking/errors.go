/*
errors.go - Centralized error types for the booking engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  Stores and transports wrap these errors with additional context.

ERROR CATEGORIES:
  1. Request errors - Invalid range, stay policy, malformed request (fatal)
  2. Configuration errors - Bad pricing config (fatal)
  3. Commit errors - Capacity conflict, unavailable window (conflict)
  4. Lookup errors - Missing resource/customer/reservation, invalid voucher

  Day-level unavailability is NOT an error: it is collected in
  AvailabilityResult.FailingDays. Voucher and VIP lookup failures are NOT
  errors either: they degrade to warnings on PricingResult.

USAGE:
  if errors.Is(err, booking.ErrStayPolicy) {
      var short *booking.StayTooShortError
      if errors.As(err, &short) { ... short.Required ... }
  }

SEE ALSO:
  - policy.go: Stay errors
  - engine.go: UnavailableError
  - api/handlers.go: Maps these to HTTP status codes
*/
package booking

import (
	"errors"
	"fmt"
	"strings"

	"github.com/warp/parking-engine/calendar"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrInvalidRange is returned when check-out is before check-in.
	ErrInvalidRange = calendar.ErrInvalidRange

	// ErrStayPolicy is returned when the day count violates min/max stay.
	ErrStayPolicy = errors.New("stay policy violated")

	// ErrInvalidRequest is returned for malformed requests (vehicle count, ids).
	ErrInvalidRequest = errors.New("invalid request")

	// ErrPricingConfig is returned when a resource cannot be priced.
	ErrPricingConfig = errors.New("invalid pricing configuration")

	// ErrCapacityConflict is returned by the capacity store when a reservation
	// no longer fits at commit time.
	ErrCapacityConflict = errors.New("capacity conflict")

	// ErrUnavailable is returned by Book when resolution found failing days.
	ErrUnavailable = errors.New("requested days are unavailable")

	// ErrResourceNotFound is returned when a parking resource doesn't exist.
	ErrResourceNotFound = errors.New("resource not found")

	// ErrCustomerNotFound is returned by CustomerLookup for unknown phones.
	ErrCustomerNotFound = errors.New("customer not found")

	// ErrVoucherInvalid is returned by VoucherService for invalid, expired or
	// ineligible codes.
	ErrVoucherInvalid = errors.New("voucher invalid")

	// ErrReservationNotFound is returned when cancelling an unknown or already
	// cancelled reservation.
	ErrReservationNotFound = errors.New("reservation not found")

	// ErrConcurrentModification is returned by stores when a write lost a race
	// that is safe to retry.
	ErrConcurrentModification = errors.New("concurrent modification detected")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// InvalidRangeError is the normalizer's error type.
type InvalidRangeError = calendar.InvalidRangeError

// StayTooShortError reports a stay below the configured minimum.
type StayTooShortError struct {
	Required int
	Actual   int
}

func (e *StayTooShortError) Error() string {
	return fmt.Sprintf("stay too short: minimum %d days, requested %d", e.Required, e.Actual)
}

func (e *StayTooShortError) Unwrap() error { return ErrStayPolicy }

// StayTooLongError reports a stay above the configured maximum.
type StayTooLongError struct {
	Allowed int
	Actual  int
}

func (e *StayTooLongError) Error() string {
	return fmt.Sprintf("stay too long: maximum %d days, requested %d", e.Allowed, e.Actual)
}

func (e *StayTooLongError) Unwrap() error { return ErrStayPolicy }

// InvalidRequestError names the offending request field.
type InvalidRequestError struct {
	Field  string
	Reason string
}

func (e *InvalidRequestError) Error() string {
	return fmt.Sprintf("invalid request: %s %s", e.Field, e.Reason)
}

func (e *InvalidRequestError) Unwrap() error { return ErrInvalidRequest }

// PricingConfigError provides details about a resource that cannot be priced.
type PricingConfigError struct {
	ResourceID ResourceID
	Day        calendar.Date // zero when not day-specific
	Reason     string
}

func (e *PricingConfigError) Error() string {
	if !e.Day.IsZero() {
		return fmt.Sprintf("pricing config for %s on %s: %s", e.ResourceID, e.Day, e.Reason)
	}
	return fmt.Sprintf("pricing config for %s: %s", e.ResourceID, e.Reason)
}

func (e *PricingConfigError) Unwrap() error { return ErrPricingConfig }

// DayShortfall is one day that no longer fits at commit time.
type DayShortfall struct {
	Day       calendar.Date
	Available int
	Requested int
}

// CapacityConflictError lists every day that failed the in-transaction
// capacity re-check.
type CapacityConflictError struct {
	ResourceID ResourceID
	Days       []DayShortfall
}

func (e *CapacityConflictError) Error() string {
	parts := make([]string, len(e.Days))
	for i, d := range e.Days {
		parts[i] = fmt.Sprintf("%s (available %d, requested %d)", d.Day, d.Available, d.Requested)
	}
	return fmt.Sprintf("capacity conflict on %s: %s", e.ResourceID, strings.Join(parts, ", "))
}

func (e *CapacityConflictError) Unwrap() error { return ErrCapacityConflict }

// VoucherInvalidError explains why a voucher was rejected.
type VoucherInvalidError struct {
	Code   string
	Reason string
}

func (e *VoucherInvalidError) Error() string {
	return fmt.Sprintf("voucher %q invalid: %s", e.Code, e.Reason)
}

func (e *VoucherInvalidError) Unwrap() error { return ErrVoucherInvalid }

// UnavailableError is returned by Book when the window has failing days.
// It carries the full availability result so callers can show every
// problem date at once.
type UnavailableError struct {
	Result *AvailabilityResult
}

func (e *UnavailableError) Error() string {
	parts := make([]string, len(e.Result.FailingDays))
	for i, f := range e.Result.FailingDays {
		parts[i] = f.Day.String() + " " + string(f.Reason)
	}
	return "unavailable: " + strings.Join(parts, ", ")
}

func (e *UnavailableError) Unwrap() error { return ErrUnavailable }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsRetryable returns true if the error might succeed on retry.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConcurrentModification)
}

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidRange) ||
		errors.Is(err, ErrStayPolicy) ||
		errors.Is(err, ErrInvalidRequest)
}

// IsNotFound returns true if the error indicates a missing entity.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrResourceNotFound) ||
		errors.Is(err, ErrCustomerNotFound) ||
		errors.Is(err, ErrReservationNotFound)
}

// IsConflict returns true if the request was well-formed but the capacity
// is not there.
func IsConflict(err error) bool {
	return errors.Is(err, ErrCapacityConflict) ||
		errors.Is(err, ErrUnavailable)
}
