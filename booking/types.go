/*
Package booking provides the parking availability and pricing resolution
engine.

PURPOSE:
  Given a parking resource, a check-in/check-out window and a vehicle count,
  the engine answers three questions in one call:
    1. Which local calendar days does the stay cover?
    2. Is every one of those days bookable, and if not, why not?
    3. What does the stay cost after the discount stack?
  Booking turns a clean answer into a durable commitment through the
  capacity store.

KEY CONCEPTS IN THIS FILE (types.go):
  - Resource: capacity, base price, date-specific overrides and blackouts
  - Window: the requested check-in/check-out instants
  - Commitment/Reservation: what the capacity store persists
  - Discount: closed set of discount components (auto, VIP, voucher)
  - PricingResult/AvailabilityResult: engine outputs

DESIGN PRINCIPLES:
  1. Stateless: every collaborator snapshot is fetched per call
  2. Precision: money uses decimal.Decimal, rounded to whole units
  3. Closed variants: discounts and unavailability reasons are fixed sets
  4. Auditability: every discount stage is reported with its amount

SEE ALSO:
  - engine.go: the resolution pipeline
  - availability.go: per-day capacity and blackout resolution
  - pricing.go: the discount stack
  - store.go: collaborator interfaces
*/
package booking

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/parking-engine/calendar"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type ResourceID string
type ReservationID string

// =============================================================================
// WINDOW - Requested stay
// =============================================================================

// Window is the customer-requested check-in/check-out pair. CheckOut may
// equal CheckIn (single-day stay).
type Window struct {
	CheckIn  time.Time
	CheckOut time.Time
}

// Period returns the inclusive span of local days the window covers under
// loc. The day list itself is Period.Days().
func (w Window) Period(loc *time.Location) (calendar.Period, error) {
	return calendar.Span(w.CheckIn, w.CheckOut, loc)
}

// =============================================================================
// RESOURCE - A bookable parking lot (or vehicle class within a lot)
// =============================================================================

// SpecialPrice overrides PricePerDay on one day.
type SpecialPrice struct {
	Price  decimal.Decimal
	Reason string
}

// Resource is the per-call snapshot of a parking resource's configuration.
type Resource struct {
	ID            ResourceID
	Name          string
	TotalCapacity int
	PricePerDay   decimal.Decimal
	SpecialPrices map[calendar.Date]SpecialPrice
	Blackouts     calendar.Set
}

// Clone returns a copy whose maps can be modified without touching r.
func (r Resource) Clone() Resource {
	out := r
	out.SpecialPrices = make(map[calendar.Date]SpecialPrice, len(r.SpecialPrices))
	for d, sp := range r.SpecialPrices {
		out.SpecialPrices[d] = sp
	}
	out.Blackouts = make(calendar.Set, len(r.Blackouts))
	for d := range r.Blackouts {
		out.Blackouts.Add(d)
	}
	return out
}

// Validate checks the pricing configuration invariants.
func (r *Resource) Validate() error {
	if r.TotalCapacity < 0 {
		return &PricingConfigError{ResourceID: r.ID, Reason: "total capacity is negative"}
	}
	if r.PricePerDay.IsNegative() {
		return &PricingConfigError{ResourceID: r.ID, Reason: "price per day is negative"}
	}
	for day, sp := range r.SpecialPrices {
		if sp.Price.IsNegative() {
			return &PricingConfigError{ResourceID: r.ID, Day: day, Reason: "special price is negative"}
		}
	}
	return nil
}

// =============================================================================
// COMMITMENTS & RESERVATIONS - What the capacity store persists
// =============================================================================

// Commitment is the unit the capacity store aggregates into committed counts.
type Commitment struct {
	ReservationID ReservationID
	ResourceID    ResourceID
	Day           calendar.Date
	VehicleCount  int
}

type ReservationStatus string

const (
	ReservationConfirmed ReservationStatus = "confirmed"
	ReservationCancelled ReservationStatus = "cancelled"
)

// Reservation is a durable booking across one or more days.
type Reservation struct {
	ID           ReservationID
	Code         string
	ResourceID   ResourceID
	Days         []calendar.Date
	VehicleCount int
	Phone        string
	VoucherCode  string
	FinalAmount  decimal.Decimal
	Window       Window
	Status       ReservationStatus
	CreatedAt    time.Time
	CancelledAt  *time.Time
}

// Commitments expands the reservation into one commitment per day.
func (r Reservation) Commitments() []Commitment {
	out := make([]Commitment, len(r.Days))
	for i, d := range r.Days {
		out[i] = Commitment{ReservationID: r.ID, ResourceID: r.ResourceID, Day: d, VehicleCount: r.VehicleCount}
	}
	return out
}

// =============================================================================
// CUSTOMERS & VOUCHERS - External lookup results
// =============================================================================

// Customer is the result of a phone lookup.
type Customer struct {
	Phone      string
	Name       string
	IsVIP      bool
	VIPPercent decimal.Decimal // zero means "use the default VIP percent"
}

type VoucherKind string

const (
	VoucherFixed      VoucherKind = "fixed"
	VoucherPercentage VoucherKind = "percentage"
)

// VoucherQuery is what the voucher service validates against.
type VoucherQuery struct {
	Code       string
	ResourceID ResourceID
	Days       []calendar.Date
	Amount     decimal.Decimal // remainder the voucher would apply to
}

// VoucherGrant is a validated voucher.
type VoucherGrant struct {
	Code  string
	Kind  VoucherKind
	Value decimal.Decimal // currency units for fixed, percent for percentage
}

// VoucherRule is a stored voucher definition. Stores use Check to implement
// VoucherService the same way.
type VoucherRule struct {
	Code       string
	Kind       VoucherKind
	Value      decimal.Decimal
	ResourceID ResourceID    // empty = any resource
	ValidFrom  calendar.Date // zero = open
	ValidTo    calendar.Date // zero = open
	MinAmount  decimal.Decimal
	Active     bool
}

// Check validates q against the rule and returns the grant or a
// *VoucherInvalidError.
func (v VoucherRule) Check(q VoucherQuery) (*VoucherGrant, error) {
	invalid := func(reason string) error {
		return &VoucherInvalidError{Code: q.Code, Reason: reason}
	}
	switch {
	case !v.Active:
		return nil, invalid("voucher is not active")
	case v.Kind != VoucherFixed && v.Kind != VoucherPercentage:
		return nil, invalid("unknown voucher kind")
	case v.ResourceID != "" && v.ResourceID != q.ResourceID:
		return nil, invalid("voucher not valid for this parking")
	case q.Amount.LessThan(v.MinAmount):
		return nil, invalid("amount below voucher minimum")
	}
	for _, d := range q.Days {
		if !v.ValidFrom.IsZero() && d.Before(v.ValidFrom) {
			return nil, invalid("voucher not yet valid for " + d.String())
		}
		if !v.ValidTo.IsZero() && d.After(v.ValidTo) {
			return nil, invalid("voucher expired for " + d.String())
		}
	}
	return &VoucherGrant{Code: v.Code, Kind: v.Kind, Value: v.Value}, nil
}

// =============================================================================
// ADDONS
// =============================================================================

// Addon is a selected extra service (car wash, shuttle). Priced flat, never
// per day, never discounted.
type Addon struct {
	Name  string
	Price decimal.Decimal
}

// =============================================================================
// WARNINGS - Advisory, non-fatal conditions
// =============================================================================

type WarningCode string

const (
	WarningVoucherInvalid      WarningCode = "VOUCHER_INVALID"
	WarningVoucherLookupFailed WarningCode = "VOUCHER_LOOKUP_FAILED"
	WarningVIPLookupFailed     WarningCode = "VIP_LOOKUP_FAILED"
)

// Warning is reported alongside a successful result.
type Warning struct {
	Code    WarningCode
	Message string
}
