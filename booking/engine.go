/*
engine.go - The resolution pipeline

PURPOSE:
  Sequences the engine components and merges their outputs:

    Window --DayRange--> days --ValidateStay--> Availability --> Pricing

  Range errors stop the pipeline before any collaborator is called. Stay
  errors stop it after the settings fetch. Unavailable days never stop it:
  pricing is still computed so the caller can display it.

STATELESS:
  Engine holds only collaborator handles and the local timezone. Resource,
  blackouts, settings and the capacity snapshot are fetched fresh on every
  call, so one Engine serves many concurrent resolutions.

BOOKING:
  Book runs Resolve and, when every day is available, hands an
  all-or-nothing ReserveRequest to the CapacityStore. The store re-checks
  capacity inside its transaction; losing a race surfaces as
  *CapacityConflictError.

USAGE:
  engine := &booking.Engine{
      Catalog: store, Capacity: store, Settings: store,
      Maintenance: store, Customers: store, Vouchers: store,
      Location: loc,
  }
  res, err := engine.Resolve(ctx, booking.Request{...})
*/
package booking

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/warp/parking-engine/calendar"
)

// Request is one customer request.
type Request struct {
	ResourceID   ResourceID
	Window       Window
	VehicleCount int
	Addons       []Addon
	Phone        string
	VoucherCode  string
}

// Resolution is the merged pipeline output.
type Resolution struct {
	Request      Request
	Days         []calendar.Date
	Resource     *Resource
	Settings     Settings
	Availability *AvailabilityResult
	Pricing      *PricingResult
	Warnings     []Warning
}

// Booking is the result of a successful Book.
type Booking struct {
	Reservation *Reservation
	Resolution  *Resolution
}

// Engine is the resolution pipeline. Maintenance, Customers and Vouchers are
// optional.
type Engine struct {
	Catalog     ResourceCatalog
	Capacity    CapacityStore
	Settings    SettingsProvider
	Maintenance MaintenanceRegistry
	Customers   CustomerLookup
	Vouchers    VoucherService

	// Location is the fixed local timezone days are keyed in (nil = UTC).
	Location *time.Location
	// DayConcurrency bounds concurrent per-day reads.
	DayConcurrency int
	// Now overrides the clock (tests).
	Now func() time.Time
	// NewID overrides reservation id generation (tests).
	NewID func() ReservationID
}

// =============================================================================
// RESOLVE
// =============================================================================

// Resolve runs the full pipeline for req.
func (e *Engine) Resolve(ctx context.Context, req Request) (*Resolution, error) {
	period, err := req.Window.Period(e.location())
	if err != nil {
		return nil, err
	}
	if err := validateRequest(req); err != nil {
		return nil, err
	}

	settings, err := e.Settings.Settings(ctx)
	if err != nil {
		return nil, fmt.Errorf("load settings: %w", err)
	}
	// Length is checked on the span so an oversized window is never expanded
	if err := ValidateStay(period.Len(), settings.StayPolicy()); err != nil {
		return nil, err
	}
	days := period.Days()

	resource, err := e.loadResource(ctx, req.ResourceID, period)
	if err != nil {
		return nil, err
	}
	if err := resource.Validate(); err != nil {
		return nil, err
	}

	avail, err := e.resolveAvailability(ctx, resource, days, req.VehicleCount, settings.AllowSameDay)
	if err != nil {
		return nil, err
	}

	pricer := &Pricer{Customers: e.Customers, Vouchers: e.Vouchers}
	pricing, err := pricer.Price(ctx, PriceInput{
		Resource:          resource,
		Days:              days,
		Addons:            req.Addons,
		Tiers:             settings.DiscountTiers,
		DefaultVIPPercent: settings.DefaultVIPPercent,
		Phone:             req.Phone,
		VoucherCode:       req.VoucherCode,
	})
	if err != nil {
		return nil, err
	}

	resolution := &Resolution{
		Request:      req,
		Days:         days,
		Resource:     resource,
		Settings:     settings,
		Availability: avail,
		Pricing:      pricing,
		Warnings:     pricing.Warnings,
	}
	for _, w := range resolution.Warnings {
		log.Printf("[Engine] %s %s: %s: %s", req.ResourceID, calendar.PeriodOf(days), w.Code, w.Message)
	}
	return resolution, nil
}

// Availability reports day-by-day occupancy for a period without applying
// stay policy or pricing.
func (e *Engine) Availability(ctx context.Context, resourceID ResourceID, period calendar.Period, vehicles int) (*AvailabilityResult, error) {
	if period.Len() == 0 {
		return nil, &InvalidRequestError{Field: "period", Reason: "end before start"}
	}
	if period.Len() > MaxStayDays {
		return nil, &InvalidRequestError{Field: "period", Reason: fmt.Sprintf("longer than %d days", MaxStayDays)}
	}
	if vehicles < 1 {
		return nil, &InvalidRequestError{Field: "vehicles", Reason: "must be at least 1"}
	}
	settings, err := e.Settings.Settings(ctx)
	if err != nil {
		return nil, fmt.Errorf("load settings: %w", err)
	}
	resource, err := e.loadResource(ctx, resourceID, period)
	if err != nil {
		return nil, err
	}
	return e.resolveAvailability(ctx, resource, period.Days(), vehicles, settings.AllowSameDay)
}

// =============================================================================
// BOOK / CANCEL
// =============================================================================

// Book resolves req and commits it when every day is available.
func (e *Engine) Book(ctx context.Context, req Request) (*Booking, error) {
	resolution, err := e.Resolve(ctx, req)
	if err != nil {
		return nil, err
	}
	if !resolution.Availability.OK {
		return nil, &UnavailableError{Result: resolution.Availability}
	}

	id := e.newID()
	reservation, err := e.Capacity.Reserve(ctx, ReserveRequest{
		ID:           id,
		Code:         codeFor(id),
		ResourceID:   req.ResourceID,
		Days:         resolution.Days,
		VehicleCount: req.VehicleCount,
		Capacity:     resolution.Resource.TotalCapacity,
		Phone:        req.Phone,
		VoucherCode:  appliedVoucher(resolution.Pricing),
		FinalAmount:  resolution.Pricing.FinalAmount,
		Window:       req.Window,
		CreatedAt:    e.now(),
	})
	if err != nil {
		return nil, fmt.Errorf("reserve %s: %w", req.ResourceID, err)
	}

	log.Printf("[Engine] Reserved %s on %s: %d vehicle(s) %s, total %s",
		reservation.Code, req.ResourceID, req.VehicleCount, calendar.PeriodOf(resolution.Days), reservation.FinalAmount)
	return &Booking{Reservation: reservation, Resolution: resolution}, nil
}

// Cancel releases a reservation.
func (e *Engine) Cancel(ctx context.Context, id ReservationID) error {
	if err := e.Capacity.Cancel(ctx, id); err != nil {
		return fmt.Errorf("cancel %s: %w", id, err)
	}
	log.Printf("[Engine] Cancelled %s", id)
	return nil
}

// =============================================================================
// HELPERS
// =============================================================================

func (e *Engine) loadResource(ctx context.Context, id ResourceID, period calendar.Period) (*Resource, error) {
	stored, err := e.Catalog.Resource(ctx, id)
	if err != nil {
		return nil, err
	}
	resource := stored.Clone()
	if e.Maintenance != nil {
		blackouts, err := e.Maintenance.BlackoutDays(ctx, id, period.Start, period.End)
		if err != nil {
			return nil, fmt.Errorf("load blackouts for %s: %w", id, err)
		}
		for d := range blackouts {
			resource.Blackouts.Add(d)
		}
	}
	return &resource, nil
}

// resolveAvailability holds the snapshot only for the availability pass.
func (e *Engine) resolveAvailability(ctx context.Context, res *Resource, days []calendar.Date, vehicles int, allowSameDay bool) (*AvailabilityResult, error) {
	snap, err := e.Capacity.Snapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("open capacity snapshot: %w", err)
	}
	defer snap.Close()

	resolver := &AvailabilityResolver{
		Concurrency:  e.DayConcurrency,
		Today:        calendar.In(e.now(), e.location()),
		AllowSameDay: allowSameDay,
	}
	return resolver.Resolve(ctx, res, days, vehicles, snap)
}

func validateRequest(req Request) error {
	if req.ResourceID == "" {
		return &InvalidRequestError{Field: "resource_id", Reason: "is required"}
	}
	if req.VehicleCount < 1 {
		return &InvalidRequestError{Field: "vehicle_count", Reason: "must be at least 1"}
	}
	for _, a := range req.Addons {
		if a.Price.IsNegative() {
			return &InvalidRequestError{Field: "addons", Reason: fmt.Sprintf("%q has a negative price", a.Name)}
		}
	}
	return nil
}

func appliedVoucher(p *PricingResult) string {
	for _, d := range p.Discounts {
		if v, ok := d.(Voucher); ok {
			return v.Code
		}
	}
	return ""
}

func (e *Engine) location() *time.Location {
	if e.Location == nil {
		return time.UTC
	}
	return e.Location
}

func (e *Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e *Engine) newID() ReservationID {
	if e.NewID != nil {
		return e.NewID()
	}
	return ReservationID(uuid.NewString())
}

// codeFor derives the short customer-facing code from a reservation id.
func codeFor(id ReservationID) string {
	code := strings.ToUpper(strings.ReplaceAll(string(id), "-", ""))
	if len(code) > 8 {
		code = code[:8]
	}
	return code
}
