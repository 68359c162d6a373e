/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the booking model from the external API contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients
  - *Response: Complex response wrappers

TYPES:
  Quote / booking:
    QuoteRequest, QuoteResponse, AvailabilityDTO, PricingDTO,
    ReservationDTO, BookResponse

  Seeding:
    PutResourceRequest, SpecialPriceRequest, BlackoutRequest,
    VoucherRequest, CustomerRequest

  Scenarios:
    ScenarioDTO, LoadScenarioRequest

VALIDATION:
  Shape checks are struct tags read by go-playground/validator in
  decodeAndValidate. Domain checks (window order, stay policy, capacity)
  stay in the engine so every caller gets them.

MONEY:
  decimal.Decimal marshals as a JSON string ("3600") and accepts either a
  string or a number on input.

SEE ALSO:
  - handlers.go: Uses these types
  - booking/engine.go: Request, Resolution
*/
package api

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/parking-engine/booking"
	"github.com/warp/parking-engine/calendar"
)

// =============================================================================
// QUOTE / BOOKING
// =============================================================================

// AddonDTO is a selected extra service.
type AddonDTO struct {
	Name  string          `json:"name" validate:"required,max=128"`
	Price decimal.Decimal `json:"price"`
}

// QuoteRequest is the body of POST /api/quote and POST /api/reservations.
type QuoteRequest struct {
	ResourceID  string     `json:"resource_id" validate:"required,max=128"`
	CheckIn     time.Time  `json:"check_in" validate:"required"`
	CheckOut    time.Time  `json:"check_out" validate:"required"`
	Vehicles    int        `json:"vehicles" validate:"required,gte=1,lte=1000"`
	Addons      []AddonDTO `json:"addons,omitempty" validate:"omitempty,dive"`
	Phone       string     `json:"phone,omitempty" validate:"omitempty,max=32"`
	VoucherCode string     `json:"voucher_code,omitempty" validate:"omitempty,max=64"`
}

func (q QuoteRequest) toBooking() booking.Request {
	req := booking.Request{
		ResourceID:   booking.ResourceID(q.ResourceID),
		Window:       booking.Window{CheckIn: q.CheckIn, CheckOut: q.CheckOut},
		VehicleCount: q.Vehicles,
		Phone:        q.Phone,
		VoucherCode:  q.VoucherCode,
	}
	for _, a := range q.Addons {
		req.Addons = append(req.Addons, booking.Addon{Name: a.Name, Price: a.Price})
	}
	return req
}

// FailingDayDTO is one unavailable day.
type FailingDayDTO struct {
	Day    calendar.Date `json:"day"`
	Reason string        `json:"reason"`
}

// DayStatusDTO is the occupancy of one day.
type DayStatusDTO struct {
	Day       calendar.Date `json:"day"`
	Capacity  int           `json:"capacity"`
	Committed int           `json:"committed"`
	Available int           `json:"available"`
	Reason    string        `json:"reason,omitempty"`
}

// AvailabilityDTO is the availability part of a quote.
type AvailabilityDTO struct {
	OK              bool            `json:"ok"`
	From            calendar.Date   `json:"from"`
	To              calendar.Date   `json:"to"`
	FailingDays     []FailingDayDTO `json:"failing_days"`
	Days            []DayStatusDTO  `json:"days"`
	SnapshotVersion string          `json:"snapshot_version"`
}

// DayPriceDTO is the base price of one day.
type DayPriceDTO struct {
	Day            calendar.Date   `json:"day"`
	BasePrice      decimal.Decimal `json:"base_price"`
	IsOverride     bool            `json:"is_override"`
	OverrideReason string          `json:"override_reason,omitempty"`
}

// DiscountDTO is one applied discount stage.
type DiscountDTO struct {
	Stage       string           `json:"stage"`
	Amount      decimal.Decimal  `json:"amount"`
	Tier        string           `json:"tier,omitempty"`
	PerDayShare *decimal.Decimal `json:"per_day_share,omitempty"`
	Percent     *decimal.Decimal `json:"percent,omitempty"`
	Code        string           `json:"code,omitempty"`
	Kind        string           `json:"kind,omitempty"`
}

// PricingDTO is the price breakdown of a quote.
type PricingDTO struct {
	PerDay      []DayPriceDTO   `json:"per_day"`
	BaseTotal   decimal.Decimal `json:"base_total"`
	AddonTotal  decimal.Decimal `json:"addon_total"`
	Discounts   []DiscountDTO   `json:"discounts"`
	FinalAmount decimal.Decimal `json:"final_amount"`
}

// ShortfallDTO is a day that no longer fits at commit time.
type ShortfallDTO struct {
	Day       calendar.Date `json:"day"`
	Available int           `json:"available"`
	Requested int           `json:"requested"`
}

// WarningDTO is an advisory condition.
type WarningDTO struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// QuoteResponse is the full resolution of a request.
type QuoteResponse struct {
	ResourceID   string          `json:"resource_id"`
	Days         []calendar.Date `json:"days"`
	Vehicles     int             `json:"vehicles"`
	Availability AvailabilityDTO `json:"availability"`
	Pricing      PricingDTO      `json:"pricing"`
	Warnings     []WarningDTO    `json:"warnings"`
}

// ReservationDTO represents a stored reservation.
type ReservationDTO struct {
	ID          string          `json:"id"`
	Code        string          `json:"code"`
	ResourceID  string          `json:"resource_id"`
	Days        []calendar.Date `json:"days"`
	Vehicles    int             `json:"vehicles"`
	Phone       string          `json:"phone,omitempty"`
	VoucherCode string          `json:"voucher_code,omitempty"`
	FinalAmount decimal.Decimal `json:"final_amount"`
	Status      string          `json:"status"`
	CreatedAt   string          `json:"created_at"`
	CancelledAt *string         `json:"cancelled_at,omitempty"`
}

// BookResponse is returned by POST /api/reservations.
type BookResponse struct {
	Reservation ReservationDTO `json:"reservation"`
	Quote       QuoteResponse  `json:"quote"`
}

// =============================================================================
// RESOURCES & SEEDING
// =============================================================================

// SpecialPriceDTO is a price override.
type SpecialPriceDTO struct {
	Day    calendar.Date   `json:"day"`
	Price  decimal.Decimal `json:"price"`
	Reason string          `json:"reason,omitempty"`
}

// ResourceDTO represents a parking resource.
type ResourceDTO struct {
	ID            string            `json:"id"`
	Name          string            `json:"name"`
	TotalCapacity int               `json:"total_capacity"`
	PricePerDay   decimal.Decimal   `json:"price_per_day"`
	SpecialPrices []SpecialPriceDTO `json:"special_prices"`
}

// PutResourceRequest creates or updates a resource.
type PutResourceRequest struct {
	Name          string          `json:"name" validate:"required,max=256"`
	TotalCapacity int             `json:"total_capacity" validate:"gte=0"`
	PricePerDay   decimal.Decimal `json:"price_per_day"`
}

// SpecialPriceRequest sets the price of one day.
type SpecialPriceRequest struct {
	Price  decimal.Decimal `json:"price"`
	Reason string          `json:"reason" validate:"max=256"`
}

// BlackoutRequest closes days for maintenance.
type BlackoutRequest struct {
	Days   []calendar.Date `json:"days" validate:"required,min=1,max=366"`
	Reason string          `json:"reason" validate:"max=256"`
}

// VoucherRequest creates or updates a voucher.
type VoucherRequest struct {
	Code       string          `json:"code" validate:"required,max=64"`
	Kind       string          `json:"kind" validate:"required,oneof=fixed percentage"`
	Value      decimal.Decimal `json:"value"`
	ResourceID string          `json:"resource_id,omitempty" validate:"max=128"`
	ValidFrom  calendar.Date   `json:"valid_from,omitempty"`
	ValidTo    calendar.Date   `json:"valid_to,omitempty"`
	MinAmount  decimal.Decimal `json:"min_amount"`
	Active     *bool           `json:"active,omitempty"`
}

// CustomerRequest creates or updates a customer.
type CustomerRequest struct {
	Phone      string          `json:"phone" validate:"required,max=32"`
	Name       string          `json:"name" validate:"max=256"`
	IsVIP      bool            `json:"is_vip"`
	VIPPercent decimal.Decimal `json:"vip_percent"`
}

// =============================================================================
// SCENARIOS & ERRORS
// =============================================================================

// ScenarioDTO represents a demo scenario.
type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// LoadScenarioRequest selects a scenario.
type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id" validate:"required"`
}

// ErrorResponse is the standard error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details any    `json:"details,omitempty"`
}

// =============================================================================
// CONVERSIONS
// =============================================================================

// ToQuoteResponse converts a resolution for the wire.
func ToQuoteResponse(res *booking.Resolution) QuoteResponse {
	out := QuoteResponse{
		ResourceID:   string(res.Request.ResourceID),
		Days:         res.Days,
		Vehicles:     res.Request.VehicleCount,
		Availability: ToAvailabilityDTO(res.Availability),
		Warnings:     []WarningDTO{},
	}

	p := res.Pricing
	out.Pricing = PricingDTO{
		PerDay:      make([]DayPriceDTO, len(p.PerDay)),
		BaseTotal:   p.BaseTotal,
		AddonTotal:  p.AddonTotal,
		Discounts:   make([]DiscountDTO, 0, len(p.Discounts)),
		FinalAmount: p.FinalAmount,
	}
	for i, dp := range p.PerDay {
		out.Pricing.PerDay[i] = DayPriceDTO{Day: dp.Day, BasePrice: dp.BasePrice, IsOverride: dp.IsOverride, OverrideReason: dp.OverrideReason}
	}
	for _, d := range p.Discounts {
		out.Pricing.Discounts = append(out.Pricing.Discounts, toDiscountDTO(d))
	}
	for _, w := range res.Warnings {
		out.Warnings = append(out.Warnings, WarningDTO{Code: string(w.Code), Message: w.Message})
	}
	return out
}

func toDiscountDTO(d booking.Discount) DiscountDTO {
	dto := DiscountDTO{Stage: string(d.Stage()), Amount: d.Deducted()}
	switch v := d.(type) {
	case booking.AutomaticTiered:
		share := v.PerDayShare
		dto.Tier = v.Tier
		dto.PerDayShare = &share
	case booking.VIPPercentage:
		pct := v.Percent
		dto.Percent = &pct
	case booking.Voucher:
		dto.Code = v.Code
		dto.Kind = string(v.Kind)
	}
	return dto
}

// ToAvailabilityDTO converts an availability result for the wire.
func ToAvailabilityDTO(a *booking.AvailabilityResult) AvailabilityDTO {
	out := AvailabilityDTO{
		OK:              a.OK,
		From:            a.SelectedRange.Start,
		To:              a.SelectedRange.End,
		FailingDays:     make([]FailingDayDTO, len(a.FailingDays)),
		Days:            make([]DayStatusDTO, len(a.Days)),
		SnapshotVersion: a.SnapshotVersion,
	}
	for i, f := range a.FailingDays {
		out.FailingDays[i] = FailingDayDTO{Day: f.Day, Reason: string(f.Reason)}
	}
	for i, s := range a.Days {
		out.Days[i] = DayStatusDTO{Day: s.Day, Capacity: s.Capacity, Committed: s.Committed, Available: s.Available, Reason: string(s.Reason)}
	}
	return out
}

func toShortfallDTOs(days []booking.DayShortfall) []ShortfallDTO {
	out := make([]ShortfallDTO, len(days))
	for i, d := range days {
		out[i] = ShortfallDTO{Day: d.Day, Available: d.Available, Requested: d.Requested}
	}
	return out
}

// ToReservationDTO converts a reservation for the wire.
func ToReservationDTO(r *booking.Reservation) ReservationDTO {
	dto := ReservationDTO{
		ID:          string(r.ID),
		Code:        r.Code,
		ResourceID:  string(r.ResourceID),
		Days:        r.Days,
		Vehicles:    r.VehicleCount,
		Phone:       r.Phone,
		VoucherCode: r.VoucherCode,
		FinalAmount: r.FinalAmount,
		Status:      string(r.Status),
		CreatedAt:   r.CreatedAt.Format(time.RFC3339),
	}
	if r.CancelledAt != nil {
		s := r.CancelledAt.Format(time.RFC3339)
		dto.CancelledAt = &s
	}
	return dto
}

func toResourceDTO(r *booking.Resource) ResourceDTO {
	dto := ResourceDTO{
		ID:            string(r.ID),
		Name:          r.Name,
		TotalCapacity: r.TotalCapacity,
		PricePerDay:   r.PricePerDay,
		SpecialPrices: []SpecialPriceDTO{},
	}
	days := make([]calendar.Date, 0, len(r.SpecialPrices))
	for d := range r.SpecialPrices {
		days = append(days, d)
	}
	calendar.SortDates(days)
	for _, d := range days {
		sp := r.SpecialPrices[d]
		dto.SpecialPrices = append(dto.SpecialPrices, SpecialPriceDTO{Day: d, Price: sp.Price, Reason: sp.Reason})
	}
	return dto
}
