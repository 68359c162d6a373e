/*
pricing.go - Per-day base prices and the discount stack

PURPOSE:
  Computes the price of a stay through a fixed pipeline:

    1. Per-day base       special price if present, else PricePerDay
    2. Addon total        flat, never discounted
    3. Automatic tier     from (dayCount, BaseTotal), against Base+Addons
    4. VIP percentage     round(remainder * percent / 100)
    5. Voucher            fixed or percentage of the remainder
    6. Final              max(0, remainder), rounded to whole units

ORDER IS LOAD-BEARING:
  Each stage's base is the previous stage's remainder. Discounts are held
  in a slice in stage order. Each stage is clamped to the remainder it is
  applied against, so no stage can drive the total negative.

ROUNDING:
  Percentages and the final amount are rounded to whole currency units,
  half away from zero (decimal.Round(0)).

PER-DAY DISPLAY SPLIT:
  AutomaticTiered.PerDayShare is Amount / dayCount rounded. It exists for
  itemized receipts only and is never fed back into the computation, so
  the sum of the shown shares may differ from Amount by rounding.

DEGRADATION:
  Customer and voucher lookups never fail pricing. Lookup errors and
  invalid vouchers suppress the corresponding stage and add a Warning.
*/
package booking

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/warp/parking-engine/calendar"
)

// =============================================================================
// DISCOUNT COMPONENTS - Closed variant set
// =============================================================================

// Stage identifies a discount component.
type Stage string

const (
	StageAutomatic Stage = "automatic_tiered"
	StageVIP       Stage = "vip_percentage"
	StageVoucher   Stage = "voucher"
)

// Discount is one applied stage. The set of implementations is closed:
// AutomaticTiered, VIPPercentage and Voucher.
type Discount interface {
	Stage() Stage
	Deducted() decimal.Decimal
	discount()
}

// AutomaticTiered is the rule-driven stay-length discount.
type AutomaticTiered struct {
	Tier        string
	Amount      decimal.Decimal
	PerDayShare decimal.Decimal // display only
}

// VIPPercentage is the recognized-customer discount.
type VIPPercentage struct {
	Percent decimal.Decimal
	Amount  decimal.Decimal
}

// Voucher is the customer-supplied code discount.
type Voucher struct {
	Code   string
	Kind   VoucherKind
	Value  decimal.Decimal
	Amount decimal.Decimal
}

func (AutomaticTiered) Stage() Stage { return StageAutomatic }
func (VIPPercentage) Stage() Stage   { return StageVIP }
func (Voucher) Stage() Stage         { return StageVoucher }

func (d AutomaticTiered) Deducted() decimal.Decimal { return d.Amount }
func (d VIPPercentage) Deducted() decimal.Decimal   { return d.Amount }
func (d Voucher) Deducted() decimal.Decimal         { return d.Amount }

func (AutomaticTiered) discount() {}
func (VIPPercentage) discount()   {}
func (Voucher) discount()         {}

// =============================================================================
// PRICING RESULT
// =============================================================================

// DayPrice is the base price of one day.
type DayPrice struct {
	Day            calendar.Date
	BasePrice      decimal.Decimal
	IsOverride     bool
	OverrideReason string
}

// PricingResult is the full, auditable price breakdown.
type PricingResult struct {
	PerDay      []DayPrice
	AddonTotal  decimal.Decimal
	BaseTotal   decimal.Decimal
	Discounts   []Discount
	FinalAmount decimal.Decimal
	Warnings    []Warning
}

// Gross returns BaseTotal + AddonTotal.
func (p *PricingResult) Gross() decimal.Decimal {
	return p.BaseTotal.Add(p.AddonTotal)
}

// Deducted returns the amount taken by stage, zero if it did not apply.
func (p *PricingResult) Deducted(stage Stage) decimal.Decimal {
	for _, d := range p.Discounts {
		if d.Stage() == stage {
			return d.Deducted()
		}
	}
	return decimal.Zero
}

// =============================================================================
// DISCOUNT STACK - Pure stage arithmetic
// =============================================================================

// DiscountStack holds the resolved inputs of stages 3-5.
type DiscountStack struct {
	AutoTier   string
	AutoAmount decimal.Decimal
	VIPPercent decimal.Decimal // zero = not VIP
	Voucher    *VoucherGrant   // nil = no voucher
}

// Apply runs the stages in order against baseTotal + addonTotal and returns
// the applied components and the final amount.
func (s DiscountStack) Apply(baseTotal, addonTotal decimal.Decimal, dayCount int) ([]Discount, decimal.Decimal) {
	discounts, remainder := s.apply(baseTotal.Add(addonTotal), dayCount)
	return discounts, decimal.Max(decimal.Zero, remainder).Round(0)
}

func (s DiscountStack) apply(gross decimal.Decimal, dayCount int) ([]Discount, decimal.Decimal) {
	var discounts []Discount
	remainder := gross

	if s.AutoAmount.IsPositive() {
		amount := clamp(s.AutoAmount, remainder)
		share := decimal.Zero
		if dayCount > 0 {
			share = amount.Div(decimal.NewFromInt(int64(dayCount))).Round(0)
		}
		discounts = append(discounts, AutomaticTiered{Tier: s.AutoTier, Amount: amount, PerDayShare: share})
		remainder = remainder.Sub(amount)
	}

	if s.VIPPercent.IsPositive() {
		amount := clamp(percentOf(remainder, s.VIPPercent), remainder)
		discounts = append(discounts, VIPPercentage{Percent: s.VIPPercent, Amount: amount})
		remainder = remainder.Sub(amount)
	}

	if s.Voucher != nil {
		var raw decimal.Decimal
		switch s.Voucher.Kind {
		case VoucherFixed:
			raw = s.Voucher.Value
		case VoucherPercentage:
			raw = percentOf(remainder, s.Voucher.Value)
		}
		amount := clamp(raw, remainder)
		discounts = append(discounts, Voucher{
			Code:   s.Voucher.Code,
			Kind:   s.Voucher.Kind,
			Value:  s.Voucher.Value,
			Amount: amount,
		})
		remainder = remainder.Sub(amount)
	}

	return discounts, remainder
}

// clamp bounds a discount to [0, remainder].
func clamp(amount, remainder decimal.Decimal) decimal.Decimal {
	if amount.IsNegative() || !remainder.IsPositive() {
		return decimal.Zero
	}
	return decimal.Min(amount, remainder)
}

// =============================================================================
// PRICER - Resolves the stack inputs and prices a stay
// =============================================================================

// PriceInput is everything the pricer needs for one stay.
type PriceInput struct {
	Resource          *Resource
	Days              []calendar.Date
	Addons            []Addon
	Tiers             []DiscountTier
	DefaultVIPPercent decimal.Decimal
	Phone             string // empty = anonymous, no VIP lookup
	VoucherCode       string // empty = no voucher
}

// Pricer prices stays. Customers and Vouchers may be nil, in which case the
// corresponding stages are skipped.
type Pricer struct {
	Customers CustomerLookup
	Vouchers  VoucherService
}

// Price runs the pricing pipeline. Only configuration problems are errors.
func (p *Pricer) Price(ctx context.Context, in PriceInput) (*PricingResult, error) {
	if err := validatePriceInput(in); err != nil {
		return nil, err
	}
	res := in.Resource
	result := &PricingResult{
		PerDay:     make([]DayPrice, len(in.Days)),
		BaseTotal:  decimal.Zero,
		AddonTotal: decimal.Zero,
	}

	// 1. Per-day base
	for i, day := range in.Days {
		dp := DayPrice{Day: day, BasePrice: res.PricePerDay}
		if sp, ok := res.SpecialPrices[day]; ok {
			dp.BasePrice = sp.Price
			dp.IsOverride = true
			dp.OverrideReason = sp.Reason
		}
		result.PerDay[i] = dp
		result.BaseTotal = result.BaseTotal.Add(dp.BasePrice)
	}

	// 2. Addons
	for _, a := range in.Addons {
		result.AddonTotal = result.AddonTotal.Add(a.Price)
	}

	// 3. Automatic tier
	var stack DiscountStack
	if tier := SelectTier(in.Tiers, len(in.Days)); tier != nil {
		stack.AutoTier = tier.Name
		stack.AutoAmount = tier.Amount(len(in.Days), result.BaseTotal)
	}

	// 4. VIP
	stack.VIPPercent = p.vipPercent(ctx, in, result)

	// 5. Voucher, validated against the remainder it would apply to
	if in.VoucherCode != "" {
		_, remainder := stack.apply(result.Gross(), len(in.Days))
		stack.Voucher = p.voucher(ctx, in, decimal.Max(decimal.Zero, remainder), result)
	}

	// 6. Final
	result.Discounts, result.FinalAmount = stack.Apply(result.BaseTotal, result.AddonTotal, len(in.Days))
	return result, nil
}

func (p *Pricer) vipPercent(ctx context.Context, in PriceInput, result *PricingResult) decimal.Decimal {
	if in.Phone == "" || p.Customers == nil {
		return decimal.Zero
	}
	cust, err := p.Customers.LookupCustomer(ctx, in.Phone)
	switch {
	case errors.Is(err, ErrCustomerNotFound):
		return decimal.Zero
	case err != nil:
		result.Warnings = append(result.Warnings, Warning{
			Code:    WarningVIPLookupFailed,
			Message: fmt.Sprintf("customer lookup failed, priced without VIP discount: %v", err),
		})
		return decimal.Zero
	case cust == nil || !cust.IsVIP:
		return decimal.Zero
	}
	if cust.VIPPercent.IsPositive() {
		return cust.VIPPercent
	}
	return in.DefaultVIPPercent
}

func (p *Pricer) voucher(ctx context.Context, in PriceInput, remainder decimal.Decimal, result *PricingResult) *VoucherGrant {
	if p.Vouchers == nil {
		result.Warnings = append(result.Warnings, Warning{
			Code:    WarningVoucherLookupFailed,
			Message: "voucher service unavailable, priced without voucher",
		})
		return nil
	}
	grant, err := p.Vouchers.ValidateVoucher(ctx, VoucherQuery{
		Code:       in.VoucherCode,
		ResourceID: in.Resource.ID,
		Days:       in.Days,
		Amount:     remainder,
	})
	switch {
	case errors.Is(err, ErrVoucherInvalid):
		result.Warnings = append(result.Warnings, Warning{Code: WarningVoucherInvalid, Message: err.Error()})
		return nil
	case err != nil:
		result.Warnings = append(result.Warnings, Warning{
			Code:    WarningVoucherLookupFailed,
			Message: fmt.Sprintf("voucher lookup failed, priced without voucher: %v", err),
		})
		return nil
	}
	return grant
}

func validatePriceInput(in PriceInput) error {
	if in.Resource == nil {
		return &PricingConfigError{Reason: "resource configuration missing"}
	}
	if len(in.Days) == 0 {
		return &InvalidRequestError{Field: "days", Reason: "must not be empty"}
	}
	if err := in.Resource.Validate(); err != nil {
		return err
	}
	for _, a := range in.Addons {
		if a.Price.IsNegative() {
			return &PricingConfigError{ResourceID: in.Resource.ID, Reason: fmt.Sprintf("addon %q has negative price", a.Name)}
		}
	}
	for _, t := range in.Tiers {
		if err := ValidateTier(t); err != nil {
			return &PricingConfigError{ResourceID: in.Resource.ID, Reason: err.Error()}
		}
	}
	if in.DefaultVIPPercent.IsNegative() || in.DefaultVIPPercent.GreaterThan(hundred) {
		return &PricingConfigError{ResourceID: in.Resource.ID, Reason: "default VIP percent outside 0..100"}
	}
	return nil
}

// ValidateTier checks a tier definition.
func ValidateTier(t DiscountTier) error {
	switch t.Kind {
	case TierPercentage, TierFlatPerDay, TierFlat:
	default:
		return fmt.Errorf("tier %q: unknown kind %q", t.Name, t.Kind)
	}
	if t.Value.IsNegative() {
		return fmt.Errorf("tier %q: negative value", t.Name)
	}
	if t.Kind == TierPercentage && t.Value.GreaterThan(hundred) {
		return fmt.Errorf("tier %q: percentage above 100", t.Name)
	}
	if t.MinDays < 1 {
		return fmt.Errorf("tier %q: min days must be at least 1", t.Name)
	}
	if t.MaxDays != 0 && t.MaxDays < t.MinDays {
		return fmt.Errorf("tier %q: max days below min days", t.Name)
	}
	return nil
}
