package booking

import (
	"github.com/shopspring/decimal"
)

// =============================================================================
// SETTINGS - Fetched once per resolution from the SettingsProvider
// =============================================================================

// Settings is the engine configuration value for one resolution call.
type Settings struct {
	MinBookingDays    int
	MaxBookingDays    int // 0 = MaxStayDays
	DiscountTiers     []DiscountTier
	DefaultVIPPercent decimal.Decimal
	// AllowSameDay disables the PAST check. When false, every day that is
	// not strictly after today is unavailable with reason PAST.
	AllowSameDay bool
}

// StayPolicy returns the min/max stay part of the settings.
func (s Settings) StayPolicy() StayPolicy {
	return StayPolicy{MinDays: s.MinBookingDays, MaxDays: s.MaxBookingDays}
}

// =============================================================================
// STAY POLICY - Calendar-day min/max
// =============================================================================

// StayPolicy bounds the number of calendar days in a stay.
type StayPolicy struct {
	MinDays int
	MaxDays int // 0 = MaxStayDays
}

// MaxStayDays is the hard ceiling on a stay. It applies when the settings
// leave max_booking_days unset, and settings may not exceed it.
const MaxStayDays = 366

// Limit returns the effective maximum stay in days.
func (p StayPolicy) Limit() int {
	if p.MaxDays <= 0 || p.MaxDays > MaxStayDays {
		return MaxStayDays
	}
	return p.MaxDays
}

// ValidateStay checks dayCount (the length of the normalized day list, never
// elapsed hours) against the policy.
func ValidateStay(dayCount int, policy StayPolicy) error {
	if dayCount < policy.MinDays {
		return &StayTooShortError{Required: policy.MinDays, Actual: dayCount}
	}
	if limit := policy.Limit(); dayCount > limit {
		return &StayTooLongError{Allowed: limit, Actual: dayCount}
	}
	return nil
}

// =============================================================================
// DISCOUNT TIERS - Automatic discount rules
// =============================================================================

type TierKind string

const (
	// TierPercentage takes Value percent of BaseTotal.
	TierPercentage TierKind = "percentage"
	// TierFlatPerDay takes Value for every day of the stay.
	TierFlatPerDay TierKind = "flat_per_day"
	// TierFlat takes Value once.
	TierFlat TierKind = "flat"
)

// DiscountTier applies to stays of MinDays..MaxDays calendar days.
type DiscountTier struct {
	Name    string
	MinDays int
	MaxDays int // 0 = open-ended
	Kind    TierKind
	Value   decimal.Decimal
}

// Matches reports whether the tier covers dayCount.
func (t DiscountTier) Matches(dayCount int) bool {
	return dayCount >= t.MinDays && (t.MaxDays == 0 || dayCount <= t.MaxDays)
}

// Amount returns the unclamped discount for a stay. Percentages are rounded
// to whole units.
func (t DiscountTier) Amount(dayCount int, baseTotal decimal.Decimal) decimal.Decimal {
	switch t.Kind {
	case TierPercentage:
		return percentOf(baseTotal, t.Value)
	case TierFlatPerDay:
		return t.Value.Mul(decimal.NewFromInt(int64(dayCount)))
	case TierFlat:
		return t.Value
	default:
		return decimal.Zero
	}
}

// SelectTier returns the matching tier with the highest MinDays, or nil.
// Ties keep configuration order.
func SelectTier(tiers []DiscountTier, dayCount int) *DiscountTier {
	var best *DiscountTier
	for i := range tiers {
		t := &tiers[i]
		if !t.Matches(dayCount) {
			continue
		}
		if best == nil || t.MinDays > best.MinDays {
			best = t
		}
	}
	return best
}

var hundred = decimal.NewFromInt(100)

// percentOf returns round(amount * percent / 100), half away from zero.
func percentOf(amount, percent decimal.Decimal) decimal.Decimal {
	return amount.Mul(percent).Div(hundred).Round(0)
}
