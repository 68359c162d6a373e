/*
Package factory provides JSON to Go settings conversion.

PURPOSE:
  Converts JSON engine settings into booking.Settings. Settings are stored
  as JSON by the SettingsProvider and parsed on every resolution call, so
  operators change stay limits and discount tiers without a deploy.

JSON SCHEMA:
  {
    "min_booking_days": 1,
    "max_booking_days": 30,
    "default_vip_percent": "10",
    "allow_same_day": false,
    "discount_tiers": [
      {"name": "weekend", "min_days": 2, "max_days": 3, "kind": "flat", "value": "100"},
      {"name": "week", "min_days": 7, "kind": "percentage", "value": "15"}
    ]
  }

  Tier kinds: percentage (of BaseTotal), flat_per_day, flat.
  max_booking_days / max_days of 0 mean "no upper limit".

VALIDATION:
  - min_booking_days >= 1
  - max_booking_days == 0 or >= min_booking_days
  - default_vip_percent in 0..100
  - every tier passes booking.ValidateTier

USAGE:
  f := factory.NewSettingsFactory()
  settings, err := f.ParseSettings(factory.StandardSettingsJSON(1, 30))

SEE ALSO:
  - booking/policy.go: Settings, DiscountTier
  - presets.go: Ready-made settings
*/
package factory

import (
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/warp/parking-engine/booking"
)

// =============================================================================
// JSON SCHEMA TYPES
// =============================================================================

// SettingsJSON is the JSON representation of engine settings.
type SettingsJSON struct {
	MinBookingDays    int             `json:"min_booking_days"`
	MaxBookingDays    int             `json:"max_booking_days,omitempty"`
	DefaultVIPPercent decimal.Decimal `json:"default_vip_percent"`
	AllowSameDay      bool            `json:"allow_same_day,omitempty"`
	DiscountTiers     []TierJSON      `json:"discount_tiers,omitempty"`
}

// TierJSON represents one automatic discount tier.
type TierJSON struct {
	Name    string          `json:"name"`
	MinDays int             `json:"min_days"`
	MaxDays int             `json:"max_days,omitempty"`
	Kind    string          `json:"kind"` // percentage, flat_per_day, flat
	Value   decimal.Decimal `json:"value"`
}

// =============================================================================
// SETTINGS FACTORY
// =============================================================================

// SettingsFactory converts JSON settings to booking.Settings.
type SettingsFactory struct{}

// NewSettingsFactory creates a new settings factory.
func NewSettingsFactory() *SettingsFactory {
	return &SettingsFactory{}
}

// ParseSettings parses and validates a JSON settings document.
func (f *SettingsFactory) ParseSettings(jsonStr string) (*booking.Settings, error) {
	var sj SettingsJSON
	if err := json.Unmarshal([]byte(jsonStr), &sj); err != nil {
		return nil, fmt.Errorf("failed to parse settings JSON: %w", err)
	}
	return f.FromJSON(sj)
}

// FromJSON converts SettingsJSON to booking.Settings.
func (f *SettingsFactory) FromJSON(sj SettingsJSON) (*booking.Settings, error) {
	if sj.MinBookingDays < 1 {
		return nil, fmt.Errorf("min_booking_days must be at least 1, got %d", sj.MinBookingDays)
	}
	if sj.MinBookingDays > booking.MaxStayDays || sj.MaxBookingDays > booking.MaxStayDays {
		return nil, fmt.Errorf("booking days may not exceed %d", booking.MaxStayDays)
	}
	if sj.MaxBookingDays < 0 {
		return nil, fmt.Errorf("max_booking_days must not be negative, got %d", sj.MaxBookingDays)
	}
	if sj.MaxBookingDays != 0 && sj.MaxBookingDays < sj.MinBookingDays {
		return nil, fmt.Errorf("max_booking_days %d is below min_booking_days %d", sj.MaxBookingDays, sj.MinBookingDays)
	}
	if sj.DefaultVIPPercent.IsNegative() || sj.DefaultVIPPercent.GreaterThan(decimal.NewFromInt(100)) {
		return nil, fmt.Errorf("default_vip_percent must be within 0..100, got %s", sj.DefaultVIPPercent)
	}

	settings := &booking.Settings{
		MinBookingDays:    sj.MinBookingDays,
		MaxBookingDays:    sj.MaxBookingDays,
		DefaultVIPPercent: sj.DefaultVIPPercent,
		AllowSameDay:      sj.AllowSameDay,
	}

	// Tiers keep configuration order; ties in SelectTier depend on it
	for _, tj := range sj.DiscountTiers {
		tier := booking.DiscountTier{
			Name:    tj.Name,
			MinDays: tj.MinDays,
			MaxDays: tj.MaxDays,
			Kind:    booking.TierKind(tj.Kind),
			Value:   tj.Value,
		}
		if err := booking.ValidateTier(tier); err != nil {
			return nil, err
		}
		settings.DiscountTiers = append(settings.DiscountTiers, tier)
	}

	return settings, nil
}

// ToJSON converts booking.Settings to SettingsJSON.
func (f *SettingsFactory) ToJSON(s booking.Settings) SettingsJSON {
	sj := SettingsJSON{
		MinBookingDays:    s.MinBookingDays,
		MaxBookingDays:    s.MaxBookingDays,
		DefaultVIPPercent: s.DefaultVIPPercent,
		AllowSameDay:      s.AllowSameDay,
	}
	for _, t := range s.DiscountTiers {
		sj.DiscountTiers = append(sj.DiscountTiers, TierJSON{
			Name:    t.Name,
			MinDays: t.MinDays,
			MaxDays: t.MaxDays,
			Kind:    string(t.Kind),
			Value:   t.Value,
		})
	}
	return sj
}

// Marshal renders settings as the stored JSON document.
func (f *SettingsFactory) Marshal(s booking.Settings) (string, error) {
	b, err := json.Marshal(f.ToJSON(s))
	if err != nil {
		return "", fmt.Errorf("failed to marshal settings: %w", err)
	}
	return string(b), nil
}
