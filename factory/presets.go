/*
presets.go - Ready-made engine settings

AVAILABLE PRESETS:
  StandardSettingsJSON:    Min/max stay, 10% VIP, week and month tiers
  NoDiscountSettingsJSON:  Min/max stay only
  AirportSettingsJSON:     Same-day allowed, per-day tiers for long stays

These are starting points for scenarios and tests. Real lots usually tune
the tiers.
*/
package factory

import "fmt"

// StandardSettingsJSON returns settings with the given stay limits, a 10%
// default VIP discount, 10% off 7+ day stays and 20% off 28+ day stays.
func StandardSettingsJSON(minDays, maxDays int) string {
	return fmt.Sprintf(`{
  "min_booking_days": %d,
  "max_booking_days": %d,
  "default_vip_percent": "10",
  "discount_tiers": [
    {"name": "week", "min_days": 7, "max_days": 27, "kind": "percentage", "value": "10"},
    {"name": "month", "min_days": 28, "kind": "percentage", "value": "20"}
  ]
}`, minDays, maxDays)
}

// NoDiscountSettingsJSON returns settings with stay limits and nothing else.
func NoDiscountSettingsJSON(minDays, maxDays int) string {
	return fmt.Sprintf(`{"min_booking_days": %d, "max_booking_days": %d, "default_vip_percent": "0"}`, minDays, maxDays)
}

// AirportSettingsJSON returns settings for an airport lot: same-day drop-off
// allowed, a flat 2/day off from day 4, 5/day off from day 8.
func AirportSettingsJSON() string {
	return `{
  "min_booking_days": 1,
  "max_booking_days": 60,
  "default_vip_percent": "5",
  "allow_same_day": true,
  "discount_tiers": [
    {"name": "long-weekend", "min_days": 4, "max_days": 7, "kind": "flat_per_day", "value": "2"},
    {"name": "holiday", "min_days": 8, "kind": "flat_per_day", "value": "5"}
  ]
}`
}
