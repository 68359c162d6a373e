package booking_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/warp/parking-engine/booking"
	"github.com/warp/parking-engine/calendar"
)

// =============================================================================
// STAY POLICY
// =============================================================================

func TestValidateStay(t *testing.T) {
	tests := []struct {
		name     string
		days     int
		policy   booking.StayPolicy
		wantErr  error
		tooShort *booking.StayTooShortError
		tooLong  *booking.StayTooLongError
	}{
		{name: "within bounds", days: 3, policy: booking.StayPolicy{MinDays: 1, MaxDays: 30}},
		{name: "exactly min", days: 3, policy: booking.StayPolicy{MinDays: 3, MaxDays: 30}},
		{name: "exactly max", days: 30, policy: booking.StayPolicy{MinDays: 1, MaxDays: 30}},
		{name: "no max up to ceiling", days: booking.MaxStayDays, policy: booking.StayPolicy{MinDays: 1}},
		{
			name: "no max still capped", days: 400, policy: booking.StayPolicy{MinDays: 1},
			wantErr: booking.ErrStayPolicy, tooLong: &booking.StayTooLongError{Allowed: booking.MaxStayDays, Actual: 400},
		},
		{
			name: "max above ceiling", days: 500, policy: booking.StayPolicy{MinDays: 1, MaxDays: 1000},
			wantErr: booking.ErrStayPolicy, tooLong: &booking.StayTooLongError{Allowed: booking.MaxStayDays, Actual: 500},
		},
		{
			name: "too short", days: 2, policy: booking.StayPolicy{MinDays: 3},
			wantErr: booking.ErrStayPolicy, tooShort: &booking.StayTooShortError{Required: 3, Actual: 2},
		},
		{
			name: "too long", days: 31, policy: booking.StayPolicy{MinDays: 1, MaxDays: 30},
			wantErr: booking.ErrStayPolicy, tooLong: &booking.StayTooLongError{Allowed: 30, Actual: 31},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := booking.ValidateStay(tt.days, tt.policy)
			if tt.wantErr == nil {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected %v, got %v", tt.wantErr, err)
			}
			if tt.tooShort != nil {
				var got *booking.StayTooShortError
				if !errors.As(err, &got) || *got != *tt.tooShort {
					t.Errorf("expected %+v, got %v", tt.tooShort, err)
				}
			}
			if tt.tooLong != nil {
				var got *booking.StayTooLongError
				if !errors.As(err, &got) || *got != *tt.tooLong {
					t.Errorf("expected %+v, got %v", tt.tooLong, err)
				}
			}
		})
	}
}

// =============================================================================
// DISCOUNT TIERS
// =============================================================================

func TestSelectTier_HighestMatchingMinDaysWins(t *testing.T) {
	tiers := []booking.DiscountTier{
		{Name: "week", MinDays: 7, Kind: booking.TierPercentage, Value: money("15")},
		{Name: "short", MinDays: 2, MaxDays: 4, Kind: booking.TierFlatPerDay, Value: money("50")},
		{Name: "any", MinDays: 1, Kind: booking.TierFlat, Value: money("10")},
		{Name: "week-dup", MinDays: 7, Kind: booking.TierFlat, Value: money("999")},
	}

	cases := map[int]string{1: "any", 2: "short", 4: "short", 5: "any", 7: "week", 30: "week"}
	for dayCount, want := range cases {
		got := booking.SelectTier(tiers, dayCount)
		if assert.NotNil(t, got, "days=%d", dayCount) {
			assert.Equal(t, want, got.Name, "days=%d", dayCount)
		}
	}

	assert.Nil(t, booking.SelectTier(tiers[:2], 1))
	assert.Nil(t, booking.SelectTier(nil, 3))
}

func TestDiscountTier_Amount(t *testing.T) {
	base := money("3600")

	pct := booking.DiscountTier{Kind: booking.TierPercentage, Value: money("12.5")}
	assertMoney(t, "450", pct.Amount(3, base), "percentage")

	perDay := booking.DiscountTier{Kind: booking.TierFlatPerDay, Value: money("100")}
	assertMoney(t, "300", perDay.Amount(3, base), "flat per day")

	flat := booking.DiscountTier{Kind: booking.TierFlat, Value: money("300")}
	assertMoney(t, "300", flat.Amount(3, base), "flat")
}

func TestValidateTier(t *testing.T) {
	valid := booking.DiscountTier{Name: "ok", MinDays: 3, MaxDays: 5, Kind: booking.TierFlat, Value: money("10")}
	assert.NoError(t, booking.ValidateTier(valid))

	bad := []booking.DiscountTier{
		{Name: "kind", MinDays: 1, Kind: "weekly"},
		{Name: "negative", MinDays: 1, Kind: booking.TierFlat, Value: money("-1")},
		{Name: "pct", MinDays: 1, Kind: booking.TierPercentage, Value: money("120")},
		{Name: "min", MinDays: 0, Kind: booking.TierFlat},
		{Name: "max", MinDays: 5, MaxDays: 3, Kind: booking.TierFlat},
	}
	for _, tier := range bad {
		assert.Error(t, booking.ValidateTier(tier), tier.Name)
	}
}

// =============================================================================
// VOUCHER RULES
// =============================================================================

func TestVoucherRule_Check(t *testing.T) {
	rule := booking.VoucherRule{
		Code:       "MARCH",
		Kind:       booking.VoucherFixed,
		Value:      money("200"),
		ResourceID: lotA,
		ValidFrom:  day("2024-03-01"),
		ValidTo:    day("2024-03-31"),
		MinAmount:  money("1000"),
		Active:     true,
	}
	query := booking.VoucherQuery{
		Code:       "MARCH",
		ResourceID: lotA,
		Days:       daysFrom("2024-03-10", 3),
		Amount:     money("3600"),
	}

	grant, err := rule.Check(query)
	if assert.NoError(t, err) {
		assert.Equal(t, booking.VoucherFixed, grant.Kind)
		assertMoney(t, "200", grant.Value, "value")
	}

	mutations := map[string]func(r *booking.VoucherRule, q *booking.VoucherQuery){
		"inactive":       func(r *booking.VoucherRule, q *booking.VoucherQuery) { r.Active = false },
		"other resource": func(r *booking.VoucherRule, q *booking.VoucherQuery) { q.ResourceID = "lot-b" },
		"below minimum":  func(r *booking.VoucherRule, q *booking.VoucherQuery) { q.Amount = money("999") },
		"expired":        func(r *booking.VoucherRule, q *booking.VoucherQuery) { q.Days = daysFrom("2024-03-30", 3) },
		"not yet valid":  func(r *booking.VoucherRule, q *booking.VoucherQuery) { q.Days = []calendar.Date{day("2024-02-29")} },
		"unknown kind":   func(r *booking.VoucherRule, q *booking.VoucherQuery) { r.Kind = "bogus" },
	}
	for name, mutate := range mutations {
		r, q := rule, query
		mutate(&r, &q)
		_, err := r.Check(q)

		var invalid *booking.VoucherInvalidError
		assert.ErrorAs(t, err, &invalid, name)
		assert.ErrorIs(t, err, booking.ErrVoucherInvalid, name)
	}
}
