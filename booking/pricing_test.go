package booking_test

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/parking-engine/booking"
	"github.com/warp/parking-engine/booking/store"
	"github.com/warp/parking-engine/calendar"
)

// =============================================================================
// DISCOUNT STACK
// =============================================================================

func TestDiscountStack_LayeredOrder(t *testing.T) {
	// GIVEN: base 3600, auto 300, VIP 10%, fixed voucher 200
	stack := booking.DiscountStack{
		AutoTier:   "three-plus",
		AutoAmount: money("300"),
		VIPPercent: money("10"),
		Voucher:    &booking.VoucherGrant{Code: "SPRING", Kind: booking.VoucherFixed, Value: money("200")},
	}

	// WHEN
	discounts, final := stack.Apply(money("3600"), decimal.Zero, 3)

	// THEN: VIP is taken from the post-auto remainder
	require.Len(t, discounts, 3)
	assert.Equal(t, booking.StageAutomatic, discounts[0].Stage())
	assert.Equal(t, booking.StageVIP, discounts[1].Stage())
	assert.Equal(t, booking.StageVoucher, discounts[2].Stage())
	assertMoney(t, "300", discounts[0].Deducted(), "auto")
	assertMoney(t, "330", discounts[1].Deducted(), "vip")
	assertMoney(t, "200", discounts[2].Deducted(), "voucher")
	assertMoney(t, "2770", final, "final")
}

func TestDiscountStack_VoucherOnlyIsExact(t *testing.T) {
	vouchers := []*booking.VoucherGrant{
		{Kind: booking.VoucherFixed, Value: money("0")},
		{Kind: booking.VoucherFixed, Value: money("10")},
		{Kind: booking.VoucherFixed, Value: money("200")},
		{Kind: booking.VoucherPercentage, Value: money("15")},
		{Kind: booking.VoucherPercentage, Value: money("50")},
	}
	for _, base := range []string{"1200", "3600", "4401"} {
		for _, addon := range []string{"0", "75"} {
			for _, v := range vouchers {
				discounts, final := booking.DiscountStack{Voucher: v}.Apply(money(base), money(addon), 3)

				require.Len(t, discounts, 1)
				voucher := discounts[0].Deducted()
				want := money(base).Add(money(addon)).Sub(voucher)
				assert.True(t, want.Equal(final), "base=%s addon=%s voucher=%s: want %s got %s",
					base, addon, v.Value, want, final)
			}
		}
	}
}

func TestDiscountStack_MonotonicAndNeverNegative(t *testing.T) {
	base, addon := money("3600"), money("150")
	baseline := booking.DiscountStack{
		AutoAmount: money("100"),
		VIPPercent: money("5"),
		Voucher:    &booking.VoucherGrant{Kind: booking.VoucherFixed, Value: money("50")},
	}

	vary := map[string]func(s booking.DiscountStack, step int64) booking.DiscountStack{
		"auto": func(s booking.DiscountStack, step int64) booking.DiscountStack {
			s.AutoAmount = decimal.NewFromInt(step * 250)
			return s
		},
		"vip": func(s booking.DiscountStack, step int64) booking.DiscountStack {
			s.VIPPercent = decimal.NewFromInt(step * 7)
			return s
		},
		"voucher-fixed": func(s booking.DiscountStack, step int64) booking.DiscountStack {
			s.Voucher = &booking.VoucherGrant{Kind: booking.VoucherFixed, Value: decimal.NewFromInt(step * 300)}
			return s
		},
		"voucher-percent": func(s booking.DiscountStack, step int64) booking.DiscountStack {
			s.Voucher = &booking.VoucherGrant{Kind: booking.VoucherPercentage, Value: decimal.NewFromInt(step * 7)}
			return s
		},
	}

	for name, fn := range vary {
		previous := base.Add(addon)
		for step := int64(0); step <= 20; step++ {
			_, final := fn(baseline, step).Apply(base, addon, 3)
			assert.False(t, final.IsNegative(), "%s step %d: negative final %s", name, step, final)
			assert.True(t, final.LessThanOrEqual(previous), "%s step %d: %s > %s", name, step, final, previous)
			previous = final
		}
	}
}

func TestDiscountStack_ClampsEachStage(t *testing.T) {
	// Auto larger than the whole bill takes everything; later stages take 0
	discounts, final := booking.DiscountStack{
		AutoAmount: money("10000"),
		VIPPercent: money("10"),
		Voucher:    &booking.VoucherGrant{Kind: booking.VoucherFixed, Value: money("200")},
	}.Apply(money("3600"), money("100"), 3)

	assertMoney(t, "3700", discounts[0].Deducted(), "auto")
	assertMoney(t, "0", discounts[1].Deducted(), "vip")
	assertMoney(t, "0", discounts[2].Deducted(), "voucher")
	assertMoney(t, "0", final, "final")
}

func TestDiscountStack_PerDayShareIsDisplayOnly(t *testing.T) {
	discounts, final := booking.DiscountStack{AutoAmount: money("100")}.Apply(money("3600"), decimal.Zero, 3)

	auto, ok := discounts[0].(booking.AutomaticTiered)
	require.True(t, ok)
	assertMoney(t, "33", auto.PerDayShare, "per-day share")
	// 3 x 33 = 99, the computed discount is still 100
	assertMoney(t, "3500", final, "final")
}

// =============================================================================
// PRICER
// =============================================================================

func pricedResource() *booking.Resource {
	return &booking.Resource{ID: lotA, TotalCapacity: 10, PricePerDay: money("1200")}
}

func TestPrice_SpecialPriceOverridesDay(t *testing.T) {
	res := pricedResource()
	res.SpecialPrices = map[calendar.Date]booking.SpecialPrice{
		day("2024-03-11"): {Price: money("2000"), Reason: "Concert"},
	}

	result, err := (&booking.Pricer{}).Price(context.Background(), booking.PriceInput{
		Resource: res,
		Days:     daysFrom("2024-03-10", 3),
	})
	require.NoError(t, err)

	assert.False(t, result.PerDay[0].IsOverride)
	assert.True(t, result.PerDay[1].IsOverride)
	assert.Equal(t, "Concert", result.PerDay[1].OverrideReason)
	assertMoney(t, "2000", result.PerDay[1].BasePrice, "override")
	assertMoney(t, "4400", result.BaseTotal, "base total")
}

func TestPrice_PercentageTierIsOfBaseTotalOnly(t *testing.T) {
	// GIVEN: 10% tier, 400 of addons
	result, err := (&booking.Pricer{}).Price(context.Background(), booking.PriceInput{
		Resource: pricedResource(),
		Days:     daysFrom("2024-03-10", 3),
		Addons:   []booking.Addon{{Name: "wash", Price: money("250")}, {Name: "shuttle", Price: money("150")}},
		Tiers: []booking.DiscountTier{
			{Name: "short", MinDays: 1, MaxDays: 2, Kind: booking.TierPercentage, Value: money("5")},
			{Name: "long", MinDays: 3, Kind: booking.TierPercentage, Value: money("10")},
		},
	})
	require.NoError(t, err)

	// THEN: 10% of 3600, not of 4000
	assertMoney(t, "400", result.AddonTotal, "addon total")
	assertMoney(t, "360", result.Deducted(booking.StageAutomatic), "auto")
	assertMoney(t, "3640", result.FinalAmount, "final")
}

func TestPrice_VIPUsesCustomerPercentThenDefault(t *testing.T) {
	mem := store.NewMemory()
	mem.PutCustomer(booking.Customer{Phone: "own", IsVIP: true, VIPPercent: money("20")})
	mem.PutCustomer(booking.Customer{Phone: "default", IsVIP: true})
	mem.PutCustomer(booking.Customer{Phone: "regular"})
	pricer := &booking.Pricer{Customers: mem}

	cases := map[string]string{"own": "720", "default": "360", "regular": "0", "unknown": "0"}
	for phone, want := range cases {
		result, err := pricer.Price(context.Background(), booking.PriceInput{
			Resource:          pricedResource(),
			Days:              daysFrom("2024-03-10", 3),
			DefaultVIPPercent: money("10"),
			Phone:             phone,
		})
		require.NoError(t, err)
		assertMoney(t, want, result.Deducted(booking.StageVIP), phone)
		assert.Empty(t, result.Warnings, phone)
	}
}

type failingCustomers struct{}

func (failingCustomers) LookupCustomer(context.Context, string) (*booking.Customer, error) {
	return nil, errors.New("crm timeout")
}

type failingVouchers struct{}

func (failingVouchers) ValidateVoucher(context.Context, booking.VoucherQuery) (*booking.VoucherGrant, error) {
	return nil, errors.New("voucher service down")
}

func TestPrice_LookupFailuresDegradeToWarnings(t *testing.T) {
	pricer := &booking.Pricer{Customers: failingCustomers{}, Vouchers: failingVouchers{}}

	result, err := pricer.Price(context.Background(), booking.PriceInput{
		Resource:          pricedResource(),
		Days:              daysFrom("2024-03-10", 3),
		DefaultVIPPercent: money("10"),
		Phone:             "+39000111",
		VoucherCode:       "SPRING",
	})
	require.NoError(t, err)

	assert.Empty(t, result.Discounts)
	assertMoney(t, "3600", result.FinalAmount, "final")
	require.Len(t, result.Warnings, 2)
	assert.Equal(t, booking.WarningVIPLookupFailed, result.Warnings[0].Code)
	assert.Equal(t, booking.WarningVoucherLookupFailed, result.Warnings[1].Code)
}

func TestPrice_VoucherValidatedAgainstRemainder(t *testing.T) {
	mem := store.NewMemory()
	mem.PutCustomer(booking.Customer{Phone: "vip", IsVIP: true, VIPPercent: money("10")})
	// Minimum 3300: the gross (3600) qualifies, the post-VIP remainder (3240) does not
	mem.PutVoucher(booking.VoucherRule{Code: "BIG", Kind: booking.VoucherPercentage, Value: money("50"), MinAmount: money("3300"), Active: true})
	mem.PutVoucher(booking.VoucherRule{Code: "HALF", Kind: booking.VoucherPercentage, Value: money("50"), Active: true})
	pricer := &booking.Pricer{Customers: mem, Vouchers: mem}

	in := booking.PriceInput{Resource: pricedResource(), Days: daysFrom("2024-03-10", 3), Phone: "vip", VoucherCode: "BIG"}
	result, err := pricer.Price(context.Background(), in)
	require.NoError(t, err)
	require.Len(t, result.Warnings, 1)
	assert.Equal(t, booking.WarningVoucherInvalid, result.Warnings[0].Code)
	assertMoney(t, "3240", result.FinalAmount, "final without voucher")

	in.VoucherCode = "HALF"
	result, err = pricer.Price(context.Background(), in)
	require.NoError(t, err)
	assertMoney(t, "1620", result.Deducted(booking.StageVoucher), "voucher")
	assertMoney(t, "1620", result.FinalAmount, "final")
}

func TestPrice_ConfigErrors(t *testing.T) {
	days := daysFrom("2024-03-10", 2)
	negativeSpecial := pricedResource()
	negativeSpecial.SpecialPrices = map[calendar.Date]booking.SpecialPrice{day("2024-03-10"): {Price: money("-5")}}

	inputs := map[string]booking.PriceInput{
		"missing resource": {Days: days},
		"negative price":   {Resource: &booking.Resource{ID: lotA, PricePerDay: money("-1")}, Days: days},
		"negative special": {Resource: negativeSpecial, Days: days},
		"negative addon":   {Resource: pricedResource(), Days: days, Addons: []booking.Addon{{Name: "x", Price: money("-1")}}},
		"bad tier kind":    {Resource: pricedResource(), Days: days, Tiers: []booking.DiscountTier{{Name: "x", MinDays: 1, Kind: "bogus"}}},
		"vip over 100":     {Resource: pricedResource(), Days: days, DefaultVIPPercent: money("101")},
	}
	for name, in := range inputs {
		_, err := (&booking.Pricer{}).Price(context.Background(), in)
		assert.ErrorIs(t, err, booking.ErrPricingConfig, name)
	}
}
