/*
sqlite_test.go - Tests for the SQLite collaborators

Tests for:
- Resource catalog round trip (special prices, blackouts)
- Snapshot counts and version tokens
- All-or-nothing Reserve and capacity conflicts
- Cancel, purge and reservation lookup
- Settings, customers and vouchers
- Engine resolution end to end on SQLite
*/
package sqlite_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/parking-engine/booking"
	"github.com/warp/parking-engine/calendar"
	"github.com/warp/parking-engine/factory"
	"github.com/warp/parking-engine/store/sqlite"
)

var lot = booking.ResourceID("lot-a")

func newStore(t *testing.T) *sqlite.Store {
	t.Helper()
	store, err := sqlite.New(":memory:")
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	err = store.PutResource(context.Background(), booking.Resource{
		ID:            lot,
		Name:          "Lot A",
		TotalCapacity: 3,
		PricePerDay:   decimal.NewFromInt(1200),
	})
	require.NoError(t, err)
	return store
}

func d(s string) calendar.Date { return calendar.MustParseDate(s) }

func reserve(t *testing.T, store *sqlite.Store, id string, vehicles int, days ...string) (*booking.Reservation, error) {
	t.Helper()
	req := booking.ReserveRequest{
		ID:           booking.ReservationID(id),
		Code:         "C-" + id,
		ResourceID:   lot,
		VehicleCount: vehicles,
		FinalAmount:  decimal.NewFromInt(3600),
		CreatedAt:    time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	for _, s := range days {
		req.Days = append(req.Days, d(s))
	}
	return store.Reserve(context.Background(), req)
}

func committed(t *testing.T, store *sqlite.Store, day string) int {
	t.Helper()
	snap, err := store.Snapshot(context.Background())
	require.NoError(t, err)
	defer snap.Close()
	n, err := snap.CommittedCount(context.Background(), lot, d(day))
	require.NoError(t, err)
	return n
}

// =============================================================================
// CATALOG
// =============================================================================

func TestResource_RoundTripWithSpecialPrices(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	err := store.PutSpecialPrice(ctx, lot, d("2024-03-16"), booking.SpecialPrice{Price: decimal.NewFromInt(2000), Reason: "match day"})
	require.NoError(t, err)

	r, err := store.Resource(ctx, lot)
	require.NoError(t, err)
	assert.Equal(t, "Lot A", r.Name)
	assert.Equal(t, 3, r.TotalCapacity)
	assert.True(t, decimal.NewFromInt(1200).Equal(r.PricePerDay))
	require.Contains(t, r.SpecialPrices, d("2024-03-16"))
	assert.Equal(t, "match day", r.SpecialPrices[d("2024-03-16")].Reason)

	require.NoError(t, store.DeleteSpecialPrice(ctx, lot, d("2024-03-16")))
	r, err = store.Resource(ctx, lot)
	require.NoError(t, err)
	assert.Empty(t, r.SpecialPrices)
}

func TestResource_UpsertKeepsID(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	err := store.PutResource(ctx, booking.Resource{ID: lot, Name: "Lot A (north)", TotalCapacity: 5, PricePerDay: decimal.NewFromInt(900)})
	require.NoError(t, err)

	all, err := store.Resources(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, 5, all[0].TotalCapacity)
	assert.Equal(t, "Lot A (north)", all[0].Name)
}

func TestResource_NotFoundAndInvalid(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	_, err := store.Resource(ctx, "nope")
	assert.ErrorIs(t, err, booking.ErrResourceNotFound)

	err = store.PutResource(ctx, booking.Resource{ID: "bad", Name: "Bad", TotalCapacity: 1, PricePerDay: decimal.NewFromInt(-1)})
	assert.ErrorIs(t, err, booking.ErrPricingConfig)
}

func TestBlackoutDays_FiltersRange(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	require.NoError(t, store.AddBlackout(ctx, lot, "resurfacing", d("2024-03-10"), d("2024-03-11"), d("2024-03-20")))

	days, err := store.BlackoutDays(ctx, lot, d("2024-03-09"), d("2024-03-15"))
	require.NoError(t, err)
	assert.Equal(t, []calendar.Date{d("2024-03-10"), d("2024-03-11")}, days.Sorted())

	require.NoError(t, store.RemoveBlackout(ctx, lot, d("2024-03-10")))
	days, err = store.BlackoutDays(ctx, lot, d("2024-03-09"), d("2024-03-15"))
	require.NoError(t, err)
	assert.Equal(t, 1, days.Len())
}

// =============================================================================
// CAPACITY
// =============================================================================

func TestReserve_CommitsEveryDay(t *testing.T) {
	// GIVEN: An empty lot
	store := newStore(t)

	// WHEN: Reserving two vehicles for three days
	r, err := reserve(t, store, "r1", 2, "2024-03-10", "2024-03-11", "2024-03-12")
	require.NoError(t, err)

	// THEN: Every day carries the commitment
	assert.Equal(t, booking.ReservationConfirmed, r.Status)
	for _, day := range []string{"2024-03-10", "2024-03-11", "2024-03-12"} {
		assert.Equal(t, 2, committed(t, store, day), day)
	}
	assert.Equal(t, 0, committed(t, store, "2024-03-13"))
}

func TestReserve_AllOrNothing(t *testing.T) {
	// GIVEN: The middle day already has 2 of 3 spaces taken
	store := newStore(t)
	_, err := reserve(t, store, "r1", 2, "2024-03-11")
	require.NoError(t, err)

	// WHEN: Asking for 2 vehicles over three days
	_, err = reserve(t, store, "r2", 2, "2024-03-10", "2024-03-11", "2024-03-12")

	// THEN: The whole request fails and names the short day
	var conflict *booking.CapacityConflictError
	require.ErrorAs(t, err, &conflict)
	require.Len(t, conflict.Days, 1)
	assert.Equal(t, d("2024-03-11"), conflict.Days[0].Day)
	assert.Equal(t, 1, conflict.Days[0].Available)
	assert.True(t, booking.IsConflict(err))

	// Nothing was written for the other days
	assert.Equal(t, 0, committed(t, store, "2024-03-10"))
	assert.Equal(t, 2, committed(t, store, "2024-03-11"))
	assert.Equal(t, 0, committed(t, store, "2024-03-12"))
}

func TestReserve_DuplicateIDAndUnknownResource(t *testing.T) {
	store := newStore(t)
	_, err := reserve(t, store, "r1", 1, "2024-03-10")
	require.NoError(t, err)

	_, err = reserve(t, store, "r1", 1, "2024-03-11")
	assert.ErrorIs(t, err, booking.ErrConcurrentModification)

	_, err = store.Reserve(context.Background(), booking.ReserveRequest{
		ID: "r2", ResourceID: "ghost", VehicleCount: 1, Days: []calendar.Date{d("2024-03-10")},
	})
	assert.ErrorIs(t, err, booking.ErrResourceNotFound)
}

func TestReserve_ConcurrentWritersNeverOverbook(t *testing.T) {
	// GIVEN: Capacity 3 and 10 writers racing for the same day
	store := newStore(t)

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := reserve(t, store, fmt.Sprintf("r%d", i), 1, "2024-03-10")
			if err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			} else if !errors.Is(err, booking.ErrCapacityConflict) {
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	wg.Wait()

	// THEN: Exactly capacity bookings went through
	assert.Equal(t, 3, succeeded)
	assert.Equal(t, 3, committed(t, store, "2024-03-10"))
}

func TestSnapshot_VersionAndRangeCounts(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	before, err := store.Snapshot(ctx)
	require.NoError(t, err)
	v1 := before.Version()
	require.NoError(t, before.Close())
	require.NoError(t, before.Close(), "Close must be idempotent")

	_, err = reserve(t, store, "r1", 1, "2024-03-10", "2024-03-11")
	require.NoError(t, err)
	_, err = reserve(t, store, "r2", 2, "2024-03-11")
	require.NoError(t, err)

	snap, err := store.Snapshot(ctx)
	require.NoError(t, err)
	defer snap.Close()
	assert.NotEqual(t, v1, snap.Version())

	rs, ok := snap.(booking.RangeSnapshot)
	require.True(t, ok)
	counts, err := rs.CommittedCounts(ctx, lot, d("2024-03-09"), d("2024-03-12"))
	require.NoError(t, err)
	assert.Equal(t, map[calendar.Date]int{d("2024-03-10"): 1, d("2024-03-11"): 3}, counts)
}

func TestCancel_ReleasesCommitments(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	_, err := reserve(t, store, "r1", 2, "2024-03-10", "2024-03-11")
	require.NoError(t, err)

	require.NoError(t, store.Cancel(ctx, "r1"))

	assert.Equal(t, 0, committed(t, store, "2024-03-10"))
	r, err := store.Reservation(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, booking.ReservationCancelled, r.Status)
	assert.NotNil(t, r.CancelledAt)

	// Cancelling twice is a not-found
	assert.ErrorIs(t, store.Cancel(ctx, "r1"), booking.ErrReservationNotFound)
	assert.ErrorIs(t, store.Cancel(ctx, "missing"), booking.ErrReservationNotFound)
}

func TestReservation_LookupByCode(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	_, err := reserve(t, store, "r1", 1, "2024-03-10", "2024-03-11", "2024-03-12")
	require.NoError(t, err)

	r, err := store.Reservation(ctx, "C-r1")
	require.NoError(t, err)
	assert.Equal(t, booking.ReservationID("r1"), r.ID)
	assert.Equal(t, []calendar.Date{d("2024-03-10"), d("2024-03-11"), d("2024-03-12")}, r.Days)
	assert.True(t, decimal.NewFromInt(3600).Equal(r.FinalAmount))

	list, err := store.ListReservations(ctx, lot, d("2024-03-12"), d("2024-03-20"))
	require.NoError(t, err)
	assert.Len(t, list, 1)

	_, err = store.Reservation(ctx, "nope")
	assert.ErrorIs(t, err, booking.ErrReservationNotFound)
}

func TestPurgeBefore_DropsOnlyPastDays(t *testing.T) {
	store := newStore(t)
	_, err := reserve(t, store, "r1", 1, "2024-03-10", "2024-03-11", "2024-03-12")
	require.NoError(t, err)

	n, err := store.PurgeBefore(context.Background(), d("2024-03-12"))
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.Equal(t, 0, committed(t, store, "2024-03-11"))
	assert.Equal(t, 1, committed(t, store, "2024-03-12"))
}

// =============================================================================
// SETTINGS, CUSTOMERS, VOUCHERS
// =============================================================================

func TestSettings_DefaultAndStored(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	s, err := store.Settings(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, s.MinBookingDays)
	assert.Empty(t, s.DiscountTiers)

	require.NoError(t, store.SaveSettingsJSON(ctx, factory.StandardSettingsJSON(2, 30)))
	s, err = store.Settings(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, s.MinBookingDays)
	assert.Len(t, s.DiscountTiers, 2)

	assert.Error(t, store.SaveSettingsJSON(ctx, `{"min_booking_days": 0}`))
}

func TestCustomers(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	require.NoError(t, store.PutCustomer(ctx, booking.Customer{Phone: "+3361", Name: "Ana", IsVIP: true, VIPPercent: decimal.NewFromInt(15)}))

	c, err := store.LookupCustomer(ctx, "+3361")
	require.NoError(t, err)
	assert.True(t, c.IsVIP)
	assert.Equal(t, "15", c.VIPPercent.String())

	_, err = store.LookupCustomer(ctx, "+000")
	assert.ErrorIs(t, err, booking.ErrCustomerNotFound)
}

func TestVouchers(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	require.NoError(t, store.PutVoucher(ctx, booking.VoucherRule{
		Code:       "SPRING",
		Kind:       booking.VoucherPercentage,
		Value:      decimal.NewFromInt(10),
		ResourceID: lot,
		ValidTo:    d("2024-03-31"),
		Active:     true,
	}))

	q := booking.VoucherQuery{Code: "SPRING", ResourceID: lot, Days: []calendar.Date{d("2024-03-30"), d("2024-03-31")}, Amount: decimal.NewFromInt(2400)}
	g, err := store.ValidateVoucher(ctx, q)
	require.NoError(t, err)
	assert.Equal(t, booking.VoucherPercentage, g.Kind)

	q.Days = append(q.Days, d("2024-04-01"))
	_, err = store.ValidateVoucher(ctx, q)
	assert.ErrorIs(t, err, booking.ErrVoucherInvalid)

	_, err = store.ValidateVoucher(ctx, booking.VoucherQuery{Code: "NOPE", ResourceID: lot})
	assert.ErrorIs(t, err, booking.ErrVoucherInvalid)

	err = store.PutVoucher(ctx, booking.VoucherRule{Code: "X", Kind: "bogus", Value: decimal.NewFromInt(1)})
	assert.True(t, booking.IsClientError(err))
}

// =============================================================================
// ENGINE ON SQLITE
// =============================================================================

func TestEngine_ResolveAndBookOnSQLite(t *testing.T) {
	// GIVEN: A store wired as every engine collaborator
	store := newStore(t)
	ctx := context.Background()
	require.NoError(t, store.SaveSettingsJSON(ctx, factory.NoDiscountSettingsJSON(1, 30)))

	engine := &booking.Engine{
		Catalog:     store,
		Capacity:    store,
		Settings:    store,
		Maintenance: store,
		Customers:   store,
		Vouchers:    store,
		Location:    time.UTC,
		Now:         func() time.Time { return time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC) },
	}
	req := booking.Request{
		ResourceID:   lot,
		VehicleCount: 3,
		Window: booking.Window{
			CheckIn:  time.Date(2024, 3, 10, 9, 0, 0, 0, time.UTC),
			CheckOut: time.Date(2024, 3, 12, 18, 0, 0, 0, time.UTC),
		},
	}

	// WHEN: Booking the whole lot for three days
	b, err := engine.Book(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, "3600", b.Resolution.Pricing.FinalAmount.String())

	// THEN: A second identical request resolves as FULL on every day
	res, err := engine.Resolve(ctx, req)
	require.NoError(t, err)
	assert.False(t, res.Availability.OK)
	assert.Len(t, res.Availability.FailingDays, 3)
	for _, f := range res.Availability.FailingDays {
		assert.Equal(t, booking.ReasonFull, f.Reason)
	}

	_, err = engine.Book(ctx, req)
	assert.ErrorIs(t, err, booking.ErrUnavailable)
}
