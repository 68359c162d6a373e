/*
scenarios_test.go - Tests for demo scenarios

PURPOSE:
	Tests that each scenario sets up the expected state and that quotes
	against it come out as the scenario description promises. These double
	as integration tests for the SQLite store behind the engine.
*/
package api

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/parking-engine/booking"
)

func TestScenario_ListAndCurrent(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodGet, "/api/scenarios", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]ScenarioDTO](t, rec), len(Scenarios()))

	rec = ts.do(t, http.MethodGet, "/api/scenarios/current", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "null", string(rec.Body.Bytes()[:4]))

	rec = ts.do(t, http.MethodPost, "/api/scenarios/load", LoadScenarioRequest{ScenarioID: "airport"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = ts.do(t, http.MethodGet, "/api/scenarios/current", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "airport", decode[ScenarioDTO](t, rec).ID)

	// Reset clears the current scenario
	rec = ts.do(t, http.MethodPost, "/api/admin/reset", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	rec = ts.do(t, http.MethodGet, "/api/scenarios/current", nil)
	assert.Equal(t, "null", string(rec.Body.Bytes()[:4]))
}

func TestScenario_UnknownIsRejected(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/api/scenarios/load", LoadScenarioRequest{ScenarioID: "moon-base"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(t, http.MethodPost, "/api/scenarios/load", map[string]any{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestScenario_CityCenter(t *testing.T) {
	// GIVEN: City center loaded on Friday 2024-03-01
	ts := newTestServer(t)
	ctx := context.Background()
	require.NoError(t, Seed(ctx, ts.store, ts.handler.Engine, "city-center"))

	resources, err := ts.store.Resources(ctx)
	require.NoError(t, err)
	assert.Len(t, resources, 2)

	// WHEN: Quoting Garage A for the weekend with the Gold VIP and a voucher
	body := map[string]any{
		"resource_id":  "downtown-a",
		"check_in":     "2024-03-02T10:00:00Z",
		"check_out":    "2024-03-03T16:00:00Z",
		"vehicles":     1,
		"phone":        "+15550101",
		"voucher_code": "WELCOME200",
	}
	rec := ts.do(t, http.MethodPost, "/api/quote", body)

	// THEN: Weekend surcharge on both days, 15% VIP then 200 off
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	q := decode[QuoteResponse](t, rec)
	assert.True(t, q.Availability.OK)
	assert.Equal(t, "3000", q.Pricing.BaseTotal.String())
	for _, d := range q.Pricing.PerDay {
		assert.True(t, d.IsOverride)
	}
	require.Len(t, q.Pricing.Discounts, 2)
	assert.Equal(t, "450", q.Pricing.Discounts[0].Amount.String())
	assert.Equal(t, "200", q.Pricing.Discounts[1].Amount.String())
	assert.Equal(t, "2350", q.Pricing.FinalAmount.String())
}

func TestScenario_CityCenterExpiredVoucher(t *testing.T) {
	ts := newTestServer(t)
	require.NoError(t, Seed(context.Background(), ts.store, ts.handler.Engine, "city-center"))

	body := map[string]any{
		"resource_id":  "downtown-b",
		"check_in":     "2024-03-05T10:00:00Z",
		"check_out":    "2024-03-05T16:00:00Z",
		"vehicles":     1,
		"voucher_code": "EXPIRED",
	}
	rec := ts.do(t, http.MethodPost, "/api/quote", body)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	q := decode[QuoteResponse](t, rec)
	assert.Equal(t, "900", q.Pricing.FinalAmount.String())
	require.Len(t, q.Warnings, 1)
	assert.Equal(t, string(booking.WarningVoucherInvalid), q.Warnings[0].Code)
}

func TestScenario_AirportMaintenanceAndSameDay(t *testing.T) {
	ts := newTestServer(t)
	require.NoError(t, Seed(context.Background(), ts.store, ts.handler.Engine, "airport"))

	// Same-day drop-off is allowed
	rec := ts.do(t, http.MethodPost, "/api/quote", map[string]any{
		"resource_id": "airport-p4",
		"check_in":    "2024-03-01T14:00:00Z",
		"check_out":   "2024-03-01T22:00:00Z",
		"vehicles":    1,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.True(t, decode[QuoteResponse](t, rec).Availability.OK)

	// P1 is closed from the 8th to the 10th
	rec = ts.do(t, http.MethodPost, "/api/quote", map[string]any{
		"resource_id": "airport-p1",
		"check_in":    "2024-03-07T06:00:00Z",
		"check_out":   "2024-03-09T06:00:00Z",
		"vehicles":    1,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	q := decode[QuoteResponse](t, rec)
	assert.False(t, q.Availability.OK)
	require.Len(t, q.Availability.FailingDays, 2)
	for _, f := range q.Availability.FailingDays {
		assert.Equal(t, string(booking.ReasonMaintenance), f.Reason)
	}
}

func TestScenario_SoldOutWeekend(t *testing.T) {
	// GIVEN: Harbor lot with both spaces booked for Saturday and Sunday
	ts := newTestServer(t)
	require.NoError(t, Seed(context.Background(), ts.store, ts.handler.Engine, "sold-out"))

	// WHEN: Trying to book Friday night to Sunday
	rec := ts.do(t, http.MethodPost, "/api/reservations", map[string]any{
		"resource_id": "harbor",
		"check_in":    "2024-03-02T07:00:00Z",
		"check_out":   "2024-03-04T07:00:00Z",
		"vehicles":    1,
	})

	// THEN: Saturday and Sunday are FULL, Monday is free
	require.Equal(t, http.StatusConflict, rec.Code, rec.Body.String())
	assert.Equal(t, "UNAVAILABLE", decode[ErrorResponse](t, rec).Code)

	rec = ts.do(t, http.MethodGet, "/api/resources/harbor/availability?from=2024-03-02&to=2024-03-04", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	a := decode[AvailabilityDTO](t, rec)
	require.Len(t, a.Days, 3)
	assert.Equal(t, string(booking.ReasonFull), a.Days[0].Reason)
	assert.Equal(t, string(booking.ReasonFull), a.Days[1].Reason)
	assert.Empty(t, a.Days[2].Reason)
}

func TestSeed_ReloadStartsClean(t *testing.T) {
	ts := newTestServer(t)
	ctx := context.Background()

	require.NoError(t, Seed(ctx, ts.store, ts.handler.Engine, "sold-out"))
	require.NoError(t, Seed(ctx, ts.store, ts.handler.Engine, "sold-out"))

	rec := ts.do(t, http.MethodGet, "/api/resources/harbor/availability?from=2024-03-02&to=2024-03-03", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	for _, d := range decode[AvailabilityDTO](t, rec).Days {
		assert.Equal(t, 2, d.Committed)
	}

	assert.Error(t, Seed(ctx, ts.store, ts.handler.Engine, "unknown"))
}
