/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:

	Provides pre-built scenarios that populate the database with realistic
	parking data. Each scenario creates settings, resources, special prices,
	blackouts, customers, vouchers and sometimes existing reservations, all
	relative to today so quotes always land in the future.

AVAILABLE SCENARIOS:

	city-center: Two downtown lots, week/month tiers, VIP and vouchers
	airport:     Same-day drop-off, per-day tiers, maintenance next week
	sold-out:    Small lot whose next weekend is already fully booked

HOW SCENARIOS WORK:
 1. Reset database (clear all data)
 2. Store settings JSON via the factory presets
 3. Create resources, special prices and blackouts
 4. Create customers and vouchers
 5. Optionally book through the engine to occupy capacity

USAGE VIA API:

	POST /api/scenarios/load
	{"scenario_id": "city-center"}

ADDING NEW SCENARIOS:
 1. Add to 'scenarios' slice with ID, name, description
 2. Create loader function: loadXxxScenario(ctx, s)
 3. Add case to Seed

NOTE:

	Scenarios reset the SQLite database. When capacity lives in PostgreSQL,
	reservations made by a scenario are not removed by the reset.

SEE ALSO:
  - handlers.go: ResetDatabase
  - factory/presets.go: Settings JSON definitions
*/
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/parking-engine/booking"
	"github.com/warp/parking-engine/calendar"
	"github.com/warp/parking-engine/factory"
	"github.com/warp/parking-engine/store/sqlite"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

var scenarios = []ScenarioDTO{
	{
		ID:          "city-center",
		Name:        "City Center",
		Description: "Two downtown lots with week/month discounts, weekend surcharges, a VIP customer and vouchers",
	},
	{
		ID:          "airport",
		Name:        "Airport",
		Description: "Same-day drop-off, per-day discounts for long trips, maintenance closure next week",
	},
	{
		ID:          "sold-out",
		Name:        "Sold Out Weekend",
		Description: "A 2-space lot whose next weekend is already fully booked",
	},
}

// Scenarios returns the available scenarios.
func Scenarios() []ScenarioDTO {
	return append([]ScenarioDTO(nil), scenarios...)
}

// ListScenarios returns available scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// GetCurrentScenario returns the currently loaded scenario, if any.
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	current := h.currentScenario
	h.mu.Unlock()

	for _, s := range scenarios {
		if s.ID == current {
			writeJSON(w, http.StatusOK, s)
			return
		}
	}
	writeJSON(w, http.StatusOK, nil)
}

// LoadScenario loads a predefined scenario.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}
	if !knownScenario(req.ScenarioID) {
		writeError(w, http.StatusBadRequest, "Unknown scenario", nil)
		return
	}

	h.setCurrentScenario("")
	if err := Seed(r.Context(), h.Store, h.Engine, req.ScenarioID); err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to load scenario: %v", err), err)
		return
	}
	h.setCurrentScenario(req.ScenarioID)

	writeJSON(w, http.StatusOK, map[string]string{"status": "loaded", "scenario": req.ScenarioID})
}

func knownScenario(id string) bool {
	for _, s := range scenarios {
		if s.ID == id {
			return true
		}
	}
	return false
}

// Seed resets the store and loads a scenario. engine is used to book the
// reservations some scenarios start with.
func Seed(ctx context.Context, store *sqlite.Store, engine *booking.Engine, scenarioID string) error {
	if !knownScenario(scenarioID) {
		return fmt.Errorf("unknown scenario %q", scenarioID)
	}
	if err := store.Reset(ctx); err != nil {
		return fmt.Errorf("reset: %w", err)
	}

	loc := time.UTC
	now := time.Now()
	if engine != nil {
		if engine.Location != nil {
			loc = engine.Location
		}
		if engine.Now != nil {
			now = engine.Now()
		}
	}
	today := calendar.In(now, loc)

	switch scenarioID {
	case "city-center":
		return loadCityCenterScenario(ctx, store, today)
	case "airport":
		return loadAirportScenario(ctx, store, today)
	case "sold-out":
		return loadSoldOutScenario(ctx, store, engine, today, loc)
	}
	return nil
}

// =============================================================================
// SCENARIO LOADERS
// =============================================================================

func loadCityCenterScenario(ctx context.Context, s *sqlite.Store, today calendar.Date) error {
	if err := s.SaveSettingsJSON(ctx, factory.StandardSettingsJSON(1, 60)); err != nil {
		return err
	}

	lots := []booking.Resource{
		{ID: "downtown-a", Name: "Downtown Garage A", TotalCapacity: 120, PricePerDay: decimal.NewFromInt(1200)},
		{ID: "downtown-b", Name: "Downtown Surface Lot B", TotalCapacity: 40, PricePerDay: decimal.NewFromInt(900)},
	}
	for _, lot := range lots {
		if err := s.PutResource(ctx, lot); err != nil {
			return err
		}
	}

	// Weekend surcharge on Garage A for the next four weeks
	for d := today.AddDays(1); d.Before(today.AddDays(29)); d = d.AddDays(1) {
		if !d.IsWeekend() {
			continue
		}
		sp := booking.SpecialPrice{Price: decimal.NewFromInt(1500), Reason: "weekend"}
		if err := s.PutSpecialPrice(ctx, "downtown-a", d, sp); err != nil {
			return err
		}
	}

	if err := s.PutCustomer(ctx, booking.Customer{Phone: "+15550100", Name: "Dana VIP", IsVIP: true}); err != nil {
		return err
	}
	if err := s.PutCustomer(ctx, booking.Customer{Phone: "+15550101", Name: "Lee Gold", IsVIP: true, VIPPercent: decimal.NewFromInt(15)}); err != nil {
		return err
	}

	vouchers := []booking.VoucherRule{
		{Code: "WELCOME200", Kind: booking.VoucherFixed, Value: decimal.NewFromInt(200), Active: true},
		{Code: "SPRING10", Kind: booking.VoucherPercentage, Value: decimal.NewFromInt(10), ResourceID: "downtown-a",
			ValidFrom: today, ValidTo: today.AddDays(60), MinAmount: decimal.NewFromInt(2000), Active: true},
		{Code: "EXPIRED", Kind: booking.VoucherFixed, Value: decimal.NewFromInt(500), ValidTo: today.AddDays(-1), Active: true},
	}
	for _, v := range vouchers {
		if err := s.PutVoucher(ctx, v); err != nil {
			return err
		}
	}
	return nil
}

func loadAirportScenario(ctx context.Context, s *sqlite.Store, today calendar.Date) error {
	if err := s.SaveSettingsJSON(ctx, factory.AirportSettingsJSON()); err != nil {
		return err
	}

	lots := []booking.Resource{
		{ID: "airport-p1", Name: "Terminal P1 Short Stay", TotalCapacity: 300, PricePerDay: decimal.NewFromInt(25)},
		{ID: "airport-p4", Name: "P4 Long Stay", TotalCapacity: 800, PricePerDay: decimal.NewFromInt(12)},
	}
	for _, lot := range lots {
		if err := s.PutResource(ctx, lot); err != nil {
			return err
		}
	}

	// Resurfacing closes P1 for three days next week
	start := today.AddDays(7)
	if err := s.AddBlackout(ctx, "airport-p1", "resurfacing", start, start.AddDays(1), start.AddDays(2)); err != nil {
		return err
	}

	return s.PutVoucher(ctx, booking.VoucherRule{
		Code: "FLYAWAY", Kind: booking.VoucherPercentage, Value: decimal.NewFromInt(5), ResourceID: "airport-p4", Active: true,
	})
}

func loadSoldOutScenario(ctx context.Context, s *sqlite.Store, engine *booking.Engine, today calendar.Date, loc *time.Location) error {
	if err := s.SaveSettingsJSON(ctx, factory.NoDiscountSettingsJSON(1, 14)); err != nil {
		return err
	}
	if err := s.PutResource(ctx, booking.Resource{ID: "harbor", Name: "Harbor Lot", TotalCapacity: 2, PricePerDay: decimal.NewFromInt(800)}); err != nil {
		return err
	}
	if engine == nil {
		return nil
	}

	// Next Saturday and Sunday, both spaces taken
	sat := today.AddDays(1)
	for sat.Weekday() != time.Saturday {
		sat = sat.AddDays(1)
	}
	req := booking.Request{
		ResourceID:   "harbor",
		VehicleCount: 2,
		Window: booking.Window{
			CheckIn:  sat.StartIn(loc).Add(8 * time.Hour),
			CheckOut: sat.AddDays(1).StartIn(loc).Add(20 * time.Hour),
		},
	}
	if _, err := engine.Book(ctx, req); err != nil {
		return fmt.Errorf("book weekend: %w", err)
	}
	return nil
}
