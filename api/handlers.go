/*
handlers.go - HTTP API handlers for the parking booking engine

PURPOSE:
  Exposes quote, booking and cancellation over REST, plus the minimal
  seeding endpoints demos and tests need. Handles HTTP request/response and
  JSON serialization; all booking rules live in booking.Engine.

ENDPOINTS:
  Quotes & reservations:
    POST   /api/quote                       Resolve availability + price
    POST   /api/reservations                Book (201, 409 on conflict)
    GET    /api/reservations/{id}           Reservation by id or code
    DELETE /api/reservations/{id}           Cancel

  Resources:
    GET    /api/resources                   List resources
    GET    /api/resources/{id}              Resource with special prices
    GET    /api/resources/{id}/availability Day-by-day occupancy
    PUT    /api/resources/{id}              Create/update resource
    PUT    /api/resources/{id}/special-prices/{day}
    DELETE /api/resources/{id}/special-prices/{day}
    POST   /api/resources/{id}/blackouts    Close days for maintenance

  Settings & lookups:
    GET    /api/settings                    Current engine settings
    PUT    /api/settings                    Replace engine settings (JSON)
    POST   /api/vouchers                    Create/update voucher
    POST   /api/customers                   Create/update customer

  Admin:
    POST   /api/admin/purge                 Run the commitment purge now

ARCHITECTURE:
  Handler holds the engine (capacity may live in PostgreSQL), the SQLite
  store that owns catalog, settings and lookups, and the reservation reader
  that matches the capacity store.

ERROR HANDLING:
  writeEngineError maps the booking error taxonomy to HTTP status:
  - 400: Invalid input (window order, missing fields)
  - 404: Unknown resource or reservation
  - 409: Unavailable window or capacity conflict at commit time
  - 422: Stay policy violation
  - 500: Configuration and internal errors

SECURITY NOTE:
  No authentication. Seeding endpoints must not be exposed publicly.

SEE ALSO:
  - dto.go: Request/response data structures
  - scenarios.go: Demo scenario loaders
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"github.com/warp/parking-engine/booking"
	"github.com/warp/parking-engine/calendar"
	"github.com/warp/parking-engine/factory"
	"github.com/warp/parking-engine/store/sqlite"
)

// maxOccupancyDays bounds GET /availability ranges.
const maxOccupancyDays = booking.MaxStayDays

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Engine       *booking.Engine
	Store        *sqlite.Store
	Reservations booking.ReservationReader
	Purge        *PurgeScheduler

	validate *validator.Validate

	mu              sync.Mutex
	currentScenario string
}

// NewHandler creates a handler. reservations may be nil when the SQLite
// store also holds capacity.
func NewHandler(engine *booking.Engine, store *sqlite.Store, reservations booking.ReservationReader) *Handler {
	if reservations == nil {
		reservations = store
	}
	return &Handler{
		Engine:       engine,
		Store:        store,
		Reservations: reservations,
		validate:     validator.New(),
	}
}

// =============================================================================
// QUOTE & RESERVATION HANDLERS
// =============================================================================

// Quote resolves availability and price without committing anything.
func (h *Handler) Quote(w http.ResponseWriter, r *http.Request) {
	var req QuoteRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}

	res, err := h.Engine.Resolve(r.Context(), req.toBooking())
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ToQuoteResponse(res))
}

// CreateReservation books a window.
func (h *Handler) CreateReservation(w http.ResponseWriter, r *http.Request) {
	var req QuoteRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}

	b, err := h.Engine.Book(r.Context(), req.toBooking())
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, BookResponse{
		Reservation: ToReservationDTO(b.Reservation),
		Quote:       ToQuoteResponse(b.Resolution),
	})
}

// GetReservation returns a reservation by id or code.
func (h *Handler) GetReservation(w http.ResponseWriter, r *http.Request) {
	id := booking.ReservationID(chi.URLParam(r, "id"))
	res, err := h.Reservations.Reservation(r.Context(), id)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ToReservationDTO(res))
}

// CancelReservation releases every day of a reservation.
func (h *Handler) CancelReservation(w http.ResponseWriter, r *http.Request) {
	id := booking.ReservationID(chi.URLParam(r, "id"))
	if err := h.Engine.Cancel(r.Context(), id); err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "cancelled", "id": string(id)})
}

// =============================================================================
// RESOURCE HANDLERS
// =============================================================================

// ListResources returns all resources.
func (h *Handler) ListResources(w http.ResponseWriter, r *http.Request) {
	resources, err := h.Store.Resources(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list resources", err)
		return
	}

	dtos := make([]ResourceDTO, len(resources))
	for i := range resources {
		dtos[i] = toResourceDTO(&resources[i])
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetResource returns one resource.
func (h *Handler) GetResource(w http.ResponseWriter, r *http.Request) {
	res, err := h.Store.Resource(r.Context(), booking.ResourceID(chi.URLParam(r, "id")))
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toResourceDTO(res))
}

// GetAvailability returns day-by-day occupancy for ?from&to&vehicles.
func (h *Handler) GetAvailability(w http.ResponseWriter, r *http.Request) {
	period, ok := periodParam(w, r)
	if !ok {
		return
	}

	var err error
	vehicles := 1
	if v := r.URL.Query().Get("vehicles"); v != "" {
		if vehicles, err = strconv.Atoi(v); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid vehicles", err)
			return
		}
	}

	result, err := h.Engine.Availability(r.Context(), booking.ResourceID(chi.URLParam(r, "id")), period, vehicles)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ToAvailabilityDTO(result))
}

// ListResourceReservations returns the reservations of a resource holding
// any day in ?from&to, cancelled ones included.
func (h *Handler) ListResourceReservations(w http.ResponseWriter, r *http.Request) {
	period, ok := periodParam(w, r)
	if !ok {
		return
	}
	if period.Len() == 0 {
		writeError(w, http.StatusBadRequest, "Invalid range", calendar.ErrInvalidRange)
		return
	}
	id, ok := h.existingResource(w, r)
	if !ok {
		return
	}

	list, err := h.Reservations.ListReservations(r.Context(), id, period.Start, period.End)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	out := make([]ReservationDTO, len(list))
	for i := range list {
		out[i] = ToReservationDTO(&list[i])
	}
	writeJSON(w, http.StatusOK, out)
}

// PutResource creates or updates a resource.
func (h *Handler) PutResource(w http.ResponseWriter, r *http.Request) {
	var req PutResourceRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}
	if req.PricePerDay.IsNegative() {
		writeError(w, http.StatusBadRequest, "price_per_day must not be negative", nil)
		return
	}

	ctx := r.Context()
	id := booking.ResourceID(chi.URLParam(r, "id"))

	// Keep the existing special prices; this endpoint only sets the base
	existing, err := h.Store.Resource(ctx, id)
	if err != nil && !errors.Is(err, booking.ErrResourceNotFound) {
		writeError(w, http.StatusInternalServerError, "Failed to load resource", err)
		return
	}
	res := booking.Resource{ID: id, Name: req.Name, TotalCapacity: req.TotalCapacity, PricePerDay: req.PricePerDay}
	if existing != nil {
		res.SpecialPrices = existing.SpecialPrices
	}

	if err := h.Store.PutResource(ctx, res); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save resource", err)
		return
	}

	saved, err := h.Store.Resource(ctx, id)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toResourceDTO(saved))
}

// PutSpecialPrice overrides the price of one day.
func (h *Handler) PutSpecialPrice(w http.ResponseWriter, r *http.Request) {
	id, day, ok := h.resourceDay(w, r)
	if !ok {
		return
	}
	var req SpecialPriceRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}
	if req.Price.IsNegative() {
		writeError(w, http.StatusBadRequest, "price must not be negative", nil)
		return
	}

	if err := h.Store.PutSpecialPrice(r.Context(), id, day, booking.SpecialPrice{Price: req.Price, Reason: req.Reason}); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save special price", err)
		return
	}
	writeJSON(w, http.StatusOK, SpecialPriceDTO{Day: day, Price: req.Price, Reason: req.Reason})
}

// DeleteSpecialPrice removes a day's override.
func (h *Handler) DeleteSpecialPrice(w http.ResponseWriter, r *http.Request) {
	id, day, ok := h.resourceDay(w, r)
	if !ok {
		return
	}
	if err := h.Store.DeleteSpecialPrice(r.Context(), id, day); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to delete special price", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// AddBlackouts closes days for maintenance.
func (h *Handler) AddBlackouts(w http.ResponseWriter, r *http.Request) {
	id, ok := h.existingResource(w, r)
	if !ok {
		return
	}
	var req BlackoutRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}

	if err := h.Store.AddBlackout(r.Context(), id, req.Reason, req.Days...); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to add blackouts", err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"resource_id": id, "days": calendar.NewSet(req.Days...).Sorted()})
}

// =============================================================================
// SETTINGS & LOOKUP HANDLERS
// =============================================================================

// GetSettings returns the current engine settings.
func (h *Handler) GetSettings(w http.ResponseWriter, r *http.Request) {
	s, err := h.Store.Settings(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load settings", err)
		return
	}
	writeJSON(w, http.StatusOK, factory.NewSettingsFactory().ToJSON(s))
}

// PutSettings replaces the engine settings document.
func (h *Handler) PutSettings(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 1<<20))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	f := factory.NewSettingsFactory()
	settings, err := f.ParseSettings(string(body))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid settings", err)
		return
	}
	if err := h.Store.SaveSettingsJSON(r.Context(), string(body)); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save settings", err)
		return
	}
	writeJSON(w, http.StatusOK, f.ToJSON(*settings))
}

// PutVoucher creates or updates a voucher.
func (h *Handler) PutVoucher(w http.ResponseWriter, r *http.Request) {
	var req VoucherRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}
	if req.Value.IsNegative() || req.MinAmount.IsNegative() {
		writeError(w, http.StatusBadRequest, "value and min_amount must not be negative", nil)
		return
	}
	if req.Kind == string(booking.VoucherPercentage) && req.Value.GreaterThan(decimal.NewFromInt(100)) {
		writeError(w, http.StatusBadRequest, "percentage vouchers must be within 0..100", nil)
		return
	}

	rule := booking.VoucherRule{
		Code:       req.Code,
		Kind:       booking.VoucherKind(req.Kind),
		Value:      req.Value,
		ResourceID: booking.ResourceID(req.ResourceID),
		ValidFrom:  req.ValidFrom,
		ValidTo:    req.ValidTo,
		MinAmount:  req.MinAmount,
		Active:     req.Active == nil || *req.Active,
	}
	if err := h.Store.PutVoucher(r.Context(), rule); err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, req)
}

// PutCustomer creates or updates a customer.
func (h *Handler) PutCustomer(w http.ResponseWriter, r *http.Request) {
	var req CustomerRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}
	if req.VIPPercent.IsNegative() || req.VIPPercent.GreaterThan(decimal.NewFromInt(100)) {
		writeError(w, http.StatusBadRequest, "vip_percent must be within 0..100", nil)
		return
	}

	c := booking.Customer{Phone: req.Phone, Name: req.Name, IsVIP: req.IsVIP, VIPPercent: req.VIPPercent}
	if err := h.Store.PutCustomer(r.Context(), c); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save customer", err)
		return
	}
	writeJSON(w, http.StatusCreated, req)
}

// TriggerPurge runs the commitment purge immediately.
func (h *Handler) TriggerPurge(w http.ResponseWriter, r *http.Request) {
	if h.Purge == nil {
		writeError(w, http.StatusServiceUnavailable, "Purge scheduler not configured", nil)
		return
	}
	n, cutoff, err := h.Purge.RunNow(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Purge failed", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"purged": n, "before": cutoff})
}

// ResetDatabase clears all data.
func (h *Handler) ResetDatabase(w http.ResponseWriter, r *http.Request) {
	if err := h.Store.Reset(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to reset database", err)
		return
	}
	h.setCurrentScenario("")
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// =============================================================================
// HELPERS
// =============================================================================

func (h *Handler) decodeAndValidate(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make(map[string]string, len(verrs))
			for _, fe := range verrs {
				fields[fe.Field()] = fe.Tag()
			}
			writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "Validation failed", Code: "INVALID_REQUEST", Details: fields})
			return false
		}
		writeError(w, http.StatusBadRequest, "Validation failed", err)
		return false
	}
	return true
}

func (h *Handler) existingResource(w http.ResponseWriter, r *http.Request) (booking.ResourceID, bool) {
	id := booking.ResourceID(chi.URLParam(r, "id"))
	if _, err := h.Store.Resource(r.Context(), id); err != nil {
		writeEngineError(w, err)
		return "", false
	}
	return id, true
}

// periodParam reads ?from&to as an inclusive period of at most
// maxOccupancyDays days.
func periodParam(w http.ResponseWriter, r *http.Request) (calendar.Period, bool) {
	q := r.URL.Query()
	from, err := calendar.ParseDate(q.Get("from"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid from date", err)
		return calendar.Period{}, false
	}
	to, err := calendar.ParseDate(q.Get("to"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid to date", err)
		return calendar.Period{}, false
	}
	period := calendar.Period{Start: from, End: to}
	if period.Len() > maxOccupancyDays {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("Range exceeds %d days", maxOccupancyDays), nil)
		return calendar.Period{}, false
	}
	return period, true
}

func (h *Handler) resourceDay(w http.ResponseWriter, r *http.Request) (booking.ResourceID, calendar.Date, bool) {
	day, err := calendar.ParseDate(chi.URLParam(r, "day"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid day", err)
		return "", calendar.Date{}, false
	}
	id, ok := h.existingResource(w, r)
	return id, day, ok
}

func (h *Handler) setCurrentScenario(id string) {
	h.mu.Lock()
	h.currentScenario = id
	h.mu.Unlock()
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeEngineError maps booking errors to HTTP status codes.
func writeEngineError(w http.ResponseWriter, err error) {
	var (
		unavailable *booking.UnavailableError
		conflict    *booking.CapacityConflictError
	)
	switch {
	case errors.As(err, &unavailable):
		writeJSON(w, http.StatusConflict, ErrorResponse{
			Error:   "Requested days are not available",
			Code:    "UNAVAILABLE",
			Details: ToAvailabilityDTO(unavailable.Result).FailingDays,
		})
	case errors.As(err, &conflict):
		writeJSON(w, http.StatusConflict, ErrorResponse{
			Error:   "Capacity changed before the booking could be committed",
			Code:    "CAPACITY_CONFLICT",
			Details: toShortfallDTOs(conflict.Days),
		})
	case errors.Is(err, booking.ErrStayPolicy):
		writeJSON(w, http.StatusUnprocessableEntity, ErrorResponse{Error: err.Error(), Code: "STAY_POLICY"})
	case booking.IsClientError(err):
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: err.Error(), Code: "INVALID_REQUEST"})
	case booking.IsNotFound(err):
		writeJSON(w, http.StatusNotFound, ErrorResponse{Error: err.Error(), Code: "NOT_FOUND"})
	case booking.IsRetryable(err):
		writeJSON(w, http.StatusConflict, ErrorResponse{Error: err.Error(), Code: "RETRY"})
	case errors.Is(err, booking.ErrPricingConfig):
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: "Resource pricing is misconfigured", Code: "PRICING_CONFIG", Details: err.Error()})
	default:
		writeError(w, http.StatusInternalServerError, "Internal error", err)
	}
}
