/*
store.go - Collaborator interfaces consumed by the engine

PURPOSE:
  Defines the boundary between the resolution engine and the services that
  own capacity, settings, maintenance, customers and vouchers. The engine
  performs no writes of its own; the only durable write (Reserve) is
  delegated to the CapacityStore, which re-checks capacity inside its own
  transaction.

KEY INTERFACES:
  CapacityStore:       Snapshot reads + all-or-nothing Reserve/Cancel
  Snapshot:            One consistent point-in-time view per resolution
  SettingsProvider:    Stay policy, discount tiers, VIP default
  MaintenanceRegistry: Blackout days per resource
  CustomerLookup:      Phone -> VIP status
  VoucherService:      Voucher validation against resource/days/amount
  ResourceCatalog:     Capacity, base price, special prices

SNAPSHOT CONTRACT:
  Every day check in one resolution reads through the SAME Snapshot. A
  write committed while the snapshot is open is either visible to all days
  or to none. Close the snapshot as soon as the availability pass is done.

IMPLEMENTATIONS:
  - booking/store/memory.go: In-memory for testing
  - store/sqlite/sqlite.go: SQLite, all collaborators
  - store/postgres/postgres.go: PostgreSQL capacity store

SEE ALSO:
  - engine.go: Uses these interfaces
*/
package booking

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/parking-engine/calendar"
)

// =============================================================================
// CAPACITY STORE - Committed counts and the durable reserve
// =============================================================================

// Snapshot is a consistent read view of committed capacity.
type Snapshot interface {
	// Version identifies the view (transaction id, sequence number).
	Version() string

	// CommittedCount returns the vehicles already committed on day.
	CommittedCount(ctx context.Context, resourceID ResourceID, day calendar.Date) (int, error)

	// Close releases the view. Safe to call more than once.
	Close() error
}

// RangeSnapshot is implemented by snapshots that can answer a whole range in
// one query. The resolver prefers it over per-day reads.
type RangeSnapshot interface {
	Snapshot

	// CommittedCounts returns committed vehicles per day in [from, to].
	// Days without commitments may be absent from the map.
	CommittedCounts(ctx context.Context, resourceID ResourceID, from, to calendar.Date) (map[calendar.Date]int, error)
}

// ReserveRequest is the all-or-nothing write handed to the capacity store.
type ReserveRequest struct {
	ID           ReservationID
	Code         string
	ResourceID   ResourceID
	Days         []calendar.Date
	VehicleCount int
	// Capacity is the total capacity the engine resolved against. Stores
	// that own the resource row re-read it inside the transaction instead.
	Capacity    int
	Phone       string
	VoucherCode string
	FinalAmount decimal.Decimal
	Window      Window
	CreatedAt   time.Time
}

// Shortfalls lists the days where capacity minus committed cannot take
// requested more vehicles. Stores use it to re-check inside their write
// transaction.
func Shortfalls(days []calendar.Date, capacity, requested int, committed map[calendar.Date]int) []DayShortfall {
	var out []DayShortfall
	for _, d := range days {
		if available := capacity - committed[d]; available < requested {
			out = append(out, DayShortfall{Day: d, Available: available, Requested: requested})
		}
	}
	return out
}

// CapacityStore owns committed capacity.
type CapacityStore interface {
	// Snapshot opens a read view for one resolution.
	Snapshot(ctx context.Context) (Snapshot, error)

	// Reserve commits every day or none. It re-validates
	// committed + requested <= capacity for every day inside its own
	// transaction and returns *CapacityConflictError when any day no longer
	// fits.
	Reserve(ctx context.Context, req ReserveRequest) (*Reservation, error)

	// Cancel releases every commitment of a reservation atomically.
	Cancel(ctx context.Context, id ReservationID) error
}

// ReservationReader loads stored reservations.
type ReservationReader interface {
	// Reservation returns ErrReservationNotFound for unknown ids.
	Reservation(ctx context.Context, id ReservationID) (*Reservation, error)
	// ListReservations returns the reservations of a resource holding any
	// day in [from, to], cancelled ones included, ordered by first day.
	ListReservations(ctx context.Context, id ResourceID, from, to calendar.Date) ([]Reservation, error)
}

// CommitmentPurger deletes commitments for days strictly before a cutoff.
type CommitmentPurger interface {
	PurgeBefore(ctx context.Context, day calendar.Date) (int64, error)
}

// =============================================================================
// CONFIGURATION COLLABORATORS
// =============================================================================

// SettingsProvider supplies the engine settings, fetched once per call.
type SettingsProvider interface {
	Settings(ctx context.Context) (Settings, error)
}

// ResourceCatalog supplies resource configuration.
type ResourceCatalog interface {
	// Resource returns ErrResourceNotFound for unknown ids.
	Resource(ctx context.Context, id ResourceID) (*Resource, error)
}

// MaintenanceRegistry supplies blackout days.
type MaintenanceRegistry interface {
	BlackoutDays(ctx context.Context, resourceID ResourceID, from, to calendar.Date) (calendar.Set, error)
}

// =============================================================================
// LOOKUP COLLABORATORS - Failures degrade to warnings
// =============================================================================

// CustomerLookup resolves a phone number to a customer.
type CustomerLookup interface {
	// LookupCustomer returns ErrCustomerNotFound for unknown phones.
	LookupCustomer(ctx context.Context, phone string) (*Customer, error)
}

// VoucherService validates voucher codes.
type VoucherService interface {
	// ValidateVoucher returns *VoucherInvalidError when the code is invalid,
	// expired or ineligible for the query.
	ValidateVoucher(ctx context.Context, q VoucherQuery) (*VoucherGrant, error)
}
