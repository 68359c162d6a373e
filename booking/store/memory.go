// Package store provides in-memory implementations of the booking
// collaborators.
package store

import (
	"context"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/warp/parking-engine/booking"
	"github.com/warp/parking-engine/calendar"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

// Memory implements every booking collaborator over maps guarded by one
// RWMutex. Snapshots copy the committed counts, so a Reserve that commits
// while a snapshot is open is invisible to every day read through it.
type Memory struct {
	mu           sync.RWMutex
	version      uint64
	settings     booking.Settings
	resources    map[booking.ResourceID]booking.Resource
	blackouts    map[booking.ResourceID]calendar.Set
	committed    map[key]int
	reservations map[booking.ReservationID]booking.Reservation
	customers    map[string]booking.Customer
	vouchers     map[string]booking.VoucherRule
}

type key struct {
	ResourceID booking.ResourceID
	Day        calendar.Date
}

var (
	_ booking.CapacityStore       = (*Memory)(nil)
	_ booking.CommitmentPurger    = (*Memory)(nil)
	_ booking.ReservationReader   = (*Memory)(nil)
	_ booking.SettingsProvider    = (*Memory)(nil)
	_ booking.ResourceCatalog     = (*Memory)(nil)
	_ booking.MaintenanceRegistry = (*Memory)(nil)
	_ booking.CustomerLookup      = (*Memory)(nil)
	_ booking.VoucherService      = (*Memory)(nil)
)

func NewMemory() *Memory {
	return &Memory{
		resources:    make(map[booking.ResourceID]booking.Resource),
		blackouts:    make(map[booking.ResourceID]calendar.Set),
		committed:    make(map[key]int),
		reservations: make(map[booking.ReservationID]booking.Reservation),
		customers:    make(map[string]booking.Customer),
		vouchers:     make(map[string]booking.VoucherRule),
	}
}

// =============================================================================
// SEEDING
// =============================================================================

func (m *Memory) SetSettings(s booking.Settings) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.settings = s
}

func (m *Memory) PutResource(r booking.Resource) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resources[r.ID] = r.Clone()
}

func (m *Memory) AddBlackout(id booking.ResourceID, days ...calendar.Date) {
	m.mu.Lock()
	defer m.mu.Unlock()
	set, ok := m.blackouts[id]
	if !ok {
		set = calendar.NewSet()
		m.blackouts[id] = set
	}
	for _, d := range days {
		set.Add(d)
	}
}

func (m *Memory) PutCustomer(c booking.Customer) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.customers[c.Phone] = c
}

func (m *Memory) PutVoucher(v booking.VoucherRule) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.vouchers[v.Code] = v
}

// =============================================================================
// CONFIGURATION COLLABORATORS
// =============================================================================

func (m *Memory) Settings(_ context.Context) (booking.Settings, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s := m.settings
	s.DiscountTiers = append([]booking.DiscountTier(nil), m.settings.DiscountTiers...)
	return s, nil
}

func (m *Memory) Resource(_ context.Context, id booking.ResourceID) (*booking.Resource, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.resources[id]
	if !ok {
		return nil, booking.ErrResourceNotFound
	}
	out := r.Clone()
	return &out, nil
}

// Resources returns every resource ordered by id.
func (m *Memory) Resources(_ context.Context) ([]booking.Resource, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]booking.Resource, 0, len(m.resources))
	for _, r := range m.resources {
		out = append(out, r.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) BlackoutDays(_ context.Context, id booking.ResourceID, from, to calendar.Date) (calendar.Set, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p := calendar.Period{Start: from, End: to}
	out := calendar.NewSet()
	for d := range m.blackouts[id] {
		if p.Contains(d) {
			out.Add(d)
		}
	}
	return out, nil
}

// =============================================================================
// LOOKUP COLLABORATORS
// =============================================================================

func (m *Memory) LookupCustomer(_ context.Context, phone string) (*booking.Customer, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.customers[phone]
	if !ok {
		return nil, booking.ErrCustomerNotFound
	}
	return &c, nil
}

func (m *Memory) ValidateVoucher(_ context.Context, q booking.VoucherQuery) (*booking.VoucherGrant, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.vouchers[q.Code]
	if !ok {
		return nil, &booking.VoucherInvalidError{Code: q.Code, Reason: "unknown code"}
	}
	return v.Check(q)
}

// =============================================================================
// CAPACITY STORE
// =============================================================================

// Snapshot copies the committed counts under the read lock.
func (m *Memory) Snapshot(_ context.Context) (booking.Snapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	counts := make(map[key]int, len(m.committed))
	for k, v := range m.committed {
		counts[k] = v
	}
	return &memorySnapshot{version: m.version, counts: counts}, nil
}

// Reserve checks and commits every day under the write lock.
func (m *Memory) Reserve(_ context.Context, req booking.ReserveRequest) (*booking.Reservation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	res, ok := m.resources[req.ResourceID]
	if !ok {
		return nil, booking.ErrResourceNotFound
	}
	if _, exists := m.reservations[req.ID]; exists {
		return nil, booking.ErrConcurrentModification
	}

	// Check all days first (atomic check)
	counts := make(map[calendar.Date]int, len(req.Days))
	for _, d := range req.Days {
		counts[d] = m.committed[key{req.ResourceID, d}]
	}
	if shortfalls := booking.Shortfalls(req.Days, res.TotalCapacity, req.VehicleCount, counts); len(shortfalls) > 0 {
		return nil, &booking.CapacityConflictError{ResourceID: req.ResourceID, Days: shortfalls}
	}

	// Commit all (atomic write)
	for _, d := range req.Days {
		m.committed[key{req.ResourceID, d}] += req.VehicleCount
	}
	created := req.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	r := booking.Reservation{
		ID:           req.ID,
		Code:         req.Code,
		ResourceID:   req.ResourceID,
		Days:         append([]calendar.Date(nil), req.Days...),
		VehicleCount: req.VehicleCount,
		Phone:        req.Phone,
		VoucherCode:  req.VoucherCode,
		FinalAmount:  req.FinalAmount,
		Window:       req.Window,
		Status:       booking.ReservationConfirmed,
		CreatedAt:    created,
	}
	m.reservations[r.ID] = r
	m.version++
	return &r, nil
}

func (m *Memory) Cancel(_ context.Context, id booking.ReservationID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.reservations[id]
	if !ok || r.Status == booking.ReservationCancelled {
		return booking.ErrReservationNotFound
	}
	for _, d := range r.Days {
		k := key{r.ResourceID, d}
		if m.committed[k] -= r.VehicleCount; m.committed[k] <= 0 {
			delete(m.committed, k)
		}
	}
	now := time.Now()
	r.Status = booking.ReservationCancelled
	r.CancelledAt = &now
	m.reservations[id] = r
	m.version++
	return nil
}

// Reservation returns a stored reservation.
func (m *Memory) Reservation(_ context.Context, id booking.ReservationID) (*booking.Reservation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.reservations[id]
	if !ok {
		return nil, booking.ErrReservationNotFound
	}
	return &r, nil
}

// ListReservations returns reservations of id holding a day in [from, to].
func (m *Memory) ListReservations(_ context.Context, id booking.ResourceID, from, to calendar.Date) ([]booking.Reservation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	period := calendar.Period{Start: from, End: to}
	var out []booking.Reservation
	for _, r := range m.reservations {
		if r.ResourceID != id {
			continue
		}
		for _, d := range r.Days {
			if period.Contains(d) {
				out = append(out, r)
				break
			}
		}
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if !a.Days[0].Equal(b.Days[0]) {
			return a.Days[0].Before(b.Days[0])
		}
		return a.CreatedAt.Before(b.CreatedAt)
	})
	return out, nil
}

// PurgeBefore drops committed counts for days strictly before day.
func (m *Memory) PurgeBefore(_ context.Context, day calendar.Date) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for k := range m.committed {
		if k.Day.Before(day) {
			delete(m.committed, k)
			n++
		}
	}
	if n > 0 {
		m.version++
	}
	return n, nil
}

// =============================================================================
// SNAPSHOT
// =============================================================================

type memorySnapshot struct {
	version uint64
	counts  map[key]int
}

func (s *memorySnapshot) Version() string { return strconv.FormatUint(s.version, 10) }
func (s *memorySnapshot) Close() error    { return nil }

func (s *memorySnapshot) CommittedCount(_ context.Context, id booking.ResourceID, day calendar.Date) (int, error) {
	return s.counts[key{id, day}], nil
}

func (s *memorySnapshot) CommittedCounts(_ context.Context, id booking.ResourceID, from, to calendar.Date) (map[calendar.Date]int, error) {
	p := calendar.Period{Start: from, End: to}
	out := make(map[calendar.Date]int)
	for k, v := range s.counts {
		if k.ResourceID == id && p.Contains(k.Day) {
			out[k.Day] = v
		}
	}
	return out, nil
}
