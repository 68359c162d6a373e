/*
availability.go - Per-day capacity and blackout resolution

PURPOSE:
  Decides, for every day of a stay, whether the requested vehicles fit.
  All days are evaluated and every failing day is returned so the caller
  can show the customer the full set of problem dates in one response.

REASONS (one per failing day, highest priority first):
  MAINTENANCE  day is a blackout, regardless of capacity
  PAST         same/past-day booking is not allowed and the day is not
               strictly after today
  FULL         capacity - committed < requested

CONSISTENCY:
  Every day reads through the same Snapshot. When the snapshot implements
  RangeSnapshot, the whole range is fetched with one query up front and the
  per-day pass does no I/O. Otherwise days are read concurrently through a
  bounded errgroup. Outcomes land in an indexed slice, so the result order
  is always the day order.

SEE ALSO:
  - store.go: Snapshot, RangeSnapshot
  - engine.go: Opens and closes the snapshot around Resolve
*/
package booking

import (
	"context"
	"fmt"

	"github.com/warp/parking-engine/calendar"
	"golang.org/x/sync/errgroup"
)

// =============================================================================
// RESULT TYPES
// =============================================================================

// Reason is why a day is unavailable.
type Reason string

const (
	ReasonFull        Reason = "FULL"
	ReasonMaintenance Reason = "MAINTENANCE"
	ReasonPast        Reason = "PAST"
)

// DayUnavailable is one failing day.
type DayUnavailable struct {
	Day    calendar.Date
	Reason Reason
}

// DayStatus is the occupancy of one day as seen by the snapshot.
type DayStatus struct {
	Day       calendar.Date
	Capacity  int
	Committed int
	Available int
	Reason    Reason // empty when the day is bookable
}

// AvailabilityResult aggregates the per-day outcomes.
type AvailabilityResult struct {
	OK              bool
	FailingDays     []DayUnavailable
	SelectedRange   calendar.Period
	Days            []DayStatus
	SnapshotVersion string
}

// =============================================================================
// RESOLVER
// =============================================================================

// DefaultDayConcurrency bounds concurrent per-day reads.
const DefaultDayConcurrency = 8

// AvailabilityResolver evaluates days against one snapshot.
type AvailabilityResolver struct {
	// Concurrency bounds concurrent per-day reads (<= 0 = default).
	Concurrency int
	// Today is the engine's current local date, used by the PAST rule.
	Today calendar.Date
	// AllowSameDay disables the PAST rule.
	AllowSameDay bool
}

// Resolve evaluates every day and returns all failing days. Day-level
// unavailability is reported in the result, not as an error; errors are
// reserved for snapshot failures and cancellation.
func (ar *AvailabilityResolver) Resolve(ctx context.Context, res *Resource, days []calendar.Date, requestedVehicles int, snap Snapshot) (*AvailabilityResult, error) {
	if res == nil {
		return nil, &InvalidRequestError{Field: "resource", Reason: "is required"}
	}
	if len(days) == 0 {
		return nil, &InvalidRequestError{Field: "days", Reason: "must not be empty"}
	}
	if snap == nil {
		return nil, fmt.Errorf("availability for %s: no snapshot", res.ID)
	}

	counts, err := prefetch(ctx, res.ID, days, snap)
	if err != nil {
		return nil, err
	}

	statuses := make([]DayStatus, len(days))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(ar.concurrency())

	for i, day := range days {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			committed, err := committedOn(gctx, res.ID, day, snap, counts)
			if err != nil {
				return fmt.Errorf("committed count for %s on %s: %w", res.ID, day, err)
			}
			statuses[i] = ar.evaluate(res, day, requestedVehicles, committed)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	result := &AvailabilityResult{
		SelectedRange:   calendar.PeriodOf(days),
		Days:            statuses,
		SnapshotVersion: snap.Version(),
	}
	for _, st := range statuses {
		if st.Reason != "" {
			result.FailingDays = append(result.FailingDays, DayUnavailable{Day: st.Day, Reason: st.Reason})
		}
	}
	result.OK = len(result.FailingDays) == 0
	return result, nil
}

func (ar *AvailabilityResolver) evaluate(res *Resource, day calendar.Date, requested, committed int) DayStatus {
	st := DayStatus{
		Day:       day,
		Capacity:  res.TotalCapacity,
		Committed: committed,
		Available: res.TotalCapacity - committed,
	}
	switch {
	case res.Blackouts.Has(day):
		st.Reason = ReasonMaintenance
	case !ar.AllowSameDay && !day.After(ar.Today):
		st.Reason = ReasonPast
	case st.Available < requested:
		st.Reason = ReasonFull
	}
	return st
}

func (ar *AvailabilityResolver) concurrency() int {
	if ar.Concurrency <= 0 {
		return DefaultDayConcurrency
	}
	return ar.Concurrency
}

// prefetch returns nil when the snapshot cannot answer ranges.
func prefetch(ctx context.Context, id ResourceID, days []calendar.Date, snap Snapshot) (map[calendar.Date]int, error) {
	rs, ok := snap.(RangeSnapshot)
	if !ok {
		return nil, nil
	}
	p := calendar.PeriodOf(days)
	counts, err := rs.CommittedCounts(ctx, id, p.Start, p.End)
	if err != nil {
		return nil, fmt.Errorf("committed counts for %s in %s: %w", id, p, err)
	}
	if counts == nil {
		counts = map[calendar.Date]int{}
	}
	return counts, nil
}

func committedOn(ctx context.Context, id ResourceID, day calendar.Date, snap Snapshot, counts map[calendar.Date]int) (int, error) {
	if counts != nil {
		return counts[day], nil
	}
	return snap.CommittedCount(ctx, id, day)
}
