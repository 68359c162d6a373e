/*
scheduler.go - Scheduled commitment purge

PURPOSE:
  Committed counts for days long past never affect availability again, but
  they keep growing the commitments table. The purge deletes commitments
  older than today minus the retention window. Reservations are kept.

DESIGN:
  - robfig/cron drives the schedule (standard 5-field spec or @daily)
  - Runs in the engine's timezone so "today" matches resolution
  - A run that is still going when the next one fires is skipped

CONFIGURATION:
  - Schedule:      Cron spec (default: @daily)
  - RetentionDays: Days kept before today (default: 90)
  - Enabled:       Whether the scheduler is active (default: true)

USAGE:
  scheduler := NewPurgeScheduler(store, time.UTC)
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - handlers.go: TriggerPurge endpoint (manual purge)
  - booking/store.go: CommitmentPurger
*/
package api

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/warp/parking-engine/booking"
	"github.com/warp/parking-engine/calendar"
)

// PurgeScheduler deletes expired commitments on a cron schedule.
type PurgeScheduler struct {
	Store         booking.CommitmentPurger
	Schedule      string
	RetentionDays int
	Enabled       bool
	Location      *time.Location
	Now           func() time.Time

	cron *cron.Cron
	mu   sync.Mutex
}

// NewPurgeScheduler creates a scheduler with the default schedule.
func NewPurgeScheduler(store booking.CommitmentPurger, loc *time.Location) *PurgeScheduler {
	if loc == nil {
		loc = time.UTC
	}
	return &PurgeScheduler{
		Store:         store,
		Schedule:      "@daily",
		RetentionDays: 90,
		Enabled:       true,
		Location:      loc,
	}
}

// Start begins the scheduler.
func (ps *PurgeScheduler) Start() error {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	if !ps.Enabled {
		log.Println("[Scheduler] Disabled, not starting")
		return nil
	}
	if ps.cron != nil {
		return nil
	}

	c := cron.New(
		cron.WithLocation(ps.Location),
		cron.WithChain(cron.SkipIfStillRunning(cron.DefaultLogger)),
	)
	if _, err := c.AddFunc(ps.Schedule, ps.run); err != nil {
		return fmt.Errorf("invalid purge schedule %q: %w", ps.Schedule, err)
	}
	c.Start()
	ps.cron = c

	log.Printf("[Scheduler] Started purge with schedule %q, retention %d days", ps.Schedule, ps.RetentionDays)
	return nil
}

// Stop stops the scheduler and waits for a running purge to finish.
func (ps *PurgeScheduler) Stop() {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	if ps.cron != nil {
		<-ps.cron.Stop().Done()
		ps.cron = nil
		log.Println("[Scheduler] Stopped")
	}
}

func (ps *PurgeScheduler) run() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	if _, _, err := ps.RunNow(ctx); err != nil {
		log.Printf("[Scheduler] Purge failed: %v", err)
	}
}

// RunNow purges immediately and returns the row count and the cutoff day.
func (ps *PurgeScheduler) RunNow(ctx context.Context) (int64, calendar.Date, error) {
	cutoff := ps.Cutoff()
	n, err := ps.Store.PurgeBefore(ctx, cutoff)
	if err != nil {
		return 0, cutoff, err
	}
	if n > 0 {
		log.Printf("[Scheduler] Purged %d commitment(s) before %s", n, cutoff)
	}
	return n, cutoff, nil
}

// Cutoff is the first day that is kept.
func (ps *PurgeScheduler) Cutoff() calendar.Date {
	now := time.Now()
	if ps.Now != nil {
		now = ps.Now()
	}
	return calendar.In(now, ps.Location).AddDays(-ps.RetentionDays)
}

// NextRun returns when the next purge will occur, zero when stopped.
func (ps *PurgeScheduler) NextRun() time.Time {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	if ps.cron == nil {
		return time.Time{}
	}
	entries := ps.cron.Entries()
	if len(entries) == 0 {
		return time.Time{}
	}
	return entries[0].Next
}
