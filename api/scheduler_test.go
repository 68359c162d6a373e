package api

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/parking-engine/booking"
	"github.com/warp/parking-engine/booking/store"
	"github.com/warp/parking-engine/calendar"
)

func TestPurgeScheduler_CutoffUsesLocation(t *testing.T) {
	// 23:30 UTC on the 1st is already the 2nd in UTC+2
	loc := time.FixedZone("+02:00", 2*60*60)
	ps := NewPurgeScheduler(store.NewMemory(), loc)
	ps.RetentionDays = 1
	ps.Now = func() time.Time { return time.Date(2024, 3, 1, 23, 30, 0, 0, time.UTC) }

	assert.Equal(t, "2024-03-01", ps.Cutoff().String())
}

func TestPurgeScheduler_RunNow(t *testing.T) {
	// GIVEN: Commitments on an old and a recent day
	mem := store.NewMemory()
	mem.PutResource(booking.Resource{ID: "lot", Name: "Lot", TotalCapacity: 5, PricePerDay: decimal.NewFromInt(10)})
	ctx := context.Background()
	for id, day := range map[booking.ReservationID]string{"old": "2023-01-10", "recent": "2024-02-20"} {
		_, err := mem.Reserve(ctx, booking.ReserveRequest{
			ID:           id,
			ResourceID:   "lot",
			Days:         []calendar.Date{calendar.MustParseDate(day)},
			VehicleCount: 1,
			Capacity:     5,
		})
		require.NoError(t, err)
	}

	ps := NewPurgeScheduler(mem, time.UTC)
	ps.Now = func() time.Time { return testNow }

	// WHEN: Purging with 90 days retention
	n, cutoff, err := ps.RunNow(ctx)

	// THEN: Only the old commitment goes
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
	assert.Equal(t, "2023-12-02", cutoff.String())

	snap, err := mem.Snapshot(ctx)
	require.NoError(t, err)
	defer snap.Close()
	recent, err := snap.CommittedCount(ctx, "lot", calendar.MustParseDate("2024-02-20"))
	require.NoError(t, err)
	assert.Equal(t, 1, recent)
}

func TestPurgeScheduler_StartStop(t *testing.T) {
	ps := NewPurgeScheduler(store.NewMemory(), time.UTC)
	assert.True(t, ps.NextRun().IsZero())

	require.NoError(t, ps.Start())
	assert.False(t, ps.NextRun().IsZero())
	require.NoError(t, ps.Start())

	ps.Stop()
	assert.True(t, ps.NextRun().IsZero())
	ps.Stop()
}

func TestPurgeScheduler_InvalidAndDisabled(t *testing.T) {
	ps := NewPurgeScheduler(store.NewMemory(), time.UTC)
	ps.Schedule = "whenever"
	assert.Error(t, ps.Start())

	ps = NewPurgeScheduler(store.NewMemory(), time.UTC)
	ps.Enabled = false
	require.NoError(t, ps.Start())
	assert.True(t, ps.NextRun().IsZero())
}
