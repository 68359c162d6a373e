package main

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/parking-engine/booking"
	"github.com/warp/parking-engine/calendar"
)

func TestParseInstant(t *testing.T) {
	loc := time.FixedZone("+02:00", 2*60*60)

	got, err := parseInstant("2024-03-10T09:00:00Z", loc)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 3, 10, 9, 0, 0, 0, time.UTC), got.UTC())

	got, err = parseInstant("2024-03-10 09:30", loc)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 3, 10, 7, 30, 0, 0, time.UTC), got.UTC())

	got, err = parseInstant("2024-03-10", loc)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 3, 9, 22, 0, 0, 0, time.UTC), got.UTC())

	_, err = parseInstant("tomorrow", loc)
	assert.Error(t, err)
}

func TestSeedThenBook(t *testing.T) {
	// GIVEN: A fresh database file loaded with the city center scenario
	db := filepath.Join(t.TempDir(), "parking.db")
	run := func(args ...string) error {
		root := newRootCmd()
		root.SetArgs(append([]string{"--db", db}, args...))
		return root.ExecuteContext(context.Background())
	}
	require.NoError(t, run("seed", "city-center"))

	// WHEN: Booking next month's first day on lot B
	day := time.Now().UTC().AddDate(0, 1, 0).Format("2006-01-02")
	require.NoError(t, run("book", "-r", "downtown-b", "--in", day+" 08:00", "--out", day+" 18:00", "-n", "2"))

	// THEN: Occupancy shows the two vehicles
	g := &globalFlags{dbPath: db, timezone: "UTC"}
	store, _, err := g.open()
	require.NoError(t, err)
	defer store.Close()
	d := calendar.MustParseDate(day)
	reservations, err := store.ListReservations(context.Background(), booking.ResourceID("downtown-b"), d, d)
	require.NoError(t, err)
	require.Len(t, reservations, 1)
	assert.Equal(t, 2, reservations[0].VehicleCount)

	assert.Error(t, run("seed", "nowhere"))
	assert.Error(t, run("quote", "-r", "downtown-b", "--in", "soon", "--out", day))
}
