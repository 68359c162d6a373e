/*
Package postgres provides a PostgreSQL capacity store.

PURPOSE:
  Holds committed capacity (reservations and per-day commitments) for
  deployments where several engine processes share one database. Resource
  configuration, settings and lookups stay with whichever collaborators
  the process wires; this store only needs the capacity the engine
  resolved against (ReserveRequest.Capacity).

INTERFACES IMPLEMENTED:
  booking.CapacityStore:     Snapshot, Reserve, Cancel
  booking.CommitmentPurger:  PurgeBefore
  booking.ReservationReader: Reservation, ListReservations

CONCURRENCY:
  Snapshots are READ ONLY REPEATABLE READ transactions: every count read
  through one sees the same database snapshot, and the version token is the
  transaction's txid_current_snapshot(). Reserve and Cancel take a
  transaction-scoped advisory lock on the resource id, so writers for the
  same resource serialize across processes while readers never wait.

USAGE:
  db, err := sql.Open("postgres", os.Getenv("DATABASE_URL"))
  store, err := postgres.New(ctx, db)

SEE ALSO:
  - store/sqlite: Embedded store implementing every collaborator
  - booking/store.go: Interface definitions
*/
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"
	"github.com/warp/parking-engine/booking"
	"github.com/warp/parking-engine/calendar"
)

// uniqueViolation is the PostgreSQL error code for unique_violation.
const uniqueViolation = "23505"

// Store implements the capacity side of the booking collaborators.
type Store struct {
	db *sql.DB
}

var (
	_ booking.CapacityStore     = (*Store)(nil)
	_ booking.CommitmentPurger  = (*Store)(nil)
	_ booking.ReservationReader = (*Store)(nil)
)

// New wraps db and creates the schema if needed.
func New(ctx context.Context, db *sql.DB) (*Store, error) {
	s := &Store{db: db}
	if err := s.migrate(ctx); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return s, nil
}

// Open connects to dsn and returns a migrated store.
func Open(ctx context.Context, dsn string) (*Store, error) {
	// lib/pq falls back to PG* env defaults on an empty DSN
	if strings.TrimSpace(dsn) == "" {
		return nil, errors.New("postgres: empty DSN")
	}
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to reach database: %w", err)
	}
	s, err := New(ctx, db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
	CREATE TABLE IF NOT EXISTS reservations (
		id TEXT PRIMARY KEY,
		code TEXT NOT NULL UNIQUE,
		resource_id TEXT NOT NULL,
		days DATE[] NOT NULL,
		vehicle_count INTEGER NOT NULL CHECK (vehicle_count > 0),
		phone TEXT,
		voucher_code TEXT,
		final_amount NUMERIC NOT NULL,
		check_in TIMESTAMPTZ,
		check_out TIMESTAMPTZ,
		status TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL,
		cancelled_at TIMESTAMPTZ
	);

	CREATE TABLE IF NOT EXISTS commitments (
		reservation_id TEXT NOT NULL REFERENCES reservations(id) ON DELETE CASCADE,
		resource_id TEXT NOT NULL,
		day DATE NOT NULL,
		vehicle_count INTEGER NOT NULL,
		PRIMARY KEY (reservation_id, day)
	);

	CREATE INDEX IF NOT EXISTS idx_commitments_resource_day
		ON commitments(resource_id, day);
	`)
	return err
}

// =============================================================================
// SNAPSHOT
// =============================================================================

func (s *Store) Snapshot(ctx context.Context) (booking.Snapshot, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true})
	if err != nil {
		return nil, fmt.Errorf("failed to begin snapshot: %w", err)
	}
	var version string
	if err := tx.QueryRowContext(ctx, "SELECT txid_current_snapshot()::text").Scan(&version); err != nil {
		tx.Rollback()
		return nil, fmt.Errorf("failed to read snapshot id: %w", err)
	}
	return &snapshot{tx: tx, version: version}, nil
}

type snapshot struct {
	tx      *sql.Tx
	version string
}

func (sn *snapshot) Version() string { return sn.version }

func (sn *snapshot) Close() error {
	if err := sn.tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return err
	}
	return nil
}

func (sn *snapshot) CommittedCount(ctx context.Context, id booking.ResourceID, day calendar.Date) (int, error) {
	var n int
	err := sn.tx.QueryRowContext(ctx,
		"SELECT COALESCE(SUM(vehicle_count), 0) FROM commitments WHERE resource_id = $1 AND day = $2",
		string(id), day.String(),
	).Scan(&n)
	return n, err
}

func (sn *snapshot) CommittedCounts(ctx context.Context, id booking.ResourceID, from, to calendar.Date) (map[calendar.Date]int, error) {
	return committedCounts(ctx, sn.tx, id, dayStrings(calendar.Period{Start: from, End: to}.Days()))
}

// committedCounts sums commitments for the listed days.
func committedCounts(ctx context.Context, tx *sql.Tx, id booking.ResourceID, days []string) (map[calendar.Date]int, error) {
	rows, err := tx.QueryContext(ctx, `
		SELECT to_char(day, 'YYYY-MM-DD'), SUM(vehicle_count)
		FROM commitments
		WHERE resource_id = $1 AND day = ANY($2::date[])
		GROUP BY day
	`, string(id), pq.Array(days))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[calendar.Date]int)
	for rows.Next() {
		var (
			dayStr string
			n      int
		)
		if err := rows.Scan(&dayStr, &n); err != nil {
			return nil, err
		}
		d, err := calendar.ParseDate(dayStr)
		if err != nil {
			return nil, err
		}
		counts[d] = n
	}
	return counts, rows.Err()
}

// =============================================================================
// RESERVE / CANCEL
// =============================================================================

// withResourceLock runs fn in a transaction holding the advisory lock for id.
func (s *Store) withResourceLock(ctx context.Context, id booking.ResourceID, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "SELECT pg_advisory_xact_lock(hashtext($1))", string(id)); err != nil {
		return fmt.Errorf("failed to lock %s: %w", id, err)
	}
	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *Store) Reserve(ctx context.Context, req booking.ReserveRequest) (*booking.Reservation, error) {
	if len(req.Days) == 0 {
		return nil, &booking.InvalidRequestError{Field: "days", Reason: "must not be empty"}
	}
	days := append([]calendar.Date(nil), req.Days...)
	calendar.SortDates(days)

	created := req.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	r := &booking.Reservation{
		ID:           req.ID,
		Code:         req.Code,
		ResourceID:   req.ResourceID,
		Days:         days,
		VehicleCount: req.VehicleCount,
		Phone:        req.Phone,
		VoucherCode:  req.VoucherCode,
		FinalAmount:  req.FinalAmount,
		Window:       req.Window,
		Status:       booking.ReservationConfirmed,
		CreatedAt:    created.UTC(),
	}
	if r.Code == "" {
		r.Code = string(r.ID)
	}
	dayList := dayStrings(days)

	err := s.withResourceLock(ctx, req.ResourceID, func(tx *sql.Tx) error {
		counts, err := committedCounts(ctx, tx, req.ResourceID, dayList)
		if err != nil {
			return fmt.Errorf("failed to read committed counts: %w", err)
		}
		if shortfalls := booking.Shortfalls(days, req.Capacity, req.VehicleCount, counts); len(shortfalls) > 0 {
			return &booking.CapacityConflictError{ResourceID: req.ResourceID, Days: shortfalls}
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO reservations
			(id, code, resource_id, days, vehicle_count, phone, voucher_code, final_amount,
			 check_in, check_out, status, created_at)
			VALUES ($1, $2, $3, $4::date[], $5, $6, $7, $8, $9, $10, $11, $12)
		`,
			string(r.ID), r.Code, string(r.ResourceID), pq.Array(dayList), r.VehicleCount,
			nullString(r.Phone), nullString(r.VoucherCode), r.FinalAmount.String(),
			nullTime(r.Window.CheckIn), nullTime(r.Window.CheckOut), string(r.Status), r.CreatedAt,
		)
		if isUniqueViolation(err) {
			return booking.ErrConcurrentModification
		}
		if err != nil {
			return fmt.Errorf("failed to insert reservation: %w", err)
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO commitments (reservation_id, resource_id, day, vehicle_count)
			SELECT $1, $2, d, $3 FROM unnest($4::date[]) AS d
		`, string(r.ID), string(r.ResourceID), r.VehicleCount, pq.Array(dayList))
		if err != nil {
			return fmt.Errorf("failed to insert commitments: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return r, nil
}

func (s *Store) Cancel(ctx context.Context, id booking.ReservationID) error {
	var resourceID string
	err := s.db.QueryRowContext(ctx,
		"SELECT resource_id FROM reservations WHERE id = $1 AND status = $2",
		string(id), string(booking.ReservationConfirmed),
	).Scan(&resourceID)
	if err == sql.ErrNoRows {
		return booking.ErrReservationNotFound
	}
	if err != nil {
		return err
	}

	return s.withResourceLock(ctx, booking.ResourceID(resourceID), func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			"UPDATE reservations SET status = $1, cancelled_at = now() WHERE id = $2 AND status = $3",
			string(booking.ReservationCancelled), string(id), string(booking.ReservationConfirmed),
		)
		if err != nil {
			return fmt.Errorf("failed to cancel reservation: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return booking.ErrReservationNotFound
		}
		if _, err := tx.ExecContext(ctx, "DELETE FROM commitments WHERE reservation_id = $1", string(id)); err != nil {
			return fmt.Errorf("failed to release commitments: %w", err)
		}
		return nil
	})
}

func (s *Store) PurgeBefore(ctx context.Context, day calendar.Date) (int64, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM commitments WHERE day < $1", day.String())
	if err != nil {
		return 0, fmt.Errorf("failed to purge commitments: %w", err)
	}
	return res.RowsAffected()
}

const reservationColumns = `id, code, resource_id,
	array(SELECT to_char(d, 'YYYY-MM-DD') FROM unnest(days) AS d ORDER BY d),
	vehicle_count, phone, voucher_code, final_amount::text, check_in, check_out,
	status, created_at, cancelled_at`

// Reservation returns a reservation by id or booking code.
func (s *Store) Reservation(ctx context.Context, id booking.ReservationID) (*booking.Reservation, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+reservationColumns+" FROM reservations WHERE id = $1 OR code = $1 LIMIT 1",
		string(id))
	r, err := scanReservation(row)
	if err == sql.ErrNoRows {
		return nil, booking.ErrReservationNotFound
	}
	return r, err
}

// ListReservations returns the reservations of a resource holding any day in
// [from, to], ordered by first day.
func (s *Store) ListReservations(ctx context.Context, id booking.ResourceID, from, to calendar.Date) ([]booking.Reservation, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT "+reservationColumns+` FROM reservations
		WHERE resource_id = $1
		  AND EXISTS (SELECT 1 FROM unnest(days) AS d WHERE d BETWEEN $2::date AND $3::date)
		ORDER BY (SELECT min(d) FROM unnest(days) AS d), created_at`,
		string(id), from.String(), to.String())
	if err != nil {
		return nil, fmt.Errorf("failed to list reservations: %w", err)
	}
	defer rows.Close()

	var out []booking.Reservation
	for rows.Next() {
		r, err := scanReservation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanReservation(sc scanner) (*booking.Reservation, error) {
	var (
		r                       booking.Reservation
		rid, resourceID, status string
		amount                  string
		days                    []string
		phone, voucher          sql.NullString
		in, out, cancelled      sql.NullTime
	)
	err := sc.Scan(&rid, &r.Code, &resourceID, pq.Array(&days), &r.VehicleCount, &phone, &voucher,
		&amount, &in, &out, &status, &r.CreatedAt, &cancelled)
	if err != nil {
		return nil, err
	}

	r.ID = booking.ReservationID(rid)
	r.ResourceID = booking.ResourceID(resourceID)
	r.Status = booking.ReservationStatus(status)
	r.Phone = phone.String
	r.VoucherCode = voucher.String
	r.Window = booking.Window{CheckIn: in.Time, CheckOut: out.Time}
	if cancelled.Valid {
		t := cancelled.Time
		r.CancelledAt = &t
	}
	if r.FinalAmount, err = parseAmount(amount); err != nil {
		return nil, err
	}
	for _, ds := range days {
		d, err := calendar.ParseDate(ds)
		if err != nil {
			return nil, err
		}
		r.Days = append(r.Days, d)
	}
	return &r, nil
}
