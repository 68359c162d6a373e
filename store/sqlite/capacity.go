package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"time"

	"github.com/warp/parking-engine/booking"
	"github.com/warp/parking-engine/calendar"
)

// =============================================================================
// SNAPSHOT (booking.Snapshot, booking.RangeSnapshot)
// =============================================================================

// Snapshot opens a read transaction. The version query runs first so the
// token and every later count come from the same database state.
func (s *Store) Snapshot(ctx context.Context) (booking.Snapshot, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return nil, fmt.Errorf("failed to begin snapshot: %w", err)
	}

	var seq int64
	if err := tx.QueryRowContext(ctx, "SELECT seq FROM capacity_version WHERE id = 1").Scan(&seq); err != nil {
		tx.Rollback()
		return nil, fmt.Errorf("failed to read capacity version: %w", err)
	}

	return &snapshot{tx: tx, version: strconv.FormatInt(seq, 10)}, nil
}

type snapshot struct {
	tx      *sql.Tx
	version string
}

func (sn *snapshot) Version() string { return sn.version }

// Close ends the read transaction. Rollback after the first Close returns
// sql.ErrTxDone, which is ignored.
func (sn *snapshot) Close() error {
	if err := sn.tx.Rollback(); err != nil && err != sql.ErrTxDone {
		return err
	}
	return nil
}

func (sn *snapshot) CommittedCount(ctx context.Context, id booking.ResourceID, day calendar.Date) (int, error) {
	var n int
	err := sn.tx.QueryRowContext(ctx,
		"SELECT COALESCE(SUM(vehicle_count), 0) FROM commitments WHERE resource_id = ? AND day = ?",
		string(id), day.String(),
	).Scan(&n)
	return n, err
}

func (sn *snapshot) CommittedCounts(ctx context.Context, id booking.ResourceID, from, to calendar.Date) (map[calendar.Date]int, error) {
	return committedCounts(ctx, sn.tx, id, from, to)
}

func committedCounts(ctx context.Context, db execer, id booking.ResourceID, from, to calendar.Date) (map[calendar.Date]int, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT day, SUM(vehicle_count)
		FROM commitments
		WHERE resource_id = ? AND day BETWEEN ? AND ?
		GROUP BY day
	`, string(id), from.String(), to.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[calendar.Date]int)
	for rows.Next() {
		var dayStr string
		var n int
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
// RESERVE / CANCEL (booking.CapacityStore)
// =============================================================================

// Reserve re-checks every day inside the write transaction and inserts the
// reservation with one commitment per day, or nothing.
func (s *Store) Reserve(ctx context.Context, req booking.ReserveRequest) (*booking.Reservation, error) {
	if len(req.Days) == 0 {
		return nil, &booking.InvalidRequestError{Field: "days", Reason: "must not be empty"}
	}
	days := append([]calendar.Date(nil), req.Days...)
	calendar.SortDates(days)
	period := calendar.PeriodOf(days)

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

	err := s.WithTx(ctx, func(tx *sql.Tx) error {
		var capacity int
		err := tx.QueryRowContext(ctx, "SELECT total_capacity FROM resources WHERE id = ?", string(req.ResourceID)).Scan(&capacity)
		if err == sql.ErrNoRows {
			return booking.ErrResourceNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to read capacity: %w", err)
		}

		counts, err := committedCounts(ctx, tx, req.ResourceID, period.Start, period.End)
		if err != nil {
			return fmt.Errorf("failed to read committed counts: %w", err)
		}
		if shortfalls := booking.Shortfalls(days, capacity, req.VehicleCount, counts); len(shortfalls) > 0 {
			return &booking.CapacityConflictError{ResourceID: req.ResourceID, Days: shortfalls}
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO reservations
			(id, code, resource_id, first_day, last_day, vehicle_count, phone, voucher_code,
			 final_amount, check_in, check_out, status, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`,
			string(r.ID), r.Code, string(r.ResourceID), period.Start.String(), period.End.String(),
			r.VehicleCount, nullString(r.Phone), nullString(r.VoucherCode), r.FinalAmount.String(),
			formatInstant(r.Window.CheckIn), formatInstant(r.Window.CheckOut),
			string(r.Status), r.CreatedAt.Format(time.RFC3339),
		)
		if isUniqueConstraintError(err) {
			return booking.ErrConcurrentModification
		}
		if err != nil {
			return fmt.Errorf("failed to insert reservation: %w", err)
		}

		for _, c := range r.Commitments() {
			if _, err := tx.ExecContext(ctx,
				"INSERT INTO commitments (reservation_id, resource_id, day, vehicle_count) VALUES (?, ?, ?, ?)",
				string(c.ReservationID), string(c.ResourceID), c.Day.String(), c.VehicleCount,
			); err != nil {
				return fmt.Errorf("failed to insert commitment for %s: %w", c.Day, err)
			}
		}
		return bumpVersion(ctx, tx)
	})
	if err != nil {
		return nil, err
	}
	return r, nil
}

// Cancel marks the reservation cancelled and deletes its commitments.
func (s *Store) Cancel(ctx context.Context, id booking.ReservationID) error {
	return s.WithTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			"UPDATE reservations SET status = ?, cancelled_at = ? WHERE id = ? AND status = ?",
			string(booking.ReservationCancelled), now(), string(id), string(booking.ReservationConfirmed),
		)
		if err != nil {
			return fmt.Errorf("failed to cancel reservation: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return booking.ErrReservationNotFound
		}
		if _, err := tx.ExecContext(ctx, "DELETE FROM commitments WHERE reservation_id = ?", string(id)); err != nil {
			return fmt.Errorf("failed to release commitments: %w", err)
		}
		return bumpVersion(ctx, tx)
	})
}

// PurgeBefore deletes commitments for days strictly before day. The
// reservations themselves are kept.
func (s *Store) PurgeBefore(ctx context.Context, day calendar.Date) (int64, error) {
	var purged int64
	err := s.WithTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, "DELETE FROM commitments WHERE day < ?", day.String())
		if err != nil {
			return fmt.Errorf("failed to purge commitments: %w", err)
		}
		purged, _ = res.RowsAffected()
		if purged == 0 {
			return nil
		}
		return bumpVersion(ctx, tx)
	})
	return purged, err
}

// =============================================================================
// RESERVATION QUERIES
// =============================================================================

const reservationColumns = `id, code, resource_id, first_day, last_day, vehicle_count, phone,
	voucher_code, final_amount, check_in, check_out, status, created_at, cancelled_at`

// Reservation returns a reservation by id or booking code.
func (s *Store) Reservation(ctx context.Context, id booking.ReservationID) (*booking.Reservation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT "+reservationColumns+" FROM reservations WHERE id = ? OR code = ? LIMIT 1",
		string(id), string(id),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, err
		}
		return nil, booking.ErrReservationNotFound
	}
	return scanReservation(rows)
}

// ListReservations returns the reservations of a resource that overlap
// [from, to], ordered by first day.
func (s *Store) ListReservations(ctx context.Context, id booking.ResourceID, from, to calendar.Date) ([]booking.Reservation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT "+reservationColumns+` FROM reservations
		WHERE resource_id = ? AND first_day <= ? AND last_day >= ?
		ORDER BY first_day, created_at`,
		string(id), to.String(), from.String(),
	)
	if err != nil {
		return nil, err
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

func scanReservation(rows *sql.Rows) (*booking.Reservation, error) {
	var (
		r                           booking.Reservation
		id, resourceID, status      string
		firstDay, lastDay           string
		finalAmount, createdAt      string
		phone, voucher, in, out, cx sql.NullString
	)
	if err := rows.Scan(&id, &r.Code, &resourceID, &firstDay, &lastDay, &r.VehicleCount, &phone,
		&voucher, &finalAmount, &in, &out, &status, &createdAt, &cx); err != nil {
		return nil, err
	}

	first, err := calendar.ParseDate(firstDay)
	if err != nil {
		return nil, err
	}
	last, err := calendar.ParseDate(lastDay)
	if err != nil {
		return nil, err
	}
	amount, err := parseDecimal("final_amount", finalAmount)
	if err != nil {
		return nil, err
	}

	r.ID = booking.ReservationID(id)
	r.ResourceID = booking.ResourceID(resourceID)
	r.Days = calendar.Period{Start: first, End: last}.Days()
	r.Phone = phone.String
	r.VoucherCode = voucher.String
	r.FinalAmount = amount
	r.Window = booking.Window{CheckIn: parseInstant(in), CheckOut: parseInstant(out)}
	r.Status = booking.ReservationStatus(status)
	r.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	if cx.Valid {
		t, _ := time.Parse(time.RFC3339, cx.String)
		r.CancelledAt = &t
	}
	return &r, nil
}

func formatInstant(t time.Time) sql.NullString {
	if t.IsZero() {
		return sql.NullString{}
	}
	return sql.NullString{String: t.Format(time.RFC3339), Valid: true}
}

func parseInstant(ns sql.NullString) time.Time {
	if !ns.Valid {
		return time.Time{}
	}
	t, _ := time.Parse(time.RFC3339, ns.String)
	return t
}
