package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/warp/parking-engine/booking"
	"github.com/warp/parking-engine/calendar"
	"github.com/warp/parking-engine/factory"
)

// =============================================================================
// RESOURCES (booking.ResourceCatalog)
// =============================================================================

// PutResource creates or updates a resource. Special prices in r replace the
// stored ones; blackouts are managed separately with AddBlackout.
func (s *Store) PutResource(ctx context.Context, r booking.Resource) error {
	if err := r.Validate(); err != nil {
		return err
	}
	return s.WithTx(ctx, func(tx *sql.Tx) error {
		ts := now()
		_, err := tx.ExecContext(ctx, `
			INSERT INTO resources (id, name, total_capacity, price_per_day, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				name = excluded.name,
				total_capacity = excluded.total_capacity,
				price_per_day = excluded.price_per_day,
				updated_at = excluded.updated_at
		`, string(r.ID), r.Name, r.TotalCapacity, r.PricePerDay.String(), ts, ts)
		if err != nil {
			return fmt.Errorf("failed to save resource: %w", err)
		}

		if _, err := tx.ExecContext(ctx, "DELETE FROM special_prices WHERE resource_id = ?", string(r.ID)); err != nil {
			return err
		}
		for day, sp := range r.SpecialPrices {
			if err := putSpecialPrice(ctx, tx, r.ID, day, sp); err != nil {
				return err
			}
		}
		return nil
	})
}

// Resource loads a resource with its special prices and blackouts.
func (s *Store) Resource(ctx context.Context, id booking.ResourceID) (*booking.Resource, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loadResource(ctx, s.db, id)
}

// Resources returns every resource ordered by id.
func (s *Store) Resources(ctx context.Context) ([]booking.Resource, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, "SELECT id FROM resources ORDER BY id")
	if err != nil {
		return nil, err
	}
	var ids []booking.ResourceID
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, err
		}
		ids = append(ids, booking.ResourceID(id))
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]booking.Resource, 0, len(ids))
	for _, id := range ids {
		r, err := s.loadResource(ctx, s.db, id)
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	return out, nil
}

func (s *Store) loadResource(ctx context.Context, db execer, id booking.ResourceID) (*booking.Resource, error) {
	var (
		r     booking.Resource
		price string
	)
	err := db.QueryRowContext(ctx,
		"SELECT id, name, total_capacity, price_per_day FROM resources WHERE id = ?", string(id),
	).Scan((*string)(&r.ID), &r.Name, &r.TotalCapacity, &price)
	if err == sql.ErrNoRows {
		return nil, booking.ErrResourceNotFound
	}
	if err != nil {
		return nil, err
	}
	if r.PricePerDay, err = parseDecimal("price_per_day", price); err != nil {
		return nil, err
	}

	r.SpecialPrices = make(map[calendar.Date]booking.SpecialPrice)
	rows, err := db.QueryContext(ctx, "SELECT day, price, reason FROM special_prices WHERE resource_id = ?", string(id))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			dayStr, priceStr string
			reason           sql.NullString
		)
		if err := rows.Scan(&dayStr, &priceStr, &reason); err != nil {
			return nil, err
		}
		day, err := calendar.ParseDate(dayStr)
		if err != nil {
			return nil, err
		}
		p, err := parseDecimal("special_prices.price", priceStr)
		if err != nil {
			return nil, err
		}
		r.SpecialPrices[day] = booking.SpecialPrice{Price: p, Reason: reason.String}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	r.Blackouts = calendar.NewSet()
	return &r, nil
}

// =============================================================================
// SPECIAL PRICES
// =============================================================================

// PutSpecialPrice sets the price override for one day.
func (s *Store) PutSpecialPrice(ctx context.Context, id booking.ResourceID, day calendar.Date, sp booking.SpecialPrice) error {
	if sp.Price.IsNegative() {
		return &booking.PricingConfigError{ResourceID: id, Day: day, Reason: "special price is negative"}
	}
	return s.WithTx(ctx, func(tx *sql.Tx) error {
		return putSpecialPrice(ctx, tx, id, day, sp)
	})
}

// DeleteSpecialPrice removes the override for one day, if any.
func (s *Store) DeleteSpecialPrice(ctx context.Context, id booking.ResourceID, day calendar.Date) error {
	return s.WithTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, "DELETE FROM special_prices WHERE resource_id = ? AND day = ?", string(id), day.String())
		return err
	})
}

func putSpecialPrice(ctx context.Context, db execer, id booking.ResourceID, day calendar.Date, sp booking.SpecialPrice) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO special_prices (resource_id, day, price, reason)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(resource_id, day) DO UPDATE SET
			price = excluded.price,
			reason = excluded.reason
	`, string(id), day.String(), sp.Price.String(), nullString(sp.Reason))
	if err != nil {
		return fmt.Errorf("failed to save special price for %s: %w", day, err)
	}
	return nil
}

// =============================================================================
// BLACKOUTS (booking.MaintenanceRegistry)
// =============================================================================

// AddBlackout marks days as closed for maintenance.
func (s *Store) AddBlackout(ctx context.Context, id booking.ResourceID, reason string, days ...calendar.Date) error {
	return s.WithTx(ctx, func(tx *sql.Tx) error {
		for _, d := range days {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO blackouts (resource_id, day, reason) VALUES (?, ?, ?)
				ON CONFLICT(resource_id, day) DO UPDATE SET reason = excluded.reason
			`, string(id), d.String(), nullString(reason))
			if err != nil {
				return fmt.Errorf("failed to add blackout %s: %w", d, err)
			}
		}
		return nil
	})
}

// RemoveBlackout reopens a day.
func (s *Store) RemoveBlackout(ctx context.Context, id booking.ResourceID, day calendar.Date) error {
	return s.WithTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, "DELETE FROM blackouts WHERE resource_id = ? AND day = ?", string(id), day.String())
		return err
	})
}

func (s *Store) BlackoutDays(ctx context.Context, id booking.ResourceID, from, to calendar.Date) (calendar.Set, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT day FROM blackouts WHERE resource_id = ? AND day BETWEEN ? AND ?",
		string(id), from.String(), to.String(),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := calendar.NewSet()
	for rows.Next() {
		var dayStr string
		if err := rows.Scan(&dayStr); err != nil {
			return nil, err
		}
		d, err := calendar.ParseDate(dayStr)
		if err != nil {
			return nil, err
		}
		out.Add(d)
	}
	return out, rows.Err()
}

// =============================================================================
// SETTINGS (booking.SettingsProvider)
// =============================================================================

// SaveSettingsJSON validates and stores the settings document.
func (s *Store) SaveSettingsJSON(ctx context.Context, configJSON string) error {
	if _, err := factory.NewSettingsFactory().ParseSettings(configJSON); err != nil {
		return err
	}
	return s.WithTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO settings (id, config_json, version, updated_at)
			VALUES (1, ?, 1, ?)
			ON CONFLICT(id) DO UPDATE SET
				config_json = excluded.config_json,
				version = settings.version + 1,
				updated_at = excluded.updated_at
		`, configJSON, now())
		return err
	})
}

// SaveSettings stores settings built in code.
func (s *Store) SaveSettings(ctx context.Context, settings booking.Settings) error {
	js, err := factory.NewSettingsFactory().Marshal(settings)
	if err != nil {
		return err
	}
	return s.SaveSettingsJSON(ctx, js)
}

// Settings parses the stored document. With nothing stored, stays of one
// day or more are allowed and no discounts apply.
func (s *Store) Settings(ctx context.Context) (booking.Settings, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var configJSON string
	err := s.db.QueryRowContext(ctx, "SELECT config_json FROM settings WHERE id = 1").Scan(&configJSON)
	if err == sql.ErrNoRows {
		return booking.Settings{MinBookingDays: 1}, nil
	}
	if err != nil {
		return booking.Settings{}, fmt.Errorf("failed to load settings: %w", err)
	}

	settings, err := factory.NewSettingsFactory().ParseSettings(configJSON)
	if err != nil {
		return booking.Settings{}, fmt.Errorf("stored settings are invalid: %w", err)
	}
	return *settings, nil
}
