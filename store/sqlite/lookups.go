package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/warp/parking-engine/booking"
)

// =============================================================================
// CUSTOMERS (booking.CustomerLookup)
// =============================================================================

// PutCustomer creates or updates a customer keyed by phone.
func (s *Store) PutCustomer(ctx context.Context, c booking.Customer) error {
	return s.WithTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO customers (phone, name, is_vip, vip_percent, created_at)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(phone) DO UPDATE SET
				name = excluded.name,
				is_vip = excluded.is_vip,
				vip_percent = excluded.vip_percent
		`, c.Phone, nullString(c.Name), c.IsVIP, c.VIPPercent.String(), now())
		if err != nil {
			return fmt.Errorf("failed to save customer: %w", err)
		}
		return nil
	})
}

func (s *Store) LookupCustomer(ctx context.Context, phone string) (*booking.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var (
		c       booking.Customer
		name    sql.NullString
		percent string
	)
	err := s.db.QueryRowContext(ctx,
		"SELECT phone, name, is_vip, vip_percent FROM customers WHERE phone = ?", phone,
	).Scan(&c.Phone, &name, &c.IsVIP, &percent)
	if err == sql.ErrNoRows {
		return nil, booking.ErrCustomerNotFound
	}
	if err != nil {
		return nil, err
	}
	c.Name = name.String
	if c.VIPPercent, err = parseDecimal("vip_percent", percent); err != nil {
		return nil, err
	}
	return &c, nil
}

// =============================================================================
// VOUCHERS (booking.VoucherService)
// =============================================================================

// PutVoucher creates or updates a voucher rule.
func (s *Store) PutVoucher(ctx context.Context, v booking.VoucherRule) error {
	if v.Kind != booking.VoucherFixed && v.Kind != booking.VoucherPercentage {
		return &booking.InvalidRequestError{Field: "kind", Reason: fmt.Sprintf("unknown voucher kind %q", v.Kind)}
	}
	if v.Value.IsNegative() {
		return &booking.InvalidRequestError{Field: "value", Reason: "must not be negative"}
	}
	return s.WithTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO vouchers (code, kind, value, resource_id, valid_from, valid_to, min_amount, active, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(code) DO UPDATE SET
				kind = excluded.kind,
				value = excluded.value,
				resource_id = excluded.resource_id,
				valid_from = excluded.valid_from,
				valid_to = excluded.valid_to,
				min_amount = excluded.min_amount,
				active = excluded.active
		`, v.Code, string(v.Kind), v.Value.String(), nullString(string(v.ResourceID)),
			nullDate(v.ValidFrom), nullDate(v.ValidTo), v.MinAmount.String(), v.Active, now())
		if err != nil {
			return fmt.Errorf("failed to save voucher: %w", err)
		}
		return nil
	})
}

// ValidateVoucher loads the rule for q.Code and checks it.
func (s *Store) ValidateVoucher(ctx context.Context, q booking.VoucherQuery) (*booking.VoucherGrant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var (
		v                    booking.VoucherRule
		kind, value, minimum string
		resourceID, from, to sql.NullString
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT code, kind, value, resource_id, valid_from, valid_to, min_amount, active
		FROM vouchers WHERE code = ?
	`, q.Code).Scan(&v.Code, &kind, &value, &resourceID, &from, &to, &minimum, &v.Active)
	if err == sql.ErrNoRows {
		return nil, &booking.VoucherInvalidError{Code: q.Code, Reason: "unknown code"}
	}
	if err != nil {
		return nil, err
	}

	v.Kind = booking.VoucherKind(kind)
	v.ResourceID = booking.ResourceID(resourceID.String)
	if v.Value, err = parseDecimal("vouchers.value", value); err != nil {
		return nil, err
	}
	if v.MinAmount, err = parseDecimal("min_amount", minimum); err != nil {
		return nil, err
	}
	if v.ValidFrom, err = parseNullDate(from); err != nil {
		return nil, err
	}
	if v.ValidTo, err = parseNullDate(to); err != nil {
		return nil, err
	}
	return v.Check(q)
}
