package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"eventhub/internal/model"
)

const registrationColumns = `id, user_id, event_id, payment_status, COALESCE(payment_id, ''), amount_paid,
		       COALESCE(coupon_code, ''), registered_at, payment_completed_at`

func scanRegistration(row rowScanner) (*model.Registration, error) {
	var (
		reg         model.Registration
		completedAt sql.NullTime
	)
	if err := row.Scan(
		&reg.ID, &reg.UserID, &reg.EventID, &reg.PaymentStatus, &reg.PaymentID, &reg.AmountPaid,
		&reg.CouponCode, &reg.RegisteredAt, &completedAt,
	); err != nil {
		return nil, err
	}
	reg.PaymentCompletedAt = nullTime(completedAt)
	return &reg, nil
}

func (r *repository) CreateRegistration(ctx context.Context, reg *model.Registration) error {
	query := `
		INSERT INTO registrations (id, user_id, event_id, payment_status, amount_paid, coupon_code)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING registered_at
	`

	err := r.db.QueryRowContext(ctx, query,
		reg.ID, reg.UserID, reg.EventID, reg.PaymentStatus, reg.AmountPaid, nullString(reg.CouponCode),
	).Scan(&reg.RegisteredAt)
	if isUniqueViolation(err) {
		return ErrDuplicateRegistration
	}
	if err != nil {
		return fmt.Errorf("failed to create registration: %w", err)
	}
	return nil
}

func (r *repository) GetRegistrationByID(ctx context.Context, id string) (*model.Registration, error) {
	query := `SELECT ` + registrationColumns + ` FROM registrations WHERE id = $1`

	reg, err := scanRegistration(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRegistrationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get registration: %w", err)
	}
	return reg, nil
}

func (r *repository) GetRegistrationsByIDs(ctx context.Context, ids []string) (map[string]model.Registration, error) {
	out := make(map[string]model.Registration, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	query := `SELECT ` + registrationColumns + ` FROM registrations WHERE id = ANY($1::uuid[])`

	rows, err := r.db.QueryContext(ctx, query, pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("failed to get registrations: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		reg, err := scanRegistration(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan registration: %w", err)
		}
		out[reg.ID] = *reg
	}
	return out, rows.Err()
}

func (r *repository) GetRegistrationsByEventID(ctx context.Context, eventID string) ([]model.Registration, error) {
	query := `
		SELECT ` + registrationColumns + `
		FROM registrations
		WHERE event_id = $1
		ORDER BY registered_at ASC
	`

	rows, err := r.db.QueryContext(ctx, query, eventID)
	if err != nil {
		return nil, fmt.Errorf("failed to get registrations: %w", err)
	}
	defer rows.Close()

	var regs []model.Registration
	for rows.Next() {
		reg, err := scanRegistration(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan registration: %w", err)
		}
		regs = append(regs, *reg)
	}
	return regs, rows.Err()
}

func (r *repository) CountRegistrations(ctx context.Context, eventID string) (int, error) {
	query := `
		SELECT COUNT(*)
		FROM registrations
		WHERE event_id = $1 AND payment_status IN ('pending', 'completed', 'free')
	`

	var count int
	if err := r.db.QueryRowContext(ctx, query, eventID).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count registrations: %w", err)
	}
	return count, nil
}

// ExpireRegistrationTx marks an unpaid registration failed. Anything already
// settled is left alone and reported as false.
func (r *repository) ExpireRegistrationTx(ctx context.Context, id string) (bool, error) {
	expired := false
	err := r.withTx(ctx, func(tx *sql.Tx) error {
		var current string
		err := tx.QueryRowContext(ctx, `
			SELECT payment_status
			FROM registrations
			WHERE id = $1
			FOR UPDATE
		`, id).Scan(&current)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrRegistrationNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to select registration for expiry: %w", err)
		}

		if current != model.PaymentPending {
			return nil
		}

		if _, err := tx.ExecContext(ctx, `
			UPDATE registrations
			SET payment_status = 'failed'
			WHERE id = $1
		`, id); err != nil {
			return fmt.Errorf("failed to expire registration: %w", err)
		}
		expired = true
		return nil
	})
	return expired, err
}
