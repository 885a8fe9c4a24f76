package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"eventhub/internal/model"
)

const transactionColumns = `id, user_id, event_id, COALESCE(registration_id::text, ''), amount, currency,
		       COALESCE(razorpay_order_id, ''), COALESCE(razorpay_payment_id, ''), status,
		       COALESCE(payment_method, ''), COALESCE(error_code, ''), COALESCE(error_message, ''),
		       created_at, completed_at`

func scanTransaction(row rowScanner) (*model.PaymentTransaction, error) {
	var (
		t           model.PaymentTransaction
		completedAt sql.NullTime
	)
	if err := row.Scan(
		&t.ID, &t.UserID, &t.EventID, &t.RegistrationID, &t.Amount, &t.Currency,
		&t.GatewayOrderID, &t.GatewayPaymentID, &t.Status,
		&t.PaymentMethod, &t.ErrorCode, &t.ErrorMessage,
		&t.CreatedAt, &completedAt,
	); err != nil {
		return nil, err
	}
	t.CompletedAt = nullTime(completedAt)
	return &t, nil
}

func (r *repository) CreatePaymentTransaction(ctx context.Context, t *model.PaymentTransaction) error {
	query := `
		INSERT INTO payment_transactions (id, user_id, event_id, registration_id, amount, currency, razorpay_order_id, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at
	`

	if err := r.db.QueryRowContext(ctx, query,
		t.ID, t.UserID, t.EventID, nullString(t.RegistrationID), t.Amount, t.Currency, t.GatewayOrderID, t.Status,
	).Scan(&t.CreatedAt); err != nil {
		return fmt.Errorf("failed to create payment transaction: %w", err)
	}
	return nil
}

func (r *repository) GetTransactionByOrderID(ctx context.Context, orderID string) (*model.PaymentTransaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM payment_transactions WHERE razorpay_order_id = $1`

	t, err := scanTransaction(r.db.QueryRowContext(ctx, query, orderID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrTransactionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get payment transaction: %w", err)
	}
	return t, nil
}

func (r *repository) GetTransactionsByUser(ctx context.Context, userID string) ([]model.PaymentTransaction, error) {
	query := `
		SELECT ` + transactionColumns + `
		FROM payment_transactions
		WHERE user_id = $1
		ORDER BY created_at DESC
	`

	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get payment transactions: %w", err)
	}
	defer rows.Close()

	var out []model.PaymentTransaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan payment transaction: %w", err)
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}

// CompletePaymentTx moves the transaction to success and its registration to
// completed in one unit. Rows already in the target state are not touched.
func (r *repository) CompletePaymentTx(ctx context.Context, c PaymentCapture) (PaymentChange, error) {
	var change PaymentChange
	err := r.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE payment_transactions
			SET status = 'success', razorpay_payment_id = $2, payment_method = $3, completed_at = $4
			WHERE id = $1 AND status IN ('initiated', 'failed')
		`, c.TransactionID, c.PaymentID, nullString(c.Method), c.At)
		if err != nil {
			return fmt.Errorf("failed to update payment transaction: %w", err)
		}
		if change.TransactionChanged, err = affected(res); err != nil {
			return err
		}

		if c.RegistrationID == "" {
			return nil
		}

		res, err = tx.ExecContext(ctx, `
			UPDATE registrations
			SET payment_status = 'completed', payment_id = $2, payment_completed_at = $3
			WHERE id = $1 AND payment_status IN ('pending', 'failed')
		`, c.RegistrationID, c.PaymentID, c.At)
		if err != nil {
			return fmt.Errorf("failed to complete registration: %w", err)
		}
		change.RegistrationChanged, err = affected(res)
		return err
	})
	return change, err
}

// FailPaymentTx records a gateway failure. A transaction that already
// succeeded, or a registration that is already settled, never moves back.
func (r *repository) FailPaymentTx(ctx context.Context, f PaymentFailure) (PaymentChange, error) {
	var change PaymentChange
	err := r.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE payment_transactions
			SET status = 'failed', razorpay_payment_id = $2, error_code = $3, error_message = $4
			WHERE id = $1 AND status = 'initiated'
		`, f.TransactionID, nullString(f.PaymentID), nullString(f.ErrorCode), nullString(f.ErrorMessage))
		if err != nil {
			return fmt.Errorf("failed to update payment transaction: %w", err)
		}
		if change.TransactionChanged, err = affected(res); err != nil {
			return err
		}

		if f.RegistrationID == "" || !change.TransactionChanged {
			return nil
		}

		res, err = tx.ExecContext(ctx, `
			UPDATE registrations
			SET payment_status = 'failed'
			WHERE id = $1 AND payment_status = 'pending'
		`, f.RegistrationID)
		if err != nil {
			return fmt.Errorf("failed to mark registration failed: %w", err)
		}
		change.RegistrationChanged, err = affected(res)
		return err
	})
	return change, err
}

func affected(res sql.Result) (bool, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return n > 0, nil
}
