package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"eventhub/internal/model"
)

var errAlreadyGranted = errors.New("reward already granted")

func (r *repository) CreateReferral(ctx context.Context, ref *model.Referral) error {
	query := `
		INSERT INTO referrals (id, referrer_id, referee_id, event_id, registration_id, status)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at
	`

	err := r.db.QueryRowContext(ctx, query,
		ref.ID, ref.ReferrerID, ref.RefereeID, ref.EventID, ref.RegistrationID, ref.Status,
	).Scan(&ref.CreatedAt)
	if isUniqueViolation(err) {
		return ErrDuplicateReferral
	}
	if err != nil {
		return fmt.Errorf("failed to create referral: %w", err)
	}
	return nil
}

func (r *repository) GetReferralsByStatus(ctx context.Context, status string) ([]model.Referral, error) {
	query := `
		SELECT id, referrer_id, referee_id, event_id, registration_id, status, created_at
		FROM referrals
		WHERE status = $1
		ORDER BY created_at ASC
	`

	rows, err := r.db.QueryContext(ctx, query, status)
	if err != nil {
		return nil, fmt.Errorf("failed to get referrals: %w", err)
	}
	defer rows.Close()

	var refs []model.Referral
	for rows.Next() {
		var ref model.Referral
		if err := rows.Scan(
			&ref.ID, &ref.ReferrerID, &ref.RefereeID, &ref.EventID, &ref.RegistrationID, &ref.Status, &ref.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan referral: %w", err)
		}
		refs = append(refs, ref)
	}
	return refs, rows.Err()
}

func (r *repository) PromoteReferral(ctx context.Context, id string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE referrals
		SET status = 'completed'
		WHERE id = $1 AND status = 'pending'
	`, id)
	if err != nil {
		return false, fmt.Errorf("failed to promote referral: %w", err)
	}
	return affected(res)
}

// GrantReferralRewardTx claims the (referrer, event) reward slot through the
// partial unique index on granted rewards. Losing the insert means another run
// already granted it, reported as false with no error.
func (r *repository) GrantReferralRewardTx(ctx context.Context, grant RewardGrant) (bool, error) {
	err := r.withTx(ctx, func(tx *sql.Tx) error {
		var rewardID string
		err := tx.QueryRowContext(ctx, `
			INSERT INTO referral_rewards (id, referrer_id, event_id, referral_count, reward_status, granted_at)
			VALUES ($1, $2, $3, $4, 'granted', $5)
			ON CONFLICT (referrer_id, event_id) WHERE reward_status = 'granted' DO NOTHING
			RETURNING id
		`, grant.ID, grant.ReferrerID, grant.EventID, grant.ReferralCount, grant.GrantedAt).Scan(&rewardID)
		if errors.Is(err, sql.ErrNoRows) {
			return errAlreadyGranted
		}
		if err != nil {
			return fmt.Errorf("failed to insert referral reward: %w", err)
		}

		var (
			regID  string
			status string
		)
		err = tx.QueryRowContext(ctx, `
			SELECT id, payment_status
			FROM registrations
			WHERE user_id = $1 AND event_id = $2
			FOR UPDATE
		`, grant.ReferrerID, grant.EventID).Scan(&regID, &status)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO registrations (id, user_id, event_id, payment_status, amount_paid)
				VALUES ($1, $2, $3, 'free', 0)
			`, grant.RegistrationID, grant.ReferrerID, grant.EventID); err != nil {
				return fmt.Errorf("failed to insert free registration: %w", err)
			}
		case err != nil:
			return fmt.Errorf("failed to select referrer registration: %w", err)
		case status == model.PaymentPending || status == model.PaymentFailed || status == model.PaymentRefunded:
			if _, err := tx.ExecContext(ctx, `
				UPDATE registrations
				SET payment_status = 'free', amount_paid = 0
				WHERE id = $1
			`, regID); err != nil {
				return fmt.Errorf("failed to convert registration to free: %w", err)
			}
		}

		if _, err := tx.ExecContext(ctx, `
			UPDATE referrals
			SET status = 'rewarded'
			WHERE referrer_id = $1 AND event_id = $2 AND status = 'completed'
		`, grant.ReferrerID, grant.EventID); err != nil {
			return fmt.Errorf("failed to mark referrals rewarded: %w", err)
		}
		return nil
	})
	if errors.Is(err, errAlreadyGranted) {
		r.log.Debug().Str("referrer_id", grant.ReferrerID).Str("event_id", grant.EventID).Msg("referral reward already granted")
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
