package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"eventhub/internal/model"
)

func (r *repository) EnqueueNotifications(ctx context.Context, items []model.NotificationQueueItem) error {
	if len(items) == 0 {
		return nil
	}

	return r.withTx(ctx, func(tx *sql.Tx) error {
		for _, it := range items {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO notifications_queue
					(id, user_id, type, channel, subject, body, action_url, level, status, priority, scheduled_for, retry_count)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
			`,
				it.ID, it.UserID, it.Type, it.Channel, it.Subject, it.Body, nullString(it.ActionURL), it.Level,
				it.Status, it.Priority, it.ScheduledFor, it.RetryCount,
			); err != nil {
				return fmt.Errorf("failed to enqueue notification: %w", err)
			}
		}
		return nil
	})
}

func (r *repository) GetDueNotifications(ctx context.Context, now time.Time, maxRetries, limit int) ([]model.NotificationQueueItem, error) {
	query := `
		SELECT id, user_id, type, channel, COALESCE(subject, ''), body, COALESCE(action_url, ''), level,
		       status, priority, scheduled_for, sent_at, retry_count, COALESCE(error_message, ''), created_at
		FROM notifications_queue
		WHERE status = 'pending' AND scheduled_for <= $1 AND retry_count < $2
		ORDER BY
			CASE priority WHEN 'urgent' THEN 4 WHEN 'high' THEN 3 WHEN 'medium' THEN 2 ELSE 1 END DESC,
			scheduled_for ASC
		LIMIT $3
	`

	rows, err := r.db.QueryContext(ctx, query, now, maxRetries, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get due notifications: %w", err)
	}
	defer rows.Close()

	var items []model.NotificationQueueItem
	for rows.Next() {
		var (
			it     model.NotificationQueueItem
			sentAt sql.NullTime
		)
		if err := rows.Scan(
			&it.ID, &it.UserID, &it.Type, &it.Channel, &it.Subject, &it.Body, &it.ActionURL, &it.Level,
			&it.Status, &it.Priority, &it.ScheduledFor, &sentAt, &it.RetryCount, &it.ErrorMessage, &it.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan notification: %w", err)
		}
		it.SentAt = nullTime(sentAt)
		items = append(items, it)
	}
	return items, rows.Err()
}

func (r *repository) MarkNotificationSent(ctx context.Context, id string, at time.Time) error {
	if _, err := r.db.ExecContext(ctx, `
		UPDATE notifications_queue
		SET status = 'sent', sent_at = $2, error_message = NULL
		WHERE id = $1
	`, id, at); err != nil {
		return fmt.Errorf("failed to mark notification sent: %w", err)
	}
	return nil
}

func (r *repository) MarkNotificationCancelled(ctx context.Context, id, reason string) error {
	if _, err := r.db.ExecContext(ctx, `
		UPDATE notifications_queue
		SET status = 'cancelled', error_message = $2
		WHERE id = $1
	`, id, reason); err != nil {
		return fmt.Errorf("failed to cancel notification: %w", err)
	}
	return nil
}

func (r *repository) RescheduleNotification(ctx context.Context, n NotificationRetry) error {
	if _, err := r.db.ExecContext(ctx, `
		UPDATE notifications_queue
		SET status = $2, retry_count = $3, error_message = $4, scheduled_for = $5
		WHERE id = $1
	`, n.ID, n.Status, n.RetryCount, n.ErrorMessage, n.ScheduledFor); err != nil {
		return fmt.Errorf("failed to reschedule notification: %w", err)
	}
	return nil
}

// GetNotificationPreference returns nil, nil when the user never stored
// preferences; callers apply the defaults.
func (r *repository) GetNotificationPreference(ctx context.Context, userID string) (*model.NotificationPreference, error) {
	var p model.NotificationPreference
	err := r.db.QueryRowContext(ctx, `
		SELECT user_id, email_enabled, sms_enabled, in_app_enabled, marketing_enabled, updated_at
		FROM notification_preferences
		WHERE user_id = $1
	`, userID).Scan(&p.UserID, &p.EmailEnabled, &p.SMSEnabled, &p.InAppEnabled, &p.MarketingEnabled, &p.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get notification preferences: %w", err)
	}
	return &p, nil
}

func (r *repository) UpsertNotificationPreference(ctx context.Context, p *model.NotificationPreference) error {
	if err := r.db.QueryRowContext(ctx, `
		INSERT INTO notification_preferences (user_id, email_enabled, sms_enabled, in_app_enabled, marketing_enabled, updated_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
		ON CONFLICT (user_id) DO UPDATE
		SET email_enabled = EXCLUDED.email_enabled,
		    sms_enabled = EXCLUDED.sms_enabled,
		    in_app_enabled = EXCLUDED.in_app_enabled,
		    marketing_enabled = EXCLUDED.marketing_enabled,
		    updated_at = NOW()
		RETURNING updated_at
	`, p.UserID, p.EmailEnabled, p.SMSEnabled, p.InAppEnabled, p.MarketingEnabled).Scan(&p.UpdatedAt); err != nil {
		return fmt.Errorf("failed to upsert notification preferences: %w", err)
	}
	return nil
}

func (r *repository) CreateInAppNotification(ctx context.Context, n *model.InAppNotification) error {
	if err := r.db.QueryRowContext(ctx, `
		INSERT INTO in_app_notifications (id, user_id, title, message, type, action_url)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at
	`, n.ID, n.UserID, n.Title, n.Message, n.Type, nullString(n.ActionURL)).Scan(&n.CreatedAt); err != nil {
		return fmt.Errorf("failed to create in-app notification: %w", err)
	}
	return nil
}

func (r *repository) GetInAppNotifications(ctx context.Context, userID string, limit int) ([]model.InAppNotification, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, user_id, title, message, type, COALESCE(action_url, ''), read_at, created_at
		FROM in_app_notifications
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get in-app notifications: %w", err)
	}
	defer rows.Close()

	var out []model.InAppNotification
	for rows.Next() {
		var (
			n      model.InAppNotification
			readAt sql.NullTime
		)
		if err := rows.Scan(&n.ID, &n.UserID, &n.Title, &n.Message, &n.Type, &n.ActionURL, &readAt, &n.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan in-app notification: %w", err)
		}
		n.ReadAt = nullTime(readAt)
		out = append(out, n)
	}
	return out, rows.Err()
}

func (r *repository) MarkInAppNotificationRead(ctx context.Context, id, userID string, at time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE in_app_notifications
		SET read_at = COALESCE(read_at, $3)
		WHERE id = $1 AND user_id = $2
	`, id, userID, at)
	if err != nil {
		return false, fmt.Errorf("failed to mark notification read: %w", err)
	}
	return affected(res)
}

func (r *repository) CreateWebhookLog(ctx context.Context, l *model.WebhookLog) error {
	if err := r.db.QueryRowContext(ctx, `
		INSERT INTO webhook_logs (id, source, event_type, payload, status)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at
	`, l.ID, l.Source, l.EventType, l.Payload, l.Status).Scan(&l.CreatedAt); err != nil {
		return fmt.Errorf("failed to log webhook: %w", err)
	}
	return nil
}

func (r *repository) UpdateWebhookLog(ctx context.Context, id, status, errMsg string, at time.Time) error {
	if _, err := r.db.ExecContext(ctx, `
		UPDATE webhook_logs
		SET status = $2, error_message = $3, processed_at = $4
		WHERE id = $1
	`, id, status, nullString(errMsg), at); err != nil {
		return fmt.Errorf("failed to update webhook log: %w", err)
	}
	return nil
}
