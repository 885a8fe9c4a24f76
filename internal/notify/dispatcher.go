package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"eventhub/internal/model"
	"eventhub/internal/repo"
)

const disabledByPreference = "User preferences disabled for this notification type"

var (
	errNoEmail = errors.New("user has no email address")
	errNoPhone = errors.New("user has no phone number")
)

type EmailSender interface {
	SendEmail(ctx context.Context, to, subject, body string) error
}

type SMSSender interface {
	SendSMS(ctx context.Context, to, body string) error
}

type DispatchStore interface {
	GetDueNotifications(ctx context.Context, now time.Time, maxRetries, limit int) ([]model.NotificationQueueItem, error)
	MarkNotificationSent(ctx context.Context, id string, at time.Time) error
	MarkNotificationCancelled(ctx context.Context, id, reason string) error
	RescheduleNotification(ctx context.Context, r repo.NotificationRetry) error
	GetNotificationPreference(ctx context.Context, userID string) (*model.NotificationPreference, error)
	CreateInAppNotification(ctx context.Context, n *model.InAppNotification) error
	GetProfileByID(ctx context.Context, id string) (*model.Profile, error)
}

type Stats struct {
	Email     int `json:"email"`
	SMS       int `json:"sms"`
	InApp     int `json:"in_app"`
	Cancelled int `json:"cancelled"`
	Failed    int `json:"failed"`
}

type Result struct {
	Processed Stats `json:"processed"`
	Total     int   `json:"total"`
}

type Dispatcher struct {
	store  DispatchStore
	email  EmailSender
	sms    SMSSender
	kicker Kicker
	log    *zerolog.Logger
	now    func() time.Time
}

func NewDispatcher(store DispatchStore, email EmailSender, sms SMSSender, kicker Kicker, log *zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		store:  store,
		email:  email,
		sms:    sms,
		kicker: kicker,
		log:    log,
		now:    time.Now,
	}
}

// Run drains one batch of due queue entries. Only the batch selection can
// fail the run; per-entry errors end up in Stats.Failed.
func (d *Dispatcher) Run(ctx context.Context) (Result, error) {
	items, err := d.store.GetDueNotifications(ctx, d.now(), MaxRetries, BatchSize)
	if err != nil {
		return Result{}, fmt.Errorf("load due notifications: %w", err)
	}

	res := Result{Total: len(items)}
	for _, it := range items {
		if ctx.Err() != nil {
			return res, ctx.Err()
		}
		d.dispatch(ctx, it, &res.Processed)
	}

	if res.Processed.Failed > 0 && d.kicker != nil {
		if err := d.kicker.Kick(ctx, RetryBackoff); err != nil {
			d.log.Warn().Err(err).Msg("failed to schedule notification retry wake-up")
		}
	}

	d.log.Info().
		Int("total", res.Total).
		Int("email", res.Processed.Email).
		Int("sms", res.Processed.SMS).
		Int("in_app", res.Processed.InApp).
		Int("cancelled", res.Processed.Cancelled).
		Int("failed", res.Processed.Failed).
		Msg("notification batch dispatched")

	return res, nil
}

func (d *Dispatcher) dispatch(ctx context.Context, it model.NotificationQueueItem, stats *Stats) {
	delivered, err := d.deliver(ctx, it)
	switch {
	case err != nil:
		d.retry(ctx, it, err)
		stats.Failed++
	case !delivered:
		if err := d.store.MarkNotificationCancelled(ctx, it.ID, disabledByPreference); err != nil {
			d.log.Error().Err(err).Str("notification_id", it.ID).Msg("failed to cancel notification")
		}
		stats.Cancelled++
	default:
		switch it.Type {
		case model.NotificationEmail:
			stats.Email++
		case model.NotificationSMS:
			stats.SMS++
		case model.NotificationInApp:
			stats.InApp++
		}
	}
}

// deliver returns false with no error when the user's preferences rule the
// channel out.
func (d *Dispatcher) deliver(ctx context.Context, it model.NotificationQueueItem) (bool, error) {
	switch it.Type {
	case model.NotificationEmail:
		pref, err := d.preference(ctx, it.UserID)
		if err != nil {
			return false, err
		}
		if !pref.EmailEnabled {
			return false, nil
		}
		profile, err := d.store.GetProfileByID(ctx, it.UserID)
		if err != nil {
			return false, fmt.Errorf("load recipient: %w", err)
		}
		if profile.Email == "" {
			return false, errNoEmail
		}
		if err := d.email.SendEmail(ctx, profile.Email, it.Subject, it.Body); err != nil {
			return false, fmt.Errorf("email sending failed: %w", err)
		}

	case model.NotificationSMS:
		pref, err := d.preference(ctx, it.UserID)
		if err != nil {
			return false, err
		}
		if !pref.SMSEnabled {
			return false, nil
		}
		profile, err := d.store.GetProfileByID(ctx, it.UserID)
		if err != nil {
			return false, fmt.Errorf("load recipient: %w", err)
		}
		if profile.Phone == "" {
			return false, errNoPhone
		}
		if err := d.sms.SendSMS(ctx, profile.Phone, it.Body); err != nil {
			return false, fmt.Errorf("sms sending failed: %w", err)
		}

	case model.NotificationInApp:
		title := it.Subject
		if title == "" {
			title = "Notification"
		}
		if err := d.store.CreateInAppNotification(ctx, &model.InAppNotification{
			ID:        uuid.NewString(),
			UserID:    it.UserID,
			Title:     title,
			Message:   it.Body,
			Type:      orDefault(it.Level, model.LevelInfo),
			ActionURL: it.ActionURL,
		}); err != nil {
			return false, err
		}

	default:
		return false, nil
	}

	if err := d.store.MarkNotificationSent(ctx, it.ID, d.now()); err != nil {
		return false, err
	}
	return true, nil
}

func (d *Dispatcher) preference(ctx context.Context, userID string) (model.NotificationPreference, error) {
	pref, err := d.store.GetNotificationPreference(ctx, userID)
	if err != nil {
		return model.NotificationPreference{}, fmt.Errorf("load preferences: %w", err)
	}
	if pref == nil {
		return model.DefaultNotificationPreference(userID), nil
	}
	return *pref, nil
}

func (d *Dispatcher) retry(ctx context.Context, it model.NotificationQueueItem, cause error) {
	next := it.RetryCount + 1
	status := model.QueuePending
	if next >= MaxRetries {
		status = model.QueueFailed
	}

	d.log.Warn().
		Err(cause).
		Str("notification_id", it.ID).
		Str("type", it.Type).
		Int("retry_count", next).
		Str("status", status).
		Msg("notification delivery failed")

	if err := d.store.RescheduleNotification(ctx, repo.NotificationRetry{
		ID:           it.ID,
		RetryCount:   next,
		Status:       status,
		ErrorMessage: cause.Error(),
		ScheduledFor: d.now().Add(RetryBackoff),
	}); err != nil {
		d.log.Error().Err(err).Str("notification_id", it.ID).Msg("failed to reschedule notification")
	}
}
