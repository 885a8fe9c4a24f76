package consumerWorker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"eventhub/internal/dto"
	"eventhub/internal/model"
	"eventhub/internal/notify"
	"eventhub/internal/repo"
)

type Consumer interface {
	Consume(handler func([]byte) error) error
}

type Store interface {
	ExpireRegistrationTx(ctx context.Context, id string) (bool, error)
	GetRegistrationByID(ctx context.Context, id string) (*model.Registration, error)
	GetEventByID(ctx context.Context, id string) (*model.Event, error)
}

type Jobs interface {
	AfterPayment(ctx context.Context) error
	SendNotifications(ctx context.Context) (notify.Result, error)
}

type Notifier interface {
	Enqueue(ctx context.Context, msgs ...notify.Message) error
}

type Reader struct {
	consumer Consumer
	store    Store
	jobs     Jobs
	notifier Notifier
	log      *zerolog.Logger
	done     chan struct{}
	cancel   context.CancelFunc
}

func NewReader(consumer Consumer, store Store, jobs Jobs, notifier Notifier, log *zerolog.Logger) *Reader {
	return &Reader{
		consumer: consumer,
		store:    store,
		jobs:     jobs,
		notifier: notifier,
		log:      log,
		done:     make(chan struct{}),
	}
}

func (r *Reader) Start(ctx context.Context) {
	cctx, cancel := context.WithCancel(ctx)
	r.cancel = cancel

	r.log.Info().Msg("RabbitMQ reader started")

	go func() {
		defer close(r.done)

		if err := r.consumer.Consume(func(body []byte) error {
			return r.Handle(cctx, body)
		}); err != nil {
			r.log.Error().Err(err).Msg("failed to start consuming")
			return
		}

		<-cctx.Done()
		r.log.Info().Msg("RabbitMQ reader stopped by context")
	}()
}

func (r *Reader) Stop() {
	if r.cancel != nil {
		r.cancel()
		<-r.done
	}
}

// Handle decodes one task message and runs it. Undecodable messages are
// dropped rather than requeued.
func (r *Reader) Handle(ctx context.Context, body []byte) error {
	var msg dto.TaskMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		r.log.Error().Err(err).Str("body", string(body)).Msg("failed to unmarshal task message")
		return nil
	}

	switch msg.Kind {
	case dto.TaskExpireRegistration:
		return r.expire(ctx, msg)
	case dto.TaskPaymentCompleted:
		r.log.Debug().Str("registration_id", msg.RegistrationID).Msg("payment completed, running referral pass")
		return r.jobs.AfterPayment(ctx)
	case dto.TaskNotificationsDue:
		_, err := r.jobs.SendNotifications(ctx)
		return err
	default:
		r.log.Warn().Str("kind", msg.Kind).Msg("unknown task kind")
		return nil
	}
}

func (r *Reader) expire(ctx context.Context, msg dto.TaskMessage) error {
	expired, err := r.store.ExpireRegistrationTx(ctx, msg.RegistrationID)
	if errors.Is(err, repo.ErrRegistrationNotFound) {
		r.log.Warn().Str("registration_id", msg.RegistrationID).Msg("expiry for unknown registration")
		return nil
	}
	if err != nil {
		return fmt.Errorf("expire registration %s: %w", msg.RegistrationID, err)
	}
	if !expired {
		r.log.Info().Str("registration_id", msg.RegistrationID).Msg("registration already settled, nothing to expire")
		return nil
	}

	reg, err := r.store.GetRegistrationByID(ctx, msg.RegistrationID)
	if err != nil {
		r.log.Error().Err(err).Str("registration_id", msg.RegistrationID).Msg("failed to load expired registration")
		return nil
	}
	title := "your event"
	if event, err := r.store.GetEventByID(ctx, reg.EventID); err == nil {
		title = event.Title
	}

	r.log.Info().Str("registration_id", reg.ID).Str("event_id", reg.EventID).Msg("unpaid registration expired")

	if err := r.notifier.Enqueue(ctx,
		notify.Message{
			UserID:    reg.UserID,
			Type:      model.NotificationInApp,
			Subject:   "Registration Expired",
			Body:      fmt.Sprintf("Your registration for %s expired because payment was not received in time.", title),
			ActionURL: "/events/" + reg.EventID,
			Level:     model.LevelWarning,
		},
		notify.Message{
			UserID:  reg.UserID,
			Type:    model.NotificationEmail,
			Subject: "Registration expired - " + title,
			Body:    fmt.Sprintf("Hello!\n\nYour registration for %s was cancelled because the payment window closed. You can still complete the checkout from your dashboard.", title),
		},
	); err != nil {
		r.log.Warn().Err(err).Msg("failed to notify about expired registration")
	}
	return nil
}
