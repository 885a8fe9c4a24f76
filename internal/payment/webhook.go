package payment

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"eventhub/internal/model"
	"eventhub/internal/notify"
	"eventhub/internal/repo"
)

const (
	Source          = "razorpay"
	SignatureHeader = "X-Razorpay-Signature"

	EventCaptured   = "payment.captured"
	EventAuthorized = "payment.authorized"
	EventFailed     = "payment.failed"
)

var (
	ErrInvalidSignature    = errors.New("invalid signature")
	ErrMalformed           = errors.New("malformed webhook payload")
	ErrTransactionNotFound = errors.New("transaction not found")
)

// Webhook is the subset of the gateway callback body the service reads.
type Webhook struct {
	Event   string `json:"event"`
	Payload struct {
		Payment struct {
			Entity Entity `json:"entity"`
		} `json:"payment"`
	} `json:"payload"`
}

type Entity struct {
	ID               string `json:"id"`
	OrderID          string `json:"order_id"`
	Amount           int64  `json:"amount"`
	Currency         string `json:"currency"`
	Status           string `json:"status"`
	Method           string `json:"method"`
	ErrorCode        string `json:"error_code"`
	ErrorDescription string `json:"error_description"`
}

type WebhookStore interface {
	CreateWebhookLog(ctx context.Context, l *model.WebhookLog) error
	UpdateWebhookLog(ctx context.Context, id, status, errMsg string, at time.Time) error
	GetTransactionByOrderID(ctx context.Context, orderID string) (*model.PaymentTransaction, error)
	CompletePaymentTx(ctx context.Context, c repo.PaymentCapture) (repo.PaymentChange, error)
	FailPaymentTx(ctx context.Context, f repo.PaymentFailure) (repo.PaymentChange, error)
	GetEventByID(ctx context.Context, id string) (*model.Event, error)
}

type Notifier interface {
	Enqueue(ctx context.Context, msgs ...notify.Message) error
}

// Trigger is told about every registration that just became paid so the
// referral pass can run without waiting for its schedule.
type Trigger interface {
	PaymentCompleted(ctx context.Context, registrationID string) error
}

type Outcome string

const (
	OutcomeProcessed Outcome = "processed"
	OutcomeReplayed  Outcome = "replayed"
	OutcomeIgnored   Outcome = "ignored"
)

type Result struct {
	Event   string  `json:"event"`
	Outcome Outcome `json:"outcome"`
}

type WebhookProcessor struct {
	store    WebhookStore
	notifier Notifier
	trigger  Trigger
	secret   []byte
	log      *zerolog.Logger
	now      func() time.Time
}

func NewWebhookProcessor(store WebhookStore, notifier Notifier, trigger Trigger, secret string, log *zerolog.Logger) *WebhookProcessor {
	return &WebhookProcessor{
		store:    store,
		notifier: notifier,
		trigger:  trigger,
		secret:   []byte(secret),
		log:      log,
		now:      time.Now,
	}
}

// Sign returns the hex HMAC-SHA256 of body, as the gateway computes it.
func Sign(secret, body []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature never accepts anything when no secret is configured.
func VerifySignature(secret, body []byte, signature string) bool {
	if len(secret) == 0 {
		return false
	}
	got, err := hex.DecodeString(strings.TrimSpace(signature))
	if err != nil || len(got) == 0 {
		return false
	}
	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	return hmac.Equal(got, mac.Sum(nil))
}

// Handle records the raw callback, verifies it and applies it. The returned
// error is one of the package sentinels or an internal failure.
func (p *WebhookProcessor) Handle(ctx context.Context, body []byte, signature string) (Result, error) {
	var hook Webhook
	parseErr := json.Unmarshal(body, &hook)

	entry := &model.WebhookLog{
		ID:        uuid.NewString(),
		Source:    Source,
		EventType: hook.Event,
		Payload:   string(body),
		Status:    model.WebhookReceived,
	}
	if entry.EventType == "" {
		entry.EventType = "unknown"
	}
	if err := p.store.CreateWebhookLog(ctx, entry); err != nil {
		return Result{}, fmt.Errorf("log webhook: %w", err)
	}

	if !VerifySignature(p.secret, body, signature) {
		p.finish(ctx, entry.ID, model.WebhookFailed, ErrInvalidSignature.Error())
		return Result{}, ErrInvalidSignature
	}
	if parseErr != nil || hook.Event == "" {
		p.finish(ctx, entry.ID, model.WebhookFailed, ErrMalformed.Error())
		return Result{}, ErrMalformed
	}

	res := Result{Event: hook.Event}
	entity := hook.Payload.Payment.Entity

	switch hook.Event {
	case EventCaptured, EventAuthorized, EventFailed:
	default:
		p.log.Info().Str("event", hook.Event).Msg("webhook event ignored")
		res.Outcome = OutcomeIgnored
		return res, nil
	}

	if entity.OrderID == "" {
		p.finish(ctx, entry.ID, model.WebhookFailed, ErrMalformed.Error())
		return res, ErrMalformed
	}

	txn, err := p.store.GetTransactionByOrderID(ctx, entity.OrderID)
	if errors.Is(err, repo.ErrTransactionNotFound) {
		p.log.Warn().Str("order_id", entity.OrderID).Msg("webhook for unknown transaction")
		p.finish(ctx, entry.ID, model.WebhookFailed, ErrTransactionNotFound.Error())
		return res, ErrTransactionNotFound
	}
	if err != nil {
		p.finish(ctx, entry.ID, model.WebhookFailed, err.Error())
		return res, fmt.Errorf("load transaction: %w", err)
	}

	var changed bool
	if hook.Event == EventFailed {
		changed, err = p.fail(ctx, txn, entity)
	} else {
		changed, err = p.capture(ctx, txn, entity)
	}
	if err != nil {
		p.finish(ctx, entry.ID, model.WebhookFailed, err.Error())
		return res, err
	}

	res.Outcome = OutcomeProcessed
	if !changed {
		res.Outcome = OutcomeReplayed
	}
	p.finish(ctx, entry.ID, model.WebhookProcessed, "")
	return res, nil
}

func (p *WebhookProcessor) capture(ctx context.Context, txn *model.PaymentTransaction, e Entity) (bool, error) {
	change, err := p.store.CompletePaymentTx(ctx, repo.PaymentCapture{
		TransactionID:  txn.ID,
		RegistrationID: txn.RegistrationID,
		PaymentID:      e.ID,
		Method:         e.Method,
		At:             p.now(),
	})
	if err != nil {
		return false, fmt.Errorf("complete payment: %w", err)
	}

	p.log.Info().
		Str("transaction_id", txn.ID).
		Str("registration_id", txn.RegistrationID).
		Bool("transaction_changed", change.TransactionChanged).
		Bool("registration_changed", change.RegistrationChanged).
		Msg("payment captured")

	if !change.RegistrationChanged {
		return change.TransactionChanged, nil
	}

	title := p.eventTitle(ctx, txn.EventID)
	p.enqueue(ctx,
		notify.Message{
			UserID:    txn.UserID,
			Type:      model.NotificationInApp,
			Subject:   "Payment Successful",
			Body:      fmt.Sprintf("Your payment for %s was successful. You're all set!", title),
			ActionURL: "/events/" + txn.EventID,
			Level:     model.LevelSuccess,
		},
		notify.Message{
			UserID:   txn.UserID,
			Type:     model.NotificationEmail,
			Subject:  "Registration Confirmed - " + title,
			Body:     fmt.Sprintf("We received your payment of %.2f %s. Your registration for %s is confirmed.", txn.Amount, txn.Currency, title),
			Priority: model.PriorityHigh,
		},
	)

	if p.trigger != nil {
		if err := p.trigger.PaymentCompleted(ctx, txn.RegistrationID); err != nil {
			p.log.Warn().Err(err).Str("registration_id", txn.RegistrationID).Msg("failed to publish payment trigger")
		}
	}
	return true, nil
}

func (p *WebhookProcessor) fail(ctx context.Context, txn *model.PaymentTransaction, e Entity) (bool, error) {
	change, err := p.store.FailPaymentTx(ctx, repo.PaymentFailure{
		TransactionID:  txn.ID,
		RegistrationID: txn.RegistrationID,
		PaymentID:      e.ID,
		ErrorCode:      e.ErrorCode,
		ErrorMessage:   e.ErrorDescription,
	})
	if err != nil {
		return false, fmt.Errorf("fail payment: %w", err)
	}

	p.log.Info().
		Str("transaction_id", txn.ID).
		Str("error_code", e.ErrorCode).
		Bool("transaction_changed", change.TransactionChanged).
		Msg("payment failed")

	if !change.TransactionChanged {
		return false, nil
	}

	title := p.eventTitle(ctx, txn.EventID)
	reason := e.ErrorDescription
	if reason == "" {
		reason = "the payment was declined"
	}
	p.enqueue(ctx,
		notify.Message{
			UserID:    txn.UserID,
			Type:      model.NotificationInApp,
			Subject:   "Payment Failed",
			Body:      fmt.Sprintf("Your payment for %s could not be completed: %s.", title, reason),
			ActionURL: "/events/" + txn.EventID,
			Level:     model.LevelError,
		},
		notify.Message{
			UserID:   txn.UserID,
			Type:     model.NotificationEmail,
			Subject:  "Payment Failed - " + title,
			Body:     fmt.Sprintf("Your payment for %s could not be completed: %s. You can retry the checkout from your dashboard.", title, reason),
			Priority: model.PriorityHigh,
		},
	)
	return true, nil
}

func (p *WebhookProcessor) eventTitle(ctx context.Context, eventID string) string {
	event, err := p.store.GetEventByID(ctx, eventID)
	if err != nil {
		p.log.Warn().Err(err).Str("event_id", eventID).Msg("failed to load event for notification")
		return "your event"
	}
	return event.Title
}

// enqueue runs after the payment unit committed; a failure here only costs
// the notification.
func (p *WebhookProcessor) enqueue(ctx context.Context, msgs ...notify.Message) {
	if err := p.notifier.Enqueue(ctx, msgs...); err != nil {
		p.log.Error().Err(err).Msg("failed to enqueue payment notifications")
	}
}

func (p *WebhookProcessor) finish(ctx context.Context, id, status, msg string) {
	if err := p.store.UpdateWebhookLog(ctx, id, status, msg, p.now()); err != nil {
		p.log.Error().Err(err).Str("webhook_id", id).Msg("failed to update webhook log")
	}
}
