package payment

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"eventhub/internal/model"
	"eventhub/internal/notify"
	"eventhub/internal/repo/repotest"
)

const testSecret = "whsec_test"

type triggerFunc func(ctx context.Context, registrationID string) error

func (f triggerFunc) PaymentCompleted(ctx context.Context, registrationID string) error {
	return f(ctx, registrationID)
}

type webhookFixture struct {
	store     *repotest.Store
	processor *WebhookProcessor
	userID    string
	txn       model.PaymentTransaction
	reg       model.Registration
	triggered []string
}

func newWebhookFixture(t *testing.T) *webhookFixture {
	t.Helper()
	ctx := context.Background()
	log := zerolog.Nop()
	store := repotest.New()

	f := &webhookFixture{store: store}
	f.userID = store.AddProfile(model.Profile{Email: "payer@example.com"})
	eventID := store.AddEvent(model.Event{Title: "Kubernetes 101", Category: model.CategoryTechnical, Price: 999})

	f.reg = model.Registration{
		ID:            uuid.NewString(),
		UserID:        f.userID,
		EventID:       eventID,
		PaymentStatus: model.PaymentPending,
	}
	require.NoError(t, store.CreateRegistration(ctx, &f.reg))

	txn, err := Checkout(ctx, store, f.userID, f.reg.ID, "INR")
	require.NoError(t, err)
	f.txn = *txn

	trigger := triggerFunc(func(_ context.Context, id string) error {
		f.triggered = append(f.triggered, id)
		return nil
	})
	f.processor = NewWebhookProcessor(store, notify.NewQueue(store, nil, &log), trigger, testSecret, &log)
	return f
}

func body(t *testing.T, event string, e Entity) []byte {
	t.Helper()
	var hook Webhook
	hook.Event = event
	hook.Payload.Payment.Entity = e
	b, err := json.Marshal(hook)
	require.NoError(t, err)
	return b
}

func (f *webhookFixture) deliver(b []byte) (Result, error) {
	return f.processor.Handle(context.Background(), b, Sign([]byte(testSecret), b))
}

func (f *webhookFixture) onlyLog(t *testing.T) model.WebhookLog {
	t.Helper()
	require.Len(t, f.store.WebhookLogs, 1)
	for _, l := range f.store.WebhookLogs {
		return l
	}
	return model.WebhookLog{}
}

func TestVerifySignature(t *testing.T) {
	payload := []byte(`{"event":"payment.captured"}`)
	good := Sign([]byte(testSecret), payload)

	require.True(t, VerifySignature([]byte(testSecret), payload, good))
	require.False(t, VerifySignature([]byte(testSecret), payload, Sign([]byte("other"), payload)))
	require.False(t, VerifySignature([]byte(testSecret), append(payload, ' '), good))
	require.False(t, VerifySignature([]byte(testSecret), payload, "not-hex"))
	require.False(t, VerifySignature([]byte(testSecret), payload, ""))
	require.False(t, VerifySignature(nil, payload, good))
}

func TestHandle_InvalidSignatureChangesNothing(t *testing.T) {
	f := newWebhookFixture(t)
	b := body(t, EventCaptured, Entity{ID: "pay_1", OrderID: f.txn.GatewayOrderID})

	_, err := f.processor.Handle(context.Background(), b, Sign([]byte("forged"), b))
	require.ErrorIs(t, err, ErrInvalidSignature)

	l := f.onlyLog(t)
	require.Equal(t, model.WebhookFailed, l.Status)
	require.Equal(t, "invalid signature", l.ErrorMessage)
	require.Equal(t, string(b), l.Payload)

	require.Equal(t, model.PaymentPending, f.store.Registrations[f.reg.ID].PaymentStatus)
	require.Equal(t, model.TransactionInitiated, f.store.Transactions[f.txn.ID].Status)
	require.Empty(t, f.store.QueuedFor(f.userID))
}

func TestHandle_CapturedCompletesRegistration(t *testing.T) {
	f := newWebhookFixture(t)

	res, err := f.deliver(body(t, EventCaptured, Entity{ID: "pay_1", OrderID: f.txn.GatewayOrderID, Method: "upi"}))
	require.NoError(t, err)
	require.Equal(t, OutcomeProcessed, res.Outcome)

	txn := f.store.Transactions[f.txn.ID]
	require.Equal(t, model.TransactionSuccess, txn.Status)
	require.Equal(t, "pay_1", txn.GatewayPaymentID)
	require.Equal(t, "upi", txn.PaymentMethod)
	require.NotNil(t, txn.CompletedAt)

	reg := f.store.Registrations[f.reg.ID]
	require.Equal(t, model.PaymentCompleted, reg.PaymentStatus)
	require.Equal(t, "pay_1", reg.PaymentID)
	require.NotNil(t, reg.PaymentCompletedAt)

	queued := f.store.QueuedFor(f.userID)
	require.Len(t, queued, 2)
	types := map[string]bool{}
	for _, it := range queued {
		types[it.Type] = true
	}
	require.True(t, types[model.NotificationInApp])
	require.True(t, types[model.NotificationEmail])

	require.Equal(t, []string{f.reg.ID}, f.triggered)
	require.Equal(t, model.WebhookProcessed, f.onlyLog(t).Status)
}

func TestHandle_AuthorizedCountsAsSuccess(t *testing.T) {
	f := newWebhookFixture(t)

	_, err := f.deliver(body(t, EventAuthorized, Entity{ID: "pay_1", OrderID: f.txn.GatewayOrderID}))
	require.NoError(t, err)
	require.Equal(t, model.PaymentCompleted, f.store.Registrations[f.reg.ID].PaymentStatus)
}

func TestHandle_ReplayedCaptureIsHarmless(t *testing.T) {
	f := newWebhookFixture(t)
	b := body(t, EventCaptured, Entity{ID: "pay_1", OrderID: f.txn.GatewayOrderID})

	_, err := f.deliver(b)
	require.NoError(t, err)
	res, err := f.deliver(b)
	require.NoError(t, err)
	require.Equal(t, OutcomeReplayed, res.Outcome)

	require.Equal(t, model.PaymentCompleted, f.store.Registrations[f.reg.ID].PaymentStatus)
	require.Len(t, f.store.QueuedFor(f.userID), 2)
	require.Len(t, f.triggered, 1)
	require.Len(t, f.store.WebhookLogs, 2)
}

func TestHandle_UnknownOrder(t *testing.T) {
	f := newWebhookFixture(t)

	_, err := f.deliver(body(t, EventCaptured, Entity{ID: "pay_1", OrderID: "order_missing"}))
	require.ErrorIs(t, err, ErrTransactionNotFound)

	l := f.onlyLog(t)
	require.Equal(t, model.WebhookFailed, l.Status)
	require.Equal(t, "transaction not found", l.ErrorMessage)
}

func TestHandle_FailedPayment(t *testing.T) {
	f := newWebhookFixture(t)

	_, err := f.deliver(body(t, EventFailed, Entity{
		ID:               "pay_2",
		OrderID:          f.txn.GatewayOrderID,
		ErrorCode:        "BAD_REQUEST_ERROR",
		ErrorDescription: "card declined",
	}))
	require.NoError(t, err)

	txn := f.store.Transactions[f.txn.ID]
	require.Equal(t, model.TransactionFailed, txn.Status)
	require.Equal(t, "BAD_REQUEST_ERROR", txn.ErrorCode)
	require.Equal(t, "card declined", txn.ErrorMessage)
	require.Equal(t, model.PaymentFailed, f.store.Registrations[f.reg.ID].PaymentStatus)
	require.Len(t, f.store.QueuedFor(f.userID), 2)
	require.Empty(t, f.triggered)
}

func TestHandle_FailureAfterSuccessIsIgnored(t *testing.T) {
	f := newWebhookFixture(t)

	_, err := f.deliver(body(t, EventCaptured, Entity{ID: "pay_1", OrderID: f.txn.GatewayOrderID}))
	require.NoError(t, err)
	res, err := f.deliver(body(t, EventFailed, Entity{ID: "pay_1", OrderID: f.txn.GatewayOrderID, ErrorCode: "LATE"}))
	require.NoError(t, err)
	require.Equal(t, OutcomeReplayed, res.Outcome)

	require.Equal(t, model.TransactionSuccess, f.store.Transactions[f.txn.ID].Status)
	require.Equal(t, model.PaymentCompleted, f.store.Registrations[f.reg.ID].PaymentStatus)
	require.Len(t, f.store.QueuedFor(f.userID), 2)
}

func TestHandle_RetryAfterFailureSucceeds(t *testing.T) {
	f := newWebhookFixture(t)

	_, err := f.deliver(body(t, EventFailed, Entity{ID: "pay_1", OrderID: f.txn.GatewayOrderID}))
	require.NoError(t, err)
	_, err = f.deliver(body(t, EventCaptured, Entity{ID: "pay_2", OrderID: f.txn.GatewayOrderID}))
	require.NoError(t, err)

	require.Equal(t, model.TransactionSuccess, f.store.Transactions[f.txn.ID].Status)
	require.Equal(t, model.PaymentCompleted, f.store.Registrations[f.reg.ID].PaymentStatus)
}

func TestHandle_UnhandledEventIsAcknowledged(t *testing.T) {
	f := newWebhookFixture(t)

	res, err := f.deliver(body(t, "refund.created", Entity{OrderID: f.txn.GatewayOrderID}))
	require.NoError(t, err)
	require.Equal(t, OutcomeIgnored, res.Outcome)
	require.Equal(t, model.TransactionInitiated, f.store.Transactions[f.txn.ID].Status)
	require.Equal(t, model.WebhookReceived, f.onlyLog(t).Status)
}

func TestHandle_Malformed(t *testing.T) {
	f := newWebhookFixture(t)

	_, err := f.deliver([]byte(`{"event":`))
	require.ErrorIs(t, err, ErrMalformed)
	l := f.onlyLog(t)
	require.Equal(t, model.WebhookFailed, l.Status)
	require.Equal(t, "unknown", l.EventType)
}

func TestHandle_MissingOrderID(t *testing.T) {
	f := newWebhookFixture(t)

	_, err := f.deliver(body(t, EventCaptured, Entity{ID: "pay_1"}))
	require.ErrorIs(t, err, ErrMalformed)
}

func TestHandle_StoreFailureIsInternal(t *testing.T) {
	f := newWebhookFixture(t)
	f.store.Fail["CompletePaymentTx"] = errors.New("db down")

	_, err := f.deliver(body(t, EventCaptured, Entity{ID: "pay_1", OrderID: f.txn.GatewayOrderID}))
	require.Error(t, err)
	require.False(t, errors.Is(err, ErrTransactionNotFound))
	require.Equal(t, model.WebhookFailed, f.onlyLog(t).Status)
	require.Empty(t, f.store.QueuedFor(f.userID))
}

func TestHandle_LogFailureStopsProcessing(t *testing.T) {
	f := newWebhookFixture(t)
	f.store.Fail["CreateWebhookLog"] = errors.New("db down")

	_, err := f.deliver(body(t, EventCaptured, Entity{ID: "pay_1", OrderID: f.txn.GatewayOrderID}))
	require.Error(t, err)
	require.Equal(t, model.TransactionInitiated, f.store.Transactions[f.txn.ID].Status)
}
