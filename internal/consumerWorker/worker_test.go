package consumerWorker

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"eventhub/internal/dto"
	"eventhub/internal/model"
	"eventhub/internal/notify"
	"eventhub/internal/repo/repotest"
)

type fakeJobs struct {
	afterPayment  int
	notifications int
	err           error
}

func (f *fakeJobs) AfterPayment(context.Context) error {
	f.afterPayment++
	return f.err
}

func (f *fakeJobs) SendNotifications(context.Context) (notify.Result, error) {
	f.notifications++
	return notify.Result{}, f.err
}

func newReader(t *testing.T) (*Reader, *repotest.Store, *fakeJobs) {
	t.Helper()
	log := zerolog.Nop()
	store := repotest.New()
	jobs := &fakeJobs{}
	return NewReader(nil, store, jobs, notify.NewQueue(store, nil, &log), &log), store, jobs
}

func task(t *testing.T, msg dto.TaskMessage) []byte {
	t.Helper()
	b, err := json.Marshal(msg)
	require.NoError(t, err)
	return b
}

func seedRegistration(t *testing.T, store *repotest.Store, status string) model.Registration {
	t.Helper()
	userID := store.AddProfile(model.Profile{Email: "late@example.com"})
	eventID := store.AddEvent(model.Event{Title: "Distributed Systems", Category: model.CategoryTechnical, Price: 100})
	reg := model.Registration{ID: uuid.NewString(), UserID: userID, EventID: eventID, PaymentStatus: status}
	require.NoError(t, store.CreateRegistration(context.Background(), &reg))
	return reg
}

func TestHandle_ExpiresUnpaidRegistration(t *testing.T) {
	r, store, _ := newReader(t)
	reg := seedRegistration(t, store, model.PaymentPending)

	err := r.Handle(context.Background(), task(t, dto.TaskMessage{
		Kind:           dto.TaskExpireRegistration,
		RegistrationID: reg.ID,
		EventID:        reg.EventID,
	}))
	require.NoError(t, err)

	require.Equal(t, model.PaymentFailed, store.Registrations[reg.ID].PaymentStatus)
	require.Len(t, store.QueuedFor(reg.UserID), 2)
}

func TestHandle_PaidRegistrationIsNotExpired(t *testing.T) {
	r, store, _ := newReader(t)
	reg := seedRegistration(t, store, model.PaymentCompleted)

	err := r.Handle(context.Background(), task(t, dto.TaskMessage{
		Kind:           dto.TaskExpireRegistration,
		RegistrationID: reg.ID,
	}))
	require.NoError(t, err)

	require.Equal(t, model.PaymentCompleted, store.Registrations[reg.ID].PaymentStatus)
	require.Empty(t, store.QueuedFor(reg.UserID))
}

func TestHandle_UnknownRegistrationIsDropped(t *testing.T) {
	r, _, _ := newReader(t)

	err := r.Handle(context.Background(), task(t, dto.TaskMessage{
		Kind:           dto.TaskExpireRegistration,
		RegistrationID: uuid.NewString(),
	}))
	require.NoError(t, err)
}

func TestHandle_RunsJobs(t *testing.T) {
	r, _, jobs := newReader(t)

	require.NoError(t, r.Handle(context.Background(), task(t, dto.TaskMessage{Kind: dto.TaskPaymentCompleted, RegistrationID: "r1"})))
	require.NoError(t, r.Handle(context.Background(), task(t, dto.TaskMessage{Kind: dto.TaskNotificationsDue})))
	require.Equal(t, 1, jobs.afterPayment)
	require.Equal(t, 1, jobs.notifications)
}

func TestHandle_JobErrorRequeues(t *testing.T) {
	r, _, jobs := newReader(t)
	jobs.err = errors.New("db down")

	err := r.Handle(context.Background(), task(t, dto.TaskMessage{Kind: dto.TaskNotificationsDue}))
	require.Error(t, err)
}

func TestHandle_BadMessagesAreDropped(t *testing.T) {
	r, _, jobs := newReader(t)

	require.NoError(t, r.Handle(context.Background(), []byte("not json")))
	require.NoError(t, r.Handle(context.Background(), task(t, dto.TaskMessage{Kind: "something.else"})))
	require.Zero(t, jobs.afterPayment)
	require.Zero(t, jobs.notifications)
}
