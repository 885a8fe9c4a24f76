package payment

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"eventhub/internal/model"
	"eventhub/internal/repo"
	"eventhub/internal/repo/repotest"
)

func TestOrderID(t *testing.T) {
	require.Equal(t, "order_3f2b8c1a9d4e5f", OrderID("3f2b8c1a-9d4e-5f60-a1b2-c3d4e5f6a7b8"))
	require.Len(t, OrderID(uuid.NewString()), len("order_")+14)
	require.Equal(t, "order_abc", OrderID("a-b-c"))
}

func TestCheckout(t *testing.T) {
	ctx := context.Background()
	store := repotest.New()
	owner := store.AddProfile(model.Profile{Email: "owner@example.com"})
	eventID := store.AddEvent(model.Event{Title: "Rust", Category: model.CategoryTechnical, Price: 1499})

	pending := &model.Registration{ID: uuid.NewString(), UserID: owner, EventID: eventID, PaymentStatus: model.PaymentPending}
	require.NoError(t, store.CreateRegistration(ctx, pending))

	t.Run("creates initiated transaction", func(t *testing.T) {
		txn, err := Checkout(ctx, store, owner, pending.ID, "INR")
		require.NoError(t, err)
		require.Equal(t, model.TransactionInitiated, txn.Status)
		require.Equal(t, 1499.0, txn.Amount)
		require.Equal(t, "INR", txn.Currency)
		require.Equal(t, pending.ID, txn.RegistrationID)
		require.Equal(t, OrderID(txn.ID), txn.GatewayOrderID)

		found, err := store.GetTransactionByOrderID(ctx, txn.GatewayOrderID)
		require.NoError(t, err)
		require.Equal(t, txn.ID, found.ID)
	})

	t.Run("other user", func(t *testing.T) {
		_, err := Checkout(ctx, store, uuid.NewString(), pending.ID, "INR")
		require.ErrorIs(t, err, ErrNotOwner)
	})

	t.Run("unknown registration", func(t *testing.T) {
		_, err := Checkout(ctx, store, owner, uuid.NewString(), "INR")
		require.ErrorIs(t, err, repo.ErrRegistrationNotFound)
	})

	t.Run("free registration", func(t *testing.T) {
		other := store.AddEvent(model.Event{Title: "Soft skills", Category: model.CategorySoftSkills})
		free := &model.Registration{ID: uuid.NewString(), UserID: owner, EventID: other, PaymentStatus: model.PaymentFree}
		require.NoError(t, store.CreateRegistration(ctx, free))

		_, err := Checkout(ctx, store, owner, free.ID, "INR")
		require.ErrorIs(t, err, ErrAlreadySettled)
	})
}
