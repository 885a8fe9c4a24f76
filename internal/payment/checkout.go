package payment

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"eventhub/internal/model"
)

var (
	ErrNotOwner       = errors.New("registration belongs to another user")
	ErrAlreadySettled = errors.New("registration does not need payment")
)

type CheckoutStore interface {
	GetRegistrationByID(ctx context.Context, id string) (*model.Registration, error)
	GetEventByID(ctx context.Context, id string) (*model.Event, error)
	CreatePaymentTransaction(ctx context.Context, t *model.PaymentTransaction) error
}

// OrderID derives the gateway order id from a transaction id.
func OrderID(transactionID string) string {
	compact := strings.ReplaceAll(transactionID, "-", "")
	if len(compact) > 14 {
		compact = compact[:14]
	}
	return "order_" + compact
}

// Checkout opens a payment attempt for a registration owned by userID.
func Checkout(ctx context.Context, store CheckoutStore, userID, registrationID, currency string) (*model.PaymentTransaction, error) {
	reg, err := store.GetRegistrationByID(ctx, registrationID)
	if err != nil {
		return nil, err
	}
	if reg.UserID != userID {
		return nil, ErrNotOwner
	}
	switch reg.PaymentStatus {
	case model.PaymentCompleted, model.PaymentFree, model.PaymentRefunded:
		return nil, ErrAlreadySettled
	}

	event, err := store.GetEventByID(ctx, reg.EventID)
	if err != nil {
		return nil, err
	}

	id := uuid.NewString()
	txn := &model.PaymentTransaction{
		ID:             id,
		UserID:         userID,
		EventID:        reg.EventID,
		RegistrationID: reg.ID,
		Amount:         event.Price,
		Currency:       currency,
		GatewayOrderID: OrderID(id),
		Status:         model.TransactionInitiated,
	}
	if err := store.CreatePaymentTransaction(ctx, txn); err != nil {
		return nil, fmt.Errorf("create transaction: %w", err)
	}
	return txn, nil
}
