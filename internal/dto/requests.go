package dto

import (
	"time"

	"eventhub/internal/model"
)

type CreateEventRequest struct {
	Title           string    `json:"title" validate:"required,min=3,max=255"`
	Description     string    `json:"description" validate:"max=5000"`
	Category        string    `json:"category" validate:"required,category"`
	Price           float64   `json:"price" validate:"gte=0"`
	StartDate       time.Time `json:"start_date" validate:"required,future"`
	EndDate         time.Time `json:"end_date" validate:"required,gtfield=StartDate"`
	MaxParticipants *int      `json:"max_participants,omitempty" validate:"omitempty,positive"`
}

type RegisterRequest struct {
	ReferralCode string `json:"referral_code,omitempty" validate:"omitempty,max=32"`
	CouponCode   string `json:"coupon_code,omitempty" validate:"omitempty,max=64"`
}

type UpdatePreferencesRequest struct {
	EmailEnabled     *bool `json:"email_enabled" validate:"required"`
	SMSEnabled       *bool `json:"sms_enabled" validate:"required"`
	InAppEnabled     *bool `json:"in_app_enabled" validate:"required"`
	MarketingEnabled *bool `json:"marketing_enabled" validate:"required"`
}

type SendNotificationRequest struct {
	UserID    string `json:"user_id" validate:"required,uuid"`
	Type      string `json:"type" validate:"required,channel"`
	Subject   string `json:"subject" validate:"max=255"`
	Body      string `json:"body" validate:"required,max=5000"`
	ActionURL string `json:"action_url,omitempty" validate:"omitempty,max=512"`
	Priority  string `json:"priority,omitempty" validate:"omitempty,priority"`
}

type EventResponse struct {
	model.Event
	RegisteredCount int                  `json:"registered_count"`
	AvailableSeats  *int                 `json:"available_seats,omitempty"`
	Registrations   []model.Registration `json:"registrations,omitempty"`
}

type RegistrationResponse struct {
	Registration model.Registration `json:"registration"`
	ReferredBy   string             `json:"referred_by,omitempty"`
}

type CheckoutResponse struct {
	TransactionID string  `json:"transaction_id"`
	OrderID       string  `json:"order_id"`
	Amount        float64 `json:"amount"`
	Currency      string  `json:"currency"`
}

const (
	TaskExpireRegistration = "registration.expire"
	TaskPaymentCompleted   = "payment.completed"
	TaskNotificationsDue   = "notification.enqueued"
)

// TaskMessage travels through the delayed exchange. Kind selects the handler;
// the remaining fields are set only where the kind needs them.
type TaskMessage struct {
	Kind           string    `json:"kind"`
	RegistrationID string    `json:"registration_id,omitempty"`
	EventID        string    `json:"event_id,omitempty"`
	ExpireAt       time.Time `json:"expire_at,omitempty"`
}
