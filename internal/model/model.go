package model

import "time"

const (
	CategoryTechnical  = "technical"
	CategorySoftSkills = "soft_skills"
)

const (
	PaymentPending   = "pending"
	PaymentCompleted = "completed"
	PaymentFailed    = "failed"
	PaymentRefunded  = "refunded"
	PaymentFree      = "free"
)

const (
	ReferralPending   = "pending"
	ReferralCompleted = "completed"
	ReferralRewarded  = "rewarded"
)

const (
	RewardPending = "pending"
	RewardGranted = "granted"
)

const (
	TransactionInitiated = "initiated"
	TransactionSuccess   = "success"
	TransactionFailed    = "failed"
	TransactionRefunded  = "refunded"
)

const (
	NotificationEmail = "email"
	NotificationSMS   = "sms"
	NotificationInApp = "in_app"
)

const (
	QueuePending   = "pending"
	QueueSent      = "sent"
	QueueFailed    = "failed"
	QueueCancelled = "cancelled"
)

const (
	PriorityLow    = "low"
	PriorityMedium = "medium"
	PriorityHigh   = "high"
	PriorityUrgent = "urgent"
)

const (
	LevelInfo    = "info"
	LevelSuccess = "success"
	LevelWarning = "warning"
	LevelError   = "error"
)

const (
	WebhookReceived  = "received"
	WebhookProcessed = "processed"
	WebhookFailed    = "failed"
)

type Profile struct {
	ID           string    `db:"id" json:"id"`
	Email        string    `db:"email" json:"email"`
	FullName     string    `db:"full_name" json:"full_name"`
	Phone        string    `db:"phone,omitempty" json:"phone,omitempty"`
	ReferralCode string    `db:"referral_code" json:"referral_code"`
	ReferredBy   string    `db:"referred_by,omitempty" json:"referred_by,omitempty"`
	IsAdmin      bool      `db:"is_admin" json:"is_admin"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}

type Event struct {
	ID              string    `db:"id" json:"id"`
	Title           string    `db:"title" json:"title"`
	Description     string    `db:"description" json:"description"`
	Category        string    `db:"category" json:"category"`
	Price           float64   `db:"price" json:"price"`
	StartDate       time.Time `db:"start_date" json:"start_date"`
	EndDate         time.Time `db:"end_date" json:"end_date"`
	Status          string    `db:"status" json:"status"`
	MaxParticipants *int      `db:"max_participants,omitempty" json:"max_participants,omitempty"`
	CreatedAt       time.Time `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time `db:"updated_at" json:"updated_at"`
}

type Registration struct {
	ID                 string     `db:"id" json:"id"`
	UserID             string     `db:"user_id" json:"user_id"`
	EventID            string     `db:"event_id" json:"event_id"`
	PaymentStatus      string     `db:"payment_status" json:"payment_status"`
	PaymentID          string     `db:"payment_id,omitempty" json:"payment_id,omitempty"`
	AmountPaid         float64    `db:"amount_paid" json:"amount_paid"`
	CouponCode         string     `db:"coupon_code,omitempty" json:"coupon_code,omitempty"`
	RegisteredAt       time.Time  `db:"registered_at" json:"registered_at"`
	PaymentCompletedAt *time.Time `db:"payment_completed_at,omitempty" json:"payment_completed_at,omitempty"`
}

type Referral struct {
	ID             string    `db:"id" json:"id"`
	ReferrerID     string    `db:"referrer_id" json:"referrer_id"`
	RefereeID      string    `db:"referee_id" json:"referee_id"`
	EventID        string    `db:"event_id" json:"event_id"`
	RegistrationID string    `db:"registration_id" json:"registration_id"`
	Status         string    `db:"status" json:"status"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
}

type ReferralReward struct {
	ID            string     `db:"id" json:"id"`
	ReferrerID    string     `db:"referrer_id" json:"referrer_id"`
	EventID       string     `db:"event_id" json:"event_id"`
	ReferralCount int        `db:"referral_count" json:"referral_count"`
	RewardStatus  string     `db:"reward_status" json:"reward_status"`
	GrantedAt     *time.Time `db:"granted_at,omitempty" json:"granted_at,omitempty"`
}

type PaymentTransaction struct {
	ID               string     `db:"id" json:"id"`
	UserID           string     `db:"user_id" json:"user_id"`
	EventID          string     `db:"event_id" json:"event_id"`
	RegistrationID   string     `db:"registration_id,omitempty" json:"registration_id,omitempty"`
	Amount           float64    `db:"amount" json:"amount"`
	Currency         string     `db:"currency" json:"currency"`
	GatewayOrderID   string     `db:"razorpay_order_id" json:"gateway_order_id"`
	GatewayPaymentID string     `db:"razorpay_payment_id,omitempty" json:"gateway_payment_id,omitempty"`
	Status           string     `db:"status" json:"status"`
	PaymentMethod    string     `db:"payment_method,omitempty" json:"payment_method,omitempty"`
	ErrorCode        string     `db:"error_code,omitempty" json:"error_code,omitempty"`
	ErrorMessage     string     `db:"error_message,omitempty" json:"error_message,omitempty"`
	CreatedAt        time.Time  `db:"created_at" json:"created_at"`
	CompletedAt      *time.Time `db:"completed_at,omitempty" json:"completed_at,omitempty"`
}

type NotificationQueueItem struct {
	ID           string     `db:"id" json:"id"`
	UserID       string     `db:"user_id" json:"user_id"`
	Type         string     `db:"type" json:"type"`
	Channel      string     `db:"channel" json:"channel"`
	Subject      string     `db:"subject" json:"subject"`
	Body         string     `db:"body" json:"body"`
	ActionURL    string     `db:"action_url,omitempty" json:"action_url,omitempty"`
	Level        string     `db:"level" json:"level"`
	Status       string     `db:"status" json:"status"`
	Priority     string     `db:"priority" json:"priority"`
	ScheduledFor time.Time  `db:"scheduled_for" json:"scheduled_for"`
	SentAt       *time.Time `db:"sent_at,omitempty" json:"sent_at,omitempty"`
	RetryCount   int        `db:"retry_count" json:"retry_count"`
	ErrorMessage string     `db:"error_message,omitempty" json:"error_message,omitempty"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
}

type NotificationPreference struct {
	UserID           string    `db:"user_id" json:"user_id"`
	EmailEnabled     bool      `db:"email_enabled" json:"email_enabled"`
	SMSEnabled       bool      `db:"sms_enabled" json:"sms_enabled"`
	InAppEnabled     bool      `db:"in_app_enabled" json:"in_app_enabled"`
	MarketingEnabled bool      `db:"marketing_enabled" json:"marketing_enabled"`
	UpdatedAt        time.Time `db:"updated_at" json:"updated_at"`
}

// DefaultNotificationPreference applies when a user never stored preferences:
// email and in-app on, sms and marketing off.
func DefaultNotificationPreference(userID string) NotificationPreference {
	return NotificationPreference{
		UserID:       userID,
		EmailEnabled: true,
		InAppEnabled: true,
	}
}

type InAppNotification struct {
	ID        string     `db:"id" json:"id"`
	UserID    string     `db:"user_id" json:"user_id"`
	Title     string     `db:"title" json:"title"`
	Message   string     `db:"message" json:"message"`
	Type      string     `db:"type" json:"type"`
	ActionURL string     `db:"action_url,omitempty" json:"action_url,omitempty"`
	ReadAt    *time.Time `db:"read_at,omitempty" json:"read_at,omitempty"`
	CreatedAt time.Time  `db:"created_at" json:"created_at"`
}

type WebhookLog struct {
	ID           string     `db:"id" json:"id"`
	Source       string     `db:"source" json:"source"`
	EventType    string     `db:"event_type" json:"event_type"`
	Payload      string     `db:"payload" json:"payload"`
	Status       string     `db:"status" json:"status"`
	ErrorMessage string     `db:"error_message,omitempty" json:"error_message,omitempty"`
	ProcessedAt  *time.Time `db:"processed_at,omitempty" json:"processed_at,omitempty"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
}
