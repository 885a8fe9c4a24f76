package service

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/wb-go/wbf/ginext"

	"eventhub/internal/auth"
	"eventhub/internal/dto"
	"eventhub/internal/notify"
	"eventhub/internal/payment"
	"eventhub/internal/referral"
	"eventhub/internal/repo"
)

type Service interface {
	CreateEvent(ctx *ginext.Context)
	GetEvent(ctx *ginext.Context)
	GetAllEvents(ctx *ginext.Context)

	Register(ctx *ginext.Context)
	Checkout(ctx *ginext.Context)
	GetPayments(ctx *ginext.Context)
	RazorpayWebhook(ctx *ginext.Context)

	GetNotifications(ctx *ginext.Context)
	MarkNotificationRead(ctx *ginext.Context)
	GetPreferences(ctx *ginext.Context)
	UpdatePreferences(ctx *ginext.Context)
	SendNotification(ctx *ginext.Context)

	ProcessReferrals(ctx *ginext.Context)
	SendNotifications(ctx *ginext.Context)
}

type Notifier interface {
	Enqueue(ctx context.Context, msgs ...notify.Message) error
}

type Jobs interface {
	ProcessReferrals(ctx context.Context) (referral.Result, error)
	SendNotifications(ctx context.Context) (notify.Result, error)
}

// Expirer schedules the expiry of a registration that is still unpaid after
// the payment window.
type Expirer interface {
	ExpireRegistration(ctx context.Context, registrationID, eventID string, after time.Duration) error
}

type Webhooks interface {
	Handle(ctx context.Context, body []byte, signature string) (payment.Result, error)
}

type Deps struct {
	Repo           repo.Repository
	Notifier       Notifier
	Jobs           Jobs
	Expirer        Expirer
	Webhooks       Webhooks
	Currency       string
	PaymentTimeout time.Duration
	Log            *zerolog.Logger
}

type service struct {
	repo           repo.Repository
	notifier       Notifier
	jobs           Jobs
	expirer        Expirer
	webhooks       Webhooks
	currency       string
	paymentTimeout time.Duration
	log            *zerolog.Logger
	now            func() time.Time
}

func NewService(d Deps) Service {
	return &service{
		repo:           d.Repo,
		notifier:       d.Notifier,
		jobs:           d.Jobs,
		expirer:        d.Expirer,
		webhooks:       d.Webhooks,
		currency:       d.Currency,
		paymentTimeout: d.PaymentTimeout,
		log:            d.Log,
		now:            time.Now,
	}
}

// caller returns the identity the auth middleware attached to the request,
// answering 401 itself when there is none.
func caller(ctx *ginext.Context) (auth.Identity, bool) {
	if v, ok := ctx.Get(auth.ContextKey); ok {
		if id, ok := v.(auth.Identity); ok && id.UserID != "" {
			return id, true
		}
	}
	dto.UnauthorizedError(ctx, "Authentication required")
	return auth.Identity{}, false
}

func (s *service) notify(ctx context.Context, msgs ...notify.Message) {
	if err := s.notifier.Enqueue(ctx, msgs...); err != nil {
		s.log.Warn().Err(err).Msg("failed to enqueue notifications")
	}
}
