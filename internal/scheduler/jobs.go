package scheduler

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"eventhub/internal/notify"
	"eventhub/internal/referral"
)

type ReferralRunner interface {
	Run(ctx context.Context) (referral.Result, error)
}

type NotificationRunner interface {
	Run(ctx context.Context) (notify.Result, error)
}

// Jobs is the single entry point for the batch routines. HTTP, cron and the
// queue consumer all go through it, so runs of one job never overlap inside
// a process.
type Jobs struct {
	referrals     ReferralRunner
	notifications NotificationRunner
	log           *zerolog.Logger

	referralMu     sync.Mutex
	notificationMu sync.Mutex
}

func NewJobs(referrals ReferralRunner, notifications NotificationRunner, log *zerolog.Logger) *Jobs {
	return &Jobs{referrals: referrals, notifications: notifications, log: log}
}

func (j *Jobs) ProcessReferrals(ctx context.Context) (referral.Result, error) {
	j.referralMu.Lock()
	defer j.referralMu.Unlock()
	return j.referrals.Run(ctx)
}

func (j *Jobs) SendNotifications(ctx context.Context) (notify.Result, error) {
	j.notificationMu.Lock()
	defer j.notificationMu.Unlock()
	return j.notifications.Run(ctx)
}

// AfterPayment runs the referral pass and then drains the notifications it
// produced.
func (j *Jobs) AfterPayment(ctx context.Context) error {
	if _, err := j.ProcessReferrals(ctx); err != nil {
		return err
	}
	_, err := j.SendNotifications(ctx)
	return err
}
