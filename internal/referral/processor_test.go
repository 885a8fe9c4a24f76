package referral

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"eventhub/internal/model"
	"eventhub/internal/notify"
	"eventhub/internal/repo/repotest"
)

type fixture struct {
	store     *repotest.Store
	processor *Processor
	referrer  string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	log := zerolog.Nop()
	store := repotest.New()
	queue := notify.NewQueue(store, nil, &log)
	return &fixture{
		store:     store,
		processor: NewProcessor(store, queue, &log),
		referrer:  store.AddProfile(model.Profile{Email: "referrer@example.com", ReferralCode: "REFR"}),
	}
}

func (f *fixture) event(category string) string {
	return f.store.AddEvent(model.Event{Title: "Go Concurrency", Category: category, Price: 499})
}

// referee signs a new user up for eventID with the fixture's referral code and
// leaves their registration in paymentStatus.
func (f *fixture) referee(t *testing.T, eventID, paymentStatus string) string {
	t.Helper()
	ctx := context.Background()
	userID := f.store.AddProfile(model.Profile{Email: uuid.NewString() + "@example.com"})

	reg := &model.Registration{
		ID:            uuid.NewString(),
		UserID:        userID,
		EventID:       eventID,
		PaymentStatus: paymentStatus,
	}
	require.NoError(t, f.store.CreateRegistration(ctx, reg))
	require.NoError(t, f.store.CreateReferral(ctx, &model.Referral{
		ID:             uuid.NewString(),
		ReferrerID:     f.referrer,
		RefereeID:      userID,
		EventID:        eventID,
		RegistrationID: reg.ID,
		Status:         model.ReferralPending,
	}))
	return userID
}

func grantedRewards(rewards []model.ReferralReward) int {
	n := 0
	for _, rw := range rewards {
		if rw.RewardStatus == model.RewardGranted {
			n++
		}
	}
	return n
}

func TestRun_TwoPaidReferralsEarnFreeSeat(t *testing.T) {
	f := newFixture(t)
	eventID := f.event(model.CategoryTechnical)
	f.referee(t, eventID, model.PaymentCompleted)
	f.referee(t, eventID, model.PaymentCompleted)

	res, err := f.processor.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, res.ProcessedReferrals)
	require.Equal(t, 1, res.RewardsGranted)
	require.Len(t, res.Details, 1)
	require.Equal(t, 2, res.Details[0].ReferralCount)

	for _, ref := range f.store.Referrals {
		require.Equal(t, model.ReferralRewarded, ref.Status)
	}

	regs := f.store.RegistrationsFor(f.referrer, eventID)
	require.Len(t, regs, 1)
	require.Equal(t, model.PaymentFree, regs[0].PaymentStatus)
	require.Zero(t, regs[0].AmountPaid)

	rewards := f.store.RewardsFor(f.referrer, eventID)
	require.Len(t, rewards, 1)
	require.Equal(t, model.RewardGranted, rewards[0].RewardStatus)
	require.NotNil(t, rewards[0].GrantedAt)
}

func TestRun_SecondRunGrantsNothing(t *testing.T) {
	f := newFixture(t)
	eventID := f.event(model.CategoryTechnical)
	f.referee(t, eventID, model.PaymentCompleted)
	f.referee(t, eventID, model.PaymentCompleted)

	_, err := f.processor.Run(context.Background())
	require.NoError(t, err)

	res, err := f.processor.Run(context.Background())
	require.NoError(t, err)
	require.Zero(t, res.ProcessedReferrals)
	require.Zero(t, res.RewardsGranted)
	require.Equal(t, 1, grantedRewards(f.store.RewardsFor(f.referrer, eventID)))
	require.Len(t, f.store.RegistrationsFor(f.referrer, eventID), 1)
}

func TestRun_Threshold(t *testing.T) {
	cases := []struct {
		name      string
		referrals int
		want      int
	}{
		{name: "one referral", referrals: 1, want: 0},
		{name: "exactly two", referrals: 2, want: 1},
		{name: "five referrals", referrals: 5, want: 1},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			eventID := f.event(model.CategoryTechnical)
			for i := 0; i < tc.referrals; i++ {
				f.referee(t, eventID, model.PaymentCompleted)
			}

			res, err := f.processor.Run(context.Background())
			require.NoError(t, err)
			require.Equal(t, tc.want, res.RewardsGranted)
			require.Equal(t, tc.want, grantedRewards(f.store.RewardsFor(f.referrer, eventID)))
		})
	}
}

func TestRun_SoftSkillsEventsNeverRewarded(t *testing.T) {
	f := newFixture(t)
	eventID := f.event(model.CategorySoftSkills)
	for i := 0; i < 4; i++ {
		f.referee(t, eventID, model.PaymentCompleted)
	}

	res, err := f.processor.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 4, res.ProcessedReferrals)
	require.Zero(t, res.RewardsGranted)
	require.Empty(t, f.store.RewardsFor(f.referrer, eventID))
	require.Empty(t, f.store.RegistrationsFor(f.referrer, eventID))

	for _, ref := range f.store.Referrals {
		require.Equal(t, model.ReferralCompleted, ref.Status)
	}
}

func TestRun_UnpaidReferralsStayPending(t *testing.T) {
	f := newFixture(t)
	eventID := f.event(model.CategoryTechnical)
	f.referee(t, eventID, model.PaymentCompleted)
	f.referee(t, eventID, model.PaymentPending)
	f.referee(t, eventID, model.PaymentFailed)

	res, err := f.processor.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, res.ProcessedReferrals)
	require.Zero(t, res.RewardsGranted)
}

func TestRun_RewardsAreScopedPerEvent(t *testing.T) {
	f := newFixture(t)
	first := f.event(model.CategoryTechnical)
	second := f.event(model.CategoryTechnical)
	f.referee(t, first, model.PaymentCompleted)
	f.referee(t, second, model.PaymentCompleted)

	res, err := f.processor.Run(context.Background())
	require.NoError(t, err)
	require.Zero(t, res.RewardsGranted)
}

func TestRun_ReferrerRegistrationBecomesFree(t *testing.T) {
	for _, status := range []string{model.PaymentPending, model.PaymentFailed, model.PaymentRefunded} {
		t.Run(status, func(t *testing.T) {
			f := newFixture(t)
			eventID := f.event(model.CategoryTechnical)
			own := &model.Registration{
				ID:            uuid.NewString(),
				UserID:        f.referrer,
				EventID:       eventID,
				PaymentStatus: status,
				AmountPaid:    499,
			}
			require.NoError(t, f.store.CreateRegistration(context.Background(), own))
			f.referee(t, eventID, model.PaymentCompleted)
			f.referee(t, eventID, model.PaymentCompleted)

			res, err := f.processor.Run(context.Background())
			require.NoError(t, err)
			require.Equal(t, 1, res.RewardsGranted)

			regs := f.store.RegistrationsFor(f.referrer, eventID)
			require.Len(t, regs, 1)
			require.Equal(t, own.ID, regs[0].ID)
			require.Equal(t, model.PaymentFree, regs[0].PaymentStatus)
			require.Zero(t, regs[0].AmountPaid)
			require.Len(t, f.store.RewardsFor(f.referrer, eventID), 1)
		})
	}
}

func TestRun_NotifiesReferrer(t *testing.T) {
	f := newFixture(t)
	eventID := f.event(model.CategoryTechnical)
	f.referee(t, eventID, model.PaymentCompleted)
	f.referee(t, eventID, model.PaymentCompleted)

	_, err := f.processor.Run(context.Background())
	require.NoError(t, err)

	var completed, unlocked, emails int
	for _, it := range f.store.QueuedFor(f.referrer) {
		switch {
		case it.Subject == "Referral Completed":
			completed++
		case it.Subject == "Free Course Unlocked!":
			unlocked++
			require.Equal(t, "/events/"+eventID, it.ActionURL)
			require.Equal(t, model.LevelSuccess, it.Level)
		case it.Type == model.NotificationEmail:
			emails++
			require.Equal(t, model.PriorityHigh, it.Priority)
		}
	}
	require.Equal(t, 2, completed)
	require.Equal(t, 1, unlocked)
	require.Equal(t, 1, emails)
}

func TestRun_GrantFailureDoesNotAbortPass(t *testing.T) {
	f := newFixture(t)
	eventID := f.event(model.CategoryTechnical)
	f.referee(t, eventID, model.PaymentCompleted)
	f.referee(t, eventID, model.PaymentCompleted)
	f.store.Fail["GrantReferralRewardTx"] = errors.New("db down")

	res, err := f.processor.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, res.ProcessedReferrals)
	require.Zero(t, res.RewardsGranted)
}

func TestRun_LoadFailureIsReported(t *testing.T) {
	f := newFixture(t)
	f.store.Fail["GetReferralsByStatus"] = errors.New("db down")

	_, err := f.processor.Run(context.Background())
	require.Error(t, err)
}

func TestRun_GrantedAtUsesClock(t *testing.T) {
	f := newFixture(t)
	fixed := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	f.processor.now = func() time.Time { return fixed }
	eventID := f.event(model.CategoryTechnical)
	f.referee(t, eventID, model.PaymentCompleted)
	f.referee(t, eventID, model.PaymentCompleted)

	_, err := f.processor.Run(context.Background())
	require.NoError(t, err)

	rewards := f.store.RewardsFor(f.referrer, eventID)
	require.Len(t, rewards, 1)
	require.True(t, rewards[0].GrantedAt.Equal(fixed))
}
