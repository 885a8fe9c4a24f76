package referral

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"eventhub/internal/model"
	"eventhub/internal/notify"
	"eventhub/internal/repo"
)

// RewardThreshold is the number of completed referrals for one technical
// event that earns the referrer a free seat at it.
const RewardThreshold = 2

type Store interface {
	GetReferralsByStatus(ctx context.Context, status string) ([]model.Referral, error)
	GetRegistrationsByIDs(ctx context.Context, ids []string) (map[string]model.Registration, error)
	PromoteReferral(ctx context.Context, id string) (bool, error)
	GetEventByID(ctx context.Context, id string) (*model.Event, error)
	GrantReferralRewardTx(ctx context.Context, grant repo.RewardGrant) (bool, error)
}

type Notifier interface {
	Enqueue(ctx context.Context, msgs ...notify.Message) error
}

type Detail struct {
	ReferrerID    string `json:"referrer_id"`
	EventID       string `json:"event_id"`
	EventTitle    string `json:"event_title"`
	ReferralCount int    `json:"referral_count"`
}

type Result struct {
	ProcessedReferrals int      `json:"processed_referrals"`
	RewardsGranted     int      `json:"rewards_granted"`
	Details            []Detail `json:"details"`
}

type Processor struct {
	store    Store
	notifier Notifier
	log      *zerolog.Logger
	now      func() time.Time
}

func NewProcessor(store Store, notifier Notifier, log *zerolog.Logger) *Processor {
	return &Processor{store: store, notifier: notifier, log: log, now: time.Now}
}

type groupKey struct {
	referrerID string
	eventID    string
}

// Run performs one full pass: promote paid referrals, then grant rewards for
// every (referrer, event) pair that reached the threshold. Safe to run
// repeatedly and concurrently; the grant itself is the idempotency guard.
func (p *Processor) Run(ctx context.Context) (Result, error) {
	res := Result{Details: []Detail{}}

	promoted, err := p.promote(ctx)
	if err != nil {
		return res, err
	}
	res.ProcessedReferrals = promoted

	completed, err := p.store.GetReferralsByStatus(ctx, model.ReferralCompleted)
	if err != nil {
		return res, fmt.Errorf("load completed referrals: %w", err)
	}

	counts := make(map[groupKey]int)
	for _, ref := range completed {
		counts[groupKey{ref.ReferrerID, ref.EventID}]++
	}

	keys := make([]groupKey, 0, len(counts))
	for k, n := range counts {
		if n >= RewardThreshold {
			keys = append(keys, k)
		}
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].referrerID != keys[j].referrerID {
			return keys[i].referrerID < keys[j].referrerID
		}
		return keys[i].eventID < keys[j].eventID
	})

	for _, k := range keys {
		detail, granted, err := p.grant(ctx, k, counts[k])
		if err != nil {
			p.log.Error().Err(err).
				Str("referrer_id", k.referrerID).
				Str("event_id", k.eventID).
				Msg("failed to grant referral reward")
			continue
		}
		if granted {
			res.RewardsGranted++
			res.Details = append(res.Details, detail)
		}
	}

	p.log.Info().
		Int("processed_referrals", res.ProcessedReferrals).
		Int("rewards_granted", res.RewardsGranted).
		Msg("referral pass finished")

	return res, nil
}

func (p *Processor) promote(ctx context.Context) (int, error) {
	pending, err := p.store.GetReferralsByStatus(ctx, model.ReferralPending)
	if err != nil {
		return 0, fmt.Errorf("load pending referrals: %w", err)
	}
	if len(pending) == 0 {
		return 0, nil
	}

	ids := make([]string, 0, len(pending))
	for _, ref := range pending {
		ids = append(ids, ref.RegistrationID)
	}
	regs, err := p.store.GetRegistrationsByIDs(ctx, ids)
	if err != nil {
		return 0, fmt.Errorf("load referee registrations: %w", err)
	}

	promoted := 0
	for _, ref := range pending {
		reg, ok := regs[ref.RegistrationID]
		if !ok || reg.PaymentStatus != model.PaymentCompleted {
			continue
		}

		changed, err := p.store.PromoteReferral(ctx, ref.ID)
		if err != nil {
			p.log.Error().Err(err).Str("referral_id", ref.ID).Msg("failed to promote referral")
			continue
		}
		if !changed {
			continue
		}
		promoted++

		if err := p.notifier.Enqueue(ctx, notify.Message{
			UserID:  ref.ReferrerID,
			Type:    model.NotificationInApp,
			Subject: "Referral Completed",
			Body:    "Someone you referred has completed their registration. Keep sharing to unlock a free course!",
			Level:   model.LevelSuccess,
		}); err != nil {
			p.log.Warn().Err(err).Str("referral_id", ref.ID).Msg("failed to notify referrer")
		}
	}
	return promoted, nil
}

func (p *Processor) grant(ctx context.Context, k groupKey, count int) (Detail, bool, error) {
	event, err := p.store.GetEventByID(ctx, k.eventID)
	if err != nil {
		return Detail{}, false, fmt.Errorf("load event: %w", err)
	}
	if event.Category != model.CategoryTechnical {
		return Detail{}, false, nil
	}

	granted, err := p.store.GrantReferralRewardTx(ctx, repo.RewardGrant{
		ID:             uuid.NewString(),
		ReferrerID:     k.referrerID,
		EventID:        k.eventID,
		ReferralCount:  count,
		RegistrationID: uuid.NewString(),
		GrantedAt:      p.now(),
	})
	if err != nil || !granted {
		return Detail{}, false, err
	}

	p.log.Info().
		Str("referrer_id", k.referrerID).
		Str("event_id", k.eventID).
		Int("referral_count", count).
		Msg("referral reward granted")

	actionURL := "/events/" + event.ID
	if err := p.notifier.Enqueue(ctx,
		notify.Message{
			UserID:    k.referrerID,
			Type:      model.NotificationInApp,
			Subject:   "Free Course Unlocked!",
			Body:      fmt.Sprintf("Congratulations! You've unlocked free access to %s thanks to your referrals.", event.Title),
			ActionURL: actionURL,
			Level:     model.LevelSuccess,
		},
		notify.Message{
			UserID:    k.referrerID,
			Type:      model.NotificationEmail,
			Subject:   "You've Earned a Free Course!",
			Body:      fmt.Sprintf("%d people joined %s with your referral code, so your seat is on us. You are now registered for free.", count, event.Title),
			ActionURL: actionURL,
			Priority:  model.PriorityHigh,
		},
	); err != nil {
		p.log.Warn().Err(err).Str("referrer_id", k.referrerID).Msg("failed to notify referrer about reward")
	}

	return Detail{
		ReferrerID:    k.referrerID,
		EventID:       k.eventID,
		EventTitle:    event.Title,
		ReferralCount: count,
	}, true, nil
}
