// Package repotest provides an in-memory repo.Repository for tests. It keeps
// the same conditional-update and uniqueness rules as the Postgres schema.
package repotest

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"eventhub/internal/model"
	"eventhub/internal/repo"
)

type Store struct {
	mu sync.Mutex

	Profiles      map[string]model.Profile
	Events        map[string]model.Event
	Registrations map[string]model.Registration
	Referrals     map[string]model.Referral
	Rewards       []model.ReferralReward
	Transactions  map[string]model.PaymentTransaction
	Queue         map[string]model.NotificationQueueItem
	Preferences   map[string]model.NotificationPreference
	InApp         []model.InAppNotification
	WebhookLogs   map[string]model.WebhookLog

	// Optional error injection, keyed by method name.
	Fail map[string]error
}

var _ repo.Repository = (*Store)(nil)

func New() *Store {
	return &Store{
		Profiles:      map[string]model.Profile{},
		Events:        map[string]model.Event{},
		Registrations: map[string]model.Registration{},
		Referrals:     map[string]model.Referral{},
		Transactions:  map[string]model.PaymentTransaction{},
		Queue:         map[string]model.NotificationQueueItem{},
		Preferences:   map[string]model.NotificationPreference{},
		WebhookLogs:   map[string]model.WebhookLog{},
		Fail:          map[string]error{},
	}
}

func (s *Store) fail(method string) error {
	return s.Fail[method]
}

// AddProfile seeds a user and returns its id.
func (s *Store) AddProfile(p model.Profile) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.ReferralCode == "" {
		p.ReferralCode = p.ID[:8]
	}
	s.Profiles[p.ID] = p
	return p.ID
}

// AddEvent seeds an event and returns its id.
func (s *Store) AddEvent(e model.Event) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	s.Events[e.ID] = e
	return e.ID
}

func (s *Store) GetProfileByID(_ context.Context, id string) (*model.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("GetProfileByID"); err != nil {
		return nil, err
	}
	p, ok := s.Profiles[id]
	if !ok {
		return nil, repo.ErrNotFound
	}
	return &p, nil
}

func (s *Store) GetProfileByReferralCode(_ context.Context, code string) (*model.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.Profiles {
		if p.ReferralCode == code {
			p := p
			return &p, nil
		}
	}
	return nil, repo.ErrNotFound
}

func (s *Store) CreateEvent(_ context.Context, e *model.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("CreateEvent"); err != nil {
		return err
	}
	e.CreatedAt = time.Now()
	e.UpdatedAt = e.CreatedAt
	s.Events[e.ID] = *e
	return nil
}

func (s *Store) GetEventByID(_ context.Context, id string) (*model.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("GetEventByID"); err != nil {
		return nil, err
	}
	e, ok := s.Events[id]
	if !ok {
		return nil, repo.ErrEventNotFound
	}
	return &e, nil
}

func (s *Store) GetAllEvents(_ context.Context) ([]model.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.Event, 0, len(s.Events))
	for _, e := range s.Events {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartDate.Before(out[j].StartDate) })
	return out, nil
}

func (s *Store) CreateRegistration(_ context.Context, reg *model.Registration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("CreateRegistration"); err != nil {
		return err
	}
	for _, r := range s.Registrations {
		if r.UserID == reg.UserID && r.EventID == reg.EventID {
			return repo.ErrDuplicateRegistration
		}
	}
	reg.RegisteredAt = time.Now()
	s.Registrations[reg.ID] = *reg
	return nil
}

func (s *Store) GetRegistrationByID(_ context.Context, id string) (*model.Registration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.Registrations[id]
	if !ok {
		return nil, repo.ErrRegistrationNotFound
	}
	return &r, nil
}

func (s *Store) GetRegistrationsByIDs(_ context.Context, ids []string) (map[string]model.Registration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("GetRegistrationsByIDs"); err != nil {
		return nil, err
	}
	out := make(map[string]model.Registration, len(ids))
	for _, id := range ids {
		if r, ok := s.Registrations[id]; ok {
			out[id] = r
		}
	}
	return out, nil
}

func (s *Store) GetRegistrationsByEventID(_ context.Context, eventID string) ([]model.Registration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Registration
	for _, r := range s.Registrations {
		if r.EventID == eventID {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RegisteredAt.Before(out[j].RegisteredAt) })
	return out, nil
}

func (s *Store) CountRegistrations(_ context.Context, eventID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, r := range s.Registrations {
		if r.EventID != eventID {
			continue
		}
		switch r.PaymentStatus {
		case model.PaymentPending, model.PaymentCompleted, model.PaymentFree:
			n++
		}
	}
	return n, nil
}

func (s *Store) ExpireRegistrationTx(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.Registrations[id]
	if !ok {
		return false, repo.ErrRegistrationNotFound
	}
	if r.PaymentStatus != model.PaymentPending {
		return false, nil
	}
	r.PaymentStatus = model.PaymentFailed
	s.Registrations[id] = r
	return true, nil
}

func (s *Store) CreateReferral(_ context.Context, ref *model.Referral) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.Referrals {
		if r.RefereeID == ref.RefereeID && r.EventID == ref.EventID {
			return repo.ErrDuplicateReferral
		}
	}
	ref.CreatedAt = time.Now()
	s.Referrals[ref.ID] = *ref
	return nil
}

func (s *Store) GetReferralsByStatus(_ context.Context, status string) ([]model.Referral, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("GetReferralsByStatus"); err != nil {
		return nil, err
	}
	var out []model.Referral
	for _, r := range s.Referrals {
		if r.Status == status {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) PromoteReferral(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.Referrals[id]
	if !ok || r.Status != model.ReferralPending {
		return false, nil
	}
	r.Status = model.ReferralCompleted
	s.Referrals[id] = r
	return true, nil
}

func (s *Store) GrantReferralRewardTx(_ context.Context, g repo.RewardGrant) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("GrantReferralRewardTx"); err != nil {
		return false, err
	}
	for _, rw := range s.Rewards {
		if rw.ReferrerID == g.ReferrerID && rw.EventID == g.EventID && rw.RewardStatus == model.RewardGranted {
			return false, nil
		}
	}

	at := g.GrantedAt
	s.Rewards = append(s.Rewards, model.ReferralReward{
		ID:            g.ID,
		ReferrerID:    g.ReferrerID,
		EventID:       g.EventID,
		ReferralCount: g.ReferralCount,
		RewardStatus:  model.RewardGranted,
		GrantedAt:     &at,
	})

	found := false
	for id, r := range s.Registrations {
		if r.UserID != g.ReferrerID || r.EventID != g.EventID {
			continue
		}
		found = true
		switch r.PaymentStatus {
		case model.PaymentPending, model.PaymentFailed, model.PaymentRefunded:
			r.PaymentStatus = model.PaymentFree
			r.AmountPaid = 0
			s.Registrations[id] = r
		}
	}
	if !found {
		s.Registrations[g.RegistrationID] = model.Registration{
			ID:            g.RegistrationID,
			UserID:        g.ReferrerID,
			EventID:       g.EventID,
			PaymentStatus: model.PaymentFree,
			RegisteredAt:  at,
		}
	}

	for id, r := range s.Referrals {
		if r.ReferrerID == g.ReferrerID && r.EventID == g.EventID && r.Status == model.ReferralCompleted {
			r.Status = model.ReferralRewarded
			s.Referrals[id] = r
		}
	}
	return true, nil
}

func (s *Store) CreatePaymentTransaction(_ context.Context, t *model.PaymentTransaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t.CreatedAt = time.Now()
	s.Transactions[t.ID] = *t
	return nil
}

func (s *Store) GetTransactionByOrderID(_ context.Context, orderID string) (*model.PaymentTransaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.Transactions {
		if t.GatewayOrderID == orderID {
			t := t
			return &t, nil
		}
	}
	return nil, repo.ErrTransactionNotFound
}

func (s *Store) GetTransactionsByUser(_ context.Context, userID string) ([]model.PaymentTransaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.PaymentTransaction
	for _, t := range s.Transactions {
		if t.UserID == userID {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) CompletePaymentTx(_ context.Context, c repo.PaymentCapture) (repo.PaymentChange, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("CompletePaymentTx"); err != nil {
		return repo.PaymentChange{}, err
	}
	var change repo.PaymentChange
	if t, ok := s.Transactions[c.TransactionID]; ok &&
		(t.Status == model.TransactionInitiated || t.Status == model.TransactionFailed) {
		at := c.At
		t.Status = model.TransactionSuccess
		t.GatewayPaymentID = c.PaymentID
		t.PaymentMethod = c.Method
		t.CompletedAt = &at
		s.Transactions[t.ID] = t
		change.TransactionChanged = true
	}
	if c.RegistrationID == "" {
		return change, nil
	}
	if r, ok := s.Registrations[c.RegistrationID]; ok &&
		(r.PaymentStatus == model.PaymentPending || r.PaymentStatus == model.PaymentFailed) {
		at := c.At
		r.PaymentStatus = model.PaymentCompleted
		r.PaymentID = c.PaymentID
		r.PaymentCompletedAt = &at
		s.Registrations[r.ID] = r
		change.RegistrationChanged = true
	}
	return change, nil
}

func (s *Store) FailPaymentTx(_ context.Context, f repo.PaymentFailure) (repo.PaymentChange, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var change repo.PaymentChange
	t, ok := s.Transactions[f.TransactionID]
	if !ok || t.Status != model.TransactionInitiated {
		return change, nil
	}
	t.Status = model.TransactionFailed
	t.GatewayPaymentID = f.PaymentID
	t.ErrorCode = f.ErrorCode
	t.ErrorMessage = f.ErrorMessage
	s.Transactions[t.ID] = t
	change.TransactionChanged = true

	if r, ok := s.Registrations[f.RegistrationID]; ok && r.PaymentStatus == model.PaymentPending {
		r.PaymentStatus = model.PaymentFailed
		s.Registrations[r.ID] = r
		change.RegistrationChanged = true
	}
	return change, nil
}

func (s *Store) EnqueueNotifications(_ context.Context, items []model.NotificationQueueItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("EnqueueNotifications"); err != nil {
		return err
	}
	for _, it := range items {
		s.Queue[it.ID] = it
	}
	return nil
}

var priorityRank = map[string]int{
	model.PriorityUrgent: 4,
	model.PriorityHigh:   3,
	model.PriorityMedium: 2,
	model.PriorityLow:    1,
}

func (s *Store) GetDueNotifications(_ context.Context, now time.Time, maxRetries, limit int) ([]model.NotificationQueueItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("GetDueNotifications"); err != nil {
		return nil, err
	}
	var out []model.NotificationQueueItem
	for _, it := range s.Queue {
		if it.Status == model.QueuePending && !it.ScheduledFor.After(now) && it.RetryCount < maxRetries {
			out = append(out, it)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		pi, pj := priorityRank[out[i].Priority], priorityRank[out[j].Priority]
		if pi != pj {
			return pi > pj
		}
		return out[i].ScheduledFor.Before(out[j].ScheduledFor)
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) MarkNotificationSent(_ context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	it := s.Queue[id]
	it.Status = model.QueueSent
	it.SentAt = &at
	it.ErrorMessage = ""
	s.Queue[id] = it
	return nil
}

func (s *Store) MarkNotificationCancelled(_ context.Context, id, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	it := s.Queue[id]
	it.Status = model.QueueCancelled
	it.ErrorMessage = reason
	s.Queue[id] = it
	return nil
}

func (s *Store) RescheduleNotification(_ context.Context, n repo.NotificationRetry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	it := s.Queue[n.ID]
	it.Status = n.Status
	it.RetryCount = n.RetryCount
	it.ErrorMessage = n.ErrorMessage
	it.ScheduledFor = n.ScheduledFor
	s.Queue[n.ID] = it
	return nil
}

func (s *Store) GetNotificationPreference(_ context.Context, userID string) (*model.NotificationPreference, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.Preferences[userID]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (s *Store) UpsertNotificationPreference(_ context.Context, p *model.NotificationPreference) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p.UpdatedAt = time.Now()
	s.Preferences[p.UserID] = *p
	return nil
}

func (s *Store) CreateInAppNotification(_ context.Context, n *model.InAppNotification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("CreateInAppNotification"); err != nil {
		return err
	}
	n.CreatedAt = time.Now()
	s.InApp = append(s.InApp, *n)
	return nil
}

func (s *Store) GetInAppNotifications(_ context.Context, userID string, limit int) ([]model.InAppNotification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.InAppNotification
	for i := len(s.InApp) - 1; i >= 0 && len(out) < limit; i-- {
		if s.InApp[i].UserID == userID {
			out = append(out, s.InApp[i])
		}
	}
	return out, nil
}

func (s *Store) MarkInAppNotificationRead(_ context.Context, id, userID string, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, n := range s.InApp {
		if n.ID == id && n.UserID == userID {
			if n.ReadAt == nil {
				s.InApp[i].ReadAt = &at
			}
			return true, nil
		}
	}
	return false, nil
}

func (s *Store) CreateWebhookLog(_ context.Context, l *model.WebhookLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("CreateWebhookLog"); err != nil {
		return err
	}
	l.CreatedAt = time.Now()
	s.WebhookLogs[l.ID] = *l
	return nil
}

func (s *Store) UpdateWebhookLog(_ context.Context, id, status, errMsg string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	l := s.WebhookLogs[id]
	l.Status = status
	l.ErrorMessage = errMsg
	l.ProcessedAt = &at
	s.WebhookLogs[id] = l
	return nil
}

// QueuedFor returns queue entries addressed to userID.
func (s *Store) QueuedFor(userID string) []model.NotificationQueueItem {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.NotificationQueueItem
	for _, it := range s.Queue {
		if it.UserID == userID {
			out = append(out, it)
		}
	}
	return out
}

// RewardsFor returns reward rows for the (referrer, event) pair.
func (s *Store) RewardsFor(referrerID, eventID string) []model.ReferralReward {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.ReferralReward
	for _, rw := range s.Rewards {
		if rw.ReferrerID == referrerID && rw.EventID == eventID {
			out = append(out, rw)
		}
	}
	return out
}

// RegistrationsFor returns the registrations a user holds for an event.
func (s *Store) RegistrationsFor(userID, eventID string) []model.Registration {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Registration
	for _, r := range s.Registrations {
		if r.UserID == userID && r.EventID == eventID {
			out = append(out, r)
		}
	}
	return out
}
