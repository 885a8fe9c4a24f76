package repo

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"github.com/wb-go/wbf/dbpg"

	"eventhub/internal/model"
)

// These tests run the real SQL against Postgres. They are skipped unless
// EVENTHUB_TEST_DSN points at a database the tests may migrate and write to.
const testDSNEnv = "EVENTHUB_TEST_DSN"

func openTestDB(t *testing.T) (*dbpg.DB, Repository) {
	t.Helper()
	dsn := os.Getenv(testDSNEnv)
	if dsn == "" {
		t.Skipf("%s not set", testDSNEnv)
	}

	log := zerolog.Nop()
	db, err := dbpg.New(dsn, nil, &dbpg.Options{MaxOpenConns: 10, MaxIdleConns: 5, ConnMaxLifetime: time.Minute})
	require.NoError(t, err)
	require.NoError(t, Migrate(context.Background(), db, &log, "../../migrations/postgres", false))

	r, err := NewRepository(db, &log)
	require.NoError(t, err)
	return db, r
}

func seedProfile(t *testing.T, db *dbpg.DB) string {
	t.Helper()
	id := uuid.NewString()
	_, err := db.Master.ExecContext(context.Background(), `
		INSERT INTO profiles (id, email, full_name, referral_code)
		VALUES ($1, $2, 'Test User', $3)
	`, id, id+"@example.com", id[:12])
	require.NoError(t, err)
	return id
}

func seedEvent(t *testing.T, r Repository, category string) string {
	t.Helper()
	e := &model.Event{
		ID:        uuid.NewString(),
		Title:     "Go Internals",
		Category:  category,
		Price:     499,
		StartDate: time.Now().Add(24 * time.Hour),
		EndDate:   time.Now().Add(26 * time.Hour),
		Status:    "upcoming",
	}
	require.NoError(t, r.CreateEvent(context.Background(), e))
	return e.ID
}

func seedRegistration(t *testing.T, db *dbpg.DB, userID, eventID, status string, amount float64) string {
	t.Helper()
	id := uuid.NewString()
	_, err := db.Master.ExecContext(context.Background(), `
		INSERT INTO registrations (id, user_id, event_id, payment_status, amount_paid)
		VALUES ($1, $2, $3, $4, $5)
	`, id, userID, eventID, status, amount)
	require.NoError(t, err)
	return id
}

func seedCompletedReferral(t *testing.T, db *dbpg.DB, referrerID, eventID string) {
	t.Helper()
	refereeID := seedProfile(t, db)
	regID := seedRegistration(t, db, refereeID, eventID, model.PaymentCompleted, 499)
	_, err := db.Master.ExecContext(context.Background(), `
		INSERT INTO referrals (id, referrer_id, referee_id, event_id, registration_id, status)
		VALUES ($1, $2, $3, $4, $5, 'completed')
	`, uuid.NewString(), referrerID, refereeID, eventID, regID)
	require.NoError(t, err)
}

func grantFor(referrerID, eventID string) RewardGrant {
	return RewardGrant{
		ID:             uuid.NewString(),
		ReferrerID:     referrerID,
		EventID:        eventID,
		ReferralCount:  2,
		RegistrationID: uuid.NewString(),
		GrantedAt:      time.Now(),
	}
}

func TestPostgres_GrantReferralRewardIsOnce(t *testing.T) {
	db, r := openTestDB(t)
	ctx := context.Background()

	referrer := seedProfile(t, db)
	eventID := seedEvent(t, r, model.CategoryTechnical)
	ownReg := seedRegistration(t, db, referrer, eventID, model.PaymentRefunded, 499)
	seedCompletedReferral(t, db, referrer, eventID)
	seedCompletedReferral(t, db, referrer, eventID)

	const runs = 5
	var wg sync.WaitGroup
	granted := make([]bool, runs)
	errs := make([]error, runs)
	for i := 0; i < runs; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			granted[i], errs[i] = r.GrantReferralRewardTx(ctx, grantFor(referrer, eventID))
		}(i)
	}
	wg.Wait()

	wins := 0
	for i := range granted {
		require.NoError(t, errs[i])
		if granted[i] {
			wins++
		}
	}
	require.Equal(t, 1, wins)

	var rows int
	require.NoError(t, db.Master.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM referral_rewards
		WHERE referrer_id = $1 AND event_id = $2 AND reward_status = 'granted'
	`, referrer, eventID).Scan(&rows))
	require.Equal(t, 1, rows)

	reg, err := r.GetRegistrationByID(ctx, ownReg)
	require.NoError(t, err)
	require.Equal(t, model.PaymentFree, reg.PaymentStatus)
	require.Zero(t, reg.AmountPaid)

	completed, err := r.GetReferralsByStatus(ctx, model.ReferralCompleted)
	require.NoError(t, err)
	for _, ref := range completed {
		require.NotEqual(t, referrer, ref.ReferrerID)
	}
}

func TestPostgres_PaymentCaptureIsConditional(t *testing.T) {
	db, r := openTestDB(t)
	ctx := context.Background()

	userID := seedProfile(t, db)
	eventID := seedEvent(t, r, model.CategoryTechnical)
	regID := seedRegistration(t, db, userID, eventID, model.PaymentPending, 0)

	txn := &model.PaymentTransaction{
		ID:             uuid.NewString(),
		UserID:         userID,
		EventID:        eventID,
		RegistrationID: regID,
		Amount:         499,
		Currency:       "INR",
		GatewayOrderID: "order_" + uuid.NewString()[:14],
		Status:         model.TransactionInitiated,
	}
	require.NoError(t, r.CreatePaymentTransaction(ctx, txn))

	capture := PaymentCapture{TransactionID: txn.ID, RegistrationID: regID, PaymentID: "pay_1", Method: "upi", At: time.Now()}

	change, err := r.CompletePaymentTx(ctx, capture)
	require.NoError(t, err)
	require.Equal(t, PaymentChange{TransactionChanged: true, RegistrationChanged: true}, change)

	change, err = r.CompletePaymentTx(ctx, capture)
	require.NoError(t, err)
	require.Equal(t, PaymentChange{}, change)

	change, err = r.FailPaymentTx(ctx, PaymentFailure{TransactionID: txn.ID, RegistrationID: regID, ErrorCode: "BAD_REQUEST_ERROR"})
	require.NoError(t, err)
	require.Equal(t, PaymentChange{}, change)

	got, err := r.GetTransactionByOrderID(ctx, txn.GatewayOrderID)
	require.NoError(t, err)
	require.Equal(t, model.TransactionSuccess, got.Status)

	reg, err := r.GetRegistrationByID(ctx, regID)
	require.NoError(t, err)
	require.Equal(t, model.PaymentCompleted, reg.PaymentStatus)
}

func TestPostgres_DueNotificationsOrder(t *testing.T) {
	db, r := openTestDB(t)
	ctx := context.Background()
	userID := seedProfile(t, db)
	t.Cleanup(func() {
		_, _ = db.Master.ExecContext(context.Background(), `DELETE FROM notifications_queue WHERE user_id = $1`, userID)
	})

	now := time.Now()
	item := func(priority string, scheduled time.Time) model.NotificationQueueItem {
		return model.NotificationQueueItem{
			ID:           uuid.NewString(),
			UserID:       userID,
			Type:         model.NotificationEmail,
			Channel:      "transactional",
			Body:         priority,
			Level:        model.LevelInfo,
			Status:       model.QueuePending,
			Priority:     priority,
			ScheduledFor: scheduled,
			CreatedAt:    now,
		}
	}
	exhausted := item(model.PriorityUrgent, now.Add(-time.Hour))
	require.NoError(t, r.EnqueueNotifications(ctx, []model.NotificationQueueItem{
		item(model.PriorityLow, now.Add(-3*time.Minute)),
		item(model.PriorityMedium, now.Add(-2*time.Minute)),
		item(model.PriorityUrgent, now.Add(-time.Minute)),
		item(model.PriorityHigh, now.Add(-5*time.Minute)),
		item(model.PriorityHigh, now.Add(-4*time.Minute)),
		item(model.PriorityUrgent, now.Add(time.Hour)),
		exhausted,
	}))
	require.NoError(t, r.RescheduleNotification(ctx, NotificationRetry{
		ID:           exhausted.ID,
		RetryCount:   3,
		Status:       model.QueuePending,
		ScheduledFor: now.Add(-time.Hour),
	}))

	due, err := r.GetDueNotifications(ctx, now, 3, 1000)
	require.NoError(t, err)

	var got []string
	var times []time.Time
	for _, it := range due {
		if it.UserID == userID {
			got = append(got, it.Priority)
			times = append(times, it.ScheduledFor)
		}
	}
	require.Equal(t, []string{
		model.PriorityUrgent,
		model.PriorityHigh,
		model.PriorityHigh,
		model.PriorityMedium,
		model.PriorityLow,
	}, got)
	require.True(t, times[1].Before(times[2]))
}
