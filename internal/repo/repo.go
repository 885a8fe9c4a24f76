package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/lib/pq"
	"github.com/rs/zerolog"
	"github.com/wb-go/wbf/dbpg"

	"eventhub/internal/model"
)

var (
	ErrNotFound              = errors.New("not found")
	ErrEventNotFound         = errors.New("event not found")
	ErrRegistrationNotFound  = errors.New("registration not found")
	ErrTransactionNotFound   = errors.New("payment transaction not found")
	ErrDuplicateRegistration = errors.New("duplicate registration")
	ErrDuplicateReferral     = errors.New("duplicate referral")
)

const uniqueViolation = "23505"

type Repository interface {
	GetProfileByID(ctx context.Context, id string) (*model.Profile, error)
	GetProfileByReferralCode(ctx context.Context, code string) (*model.Profile, error)

	CreateEvent(ctx context.Context, e *model.Event) error
	GetEventByID(ctx context.Context, id string) (*model.Event, error)
	GetAllEvents(ctx context.Context) ([]model.Event, error)

	CreateRegistration(ctx context.Context, reg *model.Registration) error
	GetRegistrationByID(ctx context.Context, id string) (*model.Registration, error)
	GetRegistrationsByIDs(ctx context.Context, ids []string) (map[string]model.Registration, error)
	GetRegistrationsByEventID(ctx context.Context, eventID string) ([]model.Registration, error)
	CountRegistrations(ctx context.Context, eventID string) (int, error)
	ExpireRegistrationTx(ctx context.Context, id string) (bool, error)

	CreateReferral(ctx context.Context, ref *model.Referral) error
	GetReferralsByStatus(ctx context.Context, status string) ([]model.Referral, error)
	PromoteReferral(ctx context.Context, id string) (bool, error)
	GrantReferralRewardTx(ctx context.Context, grant RewardGrant) (bool, error)

	CreatePaymentTransaction(ctx context.Context, tx *model.PaymentTransaction) error
	GetTransactionByOrderID(ctx context.Context, orderID string) (*model.PaymentTransaction, error)
	GetTransactionsByUser(ctx context.Context, userID string) ([]model.PaymentTransaction, error)
	CompletePaymentTx(ctx context.Context, c PaymentCapture) (PaymentChange, error)
	FailPaymentTx(ctx context.Context, f PaymentFailure) (PaymentChange, error)

	EnqueueNotifications(ctx context.Context, items []model.NotificationQueueItem) error
	GetDueNotifications(ctx context.Context, now time.Time, maxRetries, limit int) ([]model.NotificationQueueItem, error)
	MarkNotificationSent(ctx context.Context, id string, at time.Time) error
	MarkNotificationCancelled(ctx context.Context, id, reason string) error
	RescheduleNotification(ctx context.Context, r NotificationRetry) error
	GetNotificationPreference(ctx context.Context, userID string) (*model.NotificationPreference, error)
	UpsertNotificationPreference(ctx context.Context, p *model.NotificationPreference) error
	CreateInAppNotification(ctx context.Context, n *model.InAppNotification) error
	GetInAppNotifications(ctx context.Context, userID string, limit int) ([]model.InAppNotification, error)
	MarkInAppNotificationRead(ctx context.Context, id, userID string, at time.Time) (bool, error)

	CreateWebhookLog(ctx context.Context, l *model.WebhookLog) error
	UpdateWebhookLog(ctx context.Context, id, status, errMsg string, at time.Time) error
}

// RewardGrant is everything needed to hand out one free registration.
type RewardGrant struct {
	ID             string
	ReferrerID     string
	EventID        string
	ReferralCount  int
	RegistrationID string
	GrantedAt      time.Time
}

type PaymentCapture struct {
	TransactionID  string
	RegistrationID string
	PaymentID      string
	Method         string
	At             time.Time
}

type PaymentFailure struct {
	TransactionID  string
	RegistrationID string
	PaymentID      string
	ErrorCode      string
	ErrorMessage   string
}

// PaymentChange reports which rows actually moved. Both false means the
// callback was a replay.
type PaymentChange struct {
	TransactionChanged  bool
	RegistrationChanged bool
}

type NotificationRetry struct {
	ID           string
	RetryCount   int
	Status       string
	ErrorMessage string
	ScheduledFor time.Time
}

type repository struct {
	db  *dbpg.DB
	log *zerolog.Logger
}

func NewRepository(db *dbpg.DB, log *zerolog.Logger) (Repository, error) {
	if db == nil {
		return nil, fmt.Errorf("db cannot be nil")
	}
	if err := db.Master.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping DB: %w", err)
	}
	return &repository{db: db, log: log}, nil
}

// Migrate applies *.up.sql in name order, or *.down.sql in reverse order.
func Migrate(ctx context.Context, db *dbpg.DB, log *zerolog.Logger, migrationsDir string, down bool) error {
	suffix := "*.up.sql"
	if down {
		suffix = "*.down.sql"
	}
	files, err := filepath.Glob(filepath.Join(migrationsDir, suffix))
	if err != nil {
		return fmt.Errorf("failed to read migration files: %w", err)
	}
	sort.Strings(files)
	if down {
		sort.Sort(sort.Reverse(sort.StringSlice(files)))
	}

	for _, file := range files {
		sqlBytes, err := os.ReadFile(file)
		if err != nil {
			return fmt.Errorf("failed to read migration file %s: %w", file, err)
		}
		if _, err := db.ExecContext(ctx, string(sqlBytes)); err != nil {
			return fmt.Errorf("failed to apply migration %s: %w", file, err)
		}
	}

	log.Info().Int("files", len(files)).Bool("down", down).Msgf("migrations applied from %s", migrationsDir)
	return nil
}

func (r *repository) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := r.db.Master.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}
