package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"eventhub/internal/model"
)

const (
	MaxRetries   = 3
	BatchSize    = 100
	RetryBackoff = time.Hour

	ChannelTransactional = "transactional"
)

// Kicker wakes the dispatcher after new work lands in the queue. A zero delay
// means as soon as possible.
type Kicker interface {
	Kick(ctx context.Context, delay time.Duration) error
}

type QueueStore interface {
	EnqueueNotifications(ctx context.Context, items []model.NotificationQueueItem) error
}

// Message is what producers hand to the queue; ids, status and schedule are
// filled in by Enqueue.
type Message struct {
	UserID    string
	Type      string
	Subject   string
	Body      string
	ActionURL string
	Level     string
	Priority  string
	Channel   string
}

type Queue struct {
	store  QueueStore
	kicker Kicker
	log    *zerolog.Logger
	now    func() time.Time
}

func NewQueue(store QueueStore, kicker Kicker, log *zerolog.Logger) *Queue {
	return &Queue{store: store, kicker: kicker, log: log, now: time.Now}
}

func (q *Queue) Enqueue(ctx context.Context, msgs ...Message) error {
	if len(msgs) == 0 {
		return nil
	}

	now := q.now()
	items := make([]model.NotificationQueueItem, 0, len(msgs))
	for _, m := range msgs {
		items = append(items, model.NotificationQueueItem{
			ID:           uuid.NewString(),
			UserID:       m.UserID,
			Type:         m.Type,
			Channel:      orDefault(m.Channel, ChannelTransactional),
			Subject:      m.Subject,
			Body:         m.Body,
			ActionURL:    m.ActionURL,
			Level:        orDefault(m.Level, model.LevelInfo),
			Status:       model.QueuePending,
			Priority:     orDefault(m.Priority, model.PriorityMedium),
			ScheduledFor: now,
			CreatedAt:    now,
		})
	}

	if err := q.store.EnqueueNotifications(ctx, items); err != nil {
		return fmt.Errorf("enqueue notifications: %w", err)
	}

	if q.kicker != nil {
		if err := q.kicker.Kick(ctx, 0); err != nil {
			q.log.Warn().Err(err).Msg("failed to kick notification dispatcher")
		}
	}
	return nil
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
