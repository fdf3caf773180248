package notify

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// DefaultReminderDelay is how long a message may stay unread before the
	// recipient is reminded.
	DefaultReminderDelay = 15 * time.Minute

	queueName = "notify"
)

// Enqueuer schedules unread reminders on the task queue. It satisfies the
// chat package's ReminderEnqueuer.
//
// Ownership model:
// - Enqueuer does NOT own the asynq client. The caller must close it.
type Enqueuer struct {
	log    *slog.Logger
	client *asynq.Client
	delay  time.Duration
}

// EnqueuerOption configures Enqueuer behavior.
type EnqueuerOption func(*Enqueuer)

// WithReminderDelay overrides the default reminder delay.
func WithReminderDelay(d time.Duration) EnqueuerOption {
	return func(e *Enqueuer) {
		if e == nil || d <= 0 {
			return
		}
		e.delay = d
	}
}

// NewEnqueuer constructs a reminder enqueuer over an asynq client.
func NewEnqueuer(log *slog.Logger, client *asynq.Client, opts ...EnqueuerOption) (*Enqueuer, error) {
	if log == nil {
		log = slog.Default()
	}
	if client == nil {
		return nil, errors.New("notify: nil asynq client")
	}

	e := &Enqueuer{log: log, client: client, delay: DefaultReminderDelay}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(e)
	}
	return e, nil
}

// EnqueueUnreadReminder schedules a reminder for recipientID after the
// configured delay. Uniqueness over the delay window collapses the per-burst
// reminder storm into one task per (conversation, recipient).
func (e *Enqueuer) EnqueueUnreadReminder(ctx context.Context, conversationID, recipientID string) error {
	if conversationID == "" || recipientID == "" {
		return errors.New("notify: missing conversation or recipient id")
	}

	payload, err := UnreadReminderPayload{
		ConversationID: conversationID,
		RecipientID:    recipientID,
	}.marshal()
	if err != nil {
		return err
	}

	task := asynq.NewTask(TypeUnreadReminder, payload)
	info, err := e.client.EnqueueContext(ctx, task,
		asynq.Queue(queueName),
		asynq.ProcessIn(e.delay),
		asynq.Unique(e.delay),
	)
	if err != nil {
		if errors.Is(err, asynq.ErrDuplicateTask) {
			// A reminder for this pair is already pending.
			return nil
		}
		return err
	}

	e.log.Debug("notify.reminder.enqueued",
		"task_id", info.ID,
		"conversation_id", conversationID,
		"recipient_id", recipientID,
		"process_in", e.delay,
	)
	return nil
}
