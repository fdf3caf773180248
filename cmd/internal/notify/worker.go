package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"
)

// UnreadCounter reports how many messages addressed to a recipient are still
// unread in one conversation. The chat store satisfies this.
type UnreadCounter interface {
	CountUnread(ctx context.Context, conversationID, recipientID string) (int64, error)
}

// Sender delivers one unread reminder to a recipient.
type Sender interface {
	SendUnreadReminder(ctx context.Context, recipientID, conversationID string, unread int64) error
}

// LogSender is the default Sender: it records the reminder in the log. Real
// delivery channels (email, push) plug in behind the same interface.
type LogSender struct {
	Log *slog.Logger
}

func (s LogSender) SendUnreadReminder(ctx context.Context, recipientID, conversationID string, unread int64) error {
	log := s.Log
	if log == nil {
		log = slog.Default()
	}
	log.InfoContext(ctx, "notify.reminder.sent",
		"recipient_id", recipientID,
		"conversation_id", conversationID,
		"unread", unread,
	)
	return nil
}

// Worker processes reminder tasks.
type Worker struct {
	log     *slog.Logger
	counter UnreadCounter
	sender  Sender
}

// NewWorker constructs the reminder worker. sender may be nil, defaulting to
// LogSender.
func NewWorker(log *slog.Logger, counter UnreadCounter, sender Sender) (*Worker, error) {
	if log == nil {
		log = slog.Default()
	}
	if counter == nil {
		return nil, errors.New("notify: nil unread counter")
	}
	if sender == nil {
		sender = LogSender{Log: log}
	}
	return &Worker{log: log, counter: counter, sender: sender}, nil
}

// HandleUnreadReminder checks whether the recipient still has unread
// messages; if they caught up before the delay elapsed, the reminder is
// dropped silently.
func (w *Worker) HandleUnreadReminder(ctx context.Context, t *asynq.Task) error {
	var p UnreadReminderPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		// Malformed payloads never become processable; don't retry.
		return fmt.Errorf("unmarshal payload: %v: %w", err, asynq.SkipRetry)
	}
	if p.ConversationID == "" || p.RecipientID == "" {
		return fmt.Errorf("incomplete payload: %w", asynq.SkipRetry)
	}

	unread, err := w.counter.CountUnread(ctx, p.ConversationID, p.RecipientID)
	if err != nil {
		return fmt.Errorf("count unread: %w", err)
	}
	if unread == 0 {
		w.log.Debug("notify.reminder.skipped",
			"conversation_id", p.ConversationID,
			"recipient_id", p.RecipientID,
		)
		return nil
	}

	return w.sender.SendUnreadReminder(ctx, p.RecipientID, p.ConversationID, unread)
}

// Mux returns an asynq mux with this worker's handlers registered.
func (w *Worker) Mux() *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.HandleFunc(TypeUnreadReminder, w.HandleUnreadReminder)
	return mux
}

// NewServer constructs the asynq server that drives the worker.
func NewServer(redisOpt asynq.RedisConnOpt, concurrency int) *asynq.Server {
	if concurrency <= 0 {
		concurrency = 4
	}
	return asynq.NewServer(redisOpt, asynq.Config{
		Concurrency: concurrency,
		Queues:      map[string]int{queueName: 1},
	})
}
