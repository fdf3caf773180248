// Package notify schedules and processes delayed unread-message reminders.
// When a message stays unread past the reminder delay, the recipient is
// nudged through the configured sender.
package notify

import "encoding/json"

// TypeUnreadReminder is the task type for delayed unread reminders.
const TypeUnreadReminder = "chat:unread_reminder"

// UnreadReminderPayload is the task payload for TypeUnreadReminder.
type UnreadReminderPayload struct {
	ConversationID string `json:"conversation_id"`
	RecipientID    string `json:"recipient_id"`
}

func (p UnreadReminderPayload) marshal() ([]byte, error) {
	return json.Marshal(p)
}
