// Package chat contains Dwell's conversation store, resolver and access
// gate: durable two-party conversations (optionally bound to a listing)
// with ordered, paginated message history.
package chat

import (
	"context"
	"time"
)

// Conversation is a persistent pairing of exactly two users, optionally
// scoped to one listing. The pairing is symmetric: InitiatorID/PeerID record
// who opened the conversation, but lookups must match either order.
type Conversation struct {
	ID          string
	ListingID   *string // nil for direct chats
	InitiatorID string
	PeerID      string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Participant reports whether userID is one of the two participants.
func (c Conversation) Participant(userID string) bool {
	return userID != "" && (userID == c.InitiatorID || userID == c.PeerID)
}

// Other returns the participant opposite to userID, or "" if userID is not
// a participant.
func (c Conversation) Other(userID string) string {
	switch userID {
	case c.InitiatorID:
		return c.PeerID
	case c.PeerID:
		return c.InitiatorID
	default:
		return ""
	}
}

// Message is one immutable chat message. Only the read flag may change
// after creation.
type Message struct {
	ID             string
	ConversationID string
	SenderID       string
	Content        string
	IsRead         bool
	CreatedAt      time.Time
}

// Store persists conversations and messages.
//
// Requirements:
//   - FindConversation matches the participant pair in either slot order.
//   - InsertConversation returns ErrConflict on the uniqueness constraint so
//     callers can resolve the concurrent first-contact race.
//   - AppendMessage writes the message row and bumps the conversation's
//     updated_at in one transaction.
//   - ListMessages orders by created_at ASC (id tiebreak); conversations
//     list orders by updated_at DESC.
type Store interface {
	FindConversation(ctx context.Context, listingID *string, userA, userB string) (Conversation, error)
	InsertConversation(ctx context.Context, conv Conversation) (Conversation, error)
	GetConversation(ctx context.Context, id string) (Conversation, error)
	ListConversationsForUser(ctx context.Context, userID string, page, perPage int) ([]Conversation, int, error)
	AppendMessage(ctx context.Context, conversationID, senderID, content string, now time.Time) (Message, error)
	ListMessages(ctx context.Context, conversationID string, page, perPage int) ([]Message, int, error)
	MarkRead(ctx context.Context, conversationID, readerID string, now time.Time) (int64, error)
	CountUnread(ctx context.Context, conversationID, recipientID string) (int64, error)
}

// TotalPages returns ceil(total/perPage), or 0 when total == 0.
// perPage must be positive; callers validate before reaching the store.
func TotalPages(total, perPage int) int {
	if total <= 0 || perPage <= 0 {
		return 0
	}
	return (total + perPage - 1) / perPage
}
