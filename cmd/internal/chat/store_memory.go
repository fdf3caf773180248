package chat

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"dwell/cmd/internal/ids"
)

// InMemoryStore is a dev/test fallback when DB is not configured. It honors
// the same Store contract as PostgresStore, including the ErrConflict
// signal on duplicate participant pairs.
type InMemoryStore struct {
	mu            sync.RWMutex
	conversations map[string]Conversation
	messages      map[string][]Message // conversation id -> append order
}

// NewInMemoryStore constructs an in-memory conversation store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		conversations: make(map[string]Conversation),
		messages:      make(map[string][]Message),
	}
}

func sameScope(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func (s *InMemoryStore) findLocked(listingID *string, userA, userB string) (Conversation, bool) {
	for _, c := range s.conversations {
		if !sameScope(c.ListingID, listingID) {
			continue
		}
		if (c.InitiatorID == userA && c.PeerID == userB) ||
			(c.InitiatorID == userB && c.PeerID == userA) {
			return c, true
		}
	}
	return Conversation{}, false
}

// FindConversation matches the pair symmetrically within one listing scope.
func (s *InMemoryStore) FindConversation(ctx context.Context, listingID *string, userA, userB string) (Conversation, error) {
	if err := ctx.Err(); err != nil {
		return Conversation{}, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.findLocked(listingID, userA, userB)
	if !ok {
		return Conversation{}, ErrNotFound
	}
	return c, nil
}

// InsertConversation adds a conversation, returning ErrConflict when the
// pair already has one in the same listing scope.
func (s *InMemoryStore) InsertConversation(ctx context.Context, conv Conversation) (Conversation, error) {
	if err := ctx.Err(); err != nil {
		return Conversation{}, err
	}
	if conv.InitiatorID == "" || conv.PeerID == "" {
		return Conversation{}, errors.New("chat: missing participant")
	}
	if conv.InitiatorID == conv.PeerID {
		return Conversation{}, ErrInvalidRequest
	}

	now := time.Now().UTC()
	if conv.ID == "" {
		id, err := ids.NewULID(now)
		if err != nil {
			return Conversation{}, err
		}
		conv.ID = id
	}
	if conv.CreatedAt.IsZero() {
		conv.CreatedAt = now
	}
	if conv.UpdatedAt.IsZero() {
		conv.UpdatedAt = conv.CreatedAt
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.findLocked(conv.ListingID, conv.InitiatorID, conv.PeerID); ok {
		return Conversation{}, ErrConflict
	}
	if _, ok := s.conversations[conv.ID]; ok {
		return Conversation{}, ErrConflict
	}
	s.conversations[conv.ID] = conv
	return conv, nil
}

// GetConversation fetches one conversation by id.
func (s *InMemoryStore) GetConversation(ctx context.Context, id string) (Conversation, error) {
	if err := ctx.Err(); err != nil {
		return Conversation{}, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.conversations[id]
	if !ok {
		return Conversation{}, ErrNotFound
	}
	return c, nil
}

// ListConversationsForUser returns the user's conversations, most recently
// active first.
func (s *InMemoryStore) ListConversationsForUser(ctx context.Context, userID string, page, perPage int) ([]Conversation, int, error) {
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}
	if perPage <= 0 {
		return nil, 0, ErrInvalidRequest
	}
	if page <= 0 {
		page = 1
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var all []Conversation
	for _, c := range s.conversations {
		if c.Participant(userID) {
			all = append(all, c)
		}
	}
	sort.Slice(all, func(i, j int) bool {
		if !all[i].UpdatedAt.Equal(all[j].UpdatedAt) {
			return all[i].UpdatedAt.After(all[j].UpdatedAt)
		}
		return all[i].ID > all[j].ID
	})

	total := len(all)
	start := (page - 1) * perPage
	if start >= total {
		return []Conversation{}, total, nil
	}
	end := start + perPage
	if end > total {
		end = total
	}
	out := make([]Conversation, end-start)
	copy(out, all[start:end])
	return out, total, nil
}

// AppendMessage stores the message and bumps updated_at atomically under
// the store lock.
func (s *InMemoryStore) AppendMessage(ctx context.Context, conversationID, senderID, content string, now time.Time) (Message, error) {
	if err := ctx.Err(); err != nil {
		return Message{}, err
	}
	if conversationID == "" || senderID == "" || content == "" {
		return Message{}, errors.New("chat: invalid append input")
	}
	if now.IsZero() {
		now = time.Now().UTC()
	}

	id, err := ids.NewULID(now)
	if err != nil {
		return Message{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	conv, ok := s.conversations[conversationID]
	if !ok {
		return Message{}, ErrNotFound
	}

	m := Message{
		ID:             id,
		ConversationID: conversationID,
		SenderID:       senderID,
		Content:        content,
		CreatedAt:      now,
	}
	s.messages[conversationID] = append(s.messages[conversationID], m)

	conv.UpdatedAt = now
	s.conversations[conversationID] = conv
	return m, nil
}

// ListMessages returns a page of messages in chronological reading order.
func (s *InMemoryStore) ListMessages(ctx context.Context, conversationID string, page, perPage int) ([]Message, int, error) {
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}
	if perPage <= 0 {
		return nil, 0, ErrInvalidRequest
	}
	if page <= 0 {
		page = 1
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	all := s.messages[conversationID]
	total := len(all)
	start := (page - 1) * perPage
	if start >= total {
		return []Message{}, total, nil
	}
	end := start + perPage
	if end > total {
		end = total
	}
	out := make([]Message, end-start)
	copy(out, all[start:end])
	return out, total, nil
}

// MarkRead flips unread messages not sent by readerID.
func (s *InMemoryStore) MarkRead(ctx context.Context, conversationID, readerID string, now time.Time) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if now.IsZero() {
		now = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	msgs := s.messages[conversationID]
	var changed int64
	for i := range msgs {
		if msgs[i].SenderID != readerID && !msgs[i].IsRead {
			msgs[i].IsRead = true
			changed++
		}
	}
	if changed > 0 {
		if conv, ok := s.conversations[conversationID]; ok {
			conv.UpdatedAt = now
			s.conversations[conversationID] = conv
		}
	}
	return changed, nil
}

// CountUnread counts messages received by recipientID still unread.
func (s *InMemoryStore) CountUnread(ctx context.Context, conversationID, recipientID string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int64
	for _, m := range s.messages[conversationID] {
		if m.SenderID != recipientID && !m.IsRead {
			n++
		}
	}
	return n, nil
}
