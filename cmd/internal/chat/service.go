package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
	"unicode/utf8"

	"dwell/cmd/internal/directory"
)

// Content and pagination bounds enforced by the Service.
const (
	MaxContentChars = 2000

	DefaultPerPage = 20
	MaxPerPage     = 100
)

// ReminderEnqueuer schedules a delayed unread-message reminder for the
// recipient of a freshly appended message. Implementations must be safe for
// concurrent use. Enqueue failures are logged by the Service and never fail
// the message append.
type ReminderEnqueuer interface {
	EnqueueUnreadReminder(ctx context.Context, conversationID, recipientID string) error
}

// NopEnqueuer is a ReminderEnqueuer that drops every reminder. Used when no
// task queue is configured.
type NopEnqueuer struct{}

func (NopEnqueuer) EnqueueUnreadReminder(context.Context, string, string) error { return nil }

// ConversationView is a conversation joined with both participants'
// directory records.
type ConversationView struct {
	Conversation
	Initiator directory.User
	Peer      directory.User
}

// MessageView is a message joined with its sender's directory record.
type MessageView struct {
	Message
	Sender directory.User
}

// Service implements conversation resolution, the participant access gate,
// and message operations on top of a Store.
type Service struct {
	log       *slog.Logger
	store     Store
	users     directory.Users
	listings  directory.Listings
	reminders ReminderEnqueuer
}

// NewService wires a chat Service. reminders may be nil, in which case
// reminders are disabled.
func NewService(log *slog.Logger, store Store, users directory.Users, listings directory.Listings, reminders ReminderEnqueuer) (*Service, error) {
	if log == nil {
		return nil, errors.New("chat: nil logger")
	}
	if store == nil {
		return nil, errors.New("chat: nil store")
	}
	if users == nil || listings == nil {
		return nil, errors.New("chat: nil directory")
	}
	if reminders == nil {
		reminders = NopEnqueuer{}
	}
	return &Service{
		log:       log,
		store:     store,
		users:     users,
		listings:  listings,
		reminders: reminders,
	}, nil
}

// FindOrCreateListingChat resolves the conversation between initiatorID and
// the lister of listingID, creating it on first contact. Repeated calls
// return the same conversation regardless of which participant asks.
func (s *Service) FindOrCreateListingChat(ctx context.Context, initiatorID, listingID string) (ConversationView, error) {
	if initiatorID == "" || listingID == "" {
		return ConversationView{}, fmt.Errorf("%w: missing id", ErrInvalidRequest)
	}

	listing, err := s.listings.GetListingByID(ctx, listingID)
	if err != nil {
		if directory.IsNotFound(err) {
			return ConversationView{}, fmt.Errorf("%w: listing %s", ErrNotFound, listingID)
		}
		return ConversationView{}, err
	}
	// A listing without a responsible party has nobody to chat with.
	if listing.ListerID == "" {
		return ConversationView{}, fmt.Errorf("%w: listing %s has no lister", ErrInvalidRequest, listingID)
	}
	if listing.ListerID == initiatorID {
		return ConversationView{}, fmt.Errorf("%w: cannot chat about own listing", ErrInvalidRequest)
	}

	return s.findOrCreate(ctx, &listing.ID, initiatorID, listing.ListerID)
}

// FindOrCreateDirectChat resolves the listing-independent conversation
// between initiatorID and peerID, creating it on first contact.
func (s *Service) FindOrCreateDirectChat(ctx context.Context, initiatorID, peerID string) (ConversationView, error) {
	if initiatorID == "" || peerID == "" {
		return ConversationView{}, fmt.Errorf("%w: missing id", ErrInvalidRequest)
	}
	if initiatorID == peerID {
		return ConversationView{}, fmt.Errorf("%w: cannot chat with yourself", ErrInvalidRequest)
	}

	if _, err := s.users.GetUserByID(ctx, peerID); err != nil {
		if directory.IsNotFound(err) {
			return ConversationView{}, fmt.Errorf("%w: user %s", ErrNotFound, peerID)
		}
		return ConversationView{}, err
	}

	return s.findOrCreate(ctx, nil, initiatorID, peerID)
}

// findOrCreate is the resolver core. Lost insert races (ErrConflict from the
// store's uniqueness constraint) resolve by re-fetching the winner's row.
func (s *Service) findOrCreate(ctx context.Context, listingID *string, initiatorID, peerID string) (ConversationView, error) {
	conv, err := s.store.FindConversation(ctx, listingID, initiatorID, peerID)
	switch {
	case err == nil:
		return s.conversationView(ctx, conv)
	case errors.Is(err, ErrNotFound):
		// fall through to create
	default:
		return ConversationView{}, err
	}

	conv, err = s.store.InsertConversation(ctx, Conversation{
		ListingID:   listingID,
		InitiatorID: initiatorID,
		PeerID:      peerID,
	})
	if errors.Is(err, ErrConflict) {
		// A concurrent first contact won the insert. Its row is what both
		// parties should see.
		conv, err = s.store.FindConversation(ctx, listingID, initiatorID, peerID)
	}
	if err != nil {
		return ConversationView{}, err
	}

	s.log.InfoContext(ctx, "chat.conversation.created",
		"conversation_id", conv.ID,
		"initiator_id", conv.InitiatorID,
		"peer_id", conv.PeerID,
		"listing", conv.ListingID != nil,
	)
	return s.conversationView(ctx, conv)
}

// GetConversation is the access gate: it loads the conversation and verifies
// userID participates. Missing conversations are ErrNotFound; existing ones
// the user is not part of are ErrForbidden, so the two stay distinguishable
// at the API boundary.
func (s *Service) GetConversation(ctx context.Context, conversationID, userID string) (Conversation, error) {
	if conversationID == "" {
		return Conversation{}, fmt.Errorf("%w: missing conversation id", ErrInvalidRequest)
	}

	conv, err := s.store.GetConversation(ctx, conversationID)
	if err != nil {
		return Conversation{}, err
	}
	if !conv.Participant(userID) {
		return Conversation{}, fmt.Errorf("%w: not a participant", ErrForbidden)
	}
	return conv, nil
}

// ListConversations returns the user's conversations, most recently active
// first, joined with participant details.
func (s *Service) ListConversations(ctx context.Context, userID string, page, perPage int) ([]ConversationView, int, int, error) {
	page, perPage, err := normalizePage(page, perPage)
	if err != nil {
		return nil, 0, 0, err
	}

	convs, total, err := s.store.ListConversationsForUser(ctx, userID, page, perPage)
	if err != nil {
		return nil, 0, 0, err
	}

	views := make([]ConversationView, 0, len(convs))
	for _, c := range convs {
		v, err := s.conversationView(ctx, c)
		if err != nil {
			return nil, 0, 0, err
		}
		views = append(views, v)
	}
	return views, total, TotalPages(total, perPage), nil
}

// AppendMessage validates and persists a message from senderID, schedules an
// unread reminder for the recipient, and returns the stored message joined
// with sender details. The caller must have already passed the access gate
// for long-lived sessions; one-shot callers can rely on the gate here.
func (s *Service) AppendMessage(ctx context.Context, conversationID, senderID, content string, now time.Time) (MessageView, error) {
	if err := ValidateContent(content); err != nil {
		return MessageView{}, err
	}

	conv, err := s.GetConversation(ctx, conversationID, senderID)
	if err != nil {
		return MessageView{}, err
	}

	msg, err := s.store.AppendMessage(ctx, conv.ID, senderID, content, now)
	if err != nil {
		return MessageView{}, err
	}

	recipient := conv.Other(senderID)
	if err := s.reminders.EnqueueUnreadReminder(ctx, conv.ID, recipient); err != nil {
		// Reminders are best effort; the message is already durable.
		s.log.WarnContext(ctx, "chat.reminder.enqueue_failed",
			"conversation_id", conv.ID,
			"recipient_id", recipient,
			"error", err,
		)
	}

	sender, err := s.users.GetUserByID(ctx, senderID)
	if err != nil {
		return MessageView{}, err
	}
	return MessageView{Message: msg, Sender: sender}, nil
}

// ListMessages returns a page of the conversation's history in chronological
// order, after the access gate.
func (s *Service) ListMessages(ctx context.Context, conversationID, userID string, page, perPage int) ([]MessageView, int, int, error) {
	page, perPage, err := normalizePage(page, perPage)
	if err != nil {
		return nil, 0, 0, err
	}

	if _, err := s.GetConversation(ctx, conversationID, userID); err != nil {
		return nil, 0, 0, err
	}

	msgs, total, err := s.store.ListMessages(ctx, conversationID, page, perPage)
	if err != nil {
		return nil, 0, 0, err
	}

	// Conversations have exactly two participants, so at most two lookups.
	senders := make(map[string]directory.User, 2)
	views := make([]MessageView, 0, len(msgs))
	for _, m := range msgs {
		u, ok := senders[m.SenderID]
		if !ok {
			u, err = s.users.GetUserByID(ctx, m.SenderID)
			if err != nil {
				return nil, 0, 0, err
			}
			senders[m.SenderID] = u
		}
		views = append(views, MessageView{Message: m, Sender: u})
	}
	return views, total, TotalPages(total, perPage), nil
}

// MarkRead marks every message readerID has received in the conversation as
// read. The reader's own messages are untouched. Returns the number of
// messages flipped; calling again immediately returns 0.
func (s *Service) MarkRead(ctx context.Context, conversationID, readerID string, now time.Time) (int64, error) {
	if _, err := s.GetConversation(ctx, conversationID, readerID); err != nil {
		return 0, err
	}
	return s.store.MarkRead(ctx, conversationID, readerID, now)
}

func (s *Service) conversationView(ctx context.Context, conv Conversation) (ConversationView, error) {
	initiator, err := s.users.GetUserByID(ctx, conv.InitiatorID)
	if err != nil {
		return ConversationView{}, fmt.Errorf("load initiator: %w", err)
	}
	peer, err := s.users.GetUserByID(ctx, conv.PeerID)
	if err != nil {
		return ConversationView{}, fmt.Errorf("load peer: %w", err)
	}
	return ConversationView{Conversation: conv, Initiator: initiator, Peer: peer}, nil
}

// ValidateContent checks message content bounds: non-empty, at most
// MaxContentChars characters (counted as runes, not bytes).
func ValidateContent(content string) error {
	if content == "" {
		return fmt.Errorf("%w: empty message", ErrInvalidRequest)
	}
	if utf8.RuneCountInString(content) > MaxContentChars {
		return fmt.Errorf("%w: message exceeds %d characters", ErrInvalidRequest, MaxContentChars)
	}
	return nil
}

func normalizePage(page, perPage int) (int, int, error) {
	if page == 0 {
		page = 1
	}
	if perPage == 0 {
		perPage = DefaultPerPage
	}
	if page < 1 {
		return 0, 0, fmt.Errorf("%w: page must be >= 1", ErrInvalidRequest)
	}
	if perPage < 1 || perPage > MaxPerPage {
		return 0, 0, fmt.Errorf("%w: per_page must be between 1 and %d", ErrInvalidRequest, MaxPerPage)
	}
	return page, perPage, nil
}
