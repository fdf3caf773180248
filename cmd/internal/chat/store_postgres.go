package chat

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"dwell/cmd/internal/ids"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore is a Store backed by PostgreSQL.
//
// Ownership model:
// - PostgresStore does NOT own the pgx pool. The caller must close the pool.
//
// Concurrency model:
// - Each operation runs in a short-lived transaction (or single statement);
//   no transaction is held across calls.
// - The (listing, participant-pair) uniqueness index makes concurrent
//   first-contact inserts fail with 23505, surfaced as ErrConflict.
type PostgresStore struct {
	pool   *pgxpool.Pool
	schema string
}

// PostgresOption configures PostgresStore behavior.
type PostgresOption func(*PostgresStore) error

// WithSchema sets the DB schema used by this store (default: "dwell").
// The schema name is validated and safely quoted in queries.
func WithSchema(schema string) PostgresOption {
	return func(s *PostgresStore) error {
		schema = strings.TrimSpace(schema)
		if schema == "" {
			return errors.New("chat: empty schema")
		}
		if !isValidPGIdent(schema) {
			return errors.New("chat: invalid schema identifier")
		}
		s.schema = schema
		return nil
	}
}

// NewPostgresStore constructs a Postgres-backed conversation store.
func NewPostgresStore(pool *pgxpool.Pool, opts ...PostgresOption) (*PostgresStore, error) {
	st := &PostgresStore{
		pool:   pool,
		schema: "dwell",
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(st); err != nil {
			return nil, err
		}
	}
	if st.pool == nil {
		return nil, errors.New("chat: nil pool")
	}
	return st, nil
}

const conversationCols = `id, listing_id, initiator_id, peer_id, created_at, updated_at`
const messageCols = `id, conversation_id, sender_id, content, is_read, created_at`

// FindConversation matches the pair symmetrically within one listing scope
// (nil listingID selects direct chats).
func (s *PostgresStore) FindConversation(ctx context.Context, listingID *string, userA, userB string) (Conversation, error) {
	conversations := pgIdent(s.schema, "conversations")

	row := s.pool.QueryRow(ctx,
		`SELECT `+conversationCols+`
		   FROM `+conversations+`
		  WHERE listing_id IS NOT DISTINCT FROM $1
		    AND ((initiator_id = $2 AND peer_id = $3) OR (initiator_id = $3 AND peer_id = $2))`,
		listingID, userA, userB,
	)
	return scanConversation(row)
}

// InsertConversation persists a new conversation. A uniqueness violation on
// the participant-pair index maps to ErrConflict.
func (s *PostgresStore) InsertConversation(ctx context.Context, conv Conversation) (Conversation, error) {
	if conv.InitiatorID == "" || conv.PeerID == "" {
		return Conversation{}, errors.New("chat: missing participant")
	}
	if conv.InitiatorID == conv.PeerID {
		return Conversation{}, fmt.Errorf("%w: self-chat", ErrInvalidRequest)
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

	conversations := pgIdent(s.schema, "conversations")
	_, err := s.pool.Exec(ctx,
		`INSERT INTO `+conversations+` (`+conversationCols+`) VALUES ($1, $2, $3, $4, $5, $6)`,
		conv.ID, conv.ListingID, conv.InitiatorID, conv.PeerID, conv.CreatedAt, conv.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return Conversation{}, ErrConflict
		}
		return Conversation{}, err
	}
	return conv, nil
}

// GetConversation fetches one conversation by id.
func (s *PostgresStore) GetConversation(ctx context.Context, id string) (Conversation, error) {
	conversations := pgIdent(s.schema, "conversations")

	row := s.pool.QueryRow(ctx,
		`SELECT `+conversationCols+` FROM `+conversations+` WHERE id = $1`, id)
	return scanConversation(row)
}

// ListConversationsForUser returns conversations with the user in either
// participant slot, most recently active first.
func (s *PostgresStore) ListConversationsForUser(ctx context.Context, userID string, page, perPage int) ([]Conversation, int, error) {
	if perPage <= 0 {
		return nil, 0, fmt.Errorf("%w: per_page must be positive", ErrInvalidRequest)
	}
	if page <= 0 {
		page = 1
	}

	conversations := pgIdent(s.schema, "conversations")

	var total int
	if err := s.pool.QueryRow(ctx,
		`SELECT count(*) FROM `+conversations+` WHERE initiator_id = $1 OR peer_id = $1`,
		userID,
	).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := s.pool.Query(ctx,
		`SELECT `+conversationCols+`
		   FROM `+conversations+`
		  WHERE initiator_id = $1 OR peer_id = $1
		  ORDER BY updated_at DESC, id DESC
		  LIMIT $2 OFFSET $3`,
		userID, perPage, (page-1)*perPage,
	)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	items := make([]Conversation, 0, perPage)
	for rows.Next() {
		c, err := scanConversation(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, c)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

// AppendMessage inserts the message and bumps the conversation's updated_at
// in one transaction, so history visibility implies recency ordering.
func (s *PostgresStore) AppendMessage(ctx context.Context, conversationID, senderID, content string, now time.Time) (Message, error) {
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

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{
		IsoLevel:   pgx.ReadCommitted,
		AccessMode: pgx.ReadWrite,
	})
	if err != nil {
		return Message{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	messages := pgIdent(s.schema, "messages")
	conversations := pgIdent(s.schema, "conversations")

	if _, err := tx.Exec(ctx,
		`INSERT INTO `+messages+` (`+messageCols+`) VALUES ($1, $2, $3, $4, false, $5)`,
		id, conversationID, senderID, content, now,
	); err != nil {
		return Message{}, fmt.Errorf("insert message: %w", err)
	}

	tag, err := tx.Exec(ctx,
		`UPDATE `+conversations+` SET updated_at = $2 WHERE id = $1`,
		conversationID, now,
	)
	if err != nil {
		return Message{}, fmt.Errorf("bump conversation: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return Message{}, ErrNotFound
	}

	if err := tx.Commit(ctx); err != nil {
		return Message{}, err
	}

	return Message{
		ID:             id,
		ConversationID: conversationID,
		SenderID:       senderID,
		Content:        content,
		IsRead:         false,
		CreatedAt:      now,
	}, nil
}

// ListMessages returns a page of messages in chronological reading order.
func (s *PostgresStore) ListMessages(ctx context.Context, conversationID string, page, perPage int) ([]Message, int, error) {
	if perPage <= 0 {
		return nil, 0, fmt.Errorf("%w: per_page must be positive", ErrInvalidRequest)
	}
	if page <= 0 {
		page = 1
	}

	messages := pgIdent(s.schema, "messages")

	var total int
	if err := s.pool.QueryRow(ctx,
		`SELECT count(*) FROM `+messages+` WHERE conversation_id = $1`,
		conversationID,
	).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := s.pool.Query(ctx,
		`SELECT `+messageCols+`
		   FROM `+messages+`
		  WHERE conversation_id = $1
		  ORDER BY created_at ASC, id ASC
		  LIMIT $2 OFFSET $3`,
		conversationID, perPage, (page-1)*perPage,
	)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	items := make([]Message, 0, perPage)
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.SenderID, &m.Content, &m.IsRead, &m.CreatedAt); err != nil {
			return nil, 0, err
		}
		items = append(items, m)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

// MarkRead flips unread messages not sent by readerID and bumps the
// conversation's updated_at when anything changed. Returns the number of
// rows flipped; a second call returns 0.
func (s *PostgresStore) MarkRead(ctx context.Context, conversationID, readerID string, now time.Time) (int64, error) {
	if now.IsZero() {
		now = time.Now().UTC()
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{
		IsoLevel:   pgx.ReadCommitted,
		AccessMode: pgx.ReadWrite,
	})
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	messages := pgIdent(s.schema, "messages")
	conversations := pgIdent(s.schema, "conversations")

	tag, err := tx.Exec(ctx,
		`UPDATE `+messages+`
		    SET is_read = true
		  WHERE conversation_id = $1 AND sender_id <> $2 AND is_read = false`,
		conversationID, readerID,
	)
	if err != nil {
		return 0, err
	}

	changed := tag.RowsAffected()
	if changed > 0 {
		if _, err := tx.Exec(ctx,
			`UPDATE `+conversations+` SET updated_at = $2 WHERE id = $1`,
			conversationID, now,
		); err != nil {
			return 0, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, err
	}
	return changed, nil
}

// CountUnread counts messages received by recipientID that are still unread.
func (s *PostgresStore) CountUnread(ctx context.Context, conversationID, recipientID string) (int64, error) {
	messages := pgIdent(s.schema, "messages")

	var n int64
	err := s.pool.QueryRow(ctx,
		`SELECT count(*) FROM `+messages+`
		  WHERE conversation_id = $1 AND sender_id <> $2 AND is_read = false`,
		conversationID, recipientID,
	).Scan(&n)
	if err != nil {
		return 0, err
	}
	return n, nil
}

func scanConversation(row pgx.Row) (Conversation, error) {
	var c Conversation
	err := row.Scan(&c.ID, &c.ListingID, &c.InitiatorID, &c.PeerID, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Conversation{}, ErrNotFound
	}
	if err != nil {
		return Conversation{}, err
	}
	return c, nil
}

var pgIdentRE = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

func isValidPGIdent(s string) bool {
	return pgIdentRE.MatchString(s)
}

func pgIdent(schema, table string) string {
	// pgx.Identifier safely quotes identifiers, preventing SQL injection.
	return pgx.Identifier{schema, table}.Sanitize()
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
