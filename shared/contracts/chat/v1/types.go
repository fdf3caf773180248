// Package v1 defines the Dwell chat wire contract.
//
// This package is intentionally stable and dependency-light.
// It is shared between server and clients to keep the wire protocol authoritative.
package v1

import (
	"errors"
	"fmt"
	"time"
	"unicode/utf8"
)

// MaxContentChars is the maximum message content length in runes.
const MaxContentChars = 2000

// MessageCreate is the inbound live-channel frame: a request to send one
// message into the conversation the socket is scoped to.
type MessageCreate struct {
	Content string `json:"content"`
}

// Validate performs structural validation for a MessageCreate frame.
func (m MessageCreate) Validate() error {
	if m.Content == "" {
		return errors.New("missing field: content")
	}
	if n := utf8.RuneCountInString(m.Content); n > MaxContentChars {
		return fmt.Errorf("content too long: %d chars (max %d)", n, MaxContentChars)
	}
	return nil
}

// UserSummary is the participant detail embedded in message and chat payloads.
type UserSummary struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
	AvatarURL string `json:"avatar_url,omitempty"`
}

// MessageEvent is the outbound live-channel frame and the canonical HTTP
// message shape: one persisted message with full sender detail.
type MessageEvent struct {
	ID             string      `json:"id"`
	ConversationID string      `json:"chat_id"`
	SenderID       string      `json:"sender_id"`
	Content        string      `json:"content"`
	IsRead         bool        `json:"is_read"`
	CreatedAt      time.Time   `json:"created_at"`
	Sender         UserSummary `json:"sender"`
}

// ChatSummary is the conversation overview shape returned by the HTTP API.
type ChatSummary struct {
	ID          string      `json:"id"`
	ListingID   *string     `json:"listing_id"`
	InitiatorID string      `json:"initiator_id"`
	PeerID      string      `json:"peer_id"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
	Initiator   UserSummary `json:"initiator"`
	Peer        UserSummary `json:"peer"`
}

// PaginatedChats is a page of conversation summaries.
type PaginatedChats struct {
	Items      []ChatSummary `json:"items"`
	Total      int           `json:"total"`
	Page       int           `json:"page"`
	PerPage    int           `json:"per_page"`
	TotalPages int           `json:"total_pages"`
}

// PaginatedMessages is a page of messages in chronological reading order.
type PaginatedMessages struct {
	Items      []MessageEvent `json:"items"`
	Total      int            `json:"total"`
	Page       int            `json:"page"`
	PerPage    int            `json:"per_page"`
	TotalPages int            `json:"total_pages"`
}
