package chatapi

import (
	"dwell/cmd/internal/chat"
	"dwell/cmd/internal/directory"
	chatv1 "dwell/shared/contracts/chat/v1"
)

type markReadResponse struct {
	Updated int64 `json:"updated"`
}

func toUserSummary(u directory.User) chatv1.UserSummary {
	return chatv1.UserSummary{
		ID:        u.ID,
		Email:     u.Email,
		FirstName: u.FirstName,
		LastName:  u.LastName,
		AvatarURL: u.AvatarURL,
	}
}

func toChatSummary(v chat.ConversationView) chatv1.ChatSummary {
	return chatv1.ChatSummary{
		ID:          v.ID,
		ListingID:   v.ListingID,
		InitiatorID: v.InitiatorID,
		PeerID:      v.PeerID,
		CreatedAt:   v.CreatedAt,
		UpdatedAt:   v.UpdatedAt,
		Initiator:   toUserSummary(v.Initiator),
		Peer:        toUserSummary(v.Peer),
	}
}

func toMessageEvent(v chat.MessageView) chatv1.MessageEvent {
	return chatv1.MessageEvent{
		ID:             v.ID,
		ConversationID: v.ConversationID,
		SenderID:       v.SenderID,
		Content:        v.Content,
		IsRead:         v.IsRead,
		CreatedAt:      v.CreatedAt,
		Sender:         toUserSummary(v.Sender),
	}
}

func toPaginatedChats(views []chat.ConversationView, total, page, perPage, totalPages int) chatv1.PaginatedChats {
	items := make([]chatv1.ChatSummary, 0, len(views))
	for _, v := range views {
		items = append(items, toChatSummary(v))
	}
	return chatv1.PaginatedChats{
		Items:      items,
		Total:      total,
		Page:       page,
		PerPage:    perPage,
		TotalPages: totalPages,
	}
}

func toPaginatedMessages(views []chat.MessageView, total, page, perPage, totalPages int) chatv1.PaginatedMessages {
	items := make([]chatv1.MessageEvent, 0, len(views))
	for _, v := range views {
		items = append(items, toMessageEvent(v))
	}
	return chatv1.PaginatedMessages{
		Items:      items,
		Total:      total,
		Page:       page,
		PerPage:    perPage,
		TotalPages: totalPages,
	}
}
