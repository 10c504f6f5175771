package httpdto

import "parley-chat/internal/domain/message"

// SendMessageRequest is used for POST /v1/messages. Exactly one of GroupID
// and ReceiverID is set.
type SendMessageRequest struct {
	GroupID     string          `json:"group_id,omitempty"`
	ReceiverID  string          `json:"receiver_id,omitempty"`
	Content     string          `json:"content"`
	Type        string          `json:"type,omitempty"`
	Attachments []AttachmentDTO `json:"attachments,omitempty"`
	ReplyTo     string          `json:"reply_to,omitempty"`
	TempID      string          `json:"temp_id"`
}

type AttachmentDTO struct {
	URL      string `json:"url" binding:"required"`
	Name     string `json:"name"`
	MimeType string `json:"mime_type"`
	Size     int64  `json:"size,omitempty"`
}

// SendMessageResponse carries the durable message and echoes the client's temp id.
type SendMessageResponse struct {
	Message   message.Message `json:"message"`
	TempID    string          `json:"temp_id,omitempty"`
	Duplicate bool            `json:"duplicate,omitempty"`
}

type ReactionRequest struct {
	Emoji string `json:"emoji" binding:"required"`
}

// SetPinRequest clears the pin when MessageID is null.
type SetPinRequest struct {
	MessageID *string `json:"message_id"`
}

type HistoryRequest struct {
	Cursor string `form:"cursor"`
	Limit  int    `form:"limit"`
}

type SearchRequest struct {
	Query string `form:"q" binding:"required"`
	Limit int    `form:"limit"`
}

type ConversationSeenResponse struct {
	Updated int64 `json:"updated"`
}

type PinResponse struct {
	Pin *message.Pin `json:"pin"`
}
