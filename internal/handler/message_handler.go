package handler

import (
	"net/http"
	"strings"

	"parley-chat/internal/commands"
	"parley-chat/internal/domain/message"
	"parley-chat/internal/domain/room"
	"parley-chat/internal/services"
	"parley-chat/internal/transport/httpdto"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// MessageHandler exposes the delivery operations over HTTP. Writes go through
// the command bus; reads call the service directly.
type MessageHandler struct {
	bus     *commands.Bus
	service *services.DeliveryService
}

func NewMessageHandler(bus *commands.Bus, service *services.DeliveryService) *MessageHandler {
	return &MessageHandler{bus: bus, service: service}
}

func (h *MessageHandler) Send(c *gin.Context) {
	var req httpdto.SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, httpdto.NewErrorResponse("invalid request", "INVALID_REQUEST"))
		return
	}

	userID, ok := services.UserIDFromContext(c.Request.Context())
	if !ok {
		c.JSON(http.StatusUnauthorized, httpdto.NewErrorResponse("unauthorized", "UNAUTHORIZED"))
		return
	}

	groupID, err := parseOptionalUUID(req.GroupID)
	if err != nil {
		c.JSON(http.StatusBadRequest, httpdto.NewErrorResponse("invalid group_id", "INVALID_REQUEST"))
		return
	}
	receiverID, err := parseOptionalUUID(req.ReceiverID)
	if err != nil {
		c.JSON(http.StatusBadRequest, httpdto.NewErrorResponse("invalid receiver_id", "INVALID_REQUEST"))
		return
	}

	result, err := h.bus.Execute(c.Request.Context(), commands.SendMessageCommand{
		SenderID:    userID,
		GroupID:     groupID,
		ReceiverID:  receiverID,
		Content:     req.Content,
		Type:        message.Type(req.Type),
		Attachments: toAttachments(req.Attachments),
		ReplyTo:     req.ReplyTo,
		TempID:      req.TempID,
	})
	if err != nil {
		_ = c.Error(err)
		return
	}

	sent, _ := result.Payload.(services.SendResult)
	status := http.StatusCreated
	if sent.Duplicate {
		status = http.StatusOK
	}
	c.JSON(status, httpdto.NewSuccessResponse(httpdto.SendMessageResponse{
		Message:   sent.Message,
		TempID:    sent.TempID,
		Duplicate: sent.Duplicate,
	}))
}

func (h *MessageHandler) MarkSeen(c *gin.Context) {
	userID, ok := services.UserIDFromContext(c.Request.Context())
	if !ok {
		c.JSON(http.StatusUnauthorized, httpdto.NewErrorResponse("unauthorized", "UNAUTHORIZED"))
		return
	}
	_, err := h.bus.Execute(c.Request.Context(), commands.MarkSeenCommand{
		UserID:    userID,
		MessageID: c.Param("id"),
	})
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse[any](nil))
}

func (h *MessageHandler) MarkConversationSeen(c *gin.Context) {
	userID, ok := services.UserIDFromContext(c.Request.Context())
	if !ok {
		c.JSON(http.StatusUnauthorized, httpdto.NewErrorResponse("unauthorized", "UNAUTHORIZED"))
		return
	}
	key, err := room.Parse(c.Param("key"))
	if err != nil {
		c.JSON(http.StatusBadRequest, httpdto.NewErrorResponse("invalid conversation key", "INVALID_REQUEST"))
		return
	}
	result, err := h.bus.Execute(c.Request.Context(), commands.MarkConversationSeenCommand{
		UserID:          userID,
		ConversationKey: key,
	})
	if err != nil {
		_ = c.Error(err)
		return
	}
	updated, _ := result.Payload.(int64)
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(httpdto.ConversationSeenResponse{Updated: updated}))
}

func (h *MessageHandler) AddReaction(c *gin.Context) {
	h.react(c, false)
}

func (h *MessageHandler) RemoveReaction(c *gin.Context) {
	h.react(c, true)
}

func (h *MessageHandler) react(c *gin.Context, remove bool) {
	var req httpdto.ReactionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, httpdto.NewErrorResponse("invalid request", "INVALID_REQUEST"))
		return
	}
	userID, ok := services.UserIDFromContext(c.Request.Context())
	if !ok {
		c.JSON(http.StatusUnauthorized, httpdto.NewErrorResponse("unauthorized", "UNAUTHORIZED"))
		return
	}
	_, err := h.bus.Execute(c.Request.Context(), commands.ReactCommand{
		UserID:    userID,
		MessageID: c.Param("id"),
		Emoji:     req.Emoji,
		Remove:    remove,
	})
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse[any](nil))
}

func (h *MessageHandler) SetPin(c *gin.Context) {
	var req httpdto.SetPinRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, httpdto.NewErrorResponse("invalid request", "INVALID_REQUEST"))
		return
	}
	userID, ok := services.UserIDFromContext(c.Request.Context())
	if !ok {
		c.JSON(http.StatusUnauthorized, httpdto.NewErrorResponse("unauthorized", "UNAUTHORIZED"))
		return
	}
	key, err := room.Parse(c.Param("key"))
	if err != nil {
		c.JSON(http.StatusBadRequest, httpdto.NewErrorResponse("invalid conversation key", "INVALID_REQUEST"))
		return
	}
	_, err = h.bus.Execute(c.Request.Context(), commands.SetPinCommand{
		UserID:          userID,
		ConversationKey: key,
		MessageID:       req.MessageID,
	})
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse[any](nil))
}

func (h *MessageHandler) GetPin(c *gin.Context) {
	userID, key, ok := h.conversationParams(c)
	if !ok {
		return
	}
	pin, err := h.service.GetPin(c.Request.Context(), userID, key)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(httpdto.PinResponse{Pin: pin}))
}

func (h *MessageHandler) History(c *gin.Context) {
	var req httpdto.HistoryRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, httpdto.NewErrorResponse("invalid limit", "INVALID_REQUEST"))
		return
	}
	userID, key, ok := h.conversationParams(c)
	if !ok {
		return
	}
	page, err := h.service.ListHistory(c.Request.Context(), userID, key, req.Cursor, req.Limit)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(page))
}

func (h *MessageHandler) Search(c *gin.Context) {
	var req httpdto.SearchRequest
	if err := c.ShouldBindQuery(&req); err != nil || strings.TrimSpace(req.Query) == "" {
		c.JSON(http.StatusBadRequest, httpdto.NewErrorResponse("q is required", "INVALID_REQUEST"))
		return
	}
	userID, key, ok := h.conversationParams(c)
	if !ok {
		return
	}
	items, err := h.service.Search(c.Request.Context(), userID, key, req.Query, req.Limit)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(gin.H{"messages": items}))
}

func (h *MessageHandler) Recall(c *gin.Context) {
	userID, ok := services.UserIDFromContext(c.Request.Context())
	if !ok {
		c.JSON(http.StatusUnauthorized, httpdto.NewErrorResponse("unauthorized", "UNAUTHORIZED"))
		return
	}
	_, err := h.bus.Execute(c.Request.Context(), commands.RecallMessageCommand{
		UserID:    userID,
		MessageID: c.Param("id"),
	})
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse[any](nil))
}

func (h *MessageHandler) DeleteForMe(c *gin.Context) {
	userID, ok := services.UserIDFromContext(c.Request.Context())
	if !ok {
		c.JSON(http.StatusUnauthorized, httpdto.NewErrorResponse("unauthorized", "UNAUTHORIZED"))
		return
	}
	_, err := h.bus.Execute(c.Request.Context(), commands.DeleteForMeCommand{
		UserID:    userID,
		MessageID: c.Param("id"),
	})
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse[any](nil))
}

func (h *MessageHandler) conversationParams(c *gin.Context) (uuid.UUID, room.Key, bool) {
	userID, ok := services.UserIDFromContext(c.Request.Context())
	if !ok {
		c.JSON(http.StatusUnauthorized, httpdto.NewErrorResponse("unauthorized", "UNAUTHORIZED"))
		return uuid.Nil, "", false
	}
	key, err := room.Parse(c.Param("key"))
	if err != nil {
		c.JSON(http.StatusBadRequest, httpdto.NewErrorResponse("invalid conversation key", "INVALID_REQUEST"))
		return uuid.Nil, "", false
	}
	return userID, key, true
}

func parseOptionalUUID(value string) (uuid.NullUUID, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return uuid.NullUUID{}, nil
	}
	id, err := uuid.Parse(value)
	if err != nil {
		return uuid.NullUUID{}, err
	}
	return uuid.NullUUID{UUID: id, Valid: true}, nil
}

func toAttachments(items []httpdto.AttachmentDTO) []message.Attachment {
	if len(items) == 0 {
		return nil
	}
	out := make([]message.Attachment, 0, len(items))
	for _, a := range items {
		out = append(out, message.Attachment{
			URL:      a.URL,
			Name:     a.Name,
			MimeType: a.MimeType,
			Size:     a.Size,
		})
	}
	return out
}
