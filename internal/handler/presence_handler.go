package handler

import (
	"context"
	"net/http"

	"parley-chat/internal/domain/presence"
	"parley-chat/internal/transport/httpdto"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// PresenceReader answers whether a user currently has live connections.
type PresenceReader interface {
	GetPresence(ctx context.Context, userID string) (*presence.Status, error)
}

type PresenceHandler struct {
	reader PresenceReader
}

func NewPresenceHandler(reader PresenceReader) *PresenceHandler {
	return &PresenceHandler{reader: reader}
}

func (h *PresenceHandler) Get(c *gin.Context) {
	userID, err := uuid.Parse(c.Param("user_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, httpdto.NewErrorResponse("invalid user_id", "INVALID_REQUEST"))
		return
	}
	status, err := h.reader.GetPresence(c.Request.Context(), userID.String())
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(status))
}
