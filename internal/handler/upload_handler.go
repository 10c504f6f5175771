package handler

import (
	"net/http"
	"strconv"
	"time"

	"parley-chat/internal/services"
	"parley-chat/internal/transport/httpdto"

	"github.com/gin-gonic/gin"
)

type UploadHandler struct {
	service *services.UploadService
}

func NewUploadHandler(service *services.UploadService) *UploadHandler {
	return &UploadHandler{service: service}
}

// Create accepts a multipart "file" field and stores it in the blob store.
func (h *UploadHandler) Create(c *gin.Context) {
	userID, ok := services.UserIDFromContext(c.Request.Context())
	if !ok {
		c.JSON(http.StatusUnauthorized, httpdto.NewErrorResponse("unauthorized", "UNAUTHORIZED"))
		return
	}

	header, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, httpdto.NewErrorResponse("file is required", "INVALID_REQUEST"))
		return
	}
	file, err := header.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, httpdto.NewErrorResponse("unreadable file", "INVALID_REQUEST"))
		return
	}
	defer file.Close()

	att, err := h.service.Upload(c.Request.Context(), services.UploadInput{
		OwnerID:  userID,
		Name:     header.Filename,
		MimeType: header.Header.Get("Content-Type"),
		Size:     header.Size,
		Body:     file,
	})
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusCreated, httpdto.NewSuccessResponse(httpdto.UploadResponse{
		Attachment: httpdto.AttachmentDTO{
			URL:      att.URL,
			Name:     att.Name,
			MimeType: att.MimeType,
			Size:     att.Size,
		},
	}))
}

// List returns the caller's stored uploads, newest first.
func (h *UploadHandler) List(c *gin.Context) {
	userID, ok := services.UserIDFromContext(c.Request.Context())
	if !ok {
		c.JSON(http.StatusUnauthorized, httpdto.NewErrorResponse("unauthorized", "UNAUTHORIZED"))
		return
	}
	limit, _ := strconv.Atoi(c.Query("limit"))

	records, err := h.service.List(c.Request.Context(), userID, limit)
	if err != nil {
		_ = c.Error(err)
		return
	}

	out := make([]httpdto.UploadRecordDTO, 0, len(records))
	for _, r := range records {
		out = append(out, httpdto.UploadRecordDTO{
			ID:        r.ID.String(),
			URL:       r.URL,
			Filename:  r.Filename,
			MimeType:  r.MimeType,
			SizeBytes: r.SizeBytes,
			CreatedAt: r.CreatedAt.UTC().Format(time.RFC3339),
		})
	}
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(httpdto.UploadListResponse{Uploads: out}))
}
