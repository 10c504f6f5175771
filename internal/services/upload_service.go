package services

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"
	"strings"

	"parley-chat/internal/domain/message"
	"parley-chat/internal/domain/upload"
	"parley-chat/internal/repository"
	parley_errors "parley-chat/pkg/errors"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
)

// sniffLen matches the number of bytes mimetype inspects by default.
const sniffLen = 3072

// BlobStore persists attachment bodies.
type BlobStore interface {
	Put(ctx context.Context, key, contentType string, sizeBytes int64, body io.Reader) (string, error)
}

type UploadInput struct {
	OwnerID  uuid.UUID
	Name     string
	MimeType string
	Size     int64
	Body     io.Reader
}

// UploadService turns a client file into an attachment reference.
type UploadService struct {
	store    BlobStore
	records  repository.UploadRepository
	maxBytes int64
}

func NewUploadService(store BlobStore, maxBytes int64) *UploadService {
	return &UploadService{store: store, maxBytes: maxBytes}
}

// WithRecords keeps a ledger row for every upload attempt.
func (s *UploadService) WithRecords(records repository.UploadRepository) *UploadService {
	s.records = records
	return s
}

func (s *UploadService) Upload(ctx context.Context, in UploadInput) (message.Attachment, error) {
	if s.store == nil {
		return message.Attachment{}, fmt.Errorf("%w: blob storage is not configured", parley_errors.ErrPersistence)
	}
	name := path.Base(strings.TrimSpace(in.Name))
	if in.OwnerID == uuid.Nil || name == "" || name == "." || name == "/" || in.Body == nil {
		return message.Attachment{}, parley_errors.ErrValidation
	}
	if in.Size <= 0 {
		return message.Attachment{}, fmt.Errorf("%w: empty file", parley_errors.ErrValidation)
	}
	if s.maxBytes > 0 && in.Size > s.maxBytes {
		return message.Attachment{}, parley_errors.ErrTooLarge
	}

	head := make([]byte, sniffLen)
	n, err := io.ReadFull(in.Body, head)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return message.Attachment{}, fmt.Errorf("%w: %v", parley_errors.ErrValidation, err)
	}
	head = head[:n]

	contentType := strings.TrimSpace(in.MimeType)
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = mimetype.Detect(head).String()
	}

	key := buildObjectKey(in.OwnerID, name)
	rec := &upload.Record{
		ID:        uuid.New(),
		OwnerID:   in.OwnerID,
		ObjectKey: key,
		Filename:  name,
		MimeType:  contentType,
		SizeBytes: in.Size,
		Status:    upload.StatusPending,
	}
	if s.records != nil {
		if err := s.records.Create(ctx, rec); err != nil {
			return message.Attachment{}, err
		}
	}

	url, err := s.store.Put(ctx, key, contentType, in.Size, io.MultiReader(bytes.NewReader(head), in.Body))
	if err != nil {
		if s.records != nil {
			_ = s.records.MarkFailed(ctx, rec.ID)
		}
		return message.Attachment{}, fmt.Errorf("%w: %v", parley_errors.ErrPersistence, err)
	}
	if s.records != nil {
		if err := s.records.MarkStored(ctx, rec.ID, url); err != nil {
			return message.Attachment{}, err
		}
	}

	return message.Attachment{
		URL:      url,
		Name:     name,
		MimeType: contentType,
		Size:     in.Size,
	}, nil
}

// List returns ownerID's stored uploads. Without a ledger there is nothing to list.
func (s *UploadService) List(ctx context.Context, ownerID uuid.UUID, limit int) ([]upload.Record, error) {
	if s.records == nil {
		return []upload.Record{}, nil
	}
	return s.records.ListByOwner(ctx, ownerID, limit)
}

func buildObjectKey(ownerID uuid.UUID, name string) string {
	ext := strings.ToLower(path.Ext(name))
	return fmt.Sprintf("uploads/%s/%s%s", ownerID.String(), uuid.NewString(), ext)
}
