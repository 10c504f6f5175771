package repository

import (
	"context"
	"fmt"
	"time"

	"parley-chat/internal/domain/upload"
	parley_errors "parley-chat/pkg/errors"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// GormUploadRepository keeps the upload ledger next to the social graph tables.
type GormUploadRepository struct {
	db *gorm.DB
}

func NewGormUploadRepository(db *gorm.DB) *GormUploadRepository {
	return &GormUploadRepository{db: db}
}

func (r *GormUploadRepository) Create(ctx context.Context, rec *upload.Record) error {
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	if rec.Status == "" {
		rec.Status = upload.StatusPending
	}
	if err := r.db.WithContext(ctx).Create(rec).Error; err != nil {
		return fmt.Errorf("%w: %v", parley_errors.ErrPersistence, err)
	}
	return nil
}

func (r *GormUploadRepository) MarkStored(ctx context.Context, id uuid.UUID, url string) error {
	return r.update(ctx, id, map[string]interface{}{
		"status":     upload.StatusStored,
		"url":        url,
		"updated_at": time.Now().UTC(),
	})
}

func (r *GormUploadRepository) MarkFailed(ctx context.Context, id uuid.UUID) error {
	return r.update(ctx, id, map[string]interface{}{
		"status":     upload.StatusFailed,
		"updated_at": time.Now().UTC(),
	})
}

// ListByOwner returns the owner's stored uploads, newest first.
func (r *GormUploadRepository) ListByOwner(ctx context.Context, ownerID uuid.UUID, limit int) ([]upload.Record, error) {
	var records []upload.Record
	err := r.db.WithContext(ctx).
		Where("owner_id = ? AND status = ?", ownerID, upload.StatusStored).
		Order("created_at DESC").
		Limit(clampLimit(limit)).
		Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("%w: %v", parley_errors.ErrPersistence, err)
	}
	return records, nil
}

func (r *GormUploadRepository) update(ctx context.Context, id uuid.UUID, fields map[string]interface{}) error {
	res := r.db.WithContext(ctx).Model(&upload.Record{}).Where("id = ?", id).Updates(fields)
	if res.Error != nil {
		return fmt.Errorf("%w: %v", parley_errors.ErrPersistence, res.Error)
	}
	if res.RowsAffected == 0 {
		return parley_errors.ErrNotFound
	}
	return nil
}
