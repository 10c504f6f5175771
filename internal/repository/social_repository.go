package repository

import (
	"context"
	"errors"
	"fmt"

	"parley-chat/internal/domain/social"
	"parley-chat/internal/domain/upload"
	parley_errors "parley-chat/pkg/errors"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// GormSocialRepository reads the social graph from a relational database.
type GormSocialRepository struct {
	db *gorm.DB
}

func NewGormSocialRepository(db *gorm.DB) *GormSocialRepository {
	return &GormSocialRepository{db: db}
}

// MigrateSocial creates the relational tables: the social graph and the upload ledger.
func MigrateSocial(db *gorm.DB) error {
	return db.AutoMigrate(&social.Group{}, &social.GroupMember{}, &social.Block{}, &upload.Record{})
}

func (r *GormSocialRepository) IsBlocked(ctx context.Context, blockerID, blockedID uuid.UUID) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&social.Block{}).
		Where("blocker_id = ? AND blocked_id = ?", blockerID, blockedID).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("%w: %v", parley_errors.ErrPersistence, err)
	}
	return count > 0, nil
}

func (r *GormSocialRepository) IsMember(ctx context.Context, groupID, userID uuid.UUID) (bool, error) {
	role, err := r.Role(ctx, groupID, userID)
	if err != nil {
		return false, err
	}
	return role != "", nil
}

func (r *GormSocialRepository) Role(ctx context.Context, groupID, userID uuid.UUID) (social.Role, error) {
	var member social.GroupMember
	err := r.db.WithContext(ctx).
		Where("group_id = ? AND user_id = ?", groupID, userID).
		First(&member).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", nil
		}
		return "", fmt.Errorf("%w: %v", parley_errors.ErrPersistence, err)
	}
	return member.Role, nil
}

func (r *GormSocialRepository) AdminsOnly(ctx context.Context, groupID uuid.UUID) (bool, error) {
	var group social.Group
	err := r.db.WithContext(ctx).Select("admins_only").Where("id = ?", groupID).First(&group).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, parley_errors.ErrNotFound
		}
		return false, fmt.Errorf("%w: %v", parley_errors.ErrPersistence, err)
	}
	return group.AdminsOnly, nil
}

// SocialFixture is a set of rows loaded by the migrate tool for local development.
type SocialFixture struct {
	Groups  []social.Group       `json:"groups"`
	Members []social.GroupMember `json:"members"`
	Blocks  []social.Block       `json:"blocks"`
}

// Seed inserts fixture rows, skipping any that already exist.
func (r *GormSocialRepository) Seed(ctx context.Context, fx SocialFixture) (int, error) {
	inserted := 0
	insert := func(row interface{}) error {
		err := r.db.WithContext(ctx).Create(row).Error
		if err == nil {
			inserted++
			return nil
		}
		if isUniqueViolation(err) {
			return nil
		}
		return err
	}
	for i := range fx.Groups {
		if err := insert(&fx.Groups[i]); err != nil {
			return inserted, fmt.Errorf("failed to seed group %s: %w", fx.Groups[i].ID, err)
		}
	}
	for i := range fx.Members {
		if err := insert(&fx.Members[i]); err != nil {
			return inserted, fmt.Errorf("failed to seed member %s: %w", fx.Members[i].UserID, err)
		}
	}
	for i := range fx.Blocks {
		if err := insert(&fx.Blocks[i]); err != nil {
			return inserted, fmt.Errorf("failed to seed block %s: %w", fx.Blocks[i].BlockedID, err)
		}
	}
	return inserted, nil
}
