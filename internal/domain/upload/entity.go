package upload

import (
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusPending Status = "pending"
	StatusStored  Status = "stored"
	StatusFailed  Status = "failed"
)

// Record tracks one attachment body written to the blob store.
type Record struct {
	ID        uuid.UUID `gorm:"type:char(36);primaryKey" json:"id"`
	OwnerID   uuid.UUID `gorm:"type:char(36);not null;index" json:"owner_id"`
	ObjectKey string    `gorm:"type:varchar(255);not null" json:"object_key"`
	URL       string    `gorm:"type:varchar(1024)" json:"url,omitempty"`
	Filename  string    `gorm:"type:varchar(255);not null" json:"filename"`
	MimeType  string    `gorm:"type:varchar(127);not null" json:"mime_type"`
	SizeBytes int64     `gorm:"not null" json:"size_bytes"`
	Status    Status    `gorm:"type:varchar(16);not null;default:pending" json:"status"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Record) TableName() string {
	return "uploads"
}
