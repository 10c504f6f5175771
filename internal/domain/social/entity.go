package social

import (
	"time"

	"github.com/google/uuid"
)

type Role string

const (
	RoleOwner  Role = "owner"
	RoleAdmin  Role = "admin"
	RoleMember Role = "member"
)

// CanModerate reports whether the role may pin messages or post in admins-only groups.
func (r Role) CanModerate() bool {
	return r == RoleOwner || r == RoleAdmin
}

// Block represents user_blocks. A group may appear as blocker to ban a user.
type Block struct {
	BlockerID uuid.UUID `gorm:"type:char(36);primaryKey" json:"blocker_id"`
	BlockedID uuid.UUID `gorm:"type:char(36);primaryKey" json:"blocked_id"`
	CreatedAt time.Time `json:"created_at"`
}

// Group represents groups
type Group struct {
	ID         uuid.UUID `gorm:"type:char(36);primaryKey" json:"id"`
	Name       string    `json:"name"`
	AdminsOnly bool      `gorm:"default:false" json:"admins_only"`
	CreatedAt  time.Time `json:"created_at"`
}

// GroupMember represents group_members
type GroupMember struct {
	GroupID  uuid.UUID `gorm:"type:char(36);primaryKey" json:"group_id"`
	UserID   uuid.UUID `gorm:"type:char(36);primaryKey" json:"user_id"`
	Role     Role      `gorm:"type:varchar(16);not null;default:member" json:"role"`
	JoinedAt time.Time `json:"joined_at"`
}

func (Block) TableName() string {
	return "user_blocks"
}

func (Group) TableName() string {
	return "groups"
}

func (GroupMember) TableName() string {
	return "group_members"
}
