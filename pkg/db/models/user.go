package models

import (
	"time"

	"github.com/shopflow/shopflow-backend/pkg/enums"
	"github.com/shopflow/shopflow-backend/pkg/types"
)

// User is the locally-owned record reconciled against the identity provider.
// Legacy rows carry the provider id in ID and a NULL ExternalID until migrated.
type User struct {
	ID          string         `gorm:"column:id;type:text;primaryKey"`
	ExternalID  *string        `gorm:"column:external_id;type:text;uniqueIndex"`
	Email       string         `gorm:"column:email;type:text;not null;uniqueIndex"`
	DisplayName string         `gorm:"column:display_name;type:text;not null"`
	AvatarURL   string         `gorm:"column:avatar_url;type:text;not null"`
	Role        enums.UserRole `gorm:"column:role;type:text;not null;default:user"`
	Cart        types.Cart     `gorm:"column:cart;type:jsonb;not null;default:'{}'"`
	// IdentityVersion is the provider updated-at stamp of the last applied identity.
	IdentityVersion int64     `gorm:"column:identity_version;not null;default:0"`
	CreatedAt       time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// SubjectID returns the provider id, falling back to the primary key for
// rows that have not been migrated yet.
func (u *User) SubjectID() string {
	if u == nil {
		return ""
	}
	if u.ExternalID != nil && *u.ExternalID != "" {
		return *u.ExternalID
	}
	return u.ID
}
