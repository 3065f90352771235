package users

import (
	"time"

	"github.com/shopflow/shopflow-backend/pkg/db/models"
	"github.com/shopflow/shopflow-backend/pkg/enums"
	"github.com/shopflow/shopflow-backend/pkg/types"
)

// UserDTO is the transport shape of a user record.
type UserDTO struct {
	ID          string         `json:"id"`
	ExternalID  string         `json:"external_id"`
	Email       string         `json:"email"`
	DisplayName string         `json:"display_name"`
	AvatarURL   string         `json:"avatar_url"`
	Role        enums.UserRole `json:"role"`
	Cart        types.Cart     `json:"cart"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

func FromModel(u *models.User) *UserDTO {
	if u == nil {
		return nil
	}

	cart := u.Cart.Normalized()
	return &UserDTO{
		ID:          u.ID,
		ExternalID:  u.SubjectID(),
		Email:       u.Email,
		DisplayName: u.DisplayName,
		AvatarURL:   u.AvatarURL,
		Role:        u.Role,
		Cart:        cart,
		CreatedAt:   u.CreatedAt,
		UpdatedAt:   u.UpdatedAt,
	}
}
