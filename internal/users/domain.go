package users

import (
	"time"

	"github.com/odyssey-erp/odyssey-rbac/internal/directory"
)

// UpdateInput is a partial update of a user's attributes.
type UpdateInput struct {
	Nickname *string           `json:"nickname" validate:"omitempty,max=64"`
	Email    *string           `json:"email" validate:"omitempty,email,max=128"`
	Status   *directory.Status `json:"status" validate:"omitempty,oneof=0 1"`
}

// UserView is the JSON shape of a user. The password hash never leaves the service.
type UserView struct {
	ID        int64            `json:"id"`
	Username  string           `json:"username"`
	Nickname  string           `json:"nickname"`
	Email     string           `json:"email"`
	Status    directory.Status `json:"status"`
	CreatedAt time.Time        `json:"createdAt"`
	UpdatedAt time.Time        `json:"updatedAt"`
}

func toView(u directory.User) UserView {
	return UserView{
		ID:        u.ID,
		Username:  u.Username,
		Nickname:  u.Nickname,
		Email:     u.Email,
		Status:    u.Status,
		CreatedAt: u.CreatedAt,
		UpdatedAt: u.UpdatedAt,
	}
}
