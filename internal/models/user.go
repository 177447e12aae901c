package models

import (
	"time"

	"github.com/google/uuid"
)

// Role represents a user's role in the platform.
type Role string

const (
	// RoleUser is the base role. Plain users join meetings as participants.
	RoleUser Role = "user"
	// RoleAdmin can schedule and manage meetings and joins as moderator.
	RoleAdmin Role = "admin"
	// RoleSuperAdmin bypasses approval and allow-list checks entirely.
	RoleSuperAdmin Role = "superadmin"
)

// ApproveStatus is the account-level approval state. Plain users must be
// Approved before they can join any meeting.
type ApproveStatus string

const (
	ApproveStatusNotApproved ApproveStatus = "NotApproved"
	ApproveStatusInProcess   ApproveStatus = "InProcess"
	ApproveStatusApproved    ApproveStatus = "Approved"
)

// User represents a platform account.
type User struct {
	ID            uuid.UUID     `json:"id"`
	Email         string        `json:"email"`
	Password      string        `json:"-"`
	FullName      string        `json:"full_name"`
	Username      string        `json:"username"`
	Role          Role          `json:"role"`
	ApproveStatus ApproveStatus `json:"approve_status"`
	AvatarKey     string        `json:"-"`
	AvatarURL     string        `json:"avatar_url,omitempty"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
}

// UserPublic is User without sensitive fields for API responses.
type UserPublic struct {
	ID            uuid.UUID     `json:"id"`
	Email         string        `json:"email"`
	FullName      string        `json:"full_name"`
	Username      string        `json:"username"`
	Role          Role          `json:"role"`
	ApproveStatus ApproveStatus `json:"approve_status"`
	AvatarURL     string        `json:"avatar_url,omitempty"`
	CreatedAt     time.Time     `json:"created_at"`
}

// ToPublic converts User to UserPublic.
func (u *User) ToPublic() UserPublic {
	return UserPublic{
		ID:            u.ID,
		Email:         u.Email,
		FullName:      u.FullName,
		Username:      u.Username,
		Role:          u.Role,
		ApproveStatus: u.ApproveStatus,
		AvatarURL:     u.AvatarURL,
		CreatedAt:     u.CreatedAt,
	}
}
