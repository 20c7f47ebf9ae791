package user

import (
	"time"

	"github.com/google/uuid"
)

// Role of a classroom participant. Conversations always pair one
// instructor with one student.
type Role string

const (
	RoleInstructor Role = "INSTRUCTOR"
	RoleStudent    Role = "STUDENT"
)

func (r Role) Valid() bool {
	return r == RoleInstructor || r == RoleStudent
}

// User represents the users table.
type User struct {
	ID           uuid.UUID `json:"id"`
	DisplayName  string    `json:"name"`
	Role         Role      `json:"role"`
	Email        string    `json:"email,omitempty"`
	PhoneNumber  string    `json:"phoneNumber,omitempty"`
	PasswordHash string    `json:"-"`
	IsActive     bool      `json:"isActive"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}
