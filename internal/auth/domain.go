package auth

import (
	"time"

	"github.com/rukunwarga/rukun/internal/rbac"
)

// User is an operator or resident login.
type User struct {
	ID           string
	Email        string
	PasswordHash string
	Role         rbac.RoleID
	IsActive     bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Principal projects the user onto the request actor.
func (u User) Principal() rbac.Principal {
	return rbac.Principal{ID: u.ID, Role: u.Role}
}

// Session is an issued bearer token.
type Session struct {
	Token     string
	ExpiresAt time.Time
	Principal rbac.Principal
}
