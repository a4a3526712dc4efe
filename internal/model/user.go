// Package model defines domain entities used by services and repositories.
package model

import (
	"time"

	"github.com/gofrs/uuid/v5"
)

// Role is the closed set of account roles.
type Role string

const (
	RoleUser      Role = "user"
	RoleModerator Role = "moderator"
	RoleAdmin     Role = "admin"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleModerator, RoleAdmin:
		return true
	}
	return false
}

// User represents an account created from an external identity. Users are never hard-deleted.
type User struct {
	ID          uuid.UUID // PK
	ExternalID  string    // unique, "provider:subject"
	Username    string    // unique handle
	DisplayName string
	AvatarURL   string
	Bio         string
	WebsiteURL  string
	Role        Role
	Verified    bool
	CreatedAt   time.Time
}

// Profile holds the user-editable fields.
type Profile struct {
	DisplayName string
	Bio         string
	WebsiteURL  string
}

// Author is the public view of a user with their listed module count.
type Author struct {
	User
	ModuleCount int64
}

// Session binds a token hash to a user. The raw token is never stored.
type Session struct {
	TokenHash []byte
	UserID    uuid.UUID
	ExpiresAt time.Time
	CreatedAt time.Time
}

// Expired reports whether the session is no longer usable at now.
func (s Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}
