package models

import (
	"time"
)

// Identity is the identity provider's durable record. It never leaves the
// server with its password hash.
type Identity struct {
	ID            string     `json:"id" gorm:"primaryKey;type:varchar(36)"`
	Email         string     `json:"email" gorm:"uniqueIndex;not null"`
	PasswordHash  string     `json:"-" gorm:"not null"`
	DisplayName   string     `json:"display_name"`
	PhotoURL      string     `json:"photo_url"`
	EmailVerified bool       `json:"email_verified" gorm:"not null;default:false"`
	Disabled      bool       `json:"disabled" gorm:"not null;default:false"`
	LastLoginAt   *time.Time `json:"last_login_at"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// Profile is the user document kept in the document store, keyed by user id.
type Profile struct {
	UserID        string     `json:"user_id" gorm:"primaryKey;type:varchar(36)"`
	Email         string     `json:"email"`
	Name          string     `json:"name"`
	PhotoURL      string     `json:"photo_url"`
	EmailVerified bool       `json:"email_verified"`
	CreatedAt     time.Time  `json:"created_at"`
	LastLogin     *time.Time `json:"last_login,omitempty"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// ProfileUpdate carries the fields of a merge write. Nil fields are left untouched.
type ProfileUpdate struct {
	Email         *string    `json:"email,omitempty"`
	Name          *string    `json:"name,omitempty"`
	PhotoURL      *string    `json:"photo_url,omitempty"`
	EmailVerified *bool      `json:"email_verified,omitempty"`
	CreatedAt     *time.Time `json:"created_at,omitempty"`
	LastLogin     *time.Time `json:"last_login,omitempty"`
	UpdatedAt     *time.Time `json:"updated_at,omitempty"`
}

// Columns returns the set fields keyed by column name.
func (u ProfileUpdate) Columns() map[string]any {
	cols := make(map[string]any)
	if u.Email != nil {
		cols["email"] = *u.Email
	}
	if u.Name != nil {
		cols["name"] = *u.Name
	}
	if u.PhotoURL != nil {
		cols["photo_url"] = *u.PhotoURL
	}
	if u.EmailVerified != nil {
		cols["email_verified"] = *u.EmailVerified
	}
	if u.CreatedAt != nil {
		cols["created_at"] = *u.CreatedAt
	}
	if u.LastLogin != nil {
		cols["last_login"] = *u.LastLogin
	}
	if u.UpdatedAt != nil {
		cols["updated_at"] = *u.UpdatedAt
	}
	return cols
}

// Apply merges the set fields into p.
func (u ProfileUpdate) Apply(p *Profile) {
	if u.Email != nil {
		p.Email = *u.Email
	}
	if u.Name != nil {
		p.Name = *u.Name
	}
	if u.PhotoURL != nil {
		p.PhotoURL = *u.PhotoURL
	}
	if u.EmailVerified != nil {
		p.EmailVerified = *u.EmailVerified
	}
	if u.CreatedAt != nil {
		p.CreatedAt = *u.CreatedAt
	}
	if u.LastLogin != nil {
		t := *u.LastLogin
		p.LastLogin = &t
	}
	if u.UpdatedAt != nil {
		p.UpdatedAt = *u.UpdatedAt
	}
}

// User is the signed-in user as the session store holds it: the backend
// identity with the profile document merged over it.
type User struct {
	ID            string     `json:"id" toml:"id"`
	Email         string     `json:"email" toml:"email"`
	Name          string     `json:"name" toml:"name"`
	PhotoURL      string     `json:"photo_url,omitempty" toml:"photo_url,omitempty"`
	EmailVerified bool       `json:"email_verified" toml:"email_verified"`
	CreatedAt     time.Time  `json:"created_at" toml:"created_at"`
	LastLogin     *time.Time `json:"last_login,omitempty" toml:"last_login,omitempty"`
}

// WithProfile overlays the non-empty profile fields onto u.
func (u User) WithProfile(p *Profile) User {
	if p == nil {
		return u
	}
	if p.Email != "" {
		u.Email = p.Email
	}
	if p.Name != "" {
		u.Name = p.Name
	}
	if p.PhotoURL != "" {
		u.PhotoURL = p.PhotoURL
	}
	u.EmailVerified = u.EmailVerified || p.EmailVerified
	if !p.CreatedAt.IsZero() {
		u.CreatedAt = p.CreatedAt
	}
	if p.LastLogin != nil {
		t := *p.LastLogin
		u.LastLogin = &t
	}
	return u
}

func StringPtr(s string) *string     { return &s }
func BoolPtr(b bool) *bool           { return &b }
func TimePtr(t time.Time) *time.Time { return &t }
