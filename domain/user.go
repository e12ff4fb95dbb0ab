package domain

import (
	"net/url"
	"strings"
	"time"
)

// User represents an authenticated identity in the platform.
type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	Name         string    `json:"name"`
	Avatar       string    `json:"avatar,omitempty"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// UserSummary is the public projection of a User.
type UserSummary struct {
	ID     string `json:"id"`
	Email  string `json:"email"`
	Name   string `json:"name"`
	Avatar string `json:"avatar,omitempty"`
}

func (u *User) Summary() *UserSummary {
	if u == nil {
		return nil
	}
	return &UserSummary{ID: u.ID, Email: u.Email, Name: u.Name, Avatar: u.Avatar}
}

// ProfilePatch carries the owner-editable profile fields. Nil fields are left untouched.
type ProfilePatch struct {
	Name   *string `json:"name,omitempty"`
	Avatar *string `json:"avatar,omitempty"`
}

func (p ProfilePatch) IsEmpty() bool {
	return p.Name == nil && p.Avatar == nil
}

// Apply merges the patch into u.
func (p ProfilePatch) Apply(u *User) error {
	if p.Name != nil {
		name := strings.TrimSpace(*p.Name)
		if name == "" {
			return NewFieldError("name", "name must not be empty")
		}
		u.Name = name
	}
	if p.Avatar != nil {
		u.Avatar = strings.TrimSpace(*p.Avatar)
	}
	return nil
}

// NormalizeEmail trims and lower-cases an email address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// DefaultAvatar builds the generated avatar URL used when a user has not picked one.
func DefaultAvatar(name string) string {
	if name == "" {
		name = "User"
	}
	return "https://ui-avatars.com/api/?name=" + url.QueryEscape(name) + "&background=random"
}
