package user

import (
	"errors"
	"maps"
	"net/mail"
	"strings"
	"time"
)

// Preferences mirrors the JSONB `preferences` column (opaque UI/app settings).
type Preferences map[string]any

// User is the domain entity corresponding to the `users` table.
type User struct {
	ID           string
	CreatedAt    time.Time
	UpdatedAt    time.Time
	Email        string // stored lowercased, unique
	PasswordHash string
	Role         Role
	IsActive     bool
	Phone        *string
	PushToken    *string
	Preferences  Preferences
	LastLoginAt  *time.Time
}

var (
	ErrInvalidEmail      = errors.New("invalid email address")
	ErrEmptyPasswordHash = errors.New("password hash cannot be empty")
	ErrInactive          = errors.New("user account is deactivated")
)

// NewUser constructs an active User entity. Caller provides the already-hashed password.
func NewUser(email string, role Role, passwordHash string, prefs Preferences) (*User, error) {
	now := time.Now().UTC()
	user := &User{
		CreatedAt:    now,
		UpdatedAt:    now,
		Email:        strings.ToLower(strings.TrimSpace(email)),
		Role:         role,
		IsActive:     true,
		PasswordHash: strings.TrimSpace(passwordHash),
		Preferences:  clonePreferences(prefs),
	}
	if err := user.Validate(); err != nil {
		return nil, err
	}

	return user, nil
}

// Validate checks invariants of the User entity.
func (user *User) Validate() error {
	if _, err := mail.ParseAddress(user.Email); err != nil {
		return ErrInvalidEmail
	}
	if !user.Role.Valid() {
		return ErrInvalidRole
	}
	if user.PasswordHash == "" {
		return ErrEmptyPasswordHash
	}
	return nil
}

// CanAuthenticate gates login and token refresh on the active flag.
func (user *User) CanAuthenticate() error {
	if !user.IsActive {
		return ErrInactive
	}
	return nil
}

// ----- Setters and helpers -----

// SetPushToken replaces the device push token; nil clears it.
func (user *User) SetPushToken(token *string) {
	user.PushToken = token
	user.touch()
}

// TouchLogin records a successful authentication "now".
func (user *User) TouchLogin() {
	now := time.Now().UTC()
	user.LastLoginAt = &now
	user.touch()
}

// Deactivate blocks future authentication without deleting the row.
func (user *User) Deactivate() {
	user.IsActive = false
	user.touch()
}

// clonePreferences creates a shallow copy to keep domain invariants safe.
func clonePreferences(p Preferences) Preferences {
	if p == nil {
		return make(Preferences)
	}
	cp := make(Preferences, len(p))
	maps.Copy(cp, p)
	return cp
}

// touch sets UpdatedAt to now (UTC).
func (user *User) touch() {
	user.UpdatedAt = time.Now().UTC()
}
