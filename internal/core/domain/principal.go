package domain

import (
	"strings"
	"time"
)

// Principal models a registered identity. A usable account carries a password
// hash, an external identity id, or both after account linking.
type Principal struct {
	ID             string     `json:"id"`
	Handle         string     `json:"handle"`
	Email          string     `json:"email"`
	PasswordHash   string     `json:"-"`
	ExternalID     string     `json:"-"`
	FirstName      string     `json:"first_name,omitempty"`
	LastName       string     `json:"last_name,omitempty"`
	IsAdmin        bool       `json:"is_admin"`
	IsActive       bool       `json:"is_active"`
	FailedAttempts int        `json:"-"`
	LockedUntil    *time.Time `json:"-"`
	TenantDB       string     `json:"-"`
	LastLoginAt    *time.Time `json:"last_login_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// IsLocked reports whether the lockout window is still open at now.
// The lock is soft: once LockedUntil passes the account is implicitly
// unlocked, though FailedAttempts persists until the next successful login.
// An attempt at exactly now == LockedUntil counts as unlocked.
func (p *Principal) IsLocked(now time.Time) bool {
	return p.LockedUntil != nil && now.Before(*p.LockedUntil)
}

// HasPassword reports whether password login is possible for this account.
func (p *Principal) HasPassword() bool {
	return p.PasswordHash != ""
}

// NormalizeIdentifier lowercases and trims a handle or email so lookups match
// how uniqueness is enforced at creation.
func NormalizeIdentifier(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
