package domain

import "time"

// Session records one issued token pair. Only SHA-256 hashes of the tokens are
// ever stored, so a leaked ledger does not yield usable credentials.
type Session struct {
	ID               string    `json:"id"`
	PrincipalID      string    `json:"principal_id"`
	AccessHash       string    `json:"-"`
	RefreshHash      string    `json:"-"`
	AccessExpiresAt  time.Time `json:"access_expires_at"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at"`
	ClientAddress    string    `json:"client_address"`
	IsActive         bool      `json:"is_active"`
	LastUsedAt       time.Time `json:"last_used_at"`
	CreatedAt        time.Time `json:"created_at"`
}

// TokenPair carries the raw tokens handed to the client together with their
// expiries. Raw values never reach the ledger.
type TokenPair struct {
	Access           string    `json:"access_token"`
	Refresh          string    `json:"refresh_token"`
	AccessExpiresAt  time.Time `json:"access_expires_at"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at"`
}
