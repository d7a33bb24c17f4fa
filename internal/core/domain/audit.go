package domain

import "time"

// AuditKind names a security-relevant authentication outcome.
type AuditKind string

const (
	AuditRegistered    AuditKind = "registered"
	AuditLoginOK       AuditKind = "login_ok"
	AuditLoginFailed   AuditKind = "login_failed"
	AuditLoginLocked   AuditKind = "login_locked"
	AuditTokenRefresh  AuditKind = "token_refreshed"
	AuditLogout        AuditKind = "logout"
	AuditPasswordReset AuditKind = "password_changed"
	AuditAccountLinked AuditKind = "account_linked"
	AuditAccountWiped  AuditKind = "account_deleted"
)

// AuditEvent captures one auth outcome for the audit trail. PrincipalID may be
// empty when the identifier did not resolve to an account.
type AuditEvent struct {
	PrincipalID   string    `json:"principal_id,omitempty"`
	Identifier    string    `json:"identifier,omitempty"`
	Kind          AuditKind `json:"kind"`
	ClientAddress string    `json:"client_address,omitempty"`
	Detail        string    `json:"detail,omitempty"`
	At            time.Time `json:"at"`
}
