package domain

import "errors"

// Validation failures are reported with enough detail to fix the input.
var (
	ErrAlreadyExists  = errors.New("handle or email already registered")
	ErrWeakCredential = errors.New("password does not meet the policy")
	ErrInvalidInput   = errors.New("invalid input")
)

// Security-sensitive failures. These are distinguished internally (logging,
// audit trail) but collapsed to one generic message at the API boundary so a
// caller cannot enumerate accounts.
var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrAccountLocked      = errors.New("account temporarily locked")
	ErrPrincipalNotFound  = errors.New("principal not found")
)

// Token failures are always recoverable by re-authenticating.
var (
	ErrTokenRequired       = errors.New("authentication token required")
	ErrTokenExpired        = errors.New("token expired")
	ErrTokenMalformed      = errors.New("token malformed")
	ErrTokenInvalid        = errors.New("token invalid")
	ErrInvalidRefreshToken = errors.New("invalid refresh token")
)

var (
	ErrAlreadyLinkedElsewhere = errors.New("external account linked to another principal")
	ErrProvisioningFailed     = errors.New("tenant provisioning failed")
	ErrTenantNotFound         = errors.New("tenant resource not found")
	ErrSessionNotFound        = errors.New("session not found")
	ErrCategoryNotFound       = errors.New("category not found")
	ErrForbidden              = errors.New("access forbidden")
)
