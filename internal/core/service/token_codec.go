package service

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/fintrack/fintrack-api/internal/core/domain"
)

const (
	defaultAccessTTL  = 24 * time.Hour
	defaultRefreshTTL = 30 * 24 * time.Hour

	// tokenTypeRefresh marks refresh tokens so an access token can never be
	// replayed against the refresh endpoint.
	tokenTypeRefresh = "refresh"
)

// TokenClaims are the JWT claims carried by both token kinds.
type TokenClaims struct {
	Handle    string `json:"handle,omitempty"`
	Email     string `json:"email,omitempty"`
	TokenType string `json:"typ,omitempty"`
	jwt.RegisteredClaims
}

// TokenCodec hashes passwords and signs/verifies token pairs. It is purely
// functional over its inputs and the shared signing secret.
type TokenCodec struct {
	secret     []byte
	issuer     string
	audience   string
	accessTTL  time.Duration
	refreshTTL time.Duration
	bcryptCost int
}

// NewTokenCodec builds a codec. Zero TTLs fall back to 24h access / 30d
// refresh; a zero bcrypt cost falls back to the library default.
func NewTokenCodec(secret, issuer, audience string, accessTTL, refreshTTL time.Duration, bcryptCost int) *TokenCodec {
	if accessTTL <= 0 {
		accessTTL = defaultAccessTTL
	}
	if refreshTTL <= 0 {
		refreshTTL = defaultRefreshTTL
	}
	if bcryptCost <= 0 {
		bcryptCost = bcrypt.DefaultCost
	}
	return &TokenCodec{
		secret:     []byte(secret),
		issuer:     issuer,
		audience:   audience,
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		bcryptCost: bcryptCost,
	}
}

// HashPassword returns the bcrypt hash of plaintext at the configured cost.
func (c *TokenCodec) HashPassword(plaintext string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(plaintext), c.bcryptCost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// VerifyPassword compares using bcrypt's own constant-time routine.
func (c *TokenCodec) VerifyPassword(plaintext, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plaintext)) == nil
}

// IssuePair signs an access/refresh pair for the principal.
func (c *TokenCodec) IssuePair(p *domain.Principal) (domain.TokenPair, error) {
	now := time.Now().UTC()
	accessExp := now.Add(c.accessTTL)
	refreshExp := now.Add(c.refreshTTL)

	access, err := c.sign(p, "", now, accessExp)
	if err != nil {
		return domain.TokenPair{}, err
	}
	refresh, err := c.sign(p, tokenTypeRefresh, now, refreshExp)
	if err != nil {
		return domain.TokenPair{}, err
	}
	return domain.TokenPair{
		Access:           access,
		Refresh:          refresh,
		AccessExpiresAt:  accessExp,
		RefreshExpiresAt: refreshExp,
	}, nil
}

// VerifyAccess validates an access token and returns its claims.
func (c *TokenCodec) VerifyAccess(token string) (*TokenClaims, error) {
	claims, err := c.parse(token)
	if err != nil {
		return nil, err
	}
	if claims.TokenType == tokenTypeRefresh {
		return nil, domain.ErrTokenInvalid
	}
	return claims, nil
}

// VerifyRefresh validates a refresh token and returns its claims. Tokens
// lacking the refresh type marker are rejected.
func (c *TokenCodec) VerifyRefresh(token string) (*TokenClaims, error) {
	claims, err := c.parse(token)
	if err != nil {
		return nil, err
	}
	if claims.TokenType != tokenTypeRefresh {
		return nil, domain.ErrTokenInvalid
	}
	return claims, nil
}

func (c *TokenCodec) sign(p *domain.Principal, tokenType string, now, exp time.Time) (string, error) {
	claims := TokenClaims{
		Handle:    p.Handle,
		Email:     p.Email,
		TokenType: tokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    c.issuer,
			Audience:  jwt.ClaimStrings{c.audience},
			Subject:   p.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
			ID:        uuid.NewString(),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
}

// parse enforces the signing method, expiry, issuer and audience. A token
// signed correctly but for a different audience is rejected, not just logged.
func (c *TokenCodec) parse(token string) (*TokenClaims, error) {
	claims := &TokenClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if t.Method.Alg() != jwt.SigningMethodHS256.Alg() {
			return nil, jwt.ErrTokenSignatureInvalid
		}
		return c.secret, nil
	},
		jwt.WithIssuer(c.issuer),
		jwt.WithAudience(c.audience),
		jwt.WithExpirationRequired(),
	)
	switch {
	case err == nil && parsed.Valid:
		return claims, nil
	case errors.Is(err, jwt.ErrTokenExpired):
		return nil, domain.ErrTokenExpired
	case errors.Is(err, jwt.ErrTokenMalformed):
		return nil, domain.ErrTokenMalformed
	default:
		return nil, domain.ErrTokenInvalid
	}
}

// HashToken returns the SHA-256 hex digest of a raw token. The ledger stores
// only these digests, never raw tokens.
func HashToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}
