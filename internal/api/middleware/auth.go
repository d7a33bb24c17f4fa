package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/fintrack/fintrack-api/internal/core/domain"
	"github.com/fintrack/fintrack-api/internal/core/ports"
	"github.com/fintrack/fintrack-api/internal/core/service"
)

// Context keys set by the gate.
const (
	ContextPrincipal   = "principal"
	ContextPrincipalID = "principal_id"
	ContextHandle      = "handle"
)

// Auth is the request gate: it extracts the bearer token, verifies it against
// the codec, loads the principal and attaches it to the request context.
// Rejections carry distinct messages for missing, expired and malformed
// tokens.
func Auth(codec *service.TokenCodec, principals ports.CredentialStore) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			p, err := gate(c, codec, principals)
			if err != nil {
				return err
			}
			attach(c, p)
			return next(c)
		}
	}
}

// OptionalAuth attaches the principal when a valid token is present and falls
// through to an anonymous context on any failure instead of rejecting.
func OptionalAuth(codec *service.TokenCodec, principals ports.CredentialStore) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if p, err := gate(c, codec, principals); err == nil {
				attach(c, p)
			}
			return next(c)
		}
	}
}

// AdminOnly performs the normal gate and additionally requires the admin
// flag, rejecting with a distinct error when it is absent.
func AdminOnly(codec *service.TokenCodec, principals ports.CredentialStore) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			p, err := gate(c, codec, principals)
			if err != nil {
				return err
			}
			if !p.IsAdmin {
				return echo.NewHTTPError(http.StatusForbidden, "admin access required")
			}
			attach(c, p)
			return next(c)
		}
	}
}

func gate(c echo.Context, codec *service.TokenCodec, principals ports.CredentialStore) (*domain.Principal, error) {
	authHeader := c.Request().Header.Get("Authorization")
	if authHeader == "" {
		return nil, echo.NewHTTPError(http.StatusUnauthorized, "authentication token required")
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return nil, echo.NewHTTPError(http.StatusUnauthorized, "invalid authorization header")
	}

	claims, err := codec.VerifyAccess(parts[1])
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrTokenExpired):
			return nil, echo.NewHTTPError(http.StatusUnauthorized, "token expired")
		case errors.Is(err, domain.ErrTokenMalformed):
			return nil, echo.NewHTTPError(http.StatusUnauthorized, "token malformed")
		default:
			return nil, echo.NewHTTPError(http.StatusUnauthorized, "token invalid")
		}
	}

	p, err := principals.FindByID(c.Request().Context(), claims.Subject)
	if err != nil || !p.IsActive {
		return nil, echo.NewHTTPError(http.StatusUnauthorized, "token invalid")
	}
	return p, nil
}

func attach(c echo.Context, p *domain.Principal) {
	c.Set(ContextPrincipal, p)
	c.Set(ContextPrincipalID, p.ID)
	c.Set(ContextHandle, p.Handle)
}
