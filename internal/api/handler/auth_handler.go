package handler

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/fintrack/fintrack-api/internal/api/metrics"
	"github.com/fintrack/fintrack-api/internal/core/domain"
	"github.com/fintrack/fintrack-api/internal/core/ports"
)

// refreshCookie carries the refresh token for browser clients that opted into
// "remember me" at login.
const refreshCookie = "fintrack_refresh"

type AuthHandler struct {
	authService   ports.AuthService
	secureCookies bool
}

func NewAuthHandler(authService ports.AuthService, secureCookies bool) *AuthHandler {
	return &AuthHandler{authService: authService, secureCookies: secureCookies}
}

type registerRequest struct {
	Handle    string `json:"handle" validate:"required,min=3,max=32"`
	Email     string `json:"email" validate:"required,email"`
	Password  string `json:"password" validate:"required,min=8"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

type loginRequest struct {
	Identifier string `json:"identifier" validate:"required"`
	Password   string `json:"password" validate:"required"`
	Remember   bool   `json:"remember"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type logoutRequest struct {
	SessionID string `json:"session_id"`
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password" validate:"required"`
	NewPassword     string `json:"new_password" validate:"required,min=8"`
}

type linkRequest struct {
	ExternalID string `json:"external_id" validate:"required"`
}

type externalLoginRequest struct {
	ExternalID string `json:"external_id" validate:"required"`
	Email      string `json:"email" validate:"required,email"`
	FirstName  string `json:"first_name"`
	LastName   string `json:"last_name"`
}

type authResponse struct {
	User             *domain.Principal `json:"user"`
	AccessToken      string            `json:"access_token,omitempty"`
	RefreshToken     string            `json:"refresh_token,omitempty"`
	AccessExpiresAt  time.Time         `json:"access_expires_at,omitempty"`
	RefreshExpiresAt time.Time         `json:"refresh_expires_at,omitempty"`
	SessionID        string            `json:"session_id,omitempty"`
}

// Register creates a new account with its tenant storage.
//
// @Summary      Register a new account
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        body  body      registerRequest  true  "Registration details"
// @Success      201   {object}  authResponse
// @Failure      400   {object}  map[string]string
// @Failure      409   {object}  map[string]string
// @Router       /auth/register [post]
func (h *AuthHandler) Register(c echo.Context) error {
	var req registerRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid payload")
	}
	if err := c.Validate(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	p, err := h.authService.Register(c.Request().Context(), ports.RegisterInput{
		Handle:    req.Handle,
		Email:     req.Email,
		Password:  req.Password,
		FirstName: req.FirstName,
		LastName:  req.LastName,
	})
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrProvisioningFailed):
			metrics.RegistrationsTotal.WithLabelValues("provisioning_failed").Inc()
		default:
			metrics.RegistrationsTotal.WithLabelValues("rejected").Inc()
		}
		return err
	}

	metrics.RegistrationsTotal.WithLabelValues("ok").Inc()
	return c.JSON(http.StatusCreated, authResponse{User: p})
}

// Login authenticates by handle or email and returns a token pair.
//
// @Summary      Login
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        body  body      loginRequest  true  "Login credentials"
// @Success      200   {object}  authResponse
// @Failure      401   {object}  map[string]string
// @Failure      429   {object}  map[string]string
// @Router       /auth/login [post]
func (h *AuthHandler) Login(c echo.Context) error {
	var req loginRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid payload")
	}
	if err := c.Validate(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	res, err := h.authService.Authenticate(c.Request().Context(), req.Identifier, req.Password, c.RealIP())
	if err != nil {
		if errors.Is(err, domain.ErrAccountLocked) {
			metrics.LoginsTotal.WithLabelValues("locked").Inc()
		} else {
			metrics.LoginsTotal.WithLabelValues("invalid").Inc()
		}
		return err
	}
	metrics.LoginsTotal.WithLabelValues("ok").Inc()

	if req.Remember {
		h.setRefreshCookie(c, res.Tokens.Refresh, res.Tokens.RefreshExpiresAt)
	}
	return c.JSON(http.StatusOK, authResponse{
		User:             res.Principal,
		AccessToken:      res.Tokens.Access,
		RefreshToken:     res.Tokens.Refresh,
		AccessExpiresAt:  res.Tokens.AccessExpiresAt,
		RefreshExpiresAt: res.Tokens.RefreshExpiresAt,
		SessionID:        res.SessionID,
	})
}

// Refresh rotates a refresh token for a new pair. The token comes from the
// JSON body, or from the remember-me cookie when the body carries none.
//
// @Summary      Rotate a refresh token
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        body  body      refreshRequest  false  "Refresh token"
// @Success      200   {object}  authResponse
// @Failure      401   {object}  map[string]string
// @Router       /auth/refresh [post]
func (h *AuthHandler) Refresh(c echo.Context) error {
	var req refreshRequest
	_ = c.Bind(&req)

	raw := strings.TrimSpace(req.RefreshToken)
	fromCookie := false
	if raw == "" {
		if cookie, err := c.Cookie(refreshCookie); err == nil {
			raw = cookie.Value
			fromCookie = true
		}
	}
	if raw == "" {
		return domain.ErrTokenRequired
	}

	pair, err := h.authService.Refresh(c.Request().Context(), raw)
	if err != nil {
		metrics.TokenRefreshTotal.WithLabelValues("invalid").Inc()
		return err
	}
	metrics.TokenRefreshTotal.WithLabelValues("ok").Inc()

	// Only the cookie that supplied the rotated token gets replaced; a
	// body-driven refresh leaves any unrelated cookie alone.
	if fromCookie {
		h.setRefreshCookie(c, pair.Refresh, pair.RefreshExpiresAt)
	}
	return c.JSON(http.StatusOK, authResponse{
		AccessToken:      pair.Access,
		RefreshToken:     pair.Refresh,
		AccessExpiresAt:  pair.AccessExpiresAt,
		RefreshExpiresAt: pair.RefreshExpiresAt,
	})
}

// Logout revokes the named session, or every session when none is named.
//
// @Summary      Logout
// @Tags         auth
// @Security     BearerAuth
// @Accept       json
// @Param        body  body  logoutRequest  false  "Session to revoke; omit to revoke all"
// @Success      204
// @Router       /auth/logout [post]
func (h *AuthHandler) Logout(c echo.Context) error {
	p, err := ctxPrincipal(c)
	if err != nil {
		return err
	}
	var req logoutRequest
	_ = c.Bind(&req)

	if err := h.authService.Logout(c.Request().Context(), p.ID, req.SessionID); err != nil {
		return err
	}
	h.clearRefreshCookie(c)
	return c.NoContent(http.StatusNoContent)
}

// Me returns the authenticated principal.
//
// @Summary      Current principal
// @Tags         auth
// @Security     BearerAuth
// @Produce      json
// @Success      200  {object}  domain.Principal
// @Router       /auth/me [get]
func (h *AuthHandler) Me(c echo.Context) error {
	p, err := ctxPrincipal(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, p)
}

// ChangePassword replaces the password and revokes every open session.
//
// @Summary      Change password
// @Tags         auth
// @Security     BearerAuth
// @Accept       json
// @Param        body  body  changePasswordRequest  true  "Current and new password"
// @Success      204
// @Failure      401   {object}  map[string]string
// @Router       /auth/password [put]
func (h *AuthHandler) ChangePassword(c echo.Context) error {
	p, err := ctxPrincipal(c)
	if err != nil {
		return err
	}
	var req changePasswordRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid payload")
	}
	if err := c.Validate(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	if err := h.authService.ChangePassword(c.Request().Context(), p.ID, req.CurrentPassword, req.NewPassword); err != nil {
		return err
	}
	h.clearRefreshCookie(c)
	return c.NoContent(http.StatusNoContent)
}

// DeleteAccount removes the account, its sessions and its tenant storage.
//
// @Summary      Delete account
// @Tags         auth
// @Security     BearerAuth
// @Success      204
// @Router       /auth/account [delete]
func (h *AuthHandler) DeleteAccount(c echo.Context) error {
	p, err := ctxPrincipal(c)
	if err != nil {
		return err
	}
	if err := h.authService.DeleteAccount(c.Request().Context(), p.ID); err != nil {
		return err
	}
	h.clearRefreshCookie(c)
	return c.NoContent(http.StatusNoContent)
}

// LinkExternal attaches an external identity to the current account.
//
// @Summary      Link an external account
// @Tags         auth
// @Security     BearerAuth
// @Accept       json
// @Param        body  body  linkRequest  true  "External identity"
// @Success      204
// @Failure      409   {object}  map[string]string
// @Router       /auth/link [post]
func (h *AuthHandler) LinkExternal(c echo.Context) error {
	p, err := ctxPrincipal(c)
	if err != nil {
		return err
	}
	var req linkRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid payload")
	}
	if err := c.Validate(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	if err := h.authService.LinkExternalAccount(c.Request().Context(), p.ID, req.ExternalID); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

// ExternalLogin signs in with a verified OAuth profile, merging into an
// existing account by contact address before creating a fresh one.
//
// @Summary      Login with an external identity
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        body  body      externalLoginRequest  true  "Verified external profile"
// @Success      200   {object}  authResponse
// @Router       /auth/external [post]
func (h *AuthHandler) ExternalLogin(c echo.Context) error {
	var req externalLoginRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid payload")
	}
	if err := c.Validate(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	res, err := h.authService.AuthenticateExternal(c.Request().Context(), ports.ExternalProfile{
		ExternalID: req.ExternalID,
		Email:      req.Email,
		FirstName:  req.FirstName,
		LastName:   req.LastName,
	}, c.RealIP())
	if err != nil {
		metrics.LoginsTotal.WithLabelValues("invalid").Inc()
		return err
	}
	metrics.LoginsTotal.WithLabelValues("ok").Inc()

	return c.JSON(http.StatusOK, authResponse{
		User:             res.Principal,
		AccessToken:      res.Tokens.Access,
		RefreshToken:     res.Tokens.Refresh,
		AccessExpiresAt:  res.Tokens.AccessExpiresAt,
		RefreshExpiresAt: res.Tokens.RefreshExpiresAt,
		SessionID:        res.SessionID,
	})
}

func (h *AuthHandler) setRefreshCookie(c echo.Context, token string, expires time.Time) {
	c.SetCookie(&http.Cookie{
		Name:     refreshCookie,
		Value:    token,
		Path:     "/auth",
		Expires:  expires,
		HttpOnly: true,
		Secure:   h.secureCookies,
		SameSite: http.SameSiteStrictMode,
	})
}

func (h *AuthHandler) clearRefreshCookie(c echo.Context) {
	c.SetCookie(&http.Cookie{
		Name:     refreshCookie,
		Value:    "",
		Path:     "/auth",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.secureCookies,
		SameSite: http.SameSiteStrictMode,
	})
}
