package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/fintrack/fintrack-api/internal/api/middleware"
	"github.com/fintrack/fintrack-api/internal/core/domain"
)

// ctxPrincipal extracts the principal attached by the request gate. A missing
// principal means the route was wired without the gate — reject rather than
// proceed anonymously.
func ctxPrincipal(c echo.Context) (*domain.Principal, error) {
	p, _ := c.Get(middleware.ContextPrincipal).(*domain.Principal)
	if p == nil {
		return nil, echo.NewHTTPError(http.StatusUnauthorized, "missing authentication context")
	}
	return p, nil
}
