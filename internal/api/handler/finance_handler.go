package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/fintrack/fintrack-api/internal/core/domain"
	"github.com/fintrack/fintrack-api/internal/core/ports"
)

type FinanceHandler struct {
	finance ports.FinanceService
}

func NewFinanceHandler(finance ports.FinanceService) *FinanceHandler {
	return &FinanceHandler{finance: finance}
}

type createCategoryRequest struct {
	Name  string `json:"name" validate:"required,min=1,max=64"`
	Color string `json:"color" validate:"omitempty,hexcolor"`
	Type  string `json:"type" validate:"required,oneof=income expense both"`
}

type createTransactionRequest struct {
	Amount     float64   `json:"amount" validate:"required,gt=0"`
	Type       string    `json:"type" validate:"required,oneof=income expense"`
	CategoryID string    `json:"category_id" validate:"required"`
	Date       time.Time `json:"date"`
	Note       string    `json:"note" validate:"max=500"`
}

// ListCategories returns the tenant's categories, defaults first.
//
// @Summary      List categories
// @Tags         finance
// @Security     BearerAuth
// @Produce      json
// @Success      200  {array}  domain.Category
// @Router       /categories [get]
func (h *FinanceHandler) ListCategories(c echo.Context) error {
	p, err := ctxPrincipal(c)
	if err != nil {
		return err
	}
	cats, err := h.finance.Categories(c.Request().Context(), p.ID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, cats)
}

// CreateCategory adds a custom category to the tenant.
//
// @Summary      Create a category
// @Tags         finance
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        body  body      createCategoryRequest  true  "Category"
// @Success      201   {object}  domain.Category
// @Failure      409   {object}  map[string]string
// @Router       /categories [post]
func (h *FinanceHandler) CreateCategory(c echo.Context) error {
	p, err := ctxPrincipal(c)
	if err != nil {
		return err
	}
	var req createCategoryRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid payload")
	}
	if err := c.Validate(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	cat, err := h.finance.CreateCategory(c.Request().Context(), p.ID, &domain.Category{
		Name:  req.Name,
		Color: req.Color,
		Type:  domain.CategoryType(req.Type),
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, cat)
}

// DeleteCategory removes a custom category. Seeded defaults are protected.
//
// @Summary      Delete a category
// @Tags         finance
// @Security     BearerAuth
// @Param        id   path  string  true  "Category ID"
// @Success      204
// @Failure      403  {object}  map[string]string
// @Failure      404  {object}  map[string]string
// @Router       /categories/{id} [delete]
func (h *FinanceHandler) DeleteCategory(c echo.Context) error {
	p, err := ctxPrincipal(c)
	if err != nil {
		return err
	}
	if err := h.finance.DeleteCategory(c.Request().Context(), p.ID, c.Param("id")); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

// ListTransactions returns the tenant's transactions, newest first.
//
// @Summary      List transactions
// @Tags         finance
// @Security     BearerAuth
// @Produce      json
// @Param        limit  query    int  false  "Maximum rows to return"
// @Success      200    {array}  domain.Transaction
// @Router       /transactions [get]
func (h *FinanceHandler) ListTransactions(c echo.Context) error {
	p, err := ctxPrincipal(c)
	if err != nil {
		return err
	}
	var limit int64
	if raw := c.QueryParam("limit"); raw != "" {
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || n < 0 {
			return echo.NewHTTPError(http.StatusBadRequest, "limit must be a non-negative integer")
		}
		limit = n
	}
	txs, err := h.finance.Transactions(c.Request().Context(), p.ID, limit)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, txs)
}

// CreateTransaction records a transaction in the tenant's ledger.
//
// @Summary      Create a transaction
// @Tags         finance
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        body  body      createTransactionRequest  true  "Transaction"
// @Success      201   {object}  domain.Transaction
// @Router       /transactions [post]
func (h *FinanceHandler) CreateTransaction(c echo.Context) error {
	p, err := ctxPrincipal(c)
	if err != nil {
		return err
	}
	var req createTransactionRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid payload")
	}
	if err := c.Validate(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	tx, err := h.finance.CreateTransaction(c.Request().Context(), p.ID, &domain.Transaction{
		Amount:     req.Amount,
		Type:       domain.CategoryType(req.Type),
		CategoryID: req.CategoryID,
		Date:       req.Date,
		Note:       req.Note,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, tx)
}
