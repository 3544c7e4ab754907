package handler

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/evamartas/expense-tracker/internal/model"
	"github.com/evamartas/expense-tracker/internal/repository"
)

// ExpenseHandler serves the expense CRUD and statistics endpoints.
// Every operation is scoped to the user the JWTAuth middleware put in
// the request context.
type ExpenseHandler struct {
	Expenses repository.ExpenseStore
}

func NewExpenseHandler(e repository.ExpenseStore) *ExpenseHandler {
	return &ExpenseHandler{Expenses: e}
}

type createExpenseReq struct {
	Amount      *float64 `json:"amount"` // pointer so a missing amount is distinguishable from 0
	Category    string   `json:"category"`
	Description string   `json:"description"`
	ExpenseDate string   `json:"expense_date"`
}

// List returns all of the user's expenses, newest expense date first.
func (h *ExpenseHandler) List(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	rows, err := h.Expenses.ListByUser(ctx, contextUserID(c))
	if err != nil {
		c.Logger().Errorf("expenses: list: %v", err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "Failed to fetch expenses"})
	}
	return c.JSON(http.StatusOK, rows)
}

// Create validates and inserts a new expense for the user.
func (h *ExpenseHandler) Create(c echo.Context) error {
	var req createExpenseReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "Invalid expense data"})
	}
	date, ok := parseExpenseDate(req.ExpenseDate)
	if req.Amount == nil || strings.TrimSpace(req.Category) == "" || !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "Invalid expense data"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	e := model.Expense{
		UserID:      contextUserID(c),
		Amount:      *req.Amount,
		Category:    strings.TrimSpace(req.Category),
		Description: req.Description,
		ExpenseDate: date,
	}
	if err := h.Expenses.Create(ctx, &e); err != nil {
		c.Logger().Errorf("expenses: create: %v", err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "Failed to add expense"})
	}
	return c.JSON(http.StatusCreated, e)
}

// Delete removes one of the user's expenses by id.
func (h *ExpenseHandler) Delete(c echo.Context) error {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "Expense not found"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	if err := h.Expenses.Delete(ctx, id, contextUserID(c)); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "Expense not found"})
		}
		c.Logger().Errorf("expenses: delete: %v", err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "Failed to delete expense"})
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true})
}

// Stats returns the month total, per-category totals and the ten most
// recent expenses. Responses are cached per user by the redis cache
// middleware when it is enabled.
func (h *ExpenseHandler) Stats(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	stats, err := h.Expenses.Stats(ctx, contextUserID(c))
	if err != nil {
		c.Logger().Errorf("expenses: stats: %v", err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "Failed to fetch stats"})
	}
	return c.JSON(http.StatusOK, stats)
}

// contextUserID reads the user id stored by JWTAuth. Routes serving
// this handler are always behind that middleware, so a missing value
// simply yields zero and matches no rows.
func contextUserID(c echo.Context) uint64 {
	if v, ok := c.Get("user_id").(uint64); ok {
		return v
	}
	return 0
}

// parseExpenseDate accepts the client's date-only format and full
// RFC 3339 timestamps.
func parseExpenseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t, true
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, true
	}
	return time.Time{}, false
}
