package handler

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evamartas/expense-tracker/internal/model"
	"github.com/evamartas/expense-tracker/internal/repository"
)

type fakeExpenses struct {
	nextID uint64
	rows   []model.Expense
}

func (f *fakeExpenses) ListByUser(_ context.Context, userID uint64) ([]model.Expense, error) {
	out := []model.Expense{}
	for _, e := range f.rows {
		if e.UserID == userID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (f *fakeExpenses) Create(_ context.Context, e *model.Expense) error {
	f.nextID++
	e.ID = f.nextID
	e.CreatedAt = time.Now().UTC()
	f.rows = append(f.rows, *e)
	return nil
}

func (f *fakeExpenses) Delete(_ context.Context, id, userID uint64) error {
	for i, e := range f.rows {
		if e.ID == id && e.UserID == userID {
			f.rows = append(f.rows[:i], f.rows[i+1:]...)
			return nil
		}
	}
	return sql.ErrNoRows
}

func (f *fakeExpenses) Stats(_ context.Context, userID uint64) (repository.ExpenseStats, error) {
	stats := repository.ExpenseStats{ByCategory: []model.CategoryTotal{}, Recent: []model.Expense{}}
	perCat := map[string]float64{}
	for _, e := range f.rows {
		if e.UserID != userID {
			continue
		}
		stats.TotalThisMonth += e.Amount
		perCat[e.Category] += e.Amount
		stats.Recent = append(stats.Recent, e)
	}
	for cat, total := range perCat {
		stats.ByCategory = append(stats.ByCategory, model.CategoryTotal{Category: cat, Total: total})
	}
	return stats, nil
}

func expenseCall(h echo.HandlerFunc, method, target, body string, userID uint64, params ...string) *httptest.ResponseRecorder {
	e := echo.New()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.Set("user_id", userID)
	for i := 0; i+1 < len(params); i += 2 {
		c.SetParamNames(params[i])
		c.SetParamValues(params[i+1])
	}
	_ = h(c)
	return rec
}

func TestCreateAndListExpenses(t *testing.T) {
	store := &fakeExpenses{}
	h := NewExpenseHandler(store)

	rec := expenseCall(h.Create, http.MethodPost, "/api/expenses",
		`{"amount":12.5,"category":"food","description":"lunch","expense_date":"2026-08-14"}`, 1)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var created model.Expense
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.Equal(t, uint64(1), created.ID)
	assert.Equal(t, 12.5, created.Amount)
	assert.Equal(t, "food", created.Category)

	rec = expenseCall(h.List, http.MethodGet, "/api/expenses", "", 1)
	require.Equal(t, http.StatusOK, rec.Code)
	var list []model.Expense
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.Len(t, list, 1)

	// Another user sees nothing.
	rec = expenseCall(h.List, http.MethodGet, "/api/expenses", "", 2)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())
}

func TestCreateExpenseValidation(t *testing.T) {
	h := NewExpenseHandler(&fakeExpenses{})

	cases := []string{
		`{"category":"food","expense_date":"2026-08-14"}`,              // missing amount
		`{"amount":"12.5","category":"food","expense_date":"2026-08-14"}`, // amount not a number
		`{"amount":5,"category":"","expense_date":"2026-08-14"}`,       // empty category
		`{"amount":5,"category":"food","expense_date":"not-a-date"}`,   // bad date
		`{"amount":5,"category":"food"}`,                               // missing date
	}
	for _, body := range cases {
		rec := expenseCall(h.Create, http.MethodPost, "/api/expenses", body, 1)
		assert.Equal(t, http.StatusBadRequest, rec.Code, body)
		assert.JSONEq(t, `{"error":"Invalid expense data"}`, rec.Body.String(), body)
	}
}

func TestDeleteExpense(t *testing.T) {
	store := &fakeExpenses{}
	h := NewExpenseHandler(store)

	rec := expenseCall(h.Create, http.MethodPost, "/api/expenses",
		`{"amount":3,"category":"coffee","expense_date":"2026-08-14"}`, 1)
	require.Equal(t, http.StatusCreated, rec.Code)

	// Another user cannot delete it.
	rec = expenseCall(h.Delete, http.MethodDelete, "/api/expenses/1", "", 2, "id", "1")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.JSONEq(t, `{"error":"Expense not found"}`, rec.Body.String())

	rec = expenseCall(h.Delete, http.MethodDelete, "/api/expenses/1", "", 1, "id", "1")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"success":true}`, rec.Body.String())

	rec = expenseCall(h.Delete, http.MethodDelete, "/api/expenses/1", "", 1, "id", "1")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestStatsShape(t *testing.T) {
	store := &fakeExpenses{}
	h := NewExpenseHandler(store)
	expenseCall(h.Create, http.MethodPost, "/api/expenses",
		`{"amount":10,"category":"food","expense_date":"2026-08-10"}`, 1)
	expenseCall(h.Create, http.MethodPost, "/api/expenses",
		`{"amount":5,"category":"food","expense_date":"2026-08-11"}`, 1)
	expenseCall(h.Create, http.MethodPost, "/api/expenses",
		`{"amount":20,"category":"rent","expense_date":"2026-08-01"}`, 1)

	rec := expenseCall(h.Stats, http.MethodGet, "/api/expenses/stats", "", 1)
	require.Equal(t, http.StatusOK, rec.Code)

	var stats repository.ExpenseStats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.Equal(t, 35.0, stats.TotalThisMonth)
	assert.Len(t, stats.ByCategory, 2)
	assert.Len(t, stats.Recent, 3)
}
