package repository

import (
	"context"
	"database/sql"

	"github.com/evamartas/expense-tracker/internal/model"
)

// ExpenseRepo provides CRUD and aggregation over the expenses table.
// Every query is scoped by user_id; one user can never read or delete
// another user's rows. All timestamp fields are assumed to be stored
// in UTC.
type ExpenseRepo struct {
	db *sql.DB
}

// NewExpenseRepo returns a new ExpenseRepo bound to the given database.
func NewExpenseRepo(db *sql.DB) *ExpenseRepo { return &ExpenseRepo{db: db} }

var _ ExpenseStore = (*ExpenseRepo)(nil)

// ListByUser returns all expenses of a user, most recent expense date
// first, ties broken by creation time.
func (r *ExpenseRepo) ListByUser(ctx context.Context, userID uint64) ([]model.Expense, error) {
	const q = `SELECT id, user_id, amount, category, description, expense_date, created_at
        FROM expenses WHERE user_id=? ORDER BY expense_date DESC, created_at DESC`
	rows, err := r.db.QueryContext(ctx, q, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanExpenses(rows)
}

// Create inserts an expense and populates the generated ID and
// creation time on the provided record.
func (r *ExpenseRepo) Create(ctx context.Context, e *model.Expense) error {
	const q = `INSERT INTO expenses (user_id, amount, category, description, expense_date)
        VALUES (?, ?, ?, ?, ?)`
	res, err := r.db.ExecContext(ctx, q, e.UserID, e.Amount, e.Category, e.Description, e.ExpenseDate)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	e.ID = uint64(id)
	return r.db.QueryRowContext(ctx,
		"SELECT created_at FROM expenses WHERE id=?", e.ID).Scan(&e.CreatedAt)
}

// Delete removes an expense owned by the user. A delete that affects
// no row reports sql.ErrNoRows so handlers can answer 404.
func (r *ExpenseRepo) Delete(ctx context.Context, id, userID uint64) error {
	res, err := r.db.ExecContext(ctx,
		"DELETE FROM expenses WHERE id=? AND user_id=?", id, userID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// Stats aggregates the user's current calendar month (total and
// per-category) and their ten most recent expenses.
func (r *ExpenseRepo) Stats(ctx context.Context, userID uint64) (ExpenseStats, error) {
	var stats ExpenseStats

	const totalQ = `SELECT COALESCE(SUM(amount),0) FROM expenses
        WHERE user_id=? AND YEAR(expense_date)=YEAR(UTC_DATE()) AND MONTH(expense_date)=MONTH(UTC_DATE())`
	if err := r.db.QueryRowContext(ctx, totalQ, userID).Scan(&stats.TotalThisMonth); err != nil {
		return ExpenseStats{}, err
	}

	const catQ = `SELECT category, COALESCE(SUM(amount),0) AS total FROM expenses
        WHERE user_id=? AND YEAR(expense_date)=YEAR(UTC_DATE()) AND MONTH(expense_date)=MONTH(UTC_DATE())
        GROUP BY category ORDER BY total DESC`
	rows, err := r.db.QueryContext(ctx, catQ, userID)
	if err != nil {
		return ExpenseStats{}, err
	}
	defer rows.Close()
	stats.ByCategory = []model.CategoryTotal{}
	for rows.Next() {
		var ct model.CategoryTotal
		if err := rows.Scan(&ct.Category, &ct.Total); err != nil {
			return ExpenseStats{}, err
		}
		stats.ByCategory = append(stats.ByCategory, ct)
	}
	if err := rows.Err(); err != nil {
		return ExpenseStats{}, err
	}

	const recentQ = `SELECT id, user_id, amount, category, description, expense_date, created_at
        FROM expenses WHERE user_id=? ORDER BY expense_date DESC, created_at DESC LIMIT 10`
	recentRows, err := r.db.QueryContext(ctx, recentQ, userID)
	if err != nil {
		return ExpenseStats{}, err
	}
	defer recentRows.Close()
	stats.Recent, err = scanExpenses(recentRows)
	if err != nil {
		return ExpenseStats{}, err
	}
	return stats, nil
}

func scanExpenses(rows *sql.Rows) ([]model.Expense, error) {
	out := []model.Expense{}
	for rows.Next() {
		var e model.Expense
		if err := rows.Scan(&e.ID, &e.UserID, &e.Amount, &e.Category, &e.Description, &e.ExpenseDate, &e.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
