package model

import "time"

// Expense mirrors a row of the `expenses` table.  Amounts are stored
// as decimal strings by MySQL and scanned into float64 here because
// the API reports them as JSON numbers.
type Expense struct {
	ID          uint64    `json:"id"`
	UserID      uint64    `json:"user_id"`
	Amount      float64   `json:"amount"`
	Category    string    `json:"category"`
	Description string    `json:"description"`
	ExpenseDate time.Time `json:"expense_date"`
	CreatedAt   time.Time `json:"created_at"`
}

// CategoryTotal is one slice of the per-category aggregation used by
// the statistics endpoint.
type CategoryTotal struct {
	Category string  `json:"category"`
	Total    float64 `json:"total"`
}
