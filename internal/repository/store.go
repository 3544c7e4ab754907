package repository

import (
	"context"
	"time"

	"github.com/evamartas/expense-tracker/internal/model"
)

// The handler layer depends on these interfaces rather than the MySQL
// repositories directly, so session and credential semantics can be
// tested against in-memory fakes. Lookups signal absence with
// sql.ErrNoRows, matching the concrete implementations.

// UserStore is the credential store: user identity and password-hash
// records.
type UserStore interface {
	// Create stores a user with a bcrypt hash of password and returns the new ID.
	Create(ctx context.Context, email, password string, cost int) (uint64, error)
	GetByEmail(ctx context.Context, email string) (model.User, error)
	GetByID(ctx context.Context, id uint64) (model.User, error)
	// UpdatePassword replaces the stored hash and bumps updated_at.
	UpdatePassword(ctx context.Context, id uint64, passwordHash string) error
	// TouchLastLogin records a successful login.
	TouchLastLogin(ctx context.Context, id uint64) error
}

// TokenStore is the session store: refresh-token and password-reset
// rows, matched by the SHA-256 digest of the raw token.
type TokenStore interface {
	StoreRefresh(ctx context.Context, userID uint64, tokenHash string, exp time.Time) error
	// LookupRefresh returns the owning user ID when an unexpired row matches.
	LookupRefresh(ctx context.Context, tokenHash string) (uint64, error)
	DeleteRefresh(ctx context.Context, tokenHash string) error
	// DeleteAllRefreshForUser terminates every session of a user.
	DeleteAllRefreshForUser(ctx context.Context, userID uint64) error
	StoreReset(ctx context.Context, userID uint64, tokenHash string, exp time.Time) error
	// ConsumeReset atomically deletes an unexpired reset row and returns its
	// owner. At most one caller can ever win a given token.
	ConsumeReset(ctx context.Context, tokenHash string) (uint64, error)
}

// ExpenseStore persists the expenses resource, always scoped to one user.
type ExpenseStore interface {
	ListByUser(ctx context.Context, userID uint64) ([]model.Expense, error)
	Create(ctx context.Context, e *model.Expense) error
	Delete(ctx context.Context, id, userID uint64) error
	Stats(ctx context.Context, userID uint64) (ExpenseStats, error)
}

// ExpenseStats aggregates a user's current calendar month plus their
// most recent expenses.
type ExpenseStats struct {
	TotalThisMonth float64               `json:"totalThisMonth"`
	ByCategory     []model.CategoryTotal `json:"byCategory"`
	Recent         []model.Expense       `json:"recent"`
}
