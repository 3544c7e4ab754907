package repository

import (
	"context"
	"database/sql"
	"time"
)

// TokenRepo implements TokenStore over the 'refresh_tokens' and
// 'password_reset_tokens' tables (single 'token_hash' column each).
// Revocation is a row delete: a refresh token with no row is dead no
// matter how long its signature would still verify.
type TokenRepo struct{ DB *sql.DB }

func NewTokenRepo(db *sql.DB) *TokenRepo { return &TokenRepo{DB: db} }

var _ TokenStore = (*TokenRepo)(nil)

// StoreRefresh inserts a refresh token hash row.
func (r *TokenRepo) StoreRefresh(ctx context.Context, userID uint64, tokenHash string, exp time.Time) error {
	_, err := r.DB.ExecContext(ctx,
		"INSERT INTO refresh_tokens (user_id, token_hash, expires_at) VALUES (?,?,?)",
		userID, tokenHash, exp)
	return err
}

// LookupRefresh returns userID if a non-expired token row exists.
func (r *TokenRepo) LookupRefresh(ctx context.Context, tokenHash string) (uint64, error) {
	var (
		userID    uint64
		expiresAt time.Time
	)
	err := r.DB.QueryRowContext(ctx,
		"SELECT user_id, expires_at FROM refresh_tokens WHERE token_hash=? LIMIT 1",
		tokenHash).Scan(&userID, &expiresAt)
	if err != nil {
		return 0, err
	}
	if time.Now().UTC().After(expiresAt) {
		return 0, sql.ErrNoRows
	}
	return userID, nil
}

// DeleteRefresh removes a single token row. Deleting a row that does
// not exist is not an error; logout is idempotent.
func (r *TokenRepo) DeleteRefresh(ctx context.Context, tokenHash string) error {
	_, err := r.DB.ExecContext(ctx,
		"DELETE FROM refresh_tokens WHERE token_hash=?", tokenHash)
	return err
}

// DeleteAllRefreshForUser removes every refresh token of a user,
// terminating all of their sessions across devices.
func (r *TokenRepo) DeleteAllRefreshForUser(ctx context.Context, userID uint64) error {
	_, err := r.DB.ExecContext(ctx,
		"DELETE FROM refresh_tokens WHERE user_id=?", userID)
	return err
}

// StoreReset inserts a password reset token hash row. Outstanding
// tokens for the same user are left in place; any unexpired one may be
// consumed.
func (r *TokenRepo) StoreReset(ctx context.Context, userID uint64, tokenHash string, exp time.Time) error {
	_, err := r.DB.ExecContext(ctx,
		"INSERT INTO password_reset_tokens (user_id, token_hash, expires_at) VALUES (?,?,?)",
		userID, tokenHash, exp)
	return err
}

// ConsumeReset deletes an unexpired reset token row and returns its
// owner. The conditional delete is the concurrency control: when two
// resets race on the same token only the first delete affects a row,
// the loser sees sql.ErrNoRows.
func (r *TokenRepo) ConsumeReset(ctx context.Context, tokenHash string) (uint64, error) {
	var userID uint64
	err := r.DB.QueryRowContext(ctx,
		"SELECT user_id FROM password_reset_tokens WHERE token_hash=? AND expires_at > UTC_TIMESTAMP() LIMIT 1",
		tokenHash).Scan(&userID)
	if err != nil {
		return 0, err
	}
	res, err := r.DB.ExecContext(ctx,
		"DELETE FROM password_reset_tokens WHERE token_hash=? AND expires_at > UTC_TIMESTAMP()",
		tokenHash)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	if n == 0 {
		return 0, sql.ErrNoRows
	}
	return userID, nil
}
