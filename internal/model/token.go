package model

import "time"

// RefreshToken models an entry in the `refresh_tokens` table.  Each
// refresh token belongs to a user.  The token value handed to the
// client is never stored; only its SHA‑256 hash.  Rows are deleted on
// logout, and all rows of a user are deleted when their password is
// reset, so presence of an unexpired row is the definition of a live
// session.
//
// Fields:
//  ID        – primary key identifier.
//  UserID    – owner of the token.
//  TokenHash – SHA‑256 hex digest of the token value.
//  ExpiresAt – expiration timestamp of the token.
//  CreatedAt – timestamp of creation.
type RefreshToken struct {
	ID        uint64    // refresh_tokens.id
	UserID    uint64    // refresh_tokens.user_id
	TokenHash string    // refresh_tokens.token_hash
	ExpiresAt time.Time // refresh_tokens.expires_at
	CreatedAt time.Time // refresh_tokens.created_at
}

// PasswordResetToken models an entry in the `password_reset_tokens`
// table.  A token is created by a forgot-password request, lives for a
// fixed window and is deleted when consumed by a successful reset.
// Several unexpired tokens may coexist for one user; any of them is
// accepted once.
type PasswordResetToken struct {
	ID        uint64    // password_reset_tokens.id
	UserID    uint64    // password_reset_tokens.user_id
	TokenHash string    // password_reset_tokens.token_hash
	ExpiresAt time.Time // password_reset_tokens.expires_at
	CreatedAt time.Time // password_reset_tokens.created_at
}
