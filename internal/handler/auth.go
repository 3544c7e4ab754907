package handler

import (
	"context"      // provides context with cancellation for DB calls
	"database/sql" // SQL database interactions
	"errors"       // sentinel error checks
	"net/http"     // HTTP status codes and primitives
	"strings"      // string manipulation utilities
	"time"         // timeouts for DB calls and cookie lifetimes

	"github.com/google/uuid"      // reset token generation
	"github.com/labstack/echo/v4" // Echo framework for HTTP routing

	"github.com/evamartas/expense-tracker/internal/config"     // app configuration
	"github.com/evamartas/expense-tracker/internal/queue"      // reset notification event
	"github.com/evamartas/expense-tracker/internal/repository" // store interfaces
	"github.com/evamartas/expense-tracker/internal/utils"      // token codec and hashing
)

const (
	minPasswordLen = 6
	resetTokenTTL  = time.Hour
	// refreshCookie is the only place the refresh token ever travels:
	// an http-only, same-site-strict cookie scoped to the auth routes.
	// The response body never carries it.
	refreshCookie = "refreshToken"
	cookiePath    = "/api/auth"
)

// ResetNotifier dispatches a password-reset token over the external
// notification channel. Failures must never change the outcome of the
// forgot-password endpoint; callers log and move on.
type ResetNotifier interface {
	NotifyPasswordReset(ctx context.Context, ev queue.PasswordResetRequestedEvent) error
}

// AuthHandler bundles dependencies for auth endpoints.
type AuthHandler struct {
	Cfg    config.Config
	Codec  utils.Codec
	Users  repository.UserStore
	Tokens repository.TokenStore
	Notify ResetNotifier // optional; nil disables dispatch
}

func NewAuthHandler(cfg config.Config, codec utils.Codec, u repository.UserStore, t repository.TokenStore, n ResetNotifier) *AuthHandler {
	return &AuthHandler{Cfg: cfg, Codec: codec, Users: u, Tokens: t, Notify: n}
}

// ----- DTOs -----

type registerReq struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}
type loginReq struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}
type forgotReq struct {
	Email string `json:"email"`
}
type resetReq struct {
	Token       string `json:"token"`
	NewPassword string `json:"newPassword"`
}

type registeredUser struct {
	ID        uint64    `json:"id"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
}
type sessionUser struct {
	ID    uint64 `json:"id"`
	Email string `json:"email"`
	Role  string `json:"role"`
}
type loginResp struct {
	AccessToken string      `json:"accessToken"`
	User        sessionUser `json:"user"`
}

// Register: create user, return the public record. No tokens are
// issued here; the client logs in afterwards.
func (h *AuthHandler) Register(c echo.Context) error {
	var req registerReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "Email and password are required"})
	}
	req.Email = strings.TrimSpace(req.Email)
	if req.Email == "" || req.Password == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "Email and password are required"})
	}
	if len(req.Password) < minPasswordLen {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "Password must be at least 6 characters"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	uid, err := h.Users.Create(ctx, req.Email, req.Password, h.Cfg.BcryptCost)
	if err != nil {
		if errors.Is(err, repository.ErrEmailExists) {
			return c.JSON(http.StatusConflict, echo.Map{"error": "User already exists"})
		}
		c.Logger().Errorf("register: create user: %v", err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "Internal server error"})
	}

	u, err := h.Users.GetByID(ctx, uid)
	if err != nil {
		c.Logger().Errorf("register: load user: %v", err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "Internal server error"})
	}

	return c.JSON(http.StatusCreated, echo.Map{
		"message": "User created successfully",
		"user":    registeredUser{ID: u.ID, Email: u.Email, CreatedAt: u.CreatedAt},
	})
}

// Login: verify credentials and open a session. Unknown email, an
// inactive account and a wrong password all answer the exact same 401
// body; the distinction must not be observable from outside.
func (h *AuthHandler) Login(c echo.Context) error {
	var req loginReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "Email and password are required"})
	}
	req.Email = strings.TrimSpace(req.Email)
	if req.Email == "" || req.Password == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "Email and password are required"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	u, err := h.Users.GetByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return c.JSON(http.StatusUnauthorized, echo.Map{"error": "Invalid credentials"})
		}
		c.Logger().Errorf("login: query user: %v", err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "Internal server error"})
	}
	if !u.IsActive || !utils.VerifyPassword(u.PasswordHash, req.Password) {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "Invalid credentials"})
	}

	access, _, err := h.Codec.Sign(utils.AccessKind, utils.Claims{UserID: u.ID, Email: u.Email, Role: u.Role})
	if err != nil {
		c.Logger().Errorf("login: sign access: %v", err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "Internal server error"})
	}
	refresh, refreshExp, err := h.Codec.Sign(utils.RefreshKind, utils.Claims{UserID: u.ID})
	if err != nil {
		c.Logger().Errorf("login: sign refresh: %v", err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "Internal server error"})
	}
	if err := h.Tokens.StoreRefresh(ctx, u.ID, utils.HashTokenRaw(refresh), refreshExp); err != nil {
		c.Logger().Errorf("login: save refresh: %v", err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "Internal server error"})
	}
	if err := h.Users.TouchLastLogin(ctx, u.ID); err != nil {
		c.Logger().Errorf("login: touch last_login: %v", err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "Internal server error"})
	}

	h.setRefreshCookie(c, refresh, refreshExp)
	return c.JSON(http.StatusOK, loginResp{
		AccessToken: access,
		User:        sessionUser{ID: u.ID, Email: u.Email, Role: u.Role},
	})
}

// Refresh: exchange the cookie for a new access token. The refresh
// token itself is not rotated; it stays valid until its expiry or an
// explicit delete. Validity requires BOTH a good signature and a live
// session-store row, so a deleted token can never refresh again.
func (h *AuthHandler) Refresh(c echo.Context) error {
	ck, err := c.Cookie(refreshCookie)
	if err != nil || ck.Value == "" {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "Refresh token required"})
	}
	raw := ck.Value

	if _, err := h.Codec.Verify(utils.RefreshKind, raw); err != nil {
		return c.JSON(http.StatusForbidden, echo.Map{"error": "Invalid refresh token"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	userID, err := h.Tokens.LookupRefresh(ctx, utils.HashTokenRaw(raw))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return c.JSON(http.StatusForbidden, echo.Map{"error": "Invalid refresh token"})
		}
		c.Logger().Errorf("refresh: lookup token: %v", err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "Internal server error"})
	}

	u, err := h.Users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return c.JSON(http.StatusForbidden, echo.Map{"error": "User not found or inactive"})
		}
		c.Logger().Errorf("refresh: load user: %v", err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "Internal server error"})
	}
	if !u.IsActive {
		return c.JSON(http.StatusForbidden, echo.Map{"error": "User not found or inactive"})
	}

	access, _, err := h.Codec.Sign(utils.AccessKind, utils.Claims{UserID: u.ID, Email: u.Email, Role: u.Role})
	if err != nil {
		c.Logger().Errorf("refresh: sign access: %v", err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "Internal server error"})
	}
	return c.JSON(http.StatusOK, echo.Map{"accessToken": access})
}

// Logout: idempotent. Deleting a row that is already gone is fine; the
// cookie is cleared and the ack returned either way.
func (h *AuthHandler) Logout(c echo.Context) error {
	if ck, err := c.Cookie(refreshCookie); err == nil && ck.Value != "" {
		ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
		defer cancel()
		if err := h.Tokens.DeleteRefresh(ctx, utils.HashTokenRaw(ck.Value)); err != nil {
			c.Logger().Errorf("logout: delete token: %v", err)
			return c.JSON(http.StatusInternalServerError, echo.Map{"error": "Internal server error"})
		}
	}
	h.clearRefreshCookie(c)
	return c.JSON(http.StatusOK, echo.Map{"message": "Logged out successfully"})
}

// ForgotPassword: the ack is identical whether or not the email exists
// so the endpoint cannot be used to enumerate accounts.
func (h *AuthHandler) ForgotPassword(c echo.Context) error {
	var req forgotReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "Email is required"})
	}
	req.Email = strings.TrimSpace(req.Email)
	if req.Email == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "Email is required"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	u, err := h.Users.GetByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return c.JSON(http.StatusOK, echo.Map{"message": "If the email exists, a reset link has been sent"})
		}
		c.Logger().Errorf("forgot-password: query user: %v", err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "Internal server error"})
	}

	token := uuid.NewString()
	exp := time.Now().UTC().Add(resetTokenTTL)
	if err := h.Tokens.StoreReset(ctx, u.ID, utils.HashTokenRaw(token), exp); err != nil {
		c.Logger().Errorf("forgot-password: save token: %v", err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "Internal server error"})
	}

	if h.Notify != nil {
		ev := queue.PasswordResetRequestedEvent{
			UserID:      u.ID,
			Email:       u.Email,
			Token:       token,
			ExpiresAt:   exp.Format(time.RFC3339),
			RequestedAt: time.Now().UTC().Format(time.RFC3339),
		}
		if err := h.Notify.NotifyPasswordReset(ctx, ev); err != nil {
			// Dispatch is best-effort; the ack below stays uniform.
			c.Logger().Errorf("forgot-password: notify: %v", err)
		}
	}

	return c.JSON(http.StatusOK, echo.Map{"message": "If the email exists, a reset link has been sent"})
}

// ResetPassword: consume the token once, store the new hash and tear
// down every refresh token of the user as containment against a
// compromised credential.
func (h *AuthHandler) ResetPassword(c echo.Context) error {
	var req resetReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "Token and new password are required"})
	}
	if strings.TrimSpace(req.Token) == "" || req.NewPassword == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "Token and new password are required"})
	}
	if len(req.NewPassword) < minPasswordLen {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "Password must be at least 6 characters"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	userID, err := h.Tokens.ConsumeReset(ctx, utils.HashTokenRaw(strings.TrimSpace(req.Token)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "Invalid or expired reset token"})
		}
		c.Logger().Errorf("reset-password: consume token: %v", err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "Internal server error"})
	}

	hash, err := utils.HashPassword(req.NewPassword, h.Cfg.BcryptCost)
	if err != nil {
		c.Logger().Errorf("reset-password: hash password: %v", err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "Internal server error"})
	}
	if err := h.Users.UpdatePassword(ctx, userID, hash); err != nil {
		c.Logger().Errorf("reset-password: update password: %v", err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "Internal server error"})
	}
	// Forced global logout: every outstanding session dies with the old password.
	if err := h.Tokens.DeleteAllRefreshForUser(ctx, userID); err != nil {
		c.Logger().Errorf("reset-password: revoke sessions: %v", err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "Internal server error"})
	}

	return c.JSON(http.StatusOK, echo.Map{"message": "Password reset successfully"})
}

// ----- cookie helpers -----

func (h *AuthHandler) setRefreshCookie(c echo.Context, token string, exp time.Time) {
	c.SetCookie(&http.Cookie{
		Name:     refreshCookie,
		Value:    token,
		Path:     cookiePath,
		Expires:  exp,
		MaxAge:   int(time.Until(exp) / time.Second),
		HttpOnly: true,
		Secure:   h.Cfg.Env == "prod",
		SameSite: http.SameSiteStrictMode,
	})
}

func (h *AuthHandler) clearRefreshCookie(c echo.Context) {
	c.SetCookie(&http.Cookie{
		Name:     refreshCookie,
		Value:    "",
		Path:     cookiePath,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.Cfg.Env == "prod",
		SameSite: http.SameSiteStrictMode,
	})
}
