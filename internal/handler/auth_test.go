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

	"github.com/evamartas/expense-tracker/internal/config"
	"github.com/evamartas/expense-tracker/internal/model"
	"github.com/evamartas/expense-tracker/internal/queue"
	"github.com/evamartas/expense-tracker/internal/repository"
	"github.com/evamartas/expense-tracker/internal/utils"
)

// ----- in-memory fakes behind the store interfaces -----

type fakeUsers struct {
	nextID uint64
	byID   map[uint64]model.User
}

func newFakeUsers() *fakeUsers { return &fakeUsers{byID: map[uint64]model.User{}} }

func (f *fakeUsers) Create(_ context.Context, email, password string, cost int) (uint64, error) {
	for _, u := range f.byID {
		if u.Email == email {
			return 0, repository.ErrEmailExists
		}
	}
	hash, err := utils.HashPassword(password, cost)
	if err != nil {
		return 0, err
	}
	f.nextID++
	now := time.Now().UTC()
	f.byID[f.nextID] = model.User{
		ID: f.nextID, Email: email, PasswordHash: hash,
		Role: "user", IsActive: true, CreatedAt: now, UpdatedAt: now,
	}
	return f.nextID, nil
}

func (f *fakeUsers) GetByEmail(_ context.Context, email string) (model.User, error) {
	for _, u := range f.byID {
		if u.Email == email {
			return u, nil
		}
	}
	return model.User{}, sql.ErrNoRows
}

func (f *fakeUsers) GetByID(_ context.Context, id uint64) (model.User, error) {
	u, ok := f.byID[id]
	if !ok {
		return model.User{}, sql.ErrNoRows
	}
	return u, nil
}

func (f *fakeUsers) UpdatePassword(_ context.Context, id uint64, hash string) error {
	u, ok := f.byID[id]
	if !ok {
		return nil
	}
	u.PasswordHash = hash
	u.UpdatedAt = time.Now().UTC()
	f.byID[id] = u
	return nil
}

func (f *fakeUsers) TouchLastLogin(_ context.Context, id uint64) error {
	u, ok := f.byID[id]
	if !ok {
		return nil
	}
	now := time.Now().UTC()
	u.LastLogin = &now
	f.byID[id] = u
	return nil
}

func (f *fakeUsers) setActive(id uint64, active bool) {
	u := f.byID[id]
	u.IsActive = active
	f.byID[id] = u
}

type tokenRow struct {
	userID uint64
	exp    time.Time
}

type fakeTokens struct {
	refresh map[string]tokenRow
	resets  map[string]tokenRow
}

func newFakeTokens() *fakeTokens {
	return &fakeTokens{refresh: map[string]tokenRow{}, resets: map[string]tokenRow{}}
}

func (f *fakeTokens) StoreRefresh(_ context.Context, userID uint64, hash string, exp time.Time) error {
	f.refresh[hash] = tokenRow{userID: userID, exp: exp}
	return nil
}

func (f *fakeTokens) LookupRefresh(_ context.Context, hash string) (uint64, error) {
	row, ok := f.refresh[hash]
	if !ok || time.Now().UTC().After(row.exp) {
		return 0, sql.ErrNoRows
	}
	return row.userID, nil
}

func (f *fakeTokens) DeleteRefresh(_ context.Context, hash string) error {
	delete(f.refresh, hash)
	return nil
}

func (f *fakeTokens) DeleteAllRefreshForUser(_ context.Context, userID uint64) error {
	for h, row := range f.refresh {
		if row.userID == userID {
			delete(f.refresh, h)
		}
	}
	return nil
}

func (f *fakeTokens) StoreReset(_ context.Context, userID uint64, hash string, exp time.Time) error {
	f.resets[hash] = tokenRow{userID: userID, exp: exp}
	return nil
}

func (f *fakeTokens) ConsumeReset(_ context.Context, hash string) (uint64, error) {
	row, ok := f.resets[hash]
	if !ok || time.Now().UTC().After(row.exp) {
		return 0, sql.ErrNoRows
	}
	delete(f.resets, hash)
	return row.userID, nil
}

type fakeNotifier struct {
	events []queue.PasswordResetRequestedEvent
}

func (f *fakeNotifier) NotifyPasswordReset(_ context.Context, ev queue.PasswordResetRequestedEvent) error {
	f.events = append(f.events, ev)
	return nil
}

// ----- harness -----

type authEnv struct {
	h      *AuthHandler
	users  *fakeUsers
	tokens *fakeTokens
	notify *fakeNotifier
	e      *echo.Echo
}

func newAuthEnv() *authEnv {
	users := newFakeUsers()
	tokens := newFakeTokens()
	notify := &fakeNotifier{}
	cfg := config.Config{Env: "test", BcryptCost: 4}
	codec := utils.NewCodec("access-secret", "refresh-secret", 15, 7)
	return &authEnv{
		h:      NewAuthHandler(cfg, codec, users, tokens, notify),
		users:  users,
		tokens: tokens,
		notify: notify,
		e:      echo.New(),
	}
}

func (env *authEnv) call(h echo.HandlerFunc, body string, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	for _, ck := range cookies {
		req.AddCookie(ck)
	}
	rec := httptest.NewRecorder()
	c := env.e.NewContext(req, rec)
	_ = h(c)
	return rec
}

func (env *authEnv) register(t *testing.T, email, password string) {
	t.Helper()
	rec := env.call(env.h.Register, `{"email":"`+email+`","password":"`+password+`"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
}

func (env *authEnv) login(t *testing.T, email, password string) (string, *http.Cookie) {
	t.Helper()
	rec := env.call(env.h.Login, `{"email":"`+email+`","password":"`+password+`"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var body struct {
		AccessToken string `json:"accessToken"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.NotEmpty(t, body.AccessToken)
	for _, ck := range rec.Result().Cookies() {
		if ck.Name == "refreshToken" {
			return body.AccessToken, ck
		}
	}
	t.Fatal("no refreshToken cookie set on login")
	return "", nil
}

// ----- tests -----

func TestRegisterThenLogin(t *testing.T) {
	env := newAuthEnv()
	rec := env.call(env.h.Register, `{"email":"alice@example.com","password":"secret1"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	var created struct {
		Message string `json:"message"`
		User    struct {
			ID    uint64 `json:"id"`
			Email string `json:"email"`
		} `json:"user"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.Equal(t, "User created successfully", created.Message)
	assert.Equal(t, "alice@example.com", created.User.Email)

	rec = env.call(env.h.Login, `{"email":"alice@example.com","password":"secret1"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		AccessToken string `json:"accessToken"`
		User        struct {
			Email string `json:"email"`
			Role  string `json:"role"`
		} `json:"user"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "alice@example.com", body.User.Email)
	assert.NotEmpty(t, body.AccessToken)
	// The refresh token travels only in the cookie, never in the body.
	assert.NotContains(t, rec.Body.String(), "refreshToken")
}

func TestRegisterValidation(t *testing.T) {
	env := newAuthEnv()

	rec := env.call(env.h.Register, `{"email":"","password":""}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"error":"Email and password are required"}`, rec.Body.String())

	rec = env.call(env.h.Register, `{"email":"a@example.com","password":"short"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"error":"Password must be at least 6 characters"}`, rec.Body.String())
}

func TestRegisterDuplicateEmail(t *testing.T) {
	env := newAuthEnv()
	env.register(t, "alice@example.com", "secret1")

	rec := env.call(env.h.Register, `{"email":"alice@example.com","password":"secret2"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.JSONEq(t, `{"error":"User already exists"}`, rec.Body.String())
}

func TestRegisterNeverReturnsHash(t *testing.T) {
	env := newAuthEnv()
	rec := env.call(env.h.Register, `{"email":"alice@example.com","password":"secret1"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.NotContains(t, rec.Body.String(), "password")
}

func TestLoginUniformError(t *testing.T) {
	env := newAuthEnv()
	env.register(t, "alice@example.com", "secret1")

	wrongPassword := env.call(env.h.Login, `{"email":"alice@example.com","password":"wrong-1"}`)
	unknownEmail := env.call(env.h.Login, `{"email":"nobody@example.com","password":"secret1"}`)

	// Enumeration resistance: identical status AND identical body.
	assert.Equal(t, http.StatusUnauthorized, wrongPassword.Code)
	assert.Equal(t, wrongPassword.Code, unknownEmail.Code)
	assert.Equal(t, wrongPassword.Body.String(), unknownEmail.Body.String())
}

func TestLoginInactiveUser(t *testing.T) {
	env := newAuthEnv()
	env.register(t, "alice@example.com", "secret1")
	env.users.setActive(1, false)

	rec := env.call(env.h.Login, `{"email":"alice@example.com","password":"secret1"}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.JSONEq(t, `{"error":"Invalid credentials"}`, rec.Body.String())
}

func TestLoginCookieAttributes(t *testing.T) {
	env := newAuthEnv()
	env.register(t, "alice@example.com", "secret1")
	_, ck := env.login(t, "alice@example.com", "secret1")

	assert.True(t, ck.HttpOnly)
	assert.Equal(t, http.SameSiteStrictMode, ck.SameSite)
	assert.Equal(t, "/api/auth", ck.Path)
	// Roughly seven days.
	assert.InDelta(t, 7*24*3600, ck.MaxAge, 60)
}

func TestLoginTouchesLastLogin(t *testing.T) {
	env := newAuthEnv()
	env.register(t, "alice@example.com", "secret1")
	require.Nil(t, env.users.byID[1].LastLogin)

	env.login(t, "alice@example.com", "secret1")
	assert.NotNil(t, env.users.byID[1].LastLogin)
}

func TestRefreshWithoutCookie(t *testing.T) {
	env := newAuthEnv()
	rec := env.call(env.h.Refresh, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.JSONEq(t, `{"error":"Refresh token required"}`, rec.Body.String())
}

func TestRefreshMintsAccessWithoutRotation(t *testing.T) {
	env := newAuthEnv()
	env.register(t, "alice@example.com", "secret1")
	_, ck := env.login(t, "alice@example.com", "secret1")
	require.Len(t, env.tokens.refresh, 1)

	rec := env.call(env.h.Refresh, "", ck)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var body struct {
		AccessToken string `json:"accessToken"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.NotEmpty(t, body.AccessToken)

	// Not rotated: same single row, no new cookie issued.
	assert.Len(t, env.tokens.refresh, 1)
	assert.Empty(t, rec.Result().Cookies())

	// The same cookie keeps working.
	rec = env.call(env.h.Refresh, "", ck)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRefreshRejectsForgedToken(t *testing.T) {
	env := newAuthEnv()
	env.register(t, "alice@example.com", "secret1")
	env.login(t, "alice@example.com", "secret1")

	// Signed with the wrong secret: rejected before any store lookup.
	forged := utils.NewCodec("access-secret", "other-secret", 15, 7)
	tok, _, err := forged.Sign(utils.RefreshKind, utils.Claims{UserID: 1})
	require.NoError(t, err)

	rec := env.call(env.h.Refresh, "", &http.Cookie{Name: "refreshToken", Value: tok})
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.JSONEq(t, `{"error":"Invalid refresh token"}`, rec.Body.String())
}

func TestRefreshRequiresStoreRow(t *testing.T) {
	env := newAuthEnv()
	env.register(t, "alice@example.com", "secret1")
	_, ck := env.login(t, "alice@example.com", "secret1")

	// Delete the row out from under a cryptographically valid token.
	env.tokens.refresh = map[string]tokenRow{}

	rec := env.call(env.h.Refresh, "", ck)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.JSONEq(t, `{"error":"Invalid refresh token"}`, rec.Body.String())
}

func TestRefreshExpiredRow(t *testing.T) {
	env := newAuthEnv()
	env.register(t, "alice@example.com", "secret1")
	_, ck := env.login(t, "alice@example.com", "secret1")

	// Simulate expiry of the persisted row; the signature is still fine.
	for h, row := range env.tokens.refresh {
		row.exp = time.Now().UTC().Add(-time.Minute)
		env.tokens.refresh[h] = row
	}

	rec := env.call(env.h.Refresh, "", ck)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestRefreshInactiveUser(t *testing.T) {
	env := newAuthEnv()
	env.register(t, "alice@example.com", "secret1")
	_, ck := env.login(t, "alice@example.com", "secret1")
	env.users.setActive(1, false)

	rec := env.call(env.h.Refresh, "", ck)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.JSONEq(t, `{"error":"User not found or inactive"}`, rec.Body.String())
}

func TestLogoutDeletesSessionAndIsIdempotent(t *testing.T) {
	env := newAuthEnv()
	env.register(t, "alice@example.com", "secret1")
	_, ck := env.login(t, "alice@example.com", "secret1")

	rec := env.call(env.h.Logout, "", ck)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"message":"Logged out successfully"}`, rec.Body.String())
	assert.Empty(t, env.tokens.refresh)

	// Cookie cleared.
	cleared := false
	for _, c := range rec.Result().Cookies() {
		if c.Name == "refreshToken" && c.MaxAge < 0 {
			cleared = true
		}
	}
	assert.True(t, cleared)

	// Refresh can never succeed again with that token.
	rec = env.call(env.h.Refresh, "", ck)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	// Logging out again, or with no cookie at all, still acks.
	rec = env.call(env.h.Logout, "", ck)
	assert.Equal(t, http.StatusOK, rec.Code)
	rec = env.call(env.h.Logout, "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestForgotPasswordUniformAck(t *testing.T) {
	env := newAuthEnv()
	env.register(t, "alice@example.com", "secret1")

	known := env.call(env.h.ForgotPassword, `{"email":"alice@example.com"}`)
	unknown := env.call(env.h.ForgotPassword, `{"email":"nobody@example.com"}`)

	assert.Equal(t, http.StatusOK, known.Code)
	assert.Equal(t, known.Code, unknown.Code)
	assert.Equal(t, known.Body.String(), unknown.Body.String())

	// A token only exists for the real account, and only that request
	// was dispatched.
	assert.Len(t, env.tokens.resets, 1)
	require.Len(t, env.notify.events, 1)
	assert.Equal(t, "alice@example.com", env.notify.events[0].Email)
	assert.NotEmpty(t, env.notify.events[0].Token)
}

func TestForgotPasswordRequiresEmail(t *testing.T) {
	env := newAuthEnv()
	rec := env.call(env.h.ForgotPassword, `{"email":""}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"error":"Email is required"}`, rec.Body.String())
}

func TestResetPasswordFlow(t *testing.T) {
	env := newAuthEnv()
	env.register(t, "alice@example.com", "secret1")
	_, ck := env.login(t, "alice@example.com", "secret1")

	rec := env.call(env.h.ForgotPassword, `{"email":"alice@example.com"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, env.notify.events, 1)
	token := env.notify.events[0].Token

	rec = env.call(env.h.ResetPassword, `{"token":"`+token+`","newPassword":"newsecret"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.JSONEq(t, `{"message":"Password reset successfully"}`, rec.Body.String())

	// Old password dead, new one live.
	rec = env.call(env.h.Login, `{"email":"alice@example.com","password":"secret1"}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	rec = env.call(env.h.Login, `{"email":"alice@example.com","password":"newsecret"}`)
	assert.Equal(t, http.StatusOK, rec.Code)

	// Forced global logout: the pre-reset refresh token is gone.
	rec = env.call(env.h.Refresh, "", ck)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	// The reset token consumes exactly once.
	rec = env.call(env.h.ResetPassword, `{"token":"`+token+`","newPassword":"evennewer"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"error":"Invalid or expired reset token"}`, rec.Body.String())
}

func TestResetPasswordExpiredToken(t *testing.T) {
	env := newAuthEnv()
	env.register(t, "alice@example.com", "secret1")

	rec := env.call(env.h.ForgotPassword, `{"email":"alice@example.com"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	token := env.notify.events[0].Token

	// Push expires_at into the past.
	for h, row := range env.tokens.resets {
		row.exp = time.Now().UTC().Add(-time.Minute)
		env.tokens.resets[h] = row
	}

	rec = env.call(env.h.ResetPassword, `{"token":"`+token+`","newPassword":"newsecret"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"error":"Invalid or expired reset token"}`, rec.Body.String())
}

func TestResetPasswordValidation(t *testing.T) {
	env := newAuthEnv()

	rec := env.call(env.h.ResetPassword, `{"token":"","newPassword":""}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"error":"Token and new password are required"}`, rec.Body.String())

	rec = env.call(env.h.ResetPassword, `{"token":"some-token","newPassword":"short"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"error":"Password must be at least 6 characters"}`, rec.Body.String())
}

func TestMultipleResetTokensCoexist(t *testing.T) {
	env := newAuthEnv()
	env.register(t, "alice@example.com", "secret1")

	env.call(env.h.ForgotPassword, `{"email":"alice@example.com"}`)
	env.call(env.h.ForgotPassword, `{"email":"alice@example.com"}`)
	require.Len(t, env.notify.events, 2)
	assert.Len(t, env.tokens.resets, 2)

	// Either outstanding token works; here the first one.
	rec := env.call(env.h.ResetPassword, `{"token":"`+env.notify.events[0].Token+`","newPassword":"newsecret"}`)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestConcurrentLoginsCreateIndependentSessions(t *testing.T) {
	env := newAuthEnv()
	env.register(t, "alice@example.com", "secret1")
	_, ck1 := env.login(t, "alice@example.com", "secret1")
	_, ck2 := env.login(t, "alice@example.com", "secret1")
	require.Len(t, env.tokens.refresh, 2)

	// Logging out one device leaves the other session alive.
	rec := env.call(env.h.Logout, "", ck1)
	require.Equal(t, http.StatusOK, rec.Code)
	rec = env.call(env.h.Refresh, "", ck2)
	assert.Equal(t, http.StatusOK, rec.Code)
	rec = env.call(env.h.Refresh, "", ck1)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}
