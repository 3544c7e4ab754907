// Package client implements the session-aware API client: it holds the
// current access token, attaches it to outgoing calls, and performs the
// single silent refresh-and-retry when a call comes back 401. The
// refresh token itself never surfaces here; it lives in the http-only
// cookie managed by the client's cookie jar.
package client

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/http/cookiejar"
	"strings"
	"sync"
)

// User is the identity projection decoded from the access token's
// payload. It is not re-fetched from the server after validation.
type User struct {
	ID    uint64 `json:"id"`
	Email string `json:"email"`
	Role  string `json:"role"`
}

// APIError carries a domain error returned by the server.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d message=%q", e.Status, e.Message)
}

// ErrNotAuthenticated is returned by calls that need a session when no
// access token is held.
var ErrNotAuthenticated = errors.New("not authenticated")

// Client is safe for concurrent use. The mutex serializes refresh
// attempts: a refresh triggered by a 401 completes, success or failure,
// before the session state is stable again for other callers.
type Client struct {
	base  string
	hc    *http.Client
	store TokenStore

	mu    sync.Mutex
	token string
	user  *User
}

// New builds a Client against baseURL. The store holds the durable copy
// of the access token and may be nil for purely in-memory sessions.
// When a durable token is present, one refresh round-trip validates it:
// on success the token is replaced and the user decoded, on failure the
// durable copy is discarded and the session starts logged out.
func New(baseURL string, store TokenStore) (*Client, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}
	c := &Client{
		base:  strings.TrimRight(baseURL, "/"),
		hc:    &http.Client{Jar: jar},
		store: store,
	}
	if store != nil {
		if tok, err := store.Load(); err == nil && tok != "" {
			c.mu.Lock()
			if err := c.refreshLocked(context.Background()); err != nil {
				// Stale token; refreshLocked already cleared state.
				log.Printf("client: stored session invalid: %v", err)
			}
			c.mu.Unlock()
		}
	}
	return c, nil
}

// Register creates an account. The caller logs in afterwards.
func (c *Client) Register(ctx context.Context, email, password string) error {
	resp, err := c.postJSON(ctx, "/api/auth/register", map[string]string{
		"email": email, "password": password,
	})
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		return apiErrorFrom(resp)
	}
	return nil
}

// Login opens a session: the access token is held in memory (and the
// durable store), the refresh token lands in the cookie jar.
func (c *Client) Login(ctx context.Context, email, password string) (User, error) {
	resp, err := c.postJSON(ctx, "/api/auth/login", map[string]string{
		"email": email, "password": password,
	})
	if err != nil {
		return User{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return User{}, apiErrorFrom(resp)
	}
	var body struct {
		AccessToken string `json:"accessToken"`
		User        User   `json:"user"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return User{}, err
	}
	c.mu.Lock()
	c.setSessionLocked(body.AccessToken, &body.User)
	c.mu.Unlock()
	return body.User, nil
}

// Logout calls the server best-effort and unconditionally clears local
// session state, durable storage included. Server errors are logged,
// never surfaced.
func (c *Client) Logout(ctx context.Context) {
	if resp, err := c.postJSON(ctx, "/api/auth/logout", nil); err != nil {
		log.Printf("client: logout request failed: %v", err)
	} else {
		resp.Body.Close()
	}
	c.mu.Lock()
	c.clearSessionLocked()
	c.mu.Unlock()
}

// ForgotPassword requests a reset token for the email. The server acks
// identically whether or not the account exists.
func (c *Client) ForgotPassword(ctx context.Context, email string) error {
	resp, err := c.postJSON(ctx, "/api/auth/forgot-password", map[string]string{"email": email})
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return apiErrorFrom(resp)
	}
	return nil
}

// ResetPassword consumes a reset token.
func (c *Client) ResetPassword(ctx context.Context, token, newPassword string) error {
	resp, err := c.postJSON(ctx, "/api/auth/reset-password", map[string]string{
		"token": token, "newPassword": newPassword,
	})
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return apiErrorFrom(resp)
	}
	return nil
}

// AccessToken returns the current bearer token for callers that build
// requests outside Do. Returns ErrNotAuthenticated when no session is
// live.
func (c *Client) AccessToken() (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.token == "" {
		return "", ErrNotAuthenticated
	}
	return c.token, nil
}

// CurrentUser returns the decoded identity of the live session.
func (c *Client) CurrentUser() (User, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.user == nil {
		return User{}, false
	}
	return *c.user, true
}

// Do sends an API request with the bearer token attached. On a 401 it
// performs exactly one refresh attempt and, if that succeeds, retries
// the original request once with the new token. A 401 on the retried
// call is surfaced directly; the retry never recurses. When refresh
// fails, all session state is cleared and the original response is
// returned to the caller.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	c.mu.Lock()
	token := c.token
	c.mu.Unlock()

	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusUnauthorized || token == "" {
		return resp, nil
	}

	// Sent with a token and still 401: one silent refresh.
	c.mu.Lock()
	if err := c.refreshLocked(req.Context()); err != nil {
		c.mu.Unlock()
		return resp, nil // session torn down; caller sees the original 401
	}
	newToken := c.token
	c.mu.Unlock()

	retry, err := cloneRequest(req)
	if err != nil {
		return resp, nil // body not replayable; surface the original error
	}
	resp.Body.Close()
	retry.Header.Set("Authorization", "Bearer "+newToken)
	return c.hc.Do(retry)
}

// Get is a convenience wrapper around Do for body-less requests.
func (c *Client) Get(ctx context.Context, path string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+path, nil)
	if err != nil {
		return nil, err
	}
	return c.Do(req)
}

// PostJSON is a convenience wrapper around Do for JSON bodies.
func (c *Client) PostJSON(ctx context.Context, path string, payload any) (*http.Response, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+path, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.Do(req)
}

// refreshLocked exchanges the refresh cookie for a new access token.
// The caller must hold c.mu. Any failure clears the whole session.
func (c *Client) refreshLocked(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+"/api/auth/refresh", nil)
	if err != nil {
		return err
	}
	resp, err := c.hc.Do(req)
	if err != nil {
		c.clearSessionLocked()
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		c.clearSessionLocked()
		return apiErrorFrom(resp)
	}
	var body struct {
		AccessToken string `json:"accessToken"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		c.clearSessionLocked()
		return err
	}
	u, err := decodeUser(body.AccessToken)
	if err != nil {
		c.clearSessionLocked()
		return err
	}
	c.setSessionLocked(body.AccessToken, &u)
	return nil
}

func (c *Client) setSessionLocked(token string, u *User) {
	c.token = token
	c.user = u
	if c.store != nil {
		if err := c.store.Save(token); err != nil {
			log.Printf("client: save token: %v", err)
		}
	}
}

func (c *Client) clearSessionLocked() {
	c.token = ""
	c.user = nil
	if c.store != nil {
		if err := c.store.Clear(); err != nil {
			log.Printf("client: clear token: %v", err)
		}
	}
}

func (c *Client) postJSON(ctx context.Context, path string, payload any) (*http.Response, error) {
	var rd io.Reader
	if payload != nil {
		body, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+path, rd)
	if err != nil {
		return nil, err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.hc.Do(req)
}

// cloneRequest rebuilds a request for the single retry. Requests with a
// consumed, non-replayable body cannot be retried.
func cloneRequest(req *http.Request) (*http.Request, error) {
	clone := req.Clone(req.Context())
	if req.Body == nil || req.Body == http.NoBody {
		return clone, nil
	}
	if req.GetBody == nil {
		return nil, errors.New("request body cannot be replayed")
	}
	body, err := req.GetBody()
	if err != nil {
		return nil, err
	}
	clone.Body = body
	return clone, nil
}

// decodeUser extracts the identity claims from the access token's
// payload segment. No signature check happens client-side; the server
// verified the token before handing it over.
func decodeUser(token string) (User, error) {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return User{}, errors.New("malformed token")
	}
	payload, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return User{}, err
	}
	var claims struct {
		Sub   float64 `json:"sub"`
		Email string  `json:"email"`
		Role  string  `json:"role"`
	}
	if err := json.Unmarshal(payload, &claims); err != nil {
		return User{}, err
	}
	return User{ID: uint64(claims.Sub), Email: claims.Email, Role: claims.Role}, nil
}

// apiErrorFrom reads the {"error": ...} body of a failed call.
func apiErrorFrom(resp *http.Response) error {
	var body struct {
		Error string `json:"error"`
	}
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	_ = json.Unmarshal(raw, &body)
	return &APIError{Status: resp.StatusCode, Message: body.Error}
}
