package utils // package utils provides helper functions for token creation and hashing

import (
	"crypto/rand"   // secure random number generation
	"crypto/sha256" // SHA‑256 hashing for tokens at rest
	"encoding/hex"  // hex encoding and decoding functions
	"errors"        // sentinel verification errors
	"time"          // time utilities for generating expirations

	"github.com/golang-jwt/jwt/v5" // JWT library for creating signed tokens
)

// TokenKind selects which secret and TTL a token is signed and verified
// with.  Access tokens ride the Authorization header of every API call
// and carry the identity claims; refresh tokens are only ever exchanged
// on the refresh endpoint and carry nothing but the subject.  Keeping
// the dispatch in one tagged type prevents an access secret from ever
// being wired to a refresh expiry or vice versa.
type TokenKind int

const (
	AccessKind  TokenKind = iota // short-lived, claims {id,email,role}
	RefreshKind                  // long-lived, claims {id}
)

var (
	// ErrTokenExpired is returned by Verify when the token's exp claim
	// lies in the past.
	ErrTokenExpired = errors.New("token expired")
	// ErrTokenInvalid is returned for any other verification failure:
	// bad signature, wrong algorithm, malformed claims.
	ErrTokenInvalid = errors.New("token invalid")
)

// Claims is the decoded payload of a signed token.  For refresh tokens
// only UserID is populated.
type Claims struct {
	UserID uint64
	Email  string
	Role   string
}

// Codec signs and verifies both token kinds.  It is stateless and safe
// for concurrent use; the two secrets must be configured independently.
type Codec struct {
	AccessSecret  string
	RefreshSecret string
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
}

// NewCodec builds a Codec from the configured secrets and TTL units
// (minutes for access, days for refresh) as they appear in the
// environment.
func NewCodec(accessSecret, refreshSecret string, accessTTLMin, refreshTTLDays int) Codec {
	return Codec{
		AccessSecret:  accessSecret,
		RefreshSecret: refreshSecret,
		AccessTTL:     time.Duration(accessTTLMin) * time.Minute,
		RefreshTTL:    time.Duration(refreshTTLDays) * 24 * time.Hour,
	}
}

// params resolves the secret and TTL for a kind.  Unknown kinds fall
// back to access parameters; the constants above are the only values
// callers can construct without casting.
func (cd Codec) params(kind TokenKind) (string, time.Duration) {
	if kind == RefreshKind {
		return cd.RefreshSecret, cd.RefreshTTL
	}
	return cd.AccessSecret, cd.AccessTTL
}

// Sign builds and signs an HS256 JWT of the given kind.  Access tokens
// embed the subject, email and role; refresh tokens embed the subject
// only.  The returned time is the token's expiry.
func (cd Codec) Sign(kind TokenKind, cl Claims) (string, time.Time, error) {
	secret, ttl := cd.params(kind)
	now := time.Now().UTC()
	exp := now.Add(ttl)
	claims := jwt.MapClaims{
		"sub": cl.UserID,
		"exp": exp.Unix(),
		"iat": now.Unix(),
	}
	if kind == AccessKind {
		claims["email"] = cl.Email
		claims["role"] = cl.Role
	} else {
		// Refresh tokens are persisted by hash and must be unique per
		// session; without a nonce two logins in the same second would
		// mint identical tokens.
		jti, err := RandomHex(16)
		if err != nil {
			return "", time.Time{}, err
		}
		claims["jti"] = jti
	}
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := t.SignedString([]byte(secret))
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, exp, nil
}

// Verify parses a token against the secret of the given kind and
// returns the decoded claims.  An expired token yields ErrTokenExpired;
// every other failure yields ErrTokenInvalid.  Verification is pure:
// no storage is consulted here, refresh tokens additionally require a
// session-store match performed by the caller.
func (cd Codec) Verify(kind TokenKind, raw string) (Claims, error) {
	secret, _ := cd.params(kind)
	tok, err := jwt.Parse(raw, func(t *jwt.Token) (interface{}, error) {
		// Reject any algorithm other than the HMAC family we sign with.
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrTokenInvalid
		}
		return []byte(secret), nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Claims{}, ErrTokenExpired
		}
		return Claims{}, ErrTokenInvalid
	}
	if !tok.Valid {
		return Claims{}, ErrTokenInvalid
	}
	mc, ok := tok.Claims.(jwt.MapClaims)
	if !ok {
		return Claims{}, ErrTokenInvalid
	}
	var cl Claims
	switch sub := mc["sub"].(type) {
	case float64:
		cl.UserID = uint64(sub)
	default:
		return Claims{}, ErrTokenInvalid
	}
	if v, ok := mc["email"].(string); ok {
		cl.Email = v
	}
	if v, ok := mc["role"].(string); ok {
		cl.Role = v
	}
	return cl, nil
}

// HashTokenRaw returns the SHA‑256 hash of a raw token as a hex string.
// Only the hash is persisted; stolen database rows cannot be replayed
// as live refresh or reset tokens.
func HashTokenRaw(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// RandomHex returns a hex‑encoded string generated from n bytes of
// cryptographically secure random data.
func RandomHex(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
