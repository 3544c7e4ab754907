package middleware

// identity.go defines helper functions shared across middleware files.
// It provides a userID extraction function that reads the identity the
// JWTAuth middleware stored in the Echo context. When no user is
// authenticated "anon" is returned so cache and rate-limit keys stay
// well-formed for guest traffic.

import (
	"strconv"

	"github.com/labstack/echo/v4"
)

// currentUserID extracts a user identifier from the Echo context. It
// returns "anon" when no user is authenticated.
func currentUserID(c echo.Context) string {
	if v := c.Get("user_id"); v != nil {
		switch id := v.(type) {
		case uint64:
			return strconv.FormatUint(id, 10)
		case string:
			if id != "" {
				return id
			}
		}
	}
	return "anon"
}
