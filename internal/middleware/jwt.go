package middleware // declare the middleware package; contains reusable HTTP middleware functions

import (
	"net/http" // HTTP status codes for responses
	"strings"  // string utilities for prefix checking and trimming

	"github.com/labstack/echo/v4" // Echo framework used for defining middleware and handlers

	"github.com/evamartas/expense-tracker/internal/utils" // token codec
)

// JWTAuth returns an Echo middleware that validates a Bearer access token and
// injects the token's claims into the request context.  Handlers access the
// authenticated user via `c.Get("user_id")` (uint64), `c.Get("email")` and
// `c.Get("role")`.  The two failure modes are deliberately distinct: a
// missing credential answers 401, while a credential that is present but
// fails verification answers 403.  Verification is signature+expiry only;
// no database round-trip happens on this path.
func JWTAuth(codec utils.Codec) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			// Read the Authorization header.  A valid header starts with
			// "Bearer " followed by the JWT.
			auth := c.Request().Header.Get("Authorization")
			if !strings.HasPrefix(auth, "Bearer ") {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "Access token required"})
			}
			raw := strings.TrimPrefix(auth, "Bearer ")

			cl, err := codec.Verify(utils.AccessKind, raw)
			if err != nil {
				// Expired and malformed tokens are reported identically;
				// both mean the caller must refresh or log in again.
				return c.JSON(http.StatusForbidden, echo.Map{"error": "Invalid or expired token"})
			}

			// Store the decoded claims in the context for handlers and
			// downstream middleware (cache keys, rate limit keys).
			c.Set("user_id", cl.UserID)
			c.Set("email", cl.Email)
			c.Set("role", cl.Role)
			return next(c)
		}
	}
}
