package router // package router defines how HTTP routes are registered for the API

import (
	"github.com/labstack/echo/v4" // import the Echo web framework to handle routing
	"github.com/redis/go-redis/v9"

	"github.com/evamartas/expense-tracker/internal/config"     // cache and rate limit settings
	"github.com/evamartas/expense-tracker/internal/handler"    // import the handlers that implement business logic
	"github.com/evamartas/expense-tracker/internal/middleware" // import middleware for JWT authentication, caching and rate limiting
	"github.com/evamartas/expense-tracker/internal/utils"      // token codec for the JWT middleware
)

// RegisterRoutes registers routes that do not require authentication on the
// provided Echo instance.  Currently it exposes only a health check.
func RegisterRoutes(e *echo.Echo) {
	// Map the GET request at path "/healthz" to the Health handler.  This
	// endpoint can be used by load balancers or monitoring systems to verify
	// that the service is up and running.
	e.GET("/healthz", handler.Health)
}

// RegisterAuth registers all authentication‑related routes under /api/auth.
// None of them sit behind the JWT middleware: register, login, forgot and
// reset operate before a session exists, and refresh/logout authenticate
// with the refresh cookie instead of a bearer token.  These routes are
// also deliberately outside the rate limiter.
func RegisterAuth(e *echo.Echo, a *handler.AuthHandler) {
	g := e.Group("/api/auth")
	// Register a POST endpoint to handle user registration at /api/auth/register.
	g.POST("/register", a.Register)
	// Register a POST endpoint to handle user login at /api/auth/login.  On
	// success the refresh token is set as an http-only cookie scoped to
	// this group's path.
	g.POST("/login", a.Login)
	// Register a POST endpoint to mint a new access token at /api/auth/refresh.
	// The refresh token is read from the cookie and is not rotated.
	g.POST("/refresh", a.Refresh)
	// Register a POST endpoint to log out at /api/auth/logout.  The matching
	// session row is deleted and the cookie cleared; the call is idempotent.
	g.POST("/logout", a.Logout)
	// Password reset flow: request a token, then consume it.
	g.POST("/forgot-password", a.ForgotPassword)
	g.POST("/reset-password", a.ResetPassword)
}

// RegisterExpenses registers the expense CRUD and statistics routes under
// /api/expenses.  All of them require a valid access token.  The statistics
// endpoint additionally runs behind the per-user Redis response cache, and
// the whole group behind the Redis token bucket; both middlewares degrade
// to no-ops when rdb is nil.
func RegisterExpenses(e *echo.Echo, h *handler.ExpenseHandler, codec utils.Codec,
	cacheCfg config.CacheConfig, rlCfg config.RateLimitConfig, rdb *redis.Client) {
	g := e.Group("/api/expenses")
	// Apply the JWTAuth middleware to the protected group.  It validates the
	// bearer token without any database lookup and stores the claims in the
	// request context.
	g.Use(middleware.JWTAuth(codec))
	g.Use(middleware.NewTokenBucket(rlCfg, rdb))

	g.GET("", h.List)
	g.POST("", h.Create)
	g.GET("/stats", h.Stats, middleware.NewRedisCache(cacheCfg, rdb))
	g.DELETE("/:id", h.Delete)
}
