package main // Entry point package

import (
	"log" // Logging library

	"github.com/joho/godotenv"    // .env loader for local development
	"github.com/labstack/echo/v4" // Echo web framework

	"github.com/evamartas/expense-tracker/internal/config"   // Internal config loader
	"github.com/evamartas/expense-tracker/internal/database" // MySQL connection
	"github.com/evamartas/expense-tracker/internal/handler"  // HTTP handlers
	"github.com/evamartas/expense-tracker/internal/queue"    // reset notification consumer
	"github.com/evamartas/expense-tracker/internal/repository"
	"github.com/evamartas/expense-tracker/internal/router" // Internal router setup
	queue_publisher "github.com/evamartas/expense-tracker/internal/service"
	"github.com/evamartas/expense-tracker/internal/utils"
)

func main() {
	// Load .env when present; real deployments set the environment directly.
	if err := godotenv.Load(); err != nil {
		log.Printf("no .env file loaded: %v", err)
	}

	cfg := config.Load() // Load environment config

	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		log.Fatalf("open database: %v", err)
	}
	defer db.Close()

	// Redis is optional: nil disables the stats cache and the rate limiter.
	rdb := config.NewRedisClient()
	if rdb == nil {
		log.Printf("redis unavailable; cache and rate limiting disabled")
	}

	codec := utils.NewCodec(cfg.AccessSecret, cfg.RefreshSecret, cfg.AccessTTLMin, cfg.RefreshTTLDays)

	users := repository.NewUserRepo(db)
	tokens := repository.NewTokenRepo(db)
	expenses := repository.NewExpenseRepo(db)

	authHandler := handler.NewAuthHandler(cfg, codec, users, tokens, queue_publisher.ResetPublisher{})
	expenseHandler := handler.NewExpenseHandler(expenses)

	// Consume reset notifications in the background; the loop reconnects on
	// broker failures and never takes the API down with it.
	go func() {
		if err := queue.StartResetConsumer(); err != nil {
			log.Printf("reset consumer stopped: %v", err)
		}
	}()

	e := echo.New() // Create Echo instance
	router.RegisterRoutes(e)
	router.RegisterAuth(e, authHandler)
	router.RegisterExpenses(e, expenseHandler, codec, config.LoadCacheConfig(), config.LoadRateLimitConfig(), rdb)

	addr := ":" + cfg.Port                                // Address string with port
	log.Printf("listening on %s (env=%s)", addr, cfg.Env) // Print startup info

	if err := e.Start(addr); err != nil { // Start HTTP server
		log.Fatal(err) // Log and exit if server fails
	}
}
