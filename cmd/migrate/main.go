// Command migrate applies the walletscope Postgres schema via goose.
//
// Usage:
//
//	migrate up               # apply all pending migrations
//	migrate down             # roll back the last migration
//	migrate status           # show migration status
//	migrate version          # show current schema version
//	migrate redo             # roll back and re-apply the last migration
//	migrate up-to <version>
//	migrate down-to <version>
//
// DATABASE_URL is read from the environment or a .env file. MIGRATIONS_DIR
// overrides the default ./migrations.
package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/pressly/goose/v3"
	"github.com/walletscope/walletscope/internal/logging"
)

const defaultMigrationsDir = "migrations"

func main() {
	logger := logging.New(os.Getenv("LOG_LEVEL"), "text")

	if len(os.Args) < 2 {
		fmt.Println("Usage: migrate <command>")
		fmt.Println("Commands: up, down, status, version, redo, up-to <version>, down-to <version>")
		os.Exit(1)
	}

	_ = godotenv.Load()

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		logger.Error("DATABASE_URL environment variable is required")
		os.Exit(1)
	}
	dir := os.Getenv("MIGRATIONS_DIR")
	if dir == "" {
		dir = defaultMigrationsDir
	}

	db, err := sql.Open("postgres", dbURL)
	if err != nil {
		logger.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer func() { _ = db.Close() }()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}

	if err := goose.SetDialect("postgres"); err != nil {
		logger.Error("failed to set goose dialect", "error", err)
		os.Exit(1)
	}

	command, args := os.Args[1], os.Args[2:]
	logger.Info("running migration", "command", command, "dir", dir)
	if err := goose.RunContext(ctx, command, db, dir, args...); err != nil {
		logger.Error("migration failed", "command", command, "error", err)
		os.Exit(1)
	}
}
