package app

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
)

// Run is the CLI entrypoint used by cmd/dwell.
// It returns an error instead of calling os.Exit to keep defers effective.
//
// Usage:
//
//	dwell                  serve
//	dwell migrate [cmd]    run migrations (up, down, version, force N)
func Run() error {
	// Local dev convenience; absent .env files are fine.
	_ = godotenv.Load()

	cfg := LoadConfig()
	log := NewLogger(cfg.LogLevel)

	if args := os.Args[1:]; len(args) > 0 && args[0] == "migrate" {
		command := "up"
		rest := []string{}
		if len(args) > 1 {
			command = args[1]
			rest = args[2:]
		}
		return RunMigrate(log, cfg.DatabaseURL, command, rest)
	}

	a, err := New(cfg, log)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	return a.Run(ctx)
}
