// Package main is the entry point for the snippet organizer server.
//
// main only wires things together:
//  1. Read configuration (defaults, JSON file, env vars, flags)
//  2. Create dependencies (logger, repository, service)
//  3. Start the HTTP server and block until shutdown
//
// All actual logic lives in internal/.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/sakif/snippet-organizer/internal/auth"
	"github.com/sakif/snippet-organizer/internal/autosave"
	"github.com/sakif/snippet-organizer/internal/config"
	"github.com/sakif/snippet-organizer/internal/idgen"
	"github.com/sakif/snippet-organizer/internal/repository"
	"github.com/sakif/snippet-organizer/internal/repository/jsonfile"
	sqliteRepo "github.com/sakif/snippet-organizer/internal/repository/sqlite"
	"github.com/sakif/snippet-organizer/internal/server"
	"github.com/sakif/snippet-organizer/internal/service"
	"github.com/sakif/snippet-organizer/internal/store"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	// === 1. CONFIGURATION ===
	cfg, err := config.Load(os.Args[1:], os.Getenv)
	if err != nil {
		return err
	}

	// === 2. LOGGING ===
	// Log levels (least to most severe): Debug → Info → Warn → Error
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.Level(),
	}))

	// === 3. AUTH ===
	// With no secret the API is open; that is the normal localhost setup.
	var tokens *auth.TokenService
	if cfg.TokenSecret != "" {
		tokens, err = auth.NewTokenService(cfg.TokenSecret)
		if err != nil {
			return err
		}
	}
	if cfg.IssueToken {
		token, err := tokens.Generate("local", cfg.TokenTTL)
		if err != nil {
			return err
		}
		fmt.Println(token)
		return nil
	}

	// === 4. STORAGE ===
	statePath := cfg.StatePath()
	var repo repository.StateRepository
	switch cfg.Format {
	case config.FormatSQLite:
		repo = sqliteRepo.New(statePath)
	default:
		repo = jsonfile.New(statePath)
	}

	gen, err := idgen.GeneratorFor(cfg.IDScheme)
	if err != nil {
		return err
	}

	// === 5. SERVICE ===
	// A corrupt state file stops startup here unless -reset-corrupt is set.
	svc, err := service.Open(context.Background(), repo, service.Options{
		Store: store.Options{
			IDs:            idgen.New(gen),
			KeepUnusedTags: !cfg.TagGC,
		},
		Autosave: autosave.Options{
			Delay:  cfg.AutosaveDelay,
			Manual: !cfg.Autosave,
		},
		Seed:         cfg.Seed,
		ResetCorrupt: cfg.ResetCorrupt,
	}, logger)
	if err != nil {
		logger.Error("failed to open state",
			slog.String("path", statePath),
			slog.String("format", cfg.Format),
			slog.String("error", err.Error()))
		return err
	}

	// === 6. SERVER ===
	// Start blocks until Ctrl+C or SIGTERM, then closes the service, which
	// writes anything not yet saved.
	srv := server.New(server.Config{
		Port:      cfg.Port,
		StatePath: statePath,
		Tokens:    tokens,
	}, svc, logger)

	return srv.Start(context.Background())
}
