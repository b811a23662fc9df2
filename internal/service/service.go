// Package service is the organizer's single entry point for callers.
//
// THE LAYERS:
//
//	Handler (HTTP)      → parses requests, writes responses
//	Service (this)      → owns the store, serializes callers, logs
//	Store / Repository  → in-memory state, durable snapshots
//
// A Service is opened once per data file and closed on shutdown. Close
// writes anything the autosaver has not written yet.
//
// ONE LOGICAL WRITER:
// The HTTP server runs handlers concurrently. Every Service method takes
// s.mu, so store mutations and the multi-step flows built on them (import,
// bulk, create-with-tag-labels) never interleave.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/sakif/snippet-organizer/internal/apperror"
	"github.com/sakif/snippet-organizer/internal/autosave"
	"github.com/sakif/snippet-organizer/internal/bulk"
	"github.com/sakif/snippet-organizer/internal/model"
	"github.com/sakif/snippet-organizer/internal/repository"
	"github.com/sakif/snippet-organizer/internal/store"
)

type Options struct {
	Store    store.Options
	Autosave autosave.Options
	// Seed adds the starter template when there is no saved state yet.
	Seed bool
	// ResetCorrupt starts empty instead of failing when the saved state is
	// corrupt. The file is left alone until the next save replaces it.
	ResetCorrupt bool
}

type Service struct {
	mu     sync.Mutex
	repo   repository.StateRepository
	store  *store.Store
	saver  *autosave.Saver
	bulk   *bulk.Engine
	logger *slog.Logger
}

// Open loads the saved state from repo and returns a ready Service.
func Open(ctx context.Context, repo repository.StateRepository, opts Options, logger *slog.Logger) (*Service, error) {
	st := store.New(opts.Store)

	fresh := false
	snap, err := repo.Load(ctx)
	switch {
	case errors.Is(err, repository.ErrNoState):
		fresh = true
		logger.Info("no saved state, starting empty")
	case errors.Is(err, apperror.ErrCorruptState) && opts.ResetCorrupt:
		logger.Warn("saved state is corrupt, starting empty",
			slog.String("error", err.Error()))
	case err != nil:
		return nil, fmt.Errorf("loading state: %w", err)
	default:
		if err := st.Load(snap); err != nil {
			return nil, fmt.Errorf("loading state: %w", err)
		}
		logger.Info("state loaded",
			slog.Int("snippets", len(snap.Snippets)),
			slog.Int("categories", len(snap.Categories)),
			slog.Int("tags", len(snap.Tags)))
	}

	saver := autosave.New(repo, opts.Autosave, logger)
	st.OnCommit(saver.Notify)

	s := &Service{
		repo:   repo,
		store:  st,
		saver:  saver,
		bulk:   bulk.New(st, saver, logger),
		logger: logger,
	}

	if fresh && opts.Seed {
		report := s.importProposed(defaultSnippets())
		logger.Info("seeded starter snippets", slog.Int("added", report.Added))
	}
	return s, nil
}

// Close flushes pending changes. The Service must not be used afterwards.
func (s *Service) Close(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.saver.Close(ctx); err != nil {
		s.logger.Error("final save failed", slog.String("error", err.Error()))
		return err
	}
	return nil
}

// Save writes the current state now, whatever the autosave mode.
func (s *Service) Save(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.saver.SaveNow(ctx, s.store.Head()); err != nil {
		s.logger.Error("save failed", slog.String("error", err.Error()))
		return err
	}
	s.logger.Info("state saved on request")
	return nil
}

// Snapshot returns the committed state.
func (s *Service) Snapshot() model.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store.Snapshot()
}

// Bulk applies op to every id. Autosave is held for the batch and the
// result written once.
func (s *Service) Bulk(ctx context.Context, ids []string, op bulk.Operation) bulk.Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bulk.Apply(ctx, ids, op)
}
