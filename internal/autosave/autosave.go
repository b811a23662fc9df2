// Package autosave writes committed store states to a StateRepository.
//
// The Saver is registered as a store commit hook. It only ever sees
// store.Commit values, which are immutable, so the background writer never
// reads the live store.
//
// MODES:
//   - immediate (Delay == 0): every commit is saved before the hook returns
//   - debounced (Delay > 0): a burst of commits is saved once, Delay after
//     the last one
//   - manual: commits only mark the state dirty; Flush writes it
//
// Hold suspends automatic saving, for example while a bulk operation runs.
// The matching Release writes the accumulated changes once.
package autosave

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/sakif/snippet-organizer/internal/repository"
	"github.com/sakif/snippet-organizer/internal/store"
)

type Options struct {
	// Delay is the debounce window. Zero saves on every commit.
	Delay time.Duration
	// Manual disables automatic saving altogether.
	Manual bool
}

// Saver persists store commits.
type Saver struct {
	repo   repository.StateRepository
	opts   Options
	logger *slog.Logger

	// saveMu serializes calls into the repository; mu guards the fields below.
	saveMu sync.Mutex
	mu     sync.Mutex
	latest store.Commit
	dirty  bool
	saved  uint64
	holds  int

	wakeCh    chan struct{}
	stopCh    chan struct{}
	doneCh    chan struct{}
	closeOnce sync.Once
}

// New returns a Saver. In debounced mode it starts a background goroutine
// that Close stops.
func New(repo repository.StateRepository, opts Options, logger *slog.Logger) *Saver {
	s := &Saver{
		repo:   repo,
		opts:   opts,
		logger: logger,
		wakeCh: make(chan struct{}, 1),
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
	if opts.Delay > 0 && !opts.Manual {
		go s.run()
	} else {
		close(s.doneCh)
	}
	return s
}

// Notify records c as the newest committed state. It has the store.CommitHook
// signature.
func (s *Saver) Notify(c store.Commit) {
	s.mu.Lock()
	if c.Seq >= s.latest.Seq {
		s.latest = c
	}
	if s.latest.Seq > s.saved {
		s.dirty = true
	}
	held := s.holds > 0
	s.mu.Unlock()

	if held || s.opts.Manual {
		return
	}
	if s.opts.Delay > 0 {
		select {
		case s.wakeCh <- struct{}{}:
		default:
		}
		return
	}
	if err := s.Flush(context.Background()); err != nil {
		s.logger.Error("autosave failed, will retry on next change",
			slog.Uint64("commit", c.Seq),
			slog.String("error", err.Error()))
	}
}

// Hold suspends automatic saving until the matching Release.
func (s *Saver) Hold() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.holds++
}

// Release ends one Hold. When the last hold is released, pending changes are
// written immediately (unless the Saver is manual).
func (s *Saver) Release(ctx context.Context) error {
	s.mu.Lock()
	if s.holds > 0 {
		s.holds--
	}
	flush := s.holds == 0 && s.dirty && !s.opts.Manual
	s.mu.Unlock()

	if !flush {
		return nil
	}
	return s.Flush(ctx)
}

// Dirty reports whether a committed state is waiting to be written.
func (s *Saver) Dirty() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dirty
}

// Flush writes the newest recorded commit if it has not been saved yet.
// A failed write leaves the state dirty.
func (s *Saver) Flush(ctx context.Context) error {
	s.saveMu.Lock()
	defer s.saveMu.Unlock()

	s.mu.Lock()
	if !s.dirty {
		s.mu.Unlock()
		return nil
	}
	c := s.latest
	s.mu.Unlock()

	start := time.Now()
	if err := s.repo.Save(ctx, c.Snapshot()); err != nil {
		return err
	}

	s.mu.Lock()
	s.saved = max(s.saved, c.Seq)
	if s.latest.Seq == c.Seq {
		s.dirty = false
	}
	s.mu.Unlock()

	s.logger.Debug("state saved",
		slog.Uint64("commit", c.Seq),
		slog.Duration("took", time.Since(start)))
	return nil
}

// SaveNow records c and writes it regardless of holds or mode. It backs the
// explicit "save" action.
func (s *Saver) SaveNow(ctx context.Context, c store.Commit) error {
	s.mu.Lock()
	if c.Seq >= s.latest.Seq {
		s.latest = c
	}
	s.dirty = true
	s.mu.Unlock()

	return s.Flush(ctx)
}

// Close stops the background writer and flushes anything pending.
func (s *Saver) Close(ctx context.Context) error {
	s.closeOnce.Do(func() { close(s.stopCh) })
	<-s.doneCh
	return s.Flush(ctx)
}

// run is the debounce loop. Every wake-up restarts the timer, so a steady
// stream of commits is written once it pauses for Delay.
func (s *Saver) run() {
	defer close(s.doneCh)

	timer := time.NewTimer(s.opts.Delay)
	timer.Stop()
	var fire <-chan time.Time

	for {
		select {
		case <-s.wakeCh:
			timer.Reset(s.opts.Delay)
			fire = timer.C

		case <-fire:
			fire = nil
			s.mu.Lock()
			held := s.holds > 0
			s.mu.Unlock()
			if held {
				continue
			}
			if err := s.Flush(context.Background()); err != nil {
				s.logger.Error("autosave failed, will retry on next change",
					slog.String("error", err.Error()))
			}

		case <-s.stopCh:
			timer.Stop()
			return
		}
	}
}
