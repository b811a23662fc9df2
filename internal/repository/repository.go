// Package repository defines how the organizer's state reaches durable
// storage. The store keeps everything in memory; a StateRepository only ever
// sees whole snapshots, so a backend never has to know about partial updates.
package repository

import (
	"context"
	"errors"

	"github.com/sakif/snippet-organizer/internal/model"
)

// ErrNoState is returned by Load when nothing has been saved yet. Callers
// start from an empty state in that case; it is not an IO failure.
var ErrNoState = errors.New("no saved state")

// StateRepository persists complete snapshots.
//
// Save must replace the previous state atomically: after a crash either the
// old snapshot or the new one is readable, never a mix. Load validates what
// it reads and reports apperror.ErrCorruptState for anything that violates
// the snapshot invariants.
type StateRepository interface {
	Load(ctx context.Context) (model.Snapshot, error)
	Save(ctx context.Context, snap model.Snapshot) error
}
