// Package jsonfile stores the organizer's state as a single JSON document.
//
// ATOMIC REPLACE:
// Save never writes into the live file. atomicwriter writes a temporary file
// in the same directory, syncs it and renames it over the target, so a crash
// mid-save leaves the previous document intact.
package jsonfile

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/moby/sys/atomicwriter"

	"github.com/sakif/snippet-organizer/internal/apperror"
	"github.com/sakif/snippet-organizer/internal/model"
	"github.com/sakif/snippet-organizer/internal/repository"
)

var _ repository.StateRepository = (*File)(nil)

// File is a StateRepository backed by one JSON file.
type File struct {
	path string
}

func New(path string) *File {
	return &File{path: path}
}

func (f *File) Path() string { return f.path }

// Load reads and validates the saved document. A missing file is
// repository.ErrNoState.
func (f *File) Load(ctx context.Context) (model.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return model.Snapshot{}, err
	}

	data, err := os.ReadFile(f.path)
	if errors.Is(err, fs.ErrNotExist) {
		return model.Snapshot{}, repository.ErrNoState
	}
	if err != nil {
		return model.Snapshot{}, apperror.IOFailure("reading "+f.path, err)
	}

	var snap model.Snapshot
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&snap); err != nil {
		return model.Snapshot{}, apperror.CorruptState("decoding "+filepath.Base(f.path), err)
	}
	if err := snap.Validate(); err != nil {
		return model.Snapshot{}, err
	}
	return snap, nil
}

// Save replaces the file with snap. The parent directory is created if needed.
func (f *File) Save(ctx context.Context, snap model.Snapshot) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return apperror.IOFailure("encoding state", err)
	}
	data = append(data, '\n')

	if err := os.MkdirAll(filepath.Dir(f.path), 0o755); err != nil {
		return apperror.IOFailure("creating data directory", err)
	}
	if err := atomicwriter.WriteFile(f.path, data, 0o600); err != nil {
		return apperror.IOFailure("writing "+f.path, err)
	}
	return nil
}
