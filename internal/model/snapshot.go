package model

import (
	"fmt"

	"github.com/sakif/snippet-organizer/internal/apperror"
)

// SnapshotVersion is the current persisted-state format version.
const SnapshotVersion = 1

// Snapshot is the complete persisted state of a store. Snippets appear in store
// order; categories and tags in any order.
//
// A Snapshot handed out by the store is never mutated afterwards, so it can be
// written to disk from another goroutine while the store keeps changing.
type Snapshot struct {
	Version    int        `json:"version"`
	Categories []Category `json:"categories"`
	Tags       []Tag      `json:"tags"`
	Snippets   []Snippet  `json:"snippets"`
}

// Validate checks every structural invariant a loaded state must satisfy and
// returns an apperror.ErrCorruptState error describing the first violation.
// Nothing is repaired.
func (s Snapshot) Validate() error {
	if s.Version < 1 || s.Version > SnapshotVersion {
		return apperror.CorruptState(fmt.Sprintf("unsupported version %d", s.Version), nil)
	}

	categories := make(map[string]bool, len(s.Categories))
	names := make(map[string]string, len(s.Categories))
	for _, c := range s.Categories {
		if c.ID == "" {
			return apperror.CorruptState("category with empty id", nil)
		}
		if categories[c.ID] {
			return apperror.CorruptState("duplicate category id "+c.ID, nil)
		}
		categories[c.ID] = true

		key := NameKey(c.Name)
		if key == "" {
			return apperror.CorruptState("category "+c.ID+" has an empty name", nil)
		}
		if other, dup := names[key]; dup {
			return apperror.CorruptState(fmt.Sprintf("categories %s and %s share name %q", other, c.ID, c.Name), nil)
		}
		names[key] = c.ID
	}

	tags := make(map[string]bool, len(s.Tags))
	labels := make(map[string]string, len(s.Tags))
	for _, t := range s.Tags {
		if t.ID == "" {
			return apperror.CorruptState("tag with empty id", nil)
		}
		if tags[t.ID] {
			return apperror.CorruptState("duplicate tag id "+t.ID, nil)
		}
		tags[t.ID] = true

		key := NameKey(t.Label)
		if key == "" {
			return apperror.CorruptState("tag "+t.ID+" has an empty label", nil)
		}
		if other, dup := labels[key]; dup {
			return apperror.CorruptState(fmt.Sprintf("tags %s and %s share label %q", other, t.ID, t.Label), nil)
		}
		labels[key] = t.ID
	}

	snippets := make(map[string]bool, len(s.Snippets))
	for _, sn := range s.Snippets {
		if sn.ID == "" {
			return apperror.CorruptState("snippet with empty id", nil)
		}
		if snippets[sn.ID] {
			return apperror.CorruptState("duplicate snippet id "+sn.ID, nil)
		}
		snippets[sn.ID] = true

		if sn.CategoryID != "" && !categories[sn.CategoryID] {
			return apperror.CorruptState(fmt.Sprintf("snippet %s references missing category %s", sn.ID, sn.CategoryID), nil)
		}
		for _, tagID := range sn.TagIDs {
			if !tags[tagID] {
				return apperror.CorruptState(fmt.Sprintf("snippet %s references missing tag %s", sn.ID, tagID), nil)
			}
		}
	}

	return nil
}
