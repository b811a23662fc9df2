// Package model defines the data structures used throughout the application.
// In Go, we use structs to represent our data, similar to classes in other languages,
// but without inheritance. Go favours composition over inheritance.
package model

import (
	"slices"
	"time"
)

// Snippet is one stored text item.
//
// CategoryID is empty when the snippet is uncategorized. TagIDs is a set kept
// sorted by id so two snapshots of the same state encode identically.
//
// Seq is the store's insertion counter. It orders listings and index results and
// is never written to disk: a loaded snapshot's snippet order is its Seq order.
type Snippet struct {
	ID         string    `json:"id"`
	Label      string    `json:"label"`
	Content    string    `json:"content"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
	IsTemplate bool      `json:"isTemplate"`
	IsMarkdown bool      `json:"isMarkdown"`
	Hidden     bool      `json:"hidden"`
	CategoryID string    `json:"categoryId,omitempty"`
	TagIDs     []string  `json:"tagIds"`
	Seq        uint64    `json:"-"`
}

// Clone returns a deep copy; the tag slice is not shared.
func (s Snippet) Clone() Snippet {
	s.TagIDs = slices.Clone(s.TagIDs)
	if s.TagIDs == nil {
		s.TagIDs = []string{}
	}
	return s
}

func (s Snippet) HasTag(tagID string) bool {
	_, found := slices.BinarySearch(s.TagIDs, tagID)
	return found
}

// TagSet normalizes ids into a sorted, de-duplicated slice.
func TagSet(ids []string) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id != "" {
			out = append(out, id)
		}
	}
	slices.Sort(out)
	return slices.Compact(out)
}
