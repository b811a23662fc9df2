package model

import (
	"strings"
	"time"
)

// DefaultCategoryColor is used when a category is created without a color.
const DefaultCategoryColor = "#666666"

// Category is a named, colored bucket. A snippet belongs to at most one.
type Category struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Color     string    `json:"color"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Tag is a free-form label. A snippet may carry any number of them.
type Tag struct {
	ID        string    `json:"id"`
	Label     string    `json:"label"`
	CreatedAt time.Time `json:"createdAt"`
}

// NameKey is the comparison key for category names and tag labels:
// uniqueness is case-insensitive and ignores surrounding whitespace.
func NameKey(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
