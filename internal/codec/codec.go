// Package codec converts snippets to and from exchange documents.
//
// FORMATS:
//   - PlainText: contents separated by a scissors line, nothing else
//   - Markdown: one section per snippet between comment markers
//   - HTML: a standalone page, one <article> per snippet
//   - JSON: an array of objects; also reads the legacy list format
//
// Every format round-trips snippet content byte-for-byte through its own
// Encode and Decode. Decode never touches a store: it returns Proposed
// snippets that the caller adds through the normal path, so imported data
// gets the same validation as anything else.
package codec

import (
	"bytes"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/sakif/snippet-organizer/internal/apperror"
	"github.com/sakif/snippet-organizer/internal/model"
)

// Format names an exchange document format.
type Format string

const (
	PlainText Format = "text"
	Markdown  Format = "markdown"
	HTML      Format = "html"
	JSON      Format = "json"
)

// Formats lists every supported format.
var Formats = []Format{PlainText, Markdown, HTML, JSON}

// FormatFromName accepts a format name or a common alias ("txt", "md", "htm").
func FormatFromName(name string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(strings.TrimPrefix(name, "."))) {
	case "text", "txt", "plain", "plaintext":
		return PlainText, nil
	case "markdown", "md":
		return Markdown, nil
	case "html", "htm":
		return HTML, nil
	case "json":
		return JSON, nil
	default:
		return "", apperror.ValidationFailed("format", fmt.Sprintf("unsupported format %q", name))
	}
}

// FormatFromPath picks the format from a file extension.
func FormatFromPath(path string) (Format, error) {
	return FormatFromName(filepath.Ext(path))
}

// Extension is the usual file extension for f, without the dot.
func (f Format) Extension() string {
	switch f {
	case PlainText:
		return "txt"
	case Markdown:
		return "md"
	default:
		return string(f)
	}
}

// ContentType is the MIME type for f.
func (f Format) ContentType() string {
	switch f {
	case Markdown:
		return "text/markdown; charset=utf-8"
	case HTML:
		return "text/html; charset=utf-8"
	case JSON:
		return "application/json"
	default:
		return "text/plain; charset=utf-8"
	}
}

// Meta resolves ids to display names for formats that carry them.
type Meta struct {
	Categories map[string]string // category id → name
	Tags       map[string]string // tag id → label
}

// NewMeta builds a Meta from the store's categories and tags.
func NewMeta(categories []model.Category, tags []model.Tag) Meta {
	m := Meta{
		Categories: make(map[string]string, len(categories)),
		Tags:       make(map[string]string, len(tags)),
	}
	for _, c := range categories {
		m.Categories[c.ID] = c.Name
	}
	for _, t := range tags {
		m.Tags[t.ID] = t.Label
	}
	return m
}

func (m Meta) category(s model.Snippet) string {
	if s.CategoryID == "" {
		return ""
	}
	return m.Categories[s.CategoryID]
}

func (m Meta) tags(s model.Snippet) []string {
	labels := make([]string, 0, len(s.TagIDs))
	for _, id := range s.TagIDs {
		if label, ok := m.Tags[id]; ok {
			labels = append(labels, label)
		}
	}
	return labels
}

// Proposed is a decoded snippet that has not been added to any store.
// Categories and tags are by name; the importer resolves them.
type Proposed struct {
	Label        string   `json:"label"`
	Content      string   `json:"content"`
	CategoryName string   `json:"category,omitempty"`
	TagLabels    []string `json:"tags,omitempty"`
	IsMarkdown   bool     `json:"isMarkdown"`
	IsTemplate   bool     `json:"isTemplate"`
}

// Encode writes snippets, in the given order, as one document.
func Encode(w io.Writer, snippets []model.Snippet, f Format, meta Meta) error {
	var buf bytes.Buffer
	var err error

	switch f {
	case PlainText:
		encodeText(&buf, snippets)
	case Markdown:
		err = encodeMarkdown(&buf, snippets, meta)
	case HTML:
		err = encodeHTML(&buf, snippets, meta)
	case JSON:
		err = encodeJSON(&buf, snippets, meta)
	default:
		return apperror.ValidationFailed("format", fmt.Sprintf("unsupported format %q", f))
	}
	if err != nil {
		return fmt.Errorf("codec: encoding %s: %w", f, err)
	}

	if _, err := w.Write(buf.Bytes()); err != nil {
		return apperror.IOFailure("writing export", err)
	}
	return nil
}

// Decode reads a document and returns its snippets in document order.
func Decode(r io.Reader, f Format) ([]Proposed, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, apperror.IOFailure("reading import", err)
	}

	switch f {
	case PlainText:
		return decodeText(string(data)), nil
	case Markdown:
		return decodeMarkdown(data)
	case HTML:
		return decodeHTML(data)
	case JSON:
		return decodeJSON(data)
	default:
		return nil, apperror.ValidationFailed("format", fmt.Sprintf("unsupported format %q", f))
	}
}
