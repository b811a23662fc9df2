package codec

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/sakif/snippet-organizer/internal/apperror"
	"github.com/sakif/snippet-organizer/internal/model"
)

// jsonSnippet is one element of a JSON export. Keys are snake_case to stay
// readable by older tools that wrote {"text", "label", "tags", ...} lists;
// "text" is accepted on import as a synonym for "content".
type jsonSnippet struct {
	Label      string   `json:"label"`
	Content    *string  `json:"content,omitempty"`
	Text       *string  `json:"text,omitempty"`
	Category   string   `json:"category,omitempty"`
	Tags       []string `json:"tags,omitempty"`
	IsMarkdown bool     `json:"is_markdown"`
	IsTemplate bool     `json:"is_template"`
}

func encodeJSON(buf *bytes.Buffer, snippets []model.Snippet, meta Meta) error {
	out := make([]jsonSnippet, len(snippets))
	for i, s := range snippets {
		content := s.Content
		out[i] = jsonSnippet{
			Label:      s.Label,
			Content:    &content,
			Category:   meta.category(s),
			Tags:       meta.tags(s),
			IsMarkdown: s.IsMarkdown,
			IsTemplate: s.IsTemplate,
		}
	}

	enc := json.NewEncoder(buf)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

// decodeJSON accepts an array whose elements are either snippet objects or
// bare strings (the oldest save format, content only).
func decodeJSON(doc []byte) ([]Proposed, error) {
	var items []json.RawMessage
	if err := json.Unmarshal(doc, &items); err != nil {
		return nil, apperror.ValidationFailed("document", "expected a JSON array: "+err.Error())
	}

	out := make([]Proposed, 0, len(items))
	for i, raw := range items {
		raw = bytes.TrimSpace(raw)
		if len(raw) > 0 && raw[0] == '"' {
			var content string
			if err := json.Unmarshal(raw, &content); err != nil {
				return nil, apperror.ValidationFailed("document", fmt.Sprintf("item %d: %v", i, err))
			}
			out = append(out, Proposed{Content: content})
			continue
		}

		var item jsonSnippet
		if err := json.Unmarshal(raw, &item); err != nil {
			return nil, apperror.ValidationFailed("document", fmt.Sprintf("item %d: %v", i, err))
		}
		p := Proposed{
			Label:        item.Label,
			CategoryName: item.Category,
			TagLabels:    item.Tags,
			IsMarkdown:   item.IsMarkdown,
			IsTemplate:   item.IsTemplate,
		}
		switch {
		case item.Content != nil:
			p.Content = *item.Content
		case item.Text != nil:
			p.Content = *item.Text
		}
		out = append(out, p)
	}
	return out, nil
}
