package store

import (
	"fmt"
	"slices"
	"strings"
	"unicode/utf8"

	"github.com/sakif/snippet-organizer/internal/apperror"
	"github.com/sakif/snippet-organizer/internal/idgen"
	"github.com/sakif/snippet-organizer/internal/model"
)

const MaxLabelLength = 200

// NewSnippet holds the fields a caller supplies when adding a snippet.
type NewSnippet struct {
	Label      string
	Content    string
	CategoryID string
	TagIDs     []string
	IsTemplate bool
	IsMarkdown bool
	Hidden     bool
}

// SnippetPatch is a partial update. Nil fields are left unchanged.
//
// CategoryID set to a pointer to "" clears the category. TagIDs replaces the
// whole tag set; AddTagIDs and RemoveTagIDs are applied after it.
type SnippetPatch struct {
	Label        *string
	Content      *string
	CategoryID   *string
	TagIDs       *[]string
	AddTagIDs    []string
	RemoveTagIDs []string
	IsTemplate   *bool
	IsMarkdown   *bool
	Hidden       *bool
}

// AddSnippet stores a new snippet. A missing category or tag fails with
// apperror.ErrReference and nothing is added.
func (s *Store) AddSnippet(in NewSnippet) (model.Snippet, error) {
	label, err := cleanLabel(in.Label)
	if err != nil {
		return model.Snippet{}, err
	}
	if err := checkContent(in.Content); err != nil {
		return model.Snippet{}, err
	}

	var created model.Snippet
	err = s.update(func(tx *transaction) error {
		tx.state.nextSeq++
		created = model.Snippet{
			ID:         tx.store.ids.Allocate(idgen.KindSnippet),
			Label:      label,
			Content:    in.Content,
			CreatedAt:  tx.now,
			UpdatedAt:  tx.now,
			IsTemplate: in.IsTemplate,
			IsMarkdown: in.IsMarkdown,
			Hidden:     in.Hidden,
			CategoryID: in.CategoryID,
			TagIDs:     model.TagSet(in.TagIDs),
			Seq:        tx.state.nextSeq,
		}
		tx.putSnippet(created)
		return nil
	})
	if err != nil {
		return model.Snippet{}, err
	}
	return created.Clone(), nil
}

// UpdateSnippet applies patch to the snippet atomically: either every field
// changes or none does.
func (s *Store) UpdateSnippet(id string, patch SnippetPatch) (model.Snippet, error) {
	var updated model.Snippet
	err := s.update(func(tx *transaction) error {
		cur, ok := tx.state.snippets[id]
		if !ok {
			return apperror.NotFound("snippet", id)
		}
		next := cur.Clone()

		if patch.Label != nil {
			label, err := cleanLabel(*patch.Label)
			if err != nil {
				return err
			}
			next.Label = label
		}
		if patch.Content != nil {
			if err := checkContent(*patch.Content); err != nil {
				return err
			}
			next.Content = *patch.Content
		}
		if patch.CategoryID != nil {
			next.CategoryID = *patch.CategoryID
		}
		if patch.TagIDs != nil {
			next.TagIDs = model.TagSet(*patch.TagIDs)
		}
		if len(patch.AddTagIDs) > 0 {
			next.TagIDs = model.TagSet(append(next.TagIDs, patch.AddTagIDs...))
		}
		if len(patch.RemoveTagIDs) > 0 {
			next.TagIDs = slices.DeleteFunc(next.TagIDs, func(tagID string) bool {
				return slices.Contains(patch.RemoveTagIDs, tagID)
			})
		}
		if patch.IsTemplate != nil {
			next.IsTemplate = *patch.IsTemplate
		}
		if patch.IsMarkdown != nil {
			next.IsMarkdown = *patch.IsMarkdown
		}
		if patch.Hidden != nil {
			next.Hidden = *patch.Hidden
		}

		for _, tagID := range cur.TagIDs {
			if !next.HasTag(tagID) {
				tx.gcCandidates[tagID] = struct{}{}
			}
		}

		next.UpdatedAt = tx.now
		tx.putSnippet(next)
		updated = next
		return nil
	})
	if err != nil {
		return model.Snippet{}, err
	}
	return updated.Clone(), nil
}

// DeleteSnippet removes a snippet. Tags left without any snippet are
// collected unless the store keeps unused tags.
func (s *Store) DeleteSnippet(id string) error {
	return s.update(func(tx *transaction) error {
		if _, ok := tx.state.snippets[id]; !ok {
			return apperror.NotFound("snippet", id)
		}
		tx.removeSnippet(id)
		return nil
	})
}

// CreateFromTemplate adds a new, non-template snippet that copies the
// template's label, content, markdown flag, category and tags.
func (s *Store) CreateFromTemplate(templateID string) (model.Snippet, error) {
	var created model.Snippet
	err := s.update(func(tx *transaction) error {
		tmpl, ok := tx.state.snippets[templateID]
		if !ok {
			return apperror.NotFound("snippet", templateID)
		}
		if !tmpl.IsTemplate {
			return apperror.ValidationFailed("id", fmt.Sprintf("snippet %s is not a template", templateID))
		}

		tx.state.nextSeq++
		created = tmpl.Clone()
		created.ID = tx.store.ids.Allocate(idgen.KindSnippet)
		created.IsTemplate = false
		created.Hidden = false
		created.CreatedAt = tx.now
		created.UpdatedAt = tx.now
		created.Seq = tx.state.nextSeq
		tx.putSnippet(created)
		return nil
	})
	if err != nil {
		return model.Snippet{}, err
	}
	return created.Clone(), nil
}

// Snippet returns one snippet by id.
func (s *Store) Snippet(id string) (model.Snippet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sn, ok := s.state.snippets[id]
	if !ok {
		return model.Snippet{}, apperror.NotFound("snippet", id)
	}
	return sn.Clone(), nil
}

// Snippets returns every snippet in store order.
func (s *Store) Snippets() []model.Snippet {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.orderedSnippets(func(model.Snippet) bool { return true })
}

// Templates returns the snippets flagged as templates, in store order.
func (s *Store) Templates() []model.Snippet {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.orderedSnippets(func(sn model.Snippet) bool { return sn.IsTemplate })
}

// Len reports the number of snippets.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.state.snippets)
}

// FindByCategory returns the category's snippets in store order.
func (s *Store) FindByCategory(categoryID string) ([]model.Snippet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids, err := s.idx.FindByCategory(categoryID)
	if err != nil {
		return nil, err
	}
	return s.resolve(ids), nil
}

// FindByTag returns the snippets carrying the tag in store order.
func (s *Store) FindByTag(tagID string) ([]model.Snippet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids, err := s.idx.FindByTag(tagID)
	if err != nil {
		return nil, err
	}
	return s.resolve(ids), nil
}

// Search returns the snippets whose label or content contains query,
// ignoring case.
func (s *Store) Search(query string) []model.Snippet {
	// Search refreshes the index's token list, so it takes the write lock.
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.resolve(s.idx.Search(query))
}

func (s *Store) resolve(ids []string) []model.Snippet {
	out := make([]model.Snippet, 0, len(ids))
	for _, id := range ids {
		out = append(out, s.state.snippets[id].Clone())
	}
	return out
}

func cleanLabel(label string) (string, error) {
	label = strings.TrimSpace(label)
	if !utf8.ValidString(label) {
		return "", apperror.ValidationFailed("label", "label must be valid UTF-8")
	}
	if len(label) > MaxLabelLength {
		return "", apperror.ValidationFailed("label",
			fmt.Sprintf("label must be %d characters or less", MaxLabelLength))
	}
	return label, nil
}

// checkContent rejects content that is not valid UTF-8; the JSON state file
// could not store it unchanged.
func checkContent(content string) error {
	if !utf8.ValidString(content) {
		return apperror.ValidationFailed("content", "content must be valid UTF-8")
	}
	return nil
}
