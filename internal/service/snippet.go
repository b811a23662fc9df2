package service

import (
	"context"
	"log/slog"
	"slices"

	"github.com/sakif/snippet-organizer/internal/model"
	"github.com/sakif/snippet-organizer/internal/store"
)

// ListOptions narrows Snippets.
type ListOptions struct {
	IncludeHidden bool
}

// CreateSnippet adds a snippet. tagLabels are resolved with EnsureTag and
// merged into in.TagIDs; tags created here are removed again if the snippet
// itself is rejected.
func (s *Service) CreateSnippet(ctx context.Context, in store.NewSnippet, tagLabels []string) (model.Snippet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	created, err := s.ensureTags(tagLabels)
	if err != nil {
		return model.Snippet{}, err
	}
	in.TagIDs = slices.Concat(in.TagIDs, created.all)

	sn, err := s.store.AddSnippet(in)
	if err != nil {
		s.dropTags(created.fresh)
		s.logger.WarnContext(ctx, "failed to create snippet",
			slog.String("label", in.Label),
			slog.String("error", err.Error()))
		return model.Snippet{}, err
	}

	s.logger.InfoContext(ctx, "snippet created",
		slog.String("id", sn.ID),
		slog.String("label", sn.Label))
	return sn, nil
}

// UpdateSnippet applies a partial update.
func (s *Service) UpdateSnippet(ctx context.Context, id string, patch store.SnippetPatch) (model.Snippet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sn, err := s.store.UpdateSnippet(id, patch)
	if err != nil {
		return model.Snippet{}, err
	}
	s.logger.InfoContext(ctx, "snippet updated", slog.String("id", id))
	return sn, nil
}

func (s *Service) DeleteSnippet(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.store.DeleteSnippet(id); err != nil {
		return err
	}
	s.logger.InfoContext(ctx, "snippet deleted", slog.String("id", id))
	return nil
}

// Instantiate creates a regular snippet from a template.
func (s *Service) Instantiate(ctx context.Context, templateID string) (model.Snippet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sn, err := s.store.CreateFromTemplate(templateID)
	if err != nil {
		return model.Snippet{}, err
	}
	s.logger.InfoContext(ctx, "snippet created from template",
		slog.String("id", sn.ID),
		slog.String("template", templateID))
	return sn, nil
}

func (s *Service) Snippet(id string) (model.Snippet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store.Snippet(id)
}

// Snippets lists snippets in store order. Hidden snippets are left out unless
// asked for.
func (s *Service) Snippets(opts ListOptions) []model.Snippet {
	s.mu.Lock()
	defer s.mu.Unlock()
	return visible(s.store.Snippets(), opts.IncludeHidden)
}

func (s *Service) Templates() []model.Snippet {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store.Templates()
}

func (s *Service) Search(query string, opts ListOptions) []model.Snippet {
	s.mu.Lock()
	defer s.mu.Unlock()
	return visible(s.store.Search(query), opts.IncludeHidden)
}

func (s *Service) SnippetsInCategory(categoryID string) ([]model.Snippet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store.FindByCategory(categoryID)
}

func (s *Service) SnippetsWithTag(tagID string) ([]model.Snippet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store.FindByTag(tagID)
}

func visible(snippets []model.Snippet, includeHidden bool) []model.Snippet {
	if includeHidden {
		return snippets
	}
	out := snippets[:0]
	for _, sn := range snippets {
		if !sn.Hidden {
			out = append(out, sn)
		}
	}
	return out
}

type ensuredTags struct {
	all   []string // ids for every label, in label order
	fresh []string // ids created by this call
}

// ensureTags resolves labels to tag ids, creating missing tags. On error,
// tags created so far are removed. Caller holds s.mu.
func (s *Service) ensureTags(labels []string) (ensuredTags, error) {
	var out ensuredTags
	for _, label := range labels {
		tag, created, err := s.store.EnsureTag(label)
		if err != nil {
			s.dropTags(out.fresh)
			return ensuredTags{}, err
		}
		out.all = append(out.all, tag.ID)
		if created {
			out.fresh = append(out.fresh, tag.ID)
		}
	}
	return out, nil
}

func (s *Service) dropTags(ids []string) {
	for _, id := range ids {
		if err := s.store.DeleteTag(id); err != nil {
			s.logger.Warn("failed to remove unused tag",
				slog.String("id", id),
				slog.String("error", err.Error()))
		}
	}
}
