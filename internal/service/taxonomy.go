package service

import (
	"context"
	"log/slog"

	"github.com/sakif/snippet-organizer/internal/model"
	"github.com/sakif/snippet-organizer/internal/store"
)

// CategoryPatch changes a category's name, color, or both.
type CategoryPatch struct {
	Name  *string
	Color *string
}

// CategoryInfo is a category with its snippet count.
type CategoryInfo struct {
	model.Category
	Snippets int `json:"snippetCount"`
}

// TagInfo is a tag with its snippet count.
type TagInfo struct {
	model.Tag
	Snippets int `json:"snippetCount"`
}

func (s *Service) Categories() []CategoryInfo {
	s.mu.Lock()
	defer s.mu.Unlock()

	usage := s.store.CategoryUsage()
	cats := s.store.Categories()
	out := make([]CategoryInfo, len(cats))
	for i, c := range cats {
		out[i] = CategoryInfo{Category: c, Snippets: usage[c.ID]}
	}
	return out
}

func (s *Service) Category(id string) (model.Category, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store.Category(id)
}

func (s *Service) CreateCategory(ctx context.Context, name, color string) (model.Category, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, err := s.store.AddCategory(name, color)
	if err != nil {
		return model.Category{}, err
	}
	s.logger.InfoContext(ctx, "category created",
		slog.String("id", c.ID),
		slog.String("name", c.Name))
	return c, nil
}

// UpdateCategory renames and/or recolors a category in one commit.
func (s *Service) UpdateCategory(ctx context.Context, id string, patch CategoryPatch) (model.Category, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, err := s.store.UpdateCategory(id, patch.Name, patch.Color)
	if err != nil {
		return model.Category{}, err
	}
	s.logger.InfoContext(ctx, "category updated",
		slog.String("id", id),
		slog.String("name", c.Name))
	return c, nil
}

// DeleteCategory removes a category, moving its snippets as policy says.
func (s *Service) DeleteCategory(ctx context.Context, id string, policy store.ReassignPolicy) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.store.DeleteCategory(id, policy); err != nil {
		return err
	}
	s.logger.InfoContext(ctx, "category deleted",
		slog.String("id", id),
		slog.String("reassignedTo", policy.TargetID))
	return nil
}

func (s *Service) Tags() []TagInfo {
	s.mu.Lock()
	defer s.mu.Unlock()

	usage := s.store.TagUsage()
	tags := s.store.Tags()
	out := make([]TagInfo, len(tags))
	for i, t := range tags {
		out[i] = TagInfo{Tag: t, Snippets: usage[t.ID]}
	}
	return out
}

func (s *Service) Tag(id string) (model.Tag, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store.Tag(id)
}

func (s *Service) CreateTag(ctx context.Context, label string) (model.Tag, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, err := s.store.AddTag(label)
	if err != nil {
		return model.Tag{}, err
	}
	s.logger.InfoContext(ctx, "tag created",
		slog.String("id", t.ID),
		slog.String("label", t.Label))
	return t, nil
}

func (s *Service) RenameTag(ctx context.Context, id, label string) (model.Tag, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, err := s.store.RenameTag(id, label)
	if err != nil {
		return model.Tag{}, err
	}
	s.logger.InfoContext(ctx, "tag renamed",
		slog.String("id", id),
		slog.String("label", t.Label))
	return t, nil
}

// DeleteTag removes a tag and strips it from every snippet.
func (s *Service) DeleteTag(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.store.DeleteTag(id); err != nil {
		return err
	}
	s.logger.InfoContext(ctx, "tag deleted", slog.String("id", id))
	return nil
}
