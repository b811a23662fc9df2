package service

import (
	"context"
	"errors"
	"io"
	"log/slog"

	"github.com/sakif/snippet-organizer/internal/apperror"
	"github.com/sakif/snippet-organizer/internal/codec"
	"github.com/sakif/snippet-organizer/internal/model"
	"github.com/sakif/snippet-organizer/internal/store"
)

// ImportItem is the outcome for one decoded snippet.
type ImportItem struct {
	Index int    // position in the document
	Label string // as proposed
	ID    string // set when added
	Err   error
}

// ImportReport summarizes an import. Items that failed did not change the
// store; the rest were added in document order.
type ImportReport struct {
	Items  []ImportItem
	Added  int
	Failed int
}

// Export writes every snippet, hidden ones included, as one document.
func (s *Service) Export(ctx context.Context, w io.Writer, f codec.Format) error {
	s.mu.Lock()
	snippets := s.store.Snippets()
	meta := codec.NewMeta(s.store.Categories(), s.store.Tags())
	s.mu.Unlock()

	if err := codec.Encode(w, snippets, f, meta); err != nil {
		s.logger.ErrorContext(ctx, "export failed",
			slog.String("format", string(f)),
			slog.String("error", err.Error()))
		return err
	}
	s.logger.InfoContext(ctx, "exported snippets",
		slog.String("format", string(f)),
		slog.Int("count", len(snippets)))
	return nil
}

// Import decodes r and adds every proposed snippet. A document that cannot
// be decoded at all is an error and nothing is added; otherwise per-item
// failures are collected in the report.
//
// Category names that do not exist yet are created with the default color;
// tag labels go through EnsureTag.
func (s *Service) Import(ctx context.Context, r io.Reader, f codec.Format) (ImportReport, error) {
	proposed, err := codec.Decode(r, f)
	if err != nil {
		return ImportReport{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.saver.Hold()
	report := s.importProposed(proposed)
	if err := s.saver.Release(ctx); err != nil {
		s.logger.ErrorContext(ctx, "saving after import failed", slog.String("error", err.Error()))
	}

	s.logger.InfoContext(ctx, "import finished",
		slog.String("format", string(f)),
		slog.Int("added", report.Added),
		slog.Int("failed", report.Failed))
	return report, nil
}

// importProposed adds each proposal. Caller holds s.mu (or owns s alone).
func (s *Service) importProposed(proposed []codec.Proposed) ImportReport {
	var report ImportReport
	for i, p := range proposed {
		item := ImportItem{Index: i, Label: p.Label}
		sn, err := s.addProposed(p)
		if err != nil {
			item.Err = err
			report.Failed++
		} else {
			item.ID = sn.ID
			report.Added++
		}
		report.Items = append(report.Items, item)
	}
	return report
}

func (s *Service) addProposed(p codec.Proposed) (model.Snippet, error) {
	categoryID, createdCategory, err := s.ensureCategory(p.CategoryName)
	if err != nil {
		return model.Snippet{}, err
	}

	tags, err := s.ensureTags(p.TagLabels)
	if err != nil {
		s.dropCategory(createdCategory)
		return model.Snippet{}, err
	}

	sn, err := s.store.AddSnippet(store.NewSnippet{
		Label:      p.Label,
		Content:    p.Content,
		CategoryID: categoryID,
		TagIDs:     tags.all,
		IsTemplate: p.IsTemplate,
		IsMarkdown: p.IsMarkdown,
	})
	if err != nil {
		s.dropTags(tags.fresh)
		s.dropCategory(createdCategory)
		return model.Snippet{}, err
	}
	return sn, nil
}

// ensureCategory resolves a category name, creating the category when it
// does not exist. created is the new id, or "" if nothing was created.
func (s *Service) ensureCategory(name string) (id, created string, err error) {
	if name == "" {
		return "", "", nil
	}
	c, err := s.store.CategoryByName(name)
	if err == nil {
		return c.ID, "", nil
	}
	if !errors.Is(err, apperror.ErrNotFound) {
		return "", "", err
	}
	c, err = s.store.AddCategory(name, "")
	if err != nil {
		return "", "", err
	}
	return c.ID, c.ID, nil
}

func (s *Service) dropCategory(id string) {
	if id == "" {
		return
	}
	if err := s.store.DeleteCategory(id, store.Uncategorize()); err != nil {
		s.logger.Warn("failed to remove unused category",
			slog.String("id", id),
			slog.String("error", err.Error()))
	}
}
