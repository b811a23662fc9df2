// Package bulk applies one operation to a selection of snippets.
//
// Each item goes through the same single-snippet store call a normal edit
// would use, so every item is its own transaction: a failure is recorded
// against that item and the batch carries on. There is no rollback of items
// that already succeeded.
package bulk

import (
	"context"
	"log/slog"

	"github.com/sakif/snippet-organizer/internal/apperror"
	"github.com/sakif/snippet-organizer/internal/codec"
	"github.com/sakif/snippet-organizer/internal/model"
	"github.com/sakif/snippet-organizer/internal/store"
)

// Status is the outcome for one selected id.
type Status string

const (
	Applied Status = "applied"
	Failed  Status = "failed"
	// Skipped marks a repeated id; the first occurrence carries the outcome.
	Skipped Status = "skipped"
)

type ItemResult struct {
	ID     string
	Status Status
	Err    error
}

// Result lists one entry per selected id, in selection order.
type Result struct {
	Items   []ItemResult
	Applied int
	Failed  int
	Skipped int
}

func (r *Result) add(item ItemResult) {
	r.Items = append(r.Items, item)
	switch item.Status {
	case Applied:
		r.Applied++
	case Failed:
		r.Failed++
	case Skipped:
		r.Skipped++
	}
}

// Holder suspends autosave while a batch runs. *autosave.Saver implements it.
type Holder interface {
	Hold()
	Release(ctx context.Context) error
}

// Engine runs bulk operations against a store.
type Engine struct {
	store  *store.Store
	saver  Holder
	logger *slog.Logger
}

// New returns an Engine. saver may be nil.
func New(st *store.Store, saver Holder, logger *slog.Logger) *Engine {
	return &Engine{store: st, saver: saver, logger: logger}
}

// Apply runs op on every id. Once started the batch always runs to the end;
// ctx is only used for logging and for the final autosave flush.
func (e *Engine) Apply(ctx context.Context, ids []string, op Operation) Result {
	if e.saver != nil {
		e.saver.Hold()
		defer func() {
			if err := e.saver.Release(ctx); err != nil {
				e.logger.ErrorContext(ctx, "saving after bulk operation failed",
					slog.String("op", op.String()),
					slog.String("error", err.Error()))
			}
		}()
	}

	var res Result
	if exp, ok := op.(Export); ok {
		res = e.export(ids, exp)
	} else {
		seen := make(map[string]bool, len(ids))
		for _, id := range ids {
			if seen[id] {
				res.add(ItemResult{ID: id, Status: Skipped})
				continue
			}
			seen[id] = true

			if err := e.applyOne(id, op); err != nil {
				res.add(ItemResult{ID: id, Status: Failed, Err: err})
				continue
			}
			res.add(ItemResult{ID: id, Status: Applied})
		}
	}

	e.logger.InfoContext(ctx, "bulk operation finished",
		slog.String("op", op.String()),
		slog.Int("selected", len(ids)),
		slog.Int("applied", res.Applied),
		slog.Int("failed", res.Failed),
		slog.Int("skipped", res.Skipped))
	return res
}

func (e *Engine) applyOne(id string, op Operation) error {
	switch op := op.(type) {
	case Delete:
		return e.store.DeleteSnippet(id)
	case SetCategory:
		return e.patch(id, store.SnippetPatch{CategoryID: &op.CategoryID})
	case AddTag:
		return e.patch(id, store.SnippetPatch{AddTagIDs: []string{op.TagID}})
	case RemoveTag:
		return e.patch(id, store.SnippetPatch{RemoveTagIDs: []string{op.TagID}})
	case SetTemplateFlag:
		return e.patch(id, store.SnippetPatch{IsTemplate: &op.Value})
	case SetMarkdownFlag:
		return e.patch(id, store.SnippetPatch{IsMarkdown: &op.Value})
	case ToggleTemplateFlag:
		sn, err := e.store.Snippet(id)
		if err != nil {
			return err
		}
		flipped := !sn.IsTemplate
		return e.patch(id, store.SnippetPatch{IsTemplate: &flipped})
	case ToggleMarkdownFlag:
		sn, err := e.store.Snippet(id)
		if err != nil {
			return err
		}
		flipped := !sn.IsMarkdown
		return e.patch(id, store.SnippetPatch{IsMarkdown: &flipped})
	default:
		return apperror.ValidationFailed("op", "unsupported bulk operation "+op.String())
	}
}

func (e *Engine) patch(id string, p store.SnippetPatch) error {
	_, err := e.store.UpdateSnippet(id, p)
	return err
}

// export encodes every existing selected snippet into one document. If the
// document cannot be written, every item that would have been in it fails
// with the write error.
func (e *Engine) export(ids []string, op Export) Result {
	var (
		res      Result
		items    = make([]ItemResult, 0, len(ids))
		snippets []model.Snippet
		seen     = make(map[string]bool, len(ids))
	)

	for _, id := range ids {
		if seen[id] {
			items = append(items, ItemResult{ID: id, Status: Skipped})
			continue
		}
		seen[id] = true

		sn, err := e.store.Snippet(id)
		if err != nil {
			items = append(items, ItemResult{ID: id, Status: Failed, Err: err})
			continue
		}
		snippets = append(snippets, sn)
		items = append(items, ItemResult{ID: id, Status: Applied})
	}

	var writeErr error
	if op.Destination == nil {
		writeErr = apperror.ValidationFailed("destination", "export needs a destination")
	} else {
		meta := codec.NewMeta(e.store.Categories(), e.store.Tags())
		writeErr = codec.Encode(op.Destination, snippets, op.Format, meta)
	}

	for _, item := range items {
		if writeErr != nil && item.Status == Applied {
			item = ItemResult{ID: item.ID, Status: Failed, Err: writeErr}
		}
		res.add(item)
	}
	return res
}
