package bulk

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/snippet-organizer/internal/apperror"
	"github.com/sakif/snippet-organizer/internal/codec"
	"github.com/sakif/snippet-organizer/internal/store"
)

type countingHolder struct {
	holds, releases  int
	commitsWhileHeld int
}

func (h *countingHolder) Hold() { h.holds++ }

func (h *countingHolder) Release(context.Context) error {
	h.releases++
	return nil
}

func newEngine(t *testing.T) (*Engine, *store.Store, *countingHolder) {
	t.Helper()
	st := store.New(store.Options{})
	h := &countingHolder{}
	st.OnCommit(func(store.Commit) {
		if h.holds > h.releases {
			h.commitsWhileHeld++
		}
	})
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(st, h, logger), st, h
}

func addSnippets(t *testing.T, st *store.Store, n int) []string {
	t.Helper()
	ids := make([]string, n)
	for i := range n {
		sn, err := st.AddSnippet(store.NewSnippet{Label: fmt.Sprintf("s%d", i), Content: fmt.Sprintf("content %d", i)})
		require.NoError(t, err)
		ids[i] = sn.ID
	}
	return ids
}

func TestDelete_HalfExistingSelection(t *testing.T) {
	e, st, _ := newEngine(t)
	existing := addSnippets(t, st, 4)
	missing := []string{"snp_gone1", "snp_gone2", "snp_gone3", "snp_gone4"}

	var selection []string
	for i := range existing {
		selection = append(selection, existing[i], missing[i])
	}

	res := e.Apply(context.Background(), selection, Delete{})

	assert.Equal(t, 4, res.Applied)
	assert.Equal(t, 4, res.Failed)
	assert.Equal(t, 0, res.Skipped)
	require.Len(t, res.Items, 8)
	for i, item := range res.Items {
		assert.Equal(t, selection[i], item.ID)
		if i%2 == 0 {
			assert.Equal(t, Applied, item.Status)
			assert.NoError(t, item.Err)
		} else {
			assert.Equal(t, Failed, item.Status)
			assert.True(t, errors.Is(item.Err, apperror.ErrNotFound))
		}
	}
	assert.Equal(t, 0, st.Len())
}

func TestApply_DuplicatesAreSkipped(t *testing.T) {
	e, st, _ := newEngine(t)
	ids := addSnippets(t, st, 1)

	res := e.Apply(context.Background(), []string{ids[0], ids[0], ids[0]}, ToggleTemplateFlag{})

	assert.Equal(t, 1, res.Applied)
	assert.Equal(t, 2, res.Skipped)
	sn, err := st.Snippet(ids[0])
	require.NoError(t, err)
	assert.True(t, sn.IsTemplate, "toggled exactly once")
}

func TestApply_TagOperations(t *testing.T) {
	e, st, _ := newEngine(t)
	ids := addSnippets(t, st, 3)
	tag, err := st.AddTag("urgent")
	require.NoError(t, err)

	res := e.Apply(context.Background(), ids[:2], AddTag{TagID: tag.ID})
	assert.Equal(t, 2, res.Applied)

	tagged, err := st.FindByTag(tag.ID)
	require.NoError(t, err)
	assert.Len(t, tagged, 2)

	// Removing the last references lets tag GC collect the tag.
	res = e.Apply(context.Background(), ids, RemoveTag{TagID: tag.ID})
	assert.Equal(t, 3, res.Applied)
	_, err = st.Tag(tag.ID)
	assert.True(t, errors.Is(err, apperror.ErrNotFound))
}

func TestApply_MissingTagFailsEachItem(t *testing.T) {
	e, st, _ := newEngine(t)
	ids := addSnippets(t, st, 2)

	res := e.Apply(context.Background(), ids, AddTag{TagID: "tag_missing"})

	assert.Equal(t, 2, res.Failed)
	for _, item := range res.Items {
		assert.True(t, errors.Is(item.Err, apperror.ErrReference))
	}
}

func TestApply_SetCategoryAndFlags(t *testing.T) {
	e, st, _ := newEngine(t)
	ids := addSnippets(t, st, 2)
	cat, err := st.AddCategory("Work", "")
	require.NoError(t, err)

	ctx := context.Background()
	assert.Equal(t, 2, e.Apply(ctx, ids, SetCategory{CategoryID: cat.ID}).Applied)
	assert.Equal(t, 2, e.Apply(ctx, ids, SetMarkdownFlag{Value: true}).Applied)
	assert.Equal(t, 2, e.Apply(ctx, ids, SetTemplateFlag{Value: true}).Applied)
	assert.Equal(t, 1, e.Apply(ctx, ids[:1], ToggleMarkdownFlag{}).Applied)

	first, err := st.Snippet(ids[0])
	require.NoError(t, err)
	assert.Equal(t, cat.ID, first.CategoryID)
	assert.False(t, first.IsMarkdown)
	assert.True(t, first.IsTemplate)

	second, err := st.Snippet(ids[1])
	require.NoError(t, err)
	assert.True(t, second.IsMarkdown)

	res := e.Apply(ctx, ids, SetCategory{CategoryID: ""})
	assert.Equal(t, 2, res.Applied)
	inCat, err := st.FindByCategory(cat.ID)
	require.NoError(t, err)
	assert.Empty(t, inCat)
}

func TestExport_WritesSelectionInOrder(t *testing.T) {
	e, st, _ := newEngine(t)
	ids := addSnippets(t, st, 3)

	var buf bytes.Buffer
	selection := []string{ids[2], "snp_missing", ids[0]}
	res := e.Apply(context.Background(), selection, Export{Format: codec.PlainText, Destination: &buf})

	assert.Equal(t, 2, res.Applied)
	assert.Equal(t, 1, res.Failed)
	assert.Equal(t, "content 2\n---8<---\ncontent 0\n---8<---\n", buf.String())
}

type brokenWriter struct{}

func (brokenWriter) Write([]byte) (int, error) { return 0, errors.New("disk full") }

func TestExport_WriteFailureFailsExportableItems(t *testing.T) {
	e, st, _ := newEngine(t)
	ids := addSnippets(t, st, 2)

	res := e.Apply(context.Background(), append(ids, "snp_missing", ids[0]), Export{Format: codec.HTML, Destination: brokenWriter{}})

	assert.Equal(t, 0, res.Applied)
	assert.Equal(t, 3, res.Failed)
	assert.Equal(t, 1, res.Skipped)
	assert.True(t, errors.Is(res.Items[0].Err, apperror.ErrIO))
	assert.True(t, errors.Is(res.Items[1].Err, apperror.ErrIO))
	assert.True(t, errors.Is(res.Items[2].Err, apperror.ErrNotFound))
}

func TestApply_HoldsAutosaveForWholeBatch(t *testing.T) {
	e, st, h := newEngine(t)
	ids := addSnippets(t, st, 5)

	e.Apply(context.Background(), ids, Delete{})

	assert.Equal(t, 1, h.holds)
	assert.Equal(t, 1, h.releases)
	assert.Equal(t, 5, h.commitsWhileHeld)
}
