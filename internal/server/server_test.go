package server_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/snippet-organizer/internal/auth"
	"github.com/sakif/snippet-organizer/internal/model"
	"github.com/sakif/snippet-organizer/internal/repository/jsonfile"
	"github.com/sakif/snippet-organizer/internal/server"
	"github.com/sakif/snippet-organizer/internal/service"
)

// =========================================================================
// HARNESS
// =========================================================================
//
// Each test gets a real Service over a JSON file in a temp dir, autosaving
// after every change, behind the full router.

type harness struct {
	h    http.Handler
	svc  *service.Service
	path string
}

func newHarness(t *testing.T, tokens *auth.TokenService) *harness {
	t.Helper()
	path := filepath.Join(t.TempDir(), "snippets.json")
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	svc, err := service.Open(context.Background(), jsonfile.New(path), service.Options{}, logger)
	require.NoError(t, err)
	t.Cleanup(func() { svc.Close(context.Background()) })

	srv := server.New(server.Config{Port: 0, StatePath: path, Tokens: tokens}, svc, logger)
	return &harness{h: srv.Handler(), svc: svc, path: path}
}

func (hs *harness) do(t *testing.T, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		r = strings.NewReader(b)
	default:
		data, err := json.Marshal(b)
		require.NoError(t, err)
		r = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, target, r)
	rec := httptest.NewRecorder()
	hs.h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Field   string `json:"field"`
}

type bulkBody struct {
	Items []struct {
		ID     string `json:"id"`
		Status string `json:"status"`
		Error  string `json:"error"`
	} `json:"items"`
	Applied  int     `json:"applied"`
	Failed   int     `json:"failed"`
	Skipped  int     `json:"skipped"`
	Document *string `json:"document"`
}

// =========================================================================
// SNIPPETS
// =========================================================================

func TestSnippets_CRUD(t *testing.T) {
	hs := newHarness(t, nil)

	rec := hs.do(t, http.MethodPost, "/api/snippets", map[string]any{
		"label":   "Deploy",
		"content": "kubectl rollout restart",
		"tags":    []string{"ops", "urgent"},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decode[model.Snippet](t, rec)
	assert.NotEmpty(t, created.ID)
	assert.Len(t, created.TagIDs, 2)

	rec = hs.do(t, http.MethodGet, "/api/snippets/"+created.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "kubectl rollout restart", decode[model.Snippet](t, rec).Content)

	rec = hs.do(t, http.MethodPatch, "/api/snippets/"+created.ID, map[string]any{
		"label":      "Deploy prod",
		"isMarkdown": true,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	updated := decode[model.Snippet](t, rec)
	assert.Equal(t, "Deploy prod", updated.Label)
	assert.True(t, updated.IsMarkdown)
	assert.Equal(t, created.Content, updated.Content)

	rec = hs.do(t, http.MethodGet, "/api/snippets", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]model.Snippet](t, rec), 1)

	rec = hs.do(t, http.MethodDelete, "/api/snippets/"+created.ID, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = hs.do(t, http.MethodGet, "/api/snippets/"+created.ID, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "not_found", decode[errorBody](t, rec).Error)

	// Tag GC removed both tags with their last snippet.
	rec = hs.do(t, http.MethodGet, "/api/tags", nil)
	assert.JSONEq(t, `[]`, rec.Body.String())
}

func TestSnippets_ErrorMapping(t *testing.T) {
	hs := newHarness(t, nil)

	tests := []struct {
		name   string
		method string
		target string
		body   any
		status int
		kind   string
		field  string
	}{
		{
			name: "unknown field", method: http.MethodPost, target: "/api/snippets",
			body:   `{"content":"x","colour":"red"}`,
			status: http.StatusBadRequest, kind: "validation_error", field: "body",
		},
		{
			name: "two objects", method: http.MethodPost, target: "/api/snippets",
			body:   `{"content":"x"}{"content":"y"}`,
			status: http.StatusBadRequest, kind: "validation_error", field: "body",
		},
		{
			name: "missing category", method: http.MethodPost, target: "/api/snippets",
			body:   map[string]any{"content": "x", "categoryId": "cat_missing"},
			status: http.StatusUnprocessableEntity, kind: "reference_error",
		},
		{
			name: "missing snippet", method: http.MethodPatch, target: "/api/snippets/snp_missing",
			body:   map[string]any{"label": "x"},
			status: http.StatusNotFound, kind: "not_found",
		},
		{
			name: "instantiate missing", method: http.MethodPost, target: "/api/snippets/snp_missing/instantiate",
			status: http.StatusNotFound, kind: "not_found",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := hs.do(t, tt.method, tt.target, tt.body)
			require.Equal(t, tt.status, rec.Code, rec.Body.String())
			body := decode[errorBody](t, rec)
			assert.Equal(t, tt.kind, body.Error)
			assert.NotEmpty(t, body.Message)
			if tt.field != "" {
				assert.Equal(t, tt.field, body.Field)
			}
		})
	}
}

func TestSnippets_SearchAndHidden(t *testing.T) {
	hs := newHarness(t, nil)

	hs.do(t, http.MethodPost, "/api/snippets", map[string]any{"content": "deploy to production"})
	hs.do(t, http.MethodPost, "/api/snippets", map[string]any{"content": "deploy key", "hidden": true})
	hs.do(t, http.MethodPost, "/api/snippets", map[string]any{"content": "lunch order"})

	rec := hs.do(t, http.MethodGet, "/api/snippets/search?q=DEP", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]model.Snippet](t, rec), 1)

	rec = hs.do(t, http.MethodGet, "/api/snippets/search?q=dep&hidden=true", nil)
	assert.Len(t, decode[[]model.Snippet](t, rec), 2)

	rec = hs.do(t, http.MethodGet, "/api/snippets/search?q=nothing", nil)
	assert.JSONEq(t, `[]`, rec.Body.String())

	rec = hs.do(t, http.MethodGet, "/api/snippets", nil)
	assert.Len(t, decode[[]model.Snippet](t, rec), 2)
}

func TestSnippets_Instantiate(t *testing.T) {
	hs := newHarness(t, nil)

	rec := hs.do(t, http.MethodPost, "/api/snippets", map[string]any{
		"label": "Standup", "content": "Yesterday:\nToday:", "isTemplate": true,
	})
	tmpl := decode[model.Snippet](t, rec)

	rec = hs.do(t, http.MethodGet, "/api/templates", nil)
	assert.Len(t, decode[[]model.Snippet](t, rec), 1)

	rec = hs.do(t, http.MethodPost, "/api/snippets/"+tmpl.ID+"/instantiate", nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	inst := decode[model.Snippet](t, rec)
	assert.NotEqual(t, tmpl.ID, inst.ID)
	assert.False(t, inst.IsTemplate)
	assert.Equal(t, tmpl.Content, inst.Content)

	rec = hs.do(t, http.MethodPost, "/api/snippets/"+inst.ID+"/instantiate", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// =========================================================================
// CATEGORIES AND TAGS
// =========================================================================

func TestCategories_Lifecycle(t *testing.T) {
	hs := newHarness(t, nil)

	rec := hs.do(t, http.MethodPost, "/api/categories", map[string]any{"name": "Work", "color": "#336699"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	work := decode[model.Category](t, rec)

	rec = hs.do(t, http.MethodPost, "/api/categories", map[string]any{"name": "work"})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "name", decode[errorBody](t, rec).Field)

	rec = hs.do(t, http.MethodPost, "/api/categories", map[string]any{"name": "Archive"})
	archive := decode[model.Category](t, rec)

	for _, content := range []string{"a", "b"} {
		rec = hs.do(t, http.MethodPost, "/api/snippets", map[string]any{"content": content, "categoryId": work.ID})
		require.Equal(t, http.StatusCreated, rec.Code)
	}

	rec = hs.do(t, http.MethodGet, "/api/categories", nil)
	list := decode[[]service.CategoryInfo](t, rec)
	require.Len(t, list, 2)
	assert.Equal(t, "Archive", list[0].Name)
	assert.Equal(t, 2, list[1].Snippets)

	rec = hs.do(t, http.MethodPatch, "/api/categories/"+work.ID, map[string]any{"color": "#ABCDEF"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "#abcdef", decode[model.Category](t, rec).Color)
	assert.Equal(t, "Work", decode[model.Category](t, rec).Name)

	rec = hs.do(t, http.MethodPatch, "/api/categories/"+work.ID, map[string]any{"color": "blue"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = hs.do(t, http.MethodDelete, "/api/categories/"+work.ID+"?reassign="+archive.ID, nil)
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = hs.do(t, http.MethodGet, "/api/categories/"+work.ID+"/snippets", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = hs.do(t, http.MethodGet, "/api/categories/"+archive.ID+"/snippets", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]model.Snippet](t, rec), 2)

	rec = hs.do(t, http.MethodDelete, "/api/categories/"+archive.ID+"?reassign=cat_missing", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestCategories_DeleteUncategorizes(t *testing.T) {
	hs := newHarness(t, nil)

	cat := decode[model.Category](t, hs.do(t, http.MethodPost, "/api/categories", map[string]any{"name": "Work"}))
	sn := decode[model.Snippet](t, hs.do(t, http.MethodPost, "/api/snippets", map[string]any{
		"content": "x", "categoryId": cat.ID,
	}))

	rec := hs.do(t, http.MethodDelete, "/api/categories/"+cat.ID, nil)
	require.Equal(t, http.StatusNoContent, rec.Code)

	got := decode[model.Snippet](t, hs.do(t, http.MethodGet, "/api/snippets/"+sn.ID, nil))
	assert.Empty(t, got.CategoryID)
}

func TestTags_Lifecycle(t *testing.T) {
	hs := newHarness(t, nil)

	rec := hs.do(t, http.MethodPost, "/api/tags", map[string]any{"label": "urgent"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	urgent := decode[model.Tag](t, rec)

	rec = hs.do(t, http.MethodPost, "/api/tags", map[string]any{"label": "a,b"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	sn := decode[model.Snippet](t, hs.do(t, http.MethodPost, "/api/snippets", map[string]any{
		"content": "x", "tagIds": []string{urgent.ID},
	}))
	other := decode[model.Snippet](t, hs.do(t, http.MethodPost, "/api/snippets", map[string]any{
		"content": "y", "tagIds": []string{urgent.ID},
	}))

	rec = hs.do(t, http.MethodPatch, "/api/tags/"+urgent.ID, map[string]any{"label": "later"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "later", decode[model.Tag](t, rec).Label)

	rec = hs.do(t, http.MethodGet, "/api/tags/"+urgent.ID+"/snippets", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]model.Snippet](t, rec), 2)

	rec = hs.do(t, http.MethodGet, "/api/tags", nil)
	tags := decode[[]service.TagInfo](t, rec)
	require.Len(t, tags, 1)
	assert.Equal(t, 2, tags[0].Snippets)

	rec = hs.do(t, http.MethodDelete, "/api/tags/"+urgent.ID, nil)
	require.Equal(t, http.StatusNoContent, rec.Code)

	for _, id := range []string{sn.ID, other.ID} {
		got := decode[model.Snippet](t, hs.do(t, http.MethodGet, "/api/snippets/"+id, nil))
		assert.Empty(t, got.TagIDs)
	}

	rec = hs.do(t, http.MethodGet, "/api/tags/"+urgent.ID+"/snippets", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = hs.do(t, http.MethodDelete, "/api/tags/"+urgent.ID, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

// =========================================================================
// BULK, EXPORT, IMPORT, SAVE
// =========================================================================

func TestBulk_DeleteHalfExisting(t *testing.T) {
	hs := newHarness(t, nil)

	a := decode[model.Snippet](t, hs.do(t, http.MethodPost, "/api/snippets", map[string]any{"content": "a"}))
	b := decode[model.Snippet](t, hs.do(t, http.MethodPost, "/api/snippets", map[string]any{"content": "b"}))

	rec := hs.do(t, http.MethodPost, "/api/bulk", map[string]any{
		"ids": []string{a.ID, "snp_missing", b.ID, a.ID},
		"op":  "delete",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	res := decode[bulkBody](t, rec)

	assert.Equal(t, 2, res.Applied)
	assert.Equal(t, 1, res.Failed)
	assert.Equal(t, 1, res.Skipped)
	require.Len(t, res.Items, 4)
	assert.Equal(t, "failed", res.Items[1].Status)
	assert.NotEmpty(t, res.Items[1].Error)
	assert.Nil(t, res.Document)

	rec = hs.do(t, http.MethodGet, "/api/snippets", nil)
	assert.JSONEq(t, `[]`, rec.Body.String())
}

func TestBulk_FlagsAndTags(t *testing.T) {
	hs := newHarness(t, nil)

	tag := decode[model.Tag](t, hs.do(t, http.MethodPost, "/api/tags", map[string]any{"label": "urgent"}))
	a := decode[model.Snippet](t, hs.do(t, http.MethodPost, "/api/snippets", map[string]any{"content": "a"}))
	b := decode[model.Snippet](t, hs.do(t, http.MethodPost, "/api/snippets", map[string]any{"content": "b", "isMarkdown": true}))
	ids := []string{a.ID, b.ID}

	res := decode[bulkBody](t, hs.do(t, http.MethodPost, "/api/bulk", map[string]any{"ids": ids, "op": "add_tag", "tagId": tag.ID}))
	assert.Equal(t, 2, res.Applied)

	res = decode[bulkBody](t, hs.do(t, http.MethodPost, "/api/bulk", map[string]any{"ids": ids, "op": "toggle_markdown"}))
	assert.Equal(t, 2, res.Applied)

	res = decode[bulkBody](t, hs.do(t, http.MethodPost, "/api/bulk", map[string]any{"ids": ids, "op": "set_template", "value": true}))
	assert.Equal(t, 2, res.Applied)

	gotA := decode[model.Snippet](t, hs.do(t, http.MethodGet, "/api/snippets/"+a.ID, nil))
	gotB := decode[model.Snippet](t, hs.do(t, http.MethodGet, "/api/snippets/"+b.ID, nil))
	assert.Equal(t, []string{tag.ID}, gotA.TagIDs)
	assert.True(t, gotA.IsMarkdown)
	assert.False(t, gotB.IsMarkdown)
	assert.True(t, gotA.IsTemplate)
	assert.True(t, gotB.IsTemplate)

	res = decode[bulkBody](t, hs.do(t, http.MethodPost, "/api/bulk", map[string]any{"ids": ids, "op": "add_tag", "tagId": "tag_missing"}))
	assert.Equal(t, 2, res.Failed)
}

func TestBulk_Export(t *testing.T) {
	hs := newHarness(t, nil)

	a := decode[model.Snippet](t, hs.do(t, http.MethodPost, "/api/snippets", map[string]any{"content": "first"}))
	b := decode[model.Snippet](t, hs.do(t, http.MethodPost, "/api/snippets", map[string]any{"content": "second"}))

	rec := hs.do(t, http.MethodPost, "/api/bulk", map[string]any{
		"ids": []string{b.ID, a.ID}, "op": "export", "format": "text",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	res := decode[bulkBody](t, rec)
	require.NotNil(t, res.Document)
	assert.Less(t, strings.Index(*res.Document, "second"), strings.Index(*res.Document, "first"))
}

func TestBulk_BadRequests(t *testing.T) {
	hs := newHarness(t, nil)

	tests := []struct {
		name  string
		body  map[string]any
		field string
	}{
		{name: "no ids", body: map[string]any{"ids": []string{}, "op": "delete"}, field: "ids"},
		{name: "unknown op", body: map[string]any{"ids": []string{"x"}, "op": "explode"}, field: "op"},
		{name: "missing value", body: map[string]any{"ids": []string{"x"}, "op": "set_markdown"}, field: "value"},
		{name: "missing tag", body: map[string]any{"ids": []string{"x"}, "op": "remove_tag"}, field: "tagId"},
		{name: "bad format", body: map[string]any{"ids": []string{"x"}, "op": "export", "format": "pdf"}, field: "format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := hs.do(t, http.MethodPost, "/api/bulk", tt.body)
			require.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, tt.field, decode[errorBody](t, rec).Field)
		})
	}
}

func TestExportImport_RoundTrip(t *testing.T) {
	src := newHarness(t, nil)

	cat := decode[model.Category](t, src.do(t, http.MethodPost, "/api/categories", map[string]any{"name": "Work"}))
	src.do(t, http.MethodPost, "/api/snippets", map[string]any{
		"label": "Notes", "content": "# Title\n\n- item\n", "isMarkdown": true,
		"categoryId": cat.ID, "tags": []string{"urgent"},
	})
	src.do(t, http.MethodPost, "/api/snippets", map[string]any{"content": "plain line"})

	rec := src.do(t, http.MethodGet, "/api/export?format=md", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "text/markdown; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), ".md")
	doc := rec.Body.String()

	dst := newHarness(t, nil)
	rec = dst.do(t, http.MethodPost, "/api/import?format=markdown", doc)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var report struct {
		Added  int `json:"added"`
		Failed int `json:"failed"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	assert.Equal(t, 2, report.Added)
	assert.Zero(t, report.Failed)

	got := decode[[]model.Snippet](t, dst.do(t, http.MethodGet, "/api/snippets", nil))
	require.Len(t, got, 2)
	assert.Equal(t, "# Title\n\n- item\n", got[0].Content)
	assert.NotEmpty(t, got[0].CategoryID)
	assert.Len(t, got[0].TagIDs, 1)
	assert.Equal(t, "plain line", got[1].Content)
}

func TestExport_DefaultsToJSON(t *testing.T) {
	hs := newHarness(t, nil)
	hs.do(t, http.MethodPost, "/api/snippets", map[string]any{"content": "x"})

	rec := hs.do(t, http.MethodGet, "/api/export", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.True(t, json.Valid(rec.Body.Bytes()))

	rec = hs.do(t, http.MethodGet, "/api/export?format=docx", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestImport_Malformed(t *testing.T) {
	hs := newHarness(t, nil)

	rec := hs.do(t, http.MethodPost, "/api/import?format=json", `{"not":"a list"`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = hs.do(t, http.MethodGet, "/api/snippets", nil)
	assert.JSONEq(t, `[]`, rec.Body.String())
}

func TestSave_WritesStateFile(t *testing.T) {
	hs := newHarness(t, nil)
	hs.do(t, http.MethodPost, "/api/snippets", map[string]any{"content": "persist me"})

	rec := hs.do(t, http.MethodPost, "/api/save", nil)
	require.Equal(t, http.StatusNoContent, rec.Code)

	data, err := os.ReadFile(hs.path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "persist me")
}

// =========================================================================
// AUTH
// =========================================================================

func TestAuth_ProtectsAPI(t *testing.T) {
	tokens, err := auth.NewTokenService("server-test-secret-0123456789")
	require.NoError(t, err)
	hs := newHarness(t, tokens)

	rec := hs.do(t, http.MethodGet, "/api/snippets", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = hs.do(t, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	token, err := tokens.Generate("local", time.Hour)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodGet, "/api/snippets", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec = httptest.NewRecorder()
	hs.h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}
