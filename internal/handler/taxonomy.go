package handler

import (
	"log/slog"
	"net/http"

	"github.com/sakif/snippet-organizer/internal/service"
	"github.com/sakif/snippet-organizer/internal/store"
)

// TaxonomyHandler serves /api/categories and /api/tags.
type TaxonomyHandler struct {
	svc    *service.Service
	logger *slog.Logger
}

func NewTaxonomyHandler(svc *service.Service, logger *slog.Logger) *TaxonomyHandler {
	return &TaxonomyHandler{svc: svc, logger: logger}
}

type categoryRequest struct {
	Name  *string `json:"name"`
	Color *string `json:"color"`
}

type tagRequest struct {
	Label string `json:"label"`
}

// =========================================================================
// CATEGORIES
// =========================================================================

// HandleListCategories returns categories sorted by name, each with the
// number of snippets filed under it.
//
// HTTP: GET /api/categories
func (h *TaxonomyHandler) HandleListCategories(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.svc.Categories())
}

// HTTP: POST /api/categories  {"name": "Work", "color": "#336699"}
func (h *TaxonomyHandler) HandleCreateCategory(w http.ResponseWriter, r *http.Request) {
	var req categoryRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	var name, color string
	if req.Name != nil {
		name = *req.Name
	}
	if req.Color != nil {
		color = *req.Color
	}
	c, err := h.svc.CreateCategory(r.Context(), name, color)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

// HTTP: PATCH /api/categories/{id}  {"name": "...", "color": "..."} (either may be omitted)
func (h *TaxonomyHandler) HandleUpdateCategory(w http.ResponseWriter, r *http.Request) {
	var req categoryRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	c, err := h.svc.UpdateCategory(r.Context(), r.PathValue("id"), service.CategoryPatch{
		Name:  req.Name,
		Color: req.Color,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// HandleDeleteCategory deletes a category. Its snippets are uncategorized,
// or moved to ?reassign=<category id>.
//
// HTTP: DELETE /api/categories/{id}?reassign=cat_123
func (h *TaxonomyHandler) HandleDeleteCategory(w http.ResponseWriter, r *http.Request) {
	policy := store.Uncategorize()
	if target := r.URL.Query().Get("reassign"); target != "" {
		policy = store.ReassignTo(target)
	}

	if err := h.svc.DeleteCategory(r.Context(), r.PathValue("id"), policy); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HTTP: GET /api/categories/{id}/snippets
func (h *TaxonomyHandler) HandleCategorySnippets(w http.ResponseWriter, r *http.Request) {
	snippets, err := h.svc.SnippetsInCategory(r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snippetList(snippets))
}

// =========================================================================
// TAGS
// =========================================================================

// HTTP: GET /api/tags
func (h *TaxonomyHandler) HandleListTags(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.svc.Tags())
}

// HTTP: POST /api/tags  {"label": "urgent"}
func (h *TaxonomyHandler) HandleCreateTag(w http.ResponseWriter, r *http.Request) {
	var req tagRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	t, err := h.svc.CreateTag(r.Context(), req.Label)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, t)
}

// HTTP: PATCH /api/tags/{id}  {"label": "later"}
func (h *TaxonomyHandler) HandleRenameTag(w http.ResponseWriter, r *http.Request) {
	var req tagRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	t, err := h.svc.RenameTag(r.Context(), r.PathValue("id"), req.Label)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

// HandleDeleteTag deletes a tag and strips it from every snippet.
//
// HTTP: DELETE /api/tags/{id}
func (h *TaxonomyHandler) HandleDeleteTag(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.DeleteTag(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HTTP: GET /api/tags/{id}/snippets
func (h *TaxonomyHandler) HandleTagSnippets(w http.ResponseWriter, r *http.Request) {
	snippets, err := h.svc.SnippetsWithTag(r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snippetList(snippets))
}
