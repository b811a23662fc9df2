package handler

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/sakif/snippet-organizer/internal/model"
	"github.com/sakif/snippet-organizer/internal/service"
	"github.com/sakif/snippet-organizer/internal/store"
)

// SnippetHandler serves /api/snippets and /api/templates.
type SnippetHandler struct {
	svc    *service.Service
	logger *slog.Logger
}

func NewSnippetHandler(svc *service.Service, logger *slog.Logger) *SnippetHandler {
	return &SnippetHandler{svc: svc, logger: logger}
}

// createSnippetRequest is the body of POST /api/snippets. Tags may be given
// by id, by label, or both; unknown labels create new tags.
type createSnippetRequest struct {
	Label      string   `json:"label"`
	Content    string   `json:"content"`
	CategoryID string   `json:"categoryId"`
	TagIDs     []string `json:"tagIds"`
	Tags       []string `json:"tags"`
	IsTemplate bool     `json:"isTemplate"`
	IsMarkdown bool     `json:"isMarkdown"`
	Hidden     bool     `json:"hidden"`
}

// updateSnippetRequest is the body of PATCH /api/snippets/{id}. Absent
// fields stay unchanged; "categoryId": "" uncategorizes.
type updateSnippetRequest struct {
	Label        *string   `json:"label"`
	Content      *string   `json:"content"`
	CategoryID   *string   `json:"categoryId"`
	TagIDs       *[]string `json:"tagIds"`
	AddTagIDs    []string  `json:"addTagIds"`
	RemoveTagIDs []string  `json:"removeTagIds"`
	IsTemplate   *bool     `json:"isTemplate"`
	IsMarkdown   *bool     `json:"isMarkdown"`
	Hidden       *bool     `json:"hidden"`
}

// HandleList returns every snippet in store order.
//
// HTTP: GET /api/snippets?hidden=true
func (h *SnippetHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, snippetList(h.svc.Snippets(listOptions(r))))
}

// HandleSearch matches every word of q as a prefix of a word in the label
// or content. An empty q lists everything.
//
// HTTP: GET /api/snippets/search?q=deploy+prod
func (h *SnippetHandler) HandleSearch(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, snippetList(h.svc.Search(r.URL.Query().Get("q"), listOptions(r))))
}

// HTTP: GET /api/templates
func (h *SnippetHandler) HandleTemplates(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, snippetList(h.svc.Templates()))
}

// HTTP: GET /api/snippets/{id}
func (h *SnippetHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	sn, err := h.svc.Snippet(r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sn)
}

// HTTP: POST /api/snippets
func (h *SnippetHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var req createSnippetRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	sn, err := h.svc.CreateSnippet(r.Context(), store.NewSnippet{
		Label:      req.Label,
		Content:    req.Content,
		CategoryID: req.CategoryID,
		TagIDs:     req.TagIDs,
		IsTemplate: req.IsTemplate,
		IsMarkdown: req.IsMarkdown,
		Hidden:     req.Hidden,
	}, req.Tags)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, sn)
}

// HTTP: PATCH /api/snippets/{id}
func (h *SnippetHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	var req updateSnippetRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	sn, err := h.svc.UpdateSnippet(r.Context(), r.PathValue("id"), store.SnippetPatch{
		Label:        req.Label,
		Content:      req.Content,
		CategoryID:   req.CategoryID,
		TagIDs:       req.TagIDs,
		AddTagIDs:    req.AddTagIDs,
		RemoveTagIDs: req.RemoveTagIDs,
		IsTemplate:   req.IsTemplate,
		IsMarkdown:   req.IsMarkdown,
		Hidden:       req.Hidden,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sn)
}

// HTTP: DELETE /api/snippets/{id}
func (h *SnippetHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.DeleteSnippet(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleInstantiate creates a regular snippet from the template {id}.
//
// HTTP: POST /api/snippets/{id}/instantiate
func (h *SnippetHandler) HandleInstantiate(w http.ResponseWriter, r *http.Request) {
	sn, err := h.svc.Instantiate(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, sn)
}

// listOptions reads ?hidden=; anything strconv.ParseBool rejects counts as false.
func listOptions(r *http.Request) service.ListOptions {
	hidden, _ := strconv.ParseBool(r.URL.Query().Get("hidden"))
	return service.ListOptions{IncludeHidden: hidden}
}

// snippetList makes sure an empty result encodes as [] rather than null.
func snippetList(snippets []model.Snippet) []model.Snippet {
	if snippets == nil {
		return []model.Snippet{}
	}
	return snippets
}
