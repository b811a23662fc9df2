package handler

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/sakif/snippet-organizer/internal/apperror"
	"github.com/sakif/snippet-organizer/internal/bulk"
	"github.com/sakif/snippet-organizer/internal/codec"
	"github.com/sakif/snippet-organizer/internal/service"
)

// TransferHandler serves the endpoints that move many snippets at once:
// bulk operations, import, export and the manual save.
type TransferHandler struct {
	svc    *service.Service
	logger *slog.Logger
}

func NewTransferHandler(svc *service.Service, logger *slog.Logger) *TransferHandler {
	return &TransferHandler{svc: svc, logger: logger}
}

// bulkRequest is the body of POST /api/bulk. Which of the optional fields
// matter depends on op:
//
//	delete, toggle_template, toggle_markdown  (nothing else)
//	set_category                              categoryId ("" uncategorizes)
//	add_tag, remove_tag                       tagId
//	set_template, set_markdown                value
//	export                                    format
type bulkRequest struct {
	IDs        []string `json:"ids"`
	Op         string   `json:"op"`
	CategoryID string   `json:"categoryId"`
	TagID      string   `json:"tagId"`
	Value      *bool    `json:"value"`
	Format     string   `json:"format"`
}

type bulkItem struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

type bulkResponse struct {
	Items    []bulkItem `json:"items"`
	Applied  int        `json:"applied"`
	Failed   int        `json:"failed"`
	Skipped  int        `json:"skipped"`
	Document *string    `json:"document,omitempty"`
}

type importItem struct {
	Index int    `json:"index"`
	Label string `json:"label"`
	ID    string `json:"id,omitempty"`
	Error string `json:"error,omitempty"`
}

type importResponse struct {
	Items  []importItem `json:"items"`
	Added  int          `json:"added"`
	Failed int          `json:"failed"`
}

// HandleBulk applies one operation to every id in the selection. The answer
// is 200 even when some items failed; per-item outcomes are in the body.
// For "export" the encoded document is returned in "document".
//
// HTTP: POST /api/bulk
func (h *TransferHandler) HandleBulk(w http.ResponseWriter, r *http.Request) {
	var req bulkRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	if len(req.IDs) == 0 {
		writeError(w, apperror.ValidationFailed("ids", "at least one snippet id is required"))
		return
	}

	var doc *bytes.Buffer
	op, err := parseOperation(req, func() io.Writer {
		doc = new(bytes.Buffer)
		return doc
	})
	if err != nil {
		writeError(w, err)
		return
	}

	result := h.svc.Bulk(r.Context(), req.IDs, op)

	resp := bulkResponse{
		Items:   make([]bulkItem, 0, len(result.Items)),
		Applied: result.Applied,
		Failed:  result.Failed,
		Skipped: result.Skipped,
	}
	for _, item := range result.Items {
		bi := bulkItem{ID: item.ID, Status: string(item.Status)}
		if item.Err != nil {
			bi.Error = item.Err.Error()
		}
		resp.Items = append(resp.Items, bi)
	}
	if doc != nil {
		s := doc.String()
		resp.Document = &s
	}
	writeJSON(w, http.StatusOK, resp)
}

// parseOperation turns the wire form into a bulk.Operation. newDest is only
// called for export.
func parseOperation(req bulkRequest, newDest func() io.Writer) (bulk.Operation, error) {
	needValue := func() (bool, error) {
		if req.Value == nil {
			return false, apperror.ValidationFailed("value", fmt.Sprintf("%s requires a boolean value", req.Op))
		}
		return *req.Value, nil
	}
	needTag := func() error {
		if req.TagID == "" {
			return apperror.ValidationFailed("tagId", fmt.Sprintf("%s requires a tag id", req.Op))
		}
		return nil
	}

	switch req.Op {
	case "delete":
		return bulk.Delete{}, nil
	case "set_category":
		return bulk.SetCategory{CategoryID: req.CategoryID}, nil
	case "add_tag":
		if err := needTag(); err != nil {
			return nil, err
		}
		return bulk.AddTag{TagID: req.TagID}, nil
	case "remove_tag":
		if err := needTag(); err != nil {
			return nil, err
		}
		return bulk.RemoveTag{TagID: req.TagID}, nil
	case "set_template":
		v, err := needValue()
		if err != nil {
			return nil, err
		}
		return bulk.SetTemplateFlag{Value: v}, nil
	case "set_markdown":
		v, err := needValue()
		if err != nil {
			return nil, err
		}
		return bulk.SetMarkdownFlag{Value: v}, nil
	case "toggle_template":
		return bulk.ToggleTemplateFlag{}, nil
	case "toggle_markdown":
		return bulk.ToggleMarkdownFlag{}, nil
	case "export":
		f, err := codec.FormatFromName(req.Format)
		if err != nil {
			return nil, err
		}
		return bulk.Export{Format: f, Destination: newDest()}, nil
	default:
		return nil, apperror.ValidationFailed("op", fmt.Sprintf("unknown bulk operation %q", req.Op))
	}
}

// HandleExport streams every snippet as a downloadable document. The body
// is encoded into memory first so an encoding failure can still be
// reported as a proper error status.
//
// HTTP: GET /api/export?format=markdown
func (h *TransferHandler) HandleExport(w http.ResponseWriter, r *http.Request) {
	f, err := formatParam(r)
	if err != nil {
		writeError(w, err)
		return
	}

	var buf bytes.Buffer
	if err := h.svc.Export(r.Context(), &buf, f); err != nil {
		writeError(w, err)
		return
	}

	filename := fmt.Sprintf("snippets-%s.%s", time.Now().UTC().Format("20060102-150405"), f.Extension())
	w.Header().Set("Content-Type", f.ContentType())
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.WriteHeader(http.StatusOK)
	if _, err := buf.WriteTo(w); err != nil {
		h.logger.WarnContext(r.Context(), "export response interrupted", slog.String("error", err.Error()))
	}
}

// HandleImport reads a document from the raw request body and adds every
// snippet it contains.
//
// HTTP: POST /api/import?format=html
func (h *TransferHandler) HandleImport(w http.ResponseWriter, r *http.Request) {
	f, err := formatParam(r)
	if err != nil {
		writeError(w, err)
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, importMaxBytes))
	if err != nil {
		writeError(w, apperror.ValidationFailed("body", fmt.Sprintf("reading import document: %v", err)))
		return
	}

	report, err := h.svc.Import(r.Context(), bytes.NewReader(body), f)
	if err != nil {
		writeError(w, err)
		return
	}

	resp := importResponse{
		Items:  make([]importItem, 0, len(report.Items)),
		Added:  report.Added,
		Failed: report.Failed,
	}
	for _, item := range report.Items {
		ii := importItem{Index: item.Index, Label: item.Label, ID: item.ID}
		if item.Err != nil {
			ii.Error = item.Err.Error()
		}
		resp.Items = append(resp.Items, ii)
	}
	writeJSON(w, http.StatusOK, resp)
}

// HandleSave writes the current state to disk right away, whatever the
// autosave mode.
//
// HTTP: POST /api/save
func (h *TransferHandler) HandleSave(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Save(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// formatParam reads ?format=, defaulting to JSON.
func formatParam(r *http.Request) (codec.Format, error) {
	name := r.URL.Query().Get("format")
	if name == "" {
		return codec.JSON, nil
	}
	return codec.FormatFromName(name)
}
