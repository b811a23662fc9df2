package handler

// RESPONSE HELPERS:
// Every handler answers through writeJSON or writeError, so the API has one
// success shape per resource and one error shape overall:
//
//	{"error": "not_found", "message": "snippet not found with id snp_123", "field": ""}

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/sakif/snippet-organizer/internal/apperror"
)

// maxBodyBytes caps JSON request bodies. Import documents get importMaxBytes.
const (
	maxBodyBytes   = 1 << 20
	importMaxBytes = 32 << 20
)

// ErrorResponse is the body of every non-2xx answer.
type ErrorResponse struct {
	Error   string `json:"error"`           // machine-readable kind, e.g. "not_found"
	Message string `json:"message"`         // human-readable description
	Field   string `json:"field,omitempty"` // offending input field, when known
}

// writeJSON sends data with the given status. Headers must be set before
// WriteHeader; anything set afterwards is silently dropped.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			// Headers are already out; all we can do is log.
			slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
		}
	}
}

// writeError maps a domain error to its HTTP status.
//
// ERROR MAPPING:
//
//	ErrValidation   → 400
//	ErrNotFound     → 404
//	ErrReference    → 422 (the request is well-formed but names a missing entity)
//	ErrCorruptState → 500
//	ErrIO           → 500
//
// errors.Is walks the whole chain, so an AppError wrapped with fmt.Errorf
// still maps correctly.
func writeError(w http.ResponseWriter, err error) {
	var appErr *apperror.AppError
	if !errors.As(err, &appErr) {
		// Never echo unknown errors: they can carry file paths and internals.
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{
			Error:   "internal_error",
			Message: "An internal error occurred",
		})
		return
	}

	status := http.StatusInternalServerError
	errorType := "internal_error"
	switch {
	case errors.Is(err, apperror.ErrValidation):
		status, errorType = http.StatusBadRequest, "validation_error"
	case errors.Is(err, apperror.ErrNotFound):
		status, errorType = http.StatusNotFound, "not_found"
	case errors.Is(err, apperror.ErrReference):
		status, errorType = http.StatusUnprocessableEntity, "reference_error"
	case errors.Is(err, apperror.ErrCorruptState):
		errorType = "corrupt_state"
	case errors.Is(err, apperror.ErrIO):
		errorType = "io_error"
	}

	writeJSON(w, status, ErrorResponse{
		Error:   errorType,
		Message: appErr.Message,
		Field:   appErr.Field,
	})
}

// decodeJSON reads a single JSON object from the body into dst. Unknown
// fields are rejected so a typo in a field name is a 400 rather than a
// silently ignored change.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return apperror.ValidationFailed("body", fmt.Sprintf("invalid JSON body: %v", err))
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return apperror.ValidationFailed("body", "body must contain a single JSON object")
	}
	return nil
}
