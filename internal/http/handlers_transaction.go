package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"fintrack/internal/core"
	applog "fintrack/internal/log"
)

type errorResponse struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
}

// writeError maps the error taxonomy onto HTTP status codes. Validation
// failures name the offending field so clients can highlight it.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var vErr *core.ValidationError
	switch {
	case errors.As(err, &vErr):
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: vErr.Error(), Field: vErr.Field})
	case errors.Is(err, core.ErrUnauthenticated):
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "not authenticated"})
	default:
		var wErr *core.RemoteWriteError
		status := http.StatusInternalServerError
		if errors.As(err, &wErr) {
			status = http.StatusBadGateway
		}
		applog.FromContext(r.Context()).ErrorContext(r.Context(), "Request failed",
			applog.FieldError, err, applog.FieldPath, r.URL.Path)
		writeJSON(w, status, errorResponse{Error: err.Error()})
	}
}

func decodeFields(r *http.Request) (core.TransactionFields, error) {
	var fields core.TransactionFields
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&fields); err != nil {
		return core.TransactionFields{}, err
	}
	fields.Category = strings.TrimSpace(fields.Category)
	fields.Description = strings.TrimSpace(fields.Description)
	return fields, nil
}

func (s *Server) handleCreateTransaction(w http.ResponseWriter, r *http.Request) {
	fields, err := decodeFields(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}

	tx, err := s.writer.Create(r.Context(), fields)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, tx)
}

func (s *Server) handleUpdateTransaction(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "missing transaction id"})
		return
	}

	fields, err := decodeFields(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}

	tx, err := s.writer.Update(r.Context(), id, fields)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, tx)
}

func (s *Server) handleDeleteTransaction(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "missing transaction id"})
		return
	}

	if err := s.writer.Delete(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
