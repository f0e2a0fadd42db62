package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/me/agentq/pkg/model"
)

// requestID generates a unique request identifier.
func requestID() string {
	return "req_" + uuid.New().String()[:8]
}

// respondOK writes a success response with the standard envelope.
func respondOK(w http.ResponseWriter, reqID string, data any) {
	respondJSON(w, http.StatusOK, reqID, data, nil, nil)
}

// respondCreated writes a 201 response with the standard envelope.
func respondCreated(w http.ResponseWriter, reqID string, data any) {
	respondJSON(w, http.StatusCreated, reqID, data, nil, nil)
}

// respondList writes a success response with pagination.
func respondList(w http.ResponseWriter, reqID string, data any, pg *model.Pagination) {
	respondJSON(w, http.StatusOK, reqID, data, pg, nil)
}

// respondError writes an error response with the standard envelope.
func respondError(w http.ResponseWriter, reqID string, status int, apiErr *model.APIError) {
	respondJSON(w, status, reqID, nil, nil, apiErr)
}

// respondDomainError maps a queue or store error onto an HTTP status and
// API error code.
func respondDomainError(w http.ResponseWriter, reqID string, err error) {
	var verr *model.ValidationError
	var unknown *model.UnknownAgentError
	var notFound *model.RecordNotFoundError

	switch {
	case errors.As(err, &verr):
		respondError(w, reqID, http.StatusBadRequest,
			model.NewValidationError(err.Error(), model.FieldError{Field: verr.Field, Message: verr.Message}))
	case errors.As(err, &unknown):
		respondError(w, reqID, http.StatusNotFound, model.NewNotFoundError("agent", unknown.Name))
	case errors.As(err, &notFound):
		respondError(w, reqID, http.StatusNotFound, model.NewNotFoundError(notFound.Resource, notFound.ID))
	case errors.Is(err, model.ErrRecordNotFound):
		respondError(w, reqID, http.StatusNotFound, &model.APIError{Code: model.ErrNotFound, Message: err.Error()})
	case errors.Is(err, model.ErrDependencyNotFound), errors.Is(err, model.ErrDependencyCycle):
		respondError(w, reqID, http.StatusUnprocessableEntity,
			&model.APIError{Code: model.ErrConflict, Message: err.Error()})
	case errors.Is(err, model.ErrTransport):
		respondError(w, reqID, http.StatusBadGateway,
			&model.APIError{Code: model.ErrUnavailable, Message: err.Error()})
	default:
		respondError(w, reqID, http.StatusInternalServerError,
			&model.APIError{Code: model.ErrInternal, Message: err.Error()})
	}
}

// decodeJSON reads the request body into v, answering 400 on failure.
func decodeJSON(w http.ResponseWriter, r *http.Request, reqID string, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		respondError(w, reqID, http.StatusBadRequest, &model.APIError{
			Code:    model.ErrValidation,
			Message: "Invalid JSON body: " + err.Error(),
		})
		return false
	}
	return true
}

// idParam parses the {id} URL parameter, answering 400 when it is not a
// positive integer.
func idParam(w http.ResponseWriter, r *http.Request, reqID string) (int64, bool) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		respondError(w, reqID, http.StatusBadRequest,
			model.NewValidationError("invalid id", model.FieldError{Field: "id", Message: "must be a positive integer"}))
		return 0, false
	}
	return id, true
}

func respondJSON(w http.ResponseWriter, status int, reqID string, data any, pg *model.Pagination, apiErr *model.APIError) {
	resp := model.Response{
		RequestID:  reqID,
		Timestamp:  time.Now().UTC(),
		Data:       data,
		Pagination: pg,
		Error:      apiErr,
	}
	if apiErr != nil {
		resp.Status = "error"
	} else {
		resp.Status = "ok"
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(resp)
}
