package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/shieldx/shieldx/internal/apperr"
	"github.com/shieldx/shieldx/internal/id"
	"github.com/shieldx/shieldx/internal/store"
)

const (
	defaultLimit = 100
	maxBodyBytes = 1 << 20
)

// writeJSON encodes v as JSON and writes it with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// errorResponse is the standard error envelope.
type errorResponse struct {
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// messageResponse acknowledges a create or update.
type messageResponse struct {
	Message string      `json:"message"`
	ID      id.EntityID `json:"id"`
}

// statusFor maps an error kind to an HTTP status.
func statusFor(err error) int {
	switch apperr.KindOf(err) {
	case apperr.KindValidation:
		return http.StatusBadRequest
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// fail writes err with the status its kind maps to. Server errors are
// logged and their detail hidden from the client.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		h.log.Error("http.request.failed", "method", r.Method, "path", r.URL.Path, "err", err)
		writeError(w, status, "internal error")
		return
	}
	writeError(w, status, err.Error())
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		return apperr.Validation("invalid JSON: %s", err)
	}
	return nil
}

// pathID parses the named path wildcard as an EntityID.
func pathID(r *http.Request, name string) (id.EntityID, error) {
	return id.Parse(r.PathValue(name))
}

// page reads limit and skip from the query string.
func page(r *http.Request) (store.Page, error) {
	p := store.Page{Limit: defaultLimit}
	q := r.URL.Query()
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return p, apperr.Validation("limit: must be a positive integer, got %q", v)
		}
		p.Limit = n
	}
	if v := q.Get("skip"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return p, apperr.Validation("skip: must be a non-negative integer, got %q", v)
		}
		p.Skip = n
	}
	return p, nil
}

// boolQuery parses an optional boolean query parameter.
func boolQuery(r *http.Request, name string) (bool, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, apperr.Validation("%s must be a boolean, got %q", name, v)
	}
	return b, nil
}
