package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/atticfs/attic/internal/logger"
	"github.com/atticfs/attic/pkg/blob"
	"github.com/atticfs/attic/pkg/tree"
)

// errorBody is the wire shape of every error response.
type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// writeError translates a domain error into an HTTP response. This is the
// only place status codes are assigned, so the mapping stays consistent
// across every endpoint.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var storeErr *tree.StoreError
	if errors.As(err, &storeErr) {
		writeErrorCode(w, statusFor(storeErr.Code), codeName(storeErr.Code), storeErr.Message)
		return
	}

	switch {
	case errors.Is(err, blob.ErrTooLarge):
		writeErrorCode(w, http.StatusBadRequest, "file_too_large", "content exceeds the maximum file size")
	case errors.Is(err, blob.ErrContentNotFound):
		writeErrorCode(w, http.StatusNotFound, "not_found", "content not found")
	default:
		logger.Error("Internal error handling %s %s: %v", r.Method, r.URL.Path, err)
		writeErrorCode(w, http.StatusInternalServerError, "internal", "internal server error")
	}
}

func statusFor(code tree.ErrorCode) int {
	switch code {
	case tree.ErrNotFound:
		return http.StatusNotFound
	case tree.ErrPermissionDenied:
		return http.StatusForbidden
	case tree.ErrNameInvalid, tree.ErrNameConflict, tree.ErrFileTooLarge:
		return http.StatusBadRequest
	case tree.ErrContentNotReady:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func codeName(code tree.ErrorCode) string {
	switch code {
	case tree.ErrNotFound:
		return "not_found"
	case tree.ErrPermissionDenied:
		return "forbidden"
	case tree.ErrNameInvalid:
		return "name_invalid"
	case tree.ErrNameConflict:
		return "name_conflict"
	case tree.ErrFileTooLarge:
		return "file_too_large"
	case tree.ErrContentNotReady:
		return "content_not_ready"
	default:
		return "internal"
	}
}

// writeErrorCode writes the error envelope directly.
func writeErrorCode(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorBody{Error: errorDetail{Code: code, Message: message}})
}

// writeJSON writes v with the given status. Encoding failures after the
// header is sent can only be logged.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Debug("Failed to encode response: %v", err)
	}
}

// decodeJSON reads a small JSON request body into v.
func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}
