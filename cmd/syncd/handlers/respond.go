// Package handlers provides the localhost REST API over the sync engine.
package handlers

import (
	"encoding/json"
	"net/http"

	apperrors "github.com/reptrack/backend/internal/errors"
	"github.com/reptrack/backend/internal/logging"
)

// errorBody is the JSON shape of every error response.
type errorBody struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Error("Failed to encode response", err)
	}
}

// writeError maps an application error code onto an HTTP status.
func writeError(w http.ResponseWriter, err error) {
	code := apperrors.CodeOf(err)
	status := http.StatusInternalServerError
	switch code {
	case apperrors.ErrInvalid, apperrors.ErrConfigInvalid:
		status = http.StatusBadRequest
	case apperrors.ErrNotFound:
		status = http.StatusNotFound
	case apperrors.ErrSyncOffline:
		status = http.StatusConflict
	case apperrors.ErrSyncInProgress:
		status = http.StatusTooManyRequests
	case apperrors.ErrRemoteUnreachable:
		status = http.StatusBadGateway
	}
	writeJSON(w, status, errorBody{Error: err.Error(), Code: string(code)})
}

func decodeBody(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, apperrors.Wrap(apperrors.ErrInvalid, "invalid request body", err))
		return false
	}
	return true
}
