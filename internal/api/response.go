// internal/api/response.go
// Package api exposes the administrative and enqueue HTTP surface.
package api

import (
	"encoding/json"
	"net/http"

	apperrors "notification-system/internal/common/errors"
)

// envelope is the JSON shape of every API response.
type envelope struct {
	OK    bool        `json:"ok"`
	Data  interface{} `json:"data,omitempty"`
	Error *apiError   `json:"error,omitempty"`
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, body envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func respondData(w http.ResponseWriter, status int, data interface{}) {
	writeJSON(w, status, envelope{OK: true, Data: data})
}

// respondError maps the error taxonomy onto HTTP statuses. Unknown errors
// become opaque 500s so internals never leak.
func respondError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	code := string(apperrors.CodeOf(err))
	message := "internal error"
	details := ""

	if stdErr, ok := err.(*apperrors.StandardError); ok {
		message = stdErr.Message
		switch {
		case apperrors.IsNotFound(err):
			status = http.StatusNotFound
			details = stdErr.Details
		case apperrors.IsConflict(err):
			status = http.StatusConflict
			details = stdErr.Details
		case apperrors.IsValidation(err):
			status = http.StatusBadRequest
			details = stdErr.Details
		}
	}

	writeJSON(w, status, envelope{OK: false, Error: &apiError{
		Code:    code,
		Message: message,
		Details: details,
	}})
}
