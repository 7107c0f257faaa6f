// Package httputil centralizes JSON response writing so every handler uses the
// same envelopes and the error taxonomy is translated in exactly one place.
package httputil

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"dealflow/pkg/dlerrors"
)

// ErrorBody is the stable error envelope returned to callers.
type ErrorBody struct {
	Message   string    `json:"message"`
	Code      string    `json:"code"`
	Timestamp time.Time `json:"timestamp"`
	Path      string    `json:"path"`
}

func WriteJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body != nil {
		_ = json.NewEncoder(w).Encode(body)
	}
}

// WriteError translates a coded domain error to its HTTP status. Internal
// errors never expose detail to the caller; the handler logs it server-side.
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	code := dlerrors.CodeOf(err)
	message := "internal error"
	var de *dlerrors.Error
	if code != dlerrors.CodeInternal && errors.As(err, &de) {
		message = de.Message
	}
	WriteJSON(w, StatusOf(code), ErrorBody{
		Message:   message,
		Code:      string(code),
		Timestamp: time.Now().UTC(),
		Path:      r.URL.Path,
	})
}

// StatusOf maps each taxonomy member to a stable external status.
func StatusOf(code dlerrors.Code) int {
	switch code {
	case dlerrors.CodeNotFound:
		return http.StatusNotFound
	case dlerrors.CodeUnauthorized:
		return http.StatusUnauthorized
	case dlerrors.CodeForbidden:
		return http.StatusForbidden
	case dlerrors.CodeBadRequest:
		return http.StatusBadRequest
	case dlerrors.CodeConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
