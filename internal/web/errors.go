package web

import (
	"encoding/json"
	"net/http"

	"github.com/mkb23/overcode/internal/control"
)

// apiError is the JSON error shape every endpoint returns on failure
// (spec.md §4.Q, §7): {ok: false, error, status}.
type apiError struct {
	Status  int
	Message string
}

func (e *apiError) Error() string { return e.Message }

type errorBody struct {
	OK     bool   `json:"ok"`
	Error  string `json:"error"`
	Status int    `json:"status"`
}

// asAPIError converts any error returned by internal/control into an
// apiError, carrying over its HTTP status when it's a *control.Error and
// defaulting to 500 otherwise (spec.md §7 "500 internal").
func asAPIError(err error) *apiError {
	if err == nil {
		return nil
	}
	if ctrlErr, ok := err.(*control.Error); ok {
		return &apiError{Status: ctrlErr.Status, Message: ctrlErr.Message}
	}
	if apiErr, ok := err.(*apiError); ok {
		return apiErr
	}
	return &apiError{Status: 500, Message: err.Error()}
}

func writeError(w http.ResponseWriter, err error) {
	apiErr := asAPIError(err)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(apiErr.Status)
	_ = json.NewEncoder(w).Encode(errorBody{OK: false, Error: apiErr.Message, Status: apiErr.Status})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		// Encoding failures here mean the response is already partially
		// written; nothing more can be done but log at the call site.
		return
	}
}

func writeOK(w http.ResponseWriter, extra map[string]any) {
	body := map[string]any{"ok": true}
	for k, v := range extra {
		body[k] = v
	}
	writeJSON(w, body)
}
