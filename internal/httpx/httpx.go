// Package httpx holds small helpers shared by HTTP handlers: JSON body
// handling and a uniform error envelope.
package httpx

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
)

// NewRequestID returns a fresh request correlation ID.
func NewRequestID() string { return "req_" + uuid.NewString() }

// WriteJSON encodes v as the response body with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("content-type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// ReadJSON decodes the request body into dst, rejecting unknown fields.
func ReadJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

// WriteError writes the uniform error envelope.
func WriteError(w http.ResponseWriter, status int, code, message string) {
	resp := map[string]any{
		"request_id": NewRequestID(),
		"error": map[string]any{
			"code": code, "message": message,
		},
	}
	WriteJSON(w, status, resp)
}
