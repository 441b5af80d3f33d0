// Package httpx holds the JSON request/response helpers shared by the
// gateway's HTTP surface. Every response body carries a request_id and
// errors use stable upper-snake codes so clients can switch on them.
package httpx

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"
)

// Request bodies are small command payloads; anything bigger is abuse.
const maxBodyBytes = 1 << 20

func NewRequestID() string { return "req_" + uuid.NewString() }

func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("content-type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// ReadJSON decodes the request body into dst, rejecting unknown fields
// and bodies over the cap.
func ReadJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return errors.New("request body too large")
		}
		return err
	}
	return nil
}

func WriteError(w http.ResponseWriter, status int, code, message string, details any) {
	WriteJSON(w, status, map[string]any{
		"request_id": NewRequestID(),
		"error": map[string]any{
			"code": code, "message": message, "details": details,
		},
	})
}
