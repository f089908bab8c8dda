package httputil

import (
	"net/http"

	json "github.com/goccy/go-json"
)

type ErrorBody struct {
	Error string `json:"error"`
}

func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteRaw writes an already encoded JSON document.
func WriteRaw(w http.ResponseWriter, status int, body []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

func WriteError(w http.ResponseWriter, status int, message string) {
	WriteJSON(w, status, ErrorBody{Error: message})
}

// DecodeJSON reads a request body of at most maxBytes into v.
func DecodeJSON(r *http.Request, maxBytes int64, v any) error {
	return json.NewDecoder(http.MaxBytesReader(nil, r.Body, maxBytes)).Decode(v)
}
