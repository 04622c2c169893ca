package httpx

import (
	"encoding/json"
	"net/http"
)

// Envelope is the structured response body shared by all API endpoints.
// Validation failures use it with Success=false rather than a bare status.
type Envelope struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
}

// WriteJSON writes v as a JSON response with the given status code and
// no-store caching headers.
func WriteJSON(w http.ResponseWriter, code int, v any) {
	NoCache(w)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteFailure writes a {success:false, message} body with the given status.
func WriteFailure(w http.ResponseWriter, code int, message string) {
	WriteJSON(w, code, Envelope{Success: false, Message: message})
}

// WriteInternalError writes a generic 500 body. Detail stays server-side.
func WriteInternalError(w http.ResponseWriter) {
	WriteFailure(w, http.StatusInternalServerError, "Internal server error.")
}

// NoCache prevents intermediaries from caching sensitive responses.
func NoCache(w http.ResponseWriter) {
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Pragma", "no-cache")
}
