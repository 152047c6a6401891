// Package envelope writes the JSON envelope shared by every dashboard endpoint.
package envelope

import (
	"encoding/json"
	"net/http"
)

// Envelope is the response body of the dashboard API.
type Envelope struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Cached  *bool  `json:"cached,omitempty"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Write encodes env with the given status.
func Write(w http.ResponseWriter, status int, env Envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(env)
}

// Data writes a successful dashboard response.
func Data(w http.ResponseWriter, data any, cached bool) {
	Write(w, http.StatusOK, Envelope{Success: true, Data: data, Cached: &cached})
}

// Message writes a successful response without data.
func Message(w http.ResponseWriter, status int, message string) {
	Write(w, status, Envelope{Success: true, Message: message})
}

// Fail writes a failed response. errText is omitted when empty.
func Fail(w http.ResponseWriter, status int, message, errText string) {
	Write(w, status, Envelope{Message: message, Error: errText})
}
