package response

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

// Error is the body of every non-2xx response.
type Error struct {
	Error string `json:"error"`
}

// JSON writes v with the given status.
func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Error sending response", "error", err)
	}
}

// Fail writes an Error body with the given status.
func Fail(w http.ResponseWriter, status int, msg string) {
	JSON(w, status, Error{Error: msg})
}
