package web

// respond.go centralizes JSON responses. Errors are logged with full
// detail server-side; the client gets a sanitized message.

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"regexp"
)

// credentialPattern matches connection strings so they never leak into
// client-facing error messages.
var credentialPattern = regexp.MustCompile(`(postgres(ql)?|mysql)://\S+`)

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, message string) {
	slog.Error("request failed", "status", status, "error", message)

	safe := credentialPattern.ReplaceAllString(message, "[connection string]")

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": safe})
}

// writeJSON encodes v as JSON and writes it to w. Encoding errors are
// logged since headers are already sent.
func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("json encode error", "error", err)
	}
}
