package utils

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
)

func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	err := json.NewEncoder(w).Encode(v)
	if err != nil {
		slog.Error("failed to write JSON", "error", err)
	}
}

func WriteError(w http.ResponseWriter, status int, msg string) {
	WriteJSON(w, status, map[string]any{
		"error":   http.StatusText(status),
		"message": msg,
	})
}

// QueryInt reads a positive integer query parameter, falling back to def when absent.
// ok is false when the value is present but not a positive integer.
func QueryInt(r *http.Request, key string, def, max int) (n int, ok bool) {
	s := strings.TrimSpace(r.URL.Query().Get(key))
	if s == "" {
		return def, true
	}
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return 0, false
	}
	if max > 0 && n > max {
		n = max
	}
	return n, true
}
