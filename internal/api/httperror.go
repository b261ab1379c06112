package api

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// httpError writes a JSON error response with the given status and code.
func httpError(w http.ResponseWriter, status int, code string, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]string{
			"code":    code,
			"message": fmt.Sprintf(format, args...),
		},
	})
}

// stageError writes the 200-with-error-body shape the piecewise stage
// endpoints use: stage failures are reported as data, not HTTP failures,
// so the service stays available for the next invocation.
func stageError(w http.ResponseWriter, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"error": fmt.Sprintf(format, args...),
	})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}
