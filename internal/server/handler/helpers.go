package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/indexlab/internal/blob"
	"github.com/alanyoungcy/indexlab/internal/domain"
)

// writeJSON marshals v and writes it with the given status. A marshal
// failure becomes a plain 500.
func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	w.Write(data)
}

// writeError sends {"error": msg}.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// storageParam reads ?storage=local|s3, falling back to def.
func storageParam(r *http.Request, def domain.StorageBackend) (domain.StorageBackend, error) {
	return blob.ParseBackend(r.URL.Query().Get("storage"), def)
}

func logHandler(logger *slog.Logger, handler string) *slog.Logger {
	return logger.With(slog.String("handler", handler))
}
