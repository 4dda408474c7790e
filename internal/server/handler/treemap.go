package handler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/indexlab/internal/domain"
)

// TreemapReader is what the treemap endpoints need from the service layer.
type TreemapReader interface {
	ListPages(ctx context.Context, backend domain.StorageBackend) ([]string, error)
	ListMetadata(ctx context.Context, backend domain.StorageBackend) ([]domain.TreemapMetadata, error)
	OpenPage(ctx context.Context, backend domain.StorageBackend, name string) (io.ReadCloser, error)
}

// TreemapHandler serves treemap listings and pages.
type TreemapHandler struct {
	treemaps TreemapReader
	backend  domain.StorageBackend
	logger   *slog.Logger
}

// NewTreemapHandler creates a TreemapHandler. backend is used when a request
// names no storage.
func NewTreemapHandler(treemaps TreemapReader, backend domain.StorageBackend, logger *slog.Logger) *TreemapHandler {
	return &TreemapHandler{treemaps: treemaps, backend: backend, logger: logHandler(logger, "treemap")}
}

func (h *TreemapHandler) fail(w http.ResponseWriter, r *http.Request, err error, what string) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, what+" not found")
	case errors.Is(err, domain.ErrNoStorage):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	default:
		h.logger.ErrorContext(r.Context(), what+" failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, what+" failed")
	}
}

// ListPages returns treemap page names, newest first.
// GET /api/treemaps?storage=local|s3
func (h *TreemapHandler) ListPages(w http.ResponseWriter, r *http.Request) {
	backend, err := storageParam(r, h.backend)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	pages, err := h.treemaps.ListPages(r.Context(), backend)
	if err != nil {
		h.fail(w, r, err, "list treemaps")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"storage": backend, "files": pages})
}

// ListMetadata returns every metadata record, oldest first.
// GET /api/treemaps/metadata?storage=local|s3
func (h *TreemapHandler) ListMetadata(w http.ResponseWriter, r *http.Request) {
	backend, err := storageParam(r, h.backend)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	metas, err := h.treemaps.ListMetadata(r.Context(), backend)
	if err != nil {
		h.fail(w, r, err, "list metadata")
		return
	}
	writeJSON(w, http.StatusOK, metas)
}

// Page streams a stored treemap page.
// GET /treemaps/{file}?storage=local|s3
func (h *TreemapHandler) Page(w http.ResponseWriter, r *http.Request) {
	backend, err := storageParam(r, h.backend)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	rc, err := h.treemaps.OpenPage(r.Context(), backend, r.PathValue("file"))
	if err != nil {
		h.fail(w, r, err, "treemap")
		return
	}
	defer rc.Close()

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, rc); err != nil {
		h.logger.WarnContext(r.Context(), "stream treemap failed", slog.String("error", err.Error()))
	}
}
