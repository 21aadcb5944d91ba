package api

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/tendant/simple-publish/pkg/simplepublish"
)

// ThumbnailHandler serves generated thumbnails straight from the blob store,
// so memory and filesystem previews resolve to a fetchable URL.
type ThumbnailHandler struct {
	store simplepublish.BlobStore
}

// NewThumbnailHandler creates a handler over store
func NewThumbnailHandler(store simplepublish.BlobStore) *ThumbnailHandler {
	return &ThumbnailHandler{store: store}
}

// Routes returns the routes relative to the thumbnail URL prefix
func (h *ThumbnailHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/preview/*", h.Preview)
	return r
}

// Preview streams one stored thumbnail
func (h *ThumbnailHandler) Preview(w http.ResponseWriter, r *http.Request) {
	objectKey := chi.URLParam(r, "*")
	if objectKey == "" || strings.Contains(objectKey, "..") {
		writeJSONError(w, r, http.StatusBadRequest, "invalid_request", "invalid object key")
		return
	}

	meta, err := h.store.GetObjectMeta(r.Context(), objectKey)
	if err != nil {
		h.fail(w, r, objectKey, err)
		return
	}
	rc, err := h.store.Download(r.Context(), objectKey)
	if err != nil {
		h.fail(w, r, objectKey, err)
		return
	}
	defer rc.Close()

	if meta.ContentType != "" {
		w.Header().Set("Content-Type", meta.ContentType)
	}
	if meta.Size > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(meta.Size, 10))
	}
	w.Header().Set("Cache-Control", "private, max-age=300")

	if _, err := io.Copy(w, rc); err != nil {
		slog.Warn("Thumbnail copy failed", "key", objectKey, "error", err)
	}
}

func (h *ThumbnailHandler) fail(w http.ResponseWriter, r *http.Request, objectKey string, err error) {
	if errors.Is(err, simplepublish.ErrObjectNotFound) {
		writeJSONError(w, r, http.StatusNotFound, "not_found", "thumbnail not found")
		return
	}
	slog.Error("Thumbnail read failed", "key", objectKey, "request_id", RequestIDFromContext(r.Context()), "error", err)
	writeJSONError(w, r, http.StatusInternalServerError, "internal_error", "An internal server error occurred")
}
