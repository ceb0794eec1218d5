package server

import (
	"context"
	"net/http"
	"os"

	"github.com/charmbracelet/log"
)

// ArtworkStore opens cached artwork by handle. [assets.Cache] implements it.
type ArtworkStore interface {
	Open(ctx context.Context, handle string) (*os.File, error)
}

// ArtHandler streams cached artwork files.
//
// Files are served with [http.ServeContent] straight from disk, so range and conditional
// requests work and no image is ever buffered in memory.
type ArtHandler struct {
	store  ArtworkStore
	logger *log.Logger
}

// NewArtHandler creates an artwork handler.
func NewArtHandler(store ArtworkStore, logger *log.Logger) *ArtHandler {
	return &ArtHandler{store: store, logger: logger}
}

// Routes returns the HTTP routes this handler serves.
func (h *ArtHandler) Routes() []string {
	return []string{"GET /art/{handle}"}
}

// ServeHTTP fetches the artwork on first use and streams the file.
func (h *ArtHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	handle := r.PathValue("handle")

	f, err := h.store.Open(r.Context(), handle)
	if err != nil {
		status := StatusFor(err)
		h.logger.Debug("artwork unavailable", "handle", handle, "status", status, "error", err)
		writeError(w, status, err.Error())
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	w.Header().Set("Cache-Control", "public, max-age=604800, immutable")
	http.ServeContent(w, r, handle, info.ModTime(), f)
}
