package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// FileReader is the read side of a servable object store.
type FileReader interface {
	Get(key string) (data []byte, contentType string, ok bool)
}

// FileHandler serves stored objects under /files/*. In production the storage
// provider serves objects from its own domain and this route goes unused.
type FileHandler struct {
	store FileReader
}

// NewFileHandler creates a handler serving objects from the given store.
func NewFileHandler(store FileReader) *FileHandler {
	return &FileHandler{store: store}
}

// ServeFile handles GET /files/*
func (h *FileHandler) ServeFile(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "*")

	data, contentType, ok := h.store.Get(key)
	if !ok {
		http.NotFound(w, r)
		return
	}

	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}
