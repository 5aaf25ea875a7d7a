package http

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/snapprint/snapprint/pkg/httputil"

	"github.com/snapprint/snapprint/internal/service"
)

// BundleHandler serves zip exports of an order's uploaded files.
type BundleHandler struct {
	service *service.BundleService
	logger  *slog.Logger
}

// NewBundleHandler creates a new bundle HTTP handler.
func NewBundleHandler(svc *service.BundleService, logger *slog.Logger) *BundleHandler {
	return &BundleHandler{service: svc, logger: logger}
}

// ExportBundle handles GET /api/v1/orders/{orderId}/bundle
func (h *BundleHandler) ExportBundle(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "orderId")

	bundle, err := h.service.ExportBundle(r.Context(), orderID)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", bundle.FileName))
	w.Header().Set("Content-Length", strconv.Itoa(len(bundle.Data)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(bundle.Data)
}
