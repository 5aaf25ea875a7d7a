package http

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	apperrors "github.com/snapprint/snapprint/pkg/errors"
	"github.com/snapprint/snapprint/pkg/httputil"
	"github.com/snapprint/snapprint/pkg/middleware"
	"github.com/snapprint/snapprint/pkg/pagination"
	"github.com/snapprint/snapprint/pkg/validator"

	"github.com/snapprint/snapprint/internal/cart"
	"github.com/snapprint/snapprint/internal/domain"
	"github.com/snapprint/snapprint/internal/repository"
	"github.com/snapprint/snapprint/internal/service"
)

// maxSubmissionBytes caps a whole multipart submission.
const maxSubmissionBytes = 64 << 20

// OrderHandler handles HTTP requests for order endpoints.
type OrderHandler struct {
	service *service.OrderService
	logger  *slog.Logger
}

// NewOrderHandler creates a new order HTTP handler.
func NewOrderHandler(svc *service.OrderService, logger *slog.Logger) *OrderHandler {
	return &OrderHandler{service: svc, logger: logger}
}

// UpdateStatusRequest is the JSON request body for updating order status.
type UpdateStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=pending payment_verified processing delivered cancelled"`
}

// SubmitOrderResponse is the JSON payload returned on successful ingestion.
type SubmitOrderResponse struct {
	OrderID     string    `json:"orderId"`
	OrderDate   time.Time `json:"orderDate"`
	TotalAmount int64     `json:"totalAmount"`
}

// SubmitOrder handles POST /api/v1/orders. The body is the multipart
// submission produced by the cart assembler.
func (h *OrderHandler) SubmitOrder(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxSubmissionBytes)

	if err := r.ParseMultipartForm(maxSubmissionBytes); err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.Response{
			Error: &httputil.ErrorResponse{Code: "INVALID_INPUT", Message: "invalid multipart body: " + err.Error()},
		})
		return
	}
	defer r.MultipartForm.RemoveAll()

	input, err := parseSubmission(r)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	input.UserID = middleware.UserIDFromContext(r.Context())

	order, err := h.service.IngestOrder(r.Context(), *input)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusCreated, httputil.Response{Data: SubmitOrderResponse{
		OrderID:     order.OrderID,
		OrderDate:   order.CreatedAt,
		TotalAmount: order.TotalAmount,
	}})
}

// parseSubmission extracts the delivery fields, receipt, item metadata and
// positionally named binary parts from a parsed multipart form.
func parseSubmission(r *http.Request) (*service.IngestOrderInput, error) {
	input := &service.IngestOrderInput{
		Delivery: domain.DeliveryInfo{
			FullName: r.FormValue(cart.FieldFullName),
			Address:  r.FormValue(cart.FieldAddress),
			Contact1: r.FormValue(cart.FieldContact1),
			Contact2: r.FormValue(cart.FieldContact2),
		},
	}

	if receipt, err := readFilePart(r, cart.FieldPaymentReceipt); err == nil {
		input.Receipt = receipt
	}

	itemsJSON := r.FormValue(cart.FieldItems)
	if itemsJSON != "" {
		if err := json.Unmarshal([]byte(itemsJSON), &input.Items); err != nil {
			return nil, apperrors.InvalidInput("items field is not a valid metadata array: " + err.Error())
		}
	}

	// Collect itemPayload_<index> parts. Unparseable suffixes and gaps are
	// left as nil entries for the service's consistency check to reject.
	// Indexes come from the client and never size an allocation: anything
	// outside the declared item range is rejected outright.
	count := len(input.Items)
	for name := range r.MultipartForm.File {
		if !strings.HasPrefix(name, cart.FieldItemPrefix) {
			continue
		}
		var idx int
		if _, err := fmt.Sscanf(name, cart.FieldItemPrefix+"%d", &idx); err != nil || idx < 0 {
			continue
		}
		if idx >= count {
			return nil, apperrors.Consistency(fmt.Sprintf("unexpected file part %q", name))
		}
	}

	input.ItemFiles = make([]*service.FilePayload, count)
	for i := 0; i < count; i++ {
		f, err := readFilePart(r, fmt.Sprintf("%s%d", cart.FieldItemPrefix, i))
		if err != nil {
			continue
		}
		input.ItemFiles[i] = f
	}

	return input, nil
}

func readFilePart(r *http.Request, field string) (*service.FilePayload, error) {
	file, header, err := r.FormFile(field)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("read part %s: %w", field, err)
	}

	return &service.FilePayload{
		Name:        header.Filename,
		ContentType: partContentType(header),
		Size:        header.Size,
		Data:        data,
	}, nil
}

func partContentType(header *multipart.FileHeader) string {
	if ct := header.Header.Get("Content-Type"); ct != "" {
		return ct
	}
	return "application/octet-stream"
}

// ListOrders handles GET /api/v1/orders
func (h *OrderHandler) ListOrders(w http.ResponseWriter, r *http.Request) {
	filter, err := filterFromQuery(r)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	h.writeOrderPage(w, r, *filter)
}

// ListMyOrders handles GET /api/v1/orders/my. It serves only the caller's
// own orders regardless of any user_id query parameter.
func (h *OrderHandler) ListMyOrders(w http.ResponseWriter, r *http.Request) {
	filter, err := filterFromQuery(r)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	userID := middleware.UserIDFromContext(r.Context())
	filter.UserID = &userID

	h.writeOrderPage(w, r, *filter)
}

func (h *OrderHandler) writeOrderPage(w http.ResponseWriter, r *http.Request, filter repository.OrderFilter) {
	orders, total, err := h.service.ListOrders(r.Context(), filter)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	params := pagination.Params{Page: filter.Page, PerPage: filter.PerPage}
	httputil.WriteJSON(w, http.StatusOK, pagination.NewResult(orders, total, params))
}

func filterFromQuery(r *http.Request) (*repository.OrderFilter, error) {
	params := pagination.FromRequest(r)
	filter := repository.OrderFilter{Page: params.Page, PerPage: params.PerPage}

	q := r.URL.Query()
	if v := q.Get("user_id"); v != "" {
		filter.UserID = &v
	}
	if v := q.Get("status"); v != "" {
		if !domain.IsValidStatus(v) {
			return nil, apperrors.InvalidInput(fmt.Sprintf("unknown status %q", v))
		}
		filter.Status = &v
	}
	if v := q.Get("search"); v != "" {
		filter.Search = &v
	}
	if v := q.Get("created_date"); v != "" {
		day, err := time.ParseInLocation("2006-01-02", v, time.Local)
		if err != nil {
			return nil, apperrors.InvalidInput("created_date must be YYYY-MM-DD")
		}
		filter.CreatedDate = &day
	}

	return &filter, nil
}

// GetOrder handles GET /api/v1/orders/{orderId}
func (h *OrderHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "orderId")

	order, err := h.service.GetOrder(r.Context(), orderID)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: order})
}

// UpdateOrderStatus handles PUT /api/v1/orders/{orderId}/status
func (h *OrderHandler) UpdateOrderStatus(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "orderId")

	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)

	var req UpdateStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.Response{
			Error: &httputil.ErrorResponse{Code: "INVALID_INPUT", Message: "invalid request body: " + err.Error()},
		})
		return
	}

	if err := validator.Validate(req); err != nil {
		httputil.WriteValidationError(w, err)
		return
	}

	order, err := h.service.UpdateOrderStatus(r.Context(), orderID, req.Status)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: order})
}
