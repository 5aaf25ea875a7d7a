package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	apperrors "github.com/snapprint/snapprint/pkg/errors"

	"github.com/snapprint/snapprint/internal/domain"
	"github.com/snapprint/snapprint/internal/event"
	"github.com/snapprint/snapprint/internal/repository"
	"github.com/snapprint/snapprint/internal/storage"
)

// FilePayload is one binary part extracted from a submission request.
type FilePayload struct {
	Name        string
	ContentType string
	Size        int64
	Data        []byte
}

// IngestItemMeta is the client-declared metadata for one line item. Declared
// prices are recomputed server-side and never trusted.
type IngestItemMeta struct {
	FileName      string `json:"fileName"`
	FileSizeBytes int64  `json:"fileSizeBytes"`
	FileType      string `json:"fileType"`
	PrintSize     string `json:"printSize"`
	Quantity      int    `json:"quantity"`
	UnitPrice     int64  `json:"unitPrice"`
	LineTotal     int64  `json:"lineTotal"`
}

// IngestOrderInput holds one parsed submission. ItemFiles is positionally
// correlated with Items; a nil entry means the binary part for that index was
// absent from the request.
type IngestOrderInput struct {
	UserID    string
	Delivery  domain.DeliveryInfo
	Receipt   *FilePayload
	Items     []IngestItemMeta
	ItemFiles []*FilePayload
}

// OrderService implements order ingestion, retrieval and status transitions.
type OrderService struct {
	repo          repository.OrderRepository
	store         storage.Storage
	producer      *event.Producer
	logger        *slog.Logger
	uploadTimeout time.Duration
}

// NewOrderService creates a new order service. uploadTimeout bounds each
// individual object-storage upload.
func NewOrderService(repo repository.OrderRepository, store storage.Storage, producer *event.Producer, logger *slog.Logger, uploadTimeout time.Duration) *OrderService {
	if uploadTimeout <= 0 {
		uploadTimeout = 30 * time.Second
	}
	return &OrderService{
		repo:          repo,
		store:         store,
		producer:      producer,
		logger:        logger,
		uploadTimeout: uploadTimeout,
	}
}

// IngestOrder validates a submission, uploads every file to durable storage
// and persists one order with status pending. All-or-nothing: any upload
// failure aborts the whole ingestion and nothing is written. A retry
// re-uploads everything; there is no compensating cleanup step.
func (s *OrderService) IngestOrder(ctx context.Context, input IngestOrderInput) (*domain.Order, error) {
	if input.UserID == "" {
		return nil, apperrors.Unauthorized("missing caller identity")
	}
	if err := validateIngestInput(input); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	orderID := domain.NewOrderID(now)

	// Fan out the receipt and every item upload; wait for all of them.
	var receiptURL string
	itemURLs := make([]string, len(input.Items))

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		url, err := s.upload(gctx, fmt.Sprintf("%s/receipt_%s", orderID, input.Receipt.Name), input.Receipt)
		if err != nil {
			return fmt.Errorf("upload receipt: %w", err)
		}
		receiptURL = url
		return nil
	})

	for i := range input.Items {
		g.Go(func() error {
			f := input.ItemFiles[i]
			url, err := s.upload(gctx, fmt.Sprintf("%s/item_%d_%s", orderID, i, f.Name), f)
			if err != nil {
				return fmt.Errorf("upload item %d: %w", i, err)
			}
			itemURLs[i] = url
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, apperrors.UpstreamTimeout("file upload timed out", err)
		}
		return nil, apperrors.Upstream("file upload failed", err)
	}

	items := make([]domain.OrderItem, len(input.Items))
	for i, meta := range input.Items {
		items[i] = domain.OrderItem{
			ID:            uuid.New().String(),
			OrderID:       orderID,
			FileName:      meta.FileName,
			FileType:      meta.FileType,
			FileSizeBytes: meta.FileSizeBytes,
			FileURL:       itemURLs[i],
			PrintSize:     meta.PrintSize,
			Quantity:      meta.Quantity,
		}
	}

	order := &domain.Order{
		ID:           uuid.New().String(),
		OrderID:      orderID,
		UserID:       input.UserID,
		Status:       domain.OrderStatusPending,
		Items:        items,
		DeliveryInfo: input.Delivery,
		PaymentInfo: domain.PaymentInfo{
			ReceiptURL:  receiptURL,
			ReceiptName: input.Receipt.Name,
			ReceiptSize: input.Receipt.Size,
			PaymentDate: now,
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
	// Prices come from the server-side table, not from the client.
	order.Recalculate()

	if err := s.repo.Create(ctx, order); err != nil {
		return nil, fmt.Errorf("create order: %w", err)
	}

	if err := s.producer.PublishOrderCreated(ctx, order); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish order.created event",
			slog.String("order_id", order.OrderID),
			slog.String("error", err.Error()),
		)
		// Event publishing is best-effort; the order is already durable.
	}

	s.logger.InfoContext(ctx, "order ingested",
		slog.String("order_id", order.OrderID),
		slog.String("user_id", order.UserID),
		slog.Int("item_count", len(order.Items)),
		slog.Int64("total_amount", order.TotalAmount),
	)

	return order, nil
}

func validateIngestInput(input IngestOrderInput) error {
	d := input.Delivery
	switch {
	case d.FullName == "":
		return apperrors.InvalidInput("deliveryInfo.fullName is required")
	case d.Address == "":
		return apperrors.InvalidInput("deliveryInfo.address is required")
	case d.Contact1 == "":
		return apperrors.InvalidInput("deliveryInfo.contact1 is required")
	}

	if input.Receipt == nil || len(input.Receipt.Data) == 0 {
		return apperrors.InvalidInput("paymentReceipt is required")
	}
	if len(input.Items) == 0 {
		return apperrors.InvalidInput("order must contain at least one item")
	}

	for i, meta := range input.Items {
		if !domain.IsValidPrintSize(meta.PrintSize) {
			return apperrors.InvalidInput(fmt.Sprintf("item %d: unknown print size %q", i, meta.PrintSize))
		}
		if !domain.IsValidFileType(meta.FileType) {
			return apperrors.InvalidInput(fmt.Sprintf("item %d: unknown file type %q", i, meta.FileType))
		}
		if meta.Quantity < 1 {
			return apperrors.InvalidInput(fmt.Sprintf("item %d: quantity must be at least 1", i))
		}
	}

	// Every metadata entry needs its binary part, by position.
	for i := range input.Items {
		if i >= len(input.ItemFiles) || input.ItemFiles[i] == nil {
			return apperrors.Consistency(fmt.Sprintf("file for item %d is missing", i))
		}
	}
	if len(input.ItemFiles) > len(input.Items) {
		return apperrors.Consistency(fmt.Sprintf(
			"received %d file parts for %d items", len(input.ItemFiles), len(input.Items)))
	}

	return nil
}

func (s *OrderService) upload(ctx context.Context, key string, f *FilePayload) (string, error) {
	uctx, cancel := context.WithTimeout(ctx, s.uploadTimeout)
	defer cancel()

	result, err := s.store.Upload(uctx, &storage.UploadInput{
		Key:         key,
		ContentType: f.ContentType,
		Size:        int64(len(f.Data)),
		Data:        bytes.NewReader(f.Data),
	})
	if err != nil {
		return "", err
	}
	return result.URL, nil
}

// GetOrder retrieves an order by its reference.
func (s *OrderService) GetOrder(ctx context.Context, orderID string) (*domain.Order, error) {
	order, err := s.repo.GetByOrderID(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("get order: %w", err)
	}
	return order, nil
}

// ListOrders returns a filtered, paginated list of orders.
func (s *OrderService) ListOrders(ctx context.Context, filter repository.OrderFilter) ([]domain.Order, int, error) {
	if filter.Page <= 0 {
		filter.Page = 1
	}
	if filter.PerPage <= 0 {
		filter.PerPage = 20
	}
	if filter.PerPage > 100 {
		filter.PerPage = 100
	}

	orders, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("list orders: %w", err)
	}

	return orders, total, nil
}

// UpdateOrderStatus sets the order's status to any value of the known set.
// No predecessor relationship is enforced; operators may move an order
// between any two statuses. Setting the current status again is a valid
// no-op.
func (s *OrderService) UpdateOrderStatus(ctx context.Context, orderID, newStatus string) (*domain.Order, error) {
	if !domain.IsValidStatus(newStatus) {
		return nil, apperrors.InvalidInput(fmt.Sprintf(
			"invalid status %q, must be one of: %s", newStatus, strings.Join(domain.ValidStatuses(), ", ")))
	}

	order, err := s.repo.GetByOrderID(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("get order for status update: %w", err)
	}

	oldStatus := order.Status

	if err := s.repo.UpdateStatus(ctx, orderID, newStatus); err != nil {
		return nil, fmt.Errorf("update order status: %w", err)
	}

	if oldStatus != newStatus {
		if err := s.producer.PublishOrderStatusChanged(ctx, orderID, oldStatus, newStatus); err != nil {
			s.logger.ErrorContext(ctx, "failed to publish order.status_changed event",
				slog.String("order_id", orderID),
				slog.String("error", err.Error()),
			)
		}
	}

	s.logger.InfoContext(ctx, "order status updated",
		slog.String("order_id", orderID),
		slog.String("old_status", oldStatus),
		slog.String("new_status", newStatus),
	)

	order.Status = newStatus
	return order, nil
}
