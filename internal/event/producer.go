package event

import (
	"context"
	"fmt"
	"log/slog"

	pkgkafka "github.com/snapprint/snapprint/pkg/kafka"

	"github.com/snapprint/snapprint/internal/domain"
)

// Kafka topic constants for order domain events.
const (
	TopicOrderCreated       = "snapprint.order.created"
	TopicOrderStatusChanged = "snapprint.order.status_changed"
	TopicOrderBundleExport  = "snapprint.order.bundle_exported"
)

// Aggregate type constant.
const AggregateTypeOrder = "order"

// Source identifier for events originating from this service.
const SourceOrderService = "snapprint-server"

// OrderCreatedData is the payload for an order.created event.
type OrderCreatedData struct {
	OrderID     string              `json:"order_id"`
	UserID      string              `json:"user_id"`
	Status      string              `json:"status"`
	Items       []OrderItemData     `json:"items"`
	TotalAmount int64               `json:"total_amount"`
	Delivery    domain.DeliveryInfo `json:"delivery"`
}

// OrderItemData is the event payload for an order item.
type OrderItemData struct {
	ID        string `json:"id"`
	FileName  string `json:"file_name"`
	FileType  string `json:"file_type"`
	PrintSize string `json:"print_size"`
	Quantity  int    `json:"quantity"`
	LineTotal int64  `json:"line_total"`
}

// OrderStatusChangedData is the payload for an order.status_changed event.
type OrderStatusChangedData struct {
	OrderID   string `json:"order_id"`
	OldStatus string `json:"old_status"`
	NewStatus string `json:"new_status"`
}

// OrderBundleExportedData is the payload for an order.bundle_exported event.
type OrderBundleExportedData struct {
	OrderID    string `json:"order_id"`
	FileCount  int    `json:"file_count"`
	SkipCount  int    `json:"skip_count"`
	ArchiveLen int64  `json:"archive_len"`
}

// Producer publishes order domain events to Kafka.
type Producer struct {
	kafka  *pkgkafka.Producer
	logger *slog.Logger
}

// NewProducer creates a new event producer.
func NewProducer(kafka *pkgkafka.Producer, logger *slog.Logger) *Producer {
	return &Producer{kafka: kafka, logger: logger}
}

// PublishOrderCreated publishes an order.created event with the order
// snapshot. File URLs are deliberately left out of the payload; consumers
// fetch them through the API if they need the binaries.
func (p *Producer) PublishOrderCreated(ctx context.Context, order *domain.Order) error {
	items := make([]OrderItemData, len(order.Items))
	for i, item := range order.Items {
		items[i] = OrderItemData{
			ID:        item.ID,
			FileName:  item.FileName,
			FileType:  item.FileType,
			PrintSize: item.PrintSize,
			Quantity:  item.Quantity,
			LineTotal: item.LineTotal,
		}
	}

	data := OrderCreatedData{
		OrderID:     order.OrderID,
		UserID:      order.UserID,
		Status:      order.Status,
		Items:       items,
		TotalAmount: order.TotalAmount,
		Delivery:    order.DeliveryInfo,
	}

	event, err := pkgkafka.NewEvent(TopicOrderCreated, order.OrderID, AggregateTypeOrder, SourceOrderService, data)
	if err != nil {
		return fmt.Errorf("create order.created event: %w", err)
	}

	if err := p.kafka.Publish(ctx, TopicOrderCreated, event); err != nil {
		return fmt.Errorf("publish order.created event: %w", err)
	}

	p.logger.DebugContext(ctx, "published order.created event",
		slog.String("order_id", order.OrderID),
		slog.String("user_id", order.UserID),
	)

	return nil
}

// PublishOrderStatusChanged publishes an order.status_changed event.
func (p *Producer) PublishOrderStatusChanged(ctx context.Context, orderID, oldStatus, newStatus string) error {
	data := OrderStatusChangedData{
		OrderID:   orderID,
		OldStatus: oldStatus,
		NewStatus: newStatus,
	}

	event, err := pkgkafka.NewEvent(TopicOrderStatusChanged, orderID, AggregateTypeOrder, SourceOrderService, data)
	if err != nil {
		return fmt.Errorf("create order.status_changed event: %w", err)
	}

	if err := p.kafka.Publish(ctx, TopicOrderStatusChanged, event); err != nil {
		return fmt.Errorf("publish order.status_changed event: %w", err)
	}

	p.logger.DebugContext(ctx, "published order.status_changed event",
		slog.String("order_id", orderID),
		slog.String("old_status", oldStatus),
		slog.String("new_status", newStatus),
	)

	return nil
}

// PublishBundleExported publishes an order.bundle_exported event.
func (p *Producer) PublishBundleExported(ctx context.Context, data OrderBundleExportedData) error {
	event, err := pkgkafka.NewEvent(TopicOrderBundleExport, data.OrderID, AggregateTypeOrder, SourceOrderService, data)
	if err != nil {
		return fmt.Errorf("create order.bundle_exported event: %w", err)
	}

	if err := p.kafka.Publish(ctx, TopicOrderBundleExport, event); err != nil {
		return fmt.Errorf("publish order.bundle_exported event: %w", err)
	}

	return nil
}
