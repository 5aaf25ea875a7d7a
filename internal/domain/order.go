package domain

import (
	"fmt"
	"time"
)

// Order status constants. The lifecycle is deliberately open: back-office
// operators may move an order between any two statuses, including reviving a
// cancelled order.
const (
	OrderStatusPending         = "pending"
	OrderStatusPaymentVerified = "payment_verified"
	OrderStatusProcessing      = "processing"
	OrderStatusDelivered       = "delivered"
	OrderStatusCancelled       = "cancelled"
)

// Order represents a submitted print order.
type Order struct {
	ID           string       `json:"id"`
	OrderID      string       `json:"order_id"`
	UserID       string       `json:"user_id"`
	Status       string       `json:"status"`
	Items        []OrderItem  `json:"items"`
	TotalAmount  int64        `json:"total_amount"`
	DeliveryInfo DeliveryInfo `json:"delivery_info"`
	PaymentInfo  PaymentInfo  `json:"payment_info"`
	CreatedAt    time.Time    `json:"created_at"`
	UpdatedAt    time.Time    `json:"updated_at"`
}

// DeliveryInfo holds the recipient details captured at checkout.
type DeliveryInfo struct {
	FullName string `json:"full_name"`
	Address  string `json:"address"`
	Contact1 string `json:"contact1"`
	Contact2 string `json:"contact2,omitempty"`
}

// PaymentInfo is the snapshot of the payment captured at ingestion: the
// stored receipt reference and the server-side payment timestamp.
type PaymentInfo struct {
	ReceiptURL  string    `json:"receipt_url"`
	ReceiptName string    `json:"receipt_name"`
	ReceiptSize int64     `json:"receipt_size"`
	PaymentDate time.Time `json:"payment_date"`
}

// ValidStatuses returns all valid order statuses.
func ValidStatuses() []string {
	return []string{
		OrderStatusPending,
		OrderStatusPaymentVerified,
		OrderStatusProcessing,
		OrderStatusDelivered,
		OrderStatusCancelled,
	}
}

// IsValidStatus checks if a status string is valid.
func IsValidStatus(status string) bool {
	for _, s := range ValidStatuses() {
		if s == status {
			return true
		}
	}
	return false
}

// NewOrderID generates a human-readable order reference from the current
// time. Millisecond precision keeps it unique for any realistic submission
// rate from a single storefront.
func NewOrderID(now time.Time) string {
	return fmt.Sprintf("ORD-%d", now.UnixMilli())
}

// Recalculate rederives every line total and the order total from the item
// quantities and unit prices.
func (o *Order) Recalculate() {
	var total int64
	for i := range o.Items {
		o.Items[i].UnitPrice = PriceFor(o.Items[i].PrintSize)
		o.Items[i].LineTotal = o.Items[i].UnitPrice * int64(o.Items[i].Quantity)
		total += o.Items[i].LineTotal
	}
	o.TotalAmount = total
}
