package cart

import (
	"time"

	"github.com/snapprint/snapprint/internal/domain"
)

// Stage identifies a step of the checkout flow.
type Stage string

// Checkout stages, in order.
const (
	StageDelivery     Stage = "delivery"
	StagePayment      Stage = "payment"
	StageConfirmation Stage = "confirmation"
)

// Receipt is the payment receipt captured during checkout.
type Receipt struct {
	Payload    Payload
	FileName   string
	CapturedAt time.Time
}

// Checkout sequences delivery-info capture, payment-receipt capture and
// confirmation. Stage advancement is gated purely on the completeness flags,
// never on which screen is rendered, so a customer cannot skip a step by
// navigating directly.
type Checkout struct {
	stage            Stage
	delivery         domain.DeliveryInfo
	receipt          *Receipt
	deliveryComplete bool
	paymentComplete  bool
	orderID          string
	confirmedAt      time.Time

	now func() time.Time
}

// NewCheckout creates a checkout flow at the delivery stage.
func NewCheckout() *Checkout {
	return &Checkout{stage: StageDelivery, now: time.Now}
}

// Stage returns the current stage.
func (c *Checkout) Stage() Stage {
	return c.stage
}

// SetDeliveryInfo stores the recipient details. The stage is complete when
// full name, address and primary contact are all non-empty; no further format
// validation happens at this layer.
func (c *Checkout) SetDeliveryInfo(info domain.DeliveryInfo) {
	c.delivery = info
	c.deliveryComplete = info.FullName != "" && info.Address != "" && info.Contact1 != ""
}

// DeliveryInfo returns the captured recipient details.
func (c *Checkout) DeliveryInfo() domain.DeliveryInfo {
	return c.delivery
}

// IsDeliveryInfoComplete reports whether the delivery stage is complete.
func (c *Checkout) IsDeliveryInfoComplete() bool {
	return c.deliveryComplete
}

// SetPaymentInfo stores the uploaded receipt and marks the payment stage
// complete.
func (c *Checkout) SetPaymentInfo(r Receipt) {
	if r.CapturedAt.IsZero() {
		r.CapturedAt = c.now()
	}
	c.receipt = &r
	c.paymentComplete = true
}

// Receipt returns the captured payment receipt, or nil.
func (c *Checkout) Receipt() *Receipt {
	return c.receipt
}

// IsPaymentInfoComplete reports whether the payment stage is complete.
func (c *Checkout) IsPaymentInfoComplete() bool {
	return c.paymentComplete
}

// Advance moves the flow to the next stage when the current stage is
// complete. Incomplete stages make it a no-op.
func (c *Checkout) Advance() {
	switch c.stage {
	case StageDelivery:
		if c.deliveryComplete {
			c.stage = StagePayment
		}
	case StagePayment:
		if c.paymentComplete {
			c.stage = StageConfirmation
		}
	}
}

// Back moves the flow one stage back. At the delivery stage it is a no-op.
func (c *Checkout) Back() {
	switch c.stage {
	case StagePayment:
		c.stage = StageDelivery
	case StageConfirmation:
		c.stage = StagePayment
	}
}

// Confirm assigns the order identifier and confirmation timestamp. It is
// idempotent: repeated calls return the identifier assigned first, so a
// re-render never regenerates it.
func (c *Checkout) Confirm() string {
	if c.orderID == "" {
		now := c.now()
		c.orderID = domain.NewOrderID(now)
		c.confirmedAt = now
	}
	return c.orderID
}

// OrderID returns the assigned order identifier, empty before Confirm.
func (c *Checkout) OrderID() string {
	return c.orderID
}

// ConfirmedAt returns the confirmation timestamp, zero before Confirm.
func (c *Checkout) ConfirmedAt() time.Time {
	return c.confirmedAt
}

// Reset returns the flow to its initial empty state. Called after a
// successful submission or when the customer restarts.
func (c *Checkout) Reset() {
	*c = Checkout{stage: StageDelivery, now: c.now}
}
