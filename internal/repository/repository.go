package repository

import (
	"context"
	"time"

	"github.com/snapprint/snapprint/internal/domain"
)

// OrderFilter defines filter criteria for listing orders.
type OrderFilter struct {
	// UserID restricts results to one owner.
	UserID *string

	// Status restricts results to one lifecycle status.
	Status *string

	// Search matches the order reference, recipient name or primary contact,
	// case-insensitively.
	Search *string

	// CreatedDate restricts results to orders created on this calendar day,
	// in the server's reference timezone.
	CreatedDate *time.Time

	Page    int
	PerPage int
}

// OrderRepository defines the interface for order persistence operations.
type OrderRepository interface {
	// Create inserts a new order and its items atomically.
	Create(ctx context.Context, order *domain.Order) error

	// GetByOrderID retrieves an order by its human-readable reference,
	// including items in submission order.
	GetByOrderID(ctx context.Context, orderID string) (*domain.Order, error)

	// List returns orders matching the given filter along with the total
	// count.
	List(ctx context.Context, filter OrderFilter) ([]domain.Order, int, error)

	// UpdateStatus overwrites the status of an order. Writing the status the
	// order already has is a valid no-op.
	UpdateStatus(ctx context.Context, orderID, status string) error
}
