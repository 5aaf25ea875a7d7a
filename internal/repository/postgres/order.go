package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/snapprint/snapprint/pkg/database"
	apperrors "github.com/snapprint/snapprint/pkg/errors"

	"github.com/snapprint/snapprint/internal/domain"
	"github.com/snapprint/snapprint/internal/repository"
)

// OrderRepository implements repository.OrderRepository using PostgreSQL.
type OrderRepository struct {
	pool database.DBTX
}

// NewOrderRepository creates a new PostgreSQL-backed order repository.
func NewOrderRepository(pool database.DBTX) *OrderRepository {
	return &OrderRepository{pool: pool}
}

// Create inserts a new order and its items atomically within a transaction.
// Item position preserves submission order so bundles and listings keep the
// customer's ordering.
func (r *OrderRepository) Create(ctx context.Context, o *domain.Order) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	deliveryJSON, err := json.Marshal(o.DeliveryInfo)
	if err != nil {
		return fmt.Errorf("marshal delivery info: %w", err)
	}
	paymentJSON, err := json.Marshal(o.PaymentInfo)
	if err != nil {
		return fmt.Errorf("marshal payment info: %w", err)
	}

	orderQuery := `
		INSERT INTO orders (id, order_id, user_id, status, total_amount, delivery_info, payment_info, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err = tx.Exec(ctx, orderQuery,
		o.ID,
		o.OrderID,
		o.UserID,
		o.Status,
		o.TotalAmount,
		deliveryJSON,
		paymentJSON,
		o.CreatedAt,
		o.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}

	itemQuery := `
		INSERT INTO order_items (id, order_id, position, file_name, file_type, file_size_bytes, file_url, print_size, quantity, unit_price, line_total)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	for i, item := range o.Items {
		_, err = tx.Exec(ctx, itemQuery,
			item.ID,
			o.OrderID,
			i,
			item.FileName,
			item.FileType,
			item.FileSizeBytes,
			item.FileURL,
			item.PrintSize,
			item.Quantity,
			item.UnitPrice,
			item.LineTotal,
		)
		if err != nil {
			return fmt.Errorf("insert order item: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}

	return nil
}

// GetByOrderID retrieves an order by its reference, eagerly loading items.
func (r *OrderRepository) GetByOrderID(ctx context.Context, orderID string) (*domain.Order, error) {
	query := `
		SELECT id, order_id, user_id, status, total_amount, delivery_info, payment_info, created_at, updated_at
		FROM orders
		WHERE order_id = $1`

	o, err := scanOrder(r.pool.QueryRow(ctx, query, orderID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NotFound("order", orderID)
		}
		return nil, err
	}

	items, err := r.loadItems(ctx, orderID)
	if err != nil {
		return nil, err
	}
	o.Items = items

	return o, nil
}

// List returns orders matching the given filter with the total count.
func (r *OrderRepository) List(ctx context.Context, filter repository.OrderFilter) ([]domain.Order, int, error) {
	var (
		conditions []string
		args       []any
		argIndex   = 1
	)

	if filter.UserID != nil {
		conditions = append(conditions, fmt.Sprintf("user_id = $%d", argIndex))
		args = append(args, *filter.UserID)
		argIndex++
	}

	if filter.Status != nil {
		conditions = append(conditions, fmt.Sprintf("status = $%d", argIndex))
		args = append(args, *filter.Status)
		argIndex++
	}

	if filter.Search != nil {
		conditions = append(conditions, fmt.Sprintf(
			"(order_id ILIKE $%d OR delivery_info->>'full_name' ILIKE $%d OR delivery_info->>'contact1' ILIKE $%d)",
			argIndex, argIndex, argIndex))
		args = append(args, "%"+*filter.Search+"%")
		argIndex++
	}

	if filter.CreatedDate != nil {
		// match the calendar day of the given timestamp, in its own location
		d := *filter.CreatedDate
		dayStart := time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, d.Location())
		conditions = append(conditions, fmt.Sprintf("created_at >= $%d AND created_at < $%d", argIndex, argIndex+1))
		args = append(args, dayStart, dayStart.AddDate(0, 0, 1))
		argIndex += 2
	}

	whereClause := ""
	if len(conditions) > 0 {
		whereClause = "WHERE " + strings.Join(conditions, " AND ")
	}

	query := fmt.Sprintf(`
		SELECT id, order_id, user_id, status, total_amount, delivery_info, payment_info, created_at, updated_at,
			   count(*) OVER() AS total_count
		FROM orders
		%s
		ORDER BY created_at DESC
		LIMIT $%d OFFSET $%d`,
		whereClause, argIndex, argIndex+1,
	)

	limit := filter.PerPage
	if limit <= 0 {
		limit = 20
	}
	offset := 0
	if filter.Page > 1 {
		offset = (filter.Page - 1) * limit
	}

	args = append(args, limit, offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	var totalCount int
	orders := make([]domain.Order, 0)

	for rows.Next() {
		var (
			o            domain.Order
			deliveryJSON []byte
			paymentJSON  []byte
		)
		if err := rows.Scan(
			&o.ID,
			&o.OrderID,
			&o.UserID,
			&o.Status,
			&o.TotalAmount,
			&deliveryJSON,
			&paymentJSON,
			&o.CreatedAt,
			&o.UpdatedAt,
			&totalCount,
		); err != nil {
			return nil, 0, fmt.Errorf("scan order row: %w", err)
		}
		if err := unmarshalInfo(&o, deliveryJSON, paymentJSON); err != nil {
			return nil, 0, err
		}
		orders = append(orders, o)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate order rows: %w", err)
	}

	// Batch-load items for all returned orders in a single query.
	if len(orders) > 0 {
		orderIDs := make([]string, len(orders))
		for i := range orders {
			orderIDs[i] = orders[i].OrderID
		}

		itemsQuery := `
			SELECT id, order_id, file_name, file_type, file_size_bytes, file_url, print_size, quantity, unit_price, line_total
			FROM order_items
			WHERE order_id = ANY($1)
			ORDER BY order_id, position`

		itemRows, err := r.pool.Query(ctx, itemsQuery, orderIDs)
		if err != nil {
			return nil, 0, fmt.Errorf("batch load order items: %w", err)
		}
		defer itemRows.Close()

		itemsByOrder := make(map[string][]domain.OrderItem, len(orders))
		for itemRows.Next() {
			item, err := scanItem(itemRows)
			if err != nil {
				return nil, 0, err
			}
			itemsByOrder[item.OrderID] = append(itemsByOrder[item.OrderID], item)
		}
		if err := itemRows.Err(); err != nil {
			return nil, 0, fmt.Errorf("iterate order item rows: %w", err)
		}

		for i := range orders {
			if items, ok := itemsByOrder[orders[i].OrderID]; ok {
				orders[i].Items = items
			} else {
				orders[i].Items = []domain.OrderItem{}
			}
		}
	}

	return orders, totalCount, nil
}

// UpdateStatus overwrites the status of an order by its reference.
func (r *OrderRepository) UpdateStatus(ctx context.Context, orderID, status string) error {
	query := `
		UPDATE orders
		SET status = $1, updated_at = $2
		WHERE order_id = $3`

	ct, err := r.pool.Exec(ctx, query, status, time.Now().UTC(), orderID)
	if err != nil {
		return fmt.Errorf("update order status: %w", err)
	}

	if ct.RowsAffected() == 0 {
		return apperrors.NotFound("order", orderID)
	}

	return nil
}

func (r *OrderRepository) loadItems(ctx context.Context, orderID string) ([]domain.OrderItem, error) {
	query := `
		SELECT id, order_id, file_name, file_type, file_size_bytes, file_url, print_size, quantity, unit_price, line_total
		FROM order_items
		WHERE order_id = $1
		ORDER BY position`

	rows, err := r.pool.Query(ctx, query, orderID)
	if err != nil {
		return nil, fmt.Errorf("query order items: %w", err)
	}
	defer rows.Close()

	items := make([]domain.OrderItem, 0)
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate order item rows: %w", err)
	}

	return items, nil
}

func scanOrder(row pgx.Row) (*domain.Order, error) {
	var (
		o            domain.Order
		deliveryJSON []byte
		paymentJSON  []byte
	)
	err := row.Scan(
		&o.ID,
		&o.OrderID,
		&o.UserID,
		&o.Status,
		&o.TotalAmount,
		&deliveryJSON,
		&paymentJSON,
		&o.CreatedAt,
		&o.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := unmarshalInfo(&o, deliveryJSON, paymentJSON); err != nil {
		return nil, err
	}
	return &o, nil
}

func scanItem(rows pgx.Rows) (domain.OrderItem, error) {
	var item domain.OrderItem
	if err := rows.Scan(
		&item.ID,
		&item.OrderID,
		&item.FileName,
		&item.FileType,
		&item.FileSizeBytes,
		&item.FileURL,
		&item.PrintSize,
		&item.Quantity,
		&item.UnitPrice,
		&item.LineTotal,
	); err != nil {
		return domain.OrderItem{}, fmt.Errorf("scan order item: %w", err)
	}
	return item, nil
}

func unmarshalInfo(o *domain.Order, deliveryJSON, paymentJSON []byte) error {
	if len(deliveryJSON) > 0 {
		if err := json.Unmarshal(deliveryJSON, &o.DeliveryInfo); err != nil {
			return fmt.Errorf("unmarshal delivery info: %w", err)
		}
	}
	if len(paymentJSON) > 0 {
		if err := json.Unmarshal(paymentJSON, &o.PaymentInfo); err != nil {
			return fmt.Errorf("unmarshal payment info: %w", err)
		}
	}
	return nil
}
