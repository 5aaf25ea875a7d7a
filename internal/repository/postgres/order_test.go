package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/snapprint/snapprint/pkg/database"
	apperrors "github.com/snapprint/snapprint/pkg/errors"

	"github.com/snapprint/snapprint/internal/domain"
	"github.com/snapprint/snapprint/internal/repository"
)

func newTestRepo(t *testing.T) (*OrderRepository, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := database.NewMockPool()
	require.NoError(t, err)
	repo := NewOrderRepository(mock)
	return repo, mock
}

func sampleOrder() *domain.Order {
	now := time.Now().UTC().Truncate(time.Microsecond)
	return &domain.Order{
		ID:          "3f1d3c1e-0000-4000-8000-000000000001",
		OrderID:     "ORD-1724900000123",
		UserID:      "user-001",
		Status:      domain.OrderStatusPending,
		TotalAmount: 1000,
		DeliveryInfo: domain.DeliveryInfo{
			FullName: "Jody Perera",
			Address:  "12 Lake Rd, Colombo",
			Contact1: "0771234567",
		},
		PaymentInfo: domain.PaymentInfo{
			ReceiptURL:  "https://files.example.com/files/receipt-1",
			ReceiptName: "slip.png",
			ReceiptSize: 512,
			PaymentDate: now,
		},
		CreatedAt: now,
		UpdatedAt: now,
		Items: []domain.OrderItem{
			{
				ID:            "item-001",
				OrderID:       "ORD-1724900000123",
				FileName:      "beach.jpg",
				FileType:      domain.FileTypeImage,
				FileSizeBytes: 2048,
				FileURL:       "https://files.example.com/files/item-0",
				PrintSize:     domain.PrintSizeSmall,
				Quantity:      3,
				UnitPrice:     200,
				LineTotal:     600,
			},
			{
				ID:            "item-002",
				OrderID:       "ORD-1724900000123",
				FileName:      "thesis.pdf",
				FileType:      domain.FileTypeDocument,
				FileSizeBytes: 4096,
				FileURL:       "https://files.example.com/files/item-1",
				PrintSize:     domain.PrintSizeLarge,
				Quantity:      1,
				UnitPrice:     400,
				LineTotal:     400,
			},
		},
	}
}

func orderColumns() []string {
	return []string{
		"id", "order_id", "user_id", "status", "total_amount",
		"delivery_info", "payment_info", "created_at", "updated_at",
	}
}

func itemColumns() []string {
	return []string{
		"id", "order_id", "file_name", "file_type", "file_size_bytes",
		"file_url", "print_size", "quantity", "unit_price", "line_total",
	}
}

func mustJSON(t *testing.T, v any) []byte {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return b
}

func TestOrderRepository_Create_Success(t *testing.T) {
	repo, mock := newTestRepo(t)

	o := sampleOrder()

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO orders").
		WithArgs(
			o.ID, o.OrderID, o.UserID, o.Status, o.TotalAmount,
			pgxmock.AnyArg(), // delivery JSON
			pgxmock.AnyArg(), // payment JSON
			o.CreatedAt, o.UpdatedAt,
		).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	for i, item := range o.Items {
		mock.ExpectExec("INSERT INTO order_items").
			WithArgs(
				item.ID, o.OrderID, i,
				item.FileName, item.FileType, item.FileSizeBytes, item.FileURL,
				item.PrintSize, item.Quantity, item.UnitPrice, item.LineTotal,
			).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
	}

	mock.ExpectCommit()

	err := repo.Create(context.Background(), o)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOrderRepository_Create_ItemInsertFails_RollsBack(t *testing.T) {
	repo, mock := newTestRepo(t)

	o := sampleOrder()

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO orders").
		WithArgs(
			o.ID, o.OrderID, o.UserID, o.Status, o.TotalAmount,
			pgxmock.AnyArg(), pgxmock.AnyArg(),
			o.CreatedAt, o.UpdatedAt,
		).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("INSERT INTO order_items").
		WithArgs(
			o.Items[0].ID, o.OrderID, 0,
			o.Items[0].FileName, o.Items[0].FileType, o.Items[0].FileSizeBytes, o.Items[0].FileURL,
			o.Items[0].PrintSize, o.Items[0].Quantity, o.Items[0].UnitPrice, o.Items[0].LineTotal,
		).
		WillReturnError(errors.New("constraint violation"))
	mock.ExpectRollback()

	err := repo.Create(context.Background(), o)
	assert.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOrderRepository_GetByOrderID_Success(t *testing.T) {
	repo, mock := newTestRepo(t)

	o := sampleOrder()

	mock.ExpectQuery("SELECT (.+) FROM orders").
		WithArgs(o.OrderID).
		WillReturnRows(pgxmock.NewRows(orderColumns()).AddRow(
			o.ID, o.OrderID, o.UserID, o.Status, o.TotalAmount,
			mustJSON(t, o.DeliveryInfo), mustJSON(t, o.PaymentInfo),
			o.CreatedAt, o.UpdatedAt,
		))

	itemRows := pgxmock.NewRows(itemColumns())
	for _, item := range o.Items {
		itemRows.AddRow(
			item.ID, item.OrderID, item.FileName, item.FileType, item.FileSizeBytes,
			item.FileURL, item.PrintSize, item.Quantity, item.UnitPrice, item.LineTotal,
		)
	}
	mock.ExpectQuery("SELECT (.+) FROM order_items").
		WithArgs(o.OrderID).
		WillReturnRows(itemRows)

	got, err := repo.GetByOrderID(context.Background(), o.OrderID)
	require.NoError(t, err)

	assert.Equal(t, o.OrderID, got.OrderID)
	assert.Equal(t, "Jody Perera", got.DeliveryInfo.FullName)
	assert.Equal(t, "slip.png", got.PaymentInfo.ReceiptName)
	assert.EqualValues(t, 512, got.PaymentInfo.ReceiptSize)
	assert.True(t, got.PaymentInfo.PaymentDate.Equal(o.PaymentInfo.PaymentDate))
	require.Len(t, got.Items, 2)
	assert.Equal(t, "beach.jpg", got.Items[0].FileName)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOrderRepository_GetByOrderID_NotFound(t *testing.T) {
	repo, mock := newTestRepo(t)

	mock.ExpectQuery("SELECT (.+) FROM orders").
		WithArgs("ORD-unknown").
		WillReturnRows(pgxmock.NewRows(orderColumns()))

	_, err := repo.GetByOrderID(context.Background(), "ORD-unknown")

	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOrderRepository_List_StatusFilter(t *testing.T) {
	repo, mock := newTestRepo(t)

	o := sampleOrder()
	status := domain.OrderStatusPending

	cols := append(orderColumns(), "total_count")
	mock.ExpectQuery("SELECT (.+) FROM orders").
		WithArgs(status, 20, 0).
		WillReturnRows(pgxmock.NewRows(cols).AddRow(
			o.ID, o.OrderID, o.UserID, o.Status, o.TotalAmount,
			mustJSON(t, o.DeliveryInfo), mustJSON(t, o.PaymentInfo),
			o.CreatedAt, o.UpdatedAt, 1,
		))

	itemRows := pgxmock.NewRows(itemColumns()).AddRow(
		o.Items[0].ID, o.Items[0].OrderID, o.Items[0].FileName, o.Items[0].FileType,
		o.Items[0].FileSizeBytes, o.Items[0].FileURL, o.Items[0].PrintSize,
		o.Items[0].Quantity, o.Items[0].UnitPrice, o.Items[0].LineTotal,
	)
	mock.ExpectQuery("SELECT (.+) FROM order_items").
		WithArgs([]string{o.OrderID}).
		WillReturnRows(itemRows)

	orders, total, err := repo.List(context.Background(), repository.OrderFilter{
		Status:  &status,
		Page:    1,
		PerPage: 20,
	})
	require.NoError(t, err)

	assert.Equal(t, 1, total)
	require.Len(t, orders, 1)
	require.Len(t, orders[0].Items, 1)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOrderRepository_List_SearchAndDateFilter(t *testing.T) {
	repo, mock := newTestRepo(t)

	search := "Jody"
	day := time.Date(2026, 8, 29, 14, 30, 0, 0, time.UTC)
	dayStart := time.Date(2026, 8, 29, 0, 0, 0, 0, time.UTC)

	cols := append(orderColumns(), "total_count")
	mock.ExpectQuery("SELECT (.+) FROM orders").
		WithArgs("%Jody%", dayStart, dayStart.AddDate(0, 0, 1), 20, 0).
		WillReturnRows(pgxmock.NewRows(cols))

	orders, total, err := repo.List(context.Background(), repository.OrderFilter{
		Search:      &search,
		CreatedDate: &day,
		Page:        1,
		PerPage:     20,
	})
	require.NoError(t, err)

	assert.Equal(t, 0, total)
	assert.Empty(t, orders)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOrderRepository_List_Pagination(t *testing.T) {
	repo, mock := newTestRepo(t)

	cols := append(orderColumns(), "total_count")
	mock.ExpectQuery("SELECT (.+) FROM orders").
		WithArgs(10, 20).
		WillReturnRows(pgxmock.NewRows(cols))

	_, _, err := repo.List(context.Background(), repository.OrderFilter{Page: 3, PerPage: 10})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOrderRepository_UpdateStatus_Success(t *testing.T) {
	repo, mock := newTestRepo(t)

	mock.ExpectExec("UPDATE orders").
		WithArgs(domain.OrderStatusProcessing, pgxmock.AnyArg(), "ORD-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	err := repo.UpdateStatus(context.Background(), "ORD-1", domain.OrderStatusProcessing)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOrderRepository_UpdateStatus_UnknownOrder(t *testing.T) {
	repo, mock := newTestRepo(t)

	mock.ExpectExec("UPDATE orders").
		WithArgs(domain.OrderStatusCancelled, pgxmock.AnyArg(), "ORD-missing").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := repo.UpdateStatus(context.Background(), "ORD-missing", domain.OrderStatusCancelled)

	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}
