package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	apperrors "github.com/snapprint/snapprint/pkg/errors"
	"github.com/snapprint/snapprint/pkg/health"
	pkgkafka "github.com/snapprint/snapprint/pkg/kafka"
	"github.com/snapprint/snapprint/pkg/middleware"

	"github.com/snapprint/snapprint/internal/auth"
	"github.com/snapprint/snapprint/internal/cart"
	"github.com/snapprint/snapprint/internal/domain"
	"github.com/snapprint/snapprint/internal/event"
	"github.com/snapprint/snapprint/internal/repository"
	"github.com/snapprint/snapprint/internal/service"
	"github.com/snapprint/snapprint/internal/storage/memory"
)

// --- Mock Repository ---

type mockOrderRepository struct {
	mock.Mock
}

func (m *mockOrderRepository) Create(ctx context.Context, order *domain.Order) error {
	args := m.Called(ctx, order)
	return args.Error(0)
}

func (m *mockOrderRepository) GetByOrderID(ctx context.Context, orderID string) (*domain.Order, error) {
	args := m.Called(ctx, orderID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Order), args.Error(1)
}

func (m *mockOrderRepository) List(ctx context.Context, filter repository.OrderFilter) ([]domain.Order, int, error) {
	args := m.Called(ctx, filter)
	return args.Get(0).([]domain.Order), args.Int(1), args.Error(2)
}

func (m *mockOrderRepository) UpdateStatus(ctx context.Context, orderID, status string) error {
	args := m.Called(ctx, orderID, status)
	return args.Error(0)
}

// --- Test Helpers ---

type stubFetcher struct {
	files map[string][]byte
}

func (f *stubFetcher) Fetch(_ context.Context, url string) ([]byte, error) {
	data, ok := f.files[url]
	if !ok {
		return nil, fmt.Errorf("fetch %s: not found", url)
	}
	return data, nil
}

type testEnv struct {
	router  http.Handler
	repo    *mockOrderRepository
	store   *memory.Storage
	fetcher *stubFetcher
	jwt     *auth.JWTManager
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

	cfg := pkgkafka.DefaultProducerConfig([]string{"localhost:9092"})
	cfg.Async = true
	producer := event.NewProducer(pkgkafka.NewProducer(cfg, logger), logger)

	repo := new(mockOrderRepository)
	store := memory.New("https://files.example.com")
	fetcher := &stubFetcher{files: map[string][]byte{}}

	orderService := service.NewOrderService(repo, store, producer, logger, time.Second)
	bundleService := service.NewBundleService(repo, fetcher, producer, logger, time.Second)

	jwtManager := auth.NewJWTManager("test-secret", "snapprint-test")

	router := NewRouter(orderService, bundleService, health.NewHandler(), jwtManager.Middleware(), store, logger, RouterConfig{
		CORS:           middleware.DefaultCORSConfig(),
		RateLimitRPS:   100,
		RateLimitBurst: 100,
	})

	return &testEnv{router: router, repo: repo, store: store, fetcher: fetcher, jwt: jwtManager}
}

func (e *testEnv) bearerFor(t *testing.T, userID string) string {
	t.Helper()
	token, err := e.jwt.SignForTest(userID, userID+"@example.com", time.Minute)
	require.NoError(t, err)
	return "Bearer " + token
}

func (e *testEnv) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

type submission struct {
	delivery map[string]string
	receipt  *filePart
	items    string
	parts    map[string]*filePart
}

type filePart struct {
	name        string
	contentType string
	data        []byte
}

func validSubmission() *submission {
	return &submission{
		delivery: map[string]string{
			cart.FieldFullName: "Jody Perera",
			cart.FieldAddress:  "12 Lake Rd, Colombo",
			cart.FieldContact1: "0771234567",
		},
		receipt: &filePart{name: "slip.png", contentType: "image/png", data: []byte("receipt-bytes")},
		items: `[
			{"fileName":"beach.jpg","fileType":"image","printSize":"small","quantity":3,"unitPrice":1,"lineTotal":1},
			{"fileName":"thesis","fileType":"document","printSize":"large","quantity":1}
		]`,
		parts: map[string]*filePart{
			cart.FieldItemPrefix + "0": {name: "beach.jpg", contentType: "image/jpeg", data: []byte("jpeg-bytes")},
			cart.FieldItemPrefix + "1": {name: "thesis", contentType: "application/pdf", data: []byte("pdf-bytes")},
		},
	}
}

func encodeSubmission(t *testing.T, s *submission) (*bytes.Buffer, string) {
	t.Helper()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	for field, value := range s.delivery {
		require.NoError(t, mw.WriteField(field, value))
	}
	if s.items != "" {
		require.NoError(t, mw.WriteField(cart.FieldItems, s.items))
	}
	if s.receipt != nil {
		writeTestFilePart(t, mw, cart.FieldPaymentReceipt, s.receipt)
	}
	for field, part := range s.parts {
		writeTestFilePart(t, mw, field, part)
	}

	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func writeTestFilePart(t *testing.T, mw *multipart.Writer, field string, part *filePart) {
	t.Helper()

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, field, part.name))
	h.Set("Content-Type", part.contentType)

	w, err := mw.CreatePart(h)
	require.NoError(t, err)
	_, err = w.Write(part.data)
	require.NoError(t, err)
}

func (e *testEnv) submit(t *testing.T, s *submission, authorization string) *httptest.ResponseRecorder {
	t.Helper()

	body, contentType := encodeSubmission(t, s)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/orders", body)
	req.Header.Set("Content-Type", contentType)
	if authorization != "" {
		req.Header.Set("Authorization", authorization)
	}
	return e.do(req)
}

func decodeData(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()

	var envelope struct {
		Data map[string]any `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	return envelope.Data
}

// --- SubmitOrder ---

func TestSubmitOrder_Success(t *testing.T) {
	env := newTestEnv(t)
	env.repo.On("Create", mock.Anything, mock.AnythingOfType("*domain.Order")).Return(nil)

	rec := env.submit(t, validSubmission(), env.bearerFor(t, "user-001"))

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	data := decodeData(t, rec)
	assert.Contains(t, data["orderId"], "ORD-")
	// 3 small prints at 200 plus 1 large print at 400, regardless of the
	// prices declared by the client.
	assert.EqualValues(t, 1000, data["totalAmount"])
	assert.NotEmpty(t, data["orderDate"])

	// receipt plus both item files uploaded
	assert.Equal(t, 3, env.store.Len())

	env.repo.AssertCalled(t, "Create", mock.Anything, mock.MatchedBy(func(o *domain.Order) bool {
		return o.UserID == "user-001" && o.Status == domain.OrderStatusPending && len(o.Items) == 2
	}))
}

func TestSubmitOrder_Unauthenticated(t *testing.T) {
	env := newTestEnv(t)

	rec := env.submit(t, validSubmission(), "")

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	env.repo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestSubmitOrder_MissingItemFile(t *testing.T) {
	env := newTestEnv(t)

	s := validSubmission()
	delete(s.parts, cart.FieldItemPrefix+"1")

	rec := env.submit(t, s, env.bearerFor(t, "user-001"))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "file for item 1 is missing")
	assert.Equal(t, 0, env.store.Len())
}

func TestSubmitOrder_ExtraItemFile(t *testing.T) {
	env := newTestEnv(t)

	s := validSubmission()
	s.parts[cart.FieldItemPrefix+"2"] = &filePart{name: "stray.png", contentType: "image/png", data: []byte("x")}

	rec := env.submit(t, s, env.bearerFor(t, "user-001"))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	env.repo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestSubmitOrder_OutOfRangePartIndex(t *testing.T) {
	env := newTestEnv(t)

	// An index far beyond the declared items must be rejected, not used to
	// size the payload slice.
	s := validSubmission()
	s.parts[cart.FieldItemPrefix+"9999999999999999"] = &filePart{name: "stray.bin", contentType: "application/octet-stream", data: []byte("x")}

	rec := env.submit(t, s, env.bearerFor(t, "user-001"))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "unexpected file part")
	env.repo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestSubmitOrder_MissingDeliveryField(t *testing.T) {
	env := newTestEnv(t)

	s := validSubmission()
	delete(s.delivery, cart.FieldFullName)

	rec := env.submit(t, s, env.bearerFor(t, "user-001"))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "deliveryInfo.fullName")
}

func TestSubmitOrder_MalformedItemsJSON(t *testing.T) {
	env := newTestEnv(t)

	s := validSubmission()
	s.items = `{"not":"an array"}`
	s.parts = nil

	rec := env.submit(t, s, env.bearerFor(t, "user-001"))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "items field")
}

func TestSubmitOrder_NotMultipart(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/orders", bytes.NewBufferString(`{"items":[]}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", env.bearerFor(t, "user-001"))

	rec := env.do(req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// --- GetOrder ---

func TestGetOrder_Success(t *testing.T) {
	env := newTestEnv(t)
	order := &domain.Order{OrderID: "ORD-1700000000000", UserID: "user-001", Status: domain.OrderStatusPending}
	env.repo.On("GetByOrderID", mock.Anything, "ORD-1700000000000").Return(order, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/orders/ORD-1700000000000", nil)
	req.Header.Set("Authorization", env.bearerFor(t, "user-001"))
	rec := env.do(req)

	require.Equal(t, http.StatusOK, rec.Code)
	data := decodeData(t, rec)
	assert.Equal(t, "ORD-1700000000000", data["order_id"])
}

func TestGetOrder_NotFound(t *testing.T) {
	env := newTestEnv(t)
	env.repo.On("GetByOrderID", mock.Anything, "ORD-404").
		Return(nil, apperrors.NotFound("order", "ORD-404"))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/orders/ORD-404", nil)
	req.Header.Set("Authorization", env.bearerFor(t, "user-001"))
	rec := env.do(req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

// --- ListOrders ---

func TestListOrders_Filters(t *testing.T) {
	env := newTestEnv(t)
	status := "pending"
	search := "Jody"
	env.repo.On("List", mock.Anything, mock.MatchedBy(func(f repository.OrderFilter) bool {
		return f.Status != nil && *f.Status == status &&
			f.Search != nil && *f.Search == search &&
			f.Page == 2 && f.PerPage == 10
	})).Return([]domain.Order{{OrderID: "ORD-1"}}, 11, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/orders?status=pending&search=Jody&page=2&per_page=10", nil)
	req.Header.Set("Authorization", env.bearerFor(t, "operator-1"))
	rec := env.do(req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"total_count":11`)
	assert.Contains(t, rec.Body.String(), `"page":2`)
}

func TestListOrders_InvalidStatus(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/orders?status=shipped", nil)
	req.Header.Set("Authorization", env.bearerFor(t, "operator-1"))
	rec := env.do(req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	env.repo.AssertNotCalled(t, "List", mock.Anything, mock.Anything)
}

func TestListOrders_InvalidCreatedDate(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/orders?created_date=20-01-2026", nil)
	req.Header.Set("Authorization", env.bearerFor(t, "operator-1"))
	rec := env.do(req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListMyOrders_ScopedToCaller(t *testing.T) {
	env := newTestEnv(t)
	env.repo.On("List", mock.Anything, mock.MatchedBy(func(f repository.OrderFilter) bool {
		return f.UserID != nil && *f.UserID == "user-007"
	})).Return([]domain.Order{}, 0, nil)

	// a user_id query param must not override the token identity
	req := httptest.NewRequest(http.MethodGet, "/api/v1/orders/my?user_id=someone-else", nil)
	req.Header.Set("Authorization", env.bearerFor(t, "user-007"))
	rec := env.do(req)

	require.Equal(t, http.StatusOK, rec.Code)
	env.repo.AssertExpectations(t)
}

// --- UpdateOrderStatus ---

func TestUpdateOrderStatus_Success(t *testing.T) {
	env := newTestEnv(t)
	order := &domain.Order{OrderID: "ORD-1", Status: domain.OrderStatusPending}
	env.repo.On("GetByOrderID", mock.Anything, "ORD-1").Return(order, nil)
	env.repo.On("UpdateStatus", mock.Anything, "ORD-1", domain.OrderStatusProcessing).Return(nil)

	body := bytes.NewBufferString(`{"status":"processing"}`)
	req := httptest.NewRequest(http.MethodPut, "/api/v1/orders/ORD-1/status", body)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", env.bearerFor(t, "operator-1"))
	rec := env.do(req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	data := decodeData(t, rec)
	assert.Equal(t, "processing", data["status"])
}

func TestUpdateOrderStatus_UnknownStatus(t *testing.T) {
	env := newTestEnv(t)

	body := bytes.NewBufferString(`{"status":"shipped"}`)
	req := httptest.NewRequest(http.MethodPut, "/api/v1/orders/ORD-1/status", body)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", env.bearerFor(t, "operator-1"))
	rec := env.do(req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	env.repo.AssertNotCalled(t, "UpdateStatus", mock.Anything, mock.Anything, mock.Anything)
}

func TestUpdateOrderStatus_MalformedBody(t *testing.T) {
	env := newTestEnv(t)

	body := bytes.NewBufferString(`status=processing`)
	req := httptest.NewRequest(http.MethodPut, "/api/v1/orders/ORD-1/status", body)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", env.bearerFor(t, "operator-1"))
	rec := env.do(req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
