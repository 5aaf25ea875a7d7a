package service

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/klauspost/compress/zip"

	apperrors "github.com/snapprint/snapprint/pkg/errors"
	"github.com/snapprint/snapprint/pkg/httpclient"

	"github.com/snapprint/snapprint/internal/domain"
	"github.com/snapprint/snapprint/internal/event"
	"github.com/snapprint/snapprint/internal/repository"
)

// Fetcher retrieves a stored file by its public URL.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (data []byte, err error)
}

// Bundle is a ready-to-download archive of one order's files.
type Bundle struct {
	FileName  string
	Data      []byte
	FileCount int
	SkipCount int
}

// BundleService reconstructs a zip archive of an order's stored files on
// demand.
type BundleService struct {
	repo         repository.OrderRepository
	fetcher      Fetcher
	producer     *event.Producer
	logger       *slog.Logger
	fetchTimeout time.Duration
}

// NewBundleService creates a new bundle service. fetchTimeout bounds each
// individual file fetch.
func NewBundleService(repo repository.OrderRepository, fetcher Fetcher, producer *event.Producer, logger *slog.Logger, fetchTimeout time.Duration) *BundleService {
	if fetchTimeout <= 0 {
		fetchTimeout = 30 * time.Second
	}
	return &BundleService{
		repo:         repo,
		fetcher:      fetcher,
		producer:     producer,
		logger:       logger,
		fetchTimeout: fetchTimeout,
	}
}

// ExportBundle fetches every stored file of the order concurrently and packs
// the successful ones into a zip archive. Individual fetch failures are
// logged and skipped; the bundle fails only when not a single item file could
// be downloaded. The receipt never keeps a bundle alive on its own.
func (s *BundleService) ExportBundle(ctx context.Context, orderID string) (*Bundle, error) {
	order, err := s.repo.GetByOrderID(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("get order for bundle: %w", err)
	}

	// Each worker writes only its own slot. No errors propagate between
	// fetches; a failed file is simply skipped.
	itemData := make([][]byte, len(order.Items))
	var wg sync.WaitGroup
	for i := range order.Items {
		wg.Add(1)
		go func() {
			defer wg.Done()
			item := order.Items[i]
			data, err := s.fetch(ctx, item.FileURL)
			if err != nil {
				s.logger.WarnContext(ctx, "skipping file for bundle",
					slog.String("order_id", orderID),
					slog.Int("item_index", i),
					slog.String("file_name", item.FileName),
					slog.String("error", err.Error()),
				)
				return
			}
			itemData[i] = data
		}()
	}
	wg.Wait()

	itemCount := 0
	for _, data := range itemData {
		if data != nil {
			itemCount++
		}
	}

	// The export stands or falls on the order's own files, so the floor is
	// checked before the receipt is requested at all.
	if itemCount == 0 {
		return nil, apperrors.Upstream("failed to download any files for this order",
			fmt.Errorf("order %s: all %d item fetches failed", orderID, len(order.Items)))
	}

	var receiptData []byte
	if order.PaymentInfo.ReceiptURL != "" {
		receiptData, err = s.fetch(ctx, order.PaymentInfo.ReceiptURL)
		if err != nil {
			s.logger.WarnContext(ctx, "skipping receipt for bundle",
				slog.String("order_id", orderID),
				slog.String("error", err.Error()),
			)
			receiptData = nil
		}
	}

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)

	fileCount := 0
	skipCount := 0
	for i, data := range itemData {
		if data == nil {
			skipCount++
			continue
		}
		name := fmt.Sprintf("%d_%s", i+1, bundleEntryName(order.Items[i]))
		if err := writeZipEntry(zw, name, data); err != nil {
			return nil, fmt.Errorf("write archive entry %s: %w", name, err)
		}
		fileCount++
	}

	if receiptData != nil {
		name := "RECEIPT_" + order.PaymentInfo.ReceiptName
		if err := writeZipEntry(zw, name, receiptData); err != nil {
			return nil, fmt.Errorf("write receipt entry: %w", err)
		}
		fileCount++
	}

	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("close archive: %w", err)
	}

	bundle := &Bundle{
		FileName:  orderID + ".zip",
		Data:      buf.Bytes(),
		FileCount: fileCount,
		SkipCount: skipCount,
	}

	if err := s.producer.PublishBundleExported(ctx, event.OrderBundleExportedData{
		OrderID:    orderID,
		FileCount:  bundle.FileCount,
		SkipCount:  bundle.SkipCount,
		ArchiveLen: int64(len(bundle.Data)),
	}); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish order.bundle_exported event",
			slog.String("order_id", orderID),
			slog.String("error", err.Error()),
		)
	}

	s.logger.InfoContext(ctx, "bundle exported",
		slog.String("order_id", orderID),
		slog.Int("file_count", bundle.FileCount),
		slog.Int("skip_count", bundle.SkipCount),
	)

	return bundle, nil
}

func (s *BundleService) fetch(ctx context.Context, url string) ([]byte, error) {
	fctx, cancel := context.WithTimeout(ctx, s.fetchTimeout)
	defer cancel()
	return s.fetcher.Fetch(fctx, url)
}

// bundleEntryName normalizes the archive entry name. Documents always carry
// a .pdf suffix even when the uploaded name lacked one.
func bundleEntryName(item domain.OrderItem) string {
	name := item.FileName
	if name == "" {
		name = "file"
	}
	if item.FileType == domain.FileTypeDocument && !strings.HasSuffix(strings.ToLower(name), ".pdf") {
		name += ".pdf"
	}
	return name
}

func writeZipEntry(zw *zip.Writer, name string, data []byte) error {
	w, err := zw.Create(name)
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}

// HTTPFetcher adapts the circuit-breaker HTTP client to the Fetcher
// contract. The breaker keeps a flapping storage backend from dragging every
// bundle request through repeated timeouts.
type HTTPFetcher struct {
	client *httpclient.CircuitBreakerClient
}

// NewHTTPFetcher creates a fetcher over the given client.
func NewHTTPFetcher(client *httpclient.CircuitBreakerClient) *HTTPFetcher {
	return &HTTPFetcher{client: client}
}

// Fetch downloads the file at the given URL.
func (f *HTTPFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	resp, err := f.client.Get(ctx, url)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch %s: unexpected status %d", url, resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}
