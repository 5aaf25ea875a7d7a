package cart

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	apperrors "github.com/snapprint/snapprint/pkg/errors"
	"github.com/snapprint/snapprint/pkg/httpclient"

	"github.com/snapprint/snapprint/internal/domain"
)

// Multipart field names understood by the ingestion endpoint.
const (
	FieldFullName       = "deliveryInfo.fullName"
	FieldAddress        = "deliveryInfo.address"
	FieldContact1       = "deliveryInfo.contact1"
	FieldContact2       = "deliveryInfo.contact2"
	FieldPaymentReceipt = "paymentReceipt"
	FieldItems          = "items"
	FieldItemPrefix     = "itemPayload_"
)

// itemMetadata is the wire shape of one line item inside the items array.
type itemMetadata struct {
	FileName      string `json:"fileName"`
	FileSizeBytes int64  `json:"fileSizeBytes"`
	FileType      string `json:"fileType"`
	PrintSize     string `json:"printSize"`
	Quantity      int    `json:"quantity"`
	UnitPrice     int64  `json:"unitPrice"`
	LineTotal     int64  `json:"lineTotal"`
}

// Assembler packages the cart metadata, the staged file payloads and the
// checkout receipt into one multipart submission request. Binary parts are
// named by the position of their item in the metadata array; the assembler
// emits metadata and parts from the same iteration so the two can never
// desynchronize.
type Assembler struct {
	cart     *Cart
	files    *FileStore
	checkout *Checkout
}

// NewAssembler creates an assembler over the given cart, file store and
// checkout flow.
func NewAssembler(c *Cart, files *FileStore, co *Checkout) *Assembler {
	return &Assembler{cart: c, files: files, checkout: co}
}

// Assemble builds the multipart request body. It fails fast, before any
// bytes are written, when a cart item has no staged payload or a payload's
// content type contradicts the item's declared type. No partial order is
// ever submitted.
func (a *Assembler) Assemble() (body *bytes.Buffer, contentType string, err error) {
	items := a.cart.Items()
	if len(items) == 0 {
		return nil, "", apperrors.InvalidInput("cart is empty")
	}

	receipt := a.checkout.Receipt()
	if receipt == nil {
		return nil, "", apperrors.InvalidInput("payment receipt is missing")
	}

	payloads := make([]Payload, len(items))
	for i, item := range items {
		p, ok := a.files.Get(item.ID)
		if !ok {
			return nil, "", apperrors.Consistency(
				fmt.Sprintf("file for item %d is missing", i))
		}
		if err := matchesDeclaredType(item.FileType, p.ContentType); err != nil {
			return nil, "", apperrors.Consistency(
				fmt.Sprintf("item %d: %s", i, err.Error()))
		}
		payloads[i] = p
	}

	body = &bytes.Buffer{}
	w := multipart.NewWriter(body)

	delivery := a.checkout.DeliveryInfo()
	fields := map[string]string{
		FieldFullName: delivery.FullName,
		FieldAddress:  delivery.Address,
		FieldContact1: delivery.Contact1,
	}
	if delivery.Contact2 != "" {
		fields[FieldContact2] = delivery.Contact2
	}
	for name, value := range fields {
		if err := w.WriteField(name, value); err != nil {
			return nil, "", fmt.Errorf("write field %s: %w", name, err)
		}
	}

	if err := writeFilePart(w, FieldPaymentReceipt, receipt.FileName, receipt.Payload); err != nil {
		return nil, "", err
	}

	metadata := make([]itemMetadata, len(items))
	for i, item := range items {
		metadata[i] = itemMetadata{
			FileName:      item.FileName,
			FileSizeBytes: item.FileSizeBytes,
			FileType:      item.FileType,
			PrintSize:     item.PrintSize,
			Quantity:      item.Quantity,
			UnitPrice:     item.UnitPrice,
			LineTotal:     item.LineTotal,
		}
	}
	metadataJSON, err := json.Marshal(metadata)
	if err != nil {
		return nil, "", fmt.Errorf("marshal items: %w", err)
	}
	if err := w.WriteField(FieldItems, string(metadataJSON)); err != nil {
		return nil, "", fmt.Errorf("write items field: %w", err)
	}

	for i, item := range items {
		name := fmt.Sprintf("%s%d", FieldItemPrefix, i)
		if err := writeFilePart(w, name, item.FileName, payloads[i]); err != nil {
			return nil, "", err
		}
	}

	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("close multipart writer: %w", err)
	}

	return body, w.FormDataContentType(), nil
}

// matchesDeclaredType checks a payload content type against the item's
// declared type. Images accept any image/* subtype; documents must be PDF.
func matchesDeclaredType(declaredType, contentType string) error {
	switch declaredType {
	case domain.FileTypeImage:
		if !strings.HasPrefix(contentType, "image/") {
			return fmt.Errorf("declared type %q does not match content type %q", declaredType, contentType)
		}
	case domain.FileTypeDocument:
		if contentType != "application/pdf" {
			return fmt.Errorf("declared type %q does not match content type %q", declaredType, contentType)
		}
	default:
		return fmt.Errorf("unknown declared type %q", declaredType)
	}
	return nil
}

func writeFilePart(w *multipart.Writer, field, fileName string, p Payload) error {
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, field, fileName))
	ct := p.ContentType
	if ct == "" {
		ct = "application/octet-stream"
	}
	h.Set("Content-Type", ct)

	part, err := w.CreatePart(h)
	if err != nil {
		return fmt.Errorf("create part %s: %w", field, err)
	}
	if _, err := part.Write(p.Data); err != nil {
		return fmt.Errorf("write part %s: %w", field, err)
	}
	return nil
}

// SubmitResult is the server's answer to a successful submission.
type SubmitResult struct {
	OrderID     string    `json:"orderId"`
	OrderDate   time.Time `json:"orderDate"`
	TotalAmount int64     `json:"totalAmount"`
}

// Submitter sends assembled orders to the ingestion endpoint.
type Submitter struct {
	assembler *Assembler
	client    *httpclient.Client
	endpoint  string
	token     string
}

// NewSubmitter creates a submitter. The endpoint is the full URL of the
// order-creation route; the token is sent as a bearer credential.
func NewSubmitter(a *Assembler, client *httpclient.Client, endpoint, token string) *Submitter {
	return &Submitter{assembler: a, client: client, endpoint: endpoint, token: token}
}

// Submit assembles and posts the order. On success it clears the cart and the
// file store and resets the checkout so a new order cycle starts clean.
func (s *Submitter) Submit(ctx context.Context) (*SubmitResult, error) {
	body, contentType, err := s.assembler.Assemble()
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("create submission request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Authorization", "Bearer "+s.token)

	resp, err := s.client.Do(ctx, req)
	if err != nil {
		return nil, apperrors.Upstream("order submission failed", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apperrors.Upstream("read submission response", err)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return nil, apperrors.Unauthorized("session expired")
	case resp.StatusCode >= 400:
		return nil, apperrors.Upstream(
			fmt.Sprintf("order submission rejected with status %d", resp.StatusCode),
			fmt.Errorf("%s", string(respBody)))
	}

	var envelope struct {
		Data SubmitResult `json:"data"`
	}
	if err := json.Unmarshal(respBody, &envelope); err != nil {
		return nil, apperrors.Upstream("decode submission response", err)
	}

	s.assembler.cart.Clear()
	s.assembler.files.Clear()
	s.assembler.checkout.Reset()

	return &envelope.Data, nil
}
