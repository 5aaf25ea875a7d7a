package cart

import (
	"context"
	"mime"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/snapprint/snapprint/internal/domain"
	apperrors "github.com/snapprint/snapprint/pkg/errors"
	"github.com/snapprint/snapprint/pkg/httpclient"
)

func readyCheckout() *Checkout {
	co := NewCheckout()
	co.SetDeliveryInfo(domain.DeliveryInfo{
		FullName: "Jody Perera",
		Address:  "12 Lake Rd, Colombo",
		Contact1: "0771234567",
		Contact2: "0119876543",
	})
	co.SetPaymentInfo(Receipt{
		Payload:  Payload{Data: []byte("receipt-bytes"), ContentType: "image/png"},
		FileName: "slip.png",
	})
	return co
}

func stagedCart(t *testing.T) (*Cart, *FileStore) {
	t.Helper()
	c := New()
	files := NewFileStore()

	a := c.AddItem(ItemMeta{
		FileName:  "beach.jpg",
		FileType:  domain.FileTypeImage,
		PrintSize: domain.PrintSizeSmall,
		Quantity:  3,
	})
	files.Put(a.ID, Payload{Data: []byte("jpeg-bytes"), ContentType: "image/jpeg"})

	b := c.AddItem(ItemMeta{
		FileName:  "thesis.pdf",
		FileType:  domain.FileTypeDocument,
		PrintSize: domain.PrintSizeLarge,
		Quantity:  1,
	})
	files.Put(b.ID, Payload{Data: []byte("pdf-bytes"), ContentType: "application/pdf"})

	return c, files
}

func parseForm(t *testing.T, body *multipart.Reader) *multipart.Form {
	t.Helper()
	form, err := body.ReadForm(10 << 20)
	require.NoError(t, err)
	return form
}

func TestAssemble_BuildsAllParts(t *testing.T) {
	c, files := stagedCart(t)
	a := NewAssembler(c, files, readyCheckout())

	body, contentType, err := a.Assemble()
	require.NoError(t, err)

	_, params, err := mime.ParseMediaType(contentType)
	require.NoError(t, err)
	form := parseForm(t, multipart.NewReader(body, params["boundary"]))
	defer form.RemoveAll()

	assert.Equal(t, "Jody Perera", form.Value[FieldFullName][0])
	assert.Equal(t, "12 Lake Rd, Colombo", form.Value[FieldAddress][0])
	assert.Equal(t, "0771234567", form.Value[FieldContact1][0])
	assert.Equal(t, "0119876543", form.Value[FieldContact2][0])
	assert.Contains(t, form.Value[FieldItems][0], `"fileName":"beach.jpg"`)
	assert.Contains(t, form.Value[FieldItems][0], `"lineTotal":600`)

	require.Len(t, form.File[FieldPaymentReceipt], 1)
	assert.Equal(t, "slip.png", form.File[FieldPaymentReceipt][0].Filename)

	require.Len(t, form.File["itemPayload_0"], 1)
	assert.Equal(t, "beach.jpg", form.File["itemPayload_0"][0].Filename)
	require.Len(t, form.File["itemPayload_1"], 1)
	assert.Equal(t, "thesis.pdf", form.File["itemPayload_1"][0].Filename)
}

func TestAssemble_Contact2Omitted(t *testing.T) {
	c, files := stagedCart(t)
	co := readyCheckout()
	info := co.DeliveryInfo()
	info.Contact2 = ""
	co.SetDeliveryInfo(info)

	body, contentType, err := NewAssembler(c, files, co).Assemble()
	require.NoError(t, err)

	_, params, _ := mime.ParseMediaType(contentType)
	form := parseForm(t, multipart.NewReader(body, params["boundary"]))
	defer form.RemoveAll()

	assert.Empty(t, form.Value[FieldContact2])
}

func TestAssemble_MissingPayload_FailsFast(t *testing.T) {
	c, files := stagedCart(t)
	// drop the second item's payload only
	files.Delete(c.Items()[1].ID)

	_, _, err := NewAssembler(c, files, readyCheckout()).Assemble()

	require.Error(t, err)
	assert.Contains(t, err.Error(), "file for item 1 is missing")
	assert.Equal(t, http.StatusBadRequest, apperrors.HTTPStatus(err))
}

func TestAssemble_DeclaredTypeMismatch(t *testing.T) {
	c, files := stagedCart(t)
	// an image item holding PDF bytes
	files.Put(c.Items()[0].ID, Payload{Data: []byte("pdf"), ContentType: "application/pdf"})

	_, _, err := NewAssembler(c, files, readyCheckout()).Assemble()

	require.Error(t, err)
	assert.Contains(t, err.Error(), "item 0")
}

func TestAssemble_DocumentMustBePDF(t *testing.T) {
	c, files := stagedCart(t)
	files.Put(c.Items()[1].ID, Payload{Data: []byte("docx"), ContentType: "application/msword"})

	_, _, err := NewAssembler(c, files, readyCheckout()).Assemble()

	require.Error(t, err)
	assert.Contains(t, err.Error(), "item 1")
}

func TestAssemble_EmptyCart(t *testing.T) {
	_, _, err := NewAssembler(New(), NewFileStore(), readyCheckout()).Assemble()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cart is empty")
}

func TestAssemble_MissingReceipt(t *testing.T) {
	c, files := stagedCart(t)
	co := NewCheckout()
	co.SetDeliveryInfo(readyCheckout().DeliveryInfo())

	_, _, err := NewAssembler(c, files, co).Assemble()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "receipt")
}

func TestSubmit_Success_ClearsClientState(t *testing.T) {
	c, files := stagedCart(t)
	co := readyCheckout()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok-123", r.Header.Get("Authorization"))
		require.NoError(t, r.ParseMultipartForm(10<<20))
		assert.NotEmpty(t, r.MultipartForm.Value[FieldItems])

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"data":{"orderId":"ORD-1724900000123","orderDate":"2026-08-29T10:00:00Z","totalAmount":1000}}`))
	}))
	defer srv.Close()

	client := httpclient.New(httpclient.Config{MaxRetries: 0, Timeout: 0})
	sub := NewSubmitter(NewAssembler(c, files, co), client, srv.URL+"/api/v1/orders", "tok-123")

	result, err := sub.Submit(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "ORD-1724900000123", result.OrderID)
	assert.Equal(t, int64(1000), result.TotalAmount)
	assert.Equal(t, 0, c.Len())
	assert.Equal(t, 0, files.Len())

	// the checkout is reset wholesale so no delivery info or receipt leaks
	// into the next order cycle
	assert.Equal(t, StageDelivery, co.Stage())
	assert.Empty(t, co.DeliveryInfo().FullName)
	assert.Nil(t, co.Receipt())
	assert.False(t, co.IsDeliveryInfoComplete())
	assert.False(t, co.IsPaymentInfoComplete())
}

func TestSubmit_Unauthorized(t *testing.T) {
	c, files := stagedCart(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	client := httpclient.New(httpclient.Config{MaxRetries: 0})
	sub := NewSubmitter(NewAssembler(c, files, readyCheckout()), client, srv.URL, "expired")

	_, err := sub.Submit(context.Background())

	require.Error(t, err)
	assert.Equal(t, http.StatusUnauthorized, apperrors.HTTPStatus(err))
	// nothing cleared on failure
	assert.Equal(t, 2, c.Len())
	assert.Equal(t, 2, files.Len())
}

func TestSubmit_PreconditionFailure_NoRequestSent(t *testing.T) {
	c, files := stagedCart(t)
	files.Clear()

	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer srv.Close()

	client := httpclient.New(httpclient.Config{MaxRetries: 0})
	sub := NewSubmitter(NewAssembler(c, files, readyCheckout()), client, srv.URL, "tok")

	_, err := sub.Submit(context.Background())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "file for item 0 is missing")
	assert.False(t, called)
}
