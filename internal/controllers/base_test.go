package controllers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/drstein77/luxestore/internal/cart"
	"github.com/drstein77/luxestore/internal/catalog"
	"github.com/drstein77/luxestore/internal/chat"
	"github.com/drstein77/luxestore/internal/compress"
	"github.com/drstein77/luxestore/internal/middleware"
	"github.com/drstein77/luxestore/internal/models"
	"github.com/drstein77/luxestore/internal/storage"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type testServer struct {
	t       *testing.T
	handler http.Handler
	session string
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	c, err := catalog.Default()
	require.NoError(t, err)

	log := zaptest.NewLogger(t)
	store := storage.NewMemoryStorage(context.Background(), storage.Config{
		Catalog:    c,
		Responder:  chat.NewResponder(c, cart.DefaultShippingPolicy(), 3),
		Policy:     cart.DefaultShippingPolicy(),
		SessionTTL: time.Hour,
	}, nil, log)

	return &testServer{
		t:       t,
		handler: NewBaseController(store, log).Route(),
		session: uuid.NewString(),
	}
}

func (s *testServer) do(method, target string, body io.Reader, headers map[string]string) *httptest.ResponseRecorder {
	s.t.Helper()

	req := httptest.NewRequest(method, target, body)
	req.Header.Set(middleware.SessionHeader, s.session)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func (s *testServer) json(method, target, body string, out any) int {
	s.t.Helper()

	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	rec := s.do(method, target, r, map[string]string{"Content-Type": "application/json"})
	if out != nil {
		require.NoError(s.t, json.Unmarshal(rec.Body.Bytes(), out), rec.Body.String())
	}
	return rec.Code
}

func TestPing(t *testing.T) {
	s := newTestServer(t)
	assert.Equal(t, http.StatusOK, s.do(http.MethodGet, "/ping", nil, nil).Code)
}

func TestProducts(t *testing.T) {
	s := newTestServer(t)

	var products []models.Product
	require.Equal(t, http.StatusOK, s.json(http.MethodGet, "/api/v0/products", "", &products))
	assert.Len(t, products, 12)

	require.Equal(t, http.StatusOK, s.json(http.MethodGet, "/api/v0/products?category=bags", "", &products))
	assert.Len(t, products, 2)

	require.Equal(t, http.StatusOK, s.json(http.MethodGet, "/api/v0/products?q=wireless", "", &products))
	for _, p := range products {
		assert.Contains(t, strings.ToLower(p.Name+p.Description), "wireless")
	}
}

func TestProductDetail(t *testing.T) {
	s := newTestServer(t)

	var detail models.ProductDetail
	require.Equal(t, http.StatusOK, s.json(http.MethodGet, "/api/v0/products/5", "", &detail))
	assert.Equal(t, "Mechanical Keyboard", detail.Product.Name)
	assert.Len(t, detail.Related, 2)

	var e errorResponse
	assert.Equal(t, http.StatusNotFound, s.json(http.MethodGet, "/api/v0/products/999", "", &e))
	assert.Equal(t, "not_found", e.Error)
}

func TestCategories(t *testing.T) {
	s := newTestServer(t)

	var categories []models.Category
	require.Equal(t, http.StatusOK, s.json(http.MethodGet, "/api/v0/categories", "", &categories))
	require.Len(t, categories, 4)
	assert.Equal(t, "audio", categories[0].ID)
	assert.Equal(t, 2, categories[0].ProductCount)

	var products []models.Product
	require.Equal(t, http.StatusOK, s.json(http.MethodGet, "/api/v0/categories/home/products", "", &products))
	assert.Len(t, products, 2)

	assert.Equal(t, http.StatusNotFound, s.json(http.MethodGet, "/api/v0/categories/garden/products", "", nil))
}

func TestCartFlow(t *testing.T) {
	s := newTestServer(t)

	var summary models.CartSummary
	require.Equal(t, http.StatusOK, s.json(http.MethodPost, "/api/v0/cart/items", `{"productId":"7"}`, &summary))
	assert.Equal(t, 1, summary.TotalItems)
	assert.Equal(t, "15", summary.Shipping.String())
	assert.Equal(t, "21", summary.AmountToFreeShipping.String())

	require.Equal(t, http.StatusOK, s.json(http.MethodPost, "/api/v0/cart/items/7/increment", "", &summary))
	assert.Equal(t, 2, summary.TotalItems)
	assert.True(t, summary.FreeShipping)
	assert.Equal(t, "158", summary.Total.String())

	require.Equal(t, http.StatusOK, s.json(http.MethodPut, "/api/v0/cart/items/7", `{"quantity":1}`, &summary))
	require.Equal(t, http.StatusOK, s.json(http.MethodPost, "/api/v0/cart/items/7/decrement", "", &summary))
	assert.Equal(t, 1, summary.TotalItems, "decrement stops at one")

	require.Equal(t, http.StatusOK, s.json(http.MethodGet, "/api/v0/cart", "", &summary))
	require.Len(t, summary.Items, 1)
	assert.Equal(t, "Wireless Charging Pad", summary.Items[0].Name)

	require.Equal(t, http.StatusOK, s.json(http.MethodDelete, "/api/v0/cart/items/7", "", &summary))
	assert.Empty(t, summary.Items)

	require.Equal(t, http.StatusOK, s.json(http.MethodPost, "/api/v0/cart/items", `{"productId":"1","quantity":2}`, &summary))
	require.Equal(t, http.StatusOK, s.json(http.MethodDelete, "/api/v0/cart", "", &summary))
	assert.Zero(t, summary.TotalItems)
}

func TestCartErrors(t *testing.T) {
	s := newTestServer(t)

	tests := []struct {
		name   string
		method string
		target string
		body   string
		status int
		code   string
	}{
		{"unknown product", http.MethodPost, "/api/v0/cart/items", `{"productId":"nope"}`, http.StatusNotFound, "not_found"},
		{"zero quantity", http.MethodPost, "/api/v0/cart/items", `{"productId":"1","quantity":0}`, http.StatusBadRequest, "invalid_quantity"},
		{"huge quantity", http.MethodPost, "/api/v0/cart/items", `{"productId":"1","quantity":9223372036854775807}`, http.StatusBadRequest, "invalid_quantity"},
		{"missing product id", http.MethodPost, "/api/v0/cart/items", `{"quantity":2}`, http.StatusBadRequest, "invalid_request"},
		{"broken json", http.MethodPost, "/api/v0/cart/items", `{"productId":`, http.StatusBadRequest, "invalid_request"},
		{"empty body", http.MethodPut, "/api/v0/cart/items/1", ``, http.StatusBadRequest, "invalid_request"},
		{"missing quantity", http.MethodPut, "/api/v0/cart/items/1", `{}`, http.StatusBadRequest, "invalid_request"},
		{"line not in cart", http.MethodPut, "/api/v0/cart/items/1", `{"quantity":3}`, http.StatusNotFound, "not_found"},
		{"increment missing line", http.MethodPost, "/api/v0/cart/items/2/increment", ``, http.StatusNotFound, "not_found"},
		{"remove missing line", http.MethodDelete, "/api/v0/cart/items/2", ``, http.StatusNotFound, "not_found"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var e errorResponse
			assert.Equal(t, tt.status, s.json(tt.method, tt.target, tt.body, &e))
			assert.Equal(t, tt.code, e.Error)
			assert.NotEmpty(t, e.Message)
		})
	}
}

func TestQuantityCannotOverflow(t *testing.T) {
	s := newTestServer(t)

	huge := `{"productId":"1","quantity":9223372036854775807}`
	for i := 0; i < 2; i++ {
		var e errorResponse
		assert.Equal(t, http.StatusBadRequest, s.json(http.MethodPost, "/api/v0/cart/items", huge, &e))
		assert.Equal(t, "invalid_quantity", e.Error)
	}

	var summary models.CartSummary
	require.Equal(t, http.StatusOK, s.json(http.MethodPost, "/api/v0/cart/items", `{"productId":"1","quantity":9998}`, &summary))
	require.Equal(t, http.StatusOK, s.json(http.MethodPost, "/api/v0/cart/items/1/increment", "", &summary))
	assert.Equal(t, cart.MaxQuantity, summary.TotalItems)

	var e errorResponse
	assert.Equal(t, http.StatusBadRequest, s.json(http.MethodPost, "/api/v0/cart/items", `{"productId":"1","quantity":1}`, &e))
	assert.Equal(t, "invalid_quantity", e.Error)
	assert.Equal(t, http.StatusBadRequest, s.json(http.MethodPost, "/api/v0/cart/items/1/increment", "", &e))
	assert.Equal(t, http.StatusBadRequest, s.json(http.MethodPut, "/api/v0/cart/items/1", `{"quantity":10000}`, &e))

	require.Equal(t, http.StatusOK, s.json(http.MethodGet, "/api/v0/cart", "", &summary))
	require.Len(t, summary.Items, 1)
	assert.Equal(t, cart.MaxQuantity, summary.Items[0].Quantity)
}

func TestSessionsAreIsolated(t *testing.T) {
	s := newTestServer(t)
	require.Equal(t, http.StatusOK, s.json(http.MethodPost, "/api/v0/cart/items", `{"productId":"1"}`, nil))

	other := newTestServer(t)
	other.handler = s.handler

	var summary models.CartSummary
	require.Equal(t, http.StatusOK, other.json(http.MethodGet, "/api/v0/cart", "", &summary))
	assert.Empty(t, summary.Items)
}

func TestImportCart(t *testing.T) {
	s := newTestServer(t)

	var summary models.CartSummary
	rec := s.do(http.MethodPost, "/api/v0/cart/import", strings.NewReader("product_id,quantity\n3,2\n"), nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &summary))
	assert.Equal(t, 2, summary.TotalItems)

	var archive bytes.Buffer
	w, err := compress.NewWriter(compress.Zip, &archive, "cart.csv")
	require.NoError(t, err)
	_, _ = io.WriteString(w, "8,1\n")
	require.NoError(t, w.Close())

	rec = s.do(http.MethodPost, "/api/v0/cart/import?archiveType=zip", &archive, map[string]string{
		"Content-Encoding": "zip",
		"Accept-Encoding":  "gzip, deflate",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &summary))
	assert.Equal(t, 3, summary.TotalItems)

	var e errorResponse
	rec = s.do(http.MethodPost, "/api/v0/cart/import", strings.NewReader("3,1\nghost,1\n"), nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &e))
	assert.Equal(t, "invalid_import", e.Error)

	require.Equal(t, http.StatusOK, s.json(http.MethodGet, "/api/v0/cart", "", &summary))
	assert.Equal(t, 3, summary.TotalItems, "failed import leaves the cart alone")
}

func TestImportRejectsOversizedBody(t *testing.T) {
	s := newTestServer(t)

	// the last row straddles the limit and would otherwise be cut to "1,12"
	body := strings.Repeat("2,1\n", maxBodySize/4-1) + "1,12345\n"
	require.Greater(t, len(body), maxBodySize)

	var e errorResponse
	rec := s.do(http.MethodPost, "/api/v0/cart/import", strings.NewReader(body), nil)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &e))
	assert.Equal(t, "request_too_large", e.Error)

	var summary models.CartSummary
	require.Equal(t, http.StatusOK, s.json(http.MethodGet, "/api/v0/cart", "", &summary))
	assert.Empty(t, summary.Items)
}

func TestJSONBodyIsLimited(t *testing.T) {
	s := newTestServer(t)

	body := `{"message":"` + strings.Repeat("a", maxBodySize) + `"}`
	var e errorResponse
	assert.Equal(t, http.StatusRequestEntityTooLarge, s.json(http.MethodPost, "/api/v0/chat", body, &e))
	assert.Equal(t, "request_too_large", e.Error)
}

func TestExportProducts(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(http.MethodGet, "/api/v0/products/export", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/csv")
	lines := strings.Split(strings.TrimSpace(rec.Body.String()), "\n")
	assert.Len(t, lines, 13)

	rec = s.do(http.MethodGet, "/api/v0/products/export?archiveType=tar", nil, map[string]string{"Accept-Encoding": "tar"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/x-tar", rec.Header().Get("Content-Type"))

	r, err := compress.NewReader(compress.Tar, io.NopCloser(rec.Body))
	require.NoError(t, err)
	body, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(body), "id,name,category,price"))
}

func TestChat(t *testing.T) {
	s := newTestServer(t)

	var history models.ChatHistory
	require.Equal(t, http.StatusOK, s.json(http.MethodGet, "/api/v0/chat", "", &history))
	require.Len(t, history.Messages, 1)
	assert.Len(t, history.Suggestions, 4)

	var answer models.ChatMessage
	require.Equal(t, http.StatusOK, s.json(http.MethodPost, "/api/v0/chat", `{"message":"What is the most expensive item?"}`, &answer))
	assert.Equal(t, models.RoleAssistant, answer.Role)
	require.Len(t, answer.Products, 1)
	assert.Equal(t, "6", answer.Products[0].ID)

	var e errorResponse
	assert.Equal(t, http.StatusBadRequest, s.json(http.MethodPost, "/api/v0/chat", `{"message":"   "}`, &e))
	assert.Equal(t, "invalid_message", e.Error)

	require.Equal(t, http.StatusOK, s.json(http.MethodGet, "/api/v0/chat", "", &history))
	assert.Len(t, history.Messages, 3)
	assert.Empty(t, history.Suggestions)
}

func TestClassifyUnknownErrorsAsInternal(t *testing.T) {
	code, kind := classify(assert.AnError)
	assert.Equal(t, http.StatusInternalServerError, code)
	assert.Equal(t, "internal_error", kind)
}
