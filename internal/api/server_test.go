package api

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/safar/kasir-pos/internal/auth"
	"github.com/safar/kasir-pos/internal/catalog"
	"github.com/safar/kasir-pos/internal/checkout"
	"github.com/safar/kasir-pos/internal/config"
	"github.com/safar/kasir-pos/internal/importer"
	"github.com/safar/kasir-pos/internal/models"
	"github.com/safar/kasir-pos/internal/report"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

const testSecret = "test-secret"

type testEnv struct {
	store    *MockStore
	checkout *MockCheckout
	cache    *MockInvalidator
	server   *Server
	handler  http.Handler
	owner    uuid.UUID
	token    string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	logger := zerolog.Nop()

	env := &testEnv{
		store:    NewMockStore(),
		checkout: &MockCheckout{},
		cache:    &MockInvalidator{},
		owner:    uuid.New(),
	}
	env.server = NewServer(Deps{
		Store:    env.store,
		Verifier: auth.NewVerifier(config.AuthConfig{JWTSecret: testSecret}),
		Catalog:  catalog.New(env.store, logger),
		Checkout: env.checkout,
		Reports:  report.NewService(env.store, time.UTC, logger),
		Importer: importer.New(env.store, config.ImportConfig{BatchSize: 10, MaxErrors: 10}, logger),
		Cache:    env.cache,
	}, Options{
		RequestTimeout: 5 * time.Second,
		MaxImportBytes: 5 * 1024 * 1024,
		MaxImageBytes:  2 * 1024 * 1024,
	}, logger)
	env.server.now = func() time.Time { return time.Date(2024, 3, 10, 9, 0, 0, 0, time.UTC) }
	env.handler = env.server.Routes()
	env.token = signToken(t, env.owner)
	return env
}

func signToken(t *testing.T, sub uuid.UUID) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":           sub.String(),
		"email":         "budi@example.com",
		"exp":           time.Now().Add(time.Hour).Unix(),
		"user_metadata": map[string]any{"full_name": "Budi Santoso"},
	})
	s, err := token.SignedString([]byte(testSecret))
	require.NoError(t, err)
	return s
}

func (e *testEnv) do(method, path string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Authorization", "Bearer "+e.token)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) upload(path, field, filename string, data []byte) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, _ := mw.CreateFormFile(field, filename)
	fw.Write(data)
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set("Authorization", "Bearer "+e.token)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)

	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAuthentication(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name   string
		header string
	}{
		{name: "missing", header: ""},
		{name: "not bearer", header: "Basic abc"},
		{name: "garbage", header: "Bearer not-a-token"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/v1/me", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			env.handler.ServeHTTP(rec, req)

			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			assert.Equal(t, "UNAUTHORIZED", decodeBody[errorResponse](t, rec).Code)
		})
	}
}

func TestMeCreatesProfile(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(http.MethodGet, "/api/v1/me", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	user := decodeBody[models.User](t, rec)
	assert.Equal(t, env.owner, user.ID)
	assert.Equal(t, "budi@example.com", user.Email)
}

func TestCreateProduct(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(http.MethodPost, "/api/v1/products", map[string]any{
		"name": " Beras ", "weight": "5kg", "price": "75000", "stock": 10,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	product := decodeBody[models.Product](t, rec)
	assert.Equal(t, "Beras", product.Name)
	assert.True(t, decimal.NewFromInt(75000).Equal(product.Price))
	assert.Equal(t, 1, env.cache.Calls())

	rec = env.do(http.MethodPost, "/api/v1/products", map[string]any{
		"name": "Beras", "weight": "5kg", "price": "70000", "stock": 1,
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "DUPLICATE_PRODUCT", decodeBody[errorResponse](t, rec).Code)
}

func TestCreateProductValidation(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name string
		body map[string]any
	}{
		{name: "blank name", body: map[string]any{"name": " ", "weight": "1kg", "price": "1", "stock": 1}},
		{name: "blank weight", body: map[string]any{"name": "Gula", "weight": "", "price": "1", "stock": 1}},
		{name: "zero price", body: map[string]any{"name": "Gula", "weight": "1kg", "price": "0", "stock": 1}},
		{name: "negative stock", body: map[string]any{"name": "Gula", "weight": "1kg", "price": "1", "stock": -1}},
		{name: "unknown field", body: map[string]any{"name": "Gula", "weight": "1kg", "price": "1", "sku": "x"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(http.MethodPost, "/api/v1/products", tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, "VALIDATION", decodeBody[errorResponse](t, rec).Code)
		})
	}
}

func TestUpdateProductVersionConflict(t *testing.T) {
	env := newTestEnv(t)
	p := env.store.AddProduct(env.owner, "Gula", "1kg", 16000, 5)

	body := map[string]any{"name": "Gula Pasir", "weight": "1kg", "price": "17000", "stock": 5, "version": 1}
	rec := env.do(http.MethodPut, "/api/v1/products/"+p.ID.String(), body)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, 2, decodeBody[models.Product](t, rec).Version)

	rec = env.do(http.MethodPut, "/api/v1/products/"+p.ID.String(), body)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestGetProductErrors(t *testing.T) {
	env := newTestEnv(t)
	other := env.store.AddProduct(uuid.New(), "Gula", "1kg", 16000, 5)

	rec := env.do(http.MethodGet, "/api/v1/products/not-a-uuid", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(http.MethodGet, "/api/v1/products/"+other.ID.String(), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDeleteProduct(t *testing.T) {
	env := newTestEnv(t)
	p := env.store.AddProduct(env.owner, "Gula", "1kg", 16000, 5)

	rec := env.do(http.MethodDelete, "/api/v1/products/"+p.ID.String(), nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = env.do(http.MethodDelete, "/api/v1/products/"+p.ID.String(), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestUploadImageWithoutStorage(t *testing.T) {
	env := newTestEnv(t)
	p := env.store.AddProduct(env.owner, "Gula", "1kg", 16000, 5)

	rec := env.upload("/api/v1/products/"+p.ID.String()+"/image", "image", "a.png", []byte("\x89PNG\r\n\x1a\n"))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestCheckoutBuildsLinesFromCatalog(t *testing.T) {
	env := newTestEnv(t)
	ayam := env.store.AddProduct(env.owner, "Ayam Goreng", "1 pcs", 15000, 10)

	rec := env.do(http.MethodPost, "/api/v1/checkout", map[string]any{
		"items": []map[string]any{
			{"product_id": ayam.ID.String(), "quantity": 2},
			{"name": "Kantong Plastik", "weight": "1 pcs", "price": "500", "quantity": 1},
		},
		"tendered": "50000",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	req := env.checkout.last
	require.NotNil(t, req)
	assert.Equal(t, env.owner, req.Identity.ID)
	assert.True(t, decimal.NewFromInt(50000).Equal(req.Tendered))
	require.Len(t, req.Lines, 2)

	assert.Equal(t, ayam.ID.String(), req.Lines[0].ProductID)
	assert.Equal(t, 10, req.Lines[0].Stock)
	assert.Equal(t, 2, req.Lines[0].Quantity)

	assert.Empty(t, req.Lines[1].ProductID)
	assert.Equal(t, "Kantong Plastik", req.Lines[1].Name)

	assert.Equal(t, "Budi Santoso", decodeBody[checkout.Receipt](t, rec).Cashier)
}

func TestCheckoutMergesRepeatedProduct(t *testing.T) {
	env := newTestEnv(t)
	esTeh := env.store.AddProduct(env.owner, "Es Teh", "1 gelas", 3000, 5)

	rec := env.do(http.MethodPost, "/api/v1/checkout", map[string]any{
		"items": []map[string]any{
			{"product_id": esTeh.ID.String(), "quantity": 2},
			{"product_id": esTeh.ID.String(), "quantity": 1},
		},
		"tendered": "10000",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	req := env.checkout.last
	require.Len(t, req.Lines, 1)
	assert.Equal(t, 3, req.Lines[0].Quantity)
	assert.Equal(t, 5, req.Lines[0].Stock)
}

func TestCheckoutRejectsRepeatedProductOverStock(t *testing.T) {
	env := newTestEnv(t)
	esTeh := env.store.AddProduct(env.owner, "Es Teh", "1 gelas", 3000, 3)

	rec := env.do(http.MethodPost, "/api/v1/checkout", map[string]any{
		"items": []map[string]any{
			{"product_id": esTeh.ID.String(), "quantity": 2},
			{"product_id": esTeh.ID.String(), "quantity": 2},
		},
		"tendered": "100000",
	})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "INSUFFICIENT_STOCK", decodeBody[errorResponse](t, rec).Code)
	assert.Nil(t, env.checkout.last)
}

func TestCheckoutReloadsCatalogOnceForUnknownProduct(t *testing.T) {
	env := newTestEnv(t)
	env.store.AddProduct(env.owner, "Es Teh", "1 gelas", 5000, 10)
	rec := env.do(http.MethodGet, "/api/v1/catalog", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, decodeBody[[]models.Product](t, rec), 1)

	late := env.store.AddProduct(env.owner, "Kopi", "1 gelas", 8000, 3)
	rec = env.do(http.MethodPost, "/api/v1/checkout", map[string]any{
		"items":    []map[string]any{{"product_id": late.ID.String(), "quantity": 1}},
		"tendered": "8000",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, 2, env.store.listCalls)

	rec = env.do(http.MethodPost, "/api/v1/checkout", map[string]any{
		"items":    []map[string]any{{"product_id": uuid.NewString(), "quantity": 1}},
		"tendered": "8000",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCheckoutErrorCodes(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{name: "empty cart", err: &checkout.Error{Code: checkout.CodeEmptyCart}, status: http.StatusUnprocessableEntity, code: "EMPTY_CART"},
		{name: "stock", err: &checkout.Error{Code: checkout.CodeInsufficientStock, Product: "Es Teh", Available: 1}, status: http.StatusUnprocessableEntity, code: "INSUFFICIENT_STOCK"},
		{name: "identity", err: &checkout.Error{Code: checkout.CodeInvalidIdentity}, status: http.StatusUnauthorized, code: "INVALID_IDENTITY"},
		{name: "create", err: &checkout.Error{Code: checkout.CodeTransactionCreateFailed, Err: assert.AnError}, status: http.StatusBadGateway, code: "TRANSACTION_CREATE_FAILED"},
		{name: "partial", err: &checkout.Error{Code: checkout.CodeStockUpdateFailed, Err: assert.AnError, StockApplied: 1}, status: http.StatusInternalServerError, code: "STOCK_UPDATE_FAILED"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			env.checkout.err = tt.err

			rec := env.do(http.MethodPost, "/api/v1/checkout", map[string]any{"items": []map[string]any{}, "tendered": "0"})
			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, tt.code, decodeBody[errorResponse](t, rec).Code)
		})
	}
}

func TestTransactions(t *testing.T) {
	env := newTestEnv(t)
	txn := models.Transaction{ID: uuid.New(), UserID: env.owner, TransactionNumber: "TRX-1", CreatedAt: time.Now()}
	env.store.AddTransaction(txn)
	env.store.AddTransaction(models.Transaction{ID: uuid.New(), UserID: uuid.New(), TransactionNumber: "TRX-2"})

	rec := env.do(http.MethodGet, "/api/v1/transactions", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "TRX-1")
	assert.NotContains(t, rec.Body.String(), "TRX-2")

	rec = env.do(http.MethodGet, "/api/v1/transactions/"+txn.ID.String(), nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(http.MethodGet, "/api/v1/transactions/"+uuid.NewString(), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func saleAt(owner uuid.UUID, at time.Time, name string, price int64, qty int) models.Transaction {
	p := decimal.NewFromInt(price)
	sub := p.Mul(decimal.NewFromInt(int64(qty)))
	return models.Transaction{
		ID:          uuid.New(),
		UserID:      owner,
		TotalAmount: sub,
		CreatedAt:   at,
		Items: []models.TransactionItem{{
			ProductName: name, ProductWeight: "1 pcs", Price: p, Quantity: qty, Subtotal: sub,
		}},
	}
}

func TestSalesReportExports(t *testing.T) {
	env := newTestEnv(t)
	env.store.AddTransaction(saleAt(env.owner, time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC), "Ayam Goreng", 15000, 2))
	env.store.AddTransaction(saleAt(env.owner, time.Date(2024, 3, 5, 10, 0, 0, 0, time.UTC), "Es Teh", 5000, 3))

	rec := env.do(http.MethodGet, "/api/v1/reports/sales?start=2024-03-02&sort=revenue&dir=desc", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	summary := decodeBody[report.Summary](t, rec)
	require.Len(t, summary.Rows, 1)
	assert.Equal(t, "Es Teh", summary.Rows[0].Name)

	rec = env.do(http.MethodGet, "/api/v1/reports/sales.csv", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/csv; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "laporan-penjualan-2024-03-10.csv")
	assert.True(t, strings.HasPrefix(rec.Body.String(), "Laporan Penjualan\nUser: Budi Santoso\nTanggal Export: 10/03/2024 09.00.00\n"))

	rec = env.do(http.MethodGet, "/api/v1/reports/sales.html", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Rp 45.000")

	rec = env.do(http.MethodGet, "/api/v1/reports/sales?start=2024-03-05&end=2024-03-01", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestReportItems(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(http.MethodPost, "/api/v1/reports/items", map[string]any{
		"name": "Titipan Kue", "weight": "1 pcs", "price": "3000", "quantity": 4,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.True(t, strings.HasPrefix(decodeBody[models.Transaction](t, rec).TransactionNumber, "ADJ-"))

	rec = env.do(http.MethodPut, "/api/v1/reports/items", map[string]any{
		"original_name": "Kopi", "name": "Kopi", "price": "1", "quantity": 1,
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do(http.MethodDelete, "/api/v1/reports/items", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(http.MethodDelete, "/api/v1/reports/items?name=Kopi", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDashboard(t *testing.T) {
	env := newTestEnv(t)
	env.store.AddProduct(env.owner, "Es Teh", "1 gelas", 5000, 2)
	env.store.AddTransaction(saleAt(env.owner, time.Now(), "Es Teh", 5000, 1))

	rec := env.do(http.MethodGet, "/api/v1/dashboard", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	d := decodeBody[report.Dashboard](t, rec)
	assert.Equal(t, int64(1), d.ProductCount)
	assert.Len(t, d.LowStock, 1)
	assert.Len(t, d.Recent, 1)
}

func workbook(t *testing.T, rows [][]any) []byte {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()
	sheet := f.GetSheetName(0)
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		require.NoError(t, f.SetSheetRow(sheet, cell, &row))
	}
	var buf bytes.Buffer
	require.NoError(t, f.Write(&buf))
	return buf.Bytes()
}

func TestImportPreviewAndCommit(t *testing.T) {
	env := newTestEnv(t)
	env.store.AddProduct(env.owner, "Beras", "5kg", 75000, 10)

	data := workbook(t, [][]any{
		{"Nama Produk", "Ukuran/Berat", "Harga", "Stok"},
		{"beras ", "5KG", 70000, 5},
		{"Gula", "1kg", 16000, 20},
		{"Minyak", "1L", 0, 3},
		{"gula", "1kg", 15000, 1},
	})

	rec := env.upload("/api/v1/imports/preview", "file", "produk.xlsx", data)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	preview := decodeBody[importPreview](t, rec)
	assert.Equal(t, importer.Summary{Total: 4, Valid: 1, Invalid: 1, Duplicate: 2}, preview.Summary)

	rec = env.upload("/api/v1/imports", "file", "produk.xlsx", data)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	result := decodeBody[importer.Result](t, rec)
	assert.Equal(t, 1, result.Succeeded)
	assert.False(t, result.Cancelled)

	count, _ := env.store.CountProducts(context.Background(), env.owner)
	assert.Equal(t, int64(2), count)
}

func TestImportRejectsWrongFileType(t *testing.T) {
	env := newTestEnv(t)

	rec := env.upload("/api/v1/imports/preview", "file", "produk.csv", []byte("a,b,c,d"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestImportJobRegistry(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(http.MethodDelete, "/api/v1/imports/current", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	flag, ok := env.server.jobs.start(env.owner)
	require.True(t, ok)

	rec = env.upload("/api/v1/imports", "file", "produk.xlsx", workbook(t, [][]any{{"h"}}))
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = env.do(http.MethodDelete, "/api/v1/imports/current", nil)
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.True(t, flag.Load())

	env.server.jobs.finish(env.owner)
	_, ok = env.server.jobs.start(env.owner)
	assert.True(t, ok)
}

func TestImportTemplate(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(http.MethodGet, "/api/v1/imports/template", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "template_import_produk.xlsx")

	f, err := excelize.OpenReader(bytes.NewReader(rec.Body.Bytes()))
	require.NoError(t, err)
	defer f.Close()
	header, err := f.GetCellValue(f.GetSheetName(0), "A1")
	require.NoError(t, err)
	assert.Equal(t, "Nama Produk", header)
}
