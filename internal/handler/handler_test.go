package handler

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmarkhas/catalog-api/internal/domain/asset"
	"github.com/dmarkhas/catalog-api/internal/domain/auth"
	"github.com/dmarkhas/catalog-api/internal/domain/catalog"
	"github.com/dmarkhas/catalog-api/internal/domain/category"
	"github.com/dmarkhas/catalog-api/internal/domain/product"
)

// --- Mock implementations ---

type mockCatalog struct {
	createReq   *catalog.CreateRequest
	createFiles []asset.File
	created     *product.Product
	createErr   error

	updateID  string
	updateReq *catalog.UpdateRequest
	updated   *product.Product
	updateErr error

	deleteID  string
	deleteErr error

	plain      *catalog.PlainProduct
	plains     []catalog.PlainProduct
	searchTerm string
	readErr    error
}

func (m *mockCatalog) Create(_ context.Context, req catalog.CreateRequest, files []asset.File) (*product.Product, error) {
	m.createReq = &req
	m.createFiles = files
	return m.created, m.createErr
}

func (m *mockCatalog) Update(_ context.Context, id string, req catalog.UpdateRequest, files []asset.File) (*product.Product, error) {
	m.updateID = id
	m.updateReq = &req
	m.createFiles = files
	return m.updated, m.updateErr
}

func (m *mockCatalog) Delete(_ context.Context, id string) error {
	m.deleteID = id
	return m.deleteErr
}

func (m *mockCatalog) GetPlain(_ context.Context, _ string) (*catalog.PlainProduct, error) {
	return m.plain, m.readErr
}

func (m *mockCatalog) ListPlain(_ context.Context) ([]catalog.PlainProduct, error) {
	return m.plains, m.readErr
}

func (m *mockCatalog) Search(_ context.Context, term string) ([]catalog.PlainProduct, error) {
	m.searchTerm = term
	return m.plains, m.readErr
}

type mockCategoryRepo struct {
	byID     map[string]category.Category
	byName   map[string]category.Category
	inserted *category.Category
	updated  *category.Category
	deleted  string
	err      error
}

func (m *mockCategoryRepo) Insert(_ context.Context, c *category.Category) error {
	m.inserted = c
	return m.err
}

func (m *mockCategoryRepo) Update(_ context.Context, c *category.Category) error {
	m.updated = c
	return m.err
}

func (m *mockCategoryRepo) Delete(_ context.Context, id string) error {
	m.deleted = id
	return m.err
}

func (m *mockCategoryRepo) List(_ context.Context) ([]category.Category, error) {
	out := make([]category.Category, 0, len(m.byID))
	for _, c := range m.byID {
		out = append(out, c)
	}
	return out, m.err
}

func (m *mockCategoryRepo) GetByID(_ context.Context, id string) (*category.Category, error) {
	if c, ok := m.byID[id]; ok {
		return &c, nil
	}
	return nil, category.ErrNotFound
}

func (m *mockCategoryRepo) GetByName(_ context.Context, name string) (*category.Category, error) {
	if c, ok := m.byName[strings.ToLower(name)]; ok {
		return &c, nil
	}
	return nil, category.ErrNotFound
}

func (m *mockCategoryRepo) GetByIDs(_ context.Context, ids []string) ([]category.Category, error) {
	var out []category.Category
	for _, id := range ids {
		if c, ok := m.byID[id]; ok {
			out = append(out, c)
		}
	}
	return out, nil
}

func (m *mockCategoryRepo) Search(_ context.Context, term string) ([]category.Category, error) {
	var out []category.Category
	for _, c := range m.byID {
		if strings.Contains(strings.ToLower(c.Name), strings.ToLower(term)) {
			out = append(out, c)
		}
	}
	return out, nil
}

type mockAPIKeys struct {
	byHash map[string]*auth.APIKey
}

func (m *mockAPIKeys) FindByHash(_ context.Context, hash string) (*auth.APIKey, error) {
	if k, ok := m.byHash[hash]; ok {
		return k, nil
	}
	return nil, auth.ErrKeyNotFound
}

func (m *mockAPIKeys) Upsert(_ context.Context, _ *auth.APIKey) error { return nil }

// --- Helpers ---

const (
	testAPIKey = "secret-key"
	testPepper = "test-pepper"
)

// pngHeader is enough for content sniffing to report image/png.
var pngHeader = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1A, '\n'}

func keyHash(key string) string {
	mac := hmac.New(sha256.New, []byte(testPepper))
	mac.Write([]byte(key))
	return hex.EncodeToString(mac.Sum(nil))
}

func newTestHandler(cat *mockCatalog, cats *mockCategoryRepo) http.Handler {
	keys := &mockAPIKeys{byHash: map[string]*auth.APIKey{
		keyHash(testAPIKey): {ID: "k-1", KeyHash: keyHash(testAPIKey), Name: "test"},
	}}
	h := New(Config{APIKeyPepper: []byte(testPepper)}, cat, cats, keys)
	return h.Routes()
}

func multipartRequest(t *testing.T, method, target string, fields map[string][]string, files map[string][]byte) *http.Request {
	t.Helper()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for key, values := range fields {
		for _, v := range values {
			require.NoError(t, mw.WriteField(key, v))
		}
	}
	for name, data := range files {
		fw, err := mw.CreateFormFile(fileField, name)
		require.NoError(t, err)
		_, err = fw.Write(data)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(method, target, &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set(apiKeyHeader, testAPIKey)
	return req
}

func createFields() map[string][]string {
	return map[string][]string{
		"name":        {"Widget"},
		"description": {"A fine widget"},
		"price":       {"19.99"},
		"stock":       {"5"},
		"categories":  {"c-1,c-2"},
	}
}

func testProduct() *product.Product {
	return &product.Product{
		ID:          "p-1",
		Name:        "Widget",
		Description: "A fine widget",
		Price:       decimal.RequireFromString("19.99"),
		Stock:       5,
		Images:      []product.Image{{ID: "i-1", SecureURL: "https://media.test/w.jpg", AssetID: "assets/w"}},
		Categories:  []category.Category{{ID: "c-1", Name: "Books"}},
	}
}

func jsonBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

// --- Product reads ---

func TestListProducts(t *testing.T) {
	cat := &mockCatalog{plains: []catalog.PlainProduct{
		{ID: "p-1", Name: "Widget", Price: decimal.RequireFromString("19.99"), Images: []string{"u"}, Categories: []string{"Books"}},
	}}
	router := newTestHandler(cat, &mockCategoryRepo{})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/products", nil))

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	var got []map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	require.Len(t, got, 1)
	assert.Equal(t, "Widget", got[0]["name"])
	assert.Equal(t, 19.99, got[0]["price"])
	assert.Equal(t, []any{"u"}, got[0]["images"])
	assert.Equal(t, []any{"Books"}, got[0]["categories"])
}

func TestGetProduct_NotFound(t *testing.T) {
	cat := &mockCatalog{readErr: product.ErrNotFound}
	router := newTestHandler(cat, &mockCategoryRepo{})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/products/missing", nil))

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSearchProducts(t *testing.T) {
	cat := &mockCatalog{plains: []catalog.PlainProduct{}}
	router := newTestHandler(cat, &mockCategoryRepo{})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/products/search/blue%20widget", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "blue widget", cat.searchTerm)
	assert.JSONEq(t, `[]`, w.Body.String())
}

// --- Product writes ---

func TestCreateProduct_Success(t *testing.T) {
	cat := &mockCatalog{created: testProduct()}
	router := newTestHandler(cat, &mockCategoryRepo{})

	req := multipartRequest(t, http.MethodPost, "/api/products", createFields(), map[string][]byte{"w.png": pngHeader})
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	require.NotNil(t, cat.createReq)
	assert.Equal(t, "Widget", cat.createReq.Name)
	assert.Equal(t, []string{"c-1", "c-2"}, cat.createReq.CategoryIDs)
	require.Len(t, cat.createFiles, 1)
	assert.Equal(t, "w.png", cat.createFiles[0].Name)
	assert.Equal(t, "image/png", cat.createFiles[0].ContentType)

	body := jsonBody(t, w)
	assert.Equal(t, "p-1", body["id"])
	assert.Equal(t, []any{"https://media.test/w.jpg"}, body["images"])
	assert.Equal(t, []any{"Books"}, body["categories"])
}

func TestCreateProduct_RequiresAPIKey(t *testing.T) {
	cat := &mockCatalog{created: testProduct()}
	router := newTestHandler(cat, &mockCategoryRepo{})

	req := multipartRequest(t, http.MethodPost, "/api/products", createFields(), map[string][]byte{"w.png": pngHeader})
	req.Header.Del(apiKeyHeader)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Nil(t, cat.createReq, "handler must not run without a key")
}

func TestCreateProduct_UnknownAPIKey(t *testing.T) {
	router := newTestHandler(&mockCatalog{}, &mockCategoryRepo{})

	req := multipartRequest(t, http.MethodPost, "/api/products", createFields(), map[string][]byte{"w.png": pngHeader})
	req.Header.Set(apiKeyHeader, "wrong-key")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestCreateProduct_ShortName(t *testing.T) {
	router := newTestHandler(&mockCatalog{}, &mockCategoryRepo{})

	fields := createFields()
	fields["name"] = []string{"ab"}
	req := multipartRequest(t, http.MethodPost, "/api/products", fields, map[string][]byte{"w.png": pngHeader})
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, jsonBody(t, w)["message"], "name")
}

func TestCreateProduct_InvalidPrice(t *testing.T) {
	router := newTestHandler(&mockCatalog{}, &mockCategoryRepo{})

	for _, price := range []string{"abc", "0", "-5"} {
		fields := createFields()
		fields["price"] = []string{price}
		req := multipartRequest(t, http.MethodPost, "/api/products", fields, map[string][]byte{"w.png": pngHeader})
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code, "price %q", price)
	}
}

func TestCreateProduct_NoFiles(t *testing.T) {
	router := newTestHandler(&mockCatalog{}, &mockCategoryRepo{})

	req := multipartRequest(t, http.MethodPost, "/api/products", createFields(), nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, jsonBody(t, w)["message"], "image file")
}

func TestCreateProduct_NonImageFile(t *testing.T) {
	router := newTestHandler(&mockCatalog{}, &mockCategoryRepo{})

	req := multipartRequest(t, http.MethodPost, "/api/products", createFields(),
		map[string][]byte{"notes.txt": []byte("plain text, not an image")})
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, jsonBody(t, w)["message"], "not an image")
}

func TestCreateProduct_DomainErrorMapping(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"validation", &catalog.ValidationError{Reason: "no valid categories resolved"}, http.StatusBadRequest},
		{"conflict", &catalog.ConflictError{Name: "Widget"}, http.StatusConflict},
		{"upload", &catalog.UploadError{Err: errors.New("host down")}, http.StatusBadGateway},
		{"internal", &catalog.CreateError{Err: errors.New("boom")}, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := newTestHandler(&mockCatalog{createErr: tt.err}, &mockCategoryRepo{})

			req := multipartRequest(t, http.MethodPost, "/api/products", createFields(), map[string][]byte{"w.png": pngHeader})
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			assert.Equal(t, tt.want, w.Code)
		})
	}
}

func TestUpdateProduct_PartialPayload(t *testing.T) {
	cat := &mockCatalog{updated: testProduct()}
	router := newTestHandler(cat, &mockCategoryRepo{})

	req := multipartRequest(t, http.MethodPatch, "/api/products/p-1",
		map[string][]string{"price": {"25.00"}}, nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "p-1", cat.updateID)

	require.NotNil(t, cat.updateReq)
	assert.Nil(t, cat.updateReq.Name, "unsupplied fields stay nil")
	assert.Nil(t, cat.updateReq.Stock)
	require.NotNil(t, cat.updateReq.Price)
	assert.True(t, decimal.RequireFromString("25.00").Equal(*cat.updateReq.Price))
	assert.Nil(t, cat.updateReq.CategoryIDs, "absent categories field leaves links alone")
}

func TestUpdateProduct_ReplacesCategories(t *testing.T) {
	cat := &mockCatalog{updated: testProduct()}
	router := newTestHandler(cat, &mockCategoryRepo{})

	req := multipartRequest(t, http.MethodPatch, "/api/products/p-1",
		map[string][]string{"categories": {"c-2"}}, nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	require.NotNil(t, cat.updateReq)
	assert.Equal(t, []string{"c-2"}, cat.updateReq.CategoryIDs)
}

func TestUpdateProduct_NotFound(t *testing.T) {
	cat := &mockCatalog{updateErr: product.ErrNotFound}
	router := newTestHandler(cat, &mockCategoryRepo{})

	req := multipartRequest(t, http.MethodPatch, "/api/products/missing",
		map[string][]string{"stock": {"3"}}, nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestDeleteProduct(t *testing.T) {
	cat := &mockCatalog{}
	router := newTestHandler(cat, &mockCategoryRepo{})

	req := httptest.NewRequest(http.MethodDelete, "/api/products/p-1", nil)
	req.Header.Set(apiKeyHeader, testAPIKey)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "p-1", cat.deleteID)
	assert.Contains(t, jsonBody(t, w)["message"], "deleted")
}

// --- Categories ---

func TestCreateCategory(t *testing.T) {
	cats := &mockCategoryRepo{}
	router := newTestHandler(&mockCatalog{}, cats)

	req := httptest.NewRequest(http.MethodPost, "/api/categories", strings.NewReader(`{"name":"Books"}`))
	req.Header.Set(apiKeyHeader, testAPIKey)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	require.NotNil(t, cats.inserted)
	assert.Equal(t, "Books", cats.inserted.Name)
	assert.NotEmpty(t, cats.inserted.ID)
}

func TestCreateCategory_InvalidBody(t *testing.T) {
	router := newTestHandler(&mockCatalog{}, &mockCategoryRepo{})

	for _, body := range []string{`not json`, `{"name":""}`, `{}`} {
		req := httptest.NewRequest(http.MethodPost, "/api/categories", strings.NewReader(body))
		req.Header.Set(apiKeyHeader, testAPIKey)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code, "body %q", body)
	}
}

func TestCreateCategory_DuplicateName(t *testing.T) {
	cats := &mockCategoryRepo{err: category.ErrNameExists}
	router := newTestHandler(&mockCatalog{}, cats)

	req := httptest.NewRequest(http.MethodPost, "/api/categories", strings.NewReader(`{"name":"Books"}`))
	req.Header.Set(apiKeyHeader, testAPIKey)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestGetCategory_ByName(t *testing.T) {
	books := category.Category{ID: "c-1", Name: "Books"}
	cats := &mockCategoryRepo{
		byID:   map[string]category.Category{"c-1": books},
		byName: map[string]category.Category{"books": books},
	}
	router := newTestHandler(&mockCatalog{}, cats)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/categories/Books", nil))

	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"id":"c-1","name":"Books"}`, w.Body.String())
}

func TestGetCategory_NotFound(t *testing.T) {
	router := newTestHandler(&mockCatalog{}, &mockCategoryRepo{})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/categories/Nope", nil))

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestDeleteCategory(t *testing.T) {
	cats := &mockCategoryRepo{}
	router := newTestHandler(&mockCatalog{}, cats)

	req := httptest.NewRequest(http.MethodDelete, "/api/categories/c-1", nil)
	req.Header.Set(apiKeyHeader, testAPIKey)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "c-1", cats.deleted)
}
