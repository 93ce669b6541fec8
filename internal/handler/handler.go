// Package handler exposes the catalog over HTTP. Read routes are public;
// write routes require a valid API key.
package handler

import (
	"context"
	"net/http"

	"github.com/dmarkhas/catalog-api/internal/domain/asset"
	"github.com/dmarkhas/catalog-api/internal/domain/auth"
	"github.com/dmarkhas/catalog-api/internal/domain/catalog"
	"github.com/dmarkhas/catalog-api/internal/domain/category"
	"github.com/dmarkhas/catalog-api/internal/domain/product"
)

// Catalog is the slice of the write coordinator the handlers use.
type Catalog interface {
	Create(ctx context.Context, req catalog.CreateRequest, files []asset.File) (*product.Product, error)
	Update(ctx context.Context, id string, req catalog.UpdateRequest, files []asset.File) (*product.Product, error)
	Delete(ctx context.Context, id string) error
	GetPlain(ctx context.Context, id string) (*catalog.PlainProduct, error)
	ListPlain(ctx context.Context) ([]catalog.PlainProduct, error)
	Search(ctx context.Context, term string) ([]catalog.PlainProduct, error)
}

// Config holds non-dependency configuration for the Handler.
type Config struct {
	// APIKeyPepper is the HMAC pepper used to hash incoming API keys.
	APIKeyPepper []byte
	// MaxFiles caps the number of files accepted per write request.
	MaxFiles int
	// MaxFileSize caps the size of a single uploaded file, in bytes.
	MaxFileSize int64
}

// Handler serves the catalog API.
type Handler struct {
	catalog    Catalog
	categories category.Repository
	apikeys    auth.Repository

	pepper      []byte
	maxFiles    int
	maxFileSize int64
}

// New constructs a Handler with the required dependencies.
func New(cfg Config, cat Catalog, categories category.Repository, apikeys auth.Repository) *Handler {
	if cfg.MaxFiles <= 0 {
		cfg.MaxFiles = 10
	}
	if cfg.MaxFileSize <= 0 {
		cfg.MaxFileSize = 5 << 20
	}
	return &Handler{
		catalog:     cat,
		categories:  categories,
		apikeys:     apikeys,
		pepper:      cfg.APIKeyPepper,
		maxFiles:    cfg.MaxFiles,
		maxFileSize: cfg.MaxFileSize,
	}
}

// Routes returns the API route table. Mutating routes are wrapped with API
// key authentication.
func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/products", h.listProducts)
	mux.HandleFunc("GET /api/products/{id}", h.getProduct)
	mux.HandleFunc("GET /api/products/search/{term}", h.searchProducts)
	mux.Handle("POST /api/products", h.requireAPIKey(http.HandlerFunc(h.createProduct)))
	mux.Handle("PATCH /api/products/{id}", h.requireAPIKey(http.HandlerFunc(h.updateProduct)))
	mux.Handle("DELETE /api/products/{id}", h.requireAPIKey(http.HandlerFunc(h.deleteProduct)))

	mux.HandleFunc("GET /api/categories", h.listCategories)
	mux.HandleFunc("GET /api/categories/{term}", h.getCategory)
	mux.HandleFunc("GET /api/categories/search/{term}", h.searchCategories)
	mux.Handle("POST /api/categories", h.requireAPIKey(http.HandlerFunc(h.createCategory)))
	mux.Handle("PATCH /api/categories/{id}", h.requireAPIKey(http.HandlerFunc(h.updateCategory)))
	mux.Handle("DELETE /api/categories/{id}", h.requireAPIKey(http.HandlerFunc(h.deleteCategory)))

	return mux
}
