package product

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/dmarkhas/catalog-api/internal/domain/category"
)

// Sentinel errors for product lookups and writes.
var (
	ErrNotFound   = errors.New("product not found")
	ErrNameExists = errors.New("product name already exists")
)

// Product is a catalog item. Images are exclusively owned by the product and
// follow its lifecycle; categories are shared associations.
type Product struct {
	ID          string
	Name        string
	Description string
	Price       decimal.Decimal
	Stock       int
	Images      []Image
	Categories  []category.Category
}

// Image is an externally hosted binary represented locally by its secure URL
// and the external asset id used for remote deletion.
type Image struct {
	ID        string
	SecureURL string
	AssetID   string
}

// Repository defines persistence operations for product rows and their
// category links. Relation loading is explicit: GetByID, GetByName, List and
// SearchByName return products with images and categories attached.
type Repository interface {
	Insert(ctx context.Context, p *Product) error
	// Update writes the scalar columns of p. It does not touch images or
	// category links.
	Update(ctx context.Context, p *Product) error
	// Delete removes the product row and its category links. Image rows are
	// removed separately through ImageRepository.
	Delete(ctx context.Context, id string) error
	GetByID(ctx context.Context, id string) (*Product, error)
	GetByName(ctx context.Context, name string) (*Product, error)
	List(ctx context.Context) ([]Product, error)
	// SearchByName matches the term as a case-insensitive substring.
	SearchByName(ctx context.Context, term string) ([]Product, error)
	// ReplaceCategories replaces the product's category links wholesale.
	ReplaceCategories(ctx context.Context, productID string, categoryIDs []string) error
}

// ImageRepository defines persistence operations for product-owned image rows.
type ImageRepository interface {
	InsertBatch(ctx context.Context, productID string, images []Image) error
	DeleteByProduct(ctx context.Context, productID string) error
}
