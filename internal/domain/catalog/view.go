package catalog

import (
	"github.com/shopspring/decimal"

	"github.com/dmarkhas/catalog-api/internal/domain/product"
)

// PlainProduct is the denormalized read shape other components depend on:
// images flattened to secure URLs, categories flattened to names. Category
// order follows the lookup order (by name), so repeated reads of unchanged
// data are stable.
type PlainProduct struct {
	ID          string
	Name        string
	Description string
	Price       decimal.Decimal
	Stock       int
	Images      []string
	Categories  []string
}

// Plain flattens a product into its read view.
func Plain(p product.Product) PlainProduct {
	images := make([]string, len(p.Images))
	for i, img := range p.Images {
		images[i] = img.SecureURL
	}
	categories := make([]string, len(p.Categories))
	for i, c := range p.Categories {
		categories[i] = c.Name
	}
	return PlainProduct{
		ID:          p.ID,
		Name:        p.Name,
		Description: p.Description,
		Price:       p.Price,
		Stock:       p.Stock,
		Images:      images,
		Categories:  categories,
	}
}

// PlainAll flattens a slice of products.
func PlainAll(products []product.Product) []PlainProduct {
	out := make([]PlainProduct, len(products))
	for i, p := range products {
		out[i] = Plain(p)
	}
	return out
}
