package postgres

import (
	"context"

	"github.com/go-faster/errors"

	"github.com/dmarkhas/catalog-api/internal/domain/product"
)

const (
	insertImageSQL = `INSERT INTO product_images (id, product_id, secure_url, asset_id)
		VALUES ($1, $2, $3, $4)`

	deleteImagesByProductSQL = `DELETE FROM product_images WHERE product_id = $1`
)

var _ product.ImageRepository = (*ImageRepository)(nil)

// ImageRepository implements product.ImageRepository backed by PostgreSQL.
type ImageRepository struct {
	db querier
}

// InsertBatch persists one image row per upload result, all owned by the
// given product.
func (r *ImageRepository) InsertBatch(ctx context.Context, productID string, images []product.Image) error {
	for _, img := range images {
		if _, err := r.db.Exec(ctx, insertImageSQL, img.ID, productID, img.SecureURL, img.AssetID); err != nil {
			return errors.Wrapf(err, "insert image %q for product %q", img.ID, productID)
		}
	}
	return nil
}

// DeleteByProduct removes every image row owned by the product.
func (r *ImageRepository) DeleteByProduct(ctx context.Context, productID string) error {
	if _, err := r.db.Exec(ctx, deleteImagesByProductSQL, productID); err != nil {
		return errors.Wrapf(err, "delete images of product %q", productID)
	}
	return nil
}
