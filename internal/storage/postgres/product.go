package postgres

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/dmarkhas/catalog-api/internal/domain/category"
	"github.com/dmarkhas/catalog-api/internal/domain/product"
)

const (
	insertProductSQL = `INSERT INTO products (id, name, description, price, stock)
		VALUES ($1, $2, $3, $4, $5)`

	updateProductSQL = `UPDATE products
		SET name = $2, description = $3, price = $4, stock = $5, updated_at = now()
		WHERE id = $1`

	deleteProductSQL = `DELETE FROM products WHERE id = $1`

	unlinkCategoriesSQL = `DELETE FROM products_categories WHERE product_id = $1`

	linkCategoriesSQL = `INSERT INTO products_categories (product_id, category_id)
		SELECT $1, unnest($2::uuid[])`

	getProductByIDSQL = `SELECT id, name, description, price, stock
		FROM products WHERE id = $1`

	getProductByNameSQL = `SELECT id, name, description, price, stock
		FROM products WHERE name = $1`

	listProductsSQL = `SELECT id, name, description, price, stock
		FROM products ORDER BY name`

	searchProductsSQL = `SELECT id, name, description, price, stock
		FROM products WHERE name ILIKE '%' || $1 || '%' ORDER BY name`

	imagesForProductsSQL = `SELECT id, product_id, secure_url, asset_id
		FROM product_images WHERE product_id = ANY($1) ORDER BY id`

	categoriesForProductsSQL = `SELECT pc.product_id, c.id, c.name
		FROM products_categories pc
		JOIN categories c ON c.id = pc.category_id
		WHERE pc.product_id = ANY($1)
		ORDER BY c.name`
)

var _ product.Repository = (*ProductRepository)(nil)

// ProductRepository implements product.Repository backed by PostgreSQL.
// Relations are loaded explicitly with follow-up queries rather than through
// ORM-style eager loading.
type ProductRepository struct {
	db querier
}

// Insert persists the product row. Images and category links are written by
// their own repositories.
func (r *ProductRepository) Insert(ctx context.Context, p *product.Product) error {
	_, err := r.db.Exec(ctx, insertProductSQL, p.ID, p.Name, p.Description, p.Price, p.Stock)
	if err != nil {
		if isUniqueViolation(err) {
			return product.ErrNameExists
		}
		return errors.Wrapf(err, "insert product %q", p.ID)
	}
	return nil
}

// Update writes the scalar columns of the product row.
func (r *ProductRepository) Update(ctx context.Context, p *product.Product) error {
	tag, err := r.db.Exec(ctx, updateProductSQL, p.ID, p.Name, p.Description, p.Price, p.Stock)
	if err != nil {
		if isUniqueViolation(err) {
			return product.ErrNameExists
		}
		return errors.Wrapf(err, "update product %q", p.ID)
	}
	if tag.RowsAffected() == 0 {
		return product.ErrNotFound
	}
	return nil
}

// Delete removes the product's category links and then the product row.
func (r *ProductRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.Exec(ctx, unlinkCategoriesSQL, id); err != nil {
		return errors.Wrapf(err, "unlink categories of product %q", id)
	}
	tag, err := r.db.Exec(ctx, deleteProductSQL, id)
	if err != nil {
		return errors.Wrapf(err, "delete product %q", id)
	}
	if tag.RowsAffected() == 0 {
		return product.ErrNotFound
	}
	return nil
}

// GetByID returns one product with images and categories attached.
func (r *ProductRepository) GetByID(ctx context.Context, id string) (*product.Product, error) {
	return r.getOne(ctx, getProductByIDSQL, id)
}

// GetByName returns one product by exact name with relations attached.
func (r *ProductRepository) GetByName(ctx context.Context, name string) (*product.Product, error) {
	return r.getOne(ctx, getProductByNameSQL, name)
}

// List returns all products ordered by name, with relations attached.
func (r *ProductRepository) List(ctx context.Context) ([]product.Product, error) {
	return r.getMany(ctx, listProductsSQL)
}

// SearchByName returns products whose name contains term, case-insensitively.
func (r *ProductRepository) SearchByName(ctx context.Context, term string) ([]product.Product, error) {
	return r.getMany(ctx, searchProductsSQL, term)
}

// ReplaceCategories replaces the product's category links wholesale.
func (r *ProductRepository) ReplaceCategories(ctx context.Context, productID string, categoryIDs []string) error {
	if _, err := r.db.Exec(ctx, unlinkCategoriesSQL, productID); err != nil {
		return errors.Wrapf(err, "unlink categories of product %q", productID)
	}
	if len(categoryIDs) == 0 {
		return nil
	}
	if _, err := r.db.Exec(ctx, linkCategoriesSQL, productID, categoryIDs); err != nil {
		return errors.Wrapf(err, "link categories of product %q", productID)
	}
	return nil
}

func (r *ProductRepository) getOne(ctx context.Context, sql string, arg any) (*product.Product, error) {
	rows, err := r.db.Query(ctx, sql, arg)
	if err != nil {
		return nil, errors.Wrap(err, "query product")
	}
	p, err := pgx.CollectExactlyOneRow(rows, scanProduct)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, product.ErrNotFound
		}
		return nil, errors.Wrap(err, "scan product")
	}
	if err := r.attachRelations(ctx, []*product.Product{&p}); err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *ProductRepository) getMany(ctx context.Context, sql string, args ...any) ([]product.Product, error) {
	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, errors.Wrap(err, "query products")
	}
	products, err := pgx.CollectRows(rows, scanProduct)
	if err != nil {
		return nil, errors.Wrap(err, "scan products")
	}

	refs := make([]*product.Product, len(products))
	for i := range products {
		refs[i] = &products[i]
	}
	if err := r.attachRelations(ctx, refs); err != nil {
		return nil, err
	}
	return products, nil
}

// attachRelations batch-loads images and categories for all given products.
func (r *ProductRepository) attachRelations(ctx context.Context, products []*product.Product) error {
	if len(products) == 0 {
		return nil
	}

	ids := make([]string, len(products))
	byID := make(map[string]*product.Product, len(products))
	for i, p := range products {
		ids[i] = p.ID
		byID[p.ID] = p
		p.Images = []product.Image{}
		p.Categories = []category.Category{}
	}

	imgRows, err := r.db.Query(ctx, imagesForProductsSQL, ids)
	if err != nil {
		return errors.Wrap(err, "query images")
	}
	defer imgRows.Close()
	for imgRows.Next() {
		var (
			img       product.Image
			productID string
		)
		if err := imgRows.Scan(&img.ID, &productID, &img.SecureURL, &img.AssetID); err != nil {
			return errors.Wrap(err, "scan image")
		}
		if p, ok := byID[productID]; ok {
			p.Images = append(p.Images, img)
		}
	}
	if err := imgRows.Err(); err != nil {
		return errors.Wrap(err, "iterate images")
	}

	catRows, err := r.db.Query(ctx, categoriesForProductsSQL, ids)
	if err != nil {
		return errors.Wrap(err, "query categories")
	}
	defer catRows.Close()
	for catRows.Next() {
		var (
			c         category.Category
			productID string
		)
		if err := catRows.Scan(&productID, &c.ID, &c.Name); err != nil {
			return errors.Wrap(err, "scan category")
		}
		if p, ok := byID[productID]; ok {
			p.Categories = append(p.Categories, c)
		}
	}
	if err := catRows.Err(); err != nil {
		return errors.Wrap(err, "iterate categories")
	}

	return nil
}

func scanProduct(row pgx.CollectableRow) (product.Product, error) {
	var (
		p     product.Product
		price decimal.Decimal
	)
	err := row.Scan(&p.ID, &p.Name, &p.Description, &price, &p.Stock)
	p.Price = price
	return p, err
}
