package postgres

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/dmarkhas/catalog-api/internal/domain/category"
)

const (
	insertCategorySQL = `INSERT INTO categories (id, name) VALUES ($1, $2)`

	updateCategorySQL = `UPDATE categories SET name = $2 WHERE id = $1`

	deleteCategorySQL = `DELETE FROM categories WHERE id = $1`

	listCategoriesSQL = `SELECT id, name FROM categories ORDER BY name`

	getCategoryByIDSQL = `SELECT id, name FROM categories WHERE id = $1`

	getCategoryByNameSQL = `SELECT id, name FROM categories WHERE UPPER(name) = UPPER($1)`

	getCategoriesByIDsSQL = `SELECT id, name FROM categories
		WHERE id = ANY($1::uuid[]) ORDER BY name`

	searchCategoriesSQL = `SELECT id, name FROM categories
		WHERE name ILIKE '%' || $1 || '%' ORDER BY name`
)

var _ category.Repository = (*CategoryRepository)(nil)

// CategoryRepository implements category.Repository backed by PostgreSQL.
type CategoryRepository struct {
	db querier
}

// Insert persists a new category.
func (r *CategoryRepository) Insert(ctx context.Context, c *category.Category) error {
	if _, err := r.db.Exec(ctx, insertCategorySQL, c.ID, c.Name); err != nil {
		if isUniqueViolation(err) {
			return category.ErrNameExists
		}
		return errors.Wrapf(err, "insert category %q", c.ID)
	}
	return nil
}

// Update renames an existing category.
func (r *CategoryRepository) Update(ctx context.Context, c *category.Category) error {
	tag, err := r.db.Exec(ctx, updateCategorySQL, c.ID, c.Name)
	if err != nil {
		if isUniqueViolation(err) {
			return category.ErrNameExists
		}
		return errors.Wrapf(err, "update category %q", c.ID)
	}
	if tag.RowsAffected() == 0 {
		return category.ErrNotFound
	}
	return nil
}

// Delete removes a category.
func (r *CategoryRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx, deleteCategorySQL, id)
	if err != nil {
		return errors.Wrapf(err, "delete category %q", id)
	}
	if tag.RowsAffected() == 0 {
		return category.ErrNotFound
	}
	return nil
}

// List returns all categories ordered by name.
func (r *CategoryRepository) List(ctx context.Context) ([]category.Category, error) {
	rows, err := r.db.Query(ctx, listCategoriesSQL)
	if err != nil {
		return nil, errors.Wrap(err, "list categories")
	}
	return pgx.CollectRows(rows, scanCategory)
}

// GetByID returns a single category by its identifier.
func (r *CategoryRepository) GetByID(ctx context.Context, id string) (*category.Category, error) {
	return r.getOne(ctx, getCategoryByIDSQL, id)
}

// GetByName returns a single category by case-insensitive exact name.
func (r *CategoryRepository) GetByName(ctx context.Context, name string) (*category.Category, error) {
	return r.getOne(ctx, getCategoryByNameSQL, name)
}

// GetByIDs returns the subset of categories matching the given ids, ordered
// by name. Ids that are not valid UUID tokens are dropped before the query
// so one malformed id cannot fail the whole batch.
func (r *CategoryRepository) GetByIDs(ctx context.Context, ids []string) ([]category.Category, error) {
	valid := make([]string, 0, len(ids))
	for _, id := range ids {
		if uuid.Validate(id) == nil {
			valid = append(valid, id)
		}
	}
	if len(valid) == 0 {
		return []category.Category{}, nil
	}

	rows, err := r.db.Query(ctx, getCategoriesByIDsSQL, valid)
	if err != nil {
		return nil, errors.Wrap(err, "get categories by ids")
	}
	return pgx.CollectRows(rows, scanCategory)
}

// Search returns categories whose name contains term, case-insensitively.
func (r *CategoryRepository) Search(ctx context.Context, term string) ([]category.Category, error) {
	rows, err := r.db.Query(ctx, searchCategoriesSQL, term)
	if err != nil {
		return nil, errors.Wrap(err, "search categories")
	}
	return pgx.CollectRows(rows, scanCategory)
}

func (r *CategoryRepository) getOne(ctx context.Context, sql string, arg any) (*category.Category, error) {
	rows, err := r.db.Query(ctx, sql, arg)
	if err != nil {
		return nil, errors.Wrap(err, "query category")
	}
	c, err := pgx.CollectExactlyOneRow(rows, scanCategory)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, category.ErrNotFound
		}
		return nil, errors.Wrap(err, "scan category")
	}
	return &c, nil
}

func scanCategory(row pgx.CollectableRow) (category.Category, error) {
	var c category.Category
	err := row.Scan(&c.ID, &c.Name)
	return c, err
}
