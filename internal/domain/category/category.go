package category

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
)

// Sentinel errors for category lookups and writes.
var (
	ErrNotFound   = errors.New("category not found")
	ErrNameExists = errors.New("category name already exists")
)

// Category is a named grouping referenced by many products. Categories are
// never owned by a product: deleting a product leaves its categories intact.
type Category struct {
	ID   string
	Name string
}

// Repository defines persistence operations for categories.
type Repository interface {
	Insert(ctx context.Context, c *Category) error
	Update(ctx context.Context, c *Category) error
	Delete(ctx context.Context, id string) error
	List(ctx context.Context) ([]Category, error)
	GetByID(ctx context.Context, id string) (*Category, error)
	// GetByName matches the name case-insensitively but exactly.
	GetByName(ctx context.Context, name string) (*Category, error)
	// GetByIDs returns the subset of categories whose id is in ids, ordered
	// by name. Unmatched and malformed ids are silently dropped; callers
	// decide whether an empty result is an error.
	GetByIDs(ctx context.Context, ids []string) ([]Category, error)
	// Search matches the term as a case-insensitive substring of the name.
	Search(ctx context.Context, term string) ([]Category, error)
}

// Resolve finds a category by a user-supplied term: by id when the term is a
// syntactically valid UUID, otherwise by case-insensitive exact name.
func Resolve(ctx context.Context, repo Repository, term string) (*Category, error) {
	if uuid.Validate(term) == nil {
		return repo.GetByID(ctx, term)
	}
	return repo.GetByName(ctx, term)
}
