package catalog

import (
	"fmt"

	"github.com/go-faster/errors"
)

// ErrNoUploadResults signals that the image host accepted the request but
// returned zero upload results.
var ErrNoUploadResults = errors.New("image host returned no upload results")

// ValidationError indicates bad input: the operation failed before any
// state changed and is safe to retry after fixing the request.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "validation: " + e.Reason
}

// ConflictError indicates a product with the same name already exists.
type ConflictError struct {
	Name string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("product %q already exists", e.Name)
}

// UploadError indicates the image host failed to produce upload results. The
// database transaction was rolled back, but remote side effects may have
// partially happened; retrying may duplicate assets.
type UploadError struct {
	Err error
}

func (e *UploadError) Error() string {
	return "upload images: " + e.Err.Error()
}

func (e *UploadError) Unwrap() error { return e.Err }

// CreateError wraps an unexpected failure during product creation. All row
// writes of the failed call were rolled back.
type CreateError struct {
	Err error
}

func (e *CreateError) Error() string {
	return "create product: " + e.Err.Error()
}

func (e *CreateError) Unwrap() error { return e.Err }

// UpdateError wraps an unexpected failure during product update. All row
// writes of the failed call were rolled back.
type UpdateError struct {
	Err error
}

func (e *UpdateError) Error() string {
	return "update product: " + e.Err.Error()
}

func (e *UpdateError) Unwrap() error { return e.Err }

// DeleteError wraps an unexpected failure during product deletion.
type DeleteError struct {
	Err error
}

func (e *DeleteError) Error() string {
	return "delete product: " + e.Err.Error()
}

func (e *DeleteError) Unwrap() error { return e.Err }
