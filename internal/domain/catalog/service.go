// Package catalog implements the product write path: create, update and
// delete of a product together with its owned images and category links.
//
// Every write runs in a single database transaction obtained from Storage.
// Calls to the image host are deliberately outside transactional coverage:
// uploads happen before the row writes they feed, remote deletions are
// best-effort and never abort the local operation. Exactly-once consistency
// across the database and the image host would need an outbox/reconciliation
// job, which this service does not implement.
package catalog

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/dmarkhas/catalog-api/internal/domain/asset"
	"github.com/dmarkhas/catalog-api/internal/domain/category"
	"github.com/dmarkhas/catalog-api/internal/domain/product"
)

// Repositories bundles the stores the write path touches. Inside WithinTx
// all of them operate on the same transaction.
type Repositories interface {
	Products() product.Repository
	Images() product.ImageRepository
	Categories() CategoryLookup
}

// CategoryLookup is the slice of the category repository the coordinator
// needs: batch resolution by id set.
type CategoryLookup interface {
	GetByIDs(ctx context.Context, ids []string) ([]category.Category, error)
}

// Storage provides repositories plus an explicit transaction scope. WithinTx
// runs fn against transaction-bound repositories, commits when fn returns
// nil, and rolls back every row write otherwise.
type Storage interface {
	Repositories
	WithinTx(ctx context.Context, fn func(r Repositories) error) error
}

// Service is the product write coordinator.
type Service struct {
	store  Storage
	assets asset.Gateway
	lg     *zap.Logger
	tele   *Telemetry
}

// NewService creates a Service over the given storage and image host gateway.
func NewService(store Storage, assets asset.Gateway, lg *zap.Logger) *Service {
	return &Service{
		store:  store,
		assets: assets,
		lg:     lg.Named("catalog"),
		tele:   noopTelemetry(),
	}
}

// WithTelemetry replaces the service's no-op instrumentation and returns the
// service for chaining.
func (s *Service) WithTelemetry(t *Telemetry) *Service {
	s.tele = t
	return s
}

// CreateRequest holds the validated payload for creating a product.
type CreateRequest struct {
	Name        string
	Description string
	Price       decimal.Decimal
	Stock       int
	CategoryIDs []string
}

// UpdateRequest holds a partial payload for updating a product. Nil fields
// are left unchanged. A non-nil CategoryIDs replaces the category set
// wholesale.
type UpdateRequest struct {
	Name        *string
	Description *string
	Price       *decimal.Decimal
	Stock       *int
	CategoryIDs []string
}

// Create validates categories, uploads the files, and persists the product
// with its images and category links in one transaction.
//
// The uploads are not covered by the rollback: when a later step fails, the
// already-uploaded assets are deleted best-effort and logged if that fails.
func (s *Service) Create(ctx context.Context, req CreateRequest, files []asset.File) (*product.Product, error) {
	ctx, span := s.tele.tracer.Start(ctx, "catalog.Create")
	defer span.End()

	if len(files) == 0 {
		return nil, &ValidationError{Reason: "at least one image file is required"}
	}

	var (
		created  *product.Product
		uploaded []asset.Upload
	)
	err := s.store.WithinTx(ctx, func(r Repositories) error {
		// Advisory pre-check; the UNIQUE constraint is the final authority.
		if _, err := r.Products().GetByName(ctx, req.Name); err == nil {
			return &ConflictError{Name: req.Name}
		} else if !errors.Is(err, product.ErrNotFound) {
			return errors.Wrap(err, "check existing name")
		}

		cats, err := r.Categories().GetByIDs(ctx, req.CategoryIDs)
		if err != nil {
			return errors.Wrap(err, "resolve categories")
		}
		if len(cats) == 0 {
			return &ValidationError{Reason: "no valid categories resolved"}
		}

		uploaded, err = s.assets.UploadMany(ctx, files)
		if err != nil {
			return &UploadError{Err: err}
		}
		if len(uploaded) == 0 {
			return &UploadError{Err: ErrNoUploadResults}
		}

		p := &product.Product{
			ID:          uuid.New().String(),
			Name:        req.Name,
			Description: req.Description,
			Price:       req.Price,
			Stock:       req.Stock,
			Images:      imagesFromUploads(uploaded),
			Categories:  cats,
		}
		if err := r.Products().Insert(ctx, p); err != nil {
			if errors.Is(err, product.ErrNameExists) {
				return &ConflictError{Name: req.Name}
			}
			return errors.Wrap(err, "insert product")
		}
		if err := r.Images().InsertBatch(ctx, p.ID, p.Images); err != nil {
			return errors.Wrap(err, "insert images")
		}
		if err := r.Products().ReplaceCategories(ctx, p.ID, categoryIDs(cats)); err != nil {
			return errors.Wrap(err, "link categories")
		}

		created = p
		return nil
	})
	if err != nil {
		span.RecordError(err)
		s.compensateUploads(ctx, uploaded)
		return nil, wrapWrite(err, func(cause error) error { return &CreateError{Err: cause} })
	}
	s.tele.writes.Add(ctx, 1, opAttr("create"))
	return created, nil
}

// Update loads the product with its relations, applies the partial payload,
// optionally replaces the category set and the image set wholesale, and
// saves everything in one transaction.
func (s *Service) Update(ctx context.Context, id string, req UpdateRequest, files []asset.File) (*product.Product, error) {
	ctx, span := s.tele.tracer.Start(ctx, "catalog.Update")
	defer span.End()

	var (
		updated  *product.Product
		uploaded []asset.Upload
	)
	err := s.store.WithinTx(ctx, func(r Repositories) error {
		p, err := r.Products().GetByID(ctx, id)
		if err != nil {
			return err
		}

		if req.CategoryIDs != nil {
			cats, err := r.Categories().GetByIDs(ctx, req.CategoryIDs)
			if err != nil {
				return errors.Wrap(err, "resolve categories")
			}
			if len(cats) == 0 {
				return &ValidationError{Reason: "no valid categories resolved"}
			}
			if err := r.Products().ReplaceCategories(ctx, p.ID, categoryIDs(cats)); err != nil {
				return errors.Wrap(err, "replace categories")
			}
			p.Categories = cats
		}

		if req.Name != nil {
			p.Name = *req.Name
		}
		if req.Description != nil {
			p.Description = *req.Description
		}
		if req.Price != nil {
			p.Price = *req.Price
		}
		if req.Stock != nil {
			p.Stock = *req.Stock
		}

		if len(files) > 0 {
			// Old remote assets go first; a partial remote failure does not
			// stop the local replacement.
			s.deleteAssets(ctx, assetIDs(p.Images))
			if err := r.Images().DeleteByProduct(ctx, p.ID); err != nil {
				return errors.Wrap(err, "delete old images")
			}

			uploaded, err = s.assets.UploadMany(ctx, files)
			if err != nil {
				return &UploadError{Err: err}
			}
			if len(uploaded) == 0 {
				return &UploadError{Err: ErrNoUploadResults}
			}
			p.Images = imagesFromUploads(uploaded)
			if err := r.Images().InsertBatch(ctx, p.ID, p.Images); err != nil {
				return errors.Wrap(err, "insert new images")
			}
		}

		if err := r.Products().Update(ctx, p); err != nil {
			if errors.Is(err, product.ErrNameExists) {
				return &ConflictError{Name: p.Name}
			}
			return errors.Wrap(err, "save product")
		}

		updated = p
		return nil
	})
	if err != nil {
		span.RecordError(err)
		s.compensateUploads(ctx, uploaded)
		return nil, wrapWrite(err, func(cause error) error { return &UpdateError{Err: cause} })
	}
	s.tele.writes.Add(ctx, 1, opAttr("update"))
	return updated, nil
}

// Delete removes the product and its owned image rows, attempting remote
// deletion of the corresponding assets. Categories stay untouched.
func (s *Service) Delete(ctx context.Context, id string) error {
	ctx, span := s.tele.tracer.Start(ctx, "catalog.Delete")
	defer span.End()

	err := s.store.WithinTx(ctx, func(r Repositories) error {
		p, err := r.Products().GetByID(ctx, id)
		if err != nil {
			return err
		}

		s.deleteAssets(ctx, assetIDs(p.Images))

		if err := r.Images().DeleteByProduct(ctx, p.ID); err != nil {
			return errors.Wrap(err, "delete images")
		}
		if err := r.Products().Delete(ctx, p.ID); err != nil {
			return errors.Wrap(err, "delete product")
		}
		return nil
	})
	if err != nil {
		span.RecordError(err)
		return wrapWrite(err, func(cause error) error { return &DeleteError{Err: cause} })
	}
	s.tele.writes.Add(ctx, 1, opAttr("delete"))
	return nil
}

// Get returns one product with its relations.
func (s *Service) Get(ctx context.Context, id string) (*product.Product, error) {
	return s.store.Products().GetByID(ctx, id)
}

// List returns all products with their relations.
func (s *Service) List(ctx context.Context) ([]product.Product, error) {
	return s.store.Products().List(ctx)
}

// GetPlain returns the denormalized view of one product.
func (s *Service) GetPlain(ctx context.Context, id string) (*PlainProduct, error) {
	p, err := s.store.Products().GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	plain := Plain(*p)
	return &plain, nil
}

// ListPlain returns the denormalized view of all products.
func (s *Service) ListPlain(ctx context.Context) ([]PlainProduct, error) {
	products, err := s.store.Products().List(ctx)
	if err != nil {
		return nil, err
	}
	return PlainAll(products), nil
}

// Search returns denormalized views of products whose name contains the term,
// case-insensitively. An empty result is not an error.
func (s *Service) Search(ctx context.Context, term string) ([]PlainProduct, error) {
	products, err := s.store.Products().SearchByName(ctx, term)
	if err != nil {
		return nil, err
	}
	return PlainAll(products), nil
}

// deleteAssets issues a best-effort remote delete. Failures are logged and
// swallowed: the local image rows are removed regardless.
func (s *Service) deleteAssets(ctx context.Context, ids []string) {
	if len(ids) == 0 {
		return
	}
	if err := s.assets.DeleteMany(ctx, ids); err != nil {
		s.lg.Warn("remote asset delete failed, continuing",
			zap.Strings("asset_ids", ids),
			zap.Error(err),
		)
	}
}

// compensateUploads deletes assets uploaded by a write whose transaction was
// rolled back. When the delete itself fails the assets are orphaned on the
// image host; that gap is logged here.
func (s *Service) compensateUploads(ctx context.Context, uploads []asset.Upload) {
	if len(uploads) == 0 {
		return
	}
	ids := make([]string, len(uploads))
	for i, u := range uploads {
		ids[i] = u.AssetID
	}
	s.lg.Warn("rolled back after upload, deleting assets", zap.Strings("asset_ids", ids))
	if err := s.assets.DeleteMany(ctx, ids); err != nil {
		s.tele.orphans.Add(ctx, int64(len(ids)))
		s.lg.Error("compensating asset delete failed, assets orphaned",
			zap.Strings("asset_ids", ids),
			zap.Error(err),
		)
	}
}

// wrapWrite passes typed domain errors through unchanged and wraps anything
// else so callers can tell "nothing changed" failures from failures after
// partial external side effects.
func wrapWrite(err error, wrap func(error) error) error {
	var (
		vErr *ValidationError
		cErr *ConflictError
		uErr *UploadError
	)
	switch {
	case errors.As(err, &vErr), errors.As(err, &cErr), errors.As(err, &uErr):
		return err
	case errors.Is(err, product.ErrNotFound):
		return err
	default:
		return wrap(err)
	}
}

func imagesFromUploads(uploads []asset.Upload) []product.Image {
	images := make([]product.Image, len(uploads))
	for i, u := range uploads {
		images[i] = product.Image{
			ID:        uuid.New().String(),
			SecureURL: u.SecureURL,
			AssetID:   u.AssetID,
		}
	}
	return images
}

func assetIDs(images []product.Image) []string {
	ids := make([]string, 0, len(images))
	for _, img := range images {
		if img.AssetID != "" {
			ids = append(ids, img.AssetID)
		}
	}
	return ids
}

func categoryIDs(cats []category.Category) []string {
	ids := make([]string, len(cats))
	for i, c := range cats {
		ids[i] = c.ID
	}
	return ids
}
