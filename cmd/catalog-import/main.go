// Command catalog-import bulk-loads product feeds into the catalog.
//
// Feeds are gzip-compressed JSONL files, one product record per line. Files
// are decompressed and parsed concurrently; a bloom filter screens out names
// already imported so repeated runs over overlapping feeds stay cheap. Bloom
// hits are confirmed against the database before skipping, so false positives
// never drop a record.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	"github.com/google/uuid"
	pgzip "github.com/klauspost/pgzip"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/dmarkhas/catalog-api/internal/domain/category"
	"github.com/dmarkhas/catalog-api/internal/domain/product"
	"github.com/dmarkhas/catalog-api/internal/storage/postgres"
)

const (
	bloomCapacity = 10_000_000
	bloomFPR      = 0.001
	progressEvery = 10_000
	recordBuffer  = 1024
)

type record struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
	Stock       int             `json:"stock"`
	Categories  []string        `json:"categories"`
	Images      []string        `json:"images"`
}

func main() {
	var (
		dataDir     string
		databaseURL string
	)

	flag.StringVar(&dataDir, "data-dir", "data", "directory containing *.jsonl.gz product feeds")
	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, dataDir, databaseURL); err != nil {
		slog.Error("catalog import failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("catalog import completed successfully")
}

func run(ctx context.Context, dataDir, databaseURL string) error {
	files, err := filepath.Glob(filepath.Join(dataDir, "*.jsonl.gz"))
	if err != nil {
		return errors.Wrap(err, "glob feed files")
	}
	if len(files) == 0 {
		return errors.Errorf("no *.jsonl.gz feeds found in %s", dataDir)
	}

	slog.Info("connecting to database")

	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	store := postgres.NewStore(pool)
	imp := newImporter(store)

	// Feed readers run concurrently; a single writer owns all DB access so
	// name deduplication stays ordered.
	records := make(chan record, recordBuffer)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return imp.writeAll(ctx, records)
	})

	readers, readCtx := errgroup.WithContext(ctx)
	for _, f := range files {
		readers.Go(readFeed(readCtx, f, records))
	}
	readErr := readers.Wait()
	close(records)

	if err := g.Wait(); err != nil {
		return errors.Wrap(err, "write records")
	}
	if readErr != nil {
		return errors.Wrap(readErr, "read feeds")
	}

	slog.Info("import summary",
		slog.Uint64("imported", imp.imported),
		slog.Uint64("skipped", imp.skipped),
	)
	return nil
}

// readFeed streams one gzip-compressed JSONL feed into the records channel.
func readFeed(ctx context.Context, path string, out chan<- record) func() error {
	return func() error {
		f, err := os.Open(path)
		if err != nil {
			return errors.Wrapf(err, "open %s", path)
		}
		defer func() { _ = f.Close() }()

		gz, err := pgzip.NewReader(f)
		if err != nil {
			return errors.Wrapf(err, "create gzip reader for %s", path)
		}
		defer func() { _ = gz.Close() }()

		var count uint64
		scanner := bufio.NewScanner(gz)
		scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)

		for scanner.Scan() {
			line := scanner.Bytes()
			if len(line) == 0 {
				continue
			}

			var rec record
			if err := json.Unmarshal(line, &rec); err != nil {
				slog.Warn("skipping malformed record",
					slog.String("file", filepath.Base(path)),
					slog.String("error", err.Error()),
				)
				continue
			}

			select {
			case out <- rec:
			case <-ctx.Done():
				return ctx.Err()
			}

			count++
			if count%progressEvery == 0 {
				slog.Info("read progress",
					slog.String("file", filepath.Base(path)),
					slog.Uint64("records", count),
				)
			}
		}
		if err := scanner.Err(); err != nil {
			return errors.Wrapf(err, "scan %s", path)
		}

		slog.Info("feed complete",
			slog.String("file", filepath.Base(path)),
			slog.Uint64("records", count),
		)
		return nil
	}
}

// importer writes feed records into the catalog, deduplicating by product
// name and creating categories on first sight.
type importer struct {
	store      *postgres.Store
	seen       *bloom.BloomFilter
	categories map[string]string

	imported uint64
	skipped  uint64
}

func newImporter(store *postgres.Store) *importer {
	return &importer{
		store:      store,
		seen:       bloom.NewWithEstimates(bloomCapacity, bloomFPR),
		categories: make(map[string]string),
	}
}

func (imp *importer) writeAll(ctx context.Context, records <-chan record) error {
	for rec := range records {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := imp.write(ctx, rec); err != nil {
			return errors.Wrapf(err, "import %q", rec.Name)
		}
	}
	return nil
}

func (imp *importer) write(ctx context.Context, rec record) error {
	if rec.Name == "" || !rec.Price.IsPositive() {
		imp.skipped++
		return nil
	}

	if imp.seen.TestString(rec.Name) {
		// Possible bloom false positive, confirm against the database.
		_, err := imp.store.Products().GetByName(ctx, rec.Name)
		if err == nil {
			imp.skipped++
			return nil
		}
		if !errors.Is(err, product.ErrNotFound) {
			return errors.Wrap(err, "confirm duplicate")
		}
	}

	prod := &product.Product{
		ID:          uuid.NewString(),
		Name:        rec.Name,
		Description: rec.Description,
		Price:       rec.Price,
		Stock:       rec.Stock,
	}
	if err := imp.store.Products().Insert(ctx, prod); err != nil {
		if errors.Is(err, product.ErrNameExists) {
			imp.seen.AddString(rec.Name)
			imp.skipped++
			return nil
		}
		return errors.Wrap(err, "insert product")
	}

	images := make([]product.Image, 0, len(rec.Images))
	for _, url := range rec.Images {
		images = append(images, product.Image{
			ID:        uuid.NewString(),
			SecureURL: url,
			AssetID:   "import/" + uuid.NewString(),
		})
	}
	if len(images) > 0 {
		if err := imp.store.Images().InsertBatch(ctx, prod.ID, images); err != nil {
			return errors.Wrap(err, "insert images")
		}
	}

	ids, err := imp.resolveCategories(ctx, rec.Categories)
	if err != nil {
		return errors.Wrap(err, "resolve categories")
	}
	if len(ids) > 0 {
		if err := imp.store.Products().ReplaceCategories(ctx, prod.ID, ids); err != nil {
			return errors.Wrap(err, "link categories")
		}
	}

	imp.seen.AddString(rec.Name)
	imp.imported++
	if imp.imported%progressEvery == 0 {
		slog.Info("write progress", slog.Uint64("imported", imp.imported), slog.Uint64("skipped", imp.skipped))
	}
	return nil
}

// resolveCategories maps feed category names to ids, creating missing ones.
func (imp *importer) resolveCategories(ctx context.Context, names []string) ([]string, error) {
	ids := make([]string, 0, len(names))
	for _, name := range names {
		if name == "" {
			continue
		}
		if id, ok := imp.categories[name]; ok {
			ids = append(ids, id)
			continue
		}

		existing, err := imp.store.CategoryStore().GetByName(ctx, name)
		if err == nil {
			imp.categories[name] = existing.ID
			ids = append(ids, existing.ID)
			continue
		}
		if !errors.Is(err, category.ErrNotFound) {
			return nil, errors.Wrapf(err, "look up category %q", name)
		}

		c := &category.Category{ID: uuid.NewString(), Name: name}
		if err := imp.store.CategoryStore().Insert(ctx, c); err != nil {
			if errors.Is(err, category.ErrNameExists) {
				// Lost a race with a concurrent run, re-read.
				existing, lookupErr := imp.store.CategoryStore().GetByName(ctx, name)
				if lookupErr != nil {
					return nil, errors.Wrapf(lookupErr, "re-read category %q", name)
				}
				imp.categories[name] = existing.ID
				ids = append(ids, existing.ID)
				continue
			}
			return nil, errors.Wrapf(err, "create category %q", name)
		}
		imp.categories[name] = c.ID
		ids = append(ids, c.ID)
	}
	return ids, nil
}
