// Command seed-db loads an initial catalog (categories, products, images)
// into PostgreSQL and provisions an API key for write access.
package main

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"flag"
	"log/slog"
	"os"
	"os/signal"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/dmarkhas/catalog-api/internal/domain/auth"
	"github.com/dmarkhas/catalog-api/internal/domain/category"
	"github.com/dmarkhas/catalog-api/internal/domain/product"
	"github.com/dmarkhas/catalog-api/internal/storage/postgres"
)

type catalogJSON struct {
	Categories []string      `json:"categories"`
	Products   []productJSON `json:"products"`
}

type productJSON struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
	Stock       int             `json:"stock"`
	Categories  []string        `json:"categories"`
	Images      []string        `json:"images"`
}

func main() {
	var (
		databaseURL  string
		catalogFile  string
		apiKey       string
		apiKeyPepper string
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&catalogFile, "catalog-file", "db/seed/catalog.json", "path to catalog JSON file")
	flag.StringVar(&apiKey, "api-key", "", "API key to seed (or CATALOG_SEED_API_KEY env)")
	flag.StringVar(&apiKeyPepper, "api-key-pepper", "", "HMAC pepper for API key hashing (or CATALOG_API_KEY_PEPPER env)")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}
	if apiKey == "" {
		apiKey = os.Getenv("CATALOG_SEED_API_KEY")
	}
	if apiKey == "" {
		slog.Error("API key is required: set --api-key or CATALOG_SEED_API_KEY")
		os.Exit(1)
	}
	if apiKeyPepper == "" {
		apiKeyPepper = os.Getenv("CATALOG_API_KEY_PEPPER")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, databaseURL, catalogFile, apiKey, apiKeyPepper); err != nil {
		slog.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("seed completed successfully")
}

func run(ctx context.Context, databaseURL, catalogFile, apiKey, pepper string) error {
	slog.Info("connecting to database")

	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	slog.Info("running migrations")

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	store := postgres.NewStore(pool)

	data, err := os.ReadFile(catalogFile)
	if err != nil {
		return errors.Wrap(err, "read catalog file")
	}
	var cat catalogJSON
	if err := json.Unmarshal(data, &cat); err != nil {
		return errors.Wrap(err, "parse catalog JSON")
	}

	byName, err := seedCategories(ctx, store.CategoryStore(), cat.Categories)
	if err != nil {
		return errors.Wrap(err, "seed categories")
	}

	if err := seedProducts(ctx, store, cat.Products, byName); err != nil {
		return errors.Wrap(err, "seed products")
	}

	if err := seedAPIKey(ctx, postgres.NewAPIKeyRepository(pool), apiKey, pepper); err != nil {
		return errors.Wrap(err, "seed api key")
	}

	return nil
}

// seedCategories inserts any missing categories and returns the full
// name-to-id mapping for linking products.
func seedCategories(ctx context.Context, repo *postgres.CategoryRepository, names []string) (map[string]string, error) {
	byName := make(map[string]string, len(names))

	for _, name := range names {
		existing, err := repo.GetByName(ctx, name)
		if err == nil {
			byName[name] = existing.ID
			continue
		}
		if !errors.Is(err, category.ErrNotFound) {
			return nil, errors.Wrapf(err, "look up category %q", name)
		}

		c := &category.Category{ID: uuid.NewString(), Name: name}
		if err := repo.Insert(ctx, c); err != nil {
			return nil, errors.Wrapf(err, "insert category %q", name)
		}
		byName[name] = c.ID

		slog.Info("inserted category", slog.String("id", c.ID), slog.String("name", name))
	}

	return byName, nil
}

func seedProducts(ctx context.Context, store *postgres.Store, products []productJSON, categories map[string]string) error {
	slog.Info("seeding products", slog.Int("count", len(products)))

	for _, p := range products {
		if _, err := store.Products().GetByName(ctx, p.Name); err == nil {
			slog.Info("product exists, skipping", slog.String("name", p.Name))
			continue
		} else if !errors.Is(err, product.ErrNotFound) {
			return errors.Wrapf(err, "look up product %q", p.Name)
		}

		prod := &product.Product{
			ID:          uuid.NewString(),
			Name:        p.Name,
			Description: p.Description,
			Price:       p.Price,
			Stock:       p.Stock,
		}
		if err := store.Products().Insert(ctx, prod); err != nil {
			return errors.Wrapf(err, "insert product %q", p.Name)
		}

		images := make([]product.Image, 0, len(p.Images))
		for _, url := range p.Images {
			images = append(images, product.Image{
				ID:        uuid.NewString(),
				SecureURL: url,
				AssetID:   "seed/" + uuid.NewString(),
			})
		}
		if err := store.Images().InsertBatch(ctx, prod.ID, images); err != nil {
			return errors.Wrapf(err, "insert images for %q", p.Name)
		}

		ids := make([]string, 0, len(p.Categories))
		for _, name := range p.Categories {
			id, ok := categories[name]
			if !ok {
				slog.Warn("unknown category, skipping", slog.String("product", p.Name), slog.String("category", name))
				continue
			}
			ids = append(ids, id)
		}
		if err := store.Products().ReplaceCategories(ctx, prod.ID, ids); err != nil {
			return errors.Wrapf(err, "link categories for %q", p.Name)
		}

		slog.Info("inserted product", slog.String("id", prod.ID), slog.String("name", p.Name))
	}

	return nil
}

func seedAPIKey(ctx context.Context, repo *postgres.APIKeyRepository, apiKey, pepper string) error {
	slog.Info("seeding default API key")

	mac := hmac.New(sha256.New, []byte(pepper))
	mac.Write([]byte(apiKey))
	keyHash := hex.EncodeToString(mac.Sum(nil))

	err := repo.Upsert(ctx, &auth.APIKey{
		ID:      "default",
		KeyHash: keyHash,
		Name:    "Default admin key",
		Scopes:  []string{"catalog_write"},
	})
	if err != nil {
		return errors.Wrap(err, "upsert default API key")
	}

	slog.Info("upserted API key", slog.String("id", "default"))

	return nil
}
