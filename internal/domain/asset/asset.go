// Package asset defines the contract with the external image host. Uploads
// and deletions are plain network side effects: they are never covered by a
// database transaction, and deletions are best-effort by design.
package asset

import "context"

// File is a binary payload to upload.
type File struct {
	Name        string
	ContentType string
	Data        []byte
}

// Upload is the result of a single successful upload.
type Upload struct {
	SecureURL string
	AssetID   string
}

// Gateway abstracts the external image host.
type Gateway interface {
	// UploadMany uploads all files and returns one Upload per file. It fails
	// (or returns an empty slice) on total failure.
	UploadMany(ctx context.Context, files []File) ([]Upload, error)
	// DeleteOne removes a single asset. Best-effort.
	DeleteOne(ctx context.Context, assetID string) error
	// DeleteMany removes all given assets. Best-effort; partial success is
	// possible and reported as a single aggregated error.
	DeleteMany(ctx context.Context, assetIDs []string) error
}
