package domain

import (
	"context"
	"io"
	"time"
)

// BlobWriter uploads data to object storage.
type BlobWriter interface {
	Put(ctx context.Context, path string, data io.Reader, contentType string) error
}

// Archiver copies trading history to cold storage.
type Archiver interface {
	ArchivePosition(ctx context.Context, pos Position) error
	ArchiveTrades(ctx context.Context, since time.Time) (int64, error)
}
