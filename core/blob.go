package core

import (
	"context"
	"io"
	"time"
)

type (
	// BlobStore is the object store holding image bytes, addressed by storage id.
	BlobStore interface {
		// CreateUploadURL returns a URL accepting a single PUT of the blob
		// bytes for storageID until ttl elapses.
		CreateUploadURL(ctx context.Context, storageID string, ttl time.Duration) (string, error)

		// URL returns a retrieval URL for the blob.
		URL(ctx context.Context, storageID string) (string, error)

		Exists(ctx context.Context, storageID string) (bool, error)

		// Delete removes the blob. Deleting a missing blob is not an error.
		Delete(ctx context.Context, storageID string) error
	}

	// HostedBlobStore is a BlobStore whose bytes are received and served by
	// this process instead of a remote bucket.
	HostedBlobStore interface {
		BlobStore
		Put(ctx context.Context, storageID, contentType string, r io.Reader) error
		Open(ctx context.Context, storageID string) (io.ReadCloser, string, error)
	}
)
