package gcs

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"cloud.google.com/go/storage"
	"github.com/sirupsen/logrus"
	"google.golang.org/api/option"
)

type Options struct {
	Bucket         string
	GoogleAccessID string
	PrivateKeyFile string
	KeyPrefix      string
	URLTTL         time.Duration
}

type gcsStore struct {
	bucket     *storage.BucketHandle
	accessID   string
	privateKey []byte
	prefix     string
	urlTTL     time.Duration
	now        func() time.Time
}

// NewStore creates a Google Cloud Storage blob store. Without an explicit
// signing key, URLs are signed with the client's default credentials.
func NewStore(ctx context.Context, opts Options, clientOpts ...option.ClientOption) (*gcsStore, error) {
	if opts.Bucket == "" {
		return nil, fmt.Errorf("GCS_BUCKET_NAME must be set for gcs blob storage")
	}

	var privateKey []byte
	if opts.PrivateKeyFile != "" {
		key, err := os.ReadFile(opts.PrivateKeyFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read gcs private key: %w", err)
		}
		privateKey = key
	}

	client, err := storage.NewClient(ctx, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create gcs client: %w", err)
	}

	return &gcsStore{
		bucket:     client.Bucket(opts.Bucket),
		accessID:   opts.GoogleAccessID,
		privateKey: privateKey,
		prefix:     opts.KeyPrefix,
		urlTTL:     opts.URLTTL,
		now:        time.Now,
	}, nil
}

func (s *gcsStore) key(storageID string) string {
	return s.prefix + storageID
}

func (s *gcsStore) sign(storageID, method string, ttl time.Duration) (string, error) {
	return s.bucket.SignedURL(s.key(storageID), &storage.SignedURLOptions{
		Scheme:         storage.SigningSchemeV4,
		Method:         method,
		Expires:        s.now().Add(ttl),
		GoogleAccessID: s.accessID,
		PrivateKey:     s.privateKey,
	})
}

func (s *gcsStore) CreateUploadURL(ctx context.Context, storageID string, ttl time.Duration) (string, error) {
	u, err := s.sign(storageID, http.MethodPut, ttl)
	if err != nil {
		return "", fmt.Errorf("failed to sign upload for %s: %w", storageID, err)
	}
	return u, nil
}

func (s *gcsStore) URL(ctx context.Context, storageID string) (string, error) {
	u, err := s.sign(storageID, http.MethodGet, s.urlTTL)
	if err != nil {
		return "", fmt.Errorf("failed to sign download for %s: %w", storageID, err)
	}
	return u, nil
}

func (s *gcsStore) Exists(ctx context.Context, storageID string) (bool, error) {
	_, err := s.bucket.Object(s.key(storageID)).Attrs(ctx)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, storage.ErrObjectNotExist) {
		return false, nil
	}
	return false, fmt.Errorf("failed to stat blob %s: %w", storageID, err)
}

func (s *gcsStore) Delete(ctx context.Context, storageID string) error {
	err := s.bucket.Object(s.key(storageID)).Delete(ctx)
	if err != nil && !errors.Is(err, storage.ErrObjectNotExist) {
		logrus.WithField("storage_id", storageID).WithError(err).Error("Failed to delete blob")
		return fmt.Errorf("failed to delete blob %s: %w", storageID, err)
	}
	return nil
}
