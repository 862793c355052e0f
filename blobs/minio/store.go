package minio

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/sirupsen/logrus"
)

// Client is the subset of *minio.Client the blob store needs.
type Client interface {
	PresignedPutObject(ctx context.Context, bucketName, objectName string, expires time.Duration) (*url.URL, error)
	PresignedGetObject(ctx context.Context, bucketName, objectName string, expires time.Duration, reqParams url.Values) (*url.URL, error)
	StatObject(ctx context.Context, bucketName, objectName string, opts minio.StatObjectOptions) (minio.ObjectInfo, error)
	RemoveObject(ctx context.Context, bucketName, objectName string, opts minio.RemoveObjectOptions) error
}

type Options struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
	KeyPrefix string
	URLTTL    time.Duration
}

type minioStore struct {
	client Client
	bucket string
	prefix string
	urlTTL time.Duration
}

// NewStore connects to a MinIO server with static credentials.
func NewStore(opts Options) (*minioStore, error) {
	client, err := minio.New(opts.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(opts.AccessKey, opts.SecretKey, ""),
		Secure: opts.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}
	return newStore(client, opts), nil
}

func newStore(client Client, opts Options) *minioStore {
	return &minioStore{
		client: client,
		bucket: opts.Bucket,
		prefix: opts.KeyPrefix,
		urlTTL: opts.URLTTL,
	}
}

func (s *minioStore) key(storageID string) string {
	return s.prefix + storageID
}

func (s *minioStore) CreateUploadURL(ctx context.Context, storageID string, ttl time.Duration) (string, error) {
	u, err := s.client.PresignedPutObject(ctx, s.bucket, s.key(storageID), ttl)
	if err != nil {
		return "", fmt.Errorf("failed to presign upload for %s: %w", storageID, err)
	}
	return u.String(), nil
}

func (s *minioStore) URL(ctx context.Context, storageID string) (string, error) {
	u, err := s.client.PresignedGetObject(ctx, s.bucket, s.key(storageID), s.urlTTL, nil)
	if err != nil {
		return "", fmt.Errorf("failed to presign download for %s: %w", storageID, err)
	}
	return u.String(), nil
}

func (s *minioStore) Exists(ctx context.Context, storageID string) (bool, error) {
	_, err := s.client.StatObject(ctx, s.bucket, s.key(storageID), minio.StatObjectOptions{})
	if err == nil {
		return true, nil
	}
	if isNotFound(err) {
		return false, nil
	}
	return false, fmt.Errorf("failed to stat blob %s: %w", storageID, err)
}

func (s *minioStore) Delete(ctx context.Context, storageID string) error {
	err := s.client.RemoveObject(ctx, s.bucket, s.key(storageID), minio.RemoveObjectOptions{})
	if err != nil && !isNotFound(err) {
		logrus.WithField("storage_id", storageID).WithError(err).Error("Failed to delete blob")
		return fmt.Errorf("failed to delete blob %s: %w", storageID, err)
	}
	return nil
}

func isNotFound(err error) bool {
	resp := minio.ToErrorResponse(err)
	return resp.Code == "NoSuchKey" || resp.StatusCode == http.StatusNotFound
}
