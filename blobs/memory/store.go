package memory

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/VascoOnEarth/PhotoShare/blobs/uploadtoken"
	"github.com/VascoOnEarth/PhotoShare/core"
)

type blob struct {
	data        []byte
	contentType string
}

type blobStore struct {
	mu    sync.RWMutex
	blobs map[string]blob
	links uploadtoken.Links
}

// NewStore creates an in-memory blob store served by this process.
func NewStore(links uploadtoken.Links) *blobStore {
	return &blobStore{
		blobs: make(map[string]blob),
		links: links,
	}
}

func (s *blobStore) CreateUploadURL(ctx context.Context, storageID string, ttl time.Duration) (string, error) {
	return s.links.UploadURL(storageID, ttl)
}

func (s *blobStore) URL(ctx context.Context, storageID string) (string, error) {
	return s.links.DownloadURL(storageID), nil
}

func (s *blobStore) Exists(ctx context.Context, storageID string) (bool, error) {
	s.mu.RLock()
	_, ok := s.blobs[storageID]
	s.mu.RUnlock()
	return ok, nil
}

func (s *blobStore) Delete(ctx context.Context, storageID string) error {
	s.mu.Lock()
	delete(s.blobs, storageID)
	s.mu.Unlock()
	return nil
}

func (s *blobStore) Put(ctx context.Context, storageID, contentType string, r io.Reader) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.blobs[storageID]; ok {
		return fmt.Errorf("blob %s: %w", storageID, core.ErrConflict)
	}
	s.blobs[storageID] = blob{data: data, contentType: contentType}
	return nil
}

func (s *blobStore) Open(ctx context.Context, storageID string) (io.ReadCloser, string, error) {
	s.mu.RLock()
	b, ok := s.blobs[storageID]
	s.mu.RUnlock()

	if !ok {
		return nil, "", fmt.Errorf("blob %s: %w", storageID, core.ErrNotFound)
	}
	return io.NopCloser(bytes.NewReader(b.data)), b.contentType, nil
}
