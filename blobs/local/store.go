package local

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/VascoOnEarth/PhotoShare/blobs/uploadtoken"
	"github.com/VascoOnEarth/PhotoShare/core"
	"github.com/oklog/ulid/v2"
	"github.com/sirupsen/logrus"
)

type fsStore struct {
	basePath string
	links    uploadtoken.Links
}

// NewStore creates a filesystem blob store rooted at basePath.
func NewStore(basePath string, links uploadtoken.Links) (*fsStore, error) {
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}
	return &fsStore{basePath: basePath, links: links}, nil
}

// path maps a storage id to a file. Only ULIDs are accepted so ids can
// never escape basePath.
func (s *fsStore) path(storageID string) (string, error) {
	if _, err := ulid.ParseStrict(storageID); err != nil {
		return "", fmt.Errorf("storage id %q: %w", storageID, core.ErrInvalidInput)
	}
	return filepath.Join(s.basePath, storageID), nil
}

func (s *fsStore) CreateUploadURL(ctx context.Context, storageID string, ttl time.Duration) (string, error) {
	if _, err := s.path(storageID); err != nil {
		return "", err
	}
	return s.links.UploadURL(storageID, ttl)
}

func (s *fsStore) URL(ctx context.Context, storageID string) (string, error) {
	return s.links.DownloadURL(storageID), nil
}

func (s *fsStore) Exists(ctx context.Context, storageID string) (bool, error) {
	filePath, err := s.path(storageID)
	if err != nil {
		return false, nil
	}
	_, err = os.Stat(filePath)
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	return err == nil, err
}

func (s *fsStore) Delete(ctx context.Context, storageID string) error {
	filePath, err := s.path(storageID)
	if err != nil {
		return err
	}
	if err := os.Remove(filePath); err != nil && !errors.Is(err, os.ErrNotExist) {
		logrus.WithField("storage_id", storageID).WithError(err).Error("Failed to delete blob")
		return err
	}
	return nil
}

func (s *fsStore) Put(ctx context.Context, storageID, contentType string, r io.Reader) error {
	filePath, err := s.path(storageID)
	if err != nil {
		return err
	}
	log := logrus.WithFields(logrus.Fields{
		"storage_id": storageID,
		"file_path":  filePath,
	})

	if _, err := os.Stat(filePath); err == nil {
		return fmt.Errorf("blob %s: %w", storageID, core.ErrConflict)
	}

	// The body lands in a temp file first so Exists and Open never see a
	// partial blob. Link publishes it and fails if another upload won.
	f, err := os.CreateTemp(s.basePath, storageID+".*.tmp")
	if err != nil {
		return err
	}
	tmpPath := f.Name()
	defer os.Remove(tmpPath)

	n, err := io.Copy(f, r)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		log.WithError(err).Error("Failed to write blob")
		return err
	}

	if err := os.Link(tmpPath, filePath); err != nil {
		if errors.Is(err, os.ErrExist) {
			return fmt.Errorf("blob %s: %w", storageID, core.ErrConflict)
		}
		log.WithError(err).Error("Failed to publish blob")
		return err
	}

	log.WithField("size", n).Info("Blob stored successfully")
	return nil
}

func (s *fsStore) Open(ctx context.Context, storageID string) (io.ReadCloser, string, error) {
	filePath, err := s.path(storageID)
	if err != nil {
		return nil, "", fmt.Errorf("blob %s: %w", storageID, core.ErrNotFound)
	}

	f, err := os.Open(filePath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, "", fmt.Errorf("blob %s: %w", storageID, core.ErrNotFound)
		}
		return nil, "", err
	}

	br := bufio.NewReader(f)
	head, _ := br.Peek(512)
	return readCloser{Reader: br, Closer: f}, http.DetectContentType(head), nil
}

type readCloser struct {
	io.Reader
	io.Closer
}
