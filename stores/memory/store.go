package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/VascoOnEarth/PhotoShare/core"
	"github.com/oklog/ulid/v2"
	"github.com/sirupsen/logrus"
)

type likeKey struct {
	userID  string
	imageID string
}

type memStore struct {
	mu        sync.RWMutex
	images    []*core.Image // insertion order
	likes     map[likeKey]*core.Like
	pending   map[string]*core.PendingUpload
	deletions map[string]*core.BlobDeletion
	users     map[string]*core.User
}

// NewStore creates an in-memory store. Contents are lost on restart.
func NewStore() *memStore {
	return &memStore{
		likes:     make(map[likeKey]*core.Like),
		pending:   make(map[string]*core.PendingUpload),
		deletions: make(map[string]*core.BlobDeletion),
		users:     make(map[string]*core.User),
	}
}

func copyImage(img *core.Image) *core.Image {
	c := *img
	if img.Description != nil {
		d := *img.Description
		c.Description = &d
	}
	return &c
}

func (s *memStore) indexOf(id string) int {
	for i, img := range s.images {
		if img.ID == id {
			return i
		}
	}
	return -1
}

// ImageStore implementation
func (s *memStore) GetImage(ctx context.Context, id string) (*core.Image, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	i := s.indexOf(id)
	if i < 0 {
		logrus.WithField("image_id", id).Warn("Image with specified ID not found")
		return nil, fmt.Errorf("image with id %s: %w", id, core.ErrNotFound)
	}
	return copyImage(s.images[i]), nil
}

func (s *memStore) ListImages(ctx context.Context) ([]*core.Image, error) {
	return s.listNewestFirst(func(*core.Image) bool { return true }), nil
}

func (s *memStore) ListImagesByAuthor(ctx context.Context, authorID string) ([]*core.Image, error) {
	return s.listNewestFirst(func(img *core.Image) bool { return img.AuthorID == authorID }), nil
}

func (s *memStore) listNewestFirst(keep func(*core.Image) bool) []*core.Image {
	s.mu.RLock()
	defer s.mu.RUnlock()

	images := make([]*core.Image, 0, len(s.images))
	for i := len(s.images) - 1; i >= 0; i-- {
		if keep(s.images[i]) {
			images = append(images, copyImage(s.images[i]))
		}
	}
	return images
}

func (s *memStore) DeleteImage(ctx context.Context, id string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexOf(id)
	if i < 0 {
		return 0, fmt.Errorf("image with id %s: %w", id, core.ErrNotFound)
	}

	removed := 0
	for key := range s.likes {
		if key.imageID == id {
			delete(s.likes, key)
			removed++
		}
	}
	s.images = append(s.images[:i], s.images[i+1:]...)

	logrus.WithFields(logrus.Fields{
		"image_id":      id,
		"likes_removed": removed,
	}).Info("Image deleted successfully")
	return removed, nil
}

// LikeStore implementation
func (s *memStore) CountLikes(ctx context.Context, imageID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for key := range s.likes {
		if key.imageID == imageID {
			count++
		}
	}
	return count, nil
}

func (s *memStore) HasLike(ctx context.Context, userID, imageID string) (bool, error) {
	s.mu.RLock()
	_, ok := s.likes[likeKey{userID, imageID}]
	s.mu.RUnlock()
	return ok, nil
}

func (s *memStore) ToggleLike(ctx context.Context, userID, imageID string) (bool, error) {
	key := likeKey{userID, imageID}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.likes[key]; ok {
		delete(s.likes, key)
		return false, nil
	}
	s.likes[key] = &core.Like{
		ID:        ulid.Make().String(),
		ImageID:   imageID,
		UserID:    userID,
		CreatedAt: time.Now().UnixMilli(),
	}
	return true, nil
}

// UploadStore implementation
func (s *memStore) CreatePendingUpload(ctx context.Context, upload *core.PendingUpload) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.pending[upload.StorageID]; ok {
		return fmt.Errorf("pending upload %s already exists", upload.StorageID)
	}
	c := *upload
	s.pending[upload.StorageID] = &c
	return nil
}

func (s *memStore) GetPendingUpload(ctx context.Context, storageID string) (*core.PendingUpload, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	upload, ok := s.pending[storageID]
	if !ok {
		return nil, fmt.Errorf("pending upload %s: %w", storageID, core.ErrNotFound)
	}
	c := *upload
	return &c, nil
}

func (s *memStore) PromoteUpload(ctx context.Context, image *core.Image) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	upload, ok := s.pending[image.StorageID]
	if !ok || upload.UserID != image.AuthorID {
		return fmt.Errorf("pending upload %s: %w", image.StorageID, core.ErrNotFound)
	}
	delete(s.pending, image.StorageID)
	s.images = append(s.images, copyImage(image))
	return nil
}

func (s *memStore) ListExpiredUploads(ctx context.Context, before time.Time, limit int) ([]*core.PendingUpload, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var expired []*core.PendingUpload
	for _, upload := range s.pending {
		if upload.ExpiresAt.Before(before) {
			c := *upload
			expired = append(expired, &c)
		}
	}
	sort.Slice(expired, func(i, j int) bool {
		return expired[i].ExpiresAt.Before(expired[j].ExpiresAt)
	})
	if limit > 0 && len(expired) > limit {
		expired = expired[:limit]
	}
	return expired, nil
}

func (s *memStore) DiscardUpload(ctx context.Context, storageID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.pending[storageID]; !ok {
		return fmt.Errorf("pending upload %s: %w", storageID, core.ErrNotFound)
	}
	delete(s.pending, storageID)
	return nil
}

// CleanupQueue implementation
func (s *memStore) EnqueueBlobDeletion(ctx context.Context, storageID, reason string) error {
	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	if d, ok := s.deletions[storageID]; ok {
		d.LastError = reason
		d.UpdatedAt = now
		return nil
	}
	s.deletions[storageID] = &core.BlobDeletion{
		StorageID: storageID,
		LastError: reason,
		CreatedAt: now,
		UpdatedAt: now,
	}
	return nil
}

func (s *memStore) ListBlobDeletions(ctx context.Context, maxAttempts, limit int) ([]*core.BlobDeletion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var queued []*core.BlobDeletion
	for _, d := range s.deletions {
		if maxAttempts > 0 && d.Attempts >= maxAttempts {
			continue
		}
		c := *d
		queued = append(queued, &c)
	}
	sort.Slice(queued, func(i, j int) bool {
		return queued[i].CreatedAt.Before(queued[j].CreatedAt)
	})
	if limit > 0 && len(queued) > limit {
		queued = queued[:limit]
	}
	return queued, nil
}

func (s *memStore) CompleteBlobDeletion(ctx context.Context, storageID string) error {
	s.mu.Lock()
	delete(s.deletions, storageID)
	s.mu.Unlock()
	return nil
}

func (s *memStore) FailBlobDeletion(ctx context.Context, storageID, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, ok := s.deletions[storageID]
	if !ok {
		return fmt.Errorf("blob deletion %s: %w", storageID, core.ErrNotFound)
	}
	d.Attempts++
	d.LastError = reason
	d.UpdatedAt = time.Now()
	return nil
}

// UserStore implementation
func (s *memStore) UpsertUser(ctx context.Context, user *core.User) error {
	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	c := *user
	if existing, ok := s.users[user.Subject]; ok {
		c.CreatedAt = existing.CreatedAt
	} else {
		c.CreatedAt = now
	}
	c.UpdatedAt = now
	s.users[user.Subject] = &c
	return nil
}

func (s *memStore) GetUser(ctx context.Context, subject string) (*core.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, ok := s.users[subject]
	if !ok {
		return nil, fmt.Errorf("user %s: %w", subject, core.ErrNotFound)
	}
	c := *user
	return &c, nil
}
