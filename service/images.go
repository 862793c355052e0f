// Package service implements the image sharing operations. Every method takes
// the caller's user id explicitly; an empty caller is unauthenticated.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/VascoOnEarth/PhotoShare/core"
	"github.com/VascoOnEarth/PhotoShare/stores"
	"github.com/oklog/ulid/v2"
	"github.com/sirupsen/logrus"
)

const DefaultUploadTTL = 15 * time.Minute

// LikeState is the result of toggling a like.
type LikeState struct {
	Liked bool `json:"liked"`
	Likes int  `json:"likes"`
}

type ImageService struct {
	store     stores.Store
	blobs     core.BlobStore
	notifier  core.Notifier
	uploadTTL time.Duration
	now       func() time.Time
}

func NewImageService(store stores.Store, blobs core.BlobStore, notifier core.Notifier, uploadTTL time.Duration) *ImageService {
	if notifier == nil {
		notifier = core.NopNotifier{}
	}
	if uploadTTL <= 0 {
		uploadTTL = DefaultUploadTTL
	}
	return &ImageService{
		store:     store,
		blobs:     blobs,
		notifier:  notifier,
		uploadTTL: uploadTTL,
		now:       time.Now,
	}
}

// RequestUploadSlot reserves a storage id for the caller and returns where
// to send the bytes.
func (s *ImageService) RequestUploadSlot(ctx context.Context, caller string) (*core.UploadSlot, error) {
	if caller == "" {
		return nil, core.ErrUnauthenticated
	}

	storageID := ulid.Make().String()
	log := logrus.WithFields(logrus.Fields{
		"user_id":    caller,
		"storage_id": storageID,
	})

	uploadURL, err := s.blobs.CreateUploadURL(ctx, storageID, s.uploadTTL)
	if err != nil {
		log.WithError(err).Error("Failed to create upload URL")
		return nil, err
	}

	now := s.now()
	upload := &core.PendingUpload{
		StorageID: storageID,
		UserID:    caller,
		CreatedAt: now,
		ExpiresAt: now.Add(s.uploadTTL),
	}
	if err := s.store.CreatePendingUpload(ctx, upload); err != nil {
		log.WithError(err).Error("Failed to record pending upload")
		return nil, err
	}

	log.Debug("Upload slot issued")
	return &core.UploadSlot{
		UploadURL: uploadURL,
		StorageID: storageID,
		ExpiresAt: upload.ExpiresAt,
	}, nil
}

// RegisterImage publishes the blob uploaded through the caller's slot.
func (s *ImageService) RegisterImage(ctx context.Context, caller, storageID string, description *string) (string, error) {
	if caller == "" {
		return "", core.ErrUnauthenticated
	}
	if storageID == "" {
		return "", fmt.Errorf("storage id is required: %w", core.ErrInvalidInput)
	}
	log := logrus.WithFields(logrus.Fields{
		"user_id":    caller,
		"storage_id": storageID,
	})

	upload, err := s.store.GetPendingUpload(ctx, storageID)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			log.Warn("Register with unknown storage id")
			return "", fmt.Errorf("unknown storage id %s: %w", storageID, core.ErrInvalidInput)
		}
		return "", err
	}
	if upload.UserID != caller {
		log.Warn("Register with storage id issued to another user")
		return "", fmt.Errorf("unknown storage id %s: %w", storageID, core.ErrInvalidInput)
	}
	if !s.now().Before(upload.ExpiresAt) {
		return "", fmt.Errorf("upload slot %s expired: %w", storageID, core.ErrInvalidInput)
	}

	exists, err := s.blobs.Exists(ctx, storageID)
	if err != nil {
		log.WithError(err).Error("Failed to check uploaded blob")
		return "", err
	}
	if !exists {
		return "", fmt.Errorf("nothing was uploaded for %s: %w", storageID, core.ErrInvalidInput)
	}

	image := &core.Image{
		ID:          ulid.Make().String(),
		StorageID:   storageID,
		AuthorID:    caller,
		Description: description,
		CreatedAt:   s.now().UnixMilli(),
	}
	if err := s.store.PromoteUpload(ctx, image); err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return "", fmt.Errorf("upload slot %s already used: %w", storageID, core.ErrInvalidInput)
		}
		log.WithError(err).Error("Failed to register image")
		return "", err
	}

	log.WithField("image_id", image.ID).Info("Image registered")
	s.notifier.Publish(core.FeedEvent{Type: core.EventImageCreated, ImageID: image.ID, AuthorID: caller})
	return image.ID, nil
}

// ListFeed returns every image, newest first.
func (s *ImageService) ListFeed(ctx context.Context) ([]*core.ImageView, error) {
	images, err := s.store.ListImages(ctx)
	if err != nil {
		return nil, err
	}
	return s.annotate(ctx, images)
}

// ListOwn returns the caller's images, newest first. Unauthenticated
// callers get an empty list.
func (s *ImageService) ListOwn(ctx context.Context, caller string) ([]*core.ImageView, error) {
	if caller == "" {
		return []*core.ImageView{}, nil
	}
	images, err := s.store.ListImagesByAuthor(ctx, caller)
	if err != nil {
		return nil, err
	}
	return s.annotate(ctx, images)
}

func (s *ImageService) annotate(ctx context.Context, images []*core.Image) ([]*core.ImageView, error) {
	views := make([]*core.ImageView, 0, len(images))
	for _, img := range images {
		url, err := s.blobs.URL(ctx, img.StorageID)
		if err != nil {
			logrus.WithFields(logrus.Fields{
				"image_id":   img.ID,
				"storage_id": img.StorageID,
			}).WithError(err).Warn("Failed to produce retrieval URL")
			url = ""
		}
		likes, err := s.store.CountLikes(ctx, img.ID)
		if err != nil {
			return nil, err
		}
		views = append(views, &core.ImageView{Image: *img, URL: url, Likes: likes})
	}
	return views, nil
}

// DeleteImage removes an image the caller authored, its likes and its blob.
// A blob that cannot be deleted now is queued for the sweeper.
func (s *ImageService) DeleteImage(ctx context.Context, caller, imageID string) error {
	if caller == "" {
		return core.ErrUnauthenticated
	}
	log := logrus.WithFields(logrus.Fields{
		"user_id":  caller,
		"image_id": imageID,
	})

	image, err := s.store.GetImage(ctx, imageID)
	if err != nil {
		return err
	}
	if image.AuthorID != caller {
		log.Warn("Delete of another user's image refused")
		return fmt.Errorf("image %s: %w", imageID, core.ErrForbidden)
	}

	removed, err := s.store.DeleteImage(ctx, imageID)
	if err != nil {
		log.WithError(err).Error("Failed to delete image")
		return err
	}
	log = log.WithField("likes_removed", removed)

	if err := s.blobs.Delete(ctx, image.StorageID); err != nil {
		log.WithError(err).Error("Blob delete failed, queueing for retry")
		if qerr := s.store.EnqueueBlobDeletion(ctx, image.StorageID, err.Error()); qerr != nil {
			log.WithError(qerr).Error("Failed to queue blob deletion")
		}
	}

	log.Info("Image deleted")
	s.notifier.Publish(core.FeedEvent{Type: core.EventImageDeleted, ImageID: imageID, AuthorID: caller})
	return nil
}

// ToggleLike flips the caller's like on the image. The image is not
// checked for existence.
func (s *ImageService) ToggleLike(ctx context.Context, caller, imageID string) (*LikeState, error) {
	if caller == "" {
		return nil, core.ErrUnauthenticated
	}

	liked, err := s.store.ToggleLike(ctx, caller, imageID)
	if err != nil {
		return nil, err
	}
	likes, err := s.store.CountLikes(ctx, imageID)
	if err != nil {
		return nil, err
	}

	s.notifier.Publish(core.FeedEvent{Type: core.EventLikeToggled, ImageID: imageID, Likes: likes})
	return &LikeState{Liked: liked, Likes: likes}, nil
}

// IsLiked reports whether the caller likes the image; false when
// unauthenticated.
func (s *ImageService) IsLiked(ctx context.Context, caller, imageID string) (bool, error) {
	if caller == "" {
		return false, nil
	}
	return s.store.HasLike(ctx, caller, imageID)
}
