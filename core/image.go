package core

import (
	"context"
	"time"
)

type (
	// Image is a published post. It references exactly one stored blob.
	Image struct {
		ID          string  `json:"id"`
		StorageID   string  `json:"storageId"`
		AuthorID    string  `json:"authorId"`
		Description *string `json:"description,omitempty"`
		CreatedAt   int64   `json:"createdAt"`
	}

	// Like records that a user likes an image. At most one per (UserID, ImageID).
	Like struct {
		ID        string `json:"id"`
		ImageID   string `json:"imageId"`
		UserID    string `json:"userId"`
		CreatedAt int64  `json:"createdAt"`
	}

	// ImageView is an Image annotated for display. URL is empty when no
	// retrieval URL could be produced.
	ImageView struct {
		Image
		URL   string `json:"url"`
		Likes int    `json:"likes"`
	}

	// UploadSlot is a short-lived, single-use destination for one upload.
	UploadSlot struct {
		UploadURL string    `json:"uploadUrl"`
		StorageID string    `json:"storageId"`
		ExpiresAt time.Time `json:"expiresAt"`
	}

	// PendingUpload tracks an issued upload slot until the image is
	// registered or the slot expires.
	PendingUpload struct {
		StorageID string
		UserID    string
		CreatedAt time.Time
		ExpiresAt time.Time
	}

	// BlobDeletion is a queued deletion of a blob whose image row is gone.
	BlobDeletion struct {
		StorageID string
		Attempts  int
		LastError string
		CreatedAt time.Time
		UpdatedAt time.Time
	}

	ImageStore interface {
		GetImage(ctx context.Context, id string) (*Image, error)

		// ListImages returns every image, most recently created first.
		ListImages(ctx context.Context) ([]*Image, error)

		// ListImagesByAuthor returns the author's images, most recently created first.
		ListImagesByAuthor(ctx context.Context, authorID string) ([]*Image, error)

		// DeleteImage removes the image and all of its likes in one step and
		// reports how many likes were removed.
		DeleteImage(ctx context.Context, id string) (int, error)
	}

	LikeStore interface {
		CountLikes(ctx context.Context, imageID string) (int, error)
		HasLike(ctx context.Context, userID, imageID string) (bool, error)

		// ToggleLike removes the like if present, otherwise adds it, and
		// returns whether the user likes the image afterwards.
		ToggleLike(ctx context.Context, userID, imageID string) (bool, error)
	}

	UploadStore interface {
		CreatePendingUpload(ctx context.Context, upload *PendingUpload) error
		GetPendingUpload(ctx context.Context, storageID string) (*PendingUpload, error)

		// PromoteUpload consumes the caller's pending upload for
		// image.StorageID and inserts the image in one step.
		PromoteUpload(ctx context.Context, image *Image) error

		ListExpiredUploads(ctx context.Context, before time.Time, limit int) ([]*PendingUpload, error)

		// DiscardUpload removes a pending upload. It returns ErrNotFound when
		// the upload was already promoted or discarded.
		DiscardUpload(ctx context.Context, storageID string) error
	}

	CleanupQueue interface {
		EnqueueBlobDeletion(ctx context.Context, storageID, reason string) error
		ListBlobDeletions(ctx context.Context, maxAttempts, limit int) ([]*BlobDeletion, error)
		CompleteBlobDeletion(ctx context.Context, storageID string) error
		FailBlobDeletion(ctx context.Context, storageID, reason string) error
	}
)
