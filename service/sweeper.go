package service

import (
	"context"
	"errors"
	"time"

	"github.com/VascoOnEarth/PhotoShare/core"
	"github.com/VascoOnEarth/PhotoShare/stores"
	"github.com/sirupsen/logrus"
)

// Sweeper collects blobs no image references: blobs of deleted images whose
// removal failed and blobs of upload slots that expired unregistered.
type Sweeper struct {
	store       stores.Store
	blobs       core.BlobStore
	batchSize   int
	maxAttempts int
	now         func() time.Time
}

type SweepResult struct {
	BlobsDeleted   int
	UploadsExpired int
	Failures       int
}

func NewSweeper(store stores.Store, blobs core.BlobStore, batchSize, maxAttempts int) *Sweeper {
	if batchSize <= 0 {
		batchSize = 50
	}
	return &Sweeper{
		store:       store,
		blobs:       blobs,
		batchSize:   batchSize,
		maxAttempts: maxAttempts,
		now:         time.Now,
	}
}

// Run sweeps every interval until ctx is done.
func (s *Sweeper) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			res := s.Sweep(ctx)
			if res.BlobsDeleted > 0 || res.UploadsExpired > 0 || res.Failures > 0 {
				logrus.WithFields(logrus.Fields{
					"blobs_deleted":   res.BlobsDeleted,
					"uploads_expired": res.UploadsExpired,
					"failures":        res.Failures,
				}).Info("Sweep finished")
			}
		}
	}
}

func (s *Sweeper) Sweep(ctx context.Context) SweepResult {
	var res SweepResult
	s.retryDeletions(ctx, &res)
	s.expireUploads(ctx, &res)
	return res
}

func (s *Sweeper) retryDeletions(ctx context.Context, res *SweepResult) {
	queued, err := s.store.ListBlobDeletions(ctx, s.maxAttempts, s.batchSize)
	if err != nil {
		logrus.WithError(err).Error("Failed to list queued blob deletions")
		res.Failures++
		return
	}

	for _, d := range queued {
		log := logrus.WithFields(logrus.Fields{
			"storage_id": d.StorageID,
			"attempts":   d.Attempts,
		})
		if err := s.blobs.Delete(ctx, d.StorageID); err != nil {
			res.Failures++
			log.WithError(err).Warn("Queued blob deletion failed")
			if ferr := s.store.FailBlobDeletion(ctx, d.StorageID, err.Error()); ferr != nil {
				log.WithError(ferr).Error("Failed to record blob deletion attempt")
			}
			continue
		}
		if err := s.store.CompleteBlobDeletion(ctx, d.StorageID); err != nil {
			log.WithError(err).Error("Failed to dequeue blob deletion")
			res.Failures++
			continue
		}
		res.BlobsDeleted++
	}
}

func (s *Sweeper) expireUploads(ctx context.Context, res *SweepResult) {
	expired, err := s.store.ListExpiredUploads(ctx, s.now(), s.batchSize)
	if err != nil {
		logrus.WithError(err).Error("Failed to list expired uploads")
		res.Failures++
		return
	}

	for _, upload := range expired {
		log := logrus.WithFields(logrus.Fields{
			"storage_id": upload.StorageID,
			"user_id":    upload.UserID,
		})
		// A concurrent RegisterImage may have promoted the slot; its blob is
		// then in use.
		if err := s.store.DiscardUpload(ctx, upload.StorageID); err != nil {
			if !errors.Is(err, core.ErrNotFound) {
				log.WithError(err).Error("Failed to discard expired upload")
				res.Failures++
			}
			continue
		}
		res.UploadsExpired++

		if err := s.blobs.Delete(ctx, upload.StorageID); err != nil {
			res.Failures++
			log.WithError(err).Warn("Failed to delete expired upload blob, queueing for retry")
			if qerr := s.store.EnqueueBlobDeletion(ctx, upload.StorageID, err.Error()); qerr != nil {
				log.WithError(qerr).Error("Failed to queue blob deletion")
			}
			continue
		}
		res.BlobsDeleted++
	}
}
