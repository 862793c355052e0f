// Package uploads receives and serves image bytes for blob stores hosted by
// this server. Remote buckets handle both directions themselves.
package uploads

import (
	"context"
	"errors"
	"io"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/VascoOnEarth/PhotoShare/core"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/sirupsen/logrus"
)

// TokenVerifier resolves an upload token to the storage id it was issued for.
type TokenVerifier interface {
	Verify(token string) (string, error)
}

// PendingUploads looks up the upload slot a token was issued for.
type PendingUploads interface {
	GetPendingUpload(ctx context.Context, storageID string) (*core.PendingUpload, error)
}

type UploadResponse struct {
	StorageID string `json:"storageId"`
}

// HandleUpload stores the request body under the storage id named by the
// upload token in the URL. The slot must still be pending: once the image is
// registered, discarded or deleted the token authorizes nothing.
func HandleUpload(store core.HostedBlobStore, pending PendingUploads, verifier TokenVerifier, maxBytes int64) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		storageID, err := verifier.Verify(chi.URLParam(r, "token"))
		if err != nil {
			render.Status(r, http.StatusUnauthorized)
			render.JSON(w, r, map[string]string{"error": "Invalid or expired upload token"})
			return
		}

		slot, err := pending.GetPendingUpload(r.Context(), storageID)
		if err != nil {
			if !errors.Is(err, core.ErrNotFound) {
				logrus.WithField("storage_id", storageID).WithError(err).Error("Failed to look up upload slot")
				render.Status(r, http.StatusInternalServerError)
				render.JSON(w, r, map[string]string{"error": "Failed to store upload"})
				return
			}
			render.Status(r, http.StatusGone)
			render.JSON(w, r, map[string]string{"error": "Upload slot is no longer open"})
			return
		}
		if !time.Now().Before(slot.ExpiresAt) {
			render.Status(r, http.StatusGone)
			render.JSON(w, r, map[string]string{"error": "Upload slot is no longer open"})
			return
		}

		contentType := r.Header.Get("Content-Type")
		mediaType, _, err := mime.ParseMediaType(contentType)
		if err != nil || !strings.HasPrefix(mediaType, "image/") {
			render.Status(r, http.StatusUnsupportedMediaType)
			render.JSON(w, r, map[string]string{"error": "Content-Type must be an image type"})
			return
		}

		log := logrus.WithFields(logrus.Fields{
			"storage_id":   storageID,
			"content_type": mediaType,
		})

		body := http.MaxBytesReader(w, r.Body, maxBytes)
		defer body.Close()

		if err := store.Put(r.Context(), storageID, mediaType, body); err != nil {
			var tooLarge *http.MaxBytesError
			switch {
			case errors.As(err, &tooLarge):
				render.Status(r, http.StatusRequestEntityTooLarge)
				render.JSON(w, r, map[string]string{"error": "Upload too large"})
			case errors.Is(err, core.ErrConflict):
				render.Status(r, http.StatusConflict)
				render.JSON(w, r, map[string]string{"error": "Upload already received"})
			default:
				log.WithError(err).Error("Failed to store upload")
				render.Status(r, http.StatusInternalServerError)
				render.JSON(w, r, map[string]string{"error": "Failed to store upload"})
			}
			return
		}

		log.Debug("Upload received")
		render.JSON(w, r, UploadResponse{StorageID: storageID})
	}
}

func HandleDownload(store core.HostedBlobStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		storageID := chi.URLParam(r, "storageId")

		rc, contentType, err := store.Open(r.Context(), storageID)
		if err != nil {
			if errors.Is(err, core.ErrNotFound) {
				http.NotFound(w, r)
				return
			}
			logrus.WithField("storage_id", storageID).WithError(err).Error("Failed to open blob")
			http.Error(w, "Failed to read blob", http.StatusInternalServerError)
			return
		}
		defer rc.Close()

		w.Header().Set("Content-Type", contentType)
		// Storage ids are never reused.
		w.Header().Set("Cache-Control", "public, max-age=31536000, immutable")
		if _, err := io.Copy(w, rc); err != nil {
			logrus.WithField("storage_id", storageID).WithError(err).Warn("Failed to stream blob")
		}
	}
}
