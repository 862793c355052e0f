package images

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/VascoOnEarth/PhotoShare/core"
	"github.com/VascoOnEarth/PhotoShare/middleware"
	"github.com/VascoOnEarth/PhotoShare/service"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"
	"github.com/oklog/ulid/v2"
	"github.com/sirupsen/logrus"
)

// ImageService is the subset of service.ImageService the handlers call.
type ImageService interface {
	RequestUploadSlot(ctx context.Context, caller string) (*core.UploadSlot, error)
	RegisterImage(ctx context.Context, caller, storageID string, description *string) (string, error)
	ListFeed(ctx context.Context) ([]*core.ImageView, error)
	ListOwn(ctx context.Context, caller string) ([]*core.ImageView, error)
	DeleteImage(ctx context.Context, caller, imageID string) error
	ToggleLike(ctx context.Context, caller, imageID string) (*service.LikeState, error)
	IsLiked(ctx context.Context, caller, imageID string) (bool, error)
}

type (
	RegisterImageRequest struct {
		StorageID   string  `json:"storageId" validate:"required,ulid"`
		Description *string `json:"description" validate:"omitempty,max=500"`
	}

	RegisterImageResponse struct {
		ID string `json:"id"`
	}

	LikedResponse struct {
		Liked bool `json:"liked"`
	}
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterValidation("ulid", func(fl validator.FieldLevel) bool {
		_, err := ulid.ParseStrict(fl.Field().String())
		return err == nil
	})
	return v
}

func HandleRequestUploadSlot(svc ImageService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		slot, err := svc.RequestUploadSlot(r.Context(), middleware.CallerID(r.Context()))
		if err != nil {
			renderError(w, r, err, "Failed to create upload slot")
			return
		}
		render.JSON(w, r, slot)
	}
}

func HandleRegisterImage(svc ImageService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req RegisterImageRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, map[string]string{"error": "Invalid request body"})
			return
		}
		if err := validate.Struct(req); err != nil {
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, map[string]string{"error": validationMessage(err)})
			return
		}

		id, err := svc.RegisterImage(r.Context(), middleware.CallerID(r.Context()), req.StorageID, req.Description)
		if err != nil {
			renderError(w, r, err, "Failed to register image")
			return
		}

		render.Status(r, http.StatusCreated)
		render.JSON(w, r, RegisterImageResponse{ID: id})
	}
}

func HandleListFeed(svc ImageService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		views, err := svc.ListFeed(r.Context())
		if err != nil {
			renderError(w, r, err, "Failed to list images")
			return
		}
		renderViews(w, r, views)
	}
}

func HandleListOwn(svc ImageService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		views, err := svc.ListOwn(r.Context(), middleware.CallerID(r.Context()))
		if err != nil {
			renderError(w, r, err, "Failed to list images")
			return
		}
		renderViews(w, r, views)
	}
}

func HandleDeleteImage(svc ImageService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		imageID := chi.URLParam(r, "imageId")
		if err := svc.DeleteImage(r.Context(), middleware.CallerID(r.Context()), imageID); err != nil {
			renderError(w, r, err, "Failed to delete image")
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func HandleToggleLike(svc ImageService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		imageID := chi.URLParam(r, "imageId")
		state, err := svc.ToggleLike(r.Context(), middleware.CallerID(r.Context()), imageID)
		if err != nil {
			renderError(w, r, err, "Failed to toggle like")
			return
		}
		render.JSON(w, r, state)
	}
}

func HandleIsLiked(svc ImageService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		imageID := chi.URLParam(r, "imageId")
		liked, err := svc.IsLiked(r.Context(), middleware.CallerID(r.Context()), imageID)
		if err != nil {
			renderError(w, r, err, "Failed to read like")
			return
		}
		render.JSON(w, r, LikedResponse{Liked: liked})
	}
}

func renderViews(w http.ResponseWriter, r *http.Request, views []*core.ImageView) {
	// Never encode null for an empty feed.
	if views == nil {
		views = []*core.ImageView{}
	}
	render.JSON(w, r, views)
}

// renderError maps service errors onto status codes. Anything unrecognised
// is logged and reported as fallback with a 500.
func renderError(w http.ResponseWriter, r *http.Request, err error, fallback string) {
	status := http.StatusInternalServerError
	msg := fallback
	switch {
	case errors.Is(err, core.ErrUnauthenticated):
		status, msg = http.StatusUnauthorized, err.Error()
	case errors.Is(err, core.ErrForbidden):
		status, msg = http.StatusForbidden, err.Error()
	case errors.Is(err, core.ErrNotFound):
		status, msg = http.StatusNotFound, err.Error()
	case errors.Is(err, core.ErrInvalidInput):
		status, msg = http.StatusBadRequest, err.Error()
	case errors.Is(err, core.ErrConflict):
		status, msg = http.StatusConflict, err.Error()
	default:
		logrus.WithFields(logrus.Fields{
			"error":  err,
			"path":   r.URL.Path,
			"method": r.Method,
		}).Error(fallback)
	}
	render.Status(r, status)
	render.JSON(w, r, map[string]string{"error": msg})
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	fields := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, fmt.Sprintf("%s failed %q", fe.Field(), fe.Tag()))
	}
	return "invalid request: " + strings.Join(fields, ", ")
}
