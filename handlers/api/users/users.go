package users

import (
	"errors"
	"net/http"

	"github.com/VascoOnEarth/PhotoShare/core"
	"github.com/VascoOnEarth/PhotoShare/middleware"
	"github.com/go-chi/render"
	"github.com/sirupsen/logrus"
)

// HandleMe returns the caller's user record. Callers whose record was never
// stored get one built from their token claims.
func HandleMe(store core.UserStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, ok := middleware.Claims(r.Context())
		if !ok {
			render.Status(r, http.StatusUnauthorized)
			render.JSON(w, r, map[string]string{"error": "User claims not found"})
			return
		}

		user, err := store.GetUser(r.Context(), claims.Subject)
		if errors.Is(err, core.ErrNotFound) {
			user = &core.User{
				Subject:   claims.Subject,
				Login:     claims.Login,
				Email:     claims.Email,
				AvatarURL: claims.AvatarURL,
				Name:      claims.Name,
			}
		} else if err != nil {
			logrus.WithFields(logrus.Fields{
				"error":  err,
				"userID": claims.Subject,
			}).Error("Failed to get user")
			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, map[string]string{"error": "Failed to get user"})
			return
		}

		render.JSON(w, r, user)
	}
}
