package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/VascoOnEarth/PhotoShare/handlers/auth"
	"github.com/go-chi/render"
	"github.com/sirupsen/logrus"
)

type contextKey string

const ClaimsContextKey = contextKey("claims")

// AuthJWT rejects requests without a valid bearer token.
func AuthJWT(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			unauthorized(w, r, "Authorization header is required")
			return
		}

		token, ok := bearerToken(authHeader)
		if !ok {
			unauthorized(w, r, "Authorization header format must be Bearer {token}")
			return
		}

		claims, err := auth.ParseJWT(token)
		if err != nil {
			unauthorized(w, r, "Invalid token")
			return
		}

		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ClaimsContextKey, claims)))
	})
}

// OptionalJWT attaches claims when the request carries a valid bearer
// token. A missing, malformed or expired token is served as anonymous.
func OptionalJWT(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			next.ServeHTTP(w, r)
			return
		}

		token, ok := bearerToken(authHeader)
		if !ok {
			logrus.WithField("path", r.URL.Path).Debug("Ignoring malformed Authorization header")
			next.ServeHTTP(w, r)
			return
		}

		claims, err := auth.ParseJWT(token)
		if err != nil {
			logrus.WithError(err).WithField("path", r.URL.Path).Debug("Ignoring invalid session token")
			next.ServeHTTP(w, r)
			return
		}

		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ClaimsContextKey, claims)))
	})
}

func bearerToken(authHeader string) (string, bool) {
	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
		return "", false
	}
	return parts[1], true
}

func unauthorized(w http.ResponseWriter, r *http.Request, msg string) {
	render.Status(r, http.StatusUnauthorized)
	render.JSON(w, r, map[string]string{"error": msg})
}

// Claims returns the session claims attached by AuthJWT or OptionalJWT.
func Claims(ctx context.Context) (*auth.AppClaims, bool) {
	claims, ok := ctx.Value(ClaimsContextKey).(*auth.AppClaims)
	return claims, ok
}

// CallerID returns the authenticated user id, or "" for anonymous requests.
func CallerID(ctx context.Context) string {
	if claims, ok := Claims(ctx); ok {
		return claims.Subject
	}
	return ""
}
