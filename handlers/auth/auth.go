package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/VascoOnEarth/PhotoShare/config"
	"github.com/VascoOnEarth/PhotoShare/core"
	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/go-chi/render"
	"github.com/golang-jwt/jwt/v5"
	"github.com/sirupsen/logrus"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/github"
)

const (
	sessionAudience = "photoshare"
	stateCookieName = "oauth_state"
)

var (
	loginHandler    http.HandlerFunc
	callbackHandler http.HandlerFunc
)

var (
	jwtSecret []byte
	jwtTTL    = 7 * 24 * time.Hour
	devLogin  bool
	users     core.UserStore

	githubOauthConfig *oauth2.Config
	githubUserURL     = "https://api.github.com/user"

	oidcOauthConfig *oauth2.Config
	verifier        *oidc.IDTokenVerifier
)

// AppClaims represents the custom claims for the session JWT. The subject
// is the caller's user id.
type AppClaims struct {
	jwt.RegisteredClaims
	Login     string `json:"login"`
	Email     string `json:"email,omitempty"`
	AvatarURL string `json:"avatarUrl"`
	Name      string `json:"name"`
}

// OIDCClaims represents the claims from OIDC token
type OIDCClaims struct {
	Email             string `json:"email"`
	Name              string `json:"name"`
	PreferredUsername string `json:"preferred_username"`
	Picture           string `json:"picture"`
	Sub               string `json:"sub"`
}

// InitAuth selects the login provider and records signed-in users in store.
func InitAuth(ctx context.Context, props *config.Properties, store core.UserStore) {
	users = store
	jwtSecret = []byte(props.Auth.JWTSecret)
	if props.Auth.JWTTTL > 0 {
		jwtTTL = props.Auth.JWTTTL
	}
	devLogin = props.Auth.DevLogin

	oidcConfigured := props.OIDC.IssuerURL != "" && props.OIDC.ClientID != ""
	githubConfigured := props.GitHub.ClientID != "" && props.GitHub.ClientSecret != ""

	switch {
	case oidcConfigured:
		logrus.Info("Initializing OIDC authentication provider.")
		initOIDC(ctx, props.OIDC)
		loginHandler = HandleOIDCLogin
		callbackHandler = HandleOIDCCallback
	case githubConfigured:
		logrus.Info("Initializing GitHub authentication provider.")
		initGitHub(props.GitHub)
		loginHandler = HandleGitHubLogin
		callbackHandler = HandleGitHubCallback
	default:
		logrus.Warn("No authentication provider configured.")
		loginHandler = notConfigured
		callbackHandler = notConfigured
	}

	if len(jwtSecret) == 0 {
		logrus.Warn("JWT_SECRET is not set. Authentication will not work.")
	}
	if devLogin {
		logrus.Warn("Development login is enabled. Do not use in production.")
	}
}

func notConfigured(w http.ResponseWriter, r *http.Request) {
	http.Error(w, "Authentication not configured", http.StatusInternalServerError)
}

func HandleLogin(w http.ResponseWriter, r *http.Request) {
	if loginHandler != nil {
		loginHandler(w, r)
	} else {
		notConfigured(w, r)
	}
}

func HandleCallback(w http.ResponseWriter, r *http.Request) {
	if callbackHandler != nil {
		callbackHandler(w, r)
	} else {
		notConfigured(w, r)
	}
}

func initGitHub(props config.GitHubProperties) {
	githubOauthConfig = &oauth2.Config{
		ClientID:     props.ClientID,
		ClientSecret: props.ClientSecret,
		RedirectURL:  props.RedirectURL,
		Scopes:       []string{"read:user", "user:email"},
		Endpoint:     github.Endpoint,
	}
}

func initOIDC(ctx context.Context, props config.OIDCProperties) {
	if props.ClientSecret == "" {
		logrus.Warn("OIDC client secret is not set. OIDC authentication routes will not work.")
		return
	}

	provider, err := oidc.NewProvider(ctx, props.IssuerURL)
	if err != nil {
		logrus.WithError(err).Error("Failed to create OIDC provider")
		return
	}

	oidcOauthConfig = &oauth2.Config{
		ClientID:     props.ClientID,
		ClientSecret: props.ClientSecret,
		RedirectURL:  props.RedirectURL,
		Scopes:       []string{oidc.ScopeOpenID, "profile", "email"},
		Endpoint:     provider.Endpoint(),
	}
	verifier = provider.Verifier(&oidc.Config{ClientID: props.ClientID})
	logrus.Info("OIDC provider initialized")
}

func setStateCookie(w http.ResponseWriter, r *http.Request) (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	state := hex.EncodeToString(b)
	http.SetCookie(w, &http.Cookie{
		Name:     stateCookieName,
		Value:    state,
		Path:     "/",
		Expires:  time.Now().Add(10 * time.Minute),
		HttpOnly: true,
		Secure:   r.Header.Get("X-Forwarded-Proto") == "https",
		SameSite: http.SameSiteLaxMode,
	})
	return state, nil
}

func validState(r *http.Request) bool {
	cookie, err := r.Cookie(stateCookieName)
	return err == nil && cookie.Value != "" && cookie.Value == r.FormValue("state")
}

func HandleGitHubLogin(w http.ResponseWriter, r *http.Request) {
	if githubOauthConfig == nil {
		http.Error(w, "GitHub OAuth is not configured", http.StatusInternalServerError)
		return
	}
	state, err := setStateCookie(w, r)
	if err != nil {
		http.Error(w, "Failed to generate state for login", http.StatusInternalServerError)
		return
	}
	http.Redirect(w, r, githubOauthConfig.AuthCodeURL(state), http.StatusTemporaryRedirect)
}

func HandleGitHubCallback(w http.ResponseWriter, r *http.Request) {
	if githubOauthConfig == nil {
		http.Error(w, "GitHub OAuth is not configured", http.StatusInternalServerError)
		return
	}
	if !validState(r) {
		logrus.Warn("GitHub callback with invalid state")
		http.Error(w, "Invalid OAuth state", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	token, err := githubOauthConfig.Exchange(ctx, r.FormValue("code"))
	if err != nil {
		logrus.WithError(err).Error("Failed to exchange token")
		http.Redirect(w, r, "/", http.StatusTemporaryRedirect)
		return
	}

	resp, err := githubOauthConfig.Client(ctx, token).Get(githubUserURL)
	if err != nil {
		logrus.WithError(err).Error("Failed to get user from github")
		http.Redirect(w, r, "/", http.StatusTemporaryRedirect)
		return
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		logrus.WithError(err).Error("Failed to read github response body")
		http.Redirect(w, r, "/", http.StatusTemporaryRedirect)
		return
	}

	var githubUser struct {
		ID        int64  `json:"id"`
		Login     string `json:"login"`
		AvatarURL string `json:"avatar_url"`
		Name      string `json:"name"`
		Email     string `json:"email"`
	}
	if err := json.Unmarshal(body, &githubUser); err != nil || githubUser.ID == 0 {
		logrus.WithError(err).Error("Failed to unmarshal github user")
		http.Redirect(w, r, "/", http.StatusTemporaryRedirect)
		return
	}

	completeLogin(w, r, &core.User{
		Subject:   fmt.Sprintf("github:%d", githubUser.ID),
		Login:     githubUser.Login,
		Email:     githubUser.Email,
		AvatarURL: githubUser.AvatarURL,
		Name:      githubUser.Name,
	})
}

func HandleOIDCLogin(w http.ResponseWriter, r *http.Request) {
	if oidcOauthConfig == nil {
		http.Error(w, "OIDC is not configured", http.StatusInternalServerError)
		return
	}
	state, err := setStateCookie(w, r)
	if err != nil {
		http.Error(w, "Failed to generate state for OIDC login", http.StatusInternalServerError)
		return
	}
	http.Redirect(w, r, oidcOauthConfig.AuthCodeURL(state), http.StatusTemporaryRedirect)
}

func HandleOIDCCallback(w http.ResponseWriter, r *http.Request) {
	if oidcOauthConfig == nil {
		http.Error(w, "OIDC is not configured", http.StatusInternalServerError)
		return
	}
	if !validState(r) {
		logrus.Warn("OIDC callback with invalid state")
		http.Error(w, "Invalid OAuth state", http.StatusBadRequest)
		return
	}

	code := r.FormValue("code")
	if code == "" {
		logrus.Error("no code in callback")
		http.Redirect(w, r, "/", http.StatusTemporaryRedirect)
		return
	}

	ctx := r.Context()
	token, err := oidcOauthConfig.Exchange(ctx, code)
	if err != nil {
		logrus.WithError(err).Error("Failed to exchange token")
		http.Redirect(w, r, "/", http.StatusTemporaryRedirect)
		return
	}

	rawIDToken, ok := token.Extra("id_token").(string)
	if !ok {
		logrus.Error("no id_token in token response")
		http.Redirect(w, r, "/", http.StatusTemporaryRedirect)
		return
	}

	idToken, err := verifier.Verify(ctx, rawIDToken)
	if err != nil {
		logrus.WithError(err).Error("Failed to verify ID token")
		http.Redirect(w, r, "/", http.StatusTemporaryRedirect)
		return
	}

	var claims OIDCClaims
	if err := idToken.Claims(&claims); err != nil {
		logrus.WithError(err).Error("Failed to extract claims from ID token")
		http.Redirect(w, r, "/", http.StatusTemporaryRedirect)
		return
	}

	user := &core.User{
		Subject:   claims.Sub,
		Login:     claims.PreferredUsername,
		Email:     claims.Email,
		AvatarURL: claims.Picture,
		Name:      claims.Name,
	}
	if user.Login == "" {
		user.Login = user.Email
	}
	completeLogin(w, r, user)
}

// completeLogin records the user and hands a session token to the frontend.
func completeLogin(w http.ResponseWriter, r *http.Request, user *core.User) {
	if users != nil {
		if err := users.UpsertUser(r.Context(), user); err != nil {
			logrus.WithError(err).WithField("subject", user.Subject).Error("Failed to record user")
			http.Redirect(w, r, "/", http.StatusTemporaryRedirect)
			return
		}
	}

	jwtToken, err := CreateJWT(user)
	if err != nil {
		logrus.WithError(err).Error("Failed to create JWT")
		http.Redirect(w, r, "/", http.StatusTemporaryRedirect)
		return
	}

	logrus.WithField("subject", user.Subject).Info("User signed in")
	http.Redirect(w, r, "/?token="+jwtToken, http.StatusTemporaryRedirect)
}

type (
	DevLoginRequest struct {
		Login string `json:"login"`
		Name  string `json:"name"`
	}

	TokenResponse struct {
		Token string `json:"token"`
	}
)

// HandleDevLogin issues a session token for any login name. It only
// answers when AUTH_DEV_LOGIN is enabled.
func HandleDevLogin(w http.ResponseWriter, r *http.Request) {
	if !devLogin {
		http.NotFound(w, r)
		return
	}

	var req DevLoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	req.Login = strings.TrimSpace(req.Login)
	if req.Login == "" {
		http.Error(w, "login is required", http.StatusBadRequest)
		return
	}

	user := &core.User{
		Subject: "dev:" + req.Login,
		Login:   req.Login,
		Name:    req.Name,
	}
	if users != nil {
		if err := users.UpsertUser(r.Context(), user); err != nil {
			logrus.WithError(err).Error("Failed to record user")
			http.Error(w, "Failed to record user", http.StatusInternalServerError)
			return
		}
	}

	token, err := CreateJWT(user)
	if err != nil {
		logrus.WithError(err).Error("Failed to create JWT")
		http.Error(w, "Failed to create token", http.StatusInternalServerError)
		return
	}
	render.JSON(w, r, TokenResponse{Token: token})
}

// CreateJWT issues a session token for user.
func CreateJWT(user *core.User) (string, error) {
	if len(jwtSecret) == 0 {
		return "", fmt.Errorf("JWT_SECRET is not set")
	}
	now := time.Now()
	claims := AppClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.Subject,
			Audience:  jwt.ClaimStrings{sessionAudience},
			ExpiresAt: jwt.NewNumericDate(now.Add(jwtTTL)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
		Login:     user.Login,
		Email:     user.Email,
		AvatarURL: user.AvatarURL,
		Name:      user.Name,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(jwtSecret)
}

func ParseJWT(tokenString string) (*AppClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &AppClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return jwtSecret, nil
	}, jwt.WithAudience(sessionAudience))

	if err != nil {
		return nil, err
	}

	if claims, ok := token.Claims.(*AppClaims); ok && token.Valid && claims.Subject != "" {
		return claims, nil
	}

	return nil, fmt.Errorf("invalid token")
}
