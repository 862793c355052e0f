package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/VascoOnEarth/PhotoShare/blobs/uploadtoken"
	"github.com/VascoOnEarth/PhotoShare/config"
	"github.com/VascoOnEarth/PhotoShare/core"
	"github.com/VascoOnEarth/PhotoShare/stores/memory"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/oauth2"
)

const testSecret = "test-secret"

func setup(t *testing.T, dev bool) core.UserStore {
	t.Helper()
	store := memory.NewStore()
	props := &config.Properties{
		Auth: config.AuthProperties{
			JWTSecret: testSecret,
			JWTTTL:    time.Hour,
			DevLogin:  dev,
		},
	}
	InitAuth(context.Background(), props, store)
	t.Cleanup(func() {
		githubOauthConfig = nil
		oidcOauthConfig = nil
		githubUserURL = "https://api.github.com/user"
	})
	return store
}

func TestCreateAndParseJWT(t *testing.T) {
	setup(t, false)

	token, err := CreateJWT(&core.User{Subject: "github:42", Login: "octocat", Name: "Octo Cat"})
	if err != nil {
		t.Fatalf("CreateJWT() failed: %v", err)
	}

	claims, err := ParseJWT(token)
	if err != nil {
		t.Fatalf("ParseJWT() failed: %v", err)
	}
	if claims.Subject != "github:42" {
		t.Errorf("Subject mismatch: got %q, want %q", claims.Subject, "github:42")
	}
	if claims.Login != "octocat" {
		t.Errorf("Login mismatch: got %q, want %q", claims.Login, "octocat")
	}
	if exp := claims.ExpiresAt.Time; exp.After(time.Now().Add(time.Hour + time.Minute)) {
		t.Errorf("expiry %v exceeds configured TTL", exp)
	}
}

func TestCreateJWT_NoSecret(t *testing.T) {
	setup(t, false)
	jwtSecret = nil

	if _, err := CreateJWT(&core.User{Subject: "u"}); err == nil {
		t.Error("Expected error without a secret")
	}
}

func TestParseJWT_Rejects(t *testing.T) {
	setup(t, false)

	uploadToken, err := uploadtoken.NewSigner([]byte(testSecret)).Issue("01HZY3J8K2M4N6P8Q0R2S4T6V8", time.Minute)
	if err != nil {
		t.Fatalf("Issue() failed: %v", err)
	}

	expired := jwt.NewWithClaims(jwt.SigningMethodHS256, AppClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "u",
			Audience:  jwt.ClaimStrings{sessionAudience},
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
		},
	})
	expiredToken, _ := expired.SignedString([]byte(testSecret))

	noSubject := jwt.NewWithClaims(jwt.SigningMethodHS256, AppClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Audience:  jwt.ClaimStrings{sessionAudience},
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
		},
	})
	noSubjectToken, _ := noSubject.SignedString([]byte(testSecret))

	otherSecret := jwt.NewWithClaims(jwt.SigningMethodHS256, AppClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "u",
			Audience:  jwt.ClaimStrings{sessionAudience},
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
		},
	})
	otherSecretToken, _ := otherSecret.SignedString([]byte("another-secret"))

	none := jwt.NewWithClaims(jwt.SigningMethodNone, AppClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:  "u",
			Audience: jwt.ClaimStrings{sessionAudience},
		},
	})
	noneToken, _ := none.SignedString(jwt.UnsafeAllowNoneSignatureType)

	tests := []struct {
		name  string
		token string
	}{
		{"upload token", uploadToken},
		{"expired", expiredToken},
		{"no subject", noSubjectToken},
		{"other secret", otherSecretToken},
		{"alg none", noneToken},
		{"garbage", "not-a-token"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseJWT(tt.token); err == nil {
				t.Error("Expected ParseJWT to fail")
			}
		})
	}
}

func TestHandleDevLogin(t *testing.T) {
	store := setup(t, true)

	req := httptest.NewRequest(http.MethodPost, "/auth/dev", strings.NewReader(`{"login":" alice ","name":"Alice"}`))
	rec := httptest.NewRecorder()
	HandleDevLogin(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("Status code mismatch: got %d, want %d", rec.Code, http.StatusOK)
	}

	var resp TokenResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	claims, err := ParseJWT(resp.Token)
	if err != nil {
		t.Fatalf("ParseJWT() failed: %v", err)
	}
	if claims.Subject != "dev:alice" {
		t.Errorf("Subject mismatch: got %q, want %q", claims.Subject, "dev:alice")
	}

	user, err := store.GetUser(context.Background(), "dev:alice")
	if err != nil {
		t.Fatalf("GetUser() failed: %v", err)
	}
	if user.Name != "Alice" {
		t.Errorf("Name mismatch: got %q, want %q", user.Name, "Alice")
	}
}

func TestHandleDevLogin_Rejects(t *testing.T) {
	tests := []struct {
		name string
		dev  bool
		body string
		want int
	}{
		{"disabled", false, `{"login":"alice"}`, http.StatusNotFound},
		{"empty login", true, `{"login":"  "}`, http.StatusBadRequest},
		{"bad json", true, `{`, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setup(t, tt.dev)
			req := httptest.NewRequest(http.MethodPost, "/auth/dev", strings.NewReader(tt.body))
			rec := httptest.NewRecorder()
			HandleDevLogin(rec, req)
			if rec.Code != tt.want {
				t.Errorf("Status code mismatch: got %d, want %d", rec.Code, tt.want)
			}
		})
	}
}

func TestHandleLogin_NotConfigured(t *testing.T) {
	setup(t, false)

	rec := httptest.NewRecorder()
	HandleLogin(rec, httptest.NewRequest(http.MethodGet, "/auth/login", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("Status code mismatch: got %d, want %d", rec.Code, http.StatusInternalServerError)
	}
}

func TestGitHubLogin_SetsState(t *testing.T) {
	setup(t, false)
	initGitHub(config.GitHubProperties{ClientID: "id", ClientSecret: "secret", RedirectURL: "http://localhost/auth/callback"})

	rec := httptest.NewRecorder()
	HandleGitHubLogin(rec, httptest.NewRequest(http.MethodGet, "/auth/login", nil))

	if rec.Code != http.StatusTemporaryRedirect {
		t.Fatalf("Status code mismatch: got %d, want %d", rec.Code, http.StatusTemporaryRedirect)
	}
	location, err := url.Parse(rec.Header().Get("Location"))
	if err != nil {
		t.Fatalf("Failed to parse redirect: %v", err)
	}
	if location.Host != "github.com" {
		t.Errorf("Redirect host mismatch: got %q, want %q", location.Host, "github.com")
	}

	cookies := rec.Result().Cookies()
	if len(cookies) != 1 || cookies[0].Name != stateCookieName {
		t.Fatalf("Expected a state cookie, got %v", cookies)
	}
	if got := location.Query().Get("state"); got != cookies[0].Value {
		t.Errorf("state mismatch: got %q, want %q", got, cookies[0].Value)
	}
}

func TestGitHubCallback(t *testing.T) {
	store := setup(t, false)

	provider := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/token":
			w.Write([]byte(`{"access_token":"gh-token","token_type":"bearer"}`))
		case "/user":
			if r.Header.Get("Authorization") != "Bearer gh-token" {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			w.Write([]byte(`{"id":42,"login":"octocat","name":"Octo Cat","avatar_url":"https://example.com/a.png"}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer provider.Close()

	githubOauthConfig = &oauth2.Config{
		ClientID:     "id",
		ClientSecret: "secret",
		Endpoint: oauth2.Endpoint{
			AuthURL:  provider.URL + "/authorize",
			TokenURL: provider.URL + "/token",
		},
	}
	githubUserURL = provider.URL + "/user"

	t.Run("valid state", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/auth/callback?code=abc&state=xyz", nil)
		req.AddCookie(&http.Cookie{Name: stateCookieName, Value: "xyz"})
		rec := httptest.NewRecorder()
		HandleGitHubCallback(rec, req)

		if rec.Code != http.StatusTemporaryRedirect {
			t.Fatalf("Status code mismatch: got %d, want %d", rec.Code, http.StatusTemporaryRedirect)
		}
		location, _ := url.Parse(rec.Header().Get("Location"))
		claims, err := ParseJWT(location.Query().Get("token"))
		if err != nil {
			t.Fatalf("ParseJWT() failed: %v", err)
		}
		if claims.Subject != "github:42" {
			t.Errorf("Subject mismatch: got %q, want %q", claims.Subject, "github:42")
		}

		user, err := store.GetUser(context.Background(), "github:42")
		if err != nil {
			t.Fatalf("GetUser() failed: %v", err)
		}
		if user.Login != "octocat" {
			t.Errorf("Login mismatch: got %q, want %q", user.Login, "octocat")
		}
	})

	t.Run("state mismatch", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/auth/callback?code=abc&state=xyz", nil)
		req.AddCookie(&http.Cookie{Name: stateCookieName, Value: "other"})
		rec := httptest.NewRecorder()
		HandleGitHubCallback(rec, req)

		if rec.Code != http.StatusBadRequest {
			t.Errorf("Status code mismatch: got %d, want %d", rec.Code, http.StatusBadRequest)
		}
	})
}
