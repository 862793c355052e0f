package images

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/VascoOnEarth/PhotoShare/core"
	"github.com/VascoOnEarth/PhotoShare/handlers/auth"
	"github.com/VascoOnEarth/PhotoShare/middleware"
	"github.com/VascoOnEarth/PhotoShare/service"
	"github.com/go-chi/chi/v5"
)

const validStorageID = "01HZY3J8K2M4N6P8Q0R2S4T6V8"

// Mock image service for testing
type mockImageService struct {
	mu         sync.Mutex
	err        error
	views      []*core.ImageView
	registered []RegisterImageRequest
	callers    []string
	liked      bool
}

func (m *mockImageService) record(caller string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.callers = append(m.callers, caller)
	return m.err
}

func (m *mockImageService) RequestUploadSlot(ctx context.Context, caller string) (*core.UploadSlot, error) {
	if err := m.record(caller); err != nil {
		return nil, err
	}
	return &core.UploadSlot{
		UploadURL: "https://bucket.example.com/" + validStorageID,
		StorageID: validStorageID,
		ExpiresAt: time.Unix(1700000000, 0).UTC(),
	}, nil
}

func (m *mockImageService) RegisterImage(ctx context.Context, caller, storageID string, description *string) (string, error) {
	if err := m.record(caller); err != nil {
		return "", err
	}
	m.mu.Lock()
	m.registered = append(m.registered, RegisterImageRequest{StorageID: storageID, Description: description})
	m.mu.Unlock()
	return "image-1", nil
}

func (m *mockImageService) ListFeed(ctx context.Context) ([]*core.ImageView, error) {
	if err := m.record(""); err != nil {
		return nil, err
	}
	return m.views, nil
}

func (m *mockImageService) ListOwn(ctx context.Context, caller string) ([]*core.ImageView, error) {
	if err := m.record(caller); err != nil {
		return nil, err
	}
	return m.views, nil
}

func (m *mockImageService) DeleteImage(ctx context.Context, caller, imageID string) error {
	return m.record(caller)
}

func (m *mockImageService) ToggleLike(ctx context.Context, caller, imageID string) (*service.LikeState, error) {
	if err := m.record(caller); err != nil {
		return nil, err
	}
	return &service.LikeState{Liked: true, Likes: 3}, nil
}

func (m *mockImageService) IsLiked(ctx context.Context, caller, imageID string) (bool, error) {
	if err := m.record(caller); err != nil {
		return false, err
	}
	return m.liked, nil
}

func withCaller(req *http.Request, caller string) *http.Request {
	claims := &auth.AppClaims{}
	claims.Subject = caller
	ctx := context.WithValue(req.Context(), middleware.ClaimsContextKey, claims)
	return req.WithContext(ctx)
}

func withImageID(req *http.Request, imageID string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("imageId", imageID)
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]string
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("Failed to decode error response: %v", err)
	}
	return body["error"]
}

func TestHandleRequestUploadSlot(t *testing.T) {
	svc := &mockImageService{}
	req := withCaller(httptest.NewRequest(http.MethodPost, "/api/images/upload-url", nil), "alice")
	rec := httptest.NewRecorder()

	HandleRequestUploadSlot(svc)(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("Status code mismatch: got %d, want %d", rec.Code, http.StatusOK)
	}
	var slot core.UploadSlot
	if err := json.NewDecoder(rec.Body).Decode(&slot); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if slot.StorageID != validStorageID {
		t.Errorf("StorageID mismatch: got %q, want %q", slot.StorageID, validStorageID)
	}
	if svc.callers[0] != "alice" {
		t.Errorf("caller mismatch: got %q, want %q", svc.callers[0], "alice")
	}
}

func TestHandleRegisterImage(t *testing.T) {
	svc := &mockImageService{}
	body := fmt.Sprintf(`{"storageId":%q,"description":"sunset"}`, validStorageID)
	req := withCaller(httptest.NewRequest(http.MethodPost, "/api/images", strings.NewReader(body)), "alice")
	rec := httptest.NewRecorder()

	HandleRegisterImage(svc)(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("Status code mismatch: got %d, want %d", rec.Code, http.StatusCreated)
	}
	var resp RegisterImageResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if resp.ID != "image-1" {
		t.Errorf("ID mismatch: got %q, want %q", resp.ID, "image-1")
	}
	if len(svc.registered) != 1 || svc.registered[0].Description == nil || *svc.registered[0].Description != "sunset" {
		t.Errorf("unexpected registration: %+v", svc.registered)
	}
}

func TestHandleRegisterImage_NoDescription(t *testing.T) {
	svc := &mockImageService{}
	body := fmt.Sprintf(`{"storageId":%q}`, validStorageID)
	req := withCaller(httptest.NewRequest(http.MethodPost, "/api/images", strings.NewReader(body)), "alice")
	rec := httptest.NewRecorder()

	HandleRegisterImage(svc)(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("Status code mismatch: got %d, want %d", rec.Code, http.StatusCreated)
	}
	if svc.registered[0].Description != nil {
		t.Errorf("Description should be nil, got %q", *svc.registered[0].Description)
	}
}

func TestHandleRegisterImage_InvalidBody(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"malformed json", `{"storageId":`},
		{"missing storage id", `{"description":"x"}`},
		{"not a ulid", `{"storageId":"../../etc/passwd"}`},
		{"description too long", fmt.Sprintf(`{"storageId":%q,"description":%q}`, validStorageID, strings.Repeat("x", 501))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &mockImageService{}
			req := withCaller(httptest.NewRequest(http.MethodPost, "/api/images", strings.NewReader(tt.body)), "alice")
			rec := httptest.NewRecorder()

			HandleRegisterImage(svc)(rec, req)

			if rec.Code != http.StatusBadRequest {
				t.Errorf("Status code mismatch: got %d, want %d", rec.Code, http.StatusBadRequest)
			}
			if len(svc.callers) != 0 {
				t.Error("service should not be called for an invalid body")
			}
		})
	}
}

func TestHandlers_ErrorMapping(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"unauthenticated", core.ErrUnauthenticated, http.StatusUnauthorized},
		{"forbidden", core.ErrForbidden, http.StatusForbidden},
		{"not found", fmt.Errorf("image x: %w", core.ErrNotFound), http.StatusNotFound},
		{"invalid input", fmt.Errorf("%w: upload slot expired", core.ErrInvalidInput), http.StatusBadRequest},
		{"conflict", core.ErrConflict, http.StatusConflict},
		{"internal", errors.New("database is locked"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &mockImageService{err: tt.err}
			req := withImageID(httptest.NewRequest(http.MethodDelete, "/api/images/img", nil), "img")
			rec := httptest.NewRecorder()

			HandleDeleteImage(svc)(rec, req)

			if rec.Code != tt.want {
				t.Errorf("Status code mismatch: got %d, want %d", rec.Code, tt.want)
			}
			msg := decodeError(t, rec)
			if tt.want == http.StatusInternalServerError && msg != "Failed to delete image" {
				t.Errorf("internal error leaked: %q", msg)
			}
		})
	}
}

func TestHandleListFeed(t *testing.T) {
	svc := &mockImageService{views: []*core.ImageView{
		{Image: core.Image{ID: "b", AuthorID: "bob"}, URL: "https://cdn/b", Likes: 2},
		{Image: core.Image{ID: "a", AuthorID: "alice"}, URL: "", Likes: 0},
	}}
	rec := httptest.NewRecorder()

	HandleListFeed(svc)(rec, httptest.NewRequest(http.MethodGet, "/api/images", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("Status code mismatch: got %d, want %d", rec.Code, http.StatusOK)
	}
	var views []core.ImageView
	if err := json.NewDecoder(rec.Body).Decode(&views); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if len(views) != 2 || views[0].ID != "b" || views[0].Likes != 2 {
		t.Errorf("unexpected feed: %+v", views)
	}
}

func TestHandleListFeed_EmptyIsArray(t *testing.T) {
	rec := httptest.NewRecorder()
	HandleListFeed(&mockImageService{})(rec, httptest.NewRequest(http.MethodGet, "/api/images", nil))

	if got := strings.TrimSpace(rec.Body.String()); got != "[]" {
		t.Errorf("body mismatch: got %q, want %q", got, "[]")
	}
}

func TestHandleListOwn_Anonymous(t *testing.T) {
	svc := &mockImageService{}
	rec := httptest.NewRecorder()

	HandleListOwn(svc)(rec, httptest.NewRequest(http.MethodGet, "/api/images/mine", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("Status code mismatch: got %d, want %d", rec.Code, http.StatusOK)
	}
	if svc.callers[0] != "" {
		t.Errorf("caller mismatch: got %q, want empty", svc.callers[0])
	}
}

func TestHandleDeleteImage(t *testing.T) {
	svc := &mockImageService{}
	req := withCaller(withImageID(httptest.NewRequest(http.MethodDelete, "/api/images/img", nil), "img"), "alice")
	rec := httptest.NewRecorder()

	HandleDeleteImage(svc)(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Errorf("Status code mismatch: got %d, want %d", rec.Code, http.StatusNoContent)
	}
}

func TestHandleToggleLike(t *testing.T) {
	svc := &mockImageService{}
	req := withCaller(withImageID(httptest.NewRequest(http.MethodPost, "/api/images/img/like", nil), "img"), "alice")
	rec := httptest.NewRecorder()

	HandleToggleLike(svc)(rec, req)

	var state service.LikeState
	if err := json.NewDecoder(rec.Body).Decode(&state); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if !state.Liked || state.Likes != 3 {
		t.Errorf("unexpected state: %+v", state)
	}
}

func TestHandleIsLiked(t *testing.T) {
	svc := &mockImageService{liked: true}
	req := withCaller(withImageID(httptest.NewRequest(http.MethodGet, "/api/images/img/liked", nil), "img"), "alice")
	rec := httptest.NewRecorder()

	HandleIsLiked(svc)(rec, req)

	var resp LikedResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if !resp.Liked {
		t.Error("Expected liked to be true")
	}
}
