package uploads

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/VascoOnEarth/PhotoShare/blobs/memory"
	"github.com/VascoOnEarth/PhotoShare/blobs/uploadtoken"
	"github.com/VascoOnEarth/PhotoShare/core"
	datamemory "github.com/VascoOnEarth/PhotoShare/stores/memory"
	"github.com/go-chi/chi/v5"
)

const storageID = "01HZY3J8K2M4N6P8Q0R2S4T6V8"

type fixture struct {
	router http.Handler
	signer *uploadtoken.Signer
	data   interface {
		core.UploadStore
		core.ImageStore
	}
}

func newRouter(t *testing.T, maxBytes int64) (http.Handler, *uploadtoken.Signer) {
	t.Helper()
	f := newFixture(t, maxBytes)
	f.openSlot(t, storageID, time.Minute)
	return f.router, f.signer
}

func newFixture(t *testing.T, maxBytes int64) *fixture {
	t.Helper()
	signer := uploadtoken.NewSigner([]byte("upload-secret"))
	store := memory.NewStore(uploadtoken.Links{PublicURL: "http://localhost", Signer: signer})
	data := datamemory.NewStore()

	r := chi.NewRouter()
	r.Put("/api/uploads/{token}", HandleUpload(store, data, signer, maxBytes))
	r.Get("/api/blobs/{storageId}", HandleDownload(store))
	return &fixture{router: r, signer: signer, data: data}
}

func (f *fixture) openSlot(t *testing.T, id string, ttl time.Duration) {
	t.Helper()
	now := time.Now()
	err := f.data.CreatePendingUpload(context.Background(), &core.PendingUpload{
		StorageID: id,
		UserID:    "dev:alice",
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	})
	if err != nil {
		t.Fatalf("CreatePendingUpload() failed: %v", err)
	}
}

func put(r http.Handler, token, contentType, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPut, "/api/uploads/"+token, strings.NewReader(body))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestUploadAndDownload(t *testing.T) {
	r, signer := newRouter(t, 1024)
	token, err := signer.Issue(storageID, time.Minute)
	if err != nil {
		t.Fatalf("Issue() failed: %v", err)
	}

	rec := put(r, token, "image/jpeg", "jpeg-bytes")
	if rec.Code != http.StatusOK {
		t.Fatalf("Status code mismatch: got %d, want %d", rec.Code, http.StatusOK)
	}
	var resp UploadResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if resp.StorageID != storageID {
		t.Errorf("StorageID mismatch: got %q, want %q", resp.StorageID, storageID)
	}

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/blobs/"+storageID, nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("Status code mismatch: got %d, want %d", rec.Code, http.StatusOK)
	}
	if got := rec.Header().Get("Content-Type"); got != "image/jpeg" {
		t.Errorf("Content-Type mismatch: got %q, want %q", got, "image/jpeg")
	}
	body, _ := io.ReadAll(rec.Body)
	if string(body) != "jpeg-bytes" {
		t.Errorf("body mismatch: got %q, want %q", body, "jpeg-bytes")
	}
}

func TestUpload_Rejections(t *testing.T) {
	tests := []struct {
		name        string
		contentType string
		body        string
		token       func(s *uploadtoken.Signer) string
		want        int
	}{
		{
			name:        "bad token",
			contentType: "image/png",
			body:        "x",
			token:       func(*uploadtoken.Signer) string { return "garbage" },
			want:        http.StatusUnauthorized,
		},
		{
			name:        "other secret",
			contentType: "image/png",
			body:        "x",
			token: func(*uploadtoken.Signer) string {
				tok, _ := uploadtoken.NewSigner([]byte("other")).Issue(storageID, time.Minute)
				return tok
			},
			want: http.StatusUnauthorized,
		},
		{
			name:        "not an image",
			contentType: "text/plain",
			body:        "x",
			want:        http.StatusUnsupportedMediaType,
		},
		{
			name: "missing content type",
			body: "x",
			want: http.StatusUnsupportedMediaType,
		},
		{
			name:        "too large",
			contentType: "image/jpeg",
			body:        strings.Repeat("x", 17),
			want:        http.StatusRequestEntityTooLarge,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, signer := newRouter(t, 16)
			token, _ := signer.Issue(storageID, time.Minute)
			if tt.token != nil {
				token = tt.token(signer)
			}

			rec := put(r, token, tt.contentType, tt.body)
			if rec.Code != tt.want {
				t.Errorf("Status code mismatch: got %d, want %d", rec.Code, tt.want)
			}
		})
	}
}

func TestUpload_SecondPutConflicts(t *testing.T) {
	r, signer := newRouter(t, 1024)
	token, _ := signer.Issue(storageID, time.Minute)

	if rec := put(r, token, "image/jpeg", "first"); rec.Code != http.StatusOK {
		t.Fatalf("first upload failed: %d", rec.Code)
	}
	if rec := put(r, token, "image/jpeg", "second"); rec.Code != http.StatusConflict {
		t.Errorf("Status code mismatch: got %d, want %d", rec.Code, http.StatusConflict)
	}

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/blobs/"+storageID, nil))
	if rec.Body.String() != "first" {
		t.Errorf("blob was overwritten: got %q", rec.Body.String())
	}
}

func TestDownload_NotFound(t *testing.T) {
	r, _ := newRouter(t, 1024)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/blobs/"+storageID, nil).WithContext(context.Background()))

	if rec.Code != http.StatusNotFound {
		t.Errorf("Status code mismatch: got %d, want %d", rec.Code, http.StatusNotFound)
	}
}

func TestUpload_ClosedSlot(t *testing.T) {
	tests := []struct {
		name  string
		setup func(t *testing.T, f *fixture)
	}{
		{
			name:  "never issued",
			setup: func(t *testing.T, f *fixture) {},
		},
		{
			name: "expired",
			setup: func(t *testing.T, f *fixture) {
				f.openSlot(t, storageID, -time.Second)
			},
		},
		{
			name: "discarded",
			setup: func(t *testing.T, f *fixture) {
				f.openSlot(t, storageID, time.Minute)
				if err := f.data.DiscardUpload(context.Background(), storageID); err != nil {
					t.Fatalf("DiscardUpload() failed: %v", err)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, 1024)
			tt.setup(t, f)
			token, _ := f.signer.Issue(storageID, time.Minute)

			if rec := put(f.router, token, "image/jpeg", "bytes"); rec.Code != http.StatusGone {
				t.Errorf("Status code mismatch: got %d, want %d", rec.Code, http.StatusGone)
			}
		})
	}
}

func TestUpload_RegisteredSlotIsNotReusable(t *testing.T) {
	f := newFixture(t, 1024)
	f.openSlot(t, storageID, time.Minute)
	token, _ := f.signer.Issue(storageID, time.Minute)

	if rec := put(f.router, token, "image/jpeg", "first"); rec.Code != http.StatusOK {
		t.Fatalf("first upload failed: %d", rec.Code)
	}
	ctx := context.Background()
	if err := f.data.PromoteUpload(ctx, &core.Image{ID: "img-1", StorageID: storageID, AuthorID: "dev:alice"}); err != nil {
		t.Fatalf("PromoteUpload() failed: %v", err)
	}
	if _, err := f.data.DeleteImage(ctx, "img-1"); err != nil {
		t.Fatalf("DeleteImage() failed: %v", err)
	}

	if rec := put(f.router, token, "image/jpeg", "second"); rec.Code != http.StatusGone {
		t.Errorf("Status code mismatch: got %d, want %d", rec.Code, http.StatusGone)
	}
}
