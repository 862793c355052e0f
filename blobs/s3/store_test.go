package s3

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// fakeBucket answers HEAD and DELETE for path-style keys under /photos/.
type fakeBucket struct {
	mu      sync.Mutex
	objects map[string]bool
	deleted []string
	fail    bool
}

func (b *fakeBucket) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.fail {
		w.WriteHeader(http.StatusForbidden)
		return
	}
	key := strings.TrimPrefix(r.URL.Path, "/photos/")
	switch r.Method {
	case http.MethodHead:
		if !b.objects[key] {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Length", "0")
		w.WriteHeader(http.StatusOK)
	case http.MethodDelete:
		delete(b.objects, key)
		b.deleted = append(b.deleted, key)
		w.WriteHeader(http.StatusNoContent)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (b *fakeBucket) setFail(fail bool) {
	b.mu.Lock()
	b.fail = fail
	b.mu.Unlock()
}

func (b *fakeBucket) deletedKeys() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.deleted...)
}

func newTestStore(t *testing.T, bucket *fakeBucket) *s3Store {
	t.Helper()
	srv := httptest.NewServer(bucket)
	t.Cleanup(srv.Close)

	client := s3.New(s3.Options{
		Region:       "us-east-1",
		Credentials:  credentials.NewStaticCredentialsProvider("AKID", "SECRET", ""),
		BaseEndpoint: aws.String(srv.URL),
		UsePathStyle: true,
		Retryer:      aws.NopRetryer{},
	})
	return newStore(client, Options{Bucket: "photos", KeyPrefix: "images/", URLTTL: time.Hour})
}

func TestCreateUploadURL(t *testing.T) {
	store := newTestStore(t, &fakeBucket{objects: map[string]bool{}})

	url, err := store.CreateUploadURL(context.Background(), "01HZX3K8Q4W5E6R7T8Y9U0I1O2", 15*time.Minute)
	if err != nil {
		t.Fatalf("CreateUploadURL() failed: %v", err)
	}
	if !strings.Contains(url, "/photos/images/01HZX3K8Q4W5E6R7T8Y9U0I1O2") {
		t.Errorf("upload URL does not address the object: %s", url)
	}
	if !strings.Contains(url, "X-Amz-Signature=") || !strings.Contains(url, "X-Amz-Expires=900") {
		t.Errorf("upload URL is not presigned for 15m: %s", url)
	}
}

func TestURL(t *testing.T) {
	store := newTestStore(t, &fakeBucket{objects: map[string]bool{}})

	url, err := store.URL(context.Background(), "blob-1")
	if err != nil {
		t.Fatalf("URL() failed: %v", err)
	}
	if !strings.Contains(url, "/photos/images/blob-1") || !strings.Contains(url, "X-Amz-Expires=3600") {
		t.Errorf("download URL mismatch: %s", url)
	}
}

func TestExists(t *testing.T) {
	bucket := &fakeBucket{objects: map[string]bool{"images/present": true}}
	store := newTestStore(t, bucket)
	ctx := context.Background()

	exists, err := store.Exists(ctx, "present")
	if err != nil || !exists {
		t.Errorf("Exists(present) mismatch: got %v, %v", exists, err)
	}

	exists, err = store.Exists(ctx, "absent")
	if err != nil || exists {
		t.Errorf("Exists(absent) mismatch: got %v, %v", exists, err)
	}

	bucket.setFail(true)
	if _, err := store.Exists(ctx, "present"); err == nil {
		t.Error("Exists() should surface non-404 errors")
	}
}

func TestDelete(t *testing.T) {
	bucket := &fakeBucket{objects: map[string]bool{"images/present": true}}
	store := newTestStore(t, bucket)
	ctx := context.Background()

	if err := store.Delete(ctx, "present"); err != nil {
		t.Fatalf("Delete() failed: %v", err)
	}
	if deleted := bucket.deletedKeys(); len(deleted) != 1 || deleted[0] != "images/present" {
		t.Errorf("deleted keys mismatch: got %v", deleted)
	}

	bucket.setFail(true)
	if err := store.Delete(ctx, "present"); err == nil {
		t.Error("Delete() should fail when the bucket refuses")
	}
}

func TestNewStore_RequiresBucket(t *testing.T) {
	if _, err := NewStore(context.Background(), Options{Region: "us-east-1"}); err == nil {
		t.Error("NewStore() should fail without a bucket")
	}
}
