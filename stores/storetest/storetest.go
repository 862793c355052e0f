// Package storetest holds behavior checks shared by every data store backend.
package storetest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/VascoOnEarth/PhotoShare/core"
	"github.com/oklog/ulid/v2"
)

type Store interface {
	core.ImageStore
	core.LikeStore
	core.UploadStore
	core.CleanupQueue
	core.UserStore
}

// Run executes every check against stores produced by newStore. Each
// subtest receives a fresh, empty store.
func Run(t *testing.T, newStore func(t *testing.T) Store) {
	tests := []struct {
		name string
		fn   func(t *testing.T, s Store)
	}{
		{"PromoteAndGet", testPromoteAndGet},
		{"PromoteRequiresPendingUpload", testPromoteRequiresPendingUpload},
		{"PromoteTwice", testPromoteTwice},
		{"ListNewestFirst", testListNewestFirst},
		{"ListByAuthor", testListByAuthor},
		{"GetMissing", testGetMissing},
		{"ToggleLike", testToggleLike},
		{"DeleteCascadesLikes", testDeleteCascadesLikes},
		{"DeleteMissing", testDeleteMissing},
		{"ExpiredUploads", testExpiredUploads},
		{"DiscardUpload", testDiscardUpload},
		{"BlobDeletionQueue", testBlobDeletionQueue},
		{"Users", testUsers},
		{"ConcurrentToggle", testConcurrentToggle},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.fn(t, newStore(t))
		})
	}
}

func strPtr(s string) *string { return &s }

// Publish registers a pending upload for author and promotes it.
func Publish(t *testing.T, s Store, author string, description *string) *core.Image {
	t.Helper()
	ctx := context.Background()

	storageID := ulid.Make().String()
	err := s.CreatePendingUpload(ctx, &core.PendingUpload{
		StorageID: storageID,
		UserID:    author,
		CreatedAt: time.Now(),
		ExpiresAt: time.Now().Add(time.Hour),
	})
	if err != nil {
		t.Fatalf("CreatePendingUpload() failed: %v", err)
	}

	img := &core.Image{
		ID:          ulid.Make().String(),
		StorageID:   storageID,
		AuthorID:    author,
		Description: description,
		CreatedAt:   time.Now().UnixMilli(),
	}
	if err := s.PromoteUpload(ctx, img); err != nil {
		t.Fatalf("PromoteUpload() failed: %v", err)
	}
	return img
}

func testPromoteAndGet(t *testing.T, s Store) {
	ctx := context.Background()
	img := Publish(t, s, "user-a", strPtr("sunset"))

	got, err := s.GetImage(ctx, img.ID)
	if err != nil {
		t.Fatalf("GetImage() failed: %v", err)
	}
	if got.StorageID != img.StorageID || got.AuthorID != "user-a" || got.CreatedAt != img.CreatedAt {
		t.Errorf("image mismatch: got %+v, want %+v", got, img)
	}
	if got.Description == nil || *got.Description != "sunset" {
		t.Errorf("description mismatch: got %v, want %q", got.Description, "sunset")
	}

	if _, err := s.GetPendingUpload(ctx, img.StorageID); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("pending upload should be consumed, got err %v", err)
	}

	noDesc := Publish(t, s, "user-a", nil)
	got, err = s.GetImage(ctx, noDesc.ID)
	if err != nil {
		t.Fatalf("GetImage() failed: %v", err)
	}
	if got.Description != nil {
		t.Errorf("description should be absent, got %q", *got.Description)
	}
}

func testPromoteRequiresPendingUpload(t *testing.T, s Store) {
	ctx := context.Background()

	img := &core.Image{ID: ulid.Make().String(), StorageID: ulid.Make().String(), AuthorID: "user-a"}
	if err := s.PromoteUpload(ctx, img); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("PromoteUpload() without pending upload: got %v, want ErrNotFound", err)
	}

	storageID := ulid.Make().String()
	err := s.CreatePendingUpload(ctx, &core.PendingUpload{
		StorageID: storageID,
		UserID:    "user-a",
		CreatedAt: time.Now(),
		ExpiresAt: time.Now().Add(time.Hour),
	})
	if err != nil {
		t.Fatalf("CreatePendingUpload() failed: %v", err)
	}

	stolen := &core.Image{ID: ulid.Make().String(), StorageID: storageID, AuthorID: "user-b"}
	if err := s.PromoteUpload(ctx, stolen); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("PromoteUpload() by another user: got %v, want ErrNotFound", err)
	}

	images, err := s.ListImages(ctx)
	if err != nil {
		t.Fatalf("ListImages() failed: %v", err)
	}
	if len(images) != 0 {
		t.Errorf("expected no images, got %d", len(images))
	}
}

func testPromoteTwice(t *testing.T, s Store) {
	ctx := context.Background()
	img := Publish(t, s, "user-a", nil)

	again := &core.Image{ID: ulid.Make().String(), StorageID: img.StorageID, AuthorID: "user-a"}
	if err := s.PromoteUpload(ctx, again); err == nil {
		t.Error("PromoteUpload() should fail for an already registered storage id")
	}
}

func testListNewestFirst(t *testing.T, s Store) {
	ctx := context.Background()
	a := Publish(t, s, "user-a", nil)
	b := Publish(t, s, "user-b", nil)
	c := Publish(t, s, "user-a", nil)

	images, err := s.ListImages(ctx)
	if err != nil {
		t.Fatalf("ListImages() failed: %v", err)
	}
	assertOrder(t, images, c.ID, b.ID, a.ID)
}

func testListByAuthor(t *testing.T, s Store) {
	ctx := context.Background()
	a := Publish(t, s, "user-a", nil)
	Publish(t, s, "user-b", nil)
	c := Publish(t, s, "user-a", nil)

	images, err := s.ListImagesByAuthor(ctx, "user-a")
	if err != nil {
		t.Fatalf("ListImagesByAuthor() failed: %v", err)
	}
	assertOrder(t, images, c.ID, a.ID)

	images, err = s.ListImagesByAuthor(ctx, "nobody")
	if err != nil {
		t.Fatalf("ListImagesByAuthor() failed: %v", err)
	}
	if len(images) != 0 {
		t.Errorf("expected no images for unknown author, got %d", len(images))
	}
}

func assertOrder(t *testing.T, images []*core.Image, ids ...string) {
	t.Helper()
	if len(images) != len(ids) {
		t.Fatalf("length mismatch: got %d, want %d", len(images), len(ids))
	}
	for i, id := range ids {
		if images[i].ID != id {
			t.Errorf("position %d mismatch: got %s, want %s", i, images[i].ID, id)
		}
	}
}

func testGetMissing(t *testing.T, s Store) {
	if _, err := s.GetImage(context.Background(), "missing"); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("GetImage() missing: got %v, want ErrNotFound", err)
	}
}

func testToggleLike(t *testing.T, s Store) {
	ctx := context.Background()
	img := Publish(t, s, "user-a", nil)

	liked, err := s.ToggleLike(ctx, "user-b", img.ID)
	if err != nil {
		t.Fatalf("ToggleLike() failed: %v", err)
	}
	if !liked {
		t.Error("first ToggleLike() should like")
	}
	if ok, _ := s.HasLike(ctx, "user-b", img.ID); !ok {
		t.Error("HasLike() should be true after liking")
	}
	if n, _ := s.CountLikes(ctx, img.ID); n != 1 {
		t.Errorf("CountLikes() mismatch: got %d, want 1", n)
	}

	if _, err := s.ToggleLike(ctx, "user-c", img.ID); err != nil {
		t.Fatalf("ToggleLike() failed: %v", err)
	}
	if n, _ := s.CountLikes(ctx, img.ID); n != 2 {
		t.Errorf("CountLikes() mismatch: got %d, want 2", n)
	}

	liked, err = s.ToggleLike(ctx, "user-b", img.ID)
	if err != nil {
		t.Fatalf("ToggleLike() failed: %v", err)
	}
	if liked {
		t.Error("second ToggleLike() should unlike")
	}
	if ok, _ := s.HasLike(ctx, "user-b", img.ID); ok {
		t.Error("HasLike() should be false after unliking")
	}
	if n, _ := s.CountLikes(ctx, img.ID); n != 1 {
		t.Errorf("CountLikes() mismatch: got %d, want 1", n)
	}
}

func testDeleteCascadesLikes(t *testing.T, s Store) {
	ctx := context.Background()
	img := Publish(t, s, "user-a", nil)
	other := Publish(t, s, "user-a", nil)

	for _, user := range []string{"user-b", "user-c"} {
		if _, err := s.ToggleLike(ctx, user, img.ID); err != nil {
			t.Fatalf("ToggleLike() failed: %v", err)
		}
	}
	if _, err := s.ToggleLike(ctx, "user-b", other.ID); err != nil {
		t.Fatalf("ToggleLike() failed: %v", err)
	}

	removed, err := s.DeleteImage(ctx, img.ID)
	if err != nil {
		t.Fatalf("DeleteImage() failed: %v", err)
	}
	if removed != 2 {
		t.Errorf("likes removed mismatch: got %d, want 2", removed)
	}

	if _, err := s.GetImage(ctx, img.ID); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("GetImage() after delete: got %v, want ErrNotFound", err)
	}
	if n, _ := s.CountLikes(ctx, img.ID); n != 0 {
		t.Errorf("CountLikes() after delete: got %d, want 0", n)
	}
	if n, _ := s.CountLikes(ctx, other.ID); n != 1 {
		t.Errorf("CountLikes() of untouched image: got %d, want 1", n)
	}
}

func testDeleteMissing(t *testing.T, s Store) {
	if _, err := s.DeleteImage(context.Background(), "missing"); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("DeleteImage() missing: got %v, want ErrNotFound", err)
	}
}

func testExpiredUploads(t *testing.T, s Store) {
	ctx := context.Background()
	now := time.Now()

	for i, offset := range []time.Duration{-2 * time.Hour, -time.Hour, time.Hour} {
		err := s.CreatePendingUpload(ctx, &core.PendingUpload{
			StorageID: fmt.Sprintf("upload-%d", i),
			UserID:    "user-a",
			CreatedAt: now.Add(offset - time.Minute),
			ExpiresAt: now.Add(offset),
		})
		if err != nil {
			t.Fatalf("CreatePendingUpload() failed: %v", err)
		}
	}

	expired, err := s.ListExpiredUploads(ctx, now, 10)
	if err != nil {
		t.Fatalf("ListExpiredUploads() failed: %v", err)
	}
	if len(expired) != 2 {
		t.Fatalf("expired count mismatch: got %d, want 2", len(expired))
	}
	if expired[0].StorageID != "upload-0" || expired[1].StorageID != "upload-1" {
		t.Errorf("expired order mismatch: got %s, %s", expired[0].StorageID, expired[1].StorageID)
	}

	limited, err := s.ListExpiredUploads(ctx, now, 1)
	if err != nil {
		t.Fatalf("ListExpiredUploads() failed: %v", err)
	}
	if len(limited) != 1 {
		t.Errorf("limited count mismatch: got %d, want 1", len(limited))
	}
}

func testDiscardUpload(t *testing.T, s Store) {
	ctx := context.Background()
	err := s.CreatePendingUpload(ctx, &core.PendingUpload{
		StorageID: "upload-x",
		UserID:    "user-a",
		CreatedAt: time.Now(),
		ExpiresAt: time.Now(),
	})
	if err != nil {
		t.Fatalf("CreatePendingUpload() failed: %v", err)
	}

	if err := s.DiscardUpload(ctx, "upload-x"); err != nil {
		t.Fatalf("DiscardUpload() failed: %v", err)
	}
	if err := s.DiscardUpload(ctx, "upload-x"); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("second DiscardUpload(): got %v, want ErrNotFound", err)
	}
}

func testBlobDeletionQueue(t *testing.T, s Store) {
	ctx := context.Background()

	if err := s.EnqueueBlobDeletion(ctx, "blob-1", "timeout"); err != nil {
		t.Fatalf("EnqueueBlobDeletion() failed: %v", err)
	}
	if err := s.EnqueueBlobDeletion(ctx, "blob-1", "timeout again"); err != nil {
		t.Fatalf("EnqueueBlobDeletion() twice failed: %v", err)
	}
	if err := s.EnqueueBlobDeletion(ctx, "blob-2", "refused"); err != nil {
		t.Fatalf("EnqueueBlobDeletion() failed: %v", err)
	}

	queued, err := s.ListBlobDeletions(ctx, 3, 10)
	if err != nil {
		t.Fatalf("ListBlobDeletions() failed: %v", err)
	}
	if len(queued) != 2 {
		t.Fatalf("queued count mismatch: got %d, want 2", len(queued))
	}

	for i := 0; i < 3; i++ {
		if err := s.FailBlobDeletion(ctx, "blob-2", "still refused"); err != nil {
			t.Fatalf("FailBlobDeletion() failed: %v", err)
		}
	}
	if err := s.CompleteBlobDeletion(ctx, "blob-1"); err != nil {
		t.Fatalf("CompleteBlobDeletion() failed: %v", err)
	}

	queued, err = s.ListBlobDeletions(ctx, 3, 10)
	if err != nil {
		t.Fatalf("ListBlobDeletions() failed: %v", err)
	}
	if len(queued) != 0 {
		t.Errorf("exhausted entries should not be listed, got %d", len(queued))
	}

	queued, err = s.ListBlobDeletions(ctx, 0, 10)
	if err != nil {
		t.Fatalf("ListBlobDeletions() failed: %v", err)
	}
	if len(queued) != 1 {
		t.Fatalf("queued count mismatch: got %d, want 1", len(queued))
	}
	if queued[0].Attempts != 3 || queued[0].LastError != "still refused" {
		t.Errorf("deletion mismatch: got %+v", queued[0])
	}
}

func testUsers(t *testing.T, s Store) {
	ctx := context.Background()

	if _, err := s.GetUser(ctx, "github:1"); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("GetUser() missing: got %v, want ErrNotFound", err)
	}

	user := &core.User{Subject: "github:1", Login: "octo", Name: "Octo Cat"}
	if err := s.UpsertUser(ctx, user); err != nil {
		t.Fatalf("UpsertUser() failed: %v", err)
	}
	user.Name = "Octo"
	if err := s.UpsertUser(ctx, user); err != nil {
		t.Fatalf("UpsertUser() update failed: %v", err)
	}

	got, err := s.GetUser(ctx, "github:1")
	if err != nil {
		t.Fatalf("GetUser() failed: %v", err)
	}
	if got.Login != "octo" || got.Name != "Octo" {
		t.Errorf("user mismatch: got %+v", got)
	}
}

func testConcurrentToggle(t *testing.T, s Store) {
	ctx := context.Background()
	img := Publish(t, s, "user-a", nil)

	const users = 10
	var wg sync.WaitGroup
	errs := make(chan error, users)

	for i := 0; i < users; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if _, err := s.ToggleLike(ctx, fmt.Sprintf("user-%d", i), img.ID); err != nil {
				errs <- err
			}
		}(i)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Errorf("concurrent ToggleLike() failed: %v", err)
	}
	if n, _ := s.CountLikes(ctx, img.ID); n != users {
		t.Errorf("CountLikes() mismatch: got %d, want %d", n, users)
	}
}
