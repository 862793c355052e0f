package blobs

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/VascoOnEarth/PhotoShare/blobs/uploadtoken"
	"github.com/VascoOnEarth/PhotoShare/config"
	"github.com/VascoOnEarth/PhotoShare/core"
)

func TestNewBlobStore(t *testing.T) {
	ctx := context.Background()
	signer := uploadtoken.NewSigner([]byte("secret"))

	tests := []struct {
		name       string
		props      config.Properties
		wantHosted bool
		wantErr    bool
	}{
		{"default is memory", config.Properties{}, true, false},
		{"filesystem", config.Properties{
			Blob:             config.BlobProperties{StorageType: "filesystem"},
			LocalStoragePath: filepath.Join(t.TempDir(), "blobs"),
		}, true, false},
		{"minio", config.Properties{
			Blob:  config.BlobProperties{StorageType: "minio"},
			Minio: config.MinioProperties{Endpoint: "localhost:9000", Bucket: "photos"},
		}, false, false},
		{"s3 without bucket", config.Properties{Blob: config.BlobProperties{StorageType: "s3"}}, false, true},
		{"gcs without bucket", config.Properties{Blob: config.BlobProperties{StorageType: "gcs"}}, false, true},
		{"unknown", config.Properties{Blob: config.BlobProperties{StorageType: "ftp"}}, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, err := NewBlobStore(ctx, &tt.props, signer)
			if tt.wantErr {
				if err == nil {
					t.Error("NewBlobStore() should fail")
				}
				return
			}
			if err != nil {
				t.Fatalf("NewBlobStore() failed: %v", err)
			}
			_, hosted := store.(core.HostedBlobStore)
			if hosted != tt.wantHosted {
				t.Errorf("hosted mismatch: got %v, want %v", hosted, tt.wantHosted)
			}
		})
	}
}
