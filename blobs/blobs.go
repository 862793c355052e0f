package blobs

import (
	"context"
	"fmt"

	"github.com/VascoOnEarth/PhotoShare/blobs/gcs"
	"github.com/VascoOnEarth/PhotoShare/blobs/local"
	"github.com/VascoOnEarth/PhotoShare/blobs/memory"
	"github.com/VascoOnEarth/PhotoShare/blobs/minio"
	"github.com/VascoOnEarth/PhotoShare/blobs/s3"
	"github.com/VascoOnEarth/PhotoShare/blobs/uploadtoken"
	"github.com/VascoOnEarth/PhotoShare/config"
	"github.com/VascoOnEarth/PhotoShare/core"
	"github.com/sirupsen/logrus"
)

// NewBlobStore builds the object store selected by props.Blob.StorageType.
// Hosted backends sign their upload URLs with signer.
func NewBlobStore(ctx context.Context, props *config.Properties, signer *uploadtoken.Signer) (core.BlobStore, error) {
	links := uploadtoken.Links{PublicURL: props.PublicURL, Signer: signer}
	storageField := logrus.Fields{
		"blobStorageType": props.Blob.StorageType,
	}

	var (
		store core.BlobStore
		err   error
	)
	switch props.Blob.StorageType {
	case "filesystem":
		storageField["basePath"] = props.LocalStoragePath
		store, err = local.NewStore(props.LocalStoragePath, links)
	case "s3":
		storageField["bucketName"] = props.S3.BucketName
		store, err = s3.NewStore(ctx, s3.Options{
			Bucket:          props.S3.BucketName,
			Region:          props.S3.Region,
			Endpoint:        props.S3.Endpoint,
			UsePathStyle:    props.S3.UsePathStyle,
			AccessKeyID:     props.S3.AccessKeyID,
			SecretAccessKey: props.S3.SecretAccessKey,
			KeyPrefix:       props.Blob.KeyPrefix,
			URLTTL:          props.Blob.URLTTL,
		})
	case "minio":
		storageField["bucketName"] = props.Minio.Bucket
		storageField["endpoint"] = props.Minio.Endpoint
		store, err = minio.NewStore(minio.Options{
			Endpoint:  props.Minio.Endpoint,
			AccessKey: props.Minio.AccessKey,
			SecretKey: props.Minio.SecretKey,
			Bucket:    props.Minio.Bucket,
			UseSSL:    props.Minio.UseSSL,
			KeyPrefix: props.Blob.KeyPrefix,
			URLTTL:    props.Blob.URLTTL,
		})
	case "gcs":
		storageField["bucketName"] = props.GCS.BucketName
		store, err = gcs.NewStore(ctx, gcs.Options{
			Bucket:         props.GCS.BucketName,
			GoogleAccessID: props.GCS.GoogleAccessID,
			PrivateKeyFile: props.GCS.PrivateKeyFile,
			KeyPrefix:      props.Blob.KeyPrefix,
			URLTTL:         props.Blob.URLTTL,
		})
	case "memory", "":
		store = memory.NewStore(links)
		storageField["blobStorageType"] = "in-memory"
	default:
		return nil, fmt.Errorf("unknown blob storage type %q", props.Blob.StorageType)
	}
	if err != nil {
		return nil, err
	}

	logrus.WithFields(storageField).Info("Use blob storage")
	return store, nil
}

// GetBlobStore is NewBlobStore for process startup: any failure is fatal.
func GetBlobStore(ctx context.Context, props *config.Properties, signer *uploadtoken.Signer) core.BlobStore {
	store, err := NewBlobStore(ctx, props, signer)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to initialize blob storage")
	}
	return store
}
