package stores

import (
	"context"
	"fmt"

	"github.com/VascoOnEarth/PhotoShare/config"
	"github.com/VascoOnEarth/PhotoShare/core"
	"github.com/VascoOnEarth/PhotoShare/stores/memory"
	"github.com/VascoOnEarth/PhotoShare/stores/postgres"
	"github.com/VascoOnEarth/PhotoShare/stores/sqlite"
	"github.com/sirupsen/logrus"
)

// Store is a union interface that includes all store types.
type Store interface {
	core.ImageStore
	core.LikeStore
	core.UploadStore
	core.CleanupQueue
	core.UserStore
}

// NewStore builds the data store selected by props.StorageType.
func NewStore(ctx context.Context, props *config.Properties) (Store, error) {
	storageField := logrus.Fields{
		"storageType": props.StorageType,
	}

	var (
		store Store
		err   error
	)
	switch props.StorageType {
	case "sqlite":
		storageField["dataSourceName"] = props.DataSourceName
		store, err = sqlite.NewStore(ctx, props.DataSourceName)
	case "postgres":
		store, err = postgres.NewStore(ctx, props.DataSourceName)
	case "memory", "":
		store = memory.NewStore()
		storageField["storageType"] = "in-memory"
	default:
		return nil, fmt.Errorf("unknown storage type %q", props.StorageType)
	}
	if err != nil {
		return nil, err
	}

	logrus.WithFields(storageField).Info("Use storage")
	return store, nil
}

// GetStore is NewStore for process startup: any failure is fatal.
func GetStore(ctx context.Context, props *config.Properties) Store {
	store, err := NewStore(ctx, props)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to initialize storage")
	}
	return store
}
