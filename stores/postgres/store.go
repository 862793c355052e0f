package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/VascoOnEarth/PhotoShare/stores/sqldb"
	_ "github.com/lib/pq"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS images (
		seq BIGSERIAL PRIMARY KEY,
		id TEXT NOT NULL UNIQUE,
		storage_id TEXT NOT NULL UNIQUE,
		author_id TEXT NOT NULL,
		description TEXT,
		created_at BIGINT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS images_by_author ON images(author_id)`,
	`CREATE TABLE IF NOT EXISTS likes (
		seq BIGSERIAL PRIMARY KEY,
		id TEXT NOT NULL UNIQUE,
		image_id TEXT NOT NULL,
		user_id TEXT NOT NULL,
		created_at BIGINT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS likes_by_image ON likes(image_id)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS likes_by_user_and_image ON likes(user_id, image_id)`,
	`CREATE TABLE IF NOT EXISTS pending_uploads (
		storage_id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		created_at BIGINT NOT NULL,
		expires_at BIGINT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS pending_uploads_by_expiry ON pending_uploads(expires_at)`,
	`CREATE TABLE IF NOT EXISTS blob_deletions (
		storage_id TEXT PRIMARY KEY,
		attempts INTEGER NOT NULL DEFAULT 0,
		last_error TEXT NOT NULL DEFAULT '',
		created_at BIGINT NOT NULL,
		updated_at BIGINT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS users (
		subject TEXT PRIMARY KEY,
		login TEXT NOT NULL,
		email TEXT NOT NULL DEFAULT '',
		avatar_url TEXT NOT NULL DEFAULT '',
		name TEXT NOT NULL DEFAULT '',
		created_at BIGINT NOT NULL,
		updated_at BIGINT NOT NULL
	)`,
}

// NewStore connects to the postgres database at databaseURL and ensures the
// schema exists.
func NewStore(ctx context.Context, databaseURL string) (*sqldb.Store, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to reach postgres database: %w", err)
	}

	store, err := sqldb.New(ctx, db, sqldb.Dialect{
		Name:                 "postgres",
		Schema:               schema,
		NumberedPlaceholders: true,
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}
