package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/VascoOnEarth/PhotoShare/stores/sqldb"
	_ "modernc.org/sqlite"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS images (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		storage_id TEXT NOT NULL UNIQUE,
		author_id TEXT NOT NULL,
		description TEXT,
		created_at INTEGER NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS images_by_author ON images(author_id)`,
	`CREATE TABLE IF NOT EXISTS likes (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		image_id TEXT NOT NULL,
		user_id TEXT NOT NULL,
		created_at INTEGER NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS likes_by_image ON likes(image_id)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS likes_by_user_and_image ON likes(user_id, image_id)`,
	`CREATE TABLE IF NOT EXISTS pending_uploads (
		storage_id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		expires_at INTEGER NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS pending_uploads_by_expiry ON pending_uploads(expires_at)`,
	`CREATE TABLE IF NOT EXISTS blob_deletions (
		storage_id TEXT PRIMARY KEY,
		attempts INTEGER NOT NULL DEFAULT 0,
		last_error TEXT NOT NULL DEFAULT '',
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS users (
		subject TEXT PRIMARY KEY,
		login TEXT NOT NULL,
		email TEXT NOT NULL DEFAULT '',
		avatar_url TEXT NOT NULL DEFAULT '',
		name TEXT NOT NULL DEFAULT '',
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	)`,
}

// NewStore opens (creating if needed) the sqlite database at dataSourceName.
func NewStore(ctx context.Context, dataSourceName string) (*sqldb.Store, error) {
	db, err := sql.Open("sqlite", dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	// sqlite allows a single writer; serializing connections avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	store, err := sqldb.New(ctx, db, sqldb.Dialect{Name: "sqlite", Schema: schema})
	if err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}
