// Package sqldb implements the data store on database/sql. The sqlite and
// postgres packages supply the driver and schema.
package sqldb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/VascoOnEarth/PhotoShare/core"
	"github.com/oklog/ulid/v2"
	"github.com/sirupsen/logrus"
)

type Dialect struct {
	Name string

	// Schema statements run in order when the store is opened. They must be
	// idempotent.
	Schema []string

	// NumberedPlaceholders rewrites ? to $1, $2, ... before execution.
	NumberedPlaceholders bool
}

type Store struct {
	db      *sql.DB
	dialect Dialect
}

// New applies the dialect schema to db and returns a store backed by it.
func New(ctx context.Context, db *sql.DB, dialect Dialect) (*Store, error) {
	for _, stmt := range dialect.Schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return nil, fmt.Errorf("failed to apply %s schema: %w", dialect.Name, err)
		}
	}
	return &Store{db: db, dialect: dialect}, nil
}

func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) q(query string) string {
	if !s.dialect.NumberedPlaceholders {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func millis(t time.Time) int64 { return t.UnixMilli() }

const imageColumns = "id, storage_id, author_id, description, created_at"

type scanner interface {
	Scan(dest ...any) error
}

func scanImage(row scanner) (*core.Image, error) {
	var (
		img  core.Image
		desc sql.NullString
	)
	if err := row.Scan(&img.ID, &img.StorageID, &img.AuthorID, &desc, &img.CreatedAt); err != nil {
		return nil, err
	}
	if desc.Valid {
		img.Description = &desc.String
	}
	return &img, nil
}

// ImageStore implementation
func (s *Store) GetImage(ctx context.Context, id string) (*core.Image, error) {
	log := logrus.WithField("image_id", id)
	row := s.db.QueryRowContext(ctx, s.q("SELECT "+imageColumns+" FROM images WHERE id = ?"), id)
	img, err := scanImage(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			log.Warn("Image with specified ID not found")
			return nil, fmt.Errorf("image with id %s: %w", id, core.ErrNotFound)
		}
		log.WithError(err).Error("Failed to retrieve image")
		return nil, err
	}
	return img, nil
}

func (s *Store) ListImages(ctx context.Context) ([]*core.Image, error) {
	return s.queryImages(ctx, "SELECT "+imageColumns+" FROM images ORDER BY seq DESC")
}

func (s *Store) ListImagesByAuthor(ctx context.Context, authorID string) ([]*core.Image, error) {
	return s.queryImages(ctx, "SELECT "+imageColumns+" FROM images WHERE author_id = ? ORDER BY seq DESC", authorID)
}

func (s *Store) queryImages(ctx context.Context, query string, args ...any) ([]*core.Image, error) {
	rows, err := s.db.QueryContext(ctx, s.q(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	images := []*core.Image{}
	for rows.Next() {
		img, err := scanImage(rows)
		if err != nil {
			return nil, err
		}
		images = append(images, img)
	}
	return images, rows.Err()
}

func (s *Store) DeleteImage(ctx context.Context, id string) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, s.q("DELETE FROM likes WHERE image_id = ?"), id)
	if err != nil {
		return 0, err
	}
	removed, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}

	res, err = tx.ExecContext(ctx, s.q("DELETE FROM images WHERE id = ?"), id)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	if n == 0 {
		return 0, fmt.Errorf("image with id %s: %w", id, core.ErrNotFound)
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	logrus.WithFields(logrus.Fields{
		"image_id":      id,
		"likes_removed": removed,
	}).Info("Image deleted successfully")
	return int(removed), nil
}

// LikeStore implementation
func (s *Store) CountLikes(ctx context.Context, imageID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, s.q("SELECT COUNT(*) FROM likes WHERE image_id = ?"), imageID).Scan(&n)
	return n, err
}

func (s *Store) HasLike(ctx context.Context, userID, imageID string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, s.q("SELECT 1 FROM likes WHERE user_id = ? AND image_id = ?"), userID, imageID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *Store) ToggleLike(ctx context.Context, userID, imageID string) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, s.q("DELETE FROM likes WHERE user_id = ? AND image_id = ?"), userID, imageID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	liked := n == 0

	if liked {
		_, err = tx.ExecContext(ctx,
			s.q("INSERT INTO likes (id, image_id, user_id, created_at) VALUES (?, ?, ?, ?) ON CONFLICT (user_id, image_id) DO NOTHING"),
			ulid.Make().String(), imageID, userID, millis(time.Now()))
		if err != nil {
			return false, err
		}
	}
	return liked, tx.Commit()
}

// UploadStore implementation
func (s *Store) CreatePendingUpload(ctx context.Context, upload *core.PendingUpload) error {
	_, err := s.db.ExecContext(ctx,
		s.q("INSERT INTO pending_uploads (storage_id, user_id, created_at, expires_at) VALUES (?, ?, ?, ?)"),
		upload.StorageID, upload.UserID, millis(upload.CreatedAt), millis(upload.ExpiresAt))
	return err
}

func (s *Store) GetPendingUpload(ctx context.Context, storageID string) (*core.PendingUpload, error) {
	var (
		upload             core.PendingUpload
		created, expiresAt int64
	)
	err := s.db.QueryRowContext(ctx,
		s.q("SELECT storage_id, user_id, created_at, expires_at FROM pending_uploads WHERE storage_id = ?"),
		storageID).Scan(&upload.StorageID, &upload.UserID, &created, &expiresAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("pending upload %s: %w", storageID, core.ErrNotFound)
		}
		return nil, err
	}
	upload.CreatedAt = time.UnixMilli(created)
	upload.ExpiresAt = time.UnixMilli(expiresAt)
	return &upload, nil
}

func (s *Store) PromoteUpload(ctx context.Context, image *core.Image) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		s.q("DELETE FROM pending_uploads WHERE storage_id = ? AND user_id = ?"),
		image.StorageID, image.AuthorID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("pending upload %s: %w", image.StorageID, core.ErrNotFound)
	}

	var desc sql.NullString
	if image.Description != nil {
		desc = sql.NullString{String: *image.Description, Valid: true}
	}
	_, err = tx.ExecContext(ctx,
		s.q("INSERT INTO images (id, storage_id, author_id, description, created_at) VALUES (?, ?, ?, ?, ?)"),
		image.ID, image.StorageID, image.AuthorID, desc, image.CreatedAt)
	if err != nil {
		return err
	}
	return tx.Commit()
}

func (s *Store) ListExpiredUploads(ctx context.Context, before time.Time, limit int) ([]*core.PendingUpload, error) {
	query := "SELECT storage_id, user_id, created_at, expires_at FROM pending_uploads WHERE expires_at < ? ORDER BY expires_at"
	args := []any{millis(before)}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, s.q(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var expired []*core.PendingUpload
	for rows.Next() {
		var (
			upload             core.PendingUpload
			created, expiresAt int64
		)
		if err := rows.Scan(&upload.StorageID, &upload.UserID, &created, &expiresAt); err != nil {
			return nil, err
		}
		upload.CreatedAt = time.UnixMilli(created)
		upload.ExpiresAt = time.UnixMilli(expiresAt)
		expired = append(expired, &upload)
	}
	return expired, rows.Err()
}

func (s *Store) DiscardUpload(ctx context.Context, storageID string) error {
	res, err := s.db.ExecContext(ctx, s.q("DELETE FROM pending_uploads WHERE storage_id = ?"), storageID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("pending upload %s: %w", storageID, core.ErrNotFound)
	}
	return nil
}

// CleanupQueue implementation
func (s *Store) EnqueueBlobDeletion(ctx context.Context, storageID, reason string) error {
	now := millis(time.Now())
	_, err := s.db.ExecContext(ctx, s.q(`INSERT INTO blob_deletions (storage_id, attempts, last_error, created_at, updated_at)
		VALUES (?, 0, ?, ?, ?)
		ON CONFLICT (storage_id) DO UPDATE SET last_error = excluded.last_error, updated_at = excluded.updated_at`),
		storageID, reason, now, now)
	return err
}

func (s *Store) ListBlobDeletions(ctx context.Context, maxAttempts, limit int) ([]*core.BlobDeletion, error) {
	query := "SELECT storage_id, attempts, last_error, created_at, updated_at FROM blob_deletions"
	var args []any
	if maxAttempts > 0 {
		query += " WHERE attempts < ?"
		args = append(args, maxAttempts)
	}
	query += " ORDER BY created_at"
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, s.q(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var queued []*core.BlobDeletion
	for rows.Next() {
		var (
			d                core.BlobDeletion
			created, updated int64
		)
		if err := rows.Scan(&d.StorageID, &d.Attempts, &d.LastError, &created, &updated); err != nil {
			return nil, err
		}
		d.CreatedAt = time.UnixMilli(created)
		d.UpdatedAt = time.UnixMilli(updated)
		queued = append(queued, &d)
	}
	return queued, rows.Err()
}

func (s *Store) CompleteBlobDeletion(ctx context.Context, storageID string) error {
	_, err := s.db.ExecContext(ctx, s.q("DELETE FROM blob_deletions WHERE storage_id = ?"), storageID)
	return err
}

func (s *Store) FailBlobDeletion(ctx context.Context, storageID, reason string) error {
	res, err := s.db.ExecContext(ctx,
		s.q("UPDATE blob_deletions SET attempts = attempts + 1, last_error = ?, updated_at = ? WHERE storage_id = ?"),
		reason, millis(time.Now()), storageID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("blob deletion %s: %w", storageID, core.ErrNotFound)
	}
	return nil
}

// UserStore implementation
func (s *Store) UpsertUser(ctx context.Context, user *core.User) error {
	now := millis(time.Now())
	_, err := s.db.ExecContext(ctx, s.q(`INSERT INTO users (subject, login, email, avatar_url, name, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (subject) DO UPDATE SET login = excluded.login, email = excluded.email,
			avatar_url = excluded.avatar_url, name = excluded.name, updated_at = excluded.updated_at`),
		user.Subject, user.Login, user.Email, user.AvatarURL, user.Name, now, now)
	return err
}

func (s *Store) GetUser(ctx context.Context, subject string) (*core.User, error) {
	var (
		user             core.User
		created, updated int64
	)
	err := s.db.QueryRowContext(ctx,
		s.q("SELECT subject, login, email, avatar_url, name, created_at, updated_at FROM users WHERE subject = ?"),
		subject).Scan(&user.Subject, &user.Login, &user.Email, &user.AvatarURL, &user.Name, &created, &updated)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("user %s: %w", subject, core.ErrNotFound)
		}
		return nil, err
	}
	user.CreatedAt = time.UnixMilli(created)
	user.UpdatedAt = time.UnixMilli(updated)
	return &user, nil
}
