// Package store persists saved ("inspiring") artifacts in SQLite.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"

	"github.com/Sternrassler/exhibit-client/pkg/client"
	"github.com/Sternrassler/exhibit-client/pkg/logging"
)

// MemoryPath opens a private in-memory database.
const MemoryPath = ":memory:"

const schema = `
CREATE TABLE IF NOT EXISTS saved_artifacts (
	object_id  INTEGER PRIMARY KEY,
	title      TEXT NOT NULL,
	image_url  TEXT,
	object_url TEXT NOT NULL,
	saved_at   TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_saved_artifacts_title ON saved_artifacts(title);
`

// Store is a SQLite-backed set of saved artifacts.
type Store struct {
	db     *sql.DB
	logger zerolog.Logger
}

// Open opens (and creates if needed) the database at path. MemoryPath gives
// a throwaway database.
func Open(path string) (*Store, error) {
	if path != MemoryPath {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create store directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// Every connection to :memory: is a separate database
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}

	return &Store{
		db:     db,
		logger: logging.NewLogger(logging.ComponentSavedStore),
	}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Save stores item, refreshing the fields of an already saved artifact with
// the same id. It reports false only when an identical record was present.
func (s *Store) Save(ctx context.Context, item client.Artifact) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO saved_artifacts (object_id, title, image_url, object_url, saved_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(object_id) DO UPDATE SET
			title = excluded.title,
			image_url = excluded.image_url,
			object_url = excluded.object_url
		 WHERE title IS NOT excluded.title
			OR image_url IS NOT excluded.image_url
			OR object_url IS NOT excluded.object_url`,
		item.ObjectID, item.Title, nullString(item.ImageURL), item.ObjectURL,
		time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return false, fmt.Errorf("save artifact %d: %w", item.ObjectID, err)
	}

	saved, err := affected(res)
	if err != nil {
		return false, err
	}

	s.logger.Debug().
		Int("object_id", item.ObjectID).
		Bool("saved", saved).
		Msg("Save artifact")

	return saved, nil
}

// Remove deletes item. It reports false if it was not saved.
func (s *Store) Remove(ctx context.Context, item client.Artifact) (bool, error) {
	return s.RemoveID(ctx, item.ObjectID)
}

// RemoveID deletes the artifact with the given object id.
func (s *Store) RemoveID(ctx context.Context, objectID int) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM saved_artifacts WHERE object_id = ?`, objectID)
	if err != nil {
		return false, fmt.Errorf("remove artifact %d: %w", objectID, err)
	}

	removed, err := affected(res)
	if err != nil {
		return false, err
	}

	s.logger.Debug().
		Int("object_id", objectID).
		Bool("removed", removed).
		Msg("Remove artifact")

	return removed, nil
}

// Contains reports whether an artifact equal to item in every field is saved.
func (s *Store) Contains(ctx context.Context, item client.Artifact) (bool, error) {
	saved, err := s.get(ctx, item.ObjectID)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return saved.Equal(item), nil
}

// List returns every saved artifact ordered by title.
func (s *Store) List(ctx context.Context) ([]client.Artifact, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT object_id, title, image_url, object_url
		 FROM saved_artifacts
		 ORDER BY title ASC, object_id ASC`)
	if err != nil {
		return nil, fmt.Errorf("list artifacts: %w", err)
	}
	defer rows.Close()

	items := []client.Artifact{}
	for rows.Next() {
		item, err := scanArtifact(rows)
		if err != nil {
			return nil, fmt.Errorf("scan artifact: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate artifacts: %w", err)
	}

	return items, nil
}

func (s *Store) get(ctx context.Context, objectID int) (client.Artifact, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT object_id, title, image_url, object_url
		 FROM saved_artifacts WHERE object_id = ?`, objectID)

	item, err := scanArtifact(row)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return client.Artifact{}, fmt.Errorf("get artifact %d: %w", objectID, err)
	}
	return item, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanArtifact(row scanner) (client.Artifact, error) {
	var (
		item     client.Artifact
		imageURL sql.NullString
	)
	if err := row.Scan(&item.ObjectID, &item.Title, &imageURL, &item.ObjectURL); err != nil {
		return client.Artifact{}, err
	}
	if imageURL.Valid {
		item.ImageURL = &imageURL.String
	}
	return item, nil
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func affected(res sql.Result) (bool, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n > 0, nil
}
