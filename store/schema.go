package store

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/*.sql
var migrations embed.FS

// ensureSchema creates the SQLite tables. The images table has no unique
// index on (section, url): duplicate rows are tolerated and cleaned up by
// the image repository.
func (s *DB) ensureSchema() error {
	_, err := s.db.Exec(`
CREATE TABLE IF NOT EXISTS section_layouts (
    section TEXT PRIMARY KEY,
    layout_type TEXT NOT NULL DEFAULT 'default',
    published_layout_type TEXT NOT NULL DEFAULT 'default',
    has_unpublished_changes INTEGER NOT NULL DEFAULT 0,
    updated_at DATETIME NOT NULL,
    published_at DATETIME
);

CREATE TABLE IF NOT EXISTS section_content (
    section TEXT NOT NULL,
    content_key TEXT NOT NULL,
    staging_value TEXT,
    published_value TEXT,
    has_unpublished_changes INTEGER NOT NULL DEFAULT 0,
    updated_at DATETIME NOT NULL,
    published_at DATETIME,
    PRIMARY KEY (section, content_key)
);

CREATE TABLE IF NOT EXISTS images (
    id TEXT PRIMARY KEY,
    section TEXT NOT NULL,
    url TEXT NOT NULL,
    alt_text TEXT NOT NULL DEFAULT '',
    order_index INTEGER NOT NULL DEFAULT 0,
    is_active INTEGER NOT NULL DEFAULT 0,
    published_is_active INTEGER NOT NULL DEFAULT 0,
    has_unpublished_changes INTEGER NOT NULL DEFAULT 0,
    created_at DATETIME NOT NULL,
    updated_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_images_section ON images(section);
CREATE INDEX IF NOT EXISTS idx_images_url ON images(url);
CREATE INDEX IF NOT EXISTS idx_layouts_pending ON section_layouts(has_unpublished_changes);
CREATE INDEX IF NOT EXISTS idx_content_pending ON section_content(has_unpublished_changes);
CREATE INDEX IF NOT EXISTS idx_images_pending ON images(has_unpublished_changes);
`)
	return err
}

// Migrate applies the embedded Postgres migrations to the database at dsn
// (a postgres:// URL). It reports whether anything changed.
func Migrate(ctx context.Context, dsn string) (bool, error) {
	src, err := iofs.New(migrations, "migrations")
	if err != nil {
		return false, fmt.Errorf("store: load migrations: %w", err)
	}
	m, err := migrate.NewWithSourceInstance("iofs", src, pgxURL(dsn))
	if err != nil {
		return false, fmt.Errorf("store: init migrate: %w", err)
	}
	defer m.Close()

	done := make(chan error, 1)
	go func() { done <- m.Up() }()
	select {
	case <-ctx.Done():
		m.GracefulStop <- true
		<-done
		return false, ctx.Err()
	case err := <-done:
		if errors.Is(err, migrate.ErrNoChange) {
			return false, nil
		}
		if err != nil {
			return false, fmt.Errorf("store: migrate up: %w", err)
		}
		return true, nil
	}
}

// pgxURL rewrites a postgres:// URL to the scheme the migrate pgx/v5
// driver registers.
func pgxURL(dsn string) string {
	for _, prefix := range []string{"postgres://", "postgresql://"} {
		if strings.HasPrefix(dsn, prefix) {
			return "pgx5://" + strings.TrimPrefix(dsn, prefix)
		}
	}
	return dsn
}
