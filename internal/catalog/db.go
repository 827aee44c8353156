// Package catalog stores the merged game library in SQLite.
package catalog

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/XSAM/otelsql"
	"go.opentelemetry.io/otel/attribute"
	_ "modernc.org/sqlite"
)

// DB wraps a SQLite database connection holding the game catalog.
type DB struct {
	conn *sql.DB
	path string
}

// Open opens or creates a SQLite catalog at the given path.
func Open(ctx context.Context, path string) (*DB, error) {
	conn, err := otelsql.Open("sqlite", dsn(path),
		otelsql.WithAttributes(attribute.String("db.system", "sqlite")),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := conn.PingContext(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db := &DB{conn: conn, path: path}
	if err := db.migrate(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return db, nil
}

// dsn enables foreign keys on every pooled connection, makes writers wait
// for each other instead of failing, and takes the write lock at BEGIN so
// two sync transactions never deadlock on lock upgrade.
func dsn(path string) string {
	return path + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(10000)&_txlock=immediate"
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Conn returns the underlying database connection.
func (db *DB) Conn() *sql.DB {
	return db.conn
}

// migrate runs database migrations up to the current schema version.
func (db *DB) migrate(ctx context.Context) error {
	if _, err := db.conn.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER PRIMARY KEY
		)
	`); err != nil {
		return fmt.Errorf("failed to create schema_version table: %w", err)
	}

	var version int
	err := db.conn.QueryRowContext(ctx, "SELECT COALESCE(MAX(version), 0) FROM schema_version").Scan(&version)
	if err != nil {
		return fmt.Errorf("failed to get schema version: %w", err)
	}

	migrations := []func(context.Context) error{
		db.migrateV1,
		db.migrateV2,
	}
	for i, m := range migrations {
		if version < i+1 {
			if err := m(ctx); err != nil {
				return err
			}
		}
	}

	return nil
}

// migrateV1 creates the games, genres and link tables.
func (db *DB) migrateV1(ctx context.Context) error {
	schema := `
		CREATE TABLE IF NOT EXISTS games (
			id INTEGER PRIMARY KEY,
			name TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			play_time_secs INTEGER NOT NULL DEFAULT 0,
			install_status INTEGER NOT NULL DEFAULT 2,
			release_date DATETIME,
			last_played DATETIME,
			icon_url TEXT,
			header_url TEXT,
			cover_url TEXT,
			library_type TEXT NOT NULL,
			library_id TEXT NOT NULL,
			UNIQUE(library_type, library_id)
		);

		CREATE INDEX IF NOT EXISTS idx_games_name ON games(name);

		CREATE TABLE IF NOT EXISTS genres (
			id INTEGER PRIMARY KEY,
			name TEXT NOT NULL,
			metadata_source TEXT NOT NULL,
			metadata_id TEXT NOT NULL,
			UNIQUE(metadata_source, metadata_id)
		);

		CREATE TABLE IF NOT EXISTS game_genres (
			game_id INTEGER NOT NULL,
			genre_id INTEGER NOT NULL,
			PRIMARY KEY (game_id, genre_id),
			FOREIGN KEY(game_id) REFERENCES games(id) ON DELETE CASCADE,
			FOREIGN KEY(genre_id) REFERENCES genres(id) ON DELETE CASCADE
		);

		CREATE INDEX IF NOT EXISTS idx_game_genres_genre_id ON game_genres(genre_id);

		INSERT INTO schema_version (version) VALUES (1);
	`

	if _, err := db.conn.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to execute v1 migration: %w", err)
	}

	return nil
}

// migrateV2 adds completion tracking and sync bookkeeping.
func (db *DB) migrateV2(ctx context.Context) error {
	schema := `
		ALTER TABLE games ADD COLUMN completion_status INTEGER NOT NULL DEFAULT 0;
		ALTER TABLE games ADD COLUMN added_at DATETIME;

		INSERT INTO schema_version (version) VALUES (2);
	`

	if _, err := db.conn.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to execute v2 migration: %w", err)
	}

	return nil
}
