package catalog

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/ryanm101/gami/sdk"
)

// maxQueryParams keeps IN lists well under SQLite's bound-parameter limit.
const maxQueryParams = 500

// FindExistingIDs returns which of ids already exist as games of the addon.
func (db *DB) FindExistingIDs(ctx context.Context, addonID string, ids []string) (map[string]bool, error) {
	existing := make(map[string]bool)
	err := inChunks(ids, func(chunk []string) error {
		query := "SELECT library_id FROM games WHERE library_type = ? AND library_id IN (" + placeholders(len(chunk)) + ")"
		rows, err := db.conn.QueryContext(ctx, query, withPrefix(addonID, chunk)...)
		if err != nil {
			return err
		}
		defer func() { _ = rows.Close() }()

		for rows.Next() {
			var id string
			if err := rows.Scan(&id); err != nil {
				return err
			}
			existing[id] = true
		}
		return rows.Err()
	})
	if err != nil {
		return nil, WrapDBError(err, "find existing games", addonID)
	}
	return existing, nil
}

// FindExistingGenres maps each already-stored remote genre id of the addon
// to its genre row id.
func (db *DB) FindExistingGenres(ctx context.Context, addonID string, ids []string) (map[string]int64, error) {
	existing := make(map[string]int64)
	err := inChunks(ids, func(chunk []string) error {
		query := "SELECT metadata_id, id FROM genres WHERE metadata_source = ? AND metadata_id IN (" + placeholders(len(chunk)) + ")"
		rows, err := db.conn.QueryContext(ctx, query, withPrefix(addonID, chunk)...)
		if err != nil {
			return err
		}
		defer func() { _ = rows.Close() }()

		for rows.Next() {
			var remoteID string
			var id int64
			if err := rows.Scan(&remoteID, &id); err != nil {
				return err
			}
			existing[remoteID] = id
		}
		return rows.Err()
	})
	if err != nil {
		return nil, WrapDBError(err, "find existing genres", addonID)
	}
	return existing, nil
}

// Tx is a catalog write transaction.
type Tx struct {
	tx *sql.Tx
}

// Begin opens a write transaction.
func (db *DB) Begin(ctx context.Context) (*Tx, error) {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, WrapDBError(err, "begin transaction", "")
	}
	return &Tx{tx: tx}, nil
}

// InsertGenre inserts a genre reported by source and returns its row id.
func (t *Tx) InsertGenre(ctx context.Context, source string, genre sdk.GenreRef) (int64, error) {
	res, err := t.tx.ExecContext(ctx,
		"INSERT INTO genres (name, metadata_source, metadata_id) VALUES (?, ?, ?)",
		genre.Name, source, genre.LibraryID)
	if err != nil {
		return 0, WrapDBError(err, "insert genre", source+":"+genre.LibraryID)
	}
	return res.LastInsertId()
}

// InsertGame inserts g and returns its row id. g.ID is ignored.
func (t *Tx) InsertGame(ctx context.Context, g *Game) (int64, error) {
	res, err := t.tx.ExecContext(ctx, `
		INSERT INTO games (name, description, play_time_secs, install_status, release_date, last_played,
			icon_url, header_url, cover_url, library_type, library_id, completion_status, added_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, g.Name, g.Description, g.PlayTimeSecs, g.InstallStatus, utc(g.ReleaseDate), utc(g.LastPlayed),
		g.IconURL, g.HeaderURL, g.CoverURL, g.LibraryType, g.LibraryID, g.CompletionStatus, time.Now().UTC())
	if err != nil {
		return 0, WrapDBError(err, "insert game", g.Key().String())
	}
	return res.LastInsertId()
}

// LinkGameGenre links a game to a genre.
func (t *Tx) LinkGameGenre(ctx context.Context, gameID, genreID int64) error {
	_, err := t.tx.ExecContext(ctx, "INSERT INTO game_genres (game_id, genre_id) VALUES (?, ?)", gameID, genreID)
	if err != nil {
		return WrapDBError(err, "link game genre", fmt.Sprintf("%d:%d", gameID, genreID))
	}
	return nil
}

// Commit commits the transaction.
func (t *Tx) Commit() error {
	return WrapDBError(t.tx.Commit(), "commit", "")
}

// Rollback aborts the transaction. Rolling back a finished transaction is a
// no-op.
func (t *Tx) Rollback() error {
	if err := t.tx.Rollback(); err != nil && err != sql.ErrTxDone {
		return WrapDBError(err, "rollback", "")
	}
	return nil
}

func inChunks(ids []string, fn func([]string) error) error {
	for start := 0; start < len(ids); start += maxQueryParams {
		end := min(start+maxQueryParams, len(ids))
		if err := fn(ids[start:end]); err != nil {
			return err
		}
	}
	return nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func withPrefix(first string, rest []string) []any {
	args := make([]any, 0, len(rest)+1)
	args = append(args, first)
	for _, r := range rest {
		args = append(args, r)
	}
	return args
}

func utc(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC()
}
