package catalog

import (
	"context"
	"database/sql"
	"strconv"
	"strings"
	"time"

	"github.com/ryanm101/gami/sdk"
)

// CompletionStatus tracks the user's progress through a game.
type CompletionStatus uint8

const (
	Backlog CompletionStatus = iota
	Playing
	Played
	OnHold
)

// Game is a catalog row.
type Game struct {
	ID               int64
	Name             string
	Description      string
	PlayTimeSecs     int64
	InstallStatus    sdk.InstallStatus
	ReleaseDate      *time.Time
	LastPlayed       *time.Time
	IconURL          *string
	HeaderURL        *string
	CoverURL         *string
	LibraryType      string
	LibraryID        string
	CompletionStatus CompletionStatus
}

// Ref returns the addon-facing reference for the game.
func (g *Game) Ref() sdk.GameRef {
	return sdk.GameRef{Name: g.Name, LibraryType: g.LibraryType, LibraryID: g.LibraryID}
}

// Key returns the game's natural key.
func (g *Game) Key() sdk.GameKey {
	return sdk.GameKey{LibraryType: g.LibraryType, LibraryID: g.LibraryID}
}

// Genre is a catalog genre row. MetadataSource is the addon id that reported
// it and MetadataID the addon's identifier for it.
type Genre struct {
	ID             int64
	Name           string
	MetadataSource string
	MetadataID     string
}

// Filter narrows ListGames.
type Filter struct {
	Search      string // substring match on name
	LibraryType string
}

const gameColumns = `id, name, description, play_time_secs, install_status, release_date,
	last_played, icon_url, header_url, cover_url, library_type, library_id, completion_status`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanGame(row rowScanner) (*Game, error) {
	var g Game
	var releaseDate, lastPlayed sql.NullTime
	var iconURL, headerURL, coverURL sql.NullString
	err := row.Scan(&g.ID, &g.Name, &g.Description, &g.PlayTimeSecs, &g.InstallStatus, &releaseDate,
		&lastPlayed, &iconURL, &headerURL, &coverURL, &g.LibraryType, &g.LibraryID, &g.CompletionStatus)
	if err != nil {
		return nil, err
	}
	g.ReleaseDate = nullTime(releaseDate)
	g.LastPlayed = nullTime(lastPlayed)
	g.IconURL = nullString(iconURL)
	g.HeaderURL = nullString(headerURL)
	g.CoverURL = nullString(coverURL)
	return &g, nil
}

// ListGames returns catalog games ordered by name.
func (db *DB) ListGames(ctx context.Context, f Filter) ([]*Game, error) {
	query := "SELECT " + gameColumns + " FROM games WHERE 1=1"
	var args []any
	if f.Search != "" {
		query += " AND name LIKE ? ESCAPE '\\'"
		args = append(args, "%"+escapeLike(f.Search)+"%")
	}
	if f.LibraryType != "" {
		query += " AND library_type = ?"
		args = append(args, f.LibraryType)
	}
	query += " ORDER BY name COLLATE NOCASE, id"

	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, WrapDBError(err, "list games", "")
	}
	defer func() { _ = rows.Close() }()

	var games []*Game
	for rows.Next() {
		g, err := scanGame(rows)
		if err != nil {
			return nil, WrapDBError(err, "list games", "")
		}
		games = append(games, g)
	}
	return games, WrapDBError(rows.Err(), "list games", "")
}

// GetGame returns one game by id.
func (db *DB) GetGame(ctx context.Context, id int64) (*Game, error) {
	row := db.conn.QueryRowContext(ctx, "SELECT "+gameColumns+" FROM games WHERE id = ?", id)
	g, err := scanGame(row)
	if err != nil {
		return nil, WrapDBError(err, "get game", strconv.FormatInt(id, 10))
	}
	return g, nil
}

// GameGenres returns the genres linked to a game.
func (db *DB) GameGenres(ctx context.Context, gameID int64) ([]Genre, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT g.id, g.name, g.metadata_source, g.metadata_id
		FROM genres g
		JOIN game_genres gg ON gg.genre_id = g.id
		WHERE gg.game_id = ?
		ORDER BY g.name
	`, gameID)
	if err != nil {
		return nil, WrapDBError(err, "list game genres", "")
	}
	defer func() { _ = rows.Close() }()

	var genres []Genre
	for rows.Next() {
		var g Genre
		if err := rows.Scan(&g.ID, &g.Name, &g.MetadataSource, &g.MetadataID); err != nil {
			return nil, WrapDBError(err, "list game genres", "")
		}
		genres = append(genres, g)
	}
	return genres, WrapDBError(rows.Err(), "list game genres", "")
}

// DeleteGame removes a game and its genre links.
func (db *DB) DeleteGame(ctx context.Context, id int64) error {
	res, err := db.conn.ExecContext(ctx, "DELETE FROM games WHERE id = ?", id)
	if err != nil {
		return WrapDBError(err, "delete game", strconv.FormatInt(id, 10))
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &StoreError{Op: "delete game", Key: strconv.FormatInt(id, 10), Err: ErrNotFound}
	}
	return nil
}

// Counts returns the number of game and genre rows.
func (db *DB) Counts(ctx context.Context) (games, genres int, err error) {
	if err = db.conn.QueryRowContext(ctx, "SELECT COUNT(*) FROM games").Scan(&games); err != nil {
		return 0, 0, WrapDBError(err, "count games", "")
	}
	if err = db.conn.QueryRowContext(ctx, "SELECT COUNT(*) FROM genres").Scan(&genres); err != nil {
		return 0, 0, WrapDBError(err, "count genres", "")
	}
	return games, genres, nil
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

func nullTime(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}

func nullString(s sql.NullString) *string {
	if !s.Valid {
		return nil
	}
	v := s.String
	return &v
}
