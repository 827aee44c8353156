package syncer

import (
	"math"

	"github.com/ryanm101/gami/internal/catalog"
	"github.com/ryanm101/gami/sdk"
)

// dedupeScanned drops repeated natural keys, keeping the first occurrence.
func dedupeScanned(games []sdk.ScannedGame) []sdk.ScannedGame {
	seen := make(map[sdk.GameKey]bool, len(games))
	out := games[:0:0]
	for _, g := range games {
		key := g.Ref().Key()
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, g)
	}
	return out
}

// idsByType groups library ids by library type.
func idsByType(games []sdk.ScannedGame) map[string][]string {
	groups := make(map[string][]string)
	for _, g := range games {
		groups[g.LibraryType] = append(groups[g.LibraryType], g.LibraryID)
	}
	return groups
}

// collectGenres returns every genre referenced by the fetched metadata,
// deduplicated by remote id. The first name seen for an id wins.
func collectGenres(games []sdk.ScannedGame, metadata map[sdk.GameKey]sdk.GameMetadata) []sdk.GenreRef {
	seen := make(map[string]bool)
	var genres []sdk.GenreRef
	// Walk in scan order so the result does not depend on map iteration.
	for _, g := range games {
		md, ok := metadata[g.Ref().Key()]
		if !ok {
			continue
		}
		for _, genre := range md.Genres {
			if genre.LibraryID == "" || seen[genre.LibraryID] {
				continue
			}
			seen[genre.LibraryID] = true
			genres = append(genres, genre)
		}
	}
	return genres
}

func genreIDs(genres []sdk.GenreRef) []string {
	ids := make([]string, len(genres))
	for i, g := range genres {
		ids[i] = g.LibraryID
	}
	return ids
}

// newGameRow builds the catalog row for a scanned game.
func newGameRow(g sdk.ScannedGame) *catalog.Game {
	return &catalog.Game{
		Name:          g.Name,
		PlayTimeSecs:  int64(min(g.PlaytimeSecs, math.MaxInt64)),
		InstallStatus: g.InstallStatus,
		LastPlayed:    g.LastPlayed,
		IconURL:       g.IconURL,
		LibraryType:   g.LibraryType,
		LibraryID:     g.LibraryID,
	}
}

// applyMetadata copies every present metadata field onto row. Absent fields
// leave the row untouched.
func applyMetadata(row *catalog.Game, md sdk.GameMetadata) {
	if md.Description != nil && *md.Description != "" {
		row.Description = *md.Description
	}
	if md.ReleaseDate != nil {
		row.ReleaseDate = md.ReleaseDate
	}
	if present(md.IconURL) {
		row.IconURL = md.IconURL
	}
	if present(md.HeaderURL) {
		row.HeaderURL = md.HeaderURL
	}
	if present(md.CoverURL) {
		row.CoverURL = md.CoverURL
	}
}

func present(s *string) bool {
	return s != nil && *s != ""
}
