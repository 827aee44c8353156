package sdk

import "strings"

// NormalizeID canonicalizes an identifier received from an addon. The host
// applies it once, where values cross into the host, and compares raw
// strings everywhere after that.
func NormalizeID(id string) string {
	return strings.TrimSpace(id)
}

// NormalizeScanned returns a copy of g with its identifiers normalized.
func NormalizeScanned(g ScannedGame) ScannedGame {
	g.Name = strings.TrimSpace(g.Name)
	g.LibraryType = NormalizeID(g.LibraryType)
	g.LibraryID = NormalizeID(g.LibraryID)
	return g
}

// NormalizeMetadata normalizes genre identifiers in place and drops genres
// whose id is empty after normalization.
func NormalizeMetadata(m *GameMetadata) {
	if m == nil {
		return
	}
	genres := m.Genres[:0]
	for _, g := range m.Genres {
		g.LibraryID = NormalizeID(g.LibraryID)
		g.Name = strings.TrimSpace(g.Name)
		if g.LibraryID == "" {
			continue
		}
		genres = append(genres, g)
	}
	m.Genres = genres
}
