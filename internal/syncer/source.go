package syncer

import (
	"context"

	"github.com/ryanm101/gami/internal/addons"
	"github.com/ryanm101/gami/internal/catalog"
	"github.com/ryanm101/gami/internal/fetch"
	"github.com/ryanm101/gami/sdk"
)

// Library is a game library obtained from an addon. Release must be called
// when done with it.
type Library interface {
	Scan(ctx context.Context) ([]sdk.ScannedGame, error)
	Launch(ctx context.Context, game sdk.GameRef) error
	Install(ctx context.Context, game sdk.GameRef) error
	Uninstall(ctx context.Context, game sdk.GameRef) error
	CheckInstallStatus(ctx context.Context, game sdk.GameRef) (sdk.InstallStatus, error)
	Release()
}

// MetadataSource fetches metadata for batches of games. Release must be
// called when done with it.
type MetadataSource interface {
	GetMetadatas(ctx context.Context, games []sdk.GameRef, progress fetch.ProgressFunc) map[sdk.GameKey]sdk.GameMetadata
	Release()
}

// AddonSource resolves addon capabilities by name.
type AddonSource interface {
	Keys() []string
	Library(name string) (Library, bool)
	Metadata(name string) (MetadataSource, bool)
}

// CatalogStore is the catalog access a sync pass needs.
type CatalogStore interface {
	FindExistingIDs(ctx context.Context, libraryType string, ids []string) (map[string]bool, error)
	FindExistingGenres(ctx context.Context, source string, ids []string) (map[string]int64, error)
	Begin(ctx context.Context) (CatalogTx, error)
}

// CatalogTx is one catalog write transaction.
type CatalogTx interface {
	InsertGenre(ctx context.Context, source string, genre sdk.GenreRef) (int64, error)
	InsertGame(ctx context.Context, g *catalog.Game) (int64, error)
	LinkGameGenre(ctx context.Context, gameID, genreID int64) error
	Commit() error
	Rollback() error
}

// FromHost exposes an addon host as an AddonSource.
func FromHost(h *addons.Host) AddonSource {
	return hostSource{h: h}
}

type hostSource struct {
	h *addons.Host
}

func (s hostSource) Keys() []string {
	return s.h.Keys()
}

func (s hostSource) Library(name string) (Library, bool) {
	p, ok := s.h.GameLibrary(name)
	if !ok {
		return nil, false
	}
	return p, true
}

func (s hostSource) Metadata(name string) (MetadataSource, bool) {
	p, ok := s.h.MetadataScanner(name)
	if !ok {
		return nil, false
	}
	return p, true
}

// FromCatalog exposes a catalog database as a CatalogStore.
func FromCatalog(db *catalog.DB) CatalogStore {
	return catalogStore{DB: db}
}

type catalogStore struct {
	*catalog.DB
}

func (s catalogStore) Begin(ctx context.Context) (CatalogTx, error) {
	tx, err := s.DB.Begin(ctx)
	if err != nil {
		return nil, err
	}
	return tx, nil
}
