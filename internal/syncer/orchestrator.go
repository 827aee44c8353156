// Package syncer merges addon game libraries into the catalog.
package syncer

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/ryanm101/gami/internal/logging"
	"github.com/ryanm101/gami/internal/metrics"
	"github.com/ryanm101/gami/internal/tracing"
	"github.com/ryanm101/gami/sdk"
)

// Result summarizes one sync pass.
type Result struct {
	AddonID       string
	RunID         string
	Scanned       int
	New           int
	Enriched      int
	GenresCreated int
	Links         int
	Duration      time.Duration
}

// Outcome is the result of one addon's pass within SyncAll.
type Outcome struct {
	Result *Result
	Err    error
}

// Orchestrator runs sync passes. Passes for different addons share no state
// and may run concurrently.
type Orchestrator struct {
	source AddonSource
	store  CatalogStore
	logger *slog.Logger
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) { o.logger = l }
}

// New creates an Orchestrator.
func New(source AddonSource, store CatalogStore, opts ...Option) *Orchestrator {
	o := &Orchestrator{source: source, store: store, logger: logging.Get()}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Sync brings one addon's games into the catalog. Only games missing from
// the catalog are fetched and inserted; all writes of the pass happen in a
// single transaction. events may be nil.
func (o *Orchestrator) Sync(ctx context.Context, addonID string, events chan<- Event) (res *Result, err error) {
	start := time.Now()
	res = &Result{AddonID: addonID, RunID: uuid.NewString()}
	logger := logging.ForAddon(o.logger, addonID).With("run_id", res.RunID)

	ctx, span := tracing.StartSpan(ctx, "sync.pass", tracing.AddonAttr(addonID), attribute.String("sync.run_id", res.RunID))
	defer func() {
		tracing.EndSpan(span, err)
		metrics.RecordSyncDuration(addonID, start)
		metrics.SyncPasses.WithLabelValues(addonID, passStatus(err)).Inc()
	}()

	// 1. Scan
	emit(ctx, events, Event{AddonID: addonID, Phase: LibraryScan})
	scanned, err := o.scan(ctx, addonID)
	if err != nil {
		logger.Error("library scan failed", "error", err)
		return nil, err
	}
	res.Scanned = len(scanned)

	// 2. Diff against the catalog
	fresh, err := o.newGames(ctx, scanned)
	if err != nil {
		return nil, &TransactionError{AddonID: addonID, Op: "find existing games", Err: err}
	}
	res.New = len(fresh)
	logger.Debug("library scanned", "scanned", res.Scanned, "new", res.New)

	// 3. Enrich new games
	emit(ctx, events, Event{AddonID: addonID, Phase: FetchingMetadata, Total: len(fresh)})
	metadata := o.fetchMetadata(ctx, addonID, fresh, events)
	res.Enriched = len(metadata)

	// 4. Genres to create
	genres := collectGenres(fresh, metadata)
	existingGenres, err := o.store.FindExistingGenres(ctx, addonID, genreIDs(genres))
	if err != nil {
		return nil, &TransactionError{AddonID: addonID, Op: "find existing genres", Err: err}
	}

	// 5. Merge
	if err := o.merge(ctx, addonID, fresh, metadata, genres, existingGenres, res); err != nil {
		logger.Error("catalog merge rolled back", "error", err)
		return nil, err
	}

	// 6. Done
	res.Duration = time.Since(start)
	metrics.GamesInserted.WithLabelValues(addonID).Add(float64(res.New))
	metrics.GenresCreated.WithLabelValues(addonID).Add(float64(res.GenresCreated))
	emit(ctx, events, Event{AddonID: addonID, Phase: Done})
	logger.Info("sync finished", "scanned", res.Scanned, "new", res.New, "enriched", res.Enriched,
		"genres_created", res.GenresCreated, "duration", res.Duration)
	return res, nil
}

// SyncAll runs a pass for every addon library concurrently. One addon's
// failure never affects another's.
func (o *Orchestrator) SyncAll(ctx context.Context, events chan<- Event) map[string]Outcome {
	keys := o.source.Keys()
	outcomes := make(map[string]Outcome, len(keys))

	var mu sync.Mutex
	var g errgroup.Group
	for _, key := range keys {
		g.Go(func() error {
			res, err := o.Sync(ctx, key, events)
			mu.Lock()
			outcomes[key] = Outcome{Result: res, Err: err}
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return outcomes
}

func (o *Orchestrator) scan(ctx context.Context, addonID string) (games []sdk.ScannedGame, err error) {
	ctx, span := tracing.StartSpan(ctx, "sync.scan", tracing.AddonAttr(addonID))
	defer func() { tracing.EndSpan(span, err) }()

	lib, ok := o.source.Library(addonID)
	if !ok {
		return nil, &ScanError{AddonID: addonID, Err: ErrNoLibrary}
	}
	defer lib.Release()

	games, err = lib.Scan(ctx)
	if err != nil {
		return nil, &ScanError{AddonID: addonID, Err: err}
	}
	return dedupeScanned(games), nil
}

// newGames returns the scanned games whose natural key is not yet in the
// catalog.
func (o *Orchestrator) newGames(ctx context.Context, scanned []sdk.ScannedGame) ([]sdk.ScannedGame, error) {
	existing := make(map[sdk.GameKey]bool)
	for libraryType, ids := range idsByType(scanned) {
		found, err := o.store.FindExistingIDs(ctx, libraryType, ids)
		if err != nil {
			return nil, err
		}
		for id := range found {
			existing[sdk.GameKey{LibraryType: libraryType, LibraryID: id}] = true
		}
	}

	var fresh []sdk.ScannedGame
	for _, g := range scanned {
		if !existing[g.Ref().Key()] {
			fresh = append(fresh, g)
		}
	}
	return fresh, nil
}

// fetchMetadata enriches the new games that belong to the addon itself.
// Fetch failures only cost enrichment.
func (o *Orchestrator) fetchMetadata(ctx context.Context, addonID string, fresh []sdk.ScannedGame, events chan<- Event) map[sdk.GameKey]sdk.GameMetadata {
	var refs []sdk.GameRef
	for _, g := range fresh {
		if g.LibraryType == addonID {
			refs = append(refs, g.Ref())
		}
	}
	if len(refs) == 0 {
		return nil
	}

	src, ok := o.source.Metadata(addonID)
	if !ok {
		return nil
	}
	defer src.Release()

	ctx, span := tracing.StartSpan(ctx, "sync.fetch", tracing.AddonAttr(addonID), attribute.Int("sync.games", len(refs)))
	defer span.End()

	return src.GetMetadatas(ctx, refs, func(current, total int) {
		emit(ctx, events, Event{AddonID: addonID, Phase: FetchingMetadata, Current: current, Total: total})
	})
}

func (o *Orchestrator) merge(ctx context.Context, addonID string, fresh []sdk.ScannedGame, metadata map[sdk.GameKey]sdk.GameMetadata,
	genres []sdk.GenreRef, existingGenres map[string]int64, res *Result) (err error) {
	ctx, span := tracing.StartSpan(ctx, "sync.merge", tracing.AddonAttr(addonID))
	defer func() { tracing.EndSpan(span, err) }()

	if len(fresh) == 0 {
		return nil
	}

	tx, err := o.store.Begin(ctx)
	if err != nil {
		return &TransactionError{AddonID: addonID, Op: "begin", Err: err}
	}
	defer func() { _ = tx.Rollback() }()

	genreRows := make(map[string]int64, len(genres))
	for id, rowID := range existingGenres {
		genreRows[id] = rowID
	}
	created := 0
	for _, genre := range genres {
		if _, ok := genreRows[genre.LibraryID]; ok {
			continue
		}
		rowID, err := tx.InsertGenre(ctx, addonID, genre)
		if err != nil {
			return &TransactionError{AddonID: addonID, Op: "insert genre", Err: err}
		}
		genreRows[genre.LibraryID] = rowID
		created++
	}

	links := 0
	for _, g := range fresh {
		row := newGameRow(g)
		md, enriched := metadata[g.Ref().Key()]
		if enriched {
			applyMetadata(row, md)
		}
		gameID, err := tx.InsertGame(ctx, row)
		if err != nil {
			return &TransactionError{AddonID: addonID, Op: "insert game", Err: err}
		}

		linked := make(map[int64]bool)
		for _, genre := range md.Genres {
			genreID, ok := genreRows[genre.LibraryID]
			if !ok || linked[genreID] {
				continue
			}
			if err := tx.LinkGameGenre(ctx, gameID, genreID); err != nil {
				return &TransactionError{AddonID: addonID, Op: "link genre", Err: err}
			}
			linked[genreID] = true
			links++
		}
	}

	if err := tx.Commit(); err != nil {
		return &TransactionError{AddonID: addonID, Op: "commit", Err: err}
	}
	res.GenresCreated = created
	res.Links = links
	return nil
}

// emit delivers an event unless the consumer is gone.
func emit(ctx context.Context, events chan<- Event, ev Event) {
	if events == nil {
		return
	}
	select {
	case events <- ev:
	case <-ctx.Done():
	}
}
