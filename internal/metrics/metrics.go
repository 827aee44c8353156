package metrics

import (
	"context"
	"database/sql"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Catalog Gauges
	GamesTotal = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "gami_games_total",
		Help: "Total number of games in the catalog.",
	})
	GenresTotal = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "gami_genres_total",
		Help: "Total number of genres in the catalog.",
	})

	// Addon Host
	AddonsLoaded = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "gami_addons_loaded",
		Help: "Number of addons currently registered with the host.",
	})
	AddonLoadFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gami_addon_load_failures_total",
		Help: "Addon libraries rejected during load.",
	}, []string{"reason"}) // reason: open, symbol, version, register, duplicate
	AddonFaults = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gami_addon_faults_total",
		Help: "Addon calls that panicked or timed out.",
	}, []string{"addon", "kind"}) // kind: panic, timeout

	// Metadata Fetch
	MetadataFetches = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gami_metadata_fetches_total",
		Help: "Metadata fetch attempts by outcome.",
	}, []string{"result"}) // result: success, empty, network_error, decode_error
	FetchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "gami_metadata_fetch_duration_seconds",
		Help:    "Duration of single metadata fetches in seconds.",
		Buckets: prometheus.DefBuckets,
	})

	// Sync
	SyncDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "gami_sync_duration_seconds",
		Help:    "Duration of addon sync passes in seconds.",
		Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
	}, []string{"addon"})
	SyncPasses = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gami_sync_passes_total",
		Help: "Completed sync passes by outcome.",
	}, []string{"addon", "status"}) // status: ok, scan_error, tx_error
	GamesInserted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gami_games_inserted_total",
		Help: "Games added to the catalog by sync.",
	}, []string{"addon"})
	GenresCreated = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gami_genres_created_total",
		Help: "Genres added to the catalog by sync.",
	}, []string{"addon"})
)

// UpdateCatalogMetrics refreshes gauges that reflect the current catalog.
func UpdateCatalogMetrics(ctx context.Context, db *sql.DB) error {
	var games, genres int

	if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM games").Scan(&games); err != nil {
		return err
	}
	if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM genres").Scan(&genres); err != nil {
		return err
	}

	GamesTotal.Set(float64(games))
	GenresTotal.Set(float64(genres))
	return nil
}

// RecordSyncDuration records the time taken for one addon's sync pass.
func RecordSyncDuration(addon string, start time.Time) {
	SyncDuration.WithLabelValues(addon).Observe(time.Since(start).Seconds())
}

// RecordFetch records the outcome and duration of one metadata fetch.
func RecordFetch(result string, start time.Time) {
	MetadataFetches.WithLabelValues(result).Inc()
	FetchDuration.Observe(time.Since(start).Seconds())
}
