package metrics

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

func TestRecordSyncDuration(t *testing.T) {
	RecordSyncDuration("test-addon", time.Now().Add(-100*time.Millisecond))

	assert.Equal(t, 1, testutil.CollectAndCount(SyncDuration, "gami_sync_duration_seconds"))
}

func TestRecordFetch(t *testing.T) {
	before := testutil.ToFloat64(MetadataFetches.WithLabelValues("success"))

	RecordFetch("success", time.Now())
	RecordFetch("success", time.Now())

	assert.Equal(t, before+2, testutil.ToFloat64(MetadataFetches.WithLabelValues("success")))
}

func TestCounters_ByLabel(t *testing.T) {
	GamesInserted.WithLabelValues("steam").Add(3)
	GenresCreated.WithLabelValues("steam").Inc()
	AddonFaults.WithLabelValues("steam", "panic").Inc()

	assert.GreaterOrEqual(t, testutil.ToFloat64(GamesInserted.WithLabelValues("steam")), float64(3))
	assert.GreaterOrEqual(t, testutil.ToFloat64(GenresCreated.WithLabelValues("steam")), float64(1))
	assert.GreaterOrEqual(t, testutil.ToFloat64(AddonFaults.WithLabelValues("steam", "panic")), float64(1))
}

func TestUpdateCatalogMetrics(t *testing.T) {
	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "metrics.db"))
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	_, err = db.Exec(`
		CREATE TABLE games (id INTEGER PRIMARY KEY);
		CREATE TABLE genres (id INTEGER PRIMARY KEY);
		INSERT INTO games (id) VALUES (1), (2);
		INSERT INTO genres (id) VALUES (1);
	`)
	require.NoError(t, err)

	require.NoError(t, UpdateCatalogMetrics(context.Background(), db))
	assert.Equal(t, float64(2), testutil.ToFloat64(GamesTotal))
	assert.Equal(t, float64(1), testutil.ToFloat64(GenresTotal))
}
