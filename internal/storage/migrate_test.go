package storage

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RH-FMK/sktm/internal/metrics"
)

// createV1Database builds a database at the first schema version, the
// state a deployment would be in before the pendingpatches rebuild.
func createV1Database(t *testing.T, setup func(db *sql.DB)) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "sktm.db")

	db, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	defer func() {
		_ = db.Close() // Ignore error in test
	}()

	_, err = db.Exec(SchemaV1)
	require.NoError(t, err)

	_, err = db.Exec(`CREATE TABLE schema_version (
		version INTEGER PRIMARY KEY,
		applied_at INTEGER NOT NULL
	)`)
	require.NoError(t, err)

	_, err = db.Exec("INSERT INTO schema_version (version, applied_at) VALUES (1, ?)",
		time.Now().Unix())
	require.NoError(t, err)

	if setup != nil {
		setup(db)
	}

	return path
}

func TestMigration_PreservesTimestampsDiscardsIDs(t *testing.T) {
	path := createV1Database(t, func(db *sql.DB) {
		_, err := db.Exec(
			"INSERT INTO pendingpatches (id, timestamp, pendingjob_id) VALUES (5, 1000, NULL)")
		require.NoError(t, err)
		_, err = db.Exec(
			"INSERT INTO pendingpatches (id, timestamp, pendingjob_id) VALUES (9, 2000, NULL)")
		require.NoError(t, err)
	})

	store, err := Open(path)
	require.NoError(t, err)
	defer func() {
		_ = store.Close() // Ignore error in test
	}()

	version, err := store.SchemaVersion(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, version)

	patches, err := store.PendingPatches(context.Background())
	require.NoError(t, err)
	require.Len(t, patches, 2)

	var timestamps []int64
	for _, p := range patches {
		timestamps = append(timestamps, p.Timestamp)
		assert.Nil(t, p.PatchID)
		assert.Nil(t, p.PendingJobID)
		// Old row ids (5 and 9) are discarded for fresh ones.
		assert.Less(t, p.ID, int64(5))
	}
	assert.ElementsMatch(t, []int64{1000, 2000}, timestamps)
}

func TestMigration_GuardRefusesAssignedPatches(t *testing.T) {
	path := createV1Database(t, func(db *sql.DB) {
		_, err := db.Exec(
			"INSERT INTO pendingjobs (id, job_name, build_id) VALUES (1, 'sktm-test', 42)")
		require.NoError(t, err)
		_, err = db.Exec(
			"INSERT INTO pendingpatches (timestamp, pendingjob_id) VALUES (1000, 1)")
		require.NoError(t, err)
	})

	_, err := Open(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "precondition failed")
	assert.Contains(t, err.Error(), "drain the ledger")
}

func TestMigration_DanglingJobReferenceFails(t *testing.T) {
	// Foreign keys are not enforced on the raw setup connection, so a
	// dangling pendingjob_id can exist before migration. The rebuild
	// must refuse rather than silently discard it.
	path := createV1Database(t, func(db *sql.DB) {
		_, err := db.Exec(
			"INSERT INTO pendingpatches (timestamp, pendingjob_id) VALUES (1000, 999)")
		require.NoError(t, err)
	})

	_, err := Open(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "foreign key check failed")
}

func TestMigration_FailureLeavesVersionUntouched(t *testing.T) {
	path := createV1Database(t, func(db *sql.DB) {
		_, err := db.Exec(
			"INSERT INTO pendingpatches (timestamp, pendingjob_id) VALUES (1000, 999)")
		require.NoError(t, err)
	})

	_, err := Open(path)
	require.Error(t, err)

	db, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	defer func() {
		_ = db.Close() // Ignore error in test
	}()

	var version int
	require.NoError(t, db.QueryRow(
		"SELECT COALESCE(MAX(version), 0) FROM schema_version").Scan(&version))
	assert.Equal(t, 1, version)

	// The original table survives the rolled-back rebuild.
	var count int
	require.NoError(t, db.QueryRow(
		"SELECT COUNT(*) FROM pendingpatches").Scan(&count))
	assert.Equal(t, 1, count)
}

func TestMigration_ReopenIsIdempotent(t *testing.T) {
	path := createV1Database(t, func(db *sql.DB) {
		_, err := db.Exec(
			"INSERT INTO pendingpatches (timestamp) VALUES (1000)")
		require.NoError(t, err)
	})

	store, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, store.Close())

	store, err = Open(path)
	require.NoError(t, err)
	defer func() {
		_ = store.Close() // Ignore error in test
	}()

	version, err := store.SchemaVersion(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, version)

	patches, err := store.PendingPatches(context.Background())
	require.NoError(t, err)
	require.Len(t, patches, 1)
	assert.Equal(t, int64(1000), patches[0].Timestamp)
}

func TestMigration_CountsAppliedMigrations(t *testing.T) {
	path := createV1Database(t, func(db *sql.DB) {
		_, err := db.Exec(
			"INSERT INTO pendingpatches (timestamp) VALUES (1000)")
		require.NoError(t, err)
	})

	before := testutil.ToFloat64(metrics.MigrationsApplied)

	store, err := Open(path)
	require.NoError(t, err)
	defer func() {
		_ = store.Close() // Ignore error in test
	}()

	// Only the v2 rebuild was outstanding.
	assert.Equal(t, before+1, testutil.ToFloat64(metrics.MigrationsApplied))

	// Reopening applies nothing and counts nothing.
	require.NoError(t, store.Close())
	store, err = Open(path)
	require.NoError(t, err)
	assert.Equal(t, before+1, testutil.ToFloat64(metrics.MigrationsApplied))
}

func TestMigration_FreshDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fresh.db")

	store, err := Open(path)
	require.NoError(t, err)
	defer func() {
		_ = store.Close() // Ignore error in test
	}()

	version, err := store.SchemaVersion(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, version)

	_, err = os.Stat(path)
	require.NoError(t, err)

	// The rebuilt table enforces uniqueness on patch_id.
	seedPatches(t, store, 100)
	require.NoError(t, store.EnqueuePatch(context.Background(), 100, 1000))
	err = store.EnqueuePatch(context.Background(), 100, 2000)
	assert.ErrorIs(t, err, ErrAlreadyPending)
}
