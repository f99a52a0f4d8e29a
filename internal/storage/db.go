package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3" // Register SQLite driver
	"github.com/sirupsen/logrus"

	"github.com/RH-FMK/sktm/internal/retry"
	"github.com/RH-FMK/sktm/pkg/types"
)

// SeriesPatch is one patch of a series as reported by a patch source.
type SeriesPatch struct {
	ID        int64
	Name      string
	URL       string
	BaseURL   string
	ProjectID int64
	Date      string
}

// Store provides SQLite-backed persistence for the patch ledger.
type Store struct {
	db       *sql.DB
	dbPath   string
	retryCfg retry.Config
	mu       sync.RWMutex
}

// Open opens or creates the state database at dbPath and brings it to
// the latest schema version.
func Open(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.PingContext(context.Background()); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// SQLite allows one writer, and per-connection pragmas plus
	// :memory: databases only behave coherently on a single
	// connection, so the pool is pinned to one.
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(time.Hour)

	store := &Store{
		db:     db,
		dbPath: dbPath,
		retryCfg: retry.Config{
			MaxAttempts: 3,
			Delays: []time.Duration{
				50 * time.Millisecond,
				200 * time.Millisecond,
				500 * time.Millisecond,
			},
		},
	}

	if err := store.migrate(context.Background()); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			logrus.WithError(closeErr).Warn("Failed to close database after migration error")
		}
		return nil, err
	}

	for _, pragma := range []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	} {
		if _, err := db.ExecContext(context.Background(), pragma); err != nil {
			if closeErr := db.Close(); closeErr != nil {
				logrus.WithError(closeErr).Warn("Failed to close database after pragma error")
			}
			return nil, fmt.Errorf("failed to apply %q: %w", pragma, err)
		}
	}

	logrus.WithField("db_path", dbPath).Info("Opened patch ledger database")
	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db != nil {
		if err := s.db.Close(); err != nil {
			return fmt.Errorf("failed to close database connection: %w", err)
		}
	}
	return nil
}

// writeRetry runs fn, retrying transient SQLite lock errors.
func (s *Store) writeRetry(ctx context.Context, fn func() error) error {
	return retry.Do(ctx, s.retryCfg, retryable, fn)
}

// EnqueuePatch adds a patch to the pending list. The patch must exist
// in the patch table and must not already be pending.
func (s *Store) EnqueuePatch(ctx context.Context, patchID, timestamp int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.writeRetry(ctx, func() error {
		_, err := s.db.ExecContext(ctx,
			"INSERT INTO pendingpatches (patch_id, timestamp) VALUES (?, ?)",
			patchID, timestamp)
		if err != nil {
			return fmt.Errorf("failed to enqueue patch %d: %w", patchID, translateErr(err))
		}
		return nil
	})
}

// SetSeriesPending marks a whole series as pending under one job,
// re-adding patches that expired and were requeued.
func (s *Store) SetSeriesPending(ctx context.Context, pendingJobID int64, patchIDs []int64, timestamp int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"pendingjob_id": pendingJobID,
		"patches":       patchIDs,
	}).Debug("Setting series as pending")

	return s.writeRetry(ctx, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to begin transaction: %w", err)
		}
		committed := false
		defer func() {
			if !committed {
				if rollbackErr := tx.Rollback(); rollbackErr != nil {
					logrus.WithError(rollbackErr).Warn("Failed to rollback transaction")
				}
			}
		}()

		for _, patchID := range patchIDs {
			if _, err := tx.ExecContext(ctx,
				`INSERT OR REPLACE INTO pendingpatches (patch_id, timestamp, pendingjob_id)
				 VALUES (?, ?, ?)`,
				patchID, timestamp, pendingJobID); err != nil {
				return fmt.Errorf("failed to set patch %d pending: %w", patchID, translateErr(err))
			}
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit transaction: %w", err)
		}
		committed = true
		return nil
	})
}

// AssignJob attaches a pending patch to a pending job.
func (s *Store) AssignJob(ctx context.Context, patchID, pendingJobID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.writeRetry(ctx, func() error {
		res, err := s.db.ExecContext(ctx,
			"UPDATE pendingpatches SET pendingjob_id = ? WHERE patch_id = ?",
			pendingJobID, patchID)
		if err != nil {
			return fmt.Errorf("failed to assign job to patch %d: %w", patchID, translateErr(err))
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to get affected rows: %w", err)
		}
		if affected == 0 {
			return fmt.Errorf("patch %d: %w", patchID, ErrNotPending)
		}
		return nil
	})
}

// RemovePatch deletes a patch from the pending list once it has been
// applied or withdrawn.
func (s *Store) RemovePatch(ctx context.Context, patchID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.writeRetry(ctx, func() error {
		res, err := s.db.ExecContext(ctx,
			"DELETE FROM pendingpatches WHERE patch_id = ?", patchID)
		if err != nil {
			return fmt.Errorf("failed to remove patch %d: %w", patchID, translateErr(err))
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to get affected rows: %w", err)
		}
		if affected == 0 {
			return fmt.Errorf("patch %d: %w", patchID, ErrNotPending)
		}
		return nil
	})
}

// PendingPatches lists the pending ledger, oldest first.
func (s *Store) PendingPatches(ctx context.Context) ([]types.PendingPatch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT id, patch_id, timestamp, pendingjob_id FROM pendingpatches ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("failed to query pending patches: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			logrus.WithError(closeErr).Warn("Failed to close database rows")
		}
	}()

	var patches []types.PendingPatch
	for rows.Next() {
		var p types.PendingPatch
		var ts sql.NullInt64
		if err := rows.Scan(&p.ID, &p.PatchID, &ts, &p.PendingJobID); err != nil {
			return nil, fmt.Errorf("failed to scan pending patch: %w", err)
		}
		p.Timestamp = ts.Int64
		patches = append(patches, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating pending patches: %w", err)
	}

	return patches, nil
}

// PendingPatchCount returns the number of pending ledger rows.
func (s *Store) PendingPatchCount(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int
	if err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM pendingpatches").Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count pending patches: %w", err)
	}
	return count, nil
}

// ExpiredPendingPatches returns the ids of patches that have stayed
// pending for longer than the given window.
func (s *Store) ExpiredPendingPatches(ctx context.Context, olderThan time.Duration) ([]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cutoff := time.Now().Add(-olderThan).Unix()

	rows, err := s.db.QueryContext(ctx,
		"SELECT patch_id FROM pendingpatches WHERE patch_id IS NOT NULL AND timestamp < ?",
		cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to query expired pending patches: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			logrus.WithError(closeErr).Warn("Failed to close database rows")
		}
	}()

	var patchIDs []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan patch id: %w", err)
		}
		patchIDs = append(patchIDs, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating expired pending patches: %w", err)
	}

	if len(patchIDs) > 0 {
		logrus.WithField("patches", patchIDs).Info("Expired pending patches")
	}

	return patchIDs, nil
}

// CreatePendingJob registers a submitted CI build and returns its id.
func (s *Store) CreatePendingJob(ctx context.Context, jobName string, buildID int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var id int64
	err := s.writeRetry(ctx, func() error {
		res, err := s.db.ExecContext(ctx,
			"INSERT INTO pendingjobs (job_name, build_id) VALUES (?, ?)",
			jobName, buildID)
		if err != nil {
			return fmt.Errorf("failed to create pending job: %w", translateErr(err))
		}
		id, err = res.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to get pending job id: %w", err)
		}
		return nil
	})
	return id, err
}

// PendingJobs lists registered pending jobs.
func (s *Store) PendingJobs(ctx context.Context) ([]types.PendingJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT id, job_name, build_id FROM pendingjobs ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("failed to query pending jobs: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			logrus.WithError(closeErr).Warn("Failed to close database rows")
		}
	}()

	var jobs []types.PendingJob
	for rows.Next() {
		var j types.PendingJob
		if err := rows.Scan(&j.ID, &j.JobName, &j.BuildID); err != nil {
			return nil, fmt.Errorf("failed to scan pending job: %w", err)
		}
		jobs = append(jobs, j)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating pending jobs: %w", err)
	}

	return jobs, nil
}

// RemovePendingJob deletes a pending job together with the pending
// patches attached to it.
func (s *Store) RemovePendingJob(ctx context.Context, pendingJobID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.writeRetry(ctx, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to begin transaction: %w", err)
		}
		committed := false
		defer func() {
			if !committed {
				if rollbackErr := tx.Rollback(); rollbackErr != nil {
					logrus.WithError(rollbackErr).Warn("Failed to rollback transaction")
				}
			}
		}()

		// Patches first: the job row is their foreign key target.
		if _, err := tx.ExecContext(ctx,
			"DELETE FROM pendingpatches WHERE pendingjob_id = ?", pendingJobID); err != nil {
			return fmt.Errorf("failed to delete patches for job %d: %w", pendingJobID, err)
		}

		res, err := tx.ExecContext(ctx,
			"DELETE FROM pendingjobs WHERE id = ?", pendingJobID)
		if err != nil {
			return fmt.Errorf("failed to delete pending job %d: %w", pendingJobID, err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to get affected rows: %w", err)
		}
		if affected == 0 {
			return fmt.Errorf("pending job %d: %w", pendingJobID, ErrNotFound)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit transaction: %w", err)
		}
		committed = true
		return nil
	})
}

// PatchesForJob lists the pending patches attached to a job.
func (s *Store) PatchesForJob(ctx context.Context, pendingJobID int64) ([]types.PendingPatch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT id, patch_id, timestamp, pendingjob_id FROM pendingpatches WHERE pendingjob_id = ? ORDER BY id",
		pendingJobID)
	if err != nil {
		return nil, fmt.Errorf("failed to query patches for job %d: %w", pendingJobID, err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			logrus.WithError(closeErr).Warn("Failed to close database rows")
		}
	}()

	var patches []types.PendingPatch
	for rows.Next() {
		var p types.PendingPatch
		var ts sql.NullInt64
		if err := rows.Scan(&p.ID, &p.PatchID, &ts, &p.PendingJobID); err != nil {
			return nil, fmt.Errorf("failed to scan pending patch: %w", err)
		}
		p.Timestamp = ts.Int64
		patches = append(patches, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating pending patches: %w", err)
	}

	return patches, nil
}

// CommitSeries records the patch metadata of a series, creating patch
// source rows as needed. Re-committing a known patch replaces it.
func (s *Store) CommitSeries(ctx context.Context, series []SeriesPatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	logrus.WithField("patches", len(series)).Debug("Committing patch series")

	return s.writeRetry(ctx, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to begin transaction: %w", err)
		}
		committed := false
		defer func() {
			if !committed {
				if rollbackErr := tx.Rollback(); rollbackErr != nil {
					logrus.WithError(rollbackErr).Warn("Failed to rollback transaction")
				}
			}
		}()

		for _, p := range series {
			sourceID, err := getOrCreateSourceID(ctx, tx, p.BaseURL, p.ProjectID)
			if err != nil {
				return err
			}
			if _, err := tx.ExecContext(ctx,
				`INSERT OR REPLACE INTO patch (id, name, url, patchsource_id, date)
				 VALUES (?, ?, ?, ?, ?)`,
				p.ID, p.Name, p.URL, sourceID, p.Date); err != nil {
				return fmt.Errorf("failed to commit patch %d: %w", p.ID, translateErr(err))
			}
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit transaction: %w", err)
		}
		committed = true
		return nil
	})
}

// LastCheckedPatch returns the highest patch id recorded for a patch
// source, or ErrNotFound when the source has no patches yet.
func (s *Store) LastCheckedPatch(ctx context.Context, baseURL string, projectID int64) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var sourceID int64
	err := s.db.QueryRowContext(ctx,
		"SELECT id FROM patchsource WHERE baseurl = ? AND project_id = ?",
		baseURL, projectID).Scan(&sourceID)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("patch source %s/%d: %w", baseURL, projectID, ErrNotFound)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to query patch source: %w", err)
	}

	var patchID int64
	err = s.db.QueryRowContext(ctx,
		"SELECT id FROM patch WHERE patchsource_id = ? ORDER BY id DESC LIMIT 1",
		sourceID).Scan(&patchID)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("patch source %s/%d has no patches: %w", baseURL, projectID, ErrNotFound)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to query last checked patch: %w", err)
	}
	return patchID, nil
}

// LastCheckedPatchDate returns the date of the newest patch recorded
// for a patch source, or ErrNotFound when the source has no patches.
func (s *Store) LastCheckedPatchDate(ctx context.Context, baseURL string, projectID int64) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var sourceID int64
	err := s.db.QueryRowContext(ctx,
		"SELECT id FROM patchsource WHERE baseurl = ? AND project_id = ?",
		baseURL, projectID).Scan(&sourceID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("patch source %s/%d: %w", baseURL, projectID, ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("failed to query patch source: %w", err)
	}

	var date string
	err = s.db.QueryRowContext(ctx,
		"SELECT date FROM patch WHERE patchsource_id = ? ORDER BY date DESC LIMIT 1",
		sourceID).Scan(&date)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("patch source %s/%d has no patches: %w", baseURL, projectID, ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("failed to query last checked patch date: %w", err)
	}
	return date, nil
}

// RecordTestRun stores the outcome of a build and returns the row id.
func (s *Store) RecordTestRun(ctx context.Context, result types.TestResult, buildID int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx,
		"INSERT INTO testrun (result_id, build_id) VALUES (?, ?)",
		int(result), buildID)
	if err != nil {
		return 0, fmt.Errorf("failed to record test run: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get test run id: %w", err)
	}
	return id, nil
}

// UpdateBaseline records a baseline test run for a commit, creating
// the baseline row on first sight and otherwise replacing the test
// run reference when the new result is not better than the previous
// one.
func (s *Store) UpdateBaseline(ctx context.Context, repoURL, commitID string, commitDate int64, result types.TestResult, buildID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.writeRetry(ctx, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to begin transaction: %w", err)
		}
		committed := false
		defer func() {
			if !committed {
				if rollbackErr := tx.Rollback(); rollbackErr != nil {
					logrus.WithError(rollbackErr).Warn("Failed to rollback transaction")
				}
			}
		}()

		repoID, err := getOrCreateRepoID(ctx, tx, repoURL)
		if err != nil {
			return err
		}

		res, err := tx.ExecContext(ctx,
			"INSERT INTO testrun (result_id, build_id) VALUES (?, ?)",
			int(result), buildID)
		if err != nil {
			return fmt.Errorf("failed to record test run: %w", err)
		}
		testRunID, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to get test run id: %w", err)
		}

		var prev int
		err = tx.QueryRowContext(ctx,
			`SELECT testrun.result_id FROM baseline, testrun
			 WHERE baseline.commitid = ? AND baseline.baserepo_id = ?
			   AND baseline.testrun_id = testrun.id
			 ORDER BY baseline.commitdate DESC LIMIT 1`,
			commitID, repoID).Scan(&prev)

		switch {
		case errors.Is(err, sql.ErrNoRows):
			logrus.WithFields(logrus.Fields{
				"repo":   repoURL,
				"commit": commitID,
				"result": result.String(),
			}).Debug("Creating baseline")
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO baseline (baserepo_id, commitid, commitdate, testrun_id)
				 VALUES (?, ?, ?, ?)`,
				repoID, commitID, commitDate, testRunID); err != nil {
				return fmt.Errorf("failed to create baseline: %w", err)
			}
		case err != nil:
			return fmt.Errorf("failed to query baseline result: %w", err)
		case int(result) >= prev:
			logrus.WithFields(logrus.Fields{
				"repo":   repoURL,
				"commit": commitID,
				"result": result.String(),
			}).Debug("Updating baseline")
			if _, err := tx.ExecContext(ctx,
				"UPDATE baseline SET testrun_id = ? WHERE commitid = ? AND baserepo_id = ?",
				testRunID, commitID, repoID); err != nil {
				return fmt.Errorf("failed to update baseline: %w", err)
			}
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit transaction: %w", err)
		}
		committed = true
		return nil
	})
}

// StableCommit returns the most recent commit of a repo whose baseline
// test succeeded, or ErrNotFound when the repo has no stable commit.
func (s *Store) StableCommit(ctx context.Context, repoURL string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var commitID string
	err := s.db.QueryRowContext(ctx,
		`SELECT commitid FROM baseline, testrun, baserepo
		 WHERE baserepo.url = ? AND baseline.baserepo_id = baserepo.id
		   AND baseline.testrun_id = testrun.id AND testrun.result_id = 0
		 ORDER BY baseline.commitdate DESC LIMIT 1`,
		repoURL).Scan(&commitID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("no stable commit for %s: %w", repoURL, ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("failed to query stable commit: %w", err)
	}
	return commitID, nil
}

// LatestBaseline returns the most recent baseline commit of a repo
// regardless of result.
func (s *Store) LatestBaseline(ctx context.Context, repoURL string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var commitID string
	err := s.db.QueryRowContext(ctx,
		`SELECT commitid FROM baseline, baserepo
		 WHERE baserepo.url = ? AND baseline.baserepo_id = baserepo.id
		 ORDER BY baseline.commitdate DESC LIMIT 1`,
		repoURL).Scan(&commitID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("no baseline for %s: %w", repoURL, ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("failed to query latest baseline: %w", err)
	}
	return commitID, nil
}

// BaselineTests lists every recorded baseline test run.
func (s *Store) BaselineTests(ctx context.Context) ([]types.Baseline, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT baseline.id, baserepo.url, baseline.commitid, baseline.commitdate,
		        testrun.result_id, testrun.build_id
		 FROM baseline, baserepo, testrun
		 WHERE baseline.baserepo_id = baserepo.id AND baseline.testrun_id = testrun.id
		 ORDER BY baseline.id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query baseline tests: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			logrus.WithError(closeErr).Warn("Failed to close database rows")
		}
	}()

	var baselines []types.Baseline
	for rows.Next() {
		var b types.Baseline
		var result int
		if err := rows.Scan(&b.ID, &b.RepoURL, &b.CommitID, &b.CommitDate, &result, &b.BuildID); err != nil {
			return nil, fmt.Errorf("failed to scan baseline: %w", err)
		}
		b.Result = types.TestResult(result)
		baselines = append(baselines, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating baselines: %w", err)
	}

	return baselines, nil
}

// getOrCreateSourceID resolves a patch source row for a base URL and
// project id, creating it on first sight.
func getOrCreateSourceID(ctx context.Context, tx *sql.Tx, baseURL string, projectID int64) (int64, error) {
	var id int64
	err := tx.QueryRowContext(ctx,
		"SELECT id FROM patchsource WHERE baseurl = ? AND project_id = ?",
		baseURL, projectID).Scan(&id)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("failed to query patch source: %w", err)
	}

	res, err := tx.ExecContext(ctx,
		"INSERT INTO patchsource (baseurl, project_id) VALUES (?, ?)",
		baseURL, projectID)
	if err != nil {
		return 0, fmt.Errorf("failed to create patch source: %w", err)
	}
	id, err = res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get patch source id: %w", err)
	}
	return id, nil
}

// getOrCreateRepoID resolves a baserepo row for a git URL.
func getOrCreateRepoID(ctx context.Context, tx *sql.Tx, repoURL string) (int64, error) {
	if _, err := tx.ExecContext(ctx,
		"INSERT OR IGNORE INTO baserepo (url) VALUES (?)", repoURL); err != nil {
		return 0, fmt.Errorf("failed to create base repo: %w", err)
	}

	var id int64
	if err := tx.QueryRowContext(ctx,
		"SELECT id FROM baserepo WHERE url = ?", repoURL).Scan(&id); err != nil {
		return 0, fmt.Errorf("failed to query base repo: %w", err)
	}
	return id, nil
}
