package types

import "time"

// TestResult is the outcome of a test run, ordered from best to worst.
type TestResult int

const (
	ResultSuccess TestResult = iota
	ResultMergeFailure
	ResultBuildFailure
	ResultPublishFailure
	ResultTestFailure
	ResultBaselineFailure
)

// String returns the canonical name of a test result.
func (r TestResult) String() string {
	switch r {
	case ResultSuccess:
		return "success"
	case ResultMergeFailure:
		return "merge_failure"
	case ResultBuildFailure:
		return "build_failure"
	case ResultPublishFailure:
		return "publish_failure"
	case ResultTestFailure:
		return "test_failure"
	case ResultBaselineFailure:
		return "baseline_failure"
	default:
		return "unknown"
	}
}

// JobType distinguishes baseline builds from patch series builds.
type JobType int

const (
	JobBaseline JobType = iota
	JobPatchwork
)

// PendingPatch is a row in the pendingpatches ledger. PatchID and
// PendingJobID are nil until populated: a patch may be queued before
// it is attached to a job, and migrated rows carry only a timestamp.
type PendingPatch struct {
	ID           int64  `json:"id"`
	PatchID      *int64 `json:"patch_id,omitempty"`
	Timestamp    int64  `json:"timestamp"`
	PendingJobID *int64 `json:"pendingjob_id,omitempty"`
}

// PendingJob is a CI build awaiting completion.
type PendingJob struct {
	ID      int64  `json:"id"`
	JobName string `json:"job_name"`
	BuildID int64  `json:"build_id"`
}

// Patch is a patch record mirrored from a patch source.
type Patch struct {
	ID            int64  `json:"id"`
	Name          string `json:"name"`
	URL           string `json:"url"`
	Date          string `json:"date"`
	PatchSourceID int64  `json:"patchsource_id"`
}

// Baseline is a tested commit of a base repository.
type Baseline struct {
	ID         int64      `json:"id"`
	RepoURL    string     `json:"repo_url"`
	CommitID   string     `json:"commit_id"`
	CommitDate int64      `json:"commit_date"`
	Result     TestResult `json:"result"`
	BuildID    int64      `json:"build_id"`
}

// EnqueueRequest queues a patch for testing.
type EnqueueRequest struct {
	PatchID       int64  `json:"patch_id" binding:"required"`
	Timestamp     int64  `json:"timestamp"`
	CorrelationID string `json:"correlation_id,omitempty"`
}

// AssignRequest attaches a queued patch to a pending job.
type AssignRequest struct {
	PendingJobID  int64  `json:"pendingjob_id" binding:"required"`
	CorrelationID string `json:"correlation_id,omitempty"`
}

// PendingJobRequest registers a submitted CI build.
type PendingJobRequest struct {
	JobName       string `json:"job_name" binding:"required"`
	BuildID       int64  `json:"build_id" binding:"required"`
	CorrelationID string `json:"correlation_id,omitempty"`
}

// LedgerResponse acknowledges a ledger mutation.
type LedgerResponse struct {
	ID            int64  `json:"id,omitempty"`
	Status        string `json:"status"`
	CorrelationID string `json:"correlation_id,omitempty"`
}

// ErrorResponse is the error body returned by the API.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
	Code    int    `json:"code,omitempty"`
}

// HealthResponse reports daemon health.
type HealthResponse struct {
	Status         string    `json:"status"`
	Timestamp      time.Time `json:"timestamp"`
	Version        string    `json:"version"`
	SchemaVersion  int       `json:"schema_version"`
	PendingPatches int       `json:"pending_patches"`
}
