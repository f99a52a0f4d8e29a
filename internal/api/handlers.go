// Package api exposes the patch ledger over HTTP for the CI driver
// and operators.
package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/RH-FMK/sktm/internal/metrics"
	"github.com/RH-FMK/sktm/internal/storage"
	"github.com/RH-FMK/sktm/pkg/types"
)

// Version is reported by the health endpoint.
const Version = "1.0.0"

// Ledger is the slice of the store the API needs.
type Ledger interface {
	EnqueuePatch(ctx context.Context, patchID, timestamp int64) error
	AssignJob(ctx context.Context, patchID, pendingJobID int64) error
	RemovePatch(ctx context.Context, patchID int64) error
	PendingPatches(ctx context.Context) ([]types.PendingPatch, error)
	PendingPatchCount(ctx context.Context) (int, error)
	ExpiredPendingPatches(ctx context.Context, olderThan time.Duration) ([]int64, error)
	CreatePendingJob(ctx context.Context, jobName string, buildID int64) (int64, error)
	PendingJobs(ctx context.Context) ([]types.PendingJob, error)
	RemovePendingJob(ctx context.Context, pendingJobID int64) error
	PatchesForJob(ctx context.Context, pendingJobID int64) ([]types.PendingPatch, error)
	SchemaVersion(ctx context.Context) (int, error)
}

// Handler handles HTTP API requests.
type Handler struct {
	ledger Ledger
}

// NewHandler creates a new API handler.
func NewHandler(ledger Ledger) *Handler {
	return &Handler{ledger: ledger}
}

// SetupRoutes configures the API routes.
func SetupRoutes(router *gin.Engine, handler *Handler) {
	v1 := router.Group("/api/v1")
	{
		v1.POST("/patches", handler.EnqueuePatch)
		v1.GET("/patches", handler.ListPendingPatches)
		v1.GET("/patches/expired", handler.ListExpiredPatches)
		v1.PUT("/patches/:patch_id/job", handler.AssignJob)
		v1.DELETE("/patches/:patch_id", handler.RemovePatch)

		v1.POST("/jobs", handler.CreatePendingJob)
		v1.GET("/jobs", handler.ListPendingJobs)
		v1.GET("/jobs/:job_id/patches", handler.ListPatchesForJob)
		v1.DELETE("/jobs/:job_id", handler.RemovePendingJob)
	}

	router.GET("/health", handler.HealthCheck)
}

// correlationID returns the client-supplied id, or mints one.
func correlationID(supplied string) string {
	if supplied != "" {
		return supplied
	}
	return uuid.New().String()
}

// writeLedgerError maps ledger sentinels onto HTTP statuses.
func writeLedgerError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	label := "internal error"
	switch {
	case errors.Is(err, storage.ErrAlreadyPending):
		status = http.StatusConflict
		label = "patch already pending"
	case errors.Is(err, storage.ErrNotPending), errors.Is(err, storage.ErrNotFound):
		status = http.StatusNotFound
		label = "not found"
	case errors.Is(err, storage.ErrBadReference):
		status = http.StatusUnprocessableEntity
		label = "dangling reference"
	}
	c.JSON(status, types.ErrorResponse{
		Error:   label,
		Message: err.Error(),
		Code:    status,
	})
}

func pathID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, types.ErrorResponse{
			Error:   "invalid request",
			Message: name + " must be an integer",
			Code:    400,
		})
		return 0, false
	}
	return id, true
}

// EnqueuePatch adds a patch to the pending ledger.
func (h *Handler) EnqueuePatch(c *gin.Context) {
	var req types.EnqueueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, types.ErrorResponse{
			Error:   "invalid request",
			Message: err.Error(),
			Code:    400,
		})
		return
	}

	if req.Timestamp == 0 {
		req.Timestamp = time.Now().Unix()
	}

	err := h.ledger.EnqueuePatch(c.Request.Context(), req.PatchID, req.Timestamp)
	metrics.ObserveOp("enqueue", err)
	if err != nil {
		writeLedgerError(c, err)
		return
	}

	c.JSON(http.StatusCreated, types.LedgerResponse{
		ID:            req.PatchID,
		Status:        "pending",
		CorrelationID: correlationID(req.CorrelationID),
	})
}

// AssignJob attaches a pending patch to a pending job.
func (h *Handler) AssignJob(c *gin.Context) {
	patchID, ok := pathID(c, "patch_id")
	if !ok {
		return
	}

	var req types.AssignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, types.ErrorResponse{
			Error:   "invalid request",
			Message: err.Error(),
			Code:    400,
		})
		return
	}

	err := h.ledger.AssignJob(c.Request.Context(), patchID, req.PendingJobID)
	metrics.ObserveOp("assign", err)
	if err != nil {
		writeLedgerError(c, err)
		return
	}

	c.JSON(http.StatusOK, types.LedgerResponse{
		ID:            patchID,
		Status:        "assigned",
		CorrelationID: correlationID(req.CorrelationID),
	})
}

// RemovePatch deletes a patch from the pending ledger.
func (h *Handler) RemovePatch(c *gin.Context) {
	patchID, ok := pathID(c, "patch_id")
	if !ok {
		return
	}

	err := h.ledger.RemovePatch(c.Request.Context(), patchID)
	metrics.ObserveOp("remove", err)
	if err != nil {
		writeLedgerError(c, err)
		return
	}

	c.JSON(http.StatusOK, types.LedgerResponse{
		ID:     patchID,
		Status: "removed",
	})
}

// ListPendingPatches returns the pending ledger.
func (h *Handler) ListPendingPatches(c *gin.Context) {
	patches, err := h.ledger.PendingPatches(c.Request.Context())
	if err != nil {
		writeLedgerError(c, err)
		return
	}
	if patches == nil {
		patches = []types.PendingPatch{}
	}
	c.JSON(http.StatusOK, patches)
}

// ListExpiredPatches returns ids of patches pending longer than the
// older_than_seconds query parameter (default 24 hours).
func (h *Handler) ListExpiredPatches(c *gin.Context) {
	olderThan := 24 * time.Hour
	if raw := c.Query("older_than_seconds"); raw != "" {
		secs, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || secs < 0 {
			c.JSON(http.StatusBadRequest, types.ErrorResponse{
				Error:   "invalid request",
				Message: "older_than_seconds must be a non-negative integer",
				Code:    400,
			})
			return
		}
		olderThan = time.Duration(secs) * time.Second
	}

	ids, err := h.ledger.ExpiredPendingPatches(c.Request.Context(), olderThan)
	if err != nil {
		writeLedgerError(c, err)
		return
	}
	if ids == nil {
		ids = []int64{}
	}
	c.JSON(http.StatusOK, gin.H{"patch_ids": ids})
}

// CreatePendingJob registers a submitted CI build.
func (h *Handler) CreatePendingJob(c *gin.Context) {
	var req types.PendingJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, types.ErrorResponse{
			Error:   "invalid request",
			Message: err.Error(),
			Code:    400,
		})
		return
	}

	id, err := h.ledger.CreatePendingJob(c.Request.Context(), req.JobName, req.BuildID)
	metrics.ObserveOp("create_job", err)
	if err != nil {
		writeLedgerError(c, err)
		return
	}

	c.JSON(http.StatusCreated, types.LedgerResponse{
		ID:            id,
		Status:        "registered",
		CorrelationID: correlationID(req.CorrelationID),
	})
}

// ListPendingJobs returns registered pending jobs.
func (h *Handler) ListPendingJobs(c *gin.Context) {
	jobs, err := h.ledger.PendingJobs(c.Request.Context())
	if err != nil {
		writeLedgerError(c, err)
		return
	}
	if jobs == nil {
		jobs = []types.PendingJob{}
	}
	c.JSON(http.StatusOK, jobs)
}

// ListPatchesForJob returns the pending patches attached to a job.
func (h *Handler) ListPatchesForJob(c *gin.Context) {
	jobID, ok := pathID(c, "job_id")
	if !ok {
		return
	}

	patches, err := h.ledger.PatchesForJob(c.Request.Context(), jobID)
	if err != nil {
		writeLedgerError(c, err)
		return
	}
	if patches == nil {
		patches = []types.PendingPatch{}
	}
	c.JSON(http.StatusOK, patches)
}

// RemovePendingJob deletes a pending job and its attached patches.
func (h *Handler) RemovePendingJob(c *gin.Context) {
	jobID, ok := pathID(c, "job_id")
	if !ok {
		return
	}

	err := h.ledger.RemovePendingJob(c.Request.Context(), jobID)
	metrics.ObserveOp("remove_job", err)
	if err != nil {
		writeLedgerError(c, err)
		return
	}

	c.JSON(http.StatusOK, types.LedgerResponse{
		ID:     jobID,
		Status: "removed",
	})
}

// HealthCheck provides daemon health information.
func (h *Handler) HealthCheck(c *gin.Context) {
	ctx := c.Request.Context()

	version, err := h.ledger.SchemaVersion(ctx)
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, types.HealthResponse{
			Status:    "unhealthy",
			Timestamp: time.Now(),
			Version:   Version,
		})
		return
	}

	pending, err := h.ledger.PendingPatchCount(ctx)
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, types.HealthResponse{
			Status:    "unhealthy",
			Timestamp: time.Now(),
			Version:   Version,
		})
		return
	}

	c.JSON(http.StatusOK, types.HealthResponse{
		Status:         "healthy",
		Timestamp:      time.Now(),
		Version:        Version,
		SchemaVersion:  version,
		PendingPatches: pending,
	})
}
