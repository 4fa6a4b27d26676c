package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/partner-up-dev/mvp-HA-sub000/internal/domain"
	"github.com/partner-up-dev/mvp-HA-sub000/internal/usecase"
)

type JobHandler struct {
	schedule *usecase.ScheduleUsecase
	logger   *slog.Logger
}

func NewJobHandler(schedule *usecase.ScheduleUsecase, logger *slog.Logger) *JobHandler {
	return &JobHandler{schedule: schedule, logger: logger.With("component", "job_handler")}
}

type scheduleJobRequest struct {
	JobType          string         `json:"job_type" binding:"required"`
	RunAt            time.Time      `json:"run_at"   binding:"required"`
	Payload          domain.Payload `json:"payload"`
	EarlyToleranceMS int64          `json:"early_tolerance_ms" binding:"omitempty,min=0"`
	LateToleranceMS  int64          `json:"late_tolerance_ms"  binding:"omitempty,min=0"`
	MaxAttempts      int            `json:"max_attempts"       binding:"omitempty,min=1,max=20"`
	DedupeKey        string         `json:"dedupe_key"`
}

type getJobResponse struct {
	ID          int64          `json:"id"`
	JobType     string         `json:"job_type"`
	Status      domain.Status  `json:"status"`
	RunAt       time.Time      `json:"run_at"`
	Attempts    int            `json:"attempts"`
	MaxAttempts int            `json:"max_attempts"`
	DedupeKey   *string        `json:"dedupe_key,omitempty"`
	LastError   *string        `json:"last_error,omitempty"`
	CompletedAt *time.Time     `json:"completed_at,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	Payload     domain.Payload `json:"payload"`
}

func (h *JobHandler) Schedule(ctx *gin.Context) {
	var req scheduleJobRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := h.schedule.ScheduleOnce(ctx.Request.Context(), usecase.ScheduleOnceInput{
		JobType:          req.JobType,
		RunAt:            req.RunAt,
		Payload:          req.Payload,
		EarlyToleranceMS: req.EarlyToleranceMS,
		LateToleranceMS:  req.LateToleranceMS,
		MaxAttempts:      req.MaxAttempts,
		DedupeKey:        req.DedupeKey,
	})
	if err != nil {
		h.logger.Error("schedule job", "job_type", req.JobType, "error", err)
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": errInternalServer})
		return
	}

	// A dedupe hit is idempotent success, not a conflict.
	ctx.JSON(http.StatusCreated, result)
}

func (h *JobHandler) GetByID(ctx *gin.Context) {
	id, err := strconv.ParseInt(ctx.Param("id"), 10, 64)
	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "invalid job id"})
		return
	}

	job, err := h.schedule.GetJob(ctx.Request.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrJobNotFound) {
			ctx.JSON(http.StatusNotFound, gin.H{"error": errJobNotFound})
			return
		}
		h.logger.Error("get job by id", "job_id", id, "error", err)
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": errInternalServer})
		return
	}

	ctx.JSON(http.StatusOK, getJobResponse{
		ID:          job.ID,
		JobType:     job.JobType,
		Status:      job.Status,
		RunAt:       job.RunAt,
		Attempts:    job.Attempts,
		MaxAttempts: job.MaxAttempts,
		DedupeKey:   job.DedupeKey,
		LastError:   job.LastError,
		CompletedAt: job.CompletedAt,
		CreatedAt:   job.CreatedAt,
		UpdatedAt:   job.UpdatedAt,
		Payload:     job.Payload,
	})
}

type cancelJobsRequest struct {
	JobType   string `json:"job_type"   binding:"required"`
	DedupeKey string `json:"dedupe_key" binding:"required"`
	Prefix    bool   `json:"prefix"`
}

// Cancel removes pending jobs by dedupe key or prefix. Used when a
// participant leaves and their scheduled reminders must not fire.
func (h *JobHandler) Cancel(ctx *gin.Context) {
	var req cancelJobsRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	count, err := h.schedule.CancelPending(ctx.Request.Context(), req.JobType, req.DedupeKey, req.Prefix)
	if err != nil {
		h.logger.Error("cancel pending jobs", "job_type", req.JobType, "error", err)
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": errInternalServer})
		return
	}

	ctx.JSON(http.StatusOK, gin.H{"deleted": count})
}
