package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/partner-up-dev/mvp-HA-sub000/internal/domain"
	"github.com/partner-up-dev/mvp-HA-sub000/internal/outbox"
	"github.com/partner-up-dev/mvp-HA-sub000/internal/scheduler"
)

type TickHandler struct {
	runner  *scheduler.Runner
	auditor *outbox.Writer
	logger  *slog.Logger
}

func NewTickHandler(runner *scheduler.Runner, auditor *outbox.Writer, logger *slog.Logger) *TickHandler {
	return &TickHandler{
		runner:  runner,
		auditor: auditor,
		logger:  logger.With("component", "tick_handler"),
	}
}

type tickRequest struct {
	BatchSize  int   `json:"batch_size"  binding:"omitempty,min=1,max=500"`
	MaxBatches int   `json:"max_batches" binding:"omitempty,min=1,max=100"`
	BudgetMS   int64 `json:"budget_ms"   binding:"omitempty,min=100,max=300000"`
	LeaseMS    int64 `json:"lease_ms"    binding:"omitempty,min=1000,max=900000"`
}

// Tick runs one cycle and returns the summary. Per-job failures still yield
// 200; only an infrastructure failure (claim transaction error) is a 5xx.
func (h *TickHandler) Tick(ctx *gin.Context) {
	var req tickRequest
	if ctx.Request.ContentLength > 0 {
		if err := ctx.ShouldBindJSON(&req); err != nil {
			ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	summary, err := h.runner.RunDueJobs(ctx.Request.Context(), scheduler.RunOptions{
		Source:     "external-trigger",
		BatchSize:  req.BatchSize,
		MaxBatches: req.MaxBatches,
		Budget:     time.Duration(req.BudgetMS) * time.Millisecond,
		Lease:      time.Duration(req.LeaseMS) * time.Millisecond,
	})
	if err != nil {
		h.logger.Error("tick run failed", "error", err)
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": errInternalServer})
		return
	}

	h.auditor.WriteAsync(ctx.Request.Context(), "scheduler.tick.completed", "scheduler", h.runner.InstanceID(), domain.Payload{
		"source":    summary.Source,
		"claimed":   summary.Claimed,
		"succeeded": summary.Succeeded,
		"retried":   summary.Retried,
		"failed":    summary.Failed,
		"missed":    summary.Missed,
	})

	ctx.JSON(http.StatusOK, summary)
}

func (h *TickHandler) Status(ctx *gin.Context) {
	ctx.JSON(http.StatusOK, h.runner.Status())
}
