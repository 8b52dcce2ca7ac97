package handlers

import (
	"errors"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/huangang/timelogbot/internal/middleware"
	"github.com/huangang/timelogbot/internal/models"
	"github.com/huangang/timelogbot/internal/services"
	"github.com/huangang/timelogbot/pkg/logger"
	"github.com/huangang/timelogbot/pkg/response"
)

// ReportRunner is the part of the report service the HTTP layer needs.
type ReportRunner interface {
	NewTask(trigger, requestedBy string) *services.ReportTask
	LastRun() *models.RunSummary
}

type RunHandler struct {
	runner ReportRunner
	queue  services.TaskQueue
}

func NewRunHandler(runner ReportRunner, queue services.TaskQueue) *RunHandler {
	return &RunHandler{runner: runner, queue: queue}
}

type triggerRequest struct {
	Date string `json:"date"`
}

// Trigger queues a report run. An optional {"date":"YYYY-MM-DD"} body reruns
// a past day.
func (h *RunHandler) Trigger(c *gin.Context) {
	var req triggerRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, "invalid request body")
			return
		}
	}

	task := h.runner.NewTask(services.TriggerManual, middleware.GetSubject(c))
	if req.Date != "" {
		if _, err := time.Parse("2006-01-02", req.Date); err != nil {
			response.BadRequest(c, "date must be YYYY-MM-DD")
			return
		}
		task.ReportDate = req.Date
	}

	if err := h.queue.Enqueue(task); err != nil {
		if errors.Is(err, services.ErrRunAlreadyQueued) {
			response.Error(c, response.NewConflict("a report run for "+task.ReportDate+" is already queued"))
			return
		}
		logger.Error().Err(err).Str("run_id", task.RunID).Msg("[RunHandler] Failed to enqueue run")
		response.Error(c, err)
		return
	}

	response.Accepted(c, task)
}

// Last returns the most recent run summary.
func (h *RunHandler) Last(c *gin.Context) {
	summary := h.runner.LastRun()
	if summary == nil {
		response.NotFound(c, "no run yet")
		return
	}
	response.Success(c, summary)
}
