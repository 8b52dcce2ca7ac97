package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/huangang/timelogbot/internal/services"
)

// SchedulerState reports whether the cron trigger is registered.
type SchedulerState interface {
	SchedulerRunning() bool
}

// HealthHandler serves the liveness endpoint.
type HealthHandler struct {
	queue     services.TaskQueue
	scheduler SchedulerState
}

func NewHealthHandler(queue services.TaskQueue, scheduler SchedulerState) *HealthHandler {
	return &HealthHandler{queue: queue, scheduler: scheduler}
}

// CheckHealth returns the state of the queue and scheduler. The process being
// able to answer is what makes it healthy.
func (h *HealthHandler) CheckHealth(c *gin.Context) {
	queueMode := "sync"
	if h.queue != nil && h.queue.IsAsync() {
		queueMode = "async (Redis)"
	}

	scheduler := "disabled"
	if h.scheduler != nil && h.scheduler.SchedulerRunning() {
		scheduler = "running"
	}

	c.JSON(200, gin.H{
		"status":  "healthy",
		"service": "timelogbot",
		"components": gin.H{
			"queue_mode": queueMode,
			"scheduler":  scheduler,
		},
	})
}
