package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/hibiken/asynq"
	"github.com/huangang/timelogbot/internal/config"
	"github.com/huangang/timelogbot/pkg/logger"
)

const TaskTypeReport = "timelog:report"

// ErrRunAlreadyQueued is returned when a run for the same report date is
// still pending or running in the queue.
var ErrRunAlreadyQueued = errors.New("a report run for this date is already queued")

// ReportTask represents a report run request
type ReportTask struct {
	RunID       string    `json:"run_id"`
	Trigger     string    `json:"trigger"` // schedule, manual, slack
	ReportDate  string    `json:"report_date"`
	RequestedBy string    `json:"requested_by,omitempty"`
	RequestedAt time.Time `json:"requested_at"`
}

// TaskQueue defines the interface for report run processing
type TaskQueue interface {
	// Enqueue adds a task to the queue
	Enqueue(task *ReportTask) error
	// IsAsync returns true if queue processes tasks asynchronously
	IsAsync() bool
	// Close gracefully shuts down the queue
	Close() error
}

// Global task queue instance
var (
	globalTaskQueue TaskQueue
	taskQueueOnce   sync.Once
)

// InitTaskQueue initializes the global task queue based on config
func InitTaskQueue(cfg *config.Config) TaskQueue {
	taskQueueOnce.Do(func() {
		if cfg.Redis.Enabled {
			queue, err := NewAsyncQueue(&cfg.Redis)
			if err != nil {
				logger.Warnf("[TaskQueue] Redis unavailable, falling back to sync mode: %v", err)
				globalTaskQueue = NewSyncQueue()
			} else {
				logger.Infof("[TaskQueue] Async queue initialized with Redis at %s", cfg.Redis.Addr)
				globalTaskQueue = queue
			}
		} else {
			logger.Infof("[TaskQueue] Sync queue initialized (Redis disabled)")
			globalTaskQueue = NewSyncQueue()
		}
	})
	return globalTaskQueue
}

func redisClientOpt(cfg *config.RedisConfig) asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	}
}

// AsyncQueue implements TaskQueue using asynq (Redis-based)
type AsyncQueue struct {
	client    *asynq.Client
	inspector *asynq.Inspector
}

// NewAsyncQueue creates a new Redis-based async queue
func NewAsyncQueue(cfg *config.RedisConfig) (*AsyncQueue, error) {
	redisOpt := redisClientOpt(cfg)
	client := asynq.NewClient(redisOpt)

	// Verify the connection before committing to async mode
	inspector := asynq.NewInspector(redisOpt)
	if _, err := inspector.Queues(); err != nil {
		inspector.Close()
		client.Close()
		return nil, err
	}

	return &AsyncQueue{client: client, inspector: inspector}, nil
}

// reportTaskID keys queued runs by report date so a date is queued at most once
// while its run is pending or active.
func reportTaskID(task *ReportTask) string {
	if task.ReportDate == "" {
		return TaskTypeReport + ":" + task.RunID
	}
	return TaskTypeReport + ":" + task.ReportDate
}

// Enqueue adds a report task to the async queue. Runs retry their own remote
// calls, so the queue never re-runs a task.
func (q *AsyncQueue) Enqueue(task *ReportTask) error {
	payload, err := json.Marshal(task)
	if err != nil {
		return err
	}

	taskID := reportTaskID(task)
	t := asynq.NewTask(TaskTypeReport, payload)
	opts := []asynq.Option{
		asynq.Queue("default"),
		asynq.MaxRetry(0),
		asynq.TaskID(taskID),
	}

	info, err := q.client.Enqueue(t, opts...)
	if errors.Is(err, asynq.ErrTaskIDConflict) && q.clearFinished(taskID) {
		info, err = q.client.Enqueue(t, opts...)
	}
	if errors.Is(err, asynq.ErrTaskIDConflict) {
		logger.Warnf("[AsyncQueue] Run for %s already queued, run_id=%s rejected", task.ReportDate, task.RunID)
		return fmt.Errorf("%w: %s", ErrRunAlreadyQueued, task.ReportDate)
	}
	if err != nil {
		return err
	}

	logger.Infof("[AsyncQueue] Task enqueued: id=%s, queue=%s, run_id=%s", info.ID, info.Queue, task.RunID)
	return nil
}

// clearFinished deletes an archived or completed task holding taskID so the
// date can be run again. It reports whether the ID was freed.
func (q *AsyncQueue) clearFinished(taskID string) bool {
	info, err := q.inspector.GetTaskInfo("default", taskID)
	if err != nil {
		return false
	}
	if info.State != asynq.TaskStateArchived && info.State != asynq.TaskStateCompleted {
		return false
	}
	if err := q.inspector.DeleteTask("default", taskID); err != nil {
		logger.Warnf("[AsyncQueue] Failed to clear finished task %s: %v", taskID, err)
		return false
	}
	return true
}

// IsAsync returns true for async queue
func (q *AsyncQueue) IsAsync() bool {
	return true
}

// Close closes the async queue client
func (q *AsyncQueue) Close() error {
	return errors.Join(q.inspector.Close(), q.client.Close())
}

// SyncQueue implements TaskQueue with in-process processing (no Redis)
type SyncQueue struct {
	processor func(context.Context, *ReportTask) error
	wg        sync.WaitGroup
}

// NewSyncQueue creates a new synchronous queue
func NewSyncQueue() *SyncQueue {
	return &SyncQueue{}
}

// SetProcessor sets the function to process tasks
func (q *SyncQueue) SetProcessor(processor func(context.Context, *ReportTask) error) {
	q.processor = processor
}

// Enqueue starts the task in its own goroutine so HTTP triggers return immediately
func (q *SyncQueue) Enqueue(task *ReportTask) error {
	if q.processor == nil {
		logger.Warnf("[SyncQueue] No processor set, task %s dropped", task.RunID)
		return nil
	}

	q.wg.Add(1)
	go func() {
		defer q.wg.Done()
		if err := q.processor(context.Background(), task); err != nil {
			logger.Errorf("[SyncQueue] Task %s failed: %v", task.RunID, err)
		}
	}()

	return nil
}

// IsAsync returns false for sync queue
func (q *SyncQueue) IsAsync() bool {
	return false
}

// Close waits for in-flight tasks
func (q *SyncQueue) Close() error {
	q.wg.Wait()
	return nil
}
