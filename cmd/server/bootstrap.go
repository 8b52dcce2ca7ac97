package main

import (
	"fmt"
	"net/http"

	"github.com/huangang/timelogbot/internal/config"
	"github.com/huangang/timelogbot/internal/services"
	"github.com/huangang/timelogbot/internal/utils"
	"github.com/huangang/timelogbot/pkg/logger"
)

// appServices holds everything a command needs after startup.
type appServices struct {
	cfg           *config.Config
	reportService *services.TimeLogReportService
	taskQueue     services.TaskQueue
	worker        *services.Worker
}

// buildReportService wires the pipeline: tracker, enrichment, directory,
// roster, renderer and dispatcher.
func buildReportService(cfg *config.Config) (*services.TimeLogReportService, error) {
	holidays := services.NewHolidayService()
	if err := holidays.CheckCountry(cfg.Schedule.HolidayCountry); err != nil {
		return nil, err
	}

	directory, err := services.NewDirectoryService(&cfg.Slack)
	if err != nil {
		return nil, err
	}

	fetcher := services.NewFetcher(&http.Client{Timeout: cfg.Tracker.Timeout}, services.RetryPolicy{
		Delay:       cfg.Tracker.RetryDelay,
		MaxAttempts: cfg.Tracker.MaxAttempts,
	})
	tracker := services.NewTrackerClient(&cfg.Tracker, fetcher)

	return services.NewTimeLogReportService(cfg, services.ReportDeps{
		Tracker:    tracker,
		Enricher:   services.NewEnrichmentService(tracker, &cfg.Tracker),
		Directory:  directory,
		Roster:     services.NewRosterService(&cfg.Roster, nil),
		Renderer:   services.NewRenderer(&cfg.Report),
		Dispatcher: services.NewDispatcher(nil),
		Holidays:   holidays,
	})
}

// bootstrap initializes the long-running process: report service, run queue,
// worker and scheduler.
func bootstrap(cfg *config.Config) (*appServices, error) {
	utils.SetJWTSecret(cfg.JWT.Secret)

	reportService, err := buildReportService(cfg)
	if err != nil {
		return nil, fmt.Errorf("build report service: %w", err)
	}

	// Redis when enabled and reachable, otherwise in-process
	taskQueue := services.InitTaskQueue(cfg)
	if syncQueue, ok := taskQueue.(*services.SyncQueue); ok {
		syncQueue.SetProcessor(reportService.ProcessTask)
	}

	var worker *services.Worker
	if taskQueue.IsAsync() {
		worker = services.InitWorker(&cfg.Redis)
		if worker != nil {
			worker.SetProcessor(reportService.ProcessTask)
			if err := worker.Start(); err != nil {
				return nil, fmt.Errorf("start worker: %w", err)
			}
		}
	}

	if cfg.Schedule.Enabled {
		if err := reportService.StartScheduler(); err != nil {
			return nil, err
		}
	} else {
		logger.Info().Msg("[Bootstrap] Scheduler disabled")
	}

	return &appServices{
		cfg:           cfg,
		reportService: reportService,
		taskQueue:     taskQueue,
		worker:        worker,
	}, nil
}

// shutdown stops the scheduler first so no new run starts, then drains the queue.
func (s *appServices) shutdown() {
	s.reportService.StopScheduler()

	if s.worker != nil {
		s.worker.Stop()
	}
	if s.taskQueue != nil {
		if err := s.taskQueue.Close(); err != nil {
			logger.Warn().Err(err).Msg("[Bootstrap] Failed to close task queue")
		}
	}
	logger.Info().Msg("[Bootstrap] All services stopped")
}
