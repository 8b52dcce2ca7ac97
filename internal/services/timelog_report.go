package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/huangang/timelogbot/internal/config"
	"github.com/huangang/timelogbot/internal/models"
	"github.com/huangang/timelogbot/pkg/logger"
	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"
)

const (
	TriggerSchedule = "schedule"
	TriggerManual   = "manual"
	TriggerSlack    = "slack"
	TriggerCLI      = "cli"

	SkippedHoliday    = "holiday"
	SkippedInProgress = "in_progress"

	reportDateLayout = "2006-01-02"
	allHandsName     = "all-hands"
)

var ErrRunInProgress = errors.New("a report run is already in progress")

type TimeLogSource interface {
	TimeLogs(ctx context.Context, date time.Time) ([]models.TimeLogRecord, error)
}

type Enricher interface {
	Enrich(ctx context.Context, aggregated models.AggregatedLog) (models.EmailReport, error)
}

type DirectoryResolver interface {
	Resolve(ctx context.Context) (models.Directory, error)
}

type RosterLoader interface {
	Load(ctx context.Context) []models.RosterMember
}

type DeliverySink interface {
	DeliverAll(ctx context.Context, deliveries []Delivery) (delivered, failed int)
}

type WorkdayChecker interface {
	IsWorkday(t time.Time, country string) bool
}

// ReportDeps bundles the collaborators of one pipeline.
type ReportDeps struct {
	Tracker    TimeLogSource
	Enricher   Enricher
	Directory  DirectoryResolver
	Roster     RosterLoader
	Renderer   *Renderer
	Dispatcher DeliverySink
	Holidays   WorkdayChecker
}

type TimeLogReportService struct {
	cfg  *config.Config
	loc  *time.Location
	deps ReportDeps

	cronScheduler  *cron.Cron
	currentEntryID cron.EntryID

	runMu   sync.Mutex
	mu      sync.RWMutex
	lastRun *models.RunSummary

	now func() time.Time
}

func NewTimeLogReportService(cfg *config.Config, deps ReportDeps) (*TimeLogReportService, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, fmt.Errorf("report timezone: %w", err)
	}
	if deps.Renderer == nil {
		deps.Renderer = NewRenderer(&cfg.Report)
	}
	if deps.Holidays == nil {
		deps.Holidays = NewHolidayService()
	}
	return &TimeLogReportService{
		cfg:  cfg,
		loc:  loc,
		deps: deps,
		now:  time.Now,
	}, nil
}

func (s *TimeLogReportService) StartScheduler() error {
	s.cronScheduler = cron.New(
		cron.WithLocation(s.loc),
		cron.WithLogger(logger.Cron()),
		cron.WithChain(cron.Recover(logger.Cron()), cron.SkipIfStillRunning(logger.Cron())),
	)

	entryID, err := s.cronScheduler.AddFunc(s.cfg.Schedule.Cron, s.scheduledRun)
	if err != nil {
		return fmt.Errorf("add cron job %q: %w", s.cfg.Schedule.Cron, err)
	}
	s.currentEntryID = entryID

	s.cronScheduler.Start()
	logger.Info().
		Str("cron", s.cfg.Schedule.Cron).
		Str("timezone", s.loc.String()).
		Time("next", s.cronScheduler.Entry(entryID).Next).
		Msg("[TimeLogReport] Scheduler started")
	return nil
}

// StopScheduler stops new triggers and waits for a running job to return.
func (s *TimeLogReportService) StopScheduler() {
	if s.cronScheduler == nil {
		return
	}
	<-s.cronScheduler.Stop().Done()
	logger.Infof("[TimeLogReport] Scheduler stopped")
}

// SchedulerRunning reports whether the cron scheduler has been started.
func (s *TimeLogReportService) SchedulerRunning() bool {
	return s.cronScheduler != nil && s.currentEntryID != 0
}

func (s *TimeLogReportService) scheduledRun() {
	if _, err := s.RunScheduled(context.Background()); err != nil {
		logger.Error().Err(err).Msg("[TimeLogReport] Scheduled run failed")
	}
}

// RunScheduled applies the holiday check and settle delay before running.
func (s *TimeLogReportService) RunScheduled(ctx context.Context) (*models.RunSummary, error) {
	today := s.now().In(s.loc)

	if !s.deps.Holidays.IsWorkday(today, s.cfg.Schedule.HolidayCountry) {
		summary := s.newSummary(&ReportTask{Trigger: TriggerSchedule}, today)
		summary.Skipped = SkippedHoliday
		s.finish(summary, nil)
		logger.Info().
			Str("date", summary.ReportDate).
			Str("country", s.cfg.Schedule.HolidayCountry).
			Msg("[TimeLogReport] Not a workday, skipping report")
		return summary, nil
	}

	if delay := s.cfg.Schedule.SettleDelay; delay > 0 {
		logger.Debug().Dur("delay", delay).Msg("[TimeLogReport] Waiting for time logs to settle")
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}

	return s.RunTask(ctx, &ReportTask{Trigger: TriggerSchedule, ReportDate: today.Format(reportDateLayout)})
}

// Run executes the pipeline for today.
func (s *TimeLogReportService) Run(ctx context.Context, trigger string) (*models.RunSummary, error) {
	return s.RunTask(ctx, &ReportTask{Trigger: trigger})
}

// ProcessTask is the queue processor.
func (s *TimeLogReportService) ProcessTask(ctx context.Context, task *ReportTask) error {
	_, err := s.RunTask(ctx, task)
	if errors.Is(err, ErrRunInProgress) {
		logger.Warn().Str("run_id", task.RunID).Msg("[TimeLogReport] Run already in progress, task dropped")
		return nil
	}
	return err
}

// NewTask builds a queueable request for today's report.
func (s *TimeLogReportService) NewTask(trigger, requestedBy string) *ReportTask {
	now := s.now()
	return &ReportTask{
		RunID:       uuid.New().String(),
		Trigger:     trigger,
		ReportDate:  now.In(s.loc).Format(reportDateLayout),
		RequestedBy: requestedBy,
		RequestedAt: now,
	}
}

// RunTask executes one full pipeline run: fetch, aggregate, enrich, render and
// deliver. Only one run executes at a time per process.
func (s *TimeLogReportService) RunTask(ctx context.Context, task *ReportTask) (*models.RunSummary, error) {
	date := s.now().In(s.loc)
	if task.ReportDate != "" {
		parsed, err := time.ParseInLocation(reportDateLayout, task.ReportDate, s.loc)
		if err != nil {
			return nil, fmt.Errorf("invalid report date %q: %w", task.ReportDate, err)
		}
		date = parsed
	}

	summary := s.newSummary(task, date)

	if !s.runMu.TryLock() {
		summary.Skipped = SkippedInProgress
		return summary, ErrRunInProgress
	}
	defer s.runMu.Unlock()

	log := logger.With("TimeLogReport").With().Str("run_id", summary.RunID).Logger()
	log.Info().Str("trigger", summary.Trigger).Str("date", summary.ReportDate).Msg("[TimeLogReport] Run started")

	err := s.execute(ctx, date, summary)
	s.finish(summary, err)

	if err != nil {
		log.Error().Err(err).Msg("[TimeLogReport] Run failed")
		return summary, err
	}

	log.Info().
		Int("records", summary.Records).
		Int("members", summary.Members).
		Int("valid", summary.ValidCount).
		Int("invalid", summary.InvalidCount).
		Int("zero", summary.ZeroCount).
		Int("delivered", summary.Delivered).
		Int("failed", summary.Failed).
		Msg("[TimeLogReport] Run finished")
	return summary, nil
}

func (s *TimeLogReportService) execute(ctx context.Context, date time.Time, summary *models.RunSummary) error {
	records, err := s.deps.Tracker.TimeLogs(ctx, date)
	if err != nil {
		return fmt.Errorf("fetch time logs: %w", err)
	}
	aggregated := Aggregate(records)

	summary.Records = len(records)
	summary.Actors = len(aggregated)
	summary.Tasks = aggregated.TaskCount()

	var (
		roster    []models.RosterMember
		directory models.Directory
		report    models.EmailReport
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		roster = s.deps.Roster.Load(gctx)
		return nil
	})
	g.Go(func() error {
		var err error
		directory, err = s.deps.Directory.Resolve(gctx)
		if err != nil {
			return fmt.Errorf("resolve directory: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		report, err = s.deps.Enricher.Enrich(gctx, aggregated)
		if err != nil {
			return fmt.Errorf("enrich: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return err
	}

	summary.Members = len(roster)
	s.countCategories(summary, report, directory)

	deliveries := s.buildDeliveries(report, directory, roster)
	summary.Delivered, summary.Failed = s.deps.Dispatcher.DeliverAll(ctx, deliveries)
	return nil
}

func (s *TimeLogReportService) buildDeliveries(report models.EmailReport, directory models.Directory, roster []models.RosterMember) []Delivery {
	renderer := s.deps.Renderer
	deliveries := make([]Delivery, 0, len(roster)+1)

	for _, member := range roster {
		mention := directory.Mention(member.DisplayName(s.cfg.Report.MailSuffix))
		deliveries = append(deliveries, Delivery{
			Recipient: member.Email,
			Webhook:   member.Webhook,
			Blocks:    renderer.RenderMember(report, member.Email, mention, member.ShowDetail),
		})
	}

	deliveries = append(deliveries, Delivery{
		Recipient: allHandsName,
		Webhook:   s.cfg.Report.AllHandsWebhook,
		Platform:  s.cfg.Report.AllHandsPlatform,
		Text:      renderer.RenderAllHands(report, directory),
	})
	return deliveries
}

func (s *TimeLogReportService) countCategories(summary *models.RunSummary, report models.EmailReport, directory models.Directory) {
	for name := range directory {
		switch s.deps.Renderer.Classify(report, name+s.cfg.Report.MailSuffix) {
		case models.CategoryValid:
			summary.ValidCount++
		case models.CategoryInvalid:
			summary.InvalidCount++
		default:
			summary.ZeroCount++
		}
	}
}

func (s *TimeLogReportService) newSummary(task *ReportTask, date time.Time) *models.RunSummary {
	runID := task.RunID
	if runID == "" {
		runID = uuid.New().String()
	}
	return &models.RunSummary{
		RunID:      runID,
		Trigger:    task.Trigger,
		ReportDate: date.Format(reportDateLayout),
		StartedAt:  s.now(),
	}
}

func (s *TimeLogReportService) finish(summary *models.RunSummary, err error) {
	finished := s.now()
	summary.FinishedAt = &finished
	if err != nil {
		summary.Error = err.Error()
	}

	s.mu.Lock()
	s.lastRun = summary
	s.mu.Unlock()
}

// LastRun returns a copy of the most recent summary, or nil before the first run.
func (s *TimeLogReportService) LastRun() *models.RunSummary {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.lastRun == nil {
		return nil
	}
	summary := *s.lastRun
	return &summary
}
