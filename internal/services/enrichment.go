package services

import (
	"context"
	"maps"
	"slices"

	"github.com/huangang/timelogbot/internal/config"
	"github.com/huangang/timelogbot/internal/models"
	"github.com/huangang/timelogbot/pkg/logger"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// TrackerLookup resolves tracker identifiers into readable values.
type TrackerLookup interface {
	UserEmail(ctx context.Context, userID string) (string, error)
	TaskTitle(ctx context.Context, taskID string) (string, error)
}

// EnrichmentService turns an AggregatedLog into an EmailReport.
type EnrichmentService struct {
	tracker TrackerLookup
	sem     *semaphore.Weighted // nil = unbounded
	limiter *rate.Limiter       // nil = no throttling
}

func NewEnrichmentService(tracker TrackerLookup, cfg *config.TrackerConfig) *EnrichmentService {
	s := &EnrichmentService{tracker: tracker}
	if cfg != nil && cfg.Concurrency > 0 {
		s.sem = semaphore.NewWeighted(int64(cfg.Concurrency))
	}
	if cfg != nil && cfg.RateLimit > 0 {
		burst := int(cfg.RateLimit)
		if burst < 1 {
			burst = 1
		}
		s.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}
	return s
}

type actorResult struct {
	userID  string
	email   string
	entries []models.EnrichedEntry
}

// Enrich resolves every actor to an email and every work item to a title, all
// actors concurrently and all work items of an actor concurrently. It returns
// only after every lookup has finished. Actors resolving to the same email have
// their entries concatenated.
func (s *EnrichmentService) Enrich(ctx context.Context, aggregated models.AggregatedLog) (models.EmailReport, error) {
	userIDs := slices.Sorted(maps.Keys(aggregated))
	results := make([]actorResult, len(userIDs))

	g, gctx := errgroup.WithContext(ctx)
	for i, userID := range userIDs {
		g.Go(func() error {
			res, err := s.enrichActor(gctx, userID, aggregated[userID])
			if err != nil {
				return err
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	report := make(models.EmailReport, len(results))
	for _, r := range results {
		if r.email == "" {
			logger.Warn().
				Str("user_id", r.userID).
				Int("tasks", len(r.entries)).
				Msg("[Enrichment] User has no profile email, entries dropped")
			continue
		}
		report.Merge(r.email, r.entries)
	}
	return report, nil
}

func (s *EnrichmentService) enrichActor(ctx context.Context, userID string, tasks map[string]float64) (actorResult, error) {
	taskIDs := slices.Sorted(maps.Keys(tasks))
	res := actorResult{
		userID:  userID,
		entries: make([]models.EnrichedEntry, len(taskIDs)),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		release, err := s.acquire(gctx)
		if err != nil {
			return err
		}
		defer release()

		email, err := s.tracker.UserEmail(gctx, userID)
		if err != nil {
			return err
		}
		res.email = email
		return nil
	})

	for i, taskID := range taskIDs {
		g.Go(func() error {
			release, err := s.acquire(gctx)
			if err != nil {
				return err
			}
			defer release()

			title, err := s.tracker.TaskTitle(gctx, taskID)
			if err != nil {
				return err
			}
			res.entries[i] = models.EnrichedEntry{Title: title, SpentTime: tasks[taskID]}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return actorResult{}, err
	}
	return res, nil
}

func (s *EnrichmentService) acquire(ctx context.Context) (func(), error) {
	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}
	if s.sem == nil {
		return func() {}, nil
	}
	if err := s.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	return func() { s.sem.Release(1) }, nil
}
