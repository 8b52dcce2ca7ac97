package services

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/huangang/timelogbot/internal/config"
	"github.com/huangang/timelogbot/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeLookup struct {
	emails map[string]string
	titles map[string]string
	err    error

	mu       sync.Mutex
	inFlight int
	peak     int
	calls    atomic.Int32
}

func (f *fakeLookup) track() func() {
	f.calls.Add(1)
	f.mu.Lock()
	f.inFlight++
	if f.inFlight > f.peak {
		f.peak = f.inFlight
	}
	f.mu.Unlock()
	time.Sleep(2 * time.Millisecond)
	return func() {
		f.mu.Lock()
		f.inFlight--
		f.mu.Unlock()
	}
}

func (f *fakeLookup) UserEmail(ctx context.Context, userID string) (string, error) {
	defer f.track()()
	return f.emails[userID], nil
}

func (f *fakeLookup) TaskTitle(ctx context.Context, taskID string) (string, error) {
	defer f.track()()
	if f.err != nil {
		return "", f.err
	}
	return f.titles[taskID], nil
}

func TestEnrichmentService_Enrich(t *testing.T) {
	lookup := &fakeLookup{
		emails: map[string]string{"u1": "a@x.com"},
		titles: map[string]string{"t1": "Fix bug", "t2": "Write docs"},
	}

	report, err := NewEnrichmentService(lookup, nil).Enrich(context.Background(), models.AggregatedLog{
		"u1": {"t1": 5, "t2": 1},
	})
	require.NoError(t, err)

	assert.Equal(t, models.EmailReport{
		"a@x.com": {
			{Title: "Fix bug", SpentTime: 5},
			{Title: "Write docs", SpentTime: 1},
		},
	}, report)
	assert.Equal(t, 6.0, report.Total("a@x.com"))
	assert.EqualValues(t, 3, lookup.calls.Load())
}

func TestEnrichmentService_MergesSameEmail(t *testing.T) {
	lookup := &fakeLookup{
		emails: map[string]string{"u1": "a@x.com", "u2": "a@x.com"},
		titles: map[string]string{"t1": "Fix bug", "t2": "Write docs"},
	}

	report, err := NewEnrichmentService(lookup, nil).Enrich(context.Background(), models.AggregatedLog{
		"u1": {"t1": 2},
		"u2": {"t2": 3},
	})
	require.NoError(t, err)

	require.Len(t, report["a@x.com"], 2)
	assert.Equal(t, "Fix bug", report["a@x.com"][0].Title)
	assert.Equal(t, "Write docs", report["a@x.com"][1].Title)
	assert.Equal(t, 5.0, report.Total("a@x.com"))
}

func TestEnrichmentService_DropsUsersWithoutEmail(t *testing.T) {
	lookup := &fakeLookup{
		emails: map[string]string{"u1": "a@x.com"},
		titles: map[string]string{"t1": "Fix bug"},
	}

	report, err := NewEnrichmentService(lookup, nil).Enrich(context.Background(), models.AggregatedLog{
		"u1":     {"t1": 2},
		"ghost1": {"t1": 4},
	})
	require.NoError(t, err)
	assert.Len(t, report, 1)
	assert.True(t, report.Has("a@x.com"))
}

func TestEnrichmentService_Empty(t *testing.T) {
	report, err := NewEnrichmentService(&fakeLookup{}, nil).Enrich(context.Background(), models.AggregatedLog{})
	require.NoError(t, err)
	assert.Empty(t, report)
}

func TestEnrichmentService_ConcurrencyCap(t *testing.T) {
	lookup := &fakeLookup{
		emails: map[string]string{"u1": "a@x.com", "u2": "b@x.com", "u3": "c@x.com"},
		titles: map[string]string{"t1": "A", "t2": "B", "t3": "C"},
	}
	svc := NewEnrichmentService(lookup, &config.TrackerConfig{Concurrency: 2})

	_, err := svc.Enrich(context.Background(), models.AggregatedLog{
		"u1": {"t1": 1, "t2": 1, "t3": 1},
		"u2": {"t1": 1, "t2": 1},
		"u3": {"t3": 1},
	})
	require.NoError(t, err)
	assert.LessOrEqual(t, lookup.peak, 2)
	assert.EqualValues(t, 9, lookup.calls.Load())
}

func TestEnrichmentService_PropagatesError(t *testing.T) {
	lookup := &fakeLookup{
		emails: map[string]string{"u1": "a@x.com"},
		err:    errors.New("tracker unavailable"),
	}

	_, err := NewEnrichmentService(lookup, nil).Enrich(context.Background(), models.AggregatedLog{"u1": {"t1": 1}})
	assert.EqualError(t, err, "tracker unavailable")
}

func TestNewEnrichmentService_RateLimit(t *testing.T) {
	svc := NewEnrichmentService(&fakeLookup{}, &config.TrackerConfig{RateLimit: 0.5})
	require.NotNil(t, svc.limiter)
	assert.Equal(t, 1, svc.limiter.Burst())
	assert.Nil(t, svc.sem)
}
