package services

import (
	"context"
	"net/http"

	"github.com/huangang/timelogbot/internal/config"
	"github.com/huangang/timelogbot/internal/models"
	"github.com/huangang/timelogbot/pkg/logger"
)

// RosterService loads the list of report recipients from the roster endpoint.
type RosterService struct {
	url     string
	fetcher *Fetcher
}

type rosterResponse struct {
	Content []models.RosterMember `json:"content"`
}

func NewRosterService(cfg *config.RosterConfig, client *http.Client) *RosterService {
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	// A single attempt: a broken roster degrades to no per-member reports.
	return &RosterService{
		url:     cfg.URL,
		fetcher: NewFetcher(client, RetryPolicy{MaxAttempts: 1}),
	}
}

// Load returns the configured recipients. Any failure is logged and yields an empty roster.
func (s *RosterService) Load(ctx context.Context) []models.RosterMember {
	if s.url == "" {
		return nil
	}

	var resp rosterResponse
	if err := s.fetcher.Get(ctx, s.url, nil, "", &resp); err != nil {
		logger.Error().Err(err).Msg("[Roster] Failed to load roster, continuing without per-member reports")
		return nil
	}

	members := resp.Content[:0]
	for _, m := range resp.Content {
		if m.Email == "" {
			continue
		}
		members = append(members, m)
	}

	logger.Info().Int("members", len(members)).Msg("[Roster] Roster loaded")
	return members
}
