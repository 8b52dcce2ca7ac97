package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/huangang/timelogbot/internal/config"
	"github.com/huangang/timelogbot/internal/models"
	"github.com/huangang/timelogbot/pkg/logger"
	"github.com/slack-go/slack"
)

var ErrMissingSlackCredentials = errors.New("slack bot token and signing secret cannot be empty")

// SlackUserLister lists every workspace member.
type SlackUserLister interface {
	ListUsers(ctx context.Context) ([]slack.User, error)
}

// slackUserPager walks users.list page by page. Unlike GetUsersContext it
// does not sleep through rate limits: a *slack.RateLimitedError is returned
// to the caller.
type slackUserPager struct {
	client *slack.Client
}

func (p slackUserPager) ListUsers(ctx context.Context) ([]slack.User, error) {
	var (
		users []slack.User
		err   error
	)
	page := p.client.GetUsersPaginated()
	for {
		page, err = page.Next(ctx)
		if page.Done(err) {
			return users, nil
		}
		if err != nil {
			return nil, err
		}
		users = append(users, page.Users...)
	}
}

// DirectoryService resolves Slack workspace members into a name -> user ID directory.
type DirectoryService struct {
	client SlackUserLister
	ignore map[string]struct{}
}

// NewDirectoryService builds a Slack-backed directory. Missing credentials are fatal.
func NewDirectoryService(cfg *config.SlackConfig) (*DirectoryService, error) {
	if cfg.BotToken == "" || cfg.SigningSecret == "" {
		return nil, ErrMissingSlackCredentials
	}

	var opts []slack.Option
	if cfg.APIURL != "" {
		opts = append(opts, slack.OptionAPIURL(cfg.APIURL))
	}
	return NewDirectoryServiceWithClient(slackUserPager{client: slack.New(cfg.BotToken, opts...)}, cfg.Ignore), nil
}

// NewDirectoryServiceWithClient wires an existing Slack client.
func NewDirectoryServiceWithClient(client SlackUserLister, ignore []string) *DirectoryService {
	set := make(map[string]struct{}, len(ignore))
	for _, name := range ignore {
		set[name] = struct{}{}
	}
	return &DirectoryService{client: client, ignore: set}
}

// Resolve lists the workspace members once and keeps human, active, non-ignored accounts
// keyed by their short account name. Failures, rate limits included, are returned as-is.
func (s *DirectoryService) Resolve(ctx context.Context) (models.Directory, error) {
	logger.Info().Msg("[Directory] Listing workspace members...")

	users, err := s.client.ListUsers(ctx)
	if err != nil {
		return nil, fmt.Errorf("slack users.list: %w", err)
	}

	directory := make(models.Directory, len(users))
	for _, u := range users {
		if u.IsBot || u.Deleted {
			continue
		}
		if _, ignored := s.ignore[u.Name]; ignored {
			continue
		}
		directory[u.Name] = u.ID
	}

	logger.Info().
		Int("members", len(users)).
		Int("resolvable", len(directory)).
		Msg("[Directory] Workspace members resolved")
	return directory, nil
}
