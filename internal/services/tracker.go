package services

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/huangang/timelogbot/internal/config"
	"github.com/huangang/timelogbot/internal/models"
)

// TrackerClient reads time logs, users and tasks from the Wrike v4 API.
// https://developers.wrike.com/api/v4/timelogs
type TrackerClient struct {
	baseURL string
	token   string
	fetcher *Fetcher
}

func NewTrackerClient(cfg *config.TrackerConfig, fetcher *Fetcher) *TrackerClient {
	return &TrackerClient{
		baseURL: strings.TrimSuffix(cfg.BaseURL, "/"),
		token:   cfg.Token,
		fetcher: fetcher,
	}
}

type timeLogsResponse struct {
	Data []models.TimeLogRecord `json:"data"`
}

type userResponse struct {
	Data []struct {
		ID       string `json:"id"`
		Profiles []struct {
			Email string `json:"email"`
		} `json:"profiles"`
	} `json:"data"`
}

func (r *userResponse) Validate() error {
	if len(r.Data) == 0 {
		return fmt.Errorf("user: %w: empty data", ErrMalformedResponse)
	}
	return nil
}

type taskResponse struct {
	Data []struct {
		ID    string `json:"id"`
		Title string `json:"title"`
	} `json:"data"`
}

func (r *taskResponse) Validate() error {
	if len(r.Data) == 0 {
		return fmt.Errorf("task: %w: empty data", ErrMalformedResponse)
	}
	return nil
}

// TimeLogs returns every time log tracked on date.
func (c *TrackerClient) TimeLogs(ctx context.Context, date time.Time) ([]models.TimeLogRecord, error) {
	query := url.Values{}
	query.Set("trackedDate", fmt.Sprintf(`{"equal":"%s"}`, date.Format("2006-01-02")))

	var resp timeLogsResponse
	if err := c.fetcher.Get(ctx, c.baseURL+"/timelogs", query, c.token, &resp); err != nil {
		return nil, err
	}
	return resp.Data, nil
}

// UserEmail resolves an actor ID to its primary profile email. A user without
// profiles resolves to an empty string.
func (c *TrackerClient) UserEmail(ctx context.Context, userID string) (string, error) {
	var resp userResponse
	if err := c.fetcher.Get(ctx, c.baseURL+"/users/"+url.PathEscape(userID), nil, c.token, &resp); err != nil {
		return "", err
	}
	if len(resp.Data[0].Profiles) == 0 {
		return "", nil
	}
	return resp.Data[0].Profiles[0].Email, nil
}

// TaskTitle resolves a work item ID to its title.
func (c *TrackerClient) TaskTitle(ctx context.Context, taskID string) (string, error) {
	var resp taskResponse
	if err := c.fetcher.Get(ctx, c.baseURL+"/tasks/"+url.PathEscape(taskID), nil, c.token, &resp); err != nil {
		return "", err
	}
	return resp.Data[0].Title, nil
}
