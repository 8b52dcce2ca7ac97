package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/huangang/timelogbot/pkg/logger"
	"github.com/slack-go/slack"
)

// NotificationAdapter sends a plain-text report to one IM platform's incoming webhook,
// wrapping it in the envelope that platform expects.
type NotificationAdapter interface {
	SendTextMessage(ctx context.Context, client *http.Client, webhook, message string) error
}

// getAdapter returns the appropriate notification adapter for the given platform
func getAdapter(platform string) NotificationAdapter {
	switch platform {
	case "", "slack":
		return &slackAdapter{}
	case "discord":
		return &discordAdapter{}
	case "teams":
		return &teamsAdapter{}
	default:
		return &genericAdapter{}
	}
}

func postJSONWithClient(ctx context.Context, client *http.Client, webhookURL string, payload interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	logger.Debug().Int("payload_length", len(body)).Msg("[Notification] POST webhook")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, webhookURL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook returned status %d: %s", resp.StatusCode, truncate(string(respBody), 200))
	}

	return nil
}

// slackAdapter posts {"text": ...} to a Slack incoming webhook.
type slackAdapter struct{}

func (a *slackAdapter) SendTextMessage(ctx context.Context, client *http.Client, webhook, message string) error {
	return slack.PostWebhookCustomHTTPContext(ctx, webhook, client, &slack.WebhookMessage{Text: message})
}

// discordAdapter handles Discord webhook notifications
type discordAdapter struct{}

func (a *discordAdapter) SendTextMessage(ctx context.Context, client *http.Client, webhook, message string) error {
	payload := map[string]interface{}{
		"content": message,
	}
	return postJSONWithClient(ctx, client, webhook, payload)
}

// teamsAdapter handles Microsoft Teams webhook notifications
type teamsAdapter struct{}

func buildAdaptiveCard(text string) map[string]interface{} {
	return map[string]interface{}{
		"type": "message",
		"attachments": []map[string]interface{}{
			{
				"contentType": "application/vnd.microsoft.card.adaptive",
				"content": map[string]interface{}{
					"type":    "AdaptiveCard",
					"$schema": "http://adaptivecards.io/schemas/adaptive-card.json",
					"version": "1.5",
					"body": []map[string]interface{}{
						{
							"type": "TextBlock",
							"text": text,
							"wrap": true,
						},
					},
				},
			},
		},
	}
}

func (a *teamsAdapter) SendTextMessage(ctx context.Context, client *http.Client, webhook, message string) error {
	return postJSONWithClient(ctx, client, webhook, buildAdaptiveCard(message))
}

// genericAdapter handles generic webhook notifications
type genericAdapter struct{}

func (a *genericAdapter) SendTextMessage(ctx context.Context, client *http.Client, webhook, message string) error {
	payload := map[string]interface{}{
		"type":    "timelog_report",
		"message": message,
	}
	return postJSONWithClient(ctx, client, webhook, payload)
}
