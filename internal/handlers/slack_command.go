package handlers

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/huangang/timelogbot/internal/models"
	"github.com/huangang/timelogbot/internal/services"
	"github.com/huangang/timelogbot/pkg/logger"
	"github.com/huangang/timelogbot/pkg/response"
	"github.com/slack-go/slack"
)

const slashHelp = "Usage: `run` posts today's time log report, `status` shows the last run."

// SlackCommandHandler answers the slash command. Requests are verified with
// the app's signing secret.
type SlackCommandHandler struct {
	signingSecret string
	runner        ReportRunner
	queue         services.TaskQueue
}

func NewSlackCommandHandler(signingSecret string, runner ReportRunner, queue services.TaskQueue) *SlackCommandHandler {
	return &SlackCommandHandler{signingSecret: signingSecret, runner: runner, queue: queue}
}

func (h *SlackCommandHandler) Handle(c *gin.Context) {
	verifier, err := slack.NewSecretsVerifier(c.Request.Header, h.signingSecret)
	if err != nil {
		response.Unauthorized(c, "missing slack signature")
		return
	}

	c.Request.Body = io.NopCloser(io.TeeReader(c.Request.Body, &verifier))
	cmd, err := slack.SlashCommandParse(c.Request)
	if err != nil {
		response.BadRequest(c, "invalid slash command")
		return
	}
	if err := verifier.Ensure(); err != nil {
		logger.Warn().Err(err).Str("user", cmd.UserName).Msg("[SlackCommand] Signature mismatch")
		response.Unauthorized(c, "invalid slack signature")
		return
	}

	switch strings.ToLower(strings.TrimSpace(cmd.Text)) {
	case "run":
		task := h.runner.NewTask(services.TriggerSlack, cmd.UserName)
		err := h.queue.Enqueue(task)
		if errors.Is(err, services.ErrRunAlreadyQueued) {
			h.reply(c, fmt.Sprintf("A report for %s is already queued.", task.ReportDate))
			return
		}
		if err != nil {
			logger.Error().Err(err).Str("user", cmd.UserName).Msg("[SlackCommand] Failed to enqueue run")
			h.reply(c, "Could not start the report: "+err.Error())
			return
		}
		logger.Info().Str("user", cmd.UserName).Str("run_id", task.RunID).Msg("[SlackCommand] Run queued")
		h.reply(c, fmt.Sprintf("Report for %s queued (run `%s`).", task.ReportDate, task.RunID))
	case "status", "last":
		h.reply(c, describeRun(h.runner.LastRun()))
	default:
		h.reply(c, slashHelp)
	}
}

func (h *SlackCommandHandler) reply(c *gin.Context, text string) {
	c.JSON(200, &slack.Msg{ResponseType: slack.ResponseTypeEphemeral, Text: text})
}

func describeRun(s *models.RunSummary) string {
	if s == nil {
		return "No report has run yet."
	}
	switch {
	case s.Skipped != "":
		return fmt.Sprintf("Last run for %s was skipped (%s).", s.ReportDate, s.Skipped)
	case s.Error != "":
		return fmt.Sprintf("Last run for %s failed: %s", s.ReportDate, s.Error)
	}
	return fmt.Sprintf("Last run for %s: %d valid, %d invalid, %d zero. %d delivered, %d failed.",
		s.ReportDate, s.ValidCount, s.InvalidCount, s.ZeroCount, s.Delivered, s.Failed)
}
