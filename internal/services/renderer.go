package services

import (
	"fmt"
	"maps"
	"math"
	"slices"
	"strconv"
	"strings"

	"github.com/huangang/timelogbot/internal/config"
	"github.com/huangang/timelogbot/internal/models"
	"github.com/slack-go/slack"
)

// Renderer builds the per-member Slack blocks and the all-hands summary text.
type Renderer struct {
	cfg config.ReportConfig
}

func NewRenderer(cfg *config.ReportConfig) *Renderer {
	return &Renderer{cfg: *cfg}
}

// Classify applies the configured thresholds to email's report entry.
func (r *Renderer) Classify(report models.EmailReport, email string) models.Category {
	return Classify(report, email, r.cfg.MinHours, r.cfg.MaxHours)
}

// Icon returns the status icon for a category.
func (r *Renderer) Icon(c models.Category) string {
	switch c {
	case models.CategoryValid:
		return r.cfg.IconValid
	case models.CategoryInvalid:
		return r.cfg.IconInvalid
	default:
		return r.cfg.IconZero
	}
}

// RenderMember builds the block message for one roster member. Detail sections
// are appended in report order only when showDetail is set.
func (r *Renderer) RenderMember(report models.EmailReport, email, mention string, showDetail bool) []slack.Block {
	entries := report[email]
	icon := r.Icon(r.Classify(report, email))

	blocks := []slack.Block{
		slack.NewDividerBlock(),
		slack.NewContextBlock("",
			mrkdwn(strings.TrimSpace(mention+" "+icon)),
		),
		slack.NewSectionBlock(nil, []*slack.TextBlockObject{
			mrkdwn(fmt.Sprintf("*Tickets* (%d)", len(entries))),
			mrkdwn(fmt.Sprintf("*Spent Time* (%sh)", FormatHours(report.Total(email)))),
		}, nil),
	}

	if !showDetail {
		return blocks
	}

	for _, entry := range entries {
		blocks = append(blocks, slack.NewSectionBlock(nil, []*slack.TextBlockObject{
			mrkdwn(escapeMrkdwn(entry.Title)),
			mrkdwn(FormatHours(entry.SpentTime) + "h"),
		}, nil))
	}
	return blocks
}

// RenderAllHands partitions every directory member into valid, invalid and zero
// and renders one text block. Empty sections are omitted; an empty string means
// there is nothing to send.
func (r *Renderer) RenderAllHands(report models.EmailReport, directory models.Directory) string {
	var valid, invalid, zero []string

	for _, name := range slices.Sorted(maps.Keys(directory)) {
		email := name + r.cfg.MailSuffix
		mention := directory.Mention(name)

		switch r.Classify(report, email) {
		case models.CategoryValid:
			valid = append(valid, mention)
		case models.CategoryInvalid:
			invalid = append(invalid, fmt.Sprintf("%s (%s)", mention, FormatHours(report.Total(email))))
		default:
			zero = append(zero, mention)
		}
	}

	var sections []string
	if len(valid) > 0 {
		sections = append(sections, r.section(models.CategoryValid, "VALID", valid))
	}
	if len(invalid) > 0 {
		sections = append(sections, r.section(models.CategoryInvalid, "INVALID", invalid))
	}
	if len(zero) > 0 {
		sections = append(sections, r.section(models.CategoryZero, "ZERO", zero))
	}
	return strings.Join(sections, "\n\n")
}

func (r *Renderer) section(c models.Category, title string, lines []string) string {
	var sb strings.Builder
	sb.WriteString(strings.TrimSpace(r.Icon(c) + " *" + title + "*"))
	for _, line := range lines {
		sb.WriteString("\n")
		sb.WriteString(line)
	}
	return sb.String()
}

// FormatHours renders hours in the shortest form, rounded to two decimals (5, 1.5, 0.25).
func FormatHours(h float64) string {
	return strconv.FormatFloat(math.Round(h*100)/100, 'f', -1, 64)
}

func mrkdwn(text string) *slack.TextBlockObject {
	return slack.NewTextBlockObject(slack.MarkdownType, text, false, false)
}

var mrkdwnEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")

func escapeMrkdwn(s string) string {
	return mrkdwnEscaper.Replace(s)
}
