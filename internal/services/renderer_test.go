package services

import (
	"testing"

	"github.com/huangang/timelogbot/internal/config"
	"github.com/huangang/timelogbot/internal/models"
	"github.com/slack-go/slack"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRenderer() *Renderer {
	return NewRenderer(&config.ReportConfig{
		MinHours:    8,
		MaxHours:    15,
		MailSuffix:  "@x.com",
		IconValid:   ":ok:",
		IconInvalid: ":warn:",
		IconZero:    ":sos:",
	})
}

func TestRenderer_RenderMember(t *testing.T) {
	report := models.EmailReport{
		"alice@x.com": {
			{Title: "Fix bug", SpentTime: 5},
			{Title: "Write <docs> & notes", SpentTime: 1},
		},
	}
	r := newTestRenderer()

	t.Run("summary only", func(t *testing.T) {
		blocks := r.RenderMember(report, "alice@x.com", "<@U1>", false)
		require.Len(t, blocks, 3)

		assert.Equal(t, slack.MBTDivider, blocks[0].BlockType())

		header, ok := blocks[1].(*slack.ContextBlock)
		require.True(t, ok)
		text, ok := header.ContextElements.Elements[0].(*slack.TextBlockObject)
		require.True(t, ok)
		assert.Equal(t, "<@U1> :warn:", text.Text)
		assert.Equal(t, slack.MarkdownType, text.Type)

		summary, ok := blocks[2].(*slack.SectionBlock)
		require.True(t, ok)
		require.Len(t, summary.Fields, 2)
		assert.Equal(t, "*Tickets* (2)", summary.Fields[0].Text)
		assert.Equal(t, "*Spent Time* (6h)", summary.Fields[1].Text)
	})

	t.Run("with detail", func(t *testing.T) {
		blocks := r.RenderMember(report, "alice@x.com", "<@U1>", true)
		require.Len(t, blocks, 5)

		first := blocks[3].(*slack.SectionBlock)
		assert.Equal(t, "Fix bug", first.Fields[0].Text)
		assert.Equal(t, "5h", first.Fields[1].Text)

		second := blocks[4].(*slack.SectionBlock)
		assert.Equal(t, "Write &lt;docs&gt; &amp; notes", second.Fields[0].Text)
		assert.Equal(t, "1h", second.Fields[1].Text)
	})

	t.Run("absent member", func(t *testing.T) {
		blocks := r.RenderMember(report, "bob@x.com", "bob", true)
		require.Len(t, blocks, 3)

		header := blocks[1].(*slack.ContextBlock)
		assert.Equal(t, "bob :sos:", header.ContextElements.Elements[0].(*slack.TextBlockObject).Text)

		summary := blocks[2].(*slack.SectionBlock)
		assert.Equal(t, "*Tickets* (0)", summary.Fields[0].Text)
		assert.Equal(t, "*Spent Time* (0h)", summary.Fields[1].Text)
	})
}

func TestRenderer_RenderAllHands(t *testing.T) {
	r := newTestRenderer()

	t.Run("no members", func(t *testing.T) {
		assert.Empty(t, r.RenderAllHands(models.EmailReport{}, models.Directory{}))
	})

	t.Run("all zero", func(t *testing.T) {
		got := r.RenderAllHands(models.EmailReport{}, models.Directory{"bob": "U2", "alice": "U1"})
		assert.Equal(t, ":sos: *ZERO*\n<@U1>\n<@U2>", got)
	})

	t.Run("mixed", func(t *testing.T) {
		report := models.EmailReport{
			"alice@x.com": {{Title: "a", SpentTime: 10}},
			"bob@x.com":   {{Title: "b", SpentTime: 4}, {Title: "c", SpentTime: 2.5}},
		}
		directory := models.Directory{"alice": "U1", "bob": "U2", "carol": "U3"}

		got := r.RenderAllHands(report, directory)
		assert.Equal(t, ":ok: *VALID*\n<@U1>\n\n:warn: *INVALID*\n<@U2> (6.5)\n\n:sos: *ZERO*\n<@U3>", got)
	})
}

func TestFormatHours(t *testing.T) {
	tests := []struct {
		hours    float64
		expected string
	}{
		{5, "5"},
		{1.5, "1.5"},
		{0.1 + 0.2, "0.3"},
		{1.234, "1.23"},
		{0, "0"},
	}

	for _, tt := range tests {
		if got := FormatHours(tt.hours); got != tt.expected {
			t.Errorf("FormatHours(%v) = %q, expected %q", tt.hours, got, tt.expected)
		}
	}
}

func TestRenderer_Icon(t *testing.T) {
	r := newTestRenderer()
	assert.Equal(t, ":ok:", r.Icon(models.CategoryValid))
	assert.Equal(t, ":warn:", r.Icon(models.CategoryInvalid))
	assert.Equal(t, ":sos:", r.Icon(models.CategoryZero))
}
