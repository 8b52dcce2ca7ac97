package services

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/slack-go/slack"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type webhookRecorder struct {
	mu     sync.Mutex
	bodies map[string][]map[string]any
}

func newWebhookServer(t *testing.T) (*httptest.Server, *webhookRecorder) {
	t.Helper()
	rec := &webhookRecorder{bodies: make(map[string][]map[string]any)}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/fail" {
			http.Error(w, "invalid_payload", http.StatusBadRequest)
			return
		}
		raw, _ := io.ReadAll(r.Body)
		var body map[string]any
		_ = json.Unmarshal(raw, &body)

		rec.mu.Lock()
		rec.bodies[r.URL.Path] = append(rec.bodies[r.URL.Path], body)
		rec.mu.Unlock()
		w.Write([]byte("ok"))
	}))
	t.Cleanup(srv.Close)
	return srv, rec
}

func (r *webhookRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, b := range r.bodies {
		n += len(b)
	}
	return n
}

func (r *webhookRecorder) get(path string) []map[string]any {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.bodies[path]
}

func TestDispatcher_SkipsEmptyPayloads(t *testing.T) {
	srv, rec := newWebhookServer(t)
	d := NewDispatcher(srv.Client())

	delivered, failed := d.DeliverAll(context.Background(), []Delivery{
		{Recipient: "no-blocks", Webhook: srv.URL + "/a"},
		{Recipient: "no-text", Webhook: srv.URL + "/b", Platform: "slack"},
		{Recipient: "no-webhook", Text: "hello"},
		{Recipient: "no-webhook-blocks", Blocks: []slack.Block{slack.NewDividerBlock()}},
	})

	assert.Equal(t, 0, delivered)
	assert.Equal(t, 0, failed)
	assert.Equal(t, 0, rec.count())
}

func TestDispatcher_IsolatesFailures(t *testing.T) {
	srv, rec := newWebhookServer(t)
	d := NewDispatcher(srv.Client())

	delivered, failed := d.DeliverAll(context.Background(), []Delivery{
		{Recipient: "alice", Webhook: srv.URL + "/alice", Blocks: []slack.Block{slack.NewDividerBlock()}},
		{Recipient: "broken", Webhook: srv.URL + "/fail", Blocks: []slack.Block{slack.NewDividerBlock()}},
		{Recipient: "all-hands", Webhook: srv.URL + "/all", Platform: "slack", Text: "report"},
	})

	assert.Equal(t, 2, delivered)
	assert.Equal(t, 1, failed)

	alice := rec.get("/alice")
	require.Len(t, alice, 1)
	assert.Contains(t, alice[0], "blocks")

	all := rec.get("/all")
	require.Len(t, all, 1)
	assert.Equal(t, "report", all[0]["text"])
}

func TestDispatcher_DeliverTextPlatforms(t *testing.T) {
	srv, rec := newWebhookServer(t)
	d := NewDispatcher(srv.Client())
	ctx := context.Background()

	require.NoError(t, d.DeliverText(ctx, "discord", srv.URL+"/discord", "hi"))
	require.NoError(t, d.DeliverText(ctx, "teams", srv.URL+"/teams", "hi"))
	require.NoError(t, d.DeliverText(ctx, "custom", srv.URL+"/generic", "hi"))

	assert.Equal(t, "hi", rec.get("/discord")[0]["content"])
	assert.Equal(t, "message", rec.get("/teams")[0]["type"])
	assert.Equal(t, "timelog_report", rec.get("/generic")[0]["type"])
	assert.Equal(t, "hi", rec.get("/generic")[0]["message"])
}

func TestDispatcher_DeliverTextFailure(t *testing.T) {
	srv, _ := newWebhookServer(t)
	d := NewDispatcher(srv.Client())

	err := d.DeliverText(context.Background(), "discord", srv.URL+"/fail", "hi")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "400")
}

func TestGetAdapter(t *testing.T) {
	tests := []struct {
		platform string
		expected NotificationAdapter
	}{
		{"", &slackAdapter{}},
		{"slack", &slackAdapter{}},
		{"discord", &discordAdapter{}},
		{"teams", &teamsAdapter{}},
		{"webhook", &genericAdapter{}},
	}

	for _, tt := range tests {
		t.Run(tt.platform, func(t *testing.T) {
			assert.IsType(t, tt.expected, getAdapter(tt.platform))
		})
	}
}
