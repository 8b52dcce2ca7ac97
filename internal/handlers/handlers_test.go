package handlers

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/huangang/timelogbot/internal/models"
	"github.com/huangang/timelogbot/internal/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeRunner struct {
	last *models.RunSummary
}

func (f *fakeRunner) NewTask(trigger, requestedBy string) *services.ReportTask {
	return &services.ReportTask{RunID: "run-1", Trigger: trigger, ReportDate: "2024-05-02", RequestedBy: requestedBy}
}

func (f *fakeRunner) LastRun() *models.RunSummary {
	return f.last
}

type fakeQueue struct {
	mu    sync.Mutex
	tasks []*services.ReportTask
	err   error
	async bool
}

func (q *fakeQueue) Enqueue(task *services.ReportTask) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return q.err
	}
	q.tasks = append(q.tasks, task)
	return nil
}

func (q *fakeQueue) IsAsync() bool { return q.async }
func (q *fakeQueue) Close() error  { return nil }

type fakeScheduler bool

func (s fakeScheduler) SchedulerRunning() bool { return bool(s) }

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func TestHealthHandler(t *testing.T) {
	r := gin.New()
	r.GET("/health", NewHealthHandler(&fakeQueue{async: true}, fakeScheduler(true)).CheckHealth)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, "healthy", body["status"])
	components := body["components"].(map[string]any)
	assert.Equal(t, "async (Redis)", components["queue_mode"])
	assert.Equal(t, "running", components["scheduler"])
}

func TestHealthHandler_SyncDisabled(t *testing.T) {
	r := gin.New()
	r.GET("/health", NewHealthHandler(&fakeQueue{}, fakeScheduler(false)).CheckHealth)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	components := decode(t, w)["components"].(map[string]any)
	assert.Equal(t, "sync", components["queue_mode"])
	assert.Equal(t, "disabled", components["scheduler"])
}

func newRunRouter(runner ReportRunner, queue services.TaskQueue) *gin.Engine {
	h := NewRunHandler(runner, queue)
	r := gin.New()
	r.POST("/api/runs", h.Trigger)
	r.GET("/api/runs/last", h.Last)
	return r
}

func TestRunHandler_Trigger(t *testing.T) {
	queue := &fakeQueue{}
	r := newRunRouter(&fakeRunner{}, queue)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/runs", nil))

	require.Equal(t, http.StatusAccepted, w.Code)
	require.Len(t, queue.tasks, 1)
	assert.Equal(t, services.TriggerManual, queue.tasks[0].Trigger)

	data := decode(t, w)["data"].(map[string]any)
	assert.Equal(t, "run-1", data["run_id"])
}

func TestRunHandler_TriggerWithDate(t *testing.T) {
	queue := &fakeQueue{}
	r := newRunRouter(&fakeRunner{}, queue)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/runs", strings.NewReader(`{"date":"2024-04-30"}`))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, "2024-04-30", queue.tasks[0].ReportDate)
}

func TestRunHandler_TriggerBadRequest(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"bad json", `{"date":`},
		{"bad date", `{"date":"30/04/2024"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			queue := &fakeQueue{}
			r := newRunRouter(&fakeRunner{}, queue)

			w := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodPost, "/api/runs", strings.NewReader(tt.body))
			req.Header.Set("Content-Type", "application/json")
			r.ServeHTTP(w, req)

			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Empty(t, queue.tasks)
		})
	}
}

func TestRunHandler_TriggerEnqueueFailure(t *testing.T) {
	r := newRunRouter(&fakeRunner{}, &fakeQueue{err: errors.New("redis down")})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/runs", nil))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestRunHandler_TriggerAlreadyQueued(t *testing.T) {
	queued := fmt.Errorf("%w: 2024-05-02", services.ErrRunAlreadyQueued)
	r := newRunRouter(&fakeRunner{}, &fakeQueue{err: queued})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/runs", nil))

	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, decode(t, w)["message"], "2024-05-02")
}

func TestRunHandler_Last(t *testing.T) {
	runner := &fakeRunner{}
	r := newRunRouter(runner, &fakeQueue{})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/runs/last", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)

	runner.last = &models.RunSummary{RunID: "run-0", ValidCount: 4}
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/runs/last", nil))

	require.Equal(t, http.StatusOK, w.Code)
	data := decode(t, w)["data"].(map[string]any)
	assert.Equal(t, "run-0", data["run_id"])
	assert.EqualValues(t, 4, data["valid_count"])
}

const testSigningSecret = "8f742231b10e8888abcd99yyyzzz85a5"

func signedSlashRequest(t *testing.T, secret, text string) *http.Request {
	t.Helper()
	form := url.Values{}
	form.Set("command", "/timelog")
	form.Set("text", text)
	form.Set("user_name", "alice")
	form.Set("user_id", "U1")
	body := form.Encode()

	ts := strconv.FormatInt(time.Now().Unix(), 10)
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte("v0:" + ts + ":" + body))

	req := httptest.NewRequest(http.MethodPost, "/slack/commands", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("X-Slack-Request-Timestamp", ts)
	req.Header.Set("X-Slack-Signature", "v0="+hex.EncodeToString(mac.Sum(nil)))
	return req
}

func newSlackRouter(runner ReportRunner, queue services.TaskQueue) *gin.Engine {
	r := gin.New()
	r.POST("/slack/commands", NewSlackCommandHandler(testSigningSecret, runner, queue).Handle)
	return r
}

func TestSlackCommandHandler_Run(t *testing.T) {
	queue := &fakeQueue{}
	r := newSlackRouter(&fakeRunner{}, queue)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, signedSlashRequest(t, testSigningSecret, "run"))

	require.Equal(t, http.StatusOK, w.Code)
	require.Len(t, queue.tasks, 1)
	assert.Equal(t, services.TriggerSlack, queue.tasks[0].Trigger)
	assert.Equal(t, "alice", queue.tasks[0].RequestedBy)

	body := decode(t, w)
	assert.Equal(t, "ephemeral", body["response_type"])
	assert.Contains(t, body["text"], "run-1")
}

func TestSlackCommandHandler_RunAlreadyQueued(t *testing.T) {
	queue := &fakeQueue{err: fmt.Errorf("%w: 2024-05-02", services.ErrRunAlreadyQueued)}
	r := newSlackRouter(&fakeRunner{}, queue)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, signedSlashRequest(t, testSigningSecret, "run"))

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "A report for 2024-05-02 is already queued.", decode(t, w)["text"])
}

func TestSlackCommandHandler_Status(t *testing.T) {
	runner := &fakeRunner{last: &models.RunSummary{ReportDate: "2024-05-01", ValidCount: 3, InvalidCount: 1, Delivered: 5}}
	r := newSlackRouter(runner, &fakeQueue{})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, signedSlashRequest(t, testSigningSecret, "status"))

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Last run for 2024-05-01: 3 valid, 1 invalid, 0 zero. 5 delivered, 0 failed.", decode(t, w)["text"])
}

func TestSlackCommandHandler_Help(t *testing.T) {
	r := newSlackRouter(&fakeRunner{}, &fakeQueue{})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, signedSlashRequest(t, testSigningSecret, "what"))

	assert.Equal(t, slashHelp, decode(t, w)["text"])
}

func TestSlackCommandHandler_RejectsBadSignature(t *testing.T) {
	queue := &fakeQueue{}
	r := newSlackRouter(&fakeRunner{}, queue)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, signedSlashRequest(t, "some-other-secret", "run"))

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Empty(t, queue.tasks)
}

func TestSlackCommandHandler_RejectsMissingHeaders(t *testing.T) {
	r := newSlackRouter(&fakeRunner{}, &fakeQueue{})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/slack/commands", strings.NewReader("text=run"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestDescribeRun(t *testing.T) {
	tests := []struct {
		name     string
		summary  *models.RunSummary
		expected string
	}{
		{"none", nil, "No report has run yet."},
		{"skipped", &models.RunSummary{ReportDate: "2024-05-01", Skipped: "holiday"}, "Last run for 2024-05-01 was skipped (holiday)."},
		{"failed", &models.RunSummary{ReportDate: "2024-05-01", Error: "boom"}, "Last run for 2024-05-01 failed: boom"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, describeRun(tt.summary))
		})
	}
}
