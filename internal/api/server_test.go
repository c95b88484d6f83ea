package api_test

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TheMichaelB/jobhunt/internal/api"
	"github.com/TheMichaelB/jobhunt/internal/llm"
	"github.com/TheMichaelB/jobhunt/internal/lock"
	"github.com/TheMichaelB/jobhunt/internal/metrics"
	"github.com/TheMichaelB/jobhunt/internal/services/jobs"
	"github.com/TheMichaelB/jobhunt/internal/services/strategy"
	"github.com/TheMichaelB/jobhunt/internal/storage"
	"github.com/TheMichaelB/jobhunt/test/testutil"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type testServer struct {
	srv    *httptest.Server
	remote *storage.MemoryStore
	model  *testutil.ScriptedModel
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	remote := storage.NewMemoryStore()
	synced := testutil.NewSyncedStore(t, remote, "api")
	model := testutil.NewScriptedModel(testutil.AnalysisJSON)

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	responder := llm.NewResponder(model, llm.Options{Observer: m})
	logger := testutil.NewTestLogger()

	s := api.New(api.Options{
		Jobs:     jobs.NewService(synced, responder, logger),
		Strategy: strategy.NewService(synced, remote, nil, logger),
		Lock:     lock.New(remote, testutil.LockKey),
		Gatherer: reg,
		Logger:   logger,
	})

	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)
	return &testServer{srv: srv, remote: remote, model: model}
}

func (ts *testServer) do(t *testing.T, method, path string, body interface{}) (int, map[string]interface{}) {
	t.Helper()

	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(b)
	}

	req, err := http.NewRequest(method, ts.srv.URL+path, r)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]interface{}
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if len(raw) > 0 && strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(raw, &out))
	}
	return resp.StatusCode, out
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t)

	status, body := ts.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "ok", body["status"])
}

func TestJobsFlow(t *testing.T) {
	ts := newTestServer(t)

	status, created := ts.do(t, http.MethodPost, "/jobs", testutil.SampleJob("1"))
	require.Equal(t, http.StatusCreated, status)
	id, _ := created["id"].(string)
	require.NotEmpty(t, id)

	status, report := ts.do(t, http.MethodPost, "/jobs/analyze", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, []interface{}{id}, report["analyzed"])

	status, list := ts.do(t, http.MethodGet, "/jobs?min_score=80", nil)
	require.Equal(t, http.StatusOK, status)
	items, _ := list["jobs"].([]interface{})
	require.Len(t, items, 1)
	assert.Equal(t, float64(82), items[0].(map[string]interface{})["score"])

	status, job := ts.do(t, http.MethodGet, "/jobs/"+id, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "analyzed", job["status"])
}

func TestErrorMapping(t *testing.T) {
	ts := newTestServer(t)

	status, body := ts.do(t, http.MethodPost, "/jobs", map[string]string{"title": "no url"})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "VALIDATION_ERROR", body["error"].(map[string]interface{})["code"])

	status, _ = ts.do(t, http.MethodGet, "/jobs/missing", nil)
	assert.Equal(t, http.StatusNotFound, status)

	status, _ = ts.do(t, http.MethodGet, "/jobs?limit=-3", nil)
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestLockedReturns423(t *testing.T) {
	ts := newTestServer(t)
	release := testutil.HoldLock(t, ts.remote, "cron")
	defer release()

	status, body := ts.do(t, http.MethodPost, "/jobs", testutil.SampleJob("1"))
	assert.Equal(t, http.StatusLocked, status)
	errBody := body["error"].(map[string]interface{})
	assert.Equal(t, "LOCKED", errBody["code"])
	assert.Contains(t, errBody["message"], "try again later")

	status, lockBody := ts.do(t, http.MethodGet, "/lock", nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, true, lockBody["locked"])
	assert.Equal(t, "cron", lockBody["marker"].(map[string]interface{})["holder"])
}

func TestStrategyPublish(t *testing.T) {
	ts := newTestServer(t)

	status, body := ts.do(t, http.MethodPost, "/strategy/publish", nil)
	require.Equal(t, http.StatusCreated, status)
	st := body["strategy"].(map[string]interface{})
	assert.True(t, strings.HasPrefix(st["object_key"].(string), "strategies/"))

	status, list := ts.do(t, http.MethodGet, "/strategy", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, list["strategies"], 1)
}

func TestMetrics(t *testing.T) {
	ts := newTestServer(t)

	ts.do(t, http.MethodPost, "/jobs", testutil.SampleJob("1"))
	ts.do(t, http.MethodPost, "/jobs/analyze", nil)

	resp, err := http.Get(ts.srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Contains(t, string(raw), `jobhunt_llm_attempts_total{outcome="ok"} 1`)
	assert.Contains(t, string(raw), "jobhunt_lock_wait_seconds")
}
