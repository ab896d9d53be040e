package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maltedev/amazon-pipeline/internal/jobs"
	"github.com/maltedev/amazon-pipeline/internal/pipeline"
)

type fakeOutbox struct {
	pending, dead int64
	err           error
}

func (f fakeOutbox) PendingCount(context.Context) (int64, error)    { return f.pending, f.err }
func (f fakeOutbox) DeadLetterCount(context.Context) (int64, error) { return f.dead, f.err }

func newTestServer(t *testing.T, outbox OutboxStats) (*httptest.Server, *jobs.Manager) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	manager := jobs.NewManager(nil, logger)
	noop := func(context.Context, *jobs.Job) (any, error) { return nil, nil }
	manager.Register(pipeline.NameURLs, noop)
	manager.Register(pipeline.NameProducts, noop)

	srv := httptest.NewServer(NewRouter(NewHandlers(manager, outbox, true, logger)))
	t.Cleanup(srv.Close)
	return srv, manager
}

func post(t *testing.T, url, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestCreateURLRun(t *testing.T) {
	srv, manager := newTestServer(t, nil)

	resp := post(t, srv.URL+"/api/v1/pipelines/urls",
		`{"search_terms":["laptop","mouse"],"target_links":20,"max_pages":3}`)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	var out CreateJobResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.Equal(t, jobs.StatusPending, out.Status)

	job, err := manager.Get(out.JobID)
	require.NoError(t, err)
	assert.Equal(t, pipeline.NameURLs, job.Kind)
	assert.Equal(t, pipeline.URLConfig{
		SearchTerms: []string{"laptop", "mouse"},
		TargetLinks: 20,
		Headless:    true,
		MaxPages:    3,
	}, job.Params)
}

func TestCreateURLRun_Validation(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	tests := []struct {
		name string
		body string
		want string
	}{
		{"malformed", `{"search_terms":`, "invalid request body"},
		{"unknown field", `{"search_terms":["a"],"target_links":1,"proxy":"x"}`, "invalid request body"},
		{"no terms", `{"search_terms":[],"target_links":5}`, "SearchTerms"},
		{"blank term", `{"search_terms":[""],"target_links":5}`, "SearchTerms[0]"},
		{"zero target", `{"search_terms":["a"]}`, "TargetLinks"},
		{"priority", `{"search_terms":["a"],"target_links":1,"priority":11}`, "Priority"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := post(t, srv.URL+"/api/v1/pipelines/urls", tt.body)
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

			var body map[string]string
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
			assert.Contains(t, body["error"], tt.want)
		})
	}
}

func TestCreateProductRun(t *testing.T) {
	srv, manager := newTestServer(t, nil)

	resp := post(t, srv.URL+"/api/v1/pipelines/products",
		`{"url_file_path":"data/urls.json","headless":false,"output_format":"csv"}`)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	var out CreateJobResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))

	job, err := manager.Get(out.JobID)
	require.NoError(t, err)
	assert.Equal(t, pipeline.ProductConfig{
		URLFilePath:  "data/urls.json",
		Headless:     false,
		OutputFormat: "csv",
	}, job.Params)

	bad := post(t, srv.URL+"/api/v1/pipelines/products", `{"url_file_path":"u.json","output_format":"xml"}`)
	assert.Equal(t, http.StatusBadRequest, bad.StatusCode)
}

func TestCreateRun_QueueClosed(t *testing.T) {
	srv, manager := newTestServer(t, nil)
	require.NoError(t, manager.Close())

	resp := post(t, srv.URL+"/api/v1/pipelines/products", `{"url_file_path":"u.json"}`)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestJobs(t *testing.T) {
	srv, manager := newTestServer(t, nil)
	job, err := manager.Submit(pipeline.NameURLs, nil, 0)
	require.NoError(t, err)

	resp, err := http.Get(srv.URL + "/api/v1/jobs/" + job.ID)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var got jobs.Job
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	assert.Equal(t, job.ID, got.ID)

	missing, err := http.Get(srv.URL + "/api/v1/jobs/does-not-exist")
	require.NoError(t, err)
	defer missing.Body.Close()
	assert.Equal(t, http.StatusNotFound, missing.StatusCode)

	list, err := http.Get(srv.URL + "/api/v1/jobs")
	require.NoError(t, err)
	defer list.Body.Close()
	var all []jobs.Job
	require.NoError(t, json.NewDecoder(list.Body).Decode(&all))
	assert.Len(t, all, 1)

	stats, err := http.Get(srv.URL + "/api/v1/stats")
	require.NoError(t, err)
	defer stats.Body.Close()
	var s jobs.Stats
	require.NoError(t, json.NewDecoder(stats.Body).Decode(&s))
	assert.Equal(t, 1, s.PendingJobs)
}

func TestHealth(t *testing.T) {
	tests := []struct {
		name   string
		outbox OutboxStats
		code   int
		status string
	}{
		{"no outbox", nil, http.StatusOK, "ok"},
		{"healthy outbox", fakeOutbox{pending: 3}, http.StatusOK, "ok"},
		{"backlog", fakeOutbox{pending: 5000}, http.StatusOK, "warning"},
		{"dead letters", fakeOutbox{dead: 101}, http.StatusServiceUnavailable, "error"},
		{"unreachable", fakeOutbox{err: errors.New("db down")}, http.StatusServiceUnavailable, "error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, _ := newTestServer(t, tt.outbox)

			resp, err := http.Get(srv.URL + "/health")
			require.NoError(t, err)
			defer resp.Body.Close()
			assert.Equal(t, tt.code, resp.StatusCode)

			var body map[string]any
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
			assert.Equal(t, tt.status, body["status"])
		})
	}
}

func TestMetricsEndpoint(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	health, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	health.Body.Close()

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `http_requests_total{code="200",method="GET"}`)
	assert.Contains(t, string(body), `http_request_duration_seconds_count{method="GET",route="/health"}`)
}
